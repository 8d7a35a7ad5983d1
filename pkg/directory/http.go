/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultHTTPTimeout  = 10 * time.Second
	defaultMaxBodyBytes = 8 << 20
)

// BreakerConfig controls the per-candidate circuit breaker. A zero
// MaxFailures disables it.
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
	Interval    time.Duration
}

// HTTPOptions configures an HTTPStrategy.
type HTTPOptions struct {
	Client       *http.Client
	Tokens       TokenSource
	Breaker      BreakerConfig
	MaxBodyBytes int64
}

// invalidator is implemented by token sources that can drop a cached credential.
type invalidator interface {
	Invalidate()
}

// HTTPStrategy fetches a device listing with a GET request.
type HTTPStrategy struct {
	name     string
	endpoint string
	client   *http.Client
	tokens   TokenSource
	maxBody  int64
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPStrategy builds a strategy for baseURL joined with path.
func NewHTTPStrategy(name, baseURL, path string, opts HTTPOptions) (*HTTPStrategy, error) {
	rawPath, query, _ := strings.Cut(path, "?")

	endpoint, err := url.JoinPath(baseURL, rawPath)
	if err != nil {
		return nil, fmt.Errorf("invalid directory endpoint %q: %w", baseURL, err)
	}

	if query != "" {
		endpoint += "?" + query
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	s := &HTTPStrategy{
		name:     name,
		endpoint: endpoint,
		client:   client,
		tokens:   opts.Tokens,
		maxBody:  maxBody,
	}

	if opts.Breaker.MaxFailures > 0 {
		s.breaker = newBreaker(name, opts.Breaker)
	}

	return s, nil
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// missing credentials and cancelled ticks say nothing about backend health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNoCredential) ||
				errors.Is(err, context.Canceled)
		},
	})
}

func (s *HTTPStrategy) Name() string {
	return s.name
}

// Endpoint returns the resolved request URL.
func (s *HTTPStrategy) Endpoint() string {
	return s.endpoint
}

// FetchCandidate performs the request, short-circuiting while the breaker is open.
func (s *HTTPStrategy) FetchCandidate(ctx context.Context) ([]byte, error) {
	if s.breaker == nil {
		return s.fetch(ctx)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	body, _ := result.([]byte)

	return body, nil
}

func (s *HTTPStrategy) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, s.maxBody))

		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := s.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}

		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, s.name)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, err
	}

	if int64(len(body)) > s.maxBody {
		return nil, ErrBodyTooLarge
	}

	return body, nil
}
