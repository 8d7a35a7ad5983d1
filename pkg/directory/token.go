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
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultTokenTTL = 5 * time.Minute

// TokenSource supplies the bearer credential attached to directory requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoCredential
	}

	return token, nil
}

// FileTokenSource reads the credential from a file and caches it for a TTL,
// so rotated tokens are picked up without a restart.
type FileTokenSource struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func NewFileTokenSource(path string, ttl time.Duration) *FileTokenSource {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &FileTokenSource{
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Token returns the cached credential, re-reading the file once it expires.
func (f *FileTokenSource) Token(context.Context) (string, error) {
	f.mu.RLock()
	if f.token != "" && f.now().Before(f.expiry) {
		token := f.token
		f.mu.RUnlock()

		return token, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && f.now().Before(f.expiry) {
		return f.token, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoCredential, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}

	f.token = token
	f.expiry = f.now().Add(f.ttl)

	return token, nil
}

// Invalidate drops the cached credential.
func (f *FileTokenSource) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.token = ""
	f.expiry = time.Time{}
}
