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

// Package publish forwards binding snapshots to NATS JetStream as CloudEvents
// so that other services can react to telemetry without polling.
package publish

//go:generate mockgen -destination=mock_publish.go -package=publish github.com/carverauto/tagbind/pkg/publish JetStreamPublisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/tagbind/pkg/binding"
	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
)

const (
	EventType            = "com.carverauto.tagbind.binding.snapshot"
	DefaultSubjectPrefix = "tagbind.bindings"
	defaultQueueSize     = 256
	publishTimeout       = 5 * time.Second

	publishInitialBackoff = 100 * time.Millisecond
	publishMaxBackoff     = time.Second
	publishMaxElapsed     = 10 * time.Second
)

var (
	errNoJetStream    = errors.New("snapshot publisher has no JetStream context")
	errAlreadyStarted = errors.New("snapshot publisher already started")
)

// JetStreamPublisher is the part of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventData is the CloudEvent payload.
type EventData struct {
	binding.Snapshot
	Display string `json:"display"`
}

// SnapshotPublisher queues snapshots and publishes those that changed.
type SnapshotPublisher struct {
	js            JetStreamPublisher
	source        string
	subjectPrefix string
	logger        logger.Logger

	queue    chan binding.Snapshot
	done     chan struct{}
	finished chan struct{}
	once     sync.Once

	mu      sync.Mutex
	running bool
	last    map[string]binding.Snapshot
}

// NewSnapshotPublisher creates a publisher. source identifies this instance in
// the CloudEvent source attribute.
func NewSnapshotPublisher(js JetStreamPublisher, source, subjectPrefix string, log logger.Logger) *SnapshotPublisher {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}

	return &SnapshotPublisher{
		js:            js,
		source:        source,
		subjectPrefix: strings.TrimSuffix(subjectPrefix, "."),
		logger:        log,
		queue:         make(chan binding.Snapshot, defaultQueueSize),
		done:          make(chan struct{}),
		finished:      make(chan struct{}),
		last:          make(map[string]binding.Snapshot),
	}
}

// Handle queues a snapshot without blocking. It is meant to be passed to
// Session.Subscribe.
func (p *SnapshotPublisher) Handle(s binding.Snapshot) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- s:
	default:
		recordPublish(context.Background(), outcomeDropped)
		p.logger.Warn().Str("session", s.ID).Msg("Snapshot queue full, dropping update")
	}
}

// Start implements the lifecycle.Service interface.
func (p *SnapshotPublisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errAlreadyStarted
	}

	p.running = true
	p.mu.Unlock()

	defer close(p.finished)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			p.drain(ctx)
			return nil
		case s := <-p.queue:
			p.publishIfChanged(ctx, s)
		}
	}
}

// Stop implements the lifecycle.Service interface. Queued snapshots are
// flushed before Start returns.
func (p *SnapshotPublisher) Stop(ctx context.Context) error {
	p.once.Do(func() { close(p.done) })

	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case <-p.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *SnapshotPublisher) drain(ctx context.Context) {
	for {
		select {
		case s := <-p.queue:
			p.publishIfChanged(ctx, s)
		default:
			return
		}
	}
}

func (p *SnapshotPublisher) publishIfChanged(ctx context.Context, s binding.Snapshot) {
	p.mu.Lock()
	prev, seen := p.last[s.ID]
	p.mu.Unlock()

	if seen && sameOutcome(prev, s) {
		recordPublish(ctx, outcomeUnchanged)
		return
	}

	if err := p.Publish(ctx, s); err != nil {
		recordPublish(ctx, outcomeError)
		p.logger.Warn().Err(err).Str("session", s.ID).Msg("Failed to publish snapshot")

		return
	}

	recordPublish(ctx, outcomePublished)

	p.mu.Lock()
	p.last[s.ID] = s
	p.mu.Unlock()
}

// Publish sends one snapshot as a CloudEvent.
func (p *SnapshotPublisher) Publish(ctx context.Context, s binding.Snapshot) error {
	if p.js == nil {
		return errNoJetStream
	}

	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          p.source,
		Type:            EventType,
		DataContentType: "application/json",
		Subject:         p.Subject(s.ID),
		Time:            &ts,
		Data: EventData{
			Snapshot: s,
			Display:  binding.FormatOutput(s),
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot event: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = publishInitialBackoff
	bo.MaxInterval = publishMaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2

	attempts := 0

	operation := func() (*jetstream.PubAck, error) {
		attempts++

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		// the message ID lets the stream drop duplicates of a retried publish
		ack, err := p.js.Publish(pubCtx, event.Subject, payload, jetstream.WithMsgID(event.ID))
		if err == nil {
			return ack, nil
		}

		if ctx.Err() == nil && shouldRetryPublish(err) {
			p.logger.Debug().Err(err).Str("event_id", event.ID).Int("attempt", attempts).Msg("Retrying snapshot publish")
			return nil, err
		}

		return nil, backoff.Permanent(err)
	}

	ack, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(publishMaxElapsed))
	if err != nil {
		return fmt.Errorf("failed to publish snapshot event: %w", err)
	}

	p.logger.Trace().
		Str("event_id", event.ID).
		Str("subject", event.Subject).
		Uint64("seq", ack.Sequence).
		Int("attempts", attempts).
		Msg("Published snapshot event")

	return nil
}

// shouldRetryPublish reports whether err is a transient broker condition.
func shouldRetryPublish(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Subject returns the subject used for a session.
func (p *SnapshotPublisher) Subject(sessionID string) string {
	return p.subjectPrefix + "." + subjectToken(sessionID)
}

// subjectToken makes id safe to use as a single subject token.
func subjectToken(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		default:
			return r
		}
	}, id)
}

// sameOutcome reports whether b carries nothing new for subscribers of a.
func sameOutcome(a, b binding.Snapshot) bool {
	return a.Binding == b.Binding &&
		a.State == b.State &&
		a.Reason == b.Reason &&
		a.OnlineStatus == b.OnlineStatus &&
		a.OutputValue.Equal(b.OutputValue) &&
		a.LastKnownOutput.Equal(b.LastKnownOutput)
}
