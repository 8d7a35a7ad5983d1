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

// Package binding keeps one widget's telemetry binding up to date: it looks up
// the bound device on every tick, reads the bound field, applies the formula
// and publishes snapshots of the result.
package binding

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/tagbind/pkg/directory"
	"github.com/carverauto/tagbind/pkg/expr"
	"github.com/carverauto/tagbind/pkg/fields"
	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
)

// Session owns the state of one binding. Results of a refresh are applied only
// if no rebind, unbind or teardown happened while it was in flight.
type Session struct {
	id     string
	lister directory.Lister
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu       sync.Mutex
	binding  models.Binding
	program  *expr.Program
	gen      uint64
	inflight bool
	cancel   context.CancelFunc
	closed   bool
	snap     Snapshot
	subs     map[uint64]func(Snapshot)
	nextSub  uint64

	// held while subscribers run so they observe changes in order
	notifyMu sync.Mutex
}

// NewSession creates an unbound session that resolves devices through lister.
func NewSession(id string, lister directory.Lister, log logger.Logger) *Session {
	s := &Session{
		id:     id,
		lister: lister,
		logger: log,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
		subs:   make(map[uint64]func(Snapshot)),
	}

	s.snap = Snapshot{ID: id, State: StateUnbound}

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Bind switches the session to b. Outstanding work for the previous binding
// is cancelled and its results will be ignored.
func (s *Session) Bind(b models.Binding) {
	b = cleanBinding(b)
	if b.IsZero() {
		s.Unbind()
		return
	}

	program := expr.Compile(b.Expression)
	if err := program.Err(); err != nil {
		s.logger.Debug().
			Err(err).
			Str("session", s.id).
			Str("expression", b.Expression).
			Msg("Expression does not compile, output will be empty")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.invalidateLocked()
	s.binding = b
	s.program = program
	s.snap = Snapshot{
		ID:        s.id,
		Binding:   b,
		State:     StatePending,
		UpdatedAt: s.now(),
	}

	s.publishLocked()
}

// Unbind returns the session to the unbound state and clears derived values.
func (s *Session) Unbind() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.invalidateLocked()
	s.binding = models.Binding{}
	s.program = nil
	s.snap = Snapshot{
		ID:        s.id,
		State:     StateUnbound,
		UpdatedAt: s.now(),
	}

	s.publishLocked()
}

// Close unbinds and drops all subscribers. The session is inert afterwards.
func (s *Session) Close() {
	s.Unbind()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.subs = make(map[uint64]func(Snapshot))
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap
}

// Subscribe registers fn to receive a snapshot after every applied change.
// fn must not call Bind, Unbind or Close. The returned func unsubscribes.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Tick runs one refresh. It does nothing while unbound or while a refresh of
// the current binding is still in flight.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.snap.State == StateUnbound || s.inflight {
		s.mu.Unlock()
		return
	}

	gen := s.gen
	b := s.binding
	program := s.program

	tickCtx, cancel := context.WithCancel(ctx)
	s.inflight = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.inflight = false
			s.cancel = nil
		}
		s.mu.Unlock()

		cancel()
	}()

	tickCtx, span := s.tracer.Start(tickCtx, "binding.tick", trace.WithAttributes(
		attribute.String("session", s.id),
		attribute.String("device_class", b.DeviceClass),
		attribute.String("device_id", b.DeviceID),
		attribute.String("field", b.Field),
	))
	defer span.End()

	records := s.lister.ListDevices(tickCtx, b.DeviceClass)

	if tickCtx.Err() != nil {
		s.discard(tickCtx, span, b, "cancelled")
		return
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		s.discard(tickCtx, span, b, "superseded")

		return
	}

	s.applyLocked(findRecord(records, b.DeviceID), b, program)

	outcome := string(s.snap.Reason)
	if s.snap.State == StateLive {
		outcome = outcomeLive
	}

	span.SetAttributes(attribute.String("outcome", outcome))
	recordTick(tickCtx, b.DeviceClass, outcome)

	s.publishLocked()
}

func (s *Session) discard(ctx context.Context, span trace.Span, b models.Binding, why string) {
	span.SetAttributes(
		attribute.String("outcome", outcomeDiscarded),
		attribute.String("discard_reason", why),
	)
	recordTick(context.WithoutCancel(ctx), b.DeviceClass, outcomeDiscarded)

	s.logger.Trace().
		Str("session", s.id).
		Str("reason", why).
		Msg("Dropping refresh result")
}

// applyLocked derives the next snapshot from the looked up record.
func (s *Session) applyLocked(record *models.DeviceRecord, b models.Binding, program *expr.Program) {
	prev := s.snap
	next := Snapshot{
		ID:              s.id,
		Binding:         b,
		LastKnownLive:   prev.LastKnownLive,
		LastKnownOutput: prev.LastKnownOutput,
		UpdatedAt:       s.now(),
	}

	if prev.LiveValue != nil {
		next.LastKnownLive = prev.LiveValue
		next.LastKnownOutput = prev.OutputValue
	}

	if record == nil {
		next.State = StateStale
		next.Reason = ReasonDeviceNotFound
		s.snap = next

		return
	}

	rec := record.Clone()
	next.Record = rec
	next.OnlineStatus = rec.Online()

	// a field that is present but not numeric is reported like a missing one
	live, ok := liveNumber(rec, b.Field)
	if !ok {
		next.State = StateStale
		next.Reason = ReasonNoDataForTag
		s.snap = next

		return
	}

	next.State = StateLive
	next.LiveValue = live
	next.OutputValue = program.Eval(live)
	next.LastKnownLive = live
	next.LastKnownOutput = next.OutputValue
	s.snap = next
}

// liveNumber resolves the logical field and coerces it to a finite number.
func liveNumber(rec *models.DeviceRecord, field string) (float64, bool) {
	raw, ok := fields.Read(rec, field)
	if !ok {
		return 0, false
	}

	return expr.ToNumber(raw)
}

// invalidateLocked makes any in-flight refresh inert.
func (s *Session) invalidateLocked() {
	s.gen++
	s.inflight = false

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// publishLocked releases s.mu and hands the current snapshot to subscribers.
func (s *Session) publishLocked() {
	snap := s.snap

	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}

	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func cleanBinding(b models.Binding) models.Binding {
	b.DeviceClass = strings.TrimSpace(b.DeviceClass)
	b.DeviceID = strings.TrimSpace(b.DeviceID)
	b.Field = strings.TrimSpace(b.Field)

	return b
}

// findRecord matches the device ID exactly, then ignoring case.
func findRecord(records []models.DeviceRecord, id string) *models.DeviceRecord {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	for i := range records {
		if strings.TrimSpace(records[i].ID) == id {
			return &records[i]
		}
	}

	for i := range records {
		if strings.EqualFold(strings.TrimSpace(records[i].ID), id) {
			return &records[i]
		}
	}

	return nil
}
