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

// Package poller drives periodic refreshes of a set of targets.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/tagbind/pkg/logger"
)

// Poller ticks its targets on a fixed interval while visible.
type Poller struct {
	// BeforeTick, when set, runs before every fan-out.
	BeforeTick func()

	interval   time.Duration
	clock      Clock
	visibility Visibility
	logger     logger.Logger
	targets    []Target

	mu        sync.Mutex
	cancel    context.CancelFunc
	stopped   bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	startWg   sync.WaitGroup
}

// New creates a poller. A nil clock uses wall time and a nil visibility is
// always visible.
func New(config *Config, clock Clock, visibility Visibility, log logger.Logger, targets ...Target) *Poller {
	if clock == nil {
		clock = realClock{}
	}

	return &Poller{
		interval:   config.EffectiveInterval(),
		clock:      clock,
		visibility: visibility,
		logger:     log,
		targets:    append([]Target(nil), targets...),
		done:       make(chan struct{}),
	}
}

// Interval returns the effective tick interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start implements the lifecycle.Service interface. It ticks immediately and
// then on every clock tick until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}

	p.cancel = cancel
	p.startWg.Add(1)
	p.mu.Unlock()

	defer p.startWg.Done()

	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("targets", len(p.targets)).
		Msg("Starting poller")

	if p.visible(runCtx) {
		p.wg.Add(1)
		p.tick(runCtx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-ticker.Chan():
			// hidden ticks are dropped here, so nothing queues up while hidden
			if !p.visible(runCtx) {
				continue
			}

			p.wg.Add(1)

			go p.tick(runCtx)
		}
	}
}

// Stop implements the lifecycle.Service interface. In-flight refreshes see a
// cancelled context, so their results are dropped.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true

	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.done)
	})

	waited := make(chan struct{})

	go func() {
		p.startWg.Wait()
		p.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		p.logger.Info().Msg("Poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) visible(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	if p.visibility != nil && !p.visibility.Visible() {
		recordTick(ctx, outcomeHidden)
		p.logger.Trace().Msg("Skipping tick while hidden")

		return false
	}

	return true
}

// tick refreshes every target concurrently and waits for all of them.
func (p *Poller) tick(ctx context.Context) {
	defer p.wg.Done()

	if p.BeforeTick != nil {
		p.BeforeTick()
	}

	start := p.clock.Now()

	var wg sync.WaitGroup

	for _, target := range p.targets {
		wg.Add(1)

		go func(t Target) {
			defer wg.Done()

			t.Tick(ctx)
		}(target)
	}

	wg.Wait()

	recordTick(ctx, outcomeRun)
	p.logger.Trace().
		Dur("elapsed", p.clock.Now().Sub(start)).
		Int("targets", len(p.targets)).
		Msg("Tick complete")
}
