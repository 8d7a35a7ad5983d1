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

// Package directory retrieves the devices visible for a device class. Each
// class has an ordered list of equivalent retrieval strategies; the first one
// that yields records wins, and every failure degrades to "no devices".
package directory

//go:generate mockgen -destination=mock_directory.go -package=directory github.com/carverauto/tagbind/pkg/directory Strategy,Lister

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
)

const (
	outcomeHit   = "hit"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

// Strategy is one way of retrieving the raw device listing for a class.
type Strategy interface {
	Name() string
	FetchCandidate(ctx context.Context) ([]byte, error)
}

// Lister returns the normalized devices of a class. It never fails; an empty
// result means "no data yet".
type Lister interface {
	ListDevices(ctx context.Context, classKey string) []models.DeviceRecord
}

type classEntry struct {
	class      models.DeviceClass
	strategies []Strategy
}

// Registry maps device class keys to their ordered strategies.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]classEntry
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]classEntry)}
}

// Register sets the strategies for class, replacing earlier ones. Order is
// priority order.
func (r *Registry) Register(class models.DeviceClass, strategies ...Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.classes[classKey(class.Key)] = classEntry{
		class:      class,
		strategies: append([]Strategy(nil), strategies...),
	}
}

// Class returns the class registered under key and its strategies.
func (r *Registry) Class(key string) (models.DeviceClass, []Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.classes[classKey(key)]

	return entry.class, entry.strategies, ok
}

// Keys lists the registered class keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.classes))
	for _, entry := range r.classes {
		keys = append(keys, entry.class.Key)
	}

	sort.Strings(keys)

	return keys
}

func classKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Lookup implements Lister over a Registry. It does not cache.
type Lookup struct {
	registry *Registry
	logger   logger.Logger
}

func NewLookup(registry *Registry, log logger.Logger) *Lookup {
	return &Lookup{
		registry: registry,
		logger:   log,
	}
}

// ListDevices tries the class strategies in order and returns the records of
// the first one that yields at least one. Later strategies are not called.
func (l *Lookup) ListDevices(ctx context.Context, key string) []models.DeviceRecord {
	class, strategies, ok := l.registry.Class(key)
	if !ok {
		l.logger.Debug().Str("device_class", key).Msg("No strategies registered for device class")
		return nil
	}

	opts := NormalizeOptions{DefaultStatus: class.DefaultStatus}

	for i, strategy := range strategies {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		body, err := strategy.FetchCandidate(ctx)

		if err != nil {
			recordCandidate(ctx, class.Key, strategy.Name(), outcomeError, time.Since(start))

			l.logger.Debug().
				Err(err).
				Str("device_class", class.Key).
				Str("strategy", strategy.Name()).
				Int("candidate", i).
				Msg("Directory candidate failed")

			continue
		}

		records := Normalize(body, opts)
		if len(records) == 0 {
			recordCandidate(ctx, class.Key, strategy.Name(), outcomeEmpty, time.Since(start))
			continue
		}

		recordCandidate(ctx, class.Key, strategy.Name(), outcomeHit, time.Since(start))

		l.logger.Trace().
			Str("device_class", class.Key).
			Str("strategy", strategy.Name()).
			Int("records", len(records)).
			Msg("Directory candidate returned devices")

		return records
	}

	return nil
}
