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
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carverauto/tagbind/pkg/models"
)

// DefaultFetchTimeout bounds a shared fetch once it no longer follows the
// context of the caller that started it.
const DefaultFetchTimeout = 30 * time.Second

var errFetchAbandoned = errors.New("shared directory fetch did not complete")

// TickCache memoizes listings for the duration of one poll tick so that many
// sessions bound to the same class cause a single round of requests.
// Concurrent misses for a class share one call, which runs detached from the
// caller that started it so that one cancelled session cannot empty the tick
// for the others.
type TickCache struct {
	lister       Lister
	group        singleflight.Group
	fetchTimeout time.Duration

	mu      sync.Mutex
	gen     uint64
	entries map[string][]models.DeviceRecord
}

func NewTickCache(lister Lister) *TickCache {
	return &TickCache{
		lister:       lister,
		fetchTimeout: DefaultFetchTimeout,
		entries:      make(map[string][]models.DeviceRecord),
	}
}

// ListDevices returns the memoized listing for the class, fetching it on the
// first request of the tick.
func (c *TickCache) ListDevices(ctx context.Context, key string) []models.DeviceRecord {
	norm := classKey(key)

	c.mu.Lock()
	records, ok := c.entries[norm]
	gen := c.gen
	c.mu.Unlock()

	recordCache(ctx, norm, ok)

	if ok {
		return copyRecords(records)
	}

	ch := c.group.DoChan(strconv.FormatUint(gen, 10)+"/"+norm, func() (interface{}, error) {
		c.mu.Lock()
		cached, hit := c.entries[norm]
		c.mu.Unlock()

		if hit {
			return cached, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		fetched := c.lister.ListDevices(fetchCtx, key)

		// an interrupted listing is handed to the waiters but never memoized
		if fetchCtx.Err() != nil {
			return fetched, errFetchAbandoned
		}

		c.mu.Lock()
		if c.gen == gen {
			c.entries[norm] = fetched
		}
		c.mu.Unlock()

		return fetched, nil
	})

	select {
	case res := <-ch:
		fetched, _ := res.Val.([]models.DeviceRecord)
		return copyRecords(fetched)
	case <-ctx.Done():
		return nil
	}
}

// Reset forgets every memoized listing. Fetches still in flight from the
// previous tick will not repopulate the cache.
func (c *TickCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.entries = make(map[string][]models.DeviceRecord)
}

func copyRecords(records []models.DeviceRecord) []models.DeviceRecord {
	if len(records) == 0 {
		return nil
	}

	return append([]models.DeviceRecord(nil), records...)
}
