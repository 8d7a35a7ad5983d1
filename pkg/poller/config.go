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

package poller

import (
	"time"

	"github.com/carverauto/tagbind/pkg/models"
)

const (
	DefaultInterval = 2 * time.Second
	MinInterval     = 250 * time.Millisecond
)

// Config holds the scheduler settings.
type Config struct {
	Interval models.Duration `json:"interval"`
}

// EffectiveInterval applies the default and the lower bound.
func (c *Config) EffectiveInterval() time.Duration {
	if c == nil || c.Interval <= 0 {
		return DefaultInterval
	}

	interval := time.Duration(c.Interval)
	if interval < MinInterval {
		return MinInterval
	}

	return interval
}
