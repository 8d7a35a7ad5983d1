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

package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/metrics"
	"github.com/carverauto/tagbind/pkg/models"
	"github.com/carverauto/tagbind/pkg/poller"
	"github.com/carverauto/tagbind/pkg/publish"
)

var (
	errListenAddrRequired  = errors.New("listen_addr is required")
	errNoDeviceClasses     = errors.New("at least one device class is required")
	errClassKeyRequired    = errors.New("device class key is required")
	errDuplicateClass      = errors.New("duplicate device class")
	errNoPaths             = errors.New("device class needs at least one path")
	errBaseURLRequired     = errors.New("api.base_url is required")
	errConflictingTokens   = errors.New("api.token and api.token_file are mutually exclusive")
	errBindingIDRequired   = errors.New("binding id is required")
	errDuplicateBinding    = errors.New("duplicate binding id")
	errUnknownBindingClass = errors.New("binding refers to an unknown device class")
)

// Config is the daemon configuration.
type Config struct {
	ListenAddr      string              `json:"listen_addr"`
	Poll            poller.Config       `json:"poll"`
	PauseWhenHidden bool                `json:"pause_when_hidden"`
	AllowedOrigins  []string            `json:"allowed_origins,omitempty"`
	API             APIConfig           `json:"api"`
	Breaker         BreakerConfig       `json:"breaker"`
	DeviceClasses   []DeviceClassConfig `json:"device_classes"`
	Bindings        []BindingConfig     `json:"bindings,omitempty"`
	NATS            *publish.Config     `json:"nats,omitempty"`
	Metrics         *metrics.OTelConfig `json:"metrics,omitempty"`
	Logging         *logger.Config      `json:"logging,omitempty"`
	ShutdownTimeout models.Duration     `json:"shutdown_timeout,omitempty"`
}

// APIConfig describes the device backend shared by every class.
type APIConfig struct {
	BaseURL            string          `json:"base_url"`
	Token              string          `json:"token,omitempty"`
	TokenFile          string          `json:"token_file,omitempty"`
	TokenTTL           models.Duration `json:"token_ttl,omitempty"`
	Timeout            models.Duration `json:"timeout,omitempty"`
	InsecureSkipVerify bool            `json:"insecure_skip_verify,omitempty"`
	MaxBodyBytes       int64           `json:"max_body_bytes,omitempty"`
}

// BreakerConfig configures the circuit breaker placed around each path.
type BreakerConfig struct {
	MaxFailures uint32          `json:"max_failures"`
	OpenTimeout models.Duration `json:"open_timeout,omitempty"`
	Interval    models.Duration `json:"interval,omitempty"`
}

// DeviceClassConfig lists the equivalent listing paths of a class, in
// priority order.
type DeviceClassConfig struct {
	Key           string   `json:"key"`
	DefaultStatus string   `json:"default_status,omitempty"`
	BaseURL       string   `json:"base_url,omitempty"`
	Paths         []string `json:"paths"`
}

// BindingConfig is a named binding created at startup.
type BindingConfig struct {
	ID string `json:"id"`
	models.Binding
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errListenAddrRequired
	}

	if c.API.Token != "" && c.API.TokenFile != "" {
		return errConflictingTokens
	}

	if len(c.DeviceClasses) == 0 {
		return errNoDeviceClasses
	}

	classes := make(map[string]struct{}, len(c.DeviceClasses))

	for i := range c.DeviceClasses {
		dc := &c.DeviceClasses[i]

		key := strings.ToLower(strings.TrimSpace(dc.Key))
		if key == "" {
			return fmt.Errorf("%w (device_classes[%d])", errClassKeyRequired, i)
		}

		if _, dup := classes[key]; dup {
			return fmt.Errorf("%w: %s", errDuplicateClass, dc.Key)
		}

		classes[key] = struct{}{}

		if len(dc.Paths) == 0 {
			return fmt.Errorf("%w: %s", errNoPaths, dc.Key)
		}

		if dc.BaseURL == "" && c.API.BaseURL == "" {
			return fmt.Errorf("%w for device class %s", errBaseURLRequired, dc.Key)
		}
	}

	ids := make(map[string]struct{}, len(c.Bindings))

	for i := range c.Bindings {
		b := &c.Bindings[i]

		if strings.TrimSpace(b.ID) == "" {
			return fmt.Errorf("%w (bindings[%d])", errBindingIDRequired, i)
		}

		if _, dup := ids[b.ID]; dup {
			return fmt.Errorf("%w: %s", errDuplicateBinding, b.ID)
		}

		ids[b.ID] = struct{}{}

		class := strings.ToLower(strings.TrimSpace(b.DeviceClass))
		if class == "" {
			continue
		}

		if _, ok := classes[class]; !ok {
			return fmt.Errorf("%w: %s uses %s", errUnknownBindingClass, b.ID, b.DeviceClass)
		}
	}

	return nil
}
