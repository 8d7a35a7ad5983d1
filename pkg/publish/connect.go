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

package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/tagbind/pkg/logger"
)

var errNATSURLRequired = errors.New("nats url is required")

// Config describes the NATS connection used for snapshot events.
type Config struct {
	URL           string `json:"url"`
	Stream        string `json:"stream"`
	SubjectPrefix string `json:"subject_prefix"`
	Source        string `json:"source"`
	CredsFile     string `json:"creds_file,omitempty"`
	CAFile        string `json:"ca_file,omitempty"`
	CertFile      string `json:"cert_file,omitempty"`
	KeyFile       string `json:"key_file,omitempty"`
}

const (
	defaultStream = "TAGBIND_SNAPSHOTS"
	defaultSource = "tagbind"
	maxStreamAge  = 24 * time.Hour
)

func (c *Config) withDefaults() Config {
	out := *c

	if out.Stream == "" {
		out.Stream = defaultStream
	}

	if out.SubjectPrefix == "" {
		out.SubjectPrefix = DefaultSubjectPrefix
	}

	if out.Source == "" {
		out.Source = defaultSource
	}

	return out
}

// Connect dials NATS, makes sure the snapshot stream exists and returns a
// publisher bound to it. The caller owns the returned connection.
func Connect(ctx context.Context, cfg *Config, log logger.Logger) (*SnapshotPublisher, *nats.Conn, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil, errNATSURLRequired
	}

	c := cfg.withDefaults()

	nc, err := nats.Connect(c.URL, connectOptions(&c, log)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, c.Stream); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     c.Stream,
			Subjects: []string{c.SubjectPrefix + ".>"},
			MaxAge:   maxStreamAge,
		})
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", c.Stream, err)
		}
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("stream", c.Stream).
		Str("subject_prefix", c.SubjectPrefix).
		Msg("Snapshot publisher connected to NATS")

	return NewSnapshotPublisher(js, c.Source, c.SubjectPrefix, log), nc, nil
}

func connectOptions(c *Config, log logger.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Source),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if c.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(c.CredsFile))
	}

	if c.CAFile != "" {
		opts = append(opts, nats.RootCAs(c.CAFile))
	}

	if c.CertFile != "" && c.KeyFile != "" {
		opts = append(opts, nats.ClientCert(c.CertFile, c.KeyFile))
	}

	return opts
}
