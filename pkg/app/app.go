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

// Package app assembles the tagbind daemon from its configuration.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/tagbind/pkg/binding"
	"github.com/carverauto/tagbind/pkg/directory"
	"github.com/carverauto/tagbind/pkg/hub"
	"github.com/carverauto/tagbind/pkg/lifecycle"
	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
	"github.com/carverauto/tagbind/pkg/poller"
	"github.com/carverauto/tagbind/pkg/publish"
)

const (
	defaultAPITimeout = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// App is a fully wired daemon.
type App struct {
	config   *Config
	logger   logger.Logger
	registry *directory.Registry
	cache    *directory.TickCache
	sessions []*binding.Session
	hub      *hub.Hub
	poller   *poller.Poller
	server   *httpService
	pub      *publish.SnapshotPublisher
	nc       *nats.Conn
}

// New builds the daemon. It connects to NATS when configured.
func New(ctx context.Context, cfg *Config, log logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:   cfg,
		logger:   log,
		registry: registry,
	}

	a.cache = directory.NewTickCache(directory.NewLookup(registry, log))
	a.hub = hub.New(log, hub.Options{AllowedOrigins: cfg.AllowedOrigins})

	targets := make([]poller.Target, 0, len(cfg.Bindings))

	for i := range cfg.Bindings {
		bc := &cfg.Bindings[i]

		s := binding.NewSession(bc.ID, a.cache, log)
		if !bc.Binding.IsZero() {
			s.Bind(bc.Binding)
		}

		a.sessions = append(a.sessions, s)
		targets = append(targets, s)
	}

	a.hub.Attach(a.sessions...)

	if cfg.NATS != nil && cfg.NATS.URL != "" {
		pub, nc, err := publish.Connect(ctx, cfg.NATS, log)
		if err != nil {
			return nil, err
		}

		a.pub = pub
		a.nc = nc

		for _, s := range a.sessions {
			s.Subscribe(pub.Handle)
		}
	}

	var visibility poller.Visibility
	if cfg.PauseWhenHidden {
		visibility = a.hub
	}

	a.poller = poller.New(&cfg.Poll, nil, visibility, log, targets...)
	a.poller.BeforeTick = a.cache.Reset

	a.server = &httpService{
		hub: a.hub,
		log: log,
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           a.hub.Router(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}

	log.Info().
		Int("device_classes", len(registry.Keys())).
		Int("bindings", len(a.sessions)).
		Dur("interval", a.poller.Interval()).
		Bool("pause_when_hidden", cfg.PauseWhenHidden).
		Bool("nats", a.pub != nil).
		Msg("tagbind configured")

	return a, nil
}

// Run serves until ctx is cancelled or a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	services := []lifecycle.Service{&sessionGroup{sessions: a.sessions}, a.server}
	if a.pub != nil {
		services = append(services, a.pub)
	}

	services = append(services, a.poller)

	err := lifecycle.Run(ctx, a.logger, &lifecycle.RunOptions{
		ShutdownTimeout: time.Duration(a.config.ShutdownTimeout),
	}, services...)

	if a.nc != nil {
		if flushErr := a.nc.Flush(); flushErr != nil {
			a.logger.Warn().Err(flushErr).Msg("Failed to flush NATS connection")
		}

		a.nc.Close()
	}

	return err
}

// Handler returns the HTTP handler of the daemon.
func (a *App) Handler() http.Handler {
	return a.server.server.Handler
}

// Sessions returns the configured sessions in configuration order.
func (a *App) Sessions() []*binding.Session {
	return append([]*binding.Session(nil), a.sessions...)
}

func buildRegistry(cfg *Config) (*directory.Registry, error) {
	opts := directory.HTTPOptions{
		Client:       newHTTPClient(&cfg.API),
		Tokens:       newTokenSource(&cfg.API),
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		Breaker: directory.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: time.Duration(cfg.Breaker.OpenTimeout),
			Interval:    time.Duration(cfg.Breaker.Interval),
		},
	}

	registry := directory.NewRegistry()

	for i := range cfg.DeviceClasses {
		dc := &cfg.DeviceClasses[i]

		base := dc.BaseURL
		if base == "" {
			base = cfg.API.BaseURL
		}

		strategies := make([]directory.Strategy, 0, len(dc.Paths))

		for j, path := range dc.Paths {
			s, err := directory.NewHTTPStrategy(dc.Key+"#"+strconv.Itoa(j), base, path, opts)
			if err != nil {
				return nil, fmt.Errorf("device class %s: %w", dc.Key, err)
			}

			strategies = append(strategies, s)
		}

		registry.Register(models.DeviceClass{Key: dc.Key, DefaultStatus: dc.DefaultStatus}, strategies...)
	}

	return registry, nil
}

func newTokenSource(api *APIConfig) directory.TokenSource {
	switch {
	case api.TokenFile != "":
		return directory.NewFileTokenSource(api.TokenFile, time.Duration(api.TokenTTL))
	case api.Token != "":
		return directory.StaticToken(api.Token)
	default:
		return nil
	}
}

func newHTTPClient(api *APIConfig) *http.Client {
	timeout := time.Duration(api.Timeout)
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if api.InsecureSkipVerify {
		//nolint:gosec // opt-in for lab backends with self-signed certificates
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

// httpService runs the hub HTTP server as a lifecycle.Service.
type httpService struct {
	hub    *hub.Hub
	log    logger.Logger
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func (h *httpService) Start(context.Context) error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (h *httpService) Stop(ctx context.Context) error {
	h.hub.Close()

	return h.server.Shutdown(ctx)
}

// Addr returns the bound address once the server is listening.
func (h *httpService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return ""
	}

	return h.listener.Addr().String()
}

// sessionGroup closes every session on shutdown.
type sessionGroup struct {
	sessions []*binding.Session
	done     chan struct{}
	once     sync.Once
}

func (g *sessionGroup) Start(ctx context.Context) error {
	g.init()

	select {
	case <-ctx.Done():
	case <-g.done:
	}

	return nil
}

func (g *sessionGroup) Stop(context.Context) error {
	g.init()

	for _, s := range g.sessions {
		s.Close()
	}

	select {
	case <-g.done:
	default:
		close(g.done)
	}

	return nil
}

func (g *sessionGroup) init() {
	g.once.Do(func() { g.done = make(chan struct{}) })
}
