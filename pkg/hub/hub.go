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

// Package hub serves binding snapshots to browsers: a WebSocket stream of
// updates, a small REST surface to inspect and rebind sessions, and a
// visibility signal derived from what connected clients report.
package hub

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/tagbind/pkg/binding"
	"github.com/carverauto/tagbind/pkg/logger"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// Options tunes the hub. Zero values use defaults.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Hub fans session snapshots out to WebSocket clients.
type Hub struct {
	logger   logger.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*binding.Session
	unsubs   []func()
	clients  map[*client]struct{}
	closed   bool
}

func New(log logger.Logger, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}

	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	h := &Hub{
		logger:   log,
		opts:     opts,
		sessions: make(map[string]*binding.Session),
		clients:  make(map[*client]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// Attach registers sessions and streams their snapshots to clients.
func (h *Hub) Attach(sessions ...*binding.Session) {
	for _, s := range sessions {
		h.mu.Lock()
		h.sessions[s.ID()] = s
		h.mu.Unlock()

		unsub := s.Subscribe(h.Broadcast)

		h.mu.Lock()
		h.unsubs = append(h.unsubs, unsub)
		h.mu.Unlock()
	}
}

// Session returns the attached session with the given id.
func (h *Hub) Session(id string) (*binding.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[id]

	return s, ok
}

// Views returns the current view of every session ordered by id.
func (h *Hub) Views() []View {
	h.mu.RLock()
	sessions := make([]*binding.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID() < sessions[j].ID() })

	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newView(s.Snapshot()))
	}

	return views
}

// Visible reports whether at least one connected client is showing the
// widgets.
func (h *Hub) Visible() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.isVisible() {
			return true
		}
	}

	return false
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Broadcast queues a snapshot for every client. Clients that cannot keep up
// are disconnected.
func (h *Hub) Broadcast(s binding.Snapshot) {
	msg := snapshotMessage(s)

	h.mu.RLock()
	var slow []*client

	for c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().
			Str("client_addr", c.addr).
			Msg("Dropping WebSocket client that is not keeping up")
		h.remove(c)
	}
}

// Close disconnects every client and detaches from all sessions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true

	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}

	h.clients = make(map[*client]struct{})
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket origin")

	return false
}
