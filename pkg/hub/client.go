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

package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	addr    string
	send    chan StreamMessage
	done    chan struct{}
	visible atomic.Bool
	once    sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		hub:  h,
		conn: conn,
		addr: conn.RemoteAddr().String(),
		send: make(chan StreamMessage, h.opts.SendBuffer),
		done: make(chan struct{}),
	}

	// a fresh page is on screen until it says otherwise
	c.visible.Store(true)

	return c
}

func (c *client) isVisible() bool {
	return c.visible.Load()
}

// enqueue reports false when the client buffer is full.
func (c *client) enqueue(msg StreamMessage) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)

		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}

// serveWS upgrades the request and streams snapshots until the client leaves.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	c := newClient(h, conn)
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	start := time.Now()

	h.logger.Info().
		Str("client_addr", c.addr).
		Msg("WebSocket connection established")

	defer func() {
		h.remove(c)
		h.logger.Info().
			Str("client_addr", c.addr).
			Dur("duration", time.Since(start)).
			Msg("WebSocket connection closed")
	}()

	for _, v := range h.Views() {
		c.enqueue(snapshotMessage(v.Snapshot))
	}

	go c.writePump()

	c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.hub.logger.Debug().Err(err).Str("client_addr", c.addr).Msg("WebSocket write failed")
				c.hub.remove(c)

				return
			}
		case <-ticker.C:
			if err := c.write(StreamMessage{Type: msgPing, Timestamp: time.Now()}); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

func (c *client) write(msg StreamMessage) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout)); err != nil {
		return err
	}

	return c.conn.WriteJSON(msg)
}

func (c *client) readPump() {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.ReadTimeout)); err != nil {
			c.hub.logger.Warn().Err(err).Str("client_addr", c.addr).Msg("Failed to set WebSocket read deadline")
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(errorMessage("invalid message"))
			continue
		}

		switch msg.Type {
		case msgVisibility:
			if msg.Visible == nil {
				c.enqueue(errorMessage("visibility message without visible flag"))
				continue
			}

			c.visible.Store(*msg.Visible)
			c.hub.logger.Debug().
				Str("client_addr", c.addr).
				Bool("visible", *msg.Visible).
				Msg("Client visibility changed")
		case msgPing:
			c.enqueue(StreamMessage{Type: msgPong, Timestamp: time.Now()})
		case msgPong:
		default:
			c.enqueue(errorMessage("unknown message type " + msg.Type))
		}
	}
}

func (c *client) logReadError(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		c.hub.logger.Warn().Err(err).Str("client_addr", c.addr).Msg("Unexpected WebSocket close")
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.hub.logger.Debug().
			Int("close_code", closeErr.Code).
			Str("client_addr", c.addr).
			Msg("WebSocket closed by client")

		return
	}

	c.hub.logger.Debug().Err(err).Str("client_addr", c.addr).Msg("WebSocket read error")
}

func errorMessage(text string) StreamMessage {
	return StreamMessage{Type: msgError, Error: text, Timestamp: time.Now()}
}
