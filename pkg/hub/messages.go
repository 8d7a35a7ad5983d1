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
	"time"

	"github.com/carverauto/tagbind/pkg/binding"
)

const (
	msgSnapshot   = "snapshot"
	msgError      = "error"
	msgPing       = "ping"
	msgPong       = "pong"
	msgVisibility = "visibility"
)

// View is a snapshot together with its display text.
type View struct {
	binding.Snapshot
	Display string `json:"display"`
}

// StreamMessage is sent to WebSocket clients.
type StreamMessage struct {
	Type      string    `json:"type"`
	View      *View     `json:"view,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// clientMessage is received from WebSocket clients.
type clientMessage struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
}

func newView(s binding.Snapshot) View {
	return View{Snapshot: s, Display: binding.FormatOutput(s)}
}

func snapshotMessage(s binding.Snapshot) StreamMessage {
	v := newView(s)

	return StreamMessage{
		Type:      msgSnapshot,
		View:      &v,
		Timestamp: time.Now(),
	}
}
