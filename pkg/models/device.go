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

package models

import (
	"strings"
	"time"
)

// StatusOnline is the only device status treated as online.
const StatusOnline = "online"

// DeviceClass identifies a family of devices sharing one backend surface.
type DeviceClass struct {
	Key           string `json:"key"`
	DefaultStatus string `json:"default_status,omitempty"`
}

// DeviceRecord is a normalized device as returned by a directory lookup.
type DeviceRecord struct {
	ID       string                 `json:"device_id"`
	Status   string                 `json:"status,omitempty"`
	LastSeen *time.Time             `json:"last_seen,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Online reports whether the record status is "online", ignoring case.
func (r *DeviceRecord) Online() bool {
	if r == nil {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(r.Status), StatusOnline)
}

// Clone returns a copy of the record whose Fields map can be mutated safely.
func (r *DeviceRecord) Clone() *DeviceRecord {
	if r == nil {
		return nil
	}

	clone := &DeviceRecord{
		ID:     r.ID,
		Status: r.Status,
	}

	if r.LastSeen != nil {
		ts := *r.LastSeen
		clone.LastSeen = &ts
	}

	if r.Fields != nil {
		clone.Fields = make(map[string]interface{}, len(r.Fields))
		for k, v := range r.Fields {
			clone.Fields[k] = v
		}
	}

	return clone
}

// FieldBinding points at one logical field of one device.
type FieldBinding struct {
	DeviceClass string `json:"device_class"`
	DeviceID    string `json:"device_id"`
	Field       string `json:"field"`
}

// Binding is what a widget is configured with: a field plus an optional formula.
type Binding struct {
	FieldBinding
	Expression string `json:"expression,omitempty"`
}

// IsZero reports whether no device or field has been selected.
func (b Binding) IsZero() bool {
	return strings.TrimSpace(b.DeviceClass) == "" ||
		strings.TrimSpace(b.DeviceID) == "" ||
		strings.TrimSpace(b.Field) == ""
}
