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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceRecordOnline(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"online", true},
		{"ONLINE", true},
		{" Online ", true},
		{"offline", false},
		{"", false},
		{"online-ish", false},
	}

	for _, tt := range tests {
		r := &DeviceRecord{ID: "D1", Status: tt.status}
		assert.Equal(t, tt.want, r.Online(), tt.status)
	}

	var nilRecord *DeviceRecord
	assert.False(t, nilRecord.Online())
}

func TestDeviceRecordClone(t *testing.T) {
	seen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	orig := &DeviceRecord{
		ID:       "D1",
		Status:   "online",
		LastSeen: &seen,
		Fields:   map[string]interface{}{"ai1": 1.5},
	}

	clone := orig.Clone()
	clone.Fields["ai1"] = 9.0
	*clone.LastSeen = seen.Add(time.Hour)

	assert.Equal(t, 1.5, orig.Fields["ai1"])
	assert.Equal(t, seen, *orig.LastSeen)
	assert.Equal(t, "D1", clone.ID)

	var nilRecord *DeviceRecord
	assert.Nil(t, nilRecord.Clone())
}

func TestBindingIsZero(t *testing.T) {
	full := Binding{FieldBinding: FieldBinding{DeviceClass: "modelX", DeviceID: "D1", Field: "ai2"}}
	assert.False(t, full.IsZero())

	noField := full
	noField.Field = " "
	assert.True(t, noField.IsZero())

	assert.True(t, Binding{}.IsZero())
}

func TestBindingJSON(t *testing.T) {
	var b Binding

	require.NoError(t, json.Unmarshal(
		[]byte(`{"device_class":"modelX","device_id":"D1","field":"ai2","expression":"VALUE*2"}`), &b))

	assert.Equal(t, "modelX", b.DeviceClass)
	assert.Equal(t, "D1", b.DeviceID)
	assert.Equal(t, "ai2", b.Field)
	assert.Equal(t, "VALUE*2", b.Expression)
}

func TestDurationJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1500ms"`), &d))
	assert.Equal(t, 1500*time.Millisecond, time.Duration(d))

	require.NoError(t, json.Unmarshal([]byte(`2000000000`), &d))
	assert.Equal(t, 2*time.Second, time.Duration(d))

	require.ErrorIs(t, json.Unmarshal([]byte(`"soon"`), &d), errInvalidDuration)
	require.ErrorIs(t, json.Unmarshal([]byte(`true`), &d), errInvalidDuration)

	out, err := json.Marshal(Duration(3 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"3s"`, string(out))
}
