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

package binding

import (
	"time"

	"github.com/carverauto/tagbind/pkg/expr"
	"github.com/carverauto/tagbind/pkg/models"
)

// State is the lifecycle state of a session.
type State string

const (
	StateUnbound State = "unbound"
	StatePending State = "pending"
	StateLive    State = "live"
	StateStale   State = "stale"
)

// Reason explains a stale state.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoDataForTag   Reason = "no_data_for_tag"
	ReasonDeviceNotFound Reason = "device_not_found"
)

// Snapshot is an immutable view of a session, handed to subscribers after
// every applied change.
type Snapshot struct {
	ID              string               `json:"id"`
	Binding         models.Binding       `json:"binding"`
	State           State                `json:"state"`
	Reason          Reason               `json:"reason,omitempty"`
	LiveValue       interface{}          `json:"live_value"`
	OutputValue     expr.Value           `json:"output_value"`
	OnlineStatus    bool                 `json:"online"`
	LastKnownLive   interface{}          `json:"last_known_live,omitempty"`
	LastKnownOutput expr.Value           `json:"last_known_output"`
	Record          *models.DeviceRecord `json:"record,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

const nullDisplay = "-"

// FormatOutput renders the output value for display. Null shows as "-".
func FormatOutput(s Snapshot) string {
	if s.OutputValue.IsNull() {
		return nullDisplay
	}

	return s.OutputValue.String()
}
