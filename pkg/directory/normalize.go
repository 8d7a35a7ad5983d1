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

package directory

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/tagbind/pkg/models"
)

var (
	wrapperKeys  = []string{"data", "devices", "items", "results", "records", "rows", "list"}
	idKeys       = []string{"deviceId", "device_id", "deviceID", "DeviceId", "DEVICE_ID", "id", "ID", "imei", "IMEI"}
	statusKeys   = []string{"status", "Status", "STATUS", "state"}
	lastSeenKeys = []string{"lastSeen", "last_seen", "lastSeenAt", "last_seen_at", "updatedAt", "updated_at", "timestamp"}
	nestedKeys   = []string{"telemetry", "values", "io", "latest"}
)

// unix timestamps above this are taken to be milliseconds
const millisThreshold = 1e12

// NormalizeOptions tunes Normalize for a device class.
type NormalizeOptions struct {
	// DefaultStatus replaces a missing status. Empty means unknown.
	DefaultStatus string
}

// Normalize turns a raw listing body into device records. The body may be a
// bare array or an object holding the array under a conventional key.
// Elements without an identifier are dropped; a malformed body yields nil.
func Normalize(body []byte, opts NormalizeOptions) []models.DeviceRecord {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil
	}

	items := unwrap(doc)
	if len(items) == 0 {
		return nil
	}

	records := make([]models.DeviceRecord, 0, len(items))

	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		if record, ok := normalizeRecord(obj, opts); ok {
			records = append(records, record)
		}
	}

	return records
}

func unwrap(doc interface{}) []interface{} {
	switch v := doc.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		for _, key := range wrapperKeys {
			if arr, ok := v[key].([]interface{}); ok {
				return arr
			}
		}
	}

	return nil
}

func normalizeRecord(obj map[string]interface{}, opts NormalizeOptions) (models.DeviceRecord, bool) {
	id := firstString(obj, idKeys)
	if id == "" {
		return models.DeviceRecord{}, false
	}

	status := strings.ToLower(firstString(obj, statusKeys))
	if status == "" {
		if online, ok := obj["online"].(bool); ok {
			status = "offline"
			if online {
				status = models.StatusOnline
			}
		}
	}

	if status == "" {
		status = strings.ToLower(strings.TrimSpace(opts.DefaultStatus))
	}

	fields := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		fields[k] = v
	}

	for _, key := range nestedKeys {
		nested, ok := obj[key].(map[string]interface{})
		if !ok {
			continue
		}

		for k, v := range nested {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}

	return models.DeviceRecord{
		ID:       id,
		Status:   status,
		LastSeen: firstTime(obj, lastSeenKeys),
		Fields:   fields,
	}, true
}

// firstString returns the first non-blank value among keys, rendered as a trimmed string.
func firstString(obj map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if s := scalarString(obj[key]); s != "" {
			return s
		}
	}

	return ""
}

func scalarString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

func firstTime(obj map[string]interface{}, keys []string) *time.Time {
	for _, key := range keys {
		if ts, ok := parseTime(obj[key]); ok {
			return &ts
		}
	}

	return nil
}

func parseTime(v interface{}) (time.Time, bool) {
	switch value := v.(type) {
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return time.Time{}, false
		}

		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), true
		}

		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(f)
		}
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return fromUnix(f)
		}
	case float64:
		return fromUnix(value)
	}

	return time.Time{}, false
}

func fromUnix(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}

	if f >= millisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}

	return time.Unix(int64(f), 0).UTC(), true
}
