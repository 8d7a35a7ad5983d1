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

// Package fields resolves logical telemetry channel names (ai3, di5, do2)
// against the spellings different device families and firmware use.
package fields

import (
	"strings"

	"github.com/carverauto/tagbind/pkg/models"
)

const (
	prefixAnalogIn   = "ai"
	prefixDigitalIn  = "di"
	prefixDigitalOut = "do"
)

// Aliases returns the physical key spellings tried for a logical field, in order.
// The first entries are always the key as given and its upper-cased form.
func Aliases(logical string) []string {
	logical = strings.TrimSpace(logical)
	if logical == "" {
		return nil
	}

	out := make([]string, 0, 12)
	seen := make(map[string]struct{}, 12)

	add := func(keys ...string) {
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}

			seen[k] = struct{}{}
			out = append(out, k)
		}
	}

	add(logical, strings.ToUpper(logical))

	prefix, n, ok := splitChannel(logical)
	if !ok {
		return out
	}

	switch prefix {
	case prefixAnalogIn:
		add("a"+n, "A"+n,
			"analog"+n, "ANALOG"+n,
			"ai_"+n, "AI_"+n,
			"ai-"+n, "AI-"+n)
	case prefixDigitalIn:
		add("in"+n, "IN"+n)
	case prefixDigitalOut:
		add("out"+n, "OUT"+n)
	}

	return out
}

// Read returns the raw value stored under the first alias of logical that holds
// a usable value. Missing, nil and blank-string values are skipped.
func Read(record *models.DeviceRecord, logical string) (interface{}, bool) {
	if record == nil || len(record.Fields) == 0 {
		return nil, false
	}

	return Lookup(record.Fields, logical)
}

// Lookup is Read over a bare field map.
func Lookup(values map[string]interface{}, logical string) (interface{}, bool) {
	for _, key := range Aliases(logical) {
		v, ok := values[key]
		if !ok || !present(v) {
			continue
		}

		return v, true
	}

	return nil, false
}

func present(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(value) != ""
	default:
		return true
	}
}

// splitChannel splits "AI3" into ("ai", "3"). Only ai/di/do with an all-digit
// suffix qualify.
func splitChannel(logical string) (prefix, number string, ok bool) {
	if len(logical) < 3 {
		return "", "", false
	}

	prefix = strings.ToLower(logical[:2])
	number = logical[2:]

	switch prefix {
	case prefixAnalogIn, prefixDigitalIn, prefixDigitalOut:
	default:
		return "", "", false
	}

	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return "", "", false
		}
	}

	return prefix, number, true
}
