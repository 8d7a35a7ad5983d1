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

package expr

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind is the type of an evaluation result.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is the result of evaluating a formula: a finite number, a string, or null.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Number returns a numeric Value. Non-finite inputs yield Null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}

	return Value{kind: KindNumber, num: f}
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the number held by v.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Interface returns nil, a float64 or a string.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	default:
		return nil
	}
}

// String formats v for display. Null formats as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.num)
	case KindString:
		return v.str
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.str == o.str
}

// FormatNumber prints f the way a browser dashboard does: shortest round-trip
// digits, no trailing ".0", exponent form only for very large or small magnitudes.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// 1e-07 -> 1e-7
		if i := strings.LastIndexAny(s, "+-"); i > 0 && s[i-1] == 'e' {
			exp := strings.TrimLeft(s[i+1:], "0")
			if exp == "" {
				exp = "0"
			}

			s = s[:i+1] + exp
		}

		return s
	}

	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToNumber coerces a raw telemetry value to a finite float64. Nil, blank or
// non-numeric strings and non-finite numbers do not coerce.
func ToNumber(v interface{}) (float64, bool) {
	var f float64

	switch value := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int8:
		f = float64(value)
	case int16:
		f = float64(value)
	case int32:
		f = float64(value)
	case int64:
		f = float64(value)
	case uint:
		f = float64(value)
	case uint8:
		f = float64(value)
	case uint16:
		f = float64(value)
	case uint32:
		f = float64(value)
	case uint64:
		f = float64(value)
	case bool:
		if value {
			f = 1
		}
	case json.Number:
		parsed, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return 0, false
		}

		f = parsed
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return 0, false
		}

		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}

		f = parsed
	case Value:
		num, ok := value.Float()
		if !ok {
			return 0, false
		}

		f = num
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}
