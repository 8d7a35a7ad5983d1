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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		live interface{}
		src  string
		want Value
	}{
		{name: "empty expression is identity", live: 12, src: "", want: Number(12)},
		{name: "blank expression is identity", live: "12.5", src: "   ", want: Number(12.5)},
		{name: "multiply", live: 12, src: "VALUE*2", want: Number(24)},
		{name: "case insensitive variable", live: 12, src: "value * 2", want: Number(24)},
		{name: "precedence", live: 2, src: "1 + VALUE * 3", want: Number(7)},
		{name: "parentheses", live: 2, src: "(1 + VALUE) * 3", want: Number(9)},
		{name: "unary minus", live: 4, src: "-VALUE + 1", want: Number(-3)},
		{name: "double unary", live: 4, src: "--VALUE", want: Number(4)},
		{name: "modulo", live: 10, src: "VALUE % 3", want: Number(1)},
		{name: "decimal scale", live: 425, src: "VALUE / 10", want: Number(42.5)},
		{name: "leading dot literal", live: 10, src: "VALUE * .5", want: Number(5)},
		{name: "exponent literal", live: 2, src: "VALUE * 1e3", want: Number(2000)},
		{name: "constant", live: 1, src: "40 + 2", want: Number(42)},
		{name: "string concatenation with plus", live: 7, src: `VALUE + " bar"`, want: String("7 bar")},
		{name: "string coerced by minus", live: 7, src: `"10" - VALUE`, want: Number(3)},
		{name: "division by zero is null", live: 7, src: "VALUE / 0", want: Null()},
		{name: "zero over zero is null", live: 0, src: "VALUE / 0", want: Null()},
		{name: "modulo by zero is null", live: 3, src: "VALUE % 0", want: Null()},
		{name: "non numeric string arithmetic is null", live: 3, src: `"abc" * VALUE`, want: Null()},
		{name: "nil live value short-circuits", live: nil, src: "VALUE*2", want: Null()},
		{name: "blank live value short-circuits", live: " ", src: "1+1", want: Null()},
		{name: "non numeric live value short-circuits", live: "n/a", src: "", want: Null()},
		{name: "NaN live value short-circuits", live: math.NaN(), src: "", want: Null()},
		{name: "infinite live value short-circuits", live: math.Inf(1), src: "VALUE", want: Null()},
		{name: "syntax error", live: 3, src: "VALUE *", want: Null()},
		{name: "unknown identifier", live: 3, src: "alert(VALUE)", want: Null()},
		{name: "unbalanced parenthesis", live: 3, src: "(VALUE + 1", want: Null()},
		{name: "trailing token", live: 3, src: "VALUE 3", want: Null()},
		{name: "unexpected character", live: 3, src: "VALUE ^ 2", want: Null()},
		{name: "unterminated string", live: 3, src: `"abc`, want: Null()},
		{name: "json number input", live: json.Number("4.5"), src: "VALUE*2", want: Number(9)},
		{name: "bool input", live: true, src: "VALUE + 1", want: Number(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.live, tt.src)
			assert.True(t, tt.want.Equal(got), "want %v (%s), got %v (%s)", tt.want, tt.want.Kind(), got, got.Kind())
		})
	}
}

func TestEvaluate_Concat(t *testing.T) {
	tests := []struct {
		name string
		live interface{}
		src  string
		want string
	}{
		{name: "literal and value", live: 5, src: `CONCAT("Temp=", VALUE, " C")`, want: "Temp=5 C"},
		{name: "case insensitive call and variable", live: 5, src: `concat("T=", value)`, want: "T=5"},
		{name: "surrounding whitespace", live: 5, src: `  CONCAT( "a" ,VALUE )  `, want: "a5"},
		{name: "fractional value", live: 42.5, src: `CONCAT("Level=", VALUE, "%")`, want: "Level=42.5%"},
		{name: "sub expression", live: 425, src: `CONCAT(VALUE / 10, " bar")`, want: "42.5 bar"},
		{name: "comma inside literal", live: 1, src: `CONCAT("a,b", VALUE)`, want: "a,b1"},
		{name: "escaped quote stays literal", live: 1, src: `CONCAT("say \"hi, there\"", VALUE)`, want: `say \"hi, there\"1`},
		{name: "comma inside parentheses", live: 2, src: `CONCAT((VALUE + 1), "x")`, want: "3x"},
		{name: "broken argument renders empty", live: 2, src: `CONCAT("a", VALUE *, "b")`, want: "ab"},
		{name: "unknown identifier argument renders empty", live: 2, src: `CONCAT("a", foo, "b")`, want: "ab"},
		{name: "non finite argument renders empty", live: 2, src: `CONCAT("a", VALUE / 0, "b")`, want: "ab"},
		{name: "empty call", live: 2, src: `CONCAT()`, want: ""},
		{name: "nested concat", live: 2, src: `CONCAT("<", CONCAT(VALUE, "|", VALUE * 2), ">")`, want: "<2|4>"},
		{name: "large value uses exponent", live: 1e21, src: `CONCAT(VALUE)`, want: "1e+21"},
		{name: "small value uses exponent", live: 1e-7, src: `CONCAT(VALUE)`, want: "1e-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.live, tt.src)
			s, ok := got.Str()
			require.True(t, ok, "expected string result, got %s", got.Kind())
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestEvaluate_ConcatNeedsFiniteInput(t *testing.T) {
	assert.True(t, Evaluate(nil, `CONCAT("Level=", VALUE)`).IsNull())
	assert.True(t, Evaluate("--", `CONCAT("Level=", VALUE)`).IsNull())
}

func TestEvaluate_ConcatNotSpanningWholeFormula(t *testing.T) {
	// Two calls joined by + parse as arithmetic, not as one CONCAT form.
	got := Evaluate(3, `CONCAT("a") + CONCAT(VALUE)`)
	s, ok := got.Str()
	require.True(t, ok)
	assert.Equal(t, "a3", s)
}

func TestCompile_ReportsErrors(t *testing.T) {
	p := Compile("VALUE +")
	require.Error(t, p.Err())
	assert.ErrorIs(t, p.Err(), ErrSyntax)
	assert.True(t, p.Eval(1).IsNull())

	p = Compile("VALUE + x")
	assert.ErrorIs(t, p.Err(), ErrUnknownIdentifier)

	p = Compile(`CONCAT("a", VALUE +)`)
	assert.ErrorIs(t, p.Err(), ErrSyntax)

	p = Compile(`CONCAT("a", VALUE)`)
	assert.NoError(t, p.Err())
	assert.Equal(t, `CONCAT("a", VALUE)`, p.Source())
}

func TestCompile_DepthLimit(t *testing.T) {
	src := strings.Repeat("(", maxDepth+1) + "VALUE" + strings.Repeat(")", maxDepth+1)

	p := Compile(src)
	assert.ErrorIs(t, p.Err(), ErrTooDeep)
	assert.True(t, p.Eval(1).IsNull())

	p = Compile(strings.Repeat("-", maxDepth+1) + "VALUE")
	assert.ErrorIs(t, p.Err(), ErrTooDeep)
}

func TestProgram_Reusable(t *testing.T) {
	p := Compile("VALUE * 10")

	for i, want := range []float64{0, 10, 20} {
		got, ok := p.Eval(i).Float()
		require.True(t, ok)
		assert.InDelta(t, want, got, 1e-9)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		inner string
		want  []string
	}{
		{inner: ``, want: nil},
		{inner: `"a", VALUE`, want: []string{`"a"`, "VALUE"}},
		{inner: `"a\",b", c`, want: []string{`"a\",b"`, "c"}},
		{inner: `(1,2), 3`, want: []string{"(1,2)", "3"}},
		{inner: `a,`, want: []string{"a", ""}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitArgs(tt.inner), tt.inner)
	}
}

func TestIsQuoted(t *testing.T) {
	assert.True(t, isQuoted(`"abc"`))
	assert.True(t, isQuoted(`""`))
	assert.True(t, isQuoted(`"a\"b"`))
	assert.False(t, isQuoted(`"a" + "b"`))
	assert.False(t, isQuoted(`"a\"`))
	assert.False(t, isQuoted(`"`))
	assert.False(t, isQuoted(`abc`))
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{in: 3, want: 3, ok: true},
		{in: int64(-3), want: -3, ok: true},
		{in: uint8(200), want: 200, ok: true},
		{in: float32(1.5), want: 1.5, ok: true},
		{in: " 42.5 ", want: 42.5, ok: true},
		{in: "1e3", want: 1000, ok: true},
		{in: json.Number("7"), want: 7, ok: true},
		{in: false, want: 0, ok: true},
		{in: Number(8), want: 8, ok: true},
		{in: String("8"), ok: false},
		{in: "", ok: false},
		{in: "abc", ok: false},
		{in: "Infinity", ok: false},
		{in: "NaN", ok: false},
		{in: nil, ok: false},
		{in: []int{1}, ok: false},
		{in: json.Number("x"), ok: false},
	}

	for _, tt := range tests {
		got, ok := ToNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)

		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "%#v", tt.in)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		0:          "0",
		5:          "5",
		-5:         "-5",
		42.5:       "42.5",
		0.1:        "0.1",
		1234567.25: "1234567.25",
		1e21:       "1e+21",
		1.5e-7:     "1.5e-7",
		-2.5e-8:    "-2.5e-8",
	}

	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in))
	}

	assert.Equal(t, "Infinity", FormatNumber(math.Inf(1)))
	assert.Equal(t, "-Infinity", FormatNumber(math.Inf(-1)))
	assert.Equal(t, "NaN", FormatNumber(math.NaN()))
}

func TestValue_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]Value{"n": Number(1.5), "s": String("x"), "z": Null()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1.5,"s":"x","z":null}`, string(b))
}
