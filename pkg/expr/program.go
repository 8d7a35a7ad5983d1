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

// Package expr evaluates the small formula language users attach to telemetry
// bindings. A formula references one variable, VALUE, and is either arithmetic
// (VALUE*0.1 + 4) or a CONCAT call ("CONCAT(\"Level=\", VALUE, \"%\")").
//
// Evaluation never fails loudly: a missing input or a broken formula yields
// Null, and a broken CONCAT argument renders as the empty string.
package expr

import (
	"strings"
)

type mode uint8

const (
	modeIdentity mode = iota
	modeArithmetic
	modeConcat
)

type argKind uint8

const (
	argValue argKind = iota
	argLiteral
	argExpr
	argBroken
)

type concatArg struct {
	root    node
	err     error
	literal string
	kind    argKind
}

// Program is a compiled formula. The zero Program is the identity transform.
type Program struct {
	root   node
	err    error
	source string
	args   []concatArg
	mode   mode
}

// Compile prepares src for repeated evaluation. It never returns nil; parse
// problems are kept on the Program and reported by Err.
func Compile(src string) *Program {
	p := &Program{source: src}

	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return p
	}

	if inner, ok := concatBody(trimmed); ok {
		p.mode = modeConcat
		p.args = compileArgs(inner)

		return p
	}

	p.mode = modeArithmetic
	p.root, p.err = parse(trimmed)

	return p
}

// Evaluate compiles and evaluates src against live in one step.
func Evaluate(live interface{}, src string) Value {
	return Compile(src).Eval(live)
}

// Source returns the formula as written.
func (p *Program) Source() string { return p.source }

// Err returns the parse error of an arithmetic formula, or the first broken
// CONCAT argument.
func (p *Program) Err() error {
	if p.err != nil {
		return p.err
	}

	for _, arg := range p.args {
		if arg.err != nil {
			return arg.err
		}
	}

	return nil
}

// Eval applies the formula to live. A live value that does not coerce to a
// finite number yields Null without running the formula.
func (p *Program) Eval(live interface{}) Value {
	x, ok := ToNumber(live)
	if !ok {
		return Null()
	}

	switch p.mode {
	case modeConcat:
		return p.evalConcat(x)
	case modeArithmetic:
		if p.root == nil {
			return Null()
		}

		return p.root.eval(x).value()
	default:
		return Number(x)
	}
}

func (p *Program) evalConcat(x float64) Value {
	var b strings.Builder

	for _, arg := range p.args {
		switch arg.kind {
		case argValue:
			b.WriteString(FormatNumber(x))
		case argLiteral:
			b.WriteString(arg.literal)
		case argExpr:
			b.WriteString(arg.root.eval(x).concatText())
		case argBroken:
		}
	}

	return String(b.String())
}

func compileArgs(inner string) []concatArg {
	raw := splitArgs(inner)
	args := make([]concatArg, 0, len(raw))

	for _, a := range raw {
		switch {
		case strings.EqualFold(a, identValue):
			args = append(args, concatArg{kind: argValue})
		case isQuoted(a):
			args = append(args, concatArg{kind: argLiteral, literal: a[1 : len(a)-1]})
		default:
			root, err := parse(a)
			if err != nil {
				args = append(args, concatArg{kind: argBroken, err: err})
				continue
			}

			args = append(args, concatArg{kind: argExpr, root: root})
		}
	}

	return args
}

// concatBody returns the text between CONCAT( and its matching ) when that
// call spans the whole formula.
func concatBody(s string) (string, bool) {
	const open = identConcat + "("

	if len(s) < len(open)+1 || !strings.EqualFold(s[:len(open)], open) || s[len(s)-1] != ')' {
		return "", false
	}

	if closing(s, len(open)-1) != len(s)-1 {
		return "", false
	}

	return s[len(open) : len(s)-1], true
}

// closing returns the index of the parenthesis matching the one at s[open],
// skipping quoted spans, or -1.
func closing(s string, open int) int {
	depth := 0
	inQuote := false

	for i := open; i < len(s); i++ {
		c := s[i]

		switch {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

// splitArgs splits CONCAT arguments on top-level commas in a single pass.
// Commas inside double quotes (where \" does not close the quote) or inside
// parentheses do not separate.
func splitArgs(inner string) []string {
	if strings.TrimSpace(inner) == "" {
		return nil
	}

	var (
		args    []string
		start   int
		depth   int
		inQuote bool
	)

	for i := 0; i < len(inner); i++ {
		c := inner[i]

		switch {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(inner[start:i]))
			start = i + 1
		}
	}

	return append(args, strings.TrimSpace(inner[start:]))
}

// isQuoted reports whether a is one double-quoted literal from end to end.
func isQuoted(a string) bool {
	if len(a) < 2 || a[0] != '"' || a[len(a)-1] != '"' {
		return false
	}

	for i := 1; i < len(a); i++ {
		switch a[i] {
		case '\\':
			i++
		case '"':
			return i == len(a)-1
		}
	}

	return false
}
