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
	"math"
	"strconv"
	"strings"
)

// node is an evaluable expression tree node. x is the bound VALUE.
type node interface {
	eval(x float64) operand
}

// operand is an intermediate result. Unlike Value it may hold NaN or ±Inf.
type operand struct {
	str   string
	num   float64
	isStr bool
}

func num(f float64) operand { return operand{num: f} }
func text(s string) operand { return operand{str: s, isStr: true} }

func (o operand) number() float64 {
	if !o.isStr {
		return o.num
	}

	s := strings.TrimSpace(o.str)
	if s == "" {
		return 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}

	return f
}

func (o operand) text() string {
	if o.isStr {
		return o.str
	}

	return FormatNumber(o.num)
}

func (o operand) finite() bool {
	return o.isStr || !(math.IsNaN(o.num) || math.IsInf(o.num, 0))
}

// value converts a final result; non-finite numbers become Null.
func (o operand) value() Value {
	if o.isStr {
		return String(o.str)
	}

	return Number(o.num)
}

// concatText is the per-argument rendering inside CONCAT: non-finite numbers
// render as the empty string.
func (o operand) concatText() string {
	if !o.finite() {
		return ""
	}

	return o.text()
}

type numberNode float64

func (n numberNode) eval(float64) operand { return num(float64(n)) }

type stringNode string

func (n stringNode) eval(float64) operand { return text(string(n)) }

type valueNode struct{}

func (valueNode) eval(x float64) operand { return num(x) }

type unaryNode struct {
	inner node
	op    tokenKind
}

func (n *unaryNode) eval(x float64) operand {
	v := n.inner.eval(x).number()
	if n.op == tokMinus {
		return num(-v)
	}

	return num(v)
}

type binaryNode struct {
	left  node
	right node
	op    tokenKind
}

func (n *binaryNode) eval(x float64) operand {
	l := n.left.eval(x)
	r := n.right.eval(x)

	switch n.op {
	case tokPlus:
		if l.isStr || r.isStr {
			return text(l.text() + r.text())
		}

		return num(l.num + r.num)
	case tokMinus:
		return num(l.number() - r.number())
	case tokStar:
		return num(l.number() * r.number())
	case tokSlash:
		return num(l.number() / r.number())
	case tokPercent:
		return num(math.Mod(l.number(), r.number()))
	default:
		return num(math.NaN())
	}
}

type concatNode struct {
	args []node
}

func (n *concatNode) eval(x float64) operand {
	var b strings.Builder

	for _, arg := range n.args {
		b.WriteString(arg.eval(x).concatText())
	}

	return text(b.String())
}
