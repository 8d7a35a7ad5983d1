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
	"errors"
	"fmt"
	"strings"
)

const (
	identValue  = "VALUE"
	identConcat = "CONCAT"

	maxDepth = 64
)

var (
	ErrSyntax            = errors.New("syntax error")
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrTooDeep           = errors.New("expression nested too deeply")
	ErrEmpty             = errors.New("empty expression")
)

// parser is a recursive-descent parser over the grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("+" | "-") unary | primary
//	primary = number | string | VALUE | "(" expr ")" | CONCAT "(" [ expr { "," expr } ] ")"
type parser struct {
	toks  []token
	pos   int
	depth int
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	if len(toks) == 1 {
		return nil, ErrEmpty
	}

	p := &parser{toks: toks}

	n, err := p.expr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok.kind, tok.pos)
	}

	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}

	return tok
}

func (p *parser) expect(kind tokenKind) error {
	if tok := p.next(); tok.kind != kind {
		return fmt.Errorf("%w: expected %s, got %s at %d", ErrSyntax, kind, tok.kind, tok.pos)
	}

	return nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return ErrTooDeep
	}

	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek().kind
		if op != tokPlus && op != tokMinus {
			return left, nil
		}

		p.next()

		right, err := p.term()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek().kind
		if op != tokStar && op != tokSlash && op != tokPercent {
			return left, nil
		}

		p.next()

		right, err := p.unary()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	switch op := p.peek().kind; op {
	case tokPlus, tokMinus:
		p.next()

		inner, err := p.unary()
		if err != nil {
			return nil, err
		}

		return &unaryNode{op: op, inner: inner}, nil
	default:
		return p.primary()
	}
}

func (p *parser) primary() (node, error) {
	tok := p.next()

	switch tok.kind {
	case tokNumber:
		return numberNode(tok.num), nil
	case tokString:
		return stringNode(tok.text), nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}

		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}

		return inner, nil
	case tokIdent:
		return p.identifier(tok)
	default:
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok.kind, tok.pos)
	}
}

func (p *parser) identifier(tok token) (node, error) {
	switch strings.ToUpper(tok.text) {
	case identValue:
		return valueNode{}, nil
	case identConcat:
		return p.concatCall()
	default:
		return nil, fmt.Errorf("%w %q at %d", ErrUnknownIdentifier, tok.text, tok.pos)
	}
}

func (p *parser) concatCall() (node, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}

	call := &concatNode{}

	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}

	for {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}

		call.args = append(call.args, arg)

		switch tok := p.next(); tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return call, nil
		default:
			return nil, fmt.Errorf("%w: expected ',' or ')', got %s at %d", ErrSyntax, tok.kind, tok.pos)
		}
	}
}
