// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package exprtext

import (
	"fmt"

	"github.com/KarlEilebrecht/audlang-go-sql"
)

// Parse compiles raw pseudo-expression notation (spec §8) into an
// audlangsql.Expression, e.g.:
//
//	status = "active" AND (age > "21" OR NOT(region = "EU"))
//	amount > @limit
//	comment % "hello" AND nickname IS UNKNOWN
//
// Grammar (lowest to highest precedence): Or -> And -> Unary -> Primary.
// Negation only ever takes the package's Negation(Match) shape: an
// operator-level negation (!=, >=, <=, NOT(...)) over a comparison is folded
// directly into a Negation node rather than a separate boolean-not wrapper,
// matching spec §3's normalized DAG. NOT over a Negation yields its inner
// Match, and NOT over an AND/OR group is rejected.
func Parse(raw string) (audlangsql.Expression, error) {
	const op = "exprtext.Parse"
	p := &parser{lex: newLexer(raw)}
	if err := p.advance(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.tok.Type != eofToken {
		return nil, fmt.Errorf("%s: unexpected trailing token %s %q", op, p.tok.Type, p.tok.Value)
	}
	return expr, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	for {
		tk, err := p.lex.nextToken()
		if err != nil {
			return err
		}
		if tk.Type == whitespaceToken {
			continue
		}
		p.tok = tk
		return nil
	}
}

func (p *parser) parseOr() (audlangsql.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	members := []audlangsql.Expression{left}
	for p.tok.Type == orToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		members = append(members, right)
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return &audlangsql.Or{Members: members}, nil
}

func (p *parser) parseAnd() (audlangsql.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	members := []audlangsql.Expression{left}
	for p.tok.Type == andToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		members = append(members, right)
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return &audlangsql.And{Members: members}, nil
}

func (p *parser) parseUnary() (audlangsql.Expression, error) {
	const op = "exprtext.parseUnary"
	if p.tok.Type == notToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negate(inner)
	}
	return p.parsePrimary()
}

func negate(e audlangsql.Expression) (audlangsql.Expression, error) {
	const op = "exprtext.negate"
	switch v := e.(type) {
	case *audlangsql.Match:
		return &audlangsql.Negation{Inner: v}, nil
	case *audlangsql.Negation:
		return v.Inner, nil
	default:
		return nil, fmt.Errorf("%s: NOT only applies to a single comparison, got %s", op, e.String())
	}
}

func (p *parser) parsePrimary() (audlangsql.Expression, error) {
	const op = "exprtext.parsePrimary"
	switch p.tok.Type {
	case startLogicalExprToken:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.Type != endLogicalExprToken {
			return nil, fmt.Errorf("%s: expected %q, got %s %q", op, ")", p.tok.Type, p.tok.Value)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case stringToken:
		return p.parseComparison()
	default:
		return nil, fmt.Errorf("%s: expected an argument name, got %s %q", op, p.tok.Type, p.tok.Value)
	}
}

func (p *parser) parseComparison() (audlangsql.Expression, error) {
	const op = "exprtext.parseComparison"
	arg := p.tok.Value
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.tok.Type == isToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Type != unknownKeywordToken {
			return nil, fmt.Errorf("%s: expected UNKNOWN after IS, got %s %q", op, p.tok.Type, p.tok.Value)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &audlangsql.Match{Arg: arg, Op: audlangsql.IS_UNKNOWN}, nil
	}

	invert := false
	sqlOp := audlangsql.EQ
	switch p.tok.Type {
	case equalToken:
		sqlOp = audlangsql.EQ
	case notEqualToken:
		sqlOp, invert = audlangsql.EQ, true
	case lessThanToken:
		sqlOp = audlangsql.LT
	case lessThanOrEqualToken:
		sqlOp, invert = audlangsql.GT, true
	case greaterThanToken:
		sqlOp = audlangsql.GT
	case greaterThanOrEqualToken:
		sqlOp, invert = audlangsql.LT, true
	case containsToken:
		sqlOp = audlangsql.CONTAINS
	default:
		return nil, fmt.Errorf("%s: expected a comparison operator, got %s %q", op, p.tok.Type, p.tok.Value)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var operand audlangsql.Operand
	switch p.tok.Type {
	case stringToken:
		operand = audlangsql.Lit(p.tok.Value)
	case refToken:
		operand = audlangsql.Ref(p.tok.Value)
	default:
		return nil, fmt.Errorf("%s: expected a value or @ref, got %s %q", op, p.tok.Type, p.tok.Value)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	m := &audlangsql.Match{Arg: arg, Op: sqlOp, Operand: operand}
	if invert {
		return &audlangsql.Negation{Inner: m}, nil
	}
	return m, nil
}
