// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package exprtext parses the literal pseudo-expression notation used by
// fixtures and tests (spec §8) into an audlangsql.Expression DAG. It is not
// part of the audlangsql public contract: production callers build
// Expression trees directly, the way spec §3 describes them.
package exprtext

import "fmt"

const eof = rune(0)

type tokenType int

const (
	unknownToken tokenType = iota
	eofToken
	errToken
	whitespaceToken
	stringToken
	andToken
	orToken
	notToken
	isToken
	unknownKeywordToken
	containsToken
	equalToken
	notEqualToken
	greaterThanToken
	greaterThanOrEqualToken
	lessThanToken
	lessThanOrEqualToken
	refToken
	startLogicalExprToken
	endLogicalExprToken
)

var tokenTypeToString = map[tokenType]string{
	unknownToken:            "Unknown",
	eofToken:                "EOF",
	errToken:                "Error",
	whitespaceToken:         "Whitespace",
	stringToken:             "String",
	andToken:                "And",
	orToken:                 "Or",
	notToken:                "Not",
	isToken:                 "Is",
	unknownKeywordToken:     "UnknownKeyword",
	containsToken:           "Contains",
	equalToken:              "Equal",
	notEqualToken:           "NotEqual",
	greaterThanToken:        "GreaterThan",
	greaterThanOrEqualToken: "GreaterThanOrEqual",
	lessThanToken:           "LessThan",
	lessThanOrEqualToken:    "LessThanOrEqual",
	refToken:                "Ref",
	startLogicalExprToken:   "StartLogicalExpr",
	endLogicalExprToken:     "EndLogicalExpr",
}

func (t tokenType) String() string {
	if s, ok := tokenTypeToString[t]; ok {
		return s
	}
	return tokenTypeToString[unknownToken]
}

type token struct {
	Type  tokenType
	Value string
}

// panicIfNil mirrors the teacher's defensive-nil-check helper used at the
// top of every lexer state function.
func panicIfNil(v any, fn, typ string) {
	if v == nil {
		panic(fmt.Sprintf("%s: nil %s", fn, typ))
	}
}
