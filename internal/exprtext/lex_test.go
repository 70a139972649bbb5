// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package exprtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_lexKeywordState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		raw             string
		want            []token
		wantErrIs       error
		wantErrContains string
	}{
		{
			name: "just-eof",
			raw:  ``,
			want: []token{
				{Type: eofToken, Value: ""},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "empty-quotes",
			raw:  `name=""`,
			want: []token{
				{Type: stringToken, Value: "name"},
				{Type: equalToken, Value: "="},
				{Type: stringToken, Value: ""},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "quoted-value",
			raw:  `"value"`,
			want: []token{
				{Type: stringToken, Value: `value`},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "and",
			raw:  "and ",
			want: []token{
				{Type: andToken, Value: "and"},
				{Type: whitespaceToken, Value: ""},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "or",
			raw:  "or ",
			want: []token{
				{Type: orToken, Value: "or"},
				{Type: whitespaceToken, Value: ""},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "is-unknown",
			raw:  "is unknown",
			want: []token{
				{Type: isToken, Value: "is"},
				{Type: whitespaceToken, Value: ""},
				{Type: unknownKeywordToken, Value: "unknown"},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "ref",
			raw:  "@other",
			want: []token{
				{Type: refToken, Value: "other"},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "greaterThanOrEqual",
			raw:  ">=",
			want: []token{
				{Type: greaterThanOrEqualToken, Value: ">="},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "notEqual",
			raw:  "!=",
			want: []token{
				{Type: notEqualToken, Value: "!="},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name:            "notEqualError",
			raw:             "!not",
			wantErrIs:       ErrInvalidNotEqual,
			wantErrContains: `exprtext.lexNotEqualState: invalid "!=" token, got "!n"`,
		},
		{
			name: "parens",
			raw:  "()",
			want: []token{
				{Type: startLogicalExprToken, Value: "("},
				{Type: endLogicalExprToken, Value: ")"},
				{Type: eofToken, Value: ""},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)

			lex := newLexer(tc.raw)
			if tc.wantErrContains != "" {
				_, err := lex.nextToken()
				require.Error(err)
				assert.ErrorIs(err, tc.wantErrIs)
				assert.ErrorContains(err, tc.wantErrContains)
				return
			}
			for _, want := range tc.want {
				tk, err := lex.nextToken()
				require.NoError(err)
				assert.Equal(want, tk)
			}
		})
	}
}

// Fuzz_lexerNextToken is only focused on finding panics.
func Fuzz_lexerNextToken(f *testing.F) {
	tc := []string{">=!=", "string ( ) > >=", "< <= = != AND OR and or", "1  !=   \"2\"", "@ref is unknown"}
	for _, c := range tc {
		f.Add(c)
	}
	f.Fuzz(func(t *testing.T, s string) {
		lex := newLexer(s)
		for {
			tok, err := lex.nextToken()
			if err != nil {
				return
			}
			if tok.Type.String() == "Unknown" {
				t.Errorf("unexpected token %v", tok)
			}
			if tok.Type == eofToken {
				return
			}
		}
	})
}
