// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package exprtext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarlEilebrecht/audlang-go-sql"
	"github.com/KarlEilebrecht/audlang-go-sql/internal/exprtext"
)

func Test_Parse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr string
	}{
		{
			name: "simple-eq",
			raw:  `status = "active"`,
			want: `status = "active"`,
		},
		{
			name: "not-equal-becomes-negation",
			raw:  `status != "active"`,
			want: `NOT (status = "active")`,
		},
		{
			name: "and-or-precedence",
			raw:  `status = "active" AND age > "21" OR status = "vip"`,
			want: `((status = "active" AND age > "21") OR status = "vip")`,
		},
		{
			name: "parens-override-precedence",
			raw:  `status = "active" AND (age > "21" OR status = "vip")`,
			want: `(status = "active" AND (age > "21" OR status = "vip"))`,
		},
		{
			name: "not-wraps-single-match",
			raw:  `NOT (status = "active")`,
			want: `NOT (status = "active")`,
		},
		{
			name: "double-negation-collapses",
			raw:  `NOT (NOT (status = "active"))`,
			want: `status = "active"`,
		},
		{
			name: "is-unknown",
			raw:  `nickname IS UNKNOWN`,
			want: `nickname IS UNKNOWN`,
		},
		{
			name: "reference-match",
			raw:  `amount > @limit`,
			want: `amount > @limit`,
		},
		{
			name: "ge-becomes-negated-lt",
			raw:  `amount >= "100"`,
			want: `NOT (amount < "100")`,
		},
		{
			name: "le-becomes-negated-gt",
			raw:  `amount <= "100"`,
			want: `NOT (amount > "100")`,
		},
		{
			name: "contains",
			raw:  `comment % "hello"`,
			want: `comment CONTAINS "hello"`,
		},
		{
			name:    "not-on-junction-rejected",
			raw:     `NOT (status = "active" AND age > "21")`,
			wantErr: "NOT only applies to a single comparison",
		},
		{
			name:    "unbalanced-paren",
			raw:     `(status = "active"`,
			wantErr: `expected`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)

			got, err := exprtext.Parse(tc.raw)
			if tc.wantErr != "" {
				require.Error(err)
				assert.ErrorContains(err, tc.wantErr)
				return
			}
			require.NoError(err)
			assert.Equal(tc.want, got.String())
		})
	}
}

func Test_Parse_buildsCanonicalShapes(t *testing.T) {
	got, err := exprtext.Parse(`status = "a" OR status = "b" OR status = "c"`)
	require.NoError(t, err)
	or, ok := got.(*audlangsql.Or)
	require.True(t, ok)
	assert.Len(t, or.Members, 3)
}
