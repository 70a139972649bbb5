// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sqltest turns an audlangsql.Result's "${pN}"-templated SQL into
// something a real driver (or go-sqlmock) can execute: positional "?"
// placeholders plus an args slice in occurrence order. audlangsql itself
// never does this substitution, since which placeholder syntax a driver
// wants (? vs $1 vs :name) is a caller concern, same as the teacher's own
// WithPgPlaceholders knob (spec §6 leaves Result.SQL driver-agnostic).
package sqltest

import (
	"fmt"
	"regexp"

	sql "github.com/KarlEilebrecht/audlang-go-sql"
)

var placeholderRE = regexp.MustCompile(`\$\{(\w+)\}`)

// ToPositional rewrites every "${id}" occurrence in result.SQL into "?", in
// left-to-right order, and returns the matching driver args slice. A
// parameter referenced more than once (the same alias condition rendered at
// more than one point in the WHERE skeleton) is repeated once per
// occurrence, since "?" binds positionally.
func ToPositional(result *sql.Result) (string, []any, error) {
	byID := make(map[string]sql.Parameter, len(result.Params))
	for _, p := range result.Params {
		byID[p.ID] = p
	}
	var args []any
	var rewriteErr error
	out := placeholderRE.ReplaceAllStringFunc(result.SQL, func(m string) string {
		id := placeholderRE.FindStringSubmatch(m)[1]
		p, ok := byID[id]
		if !ok {
			rewriteErr = fmt.Errorf("sqltest.ToPositional: no parameter registered for placeholder %q", m)
			return m
		}
		args = append(args, p.Value)
		return "?"
	})
	if rewriteErr != nil {
		return "", nil, rewriteErr
	}
	return out, args, nil
}
