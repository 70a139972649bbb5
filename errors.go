// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers use errors.Is against these; a *ConversionError
// also carries a machine-readable Code and the offending expression in
// canonical pretty form (spec §7's propagation policy).
var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrUnmappedArgument          = errors.New("unmapped argument")
	ErrUnknownTable              = errors.New("unknown table")
	ErrDuplicateMapping          = errors.New("duplicate argument mapping")
	ErrFilterColumnCollision     = errors.New("filter column collides with id or data column")
	ErrInvalidNature             = errors.New("invalid table nature combination")
	ErrDuplicatePrimaryTable     = errors.New("duplicate primary table")
	ErrTypeIncompatible          = errors.New("argument type incompatible with column sql type")
	ErrFeatureDisabled           = errors.New("feature disabled by directive")
	ErrUnresolvedVariable        = errors.New("unresolved filter-value variable")
	ErrMappingFailed             = errors.New("no viable base query")
	ErrAnalysisBudgetExceeded    = errors.New("expression analysis exceeded safety bound")
	ErrCombinationBudgetExceeded = errors.New("base-query combination search exceeded cap")
	ErrInvalidExpression         = errors.New("invalid expression")
	ErrAlwaysTrue                = errors.New("expression always true")
	ErrAlwaysFalse               = errors.New("expression always false")
)

// Code is a machine-readable error code surfaced to callers (spec §6).
type Code string

const (
	CodeAlwaysTrue                Code = "ERR_1001_ALWAYS_TRUE"
	CodeAlwaysFalse               Code = "ERR_1002_ALWAYS_FALSE"
	CodeReferenceMatchDisabled    Code = "ERR_2101_REFERENCE_MATCH_NOT_SUPPORTED"
	CodeContainsDisabled          Code = "ERR_2200_CONTAINS_NOT_SUPPORTED"
	CodeLtGtDisabled              Code = "ERR_2201_LTGT_NOT_SUPPORTED"
	CodeMappingFailed             Code = "ERR_3000_MAPPING_FAILED"
	CodeCombinationBudgetExceeded Code = "ERR_3001_COMBINATION_BUDGET_EXCEEDED"
)

// ConversionError is the single error type returned by Convert and catalog
// construction. No partial SQL is ever returned alongside one.
type ConversionError struct {
	op   string
	code Code
	expr string
	err  error
}

func newConversionError(op string, code Code, exprPretty string, err error) *ConversionError {
	return &ConversionError{op: op, code: code, expr: exprPretty, err: err}
}

func (e *ConversionError) Error() string {
	if e.expr == "" {
		return fmt.Sprintf("%s: %s", e.op, e.err)
	}
	return fmt.Sprintf("%s: %s in: %q", e.op, e.err, e.expr)
}

func (e *ConversionError) Unwrap() error { return e.err }

// Code returns the machine-readable code, or "" if none was assigned.
func (e *ConversionError) Code() Code { return e.code }
