// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import "github.com/hashicorp/go-hclog"

// options collects every Converter-wide setting (spec §6).
type options struct {
	directives Directive

	idColumnName       string
	queryKind          QueryKind
	baseCombinationCap int
	maxAnalysisPasses  int

	typeCasters    map[string]NativeTypeCaster
	containsPolicy ContainsPolicy
	hook           AugmentationHook
	logger         hclog.Logger
}

// Option configures a Converter (spec §6).
type Option func(*options) error

func getDefaultOptions() options {
	return options{
		idColumnName:       "ID",
		queryKind:          SelectDistinctIDOrdered,
		baseCombinationCap: 5,
		maxAnalysisPasses:  defaultMaxAnalysisPasses,
		typeCasters:        map[string]NativeTypeCaster{},
		logger:             hclog.NewNullLogger(),
	}
}

func getOpts(opt ...Option) (options, error) {
	opts := getDefaultOptions()
	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&opts); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// WithDisableDateTimeAlignment turns off the DATE-vs-finer-grained-type
// rewrite (spec §4.4, §6).
func WithDisableDateTimeAlignment() Option {
	return func(o *options) error { o.directives |= DisableDateTimeAlignment; return nil }
}

// WithDisableContains rejects any expression using CONTAINS (spec §6).
func WithDisableContains() Option {
	return func(o *options) error { o.directives |= DisableContains; return nil }
}

// WithDisableLessThanGreaterThan rejects LT/GT matches (spec §6).
func WithDisableLessThanGreaterThan() Option {
	return func(o *options) error { o.directives |= DisableLessThanGreaterThan; return nil }
}

// WithDisableReferenceMatching rejects arg-to-arg comparisons (spec §6).
func WithDisableReferenceMatching() Option {
	return func(o *options) error { o.directives |= DisableReferenceMatching; return nil }
}

// WithDisableUnion forbids the planner from falling back to a union-based
// base query; mapping failures that would otherwise use a union instead
// surface as ErrMappingFailed (spec §6).
func WithDisableUnion() Option {
	return func(o *options) error { o.directives |= DisableUnion; return nil }
}

// WithEnforcePrimaryTable forces the main FROM table to the catalog's
// declared primary table whenever one is configured (spec §6).
func WithEnforcePrimaryTable() Option {
	return func(o *options) error { o.directives |= EnforcePrimaryTable; return nil }
}

// WithNativeTypeCaster overrides how qualifier.column is rendered for one
// physical column, e.g. to add an explicit CAST (spec §4.4).
func WithNativeTypeCaster(table, column string, caster NativeTypeCaster) Option {
	return func(o *options) error {
		if o.typeCasters == nil {
			o.typeCasters = map[string]NativeTypeCaster{}
		}
		o.typeCasters[table+"."+column] = caster
		return nil
	}
}

// WithContainsPolicy overrides CONTAINS snippet sanitization and rendering
// (spec §4.4).
func WithContainsPolicy(p ContainsPolicy) Option {
	return func(o *options) error { o.containsPolicy = p; return nil }
}

// WithAugmentationHook installs C8's pluggable emission callback surface
// (spec §4.8).
func WithAugmentationHook(h AugmentationHook) Option {
	return func(o *options) error { o.hook = h; return nil }
}

// WithIdColumnName overrides the id column name the main query selects,
// orders by and joins on (default "ID", spec §3). When the base query is a
// table, this must be that table's physical id column; union base queries
// expose their members' id columns under this name. Joined tables are
// always matched on their own TableMeta.IDColumn.
func WithIdColumnName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return newConversionError("audlangsql.WithIdColumnName", "", "", ErrInvalidParameter)
		}
		o.idColumnName = name
		return nil
	}
}

// WithQueryKind selects the shape of the emitted SELECT (spec §6).
func WithQueryKind(k QueryKind) Option {
	return func(o *options) error { o.queryKind = k; return nil }
}

// WithBaseCombinationCap bounds the alias-union combination search C5 runs
// (default 5, spec §9).
func WithBaseCombinationCap(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return newConversionError("audlangsql.WithBaseCombinationCap", "", "", ErrInvalidParameter)
		}
		o.baseCombinationCap = n
		return nil
	}
}

// WithMaxAnalysisPasses bounds the multi-row-sensitivity fixed-point
// closure C3 runs (default 64, spec §9).
func WithMaxAnalysisPasses(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return newConversionError("audlangsql.WithMaxAnalysisPasses", "", "", ErrInvalidParameter)
		}
		o.maxAnalysisPasses = n
		return nil
	}
}

// WithLogger attaches structured logging to a Converter (spec's ambient
// stack): CodeAlwaysTrue/CodeAlwaysFalse rejections are logged at info
// level, the analysis summary and the simple-condition fast path at debug,
// and every planner base-query/join-type decision at trace. Mapping failures
// and skipped auto-mapping policies are not logged.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) error {
		if l == nil {
			l = hclog.NewNullLogger()
		}
		o.logger = l
		return nil
	}
}
