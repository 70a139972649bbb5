// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import "fmt"

// Converter is the immutable entry point spec §5 describes: one Converter
// wraps one frozen Catalog and option set, and is safe to share across
// concurrent conversions since every mutable analysis artifact (Stats,
// AliasRegistry, ConditionBuilder, Plan) is allocated fresh per Convert
// call and discarded at the end of it.
type Converter struct {
	catalog *Catalog
	opts    options
}

// New builds a Converter around catalog (spec §5).
func New(catalog *Catalog, opts ...Option) (*Converter, error) {
	const op = "audlangsql.New"
	if catalog == nil {
		return nil, newConversionError(op, "", "", fmt.Errorf("%w: nil catalog", ErrInvalidParameter))
	}
	o, err := getOpts(opts...)
	if err != nil {
		return nil, err
	}
	return &Converter{catalog: catalog, opts: o}, nil
}

// Convert compiles expr into a parameterized SQL template plus its bound
// parameters (spec §5). vars seeds (and receives) the per-conversion
// variable map used by auto-mapping policies and filter-column templates
// (spec §4.1, §6); a nil map is allocated internally. extraDirectives are
// ORed with the Converter's own configured directives for this call only.
func (c *Converter) Convert(expr Expression, vars map[string]string, extraDirectives ...Directive) (*Result, error) {
	const op = "audlangsql.Converter.Convert"
	if expr == nil {
		return nil, newConversionError(op, "", "", fmt.Errorf("%w: nil expression", ErrInvalidParameter))
	}
	if vars == nil {
		vars = map[string]string{}
	}
	directives := c.opts.directives
	for _, d := range extraDirectives {
		directives |= d
	}

	if alwaysTrue, alwaysFalse := detectTrivialCollapse(expr); alwaysTrue || alwaysFalse {
		if alwaysTrue {
			c.opts.logger.Info("expression collapses to a tautology", "code", CodeAlwaysTrue)
			return nil, newConversionError(op, CodeAlwaysTrue, expr.String(), ErrAlwaysTrue)
		}
		c.opts.logger.Info("expression collapses to a contradiction", "code", CodeAlwaysFalse)
		return nil, newConversionError(op, CodeAlwaysFalse, expr.String(), ErrAlwaysFalse)
	}

	stats, err := analyze(expr, c.catalog, vars, directives, c.opts.maxAnalysisPasses)
	if err != nil {
		return nil, err
	}
	c.opts.logger.Debug("expression analyzed", "hints", stats.Hints, "required_tables", len(stats.RequiredTables))

	if directives.has(DisableUnion) && stats.SeparateBaseTableRequired && aliasRootIsUnion(expr) {
		return nil, newConversionError(op, CodeMappingFailed, expr.String(), fmt.Errorf("%w: union base disabled by directive", ErrMappingFailed))
	}

	builder := newConditionBuilder(c.catalog, vars, directives, c.opts.containsPolicy)
	aliases := newAliasRegistry()

	if stats.Hints.has(HintSimpleCondition) {
		c.opts.logger.Debug("simple-condition fast path selected")
	}

	plan, err := BuildPlan(expr, stats, c.catalog, aliases, builder, directives, c.opts.idColumnName, c.opts.baseCombinationCap, c.opts.logger)
	if err != nil {
		return nil, err
	}

	em := newEmitter(plan, c.catalog, aliases, c.opts.typeCasters, c.opts.containsPolicy, c.opts.hook, c.opts.queryKind)
	return em.Emit(expr)
}

// aliasRootIsUnion reports whether expr's root is the kind of flat Or a
// base-query union combination would be attempted against, used only to
// give WithDisableUnion an early, clear failure instead of a silent
// fallback through BuildPlan.
func aliasRootIsUnion(expr Expression) bool {
	_, ok := expr.(*Or)
	return ok
}

// detectTrivialCollapse implements spec §4.3's ALWAYS_TRUE/ALWAYS_FALSE
// pre-check for the narrow, syntactically detectable case: a root And or Or
// directly containing both a Match and a Negation of a structurally
// identical Match. Such a pair nested below the root is not reported, since
// it does not make the whole expression collapse. M AND NOT(M) can never hold (ALWAYS_FALSE); M OR NOT(M)
// always holds (ALWAYS_TRUE). Deeper semantic contradictions (e.g. two
// incompatible EQ values on a non-collection argument) are intentionally
// left to the database to reject, since the argument's collection-ness is
// the catalog's call, not the expression's.
func detectTrivialCollapse(root Expression) (alwaysTrue, alwaysFalse bool) {
	var walk func(Expression)
	walk = func(e Expression) {
		switch v := e.(type) {
		case *And:
			if hasComplementaryPair(v.Members) {
				alwaysFalse = true
			}
		case *Or:
			if hasComplementaryPair(v.Members) {
				alwaysTrue = true
			}
		}
	}
	walk(root)
	return alwaysTrue, alwaysFalse
}

func hasComplementaryPair(members []Expression) bool {
	for i := 0; i < len(members); i++ {
		mi, negI := asPolarMatch(members[i])
		if mi == nil {
			continue
		}
		for j := i + 1; j < len(members); j++ {
			mj, negJ := asPolarMatch(members[j])
			if mj == nil || negI == negJ {
				continue
			}
			if matchEquivalent(mi, mj) {
				return true
			}
		}
	}
	return false
}

func asPolarMatch(e Expression) (*Match, bool) {
	switch v := e.(type) {
	case *Match:
		return v, false
	case *Negation:
		return v.Inner, true
	default:
		return nil, false
	}
}

func matchEquivalent(a, b *Match) bool {
	return a.Arg == b.Arg && a.Op == b.Op && a.Operand == b.Operand
}
