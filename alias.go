// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Alias is a named sub-query encoding a canonical positive condition, with
// positive/negative reference counts against the WHERE skeleton (spec §3,
// §4.5).
type Alias struct {
	Name         string
	PositiveExpr Expression
	PosRefs      int
	NegRefs      int

	condition *MatchCondition
}

// CanActAsUnionMember implements invariant 6 (spec §8): an alias whose
// fulfillment is demanded both positively and negatively (or that
// represents IS_UNKNOWN) cannot stand in for a plain UNION member, since a
// UNION member must be a clean "rows satisfying the positive condition"
// query.
func (a *Alias) CanActAsUnionMember() bool {
	isUnknown := false
	if m := matchOf(a.PositiveExpr); m != nil {
		isUnknown = m.Op == IS_UNKNOWN
	}
	return !(a.PosRefs > 0 && (a.NegRefs > 0 || isUnknown))
}

// AliasRegistry is C5: it maintains the canonical positive aliases used
// throughout one conversion (spec §4.5). Not safe for concurrent use.
type AliasRegistry struct {
	byKey map[string]*Alias
	order []*Alias
	seq   int
}

func newAliasRegistry() *AliasRegistry {
	return &AliasRegistry{byKey: map[string]*Alias{}}
}

// GetOrCreate resolves leaf (a *Match, *Negation, an IN-candidate *Or, or a
// NOT-IN-candidate *And) to its canonical positive Alias, creating it on
// first sight. It reports whether this particular reference is positive or
// negative, per spec §4.5's negation-collapsing rules: a Negation maps to
// its inner Match's positive alias with a negative reference; an
// AND-of-negations collapses to the equivalent OR alias with a negative
// reference.
func (r *AliasRegistry) GetOrCreate(leaf Expression) (alias *Alias, positive bool) {
	canonical, positive := canonicalPositiveForm(leaf)
	key := canonical.String()
	if a, ok := r.byKey[key]; ok {
		return a, positive
	}
	r.seq++
	a := &Alias{Name: fmt.Sprintf("a%03d", r.seq), PositiveExpr: canonical}
	r.byKey[key] = a
	r.order = append(r.order, a)
	return a, positive
}

// canonicalPositiveForm implements spec §3's Alias canonicalization.
func canonicalPositiveForm(leaf Expression) (Expression, bool) {
	switch v := leaf.(type) {
	case *Negation:
		return v.Inner, false
	case *And:
		if arg, matches, ok := asNotInCandidate(v); ok {
			members := make([]Expression, len(matches))
			for i, m := range matches {
				members[i] = m
			}
			_ = arg
			return &Or{Members: members}, false
		}
		return v, true
	default:
		return leaf, true
	}
}

// RegisterPos/RegisterNeg increment an alias's reference counters as the
// WHERE skeleton is walked (spec §4.5).
func (a *Alias) RegisterPos() { a.PosRefs++ }
func (a *Alias) RegisterNeg() { a.NegRefs++ }

// Ensure lazily builds (and memoizes) the alias's MatchCondition via b.
func (a *Alias) Ensure(b *ConditionBuilder) (*MatchCondition, error) {
	if a.condition != nil {
		return a.condition, nil
	}
	mc, err := b.Build(a.PositiveExpr)
	if err != nil {
		return nil, err
	}
	a.condition = mc
	return mc, nil
}

// Ordered returns every alias sorted lexicographically by name (spec §5's
// determinism guarantee on WITH-clause ordering). Name assignment is
// already monotonic (a001, a002, ...), so this is mostly a belt-and-braces
// sort against any future non-sequential naming scheme.
func (r *AliasRegistry) Ordered() []*Alias {
	out := append([]*Alias{}, r.order...)
	slices.SortFunc(out, func(a, b *Alias) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// requiredLeaves returns the set of leaf nodes (by identity) that must hold
// for root to be true: root itself if it is a leaf, the union of an And's
// members (recursively), and nothing for an Or (none of its members is
// individually mandatory). This backs determine_primary_alias's
// superset-of-root check (spec §4.5) and the base-coverage testable
// property (spec §8, invariant 7).
func requiredLeaves(root Expression) map[Expression]bool {
	out := map[Expression]bool{}
	var walk func(Expression)
	walk = func(e Expression) {
		switch v := e.(type) {
		case *And:
			for _, m := range v.Members {
				walk(m)
			}
		case *Or:
			// no member is individually required
		default:
			out[e] = true
		}
	}
	walk(root)
	return out
}

// DeterminePrimaryAlias implements spec §4.5: pick an alias whose
// fulfillment is required for the root to be true, whose sign usage does
// not require both polarities, and that is not blocked by
// separate_base_table_required. A candidate running on the configured
// primary table wins outright; otherwise the most complex (most
// parameters, i.e. most row-reducing) candidate wins.
func (r *AliasRegistry) DeterminePrimaryAlias(root Expression, stats *Stats, catalog *Catalog) *Alias {
	if stats.SeparateBaseTableRequired {
		return nil
	}
	required := requiredLeaves(root)
	var candidates []*Alias
	for _, a := range r.order {
		if a.NegRefs > 0 {
			continue
		}
		if !required[a.PositiveExpr] {
			continue
		}
		if a.condition == nil {
			continue // not yet built: caller must Ensure() every referenced alias first
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}
	for _, a := range candidates {
		if t, err := catalog.TableByName(a.condition.Table); err == nil && t.Nature.IsPrimary {
			return a
		}
	}
	best := candidates[0]
	for _, a := range candidates[1:] {
		if len(a.condition.AllParams()) > len(best.condition.AllParams()) {
			best = a
		}
	}
	return best
}

// DetermineBaseQueryCombination searches for a minimum-size OR-combination
// of aliases whose union is a superset of root, bounded by cap (spec §4.5,
// §9's open question on the combination cap). The search is intentionally
// heuristic: when root itself is a flat Or over registered aliases, that is
// the trivial minimum combination; anything more exotic is left to the
// planner's union/universe fallbacks.
func (r *AliasRegistry) DetermineBaseQueryCombination(root Expression, cap int) ([]*Alias, error) {
	or, ok := root.(*Or)
	if !ok {
		return nil, nil
	}
	if len(or.Members) > cap {
		return nil, newConversionError("audlangsql.AliasRegistry.DetermineBaseQueryCombination", CodeCombinationBudgetExceeded, root.String(), ErrCombinationBudgetExceeded)
	}
	out := make([]*Alias, 0, len(or.Members))
	for _, m := range or.Members {
		canonical, positive := canonicalPositiveForm(m)
		a, registered := r.byKey[canonical.String()]
		if !registered || a.condition == nil || !positive || !a.CanActAsUnionMember() {
			return nil, nil // not all members are built, clean union members: fall back
		}
		out = append(out, a)
	}
	return out, nil
}
