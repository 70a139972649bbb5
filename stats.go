// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import "fmt"

// Stats is everything the planner and condition builder need to know about
// one expression, derived once per conversion (spec §4.3).
type Stats struct {
	PositiveValueMatches map[string]bool
	NegativeValueMatches map[string]bool
	PositiveIsUnknown    map[string]bool
	NegativeIsUnknown    map[string]bool
	MultiRowMarked       map[string]bool
	MultiRowSensitive    map[string]bool

	RequiredTables            map[string]bool
	SeparateBaseTableRequired bool

	Hints Hint

	assignments map[string]*Assignment
	andIndex    map[Expression]*And
}

// assignmentOf resolves (and memoizes) the catalog assignment for an
// argument within this analysis pass.
func (s *Stats) assignmentOf(catalog *Catalog, vars map[string]string, arg string) (*Assignment, error) {
	if a, ok := s.assignments[arg]; ok {
		return a, nil
	}
	a, err := catalog.Lookup(vars, arg)
	if err != nil {
		return nil, err
	}
	s.assignments[arg] = a
	return a, nil
}

// tablesOfLeaf returns the set of table names a leaf (Match or Negation)
// touches: its own argument's table, plus - for a reference match - the
// referenced argument's table too.
func (s *Stats) tablesOfLeaf(catalog *Catalog, vars map[string]string, leaf Expression) (map[string]bool, error) {
	m := matchOf(leaf)
	out := map[string]bool{}
	a, err := s.assignmentOf(catalog, vars, m.Arg)
	if err != nil {
		return nil, err
	}
	out[a.Table.Name] = true
	if m.Operand.IsRef {
		ra, err := s.assignmentOf(catalog, vars, m.Operand.RefArg)
		if err != nil {
			return nil, err
		}
		out[ra.Table.Name] = true
	}
	return out, nil
}

func matchOf(leaf Expression) *Match {
	switch v := leaf.(type) {
	case *Match:
		return v
	case *Negation:
		return v.Inner
	default:
		return nil
	}
}

// defaultMaxAnalysisPasses bounds the multi-row-sensitivity fixed-point loop
// (spec §9's open question on pathological quadratic inputs).
const defaultMaxAnalysisPasses = 64

// analyze computes Stats for root against catalog; directives does not
// influence the result.
// vars is the per-conversion variable map (spec §5); analyze may populate it
// via catalog auto-mapping lookups.
func analyze(root Expression, catalog *Catalog, vars map[string]string, directives Directive, maxPasses int) (*Stats, error) {
	const op = "audlangsql.analyze"
	if maxPasses <= 0 {
		maxPasses = defaultMaxAnalysisPasses
	}
	s := &Stats{
		PositiveValueMatches: map[string]bool{},
		NegativeValueMatches: map[string]bool{},
		PositiveIsUnknown:    map[string]bool{},
		NegativeIsUnknown:    map[string]bool{},
		MultiRowMarked:       map[string]bool{},
		MultiRowSensitive:    map[string]bool{},
		RequiredTables:       map[string]bool{},
		assignments:          map[string]*Assignment{},
	}
	s.andIndex = nearestAndAncestors(root)

	allLeaves := leaves(root)
	leafIsNegated := map[Expression]bool{}
	Collect(root, func(e Expression) bool {
		if n, ok := e.(*Negation); ok {
			leafIsNegated[n] = true
			return true // don't also visit the wrapped Match as a top-level leaf
		}
		return false
	})

	for _, leaf := range allLeaves {
		m := matchOf(leaf)
		negated := leafIsNegated[leaf]

		a, err := s.assignmentOf(catalog, vars, m.Arg)
		if err != nil {
			return nil, err
		}
		s.RequiredTables[a.Table.Name] = true
		if m.Op == IS_UNKNOWN {
			if negated {
				s.NegativeIsUnknown[m.Arg] = true
			} else {
				s.PositiveIsUnknown[m.Arg] = true
			}
		} else {
			if negated {
				s.NegativeValueMatches[m.Arg] = true
			} else {
				s.PositiveValueMatches[m.Arg] = true
			}
		}
		s.MultiRowMarked[m.Arg] = a.Column.MultiRow || a.Table.Nature.IsSparse

		if m.Operand.IsRef {
			ra, err := s.assignmentOf(catalog, vars, m.Operand.RefArg)
			if err != nil {
				return nil, err
			}
			s.RequiredTables[ra.Table.Name] = true
			s.MultiRowMarked[m.Operand.RefArg] = ra.Column.MultiRow || ra.Table.Nature.IsSparse
		}
	}

	if err := s.computeDirectSensitivity(catalog, vars, allLeaves, leafIsNegated); err != nil {
		return nil, err
	}
	if err := s.closeSensitivityFixedPoint(catalog, vars, allLeaves, maxPasses); err != nil {
		return nil, err
	}

	s.SeparateBaseTableRequired = len(catalog.AllTables()) > 1 && !s.anyRequiredTableContainsAllIDs(catalog) && len(s.PositiveIsUnknown)+len(s.NegativeIsUnknown) > 0

	s.Hints = s.computeHints(root, catalog)
	_ = op
	return s, nil
}

func (s *Stats) anyRequiredTableContainsAllIDs(catalog *Catalog) bool {
	for name := range s.RequiredTables {
		t, err := catalog.TableByName(name)
		if err == nil && t.Nature.ContainsAllIDs {
			return true
		}
	}
	return false
}

// computeDirectSensitivity applies the three direct causes of multi-row
// sensitivity spec §4.3 lists, plus the filter-column IS_UNKNOWN rule.
func (s *Stats) computeDirectSensitivity(catalog *Catalog, vars map[string]string, allLeaves []Expression, leafIsNegated map[Expression]bool) error {
	for _, leaf := range allLeaves {
		m := matchOf(leaf)
		negated := leafIsNegated[leaf]

		if m.Op == IS_UNKNOWN && s.MultiRowMarked[m.Arg] {
			s.MultiRowSensitive[m.Arg] = true
		}
		if negated && s.MultiRowMarked[m.Arg] {
			s.MultiRowSensitive[m.Arg] = true
		}
		if m.Operand.IsRef {
			if s.MultiRowMarked[m.Arg] || s.MultiRowMarked[m.Operand.RefArg] {
				s.MultiRowSensitive[m.Arg] = true
				s.MultiRowSensitive[m.Operand.RefArg] = true
			}
		}
		if m.Op == IS_UNKNOWN {
			a, err := s.assignmentOf(catalog, vars, m.Arg)
			if err != nil {
				return err
			}
			if len(a.Column.Filters) > 0 {
				s.MultiRowSensitive[m.Arg] = true
			}
		}
	}
	return nil
}

// closeSensitivityFixedPoint implements the implication rule (spec §4.3):
// two non-identical leaves sharing an AND-ancestor whose tables overlap
// promote any marked-multi-row arg among them to sensitive. Iterated to a
// fixed point, bounded by maxPasses (spec §9).
func (s *Stats) closeSensitivityFixedPoint(catalog *Catalog, vars map[string]string, allLeaves []Expression, maxPasses int) error {
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for i := 0; i < len(allLeaves); i++ {
			for j := i + 1; j < len(allLeaves); j++ {
				la, lb := allLeaves[i], allLeaves[j]
				if la == lb || !sharesAndAncestor(s.andIndex, la, lb) {
					continue
				}
				tablesA, err := s.tablesOfLeaf(catalog, vars, la)
				if err != nil {
					return err
				}
				tablesB, err := s.tablesOfLeaf(catalog, vars, lb)
				if err != nil {
					return err
				}
				if !tablesOverlap(tablesA, tablesB) {
					continue
				}
				for _, leaf := range []Expression{la, lb} {
					m := matchOf(leaf)
					if s.MultiRowMarked[m.Arg] && !s.MultiRowSensitive[m.Arg] {
						s.MultiRowSensitive[m.Arg] = true
						changed = true
					}
					if m.Operand.IsRef && s.MultiRowMarked[m.Operand.RefArg] && !s.MultiRowSensitive[m.Operand.RefArg] {
						s.MultiRowSensitive[m.Operand.RefArg] = true
						changed = true
					}
				}
			}
		}
		if !changed {
			return nil
		}
	}
	return newConversionError("audlangsql.analyze", "", "", fmt.Errorf("%w: after %d passes", ErrAnalysisBudgetExceeded, maxPasses))
}

func tablesOverlap(a, b map[string]bool) bool {
	for t := range a {
		if b[t] {
			return true
		}
	}
	return false
}

func (s *Stats) hasIsUnknown() bool { return len(s.PositiveIsUnknown)+len(s.NegativeIsUnknown) > 0 }
func (s *Stats) hasReferenceMatch(root Expression) bool {
	found := false
	Collect(root, func(e Expression) bool {
		if m := matchOf(e); m != nil && m.Operand.IsRef {
			found = true
			return true
		}
		return false
	})
	return found
}
func (s *Stats) hasAnd(root Expression) bool {
	found := false
	Collect(root, func(e Expression) bool {
		if _, ok := e.(*And); ok {
			found = true
			return true
		}
		return false
	})
	return found
}
func (s *Stats) hasOr(root Expression) bool {
	found := false
	Collect(root, func(e Expression) bool {
		if _, ok := e.(*Or); ok {
			found = true
			return true
		}
		return false
	})
	return found
}

func (s *Stats) hasMultiRowReferenceMatch(root Expression) bool {
	found := false
	Collect(root, func(e Expression) bool {
		if m := matchOf(e); m != nil && m.Operand.IsRef {
			if s.MultiRowMarked[m.Arg] || s.MultiRowMarked[m.Operand.RefArg] {
				found = true
				return true
			}
		}
		return false
	})
	return found
}

// everyNegativeValueMatchOnIDUniqueTable implements the LEFT_OUTER_JOINS_REQUIRED
// clause of spec §4.3: every negative value match (a value comparison, not
// IS_UNKNOWN) must be on a table declared id_unique for inner joins to be safe.
func (s *Stats) everyNegativeValueMatchOnIDUniqueTable(catalog *Catalog) bool {
	for arg := range s.NegativeValueMatches {
		a, ok := s.assignments[arg]
		if !ok {
			return false
		}
		if !a.Table.Nature.IDUnique {
			return false
		}
	}
	return true
}

func (s *Stats) computeHints(root Expression, catalog *Catalog) Hint {
	var h Hint
	noIsUnknown := !s.hasIsUnknown()
	noRefMatch := !s.hasReferenceMatch(root)
	noAnd := !s.hasAnd(root)
	noOr := !s.hasOr(root)
	noMultiRowSensitivity := len(s.MultiRowSensitive) == 0
	noMultiRowRefMatch := !s.hasMultiRowReferenceMatch(root)

	if noIsUnknown {
		h |= HintNoIsUnknown
	}
	if noRefMatch {
		h |= HintNoReferenceMatch
	}
	if noAnd {
		h |= HintNoAnd
	}
	if noOr {
		h |= HintNoOr
	}
	if noMultiRowSensitivity {
		h |= HintNoMultiRowSensitivity
	}
	if noMultiRowRefMatch {
		h |= HintNoMultiRowReferenceMatch
	}
	if len(s.RequiredTables) <= 1 {
		h |= HintNoJoinsRequired
	}

	innerJoinsPossible := noMultiRowSensitivity && noOr && noIsUnknown && noMultiRowRefMatch && s.everyNegativeValueMatchOnIDUniqueTable(catalog)
	if !innerJoinsPossible {
		h |= HintLeftOuterJoinsRequired
	}

	if len(AllArgs(root)) == 1 {
		h |= HintSingleAttribute
	}
	singleTable := len(s.RequiredTables) == 1
	if singleTable {
		h |= HintSingleTable
	}
	singleTableAllRows := false
	if singleTable {
		for name := range s.RequiredTables {
			if t, err := catalog.TableByName(name); err == nil && t.Nature.ContainsAllIDs {
				singleTableAllRows = true
			}
		}
	}
	if singleTableAllRows {
		h |= HintSingleTableContainingAllRows
	}

	simple := singleTable && (noMultiRowSensitivity || (singleTableAllRows && noAnd && noIsUnknown && noMultiRowRefMatch))
	if simple {
		h |= HintSimpleCondition
	}
	return h
}
