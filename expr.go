// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"fmt"
	"strings"
)

type exprType int

const (
	matchExprType exprType = iota
	negationExprType
	andExprType
	orExprType
)

// Expression is the immutable, acyclic boolean DAG spec §3 describes: a
// tagged sum over {Match, Negation, And, Or}. Concrete types are always
// pointers, so an Expression value doubles as a stable identity for
// memoization and parent-index maps (spec §4.2, §4.4).
type Expression interface {
	Type() exprType
	String() string
}

// Operand is either a literal value (string form, typed via the arg's
// metadata) or a reference to another argument (spec §3).
type Operand struct {
	Literal string
	RefArg  string
	IsRef   bool
}

// Lit builds a literal operand.
func Lit(v string) Operand { return Operand{Literal: v} }

// Ref builds a reference operand (an arg-to-arg comparison).
func Ref(argName string) Operand { return Operand{RefArg: argName, IsRef: true} }

// Match is a leaf condition: arg OP operand.
type Match struct {
	Arg     string
	Op      Op
	Operand Operand
}

func (m *Match) Type() exprType { return matchExprType }

func (m *Match) String() string {
	switch {
	case m.Op == IS_UNKNOWN:
		return fmt.Sprintf("%s IS UNKNOWN", m.Arg)
	case m.Operand.IsRef:
		return fmt.Sprintf("%s %s @%s", m.Arg, opSymbol(m.Op), m.Operand.RefArg)
	default:
		return fmt.Sprintf("%s %s %q", m.Arg, opSymbol(m.Op), m.Operand.Literal)
	}
}

func opSymbol(o Op) string {
	switch o {
	case EQ:
		return "="
	case LT:
		return "<"
	case GT:
		return ">"
	case CONTAINS:
		return "CONTAINS"
	default:
		return "?"
	}
}

// Negation wraps exactly one Match (spec §3: a negation in the input maps to
// the positive alias plus a negative reference increment).
type Negation struct {
	Inner *Match
}

func (n *Negation) Type() exprType { return negationExprType }
func (n *Negation) String() string { return fmt.Sprintf("NOT (%s)", n.Inner.String()) }

// And is a conjunction of two or more members. Normalization invariants
// (assumed from upstream, spec §3) guarantee And is never singleton nor
// directly nested in another And.
type And struct {
	Members []Expression
}

func (a *And) Type() exprType { return andExprType }
func (a *And) String() string { return joinMembers(a.Members, " AND ") }

// Or is a disjunction of two or more members.
type Or struct {
	Members []Expression
}

func (o *Or) Type() exprType { return orExprType }
func (o *Or) String() string { return joinMembers(o.Members, " OR ") }

func joinMembers(members []Expression, sep string) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// AllArgs returns the set of argument names referenced anywhere in expr,
// including the right-hand side of reference matches.
func AllArgs(root Expression) map[string]bool {
	out := map[string]bool{}
	Collect(root, func(e Expression) bool {
		if m, ok := e.(*Match); ok {
			out[m.Arg] = true
			if m.Operand.IsRef {
				out[m.Operand.RefArg] = true
			}
		}
		return false
	})
	return out
}

// Collect performs a depth-first traversal of root, calling visit on every
// node (Match, Negation, And, Or). If visit returns true, traversal of that
// node's children is skipped (spec §4.2).
func Collect(root Expression, visit func(Expression) bool) {
	if root == nil {
		return
	}
	if visit(root) {
		return
	}
	switch v := root.(type) {
	case *Negation:
		Collect(v.Inner, visit)
	case *And:
		for _, m := range v.Members {
			Collect(m, visit)
		}
	case *Or:
		for _, m := range v.Members {
			Collect(m, visit)
		}
	}
}

// leaves returns every Match/Negation leaf in root, depth-first.
func leaves(root Expression) []Expression {
	var out []Expression
	Collect(root, func(e Expression) bool {
		switch e.(type) {
		case *Match:
			out = append(out, e)
		case *Negation:
			out = append(out, e)
			return true // the wrapped Match is part of this leaf, not a leaf of its own
		}
		return false
	})
	return out
}

// aliasLeaves returns every node that the alias registry treats as one
// canonical unit: a Match, a Negation, a flat IN-candidate Or (left whole,
// not decomposed into its member Matches), or a flat NOT-IN-candidate And
// (likewise left whole). This is the same granularity renderBoolean (the
// emitter) walks, so pre-registering these nodes via AliasRegistry.GetOrCreate
// guarantees every node the emitter later resolves was already built.
func aliasLeaves(root Expression) []Expression {
	var out []Expression
	var walk func(Expression)
	walk = func(e Expression) {
		switch v := e.(type) {
		case *Match, *Negation:
			out = append(out, e)
		case *Or:
			if _, _, ok := asINCandidate(v); ok {
				out = append(out, e)
				return
			}
			for _, m := range v.Members {
				walk(m)
			}
		case *And:
			if _, _, ok := asNotInCandidate(v); ok {
				out = append(out, e)
				return
			}
			for _, m := range v.Members {
				walk(m)
			}
		}
	}
	walk(root)
	return out
}

// nearestAndAncestors maps every node in root to its nearest enclosing And
// node (nil if there is none). Used by the analyzer's accidental
// row-pinning detection (spec §4.2, §4.3): two non-identical leaves that
// share a nearest-AND ancestor are candidates for multi-row sensitivity.
func nearestAndAncestors(root Expression) map[Expression]*And {
	idx := map[Expression]*And{}
	var walk func(n Expression, current *And)
	walk = func(n Expression, current *And) {
		if n == nil {
			return
		}
		idx[n] = current
		switch v := n.(type) {
		case *Negation:
			walk(v.Inner, current)
		case *And:
			for _, m := range v.Members {
				walk(m, v)
			}
		case *Or:
			for _, m := range v.Members {
				walk(m, current)
			}
		}
	}
	walk(root, nil)
	return idx
}

// sharesAndAncestor reports whether a and b have the same, non-nil, nearest
// enclosing And node.
func sharesAndAncestor(idx map[Expression]*And, a, b Expression) bool {
	aa, ba := idx[a], idx[b]
	return aa != nil && aa == ba
}

// asINCandidate reports whether o is a flat OR of positive EQ matches on the
// same argument (an IN candidate, spec §4.2/§4.4).
func asINCandidate(o *Or) (arg string, matches []*Match, ok bool) {
	for _, m := range o.Members {
		match, isMatch := m.(*Match)
		if !isMatch || match.Op != EQ || match.Operand.IsRef {
			return "", nil, false
		}
		if arg == "" {
			arg = match.Arg
		} else if match.Arg != arg {
			return "", nil, false
		}
		matches = append(matches, match)
	}
	return arg, matches, arg != ""
}

// asNotInCandidate reports whether a is a flat AND of negated EQ matches on
// the same argument (a NOT IN candidate, spec §4.2/§4.4).
func asNotInCandidate(a *And) (arg string, matches []*Match, ok bool) {
	for _, m := range a.Members {
		neg, isNeg := m.(*Negation)
		if !isNeg || neg.Inner.Op != EQ || neg.Inner.Operand.IsRef {
			return "", nil, false
		}
		if arg == "" {
			arg = neg.Inner.Arg
		} else if neg.Inner.Arg != arg {
			return "", nil, false
		}
		matches = append(matches, neg.Inner)
	}
	return arg, matches, arg != ""
}
