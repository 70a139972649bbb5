// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"fmt"
	"sort"
	"strings"
)

// sqlBuffer is an append-only text accumulator the emitter writes into.
// AugmentationHook callbacks receive it positioned at the current end of
// the statement so far; they may only append, never rewrite (spec §4.8).
type sqlBuffer struct {
	b strings.Builder
}

func (s *sqlBuffer) WriteString(str string) { s.b.WriteString(str) }
func (s *sqlBuffer) String() string         { return s.b.String() }

// Result is Convert's output: a parameterized SQL template plus the bound
// parameters it references, each listed once, in the order of its first
// appearance in SQL (spec §5/§6).
type Result struct {
	SQL    string
	Params []Parameter
}

// emitter is C7: it walks a finished Plan plus the WHERE skeleton and
// renders final SQL text (spec §4.6/§4.7). aliases is the SAME registry
// BuildPlan populated: GetOrCreate is idempotent on a leaf's canonical
// form, so re-resolving a leaf here always yields the alias (and its
// join/inline placement) the planner already decided on.
type emitter struct {
	plan        *Plan
	catalog     *Catalog
	aliases     *AliasRegistry
	typeCasters map[string]NativeTypeCaster
	contains    ContainsPolicy
	hook        AugmentationHook
	kind        QueryKind
	allParams   []Parameter
	seen        map[string]bool
}

func newEmitter(plan *Plan, catalog *Catalog, aliases *AliasRegistry, typeCasters map[string]NativeTypeCaster, contains ContainsPolicy, hook AugmentationHook, kind QueryKind) *emitter {
	if hook == nil {
		hook = NoopHook{}
	}
	return &emitter{plan: plan, catalog: catalog, aliases: aliases, typeCasters: typeCasters, contains: contains, hook: hook, kind: kind, seen: map[string]bool{}}
}

// casterFor resolves the per-column override registered via
// WithNativeTypeCaster under "table.column" (spec §4.4).
func (e *emitter) casterFor(column DataColumn) NativeTypeCaster {
	return e.typeCasters[column.Table+"."+column.Name]
}

func (e *emitter) addParams(ps []Parameter) {
	for _, p := range ps {
		if e.seen[p.ID] {
			continue
		}
		e.seen[p.ID] = true
		e.allParams = append(e.allParams, p)
	}
}

// Emit renders root (the final WHERE skeleton) against e.plan (spec
// §4.6/§4.7).
func (e *emitter) Emit(root Expression) (*Result, error) {
	buf := &sqlBuffer{}
	e.hook.ScriptStart(buf, e.plan)

	e.hook.BeforeMainSelect(buf, e.plan)
	e.emitSelect(buf)
	if err := e.emitFrom(buf); err != nil {
		return nil, err
	}
	if err := e.emitJoins(buf); err != nil {
		return nil, err
	}

	where, err := e.renderBoolean(root)
	if err != nil {
		return nil, newConversionError("audlangsql.emitter.Emit", "", root.String(), err)
	}
	var whereParts []string
	if where != "" {
		whereParts = append(whereParts, where)
	}
	ec, err := e.existenceConjuncts()
	if err != nil {
		return nil, err
	}
	whereParts = append(whereParts, ec...)
	if e.plan.BaseQuery.Table != "" {
		mf, err := e.mainTableFilters()
		if err != nil {
			return nil, err
		}
		whereParts = append(whereParts, mf...)
	}
	if len(whereParts) > 0 {
		buf.WriteString("\nWHERE ")
		buf.WriteString(strings.Join(whereParts, "\n  AND "))
	}

	if e.kind == SelectDistinctIDOrdered {
		buf.WriteString(fmt.Sprintf("\nORDER BY %s.%s", e.plan.MainQualifier, e.plan.IDColumn))
	}

	e.hook.ScriptEnd(buf, e.plan)
	return &Result{SQL: buf.String(), Params: e.allParams}, nil
}

func (e *emitter) emitSelect(buf *sqlBuffer) {
	switch e.kind {
	case SelectDistinctCount:
		buf.WriteString(fmt.Sprintf("SELECT COUNT(DISTINCT %s.%s)", e.plan.MainQualifier, e.plan.IDColumn))
	default:
		buf.WriteString(fmt.Sprintf("SELECT DISTINCT %s.%s", e.plan.MainQualifier, e.plan.IDColumn))
	}
}

func (e *emitter) emitFrom(buf *sqlBuffer) error {
	bq := e.plan.BaseQuery
	switch bq.Strategy {
	case BaseAliasUnion:
		buf.WriteString("\nFROM (\n  ")
		for i, a := range bq.UnionAliases {
			s, err := e.renderUnionMember(a)
			if err != nil {
				return err
			}
			if i > 0 {
				buf.WriteString("\n  UNION\n  ")
			}
			buf.WriteString(s)
			e.hook.AfterWithBodySelect(buf, a.Name)
		}
		buf.WriteString(fmt.Sprintf("\n) AS %s", e.plan.MainQualifier))
	case BaseUniverseUnion:
		buf.WriteString("\nFROM (\n  ")
		for i, t := range bq.UnionTables {
			idCol, err := e.idColumnOf(t)
			if err != nil {
				return err
			}
			if i > 0 {
				buf.WriteString("\n  UNION\n  ")
			}
			buf.WriteString(fmt.Sprintf("SELECT %s AS %s FROM %s", idCol, e.plan.IDColumn, t))
			e.hook.AfterWithBodySelect(buf, t)
		}
		buf.WriteString(fmt.Sprintf("\n) AS %s", e.plan.MainQualifier))
	default: // BaseSimpleTable, BaseAliasPromotion, BaseAuxiliaryAllIDs
		buf.WriteString(fmt.Sprintf("\nFROM %s", bq.Table))
	}
	return nil
}

func (e *emitter) renderUnionMember(a *Alias) (string, error) {
	idCol, err := e.idColumnOf(a.condition.Table)
	if err != nil {
		return "", err
	}
	cond := a.condition.Main.Render(a.condition.Table, e.casterFor(a.condition.Main.Column), e.contains)
	e.addParams(a.condition.Main.Params)
	for _, f := range a.condition.Filters {
		cond += " AND " + f.Render(a.condition.Table, e.casterFor(f.Column), e.contains)
		e.addParams(f.Params)
	}
	return fmt.Sprintf("SELECT %s AS %s FROM %s WHERE %s", idCol, e.plan.IDColumn, a.condition.Table, cond), nil
}

func (e *emitter) idColumnOf(table string) (string, error) {
	t, err := e.catalog.TableByName(table)
	if err != nil {
		return "", err
	}
	return t.IDColumn, nil
}

func (e *emitter) emitJoins(buf *sqlBuffer) error {
	for _, j := range e.plan.Joins {
		jt := j.Type
		if override, ok := e.hook.SelectJoinType(j); ok {
			jt = override
		}
		e.hook.BeforeOn(buf, j)
		idCol, err := e.idColumnOf(j.Table)
		if err != nil {
			return err
		}
		buf.WriteString(fmt.Sprintf("\n%s %s AS %s ON %s.%s = %s.%s", jt.String(), j.Table, j.Alias.Name, j.Alias.Name, idCol, e.plan.MainQualifier, e.plan.IDColumn))
		if j.ExistenceCheck {
			mc := j.Alias.condition
			extra := mc.Main.Render(j.Alias.Name, e.casterFor(mc.Main.Column), e.contains)
			e.addParams(mc.Main.Params)
			for _, f := range mc.Filters {
				extra += " AND " + f.Render(j.Alias.Name, e.casterFor(f.Column), e.contains)
				e.addParams(f.Params)
			}
			buf.WriteString(" AND " + extra)
		}
		e.hook.AfterOn(buf, j)
	}
	return nil
}

// existenceConjuncts returns the "aliasN.<id> IS [NOT] NULL" WHERE fragments
// for every existence-check join (spec §4.7): one per polarity actually
// referenced, since a single join may serve both a positive and a negative
// reference to the same alias. The column probed is the joined table's own
// physical id column (idColumnOf), not the synthetic base-query id column
// name: after the join, alias.<table's id column> is all that is actually
// exposed on that side.
func (e *emitter) existenceConjuncts() ([]string, error) {
	joins := append([]JoinSpec{}, e.plan.Joins...)
	sort.Slice(joins, func(i, j int) bool { return joins[i].Alias.Name < joins[j].Alias.Name })
	var out []string
	for _, j := range joins {
		if !j.ExistenceCheck {
			continue
		}
		idCol, err := e.idColumnOf(j.Table)
		if err != nil {
			return nil, err
		}
		if j.Alias.PosRefs > 0 {
			out = append(out, fmt.Sprintf("%s.%s IS NOT NULL", j.Alias.Name, idCol))
		}
		if j.Alias.NegRefs > 0 {
			out = append(out, fmt.Sprintf("%s.%s IS NULL", j.Alias.Name, idCol))
		}
	}
	return out, nil
}

// mainTableFilters appends the base table's own table-level filter columns,
// when any are configured (spec §4.1/§4.4).
func (e *emitter) mainTableFilters() ([]string, error) {
	t, err := e.catalog.TableByName(e.plan.BaseQuery.Table)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fc := range t.TableFilters {
		value, unresolved, err := resolveTemplate(fc.ValueTemplate, nil)
		if err != nil {
			return nil, err
		}
		if len(unresolved) > 0 {
			continue // no per-arg vars at the table level: an unresolved template here is simply inapplicable
		}
		p := Parameter{ID: fmt.Sprintf("tf%d", len(e.allParams)+1), Value: value, SqlType: fc.SqlType}
		e.addParams([]Parameter{p})
		out = append(out, fmt.Sprintf("%s.%s = %s", e.plan.MainQualifier, fc.Name, p.placeholder()))
	}
	return out, nil
}

// renderBoolean walks the WHERE skeleton, folding IN/NOT-IN groups exactly
// as the condition builder does (spec §4.4).
func (e *emitter) renderBoolean(expr Expression) (string, error) {
	switch v := expr.(type) {
	case *Or:
		if _, _, ok := asINCandidate(v); ok {
			return e.renderLeaf(v)
		}
		return e.renderJunction(v.Members, " OR ")
	case *And:
		if _, _, ok := asNotInCandidate(v); ok {
			return e.renderLeaf(v)
		}
		return e.renderJunction(v.Members, " AND ")
	case *Negation:
		return e.renderLeaf(v)
	case *Match:
		return e.renderLeaf(v)
	default:
		return "", fmt.Errorf("%w: unrenderable node %T", ErrInvalidExpression, expr)
	}
}

func (e *emitter) renderJunction(members []Expression, sep string) (string, error) {
	parts := make([]string, len(members))
	for i, m := range members {
		s, err := e.renderBoolean(m)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// renderLeaf resolves leaf back to the alias BuildPlan already registered
// for it (GetOrCreate is idempotent on canonical form) and renders either
// its existence check or its condition directly.
func (e *emitter) renderLeaf(leaf Expression) (string, error) {
	alias, positive := e.aliases.GetOrCreate(leaf)
	if alias.condition == nil {
		return "", fmt.Errorf("%w: alias %s was never built by the planner", ErrInvalidExpression, alias.Name)
	}
	if j, ok := e.plan.JoinFor(alias); ok && j.ExistenceCheck {
		idCol, err := e.idColumnOf(j.Table)
		if err != nil {
			return "", err
		}
		if positive {
			return fmt.Sprintf("%s.%s IS NOT NULL", alias.Name, idCol), nil
		}
		return fmt.Sprintf("%s.%s IS NULL", alias.Name, idCol), nil
	}
	return e.renderCondition(alias), nil
}

func (e *emitter) renderCondition(alias *Alias) string {
	mc := alias.condition
	qualifier := e.plan.MainQualifier
	if j, ok := e.plan.JoinFor(alias); ok {
		qualifier = j.Alias.Name
	}
	if mc.RefTable != "" {
		rightQualifier := qualifier
		if mc.Tag == "dual-table" {
			if q, ok := e.plan.RefPartners[mc.RefTable]; ok {
				rightQualifier = q
			}
		}
		return mc.Main.RenderReference(qualifier, rightQualifier, mc.RefColumn, e.casterFor(mc.Main.Column))
	}
	parts := []string{mc.Main.Render(qualifier, e.casterFor(mc.Main.Column), e.contains)}
	e.addParams(mc.Main.Params)
	for _, f := range mc.Filters {
		parts = append(parts, f.Render(qualifier, e.casterFor(f.Column), e.contains))
		e.addParams(f.Params)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}
