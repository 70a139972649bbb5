// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// BaseStrategy is how the planner assembled the query's row universe
// (spec §4.6).
type BaseStrategy int

const (
	// BaseSimpleTable answers the whole expression against a single table
	// directly (the HintSimpleCondition fast path, spec §4.3/§8 S1).
	BaseSimpleTable BaseStrategy = iota
	// BaseAliasPromotion uses one alias's own condition as the base row
	// set, folding that alias's predicate into the main query instead of a
	// separate join.
	BaseAliasPromotion
	// BaseAliasUnion unions two or more alias row sets together.
	BaseAliasUnion
	// BaseUniverseUnion unions every configured table's id column.
	BaseUniverseUnion
	// BaseAuxiliaryAllIDs falls back to a configured contains_all_ids
	// table purely as an id universe.
	BaseAuxiliaryAllIDs
)

// BaseQuery describes the row universe the planner selected.
type BaseQuery struct {
	Strategy      BaseStrategy
	Table         string  // BaseSimpleTable, BaseAliasPromotion (the promoted alias's table), BaseAuxiliaryAllIDs
	PromotedAlias *Alias  // BaseAliasPromotion only
	UnionAliases  []*Alias
	UnionTables   []string // BaseUniverseUnion: every table name, alphabetically
}

// JoinSpec is one table/alias the planner joins against the base query
// (spec §4.6).
type JoinSpec struct {
	Alias *Alias
	Table string
	Type  JoinType

	// ExistenceCheck marks an alias folded into a LEFT OUTER JOIN's ON
	// clause instead of the WHERE skeleton: the WHERE skeleton then only
	// ever references alias.id IS [NOT] NULL for it (spec §4.6/§4.7's
	// negative-reference and sensitive-IS_UNKNOWN handling).
	ExistenceCheck bool
}

// Plan is C6's output: everything the emitter needs to assemble one SQL
// statement (spec §4.6).
type Plan struct {
	BaseQuery     BaseQuery
	MainQualifier string
	IDColumn      string
	Joins         []JoinSpec

	// RefPartners maps every referenced table name of a dual-table reference
	// match (spec §4.4) to the qualifier its rows are available under: the
	// base table's or an existing join's qualifier when the table is already
	// in the FROM/JOIN graph, otherwise a dedicated join added for it. Such a
	// dedicated join links the table to the base row set on id, same as any
	// other join, since a reference match only ever compares two arguments
	// belonging to the same logical entity.
	RefPartners map[string]string

	joinByAlias map[*Alias]*JoinSpec
}

// JoinFor reports the JoinSpec registered for alias, if any. When absent,
// the alias's condition is answered directly against the base row
// (MainQualifier) rather than through a separate join.
func (p *Plan) JoinFor(alias *Alias) (*JoinSpec, bool) {
	j, ok := p.joinByAlias[alias]
	return j, ok
}

// needsExistenceCheck implements the inline-vs-join decision spec §4.6/§4.7
// describe: an alias can be answered directly as a WHERE predicate against
// its own table's row only when it is never negatively referenced, never
// multi-row sensitive, is not IS_UNKNOWN-sensitive, and - for a direct
// IS_UNKNOWN - only under the narrow allowance of invariant 6 (spec §8): the
// argument is effectively always known, its table contains all ids, it
// carries no filter columns, and it is not multi-row sensitive.
//
// Multi-row sensitivity (spec §8 S2) applies regardless of polarity: on a
// sparse/EAV table, two distinct positive matches can never both hold of the
// *same* physical row, so each one beyond the base row needs its own joined
// instance of the table, with the predicate carried in that join's ON clause
// and the WHERE skeleton only probing the join's existence - exactly the
// shape already built for negative references. Answering such a match
// directly against the base row would conjoin both matches onto one row and
// always produce a contradiction.
func needsExistenceCheck(alias *Alias, stats *Stats, catalog *Catalog) bool {
	if alias.NegRefs > 0 {
		return true
	}
	m := matchOf(alias.PositiveExpr)
	if m == nil {
		// A folded IN-candidate Or (spec §4.4) with no negative reference
		// anywhere: renders as an ordinary predicate, inline or through a
		// plain join.
		return false
	}
	if stats.MultiRowSensitive[m.Arg] {
		return true
	}
	if m.Operand.IsRef && stats.MultiRowSensitive[m.Operand.RefArg] {
		return true
	}
	if m.Op != IS_UNKNOWN {
		return false
	}
	a, ok := stats.assignments[m.Arg]
	if !ok {
		return true
	}
	if !a.effectiveAlwaysKnown() {
		return true
	}
	if !a.Table.Nature.ContainsAllIDs {
		return true
	}
	if len(a.Column.Filters) > 0 {
		return true
	}
	return false
}

// joinTypeFor picks INNER vs LEFT OUTER for one alias (spec §4.6): LEFT
// OUTER by default once the expression as a whole requires it, except a
// table that already contains every id is safe to inner-join (it can never
// drop a row the base query already produced).
func joinTypeFor(tableName string, stats *Stats, catalog *Catalog, logger hclog.Logger) JoinType {
	jt := LeftOuterJoin
	switch {
	case !stats.Hints.has(HintLeftOuterJoinsRequired):
		jt = InnerJoin
	default:
		if t, err := catalog.TableByName(tableName); err == nil && t.Nature.ContainsAllIDs {
			jt = InnerJoin
		}
	}
	logger.Trace("join type selected", "table", tableName, "type", jt.String())
	return jt
}

// BuildPlan is C6's entry point. root must already be the post-analysis
// expression; stats and aliases must come from the same conversion (spec
// §5). Every leaf in root is registered against aliases and has its
// condition eagerly built, since both the primary-alias and
// base-combination searches need completed conditions to compare tables.
// logger receives Trace-level detail on every base-query/join-type decision
// (spec §9's open question on heuristic planner behavior); logger must not be
// nil (WithLogger replaces a nil logger with a null logger, and the default
// options already carry one), since BuildPlan does not check it.
func BuildPlan(root Expression, stats *Stats, catalog *Catalog, aliases *AliasRegistry, builder *ConditionBuilder, directives Directive, idColumn string, combinationCap int, logger hclog.Logger) (*Plan, error) {
	const op = "audlangsql.BuildPlan"

	for _, leaf := range aliasLeaves(root) {
		a, positive := aliases.GetOrCreate(leaf)
		if positive {
			a.RegisterPos()
		} else {
			a.RegisterNeg()
		}
		if _, err := a.Ensure(builder); err != nil {
			return nil, err
		}
	}

	var plan *Plan
	switch {
	case directives.has(EnforcePrimaryTable) && catalog.PrimaryTable() != nil:
		p := catalog.PrimaryTable()
		logger.Trace("base-query strategy selected", "strategy", "simple_table", "table", p.Name, "reason", "enforce_primary_table")
		plan = planAroundBaseTable(p.Name, BaseQuery{Strategy: BaseSimpleTable, Table: p.Name}, root, stats, catalog, aliases, idColumn, logger)
	case stats.Hints.has(HintSimpleCondition):
		var table string
		for name := range stats.RequiredTables {
			table = name
		}
		logger.Trace("base-query strategy selected", "strategy", "simple_table", "table", table)
		plan = &Plan{
			BaseQuery:     BaseQuery{Strategy: BaseSimpleTable, Table: table},
			MainQualifier: table,
			IDColumn:      idColumn,
			joinByAlias:   map[*Alias]*JoinSpec{},
		}
	default:
		if primary := aliases.DeterminePrimaryAlias(root, stats, catalog); primary != nil {
			logger.Trace("base-query strategy selected", "strategy", "alias_promotion", "table", primary.condition.Table, "alias", primary.Name)
			bq := BaseQuery{Strategy: BaseAliasPromotion, Table: primary.condition.Table, PromotedAlias: primary}
			plan = planAroundBaseTable(primary.condition.Table, bq, root, stats, catalog, aliases, idColumn, logger)
			break
		}
		if !directives.has(DisableUnion) {
			combo, err := aliases.DetermineBaseQueryCombination(root, combinationCap)
			if err != nil {
				return nil, err
			}
			if combo != nil {
				logger.Trace("base-query strategy selected", "strategy", "alias_union", "members", len(combo))
				bq := BaseQuery{Strategy: BaseAliasUnion, UnionAliases: combo}
				plan = planAroundUnionBase(bq, root, stats, catalog, aliases, idColumn, logger)
				break
			}
		}
		if all := catalog.TablesWithAllIDs(); len(all) > 0 {
			logger.Trace("base-query strategy selected", "strategy", "auxiliary_all_ids", "table", all[0].Name)
			bq := BaseQuery{Strategy: BaseAuxiliaryAllIDs, Table: all[0].Name}
			plan = planAroundBaseTable(all[0].Name, bq, root, stats, catalog, aliases, idColumn, logger)
			break
		}
		if len(catalog.AllTables()) > 1 && !directives.has(DisableUnion) {
			var names []string
			for _, t := range catalog.AllTables() {
				names = append(names, t.Name)
			}
			logger.Trace("base-query strategy selected", "strategy", "universe_union", "tables", len(names))
			bq := BaseQuery{Strategy: BaseUniverseUnion, UnionTables: names}
			plan = planAroundUnionBase(bq, root, stats, catalog, aliases, idColumn, logger)
			break
		}
		return nil, newConversionError(op, CodeMappingFailed, root.String(), ErrMappingFailed)
	}

	attachRefPartners(plan, aliases, stats, catalog, logger)
	return plan, nil
}

// attachRefPartners ensures every dual-table reference match's right-hand
// table is reachable in the FROM/JOIN graph (spec §4.4): if it is not
// already the base table or some other alias's join target, it is joined
// in purely to make its column available for the comparison.
func attachRefPartners(p *Plan, aliases *AliasRegistry, stats *Stats, catalog *Catalog, logger hclog.Logger) {
	p.RefPartners = map[string]string{}
	qualifierForTable := map[string]string{}
	if p.BaseQuery.Table != "" {
		qualifierForTable[p.BaseQuery.Table] = p.MainQualifier
	}
	for _, j := range p.Joins {
		if _, ok := qualifierForTable[j.Table]; !ok {
			qualifierForTable[j.Table] = j.Alias.Name
		}
	}
	seq := 0
	for _, a := range aliases.Ordered() {
		mc := a.condition
		if mc == nil || mc.RefTable == "" || mc.Tag != "dual-table" {
			continue
		}
		if q, ok := qualifierForTable[mc.RefTable]; ok {
			p.RefPartners[mc.RefTable] = q
			continue
		}
		seq++
		name := fmt.Sprintf("r%03d", seq)
		qualifierForTable[mc.RefTable] = name
		p.RefPartners[mc.RefTable] = name
		jt := joinTypeFor(mc.RefTable, stats, catalog, logger)
		logger.Trace("ref-partner join attached", "table", mc.RefTable, "alias", name)
		p.Joins = append(p.Joins, JoinSpec{Alias: &Alias{Name: name}, Table: mc.RefTable, Type: jt})
	}
}

// planAroundBaseTable builds a Plan whose FROM is a single named table
// (a promoted alias, the enforced primary table, or an auxiliary all-ids
// table): every other registered alias becomes a join; an alias whose
// table is the base table and needs no existence check is answered
// directly against the base row instead (no join emitted for it at all).
func planAroundBaseTable(baseTable string, bq BaseQuery, root Expression, stats *Stats, catalog *Catalog, aliases *AliasRegistry, idColumn string, logger hclog.Logger) *Plan {
	p := &Plan{BaseQuery: bq, MainQualifier: baseTable, IDColumn: idColumn, joinByAlias: map[*Alias]*JoinSpec{}}
	for _, a := range aliases.Ordered() {
		if bq.PromotedAlias == a {
			continue // folded directly into the base query's own WHERE
		}
		ec := needsExistenceCheck(a, stats, catalog)
		if !ec && a.condition != nil && a.condition.Table == baseTable {
			logger.Trace("alias answered inline", "alias", a.Name, "table", a.condition.Table)
			continue // inline against the base row, no join needed
		}
		jt := joinTypeFor(a.condition.Table, stats, catalog, logger)
		if ec {
			jt = LeftOuterJoin
		}
		logger.Trace("alias answered via join", "alias", a.Name, "table", a.condition.Table, "existence_check", ec, "type", jt.String())
		js := JoinSpec{Alias: a, Table: a.condition.Table, Type: jt, ExistenceCheck: ec}
		p.Joins = append(p.Joins, js)
		p.joinByAlias[a] = &p.Joins[len(p.Joins)-1]
	}
	return p
}

// planAroundUnionBase builds a Plan whose FROM is a synthesized id
// universe (a union of aliases or of every table's id column): nothing can
// be answered inline against that universe, so every registered alias
// becomes a join.
func planAroundUnionBase(bq BaseQuery, root Expression, stats *Stats, catalog *Catalog, aliases *AliasRegistry, idColumn string, logger hclog.Logger) *Plan {
	p := &Plan{BaseQuery: bq, MainQualifier: unionQualifier(bq), IDColumn: idColumn, joinByAlias: map[*Alias]*JoinSpec{}}
	for _, a := range aliases.Ordered() {
		ec := needsExistenceCheck(a, stats, catalog)
		jt := joinTypeFor(a.condition.Table, stats, catalog, logger)
		if ec {
			jt = LeftOuterJoin
		}
		logger.Trace("alias answered via join", "alias", a.Name, "table", a.condition.Table, "existence_check", ec, "type", jt.String())
		js := JoinSpec{Alias: a, Table: a.condition.Table, Type: jt, ExistenceCheck: ec}
		p.Joins = append(p.Joins, js)
		p.joinByAlias[a] = &p.Joins[len(p.Joins)-1]
	}
	return p
}

func unionQualifier(bq BaseQuery) string {
	switch bq.Strategy {
	case BaseAliasUnion:
		return "base"
	case BaseUniverseUnion:
		return "universe"
	default:
		return fmt.Sprintf("base_%d", len(bq.UnionTables)+len(bq.UnionAliases))
	}
}
