// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"fmt"
	"strings"
	"time"
)

// ConditionKind is the shape a ColumnCondition renders as (spec §3).
type ConditionKind int

const (
	SingleCondition ConditionKind = iota
	InCondition
	FilterLCondition
	FilterRCondition
	AfterTodayCondition
	DateRangeCondition
	ReferenceCondition
)

// Parameter is a single bound value, uniquely identified by ID and
// referenced by name in the emitted template (spec §3, §6).
type Parameter struct {
	ID      string
	ArgMeta ArgMeta
	Value   string
	SqlType SqlType
}

func (p Parameter) placeholder() string { return "${" + p.ID + "}" }

// ColumnCondition is one renderable SQL predicate fragment against a single
// physical column (spec §3). Render never bakes in a table alias: the
// planner/emitter decide the qualifier once join shape is final.
type ColumnCondition struct {
	Kind    ConditionKind
	Negated bool
	Op      Op
	Column  DataColumn
	Params  []Parameter
}

// Render produces the SQL fragment for this condition against qualifier
// (an alias or table name), applying any registered native type caster.
func (c ColumnCondition) Render(qualifier string, caster NativeTypeCaster, containsPolicy ContainsPolicy) string {
	colExpr := qualifier + "." + c.Column.Name
	if caster != nil {
		colExpr = caster(qualifier, c.Column)
	}
	switch c.Kind {
	case InCondition:
		ph := make([]string, len(c.Params))
		for i, p := range c.Params {
			ph[i] = p.placeholder()
		}
		verb := "IN"
		if c.Negated {
			verb = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", colExpr, verb, strings.Join(ph, ", "))
	case DateRangeCondition:
		return fmt.Sprintf("(%s >= %s AND %s < %s)", colExpr, c.Params[0].placeholder(), colExpr, c.Params[1].placeholder())
	case AfterTodayCondition:
		return fmt.Sprintf("%s >= %s", colExpr, c.Params[0].placeholder())
	case FilterLCondition, FilterRCondition:
		return fmt.Sprintf("%s = %s", colExpr, c.Params[0].placeholder())
	case ReferenceCondition:
		// A reference condition carries no parameters; the fragment instead
		// compares two columns, so Render's second form (RenderReference) is used.
		return colExpr
	default: // SingleCondition
		switch c.Op {
		case IS_UNKNOWN:
			return colExpr + " IS NULL"
		case CONTAINS:
			return containsPolicy.Fragment(colExpr, c.Params[0].placeholder())
		default:
			verb := sqlOpText(c.Op)
			if c.Negated {
				verb = negateOpText(c.Op)
			}
			return fmt.Sprintf("%s %s %s", colExpr, verb, c.Params[0].placeholder())
		}
	}
}

// RenderReference renders a dual-column reference-match condition
// (spec §4.4's "Reference match"), applying the caster to both sides.
func (c ColumnCondition) RenderReference(leftQualifier, rightQualifier string, rightColumn DataColumn, caster NativeTypeCaster) string {
	left := leftQualifier + "." + c.Column.Name
	right := rightQualifier + "." + rightColumn.Name
	if caster != nil {
		left = caster(leftQualifier, c.Column)
		right = caster(rightQualifier, rightColumn)
	}
	return fmt.Sprintf("%s %s %s", left, sqlOpText(c.Op), right)
}

func sqlOpText(o Op) string {
	switch o {
	case EQ:
		return "="
	case LT:
		return "<"
	case GT:
		return ">"
	default:
		return "="
	}
}

func negateOpText(o Op) string {
	switch o {
	case EQ:
		return "<>"
	case LT:
		return ">="
	case GT:
		return "<="
	default:
		return "<>"
	}
}

// MatchCondition is the full condition for one alias/leaf: its main
// predicate plus any materialized filter-column restrictions (spec §4.4).
type MatchCondition struct {
	Main      ColumnCondition
	Filters   []ColumnCondition
	Table     string
	RefTable  string // set only for reference matches
	RefColumn DataColumn
	Tag       string // "", "single-table", "single-table-multi-row", "dual-table"
}

// AllParams returns every parameter this condition binds, main plus filters.
func (mc *MatchCondition) AllParams() []Parameter {
	out := append([]Parameter{}, mc.Main.Params...)
	for _, f := range mc.Filters {
		out = append(out, f.Params...)
	}
	return out
}

// NativeTypeCaster overrides a column's effective comparison expression,
// e.g. CAST(col AS INT) (spec §4.4).
type NativeTypeCaster func(qualifier string, column DataColumn) string

// ContainsPolicy controls CONTAINS rendering (spec §4.4): Prepare sanitizes
// the user-supplied search snippet (teacher mql does no such sanitization
// since it has no contains-policy concept; this generalizes the idea to the
// spec's pluggable policy), Fragment renders the final SQL text.
type ContainsPolicy interface {
	Prepare(snippet string) string
	Fragment(colExpr, placeholder string) string
}

type defaultContainsPolicy struct{}

func (defaultContainsPolicy) Prepare(snippet string) string {
	r := strings.NewReplacer("%", "", "_", "")
	return r.Replace(snippet)
}

func (defaultContainsPolicy) Fragment(colExpr, placeholder string) string {
	return fmt.Sprintf("%s LIKE %s", colExpr, placeholder)
}

// typeCompatible implements spec §4.4's default compatibility matrix.
func typeCompatible(argType ArgType, sqlType SqlType) bool {
	switch argType {
	case StringType:
		return true // any column can be compared as a string when it parses
	case IntegerType:
		return sqlType == SqlInt || sqlType == SqlBigint || sqlType == SqlDecimal || sqlType == SqlVarchar
	case DecimalType:
		return sqlType == SqlDecimal || sqlType == SqlInt || sqlType == SqlBigint || sqlType == SqlVarchar
	case BoolType:
		return sqlType == SqlBool || sqlType == SqlBit || sqlType == SqlInt || sqlType == SqlVarchar
	case DateType:
		return sqlType == SqlDate || sqlType == SqlTimestamp || sqlType == SqlInt || sqlType == SqlBigint
	default:
		return false
	}
}

// needsDateAlignment reports whether arg type DATE against a finer-grained
// sql type should be rewritten into a range/after-today comparison
// (spec §4.4).
func needsDateAlignment(argType ArgType, sqlType SqlType, directives Directive) bool {
	if argType != DateType || directives.has(DisableDateTimeAlignment) {
		return false
	}
	return sqlType == SqlTimestamp || sqlType == SqlInt || sqlType == SqlBigint
}

// ConditionBuilder is C4: it turns normalized leaves into MatchConditions,
// applying type coalescence, date alignment, contains policy, reference
// matching and filter-column materialization (spec §4.4). One instance is
// owned per conversion (spec §5); it is not safe for concurrent use.
type ConditionBuilder struct {
	catalog        *Catalog
	vars           map[string]string
	directives     Directive
	paramSeq       int
	containsPolicy ContainsPolicy

	cache map[Expression]*MatchCondition
}

// newConditionBuilder constructs a ConditionBuilder. Column-level native
// type casters are applied later, by the emitter, since Render is never
// called from within the condition builder itself (spec §4.4, §4.6).
func newConditionBuilder(catalog *Catalog, vars map[string]string, directives Directive, containsPolicy ContainsPolicy) *ConditionBuilder {
	if containsPolicy == nil {
		containsPolicy = defaultContainsPolicy{}
	}
	return &ConditionBuilder{
		catalog:        catalog,
		vars:           vars,
		directives:     directives,
		containsPolicy: containsPolicy,
		cache:          map[Expression]*MatchCondition{},
	}
}

func (b *ConditionBuilder) nextParam(arg ArgMeta, value string, sqlType SqlType) Parameter {
	b.paramSeq++
	return Parameter{ID: fmt.Sprintf("p%d", b.paramSeq), ArgMeta: arg, Value: value, SqlType: sqlType}
}

// Build compiles leaf (a *Match, *Negation, an IN-candidate *Or, or a
// NOT-IN-candidate *And) into a MatchCondition, memoized by node identity
// (spec §4.4: "Conditions are memoized by their source expression node so
// identical sub-expressions reuse parameters").
func (b *ConditionBuilder) Build(leaf Expression) (*MatchCondition, error) {
	if mc, ok := b.cache[leaf]; ok {
		return mc, nil
	}
	mc, err := b.build(leaf)
	if err != nil {
		return nil, err
	}
	b.cache[leaf] = mc
	return mc, nil
}

func (b *ConditionBuilder) build(leaf Expression) (*MatchCondition, error) {
	const op = "audlangsql.ConditionBuilder.Build"

	if or, ok := leaf.(*Or); ok {
		if arg, matches, ok := asINCandidate(or); ok {
			return b.buildIN(arg, matches, false)
		}
	}
	if and, ok := leaf.(*And); ok {
		if arg, matches, ok := asNotInCandidate(and); ok {
			return b.buildIN(arg, matches, true)
		}
	}

	negated := false
	m := matchOf(leaf)
	if _, isNeg := leaf.(*Negation); isNeg {
		negated = true
	}
	if m == nil {
		return nil, newConversionError(op, "", leaf.String(), fmt.Errorf("%w: not a leaf condition", ErrInvalidExpression))
	}

	a, err := b.catalog.Lookup(b.vars, m.Arg)
	if err != nil {
		return nil, err
	}

	if m.Operand.IsRef {
		return b.buildReference(m, negated, a)
	}

	if !typeCompatible(a.Arg.Type, a.Column.SqlType) {
		return nil, newConversionError(op, "", m.String(), fmt.Errorf("%w: %s vs %s", ErrTypeIncompatible, a.Arg.Type, a.Column.SqlType))
	}

	switch m.Op {
	case CONTAINS:
		if b.directives.has(DisableContains) {
			return nil, newConversionError(op, string(CodeContainsDisabled), m.String(), fmt.Errorf("%w: CONTAINS", ErrFeatureDisabled))
		}
	case LT, GT:
		if b.directives.has(DisableLessThanGreaterThan) {
			return nil, newConversionError(op, string(CodeLtGtDisabled), m.String(), fmt.Errorf("%w: %s", ErrFeatureDisabled, m.Op))
		}
	}

	main, err := b.buildMainColumnCondition(m, negated, a)
	if err != nil {
		return nil, err
	}
	filters, err := b.buildFilterConditions(m.Arg, a)
	if err != nil {
		return nil, err
	}
	mc := &MatchCondition{Main: *main, Filters: filters, Table: a.Table.Name}
	return mc, nil
}

func (b *ConditionBuilder) buildMainColumnCondition(m *Match, negated bool, a *Assignment) (*ColumnCondition, error) {
	if m.Op == CONTAINS {
		snippet := b.containsPolicy.Prepare(m.Operand.Literal)
		p := b.nextParam(a.Arg, "%"+snippet+"%", a.Column.SqlType)
		return &ColumnCondition{Kind: SingleCondition, Op: CONTAINS, Negated: negated, Column: a.Column, Params: []Parameter{p}}, nil
	}
	if m.Op == IS_UNKNOWN {
		return &ColumnCondition{Kind: SingleCondition, Op: IS_UNKNOWN, Negated: negated, Column: a.Column}, nil
	}
	if needsDateAlignment(a.Arg.Type, a.Column.SqlType, b.directives) {
		return b.buildDateAligned(m, negated, a)
	}
	p := b.nextParam(a.Arg, m.Operand.Literal, a.Column.SqlType)
	return &ColumnCondition{Kind: SingleCondition, Op: m.Op, Negated: negated, Column: a.Column, Params: []Parameter{p}}, nil
}

// buildDateAligned implements spec §4.4's date/time alignment rewrite.
func (b *ConditionBuilder) buildDateAligned(m *Match, negated bool, a *Assignment) (*ColumnCondition, error) {
	day := m.Operand.Literal
	next := nextDay(day)
	switch m.Op {
	case EQ:
		lo := b.nextParam(a.Arg, day+" 00:00:00", a.Column.SqlType)
		hi := b.nextParam(a.Arg, next+" 00:00:00", a.Column.SqlType)
		return &ColumnCondition{Kind: DateRangeCondition, Negated: negated, Column: a.Column, Params: []Parameter{lo, hi}}, nil
	case GT:
		hi := b.nextParam(a.Arg, next+" 00:00:00", a.Column.SqlType)
		return &ColumnCondition{Kind: AfterTodayCondition, Negated: negated, Column: a.Column, Params: []Parameter{hi}}, nil
	case LT:
		lo := b.nextParam(a.Arg, day+" 00:00:00", a.Column.SqlType)
		return &ColumnCondition{Kind: SingleCondition, Op: LT, Negated: negated, Column: a.Column, Params: []Parameter{lo}}, nil
	default:
		p := b.nextParam(a.Arg, day, a.Column.SqlType)
		return &ColumnCondition{Kind: SingleCondition, Op: m.Op, Negated: negated, Column: a.Column, Params: []Parameter{p}}, nil
	}
}

// nextDay increments a "YYYY-MM-DD" literal by one calendar day for the
// range/after-today rewrite (spec §4.4). Malformed literals pass through
// unchanged; the underlying driver will reject them when the statement
// executes, consistent with this package never validating value syntax
// beyond what the compiler itself needs.
func nextDay(ymd string) string {
	t, err := time.Parse("2006-01-02", ymd)
	if err != nil {
		return ymd
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}

func (b *ConditionBuilder) buildIN(arg string, matches []*Match, negatedGroup bool) (*MatchCondition, error) {
	const op = "audlangsql.ConditionBuilder.buildIN"
	a, err := b.catalog.Lookup(b.vars, arg)
	if err != nil {
		return nil, err
	}
	if !typeCompatible(a.Arg.Type, a.Column.SqlType) {
		return nil, newConversionError(op, "", arg, fmt.Errorf("%w: %s vs %s", ErrTypeIncompatible, a.Arg.Type, a.Column.SqlType))
	}
	if len(matches) == 1 {
		// A group of size 1 downgrades to SINGLE (spec §4.4).
		return b.build(singleMemberOf(matches[0], negatedGroup))
	}
	params := make([]Parameter, len(matches))
	for i, m := range matches {
		params[i] = b.nextParam(a.Arg, m.Operand.Literal, a.Column.SqlType)
	}
	main := ColumnCondition{Kind: InCondition, Op: EQ, Negated: negatedGroup, Column: a.Column, Params: params}
	filters, err := b.buildFilterConditions(arg, a)
	if err != nil {
		return nil, err
	}
	return &MatchCondition{Main: main, Filters: filters, Table: a.Table.Name}, nil
}

func singleMemberOf(m *Match, negated bool) Expression {
	if negated {
		return &Negation{Inner: m}
	}
	return m
}

func (b *ConditionBuilder) buildReference(m *Match, negated bool, left *Assignment) (*MatchCondition, error) {
	const op = "audlangsql.ConditionBuilder.buildReference"
	if b.directives.has(DisableReferenceMatching) {
		return nil, newConversionError(op, string(CodeReferenceMatchDisabled), m.String(), fmt.Errorf("%w: reference match", ErrFeatureDisabled))
	}
	right, err := b.catalog.Lookup(b.vars, m.Operand.RefArg)
	if err != nil {
		return nil, err
	}
	leftArgType := left.Arg.Type
	rightArgType := right.Arg.Type
	if leftArgType != rightArgType {
		return nil, newConversionError(op, "", m.String(), fmt.Errorf("%w: reference match requires a common ADL type, got %s vs %s", ErrTypeIncompatible, leftArgType, rightArgType))
	}

	tag := "dual-table"
	switch {
	case left.Table.Name == right.Table.Name && (left.Column.MultiRow || right.Column.MultiRow):
		tag = "single-table-multi-row"
	case left.Table.Name == right.Table.Name:
		tag = "single-table"
	}

	main := ColumnCondition{Kind: ReferenceCondition, Op: m.Op, Negated: negated, Column: left.Column}
	filters, err := b.buildFilterConditions(m.Arg, left)
	if err != nil {
		return nil, err
	}
	return &MatchCondition{
		Main: main, Filters: filters, Table: left.Table.Name,
		RefTable: right.Table.Name, RefColumn: right.Column, Tag: tag,
	}, nil
}

// buildFilterConditions materializes a column's and its table's filter
// columns into FILTER_L/FILTER_R conditions, resolving ${var} templates
// (spec §4.4, §4.1, §6).
func (b *ConditionBuilder) buildFilterConditions(argName string, a *Assignment) ([]ColumnCondition, error) {
	const op = "audlangsql.ConditionBuilder.buildFilterConditions"
	var out []ColumnCondition
	resolve := func(kind ConditionKind, fc FilterColumn) (ColumnCondition, error) {
		value, unresolved, err := resolveTemplate(fc.ValueTemplate, b.vars)
		if err != nil {
			return ColumnCondition{}, err
		}
		if len(unresolved) > 0 {
			return ColumnCondition{}, newConversionError(op, "", argName, fmt.Errorf("%w: %v in filter column %q", ErrUnresolvedVariable, unresolved, fc.Name))
		}
		p := b.nextParam(ArgMeta{Name: argName, Type: StringType}, value, fc.SqlType)
		return ColumnCondition{Kind: kind, Op: EQ, Column: DataColumn{Table: fc.Table, Name: fc.Name, SqlType: fc.SqlType}, Params: []Parameter{p}}, nil
	}
	for _, fc := range a.Column.Filters {
		cc, err := resolve(FilterLCondition, fc)
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	for _, fc := range a.Table.TableFilters {
		cc, err := resolve(FilterRCondition, fc)
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, nil
}
