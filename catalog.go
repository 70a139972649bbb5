// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

import (
	"fmt"
	"sort"
)

// FilterColumn is a secondary column that must be restricted alongside a
// DataColumn or a whole TableMeta to disambiguate a row (spec §3).
// ValueTemplate may be a literal or contain ${var}/${argName}/${argName.local}
// placeholders resolved at condition-build time (spec §6).
type FilterColumn struct {
	Table         string
	Name          string
	SqlType       SqlType
	ValueTemplate string
}

// DataColumn is the physical column an argument is ultimately bound to.
type DataColumn struct {
	Table       string
	Name        string
	SqlType     SqlType
	AlwaysKnown bool
	MultiRow    bool
	Filters     []FilterColumn
}

// ArgMeta is the abstract, argument-side metadata (spec §3). AlwaysKnown and
// IsCollection are the argument's own declaration; the column's values, when
// present, override them (spec §3: "column overrides arg").
type ArgMeta struct {
	Name         string
	Type         ArgType
	AlwaysKnown  bool
	IsCollection bool
}

// TableMeta describes one configured table in the landscape.
type TableMeta struct {
	Name         string
	IDColumn     string
	Nature       Nature
	TableFilters []FilterColumn

	policies []AutoMapPolicy
}

// AutoMapPolicy probes an argument name for an implicit column assignment
// when no explicit mapping exists (spec §4.1). Extractor returns the local
// name portion (e.g. the key of a key-value row) and whether it applies at
// all to this argument.
type AutoMapPolicy struct {
	Extractor func(argName string) (local string, ok bool)
	Column    string
	SqlType   SqlType
	ArgType   ArgType
	AlwaysKnown bool
	MultiRow    bool
}

// Assignment is the resolved arg -> column -> table binding.
type Assignment struct {
	Arg    ArgMeta
	Column DataColumn
	Table  *TableMeta
}

// effectiveAlwaysKnown implements spec §3's "column overrides arg" rule.
func (a Assignment) effectiveAlwaysKnown() bool { return a.Arg.AlwaysKnown || a.Column.AlwaysKnown }

// Catalog is the immutable mapping configuration (spec §4.1). It is built
// once and then safe to share across concurrently running Converters
// (spec §5).
type Catalog struct {
	tables      map[string]*TableMeta
	primary     *TableMeta
	assignments map[string]*Assignment
}

// NewCatalog validates and freezes a table landscape. All configuration
// errors (spec §7.1) are fatal here; no partial catalog is ever returned.
func NewCatalog(tables ...*TableMeta) (*Catalog, error) {
	const op = "audlangsql.NewCatalog"
	c := &Catalog{
		tables:      make(map[string]*TableMeta, len(tables)),
		assignments: make(map[string]*Assignment),
	}
	for _, t := range tables {
		if t == nil {
			return nil, newConversionError(op, "", "", fmt.Errorf("%w: nil table", ErrInvalidParameter))
		}
		if err := t.Nature.Validate(); err != nil {
			return nil, newConversionError(op, "", t.Name, err)
		}
		if _, exists := c.tables[t.Name]; exists {
			return nil, newConversionError(op, "", t.Name, fmt.Errorf("%w: table %q registered twice", ErrInvalidParameter, t.Name))
		}
		if t.Nature.IsPrimary {
			if c.primary != nil {
				return nil, newConversionError(op, "", t.Name, ErrDuplicatePrimaryTable)
			}
			c.primary = t
		}
		c.tables[t.Name] = t
	}
	return c, nil
}

// TableByName returns a configured table or ErrUnknownTable.
func (c *Catalog) TableByName(name string) (*TableMeta, error) {
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	return nil, newConversionError("audlangsql.Catalog.TableByName", "", name, ErrUnknownTable)
}

// PrimaryTable returns the configured primary table, or nil if none.
func (c *Catalog) PrimaryTable() *TableMeta { return c.primary }

// TablesWithAllIDs returns every configured table whose nature declares
// ContainsAllIDs, sorted alphabetically by name for deterministic output
// (spec §5, §9's "sort alphabetically even though the source is incidentally
// deterministic").
func (c *Catalog) TablesWithAllIDs() []*TableMeta {
	var out []*TableMeta
	for _, t := range c.tables {
		if t.Nature.ContainsAllIDs {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllTables returns every configured table, sorted alphabetically by name.
func (c *Catalog) AllTables() []*TableMeta {
	out := make([]*TableMeta, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MapArgument registers an explicit arg -> column mapping. Explicit mappings
// always win over auto-mapping (spec §4.1). A column may only receive
// multiple arguments if disambiguated by filter columns (invariant 1); that
// disambiguation is the caller's responsibility via distinct FilterColumns
// per DataColumn.
func (c *Catalog) MapArgument(arg ArgMeta, column DataColumn) error {
	const op = "audlangsql.Catalog.MapArgument"
	if arg.Name == "" {
		return newConversionError(op, "", "", fmt.Errorf("%w: empty argument name", ErrInvalidParameter))
	}
	if _, exists := c.assignments[arg.Name]; exists {
		return newConversionError(op, "", arg.Name, ErrDuplicateMapping)
	}
	table, err := c.TableByName(column.Table)
	if err != nil {
		return err
	}
	if err := validateFilterColumns(column.Name, table.IDColumn, column.Filters); err != nil {
		return newConversionError(op, "", arg.Name, err)
	}
	if column.AlwaysKnown && !table.Nature.ContainsAllIDs {
		return newConversionError(op, "", arg.Name, fmt.Errorf("%w: always_known column %q requires contains_all_ids table %q", ErrInvalidNature, column.Name, table.Name))
	}
	if table.Nature.IDUnique && column.MultiRow {
		return newConversionError(op, "", arg.Name, fmt.Errorf("%w: table %q is id_unique, column %q cannot be multi_row", ErrInvalidNature, table.Name, column.Name))
	}
	c.assignments[arg.Name] = &Assignment{Arg: arg, Column: column, Table: table}
	return nil
}

// AddAutoMapPolicy registers an ordered auto-mapping policy for a table
// (spec §4.1). Policies are probed, in registration order, only when an
// argument has no explicit mapping.
func (c *Catalog) AddAutoMapPolicy(tableName string, policy AutoMapPolicy) error {
	table, err := c.TableByName(tableName)
	if err != nil {
		return err
	}
	table.policies = append(table.policies, policy)
	return nil
}

func validateFilterColumns(dataColumn, idColumn string, filters []FilterColumn) error {
	for _, f := range filters {
		if f.Name == idColumn {
			return fmt.Errorf("%w: filter column %q equals id column", ErrFilterColumnCollision, f.Name)
		}
		if f.Name == dataColumn {
			return fmt.Errorf("%w: filter column %q equals data column", ErrFilterColumnCollision, f.Name)
		}
	}
	return nil
}

// Lookup resolves an argument to its assignment (spec §4.1). It probes
// explicit mappings first, then the configured tables in alphabetical order,
// each table's auto-mapping policies in registration order. vars receives argName/argName.local as a
// side effect of a matching policy, exactly as spec §4.1 describes; vars is
// the per-conversion variable map (spec §5), never the catalog's own state.
func (c *Catalog) Lookup(vars map[string]string, argName string) (*Assignment, error) {
	if a, ok := c.assignments[argName]; ok {
		return a, nil
	}
	for _, t := range c.AllTables() {
		for _, p := range t.policies {
			local, ok := p.Extractor(argName)
			if !ok || local == "" {
				continue // inapplicable policy: skip (spec §7, class 4, recoverable)
			}
			if vars != nil {
				vars[argName+".local"] = local
				vars[argName] = argName
			}
			assign := &Assignment{
				Arg:    ArgMeta{Name: argName, Type: p.ArgType, AlwaysKnown: p.AlwaysKnown},
				Column: DataColumn{Table: t.Name, Name: p.Column, SqlType: p.SqlType, AlwaysKnown: p.AlwaysKnown, MultiRow: p.MultiRow},
				Table:  t,
			}
			return assign, nil
		}
	}
	return nil, newConversionError("audlangsql.Catalog.Lookup", "", argName, ErrUnmappedArgument)
}
