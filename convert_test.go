// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sql "github.com/KarlEilebrecht/audlang-go-sql"
)

func testCatalog(t *testing.T) *sql.Catalog {
	t.Helper()
	users := &sql.TableMeta{
		Name:     "users",
		IDColumn: "ID",
		Nature:   sql.Nature{IsPrimary: true, ContainsAllIDs: true, IDUnique: true},
	}
	flags := &sql.TableMeta{
		Name:     "flags",
		IDColumn: "user_id",
		Nature:   sql.Nature{IDUnique: true},
	}
	cat, err := sql.NewCatalog(users, flags)
	require.NoError(t, err)

	require.NoError(t, cat.MapArgument(
		sql.ArgMeta{Name: "name", Type: sql.StringType},
		sql.DataColumn{Table: "users", Name: "name", SqlType: sql.SqlVarchar},
	))
	require.NoError(t, cat.MapArgument(
		sql.ArgMeta{Name: "age", Type: sql.IntegerType},
		sql.DataColumn{Table: "users", Name: "age", SqlType: sql.SqlInt},
	))
	require.NoError(t, cat.MapArgument(
		sql.ArgMeta{Name: "premium", Type: sql.BoolType},
		sql.DataColumn{Table: "flags", Name: "premium", SqlType: sql.SqlBool},
	))
	return cat
}

func Test_Convert_simpleCondition(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat)
	require.NoError(t, err)

	expr := &sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("alice")}
	got, err := conv.Convert(expr, nil)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DISTINCT users.ID\nFROM users\nWHERE users.name = ${p1}\nORDER BY users.ID",
		got.SQL,
	)
	require.Len(t, got.Params, 1)
	assert.Equal(t, "alice", got.Params[0].Value)
	assert.Equal(t, sql.SqlVarchar, got.Params[0].SqlType)
}

func Test_Convert_andAcrossTablesJoins(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat)
	require.NoError(t, err)

	expr := &sql.And{Members: []sql.Expression{
		&sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("alice")},
		&sql.Match{Arg: "premium", Op: sql.EQ, Operand: sql.Lit("true")},
	}}
	got, err := conv.Convert(expr, nil)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "FROM users")
	assert.Contains(t, got.SQL, "JOIN flags")
	require.Len(t, got.Params, 2)
}

func Test_Convert_inCandidateFoldsToInCondition(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat)
	require.NoError(t, err)

	expr := &sql.Or{Members: []sql.Expression{
		&sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("alice")},
		&sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("bob")},
		&sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("eve")},
	}}
	got, err := conv.Convert(expr, nil)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "IN (${p1}, ${p2}, ${p3})")
}

func Test_Convert_singleMemberOrDowngradesToEquality(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat)
	require.NoError(t, err)

	expr := &sql.Or{Members: []sql.Expression{
		&sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("alice")},
	}}
	got, err := conv.Convert(expr, nil)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "users.name = ${p1}")
	assert.NotContains(t, got.SQL, "IN (")
}

func Test_Convert_tautologyAndContradictionRejected(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat)
	require.NoError(t, err)

	m := &sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("alice")}

	_, err = conv.Convert(&sql.And{Members: []sql.Expression{m, &sql.Negation{Inner: m}}}, nil)
	require.ErrorIs(t, err, sql.ErrAlwaysFalse)

	_, err = conv.Convert(&sql.Or{Members: []sql.Expression{m, &sql.Negation{Inner: m}}}, nil)
	require.ErrorIs(t, err, sql.ErrAlwaysTrue)
}

func Test_Convert_unmappedArgument(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat)
	require.NoError(t, err)

	expr := &sql.Match{Arg: "nope", Op: sql.EQ, Operand: sql.Lit("x")}
	_, err = conv.Convert(expr, nil)
	require.ErrorIs(t, err, sql.ErrUnmappedArgument)
}

func Test_Convert_disableLessThanGreaterThan(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat, sql.WithDisableLessThanGreaterThan())
	require.NoError(t, err)

	expr := &sql.Match{Arg: "age", Op: sql.GT, Operand: sql.Lit("21")}
	_, err = conv.Convert(expr, nil)
	require.ErrorIs(t, err, sql.ErrFeatureDisabled)
}

// Test_Convert_sparseTableMultiRowSensitiveAnd is spec.md §8 scenario S2:
// two positive matches against the same sparse/EAV table, conjoined with
// AND. Since a sparse table's rows are not id-unique, the two matches can
// never both hold of the same physical row; each must be answered through
// its own joined instance of the table rather than inlined directly against
// whichever one gets promoted to the base query. Failing to do so conjoins
// both conditions onto one row and always produces a contradiction.
func Test_Convert_sparseTableMultiRowSensitiveAnd(t *testing.T) {
	users := &sql.TableMeta{
		Name:     "users",
		IDColumn: "ID",
		Nature:   sql.Nature{IsPrimary: true, ContainsAllIDs: true, IDUnique: true},
	}
	facts := &sql.TableMeta{
		Name:     "facts",
		IDColumn: "entity_id",
		Nature:   sql.Nature{IsSparse: true},
	}
	cat, err := sql.NewCatalog(users, facts)
	require.NoError(t, err)
	require.NoError(t, cat.MapArgument(
		sql.ArgMeta{Name: "hasCat", Type: sql.BoolType},
		sql.DataColumn{
			Table: "facts", Name: "value", SqlType: sql.SqlBool,
			Filters: []sql.FilterColumn{{Table: "facts", Name: "key", SqlType: sql.SqlVarchar, ValueTemplate: "hasCat"}},
		},
	))
	require.NoError(t, cat.MapArgument(
		sql.ArgMeta{Name: "hasBird", Type: sql.BoolType},
		sql.DataColumn{
			Table: "facts", Name: "value", SqlType: sql.SqlBool,
			Filters: []sql.FilterColumn{{Table: "facts", Name: "key", SqlType: sql.SqlVarchar, ValueTemplate: "hasBird"}},
		},
	))

	conv, err := sql.New(cat)
	require.NoError(t, err)

	expr := &sql.And{Members: []sql.Expression{
		&sql.Match{Arg: "hasCat", Op: sql.EQ, Operand: sql.Lit("true")},
		&sql.Match{Arg: "hasBird", Op: sql.EQ, Operand: sql.Lit("true")},
	}}
	got, err := conv.Convert(expr, nil)
	require.NoError(t, err)

	// One of the two matches is promoted into the base query; the other
	// must get its own LEFT OUTER JOIN against a second instance of facts,
	// probed via an IS NOT NULL existence check - never inlined as a second
	// bare "facts.value = ... AND facts.key = ..." conjunct against the same
	// unaliased table reference as the first.
	assert.Contains(t, got.SQL, "FROM facts")
	assert.Contains(t, got.SQL, "LEFT OUTER JOIN facts AS")
	assert.Contains(t, got.SQL, "IS NOT NULL")
	require.Len(t, got.Params, 4)
}

func Test_Convert_countQueryKind(t *testing.T) {
	cat := testCatalog(t)
	conv, err := sql.New(cat, sql.WithQueryKind(sql.SelectDistinctCount))
	require.NoError(t, err)

	expr := &sql.Match{Arg: "name", Op: sql.EQ, Operand: sql.Lit("alice")}
	got, err := conv.Convert(expr, nil)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "SELECT COUNT(DISTINCT users.ID)")
	assert.NotContains(t, got.SQL, "ORDER BY")
}
