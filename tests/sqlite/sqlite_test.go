// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sqlite_test

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	audlangsql "github.com/KarlEilebrecht/audlang-go-sql"
)

type user struct {
	ID   uint
	Name string
	Age  int
}

type flag struct {
	UserID  uint
	Premium bool
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&user{}, &flag{}))
	require.NoError(t, db.Create(&user{ID: 1, Name: "alice", Age: 30}).Error)
	require.NoError(t, db.Create(&user{ID: 2, Name: "bob", Age: 17}).Error)
	require.NoError(t, db.Create(&user{ID: 3, Name: "eve", Age: 40}).Error)
	require.NoError(t, db.Create(&flag{UserID: 1, Premium: true}).Error)
	require.NoError(t, db.Create(&flag{UserID: 3, Premium: false}).Error)
	return db
}

func testCatalog(t *testing.T) *audlangsql.Catalog {
	t.Helper()
	users := &audlangsql.TableMeta{
		Name: "users", IDColumn: "id",
		Nature: audlangsql.Nature{IsPrimary: true, ContainsAllIDs: true, IDUnique: true},
	}
	flags := &audlangsql.TableMeta{
		Name: "flags", IDColumn: "user_id",
		Nature: audlangsql.Nature{IDUnique: true},
	}
	cat, err := audlangsql.NewCatalog(users, flags)
	require.NoError(t, err)
	require.NoError(t, cat.MapArgument(
		audlangsql.ArgMeta{Name: "name", Type: audlangsql.StringType},
		audlangsql.DataColumn{Table: "users", Name: "name", SqlType: audlangsql.SqlVarchar},
	))
	require.NoError(t, cat.MapArgument(
		audlangsql.ArgMeta{Name: "age", Type: audlangsql.IntegerType},
		audlangsql.DataColumn{Table: "users", Name: "age", SqlType: audlangsql.SqlInt},
	))
	require.NoError(t, cat.MapArgument(
		audlangsql.ArgMeta{Name: "premium", Type: audlangsql.BoolType},
		audlangsql.DataColumn{Table: "flags", Name: "premium", SqlType: audlangsql.SqlBool},
	))
	return cat
}

var placeholderRE = regexp.MustCompile(`\$\{(\w+)\}`)

// toPositional mirrors audlangsql's own internal/sqltest helper: it rewrites
// "${pN}" template placeholders into "?" and returns the matching args, in
// occurrence order, for execution against a real driver. Unlike that helper,
// it binds SqlBool parameters as Go bools, so they compare equal to the 0/1
// values SQLite stores for boolean columns.
func toPositional(t *testing.T, result *audlangsql.Result) (string, []any) {
	t.Helper()
	byID := make(map[string]audlangsql.Parameter, len(result.Params))
	for _, p := range result.Params {
		byID[p.ID] = p
	}
	var args []any
	out := placeholderRE.ReplaceAllStringFunc(result.SQL, func(m string) string {
		id := placeholderRE.FindStringSubmatch(m)[1]
		p, ok := byID[id]
		require.True(t, ok, "no parameter for placeholder %q", m)
		if p.SqlType == audlangsql.SqlBool {
			b, err := strconv.ParseBool(p.Value)
			require.NoError(t, err)
			args = append(args, b)
			return "?"
		}
		args = append(args, p.Value)
		return "?"
	})
	return out, args
}

func Test_endToEnd_simpleCondition(t *testing.T) {
	db := setupDB(t)
	conv, err := audlangsql.New(testCatalog(t), audlangsql.WithIdColumnName("id"))
	require.NoError(t, err)

	expr := &audlangsql.Match{Arg: "age", Op: audlangsql.GT, Operand: audlangsql.Lit("18")}
	result, err := conv.Convert(expr, nil)
	require.NoError(t, err)

	stmt, args := toPositional(t, result)
	var ids []uint
	require.NoError(t, db.Raw(stmt, args...).Scan(&ids).Error)
	require.ElementsMatch(t, []uint{1, 3}, ids)
}

func Test_endToEnd_joinAcrossTables(t *testing.T) {
	db := setupDB(t)
	conv, err := audlangsql.New(testCatalog(t), audlangsql.WithIdColumnName("id"))
	require.NoError(t, err)

	expr := &audlangsql.And{Members: []audlangsql.Expression{
		&audlangsql.Match{Arg: "age", Op: audlangsql.GT, Operand: audlangsql.Lit("18")},
		&audlangsql.Match{Arg: "premium", Op: audlangsql.EQ, Operand: audlangsql.Lit("true")},
	}}
	result, err := conv.Convert(expr, nil)
	require.NoError(t, err)

	stmt, args := toPositional(t, result)
	var ids []uint
	require.NoError(t, db.Raw(stmt, args...).Scan(&ids).Error)
	require.ElementsMatch(t, []uint{1}, ids)
}

func Test_endToEnd_negationUsesExistenceCheck(t *testing.T) {
	db := setupDB(t)
	conv, err := audlangsql.New(testCatalog(t), audlangsql.WithIdColumnName("id"))
	require.NoError(t, err)

	expr := &audlangsql.And{Members: []audlangsql.Expression{
		&audlangsql.Match{Arg: "age", Op: audlangsql.GT, Operand: audlangsql.Lit("18")},
		&audlangsql.Negation{Inner: &audlangsql.Match{Arg: "premium", Op: audlangsql.EQ, Operand: audlangsql.Lit("true")}},
	}}
	result, err := conv.Convert(expr, nil)
	require.NoError(t, err)

	stmt, args := toPositional(t, result)
	var ids []uint
	require.NoError(t, db.Raw(stmt, args...).Scan(&ids).Error)
	// eve (3) is 40 and has a premium=false row; alice (1) is excluded by the
	// negative reference to premium=true.
	require.ElementsMatch(t, []uint{3}, ids)
}
