// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sqltest_test

import (
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	audlangsql "github.com/KarlEilebrecht/audlang-go-sql"
	"github.com/KarlEilebrecht/audlang-go-sql/internal/sqltest"
)

func Test_ToPositional(t *testing.T) {
	result := &audlangsql.Result{
		SQL: "SELECT DISTINCT users.ID\nFROM users\nWHERE users.name = ${p1} AND users.age > ${p2}\nORDER BY users.ID",
		Params: []audlangsql.Parameter{
			{ID: "p1", Value: "alice", SqlType: audlangsql.SqlVarchar},
			{ID: "p2", Value: "21", SqlType: audlangsql.SqlInt},
		},
	}

	stmt, args, err := sqltest.ToPositional(result)
	require.NoError(t, err)
	require.Equal(t, []any{"alice", "21"}, args)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(stmt)).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}).AddRow(1))

	rows, err := db.Query(stmt, args...)
	require.NoError(t, err)
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []int{1}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_ToPositional_unknownPlaceholder(t *testing.T) {
	result := &audlangsql.Result{SQL: "WHERE x = ${missing}"}
	_, _, err := sqltest.ToPositional(result)
	require.Error(t, err)
}
