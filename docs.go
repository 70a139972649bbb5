/*
Package audlangsql compiles a boolean audience-expression tree - built from
argument comparisons combined with AND/OR/NOT - into a parameterized SQL
SELECT statement against a landscape of one or more tables, without requiring
the caller to hand-write joins, unions or existence checks.

A Catalog declares the tables available and how arguments map onto their
columns (explicit mappings or auto-mapping policies, plus any disambiguating
filter columns). A Converter wraps one Catalog and compiles Expression trees
against it:

	cat, err := audlangsql.NewCatalog(usersTable, flagsTable)
	conv, err := audlangsql.New(cat)
	result, err := conv.Convert(expr, nil)
	// result.SQL is a template containing ${p1}, ${p2}, ... placeholders;
	// result.Params lists each referenced parameter once, in the order of
	// its first appearance in result.SQL.

Expressions are built directly as Match/Negation/And/Or values (see expr.go),
or parsed from the literal pseudo-expression notation used by tests and
fixtures via internal/exprtext.

The compiler picks a FROM/JOIN shape automatically: a single table when the
whole expression resolves against one, a promoted alias or a UNION of
aliases when several tables are involved, existence-check LEFT JOINs for
negated or IS UNKNOWN conditions, and IN/NOT IN folding for same-argument
OR/AND groups. See Option for the directives (disabling CONTAINS, reference
matching, date alignment, unions, ...) and AugmentationHook for pluggable
emission callbacks.
*/
package audlangsql
