package dialect

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"ormcore/internal/ormerr"
)

// SQLQuery is a compiled statement ready for the executor.
type SQLQuery struct {
	SQL  string
	Args []any
}

// Eq builds an equality predicate over quoted columns.
func (d *Dialect) Eq(values map[string]any) sq.Sqlizer {
	eq := sq.Eq{}
	for col, val := range values {
		eq[d.Quote(col)] = val
	}
	return eq
}

// In builds a membership predicate over one quoted column.
func (d *Dialect) In(column string, values []any) sq.Sqlizer {
	return sq.Eq{d.Quote(column): values}
}

// InSubquery builds `col IN (<sub>)` from a subquery compiled with
// SelectSub. The subquery keeps question placeholders so the outer
// statement renumbers them consistently on dollar-placeholder backends.
func (d *Dialect) InSubquery(column string, sub SQLQuery) sq.Sqlizer {
	return sq.Expr(d.Quote(column)+" IN ("+sub.SQL+")", sub.Args...)
}

// ArithmeticExpr builds the expression for an incremental update,
// e.g. `viewCount` + ?. op is one of + - * /.
func (d *Dialect) ArithmeticExpr(column, op string, value any) sq.Sqlizer {
	return sq.Expr(d.Quote(column)+" "+op+" ?", value)
}

// ArrayAppendExpr builds the array push expression on backends with
// array columns.
func (d *Dialect) ArrayAppendExpr(column string, value any) (sq.Sqlizer, error) {
	if !d.Caps.SupportsArrays {
		return nil, ormerr.NewNotSupported("dialect %s does not support array push", d.Name)
	}
	return sq.Expr("array_append("+d.Quote(column)+", ?)", value), nil
}

// Insert builds a single-row INSERT. When returning is non-empty and the
// backend supports RETURNING, the statement yields those columns.
func (d *Dialect) Insert(table string, columns []string, values []any, returning []string) (SQLQuery, error) {
	if len(columns) == 0 {
		return d.insertDefaults(table, returning)
	}
	builder := sq.Insert(d.Quote(table)).
		Columns(d.quoteAll(columns)...).
		Values(values...)
	builder = d.withReturning(builder, returning)
	return d.finish(builder.ToSql())
}

// InsertMany builds a multi-row INSERT over a shared column list.
func (d *Dialect) InsertMany(table string, columns []string, rows [][]any, skipDuplicates bool, returning []string) (SQLQuery, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return SQLQuery{}, ormerr.NewInternal("insertMany requires columns and rows")
	}
	builder := sq.Insert(d.Quote(table)).
		Columns(d.quoteAll(columns)...)
	for _, row := range rows {
		builder = builder.Values(row...)
	}
	if skipDuplicates {
		builder = d.withInsertIgnore(builder)
	}
	builder = d.withReturning(builder, returning)
	return d.finish(builder.ToSql())
}

// InsertIgnore builds an INSERT whose duplicate-key failures are
// suppressed using the backend's native mechanism when it has one.
func (d *Dialect) InsertIgnore(table string, columns []string, values []any) (SQLQuery, error) {
	builder := sq.Insert(d.Quote(table)).
		Columns(d.quoteAll(columns)...).
		Values(values...)
	builder = d.withInsertIgnore(builder)
	return d.finish(builder.ToSql())
}

func (d *Dialect) withInsertIgnore(builder sq.InsertBuilder) sq.InsertBuilder {
	switch d.Caps.InsertIgnore {
	case InsertIgnoreModifier:
		return builder.Options("IGNORE")
	case InsertIgnoreOnConflict:
		return builder.Suffix("ON CONFLICT DO NOTHING")
	default:
		return builder
	}
}

// insertDefaults builds an all-defaults insert for backends that support
// it, falling back to the empty column-list form.
func (d *Dialect) insertDefaults(table string, returning []string) (SQLQuery, error) {
	if d.Caps.SupportsInsertDefaultValues {
		query := "INSERT INTO " + d.Quote(table) + " DEFAULT VALUES"
		if len(returning) > 0 && d.Caps.SupportsReturning {
			query += " RETURNING " + strings.Join(d.quoteAll(returning), ", ")
		}
		return SQLQuery{SQL: query}, nil
	}
	return SQLQuery{SQL: fmt.Sprintf("INSERT INTO %s () VALUES ()", d.Quote(table))}, nil
}

func (d *Dialect) withReturning(builder sq.InsertBuilder, returning []string) sq.InsertBuilder {
	if len(returning) == 0 || !d.Caps.SupportsReturning {
		return builder
	}
	return builder.Suffix("RETURNING " + strings.Join(d.quoteAll(returning), ", "))
}

// Update builds an UPDATE. Values in set may be sq.Sqlizer expressions
// (for incremental ops). Limit is applied only on backends that support
// update-with-limit; callers needing a limit elsewhere compose an
// id-subquery filter instead.
func (d *Dialect) Update(table string, set map[string]any, where sq.Sqlizer, limit uint64, returning []string) (SQLQuery, error) {
	if len(set) == 0 {
		return SQLQuery{}, ormerr.NewInternal("update set cannot be empty")
	}
	builder := sq.Update(d.Quote(table))
	// Deterministic column order keeps generated SQL stable across runs.
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		builder = builder.Set(d.Quote(col), set[col])
	}
	if where != nil {
		builder = builder.Where(where)
	}
	if limit > 0 && d.Caps.SupportsUpdateWithLimit {
		builder = builder.Limit(limit)
	}
	if len(returning) > 0 && d.Caps.SupportsReturning {
		builder = builder.Suffix("RETURNING " + strings.Join(d.quoteAll(returning), ", "))
	}
	return d.finish(builder.ToSql())
}

// Delete builds a DELETE. Limit is applied only when the backend
// supports delete-with-limit.
func (d *Dialect) Delete(table string, where sq.Sqlizer, limit uint64) (SQLQuery, error) {
	builder := sq.Delete(d.Quote(table))
	if where != nil {
		builder = builder.Where(where)
	}
	if limit > 0 && d.Caps.SupportsDeleteWithLimit {
		builder = builder.Limit(limit)
	}
	return d.finish(builder.ToSql())
}

// Select builds a column projection with an optional filter and limit.
func (d *Dialect) Select(table string, columns []string, where sq.Sqlizer, limit uint64) (SQLQuery, error) {
	builder, err := d.selectBuilder(table, columns, where, limit)
	if err != nil {
		return SQLQuery{}, err
	}
	return d.finish(builder.ToSql())
}

// SelectSub builds a projection intended for embedding via InSubquery.
// It always keeps question placeholders; the enclosing statement applies
// the dialect's placeholder format over the combined text.
func (d *Dialect) SelectSub(table string, columns []string, where sq.Sqlizer, limit uint64) (SQLQuery, error) {
	builder, err := d.selectBuilder(table, columns, where, limit)
	if err != nil {
		return SQLQuery{}, err
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, ormerr.NewInternal("sql build failed: %v", err)
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// SelectCount builds a COUNT(*) over the filter.
func (d *Dialect) SelectCount(table string, where sq.Sqlizer) (SQLQuery, error) {
	builder := sq.Select("COUNT(*)").From(d.Quote(table))
	if where != nil {
		builder = builder.Where(where)
	}
	return d.finish(builder.ToSql())
}

func (d *Dialect) selectBuilder(table string, columns []string, where sq.Sqlizer, limit uint64) (sq.SelectBuilder, error) {
	if len(columns) == 0 {
		return sq.SelectBuilder{}, ormerr.NewInternal("select requires at least one column")
	}
	builder := sq.Select(d.quoteAll(columns)...).From(d.Quote(table))
	if where != nil {
		builder = builder.Where(where)
	}
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	return builder, nil
}

// finish converts the statement to the dialect's placeholder format.
// Builders run with question placeholders so embedded subqueries compose;
// dollar-placeholder backends renumber in one pass here.
func (d *Dialect) finish(query string, args []any, err error) (SQLQuery, error) {
	if err != nil {
		return SQLQuery{}, ormerr.NewInternal("sql build failed: %v", err)
	}
	if d.placeholder != nil && d.placeholder != sq.Question {
		query, err = d.placeholder.ReplacePlaceholders(query)
		if err != nil {
			return SQLQuery{}, ormerr.NewInternal("placeholder rewrite failed: %v", err)
		}
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
