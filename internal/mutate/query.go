package mutate

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"ormcore/internal/ormerr"
	"ormcore/internal/schema"
)

// andScope combines a user filter with an engine-imposed scope (a parent
// FK match or a join-table membership subquery).
func andScope(where, scope sq.Sqlizer) sq.Sqlizer {
	switch {
	case where == nil:
		return scope
	case scope == nil:
		return where
	default:
		return sq.And{where, scope}
	}
}

func (o *Orchestrator) readRows(ctx context.Context, m *schema.Model, columns []string, where sq.Sqlizer, limit uint64) ([]Entity, error) {
	q, err := o.dialect.Select(m.Table(), columns, where, limit)
	if err != nil {
		return nil, err
	}
	res, err := o.exec.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	rows := make([]Entity, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = r
	}
	return rows, nil
}

func (o *Orchestrator) readIDRows(ctx context.Context, m *schema.Model, where sq.Sqlizer, limit uint64) ([]map[string]any, error) {
	rows, err := o.readRows(ctx, m, m.IDFields, where, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

// findUnique reads at most one row by a unique filter, optionally inside
// a scope. It returns nil when no row matches; matching more than one
// row means the filter was not unique.
func (o *Orchestrator) findUnique(ctx context.Context, m *schema.Model, filter Entity, columns []string, scope sq.Sqlizer) (Entity, error) {
	where, err := o.whereFilter(m, filter)
	if err != nil {
		return nil, err
	}
	if where == nil && scope == nil {
		return nil, ormerr.NewInvalidInput("model %s: a unique filter is required", m.Name)
	}
	rows, err := o.readRows(ctx, m, columns, andScope(where, scope), 2)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, ormerr.NewInvalidInput("model %s: filter matched more than one row", m.Name)
	}
}

// idWhere builds the predicate selecting exactly the given id rows.
func (o *Orchestrator) idWhere(m *schema.Model, idRows []map[string]any) sq.Sqlizer {
	if len(idRows) == 1 {
		return o.dialect.Eq(idRows[0])
	}
	if len(m.IDFields) == 1 {
		vals := make([]any, len(idRows))
		for i, r := range idRows {
			vals[i] = r[m.IDFields[0]]
		}
		return o.dialect.In(m.IDFields[0], vals)
	}
	or := make(sq.Or, len(idRows))
	for i, r := range idRows {
		or[i] = o.dialect.Eq(r)
	}
	return or
}
