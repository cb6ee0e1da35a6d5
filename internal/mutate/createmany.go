package mutate

import (
	"context"

	"ormcore/internal/dialect"
	"ormcore/internal/ormerr"
	"ormcore/internal/schema"
)

// CreateMany inserts a batch of scalar-only rows in one statement and
// returns the inserted count. Nested relation payloads and delegated
// models need per-row sequencing and are not accepted here.
func (o *Orchestrator) CreateMany(ctx context.Context, model string, rows []Entity, skipDuplicates bool) (int64, error) {
	ev := Event{Model: model, Operation: "createMany"}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		return o.createManyRows(ctx, m, rows, skipDuplicates)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// CreateManyAndReturn is CreateMany with the inserted rows read back via
// RETURNING. Backends without RETURNING cannot attribute generated keys
// across a batch, so the operation is unsupported there.
func (o *Orchestrator) CreateManyAndReturn(ctx context.Context, model string, rows []Entity, skipDuplicates bool) ([]Entity, error) {
	ev := Event{Model: model, Operation: "createManyAndReturn"}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		if !o.dialect.Caps.SupportsReturning {
			return nil, ormerr.NewNotSupported(
				"createManyAndReturn requires RETURNING support, which dialect %s lacks", o.dialect.Name)
		}
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		columns, values, err := o.createManyValues(m, rows)
		if err != nil {
			return nil, err
		}
		q, err := o.dialect.InsertMany(m.Table(), columns, values, skipDuplicates, tableColumnNames(m))
		if err != nil {
			return nil, err
		}
		qres, err := o.exec.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]Entity, len(qres.Rows))
		for i, r := range qres.Rows {
			out[i] = r
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]Entity), nil
}

// createManyRows validates, defaults, and inserts a batch, returning the
// inserted count.
func (o *Orchestrator) createManyRows(ctx context.Context, m *schema.Model, rows []Entity, skipDuplicates bool) (int64, error) {
	columns, values, err := o.createManyValues(m, rows)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	if skipDuplicates && o.dialect.Caps.InsertIgnore == dialect.InsertIgnoreNone {
		return 0, ormerr.NewNotSupported(
			"skipDuplicates is not supported on dialect %s", o.dialect.Name)
	}
	q, err := o.dialect.InsertMany(m.Table(), columns, values, skipDuplicates, nil)
	if err != nil {
		return 0, err
	}
	res, err := o.exec.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.NumAffected, nil
}

// createManyValues normalizes a scalar-only batch: per-row validation
// and defaults, then a uniform column projection in declaration order.
func (o *Orchestrator) createManyValues(m *schema.Model, rows []Entity) ([]string, [][]any, error) {
	if m.IsDelegate || m.HasBase() {
		return nil, nil, ormerr.NewNotSupported(
			"createMany is not supported on delegated model %s", m.Name)
	}
	prepared := make([]Entity, len(rows))
	for i, src := range rows {
		row := make(Entity, len(src))
		for name, raw := range src {
			f := m.Field(name)
			if f == nil {
				return nil, nil, ormerr.NewInvalidInput("unknown field %s.%s", m.Name, name)
			}
			if f.IsRelation() {
				return nil, nil, ormerr.NewInvalidInput(
					"relation %s.%s: nested relation operations are not allowed in createMany", m.Name, name)
			}
			if f.Computed {
				return nil, nil, ormerr.NewInvalidInput("field %s.%s is computed and not writable", m.Name, name)
			}
			v, err := scalarCreateValue(m, f, raw)
			if err != nil {
				return nil, nil, err
			}
			row[name] = v
		}
		if err := o.defaults.ApplyCreateDefaults(m, row); err != nil {
			return nil, nil, err
		}
		prepared[i] = row
	}

	var columns []string
	for _, f := range m.AllFields() {
		if f.IsRelation() || f.Computed {
			continue
		}
		present := false
		for _, row := range prepared {
			if _, ok := row[f.Name]; ok {
				present = true
				break
			}
		}
		if present {
			columns = append(columns, f.Name)
		}
	}

	values := make([][]any, len(prepared))
	for i, row := range prepared {
		vals := make([]any, len(columns))
		for j, col := range columns {
			v, ok := row[col]
			if !ok {
				f := m.Field(col)
				if !f.Optional && !f.AutoIncrement() {
					return nil, nil, ormerr.NewInvalidInput(
						"createMany row %d is missing required field %s.%s", i, m.Name, col)
				}
			}
			vals[j] = v
		}
		values[i] = vals
	}
	return columns, values, nil
}

// createManyArg splits a nested createMany payload: a {data, ...} object
// or a bare list of rows.
func createManyArg(arg any) ([]Entity, bool, error) {
	skipDuplicates := false
	raw := arg
	if obj, ok := arg.(map[string]any); ok {
		if data, has := obj["data"]; has {
			raw = data
			if v, has := obj["skipDuplicates"]; has {
				b, ok := v.(bool)
				if !ok {
					return nil, false, ormerr.NewInvalidInput("createMany.skipDuplicates must be a boolean")
				}
				skipDuplicates = b
			}
			for key := range obj {
				if key != "data" && key != "skipDuplicates" {
					return nil, false, ormerr.NewInvalidInput("createMany: unknown key %q", key)
				}
			}
		}
	}
	items, err := itemList(raw)
	if err != nil {
		return nil, false, err
	}
	rows := make([]Entity, len(items))
	for i, it := range items {
		row, rerr := asObject(it, "createMany row")
		if rerr != nil {
			return nil, false, rerr
		}
		rows[i] = row
	}
	return rows, skipDuplicates, nil
}
