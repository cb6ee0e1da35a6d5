package mutate

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"ormcore/internal/ormerr"
	"ormcore/internal/relation"
	"ormcore/internal/schema"
)

// Delete removes the single row a unique filter matches, together with
// its join-table rows, its emulated cascades, and every table of its
// delegate chain. The deleted entity is returned as it was read before
// removal.
func (o *Orchestrator) Delete(ctx context.Context, model string, where Entity) (Entity, error) {
	ev := Event{Model: model, Operation: "delete", Where: where}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		rows, err := o.deleteRows(ctx, m, where, nil, true, 0)
		if err != nil {
			return nil, err
		}
		return rows[0], nil
	})
	if err != nil {
		return nil, err
	}
	return res.(Entity), nil
}

// DeleteMany removes every row the filter matches and returns the count
// of rows deleted from the model's own table. An optional limit bounds
// the batch; the rows chosen under the limit are not ordered.
func (o *Orchestrator) DeleteMany(ctx context.Context, model string, where Entity, limit uint64) (int64, error) {
	ev := Event{Model: model, Operation: "deleteMany", Where: where}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		rows, err := o.deleteRows(ctx, m, where, nil, false, limit)
		if err != nil {
			return nil, err
		}
		return int64(len(rows)), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// deleteEntities is the nested-payload entry point: it deletes inside an
// engine scope and reports the id rows removed.
func (o *Orchestrator) deleteEntities(
	ctx context.Context,
	m *schema.Model,
	filter Entity,
	scope sq.Sqlizer,
	requireMatch bool,
	limit uint64,
) ([]map[string]any, error) {
	rows, err := o.deleteRows(ctx, m, filter, scope, requireMatch, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		ids, ok := schema.IDValues(m, r)
		if !ok {
			return nil, ormerr.NewInternal("deleted %s row carries no id values", m.Name)
		}
		out = append(out, ids)
	}
	return out, nil
}

// deleteRows is the shared delete core. Every delete is id-anchored:
// candidate rows are read first (which also makes a row limit portable
// across dialects without DELETE ... LIMIT), then the dependency graph
// is unwound. The DELETE itself targets the root of the delegate chain;
// a table with a base is never deleted directly, the database's
// ON DELETE CASCADE removes the derived rows.
func (o *Orchestrator) deleteRows(
	ctx context.Context,
	m *schema.Model,
	filter Entity,
	scope sq.Sqlizer,
	requireMatch bool,
	limit uint64,
) ([]Entity, error) {
	where, err := o.whereFilter(m, filter)
	if err != nil {
		return nil, err
	}
	combined := andScope(where, scope)
	if combined == nil && requireMatch {
		return nil, ormerr.NewInvalidInput("model %s: a unique filter is required", m.Name)
	}

	rows, err := o.readRows(ctx, m, tableColumnNames(m), combined, limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if requireMatch {
			return nil, ormerr.NewNotFoundf(m.Name, "no %s row matches the delete filter", m.Name)
		}
		return nil, nil
	}
	idRows, err := idRowsOf(m, rows)
	if err != nil {
		return nil, err
	}

	if err := o.cleanLevel(ctx, m, rows); err != nil {
		return nil, err
	}
	if err := o.cleanDerived(ctx, m, idRows); err != nil {
		return nil, err
	}

	// Ascend to the chain root; each intermediate level still needs its
	// emulated actions and join rows unwound before the base row goes.
	target := m
	chain, err := o.schema.BaseChain(m)
	if err != nil {
		return nil, err
	}
	for _, base := range chain {
		baseRows, berr := o.readRows(ctx, base, tableColumnNames(base), o.idWhere(base, idRows), 0)
		if berr != nil {
			return nil, berr
		}
		if berr := o.cleanLevel(ctx, base, baseRows); berr != nil {
			return nil, berr
		}
		target = base
	}

	q, err := o.dialect.Delete(target.Table(), o.idWhere(target, idRows), 0)
	if err != nil {
		return nil, err
	}
	if _, err := o.exec.Exec(ctx, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// cleanLevel unwinds what must go before one table level's rows:
// emulated referential actions, then join-table rows.
func (o *Orchestrator) cleanLevel(ctx context.Context, m *schema.Model, rows []Entity) error {
	if len(rows) == 0 {
		return nil
	}
	idRows, err := idRowsOf(m, rows)
	if err != nil {
		return err
	}
	if err := o.applyReferentialActions(ctx, m, rows); err != nil {
		return err
	}
	return o.cleanJoinRows(ctx, m, idRows)
}

// cleanDerived walks the derived tables sharing the ids. Their rows fall
// to the database cascade when the base row is deleted, but their
// emulated actions and join rows do not.
func (o *Orchestrator) cleanDerived(ctx context.Context, m *schema.Model, idRows []map[string]any) error {
	for _, derived := range o.derivedModels(m) {
		dRows, err := o.readRows(ctx, derived, tableColumnNames(derived), o.idWhere(derived, idRows), 0)
		if err != nil {
			return err
		}
		if len(dRows) == 0 {
			continue
		}
		if err := o.cleanLevel(ctx, derived, dRows); err != nil {
			return err
		}
		dIDs, err := idRowsOf(derived, dRows)
		if err != nil {
			return err
		}
		if err := o.cleanDerived(ctx, derived, dIDs); err != nil {
			return err
		}
	}
	return nil
}

func idRowsOf(m *schema.Model, rows []Entity) ([]map[string]any, error) {
	idRows := make([]map[string]any, len(rows))
	for i, r := range rows {
		ids, ok := schema.IDValues(m, r)
		if !ok {
			return nil, ormerr.NewInternal("deleted %s row carries no id values", m.Name)
		}
		idRows[i] = ids
	}
	return idRows, nil
}

// applyReferentialActions emulates Cascade and SetNull for relations
// whose FK lives on another model and points at rows being deleted.
// Restrict and NoAction stay with the database's own constraints.
func (o *Orchestrator) applyReferentialActions(ctx context.Context, m *schema.Model, rows []Entity) error {
	for _, dep := range o.dependentsOf(m) {
		pred := dependentPredicate(o, dep, rows)
		if pred == nil {
			continue
		}
		switch dep.action {
		case schema.ActionCascade:
			if _, err := o.deleteEntities(ctx, dep.model, nil, pred, false, 0); err != nil {
				return err
			}
		case schema.ActionSetNull:
			nulls := make(map[string]any, len(dep.fkFields))
			for _, fk := range dep.fkFields {
				nulls[fk] = nil
			}
			if _, err := o.updateByWhere(ctx, dep.model, nulls, pred); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanJoinRows drops the join-table rows of every implicit many-to-many
// relation the model participates in.
func (o *Orchestrator) cleanJoinRows(ctx context.Context, m *schema.Model, idRows []map[string]any) error {
	for _, f := range m.AllFields() {
		if !f.IsRelation() || f.OriginModel != "" {
			continue
		}
		dir, err := relation.Resolve(o.schema, m, f)
		if err != nil {
			return err
		}
		if dir.ManyToMany == nil {
			continue
		}
		for _, ids := range idRows {
			id, serr := singleID(m, ids)
			if serr != nil {
				return serr
			}
			if _, serr = o.joins.Reset(ctx, dir.ManyToMany, id); serr != nil {
				return serr
			}
		}
	}
	return nil
}

// dependentRelation is a relation on another model whose FK points at
// the model being deleted.
type dependentRelation struct {
	model    *schema.Model
	fkFields []string
	refs     []string
	action   schema.ReferentialAction
}

func (o *Orchestrator) dependentsOf(m *schema.Model) []dependentRelation {
	var deps []dependentRelation
	for _, cm := range o.schema.Models() {
		for _, f := range cm.AllFields() {
			if !f.IsRelation() || f.OriginModel != "" {
				continue
			}
			rel := f.Relation
			if f.Type != m.Name || len(rel.Fields) == 0 {
				continue
			}
			deps = append(deps, dependentRelation{
				model:    cm,
				fkFields: rel.Fields,
				refs:     rel.References,
				action:   rel.OnDelete,
			})
		}
	}
	return deps
}

// dependentPredicate selects the dependent rows referencing any of the
// deleted rows. Nil when a referenced value is absent (an unset optional
// link cannot be referenced).
func dependentPredicate(o *Orchestrator, dep dependentRelation, rows []Entity) sq.Sqlizer {
	if len(dep.fkFields) == 1 {
		var vals []any
		for _, r := range rows {
			if v, ok := r[dep.refs[0]]; ok && v != nil {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			return nil
		}
		return o.dialect.In(dep.fkFields[0], vals)
	}
	var or sq.Or
	for _, r := range rows {
		eq := make(map[string]any, len(dep.fkFields))
		complete := true
		for i, fk := range dep.fkFields {
			v, ok := r[dep.refs[i]]
			if !ok || v == nil {
				complete = false
				break
			}
			eq[fk] = v
		}
		if complete {
			or = append(or, o.dialect.Eq(eq))
		}
	}
	if len(or) == 0 {
		return nil
	}
	return or
}

// derivedModels lists the models directly deriving from m in a delegate
// hierarchy.
func (o *Orchestrator) derivedModels(m *schema.Model) []*schema.Model {
	var out []*schema.Model
	for _, cm := range o.schema.Models() {
		if cm.BaseModel == m.Name {
			out = append(out, cm)
		}
	}
	return out
}

// tableColumnNames lists the scalar columns the model's own table
// stores.
func tableColumnNames(m *schema.Model) []string {
	var cols []string
	for _, f := range m.AllFields() {
		if f.IsRelation() || f.Computed {
			continue
		}
		if f.OriginModel != "" && !f.ID {
			continue
		}
		cols = append(cols, f.Name)
	}
	return cols
}
