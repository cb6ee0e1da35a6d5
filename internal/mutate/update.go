package mutate

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"ormcore/internal/ormerr"
	"ormcore/internal/relation"
	"ormcore/internal/schema"
)

// Update mutates the single row selected by a unique filter and returns
// the updated entity. A filter that matches nothing is a NotFound.
func (o *Orchestrator) Update(ctx context.Context, model string, where, data Entity) (Entity, error) {
	ev := Event{Model: model, Operation: "update", Where: where, Data: data}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		idRows, err := o.updateEntities(ctx, m, where, data, nil, true)
		if err != nil {
			return nil, err
		}
		return o.readBack(ctx, m, idRows[0], data)
	})
	if err != nil {
		return nil, err
	}
	return res.(Entity), nil
}

// UpdateMany applies a scalar-only change set to every row the filter
// matches and returns the affected count. Nested relation operations
// need a unique anchor row and are rejected here. An optional limit
// bounds the batch; on dialects without UPDATE ... LIMIT the rows are
// pinned by id first.
func (o *Orchestrator) UpdateMany(ctx context.Context, model string, where, data Entity, limit uint64) (int64, error) {
	ev := Event{Model: model, Operation: "updateMany", Where: where, Data: data}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		return o.updateManyLimited(ctx, m, where, data, limit)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Upsert updates the row the unique filter matches, or creates it from
// the create payload when nothing matches.
func (o *Orchestrator) Upsert(ctx context.Context, model string, where, create, update Entity) (Entity, error) {
	ev := Event{Model: model, Operation: "upsert", Where: where, Data: update}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		existing, err := o.findUnique(ctx, m, where, m.IDFields, nil)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			cr, cerr := o.createEntity(ctx, m, create, nil, false, m.Name)
			if cerr != nil {
				return nil, cerr
			}
			return cr.entity, nil
		}
		idRows, err := o.updateEntities(ctx, m, nil, update, o.dialect.Eq(existing), true)
		if err != nil {
			return nil, err
		}
		return o.readBack(ctx, m, idRows[0], update)
	})
	if err != nil {
		return nil, err
	}
	return res.(Entity), nil
}

// updateEntities is the shared update core: filter plus engine scope,
// delegate-aware field routing, relation verb dispatch, and the row
// write itself. It returns the id rows that were selected for update.
//
// An update whose data only carries relation verbs leaves the row
// untouched: no UPDATE statement runs and auto-updated timestamps are
// not stamped.
func (o *Orchestrator) updateEntities(
	ctx context.Context,
	m *schema.Model,
	filter Entity,
	data Entity,
	scope sq.Sqlizer,
	requireMatch bool,
) ([]map[string]any, error) {
	where, err := o.whereFilter(m, filter)
	if err != nil {
		return nil, err
	}
	combined := andScope(where, scope)
	if combined == nil {
		return nil, ormerr.NewInvalidInput("model %s: a unique filter is required", m.Name)
	}

	idRows, err := o.readIDRows(ctx, m, combined, 0)
	if err != nil {
		return nil, err
	}
	if len(idRows) == 0 {
		if requireMatch {
			return nil, ormerr.NewNotFoundf(m.Name, "no %s row matches the update filter", m.Name)
		}
		return nil, nil
	}

	ownSet := make(map[string]any)
	baseData := make(Entity)
	var rels []postRelation

	for name, raw := range data {
		f := m.Field(name)
		if f == nil {
			return nil, ormerr.NewInvalidInput("unknown field %s.%s", m.Name, name)
		}
		if f.Computed {
			return nil, ormerr.NewInvalidInput("field %s.%s is computed and not writable", m.Name, name)
		}
		if f.IsRelation() {
			dir, rerr := relation.Resolve(o.schema, m, f)
			if rerr != nil {
				return nil, rerr
			}
			ops, perr := parseRelationPayload(m, f, raw)
			if perr != nil {
				return nil, perr
			}
			rels = append(rels, postRelation{field: f, dir: dir, ops: ops})
			continue
		}
		if f.OriginModel != "" && !f.ID {
			baseData[name] = raw
			continue
		}
		if f.ID && m.HasBase() {
			return nil, ormerr.NewNotSupported(
				"field %s.%s is shared across a delegate chain and cannot be updated", m.Name, name)
		}
		v, verr := o.scalarUpdateValue(m, f, raw)
		if verr != nil {
			return nil, verr
		}
		ownSet[name] = v
	}

	if len(rels) > 0 && len(idRows) > 1 {
		return nil, ormerr.NewInvalidInput(
			"model %s: relation operations require a filter matching a single row", m.Name)
	}

	idPred := o.idWhere(m, idRows)

	// Inherited scalar changes belong to an ancestor table; the shared
	// ids select the same logical rows there.
	if len(baseData) > 0 {
		base, berr := o.schema.Model(m.BaseModel)
		if berr != nil {
			return nil, berr
		}
		if _, berr = o.updateEntities(ctx, base, nil, baseData, o.idWhere(base, idRows), requireMatch); berr != nil {
			return nil, berr
		}
	}

	// Owning-side relation verbs fold into FK column values on this
	// row's own UPDATE; some leave follow-up work (deleting the row that
	// was linked) for after the FK is cleared.
	var after []func(context.Context) error
	for _, pr := range rels {
		if !pr.dir.Owning || pr.dir.ManyToMany != nil {
			continue
		}
		fks, post, oerr := o.ownedRelationUpdate(ctx, m, pr.field, pr.dir, pr.ops, idPred)
		if oerr != nil {
			return nil, oerr
		}
		for k, v := range fks {
			ownSet[k] = v
		}
		if post != nil {
			after = append(after, post)
		}
	}

	if len(ownSet) > 0 {
		o.defaults.TouchUpdatedAt(m, ownSet)
		q, qerr := o.dialect.Update(m.Table(), ownSet, idPred, 0, nil)
		if qerr != nil {
			return nil, qerr
		}
		if _, qerr = o.exec.Exec(ctx, q); qerr != nil {
			return nil, qerr
		}
	}

	for _, pr := range rels {
		if pr.dir.Owning && pr.dir.ManyToMany == nil {
			continue
		}
		if err := o.applyRelationVerbs(ctx, m, pr.field, pr.dir, pr.ops, idRows[0], verbModeUpdate); err != nil {
			return nil, err
		}
	}

	for _, fn := range after {
		if err := fn(ctx); err != nil {
			return nil, err
		}
	}
	return idRows, nil
}

// ownedRelationUpdate executes update-mode verbs for a to-one relation
// whose FK lives on the row being updated. It returns FK column values
// to merge into the row's change set and, for delete, a follow-up that
// removes the previously linked target row.
func (o *Orchestrator) ownedRelationUpdate(
	ctx context.Context,
	m *schema.Model,
	f *schema.Field,
	dir relation.Direction,
	ops []verbOp,
	idPred sq.Sqlizer,
) (map[string]any, func(context.Context) error, error) {
	if len(ops) != 1 {
		return nil, nil, ormerr.NewInvalidInput(
			"relation %s.%s: exactly one operation expected", m.Name, f.Name)
	}
	op := ops[0]
	switch op.verb {
	case VerbCreate, VerbConnect, VerbConnectOrCreate:
		fks, err := o.ownedRelationFKs(ctx, m, f, dir, ops)
		return fks, nil, err

	case VerbDisconnect:
		if on, ok := op.arg.(bool); !ok || !on {
			return nil, nil, ormerr.NewInvalidInput("disconnect on a to-one relation takes `true`")
		}
		nulls, err := ownedNullFKs(m, dir)
		return nulls, nil, err

	case VerbDelete:
		if on, ok := op.arg.(bool); !ok || !on {
			return nil, nil, ormerr.NewInvalidInput("delete on a to-one relation takes `true`")
		}
		refs, linked, err := o.currentFK(ctx, m, dir, idPred)
		if err != nil {
			return nil, nil, err
		}
		if !linked {
			return nil, nil, ormerr.NewNotFoundf(dir.Target.Name, "no linked row to delete")
		}
		nulls, err := ownedNullFKs(m, dir)
		if err != nil {
			return nil, nil, err
		}
		target := dir.Target
		post := func(ctx context.Context) error {
			_, derr := o.deleteEntities(ctx, target, nil, o.dialect.Eq(refs), true, 0)
			return derr
		}
		return nulls, post, nil

	case VerbUpdate:
		obj, err := asObject(op.arg, "update")
		if err != nil {
			return nil, nil, err
		}
		_, data, err := whereDataArg(obj, true)
		if err != nil {
			return nil, nil, err
		}
		refs, linked, err := o.currentFK(ctx, m, dir, idPred)
		if err != nil {
			return nil, nil, err
		}
		if !linked {
			return nil, nil, ormerr.NewNotFoundf(dir.Target.Name, "no linked row to update")
		}
		_, err = o.updateEntities(ctx, dir.Target, nil, data, o.dialect.Eq(refs), true)
		return nil, nil, err

	case VerbUpsert:
		obj, err := asObject(op.arg, "upsert")
		if err != nil {
			return nil, nil, err
		}
		_, create, update, err := upsertArg(obj, true)
		if err != nil {
			return nil, nil, err
		}
		refs, linked, err := o.currentFK(ctx, m, dir, idPred)
		if err != nil {
			return nil, nil, err
		}
		if linked {
			_, uerr := o.updateEntities(ctx, dir.Target, nil, update, o.dialect.Eq(refs), true)
			return nil, nil, uerr
		}
		fks, cerr := o.ownedRelationFKs(ctx, m, f, dir, []verbOp{{verb: VerbCreate, arg: create}})
		return fks, nil, cerr

	default:
		return nil, nil, ormerr.NewInvalidInput(
			"relation %s.%s: %s is not valid on a to-one relation that stores the foreign key",
			m.Name, f.Name, op.verb)
	}
}

// ownedNullFKs nulls the owning side's FK columns; required columns make
// the relation unseverable.
func ownedNullFKs(m *schema.Model, dir relation.Direction) (map[string]any, error) {
	nulls := make(map[string]any, len(dir.FKPairs))
	for _, pair := range dir.FKPairs {
		fkField := m.Field(pair.FK)
		if fkField == nil || !fkField.Optional {
			return nil, ormerr.NewNotSupported(
				"relation %s.%s is required and cannot be severed; connect a replacement instead",
				m.Name, pair.FK)
		}
		nulls[pair.FK] = nil
	}
	return nulls, nil
}

// currentFK reads the owning row's FK columns and maps them back onto
// the referenced fields of the target. linked is false when any column
// is NULL.
func (o *Orchestrator) currentFK(ctx context.Context, m *schema.Model, dir relation.Direction, idPred sq.Sqlizer) (map[string]any, bool, error) {
	cols := make([]string, len(dir.FKPairs))
	for i, pair := range dir.FKPairs {
		cols[i] = pair.FK
	}
	rows, err := o.readRows(ctx, m, cols, idPred, 1)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, ormerr.NewNotFoundf(m.Name, "%s row disappeared during update", m.Name)
	}
	refs := make(map[string]any, len(dir.FKPairs))
	for _, pair := range dir.FKPairs {
		v := rows[0][pair.FK]
		if v == nil {
			return nil, false, nil
		}
		refs[pair.Referenced] = v
	}
	return refs, true, nil
}

// updateManyLimited bounds a bulk update to at most limit rows. Dialects
// with UPDATE ... LIMIT take it natively; elsewhere the candidate ids
// are read first and the update targets exactly that id set.
func (o *Orchestrator) updateManyLimited(ctx context.Context, m *schema.Model, filter, data Entity, limit uint64) (int64, error) {
	if limit == 0 || o.dialect.Caps.SupportsUpdateWithLimit {
		return o.updateManyCount(ctx, m, filter, data, nil, limit)
	}
	where, err := o.whereFilter(m, filter)
	if err != nil {
		return 0, err
	}
	idRows, err := o.readIDRows(ctx, m, where, limit)
	if err != nil {
		return 0, err
	}
	if len(idRows) == 0 {
		return 0, nil
	}
	return o.updateManyCount(ctx, m, nil, data, o.idWhere(m, idRows), 0)
}

// updateManyCount compiles a scalar-only change set into one UPDATE.
func (o *Orchestrator) updateManyCount(ctx context.Context, m *schema.Model, filter, data Entity, scope sq.Sqlizer, limit uint64) (int64, error) {
	where, err := o.whereFilter(m, filter)
	if err != nil {
		return 0, err
	}
	set := make(map[string]any, len(data))
	for name, raw := range data {
		f := m.Field(name)
		if f == nil {
			return 0, ormerr.NewInvalidInput("unknown field %s.%s", m.Name, name)
		}
		if f.IsRelation() {
			return 0, ormerr.NewInvalidInput(
				"relation %s.%s: nested relation operations are not allowed in updateMany", m.Name, name)
		}
		if f.Computed {
			return 0, ormerr.NewInvalidInput("field %s.%s is computed and not writable", m.Name, name)
		}
		if f.OriginModel != "" && !f.ID {
			return 0, ormerr.NewNotSupported(
				"updating inherited field %s.%s through updateMany is not supported", m.Name, name)
		}
		v, verr := o.scalarUpdateValue(m, f, raw)
		if verr != nil {
			return 0, verr
		}
		set[name] = v
	}
	if len(set) == 0 {
		return 0, ormerr.NewInvalidInput("model %s: updateMany requires at least one field", m.Name)
	}
	o.defaults.TouchUpdatedAt(m, set)

	q, err := o.dialect.Update(m.Table(), set, andScope(where, scope), limit, nil)
	if err != nil {
		return 0, err
	}
	res, err := o.exec.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.NumAffected, nil
}

// updateManyScoped is updateManyCount for nested payloads, discarding
// the count.
func (o *Orchestrator) updateManyScoped(ctx context.Context, m *schema.Model, filter, data Entity, scope sq.Sqlizer) error {
	_, err := o.updateManyCount(ctx, m, filter, data, scope, 0)
	return err
}

// updateByWhere writes a prepared column set directly, stamping
// auto-updated timestamps. Relation plumbing uses it for FK re-pointing.
func (o *Orchestrator) updateByWhere(ctx context.Context, m *schema.Model, set map[string]any, where sq.Sqlizer) (int64, error) {
	full := make(map[string]any, len(set)+1)
	for k, v := range set {
		full[k] = v
	}
	o.defaults.TouchUpdatedAt(m, full)
	q, err := o.dialect.Update(m.Table(), full, where, 0, nil)
	if err != nil {
		return 0, err
	}
	res, err := o.exec.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.NumAffected, nil
}

// readBack fetches the row's own table columns after a write, honoring
// id values the change set itself replaced.
func (o *Orchestrator) readBack(ctx context.Context, m *schema.Model, ids map[string]any, data Entity) (Entity, error) {
	finalIDs := make(map[string]any, len(ids))
	for k, v := range ids {
		finalIDs[k] = v
	}
	for _, idf := range m.IDFields {
		if raw, ok := data[idf]; ok {
			if plain, perr := scalarCreateValue(m, m.Field(idf), raw); perr == nil {
				finalIDs[idf] = plain
			}
		}
	}
	rows, err := o.readRows(ctx, m, tableColumnNames(m), o.dialect.Eq(finalIDs), 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return finalIDs, nil
	}
	return rows[0], nil
}
