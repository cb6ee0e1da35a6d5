package mutate

import (
	"context"

	"ormcore/internal/defaults"
	"ormcore/internal/ormerr"
	"ormcore/internal/relation"
	"ormcore/internal/schema"
)

// fromRelation is the ephemeral context threaded into a nested
// operation: the parent model/field, the resolved direction, and the
// parent's id values (nil while the parent row does not exist yet).
type fromRelation struct {
	model *schema.Model
	field *schema.Field
	dir   relation.Direction
	ids   map[string]any
}

// createResult pairs the written entity with any FK values the parent
// must still apply because the parent side owns the foreign key and this
// row was written first.
type createResult struct {
	entity   Entity
	parentFK map[string]any
}

// Create writes one row plus its nested relation payloads, parents
// before children, and returns the created entity (id values merged with
// the supplied data).
func (o *Orchestrator) Create(ctx context.Context, model string, data Entity) (Entity, error) {
	ev := Event{Model: model, Operation: "create", Data: data}
	res, err := o.instrument(ctx, ev, func(ctx context.Context) (any, error) {
		m, err := o.schema.Model(model)
		if err != nil {
			return nil, err
		}
		cr, err := o.createEntity(ctx, m, data, nil, false, m.Name)
		if err != nil {
			return nil, err
		}
		return cr.entity, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(Entity), nil
}

// postRelation is a relation payload deferred until after the row
// exists: non-owned links that need this row's id, and many-to-many
// connects.
type postRelation struct {
	field *schema.Field
	dir   relation.Direction
	ops   []verbOp
}

func (o *Orchestrator) createEntity(
	ctx context.Context,
	m *schema.Model,
	data Entity,
	fromRel *fromRelation,
	creatingForDelegate bool,
	concrete string,
) (createResult, error) {
	if m.IsDelegate && !creatingForDelegate {
		return createResult{}, ormerr.NewInvalidInput(
			"model %s is a delegate and must be created through a concrete model", m.Name)
	}

	row := make(Entity, len(data))
	var post []postRelation

	for name, raw := range data {
		f := m.Field(name)
		if f == nil {
			return createResult{}, ormerr.NewInvalidInput("unknown field %s.%s", m.Name, name)
		}
		if f.Computed {
			return createResult{}, ormerr.NewInvalidInput("field %s.%s is computed and not writable", m.Name, name)
		}
		if !f.IsRelation() {
			v, err := scalarCreateValue(m, f, raw)
			if err != nil {
				return createResult{}, err
			}
			row[name] = v
			continue
		}

		dir, err := relation.Resolve(o.schema, m, f)
		if err != nil {
			return createResult{}, err
		}
		ops, err := parseRelationPayload(m, f, raw)
		if err != nil {
			return createResult{}, err
		}
		if dir.Owning && dir.ManyToMany == nil {
			// This row stores the FK: the target must exist first.
			fkValues, err := o.ownedRelationFKs(ctx, m, f, dir, ops)
			if err != nil {
				return createResult{}, err
			}
			for fk, v := range fkValues {
				row[fk] = v
			}
			continue
		}
		post = append(post, postRelation{field: f, dir: dir, ops: ops})
	}

	// A non-owning parent link means this row stores the FK back to the
	// already-written parent; inject it before insert.
	if fromRel != nil && fromRel.dir.ManyToMany == nil && !fromRel.dir.Owning {
		fks, err := o.childFKValues(ctx, fromRel.model, fromRel.dir, fromRel.ids)
		if err != nil {
			return createResult{}, err
		}
		for fk, v := range fks {
			row[fk] = v
		}
	}

	// Delegate chain: the base row exists before this one, discriminator
	// set to the original concrete model, ids merged downward.
	if m.HasBase() {
		if err := o.createBaseRow(ctx, m, row, concrete); err != nil {
			return createResult{}, err
		}
	}

	if err := o.defaults.ApplyCreateDefaults(m, row); err != nil {
		return createResult{}, err
	}

	entity, err := o.insertRow(ctx, m, row)
	if err != nil {
		return createResult{}, err
	}

	ids, ok := schema.IDValues(m, entity)
	if !ok {
		return createResult{}, ormerr.NewInternal("create of %s yielded no id values", m.Name)
	}

	// Post-insert relation payloads run depth-first in field order. The
	// full entity goes along so relations referencing non-id columns
	// resolve without re-reading the row just written.
	for _, pr := range post {
		if err := o.applyRelationVerbs(ctx, m, pr.field, pr.dir, pr.ops, entity, verbModeCreate); err != nil {
			return createResult{}, err
		}
	}

	// A many-to-many parent link materializes once both sides exist.
	if fromRel != nil && fromRel.dir.ManyToMany != nil {
		parentID, err := singleID(fromRel.model, fromRel.ids)
		if err != nil {
			return createResult{}, err
		}
		otherID, err := singleID(m, ids)
		if err != nil {
			return createResult{}, err
		}
		if err := o.joins.Connect(ctx, fromRel.dir.ManyToMany, parentID, otherID); err != nil {
			return createResult{}, err
		}
	}

	result := createResult{entity: entity}

	// When the parent owns the FK, report the referenced values upward
	// so the caller can apply them to the parent's own write.
	if fromRel != nil && fromRel.dir.Owning && fromRel.dir.ManyToMany == nil {
		result.parentFK = make(map[string]any, len(fromRel.dir.FKPairs))
		for _, pair := range fromRel.dir.FKPairs {
			v, ok := entity[pair.Referenced]
			if !ok {
				return createResult{}, ormerr.NewInternal(
					"created %s row is missing referenced field %s", m.Name, pair.Referenced)
			}
			result.parentFK[pair.FK] = v
		}
	}
	return result, nil
}

// createBaseRow splits the inherited fields out of row, creates the base
// row (recursively up the chain), and merges the base's id values back.
func (o *Orchestrator) createBaseRow(ctx context.Context, m *schema.Model, row Entity, concrete string) error {
	base, err := o.schema.Model(m.BaseModel)
	if err != nil {
		return err
	}
	baseData := make(Entity)
	for _, f := range m.AllFields() {
		if f.OriginModel == "" {
			continue
		}
		if v, ok := row[f.Name]; ok {
			baseData[f.Name] = v
			delete(row, f.Name)
		}
	}
	baseData[base.Discriminator] = concrete

	baseRes, err := o.createEntity(ctx, base, baseData, nil, true, concrete)
	if err != nil {
		return err
	}
	for _, idf := range m.IDFields {
		v, ok := baseRes.entity[idf]
		if !ok {
			return ormerr.NewInternal("base create of %s yielded no %s", base.Name, idf)
		}
		row[idf] = v
	}
	return nil
}

// insertRow writes one row and returns the entity: the supplied column
// values merged with the authoritative id values. On backends with
// RETURNING the ids come straight from the insert; otherwise they are
// recovered from the input values or the generated key.
func (o *Orchestrator) insertRow(ctx context.Context, m *schema.Model, row Entity) (Entity, error) {
	columns, values := o.tableColumns(m, row)

	if o.dialect.Caps.SupportsReturning {
		q, err := o.dialect.Insert(m.Table(), columns, values, m.IDFields)
		if err != nil {
			return nil, err
		}
		res, err := o.exec.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 {
			return nil, ormerr.NewInternal("insert into %s returned no row", m.Table())
		}
		entity := make(Entity, len(row)+len(res.Rows[0]))
		for k, v := range row {
			entity[k] = v
		}
		for k, v := range res.Rows[0] {
			entity[k] = v
		}
		return entity, nil
	}

	q, err := o.dialect.Insert(m.Table(), columns, values, nil)
	if err != nil {
		return nil, err
	}
	res, err := o.exec.Exec(ctx, q)
	if err != nil {
		return nil, err
	}

	entity := make(Entity, len(row)+len(m.IDFields))
	for k, v := range row {
		entity[k] = v
	}
	autoInc := defaults.AutoIncrementIDField(m)
	for _, idf := range m.IDFields {
		if _, ok := entity[idf]; ok {
			continue
		}
		if autoInc != nil && autoInc.Name == idf && res.HasInsertID {
			entity[idf] = res.InsertID
			continue
		}
		return nil, ormerr.NewInternal(
			"cannot recover id %s.%s without RETURNING support", m.Name, idf)
	}
	return entity, nil
}

// tableColumns projects the row onto the columns the model's own table
// stores: declared fields plus the shared id columns of a delegate
// chain, in field declaration order.
func (o *Orchestrator) tableColumns(m *schema.Model, row Entity) ([]string, []any) {
	var columns []string
	var values []any
	for _, f := range m.AllFields() {
		if f.IsRelation() || f.Computed {
			continue
		}
		if f.OriginModel != "" && !f.ID {
			continue
		}
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, f.Name)
		values = append(values, v)
	}
	return columns, values
}
