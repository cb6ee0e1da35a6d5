package mutate

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"ormcore/internal/ormerr"
	"ormcore/internal/relation"
	"ormcore/internal/schema"
)

// verbMode restricts which verbs a nested payload may carry: a create
// payload can only add links, an update payload has the full protocol.
type verbMode int

const (
	verbModeCreate verbMode = iota
	verbModeUpdate
)

func (mode verbMode) allows(v Verb) bool {
	if mode == verbModeUpdate {
		return true
	}
	switch v {
	case VerbCreate, VerbCreateMany, VerbConnect, VerbConnectOrCreate:
		return true
	default:
		return false
	}
}

// referencedFields lists the fields on the relation target that the
// owning side's FK columns point at.
func referencedFields(dir relation.Direction) []string {
	out := make([]string, len(dir.FKPairs))
	for i, pair := range dir.FKPairs {
		out[i] = pair.Referenced
	}
	return out
}

// ownedRelationFKs handles the relation payload of a field whose FK
// lives on the model being created: the target row is resolved (or
// written) first and the FK column values come back for the caller's
// own insert.
func (o *Orchestrator) ownedRelationFKs(
	ctx context.Context,
	m *schema.Model,
	f *schema.Field,
	dir relation.Direction,
	ops []verbOp,
) (map[string]any, error) {
	if len(ops) != 1 {
		return nil, ormerr.NewInvalidInput(
			"relation %s.%s: exactly one of create, connect, connectOrCreate expected", m.Name, f.Name)
	}
	op := ops[0]
	switch op.verb {
	case VerbCreate:
		data, err := asObject(op.arg, "create")
		if err != nil {
			return nil, err
		}
		res, err := o.createEntity(ctx, dir.Target, data,
			&fromRelation{model: m, field: f, dir: dir}, false, dir.Target.Name)
		if err != nil {
			return nil, err
		}
		return res.parentFK, nil

	case VerbConnect:
		filter, err := asObject(op.arg, "connect")
		if err != nil {
			return nil, err
		}
		return o.connectOwned(ctx, dir, filter)

	case VerbConnectOrCreate:
		filter, create, err := connectOrCreateArg(m, f, op.arg)
		if err != nil {
			return nil, err
		}
		fks, err := o.connectOwned(ctx, dir, filter)
		if !ormerr.IsNotFound(err) {
			return fks, err
		}
		res, err := o.createEntity(ctx, dir.Target, create,
			&fromRelation{model: m, field: f, dir: dir}, false, dir.Target.Name)
		if err != nil {
			return nil, err
		}
		return res.parentFK, nil

	default:
		return nil, ormerr.NewInvalidInput(
			"relation %s.%s: %s is not valid when this side stores the foreign key on create",
			m.Name, f.Name, op.verb)
	}
}

// connectOwned resolves the target of an owning-side connect and maps
// its referenced values onto the FK columns.
func (o *Orchestrator) connectOwned(ctx context.Context, dir relation.Direction, filter Entity) (map[string]any, error) {
	row, err := o.findUnique(ctx, dir.Target, filter, referencedFields(dir), nil)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ormerr.NewNotFoundf(dir.Target.Name, "connect target not found")
	}
	fks := make(map[string]any, len(dir.FKPairs))
	for _, pair := range dir.FKPairs {
		fks[pair.FK] = row[pair.Referenced]
	}
	return fks, nil
}

// childFKValues maps the child-side FK columns onto the parent's
// referenced values for a relation resolved from the parent (non-owning)
// side.
func (o *Orchestrator) childFKValues(ctx context.Context, parent *schema.Model, dir relation.Direction, parentVals map[string]any) (map[string]any, error) {
	refs, err := o.parentRefValues(ctx, parent, dir, parentVals)
	if err != nil {
		return nil, err
	}
	fks := make(map[string]any, len(dir.FKPairs))
	for _, pair := range dir.FKPairs {
		fks[pair.FK] = refs[pair.Referenced]
	}
	return fks, nil
}

// parentRefValues resolves the parent-side values a child FK copies.
// Relations usually reference the parent's id fields, which are already
// known; a relation referencing another unique column costs one read of
// the parent row, anchored by its ids.
func (o *Orchestrator) parentRefValues(ctx context.Context, parent *schema.Model, dir relation.Direction, known map[string]any) (map[string]any, error) {
	refs := make(map[string]any, len(dir.FKPairs))
	var missing []string
	for _, pair := range dir.FKPairs {
		if v, ok := known[pair.Referenced]; ok {
			refs[pair.Referenced] = v
			continue
		}
		missing = append(missing, pair.Referenced)
	}
	if len(missing) == 0 {
		return refs, nil
	}
	ids, ok := schema.IDValues(parent, known)
	if !ok {
		return nil, ormerr.NewInternal("missing %s id values for relation write", parent.Name)
	}
	row, err := o.findUnique(ctx, parent, ids, missing, nil)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ormerr.NewInternal("%s row disappeared during relation write", parent.Name)
	}
	for _, name := range missing {
		refs[name] = row[name]
	}
	return refs, nil
}

// nullFKValues returns the FK columns mapped to NULL, failing with
// NotSupported when any FK column is required.
func nullFKValues(target *schema.Model, f *schema.Field, dir relation.Direction) (map[string]any, error) {
	fks := make(map[string]any, len(dir.FKPairs))
	for _, pair := range dir.FKPairs {
		fkField := target.Field(pair.FK)
		if fkField == nil || !fkField.Optional {
			return nil, ormerr.NewNotSupported(
				"relation %s.%s is required on %s and cannot be severed; delete the %s row or connect a replacement",
				target.Name, pair.FK, target.Name, target.Name)
		}
		fks[pair.FK] = nil
	}
	return fks, nil
}

// applyRelationVerbs dispatches one relation field's verb list for a
// parent row that already exists. Owning-side payloads never reach this
// point; they resolve into FK column values on the parent's own write.
func (o *Orchestrator) applyRelationVerbs(
	ctx context.Context,
	parent *schema.Model,
	f *schema.Field,
	dir relation.Direction,
	ops []verbOp,
	parentVals map[string]any,
	mode verbMode,
) error {
	for _, op := range ops {
		if !mode.allows(op.verb) {
			return ormerr.NewInvalidInput(
				"relation %s.%s: %s is not valid inside a create", parent.Name, f.Name, op.verb)
		}
	}
	if dir.ManyToMany != nil {
		return o.applyManyToManyVerbs(ctx, parent, f, dir, ops, parentVals)
	}
	return o.applyChildOwnedVerbs(ctx, parent, f, dir, ops, parentVals)
}

// applyChildOwnedVerbs executes verbs against a relation whose FK lives
// on the target (child) table. The parent scope is the FK-equals-parent
// predicate; every nested read and write stays inside it unless the verb
// explicitly reaches outside (connect, connectOrCreate).
func (o *Orchestrator) applyChildOwnedVerbs(
	ctx context.Context,
	parent *schema.Model,
	f *schema.Field,
	dir relation.Direction,
	ops []verbOp,
	parentVals map[string]any,
) error {
	target := dir.Target
	fkSet, err := o.childFKValues(ctx, parent, dir, parentVals)
	if err != nil {
		return err
	}
	scope := o.dialect.Eq(fkSet)

	for _, op := range ops {
		var err error
		switch op.verb {
		case VerbCreate:
			err = o.forEachItem(op.arg, func(item Entity) error {
				_, cerr := o.createEntity(ctx, target, item,
					&fromRelation{model: parent, field: f, dir: dir, ids: parentVals}, false, target.Name)
				return cerr
			})

		case VerbCreateMany:
			rows, skipDuplicates, merr := createManyArg(op.arg)
			if merr != nil {
				err = merr
			} else {
				for i := range rows {
					merged := make(Entity, len(rows[i])+len(fkSet))
					for k, v := range rows[i] {
						merged[k] = v
					}
					for k, v := range fkSet {
						merged[k] = v
					}
					rows[i] = merged
				}
				_, err = o.createManyRows(ctx, target, rows, skipDuplicates)
			}

		case VerbConnect:
			err = o.forEachItem(op.arg, func(filter Entity) error {
				return o.connectChild(ctx, target, filter, fkSet)
			})

		case VerbConnectOrCreate:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, create, aerr := connectOrCreateArg(parent, f, item)
				if aerr != nil {
					return aerr
				}
				cerr := o.connectChild(ctx, target, filter, fkSet)
				if !ormerr.IsNotFound(cerr) {
					return cerr
				}
				_, cerr = o.createEntity(ctx, target, create,
					&fromRelation{model: parent, field: f, dir: dir, ids: parentVals}, false, target.Name)
				return cerr
			})

		case VerbDisconnect:
			err = o.disconnectChild(ctx, target, f, dir, op.arg, scope)

		case VerbSet:
			if !f.Array {
				err = ormerr.NewInvalidInput("relation %s.%s: set requires a list relation", parent.Name, f.Name)
				break
			}
			nulls, nerr := nullFKValues(target, f, dir)
			if nerr != nil {
				err = nerr
				break
			}
			if _, err = o.updateByWhere(ctx, target, nulls, scope); err != nil {
				break
			}
			err = o.forEachItem(op.arg, func(filter Entity) error {
				return o.connectChild(ctx, target, filter, fkSet)
			})

		case VerbUpdate:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, data, aerr := whereDataArg(item, !f.Array)
				if aerr != nil {
					return aerr
				}
				_, uerr := o.updateEntities(ctx, target, filter, data, scope, true)
				return uerr
			})

		case VerbUpsert:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, create, update, aerr := upsertArg(item, !f.Array)
				if aerr != nil {
					return aerr
				}
				existing, ferr := o.findUnique(ctx, target, filter, target.IDFields, scope)
				if ferr != nil {
					return ferr
				}
				if existing != nil {
					_, uerr := o.updateEntities(ctx, target, nil, update, o.dialect.Eq(existing), true)
					return uerr
				}
				_, cerr := o.createEntity(ctx, target, create,
					&fromRelation{model: parent, field: f, dir: dir, ids: parentVals}, false, target.Name)
				return cerr
			})

		case VerbUpdateMany:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, data, aerr := whereDataArg(item, false)
				if aerr != nil {
					return aerr
				}
				return o.updateManyScoped(ctx, target, filter, data, scope)
			})

		case VerbDelete:
			err = o.deleteLinked(ctx, target, f, op.arg, scope, true)

		case VerbDeleteMany:
			err = o.forEachItem(op.arg, func(filter Entity) error {
				_, derr := o.deleteEntities(ctx, target, filter, scope, false, 0)
				return derr
			})

		default:
			err = ormerr.NewInternal("unhandled relation verb %s", op.verb)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// connectChild re-points an existing target row's FK at the parent. The
// target is located by a unique filter over the whole table; a miss is a
// NotFound on the target model.
func (o *Orchestrator) connectChild(ctx context.Context, target *schema.Model, filter Entity, fkSet map[string]any) error {
	row, err := o.findUnique(ctx, target, filter, target.IDFields, nil)
	if err != nil {
		return err
	}
	if row == nil {
		return ormerr.NewNotFoundf(target.Name, "connect target not found")
	}
	_, err = o.updateByWhere(ctx, target, fkSet, o.dialect.Eq(row))
	return err
}

// disconnectChild nulls the child FK. A to-one relation takes `true`, a
// list relation takes unique filters selecting which children to sever;
// filters that match nothing are ignored.
func (o *Orchestrator) disconnectChild(
	ctx context.Context,
	target *schema.Model,
	f *schema.Field,
	dir relation.Direction,
	arg any,
	scope sq.Sqlizer,
) error {
	nulls, err := nullFKValues(target, f, dir)
	if err != nil {
		return err
	}
	if !f.Array {
		if on, ok := arg.(bool); !ok || !on {
			return ormerr.NewInvalidInput("disconnect on a to-one relation takes `true`")
		}
		_, err = o.updateByWhere(ctx, target, nulls, scope)
		return err
	}
	return o.forEachItem(arg, func(filter Entity) error {
		where, werr := o.whereFilter(target, filter)
		if werr != nil {
			return werr
		}
		if where == nil {
			return ormerr.NewInvalidInput("model %s: a unique filter is required", target.Name)
		}
		_, uerr := o.updateByWhere(ctx, target, nulls, andScope(where, scope))
		return uerr
	})
}

// deleteLinked removes linked child rows. To-one takes `true`; a list
// relation takes unique filters, each of which must match inside the
// parent scope.
func (o *Orchestrator) deleteLinked(
	ctx context.Context,
	target *schema.Model,
	f *schema.Field,
	arg any,
	scope sq.Sqlizer,
	requireMatch bool,
) error {
	if !f.Array {
		if on, ok := arg.(bool); !ok || !on {
			return ormerr.NewInvalidInput("delete on a to-one relation takes `true`")
		}
		_, err := o.deleteEntities(ctx, target, nil, scope, requireMatch, 0)
		return err
	}
	return o.forEachItem(arg, func(filter Entity) error {
		_, err := o.deleteEntities(ctx, target, filter, scope, requireMatch, 0)
		return err
	})
}

// applyManyToManyVerbs executes verbs against an implicit many-to-many
// relation. Both side rows always exist independently; the verbs mostly
// maintain join rows, and row-level verbs scope the target table to the
// parent's current membership.
func (o *Orchestrator) applyManyToManyVerbs(
	ctx context.Context,
	parent *schema.Model,
	f *schema.Field,
	dir relation.Direction,
	ops []verbOp,
	parentVals map[string]any,
) error {
	target := dir.Target
	m2m := dir.ManyToMany
	parentID, err := singleID(parent, parentVals)
	if err != nil {
		return err
	}
	membership := func() (sq.Sqlizer, error) {
		id, serr := singleIDField(target)
		if serr != nil {
			return nil, serr
		}
		sub, serr := o.joins.MembershipSub(m2m, parentID)
		if serr != nil {
			return nil, serr
		}
		return o.dialect.InSubquery(id, sub), nil
	}

	for _, op := range ops {
		var err error
		switch op.verb {
		case VerbCreate:
			err = o.forEachItem(op.arg, func(item Entity) error {
				_, cerr := o.createEntity(ctx, target, item,
					&fromRelation{model: parent, field: f, dir: dir, ids: parentVals}, false, target.Name)
				return cerr
			})

		case VerbCreateMany:
			err = ormerr.NewNotSupported(
				"relation %s.%s: createMany is not supported on many-to-many relations", parent.Name, f.Name)

		case VerbConnect:
			err = o.forEachItem(op.arg, func(filter Entity) error {
				return o.connectManyToMany(ctx, target, m2m, parentID, filter)
			})

		case VerbConnectOrCreate:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, create, aerr := connectOrCreateArg(parent, f, item)
				if aerr != nil {
					return aerr
				}
				cerr := o.connectManyToMany(ctx, target, m2m, parentID, filter)
				if !ormerr.IsNotFound(cerr) {
					return cerr
				}
				_, cerr = o.createEntity(ctx, target, create,
					&fromRelation{model: parent, field: f, dir: dir, ids: parentVals}, false, target.Name)
				return cerr
			})

		case VerbDisconnect:
			err = o.forEachItem(op.arg, func(filter Entity) error {
				row, ferr := o.findUnique(ctx, target, filter, target.IDFields, nil)
				if ferr != nil {
					return ferr
				}
				if row == nil {
					return ormerr.NewNotFoundf(target.Name, "disconnect target not found")
				}
				otherID, serr := singleID(target, row)
				if serr != nil {
					return serr
				}
				n, derr := o.joins.Disconnect(ctx, m2m, parentID, otherID)
				if derr != nil {
					return derr
				}
				// Each named item must have been a member.
				if n == 0 {
					return ormerr.NewNotFoundf(target.Name,
						"%s row is not linked through %s.%s", target.Name, parent.Name, f.Name)
				}
				return nil
			})

		case VerbSet:
			if _, err = o.joins.Reset(ctx, m2m, parentID); err != nil {
				break
			}
			err = o.forEachItem(op.arg, func(filter Entity) error {
				return o.connectManyToMany(ctx, target, m2m, parentID, filter)
			})

		case VerbUpdate:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, data, aerr := whereDataArg(item, false)
				if aerr != nil {
					return aerr
				}
				scope, serr := membership()
				if serr != nil {
					return serr
				}
				_, uerr := o.updateEntities(ctx, target, filter, data, scope, true)
				return uerr
			})

		case VerbUpsert:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, create, update, aerr := upsertArg(item, false)
				if aerr != nil {
					return aerr
				}
				scope, serr := membership()
				if serr != nil {
					return serr
				}
				existing, ferr := o.findUnique(ctx, target, filter, target.IDFields, scope)
				if ferr != nil {
					return ferr
				}
				if existing != nil {
					_, uerr := o.updateEntities(ctx, target, nil, update, o.dialect.Eq(existing), true)
					return uerr
				}
				_, cerr := o.createEntity(ctx, target, create,
					&fromRelation{model: parent, field: f, dir: dir, ids: parentVals}, false, target.Name)
				return cerr
			})

		case VerbUpdateMany:
			err = o.forEachItem(op.arg, func(item Entity) error {
				filter, data, aerr := whereDataArg(item, false)
				if aerr != nil {
					return aerr
				}
				scope, serr := membership()
				if serr != nil {
					return serr
				}
				return o.updateManyScoped(ctx, target, filter, data, scope)
			})

		case VerbDelete, VerbDeleteMany:
			requireMatch := op.verb == VerbDelete
			err = o.forEachItem(op.arg, func(filter Entity) error {
				scope, serr := membership()
				if serr != nil {
					return serr
				}
				ids, derr := o.deleteEntities(ctx, target, filter, scope, requireMatch, 0)
				if derr != nil {
					return derr
				}
				for _, idRow := range ids {
					otherID, sderr := singleID(target, idRow)
					if sderr != nil {
						return sderr
					}
					n, sderr := o.joins.Disconnect(ctx, m2m, parentID, otherID)
					if sderr != nil {
						return sderr
					}
					// Membership scoping guarantees a join row unless a
					// concurrent call removed it between read and delete.
					if n == 0 {
						o.log.DebugContext(ctx, "join row already removed",
							"table", m2m.JoinTable, "model", target.Name)
					}
				}
				return nil
			})

		default:
			err = ormerr.NewInternal("unhandled relation verb %s", op.verb)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// connectManyToMany resolves the other side by unique filter and writes
// the join row. Re-connecting an existing pair is a no-op.
func (o *Orchestrator) connectManyToMany(ctx context.Context, target *schema.Model, m2m *relation.ManyToManyInfo, parentID any, filter Entity) error {
	row, err := o.findUnique(ctx, target, filter, target.IDFields, nil)
	if err != nil {
		return err
	}
	if row == nil {
		return ormerr.NewNotFoundf(target.Name, "connect target not found")
	}
	otherID, err := singleID(target, row)
	if err != nil {
		return err
	}
	return o.joins.Connect(ctx, m2m, parentID, otherID)
}

// forEachItem runs fn over a verb argument normalized to a list.
func (o *Orchestrator) forEachItem(arg any, fn func(item Entity) error) error {
	items, err := itemList(arg)
	if err != nil {
		return err
	}
	for _, raw := range items {
		item, err := asObject(raw, "relation operation")
		if err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func singleIDField(m *schema.Model) (string, error) {
	if len(m.IDFields) != 1 {
		return "", ormerr.NewNotSupported(
			"model %s: implicit many-to-many requires a single id field", m.Name)
	}
	return m.IDFields[0], nil
}

// connectOrCreateArg splits a connectOrCreate payload into its where and
// create parts.
func connectOrCreateArg(model *schema.Model, f *schema.Field, arg any) (where, create Entity, err error) {
	obj, err := asObject(arg, "connectOrCreate")
	if err != nil {
		return nil, nil, err
	}
	where, err = asObject(obj["where"], "connectOrCreate.where")
	if err != nil {
		return nil, nil, err
	}
	create, err = asObject(obj["create"], "connectOrCreate.create")
	if err != nil {
		return nil, nil, err
	}
	for key := range obj {
		if key != "where" && key != "create" {
			return nil, nil, ormerr.NewInvalidInput(
				"relation %s.%s: unknown connectOrCreate key %q", model.Name, f.Name, key)
		}
	}
	return where, create, nil
}

// whereDataArg splits a nested update payload. To-one relations may pass
// the data object bare; list relations always use the {where, data}
// envelope.
func whereDataArg(item Entity, allowBare bool) (where, data Entity, err error) {
	rawData, hasData := item["data"]
	if !hasData {
		if allowBare {
			return nil, item, nil
		}
		return nil, nil, ormerr.NewInvalidInput("nested update expects a {where, data} object")
	}
	data, err = asObject(rawData, "update.data")
	if err != nil {
		return nil, nil, err
	}
	if rawWhere, ok := item["where"]; ok {
		where, err = asObject(rawWhere, "update.where")
		if err != nil {
			return nil, nil, err
		}
	}
	for key := range item {
		if key != "where" && key != "data" {
			return nil, nil, ormerr.NewInvalidInput("nested update: unknown key %q", key)
		}
	}
	return where, data, nil
}

// upsertArg splits a nested upsert payload into where, create, update.
// To-one relations may omit where; the parent scope already selects the
// single candidate row.
func upsertArg(item Entity, allowNoWhere bool) (where, create, update Entity, err error) {
	create, err = asObject(item["create"], "upsert.create")
	if err != nil {
		return nil, nil, nil, err
	}
	update, err = asObject(item["update"], "upsert.update")
	if err != nil {
		return nil, nil, nil, err
	}
	if rawWhere, ok := item["where"]; ok {
		where, err = asObject(rawWhere, "upsert.where")
		if err != nil {
			return nil, nil, nil, err
		}
	} else if !allowNoWhere {
		return nil, nil, nil, ormerr.NewInvalidInput("nested upsert expects a where filter")
	}
	for key := range item {
		if key != "where" && key != "create" && key != "update" {
			return nil, nil, nil, ormerr.NewInvalidInput("nested upsert: unknown key %q", key)
		}
	}
	return where, create, update, nil
}
