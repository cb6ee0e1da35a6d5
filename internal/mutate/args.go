package mutate

import (
	sq "github.com/Masterminds/squirrel"

	"ormcore/internal/ormerr"
	"ormcore/internal/schema"
)

// Verb is one operation of the per-relation-field protocol. The set is
// closed; dispatch matches exhaustively per relation shape.
type Verb int

const (
	VerbCreate Verb = iota
	VerbCreateMany
	VerbConnect
	VerbConnectOrCreate
	VerbDisconnect
	VerbSet
	VerbUpdate
	VerbUpsert
	VerbUpdateMany
	VerbDelete
	VerbDeleteMany
)

var verbNames = map[Verb]string{
	VerbCreate:          "create",
	VerbCreateMany:      "createMany",
	VerbConnect:         "connect",
	VerbConnectOrCreate: "connectOrCreate",
	VerbDisconnect:      "disconnect",
	VerbSet:             "set",
	VerbUpdate:          "update",
	VerbUpsert:          "upsert",
	VerbUpdateMany:      "updateMany",
	VerbDelete:          "delete",
	VerbDeleteMany:      "deleteMany",
}

// verbOrder fixes the processing order inside one relation payload.
// Creates and connects run before removals so `set` semantics (reset
// then re-add) and FK consistency hold; map iteration order never leaks
// into statement ordering.
var verbOrder = []Verb{
	VerbSet,
	VerbCreate,
	VerbCreateMany,
	VerbConnectOrCreate,
	VerbConnect,
	VerbDisconnect,
	VerbUpdate,
	VerbUpsert,
	VerbUpdateMany,
	VerbDelete,
	VerbDeleteMany,
}

func (v Verb) String() string {
	return verbNames[v]
}

type verbOp struct {
	verb Verb
	arg  any
}

// parseRelationPayload validates the verb keys of one relation field's
// payload and returns the operations in canonical order.
func parseRelationPayload(model *schema.Model, field *schema.Field, payload any) ([]verbOp, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, ormerr.NewInvalidInput("relation field %s.%s expects an object payload", model.Name, field.Name)
	}
	byName := make(map[string]Verb, len(verbNames))
	for v, name := range verbNames {
		byName[name] = v
	}
	for key := range m {
		if _, known := byName[key]; !known {
			return nil, ormerr.NewInvalidInput("unknown operation %q on relation %s.%s", key, model.Name, field.Name)
		}
	}
	var ops []verbOp
	for _, v := range verbOrder {
		arg, present := m[verbNames[v]]
		if !present || arg == nil {
			continue
		}
		ops = append(ops, verbOp{verb: v, arg: arg})
	}
	return ops, nil
}

// itemList normalizes a verb argument into a list: a single object is a
// one-item list, a list stays as given.
func itemList(arg any) ([]any, error) {
	switch v := arg.(type) {
	case []any:
		return v, nil
	case []Entity:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case map[string]any:
		return []any{v}, nil
	default:
		return nil, ormerr.NewInvalidInput("expected object or list, got %T", arg)
	}
}

func asObject(arg any, what string) (Entity, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, ormerr.NewInvalidInput("%s must be an object, got %T", what, arg)
	}
	return m, nil
}

// whereFilter compiles a unique/equality filter over a model's own
// table. Filters may touch the model's own scalar fields and its id
// fields; inherited non-id fields live on ancestor tables and are not
// addressable here.
func (o *Orchestrator) whereFilter(model *schema.Model, filter Entity) (sq.Sqlizer, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(filter))
	for name, val := range filter {
		f := model.Field(name)
		if f == nil {
			return nil, ormerr.NewInvalidInput("unknown field %s.%s in filter", model.Name, name)
		}
		if f.IsRelation() {
			return nil, ormerr.NewInvalidInput("relation field %s.%s cannot appear in a scalar filter", model.Name, name)
		}
		if f.OriginModel != "" && !f.ID {
			return nil, ormerr.NewNotSupported(
				"filtering %s by inherited field %s is not supported", model.Name, name)
		}
		values[name] = val
	}
	return o.dialect.Eq(values), nil
}

// scalarUpdateValue transforms one scalar field's update payload into a
// plain value or an arithmetic/array expression. Operator objects must
// carry exactly one operator key.
func (o *Orchestrator) scalarUpdateValue(model *schema.Model, field *schema.Field, raw any) (any, error) {
	opMap, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	if len(opMap) != 1 {
		return nil, ormerr.NewInvalidInput(
			"field %s.%s: exactly one update operator expected, got %d", model.Name, field.Name, len(opMap))
	}
	for op, v := range opMap {
		switch op {
		case "set":
			return v, nil
		case "increment":
			return o.dialect.ArithmeticExpr(field.Name, "+", v), nil
		case "decrement":
			return o.dialect.ArithmeticExpr(field.Name, "-", v), nil
		case "multiply":
			return o.dialect.ArithmeticExpr(field.Name, "*", v), nil
		case "divide":
			return o.dialect.ArithmeticExpr(field.Name, "/", v), nil
		case "push":
			if !field.Array {
				return nil, ormerr.NewInvalidInput("field %s.%s: push requires an array field", model.Name, field.Name)
			}
			return o.dialect.ArrayAppendExpr(field.Name, v)
		default:
			return nil, ormerr.NewInvalidInput("field %s.%s: unknown update operator %q", model.Name, field.Name, op)
		}
	}
	return raw, nil
}

// scalarCreateValue validates one scalar field's create payload; only
// plain values and a {set: v} wrapper are allowed.
func scalarCreateValue(model *schema.Model, field *schema.Field, raw any) (any, error) {
	opMap, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	if v, has := opMap["set"]; has && len(opMap) == 1 {
		return v, nil
	}
	return nil, ormerr.NewInvalidInput("field %s.%s: operator objects are not allowed on create", model.Name, field.Name)
}

// singleID extracts the model's single id value from an id map.
// Implicit many-to-many join tables carry one column per side, so
// composite-id models cannot participate.
func singleID(model *schema.Model, ids map[string]any) (any, error) {
	if len(model.IDFields) != 1 {
		return nil, ormerr.NewNotSupported(
			"model %s: implicit many-to-many requires a single id field", model.Name)
	}
	v, ok := ids[model.IDFields[0]]
	if !ok {
		return nil, ormerr.NewInternal("model %s: missing id value", model.Name)
	}
	return v, nil
}
