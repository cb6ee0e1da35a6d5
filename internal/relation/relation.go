// Package relation resolves the direction of a relation field: which
// side owns the foreign key, the FK/referenced column pairs, and whether
// the relation is an implicit many-to-many.
package relation

import (
	"ormcore/internal/naming"
	"ormcore/internal/ormerr"
	"ormcore/internal/schema"
)

// FKPair maps one foreign-key field on the owning model to the field it
// references on the other model.
type FKPair struct {
	FK         string
	Referenced string
}

// ManyToManyInfo describes the implicit join table of a many-to-many
// relation, resolved from the perspective of one side.
type ManyToManyInfo struct {
	JoinTable string

	// Canonical column assignment after the (modelName, fieldName)
	// lexicographic tie-break: the smaller pair is column A.
	ModelA string
	FieldA string
	ModelB string
	FieldB string

	// ParentColumn/OtherColumn are "A" or "B" relative to the side the
	// relation was resolved from.
	ParentColumn string
	OtherColumn  string

	OtherModel string
	OtherField string
}

// Direction is the result of resolving a relation field.
type Direction struct {
	// Owning reports whether the resolved side's table stores the FK.
	// Always false for many-to-many.
	Owning     bool
	FKPairs    []FKPair
	ManyToMany *ManyToManyInfo

	// Target is the model on the other side of the relation.
	Target *schema.Model
	// Opposite is the target model's field pointing back, if declared.
	Opposite *schema.Field
}

// Resolve determines ownership for model.field. The schema is assumed
// validated; a relation carrying neither FK metadata nor many-to-many
// structure is an invariant failure.
func Resolve(s *schema.Schema, model *schema.Model, field *schema.Field) (Direction, error) {
	if !field.IsRelation() {
		return Direction{}, ormerr.NewInternal("field %s.%s is not a relation", model.Name, field.Name)
	}
	rel := field.Relation
	target, err := s.Model(field.Type)
	if err != nil {
		return Direction{}, err
	}
	opposite := target.Field(rel.Opposite)
	if opposite == nil || !opposite.IsRelation() {
		return Direction{}, ormerr.NewInternal("relation %s.%s has no opposite on %s", model.Name, field.Name, target.Name)
	}

	if len(rel.Fields) > 0 {
		pairs := make([]FKPair, len(rel.Fields))
		for i := range rel.Fields {
			pairs[i] = FKPair{FK: rel.Fields[i], Referenced: rel.References[i]}
		}
		return Direction{Owning: true, FKPairs: pairs, Target: target, Opposite: opposite}, nil
	}

	if oppRel := opposite.Relation; len(oppRel.Fields) > 0 {
		pairs := make([]FKPair, len(oppRel.Fields))
		for i := range oppRel.Fields {
			pairs[i] = FKPair{FK: oppRel.Fields[i], Referenced: oppRel.References[i]}
		}
		return Direction{Owning: false, FKPairs: pairs, Target: target, Opposite: opposite}, nil
	}

	if field.Array && opposite.Array {
		info := manyToMany(model, field, target, rel.Opposite)
		return Direction{ManyToMany: info, Target: target, Opposite: opposite}, nil
	}

	return Direction{}, ormerr.NewInternal(
		"relation %s.%s carries neither fk fields nor many-to-many structure", model.Name, field.Name)
}

// manyToMany computes the canonical A/B assignment. Both sides are
// sorted by (modelName, fieldName) so self-relations stay deterministic
// by field name.
func manyToMany(model *schema.Model, field *schema.Field, target *schema.Model, oppositeField string) *ManyToManyInfo {
	info := &ManyToManyInfo{
		JoinTable:  naming.JoinTable(model.Name, target.Name),
		OtherModel: target.Name,
		OtherField: oppositeField,
	}
	parentFirst := model.Name < target.Name ||
		(model.Name == target.Name && field.Name < oppositeField)
	if parentFirst {
		info.ModelA, info.FieldA = model.Name, field.Name
		info.ModelB, info.FieldB = target.Name, oppositeField
		info.ParentColumn, info.OtherColumn = naming.JoinColumnA, naming.JoinColumnB
	} else {
		info.ModelA, info.FieldA = target.Name, oppositeField
		info.ModelB, info.FieldB = model.Name, field.Name
		info.ParentColumn, info.OtherColumn = naming.JoinColumnB, naming.JoinColumnA
	}
	return info
}

// OwnedByParent reports whether, for a nested operation reached through
// parentField, the parent side stores the FK. Used by create to decide
// between injecting the parent id before insert and reporting the child
// id back for a deferred parent update.
func OwnedByParent(s *schema.Schema, parent *schema.Model, parentField *schema.Field) (bool, error) {
	dir, err := Resolve(s, parent, parentField)
	if err != nil {
		return false, err
	}
	return dir.Owning && dir.ManyToMany == nil, nil
}
