// Package schema holds the long-lived, read-only model metadata the
// mutation engine operates on. A Schema is built once, validated, and
// then shared across concurrent calls without synchronization.
package schema

import (
	"fmt"

	"ormcore/internal/ormerr"
)

// DefaultKind identifies how an engine-assigned default value is produced.
type DefaultKind int

const (
	// DefaultLiteral uses the literal Value as-is.
	DefaultLiteral DefaultKind = iota
	// DefaultAutoIncrement delegates to the database's auto-increment
	// column; the engine never generates a value itself.
	DefaultAutoIncrement
	// DefaultNow stamps the current time.
	DefaultNow
	// DefaultUUID generates a UUIDv4 string.
	DefaultUUID
	// DefaultCUID generates a collision-resistant cuid string.
	DefaultCUID
	// DefaultNanoID generates a nanoid string.
	DefaultNanoID
	// DefaultULID generates a ULID string.
	DefaultULID
)

// Default describes an engine-assigned default for a field.
type Default struct {
	Kind  DefaultKind
	Value any // only for DefaultLiteral
}

// ReferentialAction is the declared onDelete/onUpdate behavior of a
// relation.
type ReferentialAction int

const (
	ActionNoAction ReferentialAction = iota
	ActionCascade
	ActionRestrict
	ActionSetNull
)

func (a ReferentialAction) String() string {
	switch a {
	case ActionCascade:
		return "Cascade"
	case ActionRestrict:
		return "Restrict"
	case ActionSetNull:
		return "SetNull"
	default:
		return "NoAction"
	}
}

// Relation carries the relation metadata of a relation field.
// Fields/References are present only on the owning side; a relation with
// neither side carrying them and arrays on both sides is an implicit
// many-to-many.
type Relation struct {
	Fields     []string
	References []string
	Opposite   string
	OnDelete   ReferentialAction
	OnUpdate   ReferentialAction
}

// Field is one declared field of a model, scalar or relation.
type Field struct {
	Name     string
	Type     string // scalar type name, or the target model name for relations
	Array    bool
	Optional bool
	Unique   bool
	ID       bool
	Computed bool
	// UpdatedAt marks a timestamp the engine refreshes on every update.
	UpdatedAt bool
	Default   *Default
	// OriginModel names the base model this field was inherited from;
	// empty for fields declared on the model itself.
	OriginModel string
	// ForeignKeyFor lists the relation field names this scalar column
	// stores the foreign key for.
	ForeignKeyFor []string
	Relation      *Relation
}

// IsRelation reports whether the field references another model.
func (f *Field) IsRelation() bool {
	return f.Relation != nil
}

// AutoIncrement reports whether the database assigns this field's value.
func (f *Field) AutoIncrement() bool {
	return f.Default != nil && f.Default.Kind == DefaultAutoIncrement
}

// Model is the metadata of one mapped table (or one level of a delegate
// hierarchy).
type Model struct {
	Name string
	// TableName overrides the mapped table; defaults to Name.
	TableName string
	Fields    []string
	// IDFields names the primary identifier field(s), in declaration order.
	IDFields []string
	// UniqueSets lists additional unique field combinations.
	UniqueSets [][]string
	// BaseModel names the single parent in a delegate chain, if any.
	BaseModel string
	// IsDelegate marks a hierarchy level that carries a discriminator.
	IsDelegate bool
	// Discriminator is the field recording the concrete model name; set
	// only when IsDelegate.
	Discriminator string

	fields     []*Field
	fieldIndex map[string]int
}

// Table returns the mapped table name.
func (m *Model) Table() string {
	if m.TableName != "" {
		return m.TableName
	}
	return m.Name
}

// Field looks up a field by name, inherited fields included.
func (m *Model) Field(name string) *Field {
	if i, ok := m.fieldIndex[name]; ok {
		return m.fields[i]
	}
	return nil
}

// AllFields returns the ordered field list, inherited fields first.
func (m *Model) AllFields() []*Field {
	return m.fields
}

// HasBase reports whether the model extends a delegate base.
func (m *Model) HasBase() bool {
	return m.BaseModel != ""
}

// OwnField reports whether the named field is declared on this model
// rather than inherited from a base.
func (m *Model) OwnField(name string) bool {
	f := m.Field(name)
	return f != nil && f.OriginModel == ""
}

// Schema is the validated, immutable collection of models.
type Schema struct {
	models []*Model
	byName map[string]*Model
}

// Builder accumulates model definitions before validation. Field order
// is preserved as added.
type Builder struct {
	models []*Model
	fields map[string][]*Field
	err    error
}

// NewBuilder returns an empty schema builder.
func NewBuilder() *Builder {
	return &Builder{fields: make(map[string][]*Field)}
}

// Model adds a model definition. Fields are attached via AddField.
func (b *Builder) Model(m *Model) *Builder {
	b.models = append(b.models, m)
	return b
}

// AddField appends a field to a previously added model.
func (b *Builder) AddField(model string, f *Field) *Builder {
	b.fields[model] = append(b.fields[model], f)
	return b
}

// Build validates the accumulated definitions and returns the immutable
// schema. Inherited fields are materialized onto each derived model with
// OriginModel set, so delegate-aware callers can split rows by origin.
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := &Schema{byName: make(map[string]*Model, len(b.models))}
	for _, m := range b.models {
		if _, dup := s.byName[m.Name]; dup {
			return nil, ormerr.NewInternal("duplicate model %s", m.Name)
		}
		m.fields = b.fields[m.Name]
		m.fieldIndex = make(map[string]int, len(m.fields))
		m.Fields = m.Fields[:0]
		for i, f := range m.fields {
			if _, dup := m.fieldIndex[f.Name]; dup {
				return nil, ormerr.NewInternal("duplicate field %s.%s", m.Name, f.Name)
			}
			m.fieldIndex[f.Name] = i
			m.Fields = append(m.Fields, f.Name)
		}
		s.models = append(s.models, m)
		s.byName[m.Name] = m
	}

	if err := s.materializeInheritance(); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Model resolves a model by name.
func (s *Schema) Model(name string) (*Model, error) {
	m, ok := s.byName[name]
	if !ok {
		return nil, ormerr.NewInternal("unknown model %s", name)
	}
	return m, nil
}

// MustModel resolves a model by name and panics when absent. Only for
// schema-construction-time lookups where absence is a programming error.
func (s *Schema) MustModel(name string) *Model {
	m, err := s.Model(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Models returns all models in declaration order.
func (s *Schema) Models() []*Model {
	return s.models
}

// BaseChain returns the delegate ancestors of m, nearest base first and
// the hierarchy root last. Empty when the model has no base.
func (s *Schema) BaseChain(m *Model) ([]*Model, error) {
	var chain []*Model
	seen := map[string]bool{m.Name: true}
	for cur := m; cur.HasBase(); {
		base, err := s.Model(cur.BaseModel)
		if err != nil {
			return nil, err
		}
		if seen[base.Name] {
			return nil, ormerr.NewInternal("delegate cycle through %s", base.Name)
		}
		seen[base.Name] = true
		chain = append(chain, base)
		cur = base
	}
	return chain, nil
}

// Root returns the delegate hierarchy root of m (m itself when it has no
// base).
func (s *Schema) Root(m *Model) (*Model, error) {
	chain, err := s.BaseChain(m)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return m, nil
	}
	return chain[len(chain)-1], nil
}

// materializeInheritance copies base-model fields into each derived
// model, tagged with OriginModel, so a derived model's field map covers
// the whole chain. Fields shadowed by the derived model keep the derived
// declaration.
func (s *Schema) materializeInheritance() error {
	for _, m := range s.models {
		if !m.HasBase() {
			continue
		}
		chain, err := s.BaseChain(m)
		if err != nil {
			return err
		}
		var inherited []*Field
		for _, base := range chain {
			for _, bf := range base.fields {
				if bf.OriginModel != "" {
					continue // base's own inherited copies are re-derived here
				}
				if m.Field(bf.Name) != nil || containsField(inherited, bf.Name) {
					continue
				}
				cp := *bf
				cp.OriginModel = base.Name
				inherited = append(inherited, &cp)
			}
		}
		if len(inherited) == 0 {
			continue
		}
		merged := make([]*Field, 0, len(inherited)+len(m.fields))
		merged = append(merged, inherited...)
		merged = append(merged, m.fields...)
		m.fields = merged
		m.fieldIndex = make(map[string]int, len(merged))
		m.Fields = m.Fields[:0]
		for i, f := range merged {
			m.fieldIndex[f.Name] = i
			m.Fields = append(m.Fields, f.Name)
		}
		// A derived model shares its id with the hierarchy root.
		if len(m.IDFields) == 0 {
			m.IDFields = append([]string(nil), chain[len(chain)-1].IDFields...)
		}
	}
	return nil
}

func containsField(fields []*Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (s *Schema) validate() error {
	for _, m := range s.models {
		if err := s.validateModel(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateModel(m *Model) error {
	if len(m.IDFields) == 0 {
		return ormerr.NewInternal("model %s has no id fields", m.Name)
	}
	for _, idf := range m.IDFields {
		if m.Field(idf) == nil {
			return ormerr.NewInternal("model %s: unknown id field %s", m.Name, idf)
		}
	}
	if m.IsDelegate && m.Discriminator == "" {
		return ormerr.NewInternal("delegate model %s has no discriminator field", m.Name)
	}
	if m.Discriminator != "" && m.Field(m.Discriminator) == nil {
		return ormerr.NewInternal("model %s: unknown discriminator field %s", m.Name, m.Discriminator)
	}
	if m.HasBase() {
		base, ok := s.byName[m.BaseModel]
		if !ok {
			return ormerr.NewInternal("model %s: unknown base model %s", m.Name, m.BaseModel)
		}
		if !base.IsDelegate {
			return ormerr.NewInternal("model %s: base model %s is not a delegate", m.Name, m.BaseModel)
		}
		if _, err := s.BaseChain(m); err != nil {
			return err
		}
	}
	for _, f := range m.fields {
		if err := s.validateField(m, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateField(m *Model, f *Field) error {
	if !f.IsRelation() {
		return nil
	}
	target, ok := s.byName[f.Type]
	if !ok {
		return ormerr.NewInternal("relation %s.%s targets unknown model %s", m.Name, f.Name, f.Type)
	}
	rel := f.Relation
	if len(rel.Fields) != len(rel.References) {
		return ormerr.NewInternal("relation %s.%s: fields/references length mismatch", m.Name, f.Name)
	}
	for _, fk := range rel.Fields {
		if m.Field(fk) == nil {
			return ormerr.NewInternal("relation %s.%s: unknown fk field %s", m.Name, f.Name, fk)
		}
	}
	for _, ref := range rel.References {
		if target.Field(ref) == nil {
			return ormerr.NewInternal("relation %s.%s: unknown referenced field %s.%s", m.Name, f.Name, target.Name, ref)
		}
	}
	if rel.Opposite == "" {
		return ormerr.NewInternal("relation %s.%s has no opposite field", m.Name, f.Name)
	}
	opp := target.Field(rel.Opposite)
	if opp == nil || !opp.IsRelation() {
		return ormerr.NewInternal("relation %s.%s: opposite %s.%s is not a relation", m.Name, f.Name, target.Name, rel.Opposite)
	}
	// The foreign key lives on exactly one side, except many-to-many
	// where neither side stores one.
	if len(rel.Fields) > 0 && len(opp.Relation.Fields) > 0 {
		return ormerr.NewInternal("relation %s.%s: both sides declare fk fields", m.Name, f.Name)
	}
	return nil
}

// IDValues extracts the id-field values of m from an entity row. The
// boolean is false when any id value is missing.
func IDValues(m *Model, entity map[string]any) (map[string]any, bool) {
	ids := make(map[string]any, len(m.IDFields))
	for _, idf := range m.IDFields {
		v, ok := entity[idf]
		if !ok {
			return nil, false
		}
		ids[idf] = v
	}
	return ids, true
}

// String renders a short human-readable model summary, used in error
// messages and logs.
func (m *Model) String() string {
	return fmt.Sprintf("%s(%d fields)", m.Name, len(m.fields))
}
