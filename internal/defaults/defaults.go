// Package defaults fills engine-assigned values before a row reaches the
// write path: id generators, now() timestamps, literal defaults, and
// auto-updated timestamp stamping. Auto-increment columns are detected
// but left to the database.
package defaults

import (
	"time"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"

	"ormcore/internal/ormerr"
	"ormcore/internal/schema"
)

// Clock produces timestamps for now() defaults and updatedAt stamps.
type Clock func() time.Time

// Generators holds the pluggable id generators. Zero-value fields fall
// back to the library defaults.
type Generators struct {
	UUID   func() (string, error)
	CUID   func() (string, error)
	NanoID func() (string, error)
	ULID   func() (string, error)
}

// Resolver applies engine-assigned values.
type Resolver struct {
	clock Clock
	gens  Generators
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(clock Clock) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithGenerators overrides individual id generators.
func WithGenerators(gens Generators) Option {
	return func(r *Resolver) {
		if gens.UUID != nil {
			r.gens.UUID = gens.UUID
		}
		if gens.CUID != nil {
			r.gens.CUID = gens.CUID
		}
		if gens.NanoID != nil {
			r.gens.NanoID = gens.NanoID
		}
		if gens.ULID != nil {
			r.gens.ULID = gens.ULID
		}
	}
}

// NewResolver builds a resolver with the standard generator set.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		clock: time.Now,
		gens: Generators{
			UUID: func() (string, error) {
				return uuid.NewString(), nil
			},
			CUID: func() (string, error) {
				return cuid.New(), nil
			},
			NanoID: func() (string, error) {
				return gonanoid.New()
			},
			ULID: func() (string, error) {
				return ulid.Make().String(), nil
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyCreateDefaults fills in defaults for fields the caller did not
// supply, mutating data in place. Auto-increment columns are skipped;
// updatedAt fields are stamped so the first row version carries a value.
func (r *Resolver) ApplyCreateDefaults(model *schema.Model, data map[string]any) error {
	now := r.clock()
	for _, f := range model.AllFields() {
		if f.IsRelation() || f.Computed {
			continue
		}
		// Inherited fields default on the base model's own write.
		if f.OriginModel != "" {
			continue
		}
		if _, provided := data[f.Name]; provided {
			continue
		}
		if f.UpdatedAt {
			data[f.Name] = now
			continue
		}
		if f.Default == nil {
			continue
		}
		value, generated, err := r.generate(f.Default, now)
		if err != nil {
			return err
		}
		if generated {
			data[f.Name] = value
		}
	}
	return nil
}

// TouchUpdatedAt stamps every auto-updated timestamp field absent from
// data and returns the stamped field names. Callers use the returned set
// to detect updates whose only changes are these stamps.
func (r *Resolver) TouchUpdatedAt(model *schema.Model, data map[string]any) []string {
	now := r.clock()
	var stamped []string
	for _, f := range model.AllFields() {
		if !f.UpdatedAt || f.IsRelation() {
			continue
		}
		if _, provided := data[f.Name]; provided {
			continue
		}
		data[f.Name] = now
		stamped = append(stamped, f.Name)
	}
	return stamped
}

// AutoIncrementIDField returns the model's single auto-increment id
// field, or nil. Used by the read-back strategy on dialects without
// RETURNING, where the insert result's generated key recovers the id.
func AutoIncrementIDField(model *schema.Model) *schema.Field {
	for _, name := range model.IDFields {
		f := model.Field(name)
		if f != nil && f.AutoIncrement() {
			return f
		}
	}
	return nil
}

func (r *Resolver) generate(def *schema.Default, now time.Time) (any, bool, error) {
	switch def.Kind {
	case schema.DefaultLiteral:
		return def.Value, true, nil
	case schema.DefaultNow:
		return now, true, nil
	case schema.DefaultAutoIncrement:
		return nil, false, nil
	case schema.DefaultUUID:
		v, err := r.gens.UUID()
		return v, err == nil, err
	case schema.DefaultCUID:
		v, err := r.gens.CUID()
		return v, err == nil, err
	case schema.DefaultNanoID:
		v, err := r.gens.NanoID()
		return v, err == nil, err
	case schema.DefaultULID:
		v, err := r.gens.ULID()
		return v, err == nil, err
	default:
		return nil, false, ormerr.NewInternal("unknown default kind %d", def.Kind)
	}
}
