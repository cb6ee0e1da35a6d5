// Package dialect abstracts per-backend SQL generation and capability
// flags. Mutation algorithms branch on the Capabilities value and never
// hand-write SQL text outside this package.
package dialect

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// InsertIgnoreMethod is how a backend suppresses duplicate-key inserts.
type InsertIgnoreMethod int

const (
	// InsertIgnoreNone means the backend has no native suppression; the
	// duplicate surfaces as a constraint error.
	InsertIgnoreNone InsertIgnoreMethod = iota
	// InsertIgnoreOnConflict appends ON CONFLICT DO NOTHING.
	InsertIgnoreOnConflict
	// InsertIgnoreModifier uses the INSERT IGNORE statement modifier.
	InsertIgnoreModifier
)

// Capabilities is the single value object the engine queries instead of
// scattering per-backend conditionals through each operation.
type Capabilities struct {
	SupportsReturning           bool
	SupportsInsertDefaultValues bool
	SupportsDefaultAsFieldValue bool
	SupportsUpdateWithLimit     bool
	SupportsDeleteWithLimit     bool
	SupportsArrays              bool
	InsertIgnore                InsertIgnoreMethod
}

// Dialect bundles capabilities with the backend's quoting and
// placeholder conventions.
type Dialect struct {
	Name string
	Caps Capabilities

	placeholder sq.PlaceholderFormat
	quoteRune   string
}

// MySQL returns the MySQL/TiDB dialect: question placeholders, backtick
// quoting, INSERT IGNORE, UPDATE/DELETE LIMIT, no RETURNING.
func MySQL() *Dialect {
	return &Dialect{
		Name: "mysql",
		Caps: Capabilities{
			SupportsDefaultAsFieldValue: true,
			SupportsUpdateWithLimit:     true,
			SupportsDeleteWithLimit:     true,
			InsertIgnore:                InsertIgnoreModifier,
		},
		placeholder: sq.Question,
		quoteRune:   "`",
	}
}

// Postgres returns the PostgreSQL dialect: dollar placeholders, double
// quoting, RETURNING, ON CONFLICT DO NOTHING, no LIMIT on writes.
func Postgres() *Dialect {
	return &Dialect{
		Name: "postgres",
		Caps: Capabilities{
			SupportsReturning:           true,
			SupportsInsertDefaultValues: true,
			SupportsDefaultAsFieldValue: true,
			SupportsArrays:              true,
			InsertIgnore:                InsertIgnoreOnConflict,
		},
		placeholder: sq.Dollar,
		quoteRune:   `"`,
	}
}

// SQLite returns the SQLite dialect: question placeholders, double
// quoting, RETURNING, ON CONFLICT DO NOTHING, no LIMIT on writes and no
// DEFAULT keyword in value lists.
func SQLite() *Dialect {
	return &Dialect{
		Name: "sqlite",
		Caps: Capabilities{
			SupportsReturning:           true,
			SupportsInsertDefaultValues: true,
			InsertIgnore:                InsertIgnoreOnConflict,
		},
		placeholder: sq.Question,
		quoteRune:   `"`,
	}
}

// ByName resolves a dialect from its configuration name.
func ByName(name string) (*Dialect, bool) {
	switch strings.ToLower(name) {
	case "mysql", "tidb":
		return MySQL(), true
	case "postgres", "postgresql", "pg":
		return Postgres(), true
	case "sqlite", "sqlite3":
		return SQLite(), true
	default:
		return nil, false
	}
}

// Quote quotes an identifier, escaping embedded quote characters by
// doubling them.
func (d *Dialect) Quote(name string) string {
	escaped := strings.ReplaceAll(name, d.quoteRune, d.quoteRune+d.quoteRune)
	return d.quoteRune + escaped + d.quoteRune
}

func (d *Dialect) quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return quoted
}
