// Package naming provides the table and column naming conventions of the
// engine: implicit join-table names, their fixed A/B columns, and the
// optional pluralized table mapping.
package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// JoinColumnA and JoinColumnB are the two foreign-key columns of every
// implicit many-to-many join table. Which relation side maps to which
// column is decided by the coordinator's tie-break, not here.
const (
	JoinColumnA = "A"
	JoinColumnB = "B"
)

// JoinTable returns the implicit join-table name for a many-to-many
// relation between two models. The models are sorted so both sides agree
// on the name regardless of traversal direction.
func JoinTable(modelA, modelB string) string {
	if modelB < modelA {
		modelA, modelB = modelB, modelA
	}
	return "_" + modelA + "To" + modelB
}

// PluralTable maps a model name to a pluralized snake_case table name,
// for schemas that opt into conventional table naming.
// Example: "UserProfile" -> "user_profiles".
func PluralTable(model string) string {
	return inflection.Plural(ToSnakeCase(model))
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
func ToSnakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ForeignKeyField derives the conventional scalar FK field name for a
// to-one relation field, e.g. "author" -> "authorId".
func ForeignKeyField(relationField, referencedField string) string {
	if referencedField == "" {
		referencedField = "id"
	}
	return relationField + upperFirst(referencedField)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
