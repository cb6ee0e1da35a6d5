// Package ormerr defines the error taxonomy shared by every mutation
// component. All errors propagate to the caller unmodified; the engine
// performs no retries and no silent downgrades.
package ormerr

import (
	"errors"
	"fmt"
)

// InvalidInputError reports a malformed or contradictory payload that
// survived upstream validation, e.g. multiple incremental-update keys on
// one field.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// NewInvalidInput formats an InvalidInputError.
func NewInvalidInput(format string, args ...any) error {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a required unique target was absent,
// including relation connect/disconnect/delete misses. Model names the
// target model of the failed lookup.
type NotFoundError struct {
	Model   string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "entity not found: " + e.Model
}

// NewNotFound builds a NotFoundError naming the target model.
func NewNotFound(model string) error {
	return &NotFoundError{Model: model}
}

// NewNotFoundf builds a NotFoundError with a custom message.
func NewNotFoundf(model, format string, args ...any) error {
	return &NotFoundError{Model: model, Message: fmt.Sprintf(format, args...)}
}

// NotSupportedError reports a feature/dialect mismatch, e.g. a limited
// delete on a delegate model, or createManyAndReturn on a dialect
// without RETURNING.
type NotSupportedError struct {
	Message string
}

func (e *NotSupportedError) Error() string {
	return e.Message
}

// NewNotSupported formats a NotSupportedError.
func NewNotSupported(format string, args ...any) error {
	return &NotSupportedError{Message: fmt.Sprintf(format, args...)}
}

// InternalError reports a schema/invariant violation. It is never
// expected from validated input; seeing one means the schema metadata is
// inconsistent.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}

// NewInternal formats an InternalError.
func NewInternal(format string, args ...any) error {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// ConstraintKind classifies a database constraint violation carried by a
// DBQueryError, derived from driver-specific error codes.
type ConstraintKind int

const (
	ConstraintNone ConstraintKind = iota
	ConstraintUnique
	ConstraintForeignKey
	ConstraintNotNull
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "unique_violation"
	case ConstraintForeignKey:
		return "foreign_key_violation"
	case ConstraintNotNull:
		return "not_null_violation"
	default:
		return "none"
	}
}

// DBQueryError wraps an underlying execution failure together with the
// SQL text and parameters for diagnostics.
type DBQueryError struct {
	SQL        string
	Args       []any
	Constraint ConstraintKind
	Err        error
}

func (e *DBQueryError) Error() string {
	return fmt.Sprintf("query failed: %v (sql: %s)", e.Err, e.SQL)
}

func (e *DBQueryError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsNotSupported reports whether err is (or wraps) a NotSupportedError.
func IsNotSupported(err error) bool {
	var ns *NotSupportedError
	return errors.As(err, &ns)
}

// IsInvalidInput reports whether err is (or wraps) an InvalidInputError.
func IsInvalidInput(err error) bool {
	var ii *InvalidInputError
	return errors.As(err, &ii)
}
