// Package jointable manages the implicit join tables behind many-to-many
// relations: two FK columns named A and B, membership connect/disconnect,
// and full-membership reset. Which relation side maps to which column is
// fixed by the (modelName, fieldName) lexicographic tie-break computed in
// the relation resolver.
package jointable

import (
	"context"
	"errors"

	"ormcore/internal/dbexec"
	"ormcore/internal/dialect"
	"ormcore/internal/naming"
	"ormcore/internal/ormerr"
	"ormcore/internal/relation"
)

// Coordinator performs join-table writes.
type Coordinator struct {
	dialect *dialect.Dialect
	exec    *dbexec.Executor
}

// New builds a coordinator over the given dialect and executor.
func New(d *dialect.Dialect, exec *dbexec.Executor) *Coordinator {
	return &Coordinator{dialect: d, exec: exec}
}

// columnValues orients (parentID, otherID) into the canonical (A, B)
// assignment.
func columnValues(m2m *relation.ManyToManyInfo, parentID, otherID any) (a, b any) {
	if m2m.ParentColumn == naming.JoinColumnA {
		return parentID, otherID
	}
	return otherID, parentID
}

// Connect inserts the (A, B) join row. Re-connecting an existing pair is
// a no-op: duplicates are suppressed via the dialect's insert-ignore
// capability, or by swallowing the unique violation when the backend has
// none.
func (c *Coordinator) Connect(ctx context.Context, m2m *relation.ManyToManyInfo, parentID, otherID any) error {
	a, b := columnValues(m2m, parentID, otherID)
	q, err := c.dialect.InsertIgnore(m2m.JoinTable, []string{naming.JoinColumnA, naming.JoinColumnB}, []any{a, b})
	if err != nil {
		return err
	}
	if _, err := c.exec.Exec(ctx, q); err != nil {
		if c.dialect.Caps.InsertIgnore == dialect.InsertIgnoreNone && isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// Disconnect deletes the matching (A, B) row and reports how many rows
// went away.
func (c *Coordinator) Disconnect(ctx context.Context, m2m *relation.ManyToManyInfo, parentID, otherID any) (int64, error) {
	a, b := columnValues(m2m, parentID, otherID)
	where := c.dialect.Eq(map[string]any{
		naming.JoinColumnA: a,
		naming.JoinColumnB: b,
	})
	q, err := c.dialect.Delete(m2m.JoinTable, where, 0)
	if err != nil {
		return 0, err
	}
	res, err := c.exec.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.NumAffected, nil
}

// Reset deletes every join row on the parent's side, so a subsequent
// set operation can re-add the desired membership inside the same
// transaction.
func (c *Coordinator) Reset(ctx context.Context, m2m *relation.ManyToManyInfo, parentID any) (int64, error) {
	where := c.dialect.Eq(map[string]any{m2m.ParentColumn: parentID})
	q, err := c.dialect.Delete(m2m.JoinTable, where, 0)
	if err != nil {
		return 0, err
	}
	res, err := c.exec.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.NumAffected, nil
}

// MembershipSub compiles the subquery selecting the other side's ids for
// one parent, used to scope nested many-to-many updates and deletes:
// `<otherIdColumn> IN (SELECT <otherColumn> FROM <joinTable> WHERE
// <parentColumn> = ?)`.
func (c *Coordinator) MembershipSub(m2m *relation.ManyToManyInfo, parentID any) (dialect.SQLQuery, error) {
	where := c.dialect.Eq(map[string]any{m2m.ParentColumn: parentID})
	return c.dialect.SelectSub(m2m.JoinTable, []string{m2m.OtherColumn}, where, 0)
}

func isUniqueViolation(err error) bool {
	var dbErr *ormerr.DBQueryError
	return errors.As(err, &dbErr) && dbErr.Constraint == ormerr.ConstraintUnique
}
