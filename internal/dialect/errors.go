package dialect

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"ormcore/internal/ormerr"
)

// MySQL server error numbers for constraint violations.
const (
	mysqlErrDupEntry         = 1062
	mysqlErrBadNull          = 1048 // column cannot be null
	mysqlErrNoReferencedRow  = 1216
	mysqlErrRowIsReferenced  = 1217
	mysqlErrRowIsReferenced2 = 1451
	mysqlErrNoReferencedRow2 = 1452
)

// Classify maps a driver error to the constraint kind it represents, so
// DBQueryError can carry a backend-independent classification alongside
// the wrapped original.
func Classify(err error) ormerr.ConstraintKind {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDupEntry:
			return ormerr.ConstraintUnique
		case mysqlErrNoReferencedRow, mysqlErrRowIsReferenced, mysqlErrRowIsReferenced2, mysqlErrNoReferencedRow2:
			return ormerr.ConstraintForeignKey
		case mysqlErrBadNull:
			return ormerr.ConstraintNotNull
		}
		return ormerr.ConstraintNone
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQLSTATE class 23: integrity constraint violations.
		switch pgErr.Code {
		case "23505":
			return ormerr.ConstraintUnique
		case "23503":
			return ormerr.ConstraintForeignKey
		case "23502":
			return ormerr.ConstraintNotNull
		}
	}
	return ormerr.ConstraintNone
}
