// Package repository holds the MySQL data access for users, roles, books,
// reservations and refresh tokens. Every method reads its connection from
// the context through conn, so callers decide the transaction scope with
// TxManager.RunInTx. Errors leave the package classified: missing rows are
// NotFound, duplicate keys are Conflict, the rest go through
// apperr.Classify.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/library-reservation/internal/apperr"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// IsDuplicate reports whether err is a unique key violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// translate classifies a driver error. notFound is the client message used
// for sql.ErrNoRows and conflict the one used for duplicate keys.
func translate(op string, err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound(op, notFound)
	case IsDuplicate(err):
		e := apperr.Conflict(op, conflict)
		e.Err = err
		return e
	default:
		return apperr.Classify(op, err)
	}
}

// rowsAffectedOrNotFound turns a zero-row UPDATE/DELETE into NotFound.
func rowsAffectedOrNotFound(op string, res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Classify(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, notFound)
	}
	return nil
}
