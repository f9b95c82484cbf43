package db

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsNotFound reports whether err is GORM's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// transientSQLStates are Postgres error classes worth a retry: connection
// exceptions (08), serialization/deadlock (40), insufficient resources (53),
// operator intervention such as admin shutdown (57).
var transientSQLStates = []string{"08", "40", "53", "57"}

// IsTransient reports whether err looks like a network, timeout or server
// availability failure rather than a logic or constraint error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, class := range transientSQLStates {
			if strings.HasPrefix(pgErr.Code, class) {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad connection")
}

// AsAppError maps a persistence error onto the API taxonomy. Typed errors pass
// through, missing rows become NOT_FOUND with notFoundMsg, transient failures
// become DEPENDENCY_ERROR and anything else INTERNAL_ERROR.
func AsAppError(err error, op, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFoundMsg)
	}
	if IsTransient(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
