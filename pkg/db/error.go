package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Low-cardinality reasons for failed statements.
const (
	ReasonUniqueViolation      = "unique_violation"
	ReasonLockTimeout          = "lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonConnection           = "connection"
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonNotFound             = "not_found"
	ReasonUnknown              = "unknown"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return true
	}

	msg := err.Error()
	// MySQL 1062, SQLite 2067
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// Classify maps a database error onto one of the Reason* constants.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ReasonNotFound
	case IsDuplicateKeyErr(err):
		return ReasonUniqueViolation
	case hasPGCode(err, "55P03"):
		return ReasonLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case isConnectionErr(err):
		return ReasonConnection
	default:
		return ReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isConnectionErr(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "database is closed")
}
