package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate is returned when a write loses a uniqueness race on a unique
// constraint.
var ErrDuplicate = errors.New("duplicate record")

// ErrSerialization is returned when Postgres aborts a serializable
// transaction. It says nothing about which record collided; callers ask the
// client to resubmit.
var ErrSerialization = errors.New("serialization failure")

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

// MapError translates driver-specific uniqueness failures into ErrDuplicate
// and serialization failures into ErrSerialization, keeping the original
// error in the chain. Other errors pass through.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsSerialization(err):
		return &mappedError{sentinel: ErrSerialization, cause: err}
	case IsDuplicate(err):
		return &mappedError{sentinel: ErrDuplicate, cause: err}
	}
	return err
}

// IsSerialization reports whether err is, or wraps, a Postgres 40001. Reads
// are not passed through MapError, so the raw code is checked too.
func IsSerialization(err error) bool {
	if errors.Is(err, ErrSerialization) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}

// IsDuplicate reports whether err is a uniqueness failure from either
// supported driver.
func IsDuplicate(err error) bool {
	if errors.Is(err, ErrDuplicate) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

type mappedError struct {
	sentinel error
	cause    error
}

func (e *mappedError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error {
	return e.cause
}
