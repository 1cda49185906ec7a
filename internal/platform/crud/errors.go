package crud

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness or
	// reference constraint, or a state rule of the resource.
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when the caller may not perform an operation
	// on a specific row.
	ErrForbidden = errors.New("forbidden")
)

// Conflictf returns an ErrConflict carrying a formatted reason.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// PostgreSQL error codes mapped onto sentinel errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgExclusionViolation  = "23P01"
)

// mapPGError translates driver errors into the package sentinels.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Conflictf("%s", detailOr(pgErr, "duplicate value"))
		case pgForeignKeyViolation:
			return Conflictf("%s", detailOr(pgErr, "row is still referenced"))
		case pgExclusionViolation:
			return Conflictf("%s", detailOr(pgErr, "conflicts with an existing row"))
		case pgCheckViolation:
			return Conflictf("%s", detailOr(pgErr, "check constraint "+pgErr.ConstraintName))
		}
	}
	return err
}

func detailOr(pgErr *pgconn.PgError, fallback string) string {
	if pgErr.Detail != "" {
		return pgErr.Detail
	}
	return fallback
}
