package database

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for database operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, database.ErrRolledBack) {
//	    // The transaction left no trace
//	}
var (
	// ErrInterpolation is matched by every *InterpolationError.
	ErrInterpolation = errors.New("database: interpolation failed")

	// ErrFragmentCount is returned by Compose when there is not exactly one
	// more fragment than there are substitutions.
	ErrFragmentCount = errors.New("database: fragment count must be substitutions + 1")

	// ErrParameterizedExecute is returned when Execute is given a query
	// carrying bound parameters.
	ErrParameterizedExecute = errors.New("database: execute does not support queries with parameters")

	// ErrRolledBack is joined with the original failure of any transactional
	// unit of work that was rolled back.
	ErrRolledBack = errors.New("database: transaction rolled back")

	// ErrNestedTransaction is returned when a transactional operation is
	// started while another is open on the same Database.
	ErrNestedTransaction = errors.New("database: nested transactions are not supported")

	// ErrForeignKeyViolation is matched by every *ForeignKeyError.
	ErrForeignKeyViolation = errors.New("database: foreign key violation")

	// ErrClosed is returned by operations on a closed Database.
	ErrClosed = errors.New("database: closed")

	// ErrCursorClosed is returned when a Cursor is read after it was closed.
	ErrCursorClosed = errors.New("database: cursor closed")
)

// InterpolationError reports a raw-splice substitution that was not a
// query built by Compose.
type InterpolationError struct {
	Value any
}

func (e *InterpolationError) Error() string {
	return fmt.Sprintf("failed to interpolate raw query %q because it was not created with Compose", fmt.Sprint(e.Value))
}

// Is reports whether target is ErrInterpolation.
func (e *InterpolationError) Is(target error) bool {
	return target == ErrInterpolation
}

// ForeignKeyViolation is one row reported by PRAGMA foreign_key_check.
type ForeignKeyViolation struct {
	Table  string
	RowID  int64
	Parent string
	FKID   int64
}

// ForeignKeyError is returned when a migration step leaves rows that
// reference missing parent keys.
type ForeignKeyError struct {
	Violations []ForeignKeyViolation
}

func (e *ForeignKeyError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s(rowid %d) -> %s", v.Table, v.RowID, v.Parent))
	}
	return fmt.Sprintf("%s: %s", ErrForeignKeyViolation, strings.Join(parts, ", "))
}

// Is reports whether target is ErrForeignKeyViolation.
func (e *ForeignKeyError) Is(target error) bool {
	return target == ErrForeignKeyViolation
}

// StepError identifies the migration step that aborted a Migrate run.
// Steps before Index stay committed.
type StepError struct {
	Index int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("migration step %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("migration step %d: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
