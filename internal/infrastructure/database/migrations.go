package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StepKind tags the variant held by a Step.
type StepKind int

const (
	// SchemaStep executes a parameter-free query, usually DDL.
	SchemaStep StepKind = iota + 1

	// ActionStep calls a Go function with the database.
	ActionStep
)

// ActionFunc is a migration step written in Go. It runs inside the step's
// transaction and may block on other work; the transaction and its lock
// stay held until it returns.
type ActionFunc func(ctx context.Context, db *Database) error

// Step is one forward migration. Steps are identified by their position in
// the list passed to Migrate, so a list must only ever grow at the end.
type Step struct {
	kind   StepKind
	name   string
	query  Query
	action ActionFunc
}

// Schema returns a step that runs q through Execute.
func Schema(q Query) Step {
	return Step{kind: SchemaStep, query: q}
}

// SchemaSQL returns a step that runs text through Execute.
func SchemaSQL(text string) Step {
	return Schema(Static(text))
}

// Action returns a step that calls fn.
func Action(fn ActionFunc) Step {
	return Step{kind: ActionStep, action: fn}
}

// WithName returns a copy of s labelled for logs and errors.
func (s Step) WithName(name string) Step {
	s.name = name
	return s
}

// Kind returns the step's variant.
func (s Step) Kind() StepKind {
	return s.kind
}

// Name returns the step's label, which may be empty.
func (s Step) Name() string {
	return s.name
}

// MigrationStatus reports how far a step list has been applied.
type MigrationStatus struct {
	// Applied is the persisted counter, which may exceed the number of
	// steps passed in if the database was migrated by a longer list.
	Applied int

	// Pending holds the indices of steps not yet applied.
	Pending []int
}

// Migrate applies the steps that have not been applied yet, in order.
//
// # Progress
//
// The number of committed steps is stored in PRAGMA user_version, inside
// the database file. Calling Migrate again with the same list is a no-op;
// calling it with a longer list applies only the new steps.
//
// # Atomicity
//
// Each step runs in its own transaction. If step N fails:
//   - Steps before N remain committed
//   - Step N is rolled back
//   - Steps after N are not attempted
//
// Re-running Migrate after fixing the issue continues from N.
//
// # Foreign Keys
//
// If foreign key enforcement is on, it is switched off for the run so steps
// can rebuild tables, and PRAGMA foreign_key_check is run before each step
// commits. Any violation fails the step. Enforcement is restored before
// Migrate returns, whether or not the run succeeded.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - steps: The full, ordered step list
//
// Returns:
//   - error: A *StepError for the first failing step, or a setup error
func (db *Database) Migrate(ctx context.Context, steps ...Step) (err error) {
	if db.sqlDB == nil {
		return ErrClosed
	}
	if db.inTx {
		return ErrNestedTransaction
	}

	applied, err := db.UserVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading migration counter: %w", err)
	}
	if applied >= len(steps) {
		return nil
	}

	fkEnabled, err := db.pragmaInt(ctx, "foreign_keys")
	if err != nil {
		return err
	}
	if fkEnabled == 1 {
		if err := db.setPragmaInt(ctx, "foreign_keys", 0); err != nil {
			return err
		}
		defer func() {
			if restoreErr := db.setPragmaInt(context.WithoutCancel(ctx), "foreign_keys", 1); restoreErr != nil {
				err = errors.Join(err, fmt.Errorf("restoring foreign keys: %w", restoreErr))
			}
		}()
	}

	runStart := time.Now()
	db.logger.Info("applying migrations", "from", applied, "to", len(steps))
	db.observer.MigrationStarted(applied, len(steps))

	for i := applied; i < len(steps); i++ {
		start := time.Now()
		if err := db.applyStep(ctx, i, steps[i], fkEnabled == 1); err != nil {
			stepErr := &StepError{Index: i, Name: steps[i].name, Err: err}
			db.logger.Error("migration step failed", "index", i, "name", steps[i].name, "error", err)
			db.observer.MigrationStepFailed(i, steps[i].name, err)
			return stepErr
		}
		elapsed := time.Since(start)
		db.logger.Info("migration step applied", "index", i, "name", steps[i].name, "duration", elapsed)
		db.observer.MigrationStepCommitted(i, steps[i].name, elapsed)
	}

	db.observer.MigrationCompleted(len(steps), time.Since(runStart))
	return nil
}

// MigrationStatus compares steps against the persisted counter.
func (db *Database) MigrationStatus(ctx context.Context, steps ...Step) (MigrationStatus, error) {
	applied, err := db.UserVersion(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("reading migration counter: %w", err)
	}
	status := MigrationStatus{Applied: applied}
	for i := applied; i < len(steps); i++ {
		status.Pending = append(status.Pending, i)
	}
	return status, nil
}

// applyStep runs step i in its own transaction and advances the counter
// to i+1 before committing.
func (db *Database) applyStep(ctx context.Context, i int, step Step, checkForeignKeys bool) error {
	return db.transaction(ctx, Deferred, func(ctx context.Context) error {
		switch step.kind {
		case SchemaStep:
			if err := db.Execute(ctx, step.query); err != nil {
				return err
			}
		case ActionStep:
			if step.action == nil {
				return fmt.Errorf("action step has no function")
			}
			if err := step.action(ctx, db); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown step kind %d", step.kind)
		}

		if checkForeignKeys {
			if err := db.checkForeignKeys(ctx); err != nil {
				return err
			}
		}

		return db.setPragmaInt(ctx, "user_version", int64(i+1))
	})
}

// checkForeignKeys runs PRAGMA foreign_key_check over the whole database.
func (db *Database) checkForeignKeys(ctx context.Context) error {
	rows, err := db.conn.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Errors surface through rows.Err

	var violations []ForeignKeyViolation
	for rows.Next() {
		var (
			v     ForeignKeyViolation
			rowID *int64
		)
		// rowid is NULL for WITHOUT ROWID tables.
		if err := rows.Scan(&v.Table, &rowID, &v.Parent, &v.FKID); err != nil {
			return fmt.Errorf("scanning foreign key check: %w", err)
		}
		if rowID != nil {
			v.RowID = *rowID
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}

	if len(violations) > 0 {
		return &ForeignKeyError{Violations: violations}
	}
	return nil
}
