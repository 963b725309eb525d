package database

import (
	"context"
	"errors"
	"fmt"
)

// LockMode selects how a transaction acquires the database lock.
type LockMode int

const (
	// Deferred takes locks on first read or write.
	Deferred LockMode = iota

	// Immediate takes the write lock when the transaction begins.
	Immediate

	// Exclusive takes an exclusive lock when the transaction begins.
	Exclusive
)

// String returns the SQL keyword for the mode.
func (m LockMode) String() string {
	switch m {
	case Immediate:
		return "IMMEDIATE"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return "DEFERRED"
	}
}

// ExecuteTransaction runs work in a deferred transaction.
//
// The transaction commits when work returns nil. If work fails the whole
// transaction is rolled back and the returned error matches both
// ErrRolledBack and work's error:
//
//	err := db.ExecuteTransaction(ctx, func(ctx context.Context) error {
//	    _, err := db.Run(ctx, insertUser)
//	    return err
//	})
//
// work must use the same Database and must not start another transaction.
func (db *Database) ExecuteTransaction(ctx context.Context, work func(ctx context.Context) error) error {
	return db.transaction(ctx, Deferred, work)
}

// ExecuteTransactionImmediate is ExecuteTransaction with BEGIN IMMEDIATE.
func (db *Database) ExecuteTransactionImmediate(ctx context.Context, work func(ctx context.Context) error) error {
	return db.transaction(ctx, Immediate, work)
}

// ExecuteTransactionExclusive is ExecuteTransaction with BEGIN EXCLUSIVE.
func (db *Database) ExecuteTransactionExclusive(ctx context.Context, work func(ctx context.Context) error) error {
	return db.transaction(ctx, Exclusive, work)
}

// Transaction runs work in a deferred transaction on db and returns its
// value. See Database.ExecuteTransaction for commit and rollback rules.
func Transaction[T any](ctx context.Context, db *Database, work func(ctx context.Context) (T, error)) (T, error) {
	return transactionValue(ctx, db, Deferred, work)
}

// TransactionImmediate is Transaction with BEGIN IMMEDIATE.
func TransactionImmediate[T any](ctx context.Context, db *Database, work func(ctx context.Context) (T, error)) (T, error) {
	return transactionValue(ctx, db, Immediate, work)
}

// TransactionExclusive is Transaction with BEGIN EXCLUSIVE.
func TransactionExclusive[T any](ctx context.Context, db *Database, work func(ctx context.Context) (T, error)) (T, error) {
	return transactionValue(ctx, db, Exclusive, work)
}

func transactionValue[T any](ctx context.Context, db *Database, mode LockMode, work func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := db.transaction(ctx, mode, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// transaction brackets work with BEGIN and COMMIT on the pinned connection.
// A panic in work rolls back before it propagates.
func (db *Database) transaction(ctx context.Context, mode LockMode, work func(ctx context.Context) error) error {
	if db.sqlDB == nil {
		return ErrClosed
	}
	if db.inTx {
		return ErrNestedTransaction
	}

	if _, err := db.conn.ExecContext(ctx, "BEGIN "+mode.String()); err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	db.inTx = true

	settled := false
	defer func() {
		db.inTx = false
		if !settled {
			db.rollback() //nolint:errcheck // Panic path; the panic is what matters
		}
	}()

	if err := work(ctx); err != nil {
		settled = true
		return db.abort(err)
	}

	if _, err := db.conn.ExecContext(ctx, "COMMIT"); err != nil {
		settled = true
		return db.abort(fmt.Errorf("committing: %w", err))
	}
	settled = true
	return nil
}

// abort rolls back and wraps cause with ErrRolledBack.
func (db *Database) abort(cause error) error {
	err := fmt.Errorf("%w: %w", ErrRolledBack, cause)
	if rbErr := db.rollback(); rbErr != nil {
		return errors.Join(err, rbErr)
	}
	return err
}

// rollback aborts the open transaction. A context that is already done
// must not prevent the rollback, so it runs without one.
func (db *Database) rollback() error {
	if _, err := db.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
		return fmt.Errorf("rolling back: %w", err)
	}
	return nil
}
