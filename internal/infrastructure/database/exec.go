package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Options adjusts how a single Run, Get, All or Iterate call decodes its
// results. It never changes the cached statement, so other calls with the
// same source are unaffected.
type Options struct {
	// SafeIntegers decodes INTEGER values as int64. Without it they are
	// decoded as float64, the same generic number representation
	// encoding/json produces, which is lossy above 2^53.
	SafeIntegers bool
}

// Option sets a field of Options.
type Option func(*Options)

// WithSafeIntegers enables or disables exact int64 decoding for one call.
func WithSafeIntegers(enabled bool) Option {
	return func(o *Options) {
		o.SafeIntegers = enabled
	}
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RunResult summarises the effect of a mutating statement.
type RunResult struct {
	// Changes is the number of rows inserted, updated or deleted.
	Changes int64

	// LastInsertRowID is the rowid of the most recent successful INSERT on
	// the connection.
	LastInsertRowID int64
}

// Row is one result row keyed by column name. When a result has repeated
// column names the rightmost value wins.
//
// Values are nil, string, []byte, float64 or int64. INTEGER columns,
// rowids included, are float64 unless the call passed WithSafeIntegers(true),
// so integers beyond ±2^53 lose precision by default. REAL columns are
// always float64.
type Row map[string]any

// Run executes q and reports rows changed and the last inserted rowid.
// Options are accepted for symmetry with the reading operations; the
// RunResult fields are always exact int64.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - q: Query to execute
//
// Returns:
//   - RunResult: Mutation summary
//   - error: If preparing or executing fails
func (db *Database) Run(ctx context.Context, q Query, _ ...Option) (RunResult, error) {
	stmt, release, err := db.statement(ctx, q)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	res, err := stmt.ExecContext(ctx, q.parameters...)
	if err != nil {
		return RunResult{}, fmt.Errorf("running query: %w", err)
	}
	changes, err := res.RowsAffected()
	if err != nil {
		return RunResult{}, fmt.Errorf("reading rows affected: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return RunResult{}, fmt.Errorf("reading last insert id: %w", err)
	}
	return RunResult{Changes: changes, LastInsertRowID: lastID}, nil
}

// Get returns the first row produced by q. The boolean is false, with a
// nil Row and nil error, when q produces no rows.
func (db *Database) Get(ctx context.Context, q Query, opts ...Option) (Row, bool, error) {
	cursor, err := db.Iterate(ctx, q, opts...)
	if err != nil {
		return nil, false, err
	}
	defer cursor.Close() //nolint:errcheck // Read-only cursor; Err covers failures

	if !cursor.Next() {
		if err := cursor.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return cursor.Row(), true, nil
}

// All returns every row produced by q, in order. The result is never nil.
func (db *Database) All(ctx context.Context, q Query, opts ...Option) ([]Row, error) {
	stmt, release, err := db.statement(ctx, q)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := stmt.QueryContext(ctx, q.parameters...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	return collectRows(rows, buildOptions(opts))
}

// Iterate runs q and returns a forward-only Cursor over its rows.
// The cursor is single-pass; call Iterate again to read the rows again.
// The caller must Close the cursor unless it is read to the end.
//
// Example:
//
//	cursor, err := db.Iterate(ctx, q)
//	if err != nil {
//	    return err
//	}
//	defer cursor.Close()
//	for cursor.Next() {
//	    row := cursor.Row()
//	    // ...
//	}
//	return cursor.Err()
func (db *Database) Iterate(ctx context.Context, q Query, opts ...Option) (*Cursor, error) {
	stmt, release, err := db.statement(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, q.parameters...)
	if err != nil {
		release()
		return nil, fmt.Errorf("querying: %w", err)
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close() //nolint:errcheck // Returning the Columns error
		release()
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	return &Cursor{rows: rows, columns: columns, opts: buildOptions(opts), release: release}, nil
}

// statement validates q and leases a statement for its source. The caller
// must call release once it no longer reads from the statement's rows.
func (db *Database) statement(ctx context.Context, q Query) (stmt *sql.Stmt, release func(), err error) {
	if db.sqlDB == nil {
		return nil, nil, ErrClosed
	}
	if !q.valid() {
		return nil, nil, &InterpolationError{Value: q}
	}
	return db.statements.acquire(ctx, q.Source())
}

// Cursor is a lazy, single-pass sequence of rows bound to an open result
// set. It releases the result set once the last row has been read.
//
// While a cursor is open, other calls with the same source text run on a
// separate statement, so nested lookups never disturb its position.
type Cursor struct {
	rows    *sql.Rows
	columns []string
	opts    Options
	release func()

	current Row
	err     error

	// done is set when the rows are exhausted or failed, closed when the
	// caller closed the cursor early.
	done   bool
	closed bool
}

// Next advances to the next row. It returns false at the end of the rows
// or on error; check Err afterwards.
func (c *Cursor) Next() bool {
	c.current = nil
	if c.done {
		return false
	}
	if c.closed {
		c.err = ErrCursorClosed
		return false
	}

	if !c.rows.Next() {
		c.finish(c.rows.Err())
		return false
	}

	row, err := scanRow(c.rows, c.columns, c.opts)
	if err != nil {
		c.finish(err)
		return false
	}
	c.current = row
	return true
}

// Row returns the row Next moved to.
func (c *Cursor) Row() Row {
	return c.current
}

// Columns returns the result column names.
func (c *Cursor) Columns() []string {
	return append([]string(nil), c.columns...)
}

// Err returns the error, if any, that ended iteration.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the result set. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.done || c.closed {
		return nil
	}
	c.closed = true
	err := c.rows.Close()
	c.release()
	if err != nil {
		return fmt.Errorf("closing cursor: %w", err)
	}
	return nil
}

// finish records the end of iteration and releases the result set.
func (c *Cursor) finish(err error) {
	c.done = true
	if err != nil {
		c.err = fmt.Errorf("iterating rows: %w", err)
	}
	c.rows.Close() //nolint:errcheck // Iteration error already recorded
	c.release()
}

// collectRows drains and closes rows.
func collectRows(rows *sql.Rows, opts Options) ([]Row, error) {
	defer rows.Close() //nolint:errcheck // Errors surface through rows.Err

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows, columns, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// scanRow reads the current row into a Row.
func scanRow(rows *sql.Rows, columns []string, opts Options) (Row, error) {
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}

	row := make(Row, len(columns))
	for i, name := range columns {
		row[name] = decodeValue(values[i], opts)
	}
	return row, nil
}

// decodeValue applies the per-call numeric representation.
func decodeValue(v any, opts Options) any {
	if n, ok := v.(int64); ok && !opts.SafeIntegers {
		return float64(n)
	}
	return v
}
