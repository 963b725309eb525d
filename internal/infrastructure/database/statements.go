package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// statementCache maps exact source text to a statement compiled on one
// connection. Entries are created on first use and live until close.
//
// There is no eviction: the cache is only bounded if the set of distinct
// query shapes is. Sequence expansion produces one shape per list length.
//
// A compiled statement has a single result cursor, and executing it again
// resets that cursor. A cached statement is therefore leased to one call at
// a time; while it is leased, callers with the same source get a private
// statement that is closed on release.
type statementCache struct {
	conn       *sql.Conn
	statements map[string]*sql.Stmt
	busy       map[string]bool
	onPrepare  func(source string)
}

func newStatementCache(conn *sql.Conn, onPrepare func(source string)) *statementCache {
	return &statementCache{
		conn:       conn,
		statements: make(map[string]*sql.Stmt),
		busy:       make(map[string]bool),
		onPrepare:  onPrepare,
	}
}

// acquire returns a statement for source and the func that gives it back.
// release must be called exactly once, after any rows it produced are closed.
func (c *statementCache) acquire(ctx context.Context, source string) (stmt *sql.Stmt, release func(), err error) {
	if stmt, ok := c.statements[source]; ok {
		if !c.busy[source] {
			c.busy[source] = true
			return stmt, func() { delete(c.busy, source) }, nil
		}

		// Leased by an open cursor: compile a private copy.
		private, err := c.prepare(ctx, source)
		if err != nil {
			return nil, nil, err
		}
		return private, func() {
			private.Close() //nolint:errcheck // Private statement, nothing to report
		}, nil
	}

	stmt, err = c.prepare(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	c.statements[source] = stmt
	c.busy[source] = true
	return stmt, func() { delete(c.busy, source) }, nil
}

func (c *statementCache) prepare(ctx context.Context, source string) (*sql.Stmt, error) {
	stmt, err := c.conn.PrepareContext(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	if c.onPrepare != nil {
		c.onPrepare(source)
	}
	return stmt, nil
}

func (c *statementCache) len() int {
	return len(c.statements)
}

// close closes every statement and empties the cache.
func (c *statementCache) close() error {
	var errs []error
	for source, stmt := range c.statements {
		if err := stmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing statement %q: %w", source, err))
		}
	}
	clear(c.statements)
	clear(c.busy)
	return errors.Join(errs...)
}
