package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// memoryPath opens a private in-memory database.
	memoryPath = ":memory:"
)

// Database is one SQLite connection with a statement cache and the query,
// transaction and migration operations built on it.
//
// The underlying pool is capped at a single connection, which is pinned for
// the lifetime of the Database so that explicit BEGIN/COMMIT, PRAGMA changes
// and cached statements all apply to the same engine connection.
//
// Thread Safety:
//   - A Database is NOT safe for concurrent use. Use external locking or
//     open one Database per goroutine.
type Database struct {
	sqlDB *sql.DB
	conn  *sql.Conn
	path  string

	statements *statementCache
	logger     *slog.Logger
	observer   Observer

	// inTx is set while a transactional unit of work is open.
	inTx bool
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	// ":memory:" opens a private in-memory database.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// Logger receives migration progress and statement compilation
	// messages. If nil, a discarding logger is used.
	Logger *slog.Logger

	// Observer is notified of statement compilation and migration
	// progress. If nil, notifications are dropped.
	Observer Observer
}

// Open creates a new database connection with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present) with foreign keys on
//  3. Configures WAL mode and busy timeout
//  4. Pins the single pooled connection
//  5. Sets appropriate file permissions (0600)
//
// Parameters:
//   - ctx: Context for the initial connection
//   - cfg: Database configuration
//
// Returns:
//   - *Database: Connected database
//   - error: If connection or configuration fails
func Open(ctx context.Context, cfg Config) (*Database, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("opening database: path is required")
	}

	connStr := buildConnString(cfg)
	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection, never recycled: the statement cache and any open
	// transaction belong to it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	connCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	conn, err := sqlDB.Conn(connCtx)
	if err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if err := conn.PingContext(connCtx); err != nil {
		conn.Close()  //nolint:errcheck // Best effort cleanup on error path
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if cfg.Path != memoryPath {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may not exist until first write
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	db := &Database{
		sqlDB:    sqlDB,
		conn:     conn,
		path:     cfg.Path,
		logger:   logger,
		observer: observer,
	}
	db.statements = newStatementCache(conn, db.onPrepare)

	return db, nil
}

// buildConnString builds the mattn/go-sqlite3 DSN for cfg.
// See: https://github.com/mattn/go-sqlite3#connection-string
func buildConnString(cfg Config) string {
	if cfg.Path == memoryPath {
		return fmt.Sprintf("file::memory:?_busy_timeout=%d&_foreign_keys=on",
			cfg.BusyTimeout*msPerSecond)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return connStr
}

// Close closes every cached statement and then the connection.
// Calling Close more than once is safe.
//
// Returns:
//   - error: If closing fails
func (db *Database) Close() error {
	if db.sqlDB == nil {
		return nil
	}

	errs := []error{db.statements.close()}
	if err := db.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	errs = append(errs, db.sqlDB.Close())
	db.sqlDB = nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *Database) Path() string {
	return db.path
}

// HealthCheck verifies the database is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *Database) HealthCheck(ctx context.Context) error {
	if db.sqlDB == nil {
		return ErrClosed
	}
	var result int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// CachedStatements returns the number of compiled statements held by the
// cache. The cache never evicts, so this grows with the number of distinct
// query shapes the application issues.
func (db *Database) CachedStatements() int {
	return db.statements.len()
}

// Execute runs a parameter-free query directly on the engine. The source
// may hold several semicolon-separated statements, which makes it the
// entry point for schema text.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - q: Query without parameters
//
// Returns:
//   - error: ErrParameterizedExecute if q has parameters, or the engine error
func (db *Database) Execute(ctx context.Context, q Query) error {
	if db.sqlDB == nil {
		return ErrClosed
	}
	if len(q.parameters) > 0 {
		return fmt.Errorf("%w: %s", ErrParameterizedExecute, q)
	}
	if _, err := db.conn.ExecContext(ctx, q.Source()); err != nil {
		return fmt.Errorf("executing query: %w", err)
	}
	return nil
}

// Pragma runs "PRAGMA <text>" and returns whatever rows it produces.
// text is passed to the engine verbatim.
//
// Example:
//
//	rows, err := db.Pragma(ctx, "table_info(users)")
func (db *Database) Pragma(ctx context.Context, text string) ([]Row, error) {
	if db.sqlDB == nil {
		return nil, ErrClosed
	}
	rows, err := db.conn.QueryContext(ctx, "PRAGMA "+text)
	if err != nil {
		return nil, fmt.Errorf("pragma %s: %w", text, err)
	}
	out, err := collectRows(rows, Options{SafeIntegers: true})
	if err != nil {
		return nil, fmt.Errorf("pragma %s: %w", text, err)
	}
	return out, nil
}

// UserVersion returns the persisted migration counter: the number of
// migration steps that have been committed.
func (db *Database) UserVersion(ctx context.Context) (int, error) {
	v, err := db.pragmaInt(ctx, "user_version")
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// pragmaInt reads a single-valued integer pragma.
func (db *Database) pragmaInt(ctx context.Context, name string) (int64, error) {
	if db.sqlDB == nil {
		return 0, ErrClosed
	}
	var v int64
	if err := db.conn.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading pragma %s: %w", name, err)
	}
	return v, nil
}

// setPragmaInt writes a single-valued integer pragma. PRAGMA does not
// accept bound parameters, so only integers are formatted in.
func (db *Database) setPragmaInt(ctx context.Context, name string, v int64) error {
	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %d", name, v)); err != nil {
		return fmt.Errorf("writing pragma %s: %w", name, err)
	}
	return nil
}

// onPrepare is called by the statement cache after each compilation.
func (db *Database) onPrepare(source string) {
	db.logger.Debug("statement prepared", "source", source)
	db.observer.StatementPrepared(source)
}
