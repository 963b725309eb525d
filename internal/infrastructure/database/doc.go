// Package database provides safe query composition and execution on top of
// SQLite (github.com/mattn/go-sqlite3).
//
// This package manages:
//   - Query composition from literal fragments and bound parameters
//   - A per-connection prepared statement cache
//   - Single-row, multi-row, lazy and transactional execution
//   - Ordered, resumable migrations with foreign key verification
//   - Online backup to a file
//
// # Composing Queries
//
// A Query is never built by string concatenation. Compose takes the literal
// SQL around each value and binds every value as a parameter:
//
//	q, err := database.Compose(
//	    []string{`SELECT * FROM "users" WHERE "name" = `, ` AND "id" IN `, ``},
//	    name, database.List(1, 2, 3),
//	)
//	// SELECT * FROM "users" WHERE "name" = ? AND "id" IN (?,?,?)
//
// A fragment ending in "$" splices a previously composed Query in place,
// parameters included. Anything else in that position is rejected with an
// *InterpolationError, so raw text can never reach the engine unbound.
//
// # Executing
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/app.db", BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	res, err := db.Run(ctx, insert)          // RunResult{Changes, LastInsertRowID}
//	row, found, err := db.Get(ctx, selectOne) // found == false when no row
//	rows, err := db.All(ctx, selectMany)
//
// Statements are compiled once per distinct source text and kept for the
// life of the Database.
//
// # Migrations
//
//	err := db.Migrate(ctx,
//	    database.SchemaSQL(`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY, "name" TEXT)`),
//	    database.Action(func(ctx context.Context, db *database.Database) error {
//	        _, err := db.Run(ctx, seedAdmin)
//	        return err
//	    }),
//	)
//
// Progress is stored in PRAGMA user_version. Each step commits on its own,
// so a failed run leaves earlier steps applied and the next call resumes at
// the failed step.
//
// Security Considerations:
//   - All values are bound as parameters (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
package database
