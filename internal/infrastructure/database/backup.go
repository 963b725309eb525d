package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// defaultPagesPerStep is how many pages each backup step copies.
const defaultPagesPerStep = 100

// BackupOptions controls an online backup.
type BackupOptions struct {
	// PagesPerStep is the number of pages copied per step. Zero means 100;
	// a negative value copies everything in one step.
	PagesPerStep int

	// Progress, if set, is called after every step.
	Progress func(BackupResult)
}

// BackupResult reports backup progress in pages.
type BackupResult struct {
	TotalPages     int
	RemainingPages int
}

// Backup copies the live database into the file at destPath using the
// SQLite online backup API. destPath is created or overwritten.
//
// Parameters:
//   - ctx: Checked between steps; cancelling stops the copy
//   - destPath: Destination database file
//   - opts: Step size and progress callback
//
// Returns:
//   - BackupResult: Final page counts (RemainingPages is 0 on success)
//   - error: If the destination cannot be opened or a step fails
func (db *Database) Backup(ctx context.Context, destPath string, opts BackupOptions) (BackupResult, error) {
	if db.sqlDB == nil {
		return BackupResult{}, ErrClosed
	}

	pages := opts.PagesPerStep
	if pages == 0 {
		pages = defaultPagesPerStep
	}

	if err := os.MkdirAll(filepath.Dir(destPath), dirPermissions); err != nil {
		return BackupResult{}, fmt.Errorf("creating backup directory: %w", err)
	}

	destDB, err := sql.Open("sqlite3", "file:"+destPath)
	if err != nil {
		return BackupResult{}, fmt.Errorf("opening backup destination: %w", err)
	}
	defer destDB.Close() //nolint:errcheck // Destination is closed after the copy finished

	destConn, err := destDB.Conn(ctx)
	if err != nil {
		return BackupResult{}, fmt.Errorf("opening backup destination: %w", err)
	}
	defer destConn.Close() //nolint:errcheck // See above

	var result BackupResult
	err = destConn.Raw(func(destDriver any) error {
		dest, ok := destDriver.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected destination driver %T", destDriver)
		}
		return db.conn.Raw(func(srcDriver any) error {
			src, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected source driver %T", srcDriver)
			}
			return copyPages(ctx, dest, src, pages, opts.Progress, &result)
		})
	})
	if err != nil {
		return result, fmt.Errorf("backing up to %s: %w", destPath, err)
	}

	_ = os.Chmod(destPath, filePermissions) //nolint:errcheck // Best effort, matches Open
	db.logger.Info("database backed up", "destination", destPath, "pages", result.TotalPages)
	return result, nil
}

// copyPages drives a backup from src's main schema into dest's.
func copyPages(ctx context.Context, dest, src *sqlite3.SQLiteConn, pages int, progress func(BackupResult), result *BackupResult) error {
	backup, err := dest.Backup("main", src, "main")
	if err != nil {
		return fmt.Errorf("starting backup: %w", err)
	}

	for {
		done, err := backup.Step(pages)
		if err != nil {
			backup.Finish() //nolint:errcheck // Step error takes precedence
			return fmt.Errorf("backup step: %w", err)
		}
		*result = BackupResult{TotalPages: backup.PageCount(), RemainingPages: backup.Remaining()}
		if progress != nil {
			progress(*result)
		}
		if done {
			break
		}
		if err := ctx.Err(); err != nil {
			backup.Finish() //nolint:errcheck // Cancellation takes precedence
			return err
		}
	}

	if err := backup.Finish(); err != nil {
		return fmt.Errorf("finishing backup: %w", err)
	}
	return nil
}
