package database

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Migration filename parsing constants.
const (
	// upSuffix marks the forward half of an up/down pair. Down files are
	// ignored: migrations only move forward.
	upSuffix   = ".up"
	downSuffix = ".down"
)

// StepsFromFS loads every "*.sql" file in dir as a Schema step.
//
// Files are ordered by filename, so they need a sortable prefix such as
// "0001_create_users.sql" or "20260118_120000_initial_schema.up.sql".
// New files must sort after existing ones to keep step indices stable.
// "*.down.sql" files are skipped.
//
// Parameters:
//   - fsys: Filesystem holding the migration files (os.DirFS or embed.FS)
//   - dir: Directory within fsys, "." for its root
//
// Returns:
//   - []Step: One named Schema step per file, in filename order
//   - error: If the directory or a file cannot be read
func StepsFromFS(fsys fs.FS, dir string) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := parseMigrationFilename(entry.Name()); ok {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	steps := make([]Step, 0, len(files))
	for _, file := range files {
		text, err := fs.ReadFile(fsys, path.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		name, _ := parseMigrationFilename(file)
		steps = append(steps, SchemaSQL(string(text)).WithName(name))
	}
	return steps, nil
}

// parseMigrationFilename returns the description part of a forward
// migration filename, and ok=false for anything that is not one. Leading
// all-digit segments are the ordering prefix.
// Example: "20260118_120000_add_email.up.sql" -> "add_email"
func parseMigrationFilename(filename string) (name string, ok bool) {
	if !strings.HasSuffix(filename, ".sql") {
		return "", false
	}
	base := strings.TrimSuffix(filename, ".sql")
	if strings.HasSuffix(base, downSuffix) {
		return "", false
	}
	base = strings.TrimSuffix(base, upSuffix)

	parts := strings.Split(base, "_")
	for i, part := range parts {
		if !isDigits(part) {
			return strings.Join(parts[i:], "_"), true
		}
	}
	return base, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
