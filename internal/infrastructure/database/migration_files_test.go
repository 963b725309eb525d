package database

import (
	"context"
	"testing"
	"testing/fstest"
)

// TestStepsFromFS verifies loading migration files in filename order.
func TestStepsFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/20260118_120000_create_users.up.sql": {
			Data: []byte(`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY, "name" TEXT)`),
		},
		"migrations/20260118_120000_create_users.down.sql": {
			Data: []byte(`DROP TABLE "users"`),
		},
		"migrations/20260120_090000_add_email.up.sql": {
			Data: []byte(`ALTER TABLE "users" ADD COLUMN "email" TEXT`),
		},
		"migrations/README.md": {Data: []byte("ignored")},
	}

	steps, err := StepsFromFS(fsys, "migrations")
	if err != nil {
		t.Fatalf("StepsFromFS() error = %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("StepsFromFS() returned %d steps, want 2", len(steps))
	}
	if steps[0].Name() != "create_users" || steps[1].Name() != "add_email" {
		t.Errorf("names = %q, %q; want create_users, add_email", steps[0].Name(), steps[1].Name())
	}
	if steps[0].Kind() != SchemaStep {
		t.Errorf("Kind() = %v, want SchemaStep", steps[0].Kind())
	}

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), steps...); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	rows, err := db.Pragma(context.Background(), `table_info("users")`)
	if err != nil {
		t.Fatalf("Pragma() error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("users columns = %d, want 3", len(rows))
	}
}

// TestStepsFromFSMissingDir verifies a missing directory is an error.
func TestStepsFromFSMissingDir(t *testing.T) {
	if _, err := StepsFromFS(fstest.MapFS{}, "nope"); err == nil {
		t.Error("StepsFromFS() with missing directory should fail")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		wantName string
		wantOK   bool
	}{
		{"20260118_120000_initial_schema.up.sql", "initial_schema", true},
		{"0001_create_users.sql", "create_users", true},
		{"20260118_120000_initial_schema.down.sql", "", false},
		{"notes.txt", "", false},
		{"0002.sql", "0002", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || name != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v), want (%q, %v)",
					tt.filename, name, ok, tt.wantName, tt.wantOK)
			}
		})
	}
}
