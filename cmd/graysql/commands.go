package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/database"
)

var (
	// errExecArgs is returned when --exec is combined with parameters.
	errExecArgs = errors.New("--exec does not accept parameters")

	// errDollarPlaceholder is returned for "$?", which would otherwise be
	// read as a raw splice of a sub-query.
	errDollarPlaceholder = errors.New(`"$?" is not a placeholder; use "?"`)
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migration files",
		Long: `Apply every *.sql file in the migrations directory that has not been
applied yet, in filename order. Each file runs in its own transaction; a
failing file is rolled back and later files are not attempted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if dir == "" {
				dir = s.cfg.Migrations.Dir
			}
			steps, err := database.StepsFromFS(os.DirFS(dir), ".")
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), s.cfg.MigrationTimeout())
			defer cancel()

			before, err := s.db.UserVersion(ctx)
			if err != nil {
				return err
			}

			if err := s.db.Migrate(ctx, steps...); err != nil {
				return fmt.Errorf("migrating %s: %w", dir, err)
			}

			after, err := s.db.UserVersion(ctx)
			if err != nil {
				return err
			}

			s.logger.Info("migrations applied",
				"database", s.name,
				"run_id", s.observer.RunID(),
				"from", before,
				"to", after,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), version %d\n", after-before, after)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default from config)")
	return cmd
}

func statusCmd(flags *globalFlags) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if dir == "" {
				dir = s.cfg.Migrations.Dir
			}
			steps, err := database.StepsFromFS(os.DirFS(dir), ".")
			if err != nil {
				return err
			}

			status, err := s.db.MigrationStatus(cmd.Context(), steps...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database: %s\n", s.db.Path())
			fmt.Fprintf(out, "applied:  %d\n", status.Applied)
			fmt.Fprintf(out, "pending:  %d\n", len(status.Pending))
			for _, i := range status.Pending {
				fmt.Fprintf(out, "  [%d] %s\n", i, steps[i].Name())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default from config)")
	return cmd
}

func backupCmd(flags *globalFlags) *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "backup <destination>",
		Short: "Copy the live database to a file",
		Long: `Copy the database to destination using SQLite's online backup, a few
pages at a time. The destination is created or overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("pages") {
				pages = s.cfg.Backup.PagesPerStep
			}

			start := time.Now()
			result, err := s.db.Backup(cmd.Context(), args[0], database.BackupOptions{
				PagesPerStep: pages,
				Progress: func(p database.BackupResult) {
					s.logger.Debug("backup progress", "remaining", p.RemainingPages, "total", p.TotalPages)
				},
			})
			if err != nil {
				return err
			}

			if s.influx != nil {
				s.influx.WriteBackup(s.name, result.TotalPages, time.Since(start))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backed up %d page(s) to %s\n", result.TotalPages, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 0, "Pages copied per step; negative copies all at once (default from config)")
	return cmd
}

func queryCmd(flags *globalFlags) *cobra.Command {
	var (
		run          bool
		exec         bool
		safeIntegers bool
	)

	cmd := &cobra.Command{
		Use:   "query <sql> [params...]",
		Short: "Run one statement and print the result as JSON",
		Long: `Run sql against the database. Each ? in sql is bound to the next
param as text; params are never spliced into the statement. A ? inside a
quoted string also counts, and "$?" is rejected.

By default the result rows are printed as one JSON object per line. With
--run the statement is treated as a mutation and its change count and last
inserted rowid are printed instead. With --exec sql may hold several
statements and takes no params.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			enc := json.NewEncoder(cmd.OutOrStdout())

			if exec {
				if len(args) > 1 {
					return errExecArgs
				}
				return s.db.Execute(ctx, database.Static(args[0]))
			}

			q, err := composeArgs(args[0], args[1:])
			if err != nil {
				return err
			}

			if run {
				result, err := s.db.Run(ctx, q)
				if err != nil {
					return err
				}
				return enc.Encode(map[string]int64{
					"changes":           result.Changes,
					"last_insert_rowid": result.LastInsertRowID,
				})
			}

			cursor, err := s.db.Iterate(ctx, q, database.WithSafeIntegers(safeIntegers))
			if err != nil {
				return err
			}
			defer cursor.Close() //nolint:errcheck // Err is checked below

			for cursor.Next() {
				if err := enc.Encode(cursor.Row()); err != nil {
					return err
				}
			}
			return cursor.Err()
		},
	}

	cmd.Flags().BoolVar(&run, "run", false, "Print changes and last insert rowid instead of rows")
	cmd.Flags().BoolVar(&exec, "exec", false, "Execute a multi-statement script without params")
	cmd.Flags().BoolVar(&safeIntegers, "safe-integers", false, "Decode integers exactly instead of as floating point")
	cmd.MarkFlagsMutuallyExclusive("run", "exec")
	return cmd
}

// composeArgs splits text at each ? and binds params in order.
//
// A ? inside a string literal is also treated as a placeholder. A ? directly
// after $ is rejected.
func composeArgs(text string, params []string) (database.Query, error) {
	fragments := strings.Split(text, "?")
	for _, f := range fragments[:len(fragments)-1] {
		if strings.HasSuffix(f, "$") {
			return database.Query{}, errDollarPlaceholder
		}
	}
	substitutions := make([]any, len(params))
	for i, p := range params {
		substitutions[i] = p
	}

	q, err := database.Compose(fragments, substitutions...)
	if err != nil {
		return database.Query{}, fmt.Errorf("sql has %d placeholder(s) but %d param(s) given: %w",
			len(fragments)-1, len(params), err)
	}
	return q, nil
}
