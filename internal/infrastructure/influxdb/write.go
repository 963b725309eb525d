package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by graysql.
const (
	measurementStatements = "statements_prepared"
	measurementSteps      = "migration_step"
	measurementRuns       = "migration_run"
	measurementBackups    = "backup"
)

// Step outcomes used as the "outcome" tag.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// WriteStatementPrepared records one statement compilation.
//
// Each distinct source text is compiled once per connection, so a steady
// stream of these points means the application keeps producing new query
// shapes (e.g. lists of varying length).
//
// Parameters:
//   - database: Database name tag
//   - sourceBytes: Length of the compiled source text
func (c *Client) WriteStatementPrepared(database string, sourceBytes int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statementPoint(database, sourceBytes, time.Now()))
}

// WriteMigrationStep records the outcome of one migration step.
//
// Parameters:
//   - database: Database name tag
//   - runID: Identifies the Migrate call the step belongs to
//   - index: Step position in the list
//   - name: Step label, may be empty
//   - outcome: OutcomeCommitted or OutcomeRolledBack
//   - elapsed: Time spent in the step (zero when unknown)
func (c *Client) WriteMigrationStep(database, runID string, index int, name, outcome string, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stepPoint(database, runID, index, name, outcome, elapsed, time.Now()))
}

// WriteMigrationRun records a completed migration run.
func (c *Client) WriteMigrationRun(database, runID string, from, to int, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(runPoint(database, runID, from, to, elapsed, time.Now()))
}

// WriteBackup records a completed online backup.
func (c *Client) WriteBackup(database string, pages int, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		measurementBackups,
		map[string]string{"database": database},
		map[string]any{
			"pages":       pages,
			"duration_ms": elapsed.Milliseconds(),
		},
		time.Now(),
	))
}

func statementPoint(database string, sourceBytes int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementStatements,
		map[string]string{"database": database},
		map[string]any{
			"count":        1,
			"source_bytes": sourceBytes,
		},
		ts,
	)
}

// stepPoint keeps the run ID in a field; tags stay low cardinality.
func stepPoint(database, runID string, index int, name, outcome string, elapsed time.Duration, ts time.Time) *write.Point {
	tags := map[string]string{
		"database": database,
		"outcome":  outcome,
	}
	if name != "" {
		tags["step"] = name
	}
	return write.NewPoint(
		measurementSteps,
		tags,
		map[string]any{
			"run_id":      runID,
			"index":       index,
			"duration_ms": elapsed.Milliseconds(),
		},
		ts,
	)
}

func runPoint(database, runID string, from, to int, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementRuns,
		map[string]string{"database": database},
		map[string]any{
			"run_id":      runID,
			"from":        from,
			"to":          to,
			"duration_ms": elapsed.Milliseconds(),
		},
		ts,
	)
}
