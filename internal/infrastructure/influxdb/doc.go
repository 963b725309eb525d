// Package influxdb provides InfluxDB connectivity for graysql.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, and health monitoring.
//
// # Measurements
//
//   - statements_prepared: one point per statement compilation
//   - migration_step: one point per committed or rolled back step
//   - migration_run: one point per completed Migrate call
//   - backup: one point per completed online backup
//
// All points carry a "database" tag. Run IDs are fields, not tags, to keep
// series cardinality bounded.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMigrationRun("app", runID, 0, 4, elapsed)
//
// # Error Handling
//
// Writes are non-blocking. Rejected batches are reported through the
// SetOnError callback and counted into the error returned by Close.
// Connection and health check errors are returned directly.
package influxdb
