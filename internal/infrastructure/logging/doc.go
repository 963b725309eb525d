// Package logging provides structured logging for graysql.
//
// This package wraps Go's standard log/slog package so that the CLI, the
// database layer and the telemetry sinks share one handler and one set of
// default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for terminals (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	db, err := database.Open(ctx, database.Config{Path: path, Logger: logger.Component("database").Logger})
//
// Statement compilation is logged at debug level with the full source text.
// Bound parameter values are never logged.
package logging
