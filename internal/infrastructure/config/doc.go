// Package config loads graysql's settings.
//
// Values are resolved in order: built-in defaults, the YAML file (if any),
// then GRAYSQL_* environment variables. Validate reports every problem at
// once rather than stopping at the first.
//
// Keep the MQTT password and InfluxDB token in the environment
// (GRAYSQL_MQTT_PASSWORD, GRAYSQL_INFLUXDB_TOKEN) rather than the file.
//
// Usage:
//
//	cfg, err := config.LoadOrDefault(os.Getenv("GRAYSQL_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
package config
