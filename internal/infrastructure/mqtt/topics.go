package mqtt

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TopicPrefix is the base for all graysql topics.
const TopicPrefix = "graysql"

// Topics provides builders for graysql MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.MigrationEvents("app")
//	// Returns: "graysql/migrations/app/events"
type Topics struct{}

// MigrationEvents returns the topic for per-step migration events.
//
// Example: graysql/migrations/app/events
func (Topics) MigrationEvents(database string) string {
	return fmt.Sprintf("%s/migrations/%s/events", TopicPrefix, database)
}

// MigrationStatus returns the retained topic holding the latest migration
// outcome for a database.
//
// Example: graysql/migrations/app/status
func (Topics) MigrationStatus(database string) string {
	return fmt.Sprintf("%s/migrations/%s/status", TopicPrefix, database)
}

// ClientStatus returns the retained presence topic for a CLI instance.
//
// Example: graysql/clients/graysql-host1/status
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/clients/%s/status", TopicPrefix, clientID)
}

// DatabaseName derives a topic segment from a database path:
// the file name without extension, with MQTT wildcard and separator
// characters replaced.
//
// Example: "/var/lib/app/main.db" -> "main"
func DatabaseName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("/", "_", "+", "_", "#", "_", ":", "").Replace(name)
	if name == "" || name == "." {
		return "memory"
	}
	return name
}
