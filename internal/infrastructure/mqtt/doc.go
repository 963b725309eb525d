// Package mqtt publishes graysql lifecycle events to an MQTT broker.
//
// Every message is JSON. Migration events are fire-and-forget; the latest
// run outcome and the client's presence are retained so a dashboard that
// subscribes later still sees them. The broker's Last Will marks the client
// offline if graysql dies mid-migration.
//
// # Topics
//
//	graysql/migrations/{database}/events   per-step events (not retained)
//	graysql/migrations/{database}/status   latest run outcome (retained)
//	graysql/clients/{client_id}/status     presence (retained, LWT)
//
// # Security Considerations
//
//   - Enable TLS for brokers reached over untrusted networks (cfg.Broker.TLS=true)
//   - Payloads carry step names and errors, never statement parameters
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.MigrationStatus(mqtt.DatabaseName(cfg.Database.Path))
//	err = client.PublishJSON(topic, status, true)
package mqtt
