package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 30 * time.Second

	maxQoS = 2

	// willQoS is used for presence messages regardless of cfg.QoS.
	willQoS = 1
)

// Presence states on graysql/clients/{id}/status.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"

	reasonGraceful   = "graceful_shutdown"
	reasonUnexpected = "unexpected_disconnect"
)

// buildClientOptions maps cfg onto paho options: broker URL (ssl:// when
// TLS is on), credentials, a clean session and automatic reconnects.
// The first connect is never retried so a missing broker fails fast.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// statusPayload is the retained presence message. Host and PID identify
// which machine is (or was) holding the database.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Host      string `json:"host,omitempty"`
	PID       int    `json:"pid"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// configureLWT registers the offline message the broker publishes if the
// connection drops without Close, e.g. when graysql is killed mid-migration.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(Topics{}.ClientStatus(clientID), buildStatusPayload(clientID, presenceOffline, reasonUnexpected), willQoS, true)
}

func buildOnlinePayload(clientID string) string {
	return buildStatusPayload(clientID, presenceOnline, "")
}

func buildOfflinePayload(clientID string) string {
	return buildStatusPayload(clientID, presenceOffline, reasonGraceful)
}

func buildStatusPayload(clientID, status, reason string) string {
	host, _ := os.Hostname() //nolint:errcheck // Host is informational
	data, _ := json.Marshal(statusPayload{ //nolint:errcheck // Plain fields always marshal
		Status:    status,
		ClientID:  clientID,
		Host:      host,
		PID:       os.Getpid(),
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(data)
}
