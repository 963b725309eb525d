package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker-backed tests require Mosquitto at 127.0.0.1:1883 and are skipped
// when it is not reachable.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graysql-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the test broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}
	conn.Close() //nolint:errcheck // Probe only

	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(context.Background(), cfg)
	if err == nil {
		t.Fatal("Connect() should fail for refused connection")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}

	err := client.Publish("graysql/test", []byte("x"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	client := connectOrSkip(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	topic := Topics{}.MigrationEvents("test")
	if err := client.Publish(topic, []byte(`{"test":true}`), 1, false); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := client.PublishJSON(Topics{}.MigrationStatus("test"), map[string]int{"applied": 3}, true); err != nil {
		t.Errorf("PublishJSON() error = %v", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "graysql/migrations/+/status", []byte("x"), 1, ErrInvalidTopic},
		{"invalid QoS", "graysql/test", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "graysql/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "graysql/test", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSONUnencodable(t *testing.T) {
	client := &Client{cfg: testConfig()}

	err := client.PublishJSON("graysql/test", make(chan int), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

// =============================================================================
// Option and Topic Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "user"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "graysql-test" {
		t.Errorf("ClientID = %q, want graysql-test", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q, want user", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want configured")
	}
}

func TestStatusPayloads(t *testing.T) {
	var status statusPayload

	if err := json.Unmarshal([]byte(buildOnlinePayload("cli-1")), &status); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if status.Status != "online" || status.ClientID != "cli-1" || status.Reason != "" {
		t.Errorf("online payload = %+v", status)
	}
	if status.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", status.PID, os.Getpid())
	}

	if err := json.Unmarshal([]byte(buildOfflinePayload("cli-1")), &status); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if status.Status != "offline" || status.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", status)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"migration events", topics.MigrationEvents("app"), "graysql/migrations/app/events"},
		{"migration status", topics.MigrationStatus("app"), "graysql/migrations/app/status"},
		{"client status", topics.ClientStatus("cli-1"), "graysql/clients/cli-1/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/var/lib/app/main.db", "main"},
		{"./data/graysql.db", "graysql"},
		{"plain", "plain"},
		{":memory:", "memory"},
		{"weird+#name.sqlite", "weird__name"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := DatabaseName(tt.path)
			if got != tt.want {
				t.Errorf("DatabaseName(%q) = %q, want %q", tt.path, got, tt.want)
			}
			if strings.ContainsAny(got, "/+#") {
				t.Errorf("DatabaseName(%q) = %q contains topic metacharacters", tt.path, got)
			}
		})
	}
}
