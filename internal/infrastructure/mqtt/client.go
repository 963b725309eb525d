package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/config"
)

// Client publishes graysql events to one broker.
//
// While connected, the client's presence topic holds a retained "online"
// message; Close replaces it with a graceful "offline" and the broker's Last
// Will does the same if the process dies first. graysql never subscribes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	mu        sync.RWMutex
	connected bool
	logger    Logger
}

// Logger receives connection events. *slog.Logger and *logging.Logger
// satisfy it.
type Logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// Connect dials the broker and announces the client as online.
//
// Parameters:
//   - ctx: Abandons the dial when cancelled
//   - cfg: MQTT configuration
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed if the broker refuses, times out, or ctx ends first
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onConnect runs on its own goroutine; report connected from here on.
	c.setConnected(true)
	return c, nil
}

// onConnect runs after the first connect and every automatic reconnect.
func (c *Client) onConnect() {
	c.setConnected(true)

	id := c.cfg.Broker.ClientID
	c.client.Publish(Topics{}.ClientStatus(id), byte(c.cfg.QoS), true, buildOnlinePayload(id))

	if logger := c.getLogger(); logger != nil {
		logger.Info("mqtt connected", "client_id", id)
	}
}

func (c *Client) onConnectionLost(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt connection lost", "client_id", c.cfg.Broker.ClientID, "error", err)
	}
}

// Close publishes a graceful offline status, waits briefly for in-flight
// messages and disconnects. It always returns nil.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		id := c.cfg.Broker.ClientID
		token := c.client.Publish(Topics{}.ClientStatus(id), byte(c.cfg.QoS), true, buildOfflinePayload(id))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state. It is false for a
// zero Client.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets the logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
