package mqtt

import "errors"

var (
	// ErrConnectionFailed wraps the reason Connect could not reach the broker.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned by Publish and HealthCheck while offline.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps broker, timeout and encoding failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
