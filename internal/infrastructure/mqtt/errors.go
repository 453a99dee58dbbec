package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrAlreadyStarted is returned by Start when a session is already running.
	ErrAlreadyStarted = errors.New("mqtt: session already started")

	// ErrNoHost is returned by Start when no broker address is set.
	ErrNoHost = errors.New("mqtt: broker host not set")

	// ErrNoSerial is returned by Start when the robot serial is unknown.
	ErrNoSerial = errors.New("mqtt: robot serial not set")

	// ErrConnectAttemptFailed is reported to the listener for each failed
	// connection attempt after the first in a session.
	ErrConnectAttemptFailed = errors.New("mqtt: connection attempt failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidPayload is returned when a payload does not decode to a JSON object.
	ErrInvalidPayload = errors.New("mqtt: payload is not a JSON object")
)
