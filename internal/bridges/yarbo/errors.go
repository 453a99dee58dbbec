package yarbo

import "errors"

// Domain-specific errors for robot operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a command is sent while the robot
	// session is down.
	ErrNotConnected = errors.New("yarbo: not connected to robot")

	// ErrPublishFailed is returned when the transport rejects a command.
	ErrPublishFailed = errors.New("yarbo: command publish failed")

	// ErrInvalidCommand is returned for an empty command name.
	ErrInvalidCommand = errors.New("yarbo: command name is required")

	// ErrMissingTransport is returned by NewBridge without a transport.
	ErrMissingTransport = errors.New("yarbo: transport is required")

	// ErrMissingSerial is returned by NewBridge without a robot serial.
	ErrMissingSerial = errors.New("yarbo: robot serial is required")
)
