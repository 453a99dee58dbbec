package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic at QoS 0, not retained.
//
// The robot accepts plain JSON; payloads are never compressed on the way out.
//
// Parameters:
//   - topic: The topic to publish to (e.g. "snowbot/<sn>/app/get_device_msg")
//   - payload: The message payload (max 1MB)
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected, or ErrPublishFailed wrapping the cause
func (c *Client) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	c.mu.RLock()
	s, connected := c.sess, c.connected
	c.mu.RUnlock()
	if s == nil || !connected || !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
