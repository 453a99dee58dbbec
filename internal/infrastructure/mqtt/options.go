package mqtt

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the configured timeout is zero.
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepAlive is used when the configured keepalive is zero.
	defaultKeepAlive = 60 * time.Second

	// defaultPublishTimeout is the maximum time to wait for a publish to be queued.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout bounds the subscription made on each connect.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDSuffixLen is the number of random hex characters in a client ID.
	clientIDSuffixLen = 8
)

// brokerURL returns the paho broker URL for host and the robot settings.
func brokerURL(robot config.RobotConfig, host string) string {
	scheme := "tcp"
	if robot.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, robot.Port)
}

// newClientID returns a fresh client identifier such as "yarbo-bridge-1a2b3c4d".
func newClientID(prefix string) string {
	if prefix == "" {
		prefix = "yarbo-bridge"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:clientIDSuffixLen]
	return prefix + "-" + suffix
}

// buildClientOptions creates paho MQTT options for one session.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on the robot TLS setting)
//   - A unique client ID per session
//   - Auto-reconnect with exponential backoff between the configured bounds
//   - In-order message delivery so per-topic ordering is preserved
//   - TLS without certificate verification (the robot uses a self-signed cert)
func buildClientOptions(robot config.RobotConfig, cfg config.MQTTConfig, host, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(robot, host))
	opts.SetClientID(clientID)
	opts.SetProtocolVersion(4)
	opts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay, time.Second))
	opts.SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay, 60*time.Second))

	opts.SetConnectTimeout(seconds(cfg.ConnectTimeout, defaultConnectTimeout))
	opts.SetKeepAlive(seconds(cfg.KeepAlive, defaultKeepAlive))

	// Messages for one topic must reach the listener in broker order.
	opts.SetOrderMatters(true)

	if robot.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: true, //nolint:gosec // robot broker presents a self-signed certificate
		})
	}

	return opts
}

// seconds converts a whole-second setting, falling back to def when unset.
func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
