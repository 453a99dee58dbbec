package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

// Listener receives session events.
//
// Callbacks are invoked from paho goroutines. OnMessage calls are delivered
// one at a time in the order the broker sent them, so implementations must
// not block for long.
type Listener interface {
	OnConnect()
	OnDisconnect(err error)
	OnMessage(msg Message)
}

// Message is a decoded inbound robot message.
type Message struct {
	Topic   string
	Payload map[string]any

	// Raw holds the decompressed payload bytes.
	Raw []byte
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// session is one paho client lifetime, from Start to Stop.
//
// Callbacks registered with paho capture their session and are ignored once
// it is no longer current, so a stopped client can never report events.
type session struct {
	clientID string
	client   pahomqtt.Client
	attempts atomic.Int32
}

// Client maintains the MQTT session with the robot's on-board broker.
//
// Start returns immediately; paho keeps retrying the connection and
// reconnects automatically after a drop. Each connect subscribes to every
// topic of the robot and notifies the Listener.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	robot  config.RobotConfig
	cfg    config.MQTTConfig
	topics Topics

	host      string
	sess      *session
	connected bool
	mu        sync.RWMutex

	listener   Listener
	listenerMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	// newPaho creates the underlying client; replaced in tests.
	newPaho func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// New creates a client for the robot described by robot. The broker host
// starts as robot.Host and can be changed with SetHost.
//
// Parameters:
//   - robot: Serial, host, port, TLS and topic namespace of the robot
//   - cfg: Session settings (keepalive, reconnect backoff, client ID prefix)
//
// Returns:
//   - *Client: Stopped client; call Start to connect
func New(robot config.RobotConfig, cfg config.MQTTConfig) *Client {
	return &Client{
		robot:   robot,
		cfg:     cfg,
		topics:  Topics{Namespace: robot.Namespace, Serial: robot.Serial},
		host:    robot.Host,
		newPaho: pahomqtt.NewClient,
	}
}

// Start creates a new session and begins connecting in the background.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrNoHost or ErrNoSerial
func (c *Client) Start() error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.host == "" {
		c.mu.Unlock()
		return ErrNoHost
	}
	if c.robot.Serial == "" {
		c.mu.Unlock()
		return ErrNoSerial
	}

	s := &session{clientID: newClientID(c.cfg.ClientIDPrefix)}
	opts := buildClientOptions(c.robot, c.cfg, c.host, s.clientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect(s)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(s, err)
	})
	opts.SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
		c.handleAttempt(s, broker)
		return tlsCfg
	})

	s.client = c.newPaho(opts)
	c.sess = s
	c.connected = false
	host := c.host
	c.mu.Unlock()

	c.logInfo("connecting to robot broker",
		"broker", brokerURL(c.robot, host),
		"client_id", s.clientID,
	)

	// With ConnectRetry set the token only completes once connected;
	// progress is reported through the handlers instead.
	s.client.Connect()
	return nil
}

// Stop disconnects and discards the current session. It is safe to call
// on a stopped client.
func (c *Client) Stop() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.connected = false
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.client.Disconnect(defaultDisconnectQuiesce)
	c.logInfo("robot session stopped", "client_id", s.clientID)
}

// IsConnected reports whether the current session is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess != nil && c.connected && c.sess.client.IsConnectionOpen()
}

// Host returns the broker host used by the next Start.
func (c *Client) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// SetHost changes the broker host. It takes effect on the next Start.
func (c *Client) SetHost(host string) {
	c.mu.Lock()
	c.host = host
	c.mu.Unlock()
}

// Topics returns the topic builder for the robot.
func (c *Client) Topics() Topics {
	return c.topics
}

// ClientID returns the client ID of the current session, or "" when stopped.
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.clientID
}

// SetListener sets the receiver of session events.
func (c *Client) SetListener(l Listener) {
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
}

// SetLogger sets a logger for connection and decode events.
// If not set, events are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// current reports whether s is still the active session.
func (c *Client) current(s *session) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess == s
}

func (c *Client) setConnected(s *session, connected bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s {
		return false
	}
	c.connected = connected
	return true
}

// handleConnect is called by paho when the session connects.
func (c *Client) handleConnect(s *session) {
	if !c.setConnected(s, true) {
		return
	}
	s.attempts.Store(0)

	topic := c.topics.All()
	token := s.client.Subscribe(topic, 0, c.wrapHandler(s))
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		c.logWarn("subscribe timed out", "topic", topic)
	} else if err := token.Error(); err != nil {
		c.logWarn("subscribe failed", "topic", topic, "error", err)
	}

	c.logInfo("connected to robot broker", "topic", topic, "client_id", s.clientID)

	if l := c.getListener(); l != nil {
		l.OnConnect()
	}
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(s *session, err error) {
	if !c.setConnected(s, false) {
		return
	}
	c.logWarn("robot broker connection lost", "error", err)

	if l := c.getListener(); l != nil {
		l.OnDisconnect(err)
	}
}

// handleAttempt is called by paho before every connection attempt. The
// first attempt of a run is expected; each further one means the previous
// attempt failed and is reported as a disconnect.
func (c *Client) handleAttempt(s *session, broker *url.URL) {
	if !c.current(s) {
		return
	}
	if n := s.attempts.Add(1); n <= 1 {
		return
	}
	if !c.setConnected(s, false) {
		return
	}

	host := ""
	if broker != nil {
		host = broker.Host
	}
	c.logDebug("retrying robot broker connection", "broker", host)

	if l := c.getListener(); l != nil {
		l.OnDisconnect(fmt.Errorf("%w: %s", ErrConnectAttemptFailed, host))
	}
}

// wrapHandler decodes paho messages for the listener with panic recovery.
func (c *Client) wrapHandler(s *session) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if !c.current(s) {
			return
		}

		payload, raw, err := DecodePayload(msg.Payload())
		if err != nil {
			c.logWarn("dropping undecodable payload",
				"topic", msg.Topic(),
				"bytes", len(msg.Payload()),
				"error", err,
			)
			return
		}

		if l := c.getListener(); l != nil {
			l.OnMessage(Message{Topic: msg.Topic(), Payload: payload, Raw: raw})
		}
	}
}

func (c *Client) getListener() Listener {
	c.listenerMu.RLock()
	defer c.listenerMu.RUnlock()
	return c.listener
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}

func (c *Client) logDebug(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}
