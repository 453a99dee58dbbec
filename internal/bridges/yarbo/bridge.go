package yarbo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/yarbo-bridge/internal/discovery"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/mqtt"
)

// Event channels published to the EventPublisher.
const (
	ChannelStatus     = "robot.status"
	ChannelMessage    = "robot.message"
	ChannelConnection = "robot.connection"
)

// defaultInitialStateDelay spaces the initial state requests after a connect.
const defaultInitialStateDelay = 150 * time.Millisecond

// initialStateRequests are sent, in order, after every connect.
var initialStateRequests = []struct {
	name    string
	payload map[string]any
}{
	{"get_device_msg", nil},
	{"get_map", nil},
	{"read_all_plan", nil},
	{"read_gps_ref", nil},
	{"read_global_params", map[string]any{"id": 1}},
	{"read_schedules", nil},
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transport is the MQTT session with the robot broker.
// *mqtt.Client satisfies this interface.
type Transport interface {
	SetListener(l mqtt.Listener)
	Start() error
	Stop()
	Publish(topic string, payload []byte) error
	IsConnected() bool
	Host() string
	SetHost(host string)
}

// CommandRecorder persists observed control commands.
// This interface is satisfied by the command log repository (via adapter in main.go).
// It is optional - if nil, commands are only kept in memory.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, entry CommandEntry) error
}

// TelemetryWriter stores telemetry updates as time series.
// *influxdb.Client satisfies this interface. Optional.
type TelemetryWriter interface {
	WriteTelemetry(serial, category string, payload map[string]any)
}

// EventPublisher fans events out to live clients, e.g. the WebSocket hub.
type EventPublisher interface {
	Broadcast(channel string, payload any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Robot identifies the robot and its broker port.
	Robot config.RobotConfig

	// Supervisor tunes rediscovery; zero values use defaults.
	Supervisor config.SupervisorConfig

	// Transport is the MQTT session. Required.
	Transport Transport

	// Resolver re-resolves the broker address. If nil, the bridge never
	// rediscovers and keeps retrying the address it has.
	Resolver Resolver

	// Prober checks the current address during health checks.
	// Default: a TLS handshake probe bounded by Supervisor.ProbeTimeout.
	Prober discovery.Prober

	// Store persists the last known good address. Optional.
	Store discovery.Store

	// Traffic logs raw RX/TX payloads. Optional.
	Traffic *logging.Traffic

	// Commands persists control commands. Optional.
	Commands CommandRecorder

	// Telemetry stores telemetry history. Optional.
	Telemetry TelemetryWriter

	// Logger is optional structured logger.
	Logger Logger

	// InitialStateDelay spaces the initial state requests.
	// Default: 150ms.
	InitialStateDelay time.Duration
}

// Bridge connects the robot's MQTT session to the rest of the service.
// It handles:
//   - Aggregating telemetry, live data and the job trail from robot messages
//   - Sending commands and correlating their replies by req_id
//   - Supervising the connection and re-resolving the broker address
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	robot   config.RobotConfig
	serial  string
	topics  mqtt.Topics
	initial time.Duration

	transport Transport
	resolver  Resolver
	store     discovery.Store
	traffic   *logging.Traffic
	commands  CommandRecorder
	telemetry TelemetryWriter

	events   EventPublisher
	eventsMu sync.RWMutex

	state      *store
	supervisor *Supervisor

	// restartMu serialises address changes and reconnects.
	restartMu sync.Mutex

	trailWasActive atomic.Bool

	now func() time.Time

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge and registers it as the transport listener.
// Call Start to connect.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Transport == nil {
		return nil, ErrMissingTransport
	}
	if opts.Robot.Serial == "" {
		return nil, ErrMissingSerial
	}

	initial := opts.InitialStateDelay
	if initial <= 0 {
		initial = defaultInitialStateDelay
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		robot:     opts.Robot,
		serial:    opts.Robot.Serial,
		topics:    mqtt.Topics{Namespace: opts.Robot.Namespace, Serial: opts.Robot.Serial},
		initial:   initial,
		transport: opts.Transport,
		resolver:  opts.Resolver,
		store:     opts.Store,
		traffic:   opts.Traffic,
		commands:  opts.Commands,
		telemetry: opts.Telemetry,
		state:     newStore(time.Now),
		now:       time.Now,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}
	b.supervisor = newSupervisor(opts.Supervisor, opts.Robot.Port, b, opts.Resolver, opts.Prober, opts.Logger)

	opts.Transport.SetListener(b)
	return b, nil
}

// Start connects the transport and starts supervision. The connection
// itself completes in the background.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.transport.Start(); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.supervisor.Run(ctx)
	}()

	b.logInfo("bridge started",
		"serial", b.serial,
		"address", b.transport.Host())
	return nil
}

// Stop disconnects and waits for background work to finish.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		b.supervisor.Stop()
		b.transport.Stop()
		b.state.setConnected(false)

		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// ============================================================================
// Transport events
// ============================================================================

// OnConnect is called by the transport after each successful connect.
func (b *Bridge) OnConnect() {
	b.supervisor.OnConnect()
	b.state.setConnected(true)
	b.broadcastConnection(true)
	b.logInfo("connected to robot", "address", b.transport.Host())

	select {
	case <-b.done:
		return
	default:
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.requestInitialState(b.ctx)
	}()
}

// OnDisconnect is called by the transport on a lost connection or a failed
// reconnect attempt.
func (b *Bridge) OnDisconnect(err error) {
	b.state.setConnected(false)
	b.logWarn("robot connection lost", "error", err)
	b.broadcastConnection(false)
	b.supervisor.OnDisconnect()
}

// requestInitialState fetches the robot's state after a connect, then asks
// the robot which address it has.
func (b *Bridge) requestInitialState(ctx context.Context) {
	for _, req := range initialStateRequests {
		if _, err := b.SendCommand(req.name, req.payload, false, 0); err != nil {
			b.logWarn("initial state request failed", "command", req.name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.initial):
		}
	}

	if _, err := b.SendCommand(feedbackWiFiName, nil, false, 0); err != nil {
		b.logWarn("address confirmation request failed", "error", err)
	}
}

// RefreshDeviceMessage asks for a full device message without waiting.
func (b *Bridge) RefreshDeviceMessage() {
	if _, err := b.SendCommand(feedbackDeviceMsg, nil, false, 0); err != nil {
		b.logDebug("device message refresh failed", "error", err)
	}
}

// ============================================================================
// Address management
// ============================================================================

// Address returns the broker address in use.
func (b *Bridge) Address() string {
	return b.transport.Host()
}

// UpdateAddress switches the session to host and persists it.
//
// Returns:
//   - bool: false if host is empty or already in use
func (b *Bridge) UpdateAddress(host string) bool {
	b.restartMu.Lock()
	defer b.restartMu.Unlock()

	old := b.transport.Host()
	if host == "" || host == old {
		return false
	}

	if b.store != nil {
		b.store.Save(host)
	}

	b.transport.Stop()
	b.state.setConnected(false)
	b.broadcastConnection(false)
	b.transport.SetHost(host)
	if err := b.transport.Start(); err != nil {
		b.logError("failed to restart transport", err)
	}

	b.logInfo("robot address changed", "old", old, "new", host)
	return true
}

// Reconnect restarts the session at the current address.
func (b *Bridge) Reconnect() error {
	b.restartMu.Lock()
	defer b.restartMu.Unlock()

	b.transport.Stop()
	b.state.setConnected(false)
	b.broadcastConnection(false)
	if err := b.transport.Start(); err != nil {
		return fmt.Errorf("restarting transport: %w", err)
	}
	b.logInfo("reconnecting to robot", "address", b.transport.Host())
	return nil
}

// DiscoverResult is the outcome of an on-demand rediscovery.
type DiscoverResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	RobotIP string `json:"robot_ip,omitempty"`
	OldIP   string `json:"old_ip,omitempty"`
	Changed bool   `json:"changed"`
}

// Rediscover resolves the broker address now and reconnects if the robot
// moved or the session is down.
func (b *Bridge) Rediscover(ctx context.Context) DiscoverResult {
	old := b.transport.Host()
	if b.resolver == nil {
		return DiscoverResult{Message: "Discovery is disabled", OldIP: old}
	}

	host, ok := b.resolver.Resolve(ctx, old)
	if !ok {
		return DiscoverResult{Message: "No robot found on network", OldIP: old}
	}

	if host == old && b.transport.IsConnected() {
		return DiscoverResult{
			OK:      true,
			Message: "Robot already connected at " + host,
			RobotIP: host,
		}
	}

	msg := "Robot found at " + host
	if host != old {
		if old != "" {
			msg += " (was " + old + ")"
		}
		b.UpdateAddress(host)
	} else if err := b.Reconnect(); err != nil {
		b.logError("reconnect after discovery failed", err)
	}

	return DiscoverResult{
		OK:      true,
		Message: msg,
		RobotIP: host,
		OldIP:   old,
		Changed: host != old,
	}
}

// ============================================================================
// Accessors
// ============================================================================

// Serial returns the robot serial number.
func (b *Bridge) Serial() string { return b.serial }

// Robot returns the robot configuration the bridge was created with.
func (b *Bridge) Robot() config.RobotConfig { return b.robot }

// IsConnected reports whether the robot session is up.
func (b *Bridge) IsConnected() bool { return b.transport.IsConnected() }

// Snapshot returns a copy of the current robot status.
func (b *Bridge) Snapshot() Snapshot { return b.state.snapshot() }

// SupervisorStatus returns the supervisor state.
func (b *Bridge) SupervisorStatus() SupervisorStatus { return b.supervisor.Status() }

// LiveMap returns the last get_map reply, or nil.
func (b *Bridge) LiveMap() any { return b.state.read(func() any { return b.state.liveMap }) }

// Plans returns the last read_all_plan reply, or nil.
func (b *Bridge) Plans() any { return b.state.read(func() any { return b.state.plans }) }

// GPSRef returns the last read_gps_ref reply, or nil.
func (b *Bridge) GPSRef() any { return b.state.read(func() any { return b.state.gpsRef }) }

// Schedules returns the last read_schedules reply, or nil.
func (b *Bridge) Schedules() any { return b.state.read(func() any { return b.state.schedules }) }

// GlobalParams returns the last read_global_params reply, or nil.
func (b *Bridge) GlobalParams() any { return b.state.read(func() any { return b.state.globalParams }) }

// DeviceMessage returns the device message, or nil.
func (b *Bridge) DeviceMessage() map[string]any {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return cloneMap(b.state.deviceMsg)
}

// PreviewPath returns the last preview_plan_path reply, or nil.
func (b *Bridge) PreviewPath() map[string]any {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return cloneMap(b.state.previewPath)
}

// ClearPreviewPath forgets the last preview so a new request can be told
// apart from a stale reply.
func (b *Bridge) ClearPreviewPath() { b.state.clearPreviewPath() }

// Trail returns the recorded job path and whether recording is active.
func (b *Bridge) Trail() ([]TrailPoint, bool) {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return b.state.trail.snapshot(), b.state.trail.active
}

// ClearTrail drops the recorded points. Recording state is unchanged.
func (b *Bridge) ClearTrail() {
	b.state.mu.Lock()
	b.state.trail.clear()
	b.state.mu.Unlock()
}

// CommandHistory returns the recent control commands, oldest first.
func (b *Bridge) CommandHistory() []CommandEntry {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return b.state.history.snapshot()
}

// ============================================================================
// Events
// ============================================================================

// SetEventPublisher sets where live events are sent. The API server is
// created after the bridge, so this is set late.
func (b *Bridge) SetEventPublisher(p EventPublisher) {
	b.eventsMu.Lock()
	b.events = p
	b.eventsMu.Unlock()
}

func (b *Bridge) broadcast(channel string, payload any) {
	b.eventsMu.RLock()
	p := b.events
	b.eventsMu.RUnlock()

	if p != nil {
		p.Broadcast(channel, payload)
	}
}

func (b *Bridge) broadcastStatus() {
	b.eventsMu.RLock()
	enabled := b.events != nil
	b.eventsMu.RUnlock()

	if enabled {
		b.broadcast(ChannelStatus, b.state.snapshot().Flatten())
	}
}

func (b *Bridge) broadcastConnection(connected bool) {
	b.broadcast(ChannelConnection, map[string]any{
		"connected": connected,
		"address":   b.transport.Host(),
	})
}

// ============================================================================
// Logging
// ============================================================================

// SetLogger sets the logger for the bridge and its supervisor.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.supervisor.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}
