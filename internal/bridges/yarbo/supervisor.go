package yarbo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/yarbo-bridge/internal/discovery"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

// Supervisor defaults, used for zero config values.
const (
	defaultFailureThreshold    = 3
	defaultRepeatEvery         = 10
	defaultMinInterval         = 60 * time.Second
	defaultHealthCheckInterval = 5 * time.Minute
	defaultRefreshInterval     = 60 * time.Second
	defaultHealthProbeTimeout  = 3 * time.Second

	// rediscoveryTimeout bounds one address resolution.
	rediscoveryTimeout = 2 * time.Minute
)

// SupervisorState is the connection health seen by the supervisor.
type SupervisorState int

const (
	// StateStable means connected with no recent failures.
	StateStable SupervisorState = iota

	// StateDegraded means disconnected and counting failures.
	StateDegraded

	// StateRediscovering means an address resolution is running.
	StateRediscovering
)

func (s SupervisorState) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateDegraded:
		return "degraded"
	case StateRediscovering:
		return "rediscovering"
	default:
		return "unknown"
	}
}

// SupervisorStatus is a point-in-time view of the supervisor.
type SupervisorStatus struct {
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastRediscovery     *time.Time `json:"last_rediscovery,omitempty"`
}

// Resolver finds the robot's broker address.
// *discovery.Resolver satisfies this interface.
type Resolver interface {
	Resolve(ctx context.Context, configured string) (string, bool)
}

// target is what the supervisor keeps connected. *Bridge implements it.
type target interface {
	Address() string
	UpdateAddress(host string) bool
	IsConnected() bool
	RefreshDeviceMessage()
}

// Supervisor watches the session and re-resolves the broker address when
// the robot stops answering at the one in use.
//
// Rediscovery triggers on the FailureThreshold-th consecutive disconnect
// and then on every RepeatEvery-th, or when the periodic health probe of the
// current address fails. At most one resolution runs at a time and
// attempts are rate-limited to one per MinInterval.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	cfg      config.SupervisorConfig
	port     int
	target   target
	resolver Resolver
	prober   discovery.Prober

	state           SupervisorState
	failures        int
	inProgress      bool
	lastRediscovery time.Time
	limiter         *rate.Limiter
	mu              sync.Mutex

	now func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// newSupervisor fills zero config values with defaults.
func newSupervisor(cfg config.SupervisorConfig, port int, t target, resolver Resolver, prober discovery.Prober, logger Logger) *Supervisor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.RepeatEvery <= 0 {
		cfg.RepeatEvery = defaultRepeatEvery
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = defaultHealthCheckInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultHealthProbeTimeout
	}
	if prober == nil {
		prober = discovery.TLSProber{Timeout: cfg.ProbeTimeout}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:      cfg,
		port:     port,
		target:   t,
		resolver: resolver,
		prober:   prober,
		state:    StateDegraded,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		now:      time.Now,
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// OnConnect resets the failure count.
func (s *Supervisor) OnConnect() {
	s.mu.Lock()
	s.failures = 0
	if s.state != StateRediscovering {
		s.state = StateStable
	}
	s.mu.Unlock()
}

// OnDisconnect counts a failure and triggers rediscovery on the threshold
// and on every RepeatEvery-th failure after it.
func (s *Supervisor) OnDisconnect() {
	s.mu.Lock()
	s.failures++
	n := s.failures
	if s.state != StateRediscovering {
		s.state = StateDegraded
	}
	s.mu.Unlock()

	threshold, every := s.cfg.FailureThreshold, s.cfg.RepeatEvery
	if n == threshold || (n > threshold && n%every == 0) {
		s.logWarn("consecutive connection failures, rediscovering robot", "failures", n)
		s.TriggerRediscovery("connection failures")
	}
}

// TriggerRediscovery starts a background address resolution.
//
// Returns:
//   - bool: false if one is already running or the rate limit refused it
func (s *Supervisor) TriggerRediscovery(reason string) bool {
	if s.resolver == nil {
		return false
	}

	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		s.logDebug("rediscovery already in progress")
		return false
	}
	now := s.now()
	if !s.limiter.AllowN(now, 1) {
		s.mu.Unlock()
		s.logDebug("rediscovery rate limited", "reason", reason)
		return false
	}
	s.inProgress = true
	s.lastRediscovery = now
	s.state = StateRediscovering
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.rediscover(reason)
	}()
	return true
}

func (s *Supervisor) rediscover(reason string) {
	defer func() {
		connected := s.target.IsConnected()
		s.mu.Lock()
		s.inProgress = false
		if connected {
			s.state = StateStable
		} else {
			s.state = StateDegraded
		}
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, rediscoveryTimeout)
	defer cancel()

	old := s.target.Address()
	s.logInfo("rediscovering robot", "reason", reason, "current", old)

	host, ok := s.resolver.Resolve(ctx, old)
	switch {
	case !ok:
		s.logWarn("rediscovery found no robot", "current", old)
	case host == old:
		s.logInfo("robot still at the same address", "address", host)
	default:
		s.logInfo("robot moved, reconnecting", "old", old, "new", host)
		s.target.UpdateAddress(host)
	}
}

// Run drives the periodic refresh and health checks until ctx is done or
// Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	refresh := time.NewTicker(s.cfg.RefreshInterval)
	defer refresh.Stop()
	health := time.NewTicker(s.cfg.HealthCheckInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-refresh.C:
			if s.target.IsConnected() {
				s.target.RefreshDeviceMessage()
			}
		case <-health.C:
			s.checkHealth(ctx)
		}
	}
}

// checkHealth probes the current address and triggers rediscovery if the
// broker no longer answers there.
func (s *Supervisor) checkHealth(ctx context.Context) {
	host := s.target.Address()
	if host == "" {
		return
	}
	if s.prober.Probe(ctx, host, s.port) {
		return
	}
	s.logWarn("health check failed", "address", host)
	s.TriggerRediscovery("health check failed")
}

// Status returns the current supervisor state.
func (s *Supervisor) Status() SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SupervisorStatus{
		State:               s.state.String(),
		ConsecutiveFailures: s.failures,
	}
	if !s.lastRediscovery.IsZero() {
		t := s.lastRediscovery.UTC()
		st.LastRediscovery = &t
	}
	return st
}

// Stop ends Run and waits for a running rediscovery.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.wg.Wait()
	})
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Supervisor) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Supervisor) logInfo(msg string, args ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (s *Supervisor) logWarn(msg string, args ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (s *Supervisor) logDebug(msg string, args ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}
