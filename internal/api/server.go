package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
	"github.com/nerrad567/yarbo-bridge/internal/commandlog"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Robot is the bridge surface the routes use.
// *yarbo.Bridge satisfies this interface.
type Robot interface {
	Serial() string
	Robot() config.RobotConfig
	Address() string
	IsConnected() bool
	Snapshot() yarbo.Snapshot
	SupervisorStatus() yarbo.SupervisorStatus

	SendCommand(name string, payload map[string]any, wait bool, timeout time.Duration) (map[string]any, error)
	Reconnect() error
	Rediscover(ctx context.Context) yarbo.DiscoverResult

	LiveMap() any
	Plans() any
	GPSRef() any
	Schedules() any
	GlobalParams() any
	DeviceMessage() map[string]any
	PreviewPath() map[string]any
	ClearPreviewPath()
	Trail() ([]yarbo.TrailPoint, bool)
	ClearTrail()
	CommandHistory() []yarbo.CommandEntry
}

// Cloud is the cloud account surface the routes use.
// *cloud.Client satisfies this interface.
type Cloud interface {
	GetDevices(ctx context.Context) ([]map[string]any, error)
	GetMap(ctx context.Context, sn string) (map[string]any, error)
	GetRasterBackground(ctx context.Context, sn string) (any, error)
	GetMessages(ctx context.Context, sn string) ([]any, error)
	GetFirmware(ctx context.Context) (any, error)
	Invalidate()
}

// CommandLog lists persisted commands.
// *commandlog.SQLiteRepository satisfies this interface.
type CommandLog interface {
	List(ctx context.Context, filter commandlog.Filter) (*commandlog.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Robot   Robot
	Cloud   Cloud      // optional: cloud routes answer 503 without it
	Log     CommandLog // optional: /commands/log answers 503 without it
	Hub     *Hub       // optional: created in Start if nil
	Version string
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware and WebSocket hub.
// The server is created with New and started with Start.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	robot   Robot
	cloud   Cloud
	log     CommandLog
	version string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates an API server. It does not listen until Start.
//
// Parameters:
//   - deps: Logger and Robot are required; the rest is optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Robot == nil {
		return nil, fmt.Errorf("robot is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		robot:   deps.Robot,
		cloud:   deps.Cloud,
		log:     deps.Log,
		version: deps.Version,
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the HTTP listener in the background.
//
// Parameters:
//   - ctx: Parent context for the hub; cancelling it disconnects WebSocket clients
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down, waiting up to 10 seconds for in-flight
// requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
