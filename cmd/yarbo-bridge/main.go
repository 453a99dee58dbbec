// Yarbo Bridge - local control of Yarbo robots.
//
// This is the main entry point for the bridge service. It connects to the
// MQTT broker running on the robot, keeps the robot's live state and
// serves it over a REST and WebSocket API:
//   - Finds the robot on the LAN when its address changes
//   - Sends commands and waits for their replies
//   - Optionally reads the cloud account for the serial number and map
//   - Optionally records commands in SQLite and telemetry in InfluxDB
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/yarbo-bridge/internal/api"
	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
	"github.com/nerrad567/yarbo-bridge/internal/cloud"
	"github.com/nerrad567/yarbo-bridge/internal/commandlog"
	"github.com/nerrad567/yarbo-bridge/internal/discovery"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/database"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/yarbo-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path, used when it exists.
const defaultConfigPath = "configs/config.yaml"

// options are the command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("yarbo-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(opts.configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("yarbo-bridge", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file (default: $YARBO_CONFIG or "+defaultConfigPath+")")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// getConfigPath picks the config file: the flag, then YARBO_CONFIG, then
// the default path if that file exists. An empty result means defaults
// and environment variables only.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("YARBO_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML config file, or "" for defaults and environment
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Yarbo bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	traffic := logging.NewTraffic(cfg.MQTT.TrafficLog)
	defer func() {
		if closeErr := traffic.Close(); closeErr != nil {
			log.Error("error closing traffic log", "error", closeErr)
		}
	}()
	if traffic != nil {
		log.Info("MQTT traffic log enabled", "path", cfg.MQTT.TrafficLog.Path)
	}

	// Cloud account (optional); also supplies the serial when none is set
	cloudClient, err := openCloud(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Command log (optional)
	var commandRepo *commandlog.SQLiteRepository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		commandRepo = commandlog.NewSQLiteRepository(db.DB)
		log.Info("command log ready", "path", db.Path())
	} else {
		log.Info("command log disabled")
	}

	// Telemetry history (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Locate the broker
	var store *discovery.FileStore
	if cfg.Discovery.CacheFile != "" {
		store = discovery.NewFileStore(cfg.Discovery.CacheFile, log.With("component", "discovery"))
	}
	var resolver *discovery.Resolver
	if cfg.Discovery.Enabled {
		resolver = newResolver(cfg, store, log)
		if host, ok := resolver.Resolve(ctx, cfg.Robot.Host); ok {
			cfg.Robot.Host = host
		} else {
			log.Warn("robot not found, will keep trying the configured address", "host", cfg.Robot.Host)
		}
	}
	if cfg.Robot.Host == "" {
		return errors.New("robot address unknown: set YARBO_ROBOT_IP or enable discovery")
	}
	log.Info("robot broker", "address", cfg.BrokerAddress(), "serial", cfg.Robot.Serial)

	// MQTT session and bridge
	mqttClient := mqtt.New(cfg.Robot, cfg.MQTT)
	mqttClient.SetLogger(log.With("component", "mqtt"))

	bridgeOpts := yarbo.Options{
		Robot:      cfg.Robot,
		Supervisor: cfg.Supervisor,
		Transport:  mqttClient,
		Traffic:    traffic,
		Logger:     log.With("component", "bridge"),
	}
	// Optional dependencies stay nil interfaces when disabled
	if resolver != nil {
		bridgeOpts.Resolver = resolver
	}
	if store != nil {
		bridgeOpts.Store = store
	}
	if commandRepo != nil {
		bridgeOpts.Commands = &commandRecorder{repo: commandRepo}
	}
	if influxClient != nil {
		bridgeOpts.Telemetry = influxClient
	}

	bridge, err := yarbo.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// API server
	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Robot:   bridge,
		Version: version,
	}
	if cloudClient != nil {
		deps.Cloud = cloudClient
	}
	if commandRepo != nil {
		deps.Log = commandRepo
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	bridge.SetEventPublisher(server.Hub())

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Bridge (MQTT session)
	// 2. API server
	// 3. InfluxDB, database (if enabled)
	// 4. Traffic log

	log.Info("Yarbo bridge stopped")
	return nil
}

// openCloud creates the cloud client when an account is configured and
// fills in the robot serial from it if needed.
//
// Returns:
//   - *cloud.Client: Client, or nil when the cloud is disabled
//   - error: If the serial is unset and cannot be detected
func openCloud(ctx context.Context, cfg *config.Config, log *logging.Logger) (*cloud.Client, error) {
	if !cfg.Cloud.Enabled {
		log.Info("cloud account not configured")
		return nil, nil
	}

	client, err := cloud.New(cfg.Cloud, log.With("component", "cloud"))
	if err != nil {
		return nil, fmt.Errorf("creating cloud client: %w", err)
	}

	if cfg.Robot.Serial == "" {
		sn, err := client.DetectSerial(ctx)
		if err != nil {
			return nil, fmt.Errorf("detecting robot serial: %w", err)
		}
		cfg.Robot.Serial = sn
		log.Info("robot serial detected from cloud", "serial", sn)
	}
	return client, nil
}

// newResolver builds the broker resolver from the discovery settings.
func newResolver(cfg *config.Config, store *discovery.FileStore, log *logging.Logger) *discovery.Resolver {
	opts := discovery.Options{
		Port:        cfg.Robot.Port,
		Prober:      discovery.TLSProber{Timeout: cfg.Discovery.ProbeTimeout},
		Concurrency: cfg.Discovery.Concurrency,
		Subnet:      cfg.Discovery.Subnet,
		Logger:      log.With("component", "discovery"),
	}
	if store != nil {
		opts.Store = store
	}
	return discovery.NewResolver(opts)
}

// commandRecorder adapts the command log repository to the bridge's
// CommandRecorder interface.
type commandRecorder struct {
	repo commandlog.Repository
}

// RecordCommand implements yarbo.CommandRecorder.
func (r *commandRecorder) RecordCommand(ctx context.Context, entry yarbo.CommandEntry) error {
	return r.repo.Create(ctx, &commandlog.Entry{
		Command:   entry.Command,
		Topic:     entry.Topic,
		Payload:   entry.Payload,
		CreatedAt: entry.Timestamp,
	})
}
