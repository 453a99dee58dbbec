package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Yarbo bridge.
// All configuration can come from YAML and is overridden by environment variables.
type Config struct {
	Robot      RobotConfig      `yaml:"robot"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Cloud      CloudConfig      `yaml:"cloud"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RobotConfig identifies the robot and its on-board MQTT broker.
type RobotConfig struct {
	// Serial is the robot serial number used to scope topics.
	// If empty, it is detected from the cloud device list at startup.
	Serial string `yaml:"serial"`

	// Host is the configured broker address. Discovery probes it first.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// Namespace is the first topic level used by the robot firmware.
	Namespace string `yaml:"namespace"`
}

// DiscoveryConfig controls broker address discovery.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// CacheFile holds the last known good broker address.
	CacheFile string `yaml:"cache_file"`

	// ProbeTimeout bounds each TLS handshake probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// Concurrency caps simultaneous probes during a subnet scan.
	Concurrency int `yaml:"concurrency"`

	// Subnet overrides automatic /24 detection (e.g. "192.168.1.0/24").
	Subnet string `yaml:"subnet,omitempty"`
}

// SupervisorConfig tunes the reconnection supervisor.
// The defaults match observed robot behaviour and are not protocol guarantees.
type SupervisorConfig struct {
	// FailureThreshold is the consecutive-disconnect count that first triggers rediscovery.
	FailureThreshold int `yaml:"failure_threshold"`

	// RepeatEvery re-triggers rediscovery on every Nth consecutive failure.
	RepeatEvery int `yaml:"repeat_every"`

	// MinInterval rate-limits rediscovery attempts.
	MinInterval time.Duration `yaml:"min_interval"`

	// HealthCheckInterval is how often the current address is re-probed.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// RefreshInterval is how often get_device_msg is re-issued while connected.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ProbeTimeout bounds the health-check probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// MQTTConfig contains settings for the session with the robot broker.
type MQTTConfig struct {
	ClientIDPrefix string              `yaml:"client_id_prefix"`
	KeepAlive      int                 `yaml:"keep_alive"`
	ConnectTimeout int                 `yaml:"connect_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
	TrafficLog     TrafficLogConfig    `yaml:"traffic_log"`
}

// MQTTReconnectConfig contains paho reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TrafficLogConfig controls the raw RX/TX traffic log.
type TrafficLogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	Preview    int    `yaml:"preview"`
}

// CloudConfig contains Yarbo cloud account and API settings.
type CloudConfig struct {
	Enabled      bool            `yaml:"enabled"`
	Email        string          `yaml:"email"`
	Password     string          `yaml:"password"`
	AccessToken  string          `yaml:"access_token"`
	RefreshToken string          `yaml:"refresh_token"`
	APIBase      string          `yaml:"api_base"`
	Auth         CloudAuthConfig `yaml:"auth"`
	Cache        CloudCacheTTL   `yaml:"cache"`
	Timeout      int             `yaml:"timeout"`
}

// CloudAuthConfig contains the identity provider settings.
type CloudAuthConfig struct {
	Domain   string `yaml:"domain"`
	ClientID string `yaml:"client_id"`
	Audience string `yaml:"audience"`
}

// CloudCacheTTL contains cache lifetimes in seconds.
type CloudCacheTTL struct {
	Devices  int `yaml:"devices"`
	Map      int `yaml:"map"`
	Messages int `yaml:"messages"`
	Firmware int `yaml:"firmware"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite settings for the command log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is non-empty
//  3. Environment variables (YARBO_*)
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults + env only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Parse is Load without validation, for tools that need only part of the
// configuration.
func Parse(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with the robot's factory settings.
func defaultConfig() *Config {
	return &Config{
		Robot: RobotConfig{
			Host:      "192.168.68.102",
			Port:      8883,
			TLS:       true,
			Namespace: "snowbot",
		},
		Discovery: DiscoveryConfig{
			Enabled:      true,
			CacheFile:    ".robot_ip_cache",
			ProbeTimeout: 1500 * time.Millisecond,
			Concurrency:  50,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold:    3,
			RepeatEvery:         10,
			MinInterval:         60 * time.Second,
			HealthCheckInterval: 5 * time.Minute,
			RefreshInterval:     60 * time.Second,
			ProbeTimeout:        3 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientIDPrefix: "yarbo-bridge",
			KeepAlive:      60,
			ConnectTimeout: 10,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TrafficLog: TrafficLogConfig{
				Path:       "mqtt_traffic.log",
				MaxSize:    10,
				MaxBackups: 3,
				Preview:    500,
			},
		},
		Cloud: CloudConfig{
			APIBase: "https://4zx17x5q7l.execute-api.us-east-1.amazonaws.com/Stage",
			Auth: CloudAuthConfig{
				Domain:   "dev-6ubfuqym1d3m0mq1.us.auth0.com",
				ClientID: "SL1GSNy3VmCLTML01qPkwqjgY4xm66i0",
				Audience: "https://auth0-jwt-authorizer",
			},
			Cache: CloudCacheTTL{
				Devices:  300,
				Map:      3600,
				Messages: 120,
				Firmware: 3600,
			},
			Timeout: 15,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Path:        "./data/yarbo-bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies YARBO_* environment variable overrides.
// The names match the variables the bridge has always been configured with.
func applyEnvOverrides(cfg *Config) {
	// Cloud account
	if v := os.Getenv("YARBO_EMAIL"); v != "" {
		cfg.Cloud.Email = v
		cfg.Cloud.Enabled = true
	}
	if v := os.Getenv("YARBO_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}
	if v := os.Getenv("YARBO_ACCESS_TOKEN"); v != "" {
		cfg.Cloud.AccessToken = v
		cfg.Cloud.Enabled = true
	}
	if v := os.Getenv("YARBO_REFRESH_TOKEN"); v != "" {
		cfg.Cloud.RefreshToken = v
		cfg.Cloud.Enabled = true
	}

	// API
	if v := os.Getenv("YARBO_BRIDGE_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("YARBO_BRIDGE_PORT"); ok {
		cfg.API.Port = v
	}

	// Robot
	if v := os.Getenv("YARBO_ROBOT_IP"); v != "" {
		cfg.Robot.Host = v
	}
	if v, ok := envInt("YARBO_ROBOT_MQTT_PORT"); ok {
		cfg.Robot.Port = v
	}
	if v, ok := envBool("YARBO_ROBOT_MQTT_TLS"); ok {
		cfg.Robot.TLS = v
	}
	if v := os.Getenv("YARBO_ROBOT_SERIAL"); v != "" {
		cfg.Robot.Serial = v
	}
	if v := os.Getenv("YARBO_IP_CACHE_FILE"); v != "" {
		cfg.Discovery.CacheFile = v
	}

	// Traffic log
	if v, ok := envBool("YARBO_MQTT_LOG"); ok {
		cfg.MQTT.TrafficLog.Enabled = v
	}
	if v := os.Getenv("YARBO_MQTT_LOG_FILE"); v != "" {
		cfg.MQTT.TrafficLog.Path = v
	}

	// Storage
	if v := os.Getenv("YARBO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("YARBO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("YARBO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// envInt reads an integer environment variable. Unparsable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envBool reads a boolean environment variable ("1", "true", "yes" are true).
func envBool(key string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return false, false
	}
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	default:
		return false, true
	}
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Robot
	if c.Robot.Port < 1 || c.Robot.Port > 65535 {
		errs = append(errs, "robot.port must be between 1 and 65535")
	}
	if c.Robot.Namespace == "" {
		errs = append(errs, "robot.namespace is required")
	}
	if c.Robot.Host == "" && !c.Discovery.Enabled {
		errs = append(errs, "robot.host is required when discovery is disabled")
	}
	if c.Robot.Serial == "" && !c.Cloud.Enabled {
		errs = append(errs, "robot.serial is required (set YARBO_ROBOT_SERIAL) unless the cloud account is configured")
	}

	// Discovery
	if c.Discovery.Enabled {
		if c.Discovery.Concurrency < 1 {
			errs = append(errs, "discovery.concurrency must be at least 1")
		}
		if c.Discovery.ProbeTimeout <= 0 {
			errs = append(errs, "discovery.probe_timeout must be positive")
		}
	}

	// Supervisor
	if c.Supervisor.FailureThreshold < 1 {
		errs = append(errs, "supervisor.failure_threshold must be at least 1")
	}
	if c.Supervisor.RepeatEvery < 1 {
		errs = append(errs, "supervisor.repeat_every must be at least 1")
	}
	if c.Supervisor.RefreshInterval <= 0 || c.Supervisor.HealthCheckInterval <= 0 {
		errs = append(errs, "supervisor intervals must be positive")
	}

	// Cloud
	if c.Cloud.Enabled {
		hasPassword := c.Cloud.Email != "" && c.Cloud.Password != ""
		hasToken := c.Cloud.AccessToken != "" || c.Cloud.RefreshToken != ""
		if !hasPassword && !hasToken {
			errs = append(errs, "cloud requires email and password (YARBO_EMAIL, YARBO_PASSWORD) or a token")
		}
		if c.Cloud.APIBase == "" {
			errs = append(errs, "cloud.api_base is required")
		}
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Storage
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// BrokerAddress returns the configured broker endpoint as host:port.
func (c *Config) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.Robot.Host, c.Robot.Port)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
