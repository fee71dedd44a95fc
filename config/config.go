package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Commands   CommandsConfig   `yaml:"commands"`
	Presence   PresenceConfig   `yaml:"presence"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Console    ConsoleConfig    `yaml:"console"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// GatewayConfig describes the device-facing command channel.
type GatewayConfig struct {
	Transport      string            `yaml:"transport"` // http or mqtt
	BaseURL        string            `yaml:"base_url"`
	Token          string            `yaml:"token"`
	Headers        map[string]string `yaml:"headers"`
	HTTPProxy      string            `yaml:"http_proxy"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
}

// MQTTConfig holds the broker settings used by the MQTT gateway and the
// status ingest subscriber.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// CommandsConfig tunes how command history is presented.
type CommandsConfig struct {
	HistoryLimit      int           `yaml:"history_limit"`
	StaleAfterSeconds int           `yaml:"stale_after_seconds"`
	StaleAfter        time.Duration `yaml:"-"`
}

// PresenceConfig controls the offline sweeper. OfflineAfterSeconds <= 0
// leaves isOnline entirely to the reporting devices.
type PresenceConfig struct {
	OfflineAfterSeconds  int           `yaml:"offline_after_seconds"`
	SweepIntervalSeconds int           `yaml:"sweep_interval_seconds"`
	OfflineAfter         time.Duration `yaml:"-"`
	SweepInterval        time.Duration `yaml:"-"`
}

// ScheduleConfig controls the power schedule runner.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

// ConsoleConfig holds the operator console settings.
type ConsoleConfig struct {
	APIURL                string        `yaml:"api_url"`
	Token                 string        `yaml:"token"`
	PollIntervalSeconds   int           `yaml:"poll_interval_seconds"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds"`
	RefreshDebounceMillis int           `yaml:"refresh_debounce_millis"`
	OverlayTTLSeconds     int           `yaml:"overlay_ttl_seconds"`
	HistoryLimit          int           `yaml:"history_limit"`
	PollInterval          time.Duration `yaml:"-"`
	RequestTimeout        time.Duration `yaml:"-"`
	RefreshDebounce       time.Duration `yaml:"-"`
	OverlayTTL            time.Duration `yaml:"-"`
}

// AuthConfig holds the bearer token verification settings.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
	// DeviceToken authenticates device reports on the ingest endpoints.
	DeviceToken string `yaml:"device_token"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Gateway.Transport == "" {
		cfg.Gateway.Transport = "http"
	}
	if cfg.Gateway.TimeoutSeconds <= 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}
	cfg.Gateway.Timeout = time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "signage/devices"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "signaged"
	}

	if cfg.Commands.HistoryLimit <= 0 {
		cfg.Commands.HistoryLimit = 20
	}
	if cfg.Commands.StaleAfterSeconds < 0 {
		cfg.Commands.StaleAfterSeconds = 0
	}
	cfg.Commands.StaleAfter = time.Duration(cfg.Commands.StaleAfterSeconds) * time.Second

	if cfg.Presence.SweepIntervalSeconds <= 0 {
		cfg.Presence.SweepIntervalSeconds = 30
	}
	cfg.Presence.OfflineAfter = time.Duration(cfg.Presence.OfflineAfterSeconds) * time.Second
	cfg.Presence.SweepInterval = time.Duration(cfg.Presence.SweepIntervalSeconds) * time.Second

	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}

	if cfg.Console.PollIntervalSeconds <= 0 {
		cfg.Console.PollIntervalSeconds = 5
	}
	if cfg.Console.RequestTimeoutSeconds <= 0 {
		cfg.Console.RequestTimeoutSeconds = 30
	}
	if cfg.Console.RefreshDebounceMillis <= 0 {
		cfg.Console.RefreshDebounceMillis = 500
	}
	if cfg.Console.OverlayTTLSeconds <= 0 {
		cfg.Console.OverlayTTLSeconds = 30
	}
	if cfg.Console.HistoryLimit <= 0 {
		cfg.Console.HistoryLimit = 20
	}
	cfg.Console.PollInterval = time.Duration(cfg.Console.PollIntervalSeconds) * time.Second
	cfg.Console.RequestTimeout = time.Duration(cfg.Console.RequestTimeoutSeconds) * time.Second
	cfg.Console.RefreshDebounce = time.Duration(cfg.Console.RefreshDebounceMillis) * time.Millisecond
	cfg.Console.OverlayTTL = time.Duration(cfg.Console.OverlayTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		log.Printf("auth.enabled is set without auth.jwt_secret; disabling bearer auth")
		cfg.Auth.Enabled = false
	}
}
