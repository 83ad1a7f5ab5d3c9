package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the chat server and client.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Server  ServerConfig  `mapstructure:"server"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// QueueConfig selects the message-queue transport and its parameters.
type QueueConfig struct {
	// ControlKey is the well-known key of the server's control queue.
	ControlKey string `mapstructure:"control_key"`
	// Transport is "nats" (cross-process, default) or "memory" (in-process).
	Transport string `mapstructure:"transport"`
	NATSURL   string `mapstructure:"nats_url"`
	// Depth bounds each queue's pending-message buffer; sends beyond it drop.
	Depth int `mapstructure:"depth"`
}

// ServerConfig controls the router/worker/monitor tasks.
type ServerConfig struct {
	Workers           int           `mapstructure:"workers"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	MonitorInterval   time.Duration `mapstructure:"monitor_interval"`
	DefaultChannel    string        `mapstructure:"default_channel"`
}

// LimitsConfig carries the registry and wire-format capacities.
type LimitsConfig struct {
	MaxText     int `mapstructure:"max_text"`
	MaxName     int `mapstructure:"max_name"`
	MaxClients  int `mapstructure:"max_clients"`
	MaxChannels int `mapstructure:"max_channels"`
}

// MetricsConfig controls the Prometheus/diagnostics endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Endpoint   string `mapstructure:"endpoint"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("queue.control_key", "1234")
	v.SetDefault("queue.transport", "nats")
	v.SetDefault("queue.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("queue.depth", 64)

	v.SetDefault("server.workers", 4)
	v.SetDefault("server.inactivity_timeout", 120*time.Second)
	v.SetDefault("server.monitor_interval", 10*time.Second)
	v.SetDefault("server.default_channel", "#general")

	v.SetDefault("limits.max_text", 256)
	v.SetDefault("limits.max_name", 32)
	v.SetDefault("limits.max_clients", 10)
	v.SetDefault("limits.max_channels", 5)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9097")
	v.SetDefault("metrics.endpoint", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("mqchat")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("MQCHAT")
	v.AutomaticEnv()

	// Config file is optional.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the registry protocol cannot run under.
func (c Config) Validate() error {
	if c.Server.Workers <= 0 {
		return fmt.Errorf("config: server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.Limits.MaxClients <= 0 || c.Limits.MaxChannels <= 0 {
		return fmt.Errorf("config: limits.max_clients and limits.max_channels must be positive")
	}
	if c.Limits.MaxText <= 0 || c.Limits.MaxName <= 0 {
		return fmt.Errorf("config: limits.max_text and limits.max_name must be positive")
	}
	if c.Server.DefaultChannel == "" {
		return fmt.Errorf("config: server.default_channel must not be empty")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("config: queue.depth must be positive, got %d", c.Queue.Depth)
	}
	switch c.Queue.Transport {
	case "nats", "memory":
	default:
		return fmt.Errorf("config: unknown queue.transport %q", c.Queue.Transport)
	}
	return nil
}
