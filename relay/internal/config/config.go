package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dubwave/relay/relay/internal/decryptor"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Secrets   SecretsConfig   `mapstructure:"secrets" yaml:"secrets"`
	Webhook   WebhookConfig   `mapstructure:"webhook" yaml:"webhook"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
	NATS      NATSConfig      `mapstructure:"nats" yaml:"nats"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecretsConfig holds the upstream client credentials.
type SecretsConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// Pair converts the configured values into the decryptor's secret pair.
func (s SecretsConfig) Pair() decryptor.Secrets {
	return decryptor.Secrets{ClientID: s.ClientID, ClientSecret: s.ClientSecret}
}

type WebhookConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type BroadcastConfig struct {
	Topic      string        `mapstructure:"topic" yaml:"topic"`
	BufferSize int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	Heartbeat  time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	URL           string        `mapstructure:"url" yaml:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3007)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("secrets.client_id", "")
	v.SetDefault("secrets.client_secret", "")
	v.SetDefault("webhook.max_body_bytes", 1048576)
	v.SetDefault("broadcast.topic", "message")
	v.SetDefault("broadcast.buffer_size", 64)
	v.SetDefault("broadcast.heartbeat", "25s")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "relay.events")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("rate_limit.requests", 600)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/relay")
	}

	// Environment variables override: RELAY_SERVER_PORT, RELAY_NATS_ENABLED, ...
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The upstream provider documents plain CLIENT_ID / CLIENT_SECRET.
	_ = v.BindEnv("secrets.client_id", "RELAY_SECRETS_CLIENT_ID", "CLIENT_ID")
	_ = v.BindEnv("secrets.client_secret", "RELAY_SECRETS_CLIENT_SECRET", "CLIENT_SECRET")

	// Read config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if err := c.Secrets.Pair().Validate(); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return errors.New("webhook.max_body_bytes must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.Requests <= 0 {
		return errors.New("rate_limit.requests must be positive when rate limiting is enabled")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.Secrets.ClientID = decryptor.Mask(c.Secrets.ClientID)
	c.Secrets.ClientSecret = decryptor.Mask(c.Secrets.ClientSecret)
	c.CORS.AllowedOrigins = append([]string(nil), c.CORS.AllowedOrigins...)
	return c
}
