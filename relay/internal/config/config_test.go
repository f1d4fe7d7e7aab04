package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubwave/relay/relay/internal/decryptor"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_WithDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3007, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3007", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(1048576), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, "message", cfg.Broadcast.Topic)
	assert.Equal(t, 64, cfg.Broadcast.BufferSize)
	assert.Equal(t, 25*time.Second, cfg.Broadcast.Heartbeat)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "relay.events", cfg.NATS.SubjectPrefix)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := `
server:
  port: 9090
secrets:
  client_id: file-id
  client_secret: file-secret
broadcast:
  heartbeat: 5s
nats:
  enabled: true
  url: nats://nats:4222
cors:
  allowed_origins:
    - https://app.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file-id", cfg.Secrets.ClientID)
	assert.Equal(t, "file-secret", cfg.Secrets.ClientSecret)
	assert.Equal(t, 5*time.Second, cfg.Broadcast.Heartbeat)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "message", cfg.Broadcast.Topic, "unset keys keep defaults")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RELAY_SERVER_PORT", "8081")
	t.Setenv("RELAY_RATE_LIMIT_ENABLED", "true")
	t.Setenv("RELAY_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ClientEnvBinding(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("plain names", func(t *testing.T) {
		t.Setenv("CLIENT_ID", "env-id")
		t.Setenv("CLIENT_SECRET", testSecret)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "env-id", cfg.Secrets.ClientID)
		assert.Equal(t, testSecret, cfg.Secrets.ClientSecret)
	})

	t.Run("prefixed names win", func(t *testing.T) {
		t.Setenv("CLIENT_ID", "env-id")
		t.Setenv("RELAY_SECRETS_CLIENT_ID", "prefixed-id")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "prefixed-id", cfg.Secrets.ClientID)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 3007},
			Secrets: SecretsConfig{ClientID: "client", ClientSecret: testSecret},
			Webhook: WebhookConfig{MaxBodyBytes: 1024},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing client id", func(c *Config) { c.Secrets.ClientID = "" }, decryptor.ErrMissingSecrets},
		{"missing secret", func(c *Config) { c.Secrets.ClientSecret = "" }, decryptor.ErrMissingSecrets},
		{"bad key length", func(c *Config) { c.Secrets.ClientSecret = "tooshort" }, decryptor.ErrInvalidKeyLength},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, nil},
		{"bad body limit", func(c *Config) { c.Webhook.MaxBodyBytes = 0 }, nil},
		{"rate limit without budget", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Requests = 0
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{
		Secrets: SecretsConfig{ClientID: "client-1234", ClientSecret: testSecret},
		CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
	}

	red := cfg.Redacted()

	assert.NotContains(t, red.Secrets.ClientSecret, "456789")
	assert.NotEqual(t, cfg.Secrets.ClientID, red.Secrets.ClientID)
	assert.Equal(t, testSecret, cfg.Secrets.ClientSecret, "original untouched")
}
