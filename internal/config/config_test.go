package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Auth.Secret = "0123456789abcdef0123"
	return cfg
}

func TestDefaultRequiresSecret(t *testing.T) {
	cfg := Default()
	require.EqualError(t, cfg.Validate(), "auth.secret is required")

	cfg.Auth.Secret = "0123456789abcdef0123"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"listen addr", func(c *Config) { c.Server.ListenAddr = "" }, "server.listen_addr is required"},
		{"db path", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"session ttl", func(c *Config) { c.Auth.SessionTTL = "soon" }, "auth.session_ttl must be a positive duration"},
		{"reset ttl", func(c *Config) { c.Auth.ResetTTL = "-1h" }, "auth.reset_ttl must be a positive duration"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 2 }, "auth.bcrypt_cost must be between 4 and 31"},
		{"quota", func(c *Config) { c.Quota.InitialCalls = -1 }, "quota.initial_calls must not be negative"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level must be one of: debug, info, warn, error"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format must be 'json' or 'text'"},
		{"client url", func(c *Config) { c.Client.URL = "localhost:3000" }, "client.url must be an http(s) URL"},
		{"smtp tls", func(c *Config) {
			c.SMTP.Host = "smtp.example.com"
			c.SMTP.From = "noreply@example.com"
			c.SMTP.TLS = "maybe"
		}, "smtp.tls must be one of: starttls, tls, none"},
		{"rate limit", func(c *Config) { c.RateLimit.Burst = 0 }, "rate_limit.burst must be positive"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path must start with '/'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			require.EqualError(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.ResetTTL = "2d"

	assert.Equal(t, time.Hour, cfg.GetSessionTTL())
	assert.Equal(t, 48*time.Hour, cfg.GetResetTTL())
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/captionapi/data.db
auth:
  secret: file-secret-0123456789
quota:
  initial_calls: 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/captionapi/data.db", cfg.Database.Path)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.Secret)
	assert.Equal(t, 5, cfg.Quota.InitialCalls)
	assert.Equal(t, ":3003", cfg.Server.ListenAddr)
	assert.Equal(t, "admin@admin.com", cfg.Admin.SuperAdminEmail)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "captionapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  secret: file-secret-0123456789\n"), 0o600))

	t.Setenv("SECRET_KEY", "env-secret-0123456789")
	t.Setenv("PORT", "8080")
	t.Setenv("CLIENT_URL", "https://app.example.com/")
	t.Setenv("EMAIL_HOST", "smtp.example.com")
	t.Setenv("EMAIL_USER", "mailer@example.com")
	t.Setenv("SUPER_ADMIN_EMAIL", "root@example.com")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret-0123456789", cfg.Auth.Secret)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "https://app.example.com", cfg.Client.URL)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, "mailer@example.com", cfg.SMTP.Username)
	assert.Equal(t, "root@example.com", cfg.Admin.SuperAdminEmail)
}

func TestLoadWithEnvMissingExplicitFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadWithEnvBadPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "captionapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  secret: file-secret-0123456789\n"), 0o600))
	t.Setenv("PORT", "eighty")

	_, err := LoadWithEnv(path)
	require.ErrorContains(t, err, "PORT must be numeric")
}
