package config

import (
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Quota     QuotaConfig     `yaml:"quota"`
	Admin     AdminConfig     `yaml:"admin"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Client    ClientConfig    `yaml:"client"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains token signing and password hashing configuration
type AuthConfig struct {
	Secret              string `yaml:"secret"`
	SessionTTL          string `yaml:"session_ttl"`
	ResetTTL            string `yaml:"reset_ttl"`
	BcryptCost          int    `yaml:"bcrypt_cost"`
	Issuer              string `yaml:"issuer"`
	AllowRoleOnRegister bool   `yaml:"allow_role_on_register"`
}

// QuotaConfig contains metered API quota configuration
type QuotaConfig struct {
	InitialCalls int `yaml:"initial_calls"`
}

// AdminConfig identifies the super-admin account
type AdminConfig struct {
	SuperAdminEmail   string `yaml:"super_admin_email"`
	BootstrapPassword string `yaml:"bootstrap_password"`
	MinPasswordLength int    `yaml:"min_password_length"`
}

// SMTPConfig contains outbound mail configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	TLS      string `yaml:"tls"`
	Timeout  string `yaml:"timeout"`
}

// ClientConfig describes the public web client
type ClientConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string      `yaml:"level"`
	Format string      `yaml:"format"`
	File   *FileConfig `yaml:"file"`
}

// FileConfig enables a rotating log file next to stdout
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration that runs a local development server
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":3003",
			ShutdownTimeout: "10s",
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "./database.db",
		},
		Auth: AuthConfig{
			SessionTTL: "1h",
			ResetTTL:   "1h",
			BcryptCost: 10,
			Issuer:     "captionapi",
		},
		Quota: QuotaConfig{
			InitialCalls: 20,
		},
		Admin: AdminConfig{
			SuperAdminEmail:   "admin@admin.com",
			MinPasswordLength: 1,
		},
		SMTP: SMTPConfig{
			Port:    587,
			TLS:     "starttls",
			Timeout: "15s",
		},
		Client: ClientConfig{
			URL: "http://localhost:3000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			Burst:             10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout is invalid: %w", err)
	}

	// Database validation
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Auth validation
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if len(c.Auth.Secret) < 16 {
		fmt.Fprintf(os.Stderr, "WARNING: auth.secret is shorter than 16 characters. Use a longer secret in production!\n")
	}
	if d, err := parseDuration(c.Auth.SessionTTL); err != nil || d <= 0 {
		return fmt.Errorf("auth.session_ttl must be a positive duration")
	}
	if d, err := parseDuration(c.Auth.ResetTTL); err != nil || d <= 0 {
		return fmt.Errorf("auth.reset_ttl must be a positive duration")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}

	// Quota validation
	if c.Quota.InitialCalls < 0 {
		return fmt.Errorf("quota.initial_calls must not be negative")
	}

	// Admin validation
	if _, err := mail.ParseAddress(c.Admin.SuperAdminEmail); err != nil {
		return fmt.Errorf("admin.super_admin_email is invalid: %w", err)
	}
	if c.Admin.MinPasswordLength < 1 {
		return fmt.Errorf("admin.min_password_length must be at least 1")
	}

	// SMTP validation (optional block)
	if c.SMTP.Host != "" {
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("smtp.port must be between 1 and 65535")
		}
		if c.SMTP.From == "" && c.SMTP.Username == "" {
			return fmt.Errorf("smtp.from or smtp.username is required when smtp.host is set")
		}
		switch c.SMTP.TLS {
		case "starttls", "tls", "none":
		default:
			return fmt.Errorf("smtp.tls must be one of: starttls, tls, none")
		}
		if _, err := parseDuration(c.SMTP.Timeout); err != nil {
			return fmt.Errorf("smtp.timeout is invalid: %w", err)
		}
	}

	// Client validation
	if !strings.HasPrefix(c.Client.URL, "http://") && !strings.HasPrefix(c.Client.URL, "https://") {
		return fmt.Errorf("client.url must be an http(s) URL")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}
	if c.Logging.File != nil && c.Logging.File.Path == "" {
		return fmt.Errorf("logging.file.path is required when logging.file is set")
	}

	// Rate limit validation
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}

// GetSessionTTL returns the session token lifetime
func (c *Config) GetSessionTTL() time.Duration {
	d, _ := parseDuration(c.Auth.SessionTTL)
	return d
}

// GetResetTTL returns the password reset token lifetime
func (c *Config) GetResetTTL() time.Duration {
	d, _ := parseDuration(c.Auth.ResetTTL)
	return d
}

// GetShutdownTimeout returns the graceful shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// GetSMTPTimeout returns the SMTP dial/send timeout
func (c *Config) GetSMTPTimeout() time.Duration {
	d, _ := parseDuration(c.SMTP.Timeout)
	return d
}

// parseDuration parses duration with support for days (e.g., "90d")
func parseDuration(s string) (time.Duration, error) {
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
