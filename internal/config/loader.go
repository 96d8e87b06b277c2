package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no -config flag is given
const DefaultPath = "config.yaml"

// Load loads configuration from a YAML file on top of Default()
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides.
// A .env file in the working directory is read first, if present. A missing config file
// is tolerated only for DefaultPath so that a bare `captionapi` works from env alone.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != DefaultPath {
			return nil, err
		}
		cfg = Default()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv applies environment variable overrides
func applyEnv(cfg *Config) error {
	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		cfg.Auth.Secret = secret
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT must be numeric: %w", err)
		}
		cfg.Server.ListenAddr = ":" + port
	}

	if listenAddr := os.Getenv("LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if clientURL := os.Getenv("CLIENT_URL"); clientURL != "" {
		cfg.Client.URL = strings.TrimRight(clientURL, "/")
	}

	if host := os.Getenv("EMAIL_HOST"); host != "" {
		cfg.SMTP.Host = host
	}

	if port := os.Getenv("EMAIL_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("EMAIL_PORT must be numeric: %w", err)
		}
		cfg.SMTP.Port = p
	}

	if user := os.Getenv("EMAIL_USER"); user != "" {
		cfg.SMTP.Username = user
	}

	if pass := os.Getenv("EMAIL_PASS"); pass != "" {
		cfg.SMTP.Password = pass
	}

	if from := os.Getenv("EMAIL_FROM"); from != "" {
		cfg.SMTP.From = from
	}

	if email := os.Getenv("SUPER_ADMIN_EMAIL"); email != "" {
		cfg.Admin.SuperAdminEmail = email
	}

	if password := os.Getenv("SUPER_ADMIN_PASSWORD"); password != "" {
		cfg.Admin.BootstrapPassword = password
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}

	return nil
}
