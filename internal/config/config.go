package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "APPT_"
	defaultConfigFile = "config.yaml"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	RequestTimeout  time.Duration `koanf:"request_timeout"` // 0 disables the inbound timeout middleware
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadMemory int64         `koanf:"max_upload_memory"` // bytes buffered in memory before spilling uploads to disk
}

// BackendConfig identifies the processing service.
type BackendConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// SlogLevel parses Level, falling back to info for unknown values.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

var defaults = map[string]any{
	"server.port":              3000,
	"server.request_timeout":   "0s",
	"server.shutdown_timeout":  "30s",
	"server.max_upload_memory": 32 << 20,
	"backend.base_url":         "http://backend:8000",
	"backend.timeout":          "5m",
	"log.level":                "info",
	"telemetry.enabled":        false,
	"telemetry.service_name":   "appointment-gateway",
	"metrics.enabled":          true,
	"metrics.path":             "/metrics",
}

// legacyEnv maps the environment variables understood by earlier gateway
// deployments to config keys. They apply only when no APPT_ variable or file
// value set the key.
var legacyEnv = map[string]string{
	"PORT":            "server.port",
	"PYTHON_API_BASE": "backend.base_url",
}

// Load reads configuration from config.yaml (or the file named by APPT_CONFIG),
// then APPT_ environment variables, then legacy variables, then defaults.
// Nested keys use a double underscore: APPT_BACKEND__BASE_URL.
func Load() (*Config, error) {
	path := os.Getenv(envPrefix + "CONFIG")
	if path == "" {
		path = defaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path. A missing file is not
// an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" && !k.Exists(key) {
			k.Set(key, v)
		}
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Backend.BaseURL = strings.TrimSuffix(cfg.Backend.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the gateway cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must be http or https, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 || c.Server.RequestTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}
