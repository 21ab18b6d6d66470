// Package config loads server configuration from a YAML file and HXBIND_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HXBIND_SERVER_ADDR.
const EnvPrefix = "HXBIND"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	CORS    CORSConfig    `mapstructure:"cors"`
}

// ServerConfig controls the HTTP listener and router.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Router          string        `mapstructure:"router"` // echo or gin
	Path            string        `mapstructure:"path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig sets the logrus level and output format (text or json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SessionConfig tunes session lifetime and the render stream.
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	OutboxSize      int           `mapstructure:"outbox_size"`
	SigningKey      string        `mapstructure:"signing_key"`
}

// CORSConfig is passed to the router's CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.router", "echo")
	v.SetDefault("server.path", "/_b/")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// streams stay open; 0 disables the write deadline
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", time.Minute)
	v.SetDefault("session.heartbeat", 30*time.Second)
	v.SetDefault("session.outbox_size", 256)
	v.SetDefault("session.signing_key", "")

	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "HXBind-Request"})
	v.SetDefault("cors.exposed_headers", []string{})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
}

// Load reads the YAML file at path (skipped when empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Server.Router {
	case "echo", "gin":
	default:
		return fmt.Errorf("config: server.router must be echo or gin, got %q", c.Server.Router)
	}
	if !strings.HasPrefix(c.Server.Path, "/") || !strings.HasSuffix(c.Server.Path, "/") {
		return fmt.Errorf("config: server.path must start and end with /, got %q", c.Server.Path)
	}
	if c.Session.TTL < 0 || c.Session.CleanupInterval < 0 {
		return fmt.Errorf("config: session durations must not be negative")
	}
	return nil
}
