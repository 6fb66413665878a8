// Package config loads application configuration from an optional YAML
// file and CHATRELAY_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the full application configuration.
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Assistant AssistantConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port            int
	CORSOrigins     string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Address  string // empty disables the history cache
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	AccessDuration  time.Duration
	RefreshDuration time.Duration
	Issuer          string
}

type AssistantConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration, applying defaults, then an optional
// config.yaml, then environment overrides.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("CHATRELAY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would only fail at an awkward moment
// later.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtsecret must not be empty")
	}
	if c.Auth.AccessDuration <= 0 || c.Auth.RefreshDuration <= 0 {
		return errors.New("auth token durations must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	return nil
}
