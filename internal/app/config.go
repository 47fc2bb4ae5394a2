package app

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the local POS daemon.
type Config struct {
	AppEnv          string        `envconfig:"KESS_ENV" default:"development"`
	AppAddr         string        `envconfig:"KESS_ADDR" default:"127.0.0.1:8787"`
	AppReadTimeout  time.Duration `envconfig:"KESS_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"KESS_WRITE_TIMEOUT" default:"15s"`

	LogFormat string `envconfig:"KESS_LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"KESS_LOG_LEVEL" default:"info"`

	DBPath string `envconfig:"KESS_DB_PATH" default:"kess.db"`

	RedisAddr string `envconfig:"KESS_REDIS_ADDR" default:"127.0.0.1:6379"`

	SyncEndpoint    string        `envconfig:"KESS_SYNC_ENDPOINT" default:"http://127.0.0.1:9090/v1/sync"`
	SyncDebounce    time.Duration `envconfig:"KESS_SYNC_DEBOUNCE" default:"2s"`
	SyncPushTimeout time.Duration `envconfig:"KESS_SYNC_PUSH_TIMEOUT" default:"10s"`

	RateLimit int `envconfig:"KESS_RATE_LIMIT" default:"200"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
