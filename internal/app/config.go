package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN selects the Postgres role store; empty keeps the in-memory one.
	PGDSN string `envconfig:"PG_DSN" default:""`

	// RedisAddr selects the shared token cache; empty keeps the in-process one.
	RedisAddr string `envconfig:"REDIS_ADDR" default:""`

	// AuthServiceURL is the identity-verification endpoint base URL.
	AuthServiceURL string        `envconfig:"AUTH_SERVICE_URL" default:"https://nexus.api.globusonline.org/goauth"`
	VerifyTimeout  time.Duration `envconfig:"VERIFY_TIMEOUT" default:"30s"`

	// GateRole is the role whose members set whitelists service use.
	GateRole string `envconfig:"GATE_ROLE" default:"kbase_users"`

	// TokenEnvVar names the environment variable consulted for a fallback
	// token. Deployments differ, so the name itself is configurable.
	TokenEnvVar string `envconfig:"TOKEN_ENV_VAR" default:"KB_AUTH_TOKEN"`

	// RootReadPolicy is "help" or "list": what a read with neither role_id
	// nor filter returns.
	RootReadPolicy string `envconfig:"ROOT_READ_POLICY" default:"help"`

	TokenCacheSize    int           `envconfig:"TOKEN_CACHE_SIZE" default:"1000"`
	TokenCacheMaxSize int           `envconfig:"TOKEN_CACHE_MAX_SIZE" default:"2000"`
	TokenCacheTTL     time.Duration `envconfig:"TOKEN_CACHE_TTL" default:"5m"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.RootReadPolicy != "help" && cfg.RootReadPolicy != "list" {
		return nil, fmt.Errorf("ROOT_READ_POLICY must be \"help\" or \"list\", got %q", cfg.RootReadPolicy)
	}
	if cfg.AuthServiceURL == "" {
		return nil, fmt.Errorf("AUTH_SERVICE_URL must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
