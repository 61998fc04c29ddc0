package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Upstream API
	UpstreamBaseURL    string        `envconfig:"UPSTREAM_BASE_URL" default:"https://www.nitrotype.com/api/v2"`
	UpstreamTimeout    time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`
	UpstreamMaxRetries int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"3"`
	UpstreamRetryDelay time.Duration `envconfig:"UPSTREAM_RETRY_DELAY" default:"5s"`
	UpstreamUserAgent  string        `envconfig:"UPSTREAM_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36"`
	UpstreamReferer    string        `envconfig:"UPSTREAM_REFERER" default:"https://www.nitrotype.com/"`

	// Teams to poll, comma separated
	Teams []string `envconfig:"TEAMS" default:""`

	// Database
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	// Redis (optional)
	RedisURL      string        `envconfig:"REDIS_URL" default:""`
	CacheTTLRates time.Duration `envconfig:"CACHE_TTL_RATES" default:"60s"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"0"`

	// Scheduler
	EnableScheduler  bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"10m"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"1"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	return load(true)
}

// LoadWithoutDatabase loads configuration for commands that never open the database
func LoadWithoutDatabase() (*Config, error) {
	return load(false)
}

func load(requireDatabase bool) (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg.normalize()

	validate := cfg.Validate
	if !requireDatabase {
		validate = cfg.validateUpstream
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// normalize trims team identifiers and applies the PORT fallback used by hosting platforms.
func (c *Config) normalize() {
	teams := make([]string, 0, len(c.Teams))
	seen := make(map[string]struct{}, len(c.Teams))
	for _, team := range c.Teams {
		team = strings.TrimSpace(team)
		if team == "" {
			continue
		}
		if _, dup := seen[team]; dup {
			continue
		}
		seen[team] = struct{}{}
		teams = append(teams, team)
	}
	c.Teams = teams

	if c.HTTPPort == 0 {
		c.HTTPPort = 3000
		if port := os.Getenv("PORT"); port != "" {
			var p int
			if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
				c.HTTPPort = p
			}
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DatabaseMaxConns < 1 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be >= 1")
	}

	return c.validateUpstream()
}

func (c *Config) validateUpstream() error {
	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}

	if c.UpstreamMaxRetries < 0 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must be >= 0")
	}

	if c.UpstreamRetryDelay < 0 {
		return fmt.Errorf("UPSTREAM_RETRY_DELAY must be >= 0")
	}

	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s")
	}

	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be >= 1")
	}

	return nil
}

// HTTPAddr returns the listen address of the HTTP server
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
