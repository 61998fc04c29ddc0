package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/nt?sslmode=disable")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.nitrotype.com/api/v2", cfg.UpstreamBaseURL)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 3, cfg.UpstreamMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.UpstreamRetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.PollInterval)
	assert.Equal(t, 1, cfg.FetchConcurrency)
	assert.Equal(t, 60*time.Second, cfg.CacheTTLRates)
	assert.Equal(t, int32(10), cfg.DatabaseMaxConns)
	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, ":3000", cfg.HTTPAddr())
	assert.Empty(t, cfg.Teams)
	assert.Empty(t, cfg.RedisURL)
	assert.True(t, cfg.EnableScheduler)
}

func TestLoad_Teams(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/nt")
	t.Setenv("TEAMS", " PR2W, NITRO,,PR2W ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"PR2W", "NITRO"}, cfg.Teams)
}

func TestLoad_PortFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/nt")
	t.Setenv("PORT", "8081")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.HTTPPort)

	t.Setenv("HTTP_PORT", "9000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort, "HTTP_PORT wins over PORT")
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadWithoutDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEAMS", "PR2W")

	cfg, err := LoadWithoutDatabase()
	require.NoError(t, err)
	assert.Equal(t, []string{"PR2W"}, cfg.Teams)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			UpstreamBaseURL:    "https://example.test",
			UpstreamMaxRetries: 3,
			UpstreamRetryDelay: time.Second,
			DatabaseURL:        "postgres://localhost/nt",
			DatabaseMaxConns:   5,
			PollInterval:       time.Minute,
			FetchConcurrency:   1,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no database", func(c *Config) { c.DatabaseURL = "" }},
		{"no base url", func(c *Config) { c.UpstreamBaseURL = "" }},
		{"negative retries", func(c *Config) { c.UpstreamMaxRetries = -1 }},
		{"negative delay", func(c *Config) { c.UpstreamRetryDelay = -time.Second }},
		{"sub-second interval", func(c *Config) { c.PollInterval = 500 * time.Millisecond }},
		{"zero concurrency", func(c *Config) { c.FetchConcurrency = 0 }},
		{"zero pool", func(c *Config) { c.DatabaseMaxConns = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, (&Config{AppEnv: "development"}).IsDevelopment())
	assert.False(t, (&Config{AppEnv: "production"}).IsDevelopment())
}
