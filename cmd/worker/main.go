package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ntteams/ingestion/internal/api"
	"ntteams/ingestion/internal/cache"
	"ntteams/ingestion/internal/client"
	"ntteams/ingestion/internal/config"
	"ntteams/ingestion/internal/metrics"
	"ntteams/ingestion/internal/repository"
	"ntteams/ingestion/internal/scheduler"
	"ntteams/ingestion/internal/stats"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Setup logger
	setupLogger(cfg)

	log.Info().Msg("Starting team snapshot ingestion worker")
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Strs("teams", cfg.Teams).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize database connection
	db, err := repository.NewDatabase(ctx, repository.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	aggregator := stats.NewAggregator(db.Aggregates)

	// Initialize Redis cache when configured
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cache.Config{URL: cfg.RedisURL})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		} else {
			defer redisCache.Close()
			aggregator.WithCache(redisCache, cfg.CacheTTLRates)
			log.Info().Dur("ttl", cfg.CacheTTLRates).Msg("Rate cache enabled")
		}
	}

	// Initialize upstream client
	apiClient := client.NewClient(client.Options{
		BaseURL:    cfg.UpstreamBaseURL,
		UserAgent:  cfg.UpstreamUserAgent,
		Referer:    cfg.UpstreamReferer,
		Timeout:    cfg.UpstreamTimeout,
		MaxRetries: cfg.UpstreamMaxRetries,
		RetryDelay: cfg.UpstreamRetryDelay,
	})
	log.Info().Str("base_url", cfg.UpstreamBaseURL).Msg("Upstream client initialized")

	pipeline := scheduler.NewPipeline(cfg.Teams, apiClient, db.Snapshots, cfg.FetchConcurrency).
		WithInvalidator(aggregator)

	// Start HTTP server; failing to bind is fatal
	server := api.NewServer(cfg.HTTPAddr(), api.NewHandlers(aggregator, db))
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Update system uptime and pool metrics
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				db.PoolStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Create and start scheduler
	sched := scheduler.NewScheduler(pipeline, cfg.PollInterval)

	if cfg.EnableScheduler {
		if len(cfg.Teams) == 0 {
			log.Warn().Msg("TEAMS is empty, cycles will be no-ops")
		}
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	} else {
		log.Info().Msg("Scheduler disabled, serving reads only")
	}

	// Keep running until context is cancelled
	<-ctx.Done()

	// Graceful shutdown
	if cfg.EnableScheduler {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if lvl := cfg.LogLevel; lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}
