// Command manualfetch runs a single ingestion cycle and exits.
// Teams given as arguments override TEAMS from the environment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ntteams/ingestion/internal/cache"
	"ntteams/ingestion/internal/client"
	"ntteams/ingestion/internal/config"
	"ntteams/ingestion/internal/models"
	"ntteams/ingestion/internal/repository"
	"ntteams/ingestion/internal/scheduler"
	"ntteams/ingestion/internal/stats"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	dryRun      bool
	concurrency int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "manualfetch [TEAM...]",
		Short:        "Fetch and store team snapshots once",
		SilenceUsage: true,
		RunE:         runFetch,
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and validate without writing to the database")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "teams fetched in parallel (defaults to FETCH_CONCURRENCY)")

	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := config.Load
	if dryRun {
		load = config.LoadWithoutDatabase
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	teams := cfg.Teams
	if len(args) > 0 {
		teams = args
	}
	if concurrency < 1 {
		concurrency = cfg.FetchConcurrency
	}

	apiClient := client.NewClient(client.Options{
		BaseURL:    cfg.UpstreamBaseURL,
		UserAgent:  cfg.UpstreamUserAgent,
		Referer:    cfg.UpstreamReferer,
		Timeout:    cfg.UpstreamTimeout,
		MaxRetries: cfg.UpstreamMaxRetries,
		RetryDelay: cfg.UpstreamRetryDelay,
	})

	var writer scheduler.SnapshotWriter = dryRunWriter{}
	var invalidator scheduler.Invalidator
	if !dryRun {
		db, err := repository.NewDatabase(ctx, repository.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DatabaseMaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		writer = db.Snapshots

		// Drop the worker's cached rates once new history lands
		if cfg.RedisURL != "" {
			redisCache, err := cache.NewRedisCache(cache.Config{URL: cfg.RedisURL})
			if err != nil {
				log.Warn().Err(err).Msg("Failed to connect to Redis - cached rates may be stale until TTL")
			} else {
				defer redisCache.Close()
				invalidator = stats.NewAggregator(db.Aggregates).WithCache(redisCache, cfg.CacheTTLRates)
			}
		}
	}

	pipeline := scheduler.NewPipeline(teams, apiClient, writer, concurrency)
	if invalidator != nil {
		pipeline.WithInvalidator(invalidator)
	}

	log.Info().
		Strs("teams", pipeline.Teams()).
		Int("concurrency", concurrency).
		Bool("dry_run", dryRun).
		Msg("Running manual fetch")

	report := pipeline.RunCycle(ctx)

	for _, res := range report.Teams {
		event := log.Info()
		if res.Err != nil {
			event = log.Error().Err(res.Err)
		}
		event.
			Str("team", res.Team).
			Str("outcome", res.Outcome).
			Int("rows", res.Rows).
			Msg("Team result")
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d teams failed", report.Failed, len(report.Teams))
	}
	return nil
}

// dryRunWriter reports what would have been written
type dryRunWriter struct{}

func (dryRunWriter) UpsertTeam(ctx context.Context, team *models.TeamSnapshot) (int, error) {
	log.Info().
		Int64("team_id", team.TeamID).
		Str("name", team.TeamName).
		Int("members", len(team.Members)).
		Msg("Dry run, skipping write")
	return len(team.Members), nil
}
