package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ntteams/ingestion/internal/metrics"
	"ntteams/ingestion/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Per-team outcomes within a cycle
const (
	OutcomeStored        = "stored"
	OutcomeEmpty         = "empty"
	OutcomeUpstreamError = "upstream_error"
	OutcomeRejected      = "rejected"
	OutcomeStorageError  = "storage_error"
	OutcomeCancelled     = "cancelled"
)

// TeamFetcher reads the raw team resource from upstream
type TeamFetcher interface {
	FetchTeam(ctx context.Context, teamID string) ([]byte, error)
}

// SnapshotWriter persists one team's snapshot batch
type SnapshotWriter interface {
	UpsertTeam(ctx context.Context, team *models.TeamSnapshot) (int, error)
}

// Invalidator is notified when a cycle changed stored history
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// TeamResult is the outcome of one team within a cycle
type TeamResult struct {
	Team    string
	Outcome string
	Rows    int
	Err     error
}

// CycleReport summarises one pass over the configured teams
type CycleReport struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Teams       []TeamResult
	RowsWritten int
	Failed      int
}

// Duration returns how long the cycle took
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Pipeline runs fetch, normalize and write for every configured team
type Pipeline struct {
	teams       []string
	fetcher     TeamFetcher
	writer      SnapshotWriter
	invalidator Invalidator
	concurrency int
	now         func() time.Time
}

// NewPipeline creates a pipeline over teams. Concurrency below 1 is treated as 1.
func NewPipeline(teams []string, fetcher TeamFetcher, writer SnapshotWriter, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		teams:       teams,
		fetcher:     fetcher,
		writer:      writer,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// WithInvalidator registers a hook called after any cycle that wrote rows
func (p *Pipeline) WithInvalidator(inv Invalidator) *Pipeline {
	p.invalidator = inv
	return p
}

// Teams returns the configured team identifiers
func (p *Pipeline) Teams() []string {
	return p.teams
}

// RunCycle processes every team once. A failure in one team never prevents the
// others from being fetched and stored.
func (p *Pipeline) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{
		ID:        uuid.NewString(),
		StartedAt: p.now(),
		Teams:     make([]TeamResult, len(p.teams)),
	}

	logger := log.With().Str("cycle_id", report.ID).Logger()

	if len(p.teams) == 0 {
		logger.Warn().Msg("No teams configured, nothing to ingest")
		report.FinishedAt = p.now()
		return report
	}

	logger.Info().
		Int("teams", len(p.teams)).
		Int("concurrency", p.concurrency).
		Msg("Ingestion cycle started")

	wp := pool.New().WithMaxGoroutines(p.concurrency)
	for i, team := range p.teams {
		wp.Go(func() {
			report.Teams[i] = p.safeRunTeam(ctx, team)
		})
	}
	wp.Wait()

	for _, res := range report.Teams {
		report.RowsWritten += res.Rows
		switch res.Outcome {
		case OutcomeStored, OutcomeEmpty:
		default:
			report.Failed++
		}
		metrics.RecordTeamResult(res.Outcome, res.Rows)
	}

	if report.RowsWritten > 0 && p.invalidator != nil {
		p.invalidator.Invalidate(context.WithoutCancel(ctx))
	}

	report.FinishedAt = p.now()
	logger.Info().
		Int("teams", len(p.teams)).
		Int("failed", report.Failed).
		Int("rows", report.RowsWritten).
		Dur("duration", report.Duration()).
		Msg("Ingestion cycle complete")

	return report
}

// safeRunTeam converts a panic in one team into a storage failure for that team only
func (p *Pipeline) safeRunTeam(ctx context.Context, team string) (res TeamResult) {
	var pc panics.Catcher
	pc.Try(func() {
		res = p.runTeam(ctx, team)
	})
	if r := pc.Recovered(); r != nil {
		metrics.RecordError("pipeline", "panic")
		log.Error().Str("team", team).Str("panic", fmt.Sprint(r.Value)).Msg("Team processing panicked")
		return TeamResult{Team: team, Outcome: OutcomeStorageError, Err: r.AsError()}
	}
	return res
}

func (p *Pipeline) runTeam(ctx context.Context, team string) TeamResult {
	res := TeamResult{Team: team}

	if err := ctx.Err(); err != nil {
		res.Outcome, res.Err = OutcomeCancelled, err
		return res
	}

	payload, err := p.fetcher.FetchTeam(ctx, team)
	if err != nil {
		res.Err = err
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			return res
		}
		res.Outcome = OutcomeUpstreamError
		metrics.RecordError("client", "upstream_unavailable")
		log.Error().Err(err).Str("team", team).Msg("Failed to fetch team")
		return res
	}

	snapshot, err := models.NormalizeTeam(payload, p.now().UTC())
	if err != nil {
		res.Outcome, res.Err = OutcomeRejected, err
		metrics.RecordError("normalizer", "rejected_payload")
		log.Error().Err(err).Str("team", team).Int("size", len(payload)).Msg("Rejected team payload")
		return res
	}

	if len(snapshot.Members) == 0 {
		res.Outcome = OutcomeEmpty
		log.Info().Str("team", team).Msg("Team has no members, nothing to store")
		return res
	}

	rows, err := p.writer.UpsertTeam(ctx, snapshot)
	if err != nil {
		res.Err = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			return res
		}
		res.Outcome = OutcomeStorageError
		metrics.RecordError("repository", "write_failed")
		log.Error().Err(err).Str("team", team).Int("members", len(snapshot.Members)).Msg("Failed to store team snapshot, deferring to next cycle")
		return res
	}

	res.Outcome, res.Rows = OutcomeStored, rows
	log.Info().
		Str("team", team).
		Str("name", snapshot.TeamName).
		Int("rows", rows).
		Msg("Team snapshot stored")

	return res
}
