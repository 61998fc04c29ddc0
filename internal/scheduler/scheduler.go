package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ntteams/ingestion/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// CycleRunner executes one ingestion cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) CycleReport
}

// Scheduler runs the ingestion cycle once at startup and then on a fixed interval.
// A tick that arrives while a cycle is still running is skipped.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	cron     *cron.Cron
	job      cron.Job
	initial  sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(runner CycleRunner, interval time.Duration) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		cron:     cron.New(cron.WithLogger(logger)),
	}
}

// Start schedules the cycle and launches the first run immediately
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval < time.Second {
		return fmt.Errorf("poll interval %s is below one second", s.interval)
	}

	log.Info().Msg("Scheduler starting...")

	// Both the startup run and the ticks go through one guard so they never overlap
	s.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		s.runOnce(ctx)
	}))

	s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	log.Info().
		Dur("interval", s.interval).
		Msg("Team polling scheduled")

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.job.Run()
	}()

	return nil
}

// Stop stops scheduling new cycles and waits for a running one to return
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	<-s.cron.Stop().Done()
	s.initial.Wait()

	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	report := s.runner.RunCycle(ctx)
	metrics.RecordCycle("scheduled", report.Failed, report.Duration().Seconds())
}

// cronLogger routes cron's internal logging through zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		metrics.RecordCycleSkipped()
		log.Warn().Msg("Previous cycle still running, skipping tick")
		return
	}
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
