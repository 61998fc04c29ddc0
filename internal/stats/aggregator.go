package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"ntteams/ingestion/internal/metrics"
	"ntteams/ingestion/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	ratesKey = "ntteams:processed-players:v1"

	defaultComputeTimeout = 30 * time.Second
)

// SpanSource supplies grouped counter spans from stored history
type SpanSource interface {
	ListSpans(ctx context.Context) ([]models.PlayerSpan, error)
}

// Cache stores the serialized rate list between requests
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Aggregator derives per-player rates from the snapshot history
type Aggregator struct {
	spans SpanSource
	cache Cache
	ttl   time.Duration
	group singleflight.Group

	// generation is bumped by Invalidate; results read under an older
	// generation are returned but never cached
	generation atomic.Uint64

	computeTimeout time.Duration
}

// NewAggregator creates an aggregator that reads spans on every request
func NewAggregator(spans SpanSource) *Aggregator {
	return &Aggregator{spans: spans, computeTimeout: defaultComputeTimeout}
}

// WithCache enables caching of computed rates for ttl
func (a *Aggregator) WithCache(cache Cache, ttl time.Duration) *Aggregator {
	if cache != nil && ttl > 0 {
		a.cache = cache
		a.ttl = ttl
	}
	return a
}

// ComputeRates returns one rate per (user, username, team) group, ordered by team then
// username. Concurrent callers share a single database read; a caller whose ctx ends
// stops waiting without failing the others.
func (a *Aggregator) ComputeRates(ctx context.Context) ([]models.PlayerRate, error) {
	if rates, ok := a.fromCache(ctx); ok {
		metrics.RecordAggregation("cache")
		return rates, nil
	}

	shareCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(ratesKey, func() (interface{}, error) {
		computeCtx, cancel := context.WithTimeout(shareCtx, a.computeTimeout)
		defer cancel()
		return a.compute(computeCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.RecordAggregation("shared")
		} else {
			metrics.RecordAggregation("database")
		}
		return res.Val.([]models.PlayerRate), nil
	}
}

// Invalidate drops any cached result so the next request reads fresh history
func (a *Aggregator) Invalidate(ctx context.Context) {
	a.generation.Add(1)
	a.group.Forget(ratesKey)
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, ratesKey); err != nil {
		metrics.RecordError("aggregator", "cache_delete")
		log.Warn().Err(err).Msg("Failed to invalidate rate cache")
	}
}

func (a *Aggregator) compute(ctx context.Context) ([]models.PlayerRate, error) {
	start := time.Now()
	gen := a.generation.Load()

	spans, err := a.spans.ListSpans(ctx)
	if err != nil {
		metrics.RecordError("aggregator", "query")
		return nil, fmt.Errorf("failed to load player spans: %w", err)
	}

	rates := make([]models.PlayerRate, 0, len(spans))
	for _, span := range spans {
		rates = append(rates, models.ComputeRate(span))
	}
	sortRates(rates)

	log.Debug().
		Int("players", len(rates)).
		Dur("duration", time.Since(start)).
		Msg("Player rates computed")

	if a.generation.Load() == gen {
		a.store(ctx, rates)
	} else {
		log.Debug().Msg("History changed during computation, not caching rates")
	}
	return rates, nil
}

func (a *Aggregator) fromCache(ctx context.Context) ([]models.PlayerRate, bool) {
	if a.cache == nil {
		return nil, false
	}

	data, found, err := a.cache.Get(ctx, ratesKey)
	if err != nil {
		metrics.RecordError("aggregator", "cache_get")
		log.Warn().Err(err).Msg("Rate cache read failed, falling back to database")
		return nil, false
	}
	if !found {
		metrics.RecordCacheMiss()
		return nil, false
	}

	var rates []models.PlayerRate
	if err := json.Unmarshal(data, &rates); err != nil {
		metrics.RecordError("aggregator", "cache_decode")
		log.Warn().Err(err).Msg("Discarding undecodable cached rates")
		return nil, false
	}

	metrics.RecordCacheHit()
	return rates, true
}

func (a *Aggregator) store(ctx context.Context, rates []models.PlayerRate) {
	if a.cache == nil {
		return
	}

	data, err := json.Marshal(rates)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode rates for cache")
		return
	}
	if err := a.cache.Set(ctx, ratesKey, data, a.ttl); err != nil {
		metrics.RecordError("aggregator", "cache_set")
		log.Warn().Err(err).Msg("Failed to cache rates")
	}
}

func sortRates(rates []models.PlayerRate) {
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].Team != rates[j].Team {
			return rates[i].Team < rates[j].Team
		}
		if rates[i].Username != rates[j].Username {
			return rates[i].Username < rates[j].Username
		}
		return rates[i].UserID < rates[j].UserID
	})
}
