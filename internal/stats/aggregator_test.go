package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ntteams/ingestion/internal/cache"
	"ntteams/ingestion/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpans struct {
	spans []models.PlayerSpan
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeSpans) ListSpans(ctx context.Context) ([]models.PlayerSpan, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.spans, f.err
}

func span(userID int64, username, team string) models.PlayerSpan {
	return models.PlayerSpan{
		UserID:         userID,
		Username:       username,
		TeamName:       team,
		Captures:       2,
		MinRacesPlayed: 10, MaxRacesPlayed: 25,
		MinTyped: 500, MaxTyped: 1400,
		MinErrs: 10, MaxErrs: 28,
		MinSecs: 60, MaxSecs: 180,
	}
}

func TestComputeRates(t *testing.T) {
	src := &fakeSpans{spans: []models.PlayerSpan{
		span(3, "zed", "Bravo"),
		span(1, "amy", "Charlie"),
		span(2, "bob", "Bravo"),
	}}

	rates, err := NewAggregator(src).ComputeRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 3)

	assert.Equal(t, "bob", rates[0].Username)
	assert.Equal(t, "zed", rates[1].Username)
	assert.Equal(t, "amy", rates[2].Username)

	assert.Equal(t, int64(15), rates[0].RacesPlayed)
	require.NotNil(t, rates[0].AvgWPM)
	assert.InDelta(t, 90.0, *rates[0].AvgWPM, 1e-9)
}

func TestComputeRates_Empty(t *testing.T) {
	rates, err := NewAggregator(&fakeSpans{}).ComputeRates(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rates, "Empty history yields an empty list, not nil")
	assert.Empty(t, rates)
}

func TestComputeRates_SourceError(t *testing.T) {
	src := &fakeSpans{err: errors.New("connection refused")}

	_, err := NewAggregator(src).ComputeRates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestComputeRates_ConcurrentCallersShareRead(t *testing.T) {
	src := &fakeSpans{spans: []models.PlayerSpan{span(1, "a", "T")}, gate: make(chan struct{})}
	agg := NewAggregator(src)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rates, err := agg.ComputeRates(context.Background())
			assert.NoError(t, err)
			assert.Len(t, rates, 1)
		}()
	}

	// Let every caller join the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestComputeRates_Cache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	src := &fakeSpans{spans: []models.PlayerSpan{span(1, "a", "T")}}
	agg := NewAggregator(src).WithCache(rc, time.Minute)
	ctx := context.Background()

	first, err := agg.ComputeRates(ctx)
	require.NoError(t, err)
	second, err := agg.ComputeRates(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load(), "Second call should be served from cache")

	agg.Invalidate(ctx)
	_, err = agg.ComputeRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "Invalidation forces a fresh read")
}

func TestComputeRates_CacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()
	mr.Close()

	src := &fakeSpans{spans: []models.PlayerSpan{span(1, "a", "T")}}
	rates, err := NewAggregator(src).WithCache(rc, time.Minute).ComputeRates(context.Background())
	require.NoError(t, err, "Cache outage must not fail the request")
	assert.Len(t, rates, 1)
}

func TestComputeRates_NullRatesSurviveCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	single := models.PlayerSpan{UserID: 1, Username: "once", TeamName: "T", Captures: 1}
	agg := NewAggregator(&fakeSpans{spans: []models.PlayerSpan{single}}).WithCache(rc, time.Minute)

	_, err = agg.ComputeRates(context.Background())
	require.NoError(t, err)
	cached, err := agg.ComputeRates(context.Background())
	require.NoError(t, err)

	require.Len(t, cached, 1)
	assert.Nil(t, cached[0].AvgWPM)
	assert.Nil(t, cached[0].Accuracy)
}

// switchingSpans blocks until released or ctx ends, then returns whatever
// spans are current at that moment
type switchingSpans struct {
	mu      sync.Mutex
	current []models.PlayerSpan
	release chan struct{}
	calls   atomic.Int32
}

func (s *switchingSpans) ListSpans(ctx context.Context) ([]models.PlayerSpan, error) {
	s.mu.Lock()
	held := s.current
	s.mu.Unlock()

	s.calls.Add(1)
	select {
	case <-s.release:
		return held, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *switchingSpans) set(spans []models.PlayerSpan) {
	s.mu.Lock()
	s.current = spans
	s.mu.Unlock()
}

func TestComputeRates_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &switchingSpans{
		current: []models.PlayerSpan{span(1, "a", "T")},
		release: make(chan struct{}),
	}
	agg := NewAggregator(src)

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := agg.ComputeRates(ctx1)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		rates []models.PlayerRate
		err   error
	}
	second := make(chan result, 1)
	go func() {
		rates, err := agg.ComputeRates(context.Background())
		second <- result{rates, err}
	}()

	// Let the second caller join the flight
	time.Sleep(50 * time.Millisecond)
	cancel1()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.rates, 1)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestComputeRates_InvalidateDuringComputeSkipsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	src := &switchingSpans{
		current: []models.PlayerSpan{span(1, "old", "T")},
		release: make(chan struct{}),
	}
	agg := NewAggregator(src).WithCache(rc, time.Minute)
	ctx := context.Background()

	done := make(chan []models.PlayerRate, 1)
	go func() {
		rates, err := agg.ComputeRates(ctx)
		assert.NoError(t, err)
		done <- rates
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	src.set([]models.PlayerSpan{span(1, "new", "T")})
	agg.Invalidate(ctx)
	close(src.release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].Username)
	assert.False(t, mr.Exists(ratesKey), "Result read before invalidation must not be cached")

	fresh, err := agg.ComputeRates(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "new", fresh[0].Username)
}

func TestInvalidate_ClearsRatesCachedByAnotherAggregator(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	src := &fakeSpans{spans: []models.PlayerSpan{span(1, "a", "T")}}
	server := NewAggregator(src).WithCache(rc, time.Minute)
	_, err = server.ComputeRates(context.Background())
	require.NoError(t, err)
	require.True(t, mr.Exists(ratesKey))

	// A one-shot writer process shares only the Redis cache with the server
	NewAggregator(&fakeSpans{}).WithCache(rc, time.Minute).Invalidate(context.Background())
	assert.False(t, mr.Exists(ratesKey))

	_, err = server.ComputeRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "Server should recompute after external invalidation")
}
