package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ntteams/ingestion/internal/metrics"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes caps how much of a team response is read
const maxBodyBytes = 8 << 20

// ErrUpstreamUnavailable is returned once every attempt for a team has failed
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Options configures the upstream client
type Options struct {
	BaseURL    string
	UserAgent  string
	Referer    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client reads team resources from the game-statistics API
type Client struct {
	baseURL    string
	userAgent  string
	referer    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new upstream API client
func NewClient(opts Options) *Client {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		referer:    opts.Referer,
		maxRetries: maxRetries,
		retryDelay: opts.RetryDelay,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchTeam returns the raw JSON body of GET /teams/{teamID}.
// Every failure (transport, non-2xx, unreadable or non-JSON body) is retried after a
// fixed delay, for at most maxRetries+1 attempts.
func (c *Client) FetchTeam(ctx context.Context, teamID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/teams/%s", c.baseURL, url.PathEscape(teamID))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Info().
				Str("team", teamID).
				Int("attempt", attempt+1).
				Dur("delay", c.retryDelay).
				Msg("Retrying team fetch after delay")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("team", teamID).
			Int("attempt", attempt+1).
			Int("max_attempts", c.maxRetries+1).
			Msg("Team fetch attempt failed")
	}

	return nil, fmt.Errorf("%w: team %s after %d attempts: %w", ErrUpstreamUnavailable, teamID, c.maxRetries+1, lastErr)
}

// get performs a single GET attempt
func (c *Client) get(ctx context.Context, endpoint string) (body []byte, err error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordAPICall("teams", status, time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")

	log.Debug().
		Str("url", endpoint).
		Str("method", req.Method).
		Msg("Making API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	reader := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err = io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("API returned malformed JSON (%d bytes)", len(body))
	}

	log.Debug().
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Msg("API request successful")

	return body, nil
}
