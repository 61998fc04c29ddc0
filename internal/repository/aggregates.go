package repository

import (
	"context"
	"fmt"
	"time"

	"ntteams/ingestion/internal/metrics"
	"ntteams/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
)

// listSpansQuery groups history by (user, username, team) and takes the min and max
// of each cumulative counter independently
const listSpansQuery = `
	SELECT
		user_id,
		username,
		team_name,
		COUNT(*)          AS captures,
		MIN(races_played) AS min_races_played,
		MAX(races_played) AS max_races_played,
		MIN(typed)        AS min_typed,
		MAX(typed)        AS max_typed,
		MIN(errs)         AS min_errs,
		MAX(errs)         AS max_errs,
		MIN(secs)         AS min_secs,
		MAX(secs)         AS max_secs
	FROM player_stats_history
	GROUP BY user_id, username, team_name
	ORDER BY team_name, username, user_id
`

// AggregateRepository reads counter spans for rate derivation
type AggregateRepository struct {
	db *Database
}

// ListSpans returns one span per (user, username, team) group in stored history
func (r *AggregateRepository) ListSpans(ctx context.Context) ([]models.PlayerSpan, error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordDBQuery("aggregate", "player_stats_history", status, time.Since(start).Seconds())
	}()

	rows, err := r.db.Pool.Query(ctx, listSpansQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query player spans: %w", err)
	}

	spans, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.PlayerSpan])
	if err != nil {
		return nil, fmt.Errorf("failed to scan player spans: %w", err)
	}

	status = "success"
	return spans, nil
}
