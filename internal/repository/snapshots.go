package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ntteams/ingestion/internal/metrics"
	"ntteams/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// maxRowsPerStatement keeps multi-row inserts under the 65535 bind parameter limit
const maxRowsPerStatement = 1000

// snapshotColumns is the column order shared by player_stats and player_stats_history
var snapshotColumns = []string{
	"user_id", "team_id", "team_name",
	"races_played", "played", "secs", "typed", "errs", "avg_speed", "highest_speed",
	"username", "display_name", "membership", "title", "role",
	"car_id", "car_hue_angle", "status", "last_login", "last_activity", "join_stamp",
	"captured_at",
}

// SnapshotRepository writes player snapshots
type SnapshotRepository struct {
	db *Database
}

// UpsertTeam stores one team's members in a single transaction.
// Each member replaces its current row in player_stats keyed by (user_id, team_id) and
// appends one row to player_stats_history. An empty team performs no database work.
// Returns the number of members written.
func (r *SnapshotRepository) UpsertTeam(ctx context.Context, team *models.TeamSnapshot) (int, error) {
	if team == nil || len(team.Members) == 0 {
		return 0, nil
	}

	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordDBQuery("upsert", "player_stats", status, time.Since(start).Seconds())
	}()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, chunk := range chunkMembers(team.Members, maxRowsPerStatement) {
		args := snapshotArgs(chunk)
		batch.Queue(buildUpsertQuery(len(chunk)), args...)
		batch.Queue(buildHistoryQuery(len(chunk)), args...)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to write team %d snapshot: %w", team.TeamID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing team %d snapshot: %w", team.TeamID, err)
	}

	status = "success"
	log.Debug().
		Int64("team_id", team.TeamID).
		Str("team", team.TeamTag).
		Int("rows", len(team.Members)).
		Msg("Team snapshot stored")

	return len(team.Members), nil
}

// buildUpsertQuery returns a multi-row insert into player_stats that fully replaces
// rows on (user_id, team_id) conflict
func buildUpsertQuery(rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO player_stats (")
	b.WriteString(strings.Join(snapshotColumns, ", "))
	b.WriteString(") VALUES ")
	writeValuePlaceholders(&b, rows, len(snapshotColumns))
	b.WriteString(" ON CONFLICT (user_id, team_id) DO UPDATE SET ")

	first := true
	for _, col := range snapshotColumns {
		if col == "user_id" || col == "team_id" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
	}

	return b.String()
}

// buildHistoryQuery returns a multi-row append into player_stats_history
func buildHistoryQuery(rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO player_stats_history (")
	b.WriteString(strings.Join(snapshotColumns, ", "))
	b.WriteString(") VALUES ")
	writeValuePlaceholders(&b, rows, len(snapshotColumns))
	return b.String()
}

func writeValuePlaceholders(b *strings.Builder, rows, cols int) {
	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
}

// snapshotArgs flattens members in snapshotColumns order
func snapshotArgs(members []models.PlayerSnapshot) []any {
	args := make([]any, 0, len(members)*len(snapshotColumns))
	for _, p := range members {
		args = append(args,
			p.UserID, p.TeamID, p.TeamName,
			p.RacesPlayed, p.Played, p.Secs, p.Typed, p.Errs, p.AvgSpeed, p.HighestSpeed,
			p.Username, p.DisplayName, p.Membership, p.Title, p.Role,
			p.CarID, p.CarHueAngle, p.Status, p.LastLogin, p.LastActivity, p.JoinStamp,
			p.CapturedAt,
		)
	}
	return args
}

func chunkMembers(members []models.PlayerSnapshot, size int) [][]models.PlayerSnapshot {
	var chunks [][]models.PlayerSnapshot
	for len(members) > size {
		chunks = append(chunks, members[:size])
		members = members[size:]
	}
	if len(members) > 0 {
		chunks = append(chunks, members)
	}
	return chunks
}
