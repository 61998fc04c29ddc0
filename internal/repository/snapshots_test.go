package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"ntteams/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpsertQuery(t *testing.T) {
	query := buildUpsertQuery(2)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO player_stats ("))
	assert.Contains(t, query, "($1, $2, $3,")
	assert.Contains(t, query, "$44)")
	assert.NotContains(t, query, "$45")
	assert.Contains(t, query, "ON CONFLICT (user_id, team_id) DO UPDATE SET")
	assert.Contains(t, query, "captured_at = EXCLUDED.captured_at")
	assert.Contains(t, query, "races_played = EXCLUDED.races_played")
	assert.NotContains(t, query, "user_id = EXCLUDED.user_id", "Conflict keys are not reassigned")
}

func TestBuildHistoryQuery(t *testing.T) {
	query := buildHistoryQuery(1)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO player_stats_history ("))
	assert.Contains(t, query, "$22)")
	assert.NotContains(t, query, "ON CONFLICT", "History is append-only")
}

func TestSnapshotArgs(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	members := []models.PlayerSnapshot{
		{UserID: 1, TeamID: 9, Username: "a", CapturedAt: at},
		{UserID: 2, TeamID: 9, Username: "b", CapturedAt: at},
	}

	args := snapshotArgs(members)
	require.Len(t, args, 2*len(snapshotColumns))
	assert.Equal(t, int64(1), args[0])
	assert.Equal(t, int64(9), args[1])
	assert.Equal(t, at, args[len(snapshotColumns)-1])
	assert.Equal(t, int64(2), args[len(snapshotColumns)])
}

func TestChunkMembers(t *testing.T) {
	members := make([]models.PlayerSnapshot, 5)

	chunks := chunkMembers(members, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[2], 1)

	assert.Empty(t, chunkMembers(nil, 2))
}

func TestUpsertTeam_EmptyTeamSkipsDatabase(t *testing.T) {
	// A repository without a pool would panic on any database call
	repo := &SnapshotRepository{db: &Database{}}

	written, err := repo.UpsertTeam(context.Background(), &models.TeamSnapshot{TeamID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	written, err = repo.UpsertTeam(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}
