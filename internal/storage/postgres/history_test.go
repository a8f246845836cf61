package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quickmatch/relay/internal/storage/postgres"
	"github.com/quickmatch/relay/internal/testutil"
)

func setupHistoryRepo(t *testing.T) *postgres.HistoryRepository {
	t.Helper()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewHistoryRepository(pc.RawPool)
}

func TestHistoryRepository_RecordAndList(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordMatch(ctx, "AB23", "coop"))
	require.NoError(t, repo.RecordMatch(ctx, "CD45", "versus"))

	matches, err := repo.RecentMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "CD45", matches[0].RoomCode, "newest first")
	assert.Equal(t, "versus", matches[0].Mode)
	assert.Equal(t, "AB23", matches[1].RoomCode)
	assert.WithinDuration(t, time.Now(), matches[0].CreatedAt, time.Minute)
}

func TestHistoryRepository_RecentMatchesLimit(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	for _, code := range []string{"AAAA", "BBBB", "CCCC"} {
		require.NoError(t, repo.RecordMatch(ctx, code, "coop"))
	}

	matches, err := repo.RecentMatches(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestHistoryRepository_GameStarts(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordGameStart(ctx, "AB23", 1700000000123))
	require.NoError(t, repo.RecordGameStart(ctx, "AB23", 1700000001456))
	require.NoError(t, repo.RecordGameStart(ctx, "XXXX", 42))

	starts, err := repo.StartsForRoom(ctx, "AB23")
	require.NoError(t, err)
	require.Len(t, starts, 2)
	assert.Equal(t, int64(1700000000123), starts[0].Seed, "oldest first")
	assert.Equal(t, int64(1700000001456), starts[1].Seed)

	empty, err := repo.StartsForRoom(ctx, "ZZZZ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	repo := setupHistoryRepo(t)
	rec := postgres.NewRecorder(repo, zaptest.NewLogger(t))

	rec.MatchCreated("AB23", "coop")
	rec.GameStarted("AB23", 99)
	rec.Close()

	ctx := context.Background()
	matches, err := repo.RecentMatches(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	starts, err := repo.StartsForRoom(ctx, "AB23")
	require.NoError(t, err)
	require.Len(t, starts, 1)
	assert.Equal(t, int64(99), starts[0].Seed)
}

func TestRecorder_CloseIdempotentAndSafe(t *testing.T) {
	repo := setupHistoryRepo(t)
	rec := postgres.NewRecorder(repo, zaptest.NewLogger(t))

	rec.Close()
	rec.Close()
	// Notifications after Close are dropped without panicking.
	rec.MatchCreated("AB23", "coop")
	rec.GameStarted("AB23", 1)
}
