package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Match records a room created by matchmaking.
type Match struct {
	ID        int64
	RoomCode  string
	Mode      string
	CreatedAt time.Time
}

// GameStart records a start_game broadcast to a room.
type GameStart struct {
	ID        int64
	RoomCode  string
	Seed      int64
	StartedAt time.Time
}

// HistoryRepository persists match-history rows.
type HistoryRepository struct {
	db *pgxpool.Pool
}

// NewHistoryRepository creates a HistoryRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordMatch inserts a matchmaking pairing.
//
// Precondition: roomCode and mode must be non-empty.
func (r *HistoryRepository) RecordMatch(ctx context.Context, roomCode, mode string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO matches (room_code, mode) VALUES ($1, $2)`,
		roomCode, mode,
	)
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// RecordGameStart inserts a game-start event.
//
// Precondition: roomCode must be non-empty.
func (r *HistoryRepository) RecordGameStart(ctx context.Context, roomCode string, seed int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO game_starts (room_code, seed) VALUES ($1, $2)`,
		roomCode, seed,
	)
	if err != nil {
		return fmt.Errorf("inserting game start: %w", err)
	}
	return nil
}

// RecentMatches returns the most recent pairings, newest first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *HistoryRepository) RecentMatches(ctx context.Context, limit int) ([]Match, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, room_code, mode, created_at
		FROM matches ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0)
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.RoomCode, &m.Mode, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// StartsForRoom returns every recorded game start for the given room code,
// oldest first.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *HistoryRepository) StartsForRoom(ctx context.Context, roomCode string) ([]GameStart, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, room_code, seed, started_at
		FROM game_starts WHERE room_code = $1 ORDER BY started_at ASC, id ASC`,
		roomCode,
	)
	if err != nil {
		return nil, fmt.Errorf("listing game starts: %w", err)
	}
	defer rows.Close()

	starts := make([]GameStart, 0)
	for rows.Next() {
		var g GameStart
		if err := rows.Scan(&g.ID, &g.RoomCode, &g.Seed, &g.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning game start: %w", err)
		}
		starts = append(starts, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating game starts: %w", err)
	}
	return starts, nil
}
