// Package repository stores dated analytics snapshots and serves the
// leaderboard and candidate views derived from each player's latest one.
package repository

import (
	"context"

	"github.com/okian/gameradar/internal/domain/model"
)

// Entry represents a leaderboard row.
type Entry struct {
	Rank     int
	PlayerID string
	Nickname string
	Game     string
	Region   string
	Score    float64
}

// Store is the AnalyticsStore. Snapshots are unique per (player, date); an
// upsert for an existing key replaces it unless it carries an older source
// revision than the stored snapshot.
type Store interface {
	// Upsert writes snap. It returns false, nil when the write was ignored
	// because a newer revision is already stored for the same key.
	Upsert(ctx context.Context, snap model.AnalyticsSnapshot) (bool, error)

	// Get returns the snapshot of a player on a date ("2006-01-02").
	// Returns ErrNotFound if there is none.
	Get(ctx context.Context, playerID, date string) (model.AnalyticsSnapshot, error)

	// Latest returns the most recent snapshot of a player.
	// Returns ErrNotFound if the player has none.
	Latest(ctx context.Context, playerID string) (model.AnalyticsSnapshot, error)

	// LatestAll returns the most recent snapshot of every player ordered by player id.
	LatestAll(ctx context.Context) ([]model.AnalyticsSnapshot, error)

	// Candidates returns latest snapshots passing filter, capped at limit.
	// Over the cap the most recently updated are kept, ties broken by player id,
	// and truncated is true.
	Candidates(ctx context.Context, filter model.Filter, limit int) (snaps []model.AnalyticsSnapshot, truncated bool, err error)

	// TopN returns the top-N entries ordered by composite score desc,
	// optionally restricted to one region and one game.
	TopN(ctx context.Context, n int, region, game string) ([]Entry, error)

	// Rank returns the current rank and score for a player.
	// Returns ErrNotFound if the player is unknown.
	Rank(ctx context.Context, playerID string) (Entry, error)

	// Count returns the number of players with at least one snapshot.
	Count(ctx context.Context) int

	Close() error
}
