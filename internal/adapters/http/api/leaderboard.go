package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/gameradar/internal/domain/types"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	TopN(ctx context.Context, n int, region, game string) ([]Entry, error)
	RegionStats(ctx context.Context) ([]types.RegionStats, error)
	RankDependencies
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N&region=R&game=G
// requests. Without a limit the default is used, lowered to the cap.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()
	n := min(defaultLeaderboardLimit, h.maxLimit)
	if limitStr := q.Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be a positive integer, got %q", limitStr)))
			return
		}
		if v > h.maxLimit {
			writeError(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be at most %d", h.maxLimit)))
			return
		}
		n = v
	}
	entries, err := h.deps.TopN(r.Context(), n, q.Get("region"), q.Get("game"))
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetRegionStats handles GET /regions/stats.
func (h *LeaderboardHandler) HandleGetRegionStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_region_stats"
	stats, err := h.deps.RegionStats(r.Context())
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
