// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/similarity"
	"github.com/okian/gameradar/internal/domain/types"
	"github.com/okian/gameradar/internal/pipeline"
	"github.com/okian/gameradar/internal/recommend"
	"github.com/okian/gameradar/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PlayerDependencies
	AnalyticsDependencies
	LeaderboardDependencies
	RecommendDependencies
	AdminDependencies
	StatsProvider
}

// PlayerDependencies is the ingestion boundary.
type PlayerDependencies interface {
	UpsertPlayer(ctx context.Context, p model.Player) (model.Player, error)
}

// AnalyticsDependencies reads stored snapshots.
type AnalyticsDependencies interface {
	Latest(ctx context.Context, playerID string) (model.AnalyticsSnapshot, error)
	Snapshot(ctx context.Context, playerID, date string) (model.AnalyticsSnapshot, error)
}

// RecommendDependencies answers similarity requests.
type RecommendDependencies interface {
	Recommend(ctx context.Context, req recommend.Request) (types.RecommendationResponse, error)
}

// AdminDependencies triggers the batch jobs on demand.
type AdminDependencies interface {
	FullRefresh(ctx context.Context) (pipeline.Report, error)
	RebuildIndex(ctx context.Context) (*similarity.Generation, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Options tunes the HTTP layer.
type Options struct {
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int
	// RateLimitPerMinute is the per-IP request budget; 0 disables limiting.
	RateLimitPerMinute int
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	playersHandler     *PlayersHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	recommendHandler   *RecommendHandler
	adminHandler       *AdminHandler
	opts               Options
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts Options) *Server {
	if opts.MaxLeaderboardLimit <= 0 {
		opts.MaxLeaderboardLimit = 100
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		playersHandler:     NewPlayersHandler(deps, deps),
		leaderboardHandler: NewLeaderboardHandler(deps, opts.MaxLeaderboardLimit),
		rankHandler:        NewRankHandler(deps),
		recommendHandler:   NewRecommendHandler(deps),
		adminHandler:       NewAdminHandler(deps),
		opts:               opts,
	}
}

// Register attaches all HTTP routes to r. Metrics scraping is exempt from
// the rate limit.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(chimiddleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)

	r.Get("/healthz", s.healthHandler.HandleHealth)

	r.Group(func(r chi.Router) {
		if s.opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.opts.RateLimitPerMinute, time.Minute))
		}
		r.Use(MetricsMiddleware)

		r.Get("/stats", s.statsHandler.HandleStats)
		r.Post("/players", s.playersHandler.HandlePostPlayer)
		r.Get("/players/{id}/analytics", s.playersHandler.HandleGetLatest)
		r.Get("/players/{id}/analytics/{date}", s.playersHandler.HandleGetSnapshot)
		r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
		r.Get("/regions/stats", s.leaderboardHandler.HandleGetRegionStats)
		r.Get("/rank/{id}", s.rankHandler.HandleGetRank)
		r.Get("/recommendations/{id}", s.recommendHandler.HandleGetRecommendations)
		r.Post("/admin/refresh", s.adminHandler.HandleRefresh)
		r.Post("/admin/index/rebuild", s.adminHandler.HandleRebuild)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the matching status. Server-side
// failures are logged; client errors are not.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		var apiErr *Error
		op := ""
		if errors.As(err, &apiErr) {
			op = apiErr.Op
		}
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// decodeJSON reads a single JSON document from a bounded body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}
