// Package recommend answers "players like this one" requests from the
// similarity index, degrading to an exact scan of the analytics store when
// the index cannot serve.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/gameradar/internal/adapters/cache"
	"github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/similarity"
	"github.com/okian/gameradar/internal/domain/types"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Search methods reported in metadata.
const (
	MethodIndex    = "index"
	MethodFallback = "fallback"
)

const defaultSimilarityThreshold = 0.7

// Options tunes the service. Zero fields take the defaults below; a nil
// DefaultThreshold means 0.7, while a threshold of 0 is kept as configured.
type Options struct {
	DefaultLimit            int
	MaxLimit                int
	DefaultThreshold        *float64
	FallbackCandidateCap    int
	FallbackParallelism     int
	Timeout                 time.Duration
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
	CacheTTL                time.Duration
}

func (o *Options) withDefaults() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 10
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 50
	}
	if o.DefaultThreshold == nil {
		threshold := defaultSimilarityThreshold
		o.DefaultThreshold = &threshold
	}
	if o.FallbackCandidateCap <= 0 {
		o.FallbackCandidateCap = 5000
	}
	if o.FallbackParallelism <= 0 {
		o.FallbackParallelism = runtime.NumCPU()
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.BreakerFailureThreshold == 0 {
		o.BreakerFailureThreshold = 3
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
}

// Service is the RecommendationService. It only reads, apart from the
// response cache.
type Service struct {
	store   repository.Store
	holder  *similarity.Holder
	breaker *gobreaker.CircuitBreaker[[]similarity.Result]
	cache   cache.Cache
	opts    Options
	logger  logger.Logger
}

// NewService wires the service. A nil cache disables caching.
func NewService(store repository.Store, holder *similarity.Holder, c cache.Cache, opts Options) *Service {
	opts.withDefaults()
	if c == nil {
		c = cache.Noop{}
	}
	s := &Service{
		store:  store,
		holder: holder,
		cache:  c,
		opts:   opts,
		logger: logger.Get().Named("recommend"),
	}

	threshold := opts.BreakerFailureThreshold
	s.breaker = gobreaker.NewCircuitBreaker[[]similarity.Result](gobreaker.Settings{
		Name:        "similarity-index",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller running out of time says nothing about the index.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(stateToInt(to))
			s.logger.Warn(context.Background(), "index circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	metrics.UpdateBreakerState(0)
	return s
}

// Recommend returns players similar to req.SourceID, most similar first.
func (s *Service) Recommend(ctx context.Context, req Request) (types.RecommendationResponse, error) {
	start := time.Now()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if err := validateRequest(&req, s.opts.MaxLimit); err != nil {
		return types.RecommendationResponse{}, err
	}
	applied := s.applyDefaults(req)

	source, err := s.store.Latest(ctx, req.SourceID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return types.RecommendationResponse{}, fmt.Errorf("%w: %s", ErrNotFound, req.SourceID)
	case err != nil:
		return types.RecommendationResponse{}, s.storeErr(ctx, err)
	}
	if len(source.SkillVector) == 0 {
		return types.RecommendationResponse{}, fmt.Errorf("%w: %s has no skill vector", ErrNotFound, req.SourceID)
	}

	filter := model.Filter{
		Regions:     applied.Regions,
		Game:        applied.Game,
		MinActivity: applied.MinActivity,
		ExcludeID:   source.PlayerID,
	}
	query := similarity.Query{
		Vector:            source.SkillVector,
		Filter:            filter,
		DistanceThreshold: similarity.DistanceThreshold(applied.SimilarityThreshold),
		Limit:             applied.Limit,
	}

	resp, err := s.fromIndex(ctx, &source, query, applied)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.RecommendationResponse{}, fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
		}
		s.logger.Debug(ctx, "falling back to exact scan", logger.Error(err))
		resp, err = s.fromFallback(ctx, &source, query, applied)
		if err != nil {
			return types.RecommendationResponse{}, err
		}
	}

	metrics.RecordRecommendation(resp.Metadata.Method)
	metrics.RecordSearchLatency(resp.Metadata.Method, float64(time.Since(start).Microseconds())/1000)
	return resp, nil
}

func (s *Service) applyDefaults(req Request) types.AppliedFilters {
	applied := types.AppliedFilters{
		Regions:             normalizeRegions(req.Regions),
		Game:                model.NormalizeGame(req.Game),
		MinActivity:         req.MinActivity,
		SimilarityThreshold: *s.opts.DefaultThreshold,
		Limit:               req.Limit,
	}
	if req.SimilarityThreshold != nil {
		applied.SimilarityThreshold = *req.SimilarityThreshold
	}
	if applied.Limit == 0 {
		applied.Limit = s.opts.DefaultLimit
	}
	return applied
}

// fromIndex serves the request from the live generation through the
// circuit breaker. Any error sends the caller to the fallback.
func (s *Service) fromIndex(ctx context.Context, source *model.AnalyticsSnapshot, q similarity.Query, applied types.AppliedFilters) (types.RecommendationResponse, error) {
	gen, err := s.holder.Current()
	if err != nil {
		metrics.RecordFallback("index_unavailable")
		return types.RecommendationResponse{}, err
	}

	key := cacheKey(gen.Number, source.PlayerID, applied)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	results, err := s.breaker.Execute(func() ([]similarity.Result, error) {
		return gen.Searcher.Search(ctx, q)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.RecordFallback("breaker_open")
		default:
			metrics.RecordFallback("index_error")
		}
		return types.RecommendationResponse{}, err
	}

	recs := make([]types.Recommendation, 0, len(results))
	for _, r := range results {
		snap, err := s.store.Latest(ctx, r.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return types.RecommendationResponse{}, err
		}
		recs = append(recs, recommendation(&snap, r.Distance))
	}

	resp := types.RecommendationResponse{
		Source:          Summary(source),
		Recommendations: recs,
		Metadata: types.RecommendationMetadata{
			Count:           len(recs),
			Method:          MethodIndex,
			Filters:         applied,
			IndexGeneration: gen.Number,
			CandidatePool:   gen.Size,
		},
	}
	s.remember(ctx, key, resp)
	return resp, nil
}

// fromFallback scans the capped, pre-filtered candidate pool exactly.
func (s *Service) fromFallback(ctx context.Context, source *model.AnalyticsSnapshot, q similarity.Query, applied types.AppliedFilters) (types.RecommendationResponse, error) {
	pool, truncated, err := s.store.Candidates(ctx, q.Filter, s.opts.FallbackCandidateCap)
	if err != nil {
		return types.RecommendationResponse{}, s.storeErr(ctx, err)
	}

	entries := make([]similarity.Entry, 0, len(pool))
	byID := make(map[string]*model.AnalyticsSnapshot, len(pool))
	for i := range pool {
		entries = append(entries, similarity.EntryFromSnapshot(&pool[i]))
		byID[pool[i].PlayerID] = &pool[i]
	}

	results, err := similarity.ExactScan(ctx, entries, q, similarity.WithParallelism(s.opts.FallbackParallelism))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.RecommendationResponse{}, fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
		}
		return types.RecommendationResponse{}, fmt.Errorf("%w: exact scan: %w", ErrServiceUnavailable, err)
	}

	recs := make([]types.Recommendation, 0, len(results))
	for _, r := range results {
		recs = append(recs, recommendation(byID[r.ID], r.Distance))
	}

	var generation uint64
	if gen, err := s.holder.Current(); err == nil {
		generation = gen.Number
	}
	return types.RecommendationResponse{
		Source:          Summary(source),
		Recommendations: recs,
		Metadata: types.RecommendationMetadata{
			Count:           len(recs),
			Method:          MethodFallback,
			Filters:         applied,
			IndexGeneration: generation,
			CandidatePool:   len(pool),
			Truncated:       truncated,
		},
	}, nil
}

func (s *Service) storeErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
	}
	metrics.RecordErrorByComponent("recommend", "store_error")
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

func (s *Service) cached(ctx context.Context, key string) (types.RecommendationResponse, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup("error")
		s.logger.Warn(ctx, "cache read failed", logger.Error(err))
		return types.RecommendationResponse{}, false
	}
	if !ok {
		metrics.RecordCacheLookup("miss")
		return types.RecommendationResponse{}, false
	}
	var resp types.RecommendationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		metrics.RecordCacheLookup("error")
		return types.RecommendationResponse{}, false
	}
	metrics.RecordCacheLookup("hit")
	resp.Metadata.Cached = true
	return resp, true
}

func (s *Service) remember(ctx context.Context, key string, resp types.RecommendationResponse) {
	if s.opts.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.opts.CacheTTL); err != nil {
		s.logger.Warn(ctx, "cache write failed", logger.Error(err))
	}
}

// cacheKey identifies a request against one index generation, so a new
// generation never serves an older answer.
func cacheKey(generation uint64, sourceID string, f types.AppliedFilters) string {
	regions := slices.Clone(f.Regions)
	slices.Sort(regions)
	return strings.Join([]string{
		strconv.FormatUint(generation, 10),
		sourceID,
		strings.Join(regions, ","),
		f.Game,
		strconv.Itoa(f.MinActivity),
		strconv.FormatFloat(f.SimilarityThreshold, 'g', -1, 64),
		strconv.Itoa(f.Limit),
	}, "|")
}

func recommendation(snap *model.AnalyticsSnapshot, distance float64) types.Recommendation {
	return types.Recommendation{
		Player:     Summary(snap),
		Distance:   distance,
		MatchScore: similarity.RoundedMatchScore(distance),
	}
}

// Summary is the public view of a snapshot.
func Summary(snap *model.AnalyticsSnapshot) types.PlayerSummary {
	return types.PlayerSummary{
		ID:             snap.PlayerID,
		Nickname:       snap.Nickname,
		Game:           snap.Game,
		Region:         snap.Region,
		CompositeScore: snap.Score.CompositeScore,
		WinRate:        snap.WinRate,
		KDA:            snap.KDA,
		GamesPlayed:    snap.GamesPlayed,
	}
}

// BreakerState reports the index circuit breaker state.
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}

func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
