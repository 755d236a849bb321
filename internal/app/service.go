// Package service wires the analytics core together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/okian/gameradar/internal/adapters/cache"
	eventqueue "github.com/okian/gameradar/internal/adapters/mq/queue"
	workerpool "github.com/okian/gameradar/internal/adapters/mq/worker"
	"github.com/okian/gameradar/internal/adapters/players"
	repository "github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/config"
	"github.com/okian/gameradar/internal/domain/dedupe"
	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/scoring"
	"github.com/okian/gameradar/internal/domain/similarity"
	"github.com/okian/gameradar/internal/domain/skillvector"
	"github.com/okian/gameradar/internal/domain/types"
	"github.com/okian/gameradar/internal/pipeline"
	"github.com/okian/gameradar/internal/recommend"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = fmt.Errorf("%w: service not started", recommend.ErrServiceUnavailable)

const (
	pubSubBuffer    = 1024
	readyTimeout    = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Service implements the API dependencies for the analytics core.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	players     *players.MemoryStore
	store       repository.Store
	pubsub      *gochannel.GoChannel
	deduper     dedupe.Deduper
	eventQueue  *eventqueue.InMemoryQueue
	workerPool  *workerpool.Pool
	recomputer  *pipeline.Recomputer
	indexer     *pipeline.Indexer
	refresher   *pipeline.Refresher
	recommender *recommend.Service
	cache       cache.Cache

	// Background services
	supervisor *suture.Supervisor
	cancel     context.CancelFunc
	done       <-chan error

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithWorkerCount sets the number of recomputation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recomputation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.EventQueueSize = size
		}
	}
}

// WithDedupeSize sets the size of the change-notification dedupe window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.DedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service. Options are applied in order, so
// WithConfig should come before the per-field overrides.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds every component, starts the supervised background services
// and waits until change notifications are being consumed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting analytics service...")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	s.store = store
	s.cache = s.openCache(ctx, cfg)

	s.pubsub = players.NewPubSub(pubSubBuffer)
	s.players = players.NewMemoryStore(
		players.WithNotifier(players.NewPublisher(s.pubsub, players.ChangeTopic)),
	)

	s.recomputer = pipeline.NewRecomputer(s.players, s.store,
		pipeline.WithCalculator(scoring.NewCalculator(
			scoring.WithRegionalMultipliers(cfg.RegionalMultipliers),
			scoring.WithHighCompetitionRegions(cfg.HighCompetitionRegions),
		)),
		pipeline.WithBuilder(skillvector.NewBuilder()),
	)

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(cfg.EventQueueSize),
		eventqueue.WithBufferSize(cfg.EventQueueSize),
	)
	s.workerPool = workerpool.NewPool(cfg.WorkerCount, s.eventQueue, s.recomputer)
	consumer := pipeline.NewConsumer(s.pubsub, players.ChangeTopic, s.deduper, s.eventQueue)

	holder := similarity.NewHolder()
	s.indexer = pipeline.NewIndexer(s.store, holder,
		similarity.WithProbes(cfg.IndexProbes),
		similarity.WithParallelism(cfg.FallbackParallelism),
	)
	s.refresher = pipeline.NewRefresher(s.players, s.recomputer, s.indexer, cfg.RefreshRatePerSecond)
	threshold := cfg.DefaultSimilarityThreshold
	s.recommender = recommend.NewService(s.store, holder, s.cache, recommend.Options{
		DefaultLimit:            cfg.DefaultResultCap,
		MaxLimit:                cfg.MaxResultCap,
		DefaultThreshold:        &threshold,
		FallbackCandidateCap:    cfg.FallbackCandidateCap,
		FallbackParallelism:     cfg.FallbackParallelism,
		Timeout:                 cfg.RequestTimeout(),
		BreakerFailureThreshold: uint32(max(cfg.BreakerFailureThreshold, 0)), //nolint:gosec // bounded by config validation
		BreakerTimeout:          cfg.BreakerTimeout(),
		CacheTTL:                cfg.CacheTTL(),
	})

	hook := (&sutureslog.Handler{Logger: logger.Slog()}).MustHook()
	s.supervisor = suture.New("gameradar", suture.Spec{EventHook: hook, Timeout: shutdownTimeout})
	s.supervisor.Add(consumer)
	s.supervisor.Add(s.workerPool)
	s.supervisor.Add(pipeline.NewScheduler("full-refresh", cfg.FullRefreshInterval(), func(ctx context.Context) error {
		_, err := s.refresher.FullRefresh(ctx)
		return err
	}))
	s.supervisor.Add(pipeline.NewScheduler("index-rebuild", cfg.IndexRebuildInterval(), func(ctx context.Context) error {
		_, err := s.indexer.Rebuild(ctx)
		return err
	}))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = s.supervisor.ServeBackground(runCtx)

	// gochannel drops messages published before a subscription exists.
	select {
	case <-consumer.Ready():
	case <-time.After(readyTimeout):
		s.teardown()
		return fmt.Errorf("change consumer not ready after %s", readyTimeout)
	case <-ctx.Done():
		s.teardown()
		return ctx.Err()
	}

	// A persistent store may already hold snapshots worth serving.
	if gen, err := s.indexer.Rebuild(ctx); err != nil {
		s.logger.Warn(ctx, "initial index build failed; recommendations fall back", logger.Error(err))
	} else {
		s.logger.Info(ctx, "initial index built", logger.Int("size", gen.Size))
	}

	metrics.UpdateWorkerCount(s.workerPool.Size())
	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "analytics service started",
		logger.String("storage", cfg.StorageBackend),
		logger.String("cache", cfg.CacheBackend),
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", cfg.EventQueueSize),
		logger.Int("dedupeSize", cfg.DedupeSize),
	)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendBadger:
		store, err := repository.NewBadgerStore(ctx, cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open analytics store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(ctx), nil
	}
}

// openCache never fails the start: the cache only saves work.
func (s *Service) openCache(ctx context.Context, cfg *config.Config) cache.Cache {
	switch cfg.CacheBackend {
	case config.BackendMemory:
		c, err := cache.NewMemory(cfg.CacheSize)
		if err != nil {
			s.logger.Warn(ctx, "memory cache unavailable; caching disabled", logger.Error(err))
			return cache.Noop{}
		}
		return c
	case config.BackendRedis:
		c, err := cache.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			s.logger.Warn(ctx, "redis cache unavailable; caching disabled",
				logger.String("addr", cfg.RedisAddr), logger.Error(err))
			return cache.Noop{}
		}
		return c
	default:
		return cache.Noop{}
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping analytics service...")
	s.teardown()
	s.started = false
	s.logger.Info(context.Background(), "analytics service stopped")
}

// teardown stops the supervisor first so workers drain before the stores
// they write to are closed.
func (s *Service) teardown() {
	if s.cancel != nil {
		s.cancel()
		select {
		case err := <-s.done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn(context.Background(), "supervisor stopped with error", logger.Error(err))
			}
		case <-time.After(shutdownTimeout + time.Second):
			s.logger.Warn(context.Background(), "supervisor did not stop in time")
		}
	}
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing analytics store", logger.Error(err))
		}
	}
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// UpsertPlayer stores a normalized record. Recomputation is triggered by the
// change notification and is not awaited.
func (s *Service) UpsertPlayer(ctx context.Context, p model.Player) (model.Player, error) {
	if err := s.running(); err != nil {
		return model.Player{}, err
	}
	return s.players.Upsert(ctx, p)
}

// Latest returns a player's most recent snapshot.
func (s *Service) Latest(ctx context.Context, playerID string) (model.AnalyticsSnapshot, error) {
	if err := s.running(); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	return s.store.Latest(ctx, playerID)
}

// Snapshot returns a player's snapshot for one calculation date.
func (s *Service) Snapshot(ctx context.Context, playerID, date string) (model.AnalyticsSnapshot, error) {
	if err := s.running(); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	return s.store.Get(ctx, playerID, date)
}

// TopN returns the top N leaderboard entries, optionally for one region and
// one game.
func (s *Service) TopN(ctx context.Context, n int, region, game string) ([]types.Entry, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	entries, err := s.store.TopN(ctx, n, region, game)
	if err != nil {
		return nil, err
	}

	apiEntries := make([]types.Entry, len(entries))
	for i, entry := range entries {
		apiEntries[i] = toAPIEntry(entry)
	}
	return apiEntries, nil
}

// Rank returns the leaderboard entry of a player.
func (s *Service) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	if err := s.running(); err != nil {
		return types.Entry{}, err
	}
	entry, err := s.store.Rank(ctx, playerID)
	if err != nil {
		return types.Entry{}, err
	}
	return toAPIEntry(entry), nil
}

// RegionStats aggregates the latest snapshots per region.
func (s *Service) RegionStats(ctx context.Context) ([]types.RegionStats, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	latest, err := s.store.LatestAll(ctx)
	if err != nil {
		return nil, err
	}
	return repository.RegionStats(latest), nil
}

// Recommend returns players similar to the request's source player.
func (s *Service) Recommend(ctx context.Context, req recommend.Request) (types.RecommendationResponse, error) {
	if err := s.running(); err != nil {
		return types.RecommendationResponse{}, err
	}
	return s.recommender.Recommend(ctx, req)
}

// FullRefresh recomputes every player now.
func (s *Service) FullRefresh(ctx context.Context) (pipeline.Report, error) {
	if err := s.running(); err != nil {
		return pipeline.Report{}, err
	}
	return s.refresher.FullRefresh(ctx)
}

// RebuildIndex builds and publishes a new index generation now.
func (s *Service) RebuildIndex(ctx context.Context) (*similarity.Generation, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.indexer.Rebuild(ctx)
}

func toAPIEntry(e repository.Entry) types.Entry {
	return types.Entry{
		Rank:     e.Rank,
		PlayerID: e.PlayerID,
		Nickname: e.Nickname,
		Game:     e.Game,
		Region:   e.Region,
		Score:    e.Score,
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"storage":        s.cfg.StorageBackend,
		"cache":          s.cfg.CacheBackend,
		"workerCount":    s.cfg.WorkerCount,
		"queueSize":      s.cfg.EventQueueSize,
		"dedupeSize":     s.cfg.DedupeSize,
		"indexAvailable": false,
	}
	if !s.started {
		return stats
	}

	queueLen := s.eventQueue.Len(ctx)
	totalPlayers := s.store.Count(ctx)
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	stats["queueLength"] = queueLen
	stats["playerRecords"] = s.players.Count()
	stats["totalPlayers"] = totalPlayers
	stats["dedupeEntries"] = s.deduper.Size()
	stats["indexBreaker"] = s.recommender.BreakerState()
	if gen, err := s.indexer.Holder().Current(); err == nil {
		stats["indexAvailable"] = true
		stats["indexGeneration"] = gen.Number
		stats["indexSize"] = gen.Size
		stats["indexClusters"] = gen.Clusters
		stats["indexBuiltAt"] = gen.BuiltAt
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateTotalPlayers(totalPlayers)
	metrics.UpdateWorkerCount(s.workerPool.Size())
	return stats
}
