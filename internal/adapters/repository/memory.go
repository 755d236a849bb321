package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/metrics"
)

// MemoryStore keeps every snapshot in maps guarded by a RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	snaps  map[string]map[string]model.AnalyticsSnapshot // player -> date -> snapshot
	latest map[string]string                             // player -> most recent date
	closed bool

	view viewCache
	opts options

	stopChan chan struct{}
	wg       sync.WaitGroup
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory Store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		snaps:    make(map[string]map[string]model.AnalyticsSnapshot),
		latest:   make(map[string]string),
		opts:     newOptions(opts),
		stopChan: make(chan struct{}),
	}
	startMetricsUpdater(ctx, &s.wg, s.stopChan, s.opts.metricsUpdateInterval, s.Count)
	return s
}

func (s *MemoryStore) Upsert(ctx context.Context, snap model.AnalyticsSnapshot) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateSnapshot(&snap); err != nil {
		return false, err
	}
	snap = snap.Clone()
	snap.Region = model.NormalizeRegion(snap.Region)
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = s.opts.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	byDate, ok := s.snaps[snap.PlayerID]
	if !ok {
		byDate = make(map[string]model.AnalyticsSnapshot)
		s.snaps[snap.PlayerID] = byDate
	}
	if cur, exists := byDate[snap.CalculationDate]; exists && snap.SourceRevision < cur.SourceRevision {
		metrics.RecordSnapshotSkipped()
		return false, nil
	}
	byDate[snap.CalculationDate] = snap
	if snap.CalculationDate >= s.latest[snap.PlayerID] {
		s.latest[snap.PlayerID] = snap.CalculationDate
	}
	s.view.invalidate()
	metrics.RecordSnapshotUpserted()
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, playerID, date string) (model.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.AnalyticsSnapshot{}, ErrStoreClosed
	}
	snap, ok := s.snaps[playerID][date]
	if !ok {
		return model.AnalyticsSnapshot{}, ErrNotFound
	}
	return snap.Clone(), nil
}

func (s *MemoryStore) Latest(ctx context.Context, playerID string) (model.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.AnalyticsSnapshot{}, ErrStoreClosed
	}
	date, ok := s.latest[playerID]
	if !ok {
		return model.AnalyticsSnapshot{}, ErrNotFound
	}
	return s.snaps[playerID][date].Clone(), nil
}

func (s *MemoryStore) LatestAll(ctx context.Context) ([]model.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.latestAll()
}

func (s *MemoryStore) latestAll() ([]model.AnalyticsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]model.AnalyticsSnapshot, 0, len(s.latest))
	for id, date := range s.latest {
		out = append(out, s.snaps[id][date].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (s *MemoryStore) Candidates(ctx context.Context, filter model.Filter, limit int) ([]model.AnalyticsSnapshot, bool, error) {
	if limit < 1 {
		return nil, false, ErrInvalidLimit
	}
	latest, err := s.LatestAll(ctx)
	if err != nil {
		return nil, false, err
	}
	return selectCandidates(latest, filter, limit)
}

func (s *MemoryStore) TopN(ctx context.Context, n int, region, game string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	v, err := s.view.load(s.latestAll)
	if err != nil {
		return nil, err
	}
	return v.topN(n, region, game)
}

func (s *MemoryStore) Rank(ctx context.Context, playerID string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	v, err := s.view.load(s.latestAll)
	if err != nil {
		return Entry{}, err
	}
	return v.rank(playerID)
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}

// Close stops the metrics updater. Later calls return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	return nil
}

func startMetricsUpdater(ctx context.Context, wg *sync.WaitGroup, stop <-chan struct{}, interval time.Duration, count func(context.Context) int) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				metrics.UpdateTotalPlayers(count(ctx))
			}
		}
	}()
}
