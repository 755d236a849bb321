// Package players is the normalized player store the analytics core reads
// from. Every write publishes a change notification.
package players

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Reader is the read side used by the recomputation pipeline.
type Reader interface {
	Get(ctx context.Context, id string) (model.Player, error)
	List(ctx context.Context) ([]model.Player, error)
}

// Notifier publishes change notifications for written players.
type Notifier interface {
	Notify(ctx context.Context, event model.ChangeEvent) error
}

// MemoryStore keeps normalized players in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	players  map[string]model.Player
	notifier Notifier
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithNotifier sets where change notifications are published.
func WithNotifier(n Notifier) Option {
	return func(s *MemoryStore) {
		s.notifier = n
	}
}

// WithClock overrides the clock stamping UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		players: make(map[string]model.Player),
		now:     time.Now,
		logger:  logger.Get().Named("players"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert normalizes and stores p, assigning the next revision, then
// publishes a change notification. A failed publish does not undo the
// write; the player is picked up by the next full refresh.
func (s *MemoryStore) Upsert(ctx context.Context, p model.Player) (model.Player, error) {
	if p.ID == "" {
		return model.Player{}, fmt.Errorf("%w: id is empty", ErrInvalidPlayer)
	}
	p = p.Clone()
	p.Normalize()

	s.mu.Lock()
	p.Revision = s.players[p.ID].Revision + 1
	p.UpdatedAt = s.now().UTC()
	s.players[p.ID] = p
	s.mu.Unlock()

	if s.notifier != nil {
		event := model.ChangeEvent{
			EventID:  uuid.NewString(),
			PlayerID: p.ID,
			Revision: p.Revision,
			TS:       p.UpdatedAt,
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			metrics.RecordNotification("publish_failed")
			metrics.RecordErrorByComponent("players", "publish_error")
			s.logger.Warn(ctx, "change notification not published",
				logger.String("player_id", p.ID),
				logger.Error(err),
			)
		}
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p.Clone(), nil
}

// List returns every player ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]model.Player, error) {
	s.mu.RLock()
	out := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
