// Package pipeline turns normalized player records into analytics snapshots
// and keeps the similarity index in step with them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/gameradar/internal/adapters/players"
	"github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/scoring"
	"github.com/okian/gameradar/internal/domain/skillvector"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Recomputer scores one player and upserts the snapshot for today.
type Recomputer struct {
	players    players.Reader
	store      repository.Store
	calculator *scoring.Calculator
	builder    *skillvector.Builder
	now        func() time.Time
	logger     logger.Logger
}

// RecomputerOption configures a Recomputer.
type RecomputerOption func(*Recomputer)

// WithCalculator sets the score calculator.
func WithCalculator(c *scoring.Calculator) RecomputerOption {
	return func(r *Recomputer) {
		if c != nil {
			r.calculator = c
		}
	}
}

// WithBuilder sets the skill vector builder.
func WithBuilder(b *skillvector.Builder) RecomputerOption {
	return func(r *Recomputer) {
		if b != nil {
			r.builder = b
		}
	}
}

// WithClock overrides the clock that picks the calculation date.
func WithClock(now func() time.Time) RecomputerOption {
	return func(r *Recomputer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecomputer wires a recomputer over the player and analytics stores.
func NewRecomputer(src players.Reader, store repository.Store, opts ...RecomputerOption) *Recomputer {
	r := &Recomputer{
		players:    src,
		store:      store,
		calculator: scoring.NewCalculator(),
		builder:    skillvector.NewBuilder(),
		now:        time.Now,
		logger:     logger.Get().Named("recompute"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recompute reads the player's current record and upserts today's snapshot.
// Any failure is wrapped in ErrRecomputation, logged and counted; the
// player's previous analytics stay in place.
func (r *Recomputer) Recompute(ctx context.Context, playerID string) error {
	start := time.Now()
	p, err := r.players.Get(ctx, playerID)
	if err != nil {
		return r.fail(ctx, playerID, "load", err)
	}
	if _, err := r.apply(ctx, &p, model.DateKey(r.now())); err != nil {
		return r.fail(ctx, playerID, reason(err), err)
	}
	metrics.RecordRecompute(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// RecomputePlayer is Recompute for a record already in hand, as a full
// refresh has after listing the store. The snapshot is keyed by date so one
// refresh run writes a single calculation date even across midnight.
func (r *Recomputer) RecomputePlayer(ctx context.Context, p *model.Player, date string) error {
	start := time.Now()
	if _, err := r.apply(ctx, p, date); err != nil {
		return r.fail(ctx, p.ID, reason(err), err)
	}
	metrics.RecordRecompute(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// Snapshot derives the analytics snapshot of p for date without storing it.
func (r *Recomputer) Snapshot(p *model.Player, date string) (model.AnalyticsSnapshot, error) {
	in := scoring.InputFromPlayer(p)
	if err := scoring.Validate(in); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	return model.AnalyticsSnapshot{
		PlayerID:        p.ID,
		CalculationDate: date,
		Nickname:        p.Nickname,
		Game:            p.Game,
		Region:          p.Region,
		WinRate:         p.WinRate,
		KDA:             p.KDA,
		GamesPlayed:     p.GamesPlayed,
		Score:           r.calculator.Score(in),
		SkillVector:     r.builder.Build(skillvector.StatsFromPlayer(p)),
		SourceRevision:  p.Revision,
		LastUpdated:     r.now().UTC(),
	}, nil
}

// Today is the calculation date the recomputer's clock currently reports.
func (r *Recomputer) Today() string {
	return model.DateKey(r.now())
}

func (r *Recomputer) apply(ctx context.Context, p *model.Player, date string) (bool, error) {
	snap, err := r.Snapshot(p, date)
	if err != nil {
		return false, err
	}
	applied, err := r.store.Upsert(ctx, snap)
	if err != nil {
		return false, fmt.Errorf("upsert snapshot: %w", err)
	}
	return applied, nil
}

func (r *Recomputer) fail(ctx context.Context, playerID, why string, err error) error {
	metrics.RecordRecomputeFailure(why)
	metrics.RecordErrorByComponent("pipeline", why)
	r.logger.Error(ctx, "recomputation failed",
		logger.String("player_id", playerID),
		logger.String("reason", why),
		logger.Error(err),
	)
	return fmt.Errorf("%w: player %s: %w", ErrRecomputation, playerID, err)
}

func reason(err error) string {
	switch {
	case errors.Is(err, scoring.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "store"
	}
}
