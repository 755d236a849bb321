// Package skillvector builds the fixed-dimension play-style embedding used for similarity search.
package skillvector

import (
	"math"

	"github.com/okian/gameradar/internal/domain/model"
)

// Dimension is the length of every skill vector in the corpus.
const Dimension = 4

// Vector component positions.
const (
	DimKDA = iota
	DimWinRate
	DimAggressiveness
	DimVersatility
)

const (
	defaultKDACeiling            = 10.0
	defaultWinRateCeiling        = 100.0
	defaultAggressivenessCeiling = 5.0
	versatilityPoolSize          = 3.0
	roundingFactor               = 1e6
)

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithKDACeiling sets the KDA value mapped to 1.0.
func WithKDACeiling(v float64) Option {
	return func(b *Builder) {
		if v > 0 {
			b.kdaCeiling = v
		}
	}
}

// WithWinRateCeiling sets the win rate mapped to 1.0.
func WithWinRateCeiling(v float64) Option {
	return func(b *Builder) {
		if v > 0 {
			b.winRateCeiling = v
		}
	}
}

// WithAggressivenessCeiling sets the aggressiveness ratio mapped to 1.0.
func WithAggressivenessCeiling(v float64) Option {
	return func(b *Builder) {
		if v > 0 {
			b.aggressivenessCeiling = v
		}
	}
}

// Stats are the aggregate player stats a vector is built from.
type Stats struct {
	KDA            float64
	WinRate        float64
	KillsAvg       *float64
	DeathsAvg      *float64
	Aggressiveness *float64
	Versatility    *float64
	Champions      int
}

// StatsFromPlayer extracts vector input from a normalized record.
func StatsFromPlayer(p *model.Player) Stats {
	return Stats{
		KDA:            p.KDA,
		WinRate:        p.WinRate,
		KillsAvg:       p.KillsAvg,
		DeathsAvg:      p.DeathsAvg,
		Aggressiveness: p.Aggressiveness,
		Versatility:    p.Versatility,
		Champions:      min(len(p.Champions), model.MaxChampions),
	}
}

// Builder turns stats into skill vectors. It holds no mutable state.
type Builder struct {
	kdaCeiling            float64
	winRateCeiling        float64
	aggressivenessCeiling float64
}

// NewBuilder creates a builder with the default ceilings.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		kdaCeiling:            defaultKDACeiling,
		winRateCeiling:        defaultWinRateCeiling,
		aggressivenessCeiling: defaultAggressivenessCeiling,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the vector for s. Every component is clipped to [0,1] and
// rounded to 6 decimals so persisted vectors compare bit-identically.
func (b *Builder) Build(s Stats) model.SkillVector {
	v := make(model.SkillVector, Dimension)
	v[DimKDA] = normalize(s.KDA / b.kdaCeiling)
	v[DimWinRate] = normalize(s.WinRate / b.winRateCeiling)
	v[DimAggressiveness] = normalize(aggressiveness(s) / b.aggressivenessCeiling)
	v[DimVersatility] = normalize(versatility(s))
	return v
}

func aggressiveness(s Stats) float64 {
	if s.Aggressiveness != nil {
		return *s.Aggressiveness
	}
	kills := value(s.KillsAvg)
	if kills <= 0 {
		return 0
	}
	return kills / (math.Max(value(s.DeathsAvg), 0) + 1)
}

// versatility is already on a 0-1 scale when explicit; otherwise it is the
// share of the champion pool that is filled.
func versatility(s Stats) float64 {
	if s.Versatility != nil {
		return *s.Versatility
	}
	if s.Champions <= 0 {
		return 0
	}
	return float64(s.Champions) / versatilityPoolSize
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func normalize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*roundingFactor) / roundingFactor
}
