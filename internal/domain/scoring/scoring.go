// Package scoring computes the region-weighted composite score of a player.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/gameradar/internal/domain/model"
)

// Scoring weights and normalization ceilings.
const (
	winrateWeight = 0.40
	talentWeight  = 0.20

	highTierKDAWeight    = 0.30
	highTierVolumeWeight = 0.10
	defaultKDAWeight     = 0.15
	defaultVolumeWeight  = 0.30

	kdaCeiling         = 10.0
	gamesCeiling       = 1000.0
	defaultMultiplier  = 1.0
	maxScoreValue      = 100.0
	maxPercentageValue = 100.0
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithRegionalMultipliers replaces the region → multiplier table.
// Non-positive multipliers are ignored.
func WithRegionalMultipliers(multipliers map[string]float64) Option {
	return func(c *Calculator) {
		if multipliers == nil {
			return
		}
		// Copy the map to avoid external modifications
		c.multipliers = make(map[string]float64, len(multipliers))
		for region, m := range multipliers {
			if m > 0 && !math.IsInf(m, 0) {
				c.multipliers[model.NormalizeRegion(region)] = m
			}
		}
	}
}

// WithHighCompetitionRegions sets the regions scored with the KDA-heavy weight profile.
func WithHighCompetitionRegions(regions []string) Option {
	return func(c *Calculator) {
		if regions == nil {
			return
		}
		c.highTier = make(map[string]struct{}, len(regions))
		for _, r := range regions {
			c.highTier[model.NormalizeRegion(r)] = struct{}{}
		}
	}
}

// Input carries the stats needed for scoring.
type Input struct {
	WinRate     float64
	KDA         float64
	GamesPlayed int
	Region      string
	TalentScore *float64
}

// InputFromPlayer extracts scoring input from a normalized record.
func InputFromPlayer(p *model.Player) Input {
	return Input{
		WinRate:     p.WinRate,
		KDA:         p.KDA,
		GamesPlayed: p.GamesPlayed,
		Region:      p.Region,
		TalentScore: p.TalentScore,
	}
}

// Calculator is a pure, deterministic composite score calculator.
// It is safe for concurrent use once constructed.
type Calculator struct {
	multipliers map[string]float64
	highTier    map[string]struct{}
}

// NewCalculator creates a calculator with the default KR/CN/JP tiering.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		multipliers: map[string]float64{
			"KR": 1.20,
			"CN": 1.15,
			"JP": 1.10,
		},
		highTier: map[string]struct{}{
			"KR": {},
			"CN": {},
			"JP": {},
		},
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Score computes the score breakdown for in. It never fails: missing,
// negative or non-finite metrics contribute 0 and the composite is clamped.
func (c *Calculator) Score(in Input) model.ScoreBreakdown {
	region := model.NormalizeRegion(in.Region)

	kdaWeight, volumeWeight := defaultKDAWeight, defaultVolumeWeight
	if _, ok := c.highTier[region]; ok {
		kdaWeight, volumeWeight = highTierKDAWeight, highTierVolumeWeight
	}

	winrate := clamp(finite(in.WinRate), 0, maxPercentageValue) * winrateWeight

	normKDA := math.Min(finite(in.KDA)/kdaCeiling*maxPercentageValue, maxPercentageValue)
	kda := math.Max(normKDA, 0) * kdaWeight

	games := math.Max(float64(in.GamesPlayed), 1)
	normGames := math.Min(math.Log(games)/math.Log(gamesCeiling)*maxPercentageValue, maxPercentageValue)
	volume := normGames * volumeWeight

	var talent float64
	if in.TalentScore != nil {
		talent = clamp(finite(*in.TalentScore), 0, maxPercentageValue) * talentWeight
	}

	multiplier := c.Multiplier(region)
	composite := clamp((winrate+kda+volume)*multiplier+talent, 0, maxScoreValue)

	return model.ScoreBreakdown{
		WinrateComponent:   winrate,
		KDAComponent:       kda,
		VolumeComponent:    volume,
		TalentComponent:    talent,
		RegionalMultiplier: multiplier,
		CompositeScore:     composite,
	}
}

// Multiplier returns the regional multiplier, 1.0 for unmapped regions.
func (c *Calculator) Multiplier(region string) float64 {
	if m, ok := c.multipliers[model.NormalizeRegion(region)]; ok {
		return m
	}
	return defaultMultiplier
}

// Validate rejects out-of-domain input. Callers at the ingestion boundary
// and in the pipeline use it; Score itself accepts anything.
func Validate(in Input) error {
	switch {
	case !isFinite(in.WinRate) || in.WinRate < 0 || in.WinRate > maxPercentageValue:
		return fmt.Errorf("%w: win_rate %v outside [0,100]", ErrInvalidInput, in.WinRate)
	case !isFinite(in.KDA) || in.KDA < 0:
		return fmt.Errorf("%w: kda %v must be a non-negative number", ErrInvalidInput, in.KDA)
	case in.GamesPlayed < 0:
		return fmt.Errorf("%w: games_played %d must not be negative", ErrInvalidInput, in.GamesPlayed)
	case strings.TrimSpace(in.Region) == "":
		return fmt.Errorf("%w: region must not be empty", ErrInvalidInput)
	}
	if t := in.TalentScore; t != nil && (!isFinite(*t) || *t < 0 || *t > maxPercentageValue) {
		return fmt.Errorf("%w: talent_score %v outside [0,100]", ErrInvalidInput, *t)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finite maps NaN and negative values to 0 and keeps +Inf for clamping.
func finite(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
