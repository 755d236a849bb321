// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// MaxChampions is the number of champions/agents kept per player.
const MaxChampions = 3

// ChampionStat is one entry of a player's champion/agent pool.
type ChampionStat struct {
	Name        string  `json:"name" validate:"required"`
	GamesPlayed int     `json:"games_played" validate:"gte=0"`
	WinRate     float64 `json:"win_rate" validate:"gte=0,lte=100"`
}

// Player is the normalized player record written by ingestion.
// The analytics core only reads it.
type Player struct {
	ID          string  `json:"id" validate:"required,max=128"`
	Nickname    string  `json:"nickname" validate:"required,max=100"`
	Game        string  `json:"game"`
	Region      string  `json:"region" validate:"required,max=16"`
	WinRate     float64 `json:"win_rate"`
	KDA         float64 `json:"kda"`
	GamesPlayed int     `json:"games_played"`

	TalentScore    *float64 `json:"talent_score,omitempty"`
	KillsAvg       *float64 `json:"kills_avg,omitempty"`
	DeathsAvg      *float64 `json:"deaths_avg,omitempty"`
	Aggressiveness *float64 `json:"aggressiveness,omitempty"`
	Versatility    *float64 `json:"versatility,omitempty"`

	Champions []ChampionStat `json:"champions,omitempty" validate:"omitempty,dive"`

	// Revision increases with every write of the same player.
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize upper-cases the region and keeps at most MaxChampions champions.
func (p *Player) Normalize() {
	p.Region = NormalizeRegion(p.Region)
	if len(p.Champions) > MaxChampions {
		p.Champions = p.Champions[:MaxChampions]
	}
}

// Clone returns a deep copy so stored records cannot be mutated by callers.
func (p Player) Clone() Player {
	out := p
	out.TalentScore = cloneFloat(p.TalentScore)
	out.KillsAvg = cloneFloat(p.KillsAvg)
	out.DeathsAvg = cloneFloat(p.DeathsAvg)
	out.Aggressiveness = cloneFloat(p.Aggressiveness)
	out.Versatility = cloneFloat(p.Versatility)
	if p.Champions != nil {
		out.Champions = append([]ChampionStat(nil), p.Champions...)
	}
	return out
}

// NormalizeRegion canonicalizes a region code.
func NormalizeRegion(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
