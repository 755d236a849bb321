package model

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format snapshots are keyed by.
const DateLayout = "2006-01-02"

// ScoreBreakdown is the result of scoring one player.
type ScoreBreakdown struct {
	WinrateComponent   float64 `json:"winrate_component"`
	KDAComponent       float64 `json:"kda_component"`
	VolumeComponent    float64 `json:"volume_component"`
	TalentComponent    float64 `json:"talent_component"`
	RegionalMultiplier float64 `json:"regional_multiplier"`
	CompositeScore     float64 `json:"composite_score"`
}

// SkillVector is a fixed-dimension embedding with every component in [0,1].
type SkillVector []float64

// Clone returns an independent copy of v.
func (v SkillVector) Clone() SkillVector {
	if v == nil {
		return nil
	}
	return append(SkillVector(nil), v...)
}

// AnalyticsSnapshot is the derived state of one player on one calendar date.
type AnalyticsSnapshot struct {
	PlayerID        string         `json:"player_id"`
	CalculationDate string         `json:"calculation_date"`
	Nickname        string         `json:"nickname"`
	Game            string         `json:"game,omitempty"`
	Region          string         `json:"region"`
	WinRate         float64        `json:"win_rate"`
	KDA             float64        `json:"kda"`
	GamesPlayed     int            `json:"games_played"`
	Score           ScoreBreakdown `json:"score"`
	SkillVector     SkillVector    `json:"skill_vector"`
	SourceRevision  uint64         `json:"source_revision"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// Clone returns a deep copy of the snapshot.
func (s AnalyticsSnapshot) Clone() AnalyticsSnapshot {
	out := s
	out.SkillVector = s.SkillVector.Clone()
	return out
}

// DateKey formats t as a snapshot calculation date in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Filter restricts candidate players for similarity search.
type Filter struct {
	// Regions limits candidates to these region codes; empty means any region.
	Regions []string `json:"regions,omitempty"`
	// Game limits candidates to one game title; empty means any game.
	Game string `json:"game,omitempty"`
	// MinActivity is the minimum games played.
	MinActivity int `json:"min_activity,omitempty"`
	// ExcludeID is never returned.
	ExcludeID string `json:"-"`
}

// Matches reports whether a snapshot passes the filter.
func (f Filter) Matches(s *AnalyticsSnapshot) bool {
	if s.PlayerID == f.ExcludeID && f.ExcludeID != "" {
		return false
	}
	if s.GamesPlayed < f.MinActivity {
		return false
	}
	if !SameGame(f.Game, s.Game) {
		return false
	}
	if len(f.Regions) == 0 {
		return true
	}
	for _, r := range f.Regions {
		if r == s.Region {
			return true
		}
	}
	return false
}

// NormalizeGame canonicalizes a game title for comparison.
func NormalizeGame(game string) string {
	return strings.ToLower(strings.TrimSpace(game))
}

// SameGame reports whether a game filter admits game. Titles compare
// case-insensitively and an empty filter admits every game.
func SameGame(filter, game string) bool {
	filter = NormalizeGame(filter)
	return filter == "" || filter == NormalizeGame(game)
}
