// Package types contains the response shapes shared by the service and HTTP layers
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Nickname string  `json:"nickname"`
	Game     string  `json:"game,omitempty"`
	Region   string  `json:"region"`
	Score    float64 `json:"score"`
}

// PlayerSummary is the public view of a player's latest analytics
type PlayerSummary struct {
	ID             string  `json:"id"`
	Nickname       string  `json:"nickname"`
	Game           string  `json:"game,omitempty"`
	Region         string  `json:"region"`
	CompositeScore float64 `json:"composite_score"`
	WinRate        float64 `json:"win_rate"`
	KDA            float64 `json:"kda"`
	GamesPlayed    int     `json:"games_played"`
}

// Recommendation is one similar player
type Recommendation struct {
	Player     PlayerSummary `json:"entity"`
	Distance   float64       `json:"distance"`
	MatchScore int           `json:"match_score"`
}

// AppliedFilters echoes the effective filters of a recommendation request
type AppliedFilters struct {
	Regions             []string `json:"regions,omitempty"`
	Game                string   `json:"game,omitempty"`
	MinActivity         int      `json:"min_activity"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	Limit               int      `json:"limit"`
}

// RecommendationMetadata describes how a recommendation response was produced
type RecommendationMetadata struct {
	Count           int            `json:"count"`
	Method          string         `json:"method"`
	Filters         AppliedFilters `json:"filters"`
	IndexGeneration uint64         `json:"index_generation"`
	CandidatePool   int            `json:"candidate_pool"`
	Truncated       bool           `json:"truncated"`
	Cached          bool           `json:"cached"`
}

// RecommendationResponse is the result of a recommendation request
type RecommendationResponse struct {
	Source          PlayerSummary          `json:"source_entity"`
	Recommendations []Recommendation       `json:"recommendations"`
	Metadata        RecommendationMetadata `json:"metadata"`
}

// RegionStats aggregates the latest snapshots of one region
type RegionStats struct {
	Region      string  `json:"region"`
	Players     int     `json:"players"`
	AvgScore    float64 `json:"avg_score"`
	MaxScore    float64 `json:"max_score"`
	AvgWinRate  float64 `json:"avg_win_rate"`
	AvgKDA      float64 `json:"avg_kda"`
	TotalGames  int     `json:"total_games"`
	TopPlayerID string  `json:"top_player_id"`
	TopNickname string  `json:"top_nickname"`
}
