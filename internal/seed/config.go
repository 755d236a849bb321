package seed

import (
	"time"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/types"
)

// Config holds configuration for a seeding run
type Config struct {
	BaseURL        string        // Base URL of the service
	NumPlayers     int           // Number of players to generate
	Regions        []string      // Regions players are spread across
	Games          []string      // Games players are drawn from
	TopN           int           // Number of leaderboard entries to fetch
	Samples        int           // Number of players to request recommendations for
	Workers        int           // Number of concurrent workers
	RatePerSecond  float64       // Request budget across workers; 0 is unlimited
	Timeout        time.Duration // HTTP request timeout
	ProcessTimeout time.Duration // How long to wait for analytics to catch up
	Seed           uint64        // Seed for the stat generator
	OutputFile     string        // Output file for generated players
	LogFile        string        // Log file for run output
	Verbose        bool          // Enable verbose logging
}

// Player is the payload posted to /players.
type Player = model.Player

// Entry represents a leaderboard entry
type Entry = types.Entry

// Recommendations is the body of GET /recommendations/{id}.
type Recommendations = types.RecommendationResponse

// AckResponse represents the response from player submission
type AckResponse struct {
	Status   string `json:"status"`
	PlayerID string `json:"player_id"`
	Revision uint64 `json:"revision"`
}

// Stats holds run statistics
type Stats struct {
	PlayersGenerated       int
	PlayersSubmitted       int
	PlayersAccepted        int
	PlayersFailed          int
	PlayersProcessed       int
	RankingsRetrieved      int
	LeaderboardEntries     int
	RecommendationsFetched int
	RecommendationsFailed  int
	IndexGeneration        uint64
	StartTime              time.Time
	EndTime                time.Time
	Duration               time.Duration
}
