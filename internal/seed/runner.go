package seed

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/gameradar/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// Run executes the complete seeding run: generate, submit, wait for the
// analytics to catch up, rebuild the index and verify what the service serves.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")

	log.Info(ctx, "starting gameradar seeding run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.NumPlayers),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Int("topN", cfg.TopN),
		logger.Any("seed", cfg.Seed),
		logger.Bool("verbose", cfg.Verbose))

	client := newHTTPClient(cfg.Timeout, cfg.RatePerSecond)

	if err := checkServiceHealth(ctx, client, cfg); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	players, err := generatePlayers(ctx, cfg, stats)
	if err != nil {
		return fmt.Errorf("player generation failed: %w", err)
	}

	if err := submitPlayers(ctx, cfg, client, players, stats); err != nil {
		return fmt.Errorf("player submission failed: %w", err)
	}

	if err := waitForProcessing(ctx, cfg, client, stats); err != nil {
		return fmt.Errorf("waiting for analytics failed: %w", err)
	}

	gen, err := rebuildIndex(ctx, cfg, client)
	if err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	stats.IndexGeneration = gen

	rankings, err := retrieveRankings(ctx, cfg, client, players, stats)
	if err != nil {
		return fmt.Errorf("ranking retrieval failed: %w", err)
	}

	leaderboard, err := getLeaderboard(ctx, cfg, client, "")
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(leaderboard)

	recs, err := fetchRecommendations(ctx, cfg, client, samplePlayers(players, cfg.Samples), stats)
	if err != nil {
		return fmt.Errorf("recommendation retrieval failed: %w", err)
	}

	if err := verifyResults(ctx, cfg, rankings, leaderboard, recs); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	if err := savePlayersToFile(ctx, cfg, players); err != nil {
		log.Warn(ctx, "failed to save players to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "seeding run completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, cfg *Config) error {
	logger.Get().Named("seed").Info(ctx, "checking service health")

	resp, err := client.Get(ctx, cfg.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	// /healthz answers with Prometheus text, so only the status matters.
	if err := decodeResponse(resp, http.StatusOK, nil); err != nil {
		return err
	}

	logger.Get().Named("seed").Info(ctx, "service is healthy")
	return nil
}

// serviceStats is the subset of GET /stats the runner watches.
type serviceStats struct {
	TotalPlayers int `json:"totalPlayers"`
	QueueLength  int `json:"queueLength"`
}

// waitForProcessing polls /stats until the service holds a snapshot for every
// accepted player and its queue is drained, or until cfg.ProcessTimeout.
func waitForProcessing(ctx context.Context, cfg *Config, client *HTTPClient, stats *Stats) error {
	log := logger.Get().Named("seed")
	log.Info(ctx, "waiting for players to be processed", logger.Int("accepted", stats.PlayersAccepted))

	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ProcessPollInterval)
	defer ticker.Stop()

	var last serviceStats
	for {
		var s serviceStats
		if err := client.getJSON(waitCtx, cfg.BaseURL+"/stats", &s); err == nil {
			last = s
			if s.TotalPlayers >= stats.PlayersAccepted && s.QueueLength == 0 {
				stats.PlayersProcessed = s.TotalPlayers
				log.Info(ctx, "players processed", logger.Int("totalPlayers", s.TotalPlayers))
				return nil
			}
		}

		select {
		case <-waitCtx.Done():
			stats.PlayersProcessed = last.TotalPlayers
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Proceed with what was processed; verification reports the gaps.
			log.Warn(ctx, "processing did not finish in time",
				logger.Int("totalPlayers", last.TotalPlayers),
				logger.Int("queueLength", last.QueueLength))
			return nil
		case <-ticker.C:
		}
	}
}

// samplePlayers picks up to n players evenly spread across the slice.
func samplePlayers(players []Player, n int) []Player {
	if n <= 0 || len(players) == 0 {
		return nil
	}
	n = minInt(n, len(players))
	out := make([]Player, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, players[i*len(players)/n])
	}
	return out
}

// savePlayersToFile writes the generated players as a JSON array.
func savePlayersToFile(ctx context.Context, cfg *Config, players []Player) error {
	if len(players) == 0 {
		return fmt.Errorf("no players to save")
	}

	filename := cfg.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_players_" + timestamp + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(players, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal players: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Named("seed").Info(ctx, "players saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, playersPerSecond float64
	if stats.PlayersSubmitted > 0 {
		acceptRate = float64(stats.PlayersAccepted) / float64(stats.PlayersSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		playersPerSecond = float64(stats.PlayersSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Named("seed").Info(ctx, "final statistics",
		logger.Int("playersGenerated", stats.PlayersGenerated),
		logger.Int("playersSubmitted", stats.PlayersSubmitted),
		logger.Int("playersAccepted", stats.PlayersAccepted),
		logger.Int("playersFailed", stats.PlayersFailed),
		logger.Int("playersProcessed", stats.PlayersProcessed),
		logger.Int("rankingsRetrieved", stats.RankingsRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Int("recommendationsFetched", stats.RecommendationsFetched),
		logger.Int("recommendationsFailed", stats.RecommendationsFailed),
		logger.Any("indexGeneration", stats.IndexGeneration),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("playersPerSecond", playersPerSecond))
}
