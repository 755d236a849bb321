package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/gameradar/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "seed_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the seeding tool.
func ShowHelp() {
	os.Stdout.WriteString(`GameRadar Player Seeder
=======================

Generates synthetic players, posts them to a running GameRadar service and
checks the leaderboard and recommendation endpoints against them.

Usage:
  go run ./cmd/seed-players [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -players int
        Number of players to generate and submit (default 2000)
  -regions string
        Comma-separated region codes (default "KR,CN,JP,EU,NA,BR")
  -games string
        Comma-separated game titles (default "lol,valorant")
  -top int
        Number of leaderboard entries to fetch (default 50)
  -samples int
        Number of players to request recommendations for (default 20)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -rate float
        Requests per second across all workers, 0 for unlimited (default 0)
  -timeout duration
        HTTP request timeout (default 30s)
  -wait duration
        How long to wait for analytics to be computed (default 2m)
  -seed uint
        Seed for generated stats (default: current time)
  -output string
        Output file for generated players (default: generated_players_TIMESTAMP.json)
  -log string
        Log file for run output (default: seed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed with default settings
  go run ./cmd/seed-players

  # Seed a larger population against another address
  go run ./cmd/seed-players -players 50000 -workers 16 -url http://localhost:8080

  # Reproducible stats with a throttled client
  go run ./cmd/seed-players -seed 42 -rate 200 -verbose
`)
}
