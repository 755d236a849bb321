package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/okian/gameradar/internal/seed"
)

// Default configuration constants.
const (
	defaultNumPlayers = 2000
	defaultTopN       = 50
	defaultSamples    = 20
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 15 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numPlayers = flag.Int("players", defaultNumPlayers, "Number of players to generate and submit")
		regions    = flag.String("regions", strings.Join(seed.DefaultRegions, ","), "Comma-separated region codes")
		games      = flag.String("games", strings.Join(seed.DefaultGames, ","), "Comma-separated game titles")
		topN       = flag.Int("top", defaultTopN, "Number of leaderboard entries to fetch")
		samples    = flag.Int("samples", defaultSamples, "Number of players to request recommendations for")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		ratePerSec = flag.Float64("rate", 0, "Requests per second across all workers, 0 for unlimited")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait       = flag.Duration("wait", seed.DefaultProcessTimeout, "How long to wait for analytics to be computed")
		seedValue  = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for generated stats")
		outputFile = flag.String("output", "", "Output file for generated players (default: generated_players_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output (default: seed_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return
	}

	if err := seed.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:        strings.TrimRight(*baseURL, "/"),
		NumPlayers:     *numPlayers,
		Regions:        splitList(*regions),
		Games:          splitList(*games),
		TopN:           *topN,
		Samples:        *samples,
		Workers:        *workers,
		RatePerSecond:  *ratePerSec,
		Timeout:        *timeout,
		ProcessTimeout: *wait,
		Seed:           *seedValue,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	if err := seed.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Seeding failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
