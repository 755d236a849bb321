package seed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gameradar/pkg/logger"
)

// retrieveRankings fetches /rank/{id} for every player concurrently. Failed
// lookups are dropped from the result.
func retrieveRankings(ctx context.Context, cfg *Config, client *HTTPClient, players []Player, stats *Stats) ([]Entry, error) {
	log := logger.Get().Named("seed")
	log.Info(ctx, "retrieving rankings", logger.Int("players", len(players)), logger.Int("workers", cfg.Workers))

	rankings := make([]Entry, len(players))
	var (
		retrieved atomic.Int64
		failed    atomic.Int64
		report    progress
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(cfg.Workers, 1))
	for i := range players {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			entry, err := retrieveSingleRanking(gctx, client, cfg.BaseURL, players[i].ID)
			if err != nil {
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "failed to get rank", logger.String("playerID", players[i].ID), logger.Error(err))
				}
			} else {
				rankings[i] = entry
				retrieved.Add(1)
			}
			if report.due() {
				log.Info(gctx, "ranking progress",
					logger.Int("retrieved", int(retrieved.Load())),
					logger.Int("failed", int(failed.Load())),
					logger.Int("total", len(players)))
			}
			return nil
		})
	}
	_ = g.Wait()

	// An empty PlayerID marks a failed retrieval.
	valid := make([]Entry, 0, len(rankings))
	for _, entry := range rankings {
		if entry.PlayerID != "" {
			valid = append(valid, entry)
		}
	}
	stats.RankingsRetrieved = len(valid)

	log.Info(ctx, "ranking retrieval completed",
		logger.Int("retrieved", len(valid)),
		logger.Int("failed", int(failed.Load())))
	if err := ctx.Err(); err != nil {
		return valid, fmt.Errorf("ranking retrieval interrupted: %w", err)
	}
	return valid, nil
}

// retrieveSingleRanking fetches the rank of one player.
func retrieveSingleRanking(ctx context.Context, client *HTTPClient, baseURL, playerID string) (Entry, error) {
	var entry Entry
	err := client.getJSON(ctx, baseURL+"/rank/"+url.PathEscape(playerID), &entry)
	return entry, err
}

// getLeaderboard retrieves the top N entries, optionally for one region.
func getLeaderboard(ctx context.Context, cfg *Config, client *HTTPClient, region string) ([]Entry, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(cfg.TopN))
	if region != "" {
		q.Set("region", region)
	}

	var leaderboard []Entry
	if err := client.getJSON(ctx, cfg.BaseURL+"/leaderboard?"+q.Encode(), &leaderboard); err != nil {
		return nil, err
	}
	logger.Get().Named("seed").Info(ctx, "retrieved leaderboard",
		logger.String("region", region),
		logger.Int("entries", len(leaderboard)))
	return leaderboard, nil
}

// rebuildIndex asks the service for a fresh similarity index generation.
func rebuildIndex(ctx context.Context, cfg *Config, client *HTTPClient) (uint64, error) {
	resp, err := client.Post(ctx, cfg.BaseURL+"/admin/index/rebuild", nil)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	var out struct {
		Generation uint64 `json:"generation"`
		Size       int    `json:"size"`
	}
	if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
		return 0, err
	}
	logger.Get().Named("seed").Info(ctx, "index rebuilt",
		logger.Any("generation", out.Generation),
		logger.Int("size", out.Size))
	return out.Generation, nil
}

// fetchRecommendations requests recommendations for a sample of players.
func fetchRecommendations(ctx context.Context, cfg *Config, client *HTTPClient, sample []Player, stats *Stats) (map[string]Recommendations, error) {
	var (
		results = make([]Recommendations, len(sample))
		ok      = make([]bool, len(sample))
		failed  atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(cfg.Workers, 1))
	for i := range sample {
		g.Go(func() error {
			u := fmt.Sprintf("%s/recommendations/%s?limit=%d", cfg.BaseURL, url.PathEscape(sample[i].ID), recommendationLimit)
			if err := client.getJSON(gctx, u, &results[i]); err != nil {
				failed.Add(1)
				logger.Get().Named("seed").Warn(gctx, "recommendation request failed",
					logger.String("playerID", sample[i].ID), logger.Error(err))
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Recommendations, len(sample))
	for i, p := range sample {
		if ok[i] {
			out[p.ID] = results[i]
		}
	}
	stats.RecommendationsFetched = len(out)
	stats.RecommendationsFailed = int(failed.Load())
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("recommendation requests interrupted: %w", err)
	}
	return out, nil
}
