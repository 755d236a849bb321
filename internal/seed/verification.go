package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/gameradar/pkg/logger"
)

const maxCompositeScore = 100

// verifyResults checks the rankings, leaderboard and recommendations against
// each other. Inconsistencies are collected and returned together.
func verifyResults(ctx context.Context, cfg *Config, rankings, leaderboard []Entry, recs map[string]Recommendations) error {
	log := logger.Get().Named("seed")
	log.Info(ctx, "verifying results")

	if len(rankings) == 0 {
		return fmt.Errorf("no rankings to verify")
	}

	sorted := make([]Entry, len(rankings))
	copy(sorted, rankings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var errs []error
	if err := verifyLeaderboard(leaderboard); err != nil {
		errs = append(errs, fmt.Errorf("leaderboard: %w", err))
	}
	if err := verifyLeaderboardConsistency(sorted, leaderboard); err != nil {
		errs = append(errs, fmt.Errorf("leaderboard vs rankings: %w", err))
	}
	for id, resp := range recs {
		if err := verifyRecommendations(id, resp, recommendationLimit); err != nil {
			errs = append(errs, fmt.Errorf("recommendations for %s: %w", id, err))
		}
	}

	displayTopPerformers(ctx, sorted, leaderboard, cfg.Verbose)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info(ctx, "result verification completed")
	return nil
}

// verifyLeaderboard checks ordering and rank numbering: scores never increase,
// equal scores share a rank and the next distinct score takes the next rank.
func verifyLeaderboard(leaderboard []Entry) error {
	if len(leaderboard) == 0 {
		return fmt.Errorf("empty leaderboard")
	}
	if leaderboard[0].Rank != 1 {
		return fmt.Errorf("first entry has rank %d", leaderboard[0].Rank)
	}
	for i, e := range leaderboard {
		if e.Score < 0 || e.Score > maxCompositeScore {
			return fmt.Errorf("entry %d score %.3f outside [0,100]", i, e.Score)
		}
		if i == 0 {
			continue
		}
		prev := leaderboard[i-1]
		switch {
		case e.Score > prev.Score:
			return fmt.Errorf("entry %d has higher score than entry %d", i, i-1)
		case e.Score == prev.Score && e.Rank != prev.Rank:
			return fmt.Errorf("entries %d and %d tie but have ranks %d and %d", i-1, i, prev.Rank, e.Rank)
		case e.Score < prev.Score && e.Rank != prev.Rank+1:
			return fmt.Errorf("entry %d has rank %d after rank %d", i, e.Rank, prev.Rank)
		}
	}
	return nil
}

// verifyLeaderboardConsistency checks that the leaderboard leader holds the
// highest score seen through individual rank lookups.
func verifyLeaderboardConsistency(sortedRankings, leaderboard []Entry) error {
	if len(sortedRankings) == 0 || len(leaderboard) == 0 {
		return fmt.Errorf("nothing to compare")
	}
	top := sortedRankings[0]
	leader := leaderboard[0]
	if top.Score != leader.Score {
		return fmt.Errorf("top leaderboard score (%.3f) does not match top ranked score (%.3f)", leader.Score, top.Score)
	}
	if top.Rank != 1 {
		return fmt.Errorf("highest scoring player %s has rank %d", top.PlayerID, top.Rank)
	}
	return nil
}

// verifyRecommendations checks one recommendation response: the source is
// excluded, results are ordered by ascending distance and every value stays
// inside its documented range.
func verifyRecommendations(sourceID string, resp Recommendations, limit int) error {
	if resp.Source.ID != sourceID {
		return fmt.Errorf("source is %q", resp.Source.ID)
	}
	if resp.Metadata.Count != len(resp.Recommendations) {
		return fmt.Errorf("metadata count %d, got %d results", resp.Metadata.Count, len(resp.Recommendations))
	}
	if len(resp.Recommendations) > limit {
		return fmt.Errorf("%d results exceed limit %d", len(resp.Recommendations), limit)
	}
	switch resp.Metadata.Method {
	case "index", "fallback":
	default:
		return fmt.Errorf("unknown method %q", resp.Metadata.Method)
	}
	for i, r := range resp.Recommendations {
		if r.Player.ID == sourceID {
			return fmt.Errorf("source player recommended at position %d", i)
		}
		if r.Distance < 0 || r.Distance > 2 {
			return fmt.Errorf("distance %.4f outside [0,2]", r.Distance)
		}
		if r.MatchScore < 0 || r.MatchScore > maxCompositeScore {
			return fmt.Errorf("match score %d outside [0,100]", r.MatchScore)
		}
		if i > 0 && r.Distance < resp.Recommendations[i-1].Distance {
			return fmt.Errorf("result %d closer than result %d", i, i-1)
		}
	}
	return nil
}

// displayTopPerformers logs the top performers from rankings and leaderboard.
func displayTopPerformers(ctx context.Context, sortedRankings, leaderboard []Entry, verbose bool) {
	log := logger.Get().Named("seed")
	topN := minInt(10, len(sortedRankings))
	for i := 0; i < topN; i++ {
		e := sortedRankings[i]
		log.Info(ctx, "top ranked", logger.Int("position", i+1), logger.String("playerID", e.PlayerID),
			logger.String("region", e.Region), logger.Float64("score", e.Score))
	}
	for i := 0; i < minInt(topN, len(leaderboard)); i++ {
		e := leaderboard[i]
		log.Info(ctx, "leaderboard", logger.Int("rank", e.Rank), logger.String("playerID", e.PlayerID),
			logger.String("region", e.Region), logger.Float64("score", e.Score))
	}

	if verbose && len(sortedRankings) > 0 {
		log.Info(ctx, "score statistics",
			logger.Float64("average", calculateAverageScore(sortedRankings)),
			logger.Float64("maximum", sortedRankings[0].Score),
			logger.Float64("minimum", sortedRankings[len(sortedRankings)-1].Score))
	}
}

// calculateAverageScore calculates the average score from rankings.
func calculateAverageScore(rankings []Entry) float64 {
	if len(rankings) == 0 {
		return 0
	}
	sum := 0.0
	for _, entry := range rankings {
		sum += entry.Score
	}
	return sum / float64(len(rankings))
}
