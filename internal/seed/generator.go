package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/logger"
)

// span is an inclusive-exclusive range a stat is drawn from.
type span struct{ min, max float64 }

func (s span) draw(r *rand.Rand) float64 { return s.min + r.Float64()*(s.max-s.min) }

// archetype is a play style. Players drawn from the same archetype land close
// together in skill-vector space, which gives recommendations something to find.
type archetype struct {
	name      string
	weight    int
	winRate   span
	kda       span
	games     span
	kills     span
	deaths    span
	champions int
	talent    *span
}

var archetypes = []archetype{ //nolint:gochecknoglobals // read-only table
	{name: "carry", weight: 25, winRate: span{52, 68}, kda: span{3.5, 6}, games: span{200, 1200}, kills: span{8, 12}, deaths: span{3, 5}, champions: 2},
	{name: "support", weight: 20, winRate: span{48, 60}, kda: span{2.5, 4.5}, games: span{150, 900}, kills: span{1, 4}, deaths: span{3, 6}, champions: 3},
	{name: "anchor", weight: 20, winRate: span{45, 58}, kda: span{1.8, 3.2}, games: span{100, 800}, kills: span{3, 6}, deaths: span{4, 7}, champions: 1},
	{name: "flex", weight: 15, winRate: span{47, 62}, kda: span{2.5, 4}, games: span{300, 1500}, kills: span{5, 8}, deaths: span{4, 6}, champions: 3},
	{name: "rookie", weight: 15, winRate: span{35, 55}, kda: span{0.8, 2.5}, games: span{5, 60}, kills: span{2, 6}, deaths: span{5, 9}, champions: 1},
	{name: "elite", weight: 5, winRate: span{65, 80}, kda: span{5, 9}, games: span{800, 2500}, kills: span{9, 14}, deaths: span{1.5, 3}, champions: 3, talent: &span{85, 100}},
}

var championPools = map[string][]string{ //nolint:gochecknoglobals // read-only table
	"lol":      {"Ahri", "Azir", "Jinx", "Lee Sin", "Leona", "Orianna", "Thresh", "Vi", "Zed", "Kai'Sa"},
	"valorant": {"Jett", "Sage", "Sova", "Omen", "Killjoy", "Raze", "Viper", "Fade", "Chamber", "Skye"},
}

// generatePlayers creates the configured number of players with unique IDs.
// Stats are drawn from a per-player source derived from cfg.Seed, so the same
// seed reproduces the same stats.
func generatePlayers(ctx context.Context, cfg *Config, stats *Stats) ([]Player, error) {
	logger.Get().Info(ctx, "generating players", logger.Int("numPlayers", cfg.NumPlayers))

	if cfg.NumPlayers <= 0 {
		return nil, fmt.Errorf("number of players must be positive, got %d", cfg.NumPlayers)
	}
	regions := cfg.Regions
	if len(regions) == 0 {
		regions = DefaultRegions
	}
	games := cfg.Games
	if len(games) == 0 {
		games = DefaultGames
	}

	players := make([]Player, cfg.NumPlayers)
	workerCount := minInt(maxInt(cfg.Workers, 1), cfg.NumPlayers)
	perWorker := cfg.NumPlayers / workerCount

	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = cfg.NumPlayers // last worker takes the remainder
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("context cancelled during player generation: %w", err)
				}
				r := rand.New(rand.NewPCG(cfg.Seed, uint64(i))) //nolint:gosec // synthetic data
				players[i] = generateSinglePlayer(r, i, regions[i%len(regions)], games[i%len(games)])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.PlayersGenerated = len(players)
	logger.Get().Info(ctx, "generated players successfully", logger.Int("count", len(players)))
	return players, nil
}

// generateSinglePlayer draws one player of a weighted random archetype.
func generateSinglePlayer(r *rand.Rand, index int, region, game string) Player {
	a := pickArchetype(r)

	kills := round2(a.kills.draw(r))
	deaths := round2(a.deaths.draw(r))
	p := Player{
		ID:          strings.ToLower(region) + "-" + uuid.NewString(),
		Nickname:    fmt.Sprintf("%s_%s_%d", a.name, strings.ToLower(region), index),
		Game:        game,
		Region:      region,
		WinRate:     round2(a.winRate.draw(r)),
		KDA:         round2(a.kda.draw(r)),
		GamesPlayed: int(a.games.draw(r)),
		KillsAvg:    &kills,
		DeathsAvg:   &deaths,
		Champions:   pickChampions(r, game, a.champions),
	}
	if a.talent != nil {
		t := round2(a.talent.draw(r))
		p.TalentScore = &t
	}
	return p
}

func pickArchetype(r *rand.Rand) archetype {
	total := 0
	for _, a := range archetypes {
		total += a.weight
	}
	n := r.IntN(total)
	for _, a := range archetypes {
		if n < a.weight {
			return a
		}
		n -= a.weight
	}
	return archetypes[len(archetypes)-1]
}

func pickChampions(r *rand.Rand, game string, count int) []model.ChampionStat {
	pool, ok := championPools[game]
	if !ok || count <= 0 {
		return nil
	}
	count = minInt(count, model.MaxChampions)
	out := make([]model.ChampionStat, 0, count)
	for _, idx := range r.Perm(len(pool))[:count] {
		out = append(out, model.ChampionStat{
			Name:        pool[idx],
			GamesPlayed: 10 + r.IntN(300),
			WinRate:     round2(40 + r.Float64()*25),
		})
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
