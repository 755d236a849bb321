package repository

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/types"
)

// rankedView is an immutable leaderboard built from the latest snapshots.
type rankedView struct {
	version uint64
	entries []Entry        // score desc, player id asc, ranks assigned
	byID    map[string]int // player id -> index into entries
}

// viewCache publishes ranked views through an atomic pointer. Writers bump
// the version after committing; readers rebuild lazily when it moved.
type viewCache struct {
	mu      sync.Mutex
	version atomic.Uint64
	view    atomic.Pointer[rankedView]
}

func (c *viewCache) invalidate() {
	c.version.Add(1)
}

func (c *viewCache) load(build func() ([]model.AnalyticsSnapshot, error)) (*rankedView, error) {
	if v := c.view.Load(); v != nil && v.version == c.version.Load() {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ver := c.version.Load()
	if v := c.view.Load(); v != nil && v.version == ver {
		return v, nil
	}
	snaps, err := build()
	if err != nil {
		return nil, err
	}
	v := newRankedView(snaps, ver)
	c.view.Store(v)
	return v, nil
}

func newRankedView(snaps []model.AnalyticsSnapshot, version uint64) *rankedView {
	entries := make([]Entry, 0, len(snaps))
	for i := range snaps {
		entries = append(entries, Entry{
			PlayerID: snaps[i].PlayerID,
			Nickname: snaps[i].Nickname,
			Game:     snaps[i].Game,
			Region:   snaps[i].Region,
			Score:    snaps[i].Score.CompositeScore,
		})
	}
	sortEntries(entries)
	assignRanksWithTies(entries)

	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.PlayerID] = i
	}
	return &rankedView{version: version, entries: entries, byID: byID}
}

// topN keeps global ranks; region and game only select which entries appear.
func (v *rankedView) topN(n int, region, game string) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	region = model.NormalizeRegion(region)
	out := make([]Entry, 0, min(n, len(v.entries)))
	for _, e := range v.entries {
		if len(out) == n {
			break
		}
		if region != "" && e.Region != region {
			continue
		}
		if !model.SameGame(game, e.Game) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (v *rankedView) rank(playerID string) (Entry, error) {
	i, ok := v.byID[playerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return v.entries[i], nil
}

// sortEntries sorts entries by score (descending) and player id (ascending).
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
}

// assignRanksWithTies assigns ranks to sorted entries. Players with the same
// score share a rank, and the next distinct score gets the next rank.
func assignRanksWithTies(entries []Entry) {
	currentRank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			currentRank++
		}
		entries[i].Rank = currentRank
	}
}

// selectCandidates applies filter and the most-recently-updated cap policy.
func selectCandidates(latest []model.AnalyticsSnapshot, filter model.Filter, limit int) ([]model.AnalyticsSnapshot, bool, error) {
	if limit < 1 {
		return nil, false, ErrInvalidLimit
	}
	f := filter
	f.Regions = make([]string, 0, len(filter.Regions))
	for _, r := range filter.Regions {
		f.Regions = append(f.Regions, model.NormalizeRegion(r))
	}

	out := make([]model.AnalyticsSnapshot, 0, min(limit, len(latest)))
	for i := range latest {
		if f.Matches(&latest[i]) {
			out = append(out, latest[i])
		}
	}
	if len(out) <= limit {
		return out, false, nil
	}
	slices.SortFunc(out, func(a, b model.AnalyticsSnapshot) int {
		if c := b.LastUpdated.Compare(a.LastUpdated); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	return out[:limit], true, nil
}

func validateSnapshot(s *model.AnalyticsSnapshot) error {
	if s.PlayerID == "" {
		return fmt.Errorf("%w: player id is empty", ErrInvalidSnapshot)
	}
	if _, err := time.Parse(model.DateLayout, s.CalculationDate); err != nil {
		return fmt.Errorf("%w: calculation date %q: %w", ErrInvalidSnapshot, s.CalculationDate, err)
	}
	return nil
}

// RegionStats aggregates latest snapshots per region, ordered by region code.
func RegionStats(latest []model.AnalyticsSnapshot) []types.RegionStats {
	byRegion := make(map[string]*types.RegionStats)
	for i := range latest {
		s := &latest[i]
		rs, ok := byRegion[s.Region]
		if !ok {
			rs = &types.RegionStats{Region: s.Region}
			byRegion[s.Region] = rs
		}
		rs.Players++
		rs.AvgScore += s.Score.CompositeScore
		rs.AvgWinRate += s.WinRate
		rs.AvgKDA += s.KDA
		rs.TotalGames += s.GamesPlayed
		if rs.Players == 1 || s.Score.CompositeScore > rs.MaxScore ||
			(s.Score.CompositeScore == rs.MaxScore && s.PlayerID < rs.TopPlayerID) {
			rs.MaxScore = s.Score.CompositeScore
			rs.TopPlayerID = s.PlayerID
			rs.TopNickname = s.Nickname
		}
	}

	out := make([]types.RegionStats, 0, len(byRegion))
	for _, rs := range byRegion {
		n := float64(rs.Players)
		rs.AvgScore /= n
		rs.AvgWinRate /= n
		rs.AvgKDA /= n
		out = append(out, *rs)
	}
	slices.SortFunc(out, func(a, b types.RegionStats) int { return cmp.Compare(a.Region, b.Region) })
	return out
}
