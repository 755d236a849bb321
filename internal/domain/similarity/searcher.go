package similarity

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"

	"github.com/okian/gameradar/internal/domain/model"
)

// Entry is one searchable player vector with the attributes filters use.
type Entry struct {
	ID       string
	Game     string
	Region   string
	Activity int
	Vector   model.SkillVector
}

// EntryFromSnapshot builds an entry from a stored snapshot.
func EntryFromSnapshot(s *model.AnalyticsSnapshot) Entry {
	return Entry{
		ID:       s.PlayerID,
		Game:     s.Game,
		Region:   s.Region,
		Activity: s.GamesPlayed,
		Vector:   s.SkillVector,
	}
}

// Query describes one similarity search.
type Query struct {
	Vector model.SkillVector
	Filter model.Filter
	// DistanceThreshold is exclusive: only results with distance < threshold are returned.
	DistanceThreshold float64
	Limit             int
}

// Result is one search hit.
type Result struct {
	ID       string
	Distance float64
}

// Searcher answers similarity queries. Results are sorted by ascending
// distance with ties broken by ID, all satisfy distance < threshold, and
// at most Limit are returned.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, error)
	// Len is the number of indexed entries.
	Len() int
}

// Option configures index construction.
type Option func(*options)

type options struct {
	probes        int
	parallelism   int
	maxIterations int
}

func defaultOptions() options {
	return options{
		parallelism:   runtime.NumCPU(),
		maxIterations: defaultMaxIterations,
	}
}

// WithProbes sets how many nearest clusters a ClusterIndex query scans.
// 0 derives it from the cluster count; values >= k scan every cluster.
func WithProbes(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.probes = n
		}
	}
}

// WithParallelism bounds the goroutines an exact scan uses.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithMaxIterations bounds k-means refinement rounds.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// item is an entry with its squared norm precomputed.
type item struct {
	Entry
	norm2 float64
}

// prepare copies entries sorted by ID and checks dimensions and uniqueness.
func prepare(entries []Entry) ([]item, int, error) {
	items := make([]item, 0, len(entries))
	dim := -1
	for _, e := range entries {
		if dim < 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return nil, 0, fmt.Errorf("%w: entry %s has %d components, want %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		e.Vector = e.Vector.Clone()
		e.Region = model.NormalizeRegion(e.Region)
		items = append(items, item{Entry: e, norm2: squaredNorm(e.Vector)})
	}
	slices.SortFunc(items, func(a, b item) int { return cmp.Compare(a.ID, b.ID) })
	for i := 1; i < len(items); i++ {
		if items[i].ID == items[i-1].ID {
			return nil, 0, fmt.Errorf("%w: %s", ErrDuplicateID, items[i].ID)
		}
	}
	return items, max(dim, 0), nil
}

func validateQuery(q Query, dim, size int) error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, q.Limit)
	}
	if math.IsNaN(q.DistanceThreshold) {
		return fmt.Errorf("%w: distance threshold is NaN", ErrInvalidQuery)
	}
	if size > 0 && len(q.Vector) != dim {
		return fmt.Errorf("%w: query has %d components, index has %d", ErrDimensionMismatch, len(q.Vector), dim)
	}
	return nil
}

// regionSet returns nil when the filter does not restrict regions.
func regionSet(f model.Filter) map[string]struct{} {
	if len(f.Regions) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(f.Regions))
	for _, r := range f.Regions {
		set[model.NormalizeRegion(r)] = struct{}{}
	}
	return set
}

func (it *item) admits(f model.Filter, regions map[string]struct{}) bool {
	if f.ExcludeID != "" && it.ID == f.ExcludeID {
		return false
	}
	if it.Activity < f.MinActivity {
		return false
	}
	if !model.SameGame(f.Game, it.Game) {
		return false
	}
	if regions != nil {
		if _, ok := regions[it.Region]; !ok {
			return false
		}
	}
	return true
}

func compareResults(a, b Result) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// finalize sorts deterministically and caps the result list.
func finalize(results []Result, limit int) []Result {
	slices.SortFunc(results, compareResults)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
