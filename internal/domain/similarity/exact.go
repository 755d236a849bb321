package similarity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	// minChunkSize keeps small scans on a single goroutine.
	minChunkSize = 256
	// ctxCheckEvery is how many candidates a chunk scores between cancellation checks.
	ctxCheckEvery = 64
)

// ExactIndex is a linear-scan Searcher. It returns exactly the ordered set a
// ClusterIndex probing every cluster returns.
type ExactIndex struct {
	items       []item
	dim         int
	parallelism int
}

// NewExactIndex builds an immutable exact index over entries.
func NewExactIndex(entries []Entry, opts ...Option) (*ExactIndex, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	items, dim, err := prepare(entries)
	if err != nil {
		return nil, err
	}
	return &ExactIndex{items: items, dim: dim, parallelism: o.parallelism}, nil
}

// Len returns the number of indexed entries.
func (x *ExactIndex) Len() int { return len(x.items) }

// Search scans every admitted entry.
func (x *ExactIndex) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := validateQuery(q, x.dim, len(x.items)); err != nil {
		return nil, err
	}
	return scan(ctx, x.items, q, x.parallelism)
}

// ExactScan runs an exact search over an ad-hoc candidate pool, such as the
// fallback pool read from the analytics store. Candidates whose dimension
// differs from the query are skipped.
func ExactScan(ctx context.Context, candidates []Entry, q Query, opts ...Option) ([]Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateQuery(q, len(q.Vector), 0); err != nil {
		return nil, err
	}
	items := make([]item, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(q.Vector) {
			continue
		}
		items = append(items, item{Entry: c, norm2: squaredNorm(c.Vector)})
	}
	return scan(ctx, items, q, o.parallelism)
}

// scan scores items in parallel chunks and merges the hits deterministically.
func scan(ctx context.Context, items []item, q Query, parallelism int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("exact scan: %w", err)
	}
	if len(items) == 0 {
		return []Result{}, nil
	}

	regions := regionSet(q.Filter)
	qn2 := squaredNorm(q.Vector)

	chunk := max(minChunkSize, (len(items)+parallelism-1)/parallelism)
	chunks := (len(items) + chunk - 1) / chunk
	parts := make([][]Result, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for c := range chunks {
		lo := c * chunk
		hi := min(lo+chunk, len(items))
		g.Go(func() error {
			var out []Result
			for i := lo; i < hi; i++ {
				if (i-lo)%ctxCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				it := &items[i]
				if !it.admits(q.Filter, regions) {
					continue
				}
				if d := distanceTo(q.Vector, qn2, it); d < q.DistanceThreshold {
					out = append(out, Result{ID: it.ID, Distance: d})
				}
			}
			parts[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("exact scan: %w", err)
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	results := make([]Result, 0, total)
	for _, p := range parts {
		results = append(results, p...)
	}
	return finalize(results, q.Limit), nil
}

// distanceTo is the single distance path shared by every Searcher, so the
// exact and clustered indexes produce bit-identical distances.
func distanceTo(query []float64, qn2 float64, it *item) float64 {
	return cosineDistance(query, it.Vector, qn2, it.norm2)
}
