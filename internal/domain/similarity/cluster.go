package similarity

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

const defaultMaxIterations = 20

type cluster struct {
	centroid []float64 // unit length
	members  *roaring.Bitmap
}

// ClusterIndex is an approximate Searcher. Vectors are partitioned into
// k = ceil(sqrt(N)) clusters by spherical k-means, and a query scans only the
// members of its nearest clusters. Zero-norm vectors belong to no cluster and
// are always scanned. The index is immutable once built.
type ClusterIndex struct {
	items    []item
	dim      int
	clusters []cluster
	zero     *roaring.Bitmap
	regions  map[string]*roaring.Bitmap
	probes   int
}

// NewClusterIndex builds the index in one batch. Construction is
// deterministic: entries are ordered by ID, initial centroids are chosen
// farthest-first from the lowest ID, and ties go to the lowest index.
func NewClusterIndex(entries []Entry, opts ...Option) (*ClusterIndex, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	items, dim, err := prepare(entries)
	if err != nil {
		return nil, err
	}

	x := &ClusterIndex{
		items:   items,
		dim:     dim,
		zero:    roaring.New(),
		regions: make(map[string]*roaring.Bitmap),
	}

	var (
		points []uint32
		units  [][]float64
	)
	for i := range items {
		id := uint32(i) //nolint:gosec // corpus is bounded well below 2^32
		bm, ok := x.regions[items[i].Region]
		if !ok {
			bm = roaring.New()
			x.regions[items[i].Region] = bm
		}
		bm.Add(id)

		u := unit(items[i].Vector)
		if u == nil {
			x.zero.Add(id)
			continue
		}
		points = append(points, id)
		units = append(units, u)
	}

	if len(units) > 0 {
		k := int(math.Ceil(math.Sqrt(float64(len(units)))))
		centroids := farthestFirst(units, k)
		assign := sphericalKMeans(units, centroids, o.maxIterations)

		x.clusters = make([]cluster, len(centroids))
		for c := range x.clusters {
			x.clusters[c] = cluster{centroid: centroids[c], members: roaring.New()}
		}
		for p, c := range assign {
			x.clusters[c].members.Add(points[p])
		}
		for c := range x.clusters {
			x.clusters[c].members.RunOptimize()
		}
	}

	k := len(x.clusters)
	switch {
	case o.probes == 0:
		x.probes = min(k, 2*int(math.Ceil(math.Sqrt(float64(k)))))
	default:
		x.probes = min(k, o.probes)
	}
	return x, nil
}

// Len returns the number of indexed entries.
func (x *ClusterIndex) Len() int { return len(x.items) }

// Clusters returns the number of clusters.
func (x *ClusterIndex) Clusters() int { return len(x.clusters) }

// Probes returns how many clusters a query scans.
func (x *ClusterIndex) Probes() int { return x.probes }

// Search scans the members of the nearest clusters that pass the filter.
func (x *ClusterIndex) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := validateQuery(q, x.dim, len(x.items)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cluster search: %w", err)
	}
	if len(x.items) == 0 {
		return []Result{}, nil
	}

	candidates := x.candidates(q.Vector)
	if len(q.Filter.Regions) > 0 {
		allowed := roaring.New()
		for r := range regionSet(q.Filter) {
			if bm, ok := x.regions[r]; ok {
				allowed.Or(bm)
			}
		}
		candidates.And(allowed)
	}

	qn2 := squaredNorm(q.Vector)
	var results []Result
	it := candidates.Iterator()
	for n := 0; it.HasNext(); n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("cluster search: %w", err)
			}
		}
		e := &x.items[it.Next()]
		// Regions were applied through the bitmaps.
		if !e.admits(q.Filter, nil) {
			continue
		}
		if d := distanceTo(q.Vector, qn2, e); d < q.DistanceThreshold {
			results = append(results, Result{ID: e.ID, Distance: d})
		}
	}
	if results == nil {
		results = []Result{}
	}
	return finalize(results, q.Limit), nil
}

// candidates returns the zero-norm entries plus the members of the nearest
// probes clusters. A zero query has no direction, so every entry is a candidate.
func (x *ClusterIndex) candidates(query []float64) *roaring.Bitmap {
	uq := unit(query)
	if uq == nil {
		all := roaring.New()
		all.AddRange(0, uint64(len(x.items)))
		return all
	}

	order := make([]int, len(x.clusters))
	sims := make([]float64, len(x.clusters))
	for c := range x.clusters {
		order[c] = c
		sims[c] = dot(uq, x.clusters[c].centroid)
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(sims[b], sims[a]) })

	bm := x.zero.Clone()
	for _, c := range order[:x.probes] {
		bm.Or(x.clusters[c].members)
	}
	return bm
}

// farthestFirst seeds k centroids: the first point, then repeatedly the point
// farthest from every centroid chosen so far.
func farthestFirst(units [][]float64, k int) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, slices.Clone(units[0]))

	nearest := make([]float64, len(units))
	for i, u := range units {
		nearest[i] = 1 - dot(u, centroids[0])
	}
	for len(centroids) < k {
		best, bestDist := 0, -1.0
		for i, d := range nearest {
			if d > bestDist {
				best, bestDist = i, d
			}
		}
		c := slices.Clone(units[best])
		centroids = append(centroids, c)
		for i, u := range units {
			if d := 1 - dot(u, c); d < nearest[i] {
				nearest[i] = d
			}
		}
	}
	return centroids
}

// sphericalKMeans refines centroids in place and returns each point's cluster.
func sphericalKMeans(units, centroids [][]float64, maxIterations int) []int {
	assign := make([]int, len(units))
	for i := range assign {
		assign[i] = -1
	}
	dim := len(units[0])

	for range maxIterations {
		changed := false
		for i, u := range units {
			if c := nearestCentroid(u, centroids); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, c := range assign {
			for d, v := range units[i] {
				sums[c][d] += v
			}
		}
		for c := range sums {
			// Empty or cancelling clusters keep their previous centroid.
			if u := unit(sums[c]); u != nil {
				centroids[c] = u
			}
		}
	}
	return assign
}

func nearestCentroid(u []float64, centroids [][]float64) int {
	best, bestSim := 0, math.Inf(-1)
	for c, centroid := range centroids {
		if s := dot(u, centroid); s > bestSim {
			best, bestSim = c, s
		}
	}
	return best
}
