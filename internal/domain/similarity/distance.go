// Package similarity provides cosine-distance search over skill vectors:
// an approximate clustered index and an exact scan sharing one contract.
package similarity

import "math"

const (
	maxDistance   = 2.0
	maxMatchScore = 100.0
)

// CosineDistance returns 1 - cos(a,b) clamped to [0,2].
// It is 2 when either vector has zero norm and exactly 0 for v against itself.
func CosineDistance(a, b []float64) float64 {
	return cosineDistance(a, b, squaredNorm(a), squaredNorm(b))
}

// cosineDistance uses precomputed squared norms. The denominator is
// sqrt(na*nb) so that a vector against itself yields exactly 1 - 1.
func cosineDistance(a, b []float64, na, nb float64) float64 {
	if na == 0 || nb == 0 || len(a) != len(b) {
		return maxDistance
	}
	cos := dot(a, b) / math.Sqrt(na*nb)
	if math.IsNaN(cos) {
		return maxDistance
	}
	cos = math.Max(-1, math.Min(1, cos))
	return math.Max(0, math.Min(maxDistance, 1-cos))
}

// MatchScore maps a distance onto a 0-100 match percentage, strictly
// decreasing in distance over [0,2].
func MatchScore(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	s := (maxDistance - distance) / maxDistance * maxMatchScore
	return math.Max(0, math.Min(maxMatchScore, s))
}

// RoundedMatchScore is MatchScore rounded to the nearest integer.
func RoundedMatchScore(distance float64) int {
	return int(math.Round(MatchScore(distance)))
}

// DistanceThreshold converts a minimum cosine similarity in [-1,1] to the
// exclusive distance bound used by queries.
func DistanceThreshold(minSimilarity float64) float64 {
	return 1 - minSimilarity
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func squaredNorm(v []float64) float64 {
	return dot(v, v)
}

// unit returns v scaled to unit length, or nil for a zero vector.
func unit(v []float64) []float64 {
	n2 := squaredNorm(v)
	if n2 == 0 {
		return nil
	}
	inv := 1 / math.Sqrt(n2)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
