package similarity_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/similarity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClusterIndexBuild(t *testing.T) {
	Convey("Given a corpus of 400 vectors", t, func() {
		entries := corpus(397, 7) // plus the three fixed entries

		Convey("When building a cluster index", func() {
			idx, err := similarity.NewClusterIndex(entries)

			Convey("Then k is ceil(sqrt(N)) over non-zero vectors and probes derive from k", func() {
				So(err, ShouldBeNil)
				So(idx.Len(), ShouldEqual, 400)
				So(idx.Clusters(), ShouldEqual, int(math.Ceil(math.Sqrt(399))))
				So(idx.Probes(), ShouldEqual, 2*int(math.Ceil(math.Sqrt(float64(idx.Clusters())))))
			})
		})

		Convey("When building twice from differently ordered input", func() {
			reversed := make([]similarity.Entry, len(entries))
			for i, e := range entries {
				reversed[len(entries)-1-i] = e
			}
			a, errA := similarity.NewClusterIndex(entries, similarity.WithProbes(2))
			b, errB := similarity.NewClusterIndex(reversed, similarity.WithProbes(2))

			Convey("Then approximate results are identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				q := similarity.Query{Vector: model.SkillVector{0.3, 0.6, 0.2, 0.9}, DistanceThreshold: 0.5, Limit: 20}
				ra, _ := a.Search(context.Background(), q)
				rb, _ := b.Search(context.Background(), q)
				So(ra, ShouldResemble, rb)
			})
		})

		Convey("When entries repeat an id", func() {
			dup := append([]similarity.Entry{}, entries[0], entries[0])
			_, err := similarity.NewClusterIndex(dup)

			Convey("Then ErrDuplicateID is returned", func() {
				So(errors.Is(err, similarity.ErrDuplicateID), ShouldBeTrue)
			})
		})

		Convey("When dimensions differ", func() {
			bad := append([]similarity.Entry{}, entries[:3]...)
			bad = append(bad, similarity.Entry{ID: "short", Vector: model.SkillVector{1, 2}})
			_, errCluster := similarity.NewClusterIndex(bad)
			_, errExact := similarity.NewExactIndex(bad)

			Convey("Then ErrDimensionMismatch is returned", func() {
				So(errors.Is(errCluster, similarity.ErrDimensionMismatch), ShouldBeTrue)
				So(errors.Is(errExact, similarity.ErrDimensionMismatch), ShouldBeTrue)
			})
		})

		Convey("When a query has the wrong dimension", func() {
			idx, _ := similarity.NewClusterIndex(entries)
			_, err := idx.Search(context.Background(), similarity.Query{Vector: model.SkillVector{1, 0}, DistanceThreshold: 1, Limit: 1})

			Convey("Then ErrDimensionMismatch is returned", func() {
				So(errors.Is(err, similarity.ErrDimensionMismatch), ShouldBeTrue)
			})
		})
	})
}

func TestClusterIndexApproximation(t *testing.T) {
	Convey("Given a cluster index probing a single cluster", t, func() {
		entries := corpus(200, 99)
		idx, err := similarity.NewClusterIndex(entries, similarity.WithProbes(1), similarity.WithMaxIterations(500))
		So(err, ShouldBeNil)
		exact, err := similarity.NewExactIndex(entries)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When querying with an indexed vector", func() {
			Convey("Then the vector itself is the first hit", func() {
				for _, e := range entries[:50] {
					if e.ID == "zero" {
						continue
					}
					got, err := idx.Search(ctx, similarity.Query{Vector: e.Vector, DistanceThreshold: 0.5, Limit: 3})
					So(err, ShouldBeNil)
					So(len(got), ShouldBeGreaterThan, 0)
					So(got[0].Distance, ShouldEqual, 0)
				}
			})
		})

		Convey("When comparing with the exact index", func() {
			q := similarity.Query{Vector: model.SkillVector{0.7, 0.2, 0.4, 0.1}, DistanceThreshold: 0.4, Limit: 1000}
			approx, _ := idx.Search(ctx, q)
			full, _ := exact.Search(ctx, q)

			Convey("Then approximate hits are a subset with identical distances", func() {
				byID := make(map[string]float64, len(full))
				for _, r := range full {
					byID[r.ID] = r.Distance
				}
				for _, r := range approx {
					d, ok := byID[r.ID]
					So(ok, ShouldBeTrue)
					So(r.Distance, ShouldEqual, d)
				}
				So(len(approx), ShouldBeLessThanOrEqualTo, len(full))
			})
		})
	})

	Convey("Given a corpus with only zero vectors", t, func() {
		entries := []similarity.Entry{
			{ID: "a", Region: "KR", Vector: model.SkillVector{0, 0, 0, 0}},
			{ID: "b", Region: "KR", Vector: model.SkillVector{0, 0, 0, 0}},
		}
		idx, err := similarity.NewClusterIndex(entries)

		Convey("Then it builds with no clusters and still answers queries", func() {
			So(err, ShouldBeNil)
			So(idx.Clusters(), ShouldEqual, 0)
			got, err := idx.Search(context.Background(), similarity.Query{Vector: model.SkillVector{1, 0, 0, 0}, DistanceThreshold: 2.1, Limit: 5})
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].Distance, ShouldEqual, 2)
		})
	})
}
