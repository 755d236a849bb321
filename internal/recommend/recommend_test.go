package recommend_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/gameradar/internal/adapters/cache"
	"github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/similarity"
	"github.com/okian/gameradar/internal/recommend"
	"github.com/okian/gameradar/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type failingSearcher struct{ size int }

func (f failingSearcher) Search(context.Context, similarity.Query) ([]similarity.Result, error) {
	return nil, errors.New("index corrupted")
}

func (f failingSearcher) Len() int { return f.size }

// latePool hands over its candidate pool only once the caller's deadline has
// passed, so the exact scan starts out of time.
type latePool struct {
	repository.Store
	pool []model.AnalyticsSnapshot
}

func (l latePool) Candidates(ctx context.Context, _ model.Filter, _ int) ([]model.AnalyticsSnapshot, bool, error) {
	<-ctx.Done()
	return l.pool, false, nil
}

func snapshot(id, region string, games int, vec ...float64) model.AnalyticsSnapshot {
	return model.AnalyticsSnapshot{
		PlayerID:        id,
		CalculationDate: "2025-03-14",
		Nickname:        "nick-" + id,
		Region:          region,
		GamesPlayed:     games,
		WinRate:         55,
		KDA:             3,
		SkillVector:     vec,
		SourceRevision:  1,
	}
}

func seed(ctx context.Context, store repository.Store, snaps ...model.AnalyticsSnapshot) {
	for _, s := range snaps {
		_, err := store.Upsert(ctx, s)
		So(err, ShouldBeNil)
	}
}

func publish(ctx context.Context, store repository.Store, holder *similarity.Holder, opts ...similarity.Option) *similarity.Generation {
	all, err := store.LatestAll(ctx)
	So(err, ShouldBeNil)
	entries := make([]similarity.Entry, 0, len(all))
	for i := range all {
		entries = append(entries, similarity.EntryFromSnapshot(&all[i]))
	}
	idx, err := similarity.NewClusterIndex(entries, opts...)
	So(err, ShouldBeNil)
	return holder.Publish(idx)
}

func ptr(f float64) *float64 { return &f }

func TestRecommend(t *testing.T) {
	Convey("Given players with skill vectors and a live index", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		holder := similarity.NewHolder()

		seed(ctx, store,
			snapshot("src", "NA", 50, 0.5, 0.7, 0.3, 0.8),
			snapshot("twin", "NA", 40, 0.5, 0.7, 0.3, 0.8),
			snapshot("close", "EU", 30, 0.6, 0.7, 0.3, 0.7),
			snapshot("far", "NA", 20, 1, 0, 0, 0),
			snapshot("rookie", "NA", 2, 0.5, 0.7, 0.3, 0.8),
		)
		gen := publish(ctx, store, holder, similarity.WithProbes(100))
		svc := recommend.NewService(store, holder, nil, recommend.Options{})

		Convey("When recommending for the source player", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "src", SimilarityThreshold: ptr(0.5)})
			So(err, ShouldBeNil)

			Convey("Then identical vectors score 100 and the source is excluded", func() {
				So(resp.Source.ID, ShouldEqual, "src")
				So(resp.Metadata.Method, ShouldEqual, recommend.MethodIndex)
				So(resp.Metadata.IndexGeneration, ShouldEqual, gen.Number)
				So(len(resp.Recommendations), ShouldBeGreaterThan, 0)
				first := resp.Recommendations[0]
				So(first.Player.ID, ShouldEqual, "rookie")
				So(first.Distance, ShouldAlmostEqual, 0, 1e-9)
				So(first.MatchScore, ShouldEqual, 100)
				for _, r := range resp.Recommendations {
					So(r.Player.ID, ShouldNotEqual, "src")
				}
			})

			Convey("Then results are ordered by distance and respect the threshold", func() {
				for i := 1; i < len(resp.Recommendations); i++ {
					So(resp.Recommendations[i].Distance, ShouldBeGreaterThanOrEqualTo, resp.Recommendations[i-1].Distance)
				}
				for _, r := range resp.Recommendations {
					So(r.Distance, ShouldBeLessThan, 0.5)
				}
				So(resp.Metadata.Count, ShouldEqual, len(resp.Recommendations))
			})
		})

		Convey("When filters are applied", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{
				SourceID:            "src",
				Regions:             []string{" na "},
				MinActivity:         10,
				SimilarityThreshold: ptr(-1),
			})
			So(err, ShouldBeNil)

			Convey("Then only matching players come back", func() {
				ids := make([]string, 0, len(resp.Recommendations))
				for _, r := range resp.Recommendations {
					ids = append(ids, r.Player.ID)
				}
				So(ids, ShouldResemble, []string{"twin", "far"})
				So(resp.Metadata.Filters.Regions, ShouldResemble, []string{"NA"})
				So(resp.Metadata.Filters.MinActivity, ShouldEqual, 10)
			})

			Convey("Then the less similar player scores lower", func() {
				So(resp.Recommendations[0].MatchScore, ShouldEqual, 100)
				So(resp.Recommendations[1].MatchScore, ShouldBeLessThan, 100)
			})
		})

		Convey("When the limit is applied", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "src", Limit: 1, SimilarityThreshold: ptr(-1)})
			So(err, ShouldBeNil)
			So(len(resp.Recommendations), ShouldEqual, 1)
			So(resp.Metadata.Filters.Limit, ShouldEqual, 1)
		})

		Convey("When the defaults are used", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "src"})
			So(err, ShouldBeNil)
			So(resp.Metadata.Filters.Limit, ShouldEqual, 10)
			So(resp.Metadata.Filters.SimilarityThreshold, ShouldEqual, 0.7)
		})
	})
}

func TestRecommendScenarioC(t *testing.T) {
	Convey("Given two orthogonal players", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store,
			snapshot("a", "NA", 10, 1, 0, 0, 0),
			snapshot("b", "NA", 10, 0, 1, 0, 0),
		)
		svc := recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{})

		Convey("Then the match is at distance 1 with score 50", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "a", SimilarityThreshold: ptr(-1)})
			So(err, ShouldBeNil)
			So(len(resp.Recommendations), ShouldEqual, 1)
			So(resp.Recommendations[0].Distance, ShouldAlmostEqual, 1, 1e-9)
			So(resp.Recommendations[0].MatchScore, ShouldEqual, 50)
		})

		Convey("Then a threshold of 0 excludes distance 1", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "a", SimilarityThreshold: ptr(0)})
			So(err, ShouldBeNil)
			So(resp.Recommendations, ShouldBeEmpty)
			So(resp.Recommendations, ShouldNotBeNil)
		})

		Convey("Then a configured default of 0 is kept rather than replaced", func() {
			zero := recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{DefaultThreshold: ptr(0)})
			resp, err := zero.Recommend(ctx, recommend.Request{SourceID: "a"})
			So(err, ShouldBeNil)
			So(resp.Metadata.Filters.SimilarityThreshold, ShouldEqual, 0)
			So(resp.Recommendations, ShouldBeEmpty)

			loose := recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{DefaultThreshold: ptr(-1)})
			resp, err = loose.Recommend(ctx, recommend.Request{SourceID: "a"})
			So(err, ShouldBeNil)
			So(len(resp.Recommendations), ShouldEqual, 1)
		})
	})
}

func TestIndexFallbackEquivalence(t *testing.T) {
	Convey("Given a larger population", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		regions := []string{"NA", "EU", "KR"}
		for i := 0; i < 120; i++ {
			f := float64(i)
			seed(ctx, store, snapshot(fmt.Sprintf("p%03d", i), regions[i%3], i%40,
				float64(i%7)/7, float64(i%11)/11, float64(i%5)/5, 0.5+f/400))
		}

		indexed := similarity.NewHolder()
		publish(ctx, store, indexed, similarity.WithProbes(1000))
		withIndex := recommend.NewService(store, indexed, nil, recommend.Options{MaxLimit: 200})
		fallback := recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{MaxLimit: 200})

		requests := []recommend.Request{
			{SourceID: "p010", Limit: 200, SimilarityThreshold: ptr(0)},
			{SourceID: "p011", Limit: 15, Regions: []string{"EU"}, SimilarityThreshold: ptr(0.5)},
			{SourceID: "p099", Limit: 50, MinActivity: 20, SimilarityThreshold: ptr(0.9)},
		}

		Convey("Then both paths return identical recommendations", func() {
			for _, req := range requests {
				a, err := withIndex.Recommend(ctx, req)
				So(err, ShouldBeNil)
				b, err := fallback.Recommend(ctx, req)
				So(err, ShouldBeNil)
				So(a.Metadata.Method, ShouldEqual, recommend.MethodIndex)
				So(b.Metadata.Method, ShouldEqual, recommend.MethodFallback)
				So(a.Recommendations, ShouldResemble, b.Recommendations)
			}
		})
	})
}

func TestRecommendDegradation(t *testing.T) {
	Convey("Given an index that always fails", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store,
			snapshot("a", "NA", 10, 1, 0, 0, 0),
			snapshot("b", "NA", 10, 1, 0.1, 0, 0),
		)
		holder := similarity.NewHolder()
		holder.Publish(failingSearcher{size: 2})
		svc := recommend.NewService(store, holder, nil, recommend.Options{BreakerFailureThreshold: 2, BreakerTimeout: time.Hour})

		Convey("Then every request falls back and the breaker opens", func() {
			for i := 0; i < 4; i++ {
				resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "a"})
				So(err, ShouldBeNil)
				So(resp.Metadata.Method, ShouldEqual, recommend.MethodFallback)
				So(len(resp.Recommendations), ShouldEqual, 1)
			}
			So(svc.BreakerState(), ShouldEqual, "open")
		})
	})

	Convey("Given a fallback pool over the candidate cap", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		for i := 0; i < 10; i++ {
			seed(ctx, store, snapshot(fmt.Sprintf("p%d", i), "NA", 10, 1, float64(i)/10, 0, 0))
		}
		svc := recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{FallbackCandidateCap: 4})

		Convey("Then the metadata reports truncation", func() {
			resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "p0", SimilarityThreshold: ptr(-1)})
			So(err, ShouldBeNil)
			So(resp.Metadata.Truncated, ShouldBeTrue)
			So(resp.Metadata.CandidatePool, ShouldEqual, 4)
		})
	})
}

func TestRecommendByGame(t *testing.T) {
	Convey("Given players of two games with identical vectors", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		for _, s := range []struct{ id, game string }{
			{"src", "lol"}, {"lol-1", "lol"}, {"lol-2", "LoL"}, {"val-1", "valorant"}, {"val-2", "valorant"},
		} {
			snap := snapshot(s.id, "NA", 10, 0.4, 0.6, 0.2, 0.9)
			snap.Game = s.game
			seed(ctx, store, snap)
		}
		indexed := similarity.NewHolder()
		publish(ctx, store, indexed, similarity.WithProbes(100))
		withIndex := recommend.NewService(store, indexed, nil, recommend.Options{})
		services := []struct {
			method string
			svc    *recommend.Service
		}{
			{recommend.MethodIndex, withIndex},
			{recommend.MethodFallback, recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{})},
		}

		for _, tc := range services {
			method, svc := tc.method, tc.svc
			Convey("When the "+method+" path is asked for one game", func() {
				resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "src", Game: " LOL "})
				So(err, ShouldBeNil)

				Convey("Then only players of that game are recommended", func() {
					So(resp.Metadata.Method, ShouldEqual, method)
					So(resp.Metadata.Filters.Game, ShouldEqual, "lol")
					ids := make([]string, 0, len(resp.Recommendations))
					for _, r := range resp.Recommendations {
						ids = append(ids, r.Player.ID)
					}
					So(ids, ShouldResemble, []string{"lol-1", "lol-2"})
				})
			})
		}

		Convey("When no game is named", func() {
			resp, err := withIndex.Recommend(ctx, recommend.Request{SourceID: "src"})
			So(err, ShouldBeNil)
			So(len(resp.Recommendations), ShouldEqual, 4)
		})

		Convey("When the game name is too long", func() {
			_, err := withIndex.Recommend(ctx, recommend.Request{SourceID: "src", Game: strings.Repeat("g", 65)})
			So(errors.Is(err, recommend.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestRecommendErrors(t *testing.T) {
	Convey("Given a service over a small store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		seed(ctx, store,
			snapshot("a", "NA", 10, 1, 0, 0, 0),
			snapshot("novec", "NA", 10),
		)
		svc := recommend.NewService(store, similarity.NewHolder(), nil, recommend.Options{MaxLimit: 20})

		Convey("Then invalid requests are validation errors", func() {
			cases := []recommend.Request{
				{},
				{SourceID: "a", Limit: -1},
				{SourceID: "a", Limit: 21},
				{SourceID: "a", MinActivity: -5},
				{SourceID: "a", SimilarityThreshold: ptr(1.5)},
			}
			for _, req := range cases {
				_, err := svc.Recommend(ctx, req)
				So(errors.Is(err, recommend.ErrValidation), ShouldBeTrue)
			}
		})

		Convey("Then unknown or vectorless sources are not found", func() {
			_, err := svc.Recommend(ctx, recommend.Request{SourceID: "ghost"})
			So(errors.Is(err, recommend.ErrNotFound), ShouldBeTrue)
			_, err = svc.Recommend(ctx, recommend.Request{SourceID: "novec"})
			So(errors.Is(err, recommend.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then an expired deadline is a timeout", func() {
			expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
			defer cancel()
			_, err := svc.Recommend(expired, recommend.Request{SourceID: "a"})
			So(errors.Is(err, recommend.ErrTimeout), ShouldBeTrue)
		})

		Convey("Then a closed store makes the service unavailable", func() {
			So(store.Close(), ShouldBeNil)
			_, err := svc.Recommend(ctx, recommend.Request{SourceID: "a"})
			So(errors.Is(err, recommend.ErrServiceUnavailable), ShouldBeTrue)
		})

		Reset(func() { _ = store.Close() })
	})

	Convey("Given a large fallback pool that is ready only after the deadline", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store, snapshot("a", "NA", 10, 1, 0, 0, 0))

		const size = 200_000
		pool := make([]model.AnalyticsSnapshot, size)
		for i := range pool {
			pool[i] = snapshot(fmt.Sprintf("c%06d", i), "NA", 10, 1, float64(i%97)/97, 0, 0)
		}
		svc := recommend.NewService(latePool{Store: store, pool: pool}, similarity.NewHolder(), nil,
			recommend.Options{Timeout: 30 * time.Millisecond, FallbackCandidateCap: size})

		resp, err := svc.Recommend(ctx, recommend.Request{SourceID: "a", SimilarityThreshold: ptr(-1)})

		Convey("Then the scan stops with a timeout and nothing partial", func() {
			So(errors.Is(err, recommend.ErrTimeout), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(resp.Recommendations, ShouldBeEmpty)
			So(resp.Metadata.Count, ShouldEqual, 0)
			So(resp.Source.ID, ShouldEqual, "")
		})
	})
}

func TestRecommendCache(t *testing.T) {
	Convey("Given a service with a memory cache", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store,
			snapshot("a", "NA", 10, 1, 0, 0, 0),
			snapshot("b", "NA", 10, 1, 0.2, 0, 0),
		)
		holder := similarity.NewHolder()
		publish(ctx, store, holder)
		c, err := cache.NewMemory(100)
		So(err, ShouldBeNil)
		defer c.Close()
		svc := recommend.NewService(store, holder, c, recommend.Options{CacheTTL: time.Minute})
		req := recommend.Request{SourceID: "a"}

		first, err := svc.Recommend(ctx, req)
		So(err, ShouldBeNil)
		second, err := svc.Recommend(ctx, req)
		So(err, ShouldBeNil)

		Convey("Then the repeat is served from cache", func() {
			So(first.Metadata.Cached, ShouldBeFalse)
			So(second.Metadata.Cached, ShouldBeTrue)
			So(second.Recommendations, ShouldResemble, first.Recommendations)
		})

		Convey("Then another game is a separate cache entry", func() {
			other := recommend.Request{SourceID: "a", Game: "valorant"}
			miss, err := svc.Recommend(ctx, other)
			So(err, ShouldBeNil)
			So(miss.Metadata.Cached, ShouldBeFalse)
			So(miss.Recommendations, ShouldBeEmpty)

			hit, err := svc.Recommend(ctx, other)
			So(err, ShouldBeNil)
			So(hit.Metadata.Cached, ShouldBeTrue)
			So(hit.Metadata.Filters.Game, ShouldEqual, "valorant")
		})

		Convey("Then a new generation misses the cache", func() {
			publish(ctx, store, holder)
			third, err := svc.Recommend(ctx, req)
			So(err, ShouldBeNil)
			So(third.Metadata.Cached, ShouldBeFalse)
			So(third.Metadata.IndexGeneration, ShouldEqual, first.Metadata.IndexGeneration+1)
		})
	})
}
