package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type storeFactory struct {
	name string
	open func(t *testing.T) repository.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) repository.Store {
			t.Helper()
			return repository.NewMemoryStore(context.Background())
		}},
		{name: "badger", open: func(t *testing.T) repository.Store {
			t.Helper()
			s, err := repository.NewBadgerStore(context.Background(), "", repository.WithInMemory())
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			return s
		}},
	}
}

var base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func snap(id, date, region string, score float64, rev uint64) model.AnalyticsSnapshot {
	return model.AnalyticsSnapshot{
		PlayerID:        id,
		CalculationDate: date,
		Nickname:        "nick-" + id,
		Game:            "lol",
		Region:          region,
		GamesPlayed:     100,
		Score:           model.ScoreBreakdown{CompositeScore: score},
		SkillVector:     model.SkillVector{0.1, 0.2, 0.3, 0.4},
		SourceRevision:  rev,
		LastUpdated:     base,
	}
}

func TestStore_UpsertAndRead(t *testing.T) {
	for _, f := range factories() {
		Convey("Given an empty "+f.name+" store", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			So(s.Count(ctx), ShouldEqual, 0)

			Convey("When a snapshot is upserted", func() {
				applied, err := s.Upsert(ctx, snap("p1", "2025-03-14", "kr", 50, 1))
				So(err, ShouldBeNil)
				So(applied, ShouldBeTrue)

				Convey("Then it can be read by key and as latest", func() {
					got, err := s.Get(ctx, "p1", "2025-03-14")
					So(err, ShouldBeNil)
					So(got.Region, ShouldEqual, "KR")
					So(got.Score.CompositeScore, ShouldEqual, 50)
					So(got.SkillVector, ShouldResemble, model.SkillVector{0.1, 0.2, 0.3, 0.4})
					So(got.LastUpdated.Equal(base), ShouldBeTrue)

					latest, err := s.Latest(ctx, "p1")
					So(err, ShouldBeNil)
					So(latest.CalculationDate, ShouldEqual, "2025-03-14")
					So(s.Count(ctx), ShouldEqual, 1)
				})

				Convey("Then unknown keys are not found", func() {
					_, err := s.Get(ctx, "p1", "2025-03-13")
					So(err, ShouldEqual, repository.ErrNotFound)
					_, err = s.Latest(ctx, "nobody")
					So(err, ShouldEqual, repository.ErrNotFound)
				})
			})

			Convey("When the same key is upserted twice", func() {
				_, err := s.Upsert(ctx, snap("p1", "2025-03-14", "KR", 50, 2))
				So(err, ShouldBeNil)

				Convey("Then an equal revision replaces it", func() {
					applied, err := s.Upsert(ctx, snap("p1", "2025-03-14", "KR", 60, 2))
					So(err, ShouldBeNil)
					So(applied, ShouldBeTrue)
					got, _ := s.Get(ctx, "p1", "2025-03-14")
					So(got.Score.CompositeScore, ShouldEqual, 60)
				})

				Convey("Then an older revision is ignored", func() {
					applied, err := s.Upsert(ctx, snap("p1", "2025-03-14", "KR", 10, 1))
					So(err, ShouldBeNil)
					So(applied, ShouldBeFalse)
					got, _ := s.Get(ctx, "p1", "2025-03-14")
					So(got.Score.CompositeScore, ShouldEqual, 50)
				})

				Convey("Then there is still one snapshot per key", func() {
					So(s.Count(ctx), ShouldEqual, 1)
				})
			})

			Convey("When snapshots exist for several dates", func() {
				_, _ = s.Upsert(ctx, snap("p1", "2025-03-14", "KR", 50, 1))
				_, _ = s.Upsert(ctx, snap("p1", "2025-03-12", "KR", 90, 1))

				Convey("Then latest is the most recent date", func() {
					latest, err := s.Latest(ctx, "p1")
					So(err, ShouldBeNil)
					So(latest.CalculationDate, ShouldEqual, "2025-03-14")
					So(latest.Score.CompositeScore, ShouldEqual, 50)
				})

				Convey("Then the leaderboard uses the latest snapshot", func() {
					e, err := s.Rank(ctx, "p1")
					So(err, ShouldBeNil)
					So(e.Score, ShouldEqual, 50)
				})
			})

			Convey("When the snapshot is invalid", func() {
				_, err := s.Upsert(ctx, snap("", "2025-03-14", "KR", 1, 1))
				So(errors.Is(err, repository.ErrInvalidSnapshot), ShouldBeTrue)
				_, err = s.Upsert(ctx, snap("p1", "14/03/2025", "KR", 1, 1))
				So(errors.Is(err, repository.ErrInvalidSnapshot), ShouldBeTrue)
			})
		})
	}
}

func TestStore_Leaderboard(t *testing.T) {
	for _, f := range factories() {
		Convey("Given a "+f.name+" store with tied scores", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			valorant := snap("c", "2025-03-14", "KR", 80, 1)
			valorant.Game = "valorant"
			for _, sn := range []model.AnalyticsSnapshot{
				snap("a", "2025-03-14", "KR", 80, 1),
				snap("b", "2025-03-14", "NA", 90, 1),
				valorant,
				snap("d", "2025-03-14", "EU", 70, 1),
			} {
				_, err := s.Upsert(ctx, sn)
				So(err, ShouldBeNil)
			}

			Convey("Then TopN orders by score and id with dense tie ranks", func() {
				top, err := s.TopN(ctx, 10, "", "")
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 4)
				So(top[0].PlayerID, ShouldEqual, "b")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].PlayerID, ShouldEqual, "a")
				So(top[2].PlayerID, ShouldEqual, "c")
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Rank, ShouldEqual, 2)
				So(top[3].Rank, ShouldEqual, 3)
			})

			Convey("Then TopN can be restricted to a region", func() {
				top, err := s.TopN(ctx, 10, "kr", "")
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 2)
				So(top[0].PlayerID, ShouldEqual, "a")
				So(top[1].PlayerID, ShouldEqual, "c")
			})

			Convey("Then TopN can be restricted to a game", func() {
				top, err := s.TopN(ctx, 10, "", "Valorant")
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].PlayerID, ShouldEqual, "c")
				So(top[0].Game, ShouldEqual, "valorant")
				So(top[0].Rank, ShouldEqual, 2)

				top, err = s.TopN(ctx, 10, "KR", "lol")
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].PlayerID, ShouldEqual, "a")

				top, err = s.TopN(ctx, 10, "", "dota")
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})

			Convey("Then TopN honours n", func() {
				top, err := s.TopN(ctx, 1, "", "")
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				_, err = s.TopN(ctx, 0, "", "")
				So(err, ShouldEqual, repository.ErrInvalidLimit)
			})

			Convey("Then a write is visible to the next read", func() {
				_, err := s.Upsert(ctx, snap("d", "2025-03-14", "EU", 99, 2))
				So(err, ShouldBeNil)
				e, err := s.Rank(ctx, "d")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
				So(e.Score, ShouldEqual, 99)
			})

			Convey("Then rank of an unknown player is not found", func() {
				_, err := s.Rank(ctx, "zzz")
				So(err, ShouldEqual, repository.ErrNotFound)
			})

			Convey("Then region stats aggregate the latest snapshots", func() {
				latest, err := s.LatestAll(ctx)
				So(err, ShouldBeNil)
				stats := repository.RegionStats(latest)
				So(len(stats), ShouldEqual, 3)
				So(stats[0].Region, ShouldEqual, "EU")
				So(stats[1].Region, ShouldEqual, "KR")
				So(stats[1].Players, ShouldEqual, 2)
				So(stats[1].AvgScore, ShouldEqual, 80)
				So(stats[1].TopPlayerID, ShouldEqual, "a")
				So(stats[1].TotalGames, ShouldEqual, 200)
			})
		})
	}
}

func TestStore_Candidates(t *testing.T) {
	for _, f := range factories() {
		Convey("Given a "+f.name+" store with players updated at different times", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			for i := 0; i < 6; i++ {
				sn := snap(fmt.Sprintf("p%d", i), "2025-03-14", []string{"KR", "NA"}[i%2], float64(i), 1)
				sn.GamesPlayed = i * 10
				sn.LastUpdated = base.Add(time.Duration(i) * time.Minute)
				_, err := s.Upsert(ctx, sn)
				So(err, ShouldBeNil)
			}

			Convey("When the filter admits fewer than the cap", func() {
				got, truncated, err := s.Candidates(ctx, model.Filter{Regions: []string{"kr"}, ExcludeID: "p0"}, 10)
				So(err, ShouldBeNil)
				So(truncated, ShouldBeFalse)
				So(len(got), ShouldEqual, 2)
				for _, c := range got {
					So(c.Region, ShouldEqual, "KR")
					So(c.PlayerID, ShouldNotEqual, "p0")
				}
			})

			Convey("When more candidates pass than the cap", func() {
				got, truncated, err := s.Candidates(ctx, model.Filter{MinActivity: 10}, 3)
				So(err, ShouldBeNil)
				So(truncated, ShouldBeTrue)
				So(len(got), ShouldEqual, 3)
				So(got[0].PlayerID, ShouldEqual, "p5")
				So(got[1].PlayerID, ShouldEqual, "p4")
				So(got[2].PlayerID, ShouldEqual, "p3")
			})

			Convey("When the filter names a game", func() {
				got, _, err := s.Candidates(ctx, model.Filter{Game: "LOL"}, 10)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 6)
				got, _, err = s.Candidates(ctx, model.Filter{Game: "valorant"}, 10)
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})

			Convey("When the cap is invalid", func() {
				_, _, err := s.Candidates(ctx, model.Filter{}, 0)
				So(err, ShouldEqual, repository.ErrInvalidLimit)
			})
		})
	}
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	for _, f := range factories() {
		Convey("Given concurrent writers on a "+f.name+" store", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 25; i++ {
						_, _ = s.Upsert(ctx, snap(fmt.Sprintf("p%d", i), "2025-03-14", "KR", float64(w), uint64(w)))
						_, _ = s.TopN(ctx, 5, "", "")
					}
				}(w)
			}
			wg.Wait()

			Convey("Then every player has exactly one snapshot for the date", func() {
				So(s.Count(ctx), ShouldEqual, 25)
				latest, err := s.LatestAll(ctx)
				So(err, ShouldBeNil)
				So(len(latest), ShouldEqual, 25)
				for _, l := range latest {
					So(l.SourceRevision, ShouldEqual, 7)
				}
			})
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for _, f := range factories() {
		Convey("Given a closed "+f.name+" store", t, func() {
			s := f.open(t)
			So(s.Close(), ShouldBeNil)

			Convey("Then writes fail with ErrStoreClosed", func() {
				_, err := s.Upsert(context.Background(), snap("p1", "2025-03-14", "KR", 1, 1))
				So(err, ShouldEqual, repository.ErrStoreClosed)
			})
		})
	}
}
