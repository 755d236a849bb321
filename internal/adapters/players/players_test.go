package players_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/gameradar/internal/adapters/players"
	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.ChangeEvent
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, e model.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a player store with a notifier", t, func() {
		ctx := context.Background()
		fixed := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
		n := &recordingNotifier{}
		s := players.NewMemoryStore(players.WithNotifier(n), players.WithClock(func() time.Time { return fixed }))

		Convey("When a player is written twice", func() {
			p := model.Player{ID: "p1", Nickname: "Faker", Region: " kr ", WinRate: 60, Champions: []model.ChampionStat{
				{Name: "Ahri"}, {Name: "Azir"}, {Name: "Orianna"}, {Name: "Syndra"},
			}}
			first, err := s.Upsert(ctx, p)
			So(err, ShouldBeNil)
			second, err := s.Upsert(ctx, p)
			So(err, ShouldBeNil)

			Convey("Then it is normalized and revisions increase", func() {
				So(first.Region, ShouldEqual, "KR")
				So(len(first.Champions), ShouldEqual, model.MaxChampions)
				So(first.Revision, ShouldEqual, 1)
				So(second.Revision, ShouldEqual, 2)
				So(second.UpdatedAt.Equal(fixed), ShouldBeTrue)
			})

			Convey("Then one notification per write carries the revision", func() {
				So(len(n.events), ShouldEqual, 2)
				So(n.events[0].PlayerID, ShouldEqual, "p1")
				So(n.events[1].Revision, ShouldEqual, 2)
				So(n.events[0].EventID, ShouldNotEqual, n.events[1].EventID)
			})

			Convey("Then reads return a copy", func() {
				got, err := s.Get(ctx, "p1")
				So(err, ShouldBeNil)
				got.Champions[0].Name = "changed"
				again, _ := s.Get(ctx, "p1")
				So(again.Champions[0].Name, ShouldEqual, "Ahri")
			})
		})

		Convey("When publishing fails", func() {
			n.err = errors.New("broker down")
			p, err := s.Upsert(ctx, model.Player{ID: "p2", Nickname: "x", Region: "NA"})

			Convey("Then the write still succeeds", func() {
				So(err, ShouldBeNil)
				So(p.Revision, ShouldEqual, 1)
				_, err := s.Get(ctx, "p2")
				So(err, ShouldBeNil)
			})
		})

		Convey("When listing", func() {
			for _, id := range []string{"c", "a", "b"} {
				_, _ = s.Upsert(ctx, model.Player{ID: id, Nickname: id, Region: "EU"})
			}
			list, err := s.List(ctx)
			So(err, ShouldBeNil)

			Convey("Then players are ordered by id", func() {
				So(len(list), ShouldEqual, 3)
				So(list[0].ID, ShouldEqual, "a")
				So(list[2].ID, ShouldEqual, "c")
				So(s.Count(), ShouldEqual, 3)
			})
		})

		Convey("When the id is missing or unknown", func() {
			_, err := s.Upsert(ctx, model.Player{Nickname: "x"})
			So(errors.Is(err, players.ErrInvalidPlayer), ShouldBeTrue)
			_, err = s.Get(ctx, "nobody")
			So(err, ShouldEqual, players.ErrNotFound)
		})
	})
}

func TestPublisher(t *testing.T) {
	Convey("Given a gochannel pub/sub with a subscriber", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ps := players.NewPubSub(16)
		defer ps.Close()
		msgs, err := ps.Subscribe(ctx, players.ChangeTopic)
		So(err, ShouldBeNil)

		pub := players.NewPublisher(ps, "")

		Convey("When a change is published", func() {
			event := model.ChangeEvent{EventID: "e-1", PlayerID: "p1", Revision: 3, TS: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)}
			So(pub.Notify(ctx, event), ShouldBeNil)

			Convey("Then the subscriber decodes the same event", func() {
				select {
				case msg := <-msgs:
					got, err := players.DecodeChange(msg)
					msg.Ack()
					So(err, ShouldBeNil)
					So(got.EventID, ShouldEqual, "e-1")
					So(got.PlayerID, ShouldEqual, "p1")
					So(got.Revision, ShouldEqual, 3)
					So(msg.UUID, ShouldEqual, "e-1")
					So(msg.Metadata.Get("player_id"), ShouldEqual, "p1")
				case <-time.After(2 * time.Second):
					So("no message received", ShouldBeEmpty)
				}
			})
		})
	})
}
