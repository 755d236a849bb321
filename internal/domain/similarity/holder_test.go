package similarity_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/okian/gameradar/internal/domain/similarity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHolder(t *testing.T) {
	Convey("Given an empty holder", t, func() {
		h := similarity.NewHolder()

		Convey("When reading the current generation", func() {
			_, err := h.Current()

			Convey("Then the index is unavailable", func() {
				So(errors.Is(err, similarity.ErrIndexUnavailable), ShouldBeTrue)
			})
		})

		Convey("When publishing generations", func() {
			idx, err := similarity.NewClusterIndex(corpus(97, 3))
			So(err, ShouldBeNil)
			g1 := h.Publish(idx)
			exact, _ := similarity.NewExactIndex(corpus(10, 4))
			g2 := h.Publish(exact)

			Convey("Then numbers increase and the last one is live", func() {
				So(g1.Number, ShouldEqual, 1)
				So(g1.Size, ShouldEqual, 100)
				So(g1.Clusters, ShouldEqual, idx.Clusters())
				So(g2.Number, ShouldEqual, 2)
				So(g2.Clusters, ShouldEqual, 0)
				cur, err := h.Current()
				So(err, ShouldBeNil)
				So(cur, ShouldEqual, g2)
			})

			Convey("Then Reset makes the index unavailable again", func() {
				h.Reset()
				_, err := h.Current()
				So(errors.Is(err, similarity.ErrIndexUnavailable), ShouldBeTrue)
			})
		})

		Convey("When readers race a publisher", func() {
			exact, _ := similarity.NewExactIndex(corpus(5, 5))
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 200 {
						if g, err := h.Current(); err == nil && g.Searcher == nil {
							panic("published generation without searcher")
						}
					}
				}()
			}
			for range 50 {
				h.Publish(exact)
			}
			wg.Wait()

			Convey("Then every generation observed is complete", func() {
				cur, err := h.Current()
				So(err, ShouldBeNil)
				So(cur.Number, ShouldEqual, 50)
			})
		})
	})
}
