package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/gameradar/internal/adapters/mq/queue"
	worker "github.com/okian/gameradar/internal/adapters/mq/worker"
	model "github.com/okian/gameradar/internal/domain/model"
	logging "github.com/okian/gameradar/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 128)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

func (mq *mockQueue) addEvent(playerID string) {
	mq.eventChan <- model.ChangeEvent{EventID: "evt-" + playerID, PlayerID: playerID, Revision: 1, TS: time.Now()}
}

type mockRecomputer struct {
	mu     sync.Mutex
	calls  map[string]int
	errors map[string]error
}

func newMockRecomputer() *mockRecomputer {
	return &mockRecomputer{calls: make(map[string]int), errors: make(map[string]error)}
}

func (m *mockRecomputer) Recompute(ctx context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[playerID]++
	return m.errors[playerID]
}

func (m *mockRecomputer) setError(playerID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[playerID] = err
}

func (m *mockRecomputer) count(playerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[playerID]
}

func (m *mockRecomputer) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// gatedRecomputer holds every recomputation until release is closed.
type gatedRecomputer struct {
	*mockRecomputer
	entered chan string
	release chan struct{}
}

func (g gatedRecomputer) Recompute(ctx context.Context, playerID string) error {
	g.entered <- playerID
	<-g.release
	return g.mockRecomputer.Recompute(ctx, playerID)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		rec := newMockRecomputer()
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a change event arrives", func() {
			q.addEvent("player-1")

			convey.Convey("Then the player is recomputed", func() {
				convey.So(waitFor(func() bool { return rec.count("player-1") == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When recomputation fails for one player", func() {
			rec.setError("player-bad", errors.New("boom"))
			q.addEvent("player-bad")
			q.addEvent("player-good")

			convey.Convey("Then the worker keeps processing later events", func() {
				convey.So(waitFor(func() bool { return rec.count("player-good") == 1 }), convey.ShouldBeTrue)
				convey.So(rec.count("player-bad"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully and a second call is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker whose queue closes", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, newMockRecomputer())
		go w.Run(context.Background())
		_ = q.Close()

		convey.Convey("Then Run returns", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		rec := newMockRecomputer()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, rec)

			convey.Convey("Then it falls back to a CPU-derived size", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When many events are processed concurrently", func() {
			pool := worker.NewPool(4, q, rec)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			const eventCount = 100
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for j := 0; j < eventCount/5; j++ {
						q.addEvent(fmt.Sprintf("player-%d-%d", id, j))
					}
				}(i)
			}
			wg.Wait()

			convey.Convey("Then every event is recomputed once", func() {
				convey.So(waitFor(func() bool { return rec.total() == eventCount }), convey.ShouldBeTrue)
			})

			convey.Convey("Then shutdown closes the queue and stops the workers", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When served under a supervisor context", func() {
			pool := worker.NewPool(2, q, rec)
			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- pool.Serve(ctx) }()

			q.addEvent("player-served")
			convey.So(waitFor(func() bool { return rec.count("player-served") == 1 }), convey.ShouldBeTrue)
			cancel()

			convey.Convey("Then Serve returns the context error after draining", func() {
				select {
				case err := <-errCh:
					convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				case <-time.After(2 * time.Second):
					convey.So("serve did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})

	convey.Convey("Given a served pool with events still queued when its context ends", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		rec := gatedRecomputer{
			mockRecomputer: newMockRecomputer(),
			entered:        make(chan string, 16),
			release:        make(chan struct{}),
		}
		pool := worker.NewPool(1, q, rec)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- pool.Serve(ctx) }()

		const queued = 5
		for i := 0; i < queued; i++ {
			err := q.Enqueue(context.Background(), model.ChangeEvent{
				EventID: fmt.Sprintf("evt-%d", i), PlayerID: fmt.Sprintf("player-%d", i), Revision: 1, TS: time.Now(),
			})
			convey.So(err, convey.ShouldBeNil)
		}

		select {
		case <-rec.entered:
		case <-time.After(2 * time.Second):
			convey.So("no event reached the worker", convey.ShouldBeEmpty)
		}
		cancel()
		close(rec.release)

		convey.Convey("Then Serve returns only after every queued event is recomputed", func() {
			select {
			case err := <-errCh:
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			case <-time.After(5 * time.Second):
				convey.So("serve did not return", convey.ShouldBeEmpty)
			}
			convey.So(rec.total(), convey.ShouldEqual, queued)
			convey.So(q.Len(context.Background()), convey.ShouldEqual, 0)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})
}
