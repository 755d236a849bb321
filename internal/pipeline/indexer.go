package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/domain/similarity"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Indexer rebuilds the similarity index from the analytics store and swaps
// the result into a Holder.
type Indexer struct {
	store  repository.Store
	holder *similarity.Holder
	opts   []similarity.Option
	group  singleflight.Group
	logger logger.Logger
}

// NewIndexer creates an indexer; opts are passed to every ClusterIndex build.
func NewIndexer(store repository.Store, holder *similarity.Holder, opts ...similarity.Option) *Indexer {
	return &Indexer{
		store:  store,
		holder: holder,
		opts:   opts,
		logger: logger.Get().Named("indexer"),
	}
}

// Holder returns the holder generations are published to.
func (ix *Indexer) Holder() *similarity.Holder { return ix.holder }

// Rebuild builds a new generation from every player's latest snapshot.
// Concurrent calls share one build. On failure the previous generation
// stays live.
func (ix *Indexer) Rebuild(ctx context.Context) (*similarity.Generation, error) {
	v, err, _ := ix.group.Do("rebuild", func() (interface{}, error) {
		return ix.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*similarity.Generation), nil
}

func (ix *Indexer) rebuild(ctx context.Context) (*similarity.Generation, error) {
	start := time.Now()
	elapsed := func() float64 { return float64(time.Since(start).Microseconds()) / 1000 }

	snaps, err := ix.store.LatestAll(ctx)
	if err != nil {
		metrics.RecordIndexRebuild("failed", elapsed())
		return nil, fmt.Errorf("%w: load snapshots: %w", ErrRebuild, err)
	}

	entries := make([]similarity.Entry, 0, len(snaps))
	for i := range snaps {
		if len(snaps[i].SkillVector) == 0 {
			continue
		}
		entries = append(entries, similarity.EntryFromSnapshot(&snaps[i]))
	}

	idx, err := similarity.NewClusterIndex(entries, ix.opts...)
	if err != nil {
		metrics.RecordIndexRebuild("failed", elapsed())
		metrics.RecordErrorByComponent("indexer", "build_error")
		ix.logger.Error(ctx, "index build failed", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRebuild, err)
	}

	gen := ix.holder.Publish(idx)
	metrics.RecordIndexRebuild("success", elapsed())
	metrics.UpdateIndexGeneration(gen.Number, gen.Size, gen.Clusters)
	ix.logger.Info(ctx, "index generation published",
		logger.Any("generation", gen.Number),
		logger.Int("vectors", gen.Size),
		logger.Int("clusters", gen.Clusters),
		logger.Duration("took", time.Since(start)),
	)
	return gen, nil
}
