package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/okian/gameradar/internal/adapters/players"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Report summarizes one full refresh.
type Report struct {
	Date       string        `json:"date"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Generation uint64        `json:"index_generation,omitempty"`
}

// Refresher recomputes every player for the current date. It is the only
// recovery path for players whose reactive recomputation failed.
type Refresher struct {
	players    players.Reader
	recomputer *Recomputer
	indexer    *Indexer
	limiter    *rate.Limiter
	group      singleflight.Group
	logger     logger.Logger
}

// NewRefresher creates a refresher recomputing at most perSecond players per
// second; perSecond <= 0 disables throttling. indexer may be nil.
func NewRefresher(src players.Reader, recomputer *Recomputer, indexer *Indexer, perSecond float64) *Refresher {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	return &Refresher{
		players:    src,
		recomputer: recomputer,
		indexer:    indexer,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Get().Named("refresh"),
	}
}

// FullRefresh recomputes every player, then rebuilds the index. Per-player
// failures are counted in the report, not returned. Concurrent calls share
// one run.
func (r *Refresher) FullRefresh(ctx context.Context) (Report, error) {
	v, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		return r.run(ctx)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (r *Refresher) run(ctx context.Context) (Report, error) {
	start := time.Now()
	// One date for the whole run, from the same clock the snapshots use.
	report := Report{Date: r.recomputer.Today()}

	list, err := r.players.List(ctx)
	if err != nil {
		metrics.RecordFullRefresh("failed", 0, time.Since(start).Seconds())
		return report, fmt.Errorf("list players: %w", err)
	}

	for i := range list {
		if err := r.limiter.Wait(ctx); err != nil {
			metrics.RecordFullRefresh("cancelled", report.Processed, time.Since(start).Seconds())
			return report, fmt.Errorf("full refresh interrupted after %d players: %w", report.Processed, err)
		}
		report.Processed++
		if err := r.recomputer.RecomputePlayer(ctx, &list[i], report.Date); err != nil {
			report.Failed++
		}
	}

	if r.indexer != nil {
		gen, err := r.indexer.Rebuild(ctx)
		if err != nil {
			r.logger.Warn(ctx, "index rebuild after full refresh failed", logger.Error(err))
		} else {
			report.Generation = gen.Number
		}
	}

	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()
	metrics.RecordFullRefresh("success", report.Processed, report.Duration.Seconds())
	r.logger.Info(ctx, "full refresh finished",
		logger.String("date", report.Date),
		logger.Int("processed", report.Processed),
		logger.Int("failed", report.Failed),
		logger.Duration("took", report.Duration),
	)
	return report, nil
}
