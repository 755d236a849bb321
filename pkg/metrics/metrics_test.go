package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a dedicated registry and custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithPrometheusRegistry(registry),
				WithNamespace("test"),
				WithSubsystem("radar"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
			)

			Convey("Then the metrics are registered under the custom namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.recomputeTotal.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_radar_recompute_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.recomputeTotal)
			RecordRecompute(1.5)
			RecordRecompute(2.5)

			Convey("Then the recompute counter advances", func() {
				So(testutil.ToFloat64(globalManager.recomputeTotal), ShouldEqual, before+2)
			})
		})

		Convey("When recording labelled counters", func() {
			before := testutil.ToFloat64(globalManager.fallbacks.WithLabelValues("index_unavailable"))
			RecordFallback("index_unavailable")

			Convey("Then the labelled series advances", func() {
				So(testutil.ToFloat64(globalManager.fallbacks.WithLabelValues("index_unavailable")), ShouldEqual, before+1)
			})
		})

		Convey("When publishing index generation", func() {
			UpdateIndexGeneration(7, 120, 11)

			Convey("Then the gauges reflect it", func() {
				So(testutil.ToFloat64(globalManager.indexGeneration), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.indexSize), ShouldEqual, 120)
				So(testutil.ToFloat64(globalManager.indexClusters), ShouldEqual, 11)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordRecomputeFailure("validation")
				RecordSnapshotUpserted()
				RecordSnapshotSkipped()
				RecordNotification("enqueued")
				RecordFullRefresh("ok", 10, 0.2)
				RecordIndexRebuild("ok", 3)
				RecordSearchLatency("index", 0.3)
				RecordRecommendation("fallback")
				UpdateBreakerState(2)
				RecordCacheLookup("miss")
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				RecordQueueEnqueueError("full")
				UpdateWorkerCount(4)
				UpdateTotalPlayers(12)
				RecordHTTPRequest("leaderboard", "GET", "200", 1.2)
				RecordErrorByComponent("store", "not_found")
			}, ShouldNotPanic)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
