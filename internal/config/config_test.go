package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/gameradar/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.DefaultResultCap, convey.ShouldBeLessThanOrEqualTo, cfg.MaxResultCap)
			convey.So(cfg.DefaultSimilarityThreshold, convey.ShouldEqual, 0.7)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the duration helpers convert units", func() {
			convey.So(cfg.IndexRebuildInterval(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.FullRefreshInterval(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.BreakerTimeout(), convey.ShouldEqual, 30*time.Second)
		})
	})
}
