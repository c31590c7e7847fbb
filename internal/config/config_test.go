package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/fedrec/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
			convey.So(cfg.QuorumPolicy, convey.ShouldEqual, "quorum")
			convey.So(cfg.QuorumSize, convey.ShouldEqual, 2)
			convey.So(cfg.TrustSmoothing, convey.ShouldEqual, 0.9)
			convey.So(cfg.InitialTrust, convey.ShouldEqual, 1.0)
			convey.So(cfg.ExplorationRate, convey.ShouldEqual, 0.2)
			convey.So(cfg.SimulationMode, convey.ShouldBeFalse)
			convey.So(cfg.BreakerTimeout(), convey.ShouldEqual, 30*time.Second)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		cases := map[string]func(*config.Config){
			"unknown policy":          func(c *config.Config) { c.QuorumPolicy = "majority" },
			"zero quorum":             func(c *config.Config) { c.QuorumSize = 0 },
			"smoothing above one":     func(c *config.Config) { c.TrustSmoothing = 1.1 },
			"negative exploration":    func(c *config.Config) { c.ExplorationRate = -0.1 },
			"unknown store driver":    func(c *config.Config) { c.StoreDriver = "postgres" },
			"badger without a path":   func(c *config.Config) { c.StoreDriver = "badger" },
			"yaml catalog no path":    func(c *config.Config) { c.CatalogDriver = "yaml" },
			"unknown log format":      func(c *config.Config) { c.LogFormat = "xml" },
			"empty addr":              func(c *config.Config) { c.Addr = "" },
			"simulation trust over 1": func(c *config.Config) { c.SimulationTrust = 2 },
		}
		for name, mutate := range cases {
			convey.Convey("When it has "+name, func() {
				mutate(cfg)
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("When a sqlite store has a path", func() {
			cfg.StoreDriver = "sqlite"
			cfg.StorePath = "/tmp/models.db"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
