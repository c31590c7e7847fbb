package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/fedrec/internal/adapters/catalog"
	repository "github.com/okian/fedrec/internal/adapters/repository"
	service "github.com/okian/fedrec/internal/app"
	"github.com/okian/fedrec/internal/config"
	"github.com/okian/fedrec/internal/domain/aggregation"
	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.BootstrapModel = false
	cfg.Dimension = 2
	cfg.HiddenDim = 3
	cfg.RankerSeed = 1
	cfg.ShutdownTimeoutMS = 2000
	return cfg
}

func items() *catalog.Static {
	return catalog.NewStatic(
		model.Candidate{ID: "a", URL: "https://cdn.example/a.mp4", FeatureVector: []float64{1, 0}},
		model.Candidate{ID: "b", URL: "https://cdn.example/b.mp4", FeatureVector: []float64{0, 1}},
	)
}

func contribution(id string, v float64, signal *float64) model.Contribution {
	return model.Contribution{
		ClientID:         model.ClientID(id),
		Weights:          model.Weights{{Shape: []int{2}, Values: []float64{v, v}}},
		ValidationSignal: signal,
		SubmittedAt:      time.Now(),
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		svc := service.New(service.WithConfig(testConfig()), service.WithCatalog(items()))
		ctx := context.Background()

		Convey("Then operations report it is not started", func() {
			_, err := svc.Submit(ctx, contribution("A", 1, nil))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Recommend(ctx, []float64{1, 0}, 1)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.CurrentModel(), ShouldBeNil)
			So(svc.TrustGraph(ctx).Nodes, ShouldBeEmpty)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			svc.Stop()

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				svc.Stop()
			})
		})

		Convey("When the policy is invalid", func() {
			cfg := testConfig()
			cfg.QuorumPolicy = "majority"
			err := service.New(service.WithConfig(cfg)).Start(ctx)
			So(errors.Is(err, service.ErrStart), ShouldBeTrue)
		})

		Convey("When the store driver is unknown", func() {
			cfg := testConfig()
			cfg.StoreDriver = "postgres"
			err := service.New(service.WithConfig(cfg)).Start(ctx)
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestService_Rounds(t *testing.T) {
	Convey("Given a started service with an injected store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := service.New(service.WithConfig(testConfig()), service.WithStore(store), service.WithCatalog(items()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When two clients complete a round", func() {
			high, low := 1.0, 0.0
			st, err := svc.Submit(ctx, contribution("A", 2, &high))
			So(err, ShouldBeNil)
			So(st.Aggregated, ShouldBeFalse)
			st, err = svc.Submit(ctx, contribution("B", 0, &low))
			So(err, ShouldBeNil)

			Convey("Then version 1 is published and trust-weighted", func() {
				So(st.Aggregated, ShouldBeTrue)
				cur := svc.CurrentModel()
				So(cur.Version, ShouldEqual, 1)
				So(cur.Weights[0].Values[0], ShouldAlmostEqual, 2.0/1.9, 1e-9)
			})

			Convey("Then the stats reflect the round", func() {
				stats := svc.GetStats()
				So(stats["roundsAggregated"], ShouldEqual, int64(1))
				So(stats["registeredClients"], ShouldEqual, 2)
				So(stats["modelVersion"], ShouldEqual, uint64(1))
				So(stats["breakerState"], ShouldEqual, "closed")
			})

			Convey("Then stopping drains the snapshot into the store", func() {
				svc.Stop()
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When the round is closed early", func() {
			_, err := svc.CloseRound(ctx)
			So(errors.Is(err, aggregation.ErrEmptyRound), ShouldBeTrue)

			_, err = svc.Submit(ctx, contribution("A", 3, nil))
			So(err, ShouldBeNil)
			state, err := svc.CloseRound(ctx)
			So(err, ShouldBeNil)
			So(state.Version, ShouldEqual, 1)
		})

		Convey("When recommendations are requested", func() {
			recs, err := svc.Recommend(ctx, []float64{0, 1}, 1)
			So(err, ShouldBeNil)
			So(recs[0].ID, ShouldEqual, "b")
		})
	})
}

func TestService_Restore(t *testing.T) {
	Convey("Given a store holding version 7", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		seed := model.NewGlobalModelState(7, model.Weights{{Shape: []int{2}, Values: []float64{5, 5}}}, time.Now())
		So(store.Save(ctx, seed), ShouldBeNil)

		cfg := testConfig()
		cfg.BootstrapModel = true
		svc := service.New(service.WithConfig(cfg), service.WithStore(store), service.WithCatalog(items()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("Then the stored version is served instead of a bootstrap model", func() {
			So(svc.CurrentModel().Version, ShouldEqual, 7)
		})

		Convey("Then the next round continues the version sequence", func() {
			_, err := svc.Submit(ctx, contribution("A", 1, nil))
			So(err, ShouldBeNil)
			st, err := svc.Submit(ctx, contribution("B", 1, nil))
			So(err, ShouldBeNil)
			So(st.Version, ShouldEqual, 8)
		})

		Convey("Then contributions must match the restored shape", func() {
			_, err := svc.Submit(ctx, model.Contribution{
				ClientID: "A",
				Weights:  model.Weights{{Shape: []int{3}, Values: []float64{1, 1, 1}}},
			})
			So(errors.Is(err, aggregation.ErrShapeMismatch), ShouldBeTrue)
		})
	})

	Convey("Given an empty store with bootstrapping enabled", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		cfg := testConfig()
		cfg.BootstrapModel = true
		svc := service.New(service.WithConfig(cfg), service.WithStore(store), service.WithCatalog(items()))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then a seeded MLP is published as version 1 and persisted", func() {
			cur := svc.CurrentModel()
			So(cur.Version, ShouldEqual, 1)
			So(len(cur.Weights), ShouldEqual, 6)
			So(cur.Weights[0].Shape, ShouldResemble, []int{4, 3})

			svc.Stop()
			latest, ok, err := store.LoadLatest(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(latest.Version, ShouldEqual, 1)
		})
	})
}

func TestService_Simulation(t *testing.T) {
	Convey("Given a service in simulation mode", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.SimulationMode = true
		cfg.SimulationSeed = 3
		cfg.SimulationTrust = 0
		svc := service.New(service.WithConfig(cfg), service.WithCatalog(items()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a round completes", func() {
			_, err := svc.Submit(ctx, contribution("A", 1, nil))
			So(err, ShouldBeNil)
			st, err := svc.Submit(ctx, contribution("B", 1, nil))
			So(err, ShouldBeNil)
			So(st.Aggregated, ShouldBeTrue)

			Convey("Then the zero-trust synthetic client does not move the model", func() {
				So(svc.CurrentModel().Weights[0].Values, ShouldResemble, []float64{1, 1})
			})

			Convey("Then the synthetic client appears in the trust graph", func() {
				ids := map[model.ClientID]float64{}
				for _, n := range svc.TrustGraph(ctx).Nodes {
					ids[n.ID] = n.Trust
				}
				trustOf, ok := ids[aggregation.SyntheticClient]
				So(ok, ShouldBeTrue)
				So(trustOf, ShouldEqual, 0)
			})
		})
	})
}
