package round_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/fedrec/internal/domain/aggregation"
	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/round"
	"github.com/okian/fedrec/internal/domain/trust"
	"github.com/okian/fedrec/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func vec(values ...float64) model.Weights {
	return model.Weights{{Shape: []int{len(values)}, Values: values}}
}

func contribution(id string, w model.Weights) model.Contribution {
	return model.Contribution{ClientID: model.ClientID(id), Weights: w}
}

type recordingPersister struct {
	mu       sync.Mutex
	versions []uint64
	accept   bool
}

func (p *recordingPersister) Persist(_ context.Context, s *model.GlobalModelState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions = append(p.versions, s.Version)
	return p.accept
}

type staticLoader struct {
	state *model.GlobalModelState
	err   error
}

func (l staticLoader) LoadLatest(context.Context) (*model.GlobalModelState, bool, error) {
	return l.state, l.state != nil, l.err
}

func TestAggregator_Quorum(t *testing.T) {
	Convey("Given a quorum-2 aggregator", t, func() {
		ctx := context.Background()
		g := trust.New()
		p := &recordingPersister{accept: true}
		a := round.New(g, round.WithQuorum(2), round.WithPersister(p))

		Convey("When the first client submits", func() {
			st, err := a.Submit(ctx, contribution("A", vec(2.0)))

			Convey("Then it waits for one more client", func() {
				So(err, ShouldBeNil)
				So(st.Aggregated, ShouldBeFalse)
				So(st.WaitingFor, ShouldEqual, 1)
				So(st.Round, ShouldEqual, 1)
				So(a.Current(), ShouldBeNil)
				So(a.Pending(), ShouldEqual, 1)
			})

			Convey("When the same client submits again", func() {
				st, err := a.Submit(ctx, contribution("A", vec(4.0)))

				Convey("Then quorum still counts distinct clients", func() {
					So(err, ShouldBeNil)
					So(st.Aggregated, ShouldBeFalse)
					So(st.WaitingFor, ShouldEqual, 1)
				})
			})

			Convey("When a second client submits", func() {
				st, err := a.Submit(ctx, contribution("B", vec(0.0)))

				Convey("Then version 1 is published and persisted", func() {
					So(err, ShouldBeNil)
					So(st.Aggregated, ShouldBeTrue)
					So(st.Version, ShouldEqual, 1)
					cur := a.Current()
					So(cur, ShouldNotBeNil)
					So(cur.Version, ShouldEqual, 1)
					So(cur.Weights[0].Values[0], ShouldAlmostEqual, 1.0, 1e-12)
					So(p.versions, ShouldResemble, []uint64{1})
				})

				Convey("Then the buffer is cleared and a new round opens", func() {
					So(a.Pending(), ShouldEqual, 0)
					So(a.Round(), ShouldEqual, 2)
					So(a.Aggregations(), ShouldEqual, 1)
				})
			})
		})
	})
}

func TestAggregator_TrustWeighting(t *testing.T) {
	Convey("Given client B distrusted to 0.2", t, func() {
		ctx := context.Background()
		g := trust.New()
		g.AddClient(ctx, "A", 1.0)
		g.AddClient(ctx, "B", 0.2)
		a := round.New(g)

		_, err := a.Submit(ctx, contribution("A", vec(2.0)))
		So(err, ShouldBeNil)
		st, err := a.Submit(ctx, contribution("B", vec(0.0)))
		So(err, ShouldBeNil)
		So(st.Aggregated, ShouldBeTrue)

		Convey("Then the aggregate leans toward A", func() {
			So(a.Current().Weights[0].Values[0], ShouldAlmostEqual, 2.0/1.2, 1e-9)
		})
	})

	Convey("Given a validation signal with the submission", t, func() {
		ctx := context.Background()
		g := trust.New(trust.WithSmoothing(0.9))
		a := round.New(g, round.WithQuorum(5))
		signal := 0.0
		c := contribution("A", vec(1))
		c.ValidationSignal = &signal

		_, err := a.Submit(ctx, c)
		So(err, ShouldBeNil)

		Convey("Then the client's trust is updated", func() {
			v, err := g.TrustOf(ctx, "A")
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 0.9, 1e-12)
		})
	})
}

func TestAggregator_RepeatedSubmissions(t *testing.T) {
	Convey("Given one client submitting twice before quorum", t, func() {
		ctx := context.Background()
		a := round.New(trust.New())
		_, _ = a.Submit(ctx, contribution("A", vec(1.0, 10.0)))
		_, _ = a.Submit(ctx, contribution("A", vec(3.0, 30.0)))
		_, err := a.Submit(ctx, contribution("B", vec(0.0, 0.0)))
		So(err, ShouldBeNil)

		Convey("Then it counts the same as one submission of the mean", func() {
			b := round.New(trust.New())
			_, _ = b.Submit(ctx, contribution("A", vec(2.0, 20.0)))
			_, _ = b.Submit(ctx, contribution("B", vec(0.0, 0.0)))

			So(a.Current().Weights[0].Values, ShouldResemble, b.Current().Weights[0].Values)
			So(a.Current().Weights[0].Values[0], ShouldAlmostEqual, 1.0, 1e-12)
		})
	})
}

func TestAggregator_Validation(t *testing.T) {
	Convey("Given a published 2-element model", t, func() {
		ctx := context.Background()
		g := trust.New()
		a := round.New(g, round.WithQuorum(3))
		_, err := a.Bootstrap(ctx, vec(0, 0))
		So(err, ShouldBeNil)
		_, err = a.Submit(ctx, contribution("A", vec(1, 1)))
		So(err, ShouldBeNil)

		Convey("When a contribution has the wrong shape", func() {
			_, err := a.Submit(ctx, contribution("Z", vec(1, 2, 3)))

			Convey("Then it is rejected and nothing changes", func() {
				So(errors.Is(err, round.ErrShapeMismatch), ShouldBeTrue)
				So(a.Pending(), ShouldEqual, 1)
				So(g.Len(), ShouldEqual, 1)
			})
		})

		Convey("When a contribution contains NaN", func() {
			_, err := a.Submit(ctx, contribution("Z", vec(1, math.NaN())))
			So(errors.Is(err, round.ErrNonFinite), ShouldBeTrue)
			So(a.Pending(), ShouldEqual, 1)
		})

		Convey("When a contribution has too few values for its shape", func() {
			w := model.Weights{{Shape: []int{2}, Values: []float64{1}}}
			_, err := a.Submit(ctx, contribution("Z", w))
			So(errors.Is(err, round.ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("When the client id is empty or reserved", func() {
			_, err := a.Submit(ctx, contribution("", vec(1, 1)))
			So(errors.Is(err, round.ErrInvalidClient), ShouldBeTrue)
			_, err = a.Submit(ctx, contribution(string(aggregation.SyntheticClient), vec(1, 1)))
			So(errors.Is(err, round.ErrInvalidClient), ShouldBeTrue)
		})

		Convey("When the validation signal is out of range", func() {
			bad := 1.5
			c := contribution("Z", vec(1, 1))
			c.ValidationSignal = &bad
			_, err := a.Submit(ctx, c)
			So(errors.Is(err, round.ErrInvalidSignal), ShouldBeTrue)
			So(g.Len(), ShouldEqual, 1)
		})
	})

	Convey("Given no published model", t, func() {
		ctx := context.Background()
		a := round.New(trust.New(), round.WithQuorum(3))
		_, err := a.Submit(ctx, contribution("A", vec(1, 1)))
		So(err, ShouldBeNil)

		Convey("Then the first buffered contribution fixes the shape", func() {
			_, err := a.Submit(ctx, contribution("B", vec(1)))
			So(errors.Is(err, round.ErrShapeMismatch), ShouldBeTrue)
		})
	})
}

func TestAggregator_AllRegistered(t *testing.T) {
	Convey("Given the all-registered policy with three known clients", t, func() {
		ctx := context.Background()
		g := trust.New()
		for _, id := range []model.ClientID{"A", "B", "C"} {
			g.Register(ctx, id)
		}
		a := round.New(g, round.WithPolicy(round.PolicyAllRegistered))

		st, err := a.Submit(ctx, contribution("A", vec(1)))
		So(err, ShouldBeNil)
		So(st.WaitingFor, ShouldEqual, 2)

		_, _ = a.Submit(ctx, contribution("B", vec(1)))
		st, err = a.Submit(ctx, contribution("C", vec(1)))

		Convey("Then the round closes once every client has submitted", func() {
			So(err, ShouldBeNil)
			So(st.Aggregated, ShouldBeTrue)
			So(a.Policy(), ShouldEqual, round.PolicyAllRegistered)
		})
	})

	Convey("Given an unknown policy string", t, func() {
		_, err := round.ParsePolicy("majority")
		So(errors.Is(err, round.ErrInvalidPolicy), ShouldBeTrue)
		p, err := round.ParsePolicy("quorum")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, round.PolicyQuorum)
	})
}

func TestAggregator_CloseRound(t *testing.T) {
	Convey("Given an empty round", t, func() {
		ctx := context.Background()
		a := round.New(trust.New(), round.WithQuorum(10))

		Convey("When it is closed", func() {
			_, err := a.CloseRound(ctx)

			Convey("Then ErrEmptyRound is returned and no version is published", func() {
				So(errors.Is(err, round.ErrEmptyRound), ShouldBeTrue)
				So(a.Current(), ShouldBeNil)
			})
		})

		Convey("When one client is buffered and the round is closed early", func() {
			_, _ = a.Submit(ctx, contribution("A", vec(5)))
			state, err := a.CloseRound(ctx)

			Convey("Then the buffered contribution becomes the model", func() {
				So(err, ShouldBeNil)
				So(state.Version, ShouldEqual, 1)
				So(state.Weights[0].Values[0], ShouldEqual, 5.0)
				So(a.Pending(), ShouldEqual, 0)
			})
		})
	})
}

func TestAggregator_RestoreAndBootstrap(t *testing.T) {
	Convey("Given a persisted version 7", t, func() {
		ctx := context.Background()
		saved := model.NewGlobalModelState(7, vec(1, 2), testTime)
		a := round.New(trust.New())

		ok, err := a.Restore(ctx, staticLoader{state: saved})
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		Convey("Then versions continue from it", func() {
			_, _ = a.Submit(ctx, contribution("A", vec(0, 0)))
			st, err := a.Submit(ctx, contribution("B", vec(2, 2)))
			So(err, ShouldBeNil)
			So(st.Version, ShouldEqual, 8)
		})

		Convey("Then bootstrap does not overwrite it", func() {
			_, err := a.Bootstrap(ctx, vec(9, 9))
			So(errors.Is(err, round.ErrAlreadySeeded), ShouldBeTrue)
			So(a.Current().Version, ShouldEqual, 7)
		})
	})

	Convey("Given a loader that fails", t, func() {
		a := round.New(trust.New())
		_, err := a.Restore(context.Background(), staticLoader{err: errors.New("disk gone")})
		So(err, ShouldNotBeNil)
		So(a.Current(), ShouldBeNil)
	})

	Convey("Given an empty store", t, func() {
		a := round.New(trust.New())
		ok, err := a.Restore(context.Background(), staticLoader{})
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})
}

func TestAggregator_PersistenceFailureKeepsModel(t *testing.T) {
	Convey("Given a persister that rejects every snapshot", t, func() {
		ctx := context.Background()
		p := &recordingPersister{accept: false}
		a := round.New(trust.New(), round.WithPersister(p))
		_, _ = a.Submit(ctx, contribution("A", vec(1)))
		st, err := a.Submit(ctx, contribution("B", vec(3)))

		Convey("Then the in-memory model is still published", func() {
			So(err, ShouldBeNil)
			So(st.Aggregated, ShouldBeTrue)
			So(a.Current().Version, ShouldEqual, 1)
			So(len(p.versions), ShouldEqual, 1)
		})
	})
}

func TestAggregator_Simulation(t *testing.T) {
	Convey("Given simulation mode with a low-trust noisy client", t, func() {
		ctx := context.Background()
		g := trust.New()
		a := round.New(g, round.WithSimulation(aggregation.NewNoiseInjector(10, 1), 0.0))

		_, _ = a.Submit(ctx, contribution("A", vec(1, 1)))
		st, err := a.Submit(ctx, contribution("B", vec(1, 1)))

		Convey("Then the synthetic client is registered but carries no weight", func() {
			So(err, ShouldBeNil)
			So(st.Aggregated, ShouldBeTrue)
			v, err := g.TrustOf(ctx, aggregation.SyntheticClient)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0.0)
			So(a.Current().Weights[0].Values[0], ShouldAlmostEqual, 1.0, 1e-12)
		})
	})
}

func TestAggregator_ConcurrentSubmissions(t *testing.T) {
	Convey("Given many clients racing to complete quorum-2 rounds", t, func() {
		ctx := context.Background()
		p := &recordingPersister{accept: true}
		a := round.New(trust.New(), round.WithQuorum(2), round.WithPersister(p))

		const clients = 40
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			aggregated []uint64
		)
		for i := 0; i < clients; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				st, err := a.Submit(ctx, contribution(fmt.Sprintf("client-%d", i), vec(float64(i))))
				if err == nil && st.Aggregated {
					mu.Lock()
					aggregated = append(aggregated, st.Version)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then each satisfied quorum is aggregated exactly once", func() {
			So(len(aggregated), ShouldEqual, clients/2)
			So(a.Aggregations(), ShouldEqual, clients/2)
			So(a.Current().Version, ShouldEqual, clients/2)
			seen := make(map[uint64]bool)
			for _, v := range aggregated {
				So(seen[v], ShouldBeFalse)
				seen[v] = true
			}
			So(len(p.versions), ShouldEqual, clients/2)
		})
	})
}
