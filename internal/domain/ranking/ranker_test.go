package ranking_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/ranking"
	"github.com/okian/fedrec/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type staticCatalog []model.Candidate

func (c staticCatalog) ListCandidates(context.Context) ([]model.Candidate, error) {
	return c, nil
}

type failingCatalog struct{}

func (failingCatalog) ListCandidates(context.Context) ([]model.Candidate, error) {
	return nil, errors.New("db down")
}

type fixedModel struct{ state *model.GlobalModelState }

func (f fixedModel) Current() *model.GlobalModelState { return f.state }

// catalog returns n items of dimension 2 whose dot product with [1, 0] is i.
func catalog(n int) staticCatalog {
	out := make(staticCatalog, n)
	for i := range out {
		out[i] = model.Candidate{
			ID:            fmt.Sprintf("v%d", i),
			URL:           fmt.Sprintf("https://cdn.example/v%d.mp4", i),
			FeatureVector: []float64{float64(i), 1},
		}
	}
	return out
}

func ids(recs []model.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestRanker_Validation(t *testing.T) {
	Convey("Given a dimension-2 ranker", t, func() {
		ctx := context.Background()
		r := ranking.New(catalog(5), fixedModel{}, ranking.WithDimension(2), ranking.WithMaxTopK(10), ranking.WithSeed(1))
		So(r.Dimension(), ShouldEqual, 2)

		Convey("When the user vector has the wrong length", func() {
			_, err := r.Recommend(ctx, []float64{1, 2, 3}, 3)
			So(errors.Is(err, ranking.ErrDimensionMismatch), ShouldBeTrue)
		})

		Convey("When top_k is out of range", func() {
			_, err := r.Recommend(ctx, []float64{1, 0}, 0)
			So(errors.Is(err, ranking.ErrInvalidTopK), ShouldBeTrue)
			_, err = r.Recommend(ctx, []float64{1, 0}, 11)
			So(errors.Is(err, ranking.ErrInvalidTopK), ShouldBeTrue)
		})

		Convey("When the catalog fails", func() {
			r := ranking.New(failingCatalog{}, fixedModel{}, ranking.WithDimension(2))
			_, err := r.Recommend(ctx, []float64{1, 0}, 3)
			So(errors.Is(err, ranking.ErrCatalog), ShouldBeTrue)
		})
	})
}

func TestRanker_Ranking(t *testing.T) {
	Convey("Given a catalog scored by dot product without exploration", t, func() {
		ctx := context.Background()
		r := ranking.New(catalog(10), fixedModel{}, ranking.WithDimension(2), ranking.WithExplorationRate(0), ranking.WithSeed(1))

		Convey("When the top 3 are requested", func() {
			recs, err := r.Recommend(ctx, []float64{1, 0}, 3)

			Convey("Then they are ordered by descending score", func() {
				So(err, ShouldBeNil)
				So(ids(recs), ShouldResemble, []string{"v9", "v8", "v7"})
				So(recs[0].URL, ShouldEqual, "https://cdn.example/v9.mp4")
			})
		})

		Convey("When more items than the catalog holds are requested", func() {
			recs, err := r.Recommend(ctx, []float64{1, 0}, 50)
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 10)
		})

		Convey("When scores tie", func() {
			recs, err := r.Recommend(ctx, []float64{0, 1}, 10)

			Convey("Then catalog order is kept", func() {
				So(err, ShouldBeNil)
				So(ids(recs)[:3], ShouldResemble, []string{"v0", "v1", "v2"})
			})
		})
	})

	Convey("Given candidates with the wrong dimension", t, func() {
		ctx := context.Background()
		items := append(catalog(3), model.Candidate{ID: "bad", FeatureVector: []float64{100, 100, 100}})
		r := ranking.New(items, fixedModel{}, ranking.WithDimension(2), ranking.WithExplorationRate(0))

		recs, err := r.Recommend(ctx, []float64{1, 0}, 10)

		Convey("Then they are skipped silently", func() {
			So(err, ShouldBeNil)
			So(ids(recs), ShouldResemble, []string{"v2", "v1", "v0"})
		})
	})

	Convey("Given a candidate producing a NaN score", t, func() {
		ctx := context.Background()
		items := append(staticCatalog{{ID: "nan", FeatureVector: []float64{math.NaN(), 0}}}, catalog(2)...)
		r := ranking.New(items, fixedModel{}, ranking.WithDimension(2), ranking.WithExplorationRate(0))

		recs, err := r.Recommend(ctx, []float64{1, 0}, 3)
		So(err, ShouldBeNil)
		So(ids(recs)[2], ShouldEqual, "nan")
	})

	Convey("Given a published model that is not an MLP", t, func() {
		ctx := context.Background()
		state := model.NewGlobalModelState(1, model.Weights{{Shape: []int{1}, Values: []float64{1}}}, time.Now())
		r := ranking.New(catalog(4), fixedModel{state: state}, ranking.WithDimension(2), ranking.WithExplorationRate(0))

		recs, err := r.Recommend(ctx, []float64{1, 0}, 1)
		So(err, ShouldBeNil)
		So(ids(recs), ShouldResemble, []string{"v3"})
	})
}

func TestRanker_Exploration(t *testing.T) {
	Convey("Given exploration rate 0.2 and top_k 5", t, func() {
		ctx := context.Background()
		r := ranking.New(catalog(20), fixedModel{}, ranking.WithDimension(2), ranking.WithExplorationRate(0.2), ranking.WithSeed(7))

		recs, err := r.Recommend(ctx, []float64{1, 0}, 5)

		Convey("Then exactly 5 items are still returned", func() {
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 5)
		})

		Convey("Then the head is exploitation and one tail item is explored", func() {
			So(ids(recs)[:4], ShouldResemble, []string{"v19", "v18", "v17", "v16"})
			So(recs[4].Explored, ShouldBeTrue)
			So(recs[4].ID, ShouldNotEqual, "v15")
		})

		Convey("Then no item appears twice", func() {
			seen := map[string]bool{}
			for _, id := range ids(recs) {
				So(seen[id], ShouldBeFalse)
				seen[id] = true
			}
		})
	})

	Convey("Given no candidates outside the top-k", t, func() {
		ctx := context.Background()
		r := ranking.New(catalog(5), fixedModel{}, ranking.WithDimension(2), ranking.WithExplorationRate(1), ranking.WithSeed(7))

		recs, err := r.Recommend(ctx, []float64{1, 0}, 5)

		Convey("Then nothing is explored and the ranking is intact", func() {
			So(err, ShouldBeNil)
			So(ids(recs), ShouldResemble, []string{"v4", "v3", "v2", "v1", "v0"})
		})
	})
}

func TestRanker_ColdStart(t *testing.T) {
	Convey("Given a user with an all-zero vector", t, func() {
		ctx := context.Background()
		items := catalog(10)
		items = append(items, model.Candidate{ID: "odd", FeatureVector: []float64{1}})
		r := ranking.New(items, fixedModel{}, ranking.WithDimension(2), ranking.WithSeed(3))

		Convey("When recommendations are requested", func() {
			recs, err := r.Recommend(ctx, []float64{0, 0}, 4)

			Convey("Then top_k distinct items are sampled", func() {
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 4)
				seen := map[string]bool{}
				for _, id := range ids(recs) {
					seen[id] = true
				}
				So(len(seen), ShouldEqual, 4)
			})
		})

		Convey("When sampled many times", func() {
			const trials = 5000
			counts := map[string]int{}
			for i := 0; i < trials; i++ {
				recs, err := r.Recommend(ctx, []float64{0, 0}, 3)
				if err != nil {
					t.Fatal(err)
				}
				for _, id := range ids(recs) {
					counts[id]++
				}
			}

			Convey("Then every catalog item is drawn with roughly equal frequency", func() {
				expected := float64(trials) * 3 / float64(len(items))
				So(len(counts), ShouldEqual, len(items))
				for _, c := range counts {
					So(math.Abs(float64(c)-expected)/expected, ShouldBeLessThan, 0.15)
				}
			})
		})

		Convey("When the catalog is smaller than top_k", func() {
			small := ranking.New(catalog(2), fixedModel{}, ranking.WithDimension(2))
			recs, err := small.Recommend(ctx, []float64{0, 0}, 5)
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 2)
		})
	})
}
