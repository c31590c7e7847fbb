package scoring_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDotProduct(t *testing.T) {
	Convey("Given two vectors", t, func() {
		s := scoring.DotProduct{}

		Convey("Then the score is their inner product", func() {
			So(s.Score([]float64{1, 2, 3}, []float64{4, 5, 6}), ShouldEqual, 32.0)
		})

		Convey("Then a shorter item only uses the overlap", func() {
			So(s.Score([]float64{1, 2, 3}, []float64{1}), ShouldEqual, 1.0)
		})
	})
}

func TestMLP(t *testing.T) {
	Convey("Given hand-built weights for dim 1 and hidden 1", t, func() {
		// x = [u, i]; h1 = relu(u + i); h2 = relu(2·h1); out = sigmoid(h2 - 1)
		w := model.Weights{
			{Shape: []int{2, 1}, Values: []float64{1, 1}},
			{Shape: []int{1}, Values: []float64{0}},
			{Shape: []int{1, 1}, Values: []float64{2}},
			{Shape: []int{1}, Values: []float64{0}},
			{Shape: []int{1, 1}, Values: []float64{1}},
			{Shape: []int{1}, Values: []float64{-1}},
		}
		m, err := scoring.NewMLP(w, 1)
		So(err, ShouldBeNil)

		Convey("Then the forward pass matches the closed form", func() {
			So(m.Score([]float64{0.5}, []float64{0.25}), ShouldAlmostEqual, 1/(1+math.Exp(-0.5)), 1e-12)
		})

		Convey("Then negative pre-activations are clipped by relu", func() {
			So(m.Score([]float64{-3}, []float64{1}), ShouldAlmostEqual, 1/(1+math.Exp(1)), 1e-12)
		})

		Convey("Then Build selects it", func() {
			state := model.NewGlobalModelState(1, w, time.Now())
			_, isMLP := scoring.Build(state, 1).(*scoring.MLP)
			So(isMLP, ShouldBeTrue)
		})

		Convey("Then Build falls back to the dot product for another dimension", func() {
			state := model.NewGlobalModelState(1, w, time.Now())
			So(scoring.Build(state, 4), ShouldHaveSameTypeAs, scoring.DotProduct{})
		})
	})

	Convey("Given weights that are not an MLP", t, func() {
		w := model.Weights{{Shape: []int{3}, Values: []float64{1, 2, 3}}}
		_, err := scoring.NewMLP(w, 3)
		So(errors.Is(err, scoring.ErrNotMLP), ShouldBeTrue)
		So(scoring.Build(model.NewGlobalModelState(1, w, time.Now()), 3), ShouldHaveSameTypeAs, scoring.DotProduct{})
		So(scoring.Build(nil, 3), ShouldHaveSameTypeAs, scoring.DotProduct{})
	})
}

func TestInitMLP(t *testing.T) {
	Convey("Given initial weights for dim 16 and hidden 128", t, func() {
		w := scoring.InitMLP(16, 128, 42)

		Convey("Then the layout is the binary MLP layout", func() {
			So(w.Signature(), ShouldResemble, model.ShapeSignature{{32, 128}, {128}, {128, 128}, {128}, {128, 1}, {1}})
			So(w.Validate(), ShouldBeNil)
			_, err := scoring.NewMLP(w, 16)
			So(err, ShouldBeNil)
		})

		Convey("Then kernels stay within the Glorot limit and biases are zero", func() {
			limit := math.Sqrt(6.0 / (32 + 128))
			var maxAbs, biasSum float64
			for _, v := range w[0].Values {
				maxAbs = math.Max(maxAbs, math.Abs(v))
			}
			for _, v := range w[1].Values {
				biasSum += math.Abs(v)
			}
			So(maxAbs, ShouldBeLessThanOrEqualTo, limit)
			So(maxAbs, ShouldBeGreaterThan, 0)
			So(biasSum, ShouldEqual, 0)
		})

		Convey("Then the same seed reproduces the weights", func() {
			So(scoring.InitMLP(16, 128, 42)[2].Values, ShouldResemble, w[2].Values)
		})

		Convey("Then scores are probabilities", func() {
			m, _ := scoring.NewMLP(w, 16)
			u := make([]float64, 16)
			i := make([]float64, 16)
			for k := range u {
				u[k], i[k] = 0.1*float64(k), 1
			}
			s := m.Score(u, i)
			So(s, ShouldBeGreaterThan, 0)
			So(s, ShouldBeLessThan, 1)
		})
	})
}
