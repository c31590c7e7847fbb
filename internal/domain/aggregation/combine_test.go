package aggregation_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/fedrec/internal/domain/aggregation"
	"github.com/okian/fedrec/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func vec(values ...float64) model.Weights {
	return model.Weights{{Shape: []int{len(values)}, Values: values}}
}

func randomWeights(rng *rand.Rand) model.Weights {
	w := model.Weights{
		{Shape: []int{2, 3}, Values: make([]float64, 6)},
		{Shape: []int{3}, Values: make([]float64, 3)},
	}
	for li := range w {
		for vi := range w[li].Values {
			w[li].Values[vi] = rng.NormFloat64()
		}
	}
	return w
}

func TestTrustWeightedMean(t *testing.T) {
	Convey("Given two clients A (trust 1.0, [2.0]) and B (trust 0.2, [0.0])", t, func() {
		res, err := aggregation.TrustWeightedMean([]aggregation.Input{
			{Client: "A", Trust: 1.0, Weights: vec(2.0)},
			{Client: "B", Trust: 0.2, Weights: vec(0.0)},
		})

		Convey("Then the aggregate is (1.0·2.0 + 0.2·0.0)/1.2", func() {
			So(err, ShouldBeNil)
			So(res.Unweighted, ShouldBeFalse)
			So(res.Weights[0].Values[0], ShouldAlmostEqual, 2.0/1.2, 1e-12)
			So(res.TotalTrust, ShouldAlmostEqual, 1.2, 1e-12)
		})
	})

	Convey("Given random layers with equal trust", t, func() {
		rng := rand.New(rand.NewSource(1))
		for _, trustValue := range []float64{0.3, 1.0} {
			inputs := make([]aggregation.Input, 5)
			sets := make([]model.Weights, 5)
			for i := range inputs {
				sets[i] = randomWeights(rng)
				inputs[i] = aggregation.Input{Client: model.ClientID(string(rune('a' + i))), Trust: trustValue, Weights: sets[i]}
			}
			weighted, err := aggregation.TrustWeightedMean(inputs)
			So(err, ShouldBeNil)
			mean, err := aggregation.LocalMean(sets)
			So(err, ShouldBeNil)

			// the weighted aggregate equals the plain mean
			for li := range mean {
				for vi := range mean[li].Values {
					So(weighted.Weights[li].Values[vi], ShouldAlmostEqual, mean[li].Values[vi], 1e-12)
				}
			}
		}
	})

	Convey("Given every client fully distrusted", t, func() {
		res, err := aggregation.TrustWeightedMean([]aggregation.Input{
			{Client: "A", Trust: 0, Weights: vec(2.0, 4.0)},
			{Client: "B", Trust: 0, Weights: vec(0.0, 0.0)},
		})

		Convey("Then the unweighted mean is used instead of NaN", func() {
			So(err, ShouldBeNil)
			So(res.Unweighted, ShouldBeTrue)
			So(res.Weights[0].Values, ShouldResemble, []float64{1.0, 2.0})
			So(math.IsNaN(res.Weights[0].Values[0]), ShouldBeFalse)
		})
	})

	Convey("Given trust concentrating on one client", t, func() {
		target := 10.0
		prevDist := math.Inf(1)
		monotonic := true
		for _, other := range []float64{1.0, 0.5, 0.2, 0.05, 0.001} {
			res, err := aggregation.TrustWeightedMean([]aggregation.Input{
				{Client: "honest", Trust: 1.0, Weights: vec(target)},
				{Client: "x", Trust: other, Weights: vec(0.0)},
				{Client: "y", Trust: other, Weights: vec(-5.0)},
			})
			So(err, ShouldBeNil)
			dist := math.Abs(res.Weights[0].Values[0] - target)
			if dist >= prevDist {
				monotonic = false
			}
			prevDist = dist
		}

		Convey("Then the aggregate moves monotonically toward that client", func() {
			So(monotonic, ShouldBeTrue)
			So(prevDist, ShouldBeLessThan, 0.05)
		})
	})

	Convey("Given contributions with different shapes", t, func() {
		_, err := aggregation.TrustWeightedMean([]aggregation.Input{
			{Client: "A", Trust: 1, Weights: vec(1, 2)},
			{Client: "B", Trust: 1, Weights: vec(1, 2, 3)},
		})
		So(errors.Is(err, aggregation.ErrShapeMismatch), ShouldBeTrue)
	})

	Convey("Given no inputs", t, func() {
		_, err := aggregation.TrustWeightedMean(nil)
		So(errors.Is(err, aggregation.ErrEmptyRound), ShouldBeTrue)
	})

	Convey("Given a negative trust", t, func() {
		_, err := aggregation.TrustWeightedMean([]aggregation.Input{{Client: "A", Trust: -1, Weights: vec(1)}})
		So(err, ShouldNotBeNil)
	})
}

func TestLocalMean(t *testing.T) {
	Convey("Given three submissions from one client", t, func() {
		subs := []model.Weights{vec(1, 10), vec(2, 20), vec(6, 60)}
		got, err := aggregation.LocalMean(subs)

		Convey("Then they are averaged, not summed", func() {
			So(err, ShouldBeNil)
			So(got[0].Values[0], ShouldAlmostEqual, 3.0, 1e-12)
			So(got[0].Values[1], ShouldAlmostEqual, 30.0, 1e-12)
		})

		Convey("Then the inputs are untouched", func() {
			So(subs[0][0].Values, ShouldResemble, []float64{1, 10})
		})
	})

	Convey("Given no submissions", t, func() {
		_, err := aggregation.LocalMean(nil)
		So(errors.Is(err, aggregation.ErrEmptyRound), ShouldBeTrue)
	})
}

func TestNoiseInjector(t *testing.T) {
	Convey("Given a noise injector", t, func() {
		in := vec(make([]float64, 2000)...)
		n := aggregation.NewNoiseInjector(0.5, 3)
		out := n.Perturb(in)

		Convey("Then the source is not mutated", func() {
			So(in[0].Values[0], ShouldEqual, 0)
		})

		Convey("Then the noise is zero-mean with the configured spread", func() {
			var sum, sq float64
			for _, v := range out[0].Values {
				sum += v
				sq += v * v
			}
			mean := sum / 2000
			std := math.Sqrt(sq/2000 - mean*mean)
			So(math.Abs(mean), ShouldBeLessThan, 0.05)
			So(std, ShouldAlmostEqual, 0.5, 0.05)
			So(n.StdDev(), ShouldEqual, 0.5)
		})
	})
}
