// Package scoring turns a global model into a deterministic (user, item) scorer.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/okian/fedrec/internal/domain/model"
)

// ErrNotMLP is returned when weights do not have the BinaryMLP layout.
var ErrNotMLP = errors.New("weights do not match the binary MLP layout")

// mlpLayers is the number of tensors in a BinaryMLP: three dense layers,
// each a kernel followed by a bias.
const mlpLayers = 6

// Func scores one candidate for one user. Implementations are deterministic
// and safe for concurrent use.
type Func interface {
	Score(user, item []float64) float64
}

// DotProduct scores by the inner product of the two vectors.
type DotProduct struct{}

// Score returns Σ user[i]·item[i] over the shorter of the two vectors.
func (DotProduct) Score(user, item []float64) float64 {
	n := min(len(user), len(item))
	var s float64
	for i := 0; i < n; i++ {
		s += user[i] * item[i]
	}
	return s
}

// MLP is the forward pass of a three-layer binary classifier over [user ‖ item]:
//
//	sigmoid(W3·relu(W2·relu(W1·x + b1) + b2) + b3)
//
// Kernels are stored row-major as [in, out].
type MLP struct {
	in, hidden int
	w1, b1     []float64
	w2, b2     []float64
	w3, b3     []float64
}

// NewMLP validates the layout of w for user and item vectors of length dim.
func NewMLP(w model.Weights, dim int) (*MLP, error) {
	if len(w) != mlpLayers {
		return nil, fmt.Errorf("%w: %d layers", ErrNotMLP, len(w))
	}
	if len(w[0].Shape) != 2 {
		return nil, fmt.Errorf("%w: first kernel is not 2-dimensional", ErrNotMLP)
	}
	in, h := 2*dim, w[0].Shape[1]
	want := model.ShapeSignature{{in, h}, {h}, {h, h}, {h}, {h, 1}, {1}}
	if d := want.Diff(w.Signature()); d != "" {
		return nil, fmt.Errorf("%w: %s", ErrNotMLP, d)
	}
	for i, l := range w {
		if len(l.Values) != l.Size() {
			return nil, fmt.Errorf("%w: layer %d is truncated", ErrNotMLP, i)
		}
	}
	return &MLP{
		in: in, hidden: h,
		w1: w[0].Values, b1: w[1].Values,
		w2: w[2].Values, b2: w[3].Values,
		w3: w[4].Values, b3: w[5].Values,
	}, nil
}

// Score runs the forward pass. Vectors shorter than the input width are zero padded.
func (m *MLP) Score(user, item []float64) float64 {
	x := make([]float64, m.in)
	copy(x, user)
	copy(x[m.in/2:], item)

	h1 := dense(x, m.w1, m.b1, m.hidden)
	relu(h1)
	h2 := dense(h1, m.w2, m.b2, m.hidden)
	relu(h2)
	out := dense(h2, m.w3, m.b3, 1)
	return sigmoid(out[0])
}

// Build returns the MLP scorer when state carries BinaryMLP weights for dim
// and the dot product otherwise, including when state is nil.
func Build(state *model.GlobalModelState, dim int) Func {
	if state == nil {
		return DotProduct{}
	}
	if m, err := NewMLP(state.Weights, dim); err == nil {
		return m
	}
	return DotProduct{}
}

// InitMLP returns freshly initialised BinaryMLP weights: Glorot-uniform
// kernels and zero biases. The same seed always yields the same weights.
func InitMLP(dim, hidden int, seed int64) model.Weights {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // weight init, not security sensitive
	in := 2 * dim
	return model.Weights{
		glorot(rng, in, hidden), zeros(hidden),
		glorot(rng, hidden, hidden), zeros(hidden),
		glorot(rng, hidden, 1), zeros(1),
	}
}

func dense(x, w, b []float64, out int) []float64 {
	y := make([]float64, out)
	copy(y, b)
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := w[i*out : (i+1)*out]
		for j, wij := range row {
			y[j] += xi * wij
		}
	}
	return y
}

func relu(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func glorot(rng *rand.Rand, in, out int) model.Layer {
	limit := math.Sqrt(6 / float64(in+out))
	v := make([]float64, in*out)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * limit
	}
	return model.Layer{Shape: []int{in, out}, Values: v}
}

func zeros(n int) model.Layer {
	return model.Layer{Shape: []int{n}, Values: make([]float64, n)}
}
