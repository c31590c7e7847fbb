package model

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel kinds for tensor decoding.
var (
	ErrRaggedTensor  = errors.New("ragged tensor")
	ErrInvalidTensor = errors.New("invalid tensor")
)

// Layer is one dense numeric array of the model. Values are stored row-major.
type Layer struct {
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// Size returns the number of elements implied by the shape.
func (l Layer) Size() int {
	n := 1
	for _, d := range l.Shape {
		n *= d
	}
	return n
}

// Clone returns a deep copy of the layer.
func (l Layer) Clone() Layer {
	return Layer{
		Shape:  append([]int(nil), l.Shape...),
		Values: append([]float64(nil), l.Values...),
	}
}

// Weights is the ordered per-layer weight set of a model.
type Weights []Layer

// Clone returns a deep copy of all layers.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for i, l := range w {
		out[i] = l.Clone()
	}
	return out
}

// Signature returns the shape signature of the weight set.
func (w Weights) Signature() ShapeSignature {
	sig := make(ShapeSignature, len(w))
	for i, l := range w {
		sig[i] = append([]int(nil), l.Shape...)
	}
	return sig
}

// Validate checks that every layer's value count matches its shape and that
// all values are finite.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidTensor)
	}
	for i, l := range w {
		if len(l.Values) != l.Size() {
			return fmt.Errorf("%w: layer %d has %d values for shape %v", ErrInvalidTensor, i, len(l.Values), l.Shape)
		}
		for _, v := range l.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: layer %d contains a non-finite value", ErrInvalidTensor, i)
			}
		}
	}
	return nil
}

// ShapeSignature is the list of layer shapes a model is built from.
type ShapeSignature [][]int

// Equal reports whether both signatures describe the same layers.
func (s ShapeSignature) Equal(o ShapeSignature) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if len(s[i]) != len(o[i]) {
			return false
		}
		for j := range s[i] {
			if s[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

// Diff describes the first difference between s (expected) and o (actual),
// or returns "" when they are equal.
func (s ShapeSignature) Diff(o ShapeSignature) string {
	if len(s) != len(o) {
		return fmt.Sprintf("expected %d layers, got %d", len(s), len(o))
	}
	for i := range s {
		if !(ShapeSignature{s[i]}).Equal(ShapeSignature{o[i]}) {
			return fmt.Sprintf("layer %d: expected shape %v, got %v", i, s[i], o[i])
		}
	}
	return ""
}

// LayerFromNested decodes a nested JSON-style array ([]any of float64 or
// further []any) into a Layer. A bare number decodes to a 0-dimensional layer.
func LayerFromNested(v any) (Layer, error) {
	shape, err := nestedShape(v)
	if err != nil {
		return Layer{}, err
	}
	l := Layer{Shape: shape, Values: make([]float64, 0, Layer{Shape: shape}.Size())}
	if err := flatten(v, shape, &l.Values); err != nil {
		return Layer{}, err
	}
	return l, nil
}

// WeightsFromNested decodes one nested array per layer.
func WeightsFromNested(layers []any) (Weights, error) {
	w := make(Weights, len(layers))
	for i, raw := range layers {
		l, err := LayerFromNested(raw)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		w[i] = l
	}
	return w, nil
}

// Nested rebuilds the nested array representation of the layer.
func (l Layer) Nested() any {
	if len(l.Shape) == 0 {
		if len(l.Values) == 0 {
			return 0.0
		}
		return l.Values[0]
	}
	v, _ := nest(l.Values, l.Shape)
	return v
}

// Nested rebuilds the nested array representation of every layer.
func (w Weights) Nested() []any {
	out := make([]any, len(w))
	for i, l := range w {
		out[i] = l.Nested()
	}
	return out
}

func nestedShape(v any) ([]int, error) {
	switch t := v.(type) {
	case float64:
		return []int{}, nil
	case int:
		return []int{}, nil
	case []any:
		if len(t) == 0 {
			return []int{0}, nil
		}
		inner, err := nestedShape(t[0])
		if err != nil {
			return nil, err
		}
		for _, e := range t[1:] {
			s, err := nestedShape(e)
			if err != nil {
				return nil, err
			}
			if !(ShapeSignature{s}).Equal(ShapeSignature{inner}) {
				return nil, ErrRaggedTensor
			}
		}
		return append([]int{len(t)}, inner...), nil
	case []float64:
		return []int{len(t)}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported element %T", ErrInvalidTensor, v)
	}
}

func flatten(v any, shape []int, out *[]float64) error {
	switch t := v.(type) {
	case float64:
		*out = append(*out, t)
	case int:
		*out = append(*out, float64(t))
	case []float64:
		*out = append(*out, t...)
	case []any:
		for _, e := range t {
			if err := flatten(e, shape[1:], out); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unsupported element %T", ErrInvalidTensor, v)
	}
	return nil
}

func nest(values []float64, shape []int) (any, []float64) {
	if len(shape) == 1 {
		row := make([]any, shape[0])
		for i := range row {
			row[i] = values[i]
		}
		return row, values[shape[0]:]
	}
	out := make([]any, shape[0])
	for i := range out {
		out[i], values = nest(values, shape[1:])
	}
	return out, values
}
