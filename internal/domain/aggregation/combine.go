// Package aggregation folds per-client weight contributions into one model.
//
// All functions are pure: inputs are never mutated and results own their
// storage.
package aggregation

import (
	"fmt"

	"github.com/okian/fedrec/internal/domain/model"
)

// Input is one client's effective contribution to a round.
type Input struct {
	Client  model.ClientID
	Trust   float64
	Weights model.Weights
}

// Result is the combined model plus how it was produced.
type Result struct {
	Weights model.Weights
	// Unweighted is true when the total trust was zero and the plain mean was used.
	Unweighted bool
	// TotalTrust is Σ trust over all inputs.
	TotalTrust float64
}

// LocalMean averages one client's repeated submissions elementwise.
func LocalMean(subs []model.Weights) (model.Weights, error) {
	if len(subs) == 0 {
		return nil, ErrEmptyRound
	}
	coeffs := make([]float64, len(subs))
	for i := range coeffs {
		coeffs[i] = 1 / float64(len(subs))
	}
	return combine(subs, coeffs)
}

// TrustWeightedMean computes, per layer,
//
//	Σ_c trust(c)·W_c / Σ_c trust(c)
//
// If Σ trust is exactly zero every input gets equal weight instead.
func TrustWeightedMean(inputs []Input) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, ErrEmptyRound
	}

	var total float64
	for _, in := range inputs {
		if in.Trust < 0 {
			return Result{}, fmt.Errorf("client %q has negative trust %v", in.Client, in.Trust)
		}
		total += in.Trust
	}

	sets := make([]model.Weights, len(inputs))
	coeffs := make([]float64, len(inputs))
	unweighted := total == 0
	for i, in := range inputs {
		sets[i] = in.Weights
		if unweighted {
			coeffs[i] = 1 / float64(len(inputs))
		} else {
			coeffs[i] = in.Trust / total
		}
	}

	w, err := combine(sets, coeffs)
	if err != nil {
		return Result{}, err
	}
	return Result{Weights: w, Unweighted: unweighted, TotalTrust: total}, nil
}

// combine returns Σ coeffs[i]·sets[i]. Coefficients are pre-normalised so the
// sum never leaves the range of the inputs.
func combine(sets []model.Weights, coeffs []float64) (model.Weights, error) {
	sig := sets[0].Signature()
	for i, s := range sets[1:] {
		if d := sig.Diff(s.Signature()); d != "" {
			return nil, fmt.Errorf("%w: contribution %d: %s", ErrShapeMismatch, i+1, d)
		}
	}

	out := make(model.Weights, len(sig))
	for li := range out {
		out[li] = model.Layer{
			Shape:  append([]int(nil), sig[li]...),
			Values: make([]float64, len(sets[0][li].Values)),
		}
		acc := out[li].Values
		for si, s := range sets {
			if len(s[li].Values) != len(acc) {
				return nil, fmt.Errorf("%w: contribution %d layer %d has %d values, want %d",
					ErrShapeMismatch, si, li, len(s[li].Values), len(acc))
			}
			c := coeffs[si]
			for vi, v := range s[li].Values {
				acc[vi] += c * v
			}
		}
	}
	return out, nil
}
