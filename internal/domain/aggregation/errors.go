package aggregation

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrEmptyRound    = errors.New("empty round")
	ErrNonFinite     = errors.New("non-finite weights")
)
