package round

import (
	"errors"

	"github.com/okian/fedrec/internal/domain/aggregation"
)

// Sentinel kinds returned by the aggregator. Shape and empty-round kinds are
// shared with the aggregation engine so errors.Is works across both.
var (
	ErrShapeMismatch = aggregation.ErrShapeMismatch
	ErrEmptyRound    = aggregation.ErrEmptyRound
	ErrNonFinite     = aggregation.ErrNonFinite
	ErrInvalidClient = errors.New("invalid client id")
	ErrInvalidSignal = errors.New("validation signal must be within [0,1]")
	ErrInvalidPolicy = errors.New("invalid round policy")
	ErrAlreadySeeded = errors.New("global model already initialized")
)
