package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrDimensionMismatch = errors.New("user vector dimension mismatch")
	ErrInvalidTopK       = errors.New("top_k out of range")
	ErrCatalog           = errors.New("candidate catalog unavailable")
)
