package trust

import "errors"

// Sentinel kinds for trust graph errors.
var (
	ErrNotFound      = errors.New("client not found")
	ErrInvalidSignal = errors.New("invalid validation signal")
)
