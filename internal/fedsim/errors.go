package fedsim

import (
	"errors"
	"fmt"
)

// Sentinel kinds for simulator errors.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrStatus       = errors.New("unexpected status")
	ErrTrustInverse = errors.New("adversarial clients ended up at least as trusted as honest ones")
	ErrNoClients    = errors.New("no participants configured")
)

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %s returned %d: %s", ErrStatus, e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }
