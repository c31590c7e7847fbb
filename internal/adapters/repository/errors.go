package repository

import "errors"

// Sentinel kinds for model store errors.
var (
	ErrVersionExists  = errors.New("model version already stored")
	ErrPersistence    = errors.New("model store unavailable")
	ErrUnknownDriver  = errors.New("unknown store driver")
	ErrCorruptRecord  = errors.New("corrupt model record")
	ErrInvalidVersion = errors.New("model version must be positive")
)
