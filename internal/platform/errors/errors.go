package apperrors

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidConfig  = errors.New("invalid config")
	ErrStorageFailure = errors.New("storage failure")
	ErrNoActiveTiming = errors.New("no active timing")
)
