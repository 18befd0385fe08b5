package coordinator

import "time"

// Result is the uniform outcome envelope for every coordinated operation.
// Execute always returns one; operation failure, timeout, cancellation, and
// shutdown are all reported through it rather than by panicking. Exactly one
// of Value and Err is meaningful, selected by Success.
type Result[T any] struct {
	Success   bool
	Value     T
	Err       error
	FromCache bool
	RequestID string
	Duration  time.Duration
}

// ErrorMessage returns the error text, or "" on success.
func (r Result[T]) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func succeeded[T any](requestID string, value T, duration time.Duration) Result[T] {
	return Result[T]{
		Success:   true,
		Value:     value,
		RequestID: requestID,
		Duration:  duration,
	}
}

func failed[T any](requestID string, err error, duration time.Duration) Result[T] {
	return Result[T]{
		Err:       err,
		RequestID: requestID,
		Duration:  duration,
	}
}
