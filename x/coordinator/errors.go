package coordinator

import "errors"

// ErrTimeout indicates an operation exceeded its timeout before settling.
var ErrTimeout = errors.New("coordinator: operation timed out")

// ErrCancelled indicates an operation's cancellation scope fired before it
// settled.
var ErrCancelled = errors.New("coordinator: operation cancelled")

// ErrShutdown indicates Execute was called after Cleanup.
var ErrShutdown = errors.New("coordinator: coordinator is shut down")
