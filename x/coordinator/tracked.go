package coordinator

import (
	"time"

	"github.com/compose-network/reqcoord/x/admission"
	"github.com/compose-network/reqcoord/x/cancellation"
)

// State is a tracked operation's lifecycle state.
//
// Created -> (Queued ->) Running -> one of Succeeded, Failed, TimedOut,
// Cancelled. Terminal states are final; no transition re-enters Running.
type State string

const (
	StateCreated   State = "created"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// tracked is the coordinator-owned in-flight representation of one admitted
// operation. Callers only ever hold the done channel and, after it closes,
// the result. All other fields are guarded by the coordinator's lock, except
// the immutable identity fields set before registration.
type tracked[T any] struct {
	id       string
	dedupKey string
	priority admission.Priority
	work     Work[T]
	cacheTTL time.Duration

	submittedAt time.Time
	startedAt   time.Time

	// scope is the logical AND of the caller's token, the coordinator's
	// shutdown token, and the private timeout token.
	scope      *cancellation.Token
	timeoutTok *cancellation.Token
	timer      *time.Timer

	state  State
	result Result[T]
	done   chan struct{}
}
