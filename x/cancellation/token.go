// Package cancellation provides a composable cancellation token.
//
// Tokens form a hierarchy: a token derived from one or more parents is
// cancelled as soon as any parent cancels, while cancelling the child has no
// effect on its parents or siblings. Work functions select on Done, or attach
// cleanup with OnCancel.
package cancellation

import "sync"

// Token is a composable abort signal. The zero value is not usable; construct
// tokens with New or Derive.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
	nextID    uint64
	callbacks map[uint64]func()
	detachers []func()
}

// New returns a root token.
func New() *Token {
	return &Token{
		done:      make(chan struct{}),
		callbacks: make(map[uint64]func()),
	}
}

// Derive returns a token cancelled whenever any parent cancels. If a parent is
// already cancelled the child starts out cancelled. Cancelling the child does
// not propagate upward.
func Derive(parents ...*Token) *Token {
	child := New()
	for _, p := range parents {
		remove := p.OnCancel(child.Cancel)
		child.mu.Lock()
		child.detachers = append(child.detachers, remove)
		child.mu.Unlock()
	}
	return child
}

// Cancel marks the token cancelled and runs registered callbacks. It is
// idempotent; subsequent calls are no-ops.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	close(t.done)
	cbs := make([]func(), 0, len(t.callbacks))
	for _, cb := range t.callbacks {
		cbs = append(cbs, cb)
	}
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// IsCancelled reports whether the token has been cancelled.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to run when the token is cancelled. If the token is
// already cancelled, fn runs synchronously before OnCancel returns; otherwise a
// registration would silently miss a signal that fired before the listener
// attached. The returned function removes the registration.
func (t *Token) OnCancel(fn func()) (remove func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.callbacks[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		if t.callbacks != nil {
			delete(t.callbacks, id)
		}
		t.mu.Unlock()
	}
}

// Detach unregisters the token from its parents, releasing the parent-side
// references created by Derive. Useful once the token's unit of work has
// settled and a cancellation signal can no longer matter.
func (t *Token) Detach() {
	t.mu.Lock()
	detachers := t.detachers
	t.detachers = nil
	t.mu.Unlock()

	for _, d := range detachers {
		d()
	}
}
