package cancellation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	tok := New()
	calls := 0
	tok.OnCancel(func() { calls++ })

	tok.Cancel()
	tok.Cancel()
	tok.Cancel()

	require.True(t, tok.IsCancelled())
	require.Equal(t, 1, calls)
}

func TestOnCancelAlreadyCancelledFiresImmediately(t *testing.T) {
	t.Parallel()
	tok := New()
	tok.Cancel()

	fired := false
	tok.OnCancel(func() { fired = true })
	require.True(t, fired)
}

func TestDeriveCancelsChildWhenAnyParentCancels(t *testing.T) {
	t.Parallel()
	a := New()
	b := New()
	child := Derive(a, b)

	require.False(t, child.IsCancelled())
	b.Cancel()
	require.True(t, child.IsCancelled())
	require.False(t, a.IsCancelled())

	select {
	case <-child.Done():
	default:
		t.Fatal("child Done channel should be closed")
	}
}

func TestCancellingChildDoesNotAffectParentOrSibling(t *testing.T) {
	t.Parallel()
	parent := New()
	child := Derive(parent)
	sibling := Derive(parent)

	child.Cancel()

	require.True(t, child.IsCancelled())
	require.False(t, parent.IsCancelled())
	require.False(t, sibling.IsCancelled())
}

func TestDeriveFromCancelledParentStartsCancelled(t *testing.T) {
	t.Parallel()
	parent := New()
	parent.Cancel()

	child := Derive(parent)
	require.True(t, child.IsCancelled())
}

func TestOnCancelRemove(t *testing.T) {
	t.Parallel()
	tok := New()
	fired := false
	remove := tok.OnCancel(func() { fired = true })
	remove()

	tok.Cancel()
	require.False(t, fired)
}

func TestDetachStopsParentPropagation(t *testing.T) {
	t.Parallel()
	parent := New()
	child := Derive(parent)

	child.Detach()
	parent.Cancel()

	require.False(t, child.IsCancelled())
}

func TestConcurrentCancelAndRegister(t *testing.T) {
	t.Parallel()
	tok := New()
	var fired sync.WaitGroup

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		fired.Add(1)
		go func() {
			defer wg.Done()
			tok.OnCancel(fired.Done)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		tok.Cancel()
	}()
	wg.Wait()

	// Every callback fires exactly once whether registered before or after
	// the cancellation.
	fired.Wait()
	require.True(t, tok.IsCancelled())
}
