package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }
func (c *fakeClock) Now() time.Time       { c.mu.Lock(); defer c.mu.Unlock(); return c.now }
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSetGet(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Unix(0, 0))
	s := New[string](clock.Now)

	s.Set("k", "v", time.Minute)
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestGetEnforcesTTLWithoutSweep(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Unix(0, 0))
	s := New[int](clock.Now)

	s.Set("k", 42, time.Minute)

	// Exactly at the TTL boundary the entry is still fresh.
	clock.Advance(time.Minute)
	_, ok := s.Get("k")
	require.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok = s.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, s.Len(), "expired entry is dropped on read")
}

func TestSetRefreshesEntry(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Unix(0, 0))
	s := New[int](clock.Now)

	s.Set("k", 1, time.Minute)
	clock.Advance(50 * time.Second)
	s.Set("k", 2, time.Minute)
	clock.Advance(50 * time.Second)

	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestEvictExpired(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Unix(0, 0))
	s := New[int](clock.Now)

	s.Set("a", 1, time.Second)
	s.Set("b", 2, time.Minute)
	s.Set("c", 3, time.Second)

	clock.Advance(10 * time.Second)
	require.Equal(t, 2, s.EvictExpired())
	require.Equal(t, 1, s.Len())

	v, ok := s.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestClearAndDelete(t *testing.T) {
	t.Parallel()
	s := New[int](nil)
	s.Set("a", 1, time.Minute)
	s.Set("b", 2, time.Minute)

	s.Delete("a")
	_, ok := s.Get("a")
	require.False(t, ok)

	s.Clear()
	require.Equal(t, 0, s.Len())
}
