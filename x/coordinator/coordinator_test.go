package coordinator

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/reqcoord/x/admission"
	"github.com/compose-network/reqcoord/x/cancellation"
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

func newTestCoordinator(t *testing.T, mutate func(*Config)) *Coordinator[string] {
	t.Helper()
	cfg := DefaultConfig(zerolog.Nop())
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New[string](cfg)
	require.NoError(t, err)
	t.Cleanup(c.Cleanup)
	return c
}

func TestDedupSharesInFlightOperation(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	work := func(_ *cancellation.Token) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	ch1 := c.Submit(work, Options{DedupKey: "k"})
	ch2 := c.Submit(work, Options{DedupKey: "k"})
	close(release)

	res1 := <-ch1
	res2 := <-ch2

	require.Equal(t, int32(1), calls.Load(), "work must run exactly once per key while in flight")
	require.True(t, res1.Success)
	require.Equal(t, "shared", res1.Value)
	require.Equal(t, res1.RequestID, res2.RequestID)
	require.Equal(t, res1.Value, res2.Value)
	require.False(t, res2.FromCache, "a joined in-flight operation is live work, not a cache read")
}

func TestCacheHitAndExpiry(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Unix(1000, 0))
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.Now = clock.Now
		cfg.DefaultCacheTTL = time.Minute
	})

	var calls atomic.Int32
	work := func(_ *cancellation.Token) (string, error) {
		calls.Add(1)
		return "cached", nil
	}

	first := c.Execute(work, Options{DedupKey: "k"})
	require.True(t, first.Success)
	require.False(t, first.FromCache)

	second := c.Execute(work, Options{DedupKey: "k"})
	require.True(t, second.Success)
	require.True(t, second.FromCache)
	require.Equal(t, "cached", second.Value)
	require.Equal(t, first.RequestID, second.RequestID)
	require.Zero(t, second.Duration)
	require.Equal(t, int32(1), calls.Load(), "fresh cache entry must not re-invoke work")

	clock.Advance(2 * time.Minute)
	third := c.Execute(work, Options{DedupKey: "k"})
	require.True(t, third.Success)
	require.False(t, third.FromCache)
	require.Equal(t, int32(2), calls.Load(), "expired entry must re-invoke work")
}

func TestUnkeyedResultsAreNotCached(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	var calls atomic.Int32
	work := func(_ *cancellation.Token) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	require.True(t, c.Execute(work, Options{}).Success)
	require.True(t, c.Execute(work, Options{}).Success)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, 0, c.Stats().CacheSize)
}

func TestConcurrencyBoundScenario(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.MaxConcurrentRequests = 2
	})

	const opDuration = 50 * time.Millisecond
	var inFlight, maxInFlight atomic.Int32
	work := func(_ *cancellation.Token) (string, error) {
		cur := inFlight.Add(1)
		for {
			max := maxInFlight.Load()
			if cur <= max || maxInFlight.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(opDuration)
		inFlight.Add(-1)
		return "done", nil
	}

	start := time.Now()
	var wg sync.WaitGroup
	results := make([]Result[string], 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Execute(work, Options{})
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for _, res := range results {
		require.True(t, res.Success)
	}
	require.LessOrEqual(t, maxInFlight.Load(), int32(2), "running operations must never exceed the cap")
	// 5 operations through 2 slots take at least 3 waves.
	require.GreaterOrEqual(t, elapsed, 3*opDuration-10*time.Millisecond)
	require.Less(t, elapsed, 20*opDuration, "queued operations must run as slots free, not serialize")
}

func TestTimeoutEnforcement(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	work := func(tok *cancellation.Token) (string, error) {
		// Never settles on its own; only the token stops it.
		<-tok.Done()
		return "", errors.New("stopped")
	}

	start := time.Now()
	res := c.Execute(work, Options{Timeout: 60 * time.Millisecond})
	elapsed := time.Since(start)

	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, ErrTimeout)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second, "settlement tracks the timeout, not the work's duration")
}

func TestCancelByKeyIsolation(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	blockedWork := func(tok *cancellation.Token) (string, error) {
		<-tok.Done()
		return "", errors.New("stopped")
	}
	release := make(chan struct{})
	normalWork := func(_ *cancellation.Token) (string, error) {
		<-release
		return "unaffected", nil
	}

	chA := c.Submit(blockedWork, Options{DedupKey: "a"})
	chB := c.Submit(normalWork, Options{DedupKey: "b"})

	require.Equal(t, 1, c.CancelByKey("a"))
	resA := <-chA
	require.False(t, resA.Success)
	require.ErrorIs(t, resA.Err, ErrCancelled)
	require.NotErrorIs(t, resA.Err, ErrTimeout)

	close(release)
	resB := <-chB
	require.True(t, resB.Success, "operations under other keys must be unaffected")
	require.Equal(t, "unaffected", resB.Value)

	require.Equal(t, 0, c.CancelByKey("a"), "settled operations are no longer addressable")
}

func TestExternalCancellationToken(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	tok := cancellation.New()
	work := func(scope *cancellation.Token) (string, error) {
		<-scope.Done()
		return "", errors.New("stopped")
	}

	ch := c.Submit(work, Options{Cancellation: tok})
	tok.Cancel()
	res := <-ch
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, ErrCancelled)
}

func TestAlreadyCancelledTokenSettlesImmediately(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.MaxConcurrentRequests = 1
	})

	// Fill the only slot so the cancelled submission queues rather than runs.
	release := make(chan struct{})
	blocker := c.Submit(func(_ *cancellation.Token) (string, error) {
		<-release
		return "ok", nil
	}, Options{})

	tok := cancellation.New()
	tok.Cancel()
	var calls atomic.Int32
	res := c.Execute(func(_ *cancellation.Token) (string, error) {
		calls.Add(1)
		return "never", nil
	}, Options{Cancellation: tok})

	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, ErrCancelled)
	require.Equal(t, int32(0), calls.Load(), "pre-cancelled work must not run")

	close(release)
	require.True(t, (<-blocker).Success)
}

func TestQueuePriorityOrdering(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.MaxConcurrentRequests = 1
	})

	release := make(chan struct{})
	blocker := c.Submit(func(_ *cancellation.Token) (string, error) {
		<-release
		return "ok", nil
	}, Options{})

	var mu sync.Mutex
	var order []string
	recordingWork := func(name string) Work[string] {
		return func(_ *cancellation.Token) (string, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	chLow := c.Submit(recordingWork("low"), Options{Priority: admission.Low})
	chNormal := c.Submit(recordingWork("normal"), Options{Priority: admission.Normal})
	chHigh := c.Submit(recordingWork("high"), Options{Priority: admission.High})

	close(release)
	require.True(t, (<-blocker).Success)
	<-chLow
	<-chNormal
	<-chHigh

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestStats(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.MaxConcurrentRequests = 1
	})

	release := make(chan struct{})
	running := c.Submit(func(_ *cancellation.Token) (string, error) {
		<-release
		return "ok", nil
	}, Options{Priority: admission.High})
	queued1 := c.Submit(func(_ *cancellation.Token) (string, error) { return "q1", nil }, Options{Priority: admission.Low})
	queued2 := c.Submit(func(_ *cancellation.Token) (string, error) { return "q2", nil }, Options{})

	stats := c.Stats()
	require.Equal(t, 3, stats.PendingCount)
	require.Equal(t, 1, stats.RunningCount)
	require.Equal(t, 2, stats.QueuedCount)
	require.Equal(t, 0, stats.CacheSize)
	require.Equal(t, 1, stats.CountByPriority[admission.High])
	require.Equal(t, 1, stats.CountByPriority[admission.Normal])
	require.Equal(t, 1, stats.CountByPriority[admission.Low])

	close(release)
	<-running
	<-queued1
	<-queued2

	stats = c.Stats()
	require.Equal(t, 0, stats.PendingCount)
	require.Equal(t, 0, stats.RunningCount)
	require.Equal(t, 0, stats.QueuedCount)
}

func TestCleanupIdempotenceAndFinality(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	ch := c.Submit(func(tok *cancellation.Token) (string, error) {
		<-tok.Done()
		return "", errors.New("stopped")
	}, Options{DedupKey: "k"})

	c.Cleanup()
	c.Cleanup()

	res := <-ch
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, ErrCancelled)

	after := c.Execute(func(_ *cancellation.Token) (string, error) {
		return "never", nil
	}, Options{DedupKey: "k2"})
	require.False(t, after.Success)
	require.ErrorIs(t, after.Err, ErrShutdown)
	require.Empty(t, after.RequestID)

	stats := c.Stats()
	require.Equal(t, 0, stats.PendingCount, "rejected calls must not register state")
	require.Equal(t, 0, stats.CacheSize, "cleanup clears the cache")
}

func TestCancelAll(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.MaxConcurrentRequests = 1
	})

	blocked := func(tok *cancellation.Token) (string, error) {
		<-tok.Done()
		return "", errors.New("stopped")
	}
	ch1 := c.Submit(blocked, Options{})
	ch2 := c.Submit(blocked, Options{})

	require.Equal(t, 2, c.CancelAll())
	for _, ch := range []<-chan Result[string]{ch1, ch2} {
		res := <-ch
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, ErrCancelled)
	}
}

func TestWorkPanicIsContained(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, nil)

	res := c.Execute(func(_ *cancellation.Token) (string, error) {
		panic("boom")
	}, Options{})
	require.False(t, res.Success)
	require.Contains(t, res.Err.Error(), "panicked")

	// The coordinator stays usable.
	ok := c.Execute(func(_ *cancellation.Token) (string, error) {
		return "fine", nil
	}, Options{})
	require.True(t, ok.Success)
}

func TestStaleSweepReapsHungWork(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(t, func(cfg *Config) {
		cfg.SweepInterval = 20 * time.Millisecond
		cfg.StaleThreshold = 50 * time.Millisecond
		cfg.DefaultTimeout = time.Hour
	})

	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })
	ch := c.Submit(func(_ *cancellation.Token) (string, error) {
		// Ignores its token entirely: the sweep is the safety net here.
		<-hang
		return "", errors.New("stopped")
	}, Options{DedupKey: "hung"})

	select {
	case res := <-ch:
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("stale sweep did not settle the hung operation")
	}
	require.Equal(t, 0, c.Stats().PendingCount)
}
