// Package coordinator implements the request coordination layer: it executes
// caller-supplied units of work under identity-based deduplication, a
// concurrency cap, cooperative cancellation, and TTL caching of successful
// keyed results.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/reqcoord/x/admission"
	"github.com/compose-network/reqcoord/x/cache"
	"github.com/compose-network/reqcoord/x/cancellation"
)

// Coordinator deduplicates, bounds, cancels, and caches asynchronous
// operations producing values of type T. Construct one with New and release
// it with Cleanup; all methods are safe for concurrent use.
//
// A single lock guards the registry, the admission queue, and the running
// counter together: deduplication and the concurrency cap are cross-key
// invariants, so per-key locking cannot maintain them.
type Coordinator[T any] struct {
	mu      sync.Mutex
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
	metrics *Metrics

	shutdown *cancellation.Token
	cache    *cache.Store[Result[T]]
	pending  *registry[T]
	queue    *admission.Queue[*tracked[T]]
	running  int
	queued   int
	cleaned  bool
}

// New constructs a Coordinator and starts its background sweep.
func New[T any](cfg Config) (*Coordinator[T], error) {
	if err := cfg.apply(); err != nil {
		return nil, err
	}

	c := &Coordinator[T]{
		cfg:      cfg,
		log:      cfg.Logger,
		now:      cfg.Now,
		shutdown: cancellation.New(),
		pending:  newRegistry[T](),
		queue:    admission.NewQueue[*tracked[T]](),
	}
	c.cache = cache.New[Result[T]](cfg.Now)
	if cfg.EnableMetrics {
		c.metrics = NewMetrics()
	}

	go c.sweepLoop()

	c.log.Info().
		Int("max_concurrent", cfg.MaxConcurrentRequests).
		Dur("default_timeout", cfg.DefaultTimeout).
		Dur("default_cache_ttl", cfg.DefaultCacheTTL).
		Msg("coordinator started")

	return c, nil
}

// Execute runs work under the given options and blocks until it settles. It
// always returns a Result and never panics for operation failure, timeout,
// cancellation, or shutdown.
func (c *Coordinator[T]) Execute(work Work[T], opts Options) Result[T] {
	return <-c.Submit(work, opts)
}

// Submit is the future form of Execute: it admits the operation without
// blocking the caller and delivers the Result on the returned channel.
func (c *Coordinator[T]) Submit(work Work[T], opts Options) <-chan Result[T] {
	ch := make(chan Result[T], 1)

	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		ch <- failed[T]("", ErrShutdown, 0)
		return ch
	}

	if opts.DedupKey != "" {
		// A live operation under the same key is shared, not duplicated.
		if inflight, ok := c.pending.findByKey(opts.DedupKey); ok {
			c.mu.Unlock()
			c.metrics.recordDedupJoin()
			go func() {
				<-inflight.done
				ch <- inflight.result
			}()
			return ch
		}
		if res, ok := c.cache.Get(opts.DedupKey); ok {
			c.mu.Unlock()
			c.metrics.recordCacheHit()
			res.FromCache = true
			res.Duration = 0
			ch <- res
			return ch
		}
	}

	op := c.registerLocked(work, opts)
	if c.running < c.cfg.MaxConcurrentRequests {
		c.startLocked(op)
	} else {
		op.state = StateQueued
		c.queue.Enqueue(op.priority, op)
		c.queued++
		c.updateGaugesLocked()
		c.log.Debug().
			Str("request_id", op.id).
			Str("priority", op.priority.String()).
			Int("queued", c.queued).
			Msg("operation queued at concurrency cap")
	}
	c.mu.Unlock()

	// Registered outside the lock: if the scope is already cancelled (for
	// example a caller token that fired before admission) the callback runs
	// synchronously and needs the lock itself.
	op.scope.OnCancel(func() { c.settleBeforeRun(op) })

	go func() {
		<-op.done
		ch <- op.result
	}()
	return ch
}

// registerLocked builds and registers a tracked operation. Caller holds c.mu.
func (c *Coordinator[T]) registerLocked(work Work[T], opts Options) *tracked[T] {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = c.cfg.DefaultCacheTTL
	}

	op := &tracked[T]{
		id:          uuid.NewString(),
		dedupKey:    opts.DedupKey,
		priority:    opts.Priority,
		work:        work,
		cacheTTL:    ttl,
		submittedAt: c.now(),
		timeoutTok:  cancellation.New(),
		state:       StateCreated,
		done:        make(chan struct{}),
	}

	parents := []*cancellation.Token{c.shutdown, op.timeoutTok}
	if opts.Cancellation != nil {
		parents = append(parents, opts.Cancellation)
	}
	op.scope = cancellation.Derive(parents...)
	op.timer = time.AfterFunc(timeout, op.timeoutTok.Cancel)

	c.pending.insert(op)
	return op
}

// startLocked transitions op to Running and launches it. Caller holds c.mu.
func (c *Coordinator[T]) startLocked(op *tracked[T]) {
	if op.state == StateQueued {
		c.queued--
	}
	op.state = StateRunning
	op.startedAt = c.now()
	c.running++
	c.updateGaugesLocked()
	go c.run(op)
}

// run races the work function against the operation's cancellation scope.
// Whichever settles first wins; a losing work goroutine is left to observe
// the scope and unwind on its own.
func (c *Coordinator[T]) run(op *tracked[T]) {
	type outcome struct {
		value T
		err   error
	}
	outCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				c.log.Error().
					Str("request_id", op.id).
					Interface("panic", rec).
					Msg("work function panicked")
				outCh <- outcome{err: fmt.Errorf("coordinator: work panicked: %v", rec)}
			}
		}()
		value, err := op.work(op.scope)
		outCh <- outcome{value: value, err: err}
	}()

	select {
	case out := <-outCh:
		c.settleRunning(op, out.value, out.err)
	case <-op.scope.Done():
		state, err := c.cancelCause(op)
		c.settleWith(op, failed[T](op.id, err, 0), state)
	}
}

// settleRunning settles an operation whose work function returned.
func (c *Coordinator[T]) settleRunning(op *tracked[T], value T, err error) {
	if err == nil {
		c.settleWith(op, succeeded(op.id, value, 0), StateSucceeded)
		return
	}
	c.settleWith(op, failed[T](op.id, err, 0), StateFailed)
}

// settleBeforeRun settles a Created or Queued operation whose scope was
// cancelled before it started. Running operations are ignored here; their
// run loop observes the same scope.
func (c *Coordinator[T]) settleBeforeRun(op *tracked[T]) {
	c.mu.Lock()
	if op.state != StateCreated && op.state != StateQueued {
		c.mu.Unlock()
		return
	}
	state, err := c.cancelCause(op)
	c.finishLocked(op, failed[T](op.id, err, c.now().Sub(op.submittedAt)), state)
	c.mu.Unlock()

	op.scope.Detach()
	close(op.done)
}

// settleWith settles a Running operation with given result and state.
func (c *Coordinator[T]) settleWith(op *tracked[T], res Result[T], state State) {
	c.mu.Lock()
	if op.state.Terminal() {
		// Lost a settlement race, e.g. against the stale sweep.
		c.mu.Unlock()
		return
	}
	res.Duration = c.now().Sub(op.startedAt)
	c.finishLocked(op, res, state)
	c.mu.Unlock()

	op.scope.Detach()
	close(op.done)
}

// finishLocked applies a settlement: records the result, removes the
// operation from the registry exactly once, writes the cache for keyed
// successes, and drains the admission queue. Caller holds c.mu.
func (c *Coordinator[T]) finishLocked(op *tracked[T], res Result[T], state State) {
	prior := op.state
	op.timer.Stop()
	op.state = state
	op.result = res
	c.pending.remove(op)
	switch prior {
	case StateRunning:
		c.running--
	case StateQueued:
		c.queued--
	}

	if state == StateSucceeded && op.dedupKey != "" {
		c.cache.Set(op.dedupKey, res, op.cacheTTL)
	}

	c.metrics.recordSettled(state, res.Duration)
	c.drainLocked()
	c.updateGaugesLocked()

	evt := c.log.Debug()
	if state == StateFailed {
		evt = c.log.Warn().Err(res.Err)
	}
	evt.
		Str("request_id", op.id).
		Str("state", string(state)).
		Dur("duration", res.Duration).
		Msg("operation settled")
}

// drainLocked starts queued operations while capacity remains. It is a flat
// loop on purpose: settlement triggers draining, and draining must not grow
// the call stack with the queue. Caller holds c.mu.
func (c *Coordinator[T]) drainLocked() {
	for c.running < c.cfg.MaxConcurrentRequests {
		op, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		// Entries settled while queued are removed lazily, here.
		if op.state != StateQueued {
			continue
		}
		c.startLocked(op)
	}
}

// cancelCause classifies which sub-token of an operation's scope fired.
func (c *Coordinator[T]) cancelCause(op *tracked[T]) (State, error) {
	switch {
	case op.timeoutTok.IsCancelled():
		return StateTimedOut, ErrTimeout
	case c.shutdown.IsCancelled():
		return StateCancelled, fmt.Errorf("%w: coordinator shutting down", ErrCancelled)
	default:
		return StateCancelled, ErrCancelled
	}
}

// CancelByKey cancels the in-flight or queued operation registered under
// key. Operations under other keys are unaffected. It reports how many
// operations were signalled (0 or 1, since a key has at most one live
// operation).
func (c *Coordinator[T]) CancelByKey(key string) int {
	c.mu.Lock()
	op, ok := c.pending.findByKey(key)
	c.mu.Unlock()
	if !ok {
		return 0
	}
	c.log.Info().Str("dedup_key", key).Str("request_id", op.id).Msg("cancelling operation by key")
	op.scope.Cancel()
	return 1
}

// CancelAll cancels every pending operation, queued or running, and reports
// how many were signalled.
func (c *Coordinator[T]) CancelAll() int {
	c.mu.Lock()
	ops := make([]*tracked[T], 0, c.pending.len())
	c.pending.each(func(op *tracked[T]) { ops = append(ops, op) })
	c.mu.Unlock()

	for _, op := range ops {
		op.scope.Cancel()
	}
	if len(ops) > 0 {
		c.log.Info().Int("count", len(ops)).Msg("cancelled all pending operations")
	}
	return len(ops)
}

// Stats returns a read-only snapshot. It mutates nothing.
func (c *Coordinator[T]) Stats() StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[admission.Priority]int, len(admission.Priorities))
	for _, p := range admission.Priorities {
		counts[p] = 0
	}
	c.pending.each(func(op *tracked[T]) { counts[op.priority]++ })

	return StatsSnapshot{
		PendingCount:    c.pending.len(),
		RunningCount:    c.running,
		QueuedCount:     c.queued,
		CacheSize:       c.cache.Len(),
		CountByPriority: counts,
	}
}

// ClearCache drops all cached results.
func (c *Coordinator[T]) ClearCache() {
	c.cache.Clear()
}

// Cleanup shuts the coordinator down: it cancels all in-flight and queued
// work, stops the background sweep, and clears the cache. It is idempotent,
// and Execute calls made afterwards fail with ErrShutdown without
// registering anything.
func (c *Coordinator[T]) Cleanup() {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	c.mu.Unlock()

	c.shutdown.Cancel()
	c.cache.Clear()
	c.log.Info().Msg("coordinator cleaned up")
}

// sweepLoop periodically evicts expired cache entries and reaps stale
// operations until shutdown.
func (c *Coordinator[T]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep reclaims expired cache entries and force-cancels operations that
// have not settled within StaleThreshold, treating them as leaked or hung.
// Individual timeouts remain the primary bound; this is the safety net.
func (c *Coordinator[T]) sweep() {
	if evicted := c.cache.EvictExpired(); evicted > 0 {
		c.log.Debug().Int("evicted", evicted).Msg("cache sweep evicted expired entries")
	}

	cutoff := c.now().Add(-c.cfg.StaleThreshold)
	c.mu.Lock()
	stale := make([]*tracked[T], 0)
	c.pending.each(func(op *tracked[T]) {
		if op.submittedAt.Before(cutoff) {
			stale = append(stale, op)
		}
	})
	c.mu.Unlock()

	for _, op := range stale {
		c.log.Warn().
			Str("request_id", op.id).
			Time("submitted_at", op.submittedAt).
			Msg("force-cancelling stale operation")
		op.scope.Cancel()
	}
}

func (c *Coordinator[T]) updateGaugesLocked() {
	c.metrics.setRunning(c.running)
	c.metrics.setQueued(c.queued)
}
