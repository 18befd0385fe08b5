package coordinator

import (
	"time"

	"github.com/compose-network/reqcoord/x/admission"
	"github.com/compose-network/reqcoord/x/cancellation"
)

// Work is a caller-supplied unit of work. It must honor the provided token
// and stop promptly once it is cancelled; the coordinator never forcibly
// terminates non-cooperative work, it only stops awaiting it.
type Work[T any] func(cancel *cancellation.Token) (T, error)

// Options configures a single Execute call. The zero value is valid: no
// deduplication, normal priority, default timeout.
type Options struct {
	// DedupKey identifies the logical request. Calls sharing a key join a
	// single in-flight operation, and only keyed successes are cached.
	DedupKey string

	// Priority orders queued admissions. It never changes an operation that
	// is already running, even when a later call with the same key asks for
	// more.
	Priority admission.Priority

	// Timeout bounds the operation from admission to settlement; zero uses
	// the coordinator default.
	Timeout time.Duration

	// CacheTTL applies to a successful keyed result; zero uses the
	// coordinator default.
	CacheTTL time.Duration

	// Cancellation is an optional caller-supplied token whose cancellation
	// propagates into the operation's scope.
	Cancellation *cancellation.Token
}

// StatsSnapshot is a read-only view of coordinator state.
type StatsSnapshot struct {
	PendingCount    int                        `json:"pending_count"`
	RunningCount    int                        `json:"running_count"`
	QueuedCount     int                        `json:"queued_count"`
	CacheSize       int                        `json:"cache_size"`
	CountByPriority map[admission.Priority]int `json:"-"`
}
