package coordinator

import "time"

const (
	DefaultMaxConcurrentRequests = 5
	DefaultTimeout               = 30 * time.Second
	DefaultCacheTTL              = 30 * time.Second
	DefaultSweepInterval         = 10 * time.Second
	DefaultStaleThreshold        = 5 * time.Minute
)
