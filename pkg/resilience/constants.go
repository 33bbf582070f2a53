package resilience

import "time"

// Circuit breaker default configuration values
const (
	DefaultMaxRequests           uint32        = 3
	DefaultInterval              time.Duration = 60 * time.Second
	DefaultTimeout               time.Duration = 30 * time.Second
	DefaultFailureThreshold      uint32        = 5
	DefaultFailureRatioThreshold float64       = 0.5
	DefaultMinRequestsToTrip     uint32        = 10
)

// Pacing default configuration values. The upstream shipping API throttles
// rapid same-endpoint calls; ~3 calls per second keeps well under its limit.
const (
	DefaultCallsPerSecond float64 = 3.0
	DefaultBurst          int     = 1
)
