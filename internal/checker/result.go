package checker

import "time"

// Status represents the health state of a check.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// NoResponseTime is the sentinel latency for results that were not
// meaningfully timed: failures before any response arrived, and provisional
// records still awaiting verification.
const NoResponseTime int64 = -1

// CheckResult is one observation of a check.
//
// Timestamp is the UTC instant the observation logically pertains to. For a
// deferred check this is the initiation instant, not the time of the verify
// call, so day bucketing attributes an outage to when it started.
type CheckResult struct {
	CheckID        string
	Timestamp      time.Time
	Status         Status
	ResponseTimeMs int64
	Message        string

	// Provisional marks a deferred check's "submitted, outcome unknown"
	// record. It is superseded by a confirmed record with the same
	// CheckID and Timestamp.
	Provisional bool
}
