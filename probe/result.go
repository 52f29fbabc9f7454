package probe

import (
	"time"
)

// Outcome is the result class of a single probe
type Outcome string

const (
	Reachable   Outcome = "reachable"
	Unreachable Outcome = "unreachable"
	TimedOut    Outcome = "timed-out"
	Errored     Outcome = "errored"
)

// Sample is a performance sample for an endpoint. Values only need to be
// monotonically meaningful for scoring; they are not required to be exact
// measurements.
type Sample struct {
	Throughput    float64 `json:"throughput"`               // requests (or tokens) per second
	Accuracy      float64 `json:"accuracy"`                 // 0..1
	ResourceUsage float64 `json:"resource_usage,omitempty"` // 0..1, provider reported
	Synthetic     bool    `json:"synthetic"`
}

// Result is the outcome of one probe invocation. Results are values and
// are never modified after the prober returns them.
type Result struct {
	DescriptorID string        `json:"descriptor_id"`
	Outcome      Outcome       `json:"outcome"`
	Latency      time.Duration `json:"latency"`
	Timestamp    time.Time     `json:"timestamp"`
	Sample       *Sample       `json:"sample,omitempty"`

	// Detail is a short description of a failure, for display only
	Detail string `json:"detail,omitempty"`
}

func (r Result) Reachable() bool {
	return r.Outcome == Reachable
}
