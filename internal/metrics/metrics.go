// Package metrics provides the thread-safe counters a session's workers
// share. Orchestrators fold Snapshot results into session metadata and
// checkpoint rows; the telemetry package mirrors the counters onto OTel
// instruments when enabled.
package metrics

import "sync/atomic"

// Session aggregates one extract or restore run. All methods are safe for
// concurrent use; workers only ever increment.
type Session struct {
	processed    atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	bytesWritten atomic.Int64
}

// NewSession returns a zeroed aggregator.
func NewSession() *Session {
	return &Session{}
}

// AddProcessed counts an item whose handling finished, success or not.
func (s *Session) AddProcessed(n int64) { s.processed.Add(n) }

// AddSucceeded counts an item that reached its terminal success state.
func (s *Session) AddSucceeded(n int64) { s.succeeded.Add(n) }

// AddFailed counts an item that terminally failed.
func (s *Session) AddFailed(n int64) { s.failed.Add(n) }

// AddRetried counts one retry attempt (not one item).
func (s *Session) AddRetried(n int64) { s.retried.Add(n) }

// AddDeadLettered counts an item captured by the DLQ.
func (s *Session) AddDeadLettered(n int64) { s.deadLettered.Add(n) }

// AddBytes counts content bytes written to the repository.
func (s *Session) AddBytes(n int64) { s.bytesWritten.Add(n) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed    int64 `json:"processed"`
	Succeeded    int64 `json:"succeeded"`
	Failed       int64 `json:"failed"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
	BytesWritten int64 `json:"bytes_written"`
}

// Snapshot reads all counters. Counters advance independently, so a
// snapshot taken mid-run is approximate across fields but exact per field.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Processed:    s.processed.Load(),
		Succeeded:    s.succeeded.Load(),
		Failed:       s.failed.Load(),
		Retried:      s.retried.Load(),
		DeadLettered: s.deadLettered.Load(),
		BytesWritten: s.bytesWritten.Load(),
	}
}
