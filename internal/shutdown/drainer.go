// Package shutdown implements the graceful-shutdown queue drainer: a small
// generic poller that waits for an arbitrary queue-empty predicate to go
// true, or gives up at a timeout.
package shutdown

import "time"

// Options configures WaitForQueueToDrain. Stats is left as `any` so the
// predicate can be written against whatever shape a given queue's
// GetStats() returns (queueDepth, or length+isWriting, etc).
type Options struct {
	QueueName string
	GetStats  func() any
	// IsQueueEmpty is an arbitrary predicate over the stats shape.
	IsQueueEmpty func(stats any) bool
	// TimeoutMs is the overall deadline; 0 means wait forever.
	TimeoutMs int64
	// PollIntervalMs is how often GetStats/IsQueueEmpty are re-checked.
	PollIntervalMs int64
	// OnProgress, if set, is invoked on each poll where the queue is still
	// non-empty. Never called once the queue has drained.
	OnProgress func(stats any, elapsedMs int64)
}

// WaitForQueueToDrain polls opts.GetStats/opts.IsQueueEmpty until the queue
// reports empty (returns true) or the timeout elapses (returns false).
func WaitForQueueToDrain(opts Options) bool {
	stats := opts.GetStats()
	if opts.IsQueueEmpty(stats) {
		return true
	}

	pollInterval := time.Duration(opts.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}

	start := time.Now()
	var deadline time.Time
	hasDeadline := opts.TimeoutMs > 0
	if hasDeadline {
		deadline = start.Add(time.Duration(opts.TimeoutMs) * time.Millisecond)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if hasDeadline && time.Now().After(deadline) {
			return false
		}

		stats := opts.GetStats()
		if opts.IsQueueEmpty(stats) {
			return true
		}
		if opts.OnProgress != nil {
			opts.OnProgress(stats, time.Since(start).Milliseconds())
		}
		if hasDeadline && time.Now().After(deadline) {
			return false
		}
	}
	return false
}
