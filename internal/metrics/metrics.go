// Package metrics captures per-job runtime measurements attached to
// completion signals.
package metrics

import (
	"runtime"
	"time"
)

// Runtime is the measurement window for a single job.
type Runtime struct {
	start     time.Time
	queuedAt  time.Time
	startMem  uint64
	goroutine int
}

// Begin opens a measurement window. queuedAt is when the job entered the
// queue; zero means queue time is unknown and reported as 0.
func Begin(queuedAt time.Time) *Runtime {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &Runtime{
		start:     time.Now(),
		queuedAt:  queuedAt,
		startMem:  ms.Alloc,
		goroutine: runtime.NumGoroutine(),
	}
}

// Snapshot closes the window and returns the measurements as a flat map
// ready for signal metadata.
func (r *Runtime) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	queueMS := int64(0)
	if !r.queuedAt.IsZero() {
		if d := r.start.Sub(r.queuedAt); d > 0 {
			queueMS = d.Milliseconds()
		}
	}

	memDelta := int64(ms.Alloc) - int64(r.startMem)
	return map[string]any{
		"queue_time_ms":     queueMS,
		"execution_time_ms": time.Since(r.start).Milliseconds(),
		"memory_bytes":      ms.Alloc,
		"memory_delta":      memDelta,
		"goroutines":        runtime.NumGoroutine(),
	}
}
