package fiberrt

import "sync/atomic"

// Stats is a point-in-time snapshot of scheduler state (SPEC_FULL.md
// §10.5). It intentionally carries none of the teacher's P-square
// latency/TPS machinery — this runtime has no request/response notion
// to time, only fiber counts and queue depths.
type Stats struct {
	ActiveFibers   int
	RunQueueDepth  int
	IOQueueDepth   int
	SleepHeapDepth int
	RegisteredFDs  int
	DispatchCount  uint64
}

// metricsCollector holds the counters Scheduler updates as it runs;
// Stats() reads them into an immutable snapshot. Grounded on the
// teacher's metrics.go for the "cheap, atomic, optional" shape
// (WithMetrics gates whether dispatchCount is even incremented), though
// the fields themselves are specific to this runtime.
type metricsCollector struct {
	enabled       bool
	dispatchCount atomic.Uint64
}

func newMetricsCollector(enabled bool) *metricsCollector {
	return &metricsCollector{enabled: enabled}
}

func (m *metricsCollector) recordDispatch() {
	if !m.enabled {
		return
	}
	m.dispatchCount.Add(1)
}

func (m *metricsCollector) dispatches() uint64 {
	return m.dispatchCount.Load()
}
