package fiberrt

import (
	"sync/atomic"
	"time"
)

// Microseconds is the time unit used throughout this package's public
// API (matching the reference runtime's st_utime_t), to avoid forcing
// every caller through time.Duration conversions for timeout math that
// is inherently integer microsecond arithmetic in the original.
type Microseconds = uint64

// defaultUTimeFunc is the pluggable monotonic clock source (spec §6
// "st_set_utime_function"), grounded on original_source/sync.c's
// _st_utime_function indirection. It must be monotonic; wall-clock time
// is never used internally.
var defaultUTimeFunc atomic.Value // func() uint64

func init() {
	// Microseconds since the Unix epoch at package init, advanced by the
	// monotonic reading time.Since uses, so wall-clock steps are ignored.
	base := time.Now()
	baseUs := uint64(base.UnixNano() / 1000)
	defaultUTimeFunc.Store(func() uint64 {
		return baseUs + uint64(time.Since(base).Microseconds())
	})
}

// now reads the clock, respecting any cfg.utimeFunc override and the
// per-dispatch cache when timecache is enabled.
func (s *Scheduler) now() uint64 {
	if s.cfg.timecache {
		cached := s.cachedClock.Load()
		if cached != 0 {
			return cached
		}
	}
	return s.readClock()
}

func (s *Scheduler) readClock() uint64 {
	if s.cfg.utimeFunc != nil {
		return s.cfg.utimeFunc()
	}
	return defaultUTimeFunc.Load().(func() uint64)()
}

// refreshClockCache is called once per dispatch pass by Scheduler.dispatch
// when timecache is enabled (original_source/sync.c st_timecache_set:
// "a signal-driven thread updates the cache every second" becomes, in a
// single-threaded cooperative scheduler, "refresh once per loop turn").
func (s *Scheduler) refreshClockCache() {
	if !s.cfg.timecache {
		return
	}
	s.cachedClock.Store(s.readClock())
}

// SetUTimeFunction overrides the clock source used by this Scheduler.
// Legal only before the first fiber is spawned (SPEC_FULL.md §12): once
// fibers are sleeping on deadlines computed from the old clock, swapping
// functions under them would invalidate the sleep heap's ordering.
func (s *Scheduler) SetUTimeFunction(fn func() uint64) error {
	if s.spawnCount.Load() != 0 {
		return &InvalidError{Op: "SetUTimeFunction", Reason: "must be called before the first Spawn"}
	}
	s.cfg.utimeFunc = fn
	return nil
}

// MicrosecondsSince returns the elapsed microseconds between a prior
// Scheduler.Now() reading and the current clock.
func (s *Scheduler) MicrosecondsSince(start uint64) uint64 {
	n := s.now()
	if n < start {
		return 0
	}
	return n - start
}

// Now returns the scheduler's current clock reading in microseconds.
func (s *Scheduler) Now() uint64 { return s.now() }
