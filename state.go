package fiberrt

import "sync/atomic"

// FiberState is the execution state of a fiber (spec §3).
type FiberState uint32

const (
	// StateRunning is the unique currently-executing fiber; on no queue.
	StateRunning FiberState = iota
	// StateRunnable is on the run queue, waiting for the scheduler.
	StateRunnable
	// StateIOWait is suspended in Poll, on the I/O queue (and maybe the sleep heap).
	StateIOWait
	// StateLockWait is suspended in Mutex.Lock, on a mutex wait list.
	StateLockWait
	// StateCondWait is suspended in Cond{,Timed}Wait, on a condvar wait list.
	StateCondWait
	// StateSleeping is suspended in Sleep/Usleep with a finite timeout, on the sleep heap.
	StateSleeping
	// StateZombie is a joinable fiber that returned from its start function
	// but has not yet been reclaimed by Join.
	StateZombie
	// StateSuspended is suspended in Usleep(NoTimeout); only Interrupt wakes it.
	StateSuspended
)

// String renders the state for logging/debugging.
func (s FiberState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateRunnable:
		return "Runnable"
	case StateIOWait:
		return "IOWait"
	case StateLockWait:
		return "LockWait"
	case StateCondWait:
		return "CondWait"
	case StateSleeping:
		return "Sleeping"
	case StateZombie:
		return "Zombie"
	case StateSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// Fiber flag bits (spec §3).
const (
	// FlagPrimordial marks the fiber that represents the original call
	// into Run: it has a pre-existing "stack" and no start function.
	FlagPrimordial uint32 = 1 << iota
	// FlagIdle is defined for an internal idle fiber; this scheduler runs
	// dispatch directly from Run, has no idle fiber, and never sets it.
	FlagIdle
	// FlagInterrupted is a sticky bit set by Interrupt; the next (or
	// current) suspending call clears it and fails Interrupted.
	FlagInterrupted
	// FlagTimedOut is set by the clock check in dispatch on any fiber
	// whose sleep-heap deadline elapsed (CondWait, IOWait or Sleeping).
	FlagTimedOut
)

// runtimeState is a small lock-free state machine used for the Scheduler
// itself (distinct from per-fiber FiberState), grounded on the teacher's
// FastState: plain atomic CAS, no mutex, cache-line padded to avoid false
// sharing when many schedulers run concurrently (one per goroutine) in
// tests.
type runtimeState struct { //nolint:unused
	_ [sizeOfCacheLine]byte
	v atomic.Uint32
	_ [sizeOfCacheLine - sizeOfAtomicUint32]byte
}

const (
	schedAwake uint32 = iota
	schedRunning
	schedTerminated
)

func newRuntimeState() *runtimeState {
	s := &runtimeState{}
	s.v.Store(schedAwake)
	return s
}

func (s *runtimeState) load() uint32   { return s.v.Load() }
func (s *runtimeState) store(v uint32) { s.v.Store(v) }
func (s *runtimeState) tryTransition(from, to uint32) bool {
	return s.v.CompareAndSwap(from, to)
}
