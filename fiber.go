package fiberrt

// Fiber is a user-space thread's control block (spec §3). It is created
// Runnable and lives until its stack is reclaimed by Join (joinable) or
// immediately after Exit (detached).
type Fiber struct {
	id    uint64
	sched *Scheduler

	state FiberState
	flags uint32

	startFn func(*Fiber)
	arg     any
	retval  any

	stack *stackRegion

	// schedLink threads this fiber onto exactly one of the scheduler's
	// run/io/zombie queues (spec invariant: at most one of the three).
	schedLink clink
	// waitLink threads this fiber onto a mutex or condvar wait list.
	waitLink clink

	// Sleep-heap linkage (spec §3, §4.2).
	due         uint64
	left, right *Fiber
	heapIndex   int
	onSleepHeap bool

	// tls holds this fiber's thread-local-storage slots, indexed by key.
	tls []any

	joinable bool
	// termCond is signaled once on Exit for a joinable fiber; Join waits on it.
	termCond *Cond
	joined   bool

	// ioWaiter, when non-nil, is the PollWaiter this fiber is currently
	// linked into the scheduler's I/O queue through.
	ioWaiter *pollWaiter

	// resumeCh is the baton fibers wait on between suspend and resume;
	// see context.go.
	resumeCh chan struct{}
}

// Interrupted reports whether the sticky interrupt flag is set.
func (f *Fiber) Interrupted() bool { return f.flags&FlagInterrupted != 0 }

// Primordial reports whether this is the runtime's placeholder fiber
// representing the goroutine that called Scheduler.Run before any other
// fiber was scheduled.
func (f *Fiber) Primordial() bool { return f.flags&FlagPrimordial != 0 }

// State returns the fiber's current scheduling state.
func (f *Fiber) State() FiberState { return f.state }

// newFiber allocates a control block backed by stk (stk is nil for the
// primordial fiber, which has no dedicated stack region).
func newFiber(s *Scheduler, id uint64, stk *stackRegion, start func(*Fiber), arg any, joinable bool, maxTLSKeys int) *Fiber {
	f := &Fiber{
		id:       id,
		sched:    s,
		state:    StateRunnable,
		startFn:  start,
		arg:      arg,
		stack:    stk,
		joinable: joinable,
		tls:      make([]any, maxTLSKeys),
		resumeCh: make(chan struct{}),
	}
	initCList(&f.schedLink)
	initCList(&f.waitLink)
	f.schedLink.owner = f
	f.waitLink.owner = f
	if joinable {
		f.termCond = s.newCond()
	}
	return f
}

// setInterrupted sets the sticky interrupt bit. If the fiber is blocked
// off any run queue (io wait, lock wait, cond wait, sleeping, suspended)
// it is unlinked and made runnable, per spec §4.6 interrupt().
func (f *Fiber) setInterrupted() {
	if f.state == StateZombie {
		return
	}
	f.flags |= FlagInterrupted
	if f.state == StateRunnable || f.state == StateRunning {
		return
	}
	f.sched.wakeBlocked(f)
}

// checkInterrupted implements the "preflight" pattern used by every
// suspending call: if Interrupted is set, clear it and fail immediately
// without yielding.
func (f *Fiber) checkInterrupted(op string) error {
	if f.flags&FlagInterrupted != 0 {
		f.flags &^= FlagInterrupted
		return &InterruptedError{Op: op}
	}
	return nil
}
