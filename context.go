package fiberrt

import "runtime"

// Context switching (spec §4.1, §9 "pluggable... native assembly,
// ucontext-style, or a language-level stackful coroutine"). This
// implementation chooses the third option: one goroutine per fiber,
// handed control via an unbuffered channel rendezvous. Because the
// channel is unbuffered and every suspend/resume pair blocks on it, at
// most one goroutine is ever runnable past the handoff point at a time —
// faithfully modelling the single-active-fiber cooperative invariant
// without assembly or cgo.
//
// The three required operations map as:
//   - initContext   -> spawn the fiber's goroutine, parked on resumeCh
//   - resumeFromScheduler -> scheduler sends on resumeCh, then blocks on yieldCh
//   - suspendToScheduler  -> fiber sends on yieldCh, then blocks on resumeCh

// initContext binds f to a fresh goroutine that runs the trampoline: it
// waits for the first resume, invokes the start function, and on return
// performs normal exit (spec §4.1 "entry_trampoline").
func (s *Scheduler) initContext(f *Fiber) {
	go func() {
		<-f.resumeCh
		f.startFn(f)
		s.threadExit(f, f.retval)
		// threadExit always returns exactly once control has been handed
		// back to the scheduler for the last time (terminalYieldToScheduler);
		// this goroutine now exits for good.
	}()
}

// resumeFromScheduler saves the scheduler's logical position and resumes
// f, blocking the scheduler goroutine until f suspends again.
func (s *Scheduler) resumeFromScheduler(f *Fiber) {
	s.current = f
	f.state = StateRunning
	f.resumeCh <- struct{}{}
	<-s.yieldCh
	s.current = s.primordial
	runtime.Gosched()
}

// suspendToScheduler is called from within a fiber's own goroutine. It
// hands control back to the scheduler loop and blocks until the
// scheduler resumes this fiber again.
func (f *Fiber) suspendToScheduler() {
	f.sched.yieldCh <- struct{}{}
	<-f.resumeCh
}

// terminalYieldToScheduler hands control back to the scheduler loop one
// last time without waiting to be resumed again. threadExit calls this
// exactly once, as the final act of a fiber's goroutine, so that
// Scheduler.resumeFromScheduler's blocking receive on yieldCh always
// completes — otherwise a fiber that exits without an explicit suspend
// would hang the scheduler loop forever.
func (f *Fiber) terminalYieldToScheduler() {
	f.sched.yieldCh <- struct{}{}
}
