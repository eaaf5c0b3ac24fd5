package fiberrt

import (
	"os"
	"sync/atomic"
	"time"
)

// Scheduler is a single-kernel-thread fiber runtime (spec §3 "Scheduler").
// Exactly one goroutine ever executes user fiber code at a time; New's
// caller goroutine becomes the primordial fiber and later calls Run.
type Scheduler struct {
	cfg *config

	runQ, ioQ, zombieQ clink
	sleep              sleepHeap

	current *Fiber
	yieldCh chan struct{}

	reactor     *reactorCore
	wake        *wakeSignal
	stacks      *stackArena
	tls         *tlsRegistry
	netfdFree   netfdFreeList
	metrics     *metricsCollector
	runState    *runtimeState
	cachedClock atomic.Uint64
	spawnCount  atomic.Uint64

	nextID      uint64
	activeCount int

	primordial *Fiber
}

// New creates a Scheduler. The calling goroutine becomes the primordial
// fiber; it must call Run to start the dispatch loop.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	ignoreSIGPIPE()

	s := &Scheduler{
		cfg:      cfg,
		yieldCh:  make(chan struct{}),
		runState: newRuntimeState(),
	}
	initCList(&s.runQ)
	initCList(&s.ioQ)
	initCList(&s.zombieQ)

	s.reactor = newPlatformReactor(cfg.eventBufferSize, cfg.minPollFDsHint, cfg.logger)
	if err := s.reactor.init(); err != nil {
		return nil, err
	}
	s.stacks = newStackArena(cfg.randomizeStacks, uint64(time.Now().UnixNano()))
	s.tls = newTLSRegistry(cfg.maxTLSKeys)
	s.metrics = newMetricsCollector(cfg.metricsEnabled)

	wake, err := newWakeSignal()
	if err != nil {
		return nil, err
	}
	s.wake = wake
	if err := s.reactor.fdNew(wake.rfd); err != nil {
		return nil, err
	}
	if err := s.reactor.addInterest([]PollFD{{FD: wake.rfd, Events: PollIn}}); err != nil {
		return nil, err
	}

	s.primordial = newFiber(s, s.nextID, nil, nil, nil, false, cfg.maxTLSKeys)
	s.nextID++
	s.primordial.flags |= FlagPrimordial
	s.primordial.state = StateRunning
	s.current = s.primordial
	s.activeCount = 1

	logDebug(cfg.logger, "scheduler", "initialized", nil)
	return s, nil
}

// Self returns the calling goroutine's Fiber control block. Outside any
// fiber goroutine (i.e. in the goroutine that called Run) this is the
// primordial fiber.
func (s *Scheduler) Self() *Fiber { return s.current }

// SpawnOptions configures an individual Spawn call.
type SpawnOptions struct {
	StackSize int
	Joinable  bool
}

// Spawn creates a new Runnable fiber running start(arg-bearing fiber).
func (s *Scheduler) Spawn(start func(*Fiber), opts SpawnOptions) (*Fiber, error) {
	size := opts.StackSize
	if size <= 0 {
		size = s.cfg.defaultStackSize
	}
	stk, err := s.stacks.allocate(size)
	if err != nil {
		return nil, err
	}

	f := newFiber(s, s.nextID, stk, start, nil, opts.Joinable, s.cfg.maxTLSKeys)
	s.nextID++
	s.spawnCount.Add(1)
	s.activeCount++

	s.initContext(f)
	s.enqueueRunnable(f)
	return f, nil
}

func (s *Scheduler) enqueueRunnable(f *Fiber) {
	f.state = StateRunnable
	appendLink(&f.schedLink, &s.runQ)
}

// suspendCurrent parks f (already linked onto whatever wait structure
// its caller set up) until some other code path makes it Runnable and
// the scheduler resumes it again.
func (s *Scheduler) suspendCurrent(f *Fiber) {
	f.suspendToScheduler()
}

// wakeBlocked forces f off whatever it is blocked on and onto the run
// queue, for Interrupt's benefit (spec §4.6).
func (s *Scheduler) wakeBlocked(f *Fiber) {
	switch f.state {
	case StateIOWait:
		removeLink(&f.schedLink)
		if f.ioWaiter != nil {
			s.reactor.removeInterest(f.ioWaiter.pfds)
		}
	case StateLockWait, StateCondWait:
		removeLink(&f.waitLink)
	case StateSleeping, StateSuspended:
		// only linked into the sleep heap (if at all); nothing queue-side to unlink.
	default:
		return
	}
	s.sleepHeapRemove(f)
	s.enqueueRunnable(f)
}

func (s *Scheduler) sleepHeapPush(f *Fiber, due uint64) {
	s.sleep.insert(f, due)
}

func (s *Scheduler) sleepHeapRemove(f *Fiber) {
	s.sleep.remove(f)
}

// Interrupt sets f's sticky interrupt bit, waking it immediately if it
// is currently blocked (spec §4.6).
func (s *Scheduler) Interrupt(f *Fiber) {
	f.setInterrupted()
}

// Join waits for a joinable fiber to exit and returns its retval (spec
// §4.6 join).
func (s *Scheduler) Join(self, target *Fiber) (any, error) {
	if !target.joinable || target == self || target.joined {
		return nil, &InvalidError{Op: "Join", Reason: "target not joinable, is self, or already joined"}
	}
	target.joined = true
	for target.state != StateZombie {
		if err := target.termCond.Wait(self); err != nil {
			return nil, err
		}
	}
	retval := target.retval
	removeLink(&target.schedLink) // off zombie queue
	s.enqueueRunnable(target)
	return retval, nil
}

// threadExit runs TLS destructors, then either parks the fiber as a
// Zombie for Join or reclaims its stack immediately if detached (spec
// §4.6 exit).
func (s *Scheduler) threadExit(f *Fiber, retval any) {
	f.runDestructors()
	s.activeCount--

	if f.joinable {
		f.state = StateZombie
		appendLink(&f.schedLink, &s.zombieQ)
		f.termCond.Signal()
		f.suspendToScheduler()
		// Join re-enqueued us onto the run queue to finish teardown.
		f.termCond.Destroy()
		if f.stack != nil {
			s.stacks.release(f.stack)
		}
		f.terminalYieldToScheduler()
		return
	}

	if f.stack != nil {
		s.stacks.release(f.stack)
	}
	f.terminalYieldToScheduler()
}

// Sleep suspends the calling fiber for durationUs microseconds; only
// Interrupt can wake it early (it then returns InterruptedError).
func (s *Scheduler) Sleep(self *Fiber, durationUs uint64) error {
	if err := self.checkInterrupted("Sleep"); err != nil {
		return err
	}
	self.state = StateSleeping
	s.sleepHeapPush(self, s.now()+durationUs)
	s.suspendCurrent(self)
	if err := self.checkInterrupted("Sleep"); err != nil {
		return err
	}
	self.flags &^= FlagTimedOut
	return nil
}

// Usleep suspends the calling fiber until durationUs elapses, or
// forever (NoTimeout) until interrupted, matching spec §6.
func (s *Scheduler) Usleep(self *Fiber, durationUs uint64) error {
	if durationUs == NoTimeout {
		if err := self.checkInterrupted("Usleep"); err != nil {
			return err
		}
		self.state = StateSuspended
		s.suspendCurrent(self)
		return self.checkInterrupted("Usleep")
	}
	return s.Sleep(self, durationUs)
}

// Poll is the unifying blocking I/O primitive (spec §4.5): it registers
// interest for every entry in pfds, suspends self until at least one is
// ready, times out, or self is interrupted, and returns the count of
// entries with nonzero Revents.
func (s *Scheduler) Poll(self *Fiber, pfds []PollFD, timeoutUs uint64) (int, error) {
	if err := self.checkInterrupted("Poll"); err != nil {
		return 0, err
	}
	if err := s.reactor.addInterest(pfds); err != nil {
		return 0, err
	}

	self.ioWaiter = &pollWaiter{pfds: pfds}
	self.state = StateIOWait
	appendLink(&self.schedLink, &s.ioQ)
	if timeoutUs != NoTimeout {
		s.sleepHeapPush(self, s.now()+timeoutUs)
	}
	s.suspendCurrent(self)

	// By the time we are resumed, whichever path woke us (dispatch's
	// ready-fiber walk, wakeTimedOut, or wakeBlocked) has already
	// unlinked self from the I/O queue and released its reactor
	// interest; self.schedLink is guaranteed detached here.
	self.ioWaiter = nil

	if err := self.checkInterrupted("Poll"); err != nil {
		return 0, err
	}
	if self.flags&FlagTimedOut != 0 {
		self.flags &^= FlagTimedOut
		return 0, &TimedOutError{Op: "Poll"}
	}

	ready := 0
	for _, p := range pfds {
		if p.Revents != 0 {
			ready++
		}
	}
	return ready, nil
}

// pollWaiter is the transient per-call descriptor linking a fiber's
// caller-owned pollfd array into the scheduler's I/O queue walk (spec §3
// "PollWaiter").
type pollWaiter struct {
	pfds []PollFD
}

// Stop requests the Run loop to exit once the current dispatch pass
// finishes (it is the caller's responsibility to first stop spawning new
// fibers and drain existing ones; Stop just breaks the loop).
func (s *Scheduler) Stop() {
	s.runState.store(schedTerminated)
	s.wake.signal()
}

// Stats returns a snapshot of scheduler bookkeeping.
func (s *Scheduler) Stats() Stats {
	registered := 0
	for i := range s.reactor.descs {
		if s.reactor.descs[i].registered != 0 {
			registered++
		}
	}
	return Stats{
		ActiveFibers:   s.activeCount,
		RunQueueDepth:  queueDepth(&s.runQ),
		IOQueueDepth:   queueDepth(&s.ioQ),
		SleepHeapDepth: s.sleep.size,
		RegisteredFDs:  registered,
		DispatchCount:  s.metrics.dispatches(),
	}
}

func queueDepth(head *clink) int {
	n := 0
	for l := head.next; l != head; l = l.next {
		n++
	}
	return n
}

// Run drives the scheduler: while any fiber other than the primordial is
// active, it resumes the next Runnable fiber, or — if none is Runnable —
// blocks in dispatch until the reactor or sleep heap produces one. Run
// returns when only the primordial fiber remains and the run queue is
// empty, or after Stop is called.
func (s *Scheduler) Run() error {
	if !s.runState.tryTransition(schedAwake, schedRunning) {
		return &InvalidError{Op: "Run", Reason: "already running or terminated"}
	}
	for {
		if s.runState.load() == schedTerminated {
			return nil
		}
		if isEmpty(&s.runQ) {
			if s.activeCount <= 1 {
				s.runState.store(schedTerminated)
				return nil
			}
			if err := s.dispatch(); err != nil {
				return err
			}
			continue
		}
		link := s.runQ.next
		removeLink(link)
		f := fiberFromSchedLink(link)
		s.resumeFromScheduler(f)
	}
}

// dispatch blocks in the kernel reactor wait (or returns promptly if the
// sleep heap's next deadline is sooner), then applies ready/timed-out
// fibers back onto the run queue (spec §4.3, §4.4).
func (s *Scheduler) dispatch() error {
	s.metrics.recordDispatch()
	s.refreshClockCache()

	timeoutMs := -1
	if min := s.sleep.min(); min != nil {
		now := s.now()
		if min.due <= now {
			timeoutMs = 0
		} else {
			wait := min.due - now
			if wait/1000 > 1<<30 {
				timeoutMs = 1 << 30
			} else {
				timeoutMs = int(wait / 1000)
				if timeoutMs == 0 && wait > 0 {
					timeoutMs = 1
				}
			}
		}
	}

	if pid := os.Getpid(); pid != s.reactor.pid {
		if err := s.recoverFromFork(pid); err != nil {
			return err
		}
	}

	n, err := s.reactor.backend.wait(s.reactor.kfd, timeoutMs, s.reactor.evBuf)
	if err != nil {
		return &OSError{Op: "dispatch", Err: err}
	}

	touched := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		ev := s.reactor.evBuf[i]
		if ev.fd == s.wake.rfd {
			s.wake.drain()
			touched[ev.fd] = struct{}{}
			continue
		}
		if ev.fd < 0 || ev.fd >= len(s.reactor.descs) {
			continue
		}
		d := &s.reactor.descs[ev.fd]
		bits := ev.bits
		if bits&(PollErr|PollHup) != 0 {
			bits |= d.wantMask()
		}
		d.latched |= bits
		touched[ev.fd] = struct{}{}
	}

	for link := s.ioQ.next; link != &s.ioQ; {
		next := link.next
		f := fiberFromSchedLink(link)
		if f.ioWaiter != nil && s.fiberReady(f.ioWaiter.pfds) {
			removeLink(link)
			s.reactor.removeInterest(f.ioWaiter.pfds)
			s.sleepHeapRemove(f)
			s.enqueueRunnable(f)
		}
		link = next
	}

	for fd := range touched {
		s.reactor.reconcile(fd)
	}

	now := s.now()
	for _, f := range s.sleep.popDue(now) {
		s.wakeTimedOut(f)
	}
	return nil
}

// fiberReady sets Revents on every entry of pfds whose fd has latched
// bits intersecting its requested interest, returning whether any did.
func (s *Scheduler) fiberReady(pfds []PollFD) bool {
	ready := false
	for i := range pfds {
		fd := pfds[i].FD
		if fd < 0 || fd >= len(s.reactor.descs) {
			continue
		}
		latched := s.reactor.descs[fd].latched
		hit := latched & (pfds[i].Events | PollErr | PollHup)
		if hit != 0 {
			pfds[i].Revents = hit
			ready = true
		}
	}
	return ready
}

func (s *Scheduler) wakeTimedOut(f *Fiber) {
	switch f.state {
	case StateIOWait:
		removeLink(&f.schedLink)
		if f.ioWaiter != nil {
			s.reactor.removeInterest(f.ioWaiter.pfds)
		}
	case StateLockWait, StateCondWait:
		removeLink(&f.waitLink)
	default:
	}
	f.flags |= FlagTimedOut
	s.enqueueRunnable(f)
}

// recoverFromFork re-creates the kernel reactor handle and re-registers
// every currently-queued I/O waiter's interest after a fork (spec §6
// "Behaviour at process fork"): the child's copied epoll/kqueue fd is
// invalid in the new process.
func (s *Scheduler) recoverFromFork(newPid int) error {
	kfd, err := s.reactor.backend.open()
	if err != nil {
		return &OSError{Op: "recoverFromFork", Err: err}
	}
	s.reactor.kfd = kfd
	s.reactor.pid = newPid
	for i := range s.reactor.descs {
		s.reactor.descs[i].registered = 0
		s.reactor.descs[i].latched = 0
	}
	// The wake pipe's own interest predates any fiber and would otherwise
	// be forgotten here since it has no ioQ waiter.
	if err := s.reactor.reregisterFD(s.wake.rfd); err != nil {
		return err
	}
	for link := s.ioQ.next; link != &s.ioQ; link = link.next {
		f := fiberFromSchedLink(link)
		if f.ioWaiter != nil {
			for _, p := range f.ioWaiter.pfds {
				if err := s.reactor.reregisterFD(p.FD); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
