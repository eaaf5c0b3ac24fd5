package fiberrt

// Cond is a condition variable whose wait does not require a paired
// mutex (spec §4.7, grounded on original_source/sync.c's st_cond_*).
// The caller is responsible for ensuring its predicate check and the
// call to Wait/TimedWait are not interleaved with another suspending
// call on the same fiber.
type Cond struct {
	sched *Scheduler
	waitQ clink
}

// newCond creates a condvar bound to s. Unexported: fiber.go's join
// condvar is internal machinery; application code gets condvars via
// Scheduler.NewCond.
func (s *Scheduler) newCond() *Cond {
	c := &Cond{sched: s}
	initCList(&c.waitQ)
	return c
}

// NewCond creates a new condition variable.
func (s *Scheduler) NewCond() *Cond { return s.newCond() }

// Wait blocks the calling fiber until signaled or interrupted, with no
// timeout.
func (c *Cond) Wait(self *Fiber) error {
	return c.timedwait(self, NoTimeout)
}

// TimedWait blocks until signaled, interrupted, or timeoutUs elapses.
// Failure precedence on wake: Interrupted first, then TimedOut, else
// success (spec §4.7).
func (c *Cond) TimedWait(self *Fiber, timeoutUs uint64) error {
	return c.timedwait(self, timeoutUs)
}

func (c *Cond) timedwait(self *Fiber, timeoutUs uint64) error {
	if err := self.checkInterrupted("Cond.Wait"); err != nil {
		return err
	}
	self.state = StateCondWait
	appendLink(&self.waitLink, &c.waitQ)
	if timeoutUs != NoTimeout {
		self.sched.sleepHeapPush(self, self.sched.now()+timeoutUs)
	}
	self.sched.suspendCurrent(self)

	removeLink(&self.waitLink)
	if err := self.checkInterrupted("Cond.Wait"); err != nil {
		return err
	}
	if self.flags&FlagTimedOut != 0 {
		self.flags &^= FlagTimedOut
		return &TimedOutError{Op: "Cond.Wait"}
	}
	return nil
}

// Signal wakes at most one waiter (the one waiting longest), removing
// it from the sleep heap first if it has a timeout pending — every
// waiter is unconditionally removed from the heap here (spec §9 Open
// Question: "every waiter is removed from the sleep heap unconditionally,
// even those added without a timeout"), which is safe because remove is
// a no-op for fibers with onSleepHeap == false (Option (a), heap.go).
func (c *Cond) Signal() {
	c.wake(false)
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() {
	c.wake(true)
}

func (c *Cond) wake(broadcast bool) {
	for {
		if isEmpty(&c.waitQ) {
			return
		}
		link := c.waitQ.next
		removeLink(link)
		f := fiberFromWaitLink(link)
		c.sched.sleepHeapRemove(f)
		f.state = StateRunnable
		c.sched.enqueueRunnable(f)
		if !broadcast {
			return
		}
	}
}

// Destroy releases c's resources. It is an error to destroy a condvar
// with pending waiters.
func (c *Cond) Destroy() error {
	if !isEmpty(&c.waitQ) {
		return &BusyError{Op: "Cond.Destroy"}
	}
	return nil
}
