package fiberrt

// Mutex is a cooperative lock with FIFO handoff (spec §4.7, grounded on
// original_source/sync.c's st_mutex_*). Unlock transfers ownership
// directly to the head of the wait list; the lock is never observably
// "free" in between — the next fiber is made Runnable holding it.
type Mutex struct {
	sched *Scheduler
	owner *Fiber
	waitQ clink
}

// NewMutex creates an unlocked mutex bound to s.
func (s *Scheduler) NewMutex() *Mutex {
	m := &Mutex{sched: s}
	initCList(&m.waitQ)
	return m
}

// Lock blocks the calling fiber until it owns m.
func (m *Mutex) Lock(self *Fiber) error {
	if err := self.checkInterrupted("Mutex.Lock"); err != nil {
		return err
	}
	if m.owner == self {
		return &DeadlockError{}
	}
	if m.owner == nil {
		m.owner = self
		return nil
	}
	self.state = StateLockWait
	appendLink(&self.waitLink, &m.waitQ)
	self.sched.suspendCurrent(self)

	if err := self.checkInterrupted("Mutex.Lock"); err != nil {
		removeLink(&self.waitLink)
		return err
	}
	// Handed ownership directly by Unlock; nothing further to do.
	return nil
}

// TryLock attempts to acquire m without blocking, returning BusyError if
// already held.
func (m *Mutex) TryLock(self *Fiber) error {
	if m.owner != nil {
		return &BusyError{Op: "Mutex.TryLock"}
	}
	m.owner = self
	return nil
}

// Unlock releases m, handing ownership directly to the next waiter (if
// any) and making it Runnable; otherwise m becomes ownerless.
func (m *Mutex) Unlock(self *Fiber) error {
	if m.owner != self {
		return &NotOwnerError{}
	}
	if isEmpty(&m.waitQ) {
		m.owner = nil
		return nil
	}
	next := m.waitQ.next
	removeLink(next)
	nf := fiberFromWaitLink(next)
	m.owner = nf
	nf.state = StateRunnable
	m.sched.enqueueRunnable(nf)
	return nil
}

// Destroy releases m's resources. It is an error to destroy a mutex
// with waiters or a current owner.
func (m *Mutex) Destroy() error {
	if m.owner != nil || !isEmpty(&m.waitQ) {
		return &BusyError{Op: "Mutex.Destroy"}
	}
	return nil
}
