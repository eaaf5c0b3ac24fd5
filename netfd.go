package fiberrt

import "sync"

// NetFD wraps a raw file descriptor with the bookkeeping the blocking
// I/O wrappers in io.go need, matching original_source/io.c's
// st_netfd_t / _ST_NETFD_T osfd/f_flags fields. NewNetFD always puts the
// descriptor into non-blocking mode and records that in didSetNB; Close
// does not restore the previous mode.
type NetFD struct {
	sched    *Scheduler
	fd       int
	isSocket bool
	didSetNB bool
	closed   bool

	userData   any
	destructor func(any)
}

// netfdFreeList recycles *NetFD control blocks (spec §4.3's free-list
// pattern reused here for NetFD rather than Fiber, grounded on
// original_source/io.c's st_netfd_free/_st_netfd_new free list).
type netfdFreeList struct {
	mu   sync.Mutex
	free []*NetFD
}

func (l *netfdFreeList) get() *NetFD {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.free); n > 0 {
		nfd := l.free[n-1]
		l.free = l.free[:n-1]
		return nfd
	}
	return &NetFD{}
}

func (l *netfdFreeList) put(nfd *NetFD) {
	*nfd = NetFD{}
	l.mu.Lock()
	l.free = append(l.free, nfd)
	l.mu.Unlock()
}

// NewNetFD wraps fd for use with the scheduler's blocking I/O wrappers,
// registering it with the reactor and putting it into non-blocking mode
// if it is not already (original_source/io.c _st_netfd_new).
func (s *Scheduler) NewNetFD(fd int, isSocket bool) (*NetFD, error) {
	nfd := s.netfdFree.get()
	nfd.sched = s
	nfd.fd = fd
	nfd.isSocket = isSocket

	if err := setNonblock(fd, true); err != nil {
		return nil, &OSError{Op: "NewNetFD", Err: err}
	}
	nfd.didSetNB = true

	if err := s.reactor.fdNew(fd); err != nil {
		return nil, err
	}
	return nfd, nil
}

// FD returns the wrapped raw file descriptor.
func (n *NetFD) FD() int { return n.fd }

// GetData returns the opaque user data previously attached via
// SetData, or nil if none has been set (original_source/io.c's
// st_netfd_getspecific).
func (n *NetFD) GetData() any { return n.userData }

// SetData attaches opaque user data to n, with an optional destructor.
// If a different value is already attached, its destructor (if any)
// runs immediately before value replaces it — matching
// original_source/io.c's st_netfd_setspecific, which only fires the old
// destructor when the value actually changes.
func (n *NetFD) SetData(value any, destructor func(any)) {
	if n.userData != nil && value != n.userData && n.destructor != nil {
		n.destructor(n.userData)
	}
	n.userData = value
	n.destructor = destructor
}

// runDestructor invokes n's destructor over any attached user data,
// matching original_source/io.c's st_netfd_free.
func (n *NetFD) runDestructor() {
	if n.userData != nil && n.destructor != nil {
		n.destructor(n.userData)
	}
	n.userData = nil
	n.destructor = nil
}

// Close closes the underlying descriptor, refusing (BusyError) if any
// fiber still holds an outstanding poll interest on it, matching
// original_source/event.c's EBUSY from _st_epoll_fd_close.
func (n *NetFD) Close() error {
	if n.closed {
		return nil
	}
	if err := n.sched.reactor.fdClose(n.fd); err != nil {
		return err
	}
	n.closed = true
	n.runDestructor()
	err := closeFD(n.fd)
	n.sched.netfdFree.put(n)
	if err != nil {
		return &OSError{Op: "NetFD.Close", Err: err}
	}
	return nil
}
