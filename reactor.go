package fiberrt

import "os"

// kernelEvent is one readiness event returned by a backend's wait call,
// already translated into this package's PollInterest bits.
type kernelEvent struct {
	fd    int
	bits  PollInterest
}

// kernelBackend is the small platform-specific surface the reactor
// drives: epoll on Linux (poller_linux.go), kqueue on Darwin
// (poller_darwin.go). Everything else — refcounting, the latched-
// revents dance, fork recovery, the I/O-queue walk — is shared in
// reactorCore/Scheduler.dispatch (spec §4.3).
type kernelBackend interface {
	open() (int, error)
	closeHandle(kfd int) error
	wait(kfd int, timeoutMs int, out []kernelEvent) (int, error)
	ctlAdd(kfd, fd int, mask PollInterest) error
	ctlMod(kfd, fd int, mask PollInterest) error
	ctlDel(kfd, fd int) error
	limit() int
}

// fdDesc is the reactor's per-descriptor table entry (spec §3 "Reactor
// descriptor table"): three reference counts and a latched revents
// bitset valid for the duration of a single dispatch pass.
type fdDesc struct {
	rd, wr, pri int32
	latched     PollInterest
	registered  PollInterest // mask currently installed in the kernel
	inUse       bool
}

func (d *fdDesc) wantMask() PollInterest {
	var m PollInterest
	if d.rd > 0 {
		m |= PollIn
	}
	if d.wr > 0 {
		m |= PollOut
	}
	if d.pri > 0 {
		m |= PollPri
	}
	return m
}

// reactorCore holds the backend-agnostic state of the reactor: the
// descriptor table, event buffer, and fork-detection PID, grounded on
// original_source/event.c's _epoll_fd_data_t/_st_netfd table.
type reactorCore struct {
	backend kernelBackend
	kfd     int
	pid     int
	descs   []fdDesc
	evBuf   []kernelEvent
	logger  Logger
}

func newReactorCore(backend kernelBackend, evBufCap, minFDs int, logger Logger) *reactorCore {
	return &reactorCore{
		backend: backend,
		descs:   make([]fdDesc, minFDs),
		evBuf:   make([]kernelEvent, evBufCap),
		logger:  logger,
	}
}

// init creates the kernel handle and captures the PID used for later
// fork detection (spec §4.3 / §6 "Behaviour at process fork").
func (r *reactorCore) init() error {
	kfd, err := r.backend.open()
	if err != nil {
		return &OSError{Op: "reactor.init", Err: err}
	}
	r.kfd = kfd
	r.pid = os.Getpid()
	return nil
}

func (r *reactorCore) fdLimit() int { return r.backend.limit() }

// fdNew ensures table capacity for fd (spec §4.3 fd_new).
func (r *reactorCore) fdNew(fd int) error {
	r.growTo(fd)
	r.descs[fd].inUse = true
	return nil
}

// fdClose refuses if any refcount is nonzero (spec §4.3 fd_close ->
// Busy), mirroring original_source/event.c _st_epoll_fd_close's EBUSY.
func (r *reactorCore) fdClose(fd int) error {
	if fd < 0 || fd >= len(r.descs) {
		return nil
	}
	d := &r.descs[fd]
	if d.rd != 0 || d.wr != 0 || d.pri != 0 {
		return &BusyError{Op: "fd_close"}
	}
	*d = fdDesc{}
	return nil
}

func (r *reactorCore) growTo(fd int) {
	if fd < len(r.descs) {
		return
	}
	n := len(r.descs) * 2
	if n <= fd {
		n = fd + 1
	}
	grown := make([]fdDesc, n)
	copy(grown, r.descs)
	r.descs = grown
}

// addInterest validates and increments refcounts for every entry in
// pfds, issuing ADD/MOD for any fd whose mask changed. On partial
// failure it rolls back everything already applied (spec §4.3).
func (r *reactorCore) addInterest(pfds []PollFD) error {
	applied := 0
	for _, p := range pfds {
		if p.FD < 0 || p.Events&(PollIn|PollOut|PollPri) == 0 {
			r.rollbackInterest(pfds[:applied])
			return &InvalidError{Op: "add_interest", Reason: "bad fd or empty interest"}
		}
		r.growTo(p.FD)
		d := &r.descs[p.FD]
		before := d.wantMask()
		if p.Events&PollIn != 0 {
			d.rd++
		}
		if p.Events&PollOut != 0 {
			d.wr++
		}
		if p.Events&PollPri != 0 {
			d.pri++
		}
		after := d.wantMask()
		if after != before {
			var err error
			if before == 0 {
				err = r.backend.ctlAdd(r.kfd, p.FD, after)
			} else {
				err = r.backend.ctlMod(r.kfd, p.FD, after)
			}
			if err != nil {
				r.undoOne(p)
				r.rollbackInterest(pfds[:applied])
				return &OSError{Op: "add_interest", Err: err}
			}
			d.registered = after
		}
		applied++
	}
	return nil
}

func (r *reactorCore) undoOne(p PollFD) {
	d := &r.descs[p.FD]
	if p.Events&PollIn != 0 {
		d.rd--
	}
	if p.Events&PollOut != 0 {
		d.wr--
	}
	if p.Events&PollPri != 0 {
		d.pri--
	}
}

func (r *reactorCore) rollbackInterest(applied []PollFD) {
	for i := len(applied) - 1; i >= 0; i-- {
		r.removeOne(applied[i], false)
	}
}

// removeInterest mirrors addInterest's refcount bookkeeping but tolerates
// kernel errors (the fd may already be closed), and — the load-bearing
// rule from spec §4.3 — skips the kernel call entirely for any fd whose
// latched revents are still nonzero, because Scheduler.dispatch's step 6
// performs the authoritative reconciliation afterwards.
func (r *reactorCore) removeInterest(pfds []PollFD) {
	for _, p := range pfds {
		r.removeOne(p, true)
	}
}

func (r *reactorCore) removeOne(p PollFD, skipIfLatched bool) {
	if p.FD < 0 || p.FD >= len(r.descs) {
		return
	}
	d := &r.descs[p.FD]
	if p.Events&PollIn != 0 && d.rd > 0 {
		d.rd--
	}
	if p.Events&PollOut != 0 && d.wr > 0 {
		d.wr--
	}
	if p.Events&PollPri != 0 && d.pri > 0 {
		d.pri--
	}
	if skipIfLatched && d.latched != 0 {
		return
	}
	r.reconcile(p.FD)
}

// reconcile issues ADD/MOD/DEL for fd so the kernel registration matches
// the current refcount-derived mask, and clears latched revents for it.
func (r *reactorCore) reconcile(fd int) {
	d := &r.descs[fd]
	want := d.wantMask()
	d.latched = 0
	if want == d.registered {
		return
	}
	var err error
	switch {
	case want == 0:
		err = r.backend.ctlDel(r.kfd, fd)
	case d.registered == 0:
		err = r.backend.ctlAdd(r.kfd, fd, want)
	default:
		err = r.backend.ctlMod(r.kfd, fd, want)
	}
	if err != nil {
		logWarn(r.logger, "reactor", "kernel reconcile failed", err)
	}
	d.registered = want
}

// reregisterFD re-issues ctlAdd for fd's current wantMask without
// touching refcounts, used by Scheduler.recoverFromFork after a new
// kernel handle has been opened in the child process: the old
// registrations are gone, but the refcount bookkeeping (who wants what)
// is still valid and must be preserved.
func (r *reactorCore) reregisterFD(fd int) error {
	if fd < 0 || fd >= len(r.descs) {
		return nil
	}
	d := &r.descs[fd]
	want := d.wantMask()
	if want == 0 {
		return nil
	}
	if err := r.backend.ctlAdd(r.kfd, fd, want); err != nil {
		return &OSError{Op: "reregisterFD", Err: err}
	}
	d.registered = want
	return nil
}

func (r *reactorCore) close() error {
	if r.kfd == 0 {
		return nil
	}
	return r.backend.closeHandle(r.kfd)
}
