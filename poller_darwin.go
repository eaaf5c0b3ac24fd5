//go:build darwin

package fiberrt

import "golang.org/x/sys/unix"

// kqueueBackend implements kernelBackend over kqueue, grounded on
// original_source/event.c's _st_kq_* family and the teacher's
// poller_darwin.go (Kqueue/Kevent_t usage, EV_ADD/EV_DELETE pairing).
//
// Unlike epoll, kqueue has no single "mask" per fd: read and write
// interest are independent filters, each added/deleted separately. The
// reactor core only calls ctlAdd/ctlMod/ctlDel with the fd's full
// wanted mask, and this backend keeps no memory of the previously
// registered mask to diff against; instead every call simply issues
// EV_ADD or EV_DELETE for whichever filters the final mask does/doesn't
// want, which is idempotent and safe to repeat.
type kqueueBackend struct{}

func (kqueueBackend) open() (int, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return 0, err
	}
	unix.CloseOnExec(kq)
	return kq, nil
}

func (kqueueBackend) closeHandle(kfd int) error {
	return unix.Close(kfd)
}

// applyMask issues EV_ADD for filters present in want and EV_DELETE for
// the complementary filters in all, so the kernel ends up registered
// for exactly want's filters. Deleting a filter that was never added is
// tolerated: each change is submitted in its own Kevent call, and an
// ENOENT failure from that call is ignored.
func applyMask(kfd, fd int, want PollInterest) error {
	var changes []unix.Kevent_t
	addFlags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	delFlags := uint16(unix.EV_DELETE)

	if want&PollIn != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: addFlags})
	} else {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: delFlags})
	}
	if want&PollOut != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: addFlags})
	} else {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: delFlags})
	}

	for _, c := range changes {
		_, err := unix.Kevent(kfd, []unix.Kevent_t{c}, nil, nil)
		if err != nil && err != unix.ENOENT {
			return err
		}
	}
	return nil
}

func (kqueueBackend) ctlAdd(kfd, fd int, mask PollInterest) error {
	return applyMask(kfd, fd, mask)
}

func (kqueueBackend) ctlMod(kfd, fd int, mask PollInterest) error {
	return applyMask(kfd, fd, mask)
}

func (kqueueBackend) ctlDel(kfd, fd int) error {
	return applyMask(kfd, fd, 0)
}

// limit reports 0 (unlimited): kqueue imposes no fixed fd cap of its
// own, matching original_source/event.c _st_kq_fd_getlimit.
func (kqueueBackend) limit() int { return 0 }

func (kqueueBackend) wait(kfd int, timeoutMs int, out []kernelEvent) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1000000,
		}
	}

	raw := make([]unix.Kevent_t, len(out))
	n, err := unix.Kevent(kfd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		var bits PollInterest
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			bits |= PollIn
		case unix.EVFILT_WRITE:
			bits |= PollOut
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			bits |= PollErr
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			bits |= PollHup
		}
		out[i] = kernelEvent{fd: int(raw[i].Ident), bits: bits}
	}
	return n, nil
}

func newPlatformReactor(evBufCap, minFDs int, logger Logger) *reactorCore {
	return newReactorCore(kqueueBackend{}, evBufCap, minFDs, logger)
}
