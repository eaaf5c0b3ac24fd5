//go:build linux

package fiberrt

import (
	"golang.org/x/sys/unix"
)

// epollBackend implements kernelBackend over epoll, grounded on
// original_source/event.c's _st_epoll_* family and the teacher's
// poller_linux.go (EpollCreate1, cache-line-padding-conscious struct
// shape, EpollWait usage).
type epollBackend struct{}

func (epollBackend) open() (int, error) {
	return unix.EpollCreate1(unix.EPOLL_CLOEXEC)
}

func (epollBackend) closeHandle(kfd int) error {
	return unix.Close(kfd)
}

func interestToEpoll(m PollInterest) uint32 {
	var e uint32
	if m&PollIn != 0 {
		e |= unix.EPOLLIN
	}
	if m&PollOut != 0 {
		e |= unix.EPOLLOUT
	}
	if m&PollPri != 0 {
		e |= unix.EPOLLPRI
	}
	return e
}

func epollToInterest(e uint32) PollInterest {
	var m PollInterest
	if e&unix.EPOLLIN != 0 {
		m |= PollIn
	}
	if e&unix.EPOLLOUT != 0 {
		m |= PollOut
	}
	if e&unix.EPOLLPRI != 0 {
		m |= PollPri
	}
	if e&unix.EPOLLERR != 0 {
		m |= PollErr
	}
	if e&unix.EPOLLHUP != 0 {
		m |= PollHup
	}
	return m
}

func (epollBackend) ctlAdd(kfd, fd int, mask PollInterest) error {
	ev := unix.EpollEvent{Events: interestToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(kfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (epollBackend) ctlMod(kfd, fd int, mask PollInterest) error {
	ev := unix.EpollEvent{Events: interestToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(kfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (epollBackend) ctlDel(kfd, fd int) error {
	return unix.EpollCtl(kfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// limit reports 0 (unlimited): epoll imposes no fixed fd cap of its own,
// matching original_source/event.c _st_epoll_fd_getlimit.
func (epollBackend) limit() int { return 0 }

func (epollBackend) wait(kfd int, timeoutMs int, out []kernelEvent) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(kfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		out[i] = kernelEvent{fd: int(raw[i].Fd), bits: epollToInterest(raw[i].Events)}
	}
	return n, nil
}

func newPlatformReactor(evBufCap, minFDs int, logger Logger) *reactorCore {
	return newReactorCore(epollBackend{}, evBufCap, minFDs, logger)
}
