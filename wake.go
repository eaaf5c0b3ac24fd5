//go:build linux || darwin

package fiberrt

import "sync/atomic"

// wakeSignal is the scheduler's self-pipe (spec §4.3's reactor wait is
// otherwise blind to requests made from outside the loop goroutine —
// Stop, called from another goroutine while dispatch is blocked in the
// kernel wait, signals it to break the wait out promptly; Spawn and
// Interrupt do not signal it).
// Grounded on the teacher's wakeup_linux.go/wakeup_darwin.go, collapsed
// to one cross-platform implementation over fd_unix.go's newPipe since
// this runtime has no eventfd-specific fast path to preserve.
type wakeSignal struct {
	rfd, wfd int
	pending  atomic.Bool
}

func newWakeSignal() (*wakeSignal, error) {
	r, w, err := newPipe()
	if err != nil {
		return nil, &OSError{Op: "wake.pipe", Err: err}
	}
	return &wakeSignal{rfd: r, wfd: w}, nil
}

// signal wakes a blocked reactor wait at most once per drain; redundant
// calls before the next drain are coalesced.
func (w *wakeSignal) signal() {
	if w.pending.CompareAndSwap(false, true) {
		var b [1]byte
		_, _ = writeFD(w.wfd, b[:])
	}
}

// drain empties the pipe and clears pending, to be called once per
// dispatch pass after the kernel wait returns.
func (w *wakeSignal) drain() {
	w.pending.Store(false)
	var buf [64]byte
	for {
		n, err := readFD(w.rfd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *wakeSignal) close() {
	_ = closeFD(w.rfd)
	_ = closeFD(w.wfd)
}
