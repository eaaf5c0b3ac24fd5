// Package fiberrt provides a cooperative user-space threading runtime
// ("fibers") multiplexed onto a single kernel thread. Application code
// writes synchronous-looking I/O against a blocking-style API; under the
// covers every potentially blocking call suspends the calling fiber,
// yields to a scheduler, and resumes when the awaited event fires.
//
// # Architecture
//
// A [Scheduler] owns a run queue, an I/O wait queue, a zombie queue, and
// a min-heap of sleeping fibers. Every yield swaps from a [Fiber] into the
// scheduler context; the scheduler picks the head of the run queue, or,
// when the run queue is empty, runs a dispatch pass itself, which waits
// on the reactor (epoll on Linux, kqueue on Darwin) up to the next sleep
// deadline. There is no separate idle fiber.
//
// Fibers never switch directly into other fibers: every transition is
// fiber → scheduler → fiber. This makes the entire runtime single
// threaded from the perspective of its own data structures — nothing in
// this package synchronizes queue or heap mutation, because only one
// fiber is ever executing at a time.
//
// # Platform support
//
// The reactor is implemented against the epoll family on Linux
// ([poller_linux.go]) and kqueue on Darwin/BSD ([poller_darwin.go]).
// There is no Windows backend: IOCP is a fundamentally different I/O
// model and out of this runtime's scope.
//
// # Usage
//
//	sched, err := fiberrt.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sched.Spawn(func(f *fiberrt.Fiber) {
//	    nfd, _ := sched.NewNetFD(osfd, true)
//	    buf := make([]byte, 16)
//	    n, err := nfd.Read(f, buf)
//	    _ = n
//	    _ = err
//	}, fiberrt.SpawnOptions{StackSize: 64 * 1024})
//
//	sched.Run()
//
// # Error types
//
// The package surfaces typed errors ([InterruptedError], [TimedOutError],
// [DeadlockError], [NotOwnerError], [BusyError], [InvalidError],
// [OSError]), all implementing [error] and [errors.Unwrap] for matching
// via [errors.Is]/[errors.As].
package fiberrt
