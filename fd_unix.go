//go:build linux || darwin

package fiberrt

import "golang.org/x/sys/unix"

// closeFD closes a raw file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a raw file descriptor.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a raw file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblock sets or clears O_NONBLOCK, used by netfd.go's constructor
// the way original_source/io.c's _st_netfd_new does (ioctl FIONBIO for
// sockets historically; fcntl works uniformly on modern Unixes and is
// what every example repo in this pack uses).
func setNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// newPipe creates a non-blocking pipe, used for the scheduler's
// self-pipe wakeup trick (wake.go / scheduler.go dispatch), grounded on
// the teacher's wakeup_linux.go/wakeup_darwin.go use of a wake fd. Plain
// Pipe + fcntl is used (rather than Linux-only pipe2) so the same code
// path works on both build targets covered by this file.
func newPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
		unix.CloseOnExec(fd)
	}
	return fds[0], fds[1], nil
}
