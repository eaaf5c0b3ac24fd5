package fiberrt

import "math"

// Constants from spec §6.
const (
	// NoTimeout means "wait forever" for any timeout-taking call.
	NoTimeout uint64 = math.MaxUint64
	// NoWait means "don't block; return immediately if not ready".
	NoWait uint64 = 0

	// DefaultStackSize is the default fiber stack size: 128 KiB.
	DefaultStackSize = 128 * 1024
	// MaxTLSKeys is the default maximum number of TLS keys.
	MaxTLSKeys = 16
	// MinPollFDsHint is the default initial size of the reactor's
	// descriptor table.
	MinPollFDsHint = 64
	// DefaultEventBufferSize is the default reactor kernel event buffer
	// capacity.
	DefaultEventBufferSize = 4096
)

// PollInterest is the set of readiness interests a caller may register
// for a descriptor, mirroring POSIX poll(2) bits.
type PollInterest uint32

const (
	PollIn   PollInterest = 1 << iota // readable
	PollOut                           // writable
	PollPri                           // out-of-band/priority data
	PollErr                           // error condition (never requested, only reported)
	PollHup                           // hangup (never requested, only reported)
)

// PollFD is one entry in a Poll() call's descriptor array (spec §3
// PollWaiter: "pointer to a caller-owned array of {fd, interest_bits,
// ready_bits}").
type PollFD struct {
	FD       int
	Events   PollInterest
	Revents  PollInterest
}
