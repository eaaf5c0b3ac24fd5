package fiberrt

import (
	"math/rand"

	"golang.org/x/sys/unix"
)

// pageSize is cached at package init; guard bands are one page each,
// matching original_source/stk.c's REDZONE definition.
var pageSize = unix.Getpagesize()

// stackRegion is a guard-banded stack allocation (spec §3, §4.1):
// REDZONE | usable span | REDZONE, with an optional randomized offset.
//
// Deviation from the reference runtime: the
// original co-locates the fiber control block and its TLS vector at the
// low end of this same mmap'd region. Go's garbage collector cannot
// safely scan or relocate values living inside raw mmap'd memory, so
// here the arena owns only the guard-banded bytes (for true guard-page
// fault semantics and free-list reuse bookkeeping); the Fiber control
// block is an ordinary Go-heap allocation. The "one allocation per
// fiber, bottom region reserved" invariant from spec §9 is honored in
// spirit (one arena allocation backs each fiber's stack budget) rather
// than literal co-location.
type stackRegion struct {
	vaddr   []byte // the full mmap'd span, including both guard bands
	stkSize int    // usable size requested by the caller
	offset  int    // randomized offset applied to bottom/top, if enabled
}

// stackArena is the global free-list allocator (spec §4.1). Regions are
// never returned to the OS; release returns them to the free list for
// reuse, matching "stacks are never freed to the OS" (spec §3
// Lifecycle).
type stackArena struct {
	free       []*stackRegion
	randomize  bool
	randSource *rand.Rand
}

func newStackArena(randomize bool, seed uint64) *stackArena {
	return &stackArena{
		randomize:  randomize,
		randSource: rand.New(rand.NewSource(int64(seed))), //nolint:gosec // not cryptographic
	}
}

const redzone = 1 // multiples of pageSize; kept as a named constant for clarity at call sites

// allocate returns a region with usable capacity >= size, rounded up to
// a page multiple, reusing a free-list entry first (first-fit, spec
// §4.1), otherwise mmap'ing a fresh `size + 2*REDZONE(+page if
// randomizing)` span and mprotect'ing both guard bands to PROT_NONE.
func (a *stackArena) allocate(size int) (*stackRegion, error) {
	size = roundUpPage(size)

	for i, r := range a.free {
		if r.stkSize >= size {
			a.free = append(a.free[:i], a.free[i+1:]...)
			return r, nil
		}
	}

	extra := 0
	if a.randomize {
		extra = pageSize
	}
	vsize := size + 2*pageSize*redzone + extra

	vaddr, err := unix.Mmap(-1, 0, vsize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &OSError{Op: "mmap", Err: err}
	}

	if err := unix.Mprotect(vaddr[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(vaddr)
		return nil, &OSError{Op: "mprotect", Err: err}
	}
	if err := unix.Mprotect(vaddr[len(vaddr)-pageSize:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(vaddr)
		return nil, &OSError{Op: "mprotect", Err: err}
	}

	r := &stackRegion{vaddr: vaddr, stkSize: size}
	if extra > 0 {
		r.offset = int(a.randSource.Int63()%int64(extra)) &^ 0xf
	}
	return r, nil
}

// release returns r to the arena's free list for reuse by a later
// allocation of equal-or-smaller size. It never unmaps the underlying
// pages.
func (a *stackArena) release(r *stackRegion) {
	a.free = append(a.free, r)
}

func roundUpPage(n int) int {
	if n <= 0 {
		n = DefaultStackSize
	}
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}
