package fiberrt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepHeap_MinOrdering(t *testing.T) {
	var h sleepHeap
	dues := []uint64{50, 10, 40, 20, 30}
	fibers := make([]*Fiber, len(dues))
	for i, d := range dues {
		f := &Fiber{id: uint64(i)}
		fibers[i] = f
		h.insert(f, d)
	}
	require.Equal(t, len(dues), h.size)

	var popped []uint64
	for h.size > 0 {
		m := h.min()
		popped = append(popped, m.due)
		h.remove(m)
	}
	assert.Equal(t, []uint64{10, 20, 30, 40, 50}, popped)
}

func TestSleepHeap_RemoveNotOnHeapIsNoop(t *testing.T) {
	var h sleepHeap
	f := &Fiber{id: 1}
	h.remove(f) // never inserted
	assert.Equal(t, 0, h.size)
	assert.False(t, f.onSleepHeap)
}

func TestSleepHeap_RemoveArbitraryElement(t *testing.T) {
	var h sleepHeap
	var fibers []*Fiber
	for i, d := range []uint64{5, 1, 9, 3, 7, 2, 8, 4, 6} {
		f := &Fiber{id: uint64(i)}
		fibers = append(fibers, f)
		h.insert(f, d)
	}

	// Remove one from the middle of the ordering and verify the rest
	// still drain in non-decreasing order.
	target := fibers[4] // due=7
	h.remove(target)
	assert.False(t, target.onSleepHeap)

	var prev uint64
	for h.size > 0 {
		m := h.min()
		assert.GreaterOrEqual(t, m.due, prev)
		prev = m.due
		h.remove(m)
	}
}

// TestSleepHeap_RemoveReplacementSmallerThanAncestor targets the
// ancestor-swap walk in remove(). It builds a 7-node heap by hand (valid
// min-heap: every node's due is >= its parent's) where the slot being
// removed (index 4, due=60) has an ancestor (index 2, due=50) that is
// larger than the replacement element's due (index 7, due=4, from an
// entirely different branch — its own ancestors, index 3/due=2 and the
// root, impose no constraint relative to index 2). A remove() that only
// sifts the replacement's new children down — and never compares it
// against the ancestors on the path to the vacated slot — leaves index 2
// (due=50) as the parent of a due=4 child, a min-heap violation that a
// subsequent drain-to-empty must expose as an out-of-order pop.
func TestSleepHeap_RemoveReplacementSmallerThanAncestor(t *testing.T) {
	mk := func(id uint64, due uint64, idx int) *Fiber {
		return &Fiber{id: id, due: due, heapIndex: idx, onSleepHeap: true}
	}
	root := mk(1, 1, 1)
	n2 := mk(2, 50, 2)
	n3 := mk(3, 2, 3)
	n4 := mk(4, 60, 4) // removed below
	n5 := mk(5, 70, 5)
	n6 := mk(6, 3, 6)
	n7 := mk(7, 4, 7) // becomes the "last" replacement

	root.left, root.right = n2, n3
	n2.left, n2.right = n4, n5
	n3.left, n3.right = n6, n7

	h := sleepHeap{root: root, size: 7}

	h.remove(n4)
	require.Equal(t, 6, h.size)
	assert.False(t, n4.onSleepHeap)

	var prev uint64
	count := 0
	for h.size > 0 {
		m := h.min()
		assert.GreaterOrEqualf(t, m.due, prev, "pop #%d (due=%d) came after due=%d: min-heap property violated", count, m.due, prev)
		prev = m.due
		h.remove(m)
		count++
	}
	assert.Equal(t, 6, count)
}

func TestSleepHeap_PopDue(t *testing.T) {
	var h sleepHeap
	h.insert(&Fiber{id: 1}, 100)
	h.insert(&Fiber{id: 2}, 200)
	h.insert(&Fiber{id: 3}, 300)

	due := h.popDue(200)
	assert.Len(t, due, 2)
	assert.Equal(t, 1, h.size)
	assert.Equal(t, uint64(300), h.min().due)
}

func TestSleepHeap_RandomizedRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var h sleepHeap
	const n = 200
	fibers := make([]*Fiber, n)
	for i := 0; i < n; i++ {
		f := &Fiber{id: uint64(i)}
		fibers[i] = f
		h.insert(f, uint64(rng.Intn(1000)))
	}
	require.Equal(t, n, h.size)

	// Remove a random subset directly (not via min), exercising
	// heap_delete's locate-last/install/sift-down path from §9.
	rng.Shuffle(n, func(i, j int) { fibers[i], fibers[j] = fibers[j], fibers[i] })
	for _, f := range fibers[:n/2] {
		h.remove(f)
	}
	require.Equal(t, n/2, h.size)

	var prev uint64
	count := 0
	for h.size > 0 {
		m := h.min()
		assert.GreaterOrEqual(t, m.due, prev)
		prev = m.due
		h.remove(m)
		count++
	}
	assert.Equal(t, n/2, count)
}
