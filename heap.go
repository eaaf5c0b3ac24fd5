package fiberrt

// sleepHeap is the pointer-linked min-heap of sleeping fibers keyed by
// absolute wake time (spec §3, §4.2), grounded on original_source/sched.c
// heap_insert/heap_delete. Unlike container/heap this never indirects
// through a backing array: each Fiber owns its own left/right child
// pointers, so growth never invalidates a pointer held elsewhere (a
// fiber's own *Fiber identity never moves).
//
// Position i (1-based, root = 1) is encoded by the bits of i: starting
// from the most significant bit after the leading 1, 0 selects the left
// child and 1 selects the right child.
type sleepHeap struct {
	root *Fiber
	size int
}

// bitLength returns the number of bits needed to represent n (n > 0).
// The reference C implementation's first insert loop computes this by
// right-shifting without assigning back to the counter (`s >> 1`), a bug
// noted in spec §9; this is the corrected `s >>= 1` form.
func bitLength(n int) int {
	bits := 0
	for s := n; s > 0; s >>= 1 {
		bits++
	}
	return bits
}

// reseat walks from the root along target's bit path, swapping cur into
// every ancestor slot it is smaller than (original_source/sched.c's
// heap_insert ancestor-swap walk: whichever value is displaced by a
// swap keeps descending, carrying its own subtree with it), and returns
// the tree-link variable at target's position together with whichever
// fiber the walk leaves heading into it. The caller is responsible for
// giving that fiber its final children and heapIndex and installing it
// at the returned slot.
func (h *sleepHeap) reseat(target int, cur *Fiber) (**Fiber, *Fiber) {
	bits := bitLength(target)
	pp := &h.root
	for i := bits - 2; i >= 0; i-- {
		node := *pp
		if cur.due < node.due {
			cur.left, node.left = node.left, cur.left
			cur.right, node.right = node.right, cur.right
			cur.heapIndex, node.heapIndex = node.heapIndex, cur.heapIndex
			*pp = cur
			cur = node
		}
		if (target>>uint(i))&1 == 1 {
			pp = &(*pp).right
		} else {
			pp = &(*pp).left
		}
	}
	return pp, cur
}

// insert adds f to the heap with the given absolute due time. It sets
// f.onSleepHeap and f.heapIndex, per spec §4.2 / §9 Open Question 1 (the
// explicit flag, not an idempotent remove, is what later makes
// unconditional cond-signal removal safe).
func (h *sleepHeap) insert(f *Fiber, due uint64) {
	f.due = due
	f.onSleepHeap = true
	h.size++
	target := h.size

	pp, cur := h.reseat(target, f)
	cur.heapIndex = target
	cur.left = nil
	cur.right = nil
	*pp = cur
}

// slot returns a pointer to the tree-link variable holding the node at
// the given 1-based index, by walking the index's bit path from the
// root. The caller must ensure index is within [1, h.size].
func (h *sleepHeap) slot(index int) **Fiber {
	bits := bitLength(index)
	pp := &h.root
	for i := bits - 2; i >= 0; i-- {
		if (index>>uint(i))&1 == 1 {
			pp = &(*pp).right
		} else {
			pp = &(*pp).left
		}
	}
	return pp
}

// siftDown restores the min-heap property for the subtree rooted at *pp,
// by repeatedly rotating the smaller of its two children into its place
// (a pointer-tree rotation, since there is no backing array to swap
// elements in).
func siftDown(pp **Fiber) {
	for {
		node := *pp
		left, right := node.left, node.right
		if left == nil {
			return
		}
		childIsRight := right != nil && right.due < left.due
		var child, sibling *Fiber
		if childIsRight {
			child, sibling = right, left
		} else {
			child, sibling = left, right
		}
		if child.due >= node.due {
			return
		}

		newNodeLeft, newNodeRight := child.left, child.right
		if childIsRight {
			child.left, child.right = sibling, node
			pp2 := &child.right
			node.left, node.right = newNodeLeft, newNodeRight
			node.heapIndex, child.heapIndex = child.heapIndex, node.heapIndex
			*pp = child
			pp = pp2
		} else {
			child.left, child.right = node, sibling
			pp2 := &child.left
			node.left, node.right = newNodeLeft, newNodeRight
			node.heapIndex, child.heapIndex = child.heapIndex, node.heapIndex
			*pp = child
			pp = pp2
		}
	}
}

// remove detaches f from the heap. It is a no-op if f is not currently
// on the heap (f.onSleepHeap false) — callers such as cond signal/
// broadcast rely on this to unconditionally "try to remove" every
// waiter regardless of whether it has a timeout (spec §9 Open Question
// 1, Option (a)).
//
// original_source/sched.c's heap_delete detaches the last element and
// re-inserts it in f's place by re-running heap_insert's ancestor-swap
// walk down to f's position (not just a bare slot() placement), then
// sifts down among the children f.left/f.right leaves behind. A version
// that skips the ancestor-swap walk can silently corrupt the min-heap
// property whenever the reinstalled element is smaller than an ancestor
// on the path to f's old slot.
func (h *sleepHeap) remove(f *Fiber) {
	if !f.onSleepHeap {
		return
	}
	f.onSleepHeap = false
	idx := f.heapIndex

	lastSlot := h.slot(h.size)
	last := *lastSlot

	// Capture f's children before the last-slot unlink below, which may
	// alias one of them (last can be f's own child).
	oldLeft, oldRight := f.left, f.right
	f.left, f.right = nil, nil
	f.heapIndex = 0

	*lastSlot = nil
	h.size--

	if last == f {
		return
	}
	if oldLeft == last {
		oldLeft = nil
	}
	if oldRight == last {
		oldRight = nil
	}

	pp, cur := h.reseat(idx, last)
	cur.left, cur.right = oldLeft, oldRight
	cur.heapIndex = idx
	*pp = cur
	siftDown(pp)
}

// min returns the fiber with the smallest due time, or nil if empty.
func (h *sleepHeap) min() *Fiber {
	return h.root
}

// popDue removes and returns, in ascending due order, every fiber whose
// due time is <= now.
func (h *sleepHeap) popDue(now uint64) []*Fiber {
	var out []*Fiber
	for h.root != nil && h.root.due <= now {
		f := h.root
		h.remove(f)
		out = append(out, f)
	}
	return out
}
