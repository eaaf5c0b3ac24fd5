package fiberrt

// clink is an intrusive doubly-linked circular list anchor, the Go
// equivalent of the reference runtime's _st_clist_t (original_source
// common.h). Every Fiber embeds two of these (schedLink for run/io/zombie
// queues, waitLink for mutex/condvar wait lists) so queue operations never
// allocate.
//
// A clink that is its own next/prev is an empty list head, or a detached
// node. Callers distinguish "detached" from "is the list head" by context
// (Fiber nodes are never used as a head; only the Scheduler's queue
// anchors are).
type clink struct {
	next, prev *clink
	// owner is the Fiber this link is embedded in. Go has no container_of,
	// so rather than recover the enclosing struct from the link pointer via
	// unsafe arithmetic, each link simply knows its owner directly. Queue
	// anchors owned by the Scheduler (not a Fiber) leave this nil.
	owner *Fiber
}

// initCList turns l into an empty circular list head.
func initCList(l *clink) {
	l.next = l
	l.prev = l
}

// isEmpty reports whether the circular list headed by l has no elements.
func isEmpty(l *clink) bool {
	return l.next == l
}

// appendLink inserts n immediately before head (i.e. at the tail of the
// list headed by head), matching ST_APPEND_LINK.
func appendLink(n, head *clink) {
	n.next = head
	n.prev = head.prev
	head.prev.next = n
	head.prev = n
}

// prependLink inserts n immediately after head (i.e. at the front of the
// list headed by head).
func prependLink(n, head *clink) {
	n.next = head.next
	n.prev = head
	head.next.prev = n
	head.next = n
}

// removeLink detaches n from whatever list it is linked into. It is safe
// to call on an already-detached node (next/prev pointing to itself).
func removeLink(n *clink) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = n
	n.prev = n
}

// clistEmpty reports whether n is currently detached (a standalone node,
// not linked into any list).
func clistEmpty(n *clink) bool {
	return n.next == n && n.prev == n
}

// fiberFromWaitLink recovers the Fiber owning a wait-list link removed
// from a mutex/condvar queue head.
func fiberFromWaitLink(n *clink) *Fiber { return n.owner }

// fiberFromSchedLink recovers the Fiber owning a run/io/zombie queue
// link removed from a queue head.
func fiberFromSchedLink(n *clink) *Fiber { return n.owner }
