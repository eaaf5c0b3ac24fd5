package fiberrt

import "sync"

// TLSKey identifies one thread-local-storage slot, shared by every
// fiber created by a given Scheduler (spec §4.1, grounded on
// original_source/key.c's st_key_create/st_thread_{set,get}specific).
type TLSKey int

// tlsRegistry is the per-Scheduler key table: a destructor per key,
// invoked in key order on fiber exit (original_source/key.c
// _st_thread_cleanup).
type tlsRegistry struct {
	mu          sync.Mutex
	destructors []func(any)
	max         int
}

func newTLSRegistry(max int) *tlsRegistry {
	return &tlsRegistry{max: max}
}

// NewKey allocates the next TLS key and registers its destructor
// (nil is permitted: no cleanup on exit). Returns InvalidError once
// max keys have been allocated, matching the reference runtime's fixed
// ST_KEYS_MAX table.
func (r *tlsRegistry) NewKey(destructor func(any)) (TLSKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.destructors) >= r.max {
		return 0, &InvalidError{Op: "NewKey", Reason: "TLS key limit reached"}
	}
	r.destructors = append(r.destructors, destructor)
	return TLSKey(len(r.destructors) - 1), nil
}

func (r *tlsRegistry) destructorFor(k TLSKey) func(any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(k) < 0 || int(k) >= len(r.destructors) {
		return nil
	}
	return r.destructors[k]
}

func (r *tlsRegistry) keyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.destructors)
}

// NewKey allocates a new TLS key, shared by every fiber this Scheduler
// creates, with an optional per-value destructor run on fiber exit.
func (s *Scheduler) NewKey(destructor func(any)) (TLSKey, error) {
	return s.tls.NewKey(destructor)
}

// GetSpecific returns fiber f's value for key k, or nil if unset.
func (f *Fiber) GetSpecific(k TLSKey) any {
	if int(k) < 0 || int(k) >= len(f.tls) {
		return nil
	}
	return f.tls[k]
}

// SetSpecific stores value for key k on fiber f.
func (f *Fiber) SetSpecific(k TLSKey, value any) error {
	if int(k) < 0 || int(k) >= len(f.tls) {
		return &InvalidError{Op: "SetSpecific", Reason: "key out of range"}
	}
	f.tls[k] = value
	return nil
}

// runDestructors invokes every key's destructor, in key order, over any
// non-nil slot value — called once from threadExit before the fiber's
// stack is reclaimed (spec §4.6 exit: "run TLS destructors in key
// order").
func (f *Fiber) runDestructors() {
	reg := f.sched.tls
	n := reg.keyCount()
	for k := 0; k < n; k++ {
		v := f.tls[k]
		if v == nil {
			continue
		}
		if d := reg.destructorFor(TLSKey(k)); d != nil {
			d(v)
		}
		f.tls[k] = nil
	}
}
