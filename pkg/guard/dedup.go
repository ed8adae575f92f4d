// Package guard holds the single-slot primitives the realtime coordinators
// use to avoid redundant network calls.
//
// Both guards are per-instance state. They are never shared between
// conversations; a coordinator resets its guards whenever its scoping id
// changes so a key from a previous conversation cannot block a write in
// the next one.
package guard

import "sync"

// Dedup remembers the last value it let through. It is a single slot, not
// a set: A, B, A passes all three calls, A, A passes only the first.
type Dedup[T comparable] struct {
	mu   sync.Mutex
	last T
	set  bool
}

// Check reports whether v differs from the last accepted value and, if so,
// records v as the new last value.
func (d *Dedup[T]) Check(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.set && d.last == v {
		return false
	}
	d.last = v
	d.set = true
	return true
}

// Last returns the last accepted value and whether one exists.
func (d *Dedup[T]) Last() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.set
}

// Forget clears the slot only if it still holds v. Used after a failed
// write so the same value can be retried, without clobbering a newer value
// that was accepted in the meantime.
func (d *Dedup[T]) Forget(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.set && d.last == v {
		var zero T
		d.last = zero
		d.set = false
	}
}

// Reset empties the slot.
func (d *Dedup[T]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	d.last = zero
	d.set = false
}
