package source

import "sync"

// Slot is a single-value mailbox with last-value-wins semantics. Producers
// Put at sensor rate, the frame loop Takes once per tick; a Put over an
// unconsumed value replaces it and counts the overwrite. Neither side ever
// blocks.
type Slot[T any] struct {
	mu        sync.Mutex
	value     T
	set       bool
	overwrote uint64
}

// Put stores v, replacing any unconsumed value.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	if s.set {
		s.overwrote++
	}
	s.value = v
	s.set = true
	s.mu.Unlock()
}

// Take removes and returns the stored value, if any.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		var zero T
		return zero, false
	}
	s.set = false
	return s.value, true
}

// Overwritten returns how many values were replaced before being consumed.
func (s *Slot[T]) Overwritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwrote
}
