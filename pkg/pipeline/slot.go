package pipeline

import "sync"

// Slot holds the most recent value of a consumer, e.g. the last preview
// frame. Replace swaps in a new value and releases the previous one; readers
// never see a partially written value.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	set     bool
	release func(T)
}

// NewSlot creates an empty slot. release may be nil.
func NewSlot[T any](release func(T)) *Slot[T] {
	return &Slot[T]{release: release}
}

// Replace stores v and releases the value it displaces.
func (s *Slot[T]) Replace(v T) {
	s.mu.Lock()
	old, had := s.value, s.set
	s.value, s.set = v, true
	s.mu.Unlock()

	if had && s.release != nil {
		s.release(old)
	}
}

// View runs fn with the current value while holding the slot lock.
// It returns false if the slot is empty.
func (s *Slot[T]) View(fn func(T)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return false
	}
	fn(s.value)
	return true
}

// Has reports whether the slot holds a value.
func (s *Slot[T]) Has() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Clear empties the slot, releasing its value.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	old, had := s.value, s.set
	var zero T
	s.value, s.set = zero, false
	s.mu.Unlock()

	if had && s.release != nil {
		s.release(old)
	}
}

// Get returns the current value. Callers must treat the value as read-only;
// use View when the value may be released concurrently.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.set
}
