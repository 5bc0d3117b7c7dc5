// Package reactive provides the small reactive primitive flowdeck uses to
// fan out state changes to live dashboard sessions.
//
// A Signal holds a value and a set of subscribers. Writes notify subscribers
// outside the signal's lock so a subscriber may read the signal (or write
// other signals) without deadlocking.
package reactive

import "sync"

// Signal is a mutable value with change subscribers.
// It is safe for concurrent use.
type Signal[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[uint64]func(T)
	nextID uint64
}

// NewSignal creates a signal holding the initial value.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the value and notifies subscribers.
func (s *Signal[T]) Set(value T) {
	s.mu.Lock()
	s.value = value
	subs := s.copySubsLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
}

// Update atomically transforms the value and notifies subscribers.
func (s *Signal[T]) Update(fn func(T) T) {
	s.mu.Lock()
	s.value = fn(s.value)
	value := s.value
	subs := s.copySubsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(value)
	}
}

// Subscribe registers fn to run on every subsequent change.
// The returned function removes the subscription; calling it more than
// once is harmless.
func (s *Signal[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// copySubsLocked snapshots the subscriber set. Caller must hold mu.
// Notification happens on the copy so subscribers never run under the lock.
func (s *Signal[T]) copySubsLocked() []func(T) {
	if len(s.subs) == 0 {
		return nil
	}
	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
