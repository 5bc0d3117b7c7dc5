package reactive

import (
	"sync"
	"testing"
)

func TestSignalBasics(t *testing.T) {
	t.Run("InitialValue", func(t *testing.T) {
		s := NewSignal("hello")
		if got := s.Get(); got != "hello" {
			t.Errorf("Get: got %q, want %q", got, "hello")
		}
	})

	t.Run("SetReplacesValue", func(t *testing.T) {
		s := NewSignal(1)
		s.Set(42)
		if got := s.Get(); got != 42 {
			t.Errorf("Get after Set: got %d, want 42", got)
		}
	})

	t.Run("UpdateTransformsValue", func(t *testing.T) {
		s := NewSignal(10)
		s.Update(func(v int) int { return v * 2 })
		if got := s.Get(); got != 20 {
			t.Errorf("Get after Update: got %d, want 20", got)
		}
	})
}

func TestSignalSubscribe(t *testing.T) {
	t.Run("NotifiesOnSet", func(t *testing.T) {
		s := NewSignal("")
		var got []string
		s.Subscribe(func(v string) { got = append(got, v) })

		s.Set("a")
		s.Set("b")

		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("notifications: got %v, want [a b]", got)
		}
	})

	t.Run("UnsubscribeStopsNotifications", func(t *testing.T) {
		s := NewSignal(0)
		count := 0
		cancel := s.Subscribe(func(int) { count++ })

		s.Set(1)
		cancel()
		s.Set(2)

		if count != 1 {
			t.Errorf("notifications after unsubscribe: got %d, want 1", count)
		}
	})

	t.Run("UnsubscribeTwiceIsHarmless", func(t *testing.T) {
		s := NewSignal(0)
		cancel := s.Subscribe(func(int) {})
		cancel()
		cancel()
		s.Set(1)
	})

	t.Run("NilSubscriberIgnored", func(t *testing.T) {
		s := NewSignal(0)
		cancel := s.Subscribe(nil)
		cancel()
		s.Set(1)
	})

	t.Run("SubscriberMayReadSignal", func(t *testing.T) {
		s := NewSignal(0)
		var seen int
		s.Subscribe(func(int) { seen = s.Get() })
		s.Set(7)
		if seen != 7 {
			t.Errorf("subscriber read: got %d, want 7", seen)
		}
	})
}

func TestSignalConcurrency(t *testing.T) {
	s := NewSignal(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(func(v int) int { return v + 1 })
				_ = s.Get()
			}
		}(i)
	}
	wg.Wait()

	if got := s.Get(); got != 1600 {
		t.Errorf("final value: got %d, want 1600", got)
	}
}
