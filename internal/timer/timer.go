// Package timer schedules cancellable one-shot timers that deliver a payload
// to a single handler.
package timer

import (
	"sync"
	"time"

	"github.com/susu3304/gatebot/internal/admission"
)

type Scheduler[P any] struct {
	mu      sync.Mutex
	fire    func(P)
	pending map[*handle[P]]struct{}
	stopped bool
}

func New[P any](fire func(P)) *Scheduler[P] {
	return &Scheduler[P]{
		fire:    fire,
		pending: make(map[*handle[P]]struct{}),
	}
}

type handle[P any] struct {
	s *Scheduler[P]
	t *time.Timer
}

// Stop cancels the timer. It reports false if it already fired or was stopped.
func (h *handle[P]) Stop() bool {
	h.s.mu.Lock()
	delete(h.s.pending, h)
	h.s.mu.Unlock()
	return h.t.Stop()
}

// ScheduleOnce calls the handler with payload after delay. After Shutdown it
// returns a handle that never fires.
func (s *Scheduler[P]) ScheduleOnce(delay time.Duration, payload P) admission.TimerHandle {
	h := &handle[P]{s: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	h.t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.pending[h]
		delete(s.pending, h)
		s.mu.Unlock()
		if live {
			s.fire(payload)
		}
	})
	if s.stopped {
		h.t.Stop()
		return h
	}
	s.pending[h] = struct{}{}
	return h
}

// Pending returns the number of timers that have not fired yet.
func (s *Scheduler[P]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown cancels every pending timer.
func (s *Scheduler[P]) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for h := range s.pending {
		h.t.Stop()
		delete(s.pending, h)
	}
}
