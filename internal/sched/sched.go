package sched

import (
	"sync"
	"time"
)

// #region scheduler

// Scheduler is the single-shot timeout timer. At most one timeout is pending
// at any instant: arming cancels any previous timer, and a generation counter
// discards callbacks from superseded timers so a stale fire can never reach
// the machine.
type Scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	// fire receives the state name that was active at arm time. It is called
	// from the timer goroutine; callers route it onto the machine's event
	// queue.
	fire func(state string)
}

// New creates a Scheduler that delivers timeouts through fire.
func New(fire func(state string)) *Scheduler {
	return &Scheduler{fire: fire}
}

// #endregion scheduler

// #region arm

// Arm cancels any pending timer and schedules a timeout after d, tagged with
// the state name active now.
func (s *Scheduler) Arm(d time.Duration, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		live := gen == s.gen
		s.mu.Unlock()
		if live {
			s.fire(state)
		}
	})
}

// Disarm cancels any pending timer. Idempotent.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// cancelLocked stops the current timer and bumps the generation so an
// already-fired callback is discarded. Caller holds mu.
func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// #endregion arm
