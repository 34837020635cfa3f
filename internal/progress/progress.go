// Package progress provides a pollable progress record shared by long-running operations.
package progress

import (
	"sync"
	"time"
)

// Snapshot is an immutable view of an operation's progress.
type Snapshot struct {
	Phase     string    `json:"phase"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Percent returns completion in the range 0..100, or 0 when the total is unknown.
func (s Snapshot) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	p := s.Current * 100 / s.Total
	if p > 100 {
		return 100
	}
	return p
}

// Tracker is safe for one writer and any number of concurrent readers.
type Tracker struct {
	mu  sync.RWMutex
	cur Snapshot
	now func() time.Time
}

// NewTracker creates a tracker in the given initial phase.
func NewTracker(phase string) *Tracker {
	return &Tracker{cur: Snapshot{Phase: phase}, now: time.Now}
}

// Start resets counters and enters phase.
func (t *Tracker) Start(phase string, total int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.cur = Snapshot{Phase: phase, Total: total, Message: message, StartedAt: now, UpdatedAt: now}
}

// SetPhase moves to a new phase keeping counters.
func (t *Tracker) SetPhase(phase, message string) {
	t.update(func(s *Snapshot) {
		s.Phase = phase
		s.Message = message
	})
}

// SetTotal changes the expected number of steps.
func (t *Tracker) SetTotal(total int) {
	t.update(func(s *Snapshot) { s.Total = total })
}

// Advance records one completed step.
func (t *Tracker) Advance(message string) {
	t.update(func(s *Snapshot) {
		s.Current++
		s.Message = message
	})
}

// SetCurrent overwrites the completed step count.
func (t *Tracker) SetCurrent(current int, message string) {
	t.update(func(s *Snapshot) {
		s.Current = current
		s.Message = message
	})
}

// SetMessage updates the status text only.
func (t *Tracker) SetMessage(message string) {
	t.update(func(s *Snapshot) { s.Message = message })
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

func (t *Tracker) update(fn func(*Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.cur)
	t.cur.UpdatedAt = t.now()
}
