package playback

import (
	"sync"
	"time"
)

// Priority is one of the Playback Manager's debounce lanes (§4.3).
type Priority int

const (
	// PriorityBurst has a 0ms delay budget: loop-wrap re-schedule,
	// start/resume.
	PriorityBurst Priority = iota
	// PriorityRealtime has a ~4ms delay budget: newly added notes
	// during playback.
	PriorityRealtime
	// PriorityIdle has a ~16ms delay budget: generic edits, parameter
	// changes.
	PriorityIdle
)

// LaneBudgets configures each lane's delay budget (§6 debounce_*_ms).
type LaneBudgets struct {
	BurstMs    float64
	RealtimeMs float64
	IdleMs     float64
}

// DefaultLaneBudgets matches the documented defaults (16/4/0ms).
func DefaultLaneBudgets() LaneBudgets {
	return LaneBudgets{BurstMs: 0, RealtimeMs: 4, IdleMs: 16}
}

// laneScheduler batches requests per priority lane and flushes a
// lane's callbacks after its delay budget elapses, or immediately
// when a higher-priority request preempts it (§4.3 "Priority lanes").
// It is grounded on the coalescing "interrupt channel" pattern of
// other_examples' grahamseamans-go-sequence sequencer/manager.go,
// generalized from one lane to three ranked ones.
type laneScheduler struct {
	mu    sync.Mutex
	lanes [3]*lane
}

type lane struct {
	delay   time.Duration
	pending []func()
	timer   *time.Timer
}

func newLaneScheduler(budgets LaneBudgets) *laneScheduler {
	s := &laneScheduler{}
	s.lanes[PriorityBurst] = &lane{delay: time.Duration(budgets.BurstMs * float64(time.Millisecond))}
	s.lanes[PriorityRealtime] = &lane{delay: time.Duration(budgets.RealtimeMs * float64(time.Millisecond))}
	s.lanes[PriorityIdle] = &lane{delay: time.Duration(budgets.IdleMs * float64(time.Millisecond))}
	return s
}

// Enqueue batches fn onto lane p. A burst-priority enqueue preempts
// (immediately flushes) any pending realtime/idle work first, so a
// loop-wrap re-schedule never runs behind a stale lower-priority edit.
func (s *laneScheduler) Enqueue(p Priority, fn func()) {
	s.mu.Lock()
	if p == PriorityBurst {
		s.flushLocked(PriorityRealtime)
		s.flushLocked(PriorityIdle)
	} else if p == PriorityRealtime {
		s.flushLocked(PriorityIdle)
	}

	l := s.lanes[p]
	l.pending = append(l.pending, fn)
	if l.delay <= 0 {
		s.flushLocked(p)
		s.mu.Unlock()
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.delay, func() {
		s.mu.Lock()
		s.flushLocked(p)
		s.mu.Unlock()
	})
	s.mu.Unlock()
}

// flushLocked runs and clears lane p's pending callbacks. Caller must
// hold s.mu.
func (s *laneScheduler) flushLocked(p Priority) {
	l := s.lanes[p]
	if len(l.pending) == 0 {
		return
	}
	tasks := l.pending
	l.pending = nil
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	for _, fn := range tasks {
		fn()
	}
}

// FlushAll runs every lane's pending work immediately, in burst,
// realtime, idle order. Transport Stop does not use it (Stop calls
// Discard); its only callers are tests.
func (s *laneScheduler) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked(PriorityBurst)
	s.flushLocked(PriorityRealtime)
	s.flushLocked(PriorityIdle)
}

// Discard drops every lane's pending work without running it
// (§5 "Pending debounced flushes are discarded" on transport.Stop()).
func (s *laneScheduler) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lanes {
		l.pending = nil
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
	}
}
