// Package schedule implements the priority-ordered future event queue
// (C2): a min-heap keyed by scheduled_seconds with priority tiebreak,
// batch dispatch up to a lookahead deadline, tagged removal, and
// stale-event sweeping (§4.2).
package schedule

import (
	"container/heap"
	"log/slog"
	"sync"
)

// Kind tags the payload type of a scheduled event (§3, §9 "dispatch
// via a tagged union, not dynamic-typed payloads").
type Kind int

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindAudioClipStart
	KindAutomationPoint
	KindParamSet
)

// Tag identifies the origin of a batch of events so it can be cleared
// selectively (§3 "origin_tag", §4.2 "Tagged clear").
type Tag struct {
	PatternOrClipID string
	InstrumentID    string
}

// Event is a single scheduled occurrence (§3).
type Event struct {
	ScheduledTick    int64
	ScheduledSeconds float64
	Kind             Kind
	Payload          any
	Priority         int
	Origin           Tag

	// Callback is invoked at dispatch time with the event's own
	// scheduled audio-clock deadline.
	Callback func(scheduledSeconds float64, ev Event)

	index int // heap bookkeeping, do not set
}

// Scheduler is the min-heap queue of pending events. Every method
// takes the Scheduler's internal mutex, so it may be called from
// several goroutines; Dispatch holds the lock only while popping an
// event and runs each callback with the lock released.
type Scheduler struct {
	mu sync.Mutex
	pq eventHeap

	staleHorizonSeconds float64
	logger              *slog.Logger
}

// Config configures stale-sweep behavior (§6 stale_horizon_s).
type Config struct {
	StaleHorizonSeconds float64
	Logger              *slog.Logger
}

// New creates an empty Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.StaleHorizonSeconds <= 0 {
		cfg.StaleHorizonSeconds = 1.5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Scheduler{
		staleHorizonSeconds: cfg.StaleHorizonSeconds,
		logger:              cfg.Logger,
	}
	heap.Init(&s.pq)
	return s
}

// Insert adds an event to the queue. O(log n).
func (s *Scheduler) Insert(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.pq, &ev)
}

// Len returns the number of pending events.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pq.Len()
}

// Dispatch pops and invokes every event whose ScheduledSeconds falls
// at or before deadline, in (scheduled_seconds, -priority) order,
// popping and invoking one event at a time; same-time events are not
// collected into a separate batch first. A callback panic is isolated
// so it cannot poison the rest of the dispatch (§4.2 "Failure
// semantics", §7 CallbackFailure).
func (s *Scheduler) Dispatch(deadline float64) (dispatched int) {
	for {
		ev, ok := s.popReady(deadline)
		if !ok {
			return dispatched
		}
		s.invoke(ev)
		dispatched++
	}
}

func (s *Scheduler) popReady(deadline float64) (*Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq.Len() == 0 {
		return nil, false
	}
	top := s.pq[0]
	if top.ScheduledSeconds > deadline {
		return nil, false
	}
	return heap.Pop(&s.pq).(*Event), true
}

func (s *Scheduler) invoke(ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("schedule: callback panicked, isolating and continuing",
				"kind", ev.Kind, "tick", ev.ScheduledTick, "recover", r)
		}
	}()
	if ev.Callback != nil {
		ev.Callback(ev.ScheduledSeconds, *ev)
	}
}

// SweepStale drops events whose ScheduledSeconds is more than the
// configured stale horizon in the past relative to audioNow, logging
// once per occurrence (§3 invariant, §4.2 "Stale sweep").
func (s *Scheduler) SweepStale(audioNow float64) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	threshold := audioNow - s.staleHorizonSeconds

	kept := s.pq[:0]
	for _, ev := range s.pq {
		if ev.ScheduledSeconds < threshold {
			s.logger.Warn("schedule: dropping stale event",
				"kind", ev.Kind, "tick", ev.ScheduledTick,
				"scheduled_seconds", ev.ScheduledSeconds, "audio_now", audioNow)
			dropped++
			continue
		}
		kept = append(kept, ev)
	}
	s.pq = kept
	heap.Init(&s.pq)
	return dropped
}

// ClearByTag removes every pending event matching predicate. This is
// a linear rebuild (§4.2: "acceptable because it happens on loop wrap
// or user edit, not per-tick").
func (s *Scheduler) ClearByTag(match func(Tag) bool) (removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(eventHeap, 0, len(s.pq))
	for _, ev := range s.pq {
		if match(ev.Origin) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.pq = kept
	heap.Init(&s.pq)
	return removed
}

// ClearByPredicate removes every pending event the predicate accepts,
// for cases that origin tag alone cannot express (e.g. §4.3 loop
// re-schedule, which clears every event at or past the loop end tick;
// the origin tag is not consulted there).
func (s *Scheduler) ClearByPredicate(match func(Event) bool) (removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(eventHeap, 0, len(s.pq))
	for _, ev := range s.pq {
		if match(*ev) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.pq = kept
	heap.Init(&s.pq)
	return removed
}

// Snapshot returns a copy of all pending events, for tests and
// round-trip law assertions (§8). The returned slice is unordered
// with respect to the heap's internal layout.
func (s *Scheduler) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.pq))
	for i, ev := range s.pq {
		out[i] = *ev
	}
	return out
}

// eventHeap implements container/heap.Interface ordered by
// (scheduled_seconds, -priority) per §3.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].ScheduledSeconds != h[j].ScheduledSeconds {
		return h[i].ScheduledSeconds < h[j].ScheduledSeconds
	}
	// Higher priority first for same time.
	return h[i].Priority > h[j].Priority
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}
