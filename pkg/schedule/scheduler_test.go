package schedule

import (
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	return New(Config{StaleHorizonSeconds: 1.0})
}

func TestDispatchOrdersByTimeThenPriority(t *testing.T) {
	s := newTestScheduler()
	var order []string

	s.Insert(Event{ScheduledSeconds: 1.0, Priority: 0, Callback: func(_ float64, _ Event) { order = append(order, "low@1.0") }})
	s.Insert(Event{ScheduledSeconds: 0.5, Priority: 0, Callback: func(_ float64, _ Event) { order = append(order, "@0.5") }})
	s.Insert(Event{ScheduledSeconds: 1.0, Priority: 5, Callback: func(_ float64, _ Event) { order = append(order, "high@1.0") }})

	dispatched := s.Dispatch(2.0)
	require.Equal(t, 3, dispatched)
	assert.Equal(t, []string{"@0.5", "high@1.0", "low@1.0"}, order)
}

func TestDispatchRespectsDeadline(t *testing.T) {
	s := newTestScheduler()
	var fired int32
	s.Insert(Event{ScheduledSeconds: 5.0, Callback: func(_ float64, _ Event) { atomic.AddInt32(&fired, 1) }})

	dispatched := s.Dispatch(1.0)
	assert.Equal(t, 0, dispatched)
	assert.Equal(t, int32(0), fired)
	assert.Equal(t, 1, s.Len())
}

func TestDispatchIsolatesPanickingCallback(t *testing.T) {
	s := newTestScheduler()
	var ranAfter bool
	s.Insert(Event{ScheduledSeconds: 0, Callback: func(_ float64, _ Event) { panic("boom") }})
	s.Insert(Event{ScheduledSeconds: 0, Callback: func(_ float64, _ Event) { ranAfter = true }})

	dispatched := s.Dispatch(1.0)
	assert.Equal(t, 2, dispatched)
	assert.True(t, ranAfter, "a panicking callback must not stop the rest of the batch")
}

func TestSweepStaleDropsOnlyPastHorizon(t *testing.T) {
	s := newTestScheduler()
	s.Insert(Event{ScheduledSeconds: 0.0})
	s.Insert(Event{ScheduledSeconds: 9.5})

	dropped := s.SweepStale(10.0) // horizon is 1.0s, so 0.0 is 10s stale and 9.5 is within the horizon
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, s.Len())
}

func TestClearByTagRemovesOnlyMatching(t *testing.T) {
	s := newTestScheduler()
	s.Insert(Event{ScheduledSeconds: 1, Origin: Tag{PatternOrClipID: "clip-a"}})
	s.Insert(Event{ScheduledSeconds: 2, Origin: Tag{PatternOrClipID: "clip-b"}})

	removed := s.ClearByTag(func(tag Tag) bool { return tag.PatternOrClipID == "clip-a" })
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "clip-b", snap[0].Origin.PatternOrClipID)
}

func TestClearByTagIsIdempotent(t *testing.T) {
	s := newTestScheduler()
	s.Insert(Event{ScheduledSeconds: 1, Origin: Tag{PatternOrClipID: "clip-a"}})

	match := func(tag Tag) bool { return tag.PatternOrClipID == "clip-a" }
	first := s.ClearByTag(match)
	second := s.ClearByTag(match)
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second, "clearing an already-empty match set removes nothing")
}

func TestClearByPredicateRemovesByTickThreshold(t *testing.T) {
	s := newTestScheduler()
	s.Insert(Event{ScheduledTick: 10, Kind: KindNoteOn})
	s.Insert(Event{ScheduledTick: 100, Kind: KindNoteOn})
	s.Insert(Event{ScheduledTick: 5, Kind: KindAutomationPoint})

	removed := s.ClearByPredicate(func(ev Event) bool {
		return ev.ScheduledTick >= 50 || ev.Kind == KindNoteOn
	})
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())
}

func TestHeapPreservesCountAcrossInsertDispatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("inserting n events then dispatching with an infinite deadline fires exactly n", prop.ForAll(
		func(n int) bool {
			s := newTestScheduler()
			var fired int
			for i := 0; i < n; i++ {
				s.Insert(Event{ScheduledSeconds: float64(i), Callback: func(_ float64, _ Event) { fired++ }})
			}
			dispatched := s.Dispatch(1e9)
			return dispatched == n && fired == n && s.Len() == 0
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
