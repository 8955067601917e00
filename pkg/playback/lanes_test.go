package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestZeroDelayLaneFlushesImmediately(t *testing.T) {
	s := newLaneScheduler(LaneBudgets{BurstMs: 0, RealtimeMs: 4, IdleMs: 16})
	var ran bool
	s.Enqueue(PriorityBurst, func() { ran = true })
	assert.True(t, ran, "a zero-delay lane must flush synchronously on enqueue")
}

func TestDelayedLaneFlushesAfterBudget(t *testing.T) {
	s := newLaneScheduler(LaneBudgets{BurstMs: 0, RealtimeMs: 4, IdleMs: 16})
	done := make(chan struct{})
	s.Enqueue(PriorityIdle, func() { close(done) })

	select {
	case <-done:
		t.Fatal("idle lane must not flush before its delay budget elapses")
	case <-time.After(5 * time.Millisecond):
	}

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("idle lane never flushed")
	}
}

func TestBurstPreemptsPendingRealtimeAndIdle(t *testing.T) {
	s := newLaneScheduler(LaneBudgets{BurstMs: 0, RealtimeMs: 100, IdleMs: 100})
	var mu sync.Mutex
	var order []string

	// Realtime is enqueued first so that both lower lanes are still
	// pending when the burst arrives (a realtime enqueue would itself
	// flush an already pending idle lane).
	s.Enqueue(PriorityRealtime, func() {
		mu.Lock()
		order = append(order, "realtime")
		mu.Unlock()
	})
	s.Enqueue(PriorityIdle, func() {
		mu.Lock()
		order = append(order, "idle")
		mu.Unlock()
	})
	s.Enqueue(PriorityBurst, func() {
		mu.Lock()
		order = append(order, "burst")
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	// A burst enqueue flushes pending realtime, then pending idle,
	// before running its own (also zero-delay) callback.
	assert.Equal(t, []string{"realtime", "idle", "burst"}, order,
		"a burst enqueue must flush pending lower-priority lanes before running its own callback")
}

func TestRealtimePreemptsPendingIdle(t *testing.T) {
	s := newLaneScheduler(LaneBudgets{BurstMs: 0, RealtimeMs: 0, IdleMs: 100})
	var mu sync.Mutex
	var order []string

	s.Enqueue(PriorityIdle, func() {
		mu.Lock()
		order = append(order, "idle")
		mu.Unlock()
	})
	s.Enqueue(PriorityRealtime, func() {
		mu.Lock()
		order = append(order, "realtime")
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"idle", "realtime"}, order,
		"a realtime enqueue must flush pending idle work before running its own callback")
}

func TestDiscardDropsPendingWorkWithoutRunning(t *testing.T) {
	s := newLaneScheduler(LaneBudgets{BurstMs: 0, RealtimeMs: 100, IdleMs: 100})
	var ran bool
	s.Enqueue(PriorityIdle, func() { ran = true })
	s.Discard()
	time.Sleep(150 * time.Millisecond)
	assert.False(t, ran, "Discard must cancel pending flushes, not just delay them")
}

func TestFlushAllRunsEveryPendingLane(t *testing.T) {
	s := newLaneScheduler(LaneBudgets{BurstMs: 50, RealtimeMs: 50, IdleMs: 50})
	var count int
	s.Enqueue(PriorityRealtime, func() { count++ })
	s.Enqueue(PriorityIdle, func() { count++ })
	s.FlushAll()
	assert.Equal(t, 2, count)
}
