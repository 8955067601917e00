// Package clock implements the transport clock: the authoritative
// playback position, tempo, and tick/second conversions that the rest
// of the scheduling core is driven from.
package clock

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// PPQ is the internal tick resolution: pulses (ticks) per quarter note.
const PPQ = 96

// TicksPerStep is one sixteenth note.
const TicksPerStep = PPQ / 4

// TicksPerBeat is one quarter note at the default time signature.
const TicksPerBeat = PPQ

// Event kinds published by the Transport on its observer channel.
type EventKind int

const (
	// EventLoopWrap fires when position wraps from loop end to loop start.
	EventLoopWrap EventKind = iota
	// EventTempoChange fires when SetBPM is called while playing.
	EventTempoChange
	// EventSeek fires on Seek or an externally detected clock discontinuity.
	EventSeek
)

// Event is a transport-level notification delivered to subscribers.
// AudioSeconds is the audio-clock time the event takes effect at;
// for EventLoopWrap this is the exact boundary instant.
type Event struct {
	Kind         EventKind
	Tick         int64
	AudioSeconds float64
}

// AudioNow reports the host's monotonic audio-clock time in seconds.
// Implementations must be safe to call from the scheduler thread.
type AudioNow func() float64

// Transport owns position_ticks and bpm and converts between ticks and
// audio-clock seconds (§4.1). It never mutates the event scheduler or
// voice pools directly; it only publishes observer callbacks that the
// Playback Manager reacts to, per §9's ownership tree.
type Transport struct {
	mu sync.Mutex

	audioNow AudioNow

	positionTicks int64
	bpm           float64
	playing       bool

	loopEnabled    bool
	loopStartTicks int64
	loopEndTicks   int64

	// audioTimeAtAnchor is the audio-clock seconds corresponding to
	// anchorTicks; position is derived by extrapolating elapsed audio
	// time since the anchor at the current bpm.
	audioTimeAtAnchor float64
	anchorTicks       int64

	scheduleAheadOverride float64 // <=0 means adaptive

	tickDriverInterval time.Duration
	stopDriver         chan struct{}
	driverWG           sync.WaitGroup

	subsMu sync.Mutex
	subs   []chan Event

	logger *slog.Logger
}

// Config configures a Transport's non-default knobs (§6).
type Config struct {
	BPM                float64
	ScheduleAheadMs    float64 // 0 = adaptive
	TickDriverInterval time.Duration
	Logger             *slog.Logger
}

// New creates a Transport stopped at tick 0.
func New(audioNow AudioNow, cfg Config) *Transport {
	if cfg.BPM <= 0 {
		cfg.BPM = 120
	}
	if cfg.TickDriverInterval <= 0 {
		cfg.TickDriverInterval = 16 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		audioNow:              audioNow,
		bpm:                   cfg.BPM,
		scheduleAheadOverride: cfg.ScheduleAheadMs,
		tickDriverInterval:    cfg.TickDriverInterval,
		logger:                cfg.Logger,
	}
}

// Subscribe registers a channel for transport events. The channel is
// buffered by the caller's choosing; sends are non-blocking and drop
// if the subscriber is not keeping up (a slow UI must not stall audio
// scheduling).
func (t *Transport) Subscribe(ch chan Event) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	t.subs = append(t.subs, ch)
}

func (t *Transport) publish(ev Event) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			t.logger.Warn("clock: dropped event, subscriber not draining", "kind", ev.Kind)
		}
	}
}

// Start sets position and begins advancing from atTick.
func (t *Transport) Start(atTick int64) {
	t.mu.Lock()
	t.setPositionLocked(atTick)
	t.playing = true
	t.mu.Unlock()
	t.runDriver()
}

// Resume is Start's counterpart that preserves the current position.
func (t *Transport) Resume() {
	t.mu.Lock()
	pos := t.positionTicks
	t.setPositionLocked(pos)
	t.playing = true
	t.mu.Unlock()
	t.runDriver()
}

// Pause freezes position without discarding it.
func (t *Transport) Pause() {
	t.stopDriverLocked()
}

// Stop freezes position and cancels the tick driver (§5 cancellation).
func (t *Transport) Stop() {
	t.stopDriverLocked()
}

func (t *Transport) stopDriverLocked() {
	t.mu.Lock()
	if t.playing {
		t.positionTicks = t.nowTicksLocked()
	}
	t.playing = false
	stop := t.stopDriver
	t.stopDriver = nil
	t.mu.Unlock()
	if stop != nil {
		close(stop)
		t.driverWG.Wait()
	}
}

// Seek purges pending position and re-anchors the clock; callers
// (the Playback Manager) must re-schedule after a seek.
func (t *Transport) Seek(tick int64) {
	if tick < 0 {
		t.logger.Warn("clock: seek to negative tick, clamped to 0", "tick", tick)
		tick = 0
	}
	t.mu.Lock()
	t.setPositionLocked(tick)
	audioSeconds := t.audioTimeAtAnchor
	t.mu.Unlock()
	t.publish(Event{Kind: EventSeek, Tick: tick, AudioSeconds: audioSeconds})
}

func (t *Transport) setPositionLocked(tick int64) {
	t.positionTicks = tick
	t.anchorTicks = tick
	t.audioTimeAtAnchor = t.audioNow()
}

// SetBPM recomputes tick duration. Per §4.1 design decision, pending
// events already scheduled in audio-clock seconds are not retimed;
// the caller re-schedules its lookahead after a tempo change.
func (t *Transport) SetBPM(bpm float64) {
	if bpm <= 0 {
		t.logger.Warn("clock: ignoring non-positive bpm", "bpm", bpm)
		return
	}
	t.mu.Lock()
	// Re-anchor at the current position so ticks-to-seconds stays
	// continuous across the tempo change.
	now := t.nowTicksLocked()
	t.setPositionLocked(now)
	t.bpm = bpm
	playing := t.playing
	t.mu.Unlock()
	if playing {
		t.publish(Event{Kind: EventTempoChange, Tick: now, AudioSeconds: t.NowSeconds()})
	}
}

// SetLoop configures the loop region.
func (t *Transport) SetLoop(start, end int64, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enabled && end <= start {
		t.logger.Warn("clock: loop_end must exceed loop_start, disabling loop", "start", start, "end", end)
		enabled = false
	}
	t.loopStartTicks = start
	t.loopEndTicks = end
	t.loopEnabled = enabled
}

// NowTicks returns the current simulated tick position.
func (t *Transport) NowTicks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nowTicksLocked()
}

func (t *Transport) nowTicksLocked() int64 {
	if !t.playing {
		return t.positionTicks
	}
	elapsedSeconds := t.audioNow() - t.audioTimeAtAnchor
	elapsedTicks := t.secondsToTicksLocked(elapsedSeconds)
	return t.anchorTicks + elapsedTicks
}

// NowSeconds returns the current audio-clock time in seconds.
func (t *Transport) NowSeconds() float64 {
	return t.audioNow()
}

// TicksToSeconds converts a tick count to seconds at the current bpm.
// Seconds = ticks * (60 / (bpm * PPQ)).
func (t *Transport) TicksToSeconds(ticks int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticksToSecondsLocked(ticks)
}

func (t *Transport) ticksToSecondsLocked(ticks int64) float64 {
	return float64(ticks) * (60.0 / (t.bpm * PPQ))
}

// SecondsToTicks converts seconds to ticks at the current bpm.
func (t *Transport) SecondsToTicks(seconds float64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.secondsToTicksLocked(seconds)
}

func (t *Transport) secondsToTicksLocked(seconds float64) int64 {
	ticksPerSecond := t.bpm * PPQ / 60.0
	return int64(math.Round(seconds * ticksPerSecond))
}

// AbsoluteSecondsForTick converts an arrangement tick to an absolute
// audio-clock deadline, anchored against the current position.
func (t *Transport) AbsoluteSecondsForTick(tick int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	deltaTicks := tick - t.anchorTicks
	return t.audioTimeAtAnchor + t.ticksToSecondsLocked(deltaTicks)
}

// BPM returns the current tempo.
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// IsPlaying reports transport state.
func (t *Transport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Loop returns the configured loop region.
func (t *Transport) Loop() (start, end int64, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loopStartTicks, t.loopEndTicks, t.loopEnabled
}

// ScheduleAheadSeconds returns the lookahead window width (§4.1):
// adaptive with bpm unless overridden by configuration.
func (t *Transport) ScheduleAheadSeconds() float64 {
	t.mu.Lock()
	override := t.scheduleAheadOverride
	bpm := t.bpm
	t.mu.Unlock()
	if override > 0 {
		return override / 1000.0
	}
	switch {
	case bpm >= 140:
		return 0.100
	case bpm >= 100:
		return 0.120
	default:
		return 0.150
	}
}

// LookaheadWindow returns [now, now+schedule_ahead] in audio seconds.
func (t *Transport) LookaheadWindow() (start, end float64) {
	now := t.NowSeconds()
	return now, now + t.ScheduleAheadSeconds()
}

// runDriver starts the ≈16ms cooperative tick driver goroutine that
// advances the simulated position and detects loop wraps and clock
// discontinuities (§4.1, §5 "suspends between invocations").
func (t *Transport) runDriver() {
	t.mu.Lock()
	if t.stopDriver != nil {
		t.mu.Unlock()
		return // already running
	}
	stop := make(chan struct{})
	t.stopDriver = stop
	interval := t.tickDriverInterval
	t.mu.Unlock()

	t.driverWG.Add(1)
	go func() {
		defer t.driverWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastAudioSeconds := t.NowSeconds()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lastAudioSeconds = t.tick(lastAudioSeconds)
			}
		}
	}()
}

// tick advances the driver by one cadence step; returns the audio
// time observed for use as next iteration's discontinuity baseline.
func (t *Transport) tick(lastAudioSeconds float64) float64 {
	audioNow := t.NowSeconds()

	// ClockDiscontinuity (§7): audio clock moved backwards, e.g. OS
	// sleep/resume. Treat as a seek.
	if audioNow < lastAudioSeconds-0.001 {
		t.logger.Warn("clock: audio clock moved backwards, treating as seek",
			"previous", lastAudioSeconds, "now", audioNow)
		t.Seek(t.NowTicks())
		return audioNow
	}

	t.mu.Lock()
	if !t.playing {
		t.mu.Unlock()
		return audioNow
	}
	current := t.nowTicksLocked()
	loopEnabled := t.loopEnabled
	loopEnd := t.loopEndTicks
	loopStart := t.loopStartTicks
	t.mu.Unlock()

	if loopEnabled && current >= loopEnd {
		wrapAudioSeconds := t.AbsoluteSecondsForTick(loopEnd)
		t.mu.Lock()
		t.setPositionLocked(loopStart)
		t.mu.Unlock()
		t.publish(Event{Kind: EventLoopWrap, Tick: loopStart, AudioSeconds: wrapAudioSeconds})
	}

	return audioNow
}
