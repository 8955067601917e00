// Package instrument implements the uniform instrument capability set
// (§3) over a voice.Pool, plus the voice engines (virtual-analog,
// single-sample, multi-sample, granular) that back it. Instruments
// own no timing state themselves; they own only voice pools and
// engines, per §3 "Instruments own no timing state".
package instrument

import (
	"log/slog"

	"github.com/alperkosan/dawg-sub005/pkg/pattern"
	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

// Capability is the uniform operation set every instrument type
// implements (§3), replacing deep inheritance across instrument
// kinds with one flat trait (§9).
type Capability interface {
	Trigger(pitch, velocity uint8, absoluteStartSeconds float64, durationTicks int64, extended voice.ExtendedParams)
	Release(pitch uint8, absoluteReleaseSeconds float64)
	ReleaseAll(atSeconds float64)
	StopAllImmediate()
	SetParam(paramID string, value float64, atSeconds float64)
	GetOutputNode() string
}

// Instrument is the concrete Capability implementation: a voice pool
// plus an output routing key. Its engines decide waveform/sample
// generation; Instrument itself only does allocation bookkeeping and
// per-voice parameter fan-out, matching §9's "compose a voice pool +
// voice engine; no inheritance depth beyond one".
type Instrument struct {
	ID           string
	OutputNode   string
	Pool         *voice.Pool
	pendingBends map[uint8][]pattern.Breakpoint
	logger       *slog.Logger
}

// New wires a pre-built voice pool into an instrument with the given
// output routing key (§3 "output_routing").
func New(id, outputNode string, pool *voice.Pool, logger *slog.Logger) *Instrument {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrument{
		ID:           id,
		OutputNode:   outputNode,
		Pool:         pool,
		pendingBends: make(map[uint8][]pattern.Breakpoint),
		logger:       logger,
	}
}

// Trigger starts a note. durationTicks is accepted but not used: it
// is not passed to the voice engines, and it does not schedule the
// release — the Playback Manager schedules a separate note_off event
// for that (§4.3 step 6).
func (inst *Instrument) Trigger(pitch, velocity uint8, absoluteStartSeconds float64, durationTicks int64, extended voice.ExtendedParams) {
	inst.Pool.NoteOn(pitch, velocity, absoluteStartSeconds, extended)
}

// Release begins the release envelope for pitch.
func (inst *Instrument) Release(pitch uint8, absoluteReleaseSeconds float64) {
	inst.Pool.Release(pitch, absoluteReleaseSeconds)
}

// ReleaseAll releases every currently sounding voice.
func (inst *Instrument) ReleaseAll(atSeconds float64) {
	inst.Pool.ReleaseAll(atSeconds)
}

// StopAllImmediate hard-cancels every voice (transport stop, teardown).
func (inst *Instrument) StopAllImmediate() {
	inst.Pool.StopAllImmediate()
}

// SetParam fans a parameter change out to the engine of every voice
// slot in the pool, idle ones included (§4.5 automation writes
// through here).
func (inst *Instrument) SetParam(paramID string, value float64, atSeconds float64) {
	for _, v := range inst.Pool.AllVoices() {
		v.Engine.SetParam(paramID, value)
	}
}

// GetOutputNode returns the mixer routing key this instrument feeds.
func (inst *Instrument) GetOutputNode() string {
	return inst.OutputNode
}

// Sample renders the instrument's next mixed output sample, pulled
// by the audio host's realtime callback or the offline renderer
// (§6 audio host interface — this core's Go-native stand-in for a
// WebAudio node graph is a pull-based per-sample render, matching the
// teacher tracker's own ChannelState.GenerateSample shape).
func (inst *Instrument) Sample() float64 {
	return inst.Pool.Sample()
}

// Tick performs per-block housekeeping (voice free-list sweep, §4.4)
// and advances any in-flight pitch-bend ramps.
func (inst *Instrument) Tick(nowSeconds float64) {
	inst.Pool.Tick(nowSeconds)
	inst.applyPitchBends(nowSeconds)
}

// SchedulePitchBend attaches a lazy breakpoint sequence to the
// voice(s) currently playing pitch; applied as linear ramps between
// breakpoints on every Tick (§4.4 "Extended parameters", §9 "sorted
// arrays with binary search rather than stateful iterators").
func (inst *Instrument) SchedulePitchBend(pitch uint8, breakpoints []pattern.Breakpoint) {
	inst.pendingBends[pitch] = breakpoints
}

func (inst *Instrument) applyPitchBends(nowSeconds float64) {
	for pitch, bends := range inst.pendingBends {
		if len(bends) == 0 {
			continue
		}
		value := interpolateBreakpoints(bends, nowSeconds)
		for _, v := range inst.Pool.VoicesForPitch(pitch) {
			v.Engine.SetParam("pitchBendSemitones", value)
		}
		if nowSeconds > bends[len(bends)-1].TimeSeconds {
			delete(inst.pendingBends, pitch)
		}
	}
}

// interpolateBreakpoints performs linear interpolation between the
// breakpoints surrounding t, found by binary search over the sorted
// slice (§9).
func interpolateBreakpoints(bends []pattern.Breakpoint, t float64) float64 {
	if t <= bends[0].TimeSeconds {
		return bends[0].Value
	}
	last := bends[len(bends)-1]
	if t >= last.TimeSeconds {
		return last.Value
	}
	lo, hi := 0, len(bends)-1
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if bends[mid].TimeSeconds <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	a, b := bends[lo], bends[hi]
	if b.TimeSeconds == a.TimeSeconds {
		return b.Value
	}
	frac := (t - a.TimeSeconds) / (b.TimeSeconds - a.TimeSeconds)
	return a.Value + (b.Value-a.Value)*frac
}
