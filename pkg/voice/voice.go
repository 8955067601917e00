// Package voice implements the per-instrument voice pool: allocation,
// priority-based stealing, and mono/poly/portamento/legato behaviour
// (C4, §4.4). It generalizes the teacher tracker's per-channel
// envelope/oscillator state (pkg/audio.ChannelState) into a reusable
// pool of voices shared by any instrument engine, and the free/steal
// bookkeeping of other_examples' cjbrigato-go-vtm VoiceAllocator and
// justyntemme-vst3go's voice.Allocator mono/legato modes.
package voice

import "math"

// State is a Voice's position in the IDLE -> ACTIVE -> RELEASING -> IDLE
// machine (§3).
type State int

const (
	Idle State = iota
	Active
	Releasing
)

// Engine is the sound-generating capability a Voice wraps. Each
// instrument type (single-sample, multi-sample, virtual-analog,
// granular) provides one implementation; per §9 there is no
// inheritance depth beyond this one capability trait.
type Engine interface {
	// NoteOn begins a new note. extended carries pan/mod/aftertouch.
	NoteOn(pitch uint8, velocity uint8, extended ExtendedParams)
	// NoteOff begins the release envelope.
	NoteOff()
	// Amplitude reports the current output amplitude, used by the
	// stealing priority function and to detect release completion.
	Amplitude() float64
	// Sample renders the next audio sample.
	Sample() float64
	// Reset silences the engine instantly and returns it to a state
	// ready for reuse; called exactly when a voice returns to IDLE.
	Reset()
	// SetParam applies a continuous parameter (e.g. from automation
	// or a pitch-bend ramp).
	SetParam(id string, value float64)
	// SetFrequencyGlide schedules a linear glide of the oscillator's
	// frequency from the current value to target over the given
	// duration, for mono portamento (§4.4).
	SetFrequencyGlide(targetHz float64, seconds float64)
	// ReleaseDurationSeconds reports how long the release envelope
	// takes, so the pool can schedule a safety-fallback free.
	ReleaseDurationSeconds() float64
}

// ExtendedParams carries the optional per-note expression channels
// (§3, §4.4 "Extended parameters").
type ExtendedParams struct {
	Pan        float64
	ModWheel   float64
	Aftertouch float64
}

// Voice is a reusable sound-generating object exclusively owned by a
// Pool. It must never be destroyed while the pool holds it.
type Voice struct {
	Engine Engine

	state    State
	pitch    uint8
	velocity uint8
	ageSamples int64
	releaseEndSeconds float64
}

// State reports the voice's current lifecycle state.
func (v *Voice) State() State { return v.state }

// Pitch reports the MIDI pitch this voice is (or was last) playing.
func (v *Voice) Pitch() uint8 { return v.pitch }

// Amplitude reports the engine's current output amplitude.
func (v *Voice) Amplitude() float64 { return v.Engine.Amplitude() }

// AgeSeconds reports how long the voice has been ACTIVE or RELEASING,
// given a sample rate, for the stealing priority function (§4.4).
func (v *Voice) AgeSeconds(sampleRate float64) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(v.ageSamples) / sampleRate
}

// Sample renders the next audio sample and advances age bookkeeping.
func (v *Voice) Sample() float64 {
	if v.state == Idle {
		return 0
	}
	v.ageSamples++
	s := v.Engine.Sample()
	if v.state == Releasing && v.Engine.Amplitude() <= 1e-4 {
		v.state = Idle
		v.Engine.Reset()
	}
	return s
}

// trigger moves IDLE -> ACTIVE (or retriggers an already-active voice).
func (v *Voice) trigger(pitch, velocity uint8, extended ExtendedParams) {
	v.pitch = pitch
	v.velocity = velocity
	v.ageSamples = 0
	v.state = Active
	v.Engine.NoteOn(pitch, velocity, extended)
}

// release moves ACTIVE -> RELEASING.
func (v *Voice) release(nowSeconds float64) {
	if v.state != Active {
		return
	}
	v.state = Releasing
	v.releaseEndSeconds = nowSeconds + v.Engine.ReleaseDurationSeconds()
	v.Engine.NoteOff()
}

// stealingPriority implements §4.4's stealing priority function:
// lower value is stolen first. RELEASING voices are always preferred
// (priority -inf); ACTIVE voices are ranked by amplitude, age, and
// velocity so the quietest, oldest voice goes first.
func (v *Voice) stealingPriority(sampleRate float64) float64 {
	if v.state == Releasing {
		return math.Inf(-1)
	}
	amp := v.Amplitude()
	age := v.AgeSeconds(sampleRate)
	return amp*50 - age*10 + float64(v.velocity)*0.5
}

// forceIdle immediately silences the voice and returns it to IDLE,
// used by stop_all_immediate and by stealing.
func (v *Voice) forceIdle() {
	v.Engine.Reset()
	v.state = Idle
}
