package voice

import (
	"log/slog"
	"math"
)

// Mode selects the polyphony behaviour of a Pool (§4.4).
type Mode int

const (
	Poly Mode = iota
	Mono
)

// Config configures a Pool's behaviour.
type Config struct {
	MaxVoices     int
	Mode          Mode
	SampleRate    float64
	Portamento    float64 // seconds; mono glide time, 0 = none
	Legato        bool    // mono: don't retrigger amplitude envelope
	Logger        *slog.Logger
}

// Pool is the per-instrument voice pool (§4.4): a fixed set of
// pre-allocated voices tracked as free / active_by_pitch / releasing.
// No audio nodes are ever allocated during playback — NewPool takes
// already-constructed engines.
type Pool struct {
	voices []*Voice

	free         []*Voice
	activeByPitch map[uint8][]*Voice
	releasing    []*Voice

	heldPitches []uint8 // mono: ordered set of currently-held pitches

	cfg Config
}

// NewPool wires a fixed slice of engines into a voice pool. The
// number of engines given is the pool's max_voices (§4.4, default 16
// is applied by the caller, pkg/engine, before construction).
func NewPool(engines []Engine, cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	p := &Pool{
		activeByPitch: make(map[uint8][]*Voice),
		cfg:           cfg,
	}
	for _, e := range engines {
		v := &Voice{Engine: e}
		p.voices = append(p.voices, v)
		p.free = append(p.free, v)
	}
	return p
}

// MaxVoices reports the pool's fixed voice count.
func (p *Pool) MaxVoices() int { return len(p.voices) }

// AllVoices returns every voice slot in the pool (free, active, and
// releasing alike), for parameter fan-out and diagnostics.
func (p *Pool) AllVoices() []*Voice { return p.voices }

// ActiveCount reports the number of voices currently ACTIVE or
// RELEASING, for diagnostics and invariant tests.
func (p *Pool) ActiveCount() int {
	n := 0
	for _, v := range p.voices {
		if v.State() != Idle {
			n++
		}
	}
	return n
}

// VoicesForPitch returns every voice tracking pitch (poly mode may
// have more than one, §3 invariant).
func (p *Pool) VoicesForPitch(pitch uint8) []*Voice {
	out := p.activeByPitch[pitch]
	cp := make([]*Voice, len(out))
	copy(cp, out)
	return cp
}

// NoteOn allocates (or, in mono mode, retargets) a voice for pitch at
// nowSeconds, per §4.4.
func (p *Pool) NoteOn(pitch, velocity uint8, nowSeconds float64, extended ExtendedParams) {
	if p.cfg.Mode == Mono {
		p.noteOnMono(pitch, velocity, extended)
		return
	}
	p.noteOnPoly(pitch, velocity, extended)
}

func (p *Pool) noteOnPoly(pitch, velocity uint8, extended ExtendedParams) {
	v := p.allocate()
	if v == nil {
		p.cfg.Logger.Warn("voice: exhaustion, dropping note", "pitch", pitch)
		return
	}
	v.trigger(pitch, velocity, extended)
	p.activeByPitch[pitch] = append(p.activeByPitch[pitch], v)
}

// allocate pops a free voice, or steals one by priority if the pool
// is exhausted (§4.4 "Allocation policy").
func (p *Pool) allocate() *Voice {
	if len(p.free) > 0 {
		n := len(p.free)
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v
	}
	return p.steal()
}

// steal picks the lowest-stealingPriority voice across releasing and
// active sets and reclaims it (§4.4 stealing priority). Never fails
// while the pool has any voices at all (§7 VoiceExhaustion only fires
// if literally every voice slot is unusable, which cannot happen here
// since releasing/active always total <= MaxVoices).
func (p *Pool) steal() *Voice {
	var best *Voice
	var bestPriority float64
	consider := func(v *Voice) {
		pr := v.stealingPriority(p.cfg.SampleRate)
		if best == nil || pr < bestPriority {
			best = v
			bestPriority = pr
		}
	}
	for _, v := range p.releasing {
		consider(v)
	}
	for _, voices := range p.activeByPitch {
		for _, v := range voices {
			consider(v)
		}
	}
	if best == nil {
		return nil
	}
	p.removeFromTracking(best)
	best.forceIdle()
	return best
}

func (p *Pool) removeFromTracking(v *Voice) {
	for pitch, voices := range p.activeByPitch {
		for i, cand := range voices {
			if cand == v {
				p.activeByPitch[pitch] = append(voices[:i], voices[i+1:]...)
				if len(p.activeByPitch[pitch]) == 0 {
					delete(p.activeByPitch, pitch)
				}
				return
			}
		}
	}
	for i, cand := range p.releasing {
		if cand == v {
			p.releasing = append(p.releasing[:i], p.releasing[i+1:]...)
			return
		}
	}
}

// Release begins releasing every voice tracking pitch (§4.4
// "Release"). Voice.Sample marks the voice IDLE once its engine's
// amplitude decays to ~0; Tick then moves IDLE voices from the
// releasing list back to free and, as a safety fallback, also frees
// any voice still releasing once release_duration + 1s has elapsed.
func (p *Pool) Release(pitch uint8, nowSeconds float64) {
	if p.cfg.Mode == Mono {
		p.noteOffMono(pitch, nowSeconds)
		return
	}
	voices := p.activeByPitch[pitch]
	delete(p.activeByPitch, pitch)
	for _, v := range voices {
		v.release(nowSeconds)
		p.releasing = append(p.releasing, v)
	}
}

// ReleaseAll releases every currently active voice.
func (p *Pool) ReleaseAll(nowSeconds float64) {
	for pitch := range p.activeByPitch {
		p.Release(pitch, nowSeconds)
	}
	p.heldPitches = nil
}

// Tick performs pool housekeeping: it sweeps RELEASING voices whose
// engine has already gone silent (normal path, also checked inline in
// Voice.Sample) and applies the safety-fallback free for any voice
// that somehow missed its envelope-end detection by nowSeconds >
// release_end + 1s (§4.4 "plus a safety fallback").
func (p *Pool) Tick(nowSeconds float64) {
	kept := p.releasing[:0]
	for _, v := range p.releasing {
		switch {
		case v.State() == Idle:
			p.free = append(p.free, v)
		case nowSeconds > v.releaseEndSeconds+1.0:
			v.forceIdle()
			p.free = append(p.free, v)
		default:
			kept = append(kept, v)
		}
	}
	p.releasing = kept
}

// StopAllImmediate cancels all scheduled returns and instantly
// silences every voice, repopulating free (§4.4).
func (p *Pool) StopAllImmediate() {
	for _, v := range p.voices {
		v.forceIdle()
	}
	p.activeByPitch = make(map[uint8][]*Voice)
	p.releasing = nil
	p.free = append(p.free[:0], p.voices...)
	p.heldPitches = nil
}

// Sample mixes every non-idle voice's next sample.
func (p *Pool) Sample() float64 {
	var sum float64
	for _, v := range p.voices {
		sum += v.Sample()
	}
	return sum
}

// --- mono / legato / portamento (§4.4) ---

func (p *Pool) noteOnMono(pitch, velocity uint8, extended ExtendedParams) {
	p.heldPitches = appendHeld(p.heldPitches, pitch)

	v := p.monoVoice()
	if v.State() == Idle {
		p.free = removeVoice(p.free, v)
		v.trigger(pitch, velocity, extended)
		p.activeByPitch[pitch] = []*Voice{v}
		return
	}

	// A voice is already sounding: glide or retrigger per §4.4.
	prevPitch := v.Pitch()
	delete(p.activeByPitch, prevPitch)
	p.activeByPitch[pitch] = []*Voice{v}

	if p.cfg.Portamento > 0 {
		v.Engine.SetFrequencyGlide(noteToFrequency(pitch), p.cfg.Portamento)
		if !p.cfg.Legato {
			v.trigger(pitch, velocity, extended)
		} else {
			v.pitch = pitch
			v.velocity = velocity
		}
	} else {
		v.trigger(pitch, velocity, extended)
	}
}

func (p *Pool) noteOffMono(pitch uint8, nowSeconds float64) {
	p.heldPitches = removeHeld(p.heldPitches, pitch)

	v := p.monoVoiceIfActive()
	if v == nil {
		return
	}
	if v.Pitch() != pitch {
		// Releasing a pitch that isn't the currently-sounding one
		// (it was already superseded by a later noteOn): nothing to do.
		return
	}

	if len(p.heldPitches) == 0 {
		delete(p.activeByPitch, pitch)
		v.release(nowSeconds)
		p.releasing = append(p.releasing, v)
		return
	}

	// Keep playing the most recently held pitch (§4.4).
	next := p.heldPitches[len(p.heldPitches)-1]
	delete(p.activeByPitch, pitch)
	p.activeByPitch[next] = []*Voice{v}
	if p.cfg.Portamento > 0 {
		v.Engine.SetFrequencyGlide(noteToFrequency(next), p.cfg.Portamento)
		v.pitch = next
	} else {
		v.trigger(next, v.velocity, ExtendedParams{})
	}
}

// monoVoice returns the pool's single voice slot, allocating lazily
// from free if it has not been used yet.
func (p *Pool) monoVoice() *Voice {
	for _, v := range p.voices {
		if v.State() != Idle {
			return v
		}
	}
	if len(p.free) > 0 {
		return p.free[0]
	}
	return p.voices[0]
}

func (p *Pool) monoVoiceIfActive() *Voice {
	for _, v := range p.voices {
		if v.State() == Active {
			return v
		}
	}
	return nil
}

func appendHeld(held []uint8, pitch uint8) []uint8 {
	for _, p := range held {
		if p == pitch {
			return held
		}
	}
	return append(held, pitch)
}

func removeHeld(held []uint8, pitch uint8) []uint8 {
	for i, p := range held {
		if p == pitch {
			return append(held[:i], held[i+1:]...)
		}
	}
	return held
}

func removeVoice(voices []*Voice, target *Voice) []*Voice {
	for i, v := range voices {
		if v == target {
			return append(voices[:i], voices[i+1:]...)
		}
	}
	return voices
}

// noteToFrequency converts a MIDI pitch to Hz (A4 = note 69 = 440Hz).
func noteToFrequency(pitch uint8) float64 {
	return 440.0 * math.Pow(2, (float64(pitch)-69.0)/12.0)
}
