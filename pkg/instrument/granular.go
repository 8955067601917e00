package instrument

import (
	"math"
	"math/rand"

	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

// Grain is one active grain window into a source buffer.
type grain struct {
	readPos   float64
	age       float64
	lifetime  float64
}

// GranularEngine is the granular sampler voice engine (§3 "granular
// sampler"): overlapping windowed grains read from a single source
// buffer at a read position set by the note's mod wheel value (or the
// grainPosition param), played at a rate set by the triggering pitch,
// with a Hann-ish amplitude window per grain to avoid clicks.
type GranularEngine struct {
	source       []float64
	sampleRate   float64
	grainSeconds float64
	density      float64 // grains triggered per second

	position     float64 // 0..1 read-head position in source
	playbackRate float64
	gain         float64

	grains       []grain
	sinceLastGrain float64

	releasing bool
	amplitude float64
	releaseSeconds float64

	rng *rand.Rand
}

// NewGranularEngine constructs a granular engine over source with the
// given grain size, grain density and release time; the read position
// is set per note.
func NewGranularEngine(source []float64, sampleRate float64, grainSeconds float64, density float64, releaseSeconds float64) *GranularEngine {
	return &GranularEngine{
		source:         source,
		sampleRate:     sampleRate,
		grainSeconds:   grainSeconds,
		density:        density,
		releaseSeconds: releaseSeconds,
		rng:            rand.New(rand.NewSource(1)),
	}
}

func (e *GranularEngine) NoteOn(pitch uint8, velocity uint8, extended voice.ExtendedParams) {
	e.position = extended.ModWheel // repurposed as "grain read position" control
	e.playbackRate = math.Pow(2, (float64(pitch)-60.0)/12.0)
	e.gain = float64(velocity) / 127.0
	e.releasing = false
	e.amplitude = e.gain
	e.grains = e.grains[:0]
	e.sinceLastGrain = 0
}

func (e *GranularEngine) NoteOff() {
	e.releasing = true
}

func (e *GranularEngine) Amplitude() float64 { return e.amplitude }

func (e *GranularEngine) Reset() {
	e.grains = nil
	e.amplitude = 0
	e.releasing = false
}

func (e *GranularEngine) SetParam(id string, value float64) {
	switch id {
	case "grainPosition":
		e.position = value
	case "grainDensity":
		e.density = value
	}
}

func (e *GranularEngine) SetFrequencyGlide(targetHz float64, seconds float64) {}

func (e *GranularEngine) ReleaseDurationSeconds() float64 { return e.releaseSeconds }

func (e *GranularEngine) Sample() float64 {
	if len(e.source) == 0 {
		return 0
	}
	dt := 1.0 / e.sampleRate

	e.sinceLastGrain += dt
	grainInterval := 1.0 / math.Max(e.density, 1.0)
	if e.sinceLastGrain >= grainInterval && !e.releasing {
		e.sinceLastGrain = 0
		start := e.position * float64(len(e.source))
		e.grains = append(e.grains, grain{readPos: start, lifetime: e.grainSeconds})
	}

	var sum float64
	alive := e.grains[:0]
	for _, g := range e.grains {
		g.age += dt
		if g.age >= g.lifetime {
			continue
		}
		idx := int(g.readPos) % len(e.source)
		if idx < 0 {
			idx += len(e.source)
		}
		window := hannWindow(g.age / g.lifetime)
		sum += e.source[idx] * window
		g.readPos += e.playbackRate
		alive = append(alive, g)
	}
	e.grains = alive

	if e.releasing {
		e.amplitude -= e.gain * (1.0 / (math.Max(e.releaseSeconds, 0.01) * e.sampleRate))
		if e.amplitude <= 0 {
			e.amplitude = 0
		}
	} else {
		e.amplitude = e.gain
	}

	return sum * e.amplitude
}

func hannWindow(t float64) float64 {
	return 0.5 - 0.5*math.Cos(2*math.Pi*t)
}
