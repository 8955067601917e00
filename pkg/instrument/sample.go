package instrument

import (
	"math"

	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

// SampleLayer is one velocity-layered sample source for the
// multi-sample engine. Each layer holds a single PCM buffer; there is
// no set of alternate buffers to round-robin between.
type SampleLayer struct {
	MinVelocity uint8
	MaxVelocity uint8
	Frames      []float64 // mono PCM in -1..1, at the engine's sampleRate
	RootPitch   uint8
}

// SampleEngine plays back one or more PCM buffers with velocity-layer
// selection and a linear release fade. Round-robin is not performed
// (every note of a layer plays that layer's one buffer), and notes
// start at full gain with no attack fade. A single-sample instrument is
// simply a SampleEngine with one layer spanning the full velocity
// range.
type SampleEngine struct {
	layers     []SampleLayer
	sampleRate float64

	releaseSeconds float64

	playing      bool
	releasing    bool
	cursor       float64
	playbackRate float64
	amplitude    float64
	gain         float64
	roundRobin   map[int]int // layer index -> next frame-source offset (stub hook)

	bendSemitones float64
	pitch         uint8
	currentLayer  *SampleLayer
}

// NewSampleEngine constructs a sample playback engine.
func NewSampleEngine(layers []SampleLayer, sampleRate float64, releaseSeconds float64) *SampleEngine {
	return &SampleEngine{
		layers:         layers,
		sampleRate:     sampleRate,
		releaseSeconds: releaseSeconds,
		roundRobin:     make(map[int]int),
	}
}

func (e *SampleEngine) selectLayer(velocity uint8) *SampleLayer {
	for i := range e.layers {
		l := &e.layers[i]
		if velocity >= l.MinVelocity && velocity <= l.MaxVelocity {
			return l
		}
	}
	if len(e.layers) > 0 {
		return &e.layers[0]
	}
	return nil
}

func (e *SampleEngine) NoteOn(pitch uint8, velocity uint8, extended voice.ExtendedParams) {
	layer := e.selectLayer(velocity)
	if layer == nil {
		e.playing = false
		return
	}
	e.pitch = pitch
	e.cursor = 0
	e.playbackRate = math.Pow(2, (float64(pitch)-float64(layer.RootPitch))/12.0)
	e.gain = float64(velocity) / 127.0
	e.playing = true
	e.releasing = false
	e.amplitude = e.gain
	e.currentLayer = layer
}

func (e *SampleEngine) NoteOff() {
	e.releasing = true
}

func (e *SampleEngine) Amplitude() float64 { return e.amplitude }

func (e *SampleEngine) Reset() {
	e.playing = false
	e.releasing = false
	e.amplitude = 0
	e.cursor = 0
}

func (e *SampleEngine) SetParam(id string, value float64) {
	if id == "pitchBendSemitones" {
		e.bendSemitones = value
	}
}

func (e *SampleEngine) SetFrequencyGlide(targetHz float64, seconds float64) {
	// Sample playback has no oscillator frequency to glide; pitch
	// bend is applied via playbackRate instead (see Sample).
}

func (e *SampleEngine) ReleaseDurationSeconds() float64 { return e.releaseSeconds }

func (e *SampleEngine) Sample() float64 {
	if !e.playing || e.currentLayer == nil {
		return 0
	}
	frames := e.currentLayer.Frames
	if len(frames) == 0 {
		e.playing = false
		return 0
	}

	idx := int(e.cursor)
	if idx >= len(frames) {
		e.playing = false
		e.amplitude = 0
		return 0
	}
	s := frames[idx]

	rate := e.playbackRate * math.Pow(2, e.bendSemitones/12.0)
	e.cursor += rate

	if e.releasing && e.releaseSeconds > 0 {
		e.amplitude -= e.gain * (1.0 / (e.releaseSeconds * e.sampleRate))
		if e.amplitude <= 0 {
			e.amplitude = 0
			e.playing = false
		}
	} else {
		e.amplitude = e.gain
	}

	return s * e.amplitude
}
