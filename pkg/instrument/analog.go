package instrument

import (
	"math"

	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

// Waveform selects the virtual-analog oscillator's shape, mirroring
// the teacher tracker's Generator enum (pkg/audio/oscillator.go).
type Waveform int

const (
	WaveTriangle Waveform = iota
	WaveSawtooth
	WaveSquare
	WaveNoise
)

// ADSR is a standard attack/decay/sustain/release envelope, in
// seconds (attack/decay/release) and 0..1 (sustain level).
type ADSR struct {
	AttackSeconds  float64
	DecaySeconds   float64
	SustainLevel   float64
	ReleaseSeconds float64
}

// envPhase is the ADSR's current segment.
type envPhase int

const (
	phaseAttack envPhase = iota
	phaseDecay
	phaseSustain
	phaseRelease
	phaseOff
)

// AnalogEngine is the virtual-analog voice engine (§3 "virtual-analog
// synth"): one band-limited-enough oscillator plus an ADSR envelope,
// generalized from the teacher's Oscillator + ChannelState envelope
// machinery (pkg/audio/oscillator.go).
type AnalogEngine struct {
	wave       Waveform
	sampleRate float64
	envelope   ADSR

	phase     float64
	frequency float64
	duty      float64

	glideFrom    float64
	glideTo      float64
	glideElapsed float64
	glideTotal   float64
	gliding      bool

	bendSemitones float64

	envPhase envPhase
	envPos   float64
	velocity float64
	amplitude float64
}

// NewAnalogEngine constructs a virtual-analog engine at sampleRate.
func NewAnalogEngine(wave Waveform, sampleRate float64, env ADSR) *AnalogEngine {
	return &AnalogEngine{
		wave:       wave,
		sampleRate: sampleRate,
		envelope:   env,
		duty:       0.5,
		envPhase:   phaseOff,
	}
}

// NoteToFrequency converts a MIDI pitch to Hz (A4 = note 69 = 440Hz).
func NoteToFrequency(pitch uint8) float64 {
	return 440.0 * math.Pow(2, (float64(pitch)-69.0)/12.0)
}

func (e *AnalogEngine) NoteOn(pitch uint8, velocity uint8, extended voice.ExtendedParams) {
	e.frequency = NoteToFrequency(pitch)
	e.phase = 0
	e.gliding = false
	e.velocity = float64(velocity) / 127.0
	e.envPhase = phaseAttack
	e.envPos = 0
}

func (e *AnalogEngine) NoteOff() {
	e.envPhase = phaseRelease
	e.envPos = 0
}

func (e *AnalogEngine) Amplitude() float64 { return e.amplitude }

func (e *AnalogEngine) Reset() {
	e.envPhase = phaseOff
	e.amplitude = 0
	e.envPos = 0
	e.gliding = false
}

func (e *AnalogEngine) SetParam(id string, value float64) {
	switch id {
	case "pitchBendSemitones":
		e.bendSemitones = value
	case "dutyCycle":
		e.duty = value
	}
}

func (e *AnalogEngine) SetFrequencyGlide(targetHz float64, seconds float64) {
	e.glideFrom = e.frequency
	e.glideTo = targetHz
	e.glideElapsed = 0
	e.glideTotal = seconds
	e.gliding = seconds > 0
}

func (e *AnalogEngine) ReleaseDurationSeconds() float64 {
	return e.envelope.ReleaseSeconds
}

func (e *AnalogEngine) Sample() float64 {
	dt := 1.0 / e.sampleRate

	if e.gliding {
		e.glideElapsed += dt
		if e.glideElapsed >= e.glideTotal {
			e.frequency = e.glideTo
			e.gliding = false
		} else {
			frac := e.glideElapsed / e.glideTotal
			e.frequency = e.glideFrom + (e.glideTo-e.glideFrom)*frac
		}
	}

	e.advanceEnvelope(dt)

	bentFreq := e.frequency * math.Pow(2, e.bendSemitones/12.0)
	e.phase += bentFreq / e.sampleRate
	if e.phase >= 1.0 {
		e.phase -= math.Floor(e.phase)
	}

	return e.oscillatorSample() * e.amplitude
}

func (e *AnalogEngine) advanceEnvelope(dt float64) {
	switch e.envPhase {
	case phaseAttack:
		if e.envelope.AttackSeconds <= 0 {
			e.amplitude = e.velocity
			e.envPhase = phaseDecay
			e.envPos = 0
			return
		}
		e.envPos += dt / e.envelope.AttackSeconds
		e.amplitude = e.velocity * math.Min(e.envPos, 1.0)
		if e.envPos >= 1.0 {
			e.envPhase = phaseDecay
			e.envPos = 0
		}
	case phaseDecay:
		if e.envelope.DecaySeconds <= 0 {
			e.envPhase = phaseSustain
			e.envPos = 0
			return
		}
		sustainAmp := e.velocity * e.envelope.SustainLevel
		e.envPos += dt / e.envelope.DecaySeconds
		e.amplitude = e.velocity - (e.velocity-sustainAmp)*math.Min(e.envPos, 1.0)
		if e.envPos >= 1.0 {
			e.envPhase = phaseSustain
			e.envPos = 0
		}
	case phaseSustain:
		e.amplitude = e.velocity * e.envelope.SustainLevel
	case phaseRelease:
		if e.envelope.ReleaseSeconds <= 0 {
			e.amplitude = 0
			e.envPhase = phaseOff
			return
		}
		start := e.amplitude
		e.envPos += dt / e.envelope.ReleaseSeconds
		e.amplitude = start * math.Max(0, 1.0-e.envPos)
		if e.envPos >= 1.0 || e.amplitude <= 1e-4 {
			e.amplitude = 0
			e.envPhase = phaseOff
		}
	case phaseOff:
		e.amplitude = 0
	}
}

func (e *AnalogEngine) oscillatorSample() float64 {
	switch e.wave {
	case WaveTriangle:
		if e.phase < 0.5 {
			return 4.0*e.phase - 1.0
		}
		return 3.0 - 4.0*e.phase
	case WaveSawtooth:
		return 2.0*e.phase - 1.0
	case WaveSquare:
		if e.phase < e.duty {
			return 1.0
		}
		return -1.0
	case WaveNoise:
		seed := uint32(e.phase * 1_000_000)
		seed = seed*1103515245 + 12345
		return float64(int32(seed)) / float64(math.MaxInt32)
	default:
		return 0
	}
}
