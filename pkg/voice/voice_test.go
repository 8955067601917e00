package voice

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal Engine whose amplitude the test controls
// directly, so release-to-idle transitions are deterministic.
type fakeEngine struct {
	amplitude  float64
	released   bool
	resetCount int
	lastGlide  float64
}

func (e *fakeEngine) NoteOn(pitch, velocity uint8, extended ExtendedParams) {
	e.amplitude = 1.0
	e.released = false
}
func (e *fakeEngine) NoteOff()                                { e.released = true }
func (e *fakeEngine) Amplitude() float64                      { return e.amplitude }
func (e *fakeEngine) Sample() float64                          { return e.amplitude }
func (e *fakeEngine) Reset()                                   { e.amplitude = 0; e.resetCount++ }
func (e *fakeEngine) SetParam(id string, value float64)        {}
func (e *fakeEngine) SetFrequencyGlide(hz, seconds float64)     { e.lastGlide = hz }
func (e *fakeEngine) ReleaseDurationSeconds() float64           { return 0.01 }

func newTestPool(n int, cfg Config) (*Pool, []*fakeEngine) {
	engines := make([]Engine, n)
	fakes := make([]*fakeEngine, n)
	for i := range engines {
		f := &fakeEngine{}
		engines[i] = f
		fakes[i] = f
	}
	cfg.SampleRate = 44100
	return NewPool(engines, cfg), fakes
}

func TestNoteOnAllocatesFreeVoice(t *testing.T) {
	p, _ := newTestPool(4, Config{Mode: Poly})
	p.NoteOn(60, 100, 0, ExtendedParams{})
	assert.Equal(t, 1, p.ActiveCount())
	assert.Len(t, p.VoicesForPitch(60), 1)
}

func TestReleaseMovesVoiceToReleasingThenIdle(t *testing.T) {
	p, fakes := newTestPool(2, Config{Mode: Poly})
	p.NoteOn(60, 100, 0, ExtendedParams{})
	p.Release(60, 0)

	v := p.VoicesForPitch(60)
	// Release clears activeByPitch immediately; voice is tracked in releasing.
	assert.Empty(t, v)
	assert.Equal(t, 1, p.ActiveCount())

	for _, f := range fakes {
		f.amplitude = 0 // simulate the envelope finishing
	}
	p.Sample()
	assert.Equal(t, 0, p.ActiveCount())
}

func TestVoiceExhaustionStealsLowestPriority(t *testing.T) {
	p, fakes := newTestPool(1, Config{Mode: Poly})
	p.NoteOn(60, 100, 0, ExtendedParams{})
	fakes[0].amplitude = 0.01 // quiet, stealable

	p.NoteOn(64, 100, 0, ExtendedParams{})
	assert.Equal(t, 1, p.ActiveCount(), "a one-voice pool must steal, never grow")
	assert.Len(t, p.VoicesForPitch(64), 1)
	assert.Empty(t, p.VoicesForPitch(60))
}

func TestStopAllImmediateReturnsEveryVoiceToFree(t *testing.T) {
	p, _ := newTestPool(3, Config{Mode: Poly})
	p.NoteOn(60, 100, 0, ExtendedParams{})
	p.NoteOn(64, 100, 0, ExtendedParams{})
	p.StopAllImmediate()
	assert.Equal(t, 0, p.ActiveCount())
}

func TestMonoRetargetsSingleVoiceAndRetainsPreviousOnRelease(t *testing.T) {
	p, _ := newTestPool(1, Config{Mode: Mono})
	p.NoteOn(60, 100, 0, ExtendedParams{})
	p.NoteOn(64, 100, 0, ExtendedParams{})
	assert.Len(t, p.VoicesForPitch(64), 1)
	assert.Empty(t, p.VoicesForPitch(60), "mono mode retargets the one voice, it never grows")

	p.Release(64, 0)
	assert.Len(t, p.VoicesForPitch(60), 1, "releasing the top note falls back to the still-held one")
}

func TestMonoLegatoPortamentoGlidesWithoutRetrigger(t *testing.T) {
	p, fakes := newTestPool(1, Config{Mode: Mono, Portamento: 0.05, Legato: true})
	p.NoteOn(60, 100, 0, ExtendedParams{})
	resetsBefore := fakes[0].resetCount
	p.NoteOn(64, 100, 0, ExtendedParams{})
	assert.Greater(t, fakes[0].lastGlide, 0.0, "legato+portamento must glide frequency")
	assert.Equal(t, resetsBefore, fakes[0].resetCount, "legato must not reset/retrigger the envelope")
}

func TestAllocateReturnBalance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("active count never exceeds max_voices across any note on/off sequence", prop.ForAll(
		func(ops []uint8) bool {
			p, fakes := newTestPool(4, Config{Mode: Poly})
			for _, pitch := range ops {
				pitch = pitch % 8
				if len(p.VoicesForPitch(pitch)) > 0 {
					p.Release(pitch, 0)
				} else {
					p.NoteOn(pitch, 100, 0, ExtendedParams{})
				}
				if p.ActiveCount() > p.MaxVoices() {
					return false
				}
			}
			for _, f := range fakes {
				f.amplitude = 0
			}
			p.Sample()
			return true
		},
		gen.SliceOf(gen.UInt8Range(0, 8)),
	))

	properties.TestingRun(t)
	require.True(t, true)
}
