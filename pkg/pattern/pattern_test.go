package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveLengthUsesAuthoredLengthWhenSufficient(t *testing.T) {
	p := &Pattern{
		LengthTicks: 64 * TicksPerStep,
		Lanes: map[string][]Note{
			"lead": {{StartTick: 10 * TicksPerStep}},
		},
	}
	assert.Equal(t, int64(64*TicksPerStep), p.EffectiveLength())
}

func TestEffectiveLengthExpandsToCoverFurthestNote(t *testing.T) {
	p := &Pattern{
		LengthTicks: 16 * TicksPerStep,
		Lanes: map[string][]Note{
			"lead": {{StartTick: 70 * TicksPerStep}},
		},
	}
	// furthest note start is at step 70; must round up to the next
	// multiple of 16 steps and never go under the 64-step floor.
	assert.Equal(t, int64(80*TicksPerStep), p.EffectiveLength())
}

func TestEffectiveLengthNeverBelowFloor(t *testing.T) {
	p := &Pattern{LengthTicks: 4 * TicksPerStep}
	assert.Equal(t, int64(64*TicksPerStep), p.EffectiveLength())
}

func TestNotesInLaneReturnsOnlyThatInstrument(t *testing.T) {
	p := &Pattern{
		Lanes: map[string][]Note{
			"lead": {{Pitch: 60}},
			"bass": {{Pitch: 36}},
		},
	}
	lead := p.NotesInLane("lead")
	assert.Len(t, lead, 1)
	assert.Equal(t, uint8(60), lead[0].Pitch)
	assert.Nil(t, p.NotesInLane("missing"))
}

func TestAnyTrackSoloedAndAudible(t *testing.T) {
	soloed := &Track{ID: "a", Solo: true}
	muted := &Track{ID: "b", Mute: true}
	plain := &Track{ID: "c"}

	assert.True(t, AnyTrackSoloed([]*Track{soloed, muted, plain}))
	assert.False(t, AnyTrackSoloed([]*Track{muted, plain}))

	assert.True(t, soloed.Audible(true))
	assert.False(t, muted.Audible(true), "a non-soloed track is silent whenever any track is soloed")
	assert.False(t, plain.Audible(true))

	assert.True(t, plain.Audible(false))
	assert.False(t, muted.Audible(false))
}

func TestTrackByID(t *testing.T) {
	a := &Arrangement{Tracks: []*Track{{ID: "a"}, {ID: "b"}}}
	assert.NotNil(t, a.TrackByID("b"))
	assert.Nil(t, a.TrackByID("missing"))
}
