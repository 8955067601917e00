// Package pattern holds the data model the scheduling core consumes:
// notes, patterns, arrangement clips and tracks (§3); the instrument
// capability set lives in pkg/instrument. It is generalized from the teacher tracker's
// pkg/tracker/types.go (Note/Pattern/Song) to the arrangement-clip and
// multi-instrument-per-pattern shape the spec requires.
package pattern

import "math"

// Breakpoint is one (time, value) point of a lazily-evaluated
// sequence, used for pitch bend and (in pkg/automation) parameter
// automation. Representing it as a sorted array rather than a
// stateful iterator keeps re-scheduling idempotent (§9).
type Breakpoint struct {
	TimeSeconds float64
	Value       float64
}

// NoteParams carries the optional per-note expression fields (§3).
type NoteParams struct {
	Pan         float64 // -1..+1
	ModWheel    float64 // 0..1
	Aftertouch  float64 // 0..1
	PitchBend   []Breakpoint
	HasPan      bool
	HasMod      bool
	HasAfter    bool
}

// Note is one event inside a Pattern's instrument lane.
type Note struct {
	Pitch       uint8 // MIDI 0-127
	Velocity    uint8 // 0-127
	StartTick   int64
	LengthTicks int64
	Params      NoteParams
}

// Pattern is an immutable-during-a-scheduling-pass bag of notes keyed
// by instrument (§3).
type Pattern struct {
	ID          string
	LengthTicks int64
	Lanes       map[string][]Note // instrument_id -> ordered notes
}

// EffectiveLength returns the pattern's scheduling length: its
// authored length, or — if notes run past it — the smallest multiple
// of 16 steps covering the furthest note start, with a 64-step floor
// (§4.3 step 2).
func (p *Pattern) EffectiveLength() int64 {
	const sixteenStep = 16 * TicksPerStep
	const minLength = 64 * TicksPerStep

	length := p.LengthTicks
	var maxStart int64
	for _, notes := range p.Lanes {
		for _, n := range notes {
			if n.StartTick > maxStart {
				maxStart = n.StartTick
			}
		}
	}
	if maxStart >= length {
		length = int64(math.Ceil(float64(maxStart+1)/float64(sixteenStep))) * sixteenStep
	}
	if length < minLength {
		length = minLength
	}
	return length
}

// TicksPerStep is one sixteenth note at PPQ=96 (24 ticks). Duplicated
// from pkg/clock to avoid an import cycle; the two packages must
// agree on PPQ.
const TicksPerStep = 24

// NotesInLane returns every note of lane instrumentID, unfiltered;
// out-of-pattern notes (§3) are dropped by the caller, not here, so
// policy stays in the Playback Manager.
func (p *Pattern) NotesInLane(instrumentID string) []Note {
	return p.Lanes[instrumentID]
}

// ClipKind distinguishes the two Arrangement Clip variants (§3).
type ClipKind int

const (
	ClipPattern ClipKind = iota
	ClipAudio
)

// GainPoint is one point of an audio clip's optional gain envelope.
type GainPoint struct {
	TimeSeconds float64
	Gain        float64
}

// Clip is an Arrangement Clip: either a pattern clip or an audio clip.
type Clip struct {
	ID       string
	TrackID  string
	Kind     ClipKind
	StartTick   int64
	DurationTicks int64

	// Pattern clip fields.
	PatternID         string
	PatternOffsetTicks int64

	// Audio clip fields.
	BufferID             string
	SampleOffsetSeconds float64
	GainEnvelope        []GainPoint
	DestinationChannelID string // optional per-clip routing override
}

// Track is a mixer-routed container of clips (§3).
type Track struct {
	ID             string
	Mute           bool
	Solo           bool
	OutputRouting  string
	EchoSendChannelID string // [FULL] supplemented per-track echo send
}

// AnyTrackSoloed reports whether mute/solo policy should silence
// everything not soloed (§3 "Mute/solo policy").
func AnyTrackSoloed(tracks []*Track) bool {
	for _, t := range tracks {
		if t.Solo {
			return true
		}
	}
	return false
}

// Audible reports whether track should produce events this pass,
// given whether any track is soloed.
func (t *Track) Audible(anySoloed bool) bool {
	if anySoloed {
		return t.Solo
	}
	return !t.Mute
}

// Arrangement bundles tracks and clips for scheduling.
type Arrangement struct {
	Tracks []*Track
	Clips  []*Clip
}

// TrackByID looks up a track, returning nil if absent.
func (a *Arrangement) TrackByID(id string) *Track {
	for _, t := range a.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
