// Package project ingests a DAW project file's instruments, patterns,
// arrangement, automation lanes, and transport state (§6 "Project data
// interface"). It reads with gjson and writes back transport/session
// state with sjson, favoring the pack's streaming-friendly JSON
// libraries over unmarshaling into deep struct trees.
package project

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/alperkosan/dawg-sub005/pkg/automation"
	"github.com/alperkosan/dawg-sub005/pkg/pattern"
)

// InstrumentSpec is the declarative description of one instrument
// entry in the project file — the engine kind and its construction
// parameters are resolved by pkg/engine's instrument loader, not here;
// this package only surfaces the raw JSON fields.
type InstrumentSpec struct {
	ID         string
	Kind       string
	OutputNode string
	MaxVoices  int
	Mode       string // "poly" | "mono"
	Portamento float64
	Legato     bool
	Params     gjson.Result // engine-specific construction fields, passed through
}

// AutomationLaneSpec is one parameter's breakpoint list as declared in
// the project file, paired with the instrument it targets.
type AutomationLaneSpec struct {
	ParamID      string
	InstrumentID string
	Breakpoints  []automation.Breakpoint
}

// Document is the parsed, in-memory view of a project file.
type Document struct {
	Instruments []InstrumentSpec
	Patterns    []*pattern.Pattern
	Arrangement *pattern.Arrangement
	Automation  []AutomationLaneSpec
	BPM         float64
	LoopStart   int64
	LoopEnd     int64
	LoopEnabled bool
}

// Parse reads a project document from raw JSON bytes.
func Parse(raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("project: invalid JSON")
	}
	root := gjson.ParseBytes(raw)

	doc := &Document{
		BPM:         root.Get("transport.bpm").Float(),
		LoopStart:   root.Get("transport.loop_start_tick").Int(),
		LoopEnd:     root.Get("transport.loop_end_tick").Int(),
		LoopEnabled: root.Get("transport.loop_enabled").Bool(),
	}
	if doc.BPM <= 0 {
		doc.BPM = 120
	}

	root.Get("instruments").ForEach(func(_, inst gjson.Result) bool {
		doc.Instruments = append(doc.Instruments, InstrumentSpec{
			ID:         inst.Get("id").String(),
			Kind:       inst.Get("kind").String(),
			OutputNode: inst.Get("output_node").String(),
			MaxVoices:  int(inst.Get("max_voices").Int()),
			Mode:       inst.Get("mode").String(),
			Portamento: inst.Get("portamento_seconds").Float(),
			Legato:     inst.Get("legato").Bool(),
			Params:     inst.Get("params"),
		})
		return true
	})

	root.Get("patterns").ForEach(func(_, pat gjson.Result) bool {
		p := &pattern.Pattern{
			ID:          pat.Get("id").String(),
			LengthTicks: pat.Get("length_ticks").Int(),
			Lanes:       make(map[string][]pattern.Note),
		}
		pat.Get("lanes").ForEach(func(instrumentID, notes gjson.Result) bool {
			var lane []pattern.Note
			notes.ForEach(func(_, n gjson.Result) bool {
				lane = append(lane, parseNote(n))
				return true
			})
			p.Lanes[instrumentID.String()] = lane
			return true
		})
		doc.Patterns = append(doc.Patterns, p)
		return true
	})

	doc.Arrangement = &pattern.Arrangement{}
	root.Get("arrangement.tracks").ForEach(func(_, t gjson.Result) bool {
		doc.Arrangement.Tracks = append(doc.Arrangement.Tracks, &pattern.Track{
			ID:                t.Get("id").String(),
			Mute:              t.Get("mute").Bool(),
			Solo:              t.Get("solo").Bool(),
			OutputRouting:     t.Get("output_routing").String(),
			EchoSendChannelID: t.Get("echo_send_channel_id").String(),
		})
		return true
	})
	root.Get("arrangement.clips").ForEach(func(_, c gjson.Result) bool {
		doc.Arrangement.Clips = append(doc.Arrangement.Clips, parseClip(c))
		return true
	})

	root.Get("automation").ForEach(func(_, lane gjson.Result) bool {
		spec := AutomationLaneSpec{
			ParamID:      lane.Get("param_id").String(),
			InstrumentID: lane.Get("instrument_id").String(),
		}
		lane.Get("breakpoints").ForEach(func(_, bp gjson.Result) bool {
			spec.Breakpoints = append(spec.Breakpoints, automation.Breakpoint{
				TimeTicks: bp.Get("time_ticks").Int(),
				Value:     bp.Get("value").Float(),
				Curve:     parseCurve(bp.Get("curve").String()),
			})
			return true
		})
		doc.Automation = append(doc.Automation, spec)
		return true
	})

	return doc, nil
}

func parseNote(n gjson.Result) pattern.Note {
	note := pattern.Note{
		Pitch:       uint8(n.Get("pitch").Int()),
		Velocity:    uint8(n.Get("velocity").Int()),
		StartTick:   n.Get("start_tick").Int(),
		LengthTicks: n.Get("length_ticks").Int(),
	}
	if pan := n.Get("params.pan"); pan.Exists() {
		note.Params.Pan = pan.Float()
		note.Params.HasPan = true
	}
	if mod := n.Get("params.mod_wheel"); mod.Exists() {
		note.Params.ModWheel = mod.Float()
		note.Params.HasMod = true
	}
	if after := n.Get("params.aftertouch"); after.Exists() {
		note.Params.Aftertouch = after.Float()
		note.Params.HasAfter = true
	}
	n.Get("params.pitch_bend").ForEach(func(_, bp gjson.Result) bool {
		note.Params.PitchBend = append(note.Params.PitchBend, pattern.Breakpoint{
			TimeSeconds: bp.Get("time_seconds").Float(),
			Value:       bp.Get("value").Float(),
		})
		return true
	})
	return note
}

func parseClip(c gjson.Result) *pattern.Clip {
	clip := &pattern.Clip{
		ID:                   c.Get("id").String(),
		TrackID:              c.Get("track_id").String(),
		StartTick:            c.Get("start_tick").Int(),
		DurationTicks:        c.Get("duration_ticks").Int(),
		PatternID:            c.Get("pattern_id").String(),
		PatternOffsetTicks:   c.Get("pattern_offset_ticks").Int(),
		BufferID:             c.Get("buffer_id").String(),
		SampleOffsetSeconds:  c.Get("sample_offset_seconds").Float(),
		DestinationChannelID: c.Get("destination_channel_id").String(),
	}
	if c.Get("kind").String() == "audio" {
		clip.Kind = pattern.ClipAudio
	} else {
		clip.Kind = pattern.ClipPattern
	}
	c.Get("gain_envelope").ForEach(func(_, g gjson.Result) bool {
		clip.GainEnvelope = append(clip.GainEnvelope, pattern.GainPoint{
			TimeSeconds: g.Get("time_seconds").Float(),
			Gain:        g.Get("gain").Float(),
		})
		return true
	})
	return clip
}

func parseCurve(name string) automation.Curve {
	switch name {
	case "exponential":
		return automation.Exponential
	case "logarithmic":
		return automation.Logarithmic
	case "ease_in":
		return automation.EaseIn
	case "ease_out":
		return automation.EaseOut
	case "ease_in_out":
		return automation.EaseInOut
	case "step":
		return automation.Step
	default:
		return automation.Linear
	}
}

// SaveTransportState patches a project document's transport block with
// the live position so a session can resume where it left off,
// writing only the touched paths rather than re-serializing the whole
// document (sjson's raison d'etre for session-state patches).
func SaveTransportState(raw []byte, positionTicks int64, bpm float64, loopStart, loopEnd int64, loopEnabled bool) ([]byte, error) {
	var err error
	raw, err = sjson.SetBytes(raw, "transport.position_tick", positionTicks)
	if err != nil {
		return nil, fmt.Errorf("project: save position: %w", err)
	}
	raw, err = sjson.SetBytes(raw, "transport.bpm", bpm)
	if err != nil {
		return nil, fmt.Errorf("project: save bpm: %w", err)
	}
	raw, err = sjson.SetBytes(raw, "transport.loop_start_tick", loopStart)
	if err != nil {
		return nil, fmt.Errorf("project: save loop_start: %w", err)
	}
	raw, err = sjson.SetBytes(raw, "transport.loop_end_tick", loopEnd)
	if err != nil {
		return nil, fmt.Errorf("project: save loop_end: %w", err)
	}
	raw, err = sjson.SetBytes(raw, "transport.loop_enabled", loopEnabled)
	if err != nil {
		return nil, fmt.Errorf("project: save loop_enabled: %w", err)
	}
	return raw, nil
}
