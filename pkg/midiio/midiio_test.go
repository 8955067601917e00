package midiio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

type fakeSink struct {
	triggered []uint8
	released  []uint8
	extended  []voice.ExtendedParams
}

func (f *fakeSink) InsertRealtimeNote(instrumentID string, pitch, velocity uint8, extended voice.ExtendedParams) {
	f.triggered = append(f.triggered, pitch)
	f.extended = append(f.extended, extended)
}

func (f *fakeSink) ReleaseRealtimeNote(instrumentID string, pitch uint8) {
	f.released = append(f.released, pitch)
}

func newTestListener(sink NoteSink) *Listener {
	return &Listener{instrumentID: "lead", sink: sink}
}

func TestHandleMessageRoutesNoteOnToSink(t *testing.T) {
	sink := &fakeSink{}
	l := newTestListener(sink)

	l.handleMessage(midi.NoteOn(0, 60, 100), 0)
	require.Len(t, sink.triggered, 1)
	assert.Equal(t, uint8(60), sink.triggered[0])
}

func TestHandleMessageRoutesNoteOffToSink(t *testing.T) {
	sink := &fakeSink{}
	l := newTestListener(sink)

	l.handleMessage(midi.NoteOff(0, 60), 0)
	require.Len(t, sink.released, 1)
	assert.Equal(t, uint8(60), sink.released[0])
}

func TestHandleMessageTracksModWheelAcrossNoteOn(t *testing.T) {
	sink := &fakeSink{}
	l := newTestListener(sink)

	l.handleMessage(midi.ControlChange(0, 1, 127), 0) // mod wheel to max
	l.handleMessage(midi.NoteOn(0, 64, 90), 0)

	require.Len(t, sink.extended, 1)
	assert.InDelta(t, 1.0, sink.extended[0].ModWheel, 0.01)
}

func TestHandleMessageTracksAftertouchCCAcrossNoteOn(t *testing.T) {
	sink := &fakeSink{}
	l := newTestListener(sink)

	l.handleMessage(midi.ControlChange(0, 74, 64), 0)
	l.handleMessage(midi.NoteOn(0, 67, 100), 0)

	require.Len(t, sink.extended, 1)
	assert.InDelta(t, 64.0/127.0, sink.extended[0].Aftertouch, 0.01)
}

func TestHandleMessageIgnoresUnrelatedControlChange(t *testing.T) {
	sink := &fakeSink{}
	l := newTestListener(sink)

	l.handleMessage(midi.ControlChange(0, 7, 127), 0) // channel volume, not tracked
	l.handleMessage(midi.NoteOn(0, 60, 100), 0)

	require.Len(t, sink.extended, 1)
	assert.Equal(t, 0.0, sink.extended[0].ModWheel)
	assert.Equal(t, 0.0, sink.extended[0].Aftertouch)
}

func TestCloseWithoutOpenIsNoop(t *testing.T) {
	l := &Listener{}
	assert.NotPanics(t, l.Close)
}
