// Package midiio feeds live MIDI input into the Playback Manager's
// realtime lane (§4.3), using gitlab.com/gomidi/midi/v2 the way the
// rest of the Go MIDI ecosystem listens for input ports.
package midiio

import (
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

// NoteSink is the subset of playback.Manager that live input drives.
type NoteSink interface {
	InsertRealtimeNote(instrumentID string, pitch, velocity uint8, extended voice.ExtendedParams)
	ReleaseRealtimeNote(instrumentID string, pitch uint8)
}

// Listener binds one MIDI input port to one target instrument.
type Listener struct {
	instrumentID string
	sink         NoteSink
	logger       *slog.Logger
	stop         func()

	modWheel   float64
	aftertouch float64
}

// Open opens portName (matched by substring, like most gomidi
// examples) and begins routing note on/off and aftertouch/mod-wheel CC
// messages to sink for instrumentID.
func Open(portName string, instrumentID string, sink NoteSink, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	in, err := midi.FindInPort(portName)
	if err != nil {
		return nil, err
	}

	l := &Listener{instrumentID: instrumentID, sink: sink, logger: logger}

	stop, err := midi.ListenTo(in, l.handleMessage)
	if err != nil {
		return nil, err
	}
	l.stop = stop

	l.logger.Info("midiio: listening", "port", portName, "instrument", instrumentID)
	return l, nil
}

// handleMessage routes one incoming MIDI message to the sink, tracking
// mod wheel and aftertouch CC state across note_on messages the way a
// real controller would hold them steady between keystrokes. Kept as
// its own method (rather than an inline closure) so it's callable
// directly from a test with a synthesized message, without a real port.
func (l *Listener) handleMessage(msg midi.Message, timestampms int32) {
	var ch, key, velocity uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &velocity):
		l.sink.InsertRealtimeNote(l.instrumentID, key, velocity, voice.ExtendedParams{
			ModWheel:   l.modWheel,
			Aftertouch: l.aftertouch,
		})
	case msg.GetNoteOff(&ch, &key, &velocity):
		l.sink.ReleaseRealtimeNote(l.instrumentID, key)
	default:
		var controller, value uint8
		if msg.GetControlChange(&ch, &controller, &value) {
			switch controller {
			case 1: // mod wheel
				l.modWheel = float64(value) / 127.0
			case 74: // commonly aftertouch-ish CC on controllers lacking real AT
				l.aftertouch = float64(value) / 127.0
			}
		}
	}
}

// Close stops listening and releases the port.
func (l *Listener) Close() {
	if l.stop != nil {
		l.stop()
	}
}
