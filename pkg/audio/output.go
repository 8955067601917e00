package audio

import (
	"encoding/binary"
	"io"
)

// WAVWriter writes audio to WAV format, unchanged from the teacher's
// pkg/audio/output.go.
type WAVWriter struct {
	writer      io.Writer
	sampleRate  int
	channels    int
	dataWritten int
}

// NewWAVWriter creates a WAV writer.
func NewWAVWriter(w io.Writer, sampleRate, channels int) *WAVWriter {
	return &WAVWriter{
		writer:     w,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// WriteHeader writes the WAV header.
func (w *WAVWriter) WriteHeader(dataSize int) error {
	w.writer.Write([]byte("RIFF"))
	binary.Write(w.writer, binary.LittleEndian, uint32(dataSize+36))
	w.writer.Write([]byte("WAVE"))

	w.writer.Write([]byte("fmt "))
	binary.Write(w.writer, binary.LittleEndian, uint32(16))
	binary.Write(w.writer, binary.LittleEndian, uint16(1))
	binary.Write(w.writer, binary.LittleEndian, uint16(w.channels))
	binary.Write(w.writer, binary.LittleEndian, uint32(w.sampleRate))
	byteRate := w.sampleRate * w.channels * 2
	binary.Write(w.writer, binary.LittleEndian, uint32(byteRate))
	blockAlign := w.channels * 2
	binary.Write(w.writer, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w.writer, binary.LittleEndian, uint16(16))

	w.writer.Write([]byte("data"))
	binary.Write(w.writer, binary.LittleEndian, uint32(dataSize))

	return nil
}

// WriteSamples writes float samples as 16-bit PCM.
func (w *WAVWriter) WriteSamples(samples []float64) error {
	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		}
		if s < -1.0 {
			s = -1.0
		}
		s16 := int16(s * 32767)
		if err := binary.Write(w.writer, binary.LittleEndian, s16); err != nil {
			return err
		}
		w.dataWritten += 2
	}
	return nil
}

// RenderOffline renders durationSeconds of mixer output to writer as a
// mono 16-bit WAV file, pumping the caller's scheduling step once per
// chunk so the Playback Manager advances in lockstep with generated
// audio rather than wall-clock time — generalized from the teacher's
// ExportWAV (pkg/audio/output.go), replacing its single Player with a
// Mixer plus a SampleClock shared with the realtime path (§1 "callable
// from both a realtime audio callback and an offline batch renderer
// without modification").
func RenderOffline(mixer *Mixer, clock *SampleClock, sampleRate int, durationSeconds float64, pump func(nowSeconds float64), writer io.Writer) error {
	totalSamples := int(durationSeconds * float64(sampleRate))
	dataSize := totalSamples * 2

	wavWriter := NewWAVWriter(writer, sampleRate, 1)
	if err := wavWriter.WriteHeader(dataSize); err != nil {
		return err
	}

	clock.Reset()
	chunkSize := 4096
	buffer := make([]float64, chunkSize)
	for written := 0; written < totalSamples; {
		remaining := totalSamples - written
		n := chunkSize
		if remaining < n {
			n = remaining
		}
		chunk := buffer[:n]

		if pump != nil {
			pump(clock.Now())
		}
		for i := range chunk {
			chunk[i] = mixer.Sample()
		}
		clock.Advance(int64(n))

		if err := wavWriter.WriteSamples(chunk); err != nil {
			return err
		}
		written += n
	}

	return nil
}
