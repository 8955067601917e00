package audio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVWriterHeaderMatchesFormat(t *testing.T) {
	var buf bytes.Buffer
	w := NewWAVWriter(&buf, 44100, 1)
	require.NoError(t, w.WriteHeader(8))

	header := buf.Bytes()
	assert.Equal(t, "RIFF", string(header[0:4]))
	assert.Equal(t, "WAVE", string(header[8:12]))
	assert.Equal(t, "fmt ", string(header[12:16]))
	assert.Equal(t, "data", string(header[36:40]))
}

func TestWAVWriterClampsOutOfRangeSamples(t *testing.T) {
	var buf bytes.Buffer
	w := NewWAVWriter(&buf, 44100, 1)
	require.NoError(t, w.WriteSamples([]float64{2.0, -2.0, 0.0}))
	assert.Equal(t, 6, buf.Len())
	// +2.0 clamps to +32767 and -2.0 to -32767, little-endian int16.
	assert.Equal(t, []byte{0xFF, 0x7F, 0x01, 0x80, 0x00, 0x00}, buf.Bytes())
}

func TestRenderOfflinePumpsOncePerChunk(t *testing.T) {
	mixer := NewMixer(100)
	mixer.AddSource(constSource{value: 0.1, output: "master"})
	clock := NewSampleClock(100)

	var pumpCalls int
	pump := func(now float64) { pumpCalls++ }

	var buf bytes.Buffer
	// 4096-sample chunks at 100Hz, render slightly over one chunk to
	// exercise the multi-chunk loop.
	require.NoError(t, RenderOffline(mixer, clock, 100, 50.0, pump, &buf))

	assert.Greater(t, pumpCalls, 0)
	assert.InDelta(t, 50.0, clock.Now(), 1e-6, "the sample clock advances to cover the full rendered duration")

	totalSamples := int(50.0 * 100)
	expectedBytes := 44 + totalSamples*2
	assert.Equal(t, expectedBytes, buf.Len())
}
