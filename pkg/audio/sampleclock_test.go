package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleClockAdvancesBySampleCount(t *testing.T) {
	c := NewSampleClock(44100)
	assert.Equal(t, 0.0, c.Now())
	c.Advance(44100)
	assert.InDelta(t, 1.0, c.Now(), 1e-9)
	c.Advance(22050)
	assert.InDelta(t, 1.5, c.Now(), 1e-9)
}

func TestSampleClockResetReturnsToZero(t *testing.T) {
	c := NewSampleClock(44100)
	c.Advance(44100)
	c.Reset()
	assert.Equal(t, 0.0, c.Now())
}
