package audio

import "sync/atomic"

// SampleClock is the audio-clock time source shared by both the
// realtime and offline renderers (§1: "callable from both a realtime
// audio callback and an offline batch renderer without modification").
// It counts rendered samples rather than reading the wall clock, so
// pkg/clock.Transport sees identical tick<->second behaviour whether
// samples are pulled by an oto callback in real time or generated as
// fast as possible into a WAV file.
type SampleClock struct {
	sampleRate float64
	samples    int64
}

// NewSampleClock creates a clock at sample 0.
func NewSampleClock(sampleRate float64) *SampleClock {
	return &SampleClock{sampleRate: sampleRate}
}

// Now reports elapsed seconds, suitable as a clock.AudioNow.
func (c *SampleClock) Now() float64 {
	return float64(atomic.LoadInt64(&c.samples)) / c.sampleRate
}

// Advance moves the clock forward by n rendered samples.
func (c *SampleClock) Advance(n int64) {
	atomic.AddInt64(&c.samples, n)
}

// Reset returns the clock to sample 0 (offline render restart).
func (c *SampleClock) Reset() {
	atomic.StoreInt64(&c.samples, 0)
}
