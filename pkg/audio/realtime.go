package audio

import (
	"encoding/binary"

	"github.com/ebitengine/oto/v3"
)

// RealtimeOutput drives a Mixer through an oto/v3 audio stream,
// advancing a SampleClock exactly as many samples as the host actually
// consumes — generalized from the teacher's RealtimeOutput/audioStream
// pair (pkg/audio/realtime.go), swapping the single Player for a
// Mixer and adding the shared sample clock the transport anchors to.
type RealtimeOutput struct {
	mixer     *Mixer
	clock     *SampleClock
	pump      func(nowSeconds float64)
	otoCtx    *oto.Context
	otoPlayer *oto.Player
	buffer    []float64
	running   bool
}

// NewRealtimeOutput opens an oto/v3 context at sampleRate and starts
// pulling samples from mixer. pump is invoked once per read buffer,
// before samples are generated, so the Playback Manager's dispatch and
// lookahead scan run in lockstep with audio callbacks rather than a
// free-running wall-clock ticker racing the host buffer.
func NewRealtimeOutput(mixer *Mixer, clock *SampleClock, sampleRate int, pump func(nowSeconds float64)) (*RealtimeOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	rt := &RealtimeOutput{
		mixer:   mixer,
		clock:   clock,
		pump:    pump,
		otoCtx:  otoCtx,
		buffer:  make([]float64, 512),
		running: true,
	}

	rt.otoPlayer = otoCtx.NewPlayer(&audioStream{rt: rt})
	rt.otoPlayer.SetBufferSize(sampleRate / 10) // 100ms buffer
	rt.otoPlayer.Play()

	return rt, nil
}

// Close stops audio output.
func (rt *RealtimeOutput) Close() {
	rt.running = false
	if rt.otoPlayer != nil {
		rt.otoPlayer.Close()
	}
}

// audioStream implements io.Reader for oto, pulling mixed samples and
// converting to 16-bit PCM.
type audioStream struct {
	rt *RealtimeOutput
}

func (s *audioStream) Read(buf []byte) (int, error) {
	if !s.rt.running {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}

	samples := len(buf) / 2
	if samples > len(s.rt.buffer) {
		s.rt.buffer = make([]float64, samples)
	}

	if s.rt.pump != nil {
		s.rt.pump(s.rt.clock.Now())
	}
	for i := 0; i < samples; i++ {
		s.rt.buffer[i] = s.rt.mixer.Sample()
	}
	s.rt.clock.Advance(int64(samples))

	for i := 0; i < samples; i++ {
		sample := s.rt.buffer[i]
		if sample > 1.0 {
			sample = 1.0
		}
		if sample < -1.0 {
			sample = -1.0
		}
		s16 := int16(sample * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s16))
	}

	return samples * 2, nil
}
