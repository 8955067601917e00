package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type constSource struct {
	value  float64
	output string
}

func (s constSource) Sample() float64      { return s.value }
func (s constSource) GetOutputNode() string { return s.output }

func TestMixerSumsSourcesOnSameBus(t *testing.T) {
	m := NewMixer(44100)
	m.AddSource(constSource{value: 0.1, output: "master"})
	m.AddSource(constSource{value: 0.2, output: "master"})
	assert.InDelta(t, 0.3, m.Sample(), 1e-9)
}

func TestMixerKeepsBusesSeparateWithoutRouting(t *testing.T) {
	m := NewMixer(44100)
	m.AddSource(constSource{value: 0.1, output: "master"})
	m.AddSource(constSource{value: 0.2, output: "drums"})
	assert.InDelta(t, 0.3, m.Sample(), 1e-9, "buses sum together at the master stage even without an explicit route")
}

func TestMixerEchoSendFeedsDestinationBus(t *testing.T) {
	m := NewMixer(44100)
	m.AddSource(constSource{value: 0.4, output: "drums"})
	m.SetBusRoute(BusRoute{
		BusID:            "drums",
		EchoSendBusID:    "master",
		EchoMix:          1.0,
		EchoFeedback:     0.0,
		EchoDelaySeconds: 0.001, // ~44 samples at 44100Hz
	})

	first := m.Sample()
	assert.InDelta(t, 0.4, first, 1e-9, "the delay line hasn't produced any echo yet")

	var last float64
	for i := 0; i < 60; i++ {
		last = m.Sample()
	}
	assert.InDelta(t, 0.8, last, 1e-9, "once the delay line fills, the echo send adds the delayed drums signal into master on top of the dry drums bus")
}

func TestSoftLimitPassesThroughBelowThreshold(t *testing.T) {
	assert.InDelta(t, 0.5, softLimit(0.5), 1e-9)
	assert.InDelta(t, -0.5, softLimit(-0.5), 1e-9)
}

func TestSoftLimitBoundsExtremeValues(t *testing.T) {
	assert.Less(t, softLimit(100.0), 1.0)
	assert.Greater(t, softLimit(-100.0), -1.0)
}

func TestMasterGainScalesOutput(t *testing.T) {
	m := NewMixer(44100)
	m.AddSource(constSource{value: 0.2, output: "master"})
	m.SetMasterGain(0.5)
	assert.InDelta(t, 0.1, m.Sample(), 1e-9)
}
