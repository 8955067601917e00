package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alperkosan/dawg-sub005/pkg/config"
	"github.com/alperkosan/dawg-sub005/pkg/instrument"
	"github.com/alperkosan/dawg-sub005/pkg/project"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.SampleRate = 48000
	e := New(cfg, nil)
	t.Cleanup(e.Shutdown)
	return e
}

func TestNewWiresEveryComponent(t *testing.T) {
	e := newTestEngine(t)
	assert.NotNil(t, e.SampleClock)
	assert.NotNil(t, e.Mixer)
	assert.NotNil(t, e.Transport)
	assert.NotNil(t, e.Scheduler)
	assert.NotNil(t, e.Automation)
	assert.NotNil(t, e.Manager)
}

func TestLoadBuildsAnalogInstrumentFromSpec(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{
		"instruments": [{"id": "lead", "kind": "analog", "output_node": "master",
			"max_voices": 4, "mode": "poly", "params": {"waveform": "square"}}]
	}`))
	require.NoError(t, err)
	e.LoadProject(doc)

	inst, err := e.Load(context.Background(), "lead")
	require.NoError(t, err)
	assert.Equal(t, "master", inst.GetOutputNode())

	_, ok := e.lookup("lead")
	assert.True(t, ok, "Load must register the built instrument")
}

func TestLoadBuildsSampleInstrumentFromSpec(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{
		"instruments": [{"id": "kit", "kind": "sample", "output_node": "master", "max_voices": 2}]
	}`))
	require.NoError(t, err)
	e.LoadProject(doc)

	inst, err := e.Load(context.Background(), "kit")
	require.NoError(t, err)
	assert.Equal(t, "master", inst.GetOutputNode())
}

func TestLoadBuildsGranularInstrumentFromSpec(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{
		"instruments": [{"id": "pad", "kind": "granular", "output_node": "master", "max_voices": 2,
			"params": {"grain_seconds": 0.05, "density": 4}}]
	}`))
	require.NoError(t, err)
	e.LoadProject(doc)

	_, err = e.Load(context.Background(), "pad")
	require.NoError(t, err)
}

func TestLoadRejectsUnknownInstrumentKind(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{
		"instruments": [{"id": "x", "kind": "mystery", "output_node": "master"}]
	}`))
	require.NoError(t, err)
	e.LoadProject(doc)

	_, err = e.Load(context.Background(), "x")
	assert.Error(t, err)
}

func TestLoadRejectsUnregisteredSpec(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Load(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestLoadDefaultsMaxVoicesFromConfig(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{
		"instruments": [{"id": "lead", "kind": "analog", "output_node": "master", "params": {}}]
	}`))
	require.NoError(t, err)
	e.LoadProject(doc)

	inst, err := e.Load(context.Background(), "lead")
	require.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Equal(t, e.Config.MaxVoicesDefault, inst.(*instrument.Instrument).Pool.MaxVoices())
}

func TestLoadProjectTombstonesAutomationForUnbuiltInstrument(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{
		"instruments": [{"id": "lead", "kind": "analog", "output_node": "master", "params": {}}],
		"automation": [{"param_id": "cutoff", "instrument_id": "lead", "breakpoints": [
			{"time_ticks": 0, "value": 0}]}]
	}`))
	require.NoError(t, err)

	// Must not panic even though "lead" hasn't been built yet: the nil
	// interface value path in LoadProject is what keeps the tombstoned
	// lane's target genuinely nil rather than a typed-nil *Instrument.
	assert.NotPanics(t, func() { e.LoadProject(doc) })
}

func TestLoadProjectAppliesTransportSettings(t *testing.T) {
	e := newTestEngine(t)
	doc, err := project.Parse([]byte(`{"transport": {"bpm": 140}}`))
	require.NoError(t, err)
	e.LoadProject(doc)
	assert.Equal(t, 140.0, e.Transport.BPM())
}

func TestShutdownIsIdempotentAndOrdered(t *testing.T) {
	e := New(config.Default(), nil)
	assert.NotPanics(t, e.Shutdown)
	assert.NotPanics(t, e.Shutdown, "Shutdown must tolerate being called more than once")
}
