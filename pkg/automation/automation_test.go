package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	ticks   int64
	seconds float64
}

func (c *fakeClock) NowTicks() int64                    { return c.ticks }
func (c *fakeClock) NowSeconds() float64                { return c.seconds }
func (c *fakeClock) TicksToSeconds(ticks int64) float64 { return float64(ticks) / 96.0 }

type fakeTarget struct {
	paramID string
	value   float64
	atTime  float64
	calls   int
}

func (t *fakeTarget) SetParam(paramID string, value float64, atSeconds float64) {
	t.paramID = paramID
	t.value = value
	t.atTime = atSeconds
	t.calls++
}

func TestTickInterpolatesLinearBetweenBreakpoints(t *testing.T) {
	clk := &fakeClock{ticks: 48, seconds: 1.0}
	target := &fakeTarget{}
	s := New(clk, nil)
	s.SetLane("cutoff", []Breakpoint{
		{TimeTicks: 0, Value: 0, Curve: Linear},
		{TimeTicks: 96, Value: 100, Curve: Linear},
	}, target)

	s.Tick()
	assert.InDelta(t, 50.0, target.value, 1e-9)
	assert.Equal(t, "cutoff", target.paramID)
}

func TestTickHoldsLastValuePastEnd(t *testing.T) {
	clk := &fakeClock{ticks: 1000}
	target := &fakeTarget{}
	s := New(clk, nil)
	s.SetLane("gain", []Breakpoint{
		{TimeTicks: 0, Value: 1},
		{TimeTicks: 96, Value: 5},
	}, target)

	s.Tick()
	assert.Equal(t, 5.0, target.value)
}

func TestStepCurveSetsValueImmediately(t *testing.T) {
	clk := &fakeClock{ticks: 96, seconds: 2.0}
	target := &fakeTarget{}
	s := New(clk, nil)
	s.SetLane("mode", []Breakpoint{
		{TimeTicks: 0, Value: 0, Curve: Step},
		{TimeTicks: 96, Value: 1, Curve: Step},
	}, target)

	s.Tick()
	assert.Equal(t, 1.0, target.value)
	assert.Equal(t, 2.0, target.atTime, "a step curve writes at the current time, not a smoothing ramp ahead")
}

func TestMissingTargetTombstonesLane(t *testing.T) {
	clk := &fakeClock{}
	s := New(clk, nil)
	s.SetLane("cutoff", []Breakpoint{{TimeTicks: 0, Value: 1}}, nil)

	s.Tick()
	s.Tick() // second tick must not log/panic again, lane stays tombstoned

	s.ResolveTarget("cutoff", &fakeTarget{})
	s.Tick()
}

func TestResolveTargetReactivatesTombstonedLane(t *testing.T) {
	clk := &fakeClock{ticks: 0, seconds: 0}
	s := New(clk, nil)
	s.SetLane("cutoff", []Breakpoint{{TimeTicks: 0, Value: 42}}, nil)
	s.Tick()

	target := &fakeTarget{}
	s.ResolveTarget("cutoff", target)
	s.Tick()
	require.Equal(t, 1, target.calls)
	assert.Equal(t, 42.0, target.value)
}

func TestRemoveLaneDropsItEntirely(t *testing.T) {
	clk := &fakeClock{}
	s := New(clk, nil)
	s.SetLane("cutoff", []Breakpoint{{TimeTicks: 0, Value: 1}}, &fakeTarget{})
	s.RemoveLane("cutoff")
	_, ok := s.lanes["cutoff"]
	assert.False(t, ok)
}

func TestInterpolateCurveShapes(t *testing.T) {
	assert.Equal(t, 0.0, interpolate(Linear, 0, 10, 0))
	assert.Equal(t, 10.0, interpolate(Linear, 0, 10, 1))
	assert.InDelta(t, 5.0, interpolate(Linear, 0, 10, 0.5), 1e-9)
	assert.InDelta(t, 2.5, interpolate(Exponential, 0, 10, 0.5), 1e-9)
	assert.Equal(t, 0.0, interpolate(Step, 0, 10, 0.9))
}
