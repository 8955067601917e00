// Package automation implements the automation scheduler (C5, §4.5):
// fixed 100Hz evaluation of parameter breakpoint curves, written into
// instrument/effect parameters through a short smoothing ramp to
// avoid zipper noise. Curve interpolation is grounded on
// justyntemme-vst3go's param.Smoother (linear/exponential/logarithmic
// ramps) generalized to the breakpoint-curve shape §4.5 specifies.
package automation

import (
	"log/slog"
	"math"
	"sort"
)

// Curve selects the interpolation shape between two breakpoints (§4.5).
type Curve int

const (
	Linear Curve = iota
	Exponential
	Logarithmic
	EaseIn
	EaseOut
	EaseInOut
	Step
)

// Breakpoint is one point of an automated parameter's curve.
type Breakpoint struct {
	TimeTicks int64
	Value     float64
	Curve     Curve
}

// ParamTarget is anything that accepts a scheduled parameter write —
// satisfied by instrument.Capability.SetParam and by mixer/effect
// parameter sinks alike.
type ParamTarget interface {
	SetParam(paramID string, value float64, atSeconds float64)
}

// lane is one automated parameter's breakpoint list plus its
// resolved target (or tombstoned, if the target has gone missing).
type lane struct {
	paramID     string
	breakpoints []Breakpoint
	target      ParamTarget
	tombstoned  bool
}

// RampDuration is the short smoothing window used to reach each
// newly-computed value, to prevent zipper noise (§4.5).
const RampDuration = 10 * 0.001 // seconds

// Clock is the minimal transport surface the scheduler needs.
type Clock interface {
	NowTicks() int64
	NowSeconds() float64
	TicksToSeconds(ticks int64) float64
}

// Scheduler evaluates every registered lane at a fixed 100Hz rate
// while the transport plays (§4.5 "Tick").
type Scheduler struct {
	clock  Clock
	lanes  map[string]*lane
	logger *slog.Logger
}

// New creates an automation scheduler driven by clock.
func New(clock Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		lanes:  make(map[string]*lane),
		logger: logger,
	}
}

// SetLane (re)installs a parameter's breakpoint list, sorted by time,
// and attaches its resolution target. Breakpoints must already be
// tick-sorted by the caller for determinism; SetLane sorts
// defensively since re-scheduling may pass an edited, unsorted list.
func (s *Scheduler) SetLane(paramID string, breakpoints []Breakpoint, target ParamTarget) {
	sorted := append([]Breakpoint(nil), breakpoints...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimeTicks < sorted[j].TimeTicks })
	s.lanes[paramID] = &lane{paramID: paramID, breakpoints: sorted, target: target}
}

// RemoveLane drops a parameter's automation entirely (e.g. the
// instrument/effect itself was removed).
func (s *Scheduler) RemoveLane(paramID string) {
	delete(s.lanes, paramID)
}

// ResolveTarget reattaches a target to a previously-tombstoned lane
// once the missing instrument/effect reappears (§4.5, §7
// ParamTargetMissing).
func (s *Scheduler) ResolveTarget(paramID string, target ParamTarget) {
	if l, ok := s.lanes[paramID]; ok {
		l.target = target
		l.tombstoned = false
	}
}

// Tick evaluates every lane at the transport's current position and
// writes a smoothing ramp toward the interpolated value (§4.5 steps
// 1-4). Call this at 100Hz (automation_interval_ms) while playing.
func (s *Scheduler) Tick() {
	t := s.clock.NowTicks()
	audioNow := s.clock.NowSeconds()

	for _, l := range s.lanes {
		if l.tombstoned {
			continue
		}
		if l.target == nil {
			l.tombstoned = true
			s.logger.Warn("automation: parameter target missing, tombstoning lane", "param", l.paramID)
			continue
		}
		if len(l.breakpoints) == 0 {
			continue
		}
		value, step := evaluate(l.breakpoints, t)
		if step {
			l.target.SetParam(l.paramID, value, audioNow)
		} else {
			l.target.SetParam(l.paramID, value, audioNow+RampDuration)
		}
	}
}

// evaluate finds the surrounding breakpoints via binary search and
// returns the curve-interpolated value at tick t, plus whether the
// segment is a `step` curve (applied as an exact setValueAtTime
// rather than a ramp, §4.5).
func evaluate(bps []Breakpoint, t int64) (value float64, isStep bool) {
	if t <= bps[0].TimeTicks {
		return bps[0].Value, bps[0].Curve == Step
	}
	last := bps[len(bps)-1]
	if t >= last.TimeTicks {
		return last.Value, last.Curve == Step
	}

	lo, hi := 0, len(bps)-1
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if bps[mid].TimeTicks <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	a, b := bps[lo], bps[hi]
	if a.Curve == Step {
		return a.Value, true
	}
	if b.TimeTicks == a.TimeTicks {
		return b.Value, false
	}
	frac := float64(t-a.TimeTicks) / float64(b.TimeTicks-a.TimeTicks)
	return interpolate(a.Curve, a.Value, b.Value, frac), false
}

// interpolate applies curve to frac in [0,1] between from and to.
func interpolate(curve Curve, from, to, frac float64) float64 {
	switch curve {
	case Exponential:
		return from + (to-from)*(frac*frac)
	case Logarithmic:
		return from + (to-from)*math.Sqrt(frac)
	case EaseIn:
		return from + (to-from)*(frac*frac*frac)
	case EaseOut:
		inv := 1 - frac
		return from + (to-from)*(1-inv*inv*inv)
	case EaseInOut:
		if frac < 0.5 {
			return from + (to-from)*(4*frac*frac*frac)
		}
		inv := -2*frac + 2
		return from + (to-from)*(1-(inv*inv*inv)/2)
	case Step:
		return from
	default: // Linear
		return from + (to-from)*frac
	}
}
