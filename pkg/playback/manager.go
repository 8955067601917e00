// Package playback implements the Playback Manager (C3, §4.3): it
// walks the arrangement's clips within the transport's lookahead
// window, turns pattern clips into note_on/note_off events on the
// event scheduler, reacts to loop wraps and tempo changes, and
// inserts realtime notes and audio clip starts through the same
// priority-lane debouncer. It is the component that ties the clock,
// scheduler, pattern data model, and voice/instrument layer together,
// generalized from the teacher tracker's Player.ProcessRow/ProcessTick
// row-walking loop (pkg/audio/player.go) and, for the lookahead-window
// shape, other_examples' grahamseamans-go-sequence manager.go.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alperkosan/dawg-sub005/pkg/automation"
	"github.com/alperkosan/dawg-sub005/pkg/clock"
	"github.com/alperkosan/dawg-sub005/pkg/instrument"
	"github.com/alperkosan/dawg-sub005/pkg/pattern"
	"github.com/alperkosan/dawg-sub005/pkg/schedule"
	"github.com/alperkosan/dawg-sub005/pkg/voice"
)

// InstrumentLoader asynchronously resolves an instrument that was
// referenced by a pattern lane but isn't registered yet (§7
// InstrumentMissing: "retry the load once, then skip the note and log
// a warning").
type InstrumentLoader interface {
	Load(ctx context.Context, instrumentID string) (instrument.Capability, error)
}

// AudioClipSink renders an audio clip's buffer into the mix at
// atSeconds on the resolved destination bus (§4.3 "audio clip
// scheduling", destination priority clip > track > master).
type AudioClipSink interface {
	PlayClip(clip *pattern.Clip, destination string, atSeconds float64)
}

// Config configures a Manager's timing knobs (§6).
type Config struct {
	TickInterval      time.Duration // lookahead re-scan cadence, default 16ms
	AutomationInterval time.Duration // default 10ms (100Hz, §4.5)
	MaxConcurrentLoads int          // bounds InstrumentLoader fan-out, default 4
	Logger            *slog.Logger
}

type activeNote struct {
	instrumentID string
	pitch        uint8
	endTick      int64
	endSeconds   float64
	clipID       string
}

// Manager is the Playback Manager. It owns no timing state of its
// own beyond bookkeeping of in-flight notes; the Transport remains the
// single source of truth for position and tempo (§9 ownership tree).
type Manager struct {
	transport  *clock.Transport
	scheduler  *schedule.Scheduler
	automation *automation.Scheduler
	lanes      *laneScheduler

	mu           sync.Mutex
	instruments  map[string]instrument.Capability
	patterns     map[string]*pattern.Pattern
	arrangement  *pattern.Arrangement
	activeNotes  []activeNote
	missingTried map[string]bool

	// scheduledUpTo tracks, per clip, the tick already covered by a
	// prior lookahead pass, so repeated scans (every tick_interval)
	// don't re-insert the same note or audio-clip-start event while it
	// still sits inside the lookahead window.
	scheduledUpTo map[string]int64

	loader       InstrumentLoader
	audioSink    AudioClipSink
	loadSem      chan struct{}

	cfg      Config
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	transportCh chan clock.Event
}

// New wires a Manager around an already-constructed transport,
// scheduler, and automation scheduler (§9: the engine root owns
// these and hands the Manager non-owning references).
func New(transport *clock.Transport, scheduler *schedule.Scheduler, automationSched *automation.Scheduler, cfg Config) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 16 * time.Millisecond
	}
	if cfg.AutomationInterval <= 0 {
		cfg.AutomationInterval = 10 * time.Millisecond
	}
	if cfg.MaxConcurrentLoads <= 0 {
		cfg.MaxConcurrentLoads = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{
		transport:    transport,
		scheduler:    scheduler,
		automation:   automationSched,
		lanes:        newLaneScheduler(DefaultLaneBudgets()),
		instruments:   make(map[string]instrument.Capability),
		patterns:      make(map[string]*pattern.Pattern),
		missingTried:  make(map[string]bool),
		scheduledUpTo: make(map[string]int64),
		loadSem:      make(chan struct{}, cfg.MaxConcurrentLoads),
		cfg:          cfg,
		logger:       cfg.Logger,
		transportCh:  make(chan clock.Event, 32),
	}
	transport.Subscribe(m.transportCh)
	return m
}

// SetLoader installs the instrument loader used for InstrumentMissing
// recovery.
func (m *Manager) SetLoader(loader InstrumentLoader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loader = loader
}

// SetAudioClipSink installs the audio-clip playback destination.
func (m *Manager) SetAudioClipSink(sink AudioClipSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioSink = sink
}

// RegisterInstrument makes an instrument resolvable by ID, and
// resolves any automation lanes and missing-note retries waiting on it.
func (m *Manager) RegisterInstrument(id string, inst instrument.Capability) {
	m.mu.Lock()
	m.instruments[id] = inst
	delete(m.missingTried, id)
	m.mu.Unlock()
	m.automation.ResolveTarget(id, inst)
}

// SetPattern installs or replaces a pattern definition.
func (m *Manager) SetPattern(p *pattern.Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[p.ID] = p
}

// SetArrangement installs the arrangement the lookahead scan walks.
// Changing the arrangement is an idle-priority edit (§4.3 lanes).
func (m *Manager) SetArrangement(a *pattern.Arrangement) {
	m.lanes.Enqueue(PriorityIdle, func() {
		m.mu.Lock()
		m.arrangement = a
		m.mu.Unlock()
	})
}

// Start begins the lookahead scan and automation ticks. The caller
// must already have called transport.Start/Resume.
func (m *Manager) Start() {
	m.stopCh = make(chan struct{})
	m.wg.Add(3)
	go m.runLookahead()
	go m.runAutomation()
	go m.runTransportEvents()
}

// Stop halts the manager's background loops and discards pending
// debounced lane work (§5 "Pending debounced flushes are discarded").
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.lanes.Discard()
}

func (m *Manager) runLookahead() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if !m.transport.IsPlaying() {
				continue
			}
			now := m.transport.NowSeconds()
			m.scheduler.Dispatch(now)
			m.scheduler.SweepStale(now)
			m.lanes.Enqueue(PriorityIdle, m.scheduleLookahead)
		}
	}
}

func (m *Manager) runAutomation() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.AutomationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.transport.IsPlaying() {
				m.automation.Tick()
			}
		}
	}
}

func (m *Manager) runTransportEvents() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case ev := <-m.transportCh:
			switch ev.Kind {
			case clock.EventLoopWrap:
				m.lanes.Enqueue(PriorityBurst, func() { m.handleLoopWrap(ev) })
			case clock.EventSeek:
				m.lanes.Enqueue(PriorityBurst, func() { m.handleSeek(ev) })
			case clock.EventTempoChange:
				m.lanes.Enqueue(PriorityBurst, m.scheduleLookahead)
			}
		}
	}
}

// scheduleLookahead implements §4.3 steps 1-6: for every audible clip
// overlapping the transport's lookahead window, expand pattern
// repeats into note_on/note_off events (or schedule an audio clip
// start), tagged by clip and instrument for later selective clearing.
func (m *Manager) scheduleLookahead() {
	m.mu.Lock()
	arrangement := m.arrangement
	m.mu.Unlock()
	if arrangement == nil {
		return
	}

	nowTick := m.transport.NowTicks()
	aheadTicks := m.transport.SecondsToTicks(m.transport.ScheduleAheadSeconds())
	horizonTick := nowTick + aheadTicks
	anySoloed := pattern.AnyTrackSoloed(arrangement.Tracks)

	for _, clip := range arrangement.Clips {
		track := arrangement.TrackByID(clip.TrackID)
		if track != nil && !track.Audible(anySoloed) {
			continue
		}
		if clip.Kind == pattern.ClipAudio {
			m.scheduleAudioClip(clip, track, nowTick, horizonTick)
			continue
		}
		m.schedulePatternClip(clip, track, nowTick, horizonTick)
	}
}

// schedulePatternClip expands one pattern clip's loop repeats (§4.3
// step 2: effective pattern length; step 3: effective start/end; step
// 4: num_loops; step 5: per-note arrangement-time mapping) and
// schedules every note whose absolute start tick falls inside
// [nowTick, horizonTick).
func (m *Manager) schedulePatternClip(clip *pattern.Clip, track *pattern.Track, nowTick, horizonTick int64) {
	m.mu.Lock()
	pat := m.patterns[clip.PatternID]
	m.mu.Unlock()
	if pat == nil {
		return
	}

	patLen := pat.EffectiveLength()
	if patLen <= 0 {
		return
	}
	clipEnd := clip.StartTick + clip.DurationTicks

	effectiveStart := clip.StartTick
	if nowTick > effectiveStart {
		effectiveStart = nowTick
	}
	m.mu.Lock()
	if covered, ok := m.scheduledUpTo[clip.ID]; ok && covered > effectiveStart {
		effectiveStart = covered
	}
	m.mu.Unlock()
	effectiveEnd := clipEnd
	if horizonTick < effectiveEnd {
		effectiveEnd = horizonTick
	}
	if effectiveStart >= effectiveEnd {
		return
	}
	defer func() {
		m.mu.Lock()
		m.scheduledUpTo[clip.ID] = effectiveEnd
		m.mu.Unlock()
	}()

	firstLoop := (effectiveStart - clip.StartTick + clip.PatternOffsetTicks) / patLen
	for loopIdx := firstLoop; ; loopIdx++ {
		loopBase := clip.StartTick - clip.PatternOffsetTicks + loopIdx*patLen
		if loopBase >= clipEnd || loopBase >= horizonTick {
			break
		}

		for instrumentID, notes := range pat.Lanes {
			for _, note := range notes {
				absTick := loopBase + note.StartTick
				if absTick < clip.StartTick || absTick >= clipEnd {
					continue
				}
				if absTick < effectiveStart || absTick >= horizonTick {
					continue
				}
				m.scheduleNote(clip, track, instrumentID, note, absTick)
			}
		}
	}
}

func (m *Manager) scheduleNote(clip *pattern.Clip, track *pattern.Track, instrumentID string, note pattern.Note, absTick int64) {
	onSeconds := m.transport.AbsoluteSecondsForTick(absTick)
	offTick := absTick + note.LengthTicks
	offSeconds := m.transport.AbsoluteSecondsForTick(offTick)
	origin := schedule.Tag{PatternOrClipID: clip.ID, InstrumentID: instrumentID}

	extended := voice.ExtendedParams{
		Pan:        note.Params.Pan,
		ModWheel:   note.Params.ModWheel,
		Aftertouch: note.Params.Aftertouch,
	}
	pitch, velocity, lengthTicks := note.Pitch, note.Velocity, note.LengthTicks

	m.scheduler.Insert(schedule.Event{
		ScheduledTick:    absTick,
		ScheduledSeconds: onSeconds,
		Kind:             schedule.KindNoteOn,
		Priority:         1,
		Origin:           origin,
		Callback: func(atSeconds float64, _ schedule.Event) {
			m.triggerNote(instrumentID, pitch, velocity, atSeconds, lengthTicks, extended, clip.ID, offTick, offSeconds)
		},
	})
	m.scheduler.Insert(schedule.Event{
		ScheduledTick:    offTick,
		ScheduledSeconds: offSeconds,
		Kind:             schedule.KindNoteOff,
		Priority:         1,
		Origin:           origin,
		Callback: func(atSeconds float64, _ schedule.Event) {
			m.releaseNote(instrumentID, pitch, atSeconds)
		},
	})

	_ = track
}

func (m *Manager) triggerNote(instrumentID string, pitch, velocity uint8, atSeconds float64, lengthTicks int64, extended voice.ExtendedParams, clipID string, offTick int64, offSeconds float64) {
	inst, ok := m.lookupInstrument(instrumentID)
	if !ok {
		m.handleMissingInstrument(instrumentID)
		return
	}
	inst.Trigger(pitch, velocity, atSeconds, lengthTicks, extended)

	m.mu.Lock()
	m.activeNotes = append(m.activeNotes, activeNote{instrumentID: instrumentID, pitch: pitch, endTick: offTick, endSeconds: offSeconds, clipID: clipID})
	m.mu.Unlock()
}

func (m *Manager) releaseNote(instrumentID string, pitch uint8, atSeconds float64) {
	inst, ok := m.lookupInstrument(instrumentID)
	if ok {
		inst.Release(pitch, atSeconds)
	}
	m.mu.Lock()
	for i, n := range m.activeNotes {
		if n.instrumentID == instrumentID && n.pitch == pitch {
			m.activeNotes = append(m.activeNotes[:i], m.activeNotes[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

func (m *Manager) lookupInstrument(id string) (instrument.Capability, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instruments[id]
	return inst, ok
}

// handleMissingInstrument implements §7 InstrumentMissing: retry the
// load once (bounded by loadSem so a burst of missing notes can't
// spawn unbounded loader calls), then skip and log. Successful loads
// register themselves through RegisterInstrument when they land; this
// note itself is not retried/replayed, matching "skip the note".
func (m *Manager) handleMissingInstrument(instrumentID string) {
	m.mu.Lock()
	loader := m.loader
	alreadyTried := m.missingTried[instrumentID]
	if !alreadyTried {
		m.missingTried[instrumentID] = true
	}
	m.mu.Unlock()

	if loader == nil {
		m.logger.Warn("playback: instrument missing, no loader configured, skipping note", "instrument", instrumentID)
		return
	}
	if alreadyTried {
		m.logger.Warn("playback: instrument missing, already retried once, skipping note", "instrument", instrumentID)
		return
	}

	m.logger.Warn("playback: instrument missing, attempting one-time load", "instrument", instrumentID)
	select {
	case m.loadSem <- struct{}{}:
	default:
		m.logger.Warn("playback: instrument load concurrency exhausted, skipping note", "instrument", instrumentID)
		return
	}

	go func() {
		defer func() { <-m.loadSem }()
		g, ctx := errgroup.WithContext(context.Background())
		g.Go(func() error {
			inst, err := loader.Load(ctx, instrumentID)
			if err != nil {
				return fmt.Errorf("load instrument %q: %w", instrumentID, err)
			}
			m.RegisterInstrument(instrumentID, inst)
			return nil
		})
		if err := g.Wait(); err != nil {
			m.logger.Error("playback: instrument load failed, note already skipped", "error", err)
		}
	}()
}

// scheduleAudioClip schedules an audio clip's start, resolving
// destination routing priority clip > track > master (§4.3).
func (m *Manager) scheduleAudioClip(clip *pattern.Clip, track *pattern.Track, nowTick, horizonTick int64) {
	if clip.StartTick < nowTick || clip.StartTick >= horizonTick {
		return
	}
	m.mu.Lock()
	alreadyScheduled := m.scheduledUpTo[clip.ID] > 0
	m.scheduledUpTo[clip.ID] = horizonTick
	m.mu.Unlock()
	if alreadyScheduled {
		return
	}
	destination := "master"
	if track != nil && track.OutputRouting != "" {
		destination = track.OutputRouting
	}
	if clip.DestinationChannelID != "" {
		destination = clip.DestinationChannelID
	}
	atSeconds := m.transport.AbsoluteSecondsForTick(clip.StartTick)

	m.mu.Lock()
	sink := m.audioSink
	m.mu.Unlock()

	m.scheduler.Insert(schedule.Event{
		ScheduledTick:    clip.StartTick,
		ScheduledSeconds: atSeconds,
		Kind:             schedule.KindAudioClipStart,
		Priority:         0,
		Origin:           schedule.Tag{PatternOrClipID: clip.ID},
		Callback: func(at float64, _ schedule.Event) {
			if sink != nil {
				sink.PlayClip(clip, destination, at)
			}
		},
	})
}

// handleLoopWrap implements §4.3's loop re-schedule: clear only the
// pending events whose scheduled tick falls beyond the old timeline's
// loop end (they can never fire now that position has wrapped back to
// loop start), stop the voices whose note would have ended strictly
// before the new loop start (they're stuck sounding since their
// note_off event is gone), re-emit the note_off for any sustain that
// legitimately spans the boundary (its own note_off was just cleared
// by the same predicate), and re-run the lookahead scan from loop
// start.
func (m *Manager) handleLoopWrap(ev clock.Event) {
	_, loopEnd, _ := m.transport.Loop()

	m.scheduler.ClearByPredicate(func(e schedule.Event) bool {
		return e.ScheduledTick >= loopEnd
	})

	m.mu.Lock()
	var stuck []activeNote
	var crossing []activeNote
	var kept []activeNote
	for _, n := range m.activeNotes {
		switch {
		case n.endTick < ev.Tick:
			stuck = append(stuck, n)
		case n.endTick >= loopEnd:
			crossing = append(crossing, n)
			kept = append(kept, n)
		default:
			kept = append(kept, n)
		}
	}
	m.activeNotes = kept
	m.scheduledUpTo = make(map[string]int64)
	m.mu.Unlock()

	for _, n := range stuck {
		if inst, ok := m.lookupInstrument(n.instrumentID); ok {
			inst.Release(n.pitch, ev.AudioSeconds)
		}
	}

	for _, n := range crossing {
		instrumentID, pitch := n.instrumentID, n.pitch
		m.scheduler.Insert(schedule.Event{
			ScheduledTick:    n.endTick,
			ScheduledSeconds: n.endSeconds,
			Kind:             schedule.KindNoteOff,
			Priority:         1,
			Origin:           schedule.Tag{PatternOrClipID: n.clipID, InstrumentID: instrumentID},
			Callback: func(atSeconds float64, _ schedule.Event) {
				m.releaseNote(instrumentID, pitch, atSeconds)
			},
		})
	}

	m.scheduleLookahead()
}

// handleSeek clears all pending pattern-derived events (their tick
// positions are meaningless after a discontinuous jump) and
// hard-stops every instrument's voices, then re-schedules fresh
// (§5 "Seeking mid-playback").
func (m *Manager) handleSeek(ev clock.Event) {
	m.scheduler.ClearByPredicate(func(e schedule.Event) bool {
		return e.Kind == schedule.KindNoteOn || e.Kind == schedule.KindNoteOff
	})

	m.mu.Lock()
	m.activeNotes = nil
	m.scheduledUpTo = make(map[string]int64)
	insts := make([]instrument.Capability, 0, len(m.instruments))
	for _, inst := range m.instruments {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	for _, inst := range insts {
		inst.StopAllImmediate()
	}
	m.scheduleLookahead()
}

// InsertRealtimeNote schedules an immediate note outside the pattern
// grid — live MIDI input or a UI-triggered preview (§4.3 realtime
// lane). It is queued at realtime priority so a burst of incoming
// notes coalesces into one flush within the lane's delay budget.
func (m *Manager) InsertRealtimeNote(instrumentID string, pitch, velocity uint8, extended voice.ExtendedParams) {
	m.lanes.Enqueue(PriorityRealtime, func() {
		inst, ok := m.lookupInstrument(instrumentID)
		if !ok {
			m.handleMissingInstrument(instrumentID)
			return
		}
		now := m.transport.NowSeconds()
		inst.Trigger(pitch, velocity, now, 0, extended)
	})
}

// ReleaseRealtimeNote ends a realtime-inserted note.
func (m *Manager) ReleaseRealtimeNote(instrumentID string, pitch uint8) {
	m.lanes.Enqueue(PriorityRealtime, func() {
		if inst, ok := m.lookupInstrument(instrumentID); ok {
			inst.Release(pitch, m.transport.NowSeconds())
		}
	})
}

// StopAll hard-stops every registered instrument, for transport.Stop.
func (m *Manager) StopAll() {
	m.mu.Lock()
	insts := make([]instrument.Capability, 0, len(m.instruments))
	for _, inst := range m.instruments {
		insts = append(insts, inst)
	}
	m.activeNotes = nil
	m.mu.Unlock()
	for _, inst := range insts {
		inst.StopAllImmediate()
	}
}
