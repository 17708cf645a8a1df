// Package guidance implements the deterministic cue scheduler and exercise
// state machine behind voice-guided activity sessions.
//
// An Executor turns an Activity into an ordered cue timeline, schedules the
// cues against an injectable clock, and survives pause/resume, skip/back,
// pace changes, and full teardown/restore without dropping or duplicating a
// cue. Every timer handle it creates is tracked and cancelled before any
// competing transition schedules replacements.
package guidance

import (
	"log/slog"
	"sync"
	"time"
)

type emitFn = func(Callbacks)

// Executor runs one activity at a time. State machine:
// idle -> active <-> paused -> completed (terminal); idle is also reachable
// via Reset. Transitions outside the machine are silently ignored.
type Executor struct {
	mu     sync.Mutex
	clock  Clock
	cb     Callbacks
	logger *slog.Logger

	status   Status
	activity Activity
	plan     cuePlan

	pace float64

	startTime    time.Time
	pausedAt     time.Time
	totalPaused  time.Duration
	finalElapsed time.Duration

	current   int
	completed []string

	fired        []bool
	timers       map[int]TimerHandle
	scheduledFor map[int]time.Time
	countdown    []TimerHandle

	inRest    bool
	restTimer TimerHandle
	restEndAt time.Time

	// countdownTarget is the exercise awaiting its countdown handoff, or
	// -1 when no countdown is in flight.
	countdownTarget int

	exerciseStartedAt    time.Time
	pausedBeforeExercise time.Duration

	pacing repPacer
}

// NewExecutor creates an idle executor. The callbacks sink is injected once
// here and never swapped. A nil clock uses the system clock; a nil logger
// uses slog.Default.
func NewExecutor(clock Clock, cb Callbacks, logger *slog.Logger) *Executor {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		clock:           clock,
		cb:              cb,
		logger:          logger,
		status:          StatusIdle,
		pace:            PaceNormal,
		countdownTarget: -1,
	}
}

func (e *Executor) run(out []emitFn) {
	if e.cb == nil {
		return
	}
	for _, f := range out {
		f(e.cb)
	}
}

// Initialize generates the cue timeline for an activity. Reports through
// OnError and leaves state untouched if the activity yields no cues. Ignored
// while a session is active or paused.
func (e *Executor) Initialize(a Activity) {
	e.mu.Lock()
	if e.status == StatusActive || e.status == StatusPaused {
		e.mu.Unlock()
		return
	}
	plan := generateCues(a)
	if len(plan.cues) == 0 {
		e.mu.Unlock()
		e.run([]emitFn{func(cb Callbacks) { cb.OnError("activity has no usable exercises") }})
		return
	}
	e.activity = a
	e.plan = plan
	e.status = StatusIdle
	e.clearRuntimeLocked()
	e.mu.Unlock()
	e.logger.Debug("GUIDE initialized", "activity", a.Name, "cues", len(plan.cues))
}

// Start begins the activity from idle, or resumes if paused.
func (e *Executor) Start() {
	e.mu.Lock()
	if e.status == StatusPaused {
		e.mu.Unlock()
		e.Resume()
		return
	}
	if e.status != StatusIdle {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	if len(e.plan.cues) == 0 {
		e.mu.Unlock()
		e.run([]emitFn{func(cb Callbacks) { cb.OnError("no activity initialized") }})
		return
	}

	now := e.clock.Now()
	e.status = StatusActive
	e.startTime = now
	e.totalPaused = 0
	e.finalElapsed = 0
	e.completed = nil
	e.fired = make([]bool, len(e.plan.cues))
	e.timers = make(map[int]TimerHandle, len(e.plan.cues))
	e.scheduledFor = make(map[int]time.Time, len(e.plan.cues))

	e.startExerciseLocked(0, &out)

	// Cues at offset 0 execute synchronously; the rest are armed at their
	// pace-scaled offsets.
	for i, c := range e.plan.cues {
		d := e.scale(c.TimingMS)
		e.scheduledFor[i] = now.Add(d)
		if d <= 0 {
			e.fireLocked(i, &out)
		} else {
			e.armCueLocked(i, d)
		}
	}
	e.mu.Unlock()
	e.run(out)
}

// Pause suspends an active session. Cancels every live timer handle; no cue
// timer may remain armed while paused.
func (e *Executor) Pause() {
	e.mu.Lock()
	if e.status != StatusActive {
		e.mu.Unlock()
		return
	}
	e.cancelCueTimersLocked()
	e.cancelCountdownLocked()
	if e.restTimer != nil {
		e.restTimer.Stop()
		e.restTimer = nil
	}
	e.status = StatusPaused
	e.pausedAt = e.clock.Now()
	out := []emitFn{e.progressEmit()}
	e.mu.Unlock()
	e.run(out)
}

// Resume continues a paused session. Shifts every not-yet-fired cue by the
// pause duration, preserving relative offsets, and re-emits a timer
// directive with the current exercise's remaining duration.
func (e *Executor) Resume() {
	e.mu.Lock()
	if e.status != StatusPaused {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	now := e.clock.Now()
	delta := now.Sub(e.pausedAt)
	e.totalPaused += delta
	e.status = StatusActive

	// Remaining time for the current exercise, excluding paused intervals.
	activeInExercise := now.Sub(e.exerciseStartedAt) - (e.totalPaused - e.pausedBeforeExercise)
	remaining := e.currentEstimateLocked() - activeInExercise
	if remaining > 0 {
		out = append(out, func(cb Callbacks) { cb.OnTimer(TimerDirective{Op: TimerReset, Duration: remaining}) })
	} else {
		// Exercise finished during the pause; the boundary cue fires as
		// soon as the shifted schedule is re-armed.
		out = append(out, func(cb Callbacks) { cb.OnTimer(TimerDirective{Op: TimerStop}) })
	}

	if e.inRest {
		e.restEndAt = e.restEndAt.Add(delta)
		e.armRestLocked(e.restEndAt.Sub(now))
	}

	if e.countdownTarget >= 0 {
		// The pause landed mid-countdown; replay it in full.
		e.beginCountdownLocked(e.countdownTarget, &out)
	}

	name := e.activity.Exercises[e.current].Name
	out = append(out, func(cb Callbacks) {
		cb.OnCue(Cue{Type: CueInstruction, Text: "Resuming " + name + ".", ExerciseIndex: e.current})
	})

	// Shift and re-arm every unfired cue. Anything already due fires now,
	// never before "now".
	e.shiftScheduleLocked(delta, now, &out)
	e.mu.Unlock()
	e.run(out)
}

// Skip completes the current exercise and advances, replaying the countdown
// before the next exercise's timer starts. Skipping the final exercise
// completes the activity.
func (e *Executor) Skip() {
	e.mu.Lock()
	if e.status != StatusActive {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	e.cancelAllLocked()

	idx := e.current
	ex := e.activity.Exercises[idx]
	e.silenceExerciseLocked(idx)
	e.completed = append(e.completed, ex.Name)
	out = append(out, func(cb Callbacks) { cb.OnExerciseComplete(ex.Name, idx) })

	if idx >= len(e.activity.Exercises)-1 {
		e.completeActivityLocked(&out)
	} else {
		e.current = idx + 1
		e.inRest = false
		e.beginCountdownLocked(e.current, &out)
	}
	e.mu.Unlock()
	e.run(out)
}

// GoBack returns to the previous exercise, or announces that the session is
// already at the first exercise without mutating any state.
func (e *Executor) GoBack() {
	e.mu.Lock()
	if e.status != StatusActive {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	if e.current == 0 {
		out = append(out, func(cb Callbacks) {
			cb.OnCue(Cue{Type: CueInstruction, Text: "You're already at the first exercise.", ExerciseIndex: 0})
		})
		e.mu.Unlock()
		e.run(out)
		return
	}
	e.cancelAllLocked()
	target := e.current - 1
	// The exercise we are returning to is no longer complete.
	if n := len(e.completed); n > 0 && e.completed[n-1] == e.activity.Exercises[target].Name {
		e.completed = e.completed[:n-1]
	}
	e.current = target
	e.inRest = false
	e.beginCountdownLocked(target, &out)
	e.mu.Unlock()
	e.run(out)
}

// AdjustPace sets the global cue-spacing multiplier, clamped to
// [PaceMin, PaceMax], and rescales every not-yet-fired cue's remaining
// delay proportionally. Rest periods are unaffected.
func (e *Executor) AdjustPace(multiplier float64) {
	e.mu.Lock()
	if multiplier < PaceMin {
		multiplier = PaceMin
	}
	if multiplier > PaceMax {
		multiplier = PaceMax
	}
	old := e.pace
	e.pace = multiplier
	if old == multiplier || (e.status != StatusActive && e.status != StatusPaused) {
		e.mu.Unlock()
		return
	}
	ratio := multiplier / old
	ref := e.clock.Now()
	if e.status == StatusPaused {
		ref = e.pausedAt
	}
	var out []emitFn
	e.rescaleLocked(ratio, ref, func(int) bool { return true }, &out)
	e.mu.Unlock()
	e.run(out)
}

// Pace returns the current multiplier.
func (e *Executor) Pace() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pace
}

// Stop is idempotent: a no-op once the session is completed or idle,
// otherwise an immediate completion.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.status == StatusCompleted || e.status == StatusIdle {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	e.cancelAllLocked()
	e.completeActivityLocked(&out)
	e.mu.Unlock()
	e.run(out)
}

// Reset returns the executor to idle so it can be reused for a new
// activity. All timer handles are cancelled.
func (e *Executor) Reset() {
	e.mu.Lock()
	e.cancelAllLocked()
	e.clearRuntimeLocked()
	e.status = StatusIdle
	e.mu.Unlock()
}

// Status returns the current lifecycle state.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Progress returns a read-only snapshot of session position.
func (e *Executor) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

// --- internals ---

func (e *Executor) scale(ms int64) time.Duration {
	return time.Duration(float64(ms)*e.pace) * time.Millisecond
}

func (e *Executor) currentEstimateLocked() time.Duration {
	ex := e.activity.Exercises[e.current]
	if ex.Reps > 0 && e.pacing.avg > 0 {
		rem := ex.Reps - e.pacing.currentRep
		if rem < 0 {
			rem = 0
		}
		return time.Duration(rem) * e.pacing.avg
	}
	return time.Duration(e.plan.estMS[e.current]) * time.Millisecond
}

func (e *Executor) armCueLocked(i int, d time.Duration) {
	e.timers[i] = e.clock.AfterFunc(d, func() { e.onCueTimer(i) })
}

func (e *Executor) onCueTimer(i int) {
	e.mu.Lock()
	if e.status != StatusActive {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	e.fireLocked(i, &out)
	e.mu.Unlock()
	e.run(out)
}

func (e *Executor) fireLocked(i int, out *[]emitFn) {
	if i < 0 || i >= len(e.plan.cues) || e.fired[i] {
		return
	}
	e.fired[i] = true
	if h, ok := e.timers[i]; ok {
		h.Stop()
		delete(e.timers, i)
	}
	delete(e.scheduledFor, i)

	c := e.plan.cues[i]
	*out = append(*out, func(cb Callbacks) { cb.OnCue(c) })

	if c.ExerciseIndex == e.current && i == e.plan.boundary[e.current] {
		e.completeCurrentLocked(out)
	}
}

// completeCurrentLocked finishes the current exercise in the natural flow
// (boundary cue or rep target reached) and either starts the rest period,
// starts the next exercise, or completes the activity.
func (e *Executor) completeCurrentLocked(out *[]emitFn) {
	idx := e.current
	ex := e.activity.Exercises[idx]
	e.silenceExerciseLocked(idx)
	e.cancelCountdownLocked()
	e.completed = append(e.completed, ex.Name)
	*out = append(*out, func(cb Callbacks) { cb.OnExerciseComplete(ex.Name, idx) })

	if idx >= len(e.activity.Exercises)-1 {
		e.completeActivityLocked(out)
		return
	}

	e.current = idx + 1
	if ex.RestAfter > 0 {
		// Rest runs on the real clock: recovery time is fixed, only
		// narration cadence follows the pace multiplier.
		e.inRest = true
		e.restEndAt = e.clock.Now().Add(ex.RestAfter)
		rest := ex.RestAfter
		*out = append(*out, func(cb Callbacks) { cb.OnRestStart(rest) })
		e.armRestLocked(ex.RestAfter)
		return
	}
	e.handoffLocked(e.current, out)
}

// handoffLocked realigns the remaining schedule to start the given exercise
// now and emits its start events. Keeps the timeline honest when rests,
// adaptive rep pacing, or pace changes have drifted it from the generated
// offsets.
func (e *Executor) handoffLocked(target int, out *[]emitFn) {
	due := e.rescheduleFromLocked(target, e.clock.Now())
	e.startExerciseLocked(target, out)
	for _, i := range due {
		e.fireLocked(i, out)
	}
}

func (e *Executor) armRestLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.restTimer = e.clock.AfterFunc(d, e.onRestEnd)
}

func (e *Executor) onRestEnd() {
	e.mu.Lock()
	if e.status != StatusActive || !e.inRest {
		e.mu.Unlock()
		return
	}
	e.inRest = false
	e.restTimer = nil
	var out []emitFn
	out = append(out, func(cb Callbacks) { cb.OnRestEnd() })
	e.handoffLocked(e.current, &out)
	e.mu.Unlock()
	e.run(out)
}

func (e *Executor) startExerciseLocked(i int, out *[]emitFn) {
	ex := e.activity.Exercises[i]
	e.current = i
	e.exerciseStartedAt = e.clock.Now()
	e.pausedBeforeExercise = e.totalPaused
	e.pacing.startExercise(ex.Reps, e.exerciseStartedAt)

	est := time.Duration(e.plan.estMS[i]) * time.Millisecond
	*out = append(*out, func(cb Callbacks) { cb.OnExerciseStart(ex.Name, i) })
	*out = append(*out, func(cb Callbacks) { cb.OnTimer(TimerDirective{Op: TimerStart, Duration: est}) })
	*out = append(*out, e.progressEmit())
}

func (e *Executor) completeActivityLocked(out *[]emitFn) {
	e.cancelAllLocked()
	now := e.clock.Now()
	if e.status == StatusPaused {
		now = e.pausedAt
	}
	e.finalElapsed = now.Sub(e.startTime) - e.totalPaused
	e.status = StatusCompleted
	e.inRest = false
	*out = append(*out, func(cb Callbacks) { cb.OnTimer(TimerDirective{Op: TimerStop}) })
	p := e.progressLocked()
	*out = append(*out, func(cb Callbacks) { cb.OnActivityComplete(p) })
}

// beginCountdownLocked replays the fixed 4-step countdown at one-second
// intervals, then arms the target exercise. The countdown is not scaled by
// the pace multiplier.
func (e *Executor) beginCountdownLocked(target int, out *[]emitFn) {
	e.countdownTarget = target
	// The old schedule is rebuilt from scratch at the countdown handoff.
	e.scheduledFor = make(map[int]time.Time, len(e.plan.cues))
	*out = append(*out, func(cb Callbacks) {
		cb.OnCue(Cue{Type: CueCount, Text: "3", ExerciseIndex: target})
	})
	texts := []string{"", "2", "1", "Go!"}
	for k := 1; k <= 3; k++ {
		step := k
		h := e.clock.AfterFunc(time.Duration(step)*time.Second, func() {
			e.onCountdownStep(target, step, texts[step])
		})
		e.countdown = append(e.countdown, h)
	}
}

func (e *Executor) onCountdownStep(target, step int, text string) {
	e.mu.Lock()
	if e.status != StatusActive || e.current != target {
		e.mu.Unlock()
		return
	}
	var out []emitFn
	out = append(out, func(cb Callbacks) {
		cb.OnCue(Cue{Type: CueCount, Text: text, ExerciseIndex: target})
	})
	if step == 3 {
		e.countdown = nil
		e.countdownTarget = -1
		e.handoffLocked(target, &out)
	}
	e.mu.Unlock()
	e.run(out)
}

// rescheduleFromLocked rebuilds the schedule so the target exercise's cue
// sub-list starts at ref, preserving each cue's relative offset. Cues before
// the target are silenced; cues from the target onward become pending again.
// Returns the indexes of cues already due (offset zero) for the caller to
// fire through its emit buffer.
func (e *Executor) rescheduleFromLocked(target int, ref time.Time) []int {
	base := e.plan.baseMS[target]
	due := make([]int, 0, 2)
	for i, c := range e.plan.cues {
		if c.ExerciseIndex < target {
			if !e.fired[i] {
				e.fired[i] = true
				delete(e.scheduledFor, i)
			}
			continue
		}
		e.fired[i] = false
		d := e.scale(c.TimingMS - base)
		e.scheduledFor[i] = ref.Add(d)
		if d <= 0 {
			due = append(due, i)
			continue
		}
		e.armCueLocked(i, d)
	}
	return due
}

// shiftScheduleLocked moves every unfired cue's absolute fire time forward
// by delta and re-arms it. Cues already due fire immediately.
func (e *Executor) shiftScheduleLocked(delta time.Duration, now time.Time, out *[]emitFn) {
	due := make([]int, 0, 4)
	for i := range e.plan.cues {
		if e.fired[i] {
			continue
		}
		at, ok := e.scheduledFor[i]
		if !ok {
			continue
		}
		at = at.Add(delta)
		e.scheduledFor[i] = at
		d := at.Sub(now)
		if d <= 0 {
			due = append(due, i)
			continue
		}
		e.armCueLocked(i, d)
	}
	for _, i := range due {
		e.fireLocked(i, out)
	}
}

// rescaleLocked multiplies the remaining delay of every unfired cue
// accepted by keep, measured from ref.
func (e *Executor) rescaleLocked(ratio float64, ref time.Time, keep func(exerciseIndex int) bool, out *[]emitFn) {
	due := make([]int, 0, 4)
	for i, c := range e.plan.cues {
		if e.fired[i] || !keep(c.ExerciseIndex) {
			continue
		}
		at, ok := e.scheduledFor[i]
		if !ok {
			continue
		}
		rem := at.Sub(ref)
		if rem < 0 {
			rem = 0
		}
		newRem := time.Duration(float64(rem) * ratio)
		e.scheduledFor[i] = ref.Add(newRem)
		if h, okT := e.timers[i]; okT {
			h.Stop()
			delete(e.timers, i)
		}
		if e.status != StatusActive {
			continue
		}
		if newRem <= 0 {
			due = append(due, i)
			continue
		}
		e.armCueLocked(i, newRem)
	}
	for _, i := range due {
		e.fireLocked(i, out)
	}
}

// silenceExerciseLocked marks an exercise's unfired cues as fired without
// speaking them and cancels their timers.
func (e *Executor) silenceExerciseLocked(idx int) {
	for i, c := range e.plan.cues {
		if c.ExerciseIndex != idx || e.fired[i] {
			continue
		}
		e.fired[i] = true
		if h, ok := e.timers[i]; ok {
			h.Stop()
			delete(e.timers, i)
		}
		delete(e.scheduledFor, i)
	}
}

func (e *Executor) cancelCueTimersLocked() {
	for i, h := range e.timers {
		h.Stop()
		delete(e.timers, i)
	}
}

func (e *Executor) cancelCountdownLocked() {
	for _, h := range e.countdown {
		h.Stop()
	}
	e.countdown = nil
}

func (e *Executor) cancelAllLocked() {
	e.cancelCueTimersLocked()
	e.cancelCountdownLocked()
	if e.restTimer != nil {
		e.restTimer.Stop()
		e.restTimer = nil
	}
}

func (e *Executor) clearRuntimeLocked() {
	e.fired = nil
	e.timers = nil
	e.scheduledFor = nil
	e.completed = nil
	e.current = 0
	e.inRest = false
	e.countdownTarget = -1
	e.totalPaused = 0
	e.finalElapsed = 0
	e.startTime = time.Time{}
	e.pausedAt = time.Time{}
	e.pacing = repPacer{}
}

func (e *Executor) progressLocked() Progress {
	p := Progress{
		Status:               e.status,
		CurrentExerciseIndex: e.current,
		TotalExercises:       len(e.activity.Exercises),
		CompletedExercises:   append([]string(nil), e.completed...),
	}
	total := time.Duration(e.totalBaseMS()) * time.Millisecond
	switch e.status {
	case StatusActive:
		p.ElapsedTime = e.clock.Now().Sub(e.startTime) - e.totalPaused
	case StatusPaused:
		p.ElapsedTime = e.pausedAt.Sub(e.startTime) - e.totalPaused
	case StatusCompleted:
		p.ElapsedTime = e.finalElapsed
	}
	if rem := total - p.ElapsedTime; rem > 0 && e.status != StatusCompleted {
		p.RemainingTime = rem
	}
	return p
}

func (e *Executor) totalBaseMS() int64 {
	if len(e.plan.cues) == 0 {
		return 0
	}
	last := e.plan.cues[len(e.plan.cues)-1]
	return last.TimingMS
}

func (e *Executor) progressEmit() emitFn {
	p := e.progressLocked()
	return func(cb Callbacks) { cb.OnProgress(p) }
}
