package guidance

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduledCue records the absolute fire time of a not-yet-fired cue.
type ScheduledCue struct {
	CueIndex     int       `json:"cue_index"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// DetailedState is the full snapshot enabling exact cue-position resumption
// across a teardown, not just an in-process pause. It is captured after the
// executor has been paused and consumed once on the next successful connect.
type DetailedState struct {
	Activity             Activity       `json:"activity"`
	Status               Status         `json:"status"`
	CurrentCueIndex      int            `json:"current_cue_index"`
	CurrentExerciseIndex int            `json:"current_exercise_index"`
	ScheduledCues        []ScheduledCue `json:"scheduled_cues"`
	RepTimingsMS         []int64        `json:"rep_timings_ms"`
	AverageRepDurationMS int64          `json:"average_rep_duration_ms"`
	CurrentRep           int            `json:"current_rep"`
	TargetReps           int            `json:"target_reps"`
	StartTime            time.Time      `json:"start_time"`
	TotalPausedMS        int64          `json:"total_paused_ms"`
	PaceMultiplier       float64        `json:"pace_multiplier"`
	CompletedExercises   []string       `json:"completed_exercises"`
	InRest               bool           `json:"in_rest"`
	RestEndAt            time.Time      `json:"rest_end_at,omitempty"`
	ExerciseStartedAt    time.Time      `json:"exercise_started_at"`
	PausedBeforeExMS     int64          `json:"paused_before_exercise_ms"`
	CapturedAt           time.Time      `json:"captured_at"`
}

// GetDetailedState captures the executor's exact position, including
// absolute scheduled-fire timestamps and adaptive-pacing samples.
func (e *Executor) GetDetailedState() DetailedState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := DetailedState{
		Activity:             e.activity,
		Status:               e.status,
		CurrentExerciseIndex: e.current,
		CurrentRep:           e.pacing.currentRep,
		TargetReps:           e.pacing.targetReps,
		AverageRepDurationMS: e.pacing.avg.Milliseconds(),
		StartTime:            e.startTime,
		TotalPausedMS:        e.totalPaused.Milliseconds(),
		PaceMultiplier:       e.pace,
		CompletedExercises:   append([]string(nil), e.completed...),
		InRest:               e.inRest,
		RestEndAt:            e.restEndAt,
		ExerciseStartedAt:    e.exerciseStartedAt,
		PausedBeforeExMS:     e.pausedBeforeExercise.Milliseconds(),
		CapturedAt:           e.clock.Now(),
	}
	st.CurrentCueIndex = len(e.plan.cues)
	for i := range e.plan.cues {
		if !e.fired[i] {
			st.CurrentCueIndex = i
			break
		}
	}
	for i := range e.plan.cues {
		if e.fired[i] {
			continue
		}
		if at, ok := e.scheduledFor[i]; ok {
			st.ScheduledCues = append(st.ScheduledCues, ScheduledCue{CueIndex: i, ScheduledFor: at})
		}
	}
	for _, s := range e.pacing.samples {
		st.RepTimingsMS = append(st.RepTimingsMS, s.Milliseconds())
	}
	return st
}

// RestoreDetailedState rebuilds the executor from a snapshot. The executor
// is left paused at the exact captured position; Resume shifts the schedule
// by the teardown gap and replays only cues whose fire time is still in the
// future, so no cue is skipped or repeated.
func (e *Executor) RestoreDetailedState(st DetailedState) error {
	e.mu.Lock()
	if e.status == StatusActive || e.status == StatusPaused {
		e.mu.Unlock()
		return fmt.Errorf("executor busy: %s", e.status)
	}
	plan := generateCues(st.Activity)
	if len(plan.cues) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("snapshot activity has no usable exercises")
	}
	e.activity = st.Activity
	e.plan = plan
	e.clearRuntimeLocked()

	e.status = StatusPaused
	e.pausedAt = st.CapturedAt
	e.startTime = st.StartTime
	e.totalPaused = time.Duration(st.TotalPausedMS) * time.Millisecond
	e.pace = st.PaceMultiplier
	if e.pace < PaceMin || e.pace > PaceMax {
		e.pace = PaceNormal
	}
	e.current = st.CurrentExerciseIndex
	if e.current < 0 || e.current >= len(e.activity.Exercises) {
		e.current = 0
	}
	e.completed = append([]string(nil), st.CompletedExercises...)
	e.inRest = st.InRest
	e.restEndAt = st.RestEndAt
	e.exerciseStartedAt = st.ExerciseStartedAt
	e.pausedBeforeExercise = time.Duration(st.PausedBeforeExMS) * time.Millisecond

	e.pacing.targetReps = st.TargetReps
	e.pacing.currentRep = st.CurrentRep
	e.pacing.avg = time.Duration(st.AverageRepDurationMS) * time.Millisecond
	e.pacing.lastRepAt = st.CapturedAt
	for _, ms := range st.RepTimingsMS {
		e.pacing.samples = append(e.pacing.samples, time.Duration(ms)*time.Millisecond)
	}

	// Everything not in the scheduled set has already been spoken.
	e.fired = make([]bool, len(e.plan.cues))
	for i := range e.fired {
		e.fired[i] = true
	}
	e.timers = make(map[int]TimerHandle, len(st.ScheduledCues))
	e.scheduledFor = make(map[int]time.Time, len(st.ScheduledCues))
	for _, sc := range st.ScheduledCues {
		if sc.CueIndex < 0 || sc.CueIndex >= len(e.plan.cues) {
			continue
		}
		e.fired[sc.CueIndex] = false
		e.scheduledFor[sc.CueIndex] = sc.ScheduledFor
	}
	e.mu.Unlock()
	e.logger.Debug("GUIDE restored", "activity", st.Activity.Name, "cue_index", st.CurrentCueIndex)
	return nil
}

// MarshalDetailedState serializes a snapshot for the persistence bridge.
func MarshalDetailedState(st DetailedState) ([]byte, error) {
	return json.Marshal(st)
}

// UnmarshalDetailedState parses a snapshot previously produced by
// MarshalDetailedState.
func UnmarshalDetailedState(data []byte) (DetailedState, error) {
	var st DetailedState
	if err := json.Unmarshal(data, &st); err != nil {
		return DetailedState{}, fmt.Errorf("decode detailed state: %w", err)
	}
	return st, nil
}
