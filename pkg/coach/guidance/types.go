package guidance

import "time"

// CueType classifies a spoken cue.
type CueType string

const (
	CueInstruction CueType = "instruction"
	CueCount       CueType = "count"
	CueTransition  CueType = "transition"
	CueRest        CueType = "rest"
	CueCompletion  CueType = "completion"
)

// Cue is a timed, typed instruction to be spoken during an activity.
// TimingMS is the offset from activity start at base pace; generation
// guarantees timings are non-decreasing.
type Cue struct {
	TimingMS      int64   `json:"timing_ms"`
	Type          CueType `json:"type"`
	Text          string  `json:"text"`
	ExerciseIndex int     `json:"exercise_index"`
}

// Exercise is one step of an activity. Either Reps or Duration is set.
// Immutable once an Executor has been initialized with it.
type Exercise struct {
	Name      string        `json:"name"`
	Reps      int           `json:"reps,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	RestAfter time.Duration `json:"rest_after,omitempty"`
}

// Activity is one guided session configuration.
type Activity struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind,omitempty"` // workout, stretching, breathing, meditation
	Exercises []Exercise `json:"exercises"`
}

// Status is the executor lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Progress is a read-only snapshot of executor state.
type Progress struct {
	Status               Status        `json:"status"`
	CurrentExerciseIndex int           `json:"current_exercise_index"`
	TotalExercises       int           `json:"total_exercises"`
	ElapsedTime          time.Duration `json:"elapsed_time"`
	RemainingTime        time.Duration `json:"remaining_time"`
	CompletedExercises   []string      `json:"completed_exercises"`
}

// TimerOp is a UI timer-control directive kind.
type TimerOp string

const (
	TimerStart TimerOp = "start"
	TimerStop  TimerOp = "stop"
	TimerReset TimerOp = "reset"
)

// TimerDirective instructs the hosting UI to drive its countdown widget.
type TimerDirective struct {
	Op       TimerOp       `json:"op"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Callbacks receives executor output. Injected once at construction;
// implementations must not call back into the Executor synchronously from
// within a callback.
type Callbacks interface {
	OnCue(c Cue)
	OnExerciseStart(name string, index int)
	OnExerciseComplete(name string, index int)
	OnActivityComplete(p Progress)
	OnProgress(p Progress)
	OnTimer(d TimerDirective)
	OnRestStart(d time.Duration)
	OnRestEnd()
	OnError(msg string)
}

// NopCallbacks is an embeddable no-op Callbacks implementation.
type NopCallbacks struct{}

func (NopCallbacks) OnCue(Cue)                       {}
func (NopCallbacks) OnExerciseStart(string, int)     {}
func (NopCallbacks) OnExerciseComplete(string, int)  {}
func (NopCallbacks) OnActivityComplete(Progress)     {}
func (NopCallbacks) OnProgress(Progress)             {}
func (NopCallbacks) OnTimer(TimerDirective)          {}
func (NopCallbacks) OnRestStart(time.Duration)       {}
func (NopCallbacks) OnRestEnd()                      {}
func (NopCallbacks) OnError(string)                  {}

// Pace presets. AdjustPace multiplies cue spacing only; rest periods are
// fixed wall-clock recovery time and are never scaled.
const (
	PaceSlow   = 1.5
	PaceNormal = 1.0
	PaceFast   = 0.75

	// PaceMin and PaceMax bound the multiplier no matter how many
	// consecutive slow/fast commands arrive.
	PaceMin = 0.5
	PaceMax = 2.0
)
