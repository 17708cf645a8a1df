// Package live runs a coaching session over an unreliable connection to the
// agent. The Manager owns the transport, feeds transcripts through the
// command interpreter into the guidance executor, spaces outbound cues,
// schedules agent audio playback, and rides out disconnects with session
// resumption and snapshot restore.
package live

import "time"

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Event is the interface for all manager events delivered to the host app.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every connection state transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e StateChangedEvent) EventType() string { return "state.changed" }

// PlaybackEvent carries one chunk of agent audio with its scheduled start.
// StartAt is monotonic per session: each chunk starts no earlier than the
// previous chunk ends.
type PlaybackEvent struct {
	Data    []byte    `json:"data"`
	Format  string    `json:"format,omitempty"`
	StartAt time.Time `json:"start_at"`
}

func (e PlaybackEvent) EventType() string { return "playback" }

// PlaybackClearEvent tells the host to drop any buffered agent audio,
// typically because the user barged in.
type PlaybackClearEvent struct{}

func (e PlaybackClearEvent) EventType() string { return "playback.clear" }

// TranscriptEvent relays a final user transcript to the host app.
type TranscriptEvent struct {
	Text string `json:"text"`
}

func (e TranscriptEvent) EventType() string { return "transcript" }

// ToolRenderEvent asks the host UI to render a visual element the agent
// requested. If rendering fails, call Manager.ReportRenderFailure to fall
// back to a spoken description.
type ToolRenderEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func (e ToolRenderEvent) EventType() string { return "tool.render" }

// TimerEvent forwards a countdown-widget directive from the guidance
// executor to the host UI.
type TimerEvent struct {
	Op       string        `json:"op"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (e TimerEvent) EventType() string { return "timer" }

// ProgressEvent reports activity progress after each boundary.
type ProgressEvent struct {
	Status               string        `json:"status"`
	CurrentExerciseIndex int           `json:"current_exercise_index"`
	TotalExercises       int           `json:"total_exercises"`
	ElapsedTime          time.Duration `json:"elapsed_time"`
	RemainingTime        time.Duration `json:"remaining_time"`
}

func (e ProgressEvent) EventType() string { return "progress" }

// ActivityCompleteEvent marks the natural end of the activity.
type ActivityCompleteEvent struct {
	ElapsedTime time.Duration `json:"elapsed_time"`
}

func (e ActivityCompleteEvent) EventType() string { return "activity.complete" }

// SelectionEvent reports that the user picked an option from the active
// selection set by voice.
type SelectionEvent struct {
	OptionID string `json:"option_id"`
	Label    string `json:"label"`
}

func (e SelectionEvent) EventType() string { return "selection" }

// StartRequestedEvent reports a readiness auto-start: the user signalled
// they are ready and a startable item had just been surfaced.
type StartRequestedEvent struct {
	TargetID string `json:"target_id"`
}

func (e StartRequestedEvent) EventType() string { return "start.requested" }

// NoticeEvent carries informational text for the host app log or banner.
type NoticeEvent struct {
	Text string `json:"text"`
}

func (e NoticeEvent) EventType() string { return "notice" }

// ErrorEvent is emitted when the session hits an error worth surfacing.
type ErrorEvent struct {
	Err *Error `json:"error"`
}

func (e ErrorEvent) EventType() string { return "error" }
