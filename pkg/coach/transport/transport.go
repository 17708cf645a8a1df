// Package transport defines the duplex connection abstraction between the
// coaching engine and a remote conversational agent. Implementations carry
// outbound cue text and microphone audio upstream and surface agent events
// (transcripts, audio, tool calls, lifecycle warnings) on a channel.
package transport

import (
	"context"
	"time"
)

// Priority selects the outbound lane. Urgent frames preempt queued normal
// frames so time-sensitive cues are not stuck behind conversational filler.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityUrgent
)

// Transport is a live duplex connection to the agent. Implementations must
// be safe for concurrent use. Events() is closed after a ClosedEvent is
// delivered.
type Transport interface {
	// SendText submits a user-side or engine-side text turn.
	SendText(ctx context.Context, text string, pri Priority) error

	// SendAudio submits one frame of 16-bit LE mono PCM microphone audio.
	SendAudio(ctx context.Context, pcm []byte) error

	// SendToolResult answers a ToolCallEvent.
	SendToolResult(ctx context.Context, id, name string, result map[string]any) error

	// Events returns the inbound event stream.
	Events() <-chan Event

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// DialOptions carries per-connection parameters.
type DialOptions struct {
	// ResumptionHandle, when non-empty, asks the agent to resume a prior
	// conversation instead of starting fresh.
	ResumptionHandle string
	SystemPrompt     string
	Voice            string
}

// Dialer opens transports. The connection manager redials through this on
// reconnect so the transport kind stays pluggable.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, opts DialOptions) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, opts DialOptions) (Transport, error) {
	return f(ctx, opts)
}

// Event is the interface for all transport events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// TranscriptEvent carries a transcription of the user's speech.
type TranscriptEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

func (e TranscriptEvent) EventType() string { return "transcript" }

// AgentTextEvent carries text the agent produced alongside its audio.
type AgentTextEvent struct {
	Text string `json:"text"`
}

func (e AgentTextEvent) EventType() string { return "agent.text" }

// AudioEvent carries one chunk of agent speech audio.
type AudioEvent struct {
	Data   []byte `json:"data"`
	Format string `json:"format,omitempty"` // e.g. "pcm_s16le_24000"
}

func (e AudioEvent) EventType() string { return "audio" }

// TurnCompleteEvent marks the end of an agent response turn.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) EventType() string { return "turn.complete" }

// InterruptedEvent signals the agent stopped speaking because the user
// barged in. Buffered agent audio should be discarded.
type InterruptedEvent struct{}

func (e InterruptedEvent) EventType() string { return "interrupted" }

// ToolCallEvent is a structured action request from the agent.
type ToolCallEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func (e ToolCallEvent) EventType() string { return "tool.call" }

// ResumptionHandleEvent delivers a fresh session resumption token.
type ResumptionHandleEvent struct {
	Handle    string    `json:"handle"`
	Resumable bool      `json:"resumable,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (e ResumptionHandleEvent) EventType() string { return "resumption.handle" }

// GoAwayEvent warns that the server will close the connection soon.
type GoAwayEvent struct {
	TimeLeft time.Duration `json:"time_left_ms"`
}

func (e GoAwayEvent) EventType() string { return "go_away" }

// ClosedEvent is the terminal event on every transport. Manual is true when
// the local side called Close; Err is nil for clean remote closes.
type ClosedEvent struct {
	Err    error `json:"-"`
	Manual bool  `json:"manual,omitempty"`
}

func (e ClosedEvent) EventType() string { return "closed" }
