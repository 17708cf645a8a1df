// Package interpret resolves user transcripts into coaching commands or
// menu selections. Two mutually exclusive modes: when a non-empty selection
// option set is active, transcripts are resolved against it; otherwise they
// are matched against a fixed command table at word boundaries.
package interpret

import (
	"strings"
	"sync"
	"time"
)

// Confidence grades a resolution.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// ResultKind classifies what a transcript resolved to.
type ResultKind string

const (
	ResultNone      ResultKind = "none"       // nothing recognized, trivial input
	ResultCommand   ResultKind = "command"    // command table hit
	ResultSelection ResultKind = "selection"  // selection option resolved
	ResultClarify   ResultKind = "clarify"    // recognized speech, no match
	ResultPending   ResultKind = "pending"    // action held awaiting confirmation
	ResultConfirmed ResultKind = "confirmed"  // pending action executed
	ResultCancelled ResultKind = "cancelled"  // pending action discarded
	ResultAutoStart ResultKind = "auto_start" // readiness auto-start of a surfaced item
)

// Result is the outcome of interpreting one transcript.
type Result struct {
	Kind       ResultKind
	Action     Action
	Option     *SelectionOption
	Confidence Confidence
	Response   string
	// TargetID is set for auto-start results: the surfaced item to start.
	TargetID string
}

// StatusFunc supplies dynamic response text for progress/time queries.
type StatusFunc func(query Action) string

// Selection sets and surfaced items go stale after these windows.
const (
	selectionTimeout  = 30 * time.Second
	confirmWindow     = 10 * time.Second
	autoStartFreshFor = 60 * time.Second
)

// Interpreter holds the mutable interpretation state: the active selection
// set, any pending confirmation, and the most recently surfaced startable
// item. Pure resolution logic lives in selection.go and commands.go.
type Interpreter struct {
	mu  sync.Mutex
	now func() time.Time

	status StatusFunc

	options   []SelectionOption
	optionsAt time.Time

	pending   *Command
	pendingAt time.Time

	surfacedID string
	surfacedAt time.Time
}

// New creates an interpreter. A nil nowFn uses time.Now.
func New(status StatusFunc, nowFn func() time.Time) *Interpreter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Interpreter{now: nowFn, status: status}
}

// SetOptions activates selection mode with the given option set. An empty
// set deactivates it.
func (in *Interpreter) SetOptions(opts []SelectionOption) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.options = append([]SelectionOption(nil), opts...)
	in.optionsAt = in.now()
}

// ClearOptions leaves selection mode.
func (in *Interpreter) ClearOptions() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.options = nil
}

// SurfaceItem records that a startable item (timer, exercise list) was just
// shown to the user, making it eligible for readiness auto-start.
func (in *Interpreter) SurfaceItem(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.surfacedID = id
	in.surfacedAt = in.now()
}

// InSelectionMode reports whether a non-expired option set is active.
func (in *Interpreter) InSelectionMode() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.expireLocked()
	return len(in.options) > 0
}

func (in *Interpreter) expireLocked() {
	now := in.now()
	if len(in.options) > 0 && now.Sub(in.optionsAt) > selectionTimeout {
		in.options = nil
	}
	if in.pending != nil && now.Sub(in.pendingAt) > confirmWindow {
		// Expiry discards silently.
		in.pending = nil
	}
}

// Interpret resolves one transcript.
func (in *Interpreter) Interpret(transcript string) Result {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.expireLocked()

	text := normalize(transcript)
	if text == "" {
		return Result{Kind: ResultNone}
	}
	w := words(text)

	// A pending confirmation consumes yes/no before anything else.
	if in.pending != nil {
		if isAffirmative(w) {
			cmd := in.pending
			in.pending = nil
			return Result{Kind: ResultConfirmed, Action: cmd.Action, Response: cmd.Response, Confidence: ConfidenceHigh}
		}
		if isNegative(w) {
			in.pending = nil
			return Result{Kind: ResultCancelled, Response: "Okay, never mind."}
		}
		// Anything else falls through; the pending action keeps waiting.
	}

	if len(in.options) > 0 {
		res := ResolveSelection(text, in.options)
		switch res.Match {
		case MatchNone:
			if len(w) < 2 {
				return Result{Kind: ResultNone}
			}
			return Result{Kind: ResultClarify, Response: selectionClarifyPrompt(in.options)}
		default:
			opt := res.Option
			conf := ConfidenceHigh
			if res.Match == MatchPartial {
				conf = ConfidenceMedium
			}
			in.options = nil
			return Result{Kind: ResultSelection, Option: &opt, Confidence: conf}
		}
	}

	if cmd, ok := matchCommand(w); ok {
		if cmd.RequiresConfirmation {
			in.pending = &cmd
			in.pendingAt = in.now()
			return Result{Kind: ResultPending, Action: cmd.Action, Response: cmd.ConfirmPrompt}
		}
		resp := cmd.Response
		if cmd.Dynamic && in.status != nil {
			resp = in.status(cmd.Action)
		}
		return Result{Kind: ResultCommand, Action: cmd.Action, Response: resp, Confidence: ConfidenceHigh}
	}

	// Readiness: a clean "ready / let's go" may auto-start a recently
	// surfaced item.
	if in.surfacedID != "" && in.now().Sub(in.surfacedAt) <= autoStartFreshFor && IsReadySignal(text) {
		id := in.surfacedID
		in.surfacedID = ""
		return Result{Kind: ResultAutoStart, TargetID: id, Confidence: ConfidenceHigh}
	}

	return Result{Kind: ResultNone}
}

func selectionClarifyPrompt(opts []SelectionOption) string {
	if len(opts) == 0 {
		return "Which one would you like?"
	}
	labels := make([]string, 0, len(opts))
	for i, o := range opts {
		if i >= 3 {
			break
		}
		labels = append(labels, o.Label)
	}
	return "I didn't catch that. You can say " + strings.Join(labels, ", ") + ", or a number."
}
