package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cadencevoice/cadence/pkg/coach/guidance"
	"github.com/cadencevoice/cadence/pkg/coach/interpret"
	"github.com/cadencevoice/cadence/pkg/coach/persist"
	"github.com/cadencevoice/cadence/pkg/coach/signal"
	"github.com/cadencevoice/cadence/pkg/coach/transport"
)

// Config carries session parameters for the Manager.
type Config struct {
	UserID    string
	SessionID string

	SystemPrompt string
	Voice        string

	BackoffBase          time.Duration
	BackoffCap           time.Duration
	MaxReconnectAttempts int

	KeepaliveInterval time.Duration
	QuietThreshold    time.Duration

	ProseCueGap time.Duration
	CountCueGap time.Duration

	ResumptionTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 25 * time.Second
	}
	if c.QuietThreshold <= 0 {
		c.QuietThreshold = 20 * time.Second
	}
	if c.ProseCueGap <= 0 {
		c.ProseCueGap = 350 * time.Millisecond
	}
	if c.CountCueGap <= 0 {
		c.CountCueGap = 900 * time.Millisecond
	}
	if c.ResumptionTTL <= 0 {
		c.ResumptionTTL = time.Hour
	}
}

// Manager runs one coaching session end to end: it owns the transport,
// routes transcripts through the interpreter into the executor, spaces
// outbound cues, schedules playback, and survives disconnects.
type Manager struct {
	cfg    Config
	dialer transport.Dialer
	store  persist.Bridge
	clock  guidance.Clock
	logger *slog.Logger

	exec      *guidance.Executor
	interp    *interpret.Interpreter
	monitor   *signal.Monitor
	clarifier signal.Clarifier
	dispatch  *cueDispatcher
	playback  playback

	events chan Event

	mu           sync.Mutex
	state        State
	tr           transport.Transport
	handle       string
	handleAt     time.Time
	stale        bool
	stopping     bool
	pausedForNet bool
	micMuted     bool
	watchdog     guidance.TimerHandle
	lastSent     time.Time
	lastRefresh  time.Time
	turnCount    int
	lastCue      string
	repSeen      int
	pendingTools map[string]transport.ToolCallEvent
}

// SessionState is a read-only view of the connection session.
type SessionState struct {
	TurnCount   int
	LastRefresh time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects a clock, used by tests.
func WithClock(c guidance.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager wires a session manager. The store may be nil, in which case
// snapshots are kept in memory only.
func NewManager(cfg Config, dialer transport.Dialer, store persist.Bridge, logger *slog.Logger, opts ...Option) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = persist.NewMemory()
	}

	m := &Manager{
		cfg:          cfg,
		dialer:       dialer,
		store:        store,
		clock:        guidance.RealClock(),
		logger:       logger.With("component", "live", "session_id", cfg.SessionID),
		events:       make(chan Event, 128),
		state:        StateDisconnected,
		pendingTools: make(map[string]transport.ToolCallEvent),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.exec = guidance.NewExecutor(m.clock, execCallbacks{m}, m.logger)
	m.interp = interpret.New(m.statusText, m.clock.Now)
	m.monitor = signal.NewMonitor(m.clock.Now)
	m.dispatch = newCueDispatcher(m.clock, m.cfg.ProseCueGap, m.cfg.CountCueGap, m.sendCue)
	return m
}

// Events returns the manager event stream for the host app.
func (m *Manager) Events() <-chan Event { return m.events }

// Executor exposes the guidance executor for direct control surfaces
// (buttons in the host UI act alongside voice commands).
func (m *Manager) Executor() *guidance.Executor { return m.exec }

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start connects to the agent and begins the activity.
func (m *Manager) Start(ctx context.Context, activity guidance.Activity) error {
	m.setState(StateConnecting)
	tr, err := m.dial(ctx, "")
	if err != nil {
		m.setState(StateDisconnected)
		cerr := classifyDialError(err)
		m.emit(ErrorEvent{Err: cerr})
		return cerr
	}
	m.adopt(tr)
	m.exec.Initialize(activity)
	m.exec.Start()
	return nil
}

// ResumeSession reconnects a torn-down session from persisted state: the
// snapshot restores guidance position and the stored handle, when still
// fresh, restores agent conversation context. The activity stays paused
// until the caller resumes it.
func (m *Manager) ResumeSession(ctx context.Context) error {
	data, err := m.store.Get(ctx, m.key(persist.KindSnapshot))
	if err != nil {
		return NewPersistenceError("load snapshot", err)
	}
	st, err := guidance.UnmarshalDetailedState(data)
	if err != nil {
		return NewPersistenceError("decode snapshot", err)
	}
	if err := m.exec.RestoreDetailedState(st); err != nil {
		return fmt.Errorf("restore guidance state: %w", err)
	}

	handle := ""
	if raw, err := m.store.Get(ctx, m.key(persist.KindResumption)); err == nil {
		// The token is single use: discard it before the attempt so a
		// second resume can never replay it.
		m.discardStoredHandle(ctx)
		var rec handleRecord
		if json.Unmarshal(raw, &rec) == nil && m.clock.Now().Sub(rec.IssuedAt) <= m.cfg.ResumptionTTL {
			handle = rec.Handle
		}
	}

	m.setState(StateConnecting)
	tr, err := m.dial(ctx, handle)
	if err != nil && handle != "" {
		// Stale handle: fall back to a fresh conversation.
		tr, err = m.dial(ctx, "")
	}
	if err != nil {
		m.setState(StateDisconnected)
		cerr := classifyDialError(err)
		m.emit(ErrorEvent{Err: cerr})
		return cerr
	}
	m.adopt(tr)

	// The teardown intent is consumed by a successful resume.
	if err := m.store.Delete(ctx, m.key(persist.KindIntent)); err != nil {
		m.logger.Warn("clear teardown intent", "error", err)
	}
	return nil
}

// Stop ends the session, persists nothing further, and closes the
// transport.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopping = true
	tr := m.tr
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.mu.Unlock()

	m.exec.Stop()
	for _, kind := range []persist.Kind{persist.KindSnapshot, persist.KindProgress, persist.KindIntent, persist.KindResumption} {
		if err := m.store.Delete(ctx, m.key(kind)); err != nil {
			m.logger.Warn("delete persisted state on stop", "kind", kind, "error", err)
		}
	}
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// HandleMicFrame forwards one microphone PCM frame upstream and feeds the
// quality monitor. Frames are dropped, not errored, while the mic is muted
// or guidance is paused.
func (m *Manager) HandleMicFrame(ctx context.Context, pcm []byte) error {
	m.mu.Lock()
	tr := m.tr
	muted := m.micMuted
	m.mu.Unlock()
	if tr == nil {
		return NewConnectionError("not connected", nil)
	}
	if muted || m.exec.Status() == guidance.StatusPaused {
		return nil
	}
	m.monitor.AddFrame(pcm)
	return tr.SendAudio(ctx, pcm)
}

// SetMicMuted controls whether captured frames are forwarded upstream.
func (m *Manager) SetMicMuted(muted bool) {
	m.mu.Lock()
	m.micMuted = muted
	m.mu.Unlock()
}

// SetSelectionOptions activates voice selection over the given options,
// e.g. after showing a plan list.
func (m *Manager) SetSelectionOptions(opts []interpret.SelectionOption) {
	m.interp.SetOptions(opts)
}

// ReportRenderFailure is called by the host when a requested visual element
// could not be rendered; the coach describes it verbally instead.
func (m *Manager) ReportRenderFailure(id string) {
	m.mu.Lock()
	tc, ok := m.pendingTools[id]
	delete(m.pendingTools, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.dispatch.say(signal.ToolFallback(tc.Name, tc.Args))
}

// SignalQuality exposes the current input quality recommendation.
func (m *Manager) SignalQuality() signal.Recommendation {
	return m.monitor.Recommend()
}

func (m *Manager) key(kind persist.Kind) persist.Key {
	return persist.Key{UserID: m.cfg.UserID, SessionID: m.cfg.SessionID, Kind: kind}
}

func (m *Manager) dial(ctx context.Context, handle string) (transport.Transport, error) {
	return m.dialer.Dial(ctx, transport.DialOptions{
		ResumptionHandle: handle,
		SystemPrompt:     m.cfg.SystemPrompt,
		Voice:            m.cfg.Voice,
	})
}

// adopt installs a freshly dialed transport and starts its consume loop.
func (m *Manager) adopt(tr transport.Transport) {
	m.mu.Lock()
	m.tr = tr
	m.lastSent = m.clock.Now()
	m.lastRefresh = m.clock.Now()
	m.stale = false
	m.armWatchdogLocked()
	m.mu.Unlock()

	m.dispatch.reset()
	m.setState(StateConnected)
	go m.consume(tr)
}

func (m *Manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from != to {
		m.logger.Info("connection state changed", "from", from, "to", to)
		m.emit(StateChangedEvent{From: from, To: to})
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event buffer full, dropping", "type", ev.EventType())
	}
}

func (m *Manager) sendCue(text string, pri transport.Priority) {
	m.mu.Lock()
	tr := m.tr
	m.lastCue = text
	m.lastSent = m.clock.Now()
	m.mu.Unlock()
	if tr == nil {
		m.logger.Debug("dropping cue while disconnected", "text", text)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.SendText(ctx, text, pri); err != nil {
		m.logger.Warn("send cue failed", "error", err)
	}
}

// consume drains one transport's event stream until it closes.
func (m *Manager) consume(tr transport.Transport) {
	for ev := range tr.Events() {
		switch ev := ev.(type) {
		case transport.TranscriptEvent:
			if ev.Final {
				m.handleTranscript(ev.Text)
			}
		case transport.TurnCompleteEvent:
			m.mu.Lock()
			m.turnCount++
			m.mu.Unlock()
		case transport.AudioEvent:
			start := m.playback.schedule(m.clock.Now(), ev.Data)
			m.emit(PlaybackEvent{Data: ev.Data, Format: ev.Format, StartAt: start})
		case transport.InterruptedEvent:
			m.playback.clear()
			m.emit(PlaybackClearEvent{})
		case transport.ToolCallEvent:
			m.handleToolCall(tr, ev)
		case transport.ResumptionHandleEvent:
			m.storeHandle(ev)
		case transport.GoAwayEvent:
			m.handleGoAway(tr, ev)
		case transport.ClosedEvent:
			m.handleClosed(ev)
			return
		}
	}
}

// SessionState reports the per-connection turn count and the time of the
// last successful connect.
func (m *Manager) SessionState() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SessionState{TurnCount: m.turnCount, LastRefresh: m.lastRefresh}
}

// heartbeatText is a no-op turn that keeps an otherwise idle connection
// open during long silent holds. The agent is prompted to stay quiet on it.
const heartbeatText = "(heartbeat, no response needed)"

// armWatchdogLocked schedules the next keepalive check.
func (m *Manager) armWatchdogLocked() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = m.clock.AfterFunc(m.cfg.KeepaliveInterval, m.onWatchdog)
}

// onWatchdog emits a heartbeat turn when guidance is active but nothing has
// been sent for the quiet threshold, so idle-timeout never tears down a
// silent plank.
func (m *Manager) onWatchdog() {
	m.mu.Lock()
	if m.stopping || m.tr == nil {
		m.mu.Unlock()
		return
	}
	tr := m.tr
	quiet := m.clock.Now().Sub(m.lastSent)
	m.armWatchdogLocked()
	m.mu.Unlock()

	if m.exec.Status() != guidance.StatusActive || quiet < m.cfg.QuietThreshold {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.SendText(ctx, heartbeatText, transport.PriorityNormal); err != nil {
		m.logger.Warn("send heartbeat failed", "error", err)
		return
	}
	m.logger.Debug("sent keepalive heartbeat", "quiet", quiet)
	m.mu.Lock()
	m.lastSent = m.clock.Now()
	m.mu.Unlock()
}

func (m *Manager) handleTranscript(text string) {
	m.clarifier.Heard(text)
	m.emit(TranscriptEvent{Text: text})

	res := m.interp.Interpret(text)
	switch res.Kind {
	case interpret.ResultCommand, interpret.ResultConfirmed:
		m.applyAction(res.Action)
		m.clarifier.Reset()
		if res.Response != "" {
			m.dispatch.say(res.Response)
		}
	case interpret.ResultPending, interpret.ResultCancelled:
		if res.Response != "" {
			m.dispatch.say(res.Response)
		}
	case interpret.ResultSelection:
		m.emit(SelectionEvent{OptionID: res.Option.ID, Label: res.Option.Label})
		m.clarifier.Reset()
		if res.Response != "" {
			m.dispatch.say(res.Response)
		}
	case interpret.ResultAutoStart:
		m.emit(StartRequestedEvent{TargetID: res.TargetID})
		m.clarifier.Reset()
	case interpret.ResultClarify:
		prompt := res.Response
		if prompt == "" {
			prompt = m.clarifier.Prompt("keep going", "take a break")
		}
		m.dispatch.say(prompt)
	case interpret.ResultNone:
		// Trivial input, stay quiet.
	}
}

func (m *Manager) applyAction(action interpret.Action) {
	switch action {
	case interpret.ActionPause:
		m.exec.Pause()
	case interpret.ActionResume:
		m.exec.Resume()
	case interpret.ActionSkip:
		m.exec.Skip()
	case interpret.ActionGoBack:
		m.exec.GoBack()
	case interpret.ActionStop:
		m.exec.Stop()
	case interpret.ActionSlower:
		m.exec.AdjustPace(m.exec.Pace() * 1.25)
	case interpret.ActionFaster:
		m.exec.AdjustPace(m.exec.Pace() * 0.8)
	case interpret.ActionConfirmRep:
		m.mu.Lock()
		m.repSeen++
		n := m.repSeen
		m.mu.Unlock()
		m.exec.ConfirmRep(n)
	case interpret.ActionMute:
		m.dispatch.setMuted(true)
	case interpret.ActionUnmute:
		m.dispatch.setMuted(false)
	}
}

// statusText supplies dynamic responses for progress and time queries.
func (m *Manager) statusText(query interpret.Action) string {
	p := m.exec.Progress()
	switch query {
	case interpret.ActionRepeat:
		m.mu.Lock()
		last := m.lastCue
		m.mu.Unlock()
		if last == "" {
			return "I haven't said anything yet."
		}
		return last
	case interpret.ActionProgress:
		if p.TotalExercises == 0 {
			return "We haven't started an activity yet."
		}
		return fmt.Sprintf("You're on exercise %d of %d, about %d minutes in.",
			p.CurrentExerciseIndex+1, p.TotalExercises, int(p.ElapsedTime.Minutes()))
	case interpret.ActionTimeLeft:
		mins := int(p.RemainingTime.Minutes())
		if mins < 1 {
			return "Less than a minute to go."
		}
		return fmt.Sprintf("About %d minutes left.", mins)
	}
	return ""
}

// startableTools are visual elements whose appearance makes a readiness
// phrase start them.
var startableTools = map[string]bool{
	"show_timer":         true,
	"show_exercise_list": true,
	"show_plan":          true,
}

func (m *Manager) handleToolCall(tr transport.Transport, tc transport.ToolCallEvent) {
	m.mu.Lock()
	m.pendingTools[tc.ID] = tc
	m.mu.Unlock()

	if startableTools[tc.Name] {
		m.interp.SurfaceItem(tc.ID)
	}
	m.emit(ToolRenderEvent{ID: tc.ID, Name: tc.Name, Args: tc.Args})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.SendToolResult(ctx, tc.ID, tc.Name, map[string]any{"status": "ok"}); err != nil {
		m.logger.Warn("send tool result failed", "tool", tc.Name, "error", err)
	}
}

// handleRecord is the stored form of a resumption handle.
type handleRecord struct {
	Handle   string    `json:"handle"`
	IssuedAt time.Time `json:"issued_at"`
}

func (m *Manager) storeHandle(ev transport.ResumptionHandleEvent) {
	m.mu.Lock()
	m.handle = ev.Handle
	m.handleAt = ev.IssuedAt
	m.mu.Unlock()

	data, err := json.Marshal(handleRecord{Handle: ev.Handle, IssuedAt: ev.IssuedAt})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Set(ctx, m.key(persist.KindResumption), data); err != nil {
		m.logger.Warn("persist resumption handle", "error", err)
	}
}

// takeHandle returns the current resumption handle if still fresh and marks
// it used. Handles are single-use: a failed dial must not retry the same
// one.
func (m *Manager) takeHandle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := m.handle
	m.handle = ""
	if handle == "" {
		return ""
	}
	if m.clock.Now().Sub(m.handleAt) > m.cfg.ResumptionTTL {
		return ""
	}
	return handle
}

// discardStoredHandle removes the persisted resumption token.
func (m *Manager) discardStoredHandle(ctx context.Context) {
	if err := m.store.Delete(ctx, m.key(persist.KindResumption)); err != nil {
		m.logger.Warn("discard resumption handle", "error", err)
	}
}

func (m *Manager) handleGoAway(tr transport.Transport, ev transport.GoAwayEvent) {
	m.logger.Info("server go-away, recycling connection", "time_left", ev.TimeLeft)
	m.mu.Lock()
	m.stale = true
	m.mu.Unlock()
	_ = tr.Close()
}

func (m *Manager) handleClosed(ev transport.ClosedEvent) {
	m.mu.Lock()
	stopping := m.stopping
	stale := m.stale
	m.stale = false
	m.tr = nil
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.mu.Unlock()

	if stopping || (ev.Manual && !stale) {
		m.setState(StateDisconnected)
		return
	}

	if ev.Err != nil {
		m.logger.Warn("connection lost", "error", ev.Err)
	} else {
		m.logger.Info("connection closed by peer")
	}

	// Freeze the workout and save our place before trying to get back.
	if m.exec.Status() == guidance.StatusActive {
		m.exec.Pause()
		m.mu.Lock()
		m.pausedForNet = true
		m.mu.Unlock()
	}
	m.persistSnapshot()
	m.markUnexpectedTeardown()

	go m.reconnect()
}

func (m *Manager) persistSnapshot() {
	st := m.exec.GetDetailedState()
	if len(st.Activity.Exercises) == 0 {
		return
	}
	data, err := guidance.MarshalDetailedState(st)
	if err != nil {
		m.logger.Error("encode snapshot", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Set(ctx, m.key(persist.KindSnapshot), data); err != nil {
		m.logger.Error("persist snapshot", "error", err)
		m.emit(ErrorEvent{Err: NewPersistenceError("persist snapshot", err)})
	}
	// Coarse summary alongside the full snapshot, for display surfaces.
	if coarse, err := json.Marshal(m.exec.Progress()); err == nil {
		if err := m.store.Set(ctx, m.key(persist.KindProgress), coarse); err != nil {
			m.logger.Warn("persist progress summary", "error", err)
		}
	}
}

// markUnexpectedTeardown records that the session was torn down by the
// network rather than the user, so a later launch can offer to resume.
func (m *Manager) markUnexpectedTeardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Set(ctx, m.key(persist.KindIntent), []byte("unexpected")); err != nil {
		m.logger.Warn("persist teardown intent", "error", err)
	}
}

// CanResume reports whether persisted state from an unexpectedly torn-down
// session exists for this user and session.
func (m *Manager) CanResume(ctx context.Context) bool {
	if _, err := m.store.Get(ctx, m.key(persist.KindIntent)); err != nil {
		return false
	}
	_, err := m.store.Get(ctx, m.key(persist.KindSnapshot))
	return err == nil
}

func (m *Manager) reconnect() {
	m.setState(StateReconnecting)

	backoff := m.cfg.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		handle := m.takeHandle()
		if handle != "" {
			m.discardStoredHandle(ctx)
		}
		tr, err := m.dial(ctx, handle)
		cancel()

		if err != nil {
			cerr := classifyDialError(err)
			lastErr = cerr
			if !cerr.IsRetryable() {
				m.fail(cerr)
				return
			}
			m.logger.Warn("reconnect attempt failed", "attempt", attempt, "backoff", backoff, "error", err)
			m.sleep(backoff)
			backoff *= 2
			if backoff > m.cfg.BackoffCap {
				backoff = m.cfg.BackoffCap
			}
			continue
		}

		m.adopt(tr)
		if handle == "" {
			m.emit(NoticeEvent{Text: "reconnected without conversation context"})
		}
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.store.Delete(dctx, m.key(persist.KindIntent)); err != nil {
			m.logger.Warn("clear teardown intent", "error", err)
		}
		dcancel()

		m.mu.Lock()
		resume := m.pausedForNet
		m.pausedForNet = false
		m.mu.Unlock()
		if resume {
			m.dispatch.say("We're back. Picking up where we left off.")
			m.exec.Resume()
		}
		return
	}

	m.fail(NewReconnectExhaustedError(m.cfg.MaxReconnectAttempts, lastErr))
}

func (m *Manager) fail(err *Error) {
	m.logger.Error("session failed", "error", err)
	m.persistSnapshot()
	m.setState(StateDisconnected)
	m.emit(ErrorEvent{Err: err})
}

// sleep waits through the injected clock so tests control backoff time.
func (m *Manager) sleep(d time.Duration) {
	done := make(chan struct{})
	m.clock.AfterFunc(d, func() { close(done) })
	<-done
}

// execCallbacks adapts the Manager to the executor callback interface.
type execCallbacks struct{ m *Manager }

func (c execCallbacks) OnCue(cue guidance.Cue) { c.m.dispatch.enqueue(cue) }

func (c execCallbacks) OnExerciseStart(name string, index int) {
	c.m.mu.Lock()
	c.m.repSeen = 0
	c.m.mu.Unlock()
	c.m.emit(NoticeEvent{Text: fmt.Sprintf("exercise started: %s", name)})
}

func (c execCallbacks) OnExerciseComplete(name string, index int) {
	// Snapshot at every boundary so a crash loses at most one exercise.
	// Runs off the callback path to keep the executor contract.
	go c.m.persistSnapshot()
}

func (c execCallbacks) OnActivityComplete(p guidance.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, kind := range []persist.Kind{persist.KindSnapshot, persist.KindProgress, persist.KindIntent} {
		if err := c.m.store.Delete(ctx, c.m.key(kind)); err != nil {
			c.m.logger.Warn("delete persisted state on completion", "kind", kind, "error", err)
		}
	}
	c.m.emit(ActivityCompleteEvent{ElapsedTime: p.ElapsedTime})
}

func (c execCallbacks) OnProgress(p guidance.Progress) {
	c.m.emit(ProgressEvent{
		Status:               string(p.Status),
		CurrentExerciseIndex: p.CurrentExerciseIndex,
		TotalExercises:       p.TotalExercises,
		ElapsedTime:          p.ElapsedTime,
		RemainingTime:        p.RemainingTime,
	})
}

func (c execCallbacks) OnTimer(d guidance.TimerDirective) {
	c.m.emit(TimerEvent{Op: string(d.Op), Duration: d.Duration})
}

func (c execCallbacks) OnRestStart(d time.Duration) {
	c.m.emit(NoticeEvent{Text: fmt.Sprintf("rest started: %s", d)})
}

func (c execCallbacks) OnRestEnd() {
	c.m.emit(NoticeEvent{Text: "rest ended"})
}

func (c execCallbacks) OnError(msg string) {
	c.m.logger.Warn("guidance error", "message", msg)
	c.m.emit(NoticeEvent{Text: msg})
}
