package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cadencevoice/cadence/pkg/coach/guidance"
	"github.com/cadencevoice/cadence/pkg/coach/persist"
	"github.com/cadencevoice/cadence/pkg/coach/transport"
)

type sentText struct {
	text string
	pri  transport.Priority
}

type fakeTransport struct {
	mu          sync.Mutex
	events      chan transport.Event
	closeOnce   sync.Once
	texts       []sentText
	toolResults []string
	audioFrames int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 64)}
}

func (f *fakeTransport) SendText(_ context.Context, text string, pri transport.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{text: text, pri: pri})
	return nil
}

func (f *fakeTransport) SendAudio(context.Context, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioFrames++
	return nil
}

func (f *fakeTransport) SendToolResult(_ context.Context, id, name string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolResults = append(f.toolResults, name)
	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.events <- transport.ClosedEvent{Manual: true}
		close(f.events)
	})
	return nil
}

// push injects a scripted server event.
func (f *fakeTransport) push(ev transport.Event) { f.events <- ev }

// finish simulates a remote close.
func (f *fakeTransport) finish(err error) {
	f.closeOnce.Do(func() {
		f.events <- transport.ClosedEvent{Err: err}
		close(f.events)
	})
}

func (f *fakeTransport) hasText(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.texts {
		if strings.Contains(s.text, substr) {
			return true
		}
	}
	return false
}

type fakeDialer struct {
	mu    sync.Mutex
	opts  []transport.DialOptions
	queue []*fakeTransport
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, opts transport.DialOptions) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = append(d.opts, opts)
	if len(d.queue) > 0 {
		tr := d.queue[0]
		d.queue = d.queue[1:]
		return tr, nil
	}
	if d.err != nil {
		return nil, d.err
	}
	return nil, errors.New("no transport scripted")
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opts)
}

func (d *fakeDialer) optsAt(i int) transport.DialOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts[i]
}

type eventLog struct {
	mu  sync.Mutex
	evs []Event
}

func collectEvents(m *Manager) *eventLog {
	log := &eventLog{}
	go func() {
		for ev := range m.Events() {
			log.mu.Lock()
			log.evs = append(log.evs, ev)
			log.mu.Unlock()
		}
	}()
	return log
}

func (l *eventLog) find(pred func(Event) bool) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.evs {
		if pred(ev) {
			return ev, true
		}
	}
	return nil, false
}

func (l *eventLog) playbacks() []PlaybackEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []PlaybackEvent
	for _, ev := range l.evs {
		if p, ok := ev.(PlaybackEvent); ok {
			out = append(out, p)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	return Config{
		UserID:               "u_1",
		SessionID:            "s_1",
		BackoffBase:          time.Millisecond,
		BackoffCap:           2 * time.Millisecond,
		MaxReconnectAttempts: 3,
		KeepaliveInterval:    time.Hour,
		QuietThreshold:       time.Hour,
		ResumptionTTL:        time.Hour,
	}
}

func testActivity() guidance.Activity {
	return guidance.Activity{
		Name: "Quick Set",
		Exercises: []guidance.Exercise{
			{Name: "Push-ups", Reps: 5},
			{Name: "Squats", Reps: 5},
		},
	}
}

func newTestManager(t *testing.T, dialer *fakeDialer, store persist.Bridge) *Manager {
	t.Helper()
	return newTestManagerCfg(t, testConfig(), dialer, store)
}

func newTestManagerCfg(t *testing.T, cfg Config, dialer *fakeDialer, store persist.Bridge) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(cfg, dialer, store, logger)
}

func TestManager_StartSpeaksOpeningCue(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	if m.State() != StateConnected {
		t.Fatalf("state = %q, want connected", m.State())
	}
	waitFor(t, "opening cue", func() bool { return tr.hasText("Push-ups") })
}

func TestManager_VoiceCommandPausesWorkout(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	tr.push(transport.TranscriptEvent{Text: "hold on", Final: true})

	waitFor(t, "pause", func() bool { return m.Executor().Status() == guidance.StatusPaused })
	waitFor(t, "acknowledgement", func() bool { return tr.hasText("Pausing") })
}

func TestManager_NonFinalTranscriptIgnored(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)
	log := collectEvents(m)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	tr.push(transport.TranscriptEvent{Text: "pause", Final: false})
	tr.push(transport.TranscriptEvent{Text: "just some chatter", Final: true})

	waitFor(t, "final transcript processed", func() bool {
		_, ok := log.find(func(ev Event) bool {
			e, is := ev.(TranscriptEvent)
			return is && strings.Contains(e.Text, "chatter")
		})
		return ok
	})
	if m.Executor().Status() != guidance.StatusActive {
		t.Fatalf("partial transcript paused the workout")
	}
}

func TestManager_UnexpectedCloseReconnectsWithHandle(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr1, tr2}}
	store := persist.NewMemory()
	m := newTestManager(t, dialer, store)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	tr1.push(transport.ResumptionHandleEvent{Handle: "h_1", IssuedAt: time.Now()})
	waitFor(t, "handle stored", func() bool {
		_, err := store.Get(context.Background(), persist.Key{UserID: "u_1", SessionID: "s_1", Kind: persist.KindResumption})
		return err == nil
	})

	tr1.finish(errors.New("connection reset"))

	waitFor(t, "redial", func() bool { return dialer.dials() == 2 })
	if got := dialer.optsAt(1).ResumptionHandle; got != "h_1" {
		t.Fatalf("redial handle = %q, want h_1", got)
	}
	// The token is single use: the stored copy must be gone after the
	// attempt.
	waitFor(t, "stored handle discarded", func() bool {
		_, err := store.Get(context.Background(), persist.Key{UserID: "u_1", SessionID: "s_1", Kind: persist.KindResumption})
		return errors.Is(err, persist.ErrNotFound)
	})
	waitFor(t, "reconnected", func() bool { return m.State() == StateConnected })
	waitFor(t, "workout resumed", func() bool { return m.Executor().Status() == guidance.StatusActive })

	// The drop must have left a snapshot behind.
	if _, err := store.Get(context.Background(), persist.Key{UserID: "u_1", SessionID: "s_1", Kind: persist.KindSnapshot}); err != nil {
		t.Fatalf("expected snapshot after unexpected close: %v", err)
	}
}

func TestManager_ReconnectExhaustedEmitsError(t *testing.T) {
	tr1 := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr1}, err: errors.New("network down")}
	m := newTestManager(t, dialer, nil)
	log := collectEvents(m)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	tr1.finish(errors.New("connection reset"))

	waitFor(t, "exhaustion", func() bool {
		_, ok := log.find(func(ev Event) bool {
			e, is := ev.(ErrorEvent)
			return is && e.Err.Type == ErrReconnectExhausted
		})
		return ok
	})
	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })
	if dialer.dials() != 1+3 {
		t.Fatalf("dials = %d, want initial plus three attempts", dialer.dials())
	}
}

func TestManager_StopDoesNotReconnect(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })
	time.Sleep(20 * time.Millisecond)
	if dialer.dials() != 1 {
		t.Fatalf("dials = %d after manual stop, want 1", dialer.dials())
	}
	if m.Executor().Status() != guidance.StatusCompleted {
		t.Fatalf("executor status = %q after stop", m.Executor().Status())
	}
}

func TestManager_InterruptClearsPlayback(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)
	log := collectEvents(m)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	oneSecond := make([]byte, playbackSampleRateHz*pcmBytesPerSample)
	tr.push(transport.AudioEvent{Data: oneSecond})
	tr.push(transport.AudioEvent{Data: oneSecond})
	tr.push(transport.InterruptedEvent{})
	tr.push(transport.AudioEvent{Data: oneSecond})

	waitFor(t, "playback events", func() bool { return len(log.playbacks()) == 3 })

	pbs := log.playbacks()
	if got := pbs[1].StartAt.Sub(pbs[0].StartAt); got != time.Second {
		t.Fatalf("second chunk offset = %v, want 1s watermark", got)
	}
	if _, ok := log.find(func(ev Event) bool { _, is := ev.(PlaybackClearEvent); return is }); !ok {
		t.Fatal("expected a playback clear event after barge-in")
	}
	// Post-interrupt audio restarts immediately instead of queuing behind
	// the discarded buffer.
	if pbs[2].StartAt.After(pbs[0].StartAt.Add(2 * time.Second)) {
		t.Fatalf("post-interrupt chunk still behind old watermark: %v", pbs[2].StartAt)
	}
}

func TestManager_GoAwayRecycles(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr1, tr2}}
	m := newTestManager(t, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	tr1.push(transport.GoAwayEvent{TimeLeft: 3 * time.Second})

	waitFor(t, "recycle", func() bool { return dialer.dials() == 2 })
	waitFor(t, "reconnected", func() bool { return m.State() == StateConnected })
}

func TestManager_ToolCallRenderAndFallback(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)
	log := collectEvents(m)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	tr.push(transport.ToolCallEvent{ID: "t_1", Name: "show_timer", Args: map[string]any{"seconds": 30.0}})

	waitFor(t, "render request", func() bool {
		_, ok := log.find(func(ev Event) bool {
			r, is := ev.(ToolRenderEvent)
			return is && r.ID == "t_1"
		})
		return ok
	})
	waitFor(t, "tool ack", func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.toolResults) == 1
	})

	m.ReportRenderFailure("t_1")
	waitFor(t, "verbal fallback", func() bool { return tr.hasText("30 seconds") })
}

func TestManager_ResumeSessionRestoresFromStore(t *testing.T) {
	store := persist.NewMemory()

	tr1 := newFakeTransport()
	dialerA := &fakeDialer{queue: []*fakeTransport{tr1}, err: errors.New("network down")}
	a := newTestManager(t, dialerA, store)
	if err := a.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	tr1.finish(errors.New("crash"))
	waitFor(t, "session a down", func() bool { return a.State() == StateDisconnected })

	// A fresh token as a crashed process would have left behind.
	rec, err := json.Marshal(handleRecord{Handle: "h_9", IssuedAt: time.Now()})
	if err != nil {
		t.Fatalf("marshal handle record: %v", err)
	}
	resumptionKey := persist.Key{UserID: "u_1", SessionID: "s_1", Kind: persist.KindResumption}
	if err := store.Set(context.Background(), resumptionKey, rec); err != nil {
		t.Fatalf("seed handle record: %v", err)
	}

	tr2 := newFakeTransport()
	dialerB := &fakeDialer{queue: []*fakeTransport{tr2}}
	b := newTestManager(t, dialerB, store)
	if !b.CanResume(context.Background()) {
		t.Fatal("expected resumable state after unexpected teardown")
	}
	if err := b.ResumeSession(context.Background()); err != nil {
		t.Fatalf("ResumeSession() error: %v", err)
	}
	defer b.Stop(context.Background())

	if b.CanResume(context.Background()) {
		t.Fatal("teardown intent should be consumed by a successful resume")
	}

	if got := dialerB.optsAt(0).ResumptionHandle; got != "h_9" {
		t.Fatalf("resume dialed with handle %q, want h_9", got)
	}
	if b.Executor().Status() != guidance.StatusPaused {
		t.Fatalf("restored executor status = %q, want paused", b.Executor().Status())
	}
	if _, err := store.Get(context.Background(), resumptionKey); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("stored token survived its one use attempt: %v", err)
	}
}

func TestManager_HeartbeatDuringSilentHold(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	cfg := testConfig()
	cfg.KeepaliveInterval = 15 * time.Millisecond
	cfg.QuietThreshold = 10 * time.Millisecond
	m := newTestManagerCfg(t, cfg, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	waitFor(t, "heartbeat", func() bool { return tr.hasText(heartbeatText) })

	// A quiet stretch keeps the connection alive, it never recycles it.
	if m.State() != StateConnected {
		t.Fatalf("state = %q during silent hold, want connected", m.State())
	}
	if dialer.dials() != 1 {
		t.Fatalf("dials = %d, quiet period must not force a reconnect", dialer.dials())
	}
}

func TestManager_NoHeartbeatWhilePaused(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	cfg := testConfig()
	cfg.KeepaliveInterval = 15 * time.Millisecond
	cfg.QuietThreshold = 10 * time.Millisecond
	m := newTestManagerCfg(t, cfg, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	m.Executor().Pause()
	time.Sleep(80 * time.Millisecond)
	if tr.hasText(heartbeatText) {
		t.Fatal("heartbeat sent while guidance was paused")
	}
}

func TestManager_MicFrameGating(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	frames := func() int {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.audioFrames
	}
	send := func() {
		t.Helper()
		if err := m.HandleMicFrame(context.Background(), make([]byte, 320)); err != nil {
			t.Fatalf("HandleMicFrame() error: %v", err)
		}
	}

	send()
	if frames() != 1 {
		t.Fatalf("frames = %d after plain send, want 1", frames())
	}

	m.SetMicMuted(true)
	send()
	if frames() != 1 {
		t.Fatalf("frames = %d, muted frame must be dropped", frames())
	}

	m.SetMicMuted(false)
	m.Executor().Pause()
	send()
	if frames() != 1 {
		t.Fatalf("frames = %d, paused frame must be dropped", frames())
	}

	m.Executor().Resume()
	send()
	if frames() != 2 {
		t.Fatalf("frames = %d after resume, want 2", frames())
	}
}

func TestManager_TracksAgentTurns(t *testing.T) {
	tr := newFakeTransport()
	dialer := &fakeDialer{queue: []*fakeTransport{tr}}
	m := newTestManager(t, dialer, nil)

	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	st := m.SessionState()
	if st.LastRefresh.IsZero() {
		t.Fatal("LastRefresh not set on connect")
	}
	tr.push(transport.TurnCompleteEvent{})
	tr.push(transport.TurnCompleteEvent{})

	waitFor(t, "turn count", func() bool { return m.SessionState().TurnCount == 2 })
}

func TestManager_MicFrameRequiresConnection(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(t, dialer, nil)

	err := m.HandleMicFrame(context.Background(), make([]byte, 320))
	if err == nil {
		t.Fatal("expected error while disconnected")
	}

	tr := newFakeTransport()
	dialer.mu.Lock()
	dialer.queue = append(dialer.queue, tr)
	dialer.mu.Unlock()
	if err := m.Start(context.Background(), testActivity()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(context.Background())

	if err := m.HandleMicFrame(context.Background(), make([]byte, 320)); err != nil {
		t.Fatalf("HandleMicFrame() error: %v", err)
	}
	tr.mu.Lock()
	frames := tr.audioFrames
	tr.mu.Unlock()
	if frames != 1 {
		t.Fatalf("audio frames = %d, want 1", frames)
	}
}
