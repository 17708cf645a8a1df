package guidance

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// recorder collects callbacks in arrival order.
type recorder struct {
	mu        sync.Mutex
	log       []string
	cues      []Cue
	timers    []TimerDirective
	completes []string
	starts    []string
	errors    []string
	restStart []time.Duration
	restEnds  int
	done      bool
}

func (r *recorder) add(s string) {
	r.log = append(r.log, s)
}

func (r *recorder) OnCue(c Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, c)
	r.add("cue:" + c.Text)
}

func (r *recorder) OnExerciseStart(name string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, fmt.Sprintf("%s@%d", name, index))
	r.add("start:" + name)
}

func (r *recorder) OnExerciseComplete(name string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, name)
	r.add("complete:" + name)
}

func (r *recorder) OnActivityComplete(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.add("done")
}

func (r *recorder) OnProgress(Progress) {}

func (r *recorder) OnTimer(d TimerDirective) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = append(r.timers, d)
	r.add(fmt.Sprintf("timer:%s:%s", d.Op, d.Duration))
}

func (r *recorder) OnRestStart(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restStart = append(r.restStart, d)
	r.add("rest-start")
}

func (r *recorder) OnRestEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restEnds++
	r.add("rest-end")
}

func (r *recorder) OnError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recorder) lastTimer(t *testing.T) TimerDirective {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timers) == 0 {
		t.Fatal("no timer directives recorded")
	}
	return r.timers[len(r.timers)-1]
}

func (r *recorder) cueTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cues))
	for _, c := range r.cues {
		out = append(out, c.Text)
	}
	return out
}

func threeExerciseActivity() Activity {
	return Activity{
		Name: "Morning Circuit",
		Kind: "workout",
		Exercises: []Exercise{
			{Name: "Push-ups", Reps: 10},
			{Name: "Squats", Reps: 10},
			{Name: "Plank", Duration: 30 * time.Second},
		},
	}
}

func newTestExecutor(t *testing.T) (*Executor, *fakeClock, *recorder) {
	t.Helper()
	clk := newFakeClock()
	rec := &recorder{}
	return NewExecutor(clk, rec, nil), clk, rec
}

func TestExecutor_InitializeEmptyConfig(t *testing.T) {
	ex, _, rec := newTestExecutor(t)
	ex.Initialize(Activity{Name: "empty"})
	if len(rec.errors) != 1 {
		t.Fatalf("errors = %v, want one", rec.errors)
	}
	if ex.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle", ex.Status())
	}
	ex.Start()
	if ex.Status() != StatusIdle {
		t.Fatalf("status after start = %s, want idle (no config)", ex.Status())
	}
}

func TestExecutor_StartFiresFirstExerciseSynchronously(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Start()

	if len(rec.starts) == 0 || rec.starts[0] != "Push-ups@0" {
		t.Fatalf("starts = %v, want Push-ups@0 first and synchronous", rec.starts)
	}
	if len(rec.cues) == 0 || rec.cues[0].Type != CueInstruction {
		t.Fatalf("first cue = %+v, want instruction", rec.cues)
	}

	// Advance past exercise 0's full cue timeline (3s intro + 10 reps at
	// the default cadence) with no rep confirmations: exercise 1 starts.
	clk.Advance(estimatedDuration(Exercise{Reps: 10}) + time.Second)
	found := false
	for _, s := range rec.starts {
		if s == "Squats@1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("starts = %v, want Squats@1 after timeline elapsed", rec.starts)
	}
}

func TestExecutor_PauseResumeTimerReset(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(Activity{Name: "hold", Exercises: []Exercise{{Name: "Plank", Duration: 30 * time.Second}}})
	ex.Start()

	clk.Advance(12 * time.Second)
	ex.Pause()
	if ex.Status() != StatusPaused {
		t.Fatalf("status = %s, want paused", ex.Status())
	}
	clk.Advance(5 * time.Second)
	ex.Resume()

	var reset *TimerDirective
	rec.mu.Lock()
	for i := range rec.timers {
		if rec.timers[i].Op == TimerReset {
			reset = &rec.timers[i]
		}
	}
	rec.mu.Unlock()
	if reset == nil {
		t.Fatal("no timer-reset directive after resume")
	}
	if reset.Duration != 18*time.Second {
		t.Fatalf("reset duration = %s, want 18s", reset.Duration)
	}
}

func TestExecutor_PauseResumeElapsedExact(t *testing.T) {
	ex, clk, _ := newTestExecutor(t)
	ex.Initialize(Activity{Name: "hold", Exercises: []Exercise{{Name: "Wall Sit", Duration: 60 * time.Second}}})
	ex.Start()

	clk.Advance(5 * time.Second)
	ex.Pause()
	clk.Advance(7 * time.Second)
	ex.Resume()
	clk.Advance(5 * time.Second)
	ex.Pause()
	clk.Advance(13 * time.Second)
	ex.Resume()
	clk.Advance(2 * time.Second)

	if got := ex.Progress().ElapsedTime; got != 12*time.Second {
		t.Fatalf("elapsed = %s, want exactly 12s regardless of pause cycles", got)
	}
}

func TestExecutor_PauseWhileIdleIgnored(t *testing.T) {
	ex, _, _ := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Pause()
	if ex.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle", ex.Status())
	}
	ex.Resume()
	if ex.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle", ex.Status())
	}
}

func TestExecutor_SkipCountdown(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Start()
	clk.Advance(time.Second)

	ex.Skip()

	rec.mu.Lock()
	completes := append([]string(nil), rec.completes...)
	rec.mu.Unlock()
	if len(completes) != 1 || completes[0] != "Push-ups" {
		t.Fatalf("completes = %v, want [Push-ups]", completes)
	}
	if got := ex.Progress().CurrentExerciseIndex; got != 1 {
		t.Fatalf("current index = %d, want 1", got)
	}

	// Countdown fires "3" immediately, then one cue per second, and only
	// after "Go!" does the next exercise's timer start.
	countdownAt := len(rec.cueTexts())
	clk.Advance(3 * time.Second)
	texts := rec.cueTexts()
	tail := texts[countdownAt-1:]
	want := []string{"3", "2", "1", "Go!"}
	if len(tail) < len(want) {
		t.Fatalf("countdown cues = %v, want %v", tail, want)
	}
	for i, w := range want {
		if tail[i] != w {
			t.Fatalf("countdown cue %d = %q, want %q (all: %v)", i, tail[i], w, tail)
		}
	}

	rec.mu.Lock()
	log := append([]string(nil), rec.log...)
	rec.mu.Unlock()
	goAt, timerAt := -1, -1
	for i, s := range log {
		if s == "cue:Go!" && goAt < 0 {
			goAt = i
		}
		if s == "start:Squats" && timerAt < 0 {
			timerAt = i
		}
	}
	if goAt < 0 || timerAt < 0 || timerAt < goAt {
		t.Fatalf("exercise started before countdown finished: go=%d start=%d log=%v", goAt, timerAt, log)
	}
}

func TestExecutor_SkipLastExerciseCompletesActivity(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(Activity{Name: "one", Exercises: []Exercise{{Name: "Plank", Duration: 30 * time.Second}}})
	ex.Start()
	clk.Advance(time.Second)
	ex.Skip()
	if !rec.done {
		t.Fatal("activity not completed after skipping final exercise")
	}
	if ex.Status() != StatusCompleted {
		t.Fatalf("status = %s, want completed", ex.Status())
	}
}

func TestExecutor_GoBackAtFirstExercise(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Start()
	clk.Advance(time.Second)

	before := ex.Progress()
	ex.GoBack()
	after := ex.Progress()

	if after.CurrentExerciseIndex != before.CurrentExerciseIndex {
		t.Fatalf("index changed: %d -> %d", before.CurrentExerciseIndex, after.CurrentExerciseIndex)
	}
	if len(after.CompletedExercises) != len(before.CompletedExercises) {
		t.Fatal("completed list mutated by goBack at index 0")
	}
	texts := rec.cueTexts()
	if texts[len(texts)-1] != "You're already at the first exercise." {
		t.Fatalf("last cue = %q, want already-at-first announcement", texts[len(texts)-1])
	}
}

func TestExecutor_GoBackReturnsToPreviousExercise(t *testing.T) {
	ex, clk, _ := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Start()
	clk.Advance(time.Second)
	ex.Skip()
	clk.Advance(4 * time.Second) // countdown done, exercise 1 running

	ex.GoBack()
	clk.Advance(4 * time.Second)
	p := ex.Progress()
	if p.CurrentExerciseIndex != 0 {
		t.Fatalf("index = %d, want 0 after goBack", p.CurrentExerciseIndex)
	}
	if len(p.CompletedExercises) != 0 {
		t.Fatalf("completed = %v, want empty after returning to exercise 0", p.CompletedExercises)
	}
}

func TestExecutor_StopIdempotent(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Start()
	clk.Advance(time.Second)

	ex.Stop()
	if ex.Status() != StatusCompleted {
		t.Fatalf("status = %s, want completed", ex.Status())
	}
	rec.mu.Lock()
	events := len(rec.log)
	rec.mu.Unlock()

	ex.Stop()
	ex.Stop()
	rec.mu.Lock()
	after := len(rec.log)
	rec.mu.Unlock()
	if after != events {
		t.Fatalf("repeated stop produced side effects: %d -> %d events", events, after)
	}
}

func TestExecutor_AdjustPaceClamped(t *testing.T) {
	ex, _, _ := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())

	ex.AdjustPace(9)
	if got := ex.Pace(); got != PaceMax {
		t.Fatalf("pace = %v, want clamped to %v", got, PaceMax)
	}
	for i := 0; i < 20; i++ {
		ex.AdjustPace(ex.Pace() * 0.5)
	}
	if got := ex.Pace(); got != PaceMin {
		t.Fatalf("pace = %v, want clamped to %v", got, PaceMin)
	}
	for i := 0; i < 20; i++ {
		ex.AdjustPace(ex.Pace() * 3)
	}
	if got := ex.Pace(); got != PaceMax {
		t.Fatalf("pace = %v, want clamped to %v", got, PaceMax)
	}
}

func TestExecutor_AdjustPaceReschedulesRemainingCues(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(Activity{Name: "hold", Exercises: []Exercise{{Name: "Plank", Duration: 30 * time.Second}}})
	ex.Start()
	clk.Advance(5 * time.Second)

	// Halfway cue was due at 15s; after switching to fast pace the 10s
	// remaining shrinks to 7.5s, so it fires at 12.5s.
	ex.AdjustPace(PaceFast)
	clk.Advance(7 * time.Second)
	for _, text := range rec.cueTexts() {
		if text == "Halfway there. Keep it up." {
			t.Fatal("halfway cue fired too early")
		}
	}
	clk.Advance(time.Second)
	seen := false
	for _, text := range rec.cueTexts() {
		if text == "Halfway there. Keep it up." {
			seen = true
		}
	}
	if !seen {
		t.Fatal("halfway cue did not fire at the rescaled offset")
	}
}

func TestExecutor_ResumeNeverFiresBeforeNow(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(Activity{Name: "hold", Exercises: []Exercise{{Name: "Plank", Duration: 30 * time.Second}}})
	ex.Start()

	clk.Advance(12 * time.Second)
	ex.Pause()
	clk.Advance(5 * time.Second)
	ex.Resume()

	// Halfway cue was due at 15s; shifted by the 5s pause it fires at 20s
	// absolute, 3s after resume. Nothing fires during the pause window.
	clk.Advance(2900 * time.Millisecond)
	for _, text := range rec.cueTexts() {
		if text == "Halfway there. Keep it up." {
			t.Fatal("cue fired before its shifted offset")
		}
	}
	clk.Advance(200 * time.Millisecond)
	seen := false
	for _, text := range rec.cueTexts() {
		if text == "Halfway there. Keep it up." {
			seen = true
		}
	}
	if !seen {
		t.Fatal("cue did not fire at original offset shifted by pause duration")
	}
}

func TestExecutor_RestPeriodNotScaledByPace(t *testing.T) {
	ex, clk, rec := newTestExecutor(t)
	ex.Initialize(Activity{
		Name: "paced",
		Exercises: []Exercise{
			{Name: "Plank", Duration: 10 * time.Second, RestAfter: 20 * time.Second},
			{Name: "Side Plank", Duration: 10 * time.Second},
		},
	})
	ex.AdjustPace(PaceFast)
	ex.Start()

	// Boundary cue at scaled 7.5s starts the rest period.
	clk.Advance(8 * time.Second)
	rec.mu.Lock()
	restStarts := len(rec.restStart)
	rec.mu.Unlock()
	if restStarts != 1 {
		t.Fatalf("rest starts = %d, want 1", restStarts)
	}

	// Rest runs 20 real seconds even at fast pace.
	clk.Advance(19 * time.Second)
	rec.mu.Lock()
	restEnds := rec.restEnds
	rec.mu.Unlock()
	if restEnds != 0 {
		t.Fatal("rest ended early; rest must not be pace-scaled")
	}
	clk.Advance(2 * time.Second)
	rec.mu.Lock()
	restEnds = rec.restEnds
	rec.mu.Unlock()
	if restEnds != 1 {
		t.Fatalf("rest ends = %d, want 1", restEnds)
	}
}

func TestExecutor_ResetReturnsToIdle(t *testing.T) {
	ex, clk, _ := newTestExecutor(t)
	ex.Initialize(threeExerciseActivity())
	ex.Start()
	clk.Advance(time.Second)
	ex.Reset()
	if ex.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle after reset", ex.Status())
	}
	// Reusable after reset.
	ex.Start()
	if ex.Status() != StatusActive {
		t.Fatalf("status = %s, want active after restart", ex.Status())
	}
}
