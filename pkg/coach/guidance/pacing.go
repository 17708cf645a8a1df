package guidance

import "time"

// Adaptive pacing constants. The rescale threshold and sample window are
// heuristic tuning knobs, kept as named variables rather than literals.
var (
	// minRepSamples is how many confirmed reps must exist before the
	// rolling average is trusted.
	minRepSamples = 3
	// repSampleWindow is how many recent reps feed the weighted average.
	repSampleWindow = 5
	// rescaleThreshold is the relative change in average rep duration
	// that triggers a live reschedule of the current exercise's cues.
	rescaleThreshold = 0.20
)

// repPacer tracks voice-confirmed repetitions for the current exercise and
// derives the user's real cadence as a weighted moving average, recent reps
// weighted higher.
type repPacer struct {
	targetReps int
	currentRep int
	lastRepAt  time.Time
	samples    []time.Duration
	avg        time.Duration
}

func (p *repPacer) startExercise(targetReps int, at time.Time) {
	p.targetReps = targetReps
	p.currentRep = 0
	p.lastRepAt = at
	p.samples = p.samples[:0]
	p.avg = 0
}

// confirm records one confirmed rep at the given instant. Returns the new
// weighted average (0 until enough samples exist) and whether the change
// against the prior average crossed the rescale threshold.
func (p *repPacer) confirm(repNumber int, at time.Time) (newAvg time.Duration, rescale bool) {
	delta := at.Sub(p.lastRepAt)
	p.lastRepAt = at
	if repNumber > 0 {
		p.currentRep = repNumber
	} else {
		p.currentRep++
	}
	if delta > 0 {
		p.samples = append(p.samples, delta)
		if len(p.samples) > repSampleWindow*2 {
			p.samples = p.samples[len(p.samples)-repSampleWindow:]
		}
	}
	if len(p.samples) < minRepSamples {
		return 0, false
	}

	window := p.samples
	if len(window) > repSampleWindow {
		window = window[len(window)-repSampleWindow:]
	}
	var weighted, weightSum int64
	for i, s := range window {
		w := int64(i + 1)
		weighted += w * int64(s)
		weightSum += w
	}
	newAvg = time.Duration(weighted / weightSum)

	old := p.avg
	p.avg = newAvg
	if old > 0 {
		diff := newAvg - old
		if diff < 0 {
			diff = -diff
		}
		rescale = float64(diff)/float64(old) > rescaleThreshold
	}
	return newAvg, rescale
}

func (p *repPacer) done() bool {
	return p.targetReps > 0 && p.currentRep >= p.targetReps
}

// remaining is the estimated time left at the confirmed cadence.
func (p *repPacer) remaining() time.Duration {
	if p.avg <= 0 {
		return 0
	}
	rem := p.targetReps - p.currentRep
	if rem < 0 {
		rem = 0
	}
	return time.Duration(rem) * p.avg
}

// ConfirmRep records an externally voice-confirmed repetition. Once enough
// samples exist, a cadence shift beyond the rescale threshold reschedules
// only the current exercise's remaining cues by the new/old average ratio,
// and the refreshed remaining-duration estimate is pushed as a timer-reset
// directive. Reaching the target rep count completes the exercise.
func (e *Executor) ConfirmRep(repNumber int) {
	e.mu.Lock()
	if e.status != StatusActive || e.inRest {
		e.mu.Unlock()
		return
	}
	ex := e.activity.Exercises[e.current]
	if ex.Reps <= 0 {
		e.mu.Unlock()
		return
	}

	var out []emitFn
	now := e.clock.Now()
	oldAvg := e.pacing.avg
	newAvg, rescale := e.pacing.confirm(repNumber, now)

	if rescale && oldAvg > 0 {
		ratio := float64(newAvg) / float64(oldAvg)
		cur := e.current
		e.rescaleLocked(ratio, now, func(idx int) bool { return idx == cur }, &out)
	}
	if newAvg > 0 {
		rem := e.pacing.remaining()
		out = append(out, func(cb Callbacks) {
			cb.OnTimer(TimerDirective{Op: TimerReset, Duration: rem})
		})
	}
	if e.pacing.done() {
		e.completeCurrentLocked(&out)
	}
	e.mu.Unlock()
	e.run(out)
}
