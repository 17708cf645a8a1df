package guidance

import (
	"fmt"
	"time"
)

const (
	// defaultRepDuration is the assumed seconds-per-rep before any voice
	// confirmations have calibrated the user's real cadence.
	defaultRepDuration = 3 * time.Second

	// repIntro is the lead-in between an exercise's instruction cue and
	// its first counted rep.
	repIntro = 3 * time.Second
)

// cuePlan is a generated cue timeline plus the per-exercise bookkeeping the
// executor needs to locate sub-lists and boundaries.
type cuePlan struct {
	cues []Cue

	// boundary[i] is the cue index whose firing completes exercise i.
	boundary []int
	// firstCue[i] is the index of exercise i's first cue.
	firstCue []int
	// baseMS[i] is exercise i's start offset on the base-pace timeline.
	baseMS []int64
	// estMS[i] is exercise i's estimated duration in milliseconds.
	estMS []int64
}

// estimatedDuration is how long an exercise is expected to take at base
// pace. Rep exercises are estimated from the default cadence until adaptive
// pacing refines it.
func estimatedDuration(ex Exercise) time.Duration {
	if ex.Reps > 0 {
		return repIntro + time.Duration(ex.Reps)*defaultRepDuration
	}
	return ex.Duration
}

// generateCues builds the full ordered cue timeline for an activity.
// Returns a plan with a non-decreasing timing sequence, or an empty plan if
// the activity has no usable exercises.
func generateCues(a Activity) cuePlan {
	p := cuePlan{
		boundary: make([]int, len(a.Exercises)),
		firstCue: make([]int, len(a.Exercises)),
		baseMS:   make([]int64, len(a.Exercises)),
		estMS:    make([]int64, len(a.Exercises)),
	}

	offset := int64(0)
	for i, ex := range a.Exercises {
		if ex.Name == "" || (ex.Reps <= 0 && ex.Duration <= 0) {
			return cuePlan{}
		}
		est := estimatedDuration(ex).Milliseconds()
		p.baseMS[i] = offset
		p.estMS[i] = est
		p.firstCue[i] = len(p.cues)

		p.cues = append(p.cues, Cue{
			TimingMS:      offset,
			Type:          CueInstruction,
			Text:          instructionText(i, ex),
			ExerciseIndex: i,
		})

		if ex.Reps > 0 {
			repMS := defaultRepDuration.Milliseconds()
			for r := 1; r <= ex.Reps; r++ {
				p.cues = append(p.cues, Cue{
					TimingMS:      offset + repIntro.Milliseconds() + int64(r)*repMS,
					Type:          CueCount,
					Text:          fmt.Sprintf("%d", r),
					ExerciseIndex: i,
				})
			}
		} else {
			durMS := ex.Duration.Milliseconds()
			if ex.Duration >= 20*time.Second {
				p.cues = append(p.cues, Cue{
					TimingMS:      offset + durMS/2,
					Type:          CueTransition,
					Text:          "Halfway there. Keep it up.",
					ExerciseIndex: i,
				})
			}
			if ex.Duration >= 15*time.Second {
				p.cues = append(p.cues, Cue{
					TimingMS:      offset + durMS - 10_000,
					Type:          CueTransition,
					Text:          "Ten seconds left.",
					ExerciseIndex: i,
				})
			}
		}

		// Boundary cue: firing it completes the exercise. The last
		// exercise's boundary doubles as the activity completion cue.
		boundaryType := CueTransition
		boundaryText := fmt.Sprintf("Nice work on %s.", ex.Name)
		if i == len(a.Exercises)-1 {
			boundaryType = CueCompletion
			boundaryText = "That's the whole session. Great job!"
		}
		p.boundary[i] = len(p.cues)
		p.cues = append(p.cues, Cue{
			TimingMS:      offset + est,
			Type:          boundaryType,
			Text:          boundaryText,
			ExerciseIndex: i,
		})
		offset += est

		if ex.RestAfter > 0 && i < len(a.Exercises)-1 {
			p.cues = append(p.cues, Cue{
				TimingMS:      offset,
				Type:          CueRest,
				Text:          fmt.Sprintf("Rest for %d seconds.", int(ex.RestAfter.Seconds())),
				ExerciseIndex: i,
			})
			offset += ex.RestAfter.Milliseconds()
		}
	}

	return p
}

func instructionText(i int, ex Exercise) string {
	if ex.Reps > 0 {
		return fmt.Sprintf("Exercise %d: %s. %d reps.", i+1, ex.Name, ex.Reps)
	}
	return fmt.Sprintf("Exercise %d: %s. Hold for %d seconds.", i+1, ex.Name, int(ex.Duration.Seconds()))
}
