package guidance

import (
	"testing"
	"time"
)

func TestGenerateCues_TimingsNonDecreasing(t *testing.T) {
	p := generateCues(Activity{
		Name: "mixed",
		Exercises: []Exercise{
			{Name: "Push-ups", Reps: 12, RestAfter: 15 * time.Second},
			{Name: "Plank", Duration: 45 * time.Second, RestAfter: 10 * time.Second},
			{Name: "Squats", Reps: 8},
		},
	})
	if len(p.cues) == 0 {
		t.Fatal("no cues generated")
	}
	for i := 1; i < len(p.cues); i++ {
		if p.cues[i].TimingMS < p.cues[i-1].TimingMS {
			t.Fatalf("cue %d at %dms precedes cue %d at %dms",
				i, p.cues[i].TimingMS, i-1, p.cues[i-1].TimingMS)
		}
	}
}

func TestGenerateCues_BoundaryPerExercise(t *testing.T) {
	a := threeExerciseActivity()
	p := generateCues(a)
	if len(p.boundary) != len(a.Exercises) {
		t.Fatalf("boundaries = %d, want %d", len(p.boundary), len(a.Exercises))
	}
	for i, b := range p.boundary {
		if p.cues[b].ExerciseIndex != i {
			t.Fatalf("boundary %d belongs to exercise %d", i, p.cues[b].ExerciseIndex)
		}
	}
	last := p.cues[p.boundary[len(p.boundary)-1]]
	if last.Type != CueCompletion {
		t.Fatalf("final boundary type = %s, want completion", last.Type)
	}
}

func TestGenerateCues_TimedHoldMilestones(t *testing.T) {
	p := generateCues(Activity{Name: "hold", Exercises: []Exercise{{Name: "Plank", Duration: 30 * time.Second}}})
	var halfway, tenLeft bool
	for _, c := range p.cues {
		switch c.Text {
		case "Halfway there. Keep it up.":
			halfway = c.TimingMS == 15_000
		case "Ten seconds left.":
			tenLeft = c.TimingMS == 20_000
		}
	}
	if !halfway || !tenLeft {
		t.Fatalf("milestone cues missing or mistimed: halfway=%v tenLeft=%v", halfway, tenLeft)
	}
}

func TestGenerateCues_RejectsUnusableExercise(t *testing.T) {
	if p := generateCues(Activity{Exercises: []Exercise{{Name: "???"}}}); len(p.cues) != 0 {
		t.Fatal("exercise without reps or duration must yield no cues")
	}
	if p := generateCues(Activity{Exercises: []Exercise{{Reps: 5}}}); len(p.cues) != 0 {
		t.Fatal("unnamed exercise must yield no cues")
	}
}
