package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cadencevoice/cadence/pkg/coach/guidance"
)

// planFile is the on-disk YAML shape of an activity plan.
type planFile struct {
	Name      string         `yaml:"name"`
	Exercises []exerciseSpec `yaml:"exercises"`
}

type exerciseSpec struct {
	Name            string `yaml:"name"`
	Reps            int    `yaml:"reps,omitempty"`
	DurationSeconds int    `yaml:"duration_seconds,omitempty"`
	RestSeconds     int    `yaml:"rest_seconds,omitempty"`
}

// LoadPlan reads an activity plan from a YAML file.
func LoadPlan(path string) (guidance.Activity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return guidance.Activity{}, fmt.Errorf("read plan %s: %w", path, err)
	}
	return ParsePlan(data)
}

// ParsePlan parses and validates a YAML activity plan.
func ParsePlan(data []byte) (guidance.Activity, error) {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return guidance.Activity{}, fmt.Errorf("parse plan: %w", err)
	}
	if pf.Name == "" {
		return guidance.Activity{}, fmt.Errorf("plan is missing a name")
	}
	if len(pf.Exercises) == 0 {
		return guidance.Activity{}, fmt.Errorf("plan %q has no exercises", pf.Name)
	}

	activity := guidance.Activity{Name: pf.Name}
	for i, ex := range pf.Exercises {
		if ex.Name == "" {
			return guidance.Activity{}, fmt.Errorf("plan %q: exercise %d is missing a name", pf.Name, i+1)
		}
		if ex.Reps <= 0 && ex.DurationSeconds <= 0 {
			return guidance.Activity{}, fmt.Errorf("plan %q: exercise %q needs reps or duration_seconds", pf.Name, ex.Name)
		}
		if ex.Reps > 0 && ex.DurationSeconds > 0 {
			return guidance.Activity{}, fmt.Errorf("plan %q: exercise %q has both reps and duration_seconds", pf.Name, ex.Name)
		}
		activity.Exercises = append(activity.Exercises, guidance.Exercise{
			Name:      ex.Name,
			Reps:      ex.Reps,
			Duration:  time.Duration(ex.DurationSeconds) * time.Second,
			RestAfter: time.Duration(ex.RestSeconds) * time.Second,
		})
	}
	return activity, nil
}
