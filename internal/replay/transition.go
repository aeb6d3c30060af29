package replay

import (
	"errors"
	"fmt"
)

var ErrShapeMismatch = errors.New("replay: observation shape mismatch")

// Observation is one bimodal sensor reading: a fixed-shape audio frame and
// a fixed-shape flattened video frame.
type Observation struct {
	Sound  []float64
	Vision []float64
}

// Transition is a single environment step. It is never mutated after being
// appended to an Episode.
type Transition struct {
	Obs    Observation
	Action int
	Next   Observation
	Reward float64
	Done   bool
}

// Episode is the ordered sequence of transitions from one rollout, reset to
// terminal (or step-limit truncation). It grows by Append during the rollout
// and is handed to the buffer by value once the rollout ends.
type Episode struct {
	steps []Transition
}

// Append adds one transition, enforcing that every transition in the episode
// carries the same observation shapes across both modalities.
func (e *Episode) Append(t Transition) error {
	if len(t.Obs.Sound) != len(t.Next.Sound) || len(t.Obs.Vision) != len(t.Next.Vision) {
		return fmt.Errorf("%w: next observation %dx%d, observation %dx%d",
			ErrShapeMismatch, len(t.Next.Sound), len(t.Next.Vision), len(t.Obs.Sound), len(t.Obs.Vision))
	}
	if len(e.steps) > 0 {
		first := e.steps[0]
		if len(t.Obs.Sound) != len(first.Obs.Sound) || len(t.Obs.Vision) != len(first.Obs.Vision) {
			return fmt.Errorf("%w: transition %d has %dx%d, episode has %dx%d",
				ErrShapeMismatch, len(e.steps), len(t.Obs.Sound), len(t.Obs.Vision),
				len(first.Obs.Sound), len(first.Obs.Vision))
		}
	}
	e.steps = append(e.steps, t)
	return nil
}

func (e *Episode) Len() int {
	return len(e.steps)
}

// Steps returns a copy of the episode's transitions.
func (e *Episode) Steps() []Transition {
	out := make([]Transition, len(e.steps))
	copy(out, e.steps)
	return out
}

func (e *Episode) window(start, length int) []Transition {
	out := make([]Transition, length)
	copy(out, e.steps[start:start+length])
	return out
}
