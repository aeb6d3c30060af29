// Package chaseenv is a small stand-in for the Minecraft sound-chasing
// tasks: the agent stands at the center of a ring of sectors, a sound
// source sits in one of them, and the agent must rotate until it faces the
// source. It hears a stereo cue and sees a coarse bearing grid, so neither
// modality alone is informative at every step.
package chaseenv

import (
	"math"
	"math/rand"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

const (
	numSectors  = 16
	fieldOfView = 2 // sectors visible to each side of straight ahead

	maxSteps      = 64
	captureReward = 1.0
	stepPenalty   = -0.01

	// SoundDim is [left volume, right volume, loudness].
	SoundDim  = 3
	VisionDim = numSectors
)

const (
	ActionTurnLeft = iota
	ActionTurnRight
	ActionHold
	numActions
)

type State struct {
	Heading int
	Target  int
}

type Env struct {
	State State
	Steps int
	Rand  *rand.Rand
}

func NewEnv(rng *rand.Rand) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	env := &Env{Rand: rng}
	env.Reset()
	return env
}

func (e *Env) NumActions() int {
	return numActions
}

func (e *Env) Reset() replay.Observation {
	e.State = State{
		Heading: e.Rand.Intn(numSectors),
		Target:  e.Rand.Intn(numSectors),
	}
	e.Steps = 0
	return e.observe()
}

func (e *Env) Step(action int) (replay.Observation, float64, bool) {
	switch action {
	case ActionTurnLeft:
		e.State.Heading = (e.State.Heading + numSectors - 1) % numSectors
	case ActionTurnRight:
		e.State.Heading = (e.State.Heading + 1) % numSectors
	}
	e.Steps++

	if e.State.Heading == e.State.Target {
		return e.observe(), captureReward, true
	}
	done := e.Steps >= maxSteps
	return e.observe(), stepPenalty, done
}

// observe builds the bimodal observation for the current state. The stereo
// cue favors the nearer turning direction and grows louder as the bearing
// closes; the vision grid lights the target sector only when it is within
// the field of view.
func (e *Env) observe() replay.Observation {
	// Signed sector offset of the target in [-numSectors/2, numSectors/2).
	diff := e.State.Target - e.State.Heading
	if diff >= numSectors/2 {
		diff -= numSectors
	}
	if diff < -numSectors/2 {
		diff += numSectors
	}

	half := float64(numSectors) / 2
	loudness := 1.0 - math.Abs(float64(diff))/half
	left, right := 0.0, 0.0
	if diff < 0 {
		left = loudness
	} else if diff > 0 {
		right = loudness
	} else {
		left, right = loudness, loudness
	}

	vision := make([]float64, VisionDim)
	if diff >= -fieldOfView && diff <= fieldOfView {
		vision[(diff+numSectors)%numSectors] = 1.0
	}

	return replay.Observation{
		Sound:  []float64{left, right, loudness},
		Vision: vision,
	}
}

func MaxSteps() int {
	return maxSteps
}
