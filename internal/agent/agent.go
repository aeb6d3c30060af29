// Package agent holds the bimodal recurrent Q-learning core: greedy action
// selection over a policy network, the temporal-difference training step,
// and the training loop controller that drives both.
package agent

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/metrics"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/network"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

// ValueNetwork is the dual-stream recurrent value-function contract the
// agent consumes: two modality matrices in, per-step Q-values and the
// updated recurrent state out. network.DRQN implements it; tests substitute
// fixed Q tables.
type ValueNetwork interface {
	InitHidden(batchSize int) network.HiddenState
	Forward(audio, video *mat.Dense, batchSize, timeSteps int, st network.HiddenState, mode network.Mode) (*mat.Dense, network.HiddenState)
	Backward(dQLast *mat.Dense)
	Params() []*network.Param
}

// Optimizer is the gradient-descent collaborator (network.AdamW in
// production).
type Optimizer interface {
	ZeroGrad()
	Step()
}

// Environment produces bimodal observations and consumes discrete actions.
type Environment interface {
	Reset() replay.Observation
	Step(action int) (replay.Observation, float64, bool)
	NumActions() int
}

// Agent ties the policy and target networks to the replay buffer. The
// training loop owns it and calls it from a single goroutine.
type Agent struct {
	Policy  ValueNetwork
	Target  ValueNetwork
	Opt     Optimizer
	Buffer  *replay.EpisodeBuffer
	Metrics *metrics.Logger
	Sync    network.SyncStrategy

	Gamma     float64
	BatchSize int
	Window    int
}

func (a *Agent) validate() error {
	if a.Policy == nil || a.Target == nil || a.Opt == nil || a.Buffer == nil || a.Sync == nil {
		return errors.New("agent: policy, target, optimizer, buffer, and sync must be set")
	}
	if a.Metrics == nil {
		return errors.New("agent: metrics logger must be set")
	}
	if a.BatchSize <= 0 || a.Window <= 0 {
		return errors.New("agent: batch size and window must be greater than zero")
	}
	if a.Gamma < 0 || a.Gamma > 1 {
		return errors.New("agent: gamma must be in [0, 1]")
	}
	return nil
}

// SelectAction runs one inference step of the policy network for a single
// observation and returns the greedy action (first index wins ties)
// together with the advanced recurrent state. Exploration noise is the
// caller's business. Activation statistics are pushed to the metrics
// buffer as a side channel; they never influence the result.
func (a *Agent) SelectAction(obs replay.Observation, st network.HiddenState) (int, network.HiddenState) {
	audio := mat.NewDense(1, len(obs.Sound), append([]float64(nil), obs.Sound...))
	video := mat.NewDense(1, len(obs.Vision), append([]float64(nil), obs.Vision...))

	q, next := a.Policy.Forward(audio, video, 1, 1, st, network.Inference)
	if reporter, ok := a.Policy.(interface{ ActivationStats() map[string]float64 }); ok {
		a.Metrics.DelayLog(reporter.ActivationStats())
	}

	action := 0
	best := q.At(0, 0)
	_, k := q.Dims()
	for i := 1; i < k; i++ {
		if v := q.At(0, i); v > best {
			best = v
			action = i
		}
	}
	return action, next
}

// SyncTarget applies the configured synchronization strategy, moving the
// target parameters toward the policy parameters.
func (a *Agent) SyncTarget() {
	a.Sync.Sync(a.Target.Params(), a.Policy.Params())
}
