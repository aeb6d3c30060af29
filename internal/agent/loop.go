package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

// Trainer drives episodes end to end: rollout with epsilon-greedy
// exploration, buffer feeding, periodic policy updates, periodic target
// synchronization, and greedy evaluation episodes. Everything runs on the
// calling goroutine.
type Trainer struct {
	Env     Environment
	Agent   *Agent
	Rng     *rand.Rand
	Metrics interface {
		DelayLog(map[string]float64)
		Log(int, map[string]float64)
		Flush(int)
	}

	NumEpisodes     int
	WarmupEpisodes  int
	StepsPerEpisode int
	// TrainFrequency counts environment steps between update attempts;
	// UpdateFrequency counts completed updates between target syncs.
	TrainFrequency  int
	UpdateFrequency int
	// TestFrequency counts episodes between greedy evaluation runs; zero
	// disables evaluation.
	TestFrequency int

	EpsilonInit  float64
	EpsilonDecay float64
	EpsilonMin   float64

	// SolvedCriterion, when set, stops training early once a greedy
	// evaluation episode satisfies it.
	SolvedCriterion func(testReward float64, episode int) bool
}

func (t *Trainer) validate() error {
	if t.Env == nil || t.Agent == nil {
		return errors.New("trainer: environment and agent must be set")
	}
	if err := t.Agent.validate(); err != nil {
		return err
	}
	if t.NumEpisodes <= 0 || t.StepsPerEpisode <= 0 {
		return errors.New("trainer: episode counts must be greater than zero")
	}
	if t.TrainFrequency <= 0 || t.UpdateFrequency <= 0 {
		return errors.New("trainer: train and update frequencies must be greater than zero")
	}
	if t.Rng == nil {
		return errors.New("trainer: rng must be set")
	}
	if t.Metrics == nil {
		t.Metrics = t.Agent.Metrics
	}
	return nil
}

// Run trains until NumEpisodes episodes complete, the solved criterion
// fires, or the context is canceled between episodes.
func (t *Trainer) Run(ctx context.Context) error {
	if err := t.validate(); err != nil {
		return err
	}

	epsilon := t.EpsilonInit
	envSteps := 0
	updates := 0

	for ep := 0; ep < t.NumEpisodes; ep++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		episodeReward, steps, err := t.rollout(epsilon, &envSteps, &updates)
		if err != nil {
			return fmt.Errorf("trainer: episode %d: %w", ep, err)
		}

		if ep >= t.WarmupEpisodes {
			epsilon = max(t.EpsilonMin, epsilon*t.EpsilonDecay)
		}
		t.Metrics.DelayLog(map[string]float64{
			"episode_reward": episodeReward,
			"episode_steps":  float64(steps),
			"epsilon":        epsilon,
		})
		t.Metrics.Flush(ep)

		if t.TestFrequency > 0 && (ep+1)%t.TestFrequency == 0 {
			testReward := t.greedyEpisode()
			t.Metrics.Log(ep, map[string]float64{"test_reward": testReward})
			if t.SolvedCriterion != nil && t.SolvedCriterion(testReward, ep) {
				log.Printf("solved at episode %d (test reward %.3f)", ep, testReward)
				return nil
			}
		}
	}
	return nil
}

// rollout plays one episode, appending transitions and training on the
// configured cadence. The recurrent state always advances through the
// policy network, even on steps where exploration overrides the greedy
// action.
func (t *Trainer) rollout(epsilon float64, envSteps, updates *int) (float64, int, error) {
	obs := t.Env.Reset()
	st := t.Agent.Policy.InitHidden(1)
	var episode replay.Episode
	episodeReward := 0.0
	steps := 0

	for ; steps < t.StepsPerEpisode; steps++ {
		action, next := t.Agent.SelectAction(obs, st)
		st = next
		if t.Rng.Float64() < epsilon {
			action = t.Rng.Intn(t.Env.NumActions())
		}

		nextObs, reward, done := t.Env.Step(action)
		if err := episode.Append(replay.Transition{
			Obs:    obs,
			Action: action,
			Next:   nextObs,
			Reward: reward,
			Done:   done,
		}); err != nil {
			return 0, steps, err
		}
		episodeReward += reward
		obs = nextObs

		*envSteps++
		if *envSteps%t.TrainFrequency == 0 {
			if loss, ok := t.Agent.Update(); ok {
				*updates++
				t.Metrics.DelayLog(map[string]float64{"loss": loss})
				if *updates%t.UpdateFrequency == 0 {
					t.Agent.SyncTarget()
				}
			}
		}
		if done {
			steps++
			break
		}
	}

	if err := t.Agent.Buffer.AddEpisode(episode); err != nil {
		return 0, steps, err
	}
	return episodeReward, steps, nil
}

// greedyEpisode plays one evaluation episode with exploration disabled and
// without touching the replay buffer.
func (t *Trainer) greedyEpisode() float64 {
	obs := t.Env.Reset()
	st := t.Agent.Policy.InitHidden(1)
	total := 0.0
	for step := 0; step < t.StepsPerEpisode; step++ {
		action, next := t.Agent.SelectAction(obs, st)
		st = next
		nextObs, reward, done := t.Env.Step(action)
		total += reward
		obs = nextObs
		if done {
			break
		}
	}
	return total
}
