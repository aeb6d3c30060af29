package agent

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/chaseenv"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/metrics"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/network"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

func newTestTrainer(t *testing.T, episodes int) *Trainer {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	env := chaseenv.NewEnv(rand.New(rand.NewSource(43)))

	cfg := network.Config{
		AudioDim:   chaseenv.SoundDim,
		VisionDim:  chaseenv.VisionDim,
		EncDim:     4,
		HiddenDim:  4,
		NumActions: env.NumActions(),
	}
	policy, err := network.NewDRQN(cfg, rng)
	if err != nil {
		t.Fatal(err)
	}
	target, err := network.NewDRQN(cfg, rng)
	if err != nil {
		t.Fatal(err)
	}
	network.HardSync{}.Sync(target.Params(), policy.Params())

	buf, err := replay.NewEpisodeBuffer(8, rand.New(rand.NewSource(44)))
	if err != nil {
		t.Fatal(err)
	}

	return &Trainer{
		Env: env,
		Agent: &Agent{
			Policy:    policy,
			Target:    target,
			Opt:       network.NewAdamW(policy.Params(), 1e-3, 0),
			Buffer:    buf,
			Metrics:   metrics.New(),
			Sync:      network.SoftSync{Tau: 0.5},
			Gamma:     0.99,
			BatchSize: 1,
			Window:    1,
		},
		Rng:             rng,
		NumEpisodes:     episodes,
		WarmupEpisodes:  1,
		StepsPerEpisode: 8,
		TrainFrequency:  4,
		UpdateFrequency: 2,
		TestFrequency:   2,
		EpsilonInit:     1.0,
		EpsilonDecay:    0.9,
		EpsilonMin:      0.05,
	}
}

func TestTrainerRunCompletesAndStoresEpisodes(t *testing.T) {
	tr := newTestTrainer(t, 3)
	if err := tr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := tr.Agent.Buffer.Len(); got != 3 {
		t.Fatalf("buffer holds %d episodes after 3 rollouts, want 3", got)
	}
}

func TestTrainerSolvedCriterionStopsEarly(t *testing.T) {
	tr := newTestTrainer(t, 100)
	calls := 0
	tr.SolvedCriterion = func(float64, int) bool {
		calls++
		return true
	}
	if err := tr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("criterion evaluated %d times, want 1 (first test episode stops the run)", calls)
	}
	// TestFrequency=2: only two episodes ran before the stop.
	if got := tr.Agent.Buffer.Len(); got != 2 {
		t.Fatalf("buffer holds %d episodes, want 2", got)
	}
}

func TestTrainerContextCancellation(t *testing.T) {
	tr := newTestTrainer(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestTrainerValidation(t *testing.T) {
	if err := (&Trainer{}).Run(context.Background()); err == nil {
		t.Fatal("expected validation error for empty trainer")
	}

	tr := newTestTrainer(t, 1)
	tr.TrainFrequency = 0
	if err := tr.Run(context.Background()); err == nil {
		t.Fatal("expected validation error for zero train frequency")
	}
}
