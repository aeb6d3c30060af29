package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/agent"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/chaseenv"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/metrics"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/network"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

const (
	defaultEncDim    = 32
	defaultHiddenDim = 64
)

func main() {
	seed := getenvInt64("SEED", time.Now().UnixNano())
	rng := rand.New(rand.NewSource(seed))

	cfg := network.Config{
		AudioDim:   chaseenv.SoundDim,
		VisionDim:  chaseenv.VisionDim,
		EncDim:     getenvInt("ENC_DIM", defaultEncDim),
		HiddenDim:  getenvInt("HIDDEN_DIM", defaultHiddenDim),
		NumActions: 0, // filled from the environment below
	}

	env := chaseenv.NewEnv(rand.New(rand.NewSource(rng.Int63())))
	cfg.NumActions = env.NumActions()

	policy, err := network.NewDRQN(cfg, rng)
	if err != nil {
		log.Fatal(err)
	}
	target, err := network.NewDRQN(cfg, rng)
	if err != nil {
		log.Fatal(err)
	}
	// Start from identical parameter sets.
	network.HardSync{}.Sync(target.Params(), policy.Params())

	buffer, err := replay.NewEpisodeBuffer(getenvInt("REPLAY_SIZE", 256), rand.New(rand.NewSource(rng.Int63())))
	if err != nil {
		log.Fatal(err)
	}

	sinks := []metrics.Sink{metrics.LogSink{}}
	if path := os.Getenv("METRICS_DB"); path != "" {
		sqlSink, err := metrics.NewSQLiteSink(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("metrics run %s -> %s", sqlSink.RunID(), path)
		sinks = append(sinks, sqlSink)
	}
	logger := metrics.New(sinks...)
	defer logger.Close()

	var sync network.SyncStrategy = network.HardSync{}
	if getenv("SYNC", "hard") == "soft" {
		sync = network.SoftSync{Tau: getenvFloat("TAU", 0.005)}
	}

	core := &agent.Agent{
		Policy:    policy,
		Target:    target,
		Opt:       network.NewAdamW(policy.Params(), getenvFloat("LR", 1e-3), getenvFloat("WEIGHT_DECAY", 1e-4)),
		Buffer:    buffer,
		Metrics:   logger,
		Sync:      sync,
		Gamma:     getenvFloat("GAMMA", 0.99),
		BatchSize: getenvInt("BATCH_SIZE", 8),
		Window:    getenvInt("TIME_STEP", 4),
	}

	trainer := &agent.Trainer{
		Env:             env,
		Agent:           core,
		Rng:             rng,
		NumEpisodes:     getenvInt("NUM_EPISODES", 500),
		WarmupEpisodes:  getenvInt("WARMUP_EPISODES", 10),
		StepsPerEpisode: getenvInt("STEPS_PER_EPISODE", chaseenv.MaxSteps()),
		TrainFrequency:  getenvInt("TRAIN_FREQ", 4),
		UpdateFrequency: getenvInt("UPDATE_FREQ", 25),
		TestFrequency:   getenvInt("TEST_FREQ", 20),
		EpsilonInit:     getenvFloat("EPSILON_INIT", 1.0),
		EpsilonDecay:    getenvFloat("EPSILON_DECAY", 0.99),
		EpsilonMin:      getenvFloat("EPSILON_MIN", 0.05),
		SolvedCriterion: func(testReward float64, _ int) bool {
			return testReward >= getenvFloat("SOLVED_REWARD", 0.9)
		},
	}

	log.Printf("training starts (seed=%d batch=%d window=%d)", seed, core.BatchSize, core.Window)
	if err := trainer.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
