package agent

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/metrics"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/network"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

// stubNet serves a fixed Q row for every (batch, step) element, records
// Backward calls, and threads the hidden state through unchanged.
type stubNet struct {
	hiddenDim     int
	qRow          []float64
	backwardCalls []*mat.Dense
	params        []*network.Param
}

func newStubNet(qRow []float64) *stubNet {
	return &stubNet{
		hiddenDim: 2,
		qRow:      qRow,
		params:    []*network.Param{{Name: "stub", W: mat.NewDense(2, 2, nil)}},
	}
}

func (s *stubNet) InitHidden(batchSize int) network.HiddenState {
	return network.HiddenState{
		H: mat.NewDense(batchSize, s.hiddenDim, nil),
		C: mat.NewDense(batchSize, s.hiddenDim, nil),
	}
}

func (s *stubNet) Forward(_, _ *mat.Dense, batchSize, timeSteps int, st network.HiddenState, _ network.Mode) (*mat.Dense, network.HiddenState) {
	q := mat.NewDense(batchSize*timeSteps, len(s.qRow), nil)
	for r := 0; r < batchSize*timeSteps; r++ {
		q.SetRow(r, s.qRow)
	}
	return q, st
}

func (s *stubNet) Backward(dQLast *mat.Dense) {
	s.backwardCalls = append(s.backwardCalls, mat.DenseCopyOf(dQLast))
}

func (s *stubNet) Params() []*network.Param {
	return s.params
}

type countingOpt struct {
	zeroed  int
	stepped int
}

func (o *countingOpt) ZeroGrad() { o.zeroed++ }
func (o *countingOpt) Step()     { o.stepped++ }

func singleStepEpisode(t *testing.T, action int, reward float64, done bool) replay.Episode {
	t.Helper()
	var e replay.Episode
	err := e.Append(replay.Transition{
		Obs:    replay.Observation{Sound: []float64{1}, Vision: []float64{1}},
		Action: action,
		Next:   replay.Observation{Sound: []float64{2}, Vision: []float64{2}},
		Reward: reward,
		Done:   done,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func newTestAgent(t *testing.T, policy, target ValueNetwork, opt Optimizer, batchSize, window int) *Agent {
	t.Helper()
	buf, err := replay.NewEpisodeBuffer(16, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatal(err)
	}
	return &Agent{
		Policy:    policy,
		Target:    target,
		Opt:       opt,
		Buffer:    buf,
		Metrics:   metrics.New(),
		Sync:      network.HardSync{},
		Gamma:     0.5,
		BatchSize: batchSize,
		Window:    window,
	}
}

func TestSelectActionGreedyTieBreak(t *testing.T) {
	policy := newStubNet([]float64{0.1, 0.9, 0.9, 0.0})
	a := newTestAgent(t, policy, newStubNet([]float64{0, 0, 0, 0}), &countingOpt{}, 1, 1)

	obs := replay.Observation{Sound: []float64{1}, Vision: []float64{1}}
	action, _ := a.SelectAction(obs, policy.InitHidden(1))
	if action != 1 {
		t.Fatalf("greedy action = %d, want first maximal index 1", action)
	}
}

func TestUpdateNoOpWithoutEnoughEpisodes(t *testing.T) {
	policy := newStubNet([]float64{0, 0, 0})
	opt := &countingOpt{}
	a := newTestAgent(t, policy, newStubNet([]float64{0, 0, 0}), opt, 4, 1)
	for i := 0; i < 3; i++ {
		if err := a.Buffer.AddEpisode(singleStepEpisode(t, 0, 1, true)); err != nil {
			t.Fatal(err)
		}
	}

	loss, ok := a.Update()
	if ok {
		t.Fatal("update ran with 3 episodes and batch size 4")
	}
	if loss != 0 {
		t.Fatalf("no-op update returned loss %f", loss)
	}
	if opt.stepped != 0 || opt.zeroed != 0 {
		t.Fatal("no-op update touched the optimizer")
	}
	if len(policy.backwardCalls) != 0 {
		t.Fatal("no-op update ran backprop")
	}
}

func TestUpdateTemporalDifferenceTarget(t *testing.T) {
	policy := newStubNet([]float64{0.2, 0.7, 0.1})
	target := newStubNet([]float64{0.3, 0.9, 0.0})
	opt := &countingOpt{}
	a := newTestAgent(t, policy, target, opt, 2, 1)
	// Two identical one-step episodes so the sampled batch content does
	// not depend on the draw.
	for i := 0; i < 2; i++ {
		if err := a.Buffer.AddEpisode(singleStepEpisode(t, 1, 0.5, false)); err != nil {
			t.Fatal(err)
		}
	}

	loss, ok := a.Update()
	if !ok {
		t.Fatal("update skipped with enough data")
	}

	// target = r + gamma * max_a Q_target = 0.5 + 0.5*0.9 = 0.95
	// diff   = Q_policy[1] - target = 0.7 - 0.95 = -0.25
	// loss   = 2 * diff^2 / batch = 0.0625
	if want := 0.0625; math.Abs(loss-want) > 1e-12 {
		t.Fatalf("loss = %.12f, want %.12f", loss, want)
	}
	if opt.zeroed != 1 || opt.stepped != 1 {
		t.Fatalf("optimizer calls zero=%d step=%d, want 1/1", opt.zeroed, opt.stepped)
	}
	if len(policy.backwardCalls) != 1 {
		t.Fatalf("backward ran %d times, want 1", len(policy.backwardCalls))
	}

	// dLoss/dQ at the taken action: 2*diff/batch = -0.25, zero elsewhere.
	dQ := policy.backwardCalls[0]
	for b := 0; b < 2; b++ {
		for ai := 0; ai < 3; ai++ {
			want := 0.0
			if ai == 1 {
				want = -0.25
			}
			if got := dQ.At(b, ai); math.Abs(got-want) > 1e-12 {
				t.Fatalf("dQ[%d,%d] = %.12f, want %.12f", b, ai, got, want)
			}
		}
	}
}

func TestUpdateTerminalMasksBootstrap(t *testing.T) {
	policy := newStubNet([]float64{0.2, 0.7, 0.1})
	target := newStubNet([]float64{0.3, 0.9, 0.0})
	a := newTestAgent(t, policy, target, &countingOpt{}, 1, 1)
	if err := a.Buffer.AddEpisode(singleStepEpisode(t, 1, 0.5, true)); err != nil {
		t.Fatal(err)
	}

	loss, ok := a.Update()
	if !ok {
		t.Fatal("update skipped")
	}
	// Terminal: target = reward alone; diff = 0.7 - 0.5 = 0.2.
	if want := 0.04; math.Abs(loss-want) > 1e-12 {
		t.Fatalf("loss = %.12f, want %.12f", loss, want)
	}
}

func TestUpdateMovesRealNetworkParameters(t *testing.T) {
	cfg := network.Config{AudioDim: 2, VisionDim: 3, EncDim: 4, HiddenDim: 4, NumActions: 3}
	policy, err := network.NewDRQN(cfg, rand.New(rand.NewSource(31)))
	if err != nil {
		t.Fatal(err)
	}
	target, err := network.NewDRQN(cfg, rand.New(rand.NewSource(32)))
	if err != nil {
		t.Fatal(err)
	}
	a := newTestAgent(t, policy, target, network.NewAdamW(policy.Params(), 1e-2, 1e-4), 1, 1)
	a.Gamma = 0.99

	rng := rand.New(rand.NewSource(33))
	var episode replay.Episode
	for step := 0; step < 5; step++ {
		tr := replay.Transition{
			Obs:    replay.Observation{Sound: randSlice(rng, 2), Vision: randSlice(rng, 3)},
			Action: rng.Intn(3),
			Next:   replay.Observation{Sound: randSlice(rng, 2), Vision: randSlice(rng, 3)},
			Reward: rng.Float64(),
			Done:   step == 4,
		}
		if err := episode.Append(tr); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Buffer.AddEpisode(episode); err != nil {
		t.Fatal(err)
	}

	before := snapshot(policy.Params())
	loss, ok := a.Update()
	if !ok {
		t.Fatal("update skipped")
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Fatalf("loss = %f, want finite", loss)
	}
	if !paramsChanged(before, policy.Params()) {
		t.Fatal("policy parameters did not move")
	}
}

func randSlice(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func snapshot(params []*network.Param) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p.W.RawMatrix().Data...)
	}
	return out
}

func paramsChanged(before [][]float64, params []*network.Param) bool {
	for i, p := range params {
		data := p.W.RawMatrix().Data
		for j := range data {
			if data[j] != before[i][j] {
				return true
			}
		}
	}
	return false
}
