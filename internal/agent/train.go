package agent

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/yhs0602/MinecraftRL-Experiments/internal/network"
	"github.com/yhs0602/MinecraftRL-Experiments/internal/replay"
)

// Update performs one temporal-difference training step on the policy
// network and reports the loss. When the buffer holds fewer than BatchSize
// window-eligible episodes it is a no-op returning ok=false; that is the
// expected state during warmup, not an error.
//
// The whole sampled window is unrolled to warm up the recurrent state, but
// only the final transition of each window produces a loss term. Policy and
// target networks each unroll from their own fresh zero state; the target
// pass runs in inference mode, so its output is detached.
func (a *Agent) Update() (float64, bool) {
	if a.Buffer.NumEligible(a.Window) < a.BatchSize {
		return 0, false
	}
	batch, err := a.Buffer.SampleBatch(a.BatchSize, a.Window)
	if errors.Is(err, replay.ErrInsufficientData) {
		return 0, false
	}
	if err != nil {
		panic(err) // batch size and window were validated up front
	}

	b, w := a.BatchSize, a.Window
	audioDim := len(batch[0][0].Obs.Sound)
	videoDim := len(batch[0][0].Obs.Vision)

	audio := mat.NewDense(b*w, audioDim, nil)
	video := mat.NewDense(b*w, videoDim, nil)
	nextAudio := mat.NewDense(b*w, audioDim, nil)
	nextVideo := mat.NewDense(b*w, videoDim, nil)
	lastAction := make([]int, b)
	lastReward := make([]float64, b)
	lastDone := make([]float64, b)

	for bi, window := range batch {
		for t, tr := range window {
			row := bi*w + t
			audio.SetRow(row, tr.Obs.Sound)
			video.SetRow(row, tr.Obs.Vision)
			nextAudio.SetRow(row, tr.Next.Sound)
			nextVideo.SetRow(row, tr.Next.Vision)
		}
		final := window[w-1]
		lastAction[bi] = final.Action
		lastReward[bi] = final.Reward
		if final.Done {
			lastDone[bi] = 1
		}
	}

	// Fresh zero states per step, one per network; the two unrolls never
	// share recurrent state.
	q, _ := a.Policy.Forward(audio, video, b, w, a.Policy.InitHidden(b), network.Training)
	qNext, _ := a.Target.Forward(nextAudio, nextVideo, b, w, a.Target.InitHidden(b), network.Inference)

	_, k := q.Dims()
	dQ := mat.NewDense(b, k, nil)
	loss := 0.0
	for bi := 0; bi < b; bi++ {
		row := bi*w + w - 1
		maxNext := qNext.At(row, 0)
		for ai := 1; ai < k; ai++ {
			if v := qNext.At(row, ai); v > maxNext {
				maxNext = v
			}
		}
		target := lastReward[bi] + a.Gamma*(1-lastDone[bi])*maxNext
		diff := q.At(row, lastAction[bi]) - target
		loss += diff * diff / float64(b)
		// d(MSE)/dQ[b, action]; all other entries stay zero.
		dQ.Set(bi, lastAction[bi], 2*diff/float64(b))
	}

	a.Opt.ZeroGrad()
	a.Policy.Backward(dQ)
	a.Metrics.DelayLog(network.GradStats(a.Policy.Params()))
	a.Opt.Step()
	return loss, true
}
