package network

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Mode selects the forward-pass behavior explicitly instead of toggling a
// mutable train/eval flag on the network. Training records the caches that
// Backward needs; Inference records nothing, tracks encoder activation
// ratios for instrumentation, and its outputs are detached by construction.
type Mode int

const (
	Inference Mode = iota
	Training
)

// HiddenState is the recurrent (hidden, cell) pair, one row per batch
// element. The rollout loop owns one per episode; every training step
// builds fresh zero states of its own.
type HiddenState struct {
	H *mat.Dense
	C *mat.Dense
}

// Config fixes the observation, embedding, recurrent, and action
// dimensions of a DRQN instance. Policy and target networks of one agent
// share the same Config.
type Config struct {
	AudioDim   int
	VisionDim  int
	EncDim     int
	HiddenDim  int
	NumActions int
}

func (c Config) validate() error {
	if c.AudioDim <= 0 || c.VisionDim <= 0 || c.EncDim <= 0 || c.HiddenDim <= 0 || c.NumActions <= 0 {
		return fmt.Errorf("network: all config dims must be positive, got %+v", c)
	}
	return nil
}

type stepCache struct {
	xa, xv *mat.Dense // raw modality inputs for this step
	ea, ev *mat.Dense // post-ReLU encoder outputs
	x      *mat.Dense // fused LSTM input [ea|ev]
	hPrev  *mat.Dense
	cPrev  *mat.Dense
	i      *mat.Dense
	f      *mat.Dense
	g      *mat.Dense
	o      *mat.Dense
	tanhC  *mat.Dense
	h      *mat.Dense
}

// DRQN is the dual-stream recurrent value network: a dense+ReLU encoder per
// modality, an LSTM cell over the fused embedding, and a dueling head
// producing Q = V + A - mean(A).
type DRQN struct {
	cfg Config

	wAudio, bAudio   *Param
	wVision, bVision *Param

	wxi, whi, bi *Param
	wxf, whf, bf *Param
	wxg, whg, bg *Param
	wxo, who, bo *Param

	wVal, bVal *Param
	wAdv, bAdv *Param

	params []*Param

	// Caches from the most recent training-mode Forward; consumed by
	// Backward. The trainer is single-goroutine, so one slot suffices.
	cache      []stepCache
	cacheBatch int

	activation map[string]float64
}

func NewDRQN(cfg Config, rng *rand.Rand) (*DRQN, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	fused := 2 * cfg.EncDim
	n := &DRQN{
		cfg:     cfg,
		wAudio:  newParam("enc_audio_w", cfg.AudioDim, cfg.EncDim, rng),
		bAudio:  newBias("enc_audio_b", cfg.EncDim),
		wVision: newParam("enc_vision_w", cfg.VisionDim, cfg.EncDim, rng),
		bVision: newBias("enc_vision_b", cfg.EncDim),
		wxi:     newParam("lstm_wxi", fused, cfg.HiddenDim, rng),
		whi:     newParam("lstm_whi", cfg.HiddenDim, cfg.HiddenDim, rng),
		bi:      newBias("lstm_bi", cfg.HiddenDim),
		wxf:     newParam("lstm_wxf", fused, cfg.HiddenDim, rng),
		whf:     newParam("lstm_whf", cfg.HiddenDim, cfg.HiddenDim, rng),
		bf:      newBias("lstm_bf", cfg.HiddenDim),
		wxg:     newParam("lstm_wxg", fused, cfg.HiddenDim, rng),
		whg:     newParam("lstm_whg", cfg.HiddenDim, cfg.HiddenDim, rng),
		bg:      newBias("lstm_bg", cfg.HiddenDim),
		wxo:     newParam("lstm_wxo", fused, cfg.HiddenDim, rng),
		who:     newParam("lstm_who", cfg.HiddenDim, cfg.HiddenDim, rng),
		bo:      newBias("lstm_bo", cfg.HiddenDim),
		wVal:    newParam("head_value_w", cfg.HiddenDim, 1, rng),
		bVal:    newBias("head_value_b", 1),
		wAdv:    newParam("head_adv_w", cfg.HiddenDim, cfg.NumActions, rng),
		bAdv:    newBias("head_adv_b", cfg.NumActions),
	}
	n.params = []*Param{
		n.wAudio, n.bAudio, n.wVision, n.bVision,
		n.wxi, n.whi, n.bi,
		n.wxf, n.whf, n.bf,
		n.wxg, n.whg, n.bg,
		n.wxo, n.who, n.bo,
		n.wVal, n.bVal, n.wAdv, n.bAdv,
	}
	return n, nil
}

func (n *DRQN) Config() Config {
	return n.cfg
}

func (n *DRQN) Params() []*Param {
	return n.params
}

// InitHidden returns a zero (hidden, cell) pair sized for batchSize rows.
func (n *DRQN) InitHidden(batchSize int) HiddenState {
	return HiddenState{
		H: zeros(batchSize, n.cfg.HiddenDim),
		C: zeros(batchSize, n.cfg.HiddenDim),
	}
}

// Forward unrolls the network over timeSteps steps for batchSize sequences.
// audio and video are stacked batch-major: row b*timeSteps+t holds sequence
// b at step t. The returned Q matrix uses the same row layout with one
// column per action; the returned state is the post-final-step (h, c).
//
// Shape disagreements are programming errors and abort.
func (n *DRQN) Forward(audio, video *mat.Dense, batchSize, timeSteps int, st HiddenState, mode Mode) (*mat.Dense, HiddenState) {
	n.checkInput(audio, video, batchSize, timeSteps, st)

	h, c := st.H, st.C
	q := zeros(batchSize*timeSteps, n.cfg.NumActions)
	if mode == Training {
		n.cache = make([]stepCache, 0, timeSteps)
		n.cacheBatch = batchSize
	}
	var audioActive, visionActive, total float64

	for t := 0; t < timeSteps; t++ {
		xa := stepRows(audio, batchSize, timeSteps, t)
		xv := stepRows(video, batchSize, timeSteps, t)

		za := matmul(xa, n.wAudio.W)
		addRowVec(za, n.bAudio.W)
		ea := apply(za, relu)
		zv := matmul(xv, n.wVision.W)
		addRowVec(zv, n.bVision.W)
		ev := apply(zv, relu)
		x := concatCols(ea, ev)

		ig := gate(x, h, n.wxi, n.whi, n.bi, sigmoid)
		fg := gate(x, h, n.wxf, n.whf, n.bf, sigmoid)
		cg := gate(x, h, n.wxg, n.whg, n.bg, math.Tanh)
		og := gate(x, h, n.wxo, n.who, n.bo, sigmoid)

		cNext := hadamard(fg, c)
		cNext.Add(cNext, hadamard(ig, cg))
		tanhC := apply(cNext, math.Tanh)
		hNext := hadamard(og, tanhC)

		val := matmul(hNext, n.wVal.W)
		addRowVec(val, n.bVal.W)
		adv := matmul(hNext, n.wAdv.W)
		addRowVec(adv, n.bAdv.W)
		writeQ(q, val, adv, batchSize, timeSteps, t)

		if mode == Training {
			n.cache = append(n.cache, stepCache{
				xa: xa, xv: xv, ea: ea, ev: ev, x: x,
				hPrev: h, cPrev: c,
				i: ig, f: fg, g: cg, o: og,
				tanhC: tanhC, h: hNext,
			})
		} else {
			audioActive += countPositive(ea)
			visionActive += countPositive(ev)
			total += float64(batchSize * n.cfg.EncDim)
		}

		h, c = hNext, cNext
	}

	if mode == Inference && total > 0 {
		n.activation = map[string]float64{
			"audio_activation_ratio":  audioActive / total,
			"vision_activation_ratio": visionActive / total,
		}
	}
	return q, HiddenState{H: h, C: c}
}

// Backward propagates the loss gradient of the final time step's Q output
// back through the dueling head, the LSTM chain (the earlier steps carry
// gradient only through the recurrent state), and both encoders,
// accumulating into the parameter gradients. dQLast is batchSize x actions.
// Requires a preceding training-mode Forward.
func (n *DRQN) Backward(dQLast *mat.Dense) {
	if n.cache == nil {
		panic("network: Backward without a training-mode Forward")
	}
	r, k := dQLast.Dims()
	if r != n.cacheBatch || k != n.cfg.NumActions {
		panic(fmt.Sprintf("network: dQ is %dx%d, want %dx%d", r, k, n.cacheBatch, n.cfg.NumActions))
	}

	last := n.cache[len(n.cache)-1]

	// Dueling head: Q[b,a] = V[b] + Adv[b,a] - mean_a Adv[b,a].
	dVal := zeros(r, 1)
	dAdv := zeros(r, k)
	for b := 0; b < r; b++ {
		rowSum := 0.0
		for a := 0; a < k; a++ {
			rowSum += dQLast.At(b, a)
		}
		dVal.Set(b, 0, rowSum)
		for a := 0; a < k; a++ {
			dAdv.Set(b, a, dQLast.At(b, a)-rowSum/float64(k))
		}
	}
	n.wVal.AddGrad(matmul(last.h.T(), dVal))
	n.bVal.AddGrad(colSums(dVal))
	n.wAdv.AddGrad(matmul(last.h.T(), dAdv))
	n.bAdv.AddGrad(colSums(dAdv))

	dh := matmul(dVal, n.wVal.W.T())
	dh.Add(dh, matmul(dAdv, n.wAdv.W.T()))
	dc := zeros(r, n.cfg.HiddenDim)

	for t := len(n.cache) - 1; t >= 0; t-- {
		s := n.cache[t]

		do := hadamard(dh, s.tanhC)
		dTanhC := hadamard(dh, s.o)
		dTanhC.Apply(func(i, j int, v float64) float64 {
			th := s.tanhC.At(i, j)
			return v * (1 - th*th)
		}, dTanhC)
		dc.Add(dc, dTanhC)

		di := hadamard(dc, s.g)
		dg := hadamard(dc, s.i)
		df := hadamard(dc, s.cPrev)
		dcPrev := hadamard(dc, s.f)

		dai := sigmoidBack(di, s.i)
		daf := sigmoidBack(df, s.f)
		dao := sigmoidBack(do, s.o)
		dag := tanhBack(dg, s.g)

		n.wxi.AddGrad(matmul(s.x.T(), dai))
		n.whi.AddGrad(matmul(s.hPrev.T(), dai))
		n.bi.AddGrad(colSums(dai))
		n.wxf.AddGrad(matmul(s.x.T(), daf))
		n.whf.AddGrad(matmul(s.hPrev.T(), daf))
		n.bf.AddGrad(colSums(daf))
		n.wxg.AddGrad(matmul(s.x.T(), dag))
		n.whg.AddGrad(matmul(s.hPrev.T(), dag))
		n.bg.AddGrad(colSums(dag))
		n.wxo.AddGrad(matmul(s.x.T(), dao))
		n.who.AddGrad(matmul(s.hPrev.T(), dao))
		n.bo.AddGrad(colSums(dao))

		dx := matmul(dai, n.wxi.W.T())
		dx.Add(dx, matmul(daf, n.wxf.W.T()))
		dx.Add(dx, matmul(dag, n.wxg.W.T()))
		dx.Add(dx, matmul(dao, n.wxo.W.T()))

		dea := reluBack(sliceCols(dx, 0, n.cfg.EncDim), s.ea)
		dev := reluBack(sliceCols(dx, n.cfg.EncDim, 2*n.cfg.EncDim), s.ev)
		n.wAudio.AddGrad(matmul(s.xa.T(), dea))
		n.bAudio.AddGrad(colSums(dea))
		n.wVision.AddGrad(matmul(s.xv.T(), dev))
		n.bVision.AddGrad(colSums(dev))

		dh = matmul(dai, n.whi.W.T())
		dh.Add(dh, matmul(daf, n.whf.W.T()))
		dh.Add(dh, matmul(dag, n.whg.W.T()))
		dh.Add(dh, matmul(dao, n.who.W.T()))
		dc = dcPrev
	}
}

// ActivationStats returns the encoder activation ratios observed by the
// most recent inference forward. Purely observational.
func (n *DRQN) ActivationStats() map[string]float64 {
	out := make(map[string]float64, len(n.activation))
	for k, v := range n.activation {
		out[k] = v
	}
	return out
}

func (n *DRQN) checkInput(audio, video *mat.Dense, batchSize, timeSteps int, st HiddenState) {
	ar, ac := audio.Dims()
	vr, vc := video.Dims()
	want := batchSize * timeSteps
	if ar != want || vr != want {
		panic(fmt.Sprintf("network: got %d audio and %d video rows, want %d", ar, vr, want))
	}
	if ac != n.cfg.AudioDim || vc != n.cfg.VisionDim {
		panic(fmt.Sprintf("network: observation dims %dx%d, config wants %dx%d", ac, vc, n.cfg.AudioDim, n.cfg.VisionDim))
	}
	hr, hc := st.H.Dims()
	cr, cc := st.C.Dims()
	if hr != batchSize || cr != batchSize || hc != n.cfg.HiddenDim || cc != n.cfg.HiddenDim {
		panic(fmt.Sprintf("network: hidden state %dx%d/%dx%d, want %dx%d", hr, hc, cr, cc, batchSize, n.cfg.HiddenDim))
	}
}

func gate(x, h *mat.Dense, wx, wh, b *Param, act func(float64) float64) *mat.Dense {
	z := matmul(x, wx.W)
	z.Add(z, matmul(h, wh.W))
	addRowVec(z, b.W)
	return apply(z, act)
}

// stepRows gathers the batch rows of one time step from batch-major
// (b*timeSteps+t) stacking.
func stepRows(m *mat.Dense, batchSize, timeSteps, t int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(batchSize, cols, nil)
	for b := 0; b < batchSize; b++ {
		for j := 0; j < cols; j++ {
			out.Set(b, j, m.At(b*timeSteps+t, j))
		}
	}
	return out
}

func writeQ(q, val, adv *mat.Dense, batchSize, timeSteps, t int) {
	_, k := adv.Dims()
	for b := 0; b < batchSize; b++ {
		advMean := 0.0
		for a := 0; a < k; a++ {
			advMean += adv.At(b, a)
		}
		advMean /= float64(k)
		for a := 0; a < k; a++ {
			q.Set(b*timeSteps+t, a, val.At(b, 0)+adv.At(b, a)-advMean)
		}
	}
}

func countPositive(m *mat.Dense) float64 {
	rows, cols := m.Dims()
	n := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if m.At(i, j) > 0 {
				n++
			}
		}
	}
	return n
}

func sigmoidBack(d, s *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(i, j int, v float64) float64 {
		sv := s.At(i, j)
		return v * sv * (1 - sv)
	}, d)
	return &out
}

func tanhBack(d, s *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(i, j int, v float64) float64 {
		sv := s.At(i, j)
		return v * (1 - sv*sv)
	}, d)
	return &out
}

func reluBack(d, activated *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(i, j int, v float64) float64 {
		if activated.At(i, j) > 0 {
			return v
		}
		return 0
	}, d)
	return &out
}
