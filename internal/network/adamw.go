package network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamW applies the Adam update with bias-corrected moment estimates and
// decoupled weight decay. Weight decay only touches weight-like parameters;
// biases decay toward nothing useful.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	params []*Param
	t      int
	m      []*mat.Dense
	v      []*mat.Dense
}

func NewAdamW(params []*Param, lr, weightDecay float64) *AdamW {
	opt := &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		params:      params,
		m:           make([]*mat.Dense, len(params)),
		v:           make([]*mat.Dense, len(params)),
	}
	for i, p := range params {
		r, c := p.W.Dims()
		opt.m[i] = mat.NewDense(r, c, nil)
		opt.v[i] = mat.NewDense(r, c, nil)
	}
	return opt
}

// ZeroGrad clears all accumulated gradients before a backward pass.
func (o *AdamW) ZeroGrad() {
	ZeroGrads(o.params)
}

// Step applies one update to every parameter that received a gradient.
// Parameters disconnected from the loss are left untouched, as are their
// moment estimates.
func (o *AdamW) Step() {
	o.t++
	t := float64(o.t)
	corr1 := 1 - math.Pow(o.Beta1, t)
	corr2 := 1 - math.Pow(o.Beta2, t)

	for i, p := range o.params {
		if !p.HasGrad() {
			continue
		}
		w := p.W.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		m := o.m[i].RawMatrix().Data
		v := o.v[i].RawMatrix().Data
		decay := 0.0
		if p.WeightLike() {
			decay = o.WeightDecay
		}
		for j := range w {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g[j]
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g[j]*g[j]
			mHat := m[j] / corr1
			vHat := v[j] / corr2
			w[j] -= o.LR * (mHat/(math.Sqrt(vHat)+o.Eps) + decay*w[j])
		}
	}
}
