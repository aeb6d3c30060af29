package network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is one named parameter tensor together with its gradient
// accumulator. Biases are stored 1xN; a parameter with both dimensions
// greater than one is weight-like. Grad stays nil until backprop first
// touches the parameter, mirroring the "no gradient received" state.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

func newParam(name string, rows, cols int, rng *rand.Rand) *Param {
	data := make([]float64, rows*cols)
	// Uniform in [-1/sqrt(fanIn), 1/sqrt(fanIn)].
	bound := 1.0 / math.Sqrt(float64(rows))
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * bound
	}
	return &Param{Name: name, W: mat.NewDense(rows, cols, data)}
}

func newBias(name string, cols int) *Param {
	return &Param{Name: name, W: mat.NewDense(1, cols, nil)}
}

// WeightLike reports whether the parameter is multi-dimensional (a weight
// matrix rather than a bias vector).
func (p *Param) WeightLike() bool {
	r, c := p.W.Dims()
	return r > 1 && c > 1
}

// HasGrad reports whether backprop has accumulated into this parameter
// since the last ZeroGrad.
func (p *Param) HasGrad() bool {
	return p.Grad != nil
}

// AddGrad accumulates delta into the gradient, allocating it on first use.
func (p *Param) AddGrad(delta *mat.Dense) {
	if p.Grad == nil {
		r, c := p.W.Dims()
		p.Grad = mat.NewDense(r, c, nil)
	}
	p.Grad.Add(p.Grad, delta)
}

// ZeroGrads drops all accumulated gradients back to the untouched state.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.Grad = nil
	}
}
