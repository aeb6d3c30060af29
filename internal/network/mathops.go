package network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Small dense-matrix helpers shared by the forward and backward passes.

func zeros(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}

func matmul(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

func hadamard(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.MulElem(a, b)
	return &out
}

func apply(a *mat.Dense, f func(float64) float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, a)
	return &out
}

// addRowVec adds a 1xN bias row to every row of m in place.
func addRowVec(m, bias *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, m.At(i, j)+bias.At(0, j))
		}
	}
}

// colSums returns the 1xN column sums of m (the bias gradient of a batch).
func colSums(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(1, cols, nil)
	for j := 0; j < cols; j++ {
		s := 0.0
		for i := 0; i < rows; i++ {
			s += m.At(i, j)
		}
		out.Set(0, j, s)
	}
	return out
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

func relu(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

// sliceCols copies columns [from, to) of m into a new matrix.
func sliceCols(m *mat.Dense, from, to int) *mat.Dense {
	rows, _ := m.Dims()
	out := mat.NewDense(rows, to-from, nil)
	for i := 0; i < rows; i++ {
		for j := from; j < to; j++ {
			out.Set(i, j-from, m.At(i, j))
		}
	}
	return out
}

// concatCols places a then b side by side.
func concatCols(a, b *mat.Dense) *mat.Dense {
	rows, ac := a.Dims()
	_, bc := b.Dims()
	out := mat.NewDense(rows, ac+bc, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < ac; j++ {
			out.Set(i, j, a.At(i, j))
		}
		for j := 0; j < bc; j++ {
			out.Set(i, ac+j, b.At(i, j))
		}
	}
	return out
}
