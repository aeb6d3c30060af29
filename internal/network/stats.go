package network

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SummaryStats describes a group of parameter tensors: the average of the
// per-tensor means, and the per-tensor sample standard deviations combined
// as sqrt(sum(std^2))/count. Single-element tensors have no sample std and
// contribute only to the mean.
type SummaryStats struct {
	Mean float64
	Std  float64
}

func summarize(values [][]float64) (SummaryStats, bool) {
	if len(values) == 0 {
		return SummaryStats{}, false
	}
	var meanSum, varSum float64
	for _, v := range values {
		meanSum += stat.Mean(v, nil)
		if len(v) > 1 {
			sd := stat.StdDev(v, nil)
			varSum += sd * sd
		}
	}
	n := float64(len(values))
	return SummaryStats{Mean: meanSum / n, Std: math.Sqrt(varSum) / n}, true
}

// GradStats summarizes parameter values over all parameters, parameter
// values over weight-like (multi-dimensional) parameters, and gradients
// over the parameters that received one. Groups with no members are simply
// omitted; the result feeds metrics only and never the update itself.
func GradStats(params []*Param) map[string]float64 {
	var all, weights, grads [][]float64
	for _, p := range params {
		data := p.W.RawMatrix().Data
		all = append(all, data)
		if p.WeightLike() {
			weights = append(weights, data)
		}
		if p.HasGrad() {
			grads = append(grads, p.Grad.RawMatrix().Data)
		}
	}

	out := make(map[string]float64, 6)
	if s, ok := summarize(all); ok {
		out["param_avg"] = s.Mean
		out["param_std"] = s.Std
	}
	if s, ok := summarize(weights); ok {
		out["weight_avg"] = s.Mean
		out["weight_std"] = s.Std
	}
	if s, ok := summarize(grads); ok {
		out["gradient_avg"] = s.Mean
		out["gradient_std"] = s.Std
	}
	return out
}
