package spatial

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/geoscore/internal/model"
)

// MinMoranN is the smallest sample the randomisation variance is defined for.
const MinMoranN = 4

// MoranResult is Moran's I with its moments under the randomisation
// assumption and a two-sided normal-approximation p-value.
type MoranResult struct {
	I        float64 `json:"i"`
	Expected float64 `json:"expected"`
	Variance float64 `json:"variance"`
	Z        float64 `json:"z"`
	PValue   float64 `json:"p_value"`
	N        int     `json:"n"`
	Islands  int     `json:"islands"`
}

// MoranI computes global Moran's I of x over w:
//
//	I = (n/S0) · Σ_ij w_ij (x_i-x̄)(x_j-x̄) / Σ_i (x_i-x̄)²
//
// The p-value is two-sided from the normal approximation with the variance
// under randomisation. w is used as given; pass w.RowStandardize() for
// row-standardized weights.
func MoranI(ctx context.Context, x []float64, w *Weights) (MoranResult, error) {
	const method = "moran"
	n := len(x)
	if w == nil || w.N() != n {
		return MoranResult{}, &model.InputValidationError{Field: method, Reason: "weights must have one row per value"}
	}
	if n < MinMoranN {
		return MoranResult{}, &model.InsufficientDataError{Method: method, N: n, Min: MinMoranN}
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return MoranResult{}, &model.InputValidationError{Field: method, Reason: "non-finite value"}
		}
	}

	s0 := w.S0()
	if s0 == 0 {
		return MoranResult{}, &model.NumericInstabilityError{Method: method, Reason: "weights have no links"}
	}

	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)
	z := make([]float64, n)
	var m2, m4 float64
	for i, v := range x {
		z[i] = v - mean
		m2 += z[i] * z[i]
		m4 += z[i] * z[i] * z[i] * z[i]
	}
	if m2 == 0 {
		return MoranResult{}, &model.NumericInstabilityError{Method: method, Reason: "variable has zero variance"}
	}

	// Cross products plus S1 and S2 in one pass over the links.
	type link struct{ i, j int }
	lookup := make(map[link]float64)
	for i := range w.neighbors {
		for k, j := range w.neighbors[i] {
			lookup[link{i, j}] = w.values[i][k]
		}
	}

	rowSum := make([]float64, n)
	colSum := make([]float64, n)
	var cross, s1 float64
	for i := range w.neighbors {
		if i%checkEvery == 0 {
			if err := checkContext(ctx, method); err != nil {
				return MoranResult{}, err
			}
		}
		for k, j := range w.neighbors[i] {
			wij := w.values[i][k]
			cross += wij * z[i] * z[j]
			rowSum[i] += wij
			colSum[j] += wij
			wji, mutual := lookup[link{j, i}]
			sq := (wij + wji) * (wij + wji)
			if mutual {
				s1 += sq
			} else {
				// (j,i) is never visited, so count its identical term here.
				s1 += 2 * sq
			}
		}
	}
	s1 /= 2
	var s2 float64
	for i := 0; i < n; i++ {
		t := rowSum[i] + colSum[i]
		s2 += t * t
	}

	nf := float64(n)
	moran := (nf / s0) * cross / m2
	expected := -1 / (nf - 1)
	b2 := nf * m4 / (m2 * m2)
	num := nf*((nf*nf-3*nf+3)*s1-nf*s2+3*s0*s0) - b2*((nf*nf-nf)*s1-2*nf*s2+6*s0*s0)
	den := (nf - 1) * (nf - 2) * (nf - 3) * s0 * s0
	variance := num/den - expected*expected
	if !(variance > 0) {
		return MoranResult{}, &model.NumericInstabilityError{Method: method, Reason: "non-positive variance of I"}
	}

	zscore := (moran - expected) / math.Sqrt(variance)
	return MoranResult{
		I:        moran,
		Expected: expected,
		Variance: variance,
		Z:        zscore,
		PValue:   2 * (1 - distuv.UnitNormal.CDF(math.Abs(zscore))),
		N:        n,
		Islands:  w.Islands(),
	}, nil
}
