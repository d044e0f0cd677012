// Package assoc tests the association between a composite score and another
// variable: weighted Pearson correlation, weighted least squares and a
// natural-spline comparison against the linear fit.
package assoc

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/geoscore/internal/model"
)

// Minimum sample sizes per method.
const (
	MinCorrelationN = 3
	MinRegressionN  = 10
	MinSmoothN      = 10
)

// Correlation returns the weighted Pearson correlation of x and y with a
// two-sided Student's t test on n-2 degrees of freedom. w may be nil. The
// result is symmetric in x and y.
func Correlation(x, y, w []float64) (model.AssociationResult, error) {
	const method = "correlation"
	if err := checkLengths(method, x, y, w); err != nil {
		return model.AssociationResult{}, err
	}
	x, y, w = dropZeroWeights(x, y, w)
	n := len(x)
	if n < MinCorrelationN {
		return model.AssociationResult{}, &model.InsufficientDataError{Method: method, N: n, Min: MinCorrelationN}
	}
	if stat.Variance(x, w) == 0 || stat.Variance(y, w) == 0 {
		return model.AssociationResult{}, &model.NumericInstabilityError{Method: method, Reason: "zero variance input"}
	}

	r := stat.Correlation(x, y, w)
	r = math.Max(-1, math.Min(1, r))

	df := float64(n - 2)
	res := model.AssociationResult{
		Estimate:  r,
		RSquared:  r * r,
		N:         n,
		DF:        df,
		ModelKind: model.ModelPearson,
	}
	if df == 0 {
		res.PValue = 1
		return res, nil
	}
	res.StdError = math.Sqrt((1 - r*r) / df)
	if 1-r*r == 0 {
		res.Statistic = math.Copysign(math.Inf(1), r)
	} else {
		res.Statistic = r * math.Sqrt(df/(1-r*r))
	}
	res.PValue = twoSidedT(res.Statistic, df)
	return res, nil
}

// Complete drops the records where x or y is missing and returns the paired
// values, their weights (nil when w is nil) and the number of dropped records.
func Complete(x, y []*float64, w []float64) ([]float64, []float64, []float64, int) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	var ws []float64
	if w != nil {
		ws = make([]float64, 0, n)
	}
	dropped := 0
	for i := 0; i < n; i++ {
		if x[i] == nil || y[i] == nil || math.IsNaN(*x[i]) || math.IsNaN(*y[i]) {
			dropped++
			continue
		}
		xs = append(xs, *x[i])
		ys = append(ys, *y[i])
		if w != nil {
			ws = append(ws, w[i])
		}
	}
	return xs, ys, ws, dropped
}
