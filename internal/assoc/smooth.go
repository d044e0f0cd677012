package assoc

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/geoscore/internal/model"
)

// DefaultSmoothDF is the spline degrees of freedom used when callers pass 0.
const DefaultSmoothDF = 4

// MinSmoothDF is the smallest df that differs from the linear model.
const MinSmoothDF = 2

// SmoothComparison compares a natural cubic spline fit of y on x with the
// linear fit. Estimate is the gain in R² over the linear model and Statistic
// the F statistic of the residual-sum-of-squares reduction.
type SmoothComparison struct {
	model.AssociationResult
	EDF       int       `json:"edf"`
	Knots     []float64 `json:"knots"`
	RSSLinear float64   `json:"rss_linear"`
	RSSSmooth float64   `json:"rss_smooth"`
	DFLinear  float64   `json:"df_linear"`
	DFSmooth  float64   `json:"df_smooth"`
	RSqLinear float64   `json:"r_squared_linear"`
}

// CompareSmooth fits y on a natural cubic spline basis of x with df
// non-intercept columns (knots at quantiles of x) and tests it against the
// linear model with
//
//	F = ((RSS_lin - RSS_smooth) / (df_lin - df_smooth)) / (RSS_smooth / df_smooth)
//
// where df are residual degrees of freedom. Weights apply to both fits.
func CompareSmooth(x, y, w []float64, df int) (SmoothComparison, error) {
	const method = "smooth"
	if df == 0 {
		df = DefaultSmoothDF
	}
	if df < MinSmoothDF {
		return SmoothComparison{}, &model.InputValidationError{Field: method, Reason: fmt.Sprintf("df must be at least %d", MinSmoothDF)}
	}
	if err := checkLengths(method, x, y, w); err != nil {
		return SmoothComparison{}, err
	}
	x, y, w = dropZeroWeights(x, y, w)
	n := len(x)
	minN := MinSmoothN
	if df+3 > minN {
		minN = df + 3
	}
	if n < minN {
		return SmoothComparison{}, &model.InsufficientDataError{Method: method, N: n, Min: minN}
	}

	lo, hi := floats.Min(x), floats.Max(x)
	if hi == lo {
		return SmoothComparison{}, &model.NumericInstabilityError{Method: method, Reason: "predictor has zero range"}
	}
	u := make([]float64, n)
	for i, v := range x {
		u[i] = (v - lo) / (hi - lo)
	}

	knots, err := splineKnots(u, df)
	if err != nil {
		return SmoothComparison{}, err
	}

	linear := mat.NewDense(n, 2, nil)
	for i, v := range u {
		linear.Set(i, 0, 1)
		linear.Set(i, 1, v)
	}
	linFit, err := solveWLS(method+"/linear", linear, y, w)
	if err != nil {
		return SmoothComparison{}, err
	}
	smFit, err := solveWLS(method, naturalSplineBasis(u, knots), y, w)
	if err != nil {
		return SmoothComparison{}, err
	}

	dfLin := float64(linFit.residualDF())
	dfSm := float64(smFit.residualDF())
	if smFit.rss <= 0 {
		return SmoothComparison{}, &model.NumericInstabilityError{Method: method, Reason: "smooth fit has zero residual variance"}
	}
	reduction := math.Max(0, linFit.rss-smFit.rss)
	f := (reduction / (dfLin - dfSm)) / (smFit.rss / dfSm)

	scaled := make([]float64, len(knots))
	for i, k := range knots {
		scaled[i] = lo + k*(hi-lo)
	}

	return SmoothComparison{
		AssociationResult: model.AssociationResult{
			Estimate:  smFit.rSquared() - linFit.rSquared(),
			Statistic: f,
			PValue:    upperF(f, dfLin-dfSm, dfSm),
			RSquared:  smFit.rSquared(),
			N:         n,
			DF:        dfSm,
			ModelKind: model.ModelSmoothF,
		},
		EDF:       df,
		Knots:     scaled,
		RSSLinear: linFit.rss,
		RSSSmooth: smFit.rss,
		DFLinear:  dfLin,
		DFSmooth:  dfSm,
		RSqLinear: linFit.rSquared(),
	}, nil
}

// splineKnots places df+1 knots on u (scaled to [0,1]): the two boundaries
// and df-1 interior knots at evenly spaced quantiles.
func splineKnots(u []float64, df int) ([]float64, error) {
	knots := make([]float64, 0, df+1)
	knots = append(knots, 0)
	for k := 1; k < df; k++ {
		q, err := stats.Percentile(u, 100*float64(k)/float64(df))
		if err != nil {
			return nil, &model.NumericInstabilityError{Method: "smooth", Reason: "knot placement: " + err.Error()}
		}
		knots = append(knots, q)
	}
	knots = append(knots, 1)

	for i := 1; i < len(knots); i++ {
		if knots[i] <= knots[i-1] {
			return nil, &model.InsufficientDataError{Method: "smooth knots (distinct predictor values)", N: distinct(u), Min: df + 1}
		}
	}
	return knots, nil
}

func distinct(v []float64) int {
	seen := make(map[float64]struct{}, len(v))
	for _, x := range v {
		seen[x] = struct{}{}
	}
	return len(seen)
}

// naturalSplineBasis builds the truncated-power natural cubic spline basis
// with an intercept column: 1, u, and d_k(u) - d_{K-1}(u) for k = 1..K-2 where
// d_k(u) = ((u-ξ_k)³₊ - (u-ξ_K)³₊) / (ξ_K - ξ_k).
func naturalSplineBasis(u, knots []float64) *mat.Dense {
	k := len(knots)
	last := knots[k-1]
	d := func(v float64, j int) float64 {
		return (cube(v-knots[j]) - cube(v-last)) / (last - knots[j])
	}

	basis := mat.NewDense(len(u), k, nil)
	for i, v := range u {
		basis.Set(i, 0, 1)
		basis.Set(i, 1, v)
		dLast := d(v, k-2)
		for j := 0; j < k-2; j++ {
			basis.Set(i, j+2, d(v, j)-dLast)
		}
	}
	return basis
}

func cube(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * v * v
}
