package assoc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/geoscore/internal/model"
)

// Regression is a weighted simple linear regression y = a + b·x.
type Regression struct {
	model.AssociationResult
	Intercept float64 `json:"intercept"`
	RSS       float64 `json:"rss"`
}

// Regress fits y on x by weighted least squares. The slope is reported as
// the estimate together with its standard error, t statistic, two-sided
// p-value and weighted R². w may be nil for ordinary least squares.
func Regress(x, y, w []float64) (Regression, error) {
	const method = "regression"
	if err := checkLengths(method, x, y, w); err != nil {
		return Regression{}, err
	}
	x, y, w = dropZeroWeights(x, y, w)
	n := len(x)
	if n < MinRegressionN {
		return Regression{}, &model.InsufficientDataError{Method: method, N: n, Min: MinRegressionN}
	}
	if stat.Variance(y, w) == 0 {
		return Regression{}, &model.NumericInstabilityError{Method: method, Reason: "response has zero variance"}
	}

	// Center x on its weighted mean; the slope and its error are unchanged
	// and the normal equations stay well conditioned for large magnitudes.
	xbar := stat.Mean(x, w)
	design := mat.NewDense(n, 2, nil)
	for i, v := range x {
		design.Set(i, 0, 1)
		design.Set(i, 1, v-xbar)
	}

	fit, err := solveWLS(method, design, y, w)
	if err != nil {
		return Regression{}, err
	}

	slope := fit.beta[1]
	se := math.Sqrt(fit.cov.At(1, 1))
	df := float64(fit.residualDF())
	t := slope / se
	if se == 0 {
		t = math.Copysign(math.Inf(1), slope)
	}

	return Regression{
		AssociationResult: model.AssociationResult{
			Estimate:  slope,
			StdError:  se,
			Statistic: t,
			PValue:    twoSidedT(t, df),
			RSquared:  fit.rSquared(),
			N:         n,
			DF:        df,
			ModelKind: model.ModelWLS,
		},
		Intercept: fit.beta[0] - slope*xbar,
		RSS:       fit.rss,
	}, nil
}
