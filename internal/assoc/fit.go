package assoc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/geoscore/internal/model"
)

// maxCondition bounds the condition number of XᵀWX before a fit is treated
// as singular.
const maxCondition = 1e13

// wlsFit is a weighted least-squares solution of y = Xβ.
type wlsFit struct {
	beta []float64
	cov  *mat.SymDense // σ²(XᵀWX)⁻¹
	rss  float64       // Σ w e²
	tss  float64       // Σ w (y - ȳw)²
	n    int
	p    int
}

func (f wlsFit) residualDF() int { return f.n - f.p }

func (f wlsFit) rSquared() float64 {
	if f.tss == 0 {
		return 0
	}
	return 1 - f.rss/f.tss
}

// solveWLS solves the weighted normal equations (XᵀWX)β = XᵀWy by scaling
// rows with √w and factorizing XᵀWX with a Cholesky decomposition. w may be
// nil for unit weights. Zero-weight rows must be removed by the caller.
func solveWLS(method string, x *mat.Dense, y, w []float64) (wlsFit, error) {
	n, p := x.Dims()
	if n <= p {
		return wlsFit{}, &model.InsufficientDataError{Method: method, N: n, Min: p + 1}
	}

	xs := mat.NewDense(n, p, nil)
	ys := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := 1.0
		if w != nil {
			sw = math.Sqrt(w[i])
		}
		for j := 0; j < p; j++ {
			xs.Set(i, j, sw*x.At(i, j))
		}
		ys.SetVec(i, sw*y[i])
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, xs.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return wlsFit{}, &model.NumericInstabilityError{Method: method, Reason: "design matrix is singular"}
	}
	if c := chol.Cond(); c > maxCondition || math.IsNaN(c) {
		return wlsFit{}, &model.NumericInstabilityError{Method: method, Reason: "design matrix is ill-conditioned"}
	}

	var xty mat.VecDense
	xty.MulVec(xs.T(), ys)
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return wlsFit{}, &model.NumericInstabilityError{Method: method, Reason: err.Error()}
	}

	var fitted mat.VecDense
	fitted.MulVec(xs, &beta)
	var rss float64
	for i := 0; i < n; i++ {
		e := ys.AtVec(i) - fitted.AtVec(i)
		rss += e * e
	}

	var wsum, ybar float64
	for i := 0; i < n; i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		wsum += wi
		ybar += wi * y[i]
	}
	ybar /= wsum
	var tss float64
	for i := 0; i < n; i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		d := y[i] - ybar
		tss += wi * d * d
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return wlsFit{}, &model.NumericInstabilityError{Method: method, Reason: err.Error()}
	}
	sigma2 := rss / float64(n-p)
	inv.ScaleSym(sigma2, &inv)

	return wlsFit{
		beta: mat.Col(nil, 0, &beta),
		cov:  &inv,
		rss:  rss,
		tss:  tss,
		n:    n,
		p:    p,
	}, nil
}

// twoSidedT returns the two-sided p-value of t under Student's t with df
// degrees of freedom.
func twoSidedT(t float64, df float64) float64 {
	if df <= 0 {
		return 1
	}
	if math.IsInf(t, 0) {
		return 0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - dist.CDF(math.Abs(t)))
}

// upperF returns P(F > f) for an F distribution with (d1, d2) degrees of
// freedom.
func upperF(f float64, d1, d2 float64) float64 {
	if d1 <= 0 || d2 <= 0 {
		return 1
	}
	dist := distuv.F{D1: d1, D2: d2}
	return 1 - dist.CDF(f)
}

// checkLengths validates that x, y and optional w line up.
func checkLengths(method string, x, y, w []float64) error {
	if len(x) != len(y) {
		return &model.InputValidationError{Field: method, Reason: "x and y differ in length"}
	}
	if w != nil && len(w) != len(x) {
		return &model.InputValidationError{Field: method, Reason: "weights differ in length"}
	}
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) || math.IsInf(y[i], 0) {
			return &model.InputValidationError{Field: method, Reason: "non-finite value; drop missing pairs with Complete"}
		}
		if w != nil && (w[i] < 0 || math.IsNaN(w[i]) || math.IsInf(w[i], 0)) {
			return &model.InputValidationError{Field: method, Reason: "weights must be finite and non-negative"}
		}
	}
	return nil
}

// dropZeroWeights removes observations with zero weight so degrees of
// freedom count only contributing records.
func dropZeroWeights(x, y, w []float64) ([]float64, []float64, []float64) {
	if w == nil {
		return x, y, nil
	}
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	ws := make([]float64, 0, len(w))
	for i := range x {
		if w[i] == 0 {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
		ws = append(ws, w[i])
	}
	return xs, ys, ws
}
