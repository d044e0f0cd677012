package spatial

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/geoscore/internal/model"
)

// CorridorResult describes how much of the standardized centroid spread lies
// along the first principal component.
type CorridorResult struct {
	PC1VarianceShare float64    `json:"pc1_variance_share"`
	Threshold        float64    `json:"threshold"`
	IsLinear         bool       `json:"is_linear"`
	Direction        [2]float64 `json:"direction"`
	Variances        []float64  `json:"variances"`
	N                int        `json:"n"`
}

// DetectCorridor standardizes lon and lat, runs PCA and flags a linear
// pattern when PC1's share of variance exceeds threshold (0 means the 0.60
// default). A coordinate with zero spread contributes a zero column.
func DetectCorridor(ctx context.Context, points []model.Centroid, threshold float64) (CorridorResult, error) {
	const method = "corridor"
	if threshold == 0 {
		threshold = DefaultLinearThreshold
	}
	n := len(points)
	if n < MinCorridorN {
		return CorridorResult{}, &model.InsufficientDataError{Method: method, N: n, Min: MinCorridorN}
	}
	if err := checkContext(ctx, method); err != nil {
		return CorridorResult{}, err
	}

	lon := make([]float64, n)
	lat := make([]float64, n)
	for i, p := range points {
		lon[i], lat[i] = p.Lon, p.Lat
	}
	zLon, okLon := zscores(lon)
	zLat, okLat := zscores(lat)
	if !okLon && !okLat {
		return CorridorResult{}, &model.NumericInstabilityError{Method: method, Reason: "all centroids coincide"}
	}

	data := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		data.Set(i, 0, zLon[i])
		data.Set(i, 1, zLat[i])
	}
	if err := checkContext(ctx, method); err != nil {
		return CorridorResult{}, err
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return CorridorResult{}, &model.NumericInstabilityError{Method: method, Reason: "principal component decomposition failed"}
	}
	vars := pc.VarsTo(nil)
	total := floats.Sum(vars)
	if !(total > 0) {
		return CorridorResult{}, &model.NumericInstabilityError{Method: method, Reason: "zero total variance"}
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	share := vars[0] / total
	return CorridorResult{
		PC1VarianceShare: share,
		Threshold:        threshold,
		IsLinear:         share > threshold,
		Direction:        [2]float64{vecs.At(0, 0), vecs.At(1, 0)},
		Variances:        vars,
		N:                n,
	}, nil
}

// zscores standardizes v; a zero-spread input yields zeros and false.
func zscores(v []float64) ([]float64, bool) {
	mean, sd := stat.MeanStdDev(v, nil)
	out := make([]float64, len(v))
	if !(sd > 0) {
		return out, false
	}
	for i, x := range v {
		out[i] = (x - mean) / sd
	}
	return out, true
}
