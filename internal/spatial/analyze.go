// Package spatial tests whether a variable is spatially autocorrelated and
// whether geographic centroids are clustered or strung along a corridor.
//
// Coordinates are treated as planar (lon as x, lat as y) with Euclidean
// distances. Every loop over points honours the context deadline and reports
// an expired deadline as model.TimeoutError rather than returning a partial
// result.
package spatial

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoscore/internal/model"
)

// Options carries the caller-supplied thresholds of the pattern tests.
type Options struct {
	ClusterThreshold float64
	LinearThreshold  float64
}

// Analysis bundles the three spatial tests and their flattened summary.
type Analysis struct {
	model.SpatialResult
	Moran    MoranResult    `json:"moran"`
	Cluster  ClusterResult  `json:"cluster"`
	Corridor CorridorResult `json:"corridor"`
}

// Analyze runs Moran's I of x over the row-standardized w, the
// nearest-neighbour clustering ratio and corridor detection on points.
// x, points and w must be aligned record by record.
func Analyze(ctx context.Context, x []float64, points []model.Centroid, w *Weights, opts Options) (Analysis, error) {
	if len(points) != len(x) {
		return Analysis{}, &model.InputValidationError{Field: "spatial", Reason: "values and points differ in length"}
	}
	if w == nil {
		return Analysis{}, &model.InputValidationError{Field: "spatial", Reason: "no spatial weights"}
	}

	moran, err := MoranI(ctx, x, w.RowStandardize())
	if err != nil {
		return Analysis{}, eris.Wrap(err, "spatial: moran")
	}
	cluster, err := ClusteringRatio(ctx, points, opts.ClusterThreshold)
	if err != nil {
		return Analysis{}, eris.Wrap(err, "spatial: clustering ratio")
	}
	corridor, err := DetectCorridor(ctx, points, opts.LinearThreshold)
	if err != nil {
		return Analysis{}, eris.Wrap(err, "spatial: corridor")
	}

	return Analysis{
		SpatialResult: model.SpatialResult{
			MoranI:           moran.I,
			MoranP:           moran.PValue,
			ClusteringRatio:  cluster.Ratio,
			Clustered:        cluster.Clustered,
			PC1VarianceShare: corridor.PC1VarianceShare,
			IsLinear:         corridor.IsLinear,
		},
		Moran:    moran,
		Cluster:  cluster,
		Corridor: corridor,
	}, nil
}
