package spatial

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/sells-group/geoscore/internal/model"
)

// Defaults for the pattern tests.
const (
	DefaultClusterThreshold = 1.2
	DefaultLinearThreshold  = 0.60
	DefaultK                = 6
	MinClusterN             = 5
	MinCorridorN            = 10
)

// ClusterResult compares the mean observed nearest-neighbour distance with
// the distance expected under complete spatial randomness in the bounding box.
type ClusterResult struct {
	ObservedMean float64 `json:"observed_mean"`
	ExpectedMean float64 `json:"expected_mean"`
	Ratio        float64 `json:"ratio"`
	Threshold    float64 `json:"threshold"`
	Clustered    bool    `json:"clustered"`
	Area         float64 `json:"area"`
	N            int     `json:"n"`
}

// ClusteringRatio computes expected/observed mean nearest-neighbour distance,
// with expected = 0.5·√(area/n) for a Poisson process of equal density over
// the points' bounding box. A ratio above threshold (0 means the 1.2
// default) flags clustering.
func ClusteringRatio(ctx context.Context, points []model.Centroid, threshold float64) (ClusterResult, error) {
	const method = "clustering ratio"
	if threshold == 0 {
		threshold = DefaultClusterThreshold
	}
	n := len(points)
	if n < MinClusterN {
		return ClusterResult{}, &model.InsufficientDataError{Method: method, N: n, Min: MinClusterN}
	}

	b := bounds(points)
	area := (b.Max(0) - b.Min(0)) * (b.Max(1) - b.Min(1))
	if !(area > 0) {
		return ClusterResult{}, &model.NumericInstabilityError{Method: method, Reason: "bounding box has zero area"}
	}

	idx := newIndex(points)
	dists := make([]float64, n)
	for i := range points {
		if i%checkEvery == 0 {
			if err := checkContext(ctx, method); err != nil {
				return ClusterResult{}, err
			}
		}
		dists[i] = idx.nearest(i, 1)[0].dist
	}

	observed, err := stats.Mean(dists)
	if err != nil {
		return ClusterResult{}, &model.NumericInstabilityError{Method: method, Reason: err.Error()}
	}
	if observed == 0 {
		return ClusterResult{}, &model.NumericInstabilityError{Method: method, Reason: "every point has a coincident neighbour"}
	}

	expected := 0.5 * math.Sqrt(area/float64(n))
	ratio := expected / observed
	return ClusterResult{
		ObservedMean: observed,
		ExpectedMean: expected,
		Ratio:        ratio,
		Threshold:    threshold,
		Clustered:    ratio > threshold,
		Area:         area,
		N:            n,
	}, nil
}
