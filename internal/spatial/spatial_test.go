package spatial

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoscore/internal/model"
)

func gridValues(rows, cols int, f func(r, c int) float64) []float64 {
	out := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[r*cols+c] = f(r, c)
		}
	}
	return out
}

func uniformPoints(n int, seed uint64) []model.Centroid {
	rng := rand.New(rand.NewPCG(seed, seed*31+7))
	pts := make([]model.Centroid, n)
	for i := range pts {
		pts[i] = model.Centroid{Lon: rng.Float64(), Lat: rng.Float64()}
	}
	return pts
}

func expired(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	t.Cleanup(cancel)
	return ctx
}

func TestMoranI_Checkerboard(t *testing.T) {
	x := gridValues(8, 8, func(r, c int) float64 { return float64((r + c) % 2) })
	w := GridContiguity(8, 8, false).RowStandardize()

	res, err := MoranI(context.Background(), x, w)
	require.NoError(t, err)
	assert.Less(t, res.I, 0.0)
	assert.InDelta(t, -1.0, res.I, 1e-9)
	assert.Less(t, res.PValue, 0.001)
}

func TestMoranI_Blocks(t *testing.T) {
	x := gridValues(8, 8, func(r, c int) float64 {
		if c < 4 {
			return 10
		}
		return 2
	})
	w := GridContiguity(8, 8, false).RowStandardize()

	res, err := MoranI(context.Background(), x, w)
	require.NoError(t, err)
	assert.Greater(t, res.I, 0.7)
	assert.Greater(t, res.Z, 3.0)
	assert.Less(t, res.PValue, 0.001)
}

func TestMoranI_RandomPattern(t *testing.T) {
	rng := rand.New(rand.NewPCG(99, 100))
	x := gridValues(10, 10, func(int, int) float64 { return rng.NormFloat64() })
	w := GridContiguity(10, 10, true).RowStandardize()

	res, err := MoranI(context.Background(), x, w)
	require.NoError(t, err)
	assert.InDelta(t, -1.0/99, res.Expected, 1e-12)
	assert.Less(t, math.Abs(res.Z), 3.5)
	assert.Greater(t, res.Variance, 0.0)
	assert.Equal(t, 100, res.N)
}

func TestMoranI_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := MoranI(ctx, []float64{1, 2, 3}, GridContiguity(1, 3, false))
	var ide *model.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, MinMoranN, ide.Min)

	_, err = MoranI(ctx, []float64{1, 1, 1, 1}, GridContiguity(2, 2, false))
	var nie *model.NumericInstabilityError
	require.ErrorAs(t, err, &nie)

	empty, err := NewWeights(make([][]int, 4), make([][]float64, 4))
	require.NoError(t, err)
	_, err = MoranI(ctx, []float64{1, 2, 3, 4}, empty)
	require.ErrorAs(t, err, &nie)

	_, err = MoranI(ctx, []float64{1, 2, 3, 4, 5}, GridContiguity(2, 2, false))
	var ive *model.InputValidationError
	require.ErrorAs(t, err, &ive)
}

func TestGridContiguity(t *testing.T) {
	rook := GridContiguity(3, 3, false)
	queen := GridContiguity(3, 3, true)

	nb, _ := rook.Row(0)
	assert.ElementsMatch(t, []int{1, 3}, nb)
	nb, _ = queen.Row(0)
	assert.ElementsMatch(t, []int{1, 3, 4}, nb)
	nb, _ = queen.Row(4)
	assert.Len(t, nb, 8)
	assert.Equal(t, 24.0, rook.S0())
}

func TestRowStandardize(t *testing.T) {
	w, err := NewWeights([][]int{{1, 2}, {0}, {}}, [][]float64{{1, 3}, {2}, {}})
	require.NoError(t, err)
	rs := w.RowStandardize()

	_, v := rs.Row(0)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, v, 1e-12)
	_, v = rs.Row(1)
	assert.Equal(t, []float64{1}, v)
	assert.Equal(t, 1, rs.Islands())
	assert.InDelta(t, 2.0, rs.S0(), 1e-12)

	// The source is untouched.
	_, v = w.Row(0)
	assert.Equal(t, []float64{1, 3}, v)
}

func TestNewWeights_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		neighbors [][]int
		values    [][]float64
	}{
		{name: "self link", neighbors: [][]int{{0}, {}}, values: [][]float64{{1}, {}}},
		{name: "out of range", neighbors: [][]int{{5}, {}}, values: [][]float64{{1}, {}}},
		{name: "duplicate", neighbors: [][]int{{1, 1}, {}}, values: [][]float64{{1, 1}, {}}},
		{name: "negative", neighbors: [][]int{{1}, {}}, values: [][]float64{{-1}, {}}},
		{name: "ragged", neighbors: [][]int{{1}, {}}, values: [][]float64{{}, {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeights(tt.neighbors, tt.values)
			var ive *model.InputValidationError
			require.ErrorAs(t, err, &ive)
		})
	}
}

func TestFromAdjacency(t *testing.T) {
	ids := []string{"01001", "01003", "01005"}
	adj := map[string][]string{
		"01001": {"01003", "99999"},
		"01005": {"01003"},
		"99999": {"01001"},
	}
	w, err := FromAdjacency(ids, adj)
	require.NoError(t, err)

	nb, _ := w.Row(0)
	assert.Equal(t, []int{1}, nb)
	nb, _ = w.Row(1)
	assert.Equal(t, []int{0, 2}, nb)
	nb, _ = w.Row(2)
	assert.Equal(t, []int{1}, nb)

	_, err = FromAdjacency([]string{"a", "a"}, nil)
	require.Error(t, err)
}

// bruteNearest returns the k nearest others of point i, ordered by distance
// then position.
func bruteNearest(pts []model.Centroid, i, k int) []int {
	type cand struct {
		j int
		d float64
	}
	var all []cand
	for j := range pts {
		if j != i {
			all = append(all, cand{j, math.Hypot(pts[i].Lon-pts[j].Lon, pts[i].Lat-pts[j].Lat)})
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].d != all[b].d {
			return all[a].d < all[b].d
		}
		return all[a].j < all[b].j
	})
	out := make([]int, k)
	for h := range out {
		out[h] = all[h].j
	}
	return out
}

func twoClusters(n int, spread float64, seed uint64) []model.Centroid {
	rng := rand.New(rand.NewPCG(seed, seed*17+3))
	pts := make([]model.Centroid, n)
	for i := range pts {
		cx := float64(i%2) * 100
		pts[i] = model.Centroid{Lon: cx + rng.NormFloat64()*spread, Lat: rng.NormFloat64() * spread}
	}
	return pts
}

func TestKNearest_MatchesBruteForce(t *testing.T) {
	tests := []struct {
		name string
		pts  []model.Centroid
		k    int
	}{
		{"uniform", uniformPoints(300, 5), 4},
		{"clustered", twoClusters(400, 0.01, 9), 3},
		// Integer lattice: many neighbours tie on distance.
		{"lattice ties", func() []model.Centroid {
			var pts []model.Centroid
			for r := 0; r < 12; r++ {
				for c := 0; c < 12; c++ {
					pts = append(pts, model.Centroid{Lon: float64(c), Lat: float64(r)})
				}
			}
			return pts
		}(), 3},
		{"coincident", []model.Centroid{{Lon: 1, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 0}, {Lon: 2, Lat: 2}, {Lon: 5, Lat: 5}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := KNearest(context.Background(), tt.pts, tt.k)
			require.NoError(t, err)
			for i := range tt.pts {
				got, vals := w.Row(i)
				require.Equal(t, bruteNearest(tt.pts, i, tt.k), got, "point %d", i)
				assert.Len(t, vals, tt.k)
			}
		})
	}
}

func TestClusteringRatio_LargeClusteredInput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	res, err := ClusteringRatio(ctx, twoClusters(20000, 0.01, 3), 0)
	require.NoError(t, err)
	assert.True(t, res.Clustered)
	assert.Greater(t, res.Ratio, 10.0)
}

func TestClusteringRatio_ThinBoundingBox(t *testing.T) {
	pts := make([]model.Centroid, 200)
	for i := range pts {
		pts[i] = model.Centroid{Lon: float64(i), Lat: 1e-7 * float64(i%2)}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := ClusteringRatio(ctx, pts, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.ObservedMean, 1e-6)
}

func TestKNearest_Errors(t *testing.T) {
	_, err := KNearest(context.Background(), uniformPoints(3, 1), 3)
	var ide *model.InsufficientDataError
	require.ErrorAs(t, err, &ide)

	_, err = KNearest(context.Background(), uniformPoints(3, 1), 0)
	require.Error(t, err)

	_, err = KNearest(expired(t), uniformPoints(50, 1), 3)
	var te *model.TimeoutError
	require.ErrorAs(t, err, &te)
}

func TestClusteringRatio_TwoTightClusters(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 17))
	var pts []model.Centroid
	for _, center := range [][2]float64{{0, 0}, {10, 10}} {
		for i := 0; i < 50; i++ {
			pts = append(pts, model.Centroid{
				Lon: center[0] + rng.Float64(),
				Lat: center[1] + rng.Float64(),
			})
		}
	}

	res, err := ClusteringRatio(context.Background(), pts, 0)
	require.NoError(t, err)
	assert.Greater(t, res.Ratio, 1.2)
	assert.True(t, res.Clustered)
	assert.Equal(t, DefaultClusterThreshold, res.Threshold)
	assert.Equal(t, 100, res.N)
}

func TestClusteringRatio_UniformScatter(t *testing.T) {
	res, err := ClusteringRatio(context.Background(), uniformPoints(500, 3), 1.2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Ratio, 0.1)
	assert.False(t, res.Clustered)
}

func TestClusteringRatio_Errors(t *testing.T) {
	_, err := ClusteringRatio(context.Background(), uniformPoints(4, 1), 0)
	var ide *model.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, MinClusterN, ide.Min)

	same := make([]model.Centroid, 6)
	_, err = ClusteringRatio(context.Background(), same, 0)
	var nie *model.NumericInstabilityError
	require.ErrorAs(t, err, &nie)

	_, err = ClusteringRatio(expired(t), uniformPoints(20, 1), 0)
	var te *model.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "clustering ratio", te.Method)
}

func TestDetectCorridor_Line(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 9))
	pts := make([]model.Centroid, 200)
	for i := range pts {
		x := rng.Float64() * 10
		pts[i] = model.Centroid{Lon: -90 + x, Lat: 30 + 0.5*x + rng.NormFloat64()*0.05}
	}

	res, err := DetectCorridor(context.Background(), pts, 0)
	require.NoError(t, err)
	assert.Greater(t, res.PC1VarianceShare, 0.95)
	assert.True(t, res.IsLinear)
	assert.Equal(t, DefaultLinearThreshold, res.Threshold)
	assert.Len(t, res.Variances, 2)
}

func TestDetectCorridor_UniformSquare(t *testing.T) {
	res, err := DetectCorridor(context.Background(), uniformPoints(500, 21), 0.6)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.PC1VarianceShare, 0.1)
	assert.False(t, res.IsLinear)
}

func TestDetectCorridor_VerticalLine(t *testing.T) {
	pts := make([]model.Centroid, 12)
	for i := range pts {
		pts[i] = model.Centroid{Lon: -100, Lat: float64(i)}
	}
	res, err := DetectCorridor(context.Background(), pts, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.PC1VarianceShare, 1e-9)
}

func TestDetectCorridor_Errors(t *testing.T) {
	_, err := DetectCorridor(context.Background(), uniformPoints(9, 2), 0)
	var ide *model.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, MinCorridorN, ide.Min)

	_, err = DetectCorridor(context.Background(), make([]model.Centroid, 10), 0)
	var nie *model.NumericInstabilityError
	require.ErrorAs(t, err, &nie)

	_, err = DetectCorridor(expired(t), uniformPoints(10, 2), 0)
	var te *model.TimeoutError
	require.ErrorAs(t, err, &te)
}

func TestAnalyze(t *testing.T) {
	pts := make([]model.Centroid, 0, 100)
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			pts = append(pts, model.Centroid{Lon: float64(c), Lat: float64(r)})
		}
	}
	x := gridValues(10, 10, func(r, c int) float64 { return float64(c) })

	res, err := Analyze(context.Background(), x, pts, GridContiguity(10, 10, false), Options{})
	require.NoError(t, err)
	assert.Greater(t, res.MoranI, 0.5)
	assert.Equal(t, res.Moran.I, res.MoranI)
	assert.Less(t, res.MoranP, 0.05)
	assert.False(t, res.Clustered)
	assert.False(t, res.IsLinear)
	assert.InDelta(t, 0.5, res.PC1VarianceShare, 1e-9)

	_, err = Analyze(context.Background(), x[:5], pts, GridContiguity(10, 10, false), Options{})
	require.Error(t, err)
	_, err = Analyze(context.Background(), x, pts, nil, Options{})
	require.Error(t, err)
}
