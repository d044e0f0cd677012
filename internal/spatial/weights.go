package spatial

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/geoscore/internal/model"
)

// Weights is a sparse spatial weight matrix: row i lists its neighbours and
// the weight of each link. Rows without neighbours are islands.
type Weights struct {
	neighbors [][]int
	values    [][]float64
}

// NewWeights validates and copies a sparse weight matrix. Links must point at
// valid rows other than their own, appear once per row and carry finite
// non-negative weights.
func NewWeights(neighbors [][]int, values [][]float64) (*Weights, error) {
	if len(neighbors) != len(values) {
		return nil, &model.InputValidationError{Field: "weights", Reason: "neighbour and value rows differ"}
	}
	n := len(neighbors)
	w := &Weights{neighbors: make([][]int, n), values: make([][]float64, n)}
	for i := range neighbors {
		if len(neighbors[i]) != len(values[i]) {
			return nil, &model.InputValidationError{Field: "weights", Reason: fmt.Sprintf("row %d: neighbour and value counts differ", i)}
		}
		seen := make(map[int]bool, len(neighbors[i]))
		for k, j := range neighbors[i] {
			v := values[i][k]
			switch {
			case j < 0 || j >= n:
				return nil, &model.InputValidationError{Field: "weights", Reason: fmt.Sprintf("row %d: neighbour %d out of range", i, j)}
			case j == i:
				return nil, &model.InputValidationError{Field: "weights", Reason: fmt.Sprintf("row %d: self link", i)}
			case seen[j]:
				return nil, &model.InputValidationError{Field: "weights", Reason: fmt.Sprintf("row %d: duplicate neighbour %d", i, j)}
			case v < 0 || math.IsNaN(v) || math.IsInf(v, 0):
				return nil, &model.InputValidationError{Field: "weights", Reason: fmt.Sprintf("row %d: invalid weight %v", i, v)}
			}
			seen[j] = true
		}
		w.neighbors[i] = append([]int(nil), neighbors[i]...)
		w.values[i] = append([]float64(nil), values[i]...)
	}
	return w, nil
}

// N returns the number of rows.
func (w *Weights) N() int { return len(w.neighbors) }

// Row returns copies of row i's neighbours and weights.
func (w *Weights) Row(i int) ([]int, []float64) {
	return append([]int(nil), w.neighbors[i]...), append([]float64(nil), w.values[i]...)
}

// S0 returns the sum of all weights.
func (w *Weights) S0() float64 {
	var s float64
	for _, row := range w.values {
		for _, v := range row {
			s += v
		}
	}
	return s
}

// Islands returns the number of rows without neighbours.
func (w *Weights) Islands() int {
	c := 0
	for _, row := range w.neighbors {
		if len(row) == 0 {
			c++
		}
	}
	return c
}

// RowStandardize returns a copy whose non-empty rows sum to 1.
func (w *Weights) RowStandardize() *Weights {
	out := &Weights{neighbors: make([][]int, len(w.neighbors)), values: make([][]float64, len(w.values))}
	for i, row := range w.values {
		out.neighbors[i] = append([]int(nil), w.neighbors[i]...)
		out.values[i] = make([]float64, len(row))
		var sum float64
		for _, v := range row {
			sum += v
		}
		if sum == 0 {
			continue
		}
		for k, v := range row {
			out.values[i][k] = v / sum
		}
	}
	return out
}

// FromAdjacency builds binary weights over ids from an adjacency list keyed by
// id. Neighbours that are not in ids (dropped or filtered records) are
// ignored; links are symmetrized so contiguity stays mutual.
func FromAdjacency(ids []string, adjacency map[string][]string) (*Weights, error) {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := pos[id]; dup {
			return nil, &model.InputValidationError{Field: "ids", Reason: fmt.Sprintf("duplicate id %q", id)}
		}
		pos[id] = i
	}

	sets := make([]map[int]bool, len(ids))
	for i := range sets {
		sets[i] = make(map[int]bool)
	}
	for id, nbrs := range adjacency {
		i, ok := pos[id]
		if !ok {
			continue
		}
		for _, nb := range nbrs {
			j, ok := pos[nb]
			if !ok || j == i {
				continue
			}
			sets[i][j] = true
			sets[j][i] = true
		}
	}

	neighbors := make([][]int, len(ids))
	values := make([][]float64, len(ids))
	for i, s := range sets {
		for j := range s {
			neighbors[i] = append(neighbors[i], j)
		}
		sort.Ints(neighbors[i])
		values[i] = make([]float64, len(neighbors[i]))
		for k := range values[i] {
			values[i][k] = 1
		}
	}
	return &Weights{neighbors: neighbors, values: values}, nil
}

// KNearest builds binary weights linking each point to its k nearest
// neighbours by Euclidean distance. The result is not symmetric.
func KNearest(ctx context.Context, points []model.Centroid, k int) (*Weights, error) {
	const method = "knn weights"
	n := len(points)
	if k < 1 {
		return nil, &model.InputValidationError{Field: "k", Reason: "must be at least 1"}
	}
	if n < k+1 {
		return nil, &model.InsufficientDataError{Method: method, N: n, Min: k + 1}
	}

	idx := newIndex(points)
	neighbors := make([][]int, n)
	values := make([][]float64, n)
	for i := range points {
		if i%checkEvery == 0 {
			if err := checkContext(ctx, method); err != nil {
				return nil, err
			}
		}
		hits := idx.nearest(i, k)
		neighbors[i] = make([]int, len(hits))
		values[i] = make([]float64, len(hits))
		for h, hit := range hits {
			neighbors[i][h] = hit.index
			values[i][h] = 1
		}
	}
	return &Weights{neighbors: neighbors, values: values}, nil
}

// GridContiguity builds binary rook (shared edge) or queen (shared edge or
// corner) weights for a rows×cols lattice numbered row-major.
func GridContiguity(rows, cols int, queen bool) *Weights {
	n := rows * cols
	w := &Weights{neighbors: make([][]int, n), values: make([][]float64, n)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					if !queen && dr != 0 && dc != 0 {
						continue
					}
					rr, cc := r+dr, c+dc
					if rr < 0 || rr >= rows || cc < 0 || cc >= cols {
						continue
					}
					w.neighbors[i] = append(w.neighbors[i], rr*cols+cc)
					w.values[i] = append(w.values[i], 1)
				}
			}
		}
	}
	return w
}
