package spatial

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/sells-group/geoscore/internal/model"
)

// checkEvery is how many loop iterations pass between context checks.
const checkEvery = 256

// checkContext maps an expired deadline to a TimeoutError.
func checkContext(ctx context.Context, method string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.TimeoutError{Method: method, Cause: err}
	}
	return eris.Wrapf(err, "spatial: %s", method)
}

// bounds returns the planar bounding box of the points.
func bounds(points []model.Centroid) *geom.Bounds {
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}
	return geom.NewMultiPointFlat(geom.XY, flat).Bounds()
}

// site is a centroid that remembers its position in the input.
type site struct {
	xy    [2]float64
	index int
}

func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.xy[d] - c.(site).xy[d]
}

func (s site) Dims() int { return 2 }

// Distance is squared Euclidean, as kdtree expects.
func (s site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	dx, dy := s.xy[0]-q.xy[0], s.xy[1]-q.xy[1]
	return dx*dx + dy*dy
}

// sites implements kdtree.Interface.
type sites []site

func (s sites) Index(i int) kdtree.Comparable { return s[i] }
func (s sites) Len() int                      { return len(s) }
func (s sites) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}
func (s sites) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{sites: s, dim: d}, kdtree.MedianOfRandoms(plane{sites: s, dim: d}, 100))
}

// plane orders sites along one dimension for pivoting.
type plane struct {
	sites
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool { return p.sites[i].xy[p.dim] < p.sites[j].xy[p.dim] }
func (p plane) Swap(i, j int)      { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.sites = p.sites[start:end]
	return p
}

type hit struct {
	index int
	dist  float64
}

// knnIndex answers k-nearest-neighbour queries over a fixed point set.
type knnIndex struct {
	points []site
	tree   *kdtree.Tree
}

func newIndex(points []model.Centroid) *knnIndex {
	pts := make([]site, len(points))
	for i, p := range points {
		pts[i] = site{xy: [2]float64{p.Lon, p.Lat}, index: i}
	}
	// kdtree.New reorders its input.
	return &knnIndex{points: pts, tree: kdtree.New(append(sites(nil), pts...), false)}
}

// nearest returns the k points closest to point i (excluding i), ordered by
// distance then input position.
func (x *knnIndex) nearest(i, k int) []hit {
	q := x.points[i]
	keep := kdtree.NewNKeeper(k + 2)
	x.tree.NearestSet(keep, q)
	found := x.collect(keep.Heap, i)

	// A tie at the k-th distance may leave out a lower-indexed point; fetch
	// every point at that distance.
	if len(found) > k && found[k].dist == found[k-1].dist {
		within := kdtree.NewDistKeeper(found[k-1].dist)
		x.tree.NearestSet(within, q)
		found = x.collect(within.Heap, i)
	}
	if len(found) > k {
		found = found[:k]
	}
	for h := range found {
		found[h].dist = math.Sqrt(found[h].dist)
	}
	return found
}

// collect turns kept results into hits on squared distance, dropping the
// query point itself.
func (x *knnIndex) collect(h kdtree.Heap, self int) []hit {
	out := make([]hit, 0, len(h))
	for _, c := range h {
		if c.Comparable == nil {
			continue
		}
		s := c.Comparable.(site)
		if s.index == self {
			continue
		}
		out = append(out, hit{index: s.index, dist: c.Dist})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].dist != out[b].dist {
			return out[a].dist < out[b].dist
		}
		return out[a].index < out[b].index
	})
	return out
}
