package loader

import (
	"math"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/geoscore/internal/model"
)

// vertexPrecision is the number of decimal degrees kept when matching shared
// vertices between polygons (~1cm at the equator).
const vertexPrecision = 1e7

// Geometry holds what the engine needs from a boundary file: one centroid per
// geography and the queen-contiguity adjacency between geographies.
type Geometry struct {
	Centroids map[string]model.Centroid
	Adjacency map[string][]string
}

// ReadShapefile reads polygon boundaries (e.g. TIGER/Line tl_*_county.shp)
// keyed by idField and derives area-weighted centroids and queen contiguity.
// Two polygons are neighbours when they share at least one vertex.
func ReadShapefile(path, idField string) (*Geometry, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idIdx := -1
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), idField) {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, &model.MissingAttributeError{Attribute: idField}
	}

	g := &Geometry{
		Centroids: make(map[string]model.Centroid),
		Adjacency: make(map[string][]string),
	}
	vertices := make(map[[2]int64][]string)
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		if id == "" || shape == nil {
			skipped++
			continue
		}
		if _, dup := g.Centroids[id]; dup {
			return nil, &model.InputValidationError{Field: idField, Reason: "duplicate shape id " + id}
		}

		switch s := shape.(type) {
		case *shp.Polygon:
			mp, err := polygonToMultiPolygon(s)
			if err != nil {
				return nil, eris.Wrapf(err, "loader: shape %s", id)
			}
			c := xy.MultiPolygonCentroid(mp)
			g.Centroids[id] = model.Centroid{Lon: c.X(), Lat: c.Y()}
			for _, p := range s.Points {
				key := vertexKey(p)
				ids := vertices[key]
				if len(ids) == 0 || ids[len(ids)-1] != id {
					vertices[key] = append(ids, id)
				}
			}
		case *shp.Point:
			g.Centroids[id] = model.Centroid{Lon: s.X, Lat: s.Y}
		default:
			skipped++
		}
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "loader: read shapefile %s", path)
	}

	links := make(map[string]map[string]bool)
	for _, ids := range vertices {
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				if ids[i] == ids[j] {
					continue
				}
				link(links, ids[i], ids[j])
				link(links, ids[j], ids[i])
			}
		}
	}
	for id := range g.Centroids {
		nbrs := make([]string, 0, len(links[id]))
		for n := range links[id] {
			nbrs = append(nbrs, n)
		}
		sort.Strings(nbrs)
		g.Adjacency[id] = nbrs
	}

	if skipped > 0 {
		zap.L().Debug("loader: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("loader: read shapefile", zap.String("path", path), zap.Int("shapes", len(g.Centroids)))
	return g, nil
}

func link(links map[string]map[string]bool, a, b string) {
	if links[a] == nil {
		links[a] = make(map[string]bool)
	}
	links[a][b] = true
}

func vertexKey(p shp.Point) [2]int64 {
	return [2]int64{int64(math.Round(p.X * vertexPrecision)), int64(math.Round(p.Y * vertexPrecision))}
}

// polygonToMultiPolygon groups shapefile rings into polygons. Shells are
// clockwise; each counter-clockwise ring is a hole of the preceding shell.
func polygonToMultiPolygon(p *shp.Polygon) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	var cur *geom.Polygon
	for i := range p.Parts {
		start := int(p.Parts[i])
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}
		if end-start < 4 {
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if cur == nil || !xy.IsRingCounterClockwise(geom.XY, flat) {
			if cur != nil {
				if err := mp.Push(cur); err != nil {
					return nil, err
				}
			}
			cur = geom.NewPolygon(geom.XY)
		}
		if err := cur.Push(ring); err != nil {
			return nil, err
		}
	}
	if cur == nil {
		return nil, eris.New("loader: polygon has no valid rings")
	}
	if err := mp.Push(cur); err != nil {
		return nil, err
	}
	return mp, nil
}

// AttachCentroids returns a copy of ds in which records lacking a centroid
// take the one from g. Records already carrying a centroid keep it.
func AttachCentroids(ds *model.Dataset, g *Geometry) (*model.Dataset, error) {
	recs := make([]model.GeoRecord, ds.Len())
	var attached, unmatched int
	for i := range recs {
		r := ds.Record(i)
		if r.Centroid == nil {
			if c, ok := g.Centroids[r.ID]; ok {
				r.Centroid = &c
				attached++
			} else {
				unmatched++
			}
		}
		recs[i] = r
	}
	if unmatched > 0 {
		zap.L().Warn("loader: records without boundary geometry", zap.Int("unmatched", unmatched))
	}
	zap.L().Debug("loader: attached centroids", zap.Int("attached", attached))

	out, err := model.NewDataset(recs)
	if err != nil {
		return nil, eris.Wrap(err, "loader: attach centroids")
	}
	return out, nil
}
