// Package analysis runs a declared analysis end to end: composite index,
// classification, association with an outcome and spatial pattern tests,
// optionally repeated per geographic partition.
package analysis

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geoscore/internal/assoc"
	"github.com/sells-group/geoscore/internal/index"
	"github.com/sells-group/geoscore/internal/model"
	"github.com/sells-group/geoscore/internal/partition"
	"github.com/sells-group/geoscore/internal/spatial"
)

// Options carries run-level inputs that are not part of the definition.
type Options struct {
	// Concurrency bounds the partitions analyzed at once.
	Concurrency int
	// Adjacency is the contiguity graph keyed by GEOID, required when the
	// definition uses contiguity neighbours.
	Adjacency map[string][]string
}

// Run analyzes ds according to def. When def partitions the data, each
// partition is analyzed independently as well and attached to the report;
// failed partitions are listed under Failures.
func Run(ctx context.Context, ds *model.Dataset, def *Definition, opts Options) (*Report, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "analysis"), zap.String("analysis", def.Name))
	runID := uuid.New().String()
	log.Info("starting analysis", zap.String("run_id", runID), zap.Int("records", ds.Len()))

	rep, err := analyze(ctx, ds, def, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: %s", def.Name)
	}
	rep.RunID = runID

	if def.Partition == nil || def.Partition.PrefixLen == 0 {
		return rep, nil
	}

	parts, err := split(ds, def.Partition.PrefixLen)
	if err != nil {
		return nil, err
	}
	outs, err := partition.Run(ctx, parts, opts.Concurrency, func(ctx context.Context, p partition.Partition) (*Report, error) {
		r, err := analyze(ctx, p.Dataset, def, opts)
		if err != nil {
			return nil, err
		}
		r.RunID = runID
		r.Key = p.Key
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: %s", def.Name)
	}

	merged := partition.Merge(outs)
	rep.Partitions = merged.Results
	if len(merged.Failures) > 0 {
		rep.Failures = make(map[string]string, len(merged.Failures))
		for k, e := range merged.Failures {
			rep.Failures[k] = e.Error()
		}
	}
	log.Info("analysis complete",
		zap.String("run_id", runID),
		zap.Int("partitions", len(merged.Keys)),
		zap.Int("failed_partitions", len(merged.Failures)),
	)
	return rep, nil
}

func split(ds *model.Dataset, prefixLen int) ([]partition.Partition, error) {
	if prefixLen == partition.StatePrefix {
		return partition.ByState(ds)
	}
	return partition.ByPrefix(ds, prefixLen)
}

// analyze runs every stage over one dataset. Stages that lack the data they
// need are recorded in Skipped; any other failure aborts.
func analyze(ctx context.Context, ds *model.Dataset, def *Definition, opts Options) (*Report, error) {
	policy, err := def.Policy()
	if err != nil {
		return nil, err
	}
	rules, err := def.RuleSet()
	if err != nil {
		return nil, err
	}

	var outcome []*float64
	if def.Outcome != "" {
		if outcome, err = ds.Column(def.Outcome); err != nil {
			return nil, err
		}
	}

	ci, err := index.Build(ds, def.Index.Components, policy)
	if err != nil {
		return nil, err
	}
	labels := rules.ClassifyIndex(ci)

	rep := &Report{
		Analysis: def.Name,
		Policy:   policy.String(),
		N:        ds.Len(),
		Rows:     make([]Row, ds.Len()),
		Counts:   rules.Counts(labels),
		Summary:  summarize(ci.Values()),
		Skipped:  make(map[string]string),
	}
	composite := ci.Nullable()
	for i := range rep.Rows {
		id, _ := ci.At(i)
		rep.Rows[i] = Row{ID: id, Composite: composite[i], Label: labels[i]}
		if outcome != nil {
			rep.Rows[i].Outcome = outcome[i]
		}
	}
	for _, w := range ci.Warnings() {
		rep.Warnings = append(rep.Warnings, w.String())
		zap.L().Warn("analysis: zero-variance component", zap.String("analysis", def.Name), zap.String("attribute", w.Attribute))
	}

	if outcome != nil {
		a, err := associate(composite, outcome, ds.Weights(), def, rep.Skipped)
		if err != nil {
			return nil, err
		}
		a.Outcome = def.Outcome
		rep.Association = a
	}

	if def.Spatial != nil {
		sp, err := spatialTests(ctx, ds, ci, def.Spatial, opts.Adjacency)
		if err = skip("spatial", err, rep.Skipped); err != nil {
			return nil, err
		}
		rep.Spatial = sp
	}

	if len(rep.Skipped) == 0 {
		rep.Skipped = nil
	}
	return rep, nil
}

func associate(x, y []*float64, w []float64, def *Definition, skipped map[string]string) (*Association, error) {
	xs, ys, ws, dropped := assoc.Complete(x, y, w)
	a := &Association{Dropped: dropped}

	if r, err := assoc.Correlation(xs, ys, ws); err == nil {
		a.Correlation = &r
		a.Tests = append(a.Tests, newTest(r))
	} else if err = skip(string(model.ModelPearson), err, skipped); err != nil {
		return nil, err
	}

	if r, err := assoc.Regress(xs, ys, ws); err == nil {
		a.Regression = &r
		a.Tests = append(a.Tests, newTest(r.AssociationResult))
	} else if err = skip(string(model.ModelWLS), err, skipped); err != nil {
		return nil, err
	}

	if r, err := assoc.CompareSmooth(xs, ys, ws, def.SmoothDF); err == nil {
		a.Smooth = &r
		a.Knots = r.Knots
		a.Tests = append(a.Tests, newTest(r.AssociationResult))
	} else if err = skip(string(model.ModelSmoothF), err, skipped); err != nil {
		return nil, err
	}
	return a, nil
}

// spatialTests runs the spatial tests over records that have both a score
// and a centroid.
func spatialTests(ctx context.Context, ds *model.Dataset, ci model.CompositeIndex, sd *SpatialDef, adjacency map[string][]string) (*spatial.Analysis, error) {
	var (
		ids    []string
		x      []float64
		points []model.Centroid
	)
	for i := 0; i < ci.Len(); i++ {
		id, v := ci.At(i)
		c, ok := ds.Centroid(i)
		if !ok || math.IsNaN(v) {
			continue
		}
		ids = append(ids, id)
		x = append(x, v)
		points = append(points, c)
	}
	if len(points) == 0 {
		return nil, &model.InsufficientDataError{Method: "spatial", N: 0, Min: spatial.MinClusterN}
	}

	var (
		w   *spatial.Weights
		err error
	)
	switch sd.Neighbours {
	case NeighboursContiguity:
		if adjacency == nil {
			return nil, &model.InputValidationError{Field: "spatial.neighbours", Reason: "contiguity neighbours need boundary geometry"}
		}
		w, err = spatial.FromAdjacency(ids, adjacency)
	default:
		k := sd.K
		if k == 0 {
			k = spatial.DefaultK
		}
		w, err = spatial.KNearest(ctx, points, k)
	}
	if err != nil {
		return nil, err
	}

	res, err := spatial.Analyze(ctx, x, points, w, spatial.Options{
		ClusterThreshold: sd.ClusterThreshold,
		LinearThreshold:  sd.LinearThreshold,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// skip records err under method when it only means the data cannot support
// the method, and returns any other error unchanged.
func skip(method string, err error, skipped map[string]string) error {
	if err == nil {
		return nil
	}
	var insufficient *model.InsufficientDataError
	var unstable *model.NumericInstabilityError
	if errors.As(err, &insufficient) || errors.As(err, &unstable) {
		skipped[method] = err.Error()
		zap.L().Debug("analysis: method skipped", zap.String("method", method), zap.Error(err))
		return nil
	}
	return err
}
