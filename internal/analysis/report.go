package analysis

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/sells-group/geoscore/internal/assoc"
	"github.com/sells-group/geoscore/internal/classify"
	"github.com/sells-group/geoscore/internal/model"
	"github.com/sells-group/geoscore/internal/spatial"
)

// Report is the result of one analysis over one dataset or partition.
type Report struct {
	RunID       string                `json:"run_id"`
	Analysis    string                `json:"analysis"`
	Key         string                `json:"key,omitempty"`
	Policy      string                `json:"policy"`
	N           int                   `json:"n"`
	Rows        []Row                 `json:"rows"`
	Counts      []classify.LabelCount `json:"counts"`
	Summary     *Summary              `json:"summary,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
	Association *Association          `json:"association,omitempty"`
	Spatial     *spatial.Analysis     `json:"spatial,omitempty"`

	// Skipped maps a method to the reason it produced no result, e.g. a
	// partition too small for the smooth comparison.
	Skipped map[string]string `json:"skipped,omitempty"`

	Partitions []*Report         `json:"partitions,omitempty"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Row is one geography of the exported table.
type Row struct {
	ID        string   `json:"id"`
	Composite *float64 `json:"composite"`
	Label     string   `json:"label"`
	Outcome   *float64 `json:"outcome,omitempty"`
}

// Summary describes the distribution of the composite index.
type Summary struct {
	N       int      `json:"n"`
	Missing int      `json:"missing"`
	Mean    float64  `json:"mean"`
	Median  float64  `json:"median"`
	StdDev  *float64 `json:"std_dev,omitempty"`
	Min     float64  `json:"min"`
	Q1      float64  `json:"q1"`
	Q3      float64  `json:"q3"`
	Max     float64  `json:"max"`
}

// Association holds the tests of the composite index against the outcome.
type Association struct {
	Outcome string    `json:"outcome"`
	Dropped int       `json:"dropped"`
	Tests   []Test    `json:"tests"`
	Knots   []float64 `json:"knots,omitempty"`

	Correlation *model.AssociationResult `json:"-"`
	Regression  *assoc.Regression        `json:"-"`
	Smooth      *assoc.SmoothComparison  `json:"-"`
}

// Test is the tabular form of an AssociationResult. A perfect fit has an
// infinite statistic, which is exported as null.
type Test struct {
	Kind      model.ModelKind `json:"kind"`
	Estimate  float64         `json:"estimate"`
	StdError  float64         `json:"std_error"`
	Statistic *float64        `json:"statistic"`
	PValue    float64         `json:"p_value"`
	RSquared  float64         `json:"r_squared"`
	N         int             `json:"n"`
	DF        float64         `json:"df"`
}

func newTest(r model.AssociationResult) Test {
	t := Test{
		Kind:     r.ModelKind,
		Estimate: r.Estimate,
		StdError: r.StdError,
		PValue:   r.PValue,
		RSquared: r.RSquared,
		N:        r.N,
		DF:       r.DF,
	}
	if !math.IsInf(r.Statistic, 0) && !math.IsNaN(r.Statistic) {
		t.Statistic = model.Float(r.Statistic)
	}
	return t
}

// summarize returns nil when no record has a score.
func summarize(values []float64) *Summary {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil
	}

	s := &Summary{N: len(finite), Missing: len(values) - len(finite)}
	s.Mean, _ = stats.Mean(finite)
	s.Median, _ = stats.Median(finite)
	s.Min, _ = stats.Min(finite)
	s.Max, _ = stats.Max(finite)
	s.Q1, s.Q3 = s.Median, s.Median
	if len(finite) > 1 {
		if q, err := stats.Quartile(finite); err == nil {
			s.Q1, s.Q3 = q.Q1, q.Q3
		}
		if sd, err := stats.StandardDeviationSample(finite); err == nil {
			s.StdDev = model.Float(sd)
		}
	}
	return s
}
