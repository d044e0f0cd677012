// Package index standardizes geographic attributes and combines them into
// composite scores.
package index

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/geoscore/internal/model"
)

// Standardized is the z-score form of one attribute column.
type Standardized struct {
	Values       []*float64
	Mean         float64
	StdDev       float64
	ZeroVariance bool
}

// Standardize converts the non-null entries of values to weighted z-scores.
// Weights are rescaled to sum to the number of present entries so the
// standard deviation uses an n-1 denominator whatever their scale. A nil
// weights slice means unit weights. When the weighted standard deviation is
// zero every present entry becomes 0 and ZeroVariance is set.
func Standardize(values []*float64, weights []float64) (Standardized, error) {
	if weights != nil && len(weights) != len(values) {
		return Standardized{}, &model.InputValidationError{Field: "weights", Reason: "length differs from values"}
	}

	xs := make([]float64, 0, len(values))
	var ws []float64
	if weights != nil {
		ws = make([]float64, 0, len(values))
	}
	var wsum float64
	for i, v := range values {
		if v == nil {
			continue
		}
		if weights != nil {
			if weights[i] == 0 {
				continue
			}
			ws = append(ws, weights[i])
			wsum += weights[i]
		}
		xs = append(xs, *v)
	}

	out := Standardized{Values: make([]*float64, len(values))}
	if len(xs) == 0 {
		return out, &model.InsufficientDataError{Method: "standardize", N: 0, Min: 1}
	}
	if ws != nil {
		scale := float64(len(xs)) / wsum
		for i := range ws {
			ws[i] *= scale
		}
	}

	mean := stat.Mean(xs, ws)
	sd := 0.0
	if len(xs) > 1 {
		_, sd = stat.MeanStdDev(xs, ws)
	}
	out.Mean = mean
	out.StdDev = sd
	out.ZeroVariance = !(sd > 0) || math.IsNaN(sd)

	for i, v := range values {
		if v == nil {
			continue
		}
		if out.ZeroVariance {
			out.Values[i] = model.Float(0)
			continue
		}
		out.Values[i] = model.Float((*v - mean) / sd)
	}
	return out, nil
}

// Combine averages signed component z-scores per record under the given
// missing-value policy. components[j][i] is the j-th component of record i.
// A record whose components are all missing scores NaN under either policy.
func Combine(components [][]*float64, signs []float64, policy model.MissingPolicy) ([]float64, error) {
	if policy != model.PolicyNeutralSubstitution && policy != model.PolicyExcludeRenormalize {
		return nil, &model.InputValidationError{Field: "policy", Reason: "a missing-value policy must be chosen explicitly"}
	}
	if len(components) == 0 {
		return nil, &model.InputValidationError{Field: "components", Reason: "no components"}
	}
	if signs != nil && len(signs) != len(components) {
		return nil, &model.InputValidationError{Field: "signs", Reason: "length differs from components"}
	}

	n := len(components[0])
	for _, c := range components {
		if len(c) != n {
			return nil, &model.InputValidationError{Field: "components", Reason: "ragged component columns"}
		}
	}

	declared := float64(len(components))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		present := 0
		for j, c := range components {
			if c[i] == nil {
				continue
			}
			sign := 1.0
			if signs != nil {
				sign = signs[j]
			}
			sum += sign * *c[i]
			present++
		}
		switch {
		case present == 0:
			out[i] = math.NaN()
		case policy == model.PolicyNeutralSubstitution:
			out[i] = sum / declared
		default:
			out[i] = sum / float64(present)
		}
	}
	return out, nil
}

// Build standardizes every attribute named by spec, using the dataset's
// weights, and combines them into a CompositeIndex. Zero-variance attributes
// are zero-filled and reported as warnings on the returned index.
func Build(ds *model.Dataset, spec model.IndexSpec, policy model.MissingPolicy) (model.CompositeIndex, error) {
	if err := spec.Validate(); err != nil {
		return model.CompositeIndex{}, err
	}
	if policy != model.PolicyNeutralSubstitution && policy != model.PolicyExcludeRenormalize {
		return model.CompositeIndex{}, &model.InputValidationError{Field: "policy", Reason: "a missing-value policy must be chosen explicitly"}
	}

	// Resolve every column first so a missing one fails before any work.
	cols := make([][]*float64, len(spec))
	for j, c := range spec {
		col, err := ds.Column(c.Attribute)
		if err != nil {
			return model.CompositeIndex{}, err
		}
		cols[j] = col
	}

	weights := ds.Weights()
	zs := make([][]*float64, len(spec))
	signs := make([]float64, len(spec))
	var warnings []model.ZeroVarianceWarning
	for j, c := range spec {
		st, err := Standardize(cols[j], weights)
		if err != nil {
			return model.CompositeIndex{}, eris.Wrapf(err, "index: standardize %s", c.Attribute)
		}
		if st.ZeroVariance {
			warnings = append(warnings, model.ZeroVarianceWarning{Attribute: c.Attribute})
		}
		zs[j] = st.Values
		signs[j] = c.Sign
	}

	values, err := Combine(zs, signs, policy)
	if err != nil {
		return model.CompositeIndex{}, eris.Wrap(err, "index: combine")
	}
	return model.NewCompositeIndex(ds.IDs(), values, policy, warnings), nil
}
