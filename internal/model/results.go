package model

import (
	"math"
	"strings"
)

// Component is one attribute feeding a composite index. Sign is +1 when high
// values raise the index and -1 when they lower it.
type Component struct {
	Attribute string  `json:"attribute" yaml:"attribute"`
	Sign      float64 `json:"sign" yaml:"sign"`
}

// IndexSpec is the ordered list of components of a composite index.
type IndexSpec []Component

// Validate checks that the spec names at least one attribute, has no
// duplicates and only uses signs of +1 or -1.
func (s IndexSpec) Validate() error {
	if len(s) == 0 {
		return &InputValidationError{Field: "index", Reason: "no components declared"}
	}
	seen := make(map[string]bool, len(s))
	for _, c := range s {
		if c.Attribute == "" {
			return &InputValidationError{Field: "index", Reason: "component without attribute"}
		}
		if seen[c.Attribute] {
			return &InputValidationError{Field: "index", Reason: "duplicate component " + c.Attribute}
		}
		seen[c.Attribute] = true
		if c.Sign != 1 && c.Sign != -1 {
			return &InputValidationError{Field: "index", Reason: "sign of " + c.Attribute + " must be 1 or -1"}
		}
	}
	return nil
}

// MissingPolicy selects how a composite treats records with missing components.
type MissingPolicy int

const (
	// PolicyUnset is rejected; callers must choose a policy explicitly.
	PolicyUnset MissingPolicy = iota
	// PolicyNeutralSubstitution counts a missing component as 0 and still
	// divides by the declared component count.
	PolicyNeutralSubstitution
	// PolicyExcludeRenormalize averages over present components only.
	PolicyExcludeRenormalize
)

func (p MissingPolicy) String() string {
	switch p {
	case PolicyNeutralSubstitution:
		return "neutral"
	case PolicyExcludeRenormalize:
		return "exclude"
	default:
		return "unset"
	}
}

// ParseMissingPolicy maps "neutral" and "exclude" (and their long forms) to a
// policy. Anything else is an InputValidationError.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "neutral", "neutral-substitution", "neutral_substitution":
		return PolicyNeutralSubstitution, nil
	case "exclude", "exclude-and-renormalize", "exclude_renormalize":
		return PolicyExcludeRenormalize, nil
	default:
		return PolicyUnset, &InputValidationError{Field: "policy", Reason: "unknown missing-value policy " + `"` + s + `"`}
	}
}

// CompositeIndex holds one standardized score per record, in dataset order.
// A value is NaN only when every component is missing for that record.
type CompositeIndex struct {
	ids      []string
	values   []float64
	policy   MissingPolicy
	warnings []ZeroVarianceWarning
}

// NewCompositeIndex copies ids and values into an immutable index.
func NewCompositeIndex(ids []string, values []float64, policy MissingPolicy, warnings []ZeroVarianceWarning) CompositeIndex {
	ci := CompositeIndex{
		ids:      append([]string(nil), ids...),
		values:   append([]float64(nil), values...),
		policy:   policy,
		warnings: append([]ZeroVarianceWarning(nil), warnings...),
	}
	return ci
}

// Len returns the number of scored records.
func (c CompositeIndex) Len() int { return len(c.values) }

// IDs returns the record ids in order.
func (c CompositeIndex) IDs() []string { return append([]string(nil), c.ids...) }

// Values returns a copy of the scores in order.
func (c CompositeIndex) Values() []float64 { return append([]float64(nil), c.values...) }

// At returns the i-th id and score.
func (c CompositeIndex) At(i int) (string, float64) { return c.ids[i], c.values[i] }

// Value returns the score for id.
func (c CompositeIndex) Value(id string) (float64, bool) {
	for i, v := range c.ids {
		if v == id {
			return c.values[i], true
		}
	}
	return math.NaN(), false
}

// Policy returns the missing-value policy the index was combined with.
func (c CompositeIndex) Policy() MissingPolicy { return c.policy }

// Warnings returns the zero-variance warnings raised while standardizing.
func (c CompositeIndex) Warnings() []ZeroVarianceWarning {
	return append([]ZeroVarianceWarning(nil), c.warnings...)
}

// Nullable returns the scores as nullable values, NaN becoming nil.
func (c CompositeIndex) Nullable() []*float64 {
	out := make([]*float64, len(c.values))
	for i, v := range c.values {
		if !math.IsNaN(v) {
			out[i] = Float(v)
		}
	}
	return out
}

// ModelKind identifies the test that produced an AssociationResult.
type ModelKind string

const (
	ModelPearson ModelKind = "pearson"
	ModelWLS     ModelKind = "wls"
	ModelSmoothF ModelKind = "smooth_f"
)

// AssociationResult summarizes one association test.
type AssociationResult struct {
	Estimate  float64   `json:"estimate"`
	StdError  float64   `json:"std_error"`
	Statistic float64   `json:"statistic"`
	PValue    float64   `json:"p_value"`
	RSquared  float64   `json:"r_squared"`
	N         int       `json:"n"`
	DF        float64   `json:"df"`
	ModelKind ModelKind `json:"model_kind"`
}

// Significant reports whether the p-value is below alpha.
func (r AssociationResult) Significant(alpha float64) bool { return r.PValue < alpha }

// SpatialResult summarizes the spatial tests of one variable.
type SpatialResult struct {
	MoranI           float64 `json:"moran_i"`
	MoranP           float64 `json:"moran_p"`
	ClusteringRatio  float64 `json:"clustering_ratio"`
	Clustered        bool    `json:"clustered"`
	PC1VarianceShare float64 `json:"pc1_variance_share"`
	IsLinear         bool    `json:"is_linear"`
}
