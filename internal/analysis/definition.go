package analysis

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geoscore/internal/classify"
	"github.com/sells-group/geoscore/internal/model"
)

// Neighbour graph kinds for the spatial tests.
const (
	NeighboursKNN        = "knn"
	NeighboursContiguity = "contiguity"
)

// Definition is one analysis: which attributes form the composite index, how
// it is bucketed, what it is tested against and whether it is split by
// geography.
type Definition struct {
	Name      string        `yaml:"name"`
	Index     IndexDef      `yaml:"index"`
	Rules     []RuleDef     `yaml:"rules"`
	Outcome   string        `yaml:"outcome"`
	SmoothDF  int           `yaml:"smooth_df"`
	Spatial   *SpatialDef   `yaml:"spatial,omitempty"`
	Partition *PartitionDef `yaml:"partition,omitempty"`
}

// IndexDef declares the composite index and its missing-value policy.
type IndexDef struct {
	Policy     string          `yaml:"policy"`
	Components model.IndexSpec `yaml:"components"`
}

// RuleDef is a classification rule. A nil Lower marks the open-ended rule.
type RuleDef struct {
	Lower *float64 `yaml:"lower,omitempty"`
	Label string   `yaml:"label"`
}

// SpatialDef configures the spatial tests. Zero values take the defaults.
type SpatialDef struct {
	Neighbours       string  `yaml:"neighbours"`
	K                int     `yaml:"k"`
	ClusterThreshold float64 `yaml:"cluster_threshold"`
	LinearThreshold  float64 `yaml:"linear_threshold"`
}

// PartitionDef splits the run by GEOID prefix (2 = state, 5 = county).
type PartitionDef struct {
	PrefixLen int `yaml:"prefix_len"`
}

// Defaults fill unset numeric knobs of a Definition.
type Defaults struct {
	SmoothDF         int
	K                int
	ClusterThreshold float64
	LinearThreshold  float64
}

// LoadDefinition reads an analysis definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: read definition %s", path)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes and validates a definition. The YAML has a
// top-level "analysis" key.
func ParseDefinition(data []byte) (*Definition, error) {
	var wrapper struct {
		Analysis Definition `yaml:"analysis"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "analysis: parse definition")
	}
	def := &wrapper.Analysis
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks everything that can be checked without a dataset.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &model.InputValidationError{Field: "name", Reason: "analysis has no name"}
	}
	if _, err := d.Policy(); err != nil {
		return err
	}
	if err := d.Index.Components.Validate(); err != nil {
		return err
	}
	if _, err := d.RuleSet(); err != nil {
		return err
	}
	if d.SmoothDF < 0 {
		return &model.InputValidationError{Field: "smooth_df", Reason: "must not be negative"}
	}
	if s := d.Spatial; s != nil {
		switch s.Neighbours {
		case NeighboursKNN, NeighboursContiguity:
		default:
			return &model.InputValidationError{
				Field:  "spatial.neighbours",
				Reason: fmt.Sprintf("unknown neighbour graph %q (want %s or %s)", s.Neighbours, NeighboursKNN, NeighboursContiguity),
			}
		}
		if s.K < 0 || s.ClusterThreshold < 0 || s.LinearThreshold < 0 || s.LinearThreshold > 1 {
			return &model.InputValidationError{Field: "spatial", Reason: "k and thresholds must be non-negative and linear_threshold at most 1"}
		}
	}
	if p := d.Partition; p != nil && p.PrefixLen < 0 {
		return &model.InputValidationError{Field: "partition.prefix_len", Reason: "must not be negative"}
	}
	return nil
}

// Policy returns the declared missing-value policy. There is no default.
func (d *Definition) Policy() (model.MissingPolicy, error) {
	if strings.TrimSpace(d.Index.Policy) == "" {
		return model.PolicyUnset, &model.InputValidationError{Field: "index.policy", Reason: "missing-value policy is required (neutral or exclude)"}
	}
	return model.ParseMissingPolicy(d.Index.Policy)
}

// RuleSet builds the classifier from the declared rules.
func (d *Definition) RuleSet() (*classify.RuleSet, error) {
	rules := make([]classify.Rule, len(d.Rules))
	for i, r := range d.Rules {
		if r.Lower == nil {
			rules[i] = classify.Otherwise(r.Label)
			continue
		}
		rules[i] = classify.Rule{Lower: *r.Lower, Label: r.Label}
	}
	return classify.NewRuleSet(rules...)
}

// Attributes lists every dataset column the definition reads.
func (d *Definition) Attributes() []string {
	out := make([]string, 0, len(d.Index.Components)+1)
	for _, c := range d.Index.Components {
		out = append(out, c.Attribute)
	}
	if d.Outcome != "" {
		out = append(out, d.Outcome)
	}
	return out
}

// ApplyDefaults fills unset knobs from def.
func (d *Definition) ApplyDefaults(def Defaults) {
	if d.SmoothDF == 0 {
		d.SmoothDF = def.SmoothDF
	}
	if s := d.Spatial; s != nil {
		if s.K == 0 {
			s.K = def.K
		}
		if s.ClusterThreshold == 0 {
			s.ClusterThreshold = def.ClusterThreshold
		}
		if s.LinearThreshold == 0 {
			s.LinearThreshold = def.LinearThreshold
		}
	}
}
