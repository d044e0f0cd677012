// Package classify maps continuous scores to ordered category labels.
package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/geoscore/internal/model"
)

// Rule assigns Label to values at or above Lower (inclusive).
type Rule struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Label string  `json:"label" yaml:"label"`
}

// Otherwise returns the open-ended catch-all rule every RuleSet ends with.
func Otherwise(label string) Rule {
	return Rule{Lower: math.Inf(-1), Label: label}
}

// RuleSet is a validated, ordered list of rules. Rules are evaluated from the
// highest lower bound down; the first rule whose bound is <= the value wins.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates rules and orders them for evaluation. Bounds must be
// distinct and not NaN or +Inf, labels non-empty and unique, and exactly one
// rule must be open-ended at -Inf so every value has a label.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, &model.InputValidationError{Field: "rules", Reason: "no rules"}
	}

	sorted := append([]Rule(nil), rules...)
	labels := make(map[string]bool, len(sorted))
	for _, r := range sorted {
		if r.Label == "" {
			return nil, &model.InputValidationError{Field: "rules", Reason: fmt.Sprintf("rule at %v has no label", r.Lower)}
		}
		if labels[r.Label] {
			return nil, &model.InputValidationError{Field: "rules", Reason: fmt.Sprintf("label %q is used by more than one rule", r.Label)}
		}
		labels[r.Label] = true
		if math.IsNaN(r.Lower) || math.IsInf(r.Lower, 1) {
			return nil, &model.InputValidationError{Field: "rules", Reason: fmt.Sprintf("rule %q has invalid lower bound %v", r.Label, r.Lower)}
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Lower > sorted[j].Lower })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Lower == sorted[i-1].Lower {
			return nil, &model.InputValidationError{
				Field:  "rules",
				Reason: fmt.Sprintf("rules %q and %q share lower bound %v", sorted[i-1].Label, sorted[i].Label, sorted[i].Lower),
			}
		}
	}
	if last := sorted[len(sorted)-1]; !math.IsInf(last.Lower, -1) {
		return nil, &model.InputValidationError{
			Field:  "rules",
			Reason: fmt.Sprintf("lowest rule %q starts at %v; add an open-ended rule so every value is classified", last.Label, last.Lower),
		}
	}

	return &RuleSet{rules: sorted}, nil
}

// Rules returns the rules in evaluation order.
func (s *RuleSet) Rules() []Rule { return append([]Rule(nil), s.rules...) }

// Labels returns the labels in evaluation order.
func (s *RuleSet) Labels() []string {
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Label
	}
	return out
}

// Classify returns the label for v. It reports false only for NaN.
func (s *RuleSet) Classify(v float64) (string, bool) {
	if math.IsNaN(v) {
		return "", false
	}
	for _, r := range s.rules {
		if v >= r.Lower {
			return r.Label, true
		}
	}
	// Unreachable: the last rule is open-ended.
	return s.rules[len(s.rules)-1].Label, true
}

// ClassifyIndex labels every record of ci in order. Records with a NaN score
// get an empty label.
func (s *RuleSet) ClassifyIndex(ci model.CompositeIndex) []string {
	labels := make([]string, ci.Len())
	for i := range labels {
		_, v := ci.At(i)
		labels[i], _ = s.Classify(v)
	}
	return labels
}

// LabelCount is the number of records assigned one label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Counts tallies labels in evaluation order. Empty labels are counted under
// "" at the end when present.
func (s *RuleSet) Counts(labels []string) []LabelCount {
	tally := make(map[string]int, len(s.rules)+1)
	for _, l := range labels {
		tally[l]++
	}
	out := make([]LabelCount, 0, len(s.rules)+1)
	for _, r := range s.rules {
		out = append(out, LabelCount{Label: r.Label, Count: tally[r.Label]})
	}
	if n := tally[""]; n > 0 {
		out = append(out, LabelCount{Label: "", Count: n})
	}
	return out
}
