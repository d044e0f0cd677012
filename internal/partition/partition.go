// Package partition splits a dataset into disjoint geographic partitions by
// GEOID prefix, analyzes them concurrently and merges the results.
package partition

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geoscore/internal/model"
)

// USStateFIPS is the complete set of US state and territory FIPS codes.
var USStateFIPS = []string{
	"01", "02", "04", "05", "06", "08", "09", "10", "11", "12",
	"13", "15", "16", "17", "18", "19", "20", "21", "22", "23",
	"24", "25", "26", "27", "28", "29", "30", "31", "32", "33",
	"34", "35", "36", "37", "38", "39", "40", "41", "42", "44",
	"45", "46", "47", "48", "49", "50", "51", "53", "54", "55",
	"56",                         // 50 states + DC
	"60", "66", "69", "72", "78", // territories: AS, GU, MP, PR, VI
}

var knownFIPS = func() map[string]bool {
	m := make(map[string]bool, len(USStateFIPS))
	for _, f := range USStateFIPS {
		m[f] = true
	}
	return m
}()

// GEOID prefix lengths of the Census hierarchy.
const (
	StatePrefix  = 2
	CountyPrefix = 5
)

// Partition is one disjoint slice of a dataset.
type Partition struct {
	Key     string
	Dataset *model.Dataset
}

// ByPrefix groups records by the first prefixLen characters of their id.
// Partitions are returned sorted by key; record order within a partition
// follows the source dataset.
func ByPrefix(ds *model.Dataset, prefixLen int) ([]Partition, error) {
	if prefixLen < 1 {
		return nil, &model.InputValidationError{Field: "prefix_len", Reason: "must be at least 1"}
	}

	groups := make(map[string][]int)
	for i, id := range ds.IDs() {
		if len(id) < prefixLen {
			return nil, &model.InputValidationError{Field: "id", Reason: "id " + id + " is shorter than the partition prefix"}
		}
		key := id[:prefixLen]
		groups[key] = append(groups[key], i)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Partition, 0, len(keys))
	for _, k := range keys {
		sub, err := ds.Subset(groups[k])
		if err != nil {
			return nil, eris.Wrapf(err, "partition: subset %s", k)
		}
		parts = append(parts, Partition{Key: k, Dataset: sub})
	}
	return parts, nil
}

// ByState partitions by the 2-digit state FIPS prefix. Prefixes that are not
// numeric FIPS codes are rejected; numeric codes outside the known list are
// kept with a warning.
func ByState(ds *model.Dataset) ([]Partition, error) {
	parts, err := ByPrefix(ds, StatePrefix)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if err := validateFIPS(p.Key); err != nil {
			return nil, err
		}
		if !knownFIPS[p.Key] {
			zap.L().Warn("partition: unknown state FIPS", zap.String("fips", p.Key), zap.Int("records", p.Dataset.Len()))
		}
	}
	return parts, nil
}

func validateFIPS(fips string) error {
	if len(fips) != 2 {
		return eris.Errorf("partition: invalid FIPS code %q: must be 2 digits", fips)
	}
	for _, c := range fips {
		if c < '0' || c > '9' {
			return eris.Errorf("partition: invalid FIPS code %q: must be numeric", fips)
		}
	}
	return nil
}
