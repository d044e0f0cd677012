// Package model defines the geographic records, datasets, analysis value
// objects and typed errors shared by the scoring engine.
package model

import (
	"fmt"
	"math"
	"sort"
)

// Centroid is a representative point of a geography in lon/lat degrees.
type Centroid struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// GeoRecord is one geographic unit (county, tract, PUMA) keyed by GEOID.
// A nil attribute value and an absent attribute key both mean "missing".
type GeoRecord struct {
	ID         string              `json:"id"`
	Attributes map[string]*float64 `json:"attributes"`
	Centroid   *Centroid           `json:"centroid,omitempty"`
	Weight     *float64            `json:"weight,omitempty"`
}

// Float returns a pointer to v, for building nullable attribute values.
func Float(v float64) *float64 { return &v }

// Dataset is an ordered, validated, read-only collection of GeoRecords.
type Dataset struct {
	records  []GeoRecord
	index    map[string]int
	columns  map[string]bool
	weighted bool
}

// NewDataset validates records and returns an immutable Dataset holding a deep
// copy of them. Ids must be unique and non-empty, weights non-negative and
// finite, and either every record or no record must carry a weight.
func NewDataset(records []GeoRecord) (*Dataset, error) {
	ds := &Dataset{
		records: make([]GeoRecord, 0, len(records)),
		index:   make(map[string]int, len(records)),
		columns: make(map[string]bool),
	}

	withWeight := 0
	for i, r := range records {
		if r.ID == "" {
			return nil, &InputValidationError{Field: fmt.Sprintf("record[%d].id", i), Reason: "empty id"}
		}
		if _, dup := ds.index[r.ID]; dup {
			return nil, &InputValidationError{Field: "id", Reason: fmt.Sprintf("duplicate id %q", r.ID)}
		}
		if r.Weight != nil {
			w := *r.Weight
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return nil, &InputValidationError{Field: "weight", Reason: fmt.Sprintf("record %q has invalid weight %v", r.ID, w)}
			}
			withWeight++
		}
		if r.Centroid != nil {
			c := *r.Centroid
			if !isFinite(c.Lon) || !isFinite(c.Lat) {
				return nil, &InputValidationError{Field: "centroid", Reason: fmt.Sprintf("record %q has non-finite centroid", r.ID)}
			}
		}

		attrs := make(map[string]*float64, len(r.Attributes))
		for name, v := range r.Attributes {
			if name == "" {
				return nil, &InputValidationError{Field: "attributes", Reason: fmt.Sprintf("record %q has an unnamed attribute", r.ID)}
			}
			ds.columns[name] = true
			if v == nil {
				attrs[name] = nil
				continue
			}
			if !isFinite(*v) {
				return nil, &InputValidationError{Field: name, Reason: fmt.Sprintf("record %q has non-finite value", r.ID)}
			}
			attrs[name] = Float(*v)
		}

		rec := GeoRecord{ID: r.ID, Attributes: attrs}
		if r.Centroid != nil {
			c := *r.Centroid
			rec.Centroid = &c
		}
		if r.Weight != nil {
			rec.Weight = Float(*r.Weight)
		}
		ds.index[r.ID] = i
		ds.records = append(ds.records, rec)
	}

	if withWeight != 0 && withWeight != len(records) {
		return nil, &InputValidationError{
			Field:  "weight",
			Reason: fmt.Sprintf("%d of %d records carry a weight; weights must be all or none", withWeight, len(records)),
		}
	}
	ds.weighted = withWeight > 0

	return ds, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Record returns a copy of the i-th record.
func (d *Dataset) Record(i int) GeoRecord {
	r := d.records[i]
	out := GeoRecord{ID: r.ID, Attributes: make(map[string]*float64, len(r.Attributes))}
	for k, v := range r.Attributes {
		if v != nil {
			out.Attributes[k] = Float(*v)
		} else {
			out.Attributes[k] = nil
		}
	}
	if r.Centroid != nil {
		c := *r.Centroid
		out.Centroid = &c
	}
	if r.Weight != nil {
		out.Weight = Float(*r.Weight)
	}
	return out
}

// IndexOf returns the position of id in the dataset.
func (d *Dataset) IndexOf(id string) (int, bool) {
	i, ok := d.index[id]
	return i, ok
}

// IDs returns record ids in dataset order.
func (d *Dataset) IDs() []string {
	ids := make([]string, len(d.records))
	for i, r := range d.records {
		ids[i] = r.ID
	}
	return ids
}

// HasAttribute reports whether any record declares the attribute.
func (d *Dataset) HasAttribute(name string) bool { return d.columns[name] }

// Attributes returns the declared attribute names, sorted.
func (d *Dataset) Attributes() []string {
	names := make([]string, 0, len(d.columns))
	for n := range d.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Column returns the attribute's values in dataset order; nil entries are
// missing. An attribute no record declares is a MissingAttributeError.
func (d *Dataset) Column(name string) ([]*float64, error) {
	if !d.columns[name] {
		return nil, &MissingAttributeError{Attribute: name}
	}
	col := make([]*float64, len(d.records))
	for i, r := range d.records {
		if v := r.Attributes[name]; v != nil {
			col[i] = Float(*v)
		}
	}
	return col, nil
}

// Weighted reports whether records carry weights.
func (d *Dataset) Weighted() bool { return d.weighted }

// Weights returns per-record weights in dataset order, or nil for an
// unweighted dataset.
func (d *Dataset) Weights() []float64 {
	if !d.weighted {
		return nil
	}
	w := make([]float64, len(d.records))
	for i, r := range d.records {
		w[i] = *r.Weight
	}
	return w
}

// Centroid returns the i-th record's centroid, if it has one.
func (d *Dataset) Centroid(i int) (Centroid, bool) {
	c := d.records[i].Centroid
	if c == nil {
		return Centroid{}, false
	}
	return *c, true
}

// Subset returns a new Dataset holding the records at the given positions, in
// the given order.
func (d *Dataset) Subset(positions []int) (*Dataset, error) {
	recs := make([]GeoRecord, len(positions))
	for i, p := range positions {
		if p < 0 || p >= len(d.records) {
			return nil, &InputValidationError{Field: "positions", Reason: fmt.Sprintf("position %d out of range", p)}
		}
		recs[i] = d.records[p]
	}
	sub, err := NewDataset(recs)
	if err != nil {
		return nil, err
	}
	// Columns stay declared even when no record in the subset carries them.
	for name := range d.columns {
		sub.columns[name] = true
	}
	return sub, nil
}
