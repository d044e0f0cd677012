// Package loader reads attribute tables (CSV, XLSX) and TIGER shapefiles into
// model.Datasets. Nothing downstream of this package touches a file.
package loader

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geoscore/internal/model"
)

// Columns maps table headers onto record fields.
type Columns struct {
	ID     string
	Lon    string
	Lat    string
	Weight string

	// Attributes lists the numeric columns to load. When empty, every other
	// column whose non-missing cells all parse as numbers is loaded.
	Attributes []string

	// IDWidth left-pads all-digit ids with zeros. Spreadsheets routinely
	// strip the leading zero of state FIPS 01-09.
	IDWidth int
}

// jamValues are the ACS annotation sentinels published in place of an
// estimate (e.g. -666666666 when the sample is too small).
var jamValues = map[float64]bool{
	-111111111: true,
	-222222222: true,
	-333333333: true,
	-555555555: true,
	-666666666: true,
	-888888888: true,
	-999999999: true,
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "na", "n/a", "nan", "null", "-", "(x)", "**", "***":
		return true
	}
	return false
}

// ParseValue parses a numeric cell. Missing markers and ACS jam values yield
// nil; anything else that is not a finite number is an error.
func ParseValue(cell string) (*float64, error) {
	if IsMissing(cell) {
		return nil, nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(v) {
		return nil, eris.Errorf("loader: %q is not a number", cell)
	}
	if jamValues[v] {
		return nil, nil
	}
	return model.Float(v), nil
}

// FromRows builds a Dataset from a header row followed by data rows.
func FromRows(rows [][]string, cols Columns) (*model.Dataset, error) {
	if len(rows) < 2 {
		return nil, eris.New("loader: table has no data rows")
	}
	log := zap.L().With(zap.String("component", "loader"))

	colIdx := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		colIdx[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	data := rows[1:]

	idIdx, ok := colIdx[cols.ID]
	if !ok {
		return nil, &model.InputValidationError{Field: "id", Reason: fmt.Sprintf("id column %q not in header", cols.ID)}
	}

	reserved := map[string]bool{cols.ID: true, cols.Lon: true, cols.Lat: true, cols.Weight: true}
	attrs := cols.Attributes
	if len(attrs) == 0 {
		attrs = detectNumeric(rows[0], data, reserved)
	}
	attrIdx := make([]int, len(attrs))
	for i, a := range attrs {
		idx, ok := colIdx[a]
		if !ok {
			return nil, &model.MissingAttributeError{Attribute: a}
		}
		attrIdx[i] = idx
	}

	weightIdx := -1
	if cols.Weight != "" {
		idx, ok := colIdx[cols.Weight]
		if !ok {
			return nil, &model.MissingAttributeError{Attribute: cols.Weight}
		}
		weightIdx = idx
	}

	lonIdx, hasLon := colIdx[cols.Lon]
	latIdx, hasLat := colIdx[cols.Lat]
	hasCentroid := cols.Lon != "" && cols.Lat != "" && hasLon && hasLat
	if !hasCentroid {
		log.Debug("no centroid columns in table", zap.String("lon", cols.Lon), zap.String("lat", cols.Lat))
	}

	recs := make([]model.GeoRecord, 0, len(data))
	for r, row := range data {
		line := r + 2
		id := normalizeID(cell(row, idIdx), cols.IDWidth)
		if id == "" {
			return nil, &model.InputValidationError{Field: "id", Reason: fmt.Sprintf("row %d has an empty id", line)}
		}

		rec := model.GeoRecord{ID: id, Attributes: make(map[string]*float64, len(attrs))}
		for i, a := range attrs {
			v, err := ParseValue(cell(row, attrIdx[i]))
			if err != nil {
				return nil, &model.InputValidationError{Field: a, Reason: fmt.Sprintf("row %d: %v", line, err)}
			}
			rec.Attributes[a] = v
		}

		if weightIdx >= 0 {
			w, err := ParseValue(cell(row, weightIdx))
			if err != nil {
				return nil, &model.InputValidationError{Field: cols.Weight, Reason: fmt.Sprintf("row %d: %v", line, err)}
			}
			if w == nil {
				return nil, &model.InputValidationError{Field: cols.Weight, Reason: fmt.Sprintf("row %d: missing weight", line)}
			}
			rec.Weight = w
		}

		if hasCentroid {
			c, err := parseCentroid(cell(row, lonIdx), cell(row, latIdx))
			if err != nil {
				return nil, &model.InputValidationError{Field: "centroid", Reason: fmt.Sprintf("row %d: %v", line, err)}
			}
			rec.Centroid = c
		}
		recs = append(recs, rec)
	}

	ds, err := model.NewDataset(recs)
	if err != nil {
		return nil, eris.Wrap(err, "loader: build dataset")
	}
	log.Info("loaded table",
		zap.Int("records", ds.Len()),
		zap.Int("attributes", len(attrs)),
		zap.Bool("weighted", ds.Weighted()),
	)
	return ds, nil
}

// detectNumeric returns, in header order, the non-reserved columns that hold
// at least one number and nothing but numbers and missing markers.
func detectNumeric(header []string, data [][]string, reserved map[string]bool) []string {
	var out []string
	for i, col := range header {
		name := strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if name == "" || reserved[name] {
			continue
		}
		seen := false
		numeric := true
		for _, row := range data {
			c := cell(row, i)
			if IsMissing(c) {
				continue
			}
			if _, err := ParseValue(c); err != nil {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			out = append(out, name)
		}
	}
	return out
}

func parseCentroid(lon, lat string) (*model.Centroid, error) {
	if IsMissing(lon) || IsMissing(lat) {
		return nil, nil
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return nil, eris.Errorf("loader: longitude %q is not a number", lon)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return nil, eris.Errorf("loader: latitude %q is not a number", lat)
	}
	return &model.Centroid{Lon: x, Lat: y}, nil
}

func normalizeID(id string, width int) string {
	id = strings.TrimSpace(id)
	if width <= 0 || len(id) >= width {
		return id
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return id
		}
	}
	return strings.Repeat("0", width-len(id)) + id
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// TableOptions select how a table file is decoded.
type TableOptions struct {
	Charset string      // CSV only
	XLSX    XLSXOptions // XLSX only
}

// ReadTable loads a CSV or XLSX file, choosing the reader by extension.
func ReadTable(path string, cols Columns, opts TableOptions) (*model.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(path, cols, opts.Charset)
	case ".xlsx":
		return ReadXLSX(path, cols, opts.XLSX)
	default:
		return nil, eris.Errorf("loader: unsupported table format %q", filepath.Ext(path))
	}
}
