package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geoscore/internal/loader"
	"github.com/sells-group/geoscore/internal/model"
)

// inputFlags are shared by every command that reads a table.
type inputFlags struct {
	path      string
	shapefile string
	sheet     string
	charset   string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "input", "", "attribute table, .csv or .xlsx (required)")
	cmd.Flags().StringVar(&f.shapefile, "shapefile", "", "boundary shapefile for centroids and contiguity (optional)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "XLSX worksheet name (default: first sheet)")
	cmd.Flags().StringVar(&f.charset, "charset", "", "CSV character encoding, e.g. latin1 (default: utf-8)")
}

// tableColumns maps the configured column names onto loader.Columns.
func tableColumns(attributes []string) loader.Columns {
	return loader.Columns{
		ID:         cfg.Loader.IDColumn,
		Lon:        cfg.Loader.LonColumn,
		Lat:        cfg.Loader.LatColumn,
		Weight:     cfg.Loader.WeightColumn,
		Attributes: attributes,
		IDWidth:    cfg.Loader.IDWidth,
	}
}

// load reads the table and, when a shapefile is given, fills missing
// centroids from it and returns its contiguity graph.
func (f inputFlags) load(attributes []string) (*model.Dataset, *loader.Geometry, error) {
	if f.path == "" {
		return nil, nil, eris.New("--input is required")
	}
	ds, err := loader.ReadTable(f.path, tableColumns(attributes), loader.TableOptions{
		Charset: f.charset,
		XLSX:    loader.XLSXOptions{SheetName: f.sheet},
	})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "load %s", f.path)
	}
	if f.shapefile == "" {
		return ds, nil, nil
	}

	geo, err := loader.ReadShapefile(f.shapefile, cfg.Loader.ShapeIDField)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "load %s", f.shapefile)
	}
	ds, err = loader.AttachCentroids(ds, geo)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("attached boundary geometry", zap.String("shapefile", f.shapefile), zap.Int("shapes", len(geo.Centroids)))
	return ds, geo, nil
}
