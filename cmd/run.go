package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/geoscore/internal/analysis"
)

var (
	runInput    inputFlags
	runAnalysis string
	runRows     string
	runReport   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an analysis definition over an attribute table",
	Long: `Loads the attribute table, builds the composite index declared in the
analysis definition, classifies every geography and runs the association and
spatial tests.

Examples:
  # County table with centroid columns
  geoscore run --input acs_county.csv --analysis vulnerability.yaml --rows scores.csv

  # Tract table, centroids and contiguity from TIGER boundaries
  geoscore run --input tracts.xlsx --shapefile tl_2022_06_tract.shp \
    --analysis access.yaml --report report.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Run.Timeout())
		defer cancel()

		def, err := analysis.LoadDefinition(runAnalysis)
		if err != nil {
			return err
		}
		def.ApplyDefaults(analysis.Defaults{
			SmoothDF:         cfg.Smooth.DF,
			K:                cfg.Spatial.K,
			ClusterThreshold: cfg.Spatial.ClusterThreshold,
			LinearThreshold:  cfg.Spatial.LinearThreshold,
		})

		ds, geo, err := runInput.load(def.Attributes())
		if err != nil {
			return err
		}

		opts := analysis.Options{Concurrency: cfg.Run.Concurrency}
		if geo != nil {
			opts.Adjacency = geo.Adjacency
		}
		rep, err := analysis.Run(ctx, ds, def, opts)
		if err != nil {
			return err
		}

		if runRows != "" {
			if err := writeRowsFile(runRows, rep); err != nil {
				return err
			}
			zap.L().Info("wrote rows", zap.String("path", runRows), zap.Int("rows", len(rep.Rows)))
		}
		if runReport != "" {
			if err := writeReportFile(runReport, rep); err != nil {
				return err
			}
			zap.L().Info("wrote report", zap.String("path", runReport))
		}

		printSummary(cmd.OutOrStdout(), rep)
		return nil
	},
}

func init() {
	runInput.register(runCmd)
	runCmd.Flags().StringVar(&runAnalysis, "analysis", "", "analysis definition YAML (required)")
	runCmd.Flags().StringVar(&runRows, "rows", "", "write one row per geography as CSV")
	runCmd.Flags().StringVar(&runReport, "report", "", "write the full report as JSON")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("analysis")

	rootCmd.AddCommand(runCmd)
}

func writeRowsFile(path string, rep *analysis.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "run: create %s", path)
	}
	if err := writeRows(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "run: close %s", path)
}

// writeRows writes id, composite, label and (when tested) outcome. Missing
// values are empty cells.
func writeRows(w io.Writer, rep *analysis.Report) error {
	withOutcome := rep.Association != nil
	cw := csv.NewWriter(w)

	header := []string{"id", "composite", "label"}
	if withOutcome {
		header = append(header, rep.Association.Outcome)
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "run: write rows header")
	}
	for _, r := range rep.Rows {
		rec := []string{r.ID, formatFloat(r.Composite), r.Label}
		if withOutcome {
			rec = append(rec, formatFloat(r.Outcome))
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "run: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "run: flush rows")
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func writeReportFile(path string, rep *analysis.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return eris.Wrap(err, "run: encode report")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "run: write %s", path)
}

func printSummary(w io.Writer, rep *analysis.Report) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Analysis %s (run %s, %s policy)\n", rep.Analysis, rep.RunID, rep.Policy)
	p.Fprintf(w, "  Geographies: %d\n", rep.N)
	if s := rep.Summary; s != nil {
		p.Fprintf(w, "  Composite:   mean %.3f  median %.3f  range [%.3f, %.3f]  missing %d\n", s.Mean, s.Median, s.Min, s.Max, s.Missing)
	}
	for _, c := range rep.Counts {
		label := c.Label
		if label == "" {
			label = "(unscored)"
		}
		p.Fprintf(w, "    %-12s %8d\n", label, c.Count)
	}
	for _, warning := range rep.Warnings {
		p.Fprintf(w, "  Warning: %s\n", warning)
	}

	if a := rep.Association; a != nil {
		p.Fprintf(w, "  Association with %s (%d dropped):\n", a.Outcome, a.Dropped)
		for _, t := range a.Tests {
			p.Fprintf(w, "    %-9s estimate %8.4f  p %.4g  R² %.3f  n %d\n", t.Kind, t.Estimate, t.PValue, t.RSquared, t.N)
		}
	}
	if s := rep.Spatial; s != nil {
		p.Fprintf(w, "  Moran's I:   %.4f (p %.4g)\n", s.MoranI, s.MoranP)
		p.Fprintf(w, "  Clustering:  ratio %.3f, clustered %t\n", s.ClusteringRatio, s.Clustered)
		p.Fprintf(w, "  Corridor:    PC1 share %.3f, linear %t\n", s.PC1VarianceShare, s.IsLinear)
	}

	for _, method := range sortedKeys(rep.Skipped) {
		p.Fprintf(w, "  Skipped %s: %s\n", method, rep.Skipped[method])
	}
	if len(rep.Partitions) > 0 {
		p.Fprintf(w, "  Partitions:  %d analyzed, %d failed\n", len(rep.Partitions), len(rep.Failures))
	}
	for _, key := range sortedKeys(rep.Failures) {
		p.Fprintf(w, "    %s: %s\n", key, rep.Failures[key])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
