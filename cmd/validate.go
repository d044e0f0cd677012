package main

import (
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/geoscore/internal/model"
)

var (
	validateInput      inputFlags
	validateAttributes []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load an attribute table and report what it contains",
	Long: `Loads the attribute table the same way run does and prints the number of
geographies, the attributes found and how many values each one is missing.
With no --attributes every numeric column is loaded.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ds, _, err := validateInput.load(validateAttributes)
		if err != nil {
			return err
		}
		return printDataset(cmd.OutOrStdout(), ds)
	},
}

func init() {
	validateInput.register(validateCmd)
	validateCmd.Flags().StringSliceVar(&validateAttributes, "attributes", nil, "attribute columns to load (default: every numeric column)")
	_ = validateCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(validateCmd)
}

func printDataset(w io.Writer, ds *model.Dataset) error {
	p := message.NewPrinter(language.English)

	centroids := 0
	for i := range ds.Len() {
		if _, ok := ds.Centroid(i); ok {
			centroids++
		}
	}

	p.Fprintf(w, "Records:    %d\n", ds.Len())
	p.Fprintf(w, "Weighted:   %t\n", ds.Weighted())
	p.Fprintf(w, "Centroids:  %d\n", centroids)
	p.Fprintf(w, "Attributes: %d\n", len(ds.Attributes()))
	for _, name := range ds.Attributes() {
		col, err := ds.Column(name)
		if err != nil {
			return err
		}
		missing := 0
		for _, v := range col {
			if v == nil {
				missing++
			}
		}
		p.Fprintf(w, "  %-24s missing %d\n", name, missing)
	}
	return nil
}
