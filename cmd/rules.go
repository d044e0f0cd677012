package main

import (
	"io"
	"math"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/geoscore/internal/analysis"
	"github.com/sells-group/geoscore/internal/classify"
)

var (
	rulesAnalysis string
	rulesValues   []float64
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the classification rules of an analysis definition",
	Long: `Prints the rules in evaluation order and, for each --value, the label it
would be assigned.

Example:
  geoscore rules --analysis vulnerability.yaml --value 0.7 --value -1.2`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		def, err := analysis.LoadDefinition(rulesAnalysis)
		if err != nil {
			return err
		}
		rs, err := def.RuleSet()
		if err != nil {
			return err
		}
		printRules(cmd.OutOrStdout(), rs, rulesValues)
		return nil
	},
}

func init() {
	rulesCmd.Flags().StringVar(&rulesAnalysis, "analysis", "", "analysis definition YAML (required)")
	rulesCmd.Flags().Float64SliceVar(&rulesValues, "value", nil, "composite score to classify (repeatable)")
	_ = rulesCmd.MarkFlagRequired("analysis")

	rootCmd.AddCommand(rulesCmd)
}

func printRules(w io.Writer, rs *classify.RuleSet, values []float64) {
	p := message.NewPrinter(language.English)

	for i, r := range rs.Rules() {
		if math.IsInf(r.Lower, -1) {
			p.Fprintf(w, "%d. %-12s otherwise\n", i+1, r.Label)
			continue
		}
		p.Fprintf(w, "%d. %-12s >= %g\n", i+1, r.Label, r.Lower)
	}
	for _, v := range values {
		label, _ := rs.Classify(v)
		p.Fprintf(w, "%g -> %s\n", v, label)
	}
}
