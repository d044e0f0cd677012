package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geoscore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geoscore",
	Short: "Composite index scoring and spatial analysis for Census geographies",
	Long: `Builds a composite index from standardized attributes of Census geographies,
buckets it with ordered threshold rules, tests its association with an outcome
(linear and smoothed) and tests whether it is spatially clustered or laid out
along a corridor.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
