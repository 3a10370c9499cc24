package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "controlsite",
	Short: "Control-site selection for watershed impact evaluation",
	Long:  "Ingests village hierarchies and boundaries, matches treated villages to terrain-similar controls, places area-equivalent sampling circles over cropland, and reports cropping and groundwater change.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
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
