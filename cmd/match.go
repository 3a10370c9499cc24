package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/store"
)

var matchVillage string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find the terrain-matched control village for a treated village",
	Long: `Ranks the treated village's untreated siblings by how closely their
terrain ruggedness (standard deviation of slope) matches, and prints the
winner with the full ranking as JSON.

Examples:
  controlsite match --village "maharashtra pune haveli alandi"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("match"); err != nil {
			return err
		}

		env, err := initEval(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.loadElevation(); err != nil {
			return err
		}

		treated, pool, err := store.TreatedAndPool(ctx, env.Store, matchVillage)
		if err != nil {
			return eris.Wrap(err, "resolve treated village")
		}

		result, err := env.Matcher.FindControl(ctx, treated, pool)
		if err != nil {
			return eris.Wrap(err, "find control")
		}

		zap.L().Info("match complete",
			zap.String("treated", treated.ID),
			zap.String("control", result.Control.ID),
			zap.Float64("relative_diff_pct", result.RelativeDiff),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchVillage, "village", "", `treated village as "state district subdistrict village" (required)`)
	_ = matchCmd.MarkFlagRequired("village")
	rootCmd.AddCommand(matchCmd)
}
