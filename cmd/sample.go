package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/matcher"
	"github.com/basin-labs/controlsite/internal/sampler"
	"github.com/basin-labs/controlsite/internal/store"
)

var (
	sampleVillage string
	sampleControl string
	sampleCircles int
)

// sampleOutput is the JSON printed by the sample command. Match is
// absent when the control was named explicitly.
type sampleOutput struct {
	Village string               `json:"village"`
	Match   *matcher.MatchResult `json:"match,omitempty"`
	Sample  *sampler.Result      `json:"sample"`
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Place area-equivalent sampling circles in the control village",
	Long: `Finds the control village for a treated village (or takes one named
with --control), then places cropland-masked circles in it whose
combined area equals the treated polygon's area.

Examples:
  controlsite sample --village "maharashtra pune haveli alandi"
  controlsite sample --village "maharashtra pune haveli alandi" --control "maharashtra pune haveli bhoom" --circles 20`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sample"); err != nil {
			return err
		}
		if sampleCircles > 0 {
			cfg.Sample.Circles = sampleCircles
		}

		env, err := initEval(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.loadLandcover(); err != nil {
			return err
		}

		out := sampleOutput{Village: sampleVillage}

		if sampleControl != "" {
			treated, err := store.VillageRegion(ctx, env.Store, sampleVillage)
			if err != nil {
				return eris.Wrap(err, "resolve treated village")
			}
			control, err := store.VillageRegion(ctx, env.Store, sampleControl)
			if err != nil {
				return eris.Wrap(err, "resolve control village")
			}
			out.Sample, err = env.Sampler.GenerateEquivalentCircles(ctx, treated.Geom, control)
			if err != nil {
				return eris.Wrap(err, "generate circles")
			}
		} else {
			if err := env.loadElevation(); err != nil {
				return err
			}
			treated, pool, err := store.TreatedAndPool(ctx, env.Store, sampleVillage)
			if err != nil {
				return eris.Wrap(err, "resolve treated village")
			}
			out.Match, err = env.Matcher.FindControl(ctx, treated, pool)
			if err != nil {
				return eris.Wrap(err, "find control")
			}
			out.Sample, err = env.Sampler.GenerateEquivalentCircles(ctx, treated.Geom, out.Match.Control)
			if err != nil {
				return eris.Wrap(err, "generate circles")
			}
		}

		zap.L().Info("sampling complete",
			zap.String("control", out.Sample.ControlID),
			zap.Int("circles", len(out.Sample.Circles)),
			zap.Float64("radius_m", out.Sample.Radius),
			zap.Bool("fallback", out.Sample.Fallback),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	sampleCmd.Flags().StringVar(&sampleVillage, "village", "", `treated village as "state district subdistrict village" (required)`)
	sampleCmd.Flags().StringVar(&sampleControl, "control", "", "control village unique name (skips the matcher)")
	sampleCmd.Flags().IntVar(&sampleCircles, "circles", 0, "number of circles (default from config)")
	_ = sampleCmd.MarkFlagRequired("village")
	rootCmd.AddCommand(sampleCmd)
}
