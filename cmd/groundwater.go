package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basin-labs/controlsite/internal/groundwater"
	"github.com/basin-labs/controlsite/internal/store"
)

var (
	groundwaterVillage string
	groundwaterStart   int
	groundwaterEnd     int
)

// groundwaterOutput is the JSON printed by the groundwater command.
type groundwaterOutput struct {
	Village string                         `json:"village"`
	Levels  map[int]groundwater.LevelRange `json:"levels"`
}

var groundwaterCmd = &cobra.Command{
	Use:   "groundwater",
	Short: "Report yearly groundwater levels near a village",
	Long: `Looks up CGWB monitoring stations within 10 km of the village and
reports each hydrological year's min and max depth to water from the
nearest station with data. Years with no reachable readings come back
with null bounds.

Examples:
  controlsite groundwater --village "maharashtra pune haveli alandi"
  controlsite groundwater --village "maharashtra pune haveli alandi" --start 2018 --end 2021`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEval(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		village, err := store.VillageRegion(ctx, env.Store, groundwaterVillage)
		if err != nil {
			return eris.Wrap(err, "resolve village")
		}

		svc := groundwater.NewService(env.Vector, newGroundwaterClient(), groundwater.Config{
			MaxDistanceKm: cfg.Groundwater.MaxDistanceKM,
			StartYear:     groundwaterStart,
			EndYear:       groundwaterEnd,
		})

		levels, err := svc.VillageLevels(ctx, village)
		if err != nil {
			return eris.Wrap(err, "village levels")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groundwaterOutput{Village: groundwaterVillage, Levels: levels})
	},
}

func init() {
	groundwaterCmd.Flags().StringVar(&groundwaterVillage, "village", "", `village as "state district subdistrict village" (required)`)
	groundwaterCmd.Flags().IntVar(&groundwaterStart, "start", groundwater.DefaultStartYear, "first hydrological year")
	groundwaterCmd.Flags().IntVar(&groundwaterEnd, "end", groundwater.DefaultEndYear, "last hydrological year")
	_ = groundwaterCmd.MarkFlagRequired("village")
	rootCmd.AddCommand(groundwaterCmd)
}
