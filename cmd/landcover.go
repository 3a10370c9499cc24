package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basin-labs/controlsite/internal/landcover"
	"github.com/basin-labs/controlsite/internal/store"
)

var (
	landcoverVillage string
	landcoverFrom    int
	landcoverTo      int
	landcoverYear    int
)

// croppingOutput is the cropping-change JSON printed by default.
type croppingOutput struct {
	Village string                    `json:"village"`
	Series  []landcover.CroppingAreas `json:"series"`
}

// classAreasOutput is the per-class JSON printed with --year.
type classAreasOutput struct {
	Village string             `json:"village"`
	Year    int                `json:"year"`
	AreasHa map[string]float64 `json:"areas_ha"`
}

var landcoverCmd = &cobra.Command{
	Use:   "landcover",
	Short: "Report land-cover statistics for a village",
	Long: `Reports the yearly single- and double-cropping areas inside a village
boundary. With --year, reports that year's area per land-cover class
instead, using the configured class map.

Examples:
  controlsite landcover --village "maharashtra pune haveli alandi"
  controlsite landcover --village "maharashtra pune haveli alandi" --from 2017 --to 2021
  controlsite landcover --village "maharashtra pune haveli alandi" --year 2020`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEval(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		village, err := store.VillageRegion(ctx, env.Store, landcoverVillage)
		if err != nil {
			return eris.Wrap(err, "resolve village")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if landcoverYear > 0 {
			if err := env.loadLandcoverYears(landcoverYear, landcoverYear); err != nil {
				return err
			}
			classes, err := loadClassMap()
			if err != nil {
				return err
			}
			areas, err := env.Landcover.Summary(ctx, landcover.YearDataset(cfg.Data.LandcoverSeries, landcoverYear), village.Geom, classes)
			if err != nil {
				return eris.Wrap(err, "class areas")
			}
			return enc.Encode(classAreasOutput{Village: landcoverVillage, Year: landcoverYear, AreasHa: areas})
		}

		if err := env.loadLandcoverYears(landcoverFrom, landcoverTo); err != nil {
			return err
		}
		series, err := env.Landcover.CroppingChange(ctx, cfg.Data.LandcoverSeries, village.Geom, landcoverFrom, landcoverTo)
		if err != nil {
			return eris.Wrap(err, "cropping change")
		}
		return enc.Encode(croppingOutput{Village: landcoverVillage, Series: series})
	},
}

func init() {
	landcoverCmd.Flags().StringVar(&landcoverVillage, "village", "", `village as "state district subdistrict village" (required)`)
	landcoverCmd.Flags().IntVar(&landcoverFrom, "from", landcover.DefaultFromYear, "first cropping year")
	landcoverCmd.Flags().IntVar(&landcoverTo, "to", landcover.DefaultToYear, "last cropping year")
	landcoverCmd.Flags().IntVar(&landcoverYear, "year", 0, "report per-class areas for one year instead")
	_ = landcoverCmd.MarkFlagRequired("village")
	rootCmd.AddCommand(landcoverCmd)
}

// loadClassMap reads the configured class map, falling back to the
// cropping-intensity defaults when none is configured.
func loadClassMap() (landcover.ClassMap, error) {
	if cfg.Data.ClassMapPath == "" {
		return landcover.DefaultClassMap(), nil
	}
	return landcover.LoadClassMap(cfg.Data.ClassMapPath)
}
