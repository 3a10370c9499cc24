package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basin-labs/controlsite/internal/region"
	"github.com/basin-labs/controlsite/internal/store"
)

var (
	regionsState       string
	regionsDistrict    string
	regionsSubdistrict string
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the ingested administrative hierarchy",
	Long: `Walks the admin hierarchy one level at a time. Without flags, lists
states; each flag narrows one level further.

Examples:
  controlsite regions
  controlsite regions --state Maharashtra
  controlsite regions --state Maharashtra --district Pune
  controlsite regions --state Maharashtra --district Pune --subdistrict Haveli`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if regionsState == "" {
			states, err := st.States(ctx)
			if err != nil {
				return eris.Wrap(err, "list states")
			}
			printUnits("STATE", states)
			return nil
		}

		states, err := st.States(ctx)
		if err != nil {
			return eris.Wrap(err, "list states")
		}
		state, err := findUnit(states, regionsState, "state")
		if err != nil {
			return err
		}

		if regionsDistrict == "" {
			districts, err := st.Districts(ctx, state.ID)
			if err != nil {
				return eris.Wrap(err, "list districts")
			}
			printUnits("DISTRICT", districts)
			return nil
		}

		districts, err := st.Districts(ctx, state.ID)
		if err != nil {
			return eris.Wrap(err, "list districts")
		}
		district, err := findUnit(districts, regionsDistrict, "district")
		if err != nil {
			return err
		}

		if regionsSubdistrict == "" {
			subdistricts, err := st.Subdistricts(ctx, district.ID)
			if err != nil {
				return eris.Wrap(err, "list subdistricts")
			}
			printUnits("SUBDISTRICT", subdistricts)
			return nil
		}

		subdistricts, err := st.Subdistricts(ctx, district.ID)
		if err != nil {
			return eris.Wrap(err, "list subdistricts")
		}
		subdistrict, err := findUnit(subdistricts, regionsSubdistrict, "subdistrict")
		if err != nil {
			return err
		}

		villages, err := st.Villages(ctx, subdistrict.ID)
		if err != nil {
			return eris.Wrap(err, "list villages")
		}
		printVillages(villages)
		return nil
	},
}

func init() {
	regionsCmd.Flags().StringVar(&regionsState, "state", "", "state name")
	regionsCmd.Flags().StringVar(&regionsDistrict, "district", "", "district name (requires --state)")
	regionsCmd.Flags().StringVar(&regionsSubdistrict, "subdistrict", "", "subdistrict name (requires --district)")
	rootCmd.AddCommand(regionsCmd)
}

// findUnit matches a unit by normalized name within one hierarchy level.
func findUnit(units []store.Unit, name, level string) (*store.Unit, error) {
	want := region.Normalize(name)
	for i := range units {
		if units[i].Name == want {
			return &units[i], nil
		}
	}
	return nil, eris.Errorf("no such %s: %s", level, name)
}

func printUnits(header string, units []store.Unit) {
	if len(units) == 0 {
		fmt.Println("No regions found; run ingest first")
		return
	}

	fmt.Printf("%-30s %-10s %s\n", header, "CODE", "ID")
	fmt.Println(strings.Repeat("-", 80))
	for _, u := range units {
		fmt.Printf("%-30s %-10s %s\n", u.Name, u.Code, u.ID)
	}
}

func printVillages(villages []store.Village) {
	if len(villages) == 0 {
		fmt.Println("No villages found; run ingest first")
		return
	}

	fmt.Printf("%-30s %-10s %-9s %s\n", "VILLAGE", "CODE", "BOUNDARY", "UNIQUE NAME")
	fmt.Println(strings.Repeat("-", 100))
	for _, v := range villages {
		boundary := "-"
		if v.HasBoundary {
			boundary = "yes"
		}
		fmt.Printf("%-30s %-10s %-9s %s\n", v.Name, v.Code, boundary, v.UniqueName)
	}
}
