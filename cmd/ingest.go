package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/fetcher"
	"github.com/basin-labs/controlsite/internal/ingest"
	"github.com/basin-labs/controlsite/internal/store"
)

var (
	ingestHierarchy  string
	ingestBoundaries string
	ingestBulk       bool
	ingestReplace    bool
	ingestBatchSize  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load admin hierarchies and village boundaries into the store",
	Long: `Loads a hierarchy CSV (state/district/subdistrict/village names and
census codes) and/or a village boundary shapefile. Boundary archives
(.zip) are extracted next to themselves first. Re-running is
idempotent; --replace wipes villages first, --bulk streams boundary
rows through COPY and requires the postgres driver.

Examples:
  controlsite ingest --hierarchy shrug_names.csv
  controlsite ingest --boundaries village_boundaries.shp
  controlsite ingest --boundaries village_boundaries.zip --bulk --replace`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		if ingestHierarchy == "" && ingestBoundaries == "" {
			return eris.New("nothing to ingest: pass --hierarchy and/or --boundaries")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		loader := ingest.NewLoader(st)

		if ingestHierarchy != "" {
			if err := runHierarchyLoad(ctx, loader); err != nil {
				return err
			}
		}
		if ingestBoundaries != "" {
			if err := runBoundaryLoad(ctx, st, loader); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestHierarchy, "hierarchy", "", "path to hierarchy CSV")
	ingestCmd.Flags().StringVar(&ingestBoundaries, "boundaries", "", "path to village boundary shapefile (.shp or .zip archive)")
	ingestCmd.Flags().BoolVar(&ingestBulk, "bulk", false, "COPY boundary rows (postgres only)")
	ingestCmd.Flags().BoolVar(&ingestReplace, "replace", false, "wipe villages before loading boundaries")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "bulk COPY batch size (default 20000)")
	rootCmd.AddCommand(ingestCmd)
}

func runHierarchyLoad(ctx context.Context, loader *ingest.Loader) error {
	rows, err := ingest.ReadHierarchyCSV(ingestHierarchy)
	if err != nil {
		return eris.Wrap(err, "read hierarchy")
	}

	bar := progressbar.Default(int64(len(rows)), "Loading hierarchy")
	res, err := loader.LoadHierarchy(ctx, rows, ingest.Options{
		Progress: func(done int) { _ = bar.Set(done) },
	})
	if err != nil {
		return eris.Wrap(err, "load hierarchy")
	}

	zap.L().Info("hierarchy loaded",
		zap.Int("states", res.States),
		zap.Int("districts", res.Districts),
		zap.Int("subdistricts", res.Subdistricts),
		zap.Int("villages", res.Villages),
		zap.Int("skipped", res.Skipped),
	)
	fmt.Printf("Hierarchy loaded: %d states, %d districts, %d subdistricts, %d villages (%d rows skipped)\n",
		res.States, res.Districts, res.Subdistricts, res.Villages, res.Skipped)
	return nil
}

func runBoundaryLoad(ctx context.Context, st store.Store, loader *ingest.Loader) error {
	shpPath, err := resolveBoundaryPath(ingestBoundaries)
	if err != nil {
		return err
	}

	rows, err := ingest.ParseShapefile(shpPath)
	if err != nil {
		return eris.Wrap(err, "parse shapefile")
	}

	bar := progressbar.Default(int64(len(rows)), "Loading boundaries")
	opts := ingest.Options{
		BatchSize: ingestBatchSize,
		Replace:   ingestReplace,
		Progress:  func(done int) { _ = bar.Set(done) },
	}

	if ingestBulk {
		pg, ok := st.(*store.PostgresStore)
		if !ok {
			return eris.New("--bulk requires the postgres store driver")
		}
		n, err := loader.BulkLoadBoundaries(ctx, pg.Pool(), rows, opts)
		if err != nil {
			return eris.Wrap(err, "bulk load boundaries")
		}
		fmt.Printf("Boundaries loaded: %d rows copied\n", n)
		return nil
	}

	res, err := loader.LoadBoundaries(ctx, rows, opts)
	if err != nil {
		return eris.Wrap(err, "load boundaries")
	}
	fmt.Printf("Boundaries loaded: %d villages (%d rows skipped)\n", res.Villages, res.Skipped)
	return nil
}

// resolveBoundaryPath accepts either a .shp path or a zipped boundary
// archive. Archives are extracted next to themselves so the .dbf/.shx
// sidecars land beside the shapefile.
func resolveBoundaryPath(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}

	shps, err := fetcher.FindInZIP(path, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "inspect boundary archive")
	}
	if len(shps) != 1 {
		return "", eris.Errorf("boundary archive %s holds %d shapefiles, want exactly 1", path, len(shps))
	}

	destDir := filepath.Dir(path)
	if _, err := fetcher.ExtractZIP(path, destDir); err != nil {
		return "", eris.Wrap(err, "extract boundary archive")
	}
	return filepath.Join(destDir, shps[0]), nil
}
