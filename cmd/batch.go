package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basin-labs/controlsite/internal/ingest"
	"github.com/basin-labs/controlsite/internal/landcover"
	"github.com/basin-labs/controlsite/internal/report"
	"github.com/basin-labs/controlsite/internal/store"
)

var (
	batchSites      string
	batchLimit      int
	batchWorkbook   string
	batchSummaryCSV string
	batchCirclesCSV string
	batchFromYear   int
	batchToYear     int
	batchNoCropping bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate a CSV of treated villages and write report files",
	Long: `Runs the full evaluation for every site in a CSV (control match,
circle sampling, and the yearly cropping series unless disabled), a
bounded number of sites at a time. Individual site failures are
recorded in the report instead of aborting the batch.

The sites CSV carries the columns state_name, district_name,
subdistrict_name, village_name.

Examples:
  controlsite batch --sites sites.csv
  controlsite batch --sites sites.csv --workbook out.xlsx --summary-csv out.csv --limit 50
  controlsite batch --sites sites.csv --no-cropping`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("match"); err != nil {
			return err
		}
		if err := cfg.Validate("sample"); err != nil {
			return err
		}

		sites, err := ingest.ReadSitesCSV(batchSites)
		if err != nil {
			return eris.Wrap(err, "read sites")
		}

		env, err := initEval(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.loadElevation(); err != nil {
			return err
		}
		if err := env.loadLandcover(); err != nil {
			return err
		}

		from, to := batchFromYear, batchToYear
		if batchNoCropping {
			from, to = 0, 0
		} else if err := env.loadLandcoverYears(from, to); err != nil {
			return err
		}

		results, err := processSites(ctx, sites, batchLimit, cfg.Batch.MaxConcurrentSites, func(ctx context.Context, site ingest.SiteRow) (*report.SiteResult, error) {
			return env.evalSite(ctx, site.UniqueName(), from, to)
		})
		if err != nil {
			return err
		}

		if err := report.WriteWorkbook(batchWorkbook, results); err != nil {
			return eris.Wrap(err, "write workbook")
		}
		if batchSummaryCSV != "" {
			if err := report.WriteSummaryCSV(batchSummaryCSV, results); err != nil {
				return eris.Wrap(err, "write summary csv")
			}
		}
		if batchCirclesCSV != "" {
			if err := report.WriteCirclesCSV(batchCirclesCSV, results); err != nil {
				return eris.Wrap(err, "write circles csv")
			}
		}

		fmt.Printf("Wrote %s (%d sites)\n", batchWorkbook, len(results))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchSites, "sites", "", "path to sites CSV (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of sites to evaluate (0 = all)")
	batchCmd.Flags().StringVar(&batchWorkbook, "workbook", "evaluation.xlsx", "output xlsx path")
	batchCmd.Flags().StringVar(&batchSummaryCSV, "summary-csv", "", "also write the summary sheet as CSV")
	batchCmd.Flags().StringVar(&batchCirclesCSV, "circles-csv", "", "also write the circles sheet as CSV")
	batchCmd.Flags().IntVar(&batchFromYear, "from", landcover.DefaultFromYear, "first cropping year")
	batchCmd.Flags().IntVar(&batchToYear, "to", landcover.DefaultToYear, "last cropping year")
	batchCmd.Flags().BoolVar(&batchNoCropping, "no-cropping", false, "skip the cropping series")
	_ = batchCmd.MarkFlagRequired("sites")
	rootCmd.AddCommand(batchCmd)
}

// evalSite runs one treated village end to end: control match, circle
// sampling, and the cropping series when a year range is given.
func (e *evalEnv) evalSite(ctx context.Context, uniqueName string, fromYear, toYear int) (*report.SiteResult, error) {
	treated, pool, err := store.TreatedAndPool(ctx, e.Store, uniqueName)
	if err != nil {
		return nil, err
	}

	match, err := e.Matcher.FindControl(ctx, treated, pool)
	if err != nil {
		return nil, err
	}

	sample, err := e.Sampler.GenerateEquivalentCircles(ctx, treated.Geom, match.Control)
	if err != nil {
		return nil, err
	}

	res := &report.SiteResult{Site: uniqueName, Match: match, Sample: sample}
	if fromYear > 0 {
		res.Cropping, err = e.Landcover.CroppingChange(ctx, cfg.Data.LandcoverSeries, treated.Geom, fromYear, toYear)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// siteEvalFunc is the callback signature for evaluating one site.
type siteEvalFunc func(ctx context.Context, site ingest.SiteRow) (*report.SiteResult, error)

// processSites applies limit, then evaluates sites concurrently using the
// given evaluation function. A failed site becomes a result row carrying
// the error message; it never aborts the batch. Results keep input order.
func processSites(ctx context.Context, sites []ingest.SiteRow, limit, concurrency int, eval siteEvalFunc) ([]report.SiteResult, error) {
	if len(sites) == 0 {
		zap.L().Info("no sites to evaluate")
		return nil, nil
	}

	if limit > 0 && len(sites) > limit {
		sites = sites[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("sites", len(sites)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	// Each goroutine writes only its own slot, so input order survives
	// concurrent completion.
	results := make([]report.SiteResult, len(sites))

	for i, site := range sites {
		g.Go(func() error {
			name := site.UniqueName()
			log := zap.L().With(zap.String("site", name))

			res, err := eval(gctx, site)
			if err != nil {
				failed.Add(1)
				log.Error("site evaluation failed", zap.Error(err))
				results[i] = report.SiteResult{Site: name, Error: err.Error()}
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("site evaluation complete")
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}
