package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/engine"
	"github.com/basin-labs/controlsite/internal/groundwater"
	"github.com/basin-labs/controlsite/internal/landcover"
	"github.com/basin-labs/controlsite/internal/matcher"
	"github.com/basin-labs/controlsite/internal/sampler"
	"github.com/basin-labs/controlsite/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "controlsite.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// evalEnv bundles the store, the local analytics engines, and the
// evaluation components built over them. Rasters are not loaded up
// front; each command loads the datasets it needs.
type evalEnv struct {
	Store       store.Store
	Vector      *engine.Vector
	Raster      *engine.Raster
	Matcher     *matcher.Matcher
	Sampler     *sampler.Sampler
	Landcover   *landcover.Analyzer
	Groundwater *groundwater.Service
}

func initEval(ctx context.Context) (*evalEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	vec := engine.NewVector()
	ras := engine.NewRaster()

	return &evalEnv{
		Store:  st,
		Vector: vec,
		Raster: ras,
		Matcher: matcher.New(vec, ras, matcher.Config{
			BufferMeters:    cfg.Match.BufferMeters,
			SlopeScale:      cfg.Match.SlopeScale,
			ElevationRaster: cfg.Match.ElevationRaster,
		}),
		Sampler: sampler.New(vec, ras, sampler.Config{
			Circles:         cfg.Sample.Circles,
			SampleScale:     cfg.Sample.SampleScale,
			SampleBand:      cfg.Sample.SampleBand,
			MinControlArea:  cfg.Sample.MinControlArea,
			SubstituteFloor: cfg.Sample.SubstituteFloor,
			ClampFraction:   cfg.Sample.ClampFraction,
			MinRadius:       cfg.Sample.MinRadius,
			CroplandClasses: cfg.Sample.CroplandClasses,
			LandcoverRaster: cfg.Sample.LandcoverRaster,
			Seed:            cfg.Sample.Seed,
		}),
		Landcover: landcover.NewAnalyzer(ras),
		Groundwater: groundwater.NewService(vec, newGroundwaterClient(), groundwater.Config{
			MaxDistanceKm: cfg.Groundwater.MaxDistanceKM,
		}),
	}, nil
}

func (e *evalEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// newGroundwaterClient builds the I-WRIS client, pointing the station
// query at groundwater.base_url when one is configured.
func newGroundwaterClient() groundwater.Client {
	if cfg.Groundwater.BaseURL != "" {
		return groundwater.NewClient(groundwater.WithStationURL(cfg.Groundwater.BaseURL))
	}
	return groundwater.NewClient()
}

// loadElevation registers the configured elevation GeoTIFF under the
// dataset ID the matcher derives slope from.
func (e *evalEnv) loadElevation() error {
	grid, err := engine.LoadGeoTIFF(cfg.Data.ElevationPath, "elevation")
	if err != nil {
		return eris.Wrap(err, "load elevation raster")
	}
	e.Raster.AddDataset(cfg.Match.ElevationRaster, grid)
	return nil
}

// loadLandcover registers the configured land-cover GeoTIFF under the
// dataset ID the sampler masks for cropland.
func (e *evalEnv) loadLandcover() error {
	grid, err := engine.LoadGeoTIFF(cfg.Data.LandcoverPath, cfg.Sample.SampleBand)
	if err != nil {
		return eris.Wrap(err, "load landcover raster")
	}
	e.Raster.AddDataset(cfg.Sample.LandcoverRaster, grid)
	return nil
}

// loadLandcoverYears registers one land-cover grid per year in
// [from, to] under the series dataset IDs. Years whose file is absent
// are skipped with a warning; querying such a year later reports an
// unknown dataset.
func (e *evalEnv) loadLandcoverYears(from, to int) error {
	series := cfg.Data.LandcoverSeries
	for year := from; year <= to; year++ {
		path := yearRasterPath(cfg.Data.Dir, series, year)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			zap.L().Warn("landcover year raster missing",
				zap.Int("year", year),
				zap.String("path", path),
			)
			continue
		}
		grid, err := engine.LoadGeoTIFF(path, cfg.Sample.SampleBand)
		if err != nil {
			return eris.Wrapf(err, "load landcover %d", year)
		}
		e.Raster.AddDataset(landcover.YearDataset(series, year), grid)
	}
	return nil
}

// yearRasterPath names the per-year land-cover file inside the data
// directory, e.g. data/indiasat_2019.tif.
func yearRasterPath(dir, series string, year int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.tif", series, year))
}
