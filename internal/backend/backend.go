// Package backend defines the geospatial capability interfaces the
// analysis core runs against. Implementations live elsewhere (the local
// engine, or an adapter over a remote service); the matcher and sampler
// depend only on these interfaces and never retry or time out on their
// own — cancellation belongs to the caller's context.
package backend

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/region"
)

// Error kinds shared by the analysis core. Callers match with eris.Is.
var (
	// ErrNoCandidates means a candidate pool was empty after filtering.
	ErrNoCandidates = eris.New("no candidate regions")

	// ErrDegenerateStatistic means a zonal statistic came back zero or
	// undefined where a nonzero value is required.
	ErrDegenerateStatistic = eris.New("degenerate statistic")

	// ErrInvalidGeometry means a geometry was empty or malformed where a
	// valid one is required.
	ErrInvalidGeometry = eris.New("invalid geometry")

	// ErrUnknownDataset means a raster ID did not resolve to a loaded
	// dataset.
	ErrUnknownDataset = eris.New("unknown raster dataset")
)

// Reducer names a zonal statistic.
type Reducer string

const (
	ReducerMean   Reducer = "mean"
	ReducerStdDev Reducer = "stdDev"
	ReducerSum    Reducer = "sum"
)

// MaskID is an opaque handle to a boolean raster mask minted by a Raster
// backend. Core code never inspects it.
type MaskID string

// Vector provides region retrieval and geometry operations. Geometries
// are go-geom values in SRID 4326; distances and areas are meters and
// square meters.
type Vector interface {
	// Filter returns the regions whose attributes satisfy the selector,
	// in the backend's stable storage order.
	Filter(ctx context.Context, sel region.Selector) (region.Pool, error)

	// Area returns the geodesic area of g in m². Empty geometries have
	// area 0 and are not an error.
	Area(ctx context.Context, g geom.T) (float64, error)

	// Buffer dilates (positive distance) or erodes (negative distance)
	// g by the given distance in meters. Erosion past collapse yields an
	// empty geometry, not an error.
	Buffer(ctx context.Context, g geom.T, distance float64) (geom.T, error)

	// Centroid returns the centroid of g.
	Centroid(ctx context.Context, g geom.T) (geom.Coord, error)

	// Intersects reports whether a and b share any point.
	Intersects(ctx context.Context, a, b geom.T) (bool, error)
}

// Raster provides zonal statistics and sampling over named raster
// datasets.
type Raster interface {
	// Slope derives a slope raster (degrees) from the named elevation
	// dataset and returns the derived dataset's ID.
	Slope(ctx context.Context, elevation string) (string, error)

	// Statistic reduces the dataset's pixels inside g at the given scale
	// (meters per pixel).
	Statistic(ctx context.Context, dataset string, g geom.T, red Reducer, scale float64) (float64, error)

	// Mask builds a boolean mask over the dataset: true where the pixel
	// value is any of classes, clipped to g.
	Mask(ctx context.Context, dataset string, g geom.T, classes []int) (MaskID, error)

	// StratifiedSample draws up to n sample points from the mask's true
	// cells of the named band that fall inside g, at the given scale.
	// Fewer than n points (including zero) is not an error.
	StratifiedSample(ctx context.Context, mask MaskID, n int, band string, g geom.T, scale float64, seed int64) ([]geom.Coord, error)
}
