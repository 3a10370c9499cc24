package engine

import (
	"context"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basin-labs/controlsite/internal/backend"
)

// testGrid builds a cols x rows grid whose top-left corner sits at
// (originLon, originLat) with square cells of resDeg degrees, filled by
// fn(col, row).
func testGrid(cols, rows int, originLon, originLat, resDeg float64, band string, fn func(col, row int) float64) *Grid {
	gt := [6]float64{originLon, resDeg, 0, originLat, 0, -resDeg}
	g := NewGrid(cols, rows, gt, band)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			g.Set(col, row, fn(col, row))
		}
	}
	return g
}

// gridCenter returns the geographic center of the grid.
func gridCenter(g *Grid) (float64, float64) {
	cols, rows := g.Size()
	lon := g.gt[0] + float64(cols)/2*g.gt[1]
	lat := g.gt[3] + float64(rows)/2*g.gt[5]
	return lon, lat
}

// ---------------------------------------------------------------------------
// Statistic
// ---------------------------------------------------------------------------

func TestStatistic_MeanConstant(t *testing.T) {
	r := NewRaster()
	grid := testGrid(40, 40, 75.0, 18.01, 0.0005, "b1", func(_, _ int) float64 { return 5 })
	r.AddDataset("lulc", grid)

	lon, lat := gridCenter(grid)
	mean, err := r.Statistic(context.Background(), "lulc", square(lon, lat, 1000), backend.ReducerMean, 30)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, mean, 1e-9)
}

func TestStatistic_StdDevConstantIsZero(t *testing.T) {
	r := NewRaster()
	grid := testGrid(40, 40, 75.0, 18.01, 0.0005, "b1", func(_, _ int) float64 { return 7 })
	r.AddDataset("lulc", grid)

	lon, lat := gridCenter(grid)
	sd, err := r.Statistic(context.Background(), "lulc", square(lon, lat, 1000), backend.ReducerStdDev, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sd, 1e-9)
}

func TestStatistic_EmptyRegionIsZero(t *testing.T) {
	r := NewRaster()
	grid := testGrid(40, 40, 75.0, 18.01, 0.0005, "b1", func(_, _ int) float64 { return 3 })
	r.AddDataset("lulc", grid)

	// Region far outside the grid: no cells, reducer of nothing is 0.
	v, err := r.Statistic(context.Background(), "lulc", square(80.0, 25.0, 1000), backend.ReducerMean, 30)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestStatistic_UnknownDataset(t *testing.T) {
	r := NewRaster()

	_, err := r.Statistic(context.Background(), "missing", square(75.0, 18.0, 1000), backend.ReducerMean, 30)
	require.Error(t, err)
	assert.True(t, eris.Is(err, backend.ErrUnknownDataset))
}

func TestStatistic_InvalidScale(t *testing.T) {
	r := NewRaster()
	r.AddDataset("lulc", testGrid(4, 4, 75.0, 18.0, 0.0005, "b1", func(_, _ int) float64 { return 1 }))

	_, err := r.Statistic(context.Background(), "lulc", square(75.0, 18.0, 100), backend.ReducerMean, 0)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Slope
// ---------------------------------------------------------------------------

func TestSlope_FlatTerrainIsZero(t *testing.T) {
	r := NewRaster()
	dem := testGrid(40, 40, 75.0, 0.01, 0.0005, "elevation", func(_, _ int) float64 { return 450 })
	r.AddDataset("dem", dem)

	ctx := context.Background()
	slopeID, err := r.Slope(ctx, "dem")
	require.NoError(t, err)

	lon, lat := gridCenter(dem)
	mean, err := r.Statistic(ctx, slopeID, square(lon, lat, 1000), backend.ReducerMean, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mean, 1e-9)

	sd, err := r.Statistic(ctx, slopeID, square(lon, lat, 1000), backend.ReducerStdDev, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sd, 1e-9)
}

func TestSlope_UniformGradient(t *testing.T) {
	r := NewRaster()
	// Equator-adjacent grid: cells are ~55.66 m tall. Rising 5.566 m per
	// row south-to-north is a 10% grade, atan(0.1) ≈ 5.71 degrees.
	res := 0.0005
	cellMeters := res * metersPerDegree
	dem := testGrid(40, 40, 75.0, 0.01, res, "elevation", func(_, row int) float64 {
		return float64(40-row) * cellMeters * 0.1
	})
	r.AddDataset("dem", dem)

	ctx := context.Background()
	slopeID, err := r.Slope(ctx, "dem")
	require.NoError(t, err)

	lon, lat := gridCenter(dem)
	mean, err := r.Statistic(ctx, slopeID, square(lon, lat, 800), backend.ReducerMean, 30)
	require.NoError(t, err)
	want := math.Atan(0.1) * 180 / math.Pi
	assert.InDelta(t, want, mean, 0.1)

	// A uniform gradient has no slope variation.
	sd, err := r.Statistic(ctx, slopeID, square(lon, lat, 800), backend.ReducerStdDev, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sd, 0.01)
}

func TestSlope_Memoized(t *testing.T) {
	r := NewRaster()
	r.AddDataset("dem", testGrid(8, 8, 75.0, 0.01, 0.0005, "elevation", func(_, _ int) float64 { return 100 }))

	ctx := context.Background()
	id1, err := r.Slope(ctx, "dem")
	require.NoError(t, err)
	id2, err := r.Slope(ctx, "dem")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestSlope_UnknownElevation(t *testing.T) {
	r := NewRaster()
	_, err := r.Slope(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, backend.ErrUnknownDataset))
}

// ---------------------------------------------------------------------------
// Mask + StratifiedSample
// ---------------------------------------------------------------------------

func TestMask_AndSample_OnlyMatchingCells(t *testing.T) {
	r := NewRaster()
	// Left half class 2 (cropland), right half class 9 (built-up).
	grid := testGrid(40, 40, 75.0, 0.01, 0.0005, "b1", func(col, _ int) float64 {
		if col < 20 {
			return 2
		}
		return 9
	})
	r.AddDataset("lulc", grid)

	ctx := context.Background()
	lon, lat := gridCenter(grid)
	zone := square(lon, lat, 1500)

	mask, err := r.Mask(ctx, "lulc", zone, []int{2, 3, 4, 5, 6, 13})
	require.NoError(t, err)

	points, err := r.StratifiedSample(ctx, mask, 12, "b1", zone, 50, 7)
	require.NoError(t, err)
	require.Len(t, points, 12)

	// Every sampled point must sit in the cropland half.
	for _, p := range points {
		col, _, ok := grid.CellAt(p[0], p[1])
		require.True(t, ok)
		assert.Less(t, col, 20)
	}
}

func TestStratifiedSample_Deterministic(t *testing.T) {
	r := NewRaster()
	grid := testGrid(40, 40, 75.0, 0.01, 0.0005, "b1", func(_, _ int) float64 { return 2 })
	r.AddDataset("lulc", grid)

	ctx := context.Background()
	lon, lat := gridCenter(grid)
	zone := square(lon, lat, 1500)

	mask, err := r.Mask(ctx, "lulc", zone, []int{2})
	require.NoError(t, err)

	a, err := r.StratifiedSample(ctx, mask, 10, "b1", zone, 50, 42)
	require.NoError(t, err)
	b, err := r.StratifiedSample(ctx, mask, 10, "b1", zone, 50, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := r.StratifiedSample(ctx, mask, 10, "b1", zone, 50, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different seeds should shuffle differently")
}

func TestStratifiedSample_FewerCandidatesThanRequested(t *testing.T) {
	r := NewRaster()
	// Only four cropland cells in the whole grid.
	grid := testGrid(40, 40, 75.0, 0.01, 0.0005, "b1", func(col, row int) float64 {
		if col >= 18 && col < 20 && row >= 18 && row < 20 {
			return 2
		}
		return 9
	})
	r.AddDataset("lulc", grid)

	ctx := context.Background()
	lon, lat := gridCenter(grid)
	zone := square(lon, lat, 1800)

	mask, err := r.Mask(ctx, "lulc", zone, []int{2})
	require.NoError(t, err)

	points, err := r.StratifiedSample(ctx, mask, 10, "b1", zone, 50, 1)
	require.NoError(t, err)
	assert.Len(t, points, 4)
}

func TestStratifiedSample_EmptyMask(t *testing.T) {
	r := NewRaster()
	grid := testGrid(40, 40, 75.0, 0.01, 0.0005, "b1", func(_, _ int) float64 { return 9 })
	r.AddDataset("lulc", grid)

	ctx := context.Background()
	lon, lat := gridCenter(grid)
	zone := square(lon, lat, 1000)

	mask, err := r.Mask(ctx, "lulc", zone, []int{2})
	require.NoError(t, err)

	points, err := r.StratifiedSample(ctx, mask, 10, "b1", zone, 50, 1)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestStratifiedSample_WrongBand(t *testing.T) {
	r := NewRaster()
	grid := testGrid(8, 8, 75.0, 0.01, 0.0005, "b1", func(_, _ int) float64 { return 2 })
	r.AddDataset("lulc", grid)

	ctx := context.Background()
	lon, lat := gridCenter(grid)
	zone := square(lon, lat, 200)

	mask, err := r.Mask(ctx, "lulc", zone, []int{2})
	require.NoError(t, err)

	_, err = r.StratifiedSample(ctx, mask, 5, "nope", zone, 50, 1)
	assert.Error(t, err)
}

func TestStratifiedSample_UnknownMask(t *testing.T) {
	r := NewRaster()
	_, err := r.StratifiedSample(context.Background(), backend.MaskID("missing"), 5, "b1", square(75, 18, 100), 50, 1)
	require.Error(t, err)
	assert.True(t, eris.Is(err, backend.ErrUnknownDataset))
}

// ---------------------------------------------------------------------------
// ClassArea
// ---------------------------------------------------------------------------

func TestClassArea_PerClassTotals(t *testing.T) {
	r := NewRaster()
	// Alternating one-row stripes of classes 8 and 10.
	grid := testGrid(40, 40, 75.0, 0.01, 0.0005, "b1", func(_, row int) float64 {
		if row%2 == 0 {
			return 8
		}
		return 10
	})
	r.AddDataset("lulc", grid)

	ctx := context.Background()
	lon, lat := gridCenter(grid)
	zone := square(lon, lat, 1000)

	areas, err := r.ClassArea(ctx, "lulc", zone, []int{8, 10, 12})
	require.NoError(t, err)

	// Stripes split the zone evenly; class 12 never occurs.
	assert.Zero(t, areas[12])
	assert.Greater(t, areas[8], 0.0)
	assert.Greater(t, areas[10], 0.0)
	assert.InDelta(t, areas[8], areas[10], areas[8]*0.15)

	// Total class area should approximate the zone area.
	total := areas[8] + areas[10]
	assert.InDelta(t, 1e6, total, 1e6*0.1)
}

func TestClassArea_UnknownDataset(t *testing.T) {
	r := NewRaster()
	_, err := r.ClassArea(context.Background(), "missing", square(75, 18, 100), []int{1})
	require.Error(t, err)
	assert.True(t, eris.Is(err, backend.ErrUnknownDataset))
}
