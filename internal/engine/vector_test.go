package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/region"
)

// square builds a closed square polygon centered at (lon, lat) with the
// given side length in meters, wound counterclockwise.
func square(lon, lat, sideMeters float64) *geom.Polygon {
	dLat := sideMeters / 2 / metersPerDegree
	dLon := sideMeters / 2 / (metersPerDegree * math.Cos(lat*math.Pi/180))
	flat := []float64{
		lon - dLon, lat - dLat,
		lon + dLon, lat - dLat,
		lon + dLon, lat + dLat,
		lon - dLon, lat + dLat,
		lon - dLon, lat - dLat,
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
}

// squareWithHole punches a clockwise-wound hole of holeMeters into a
// square of sideMeters.
func squareWithHole(lon, lat, sideMeters, holeMeters float64) *geom.Polygon {
	outer := square(lon, lat, sideMeters)
	dLat := holeMeters / 2 / metersPerDegree
	dLon := holeMeters / 2 / (metersPerDegree * math.Cos(lat*math.Pi/180))
	flat := append([]float64{}, outer.FlatCoords()...)
	hole := []float64{
		lon - dLon, lat - dLat,
		lon - dLon, lat + dLat,
		lon + dLon, lat + dLat,
		lon + dLon, lat - dLat,
		lon - dLon, lat - dLat,
	}
	flat = append(flat, hole...)
	return geom.NewPolygonFlat(geom.XY, flat, []int{10, 20}).SetSRID(4326)
}

// ---------------------------------------------------------------------------
// Area
// ---------------------------------------------------------------------------

func TestArea_Square(t *testing.T) {
	v := NewVector()
	sq := square(75.0, 18.0, 1000)

	area, err := v.Area(context.Background(), sq)
	require.NoError(t, err)
	assert.InDelta(t, 1e6, area, 1e6*0.01, "1 km square should be ~1e6 m²")
}

func TestArea_HoleSubtracts(t *testing.T) {
	v := NewVector()
	poly := squareWithHole(75.0, 18.0, 1000, 200)

	area, err := v.Area(context.Background(), poly)
	require.NoError(t, err)
	assert.InDelta(t, 1e6-4e4, area, 1e6*0.01)
}

func TestArea_EmptyGeometry(t *testing.T) {
	v := NewVector()

	area, err := v.Area(context.Background(), geom.NewPolygon(geom.XY))
	require.NoError(t, err)
	assert.Zero(t, area)

	area, err = v.Area(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, area)
}

// ---------------------------------------------------------------------------
// Buffer
// ---------------------------------------------------------------------------

func TestBuffer_PositiveGrowsSquare(t *testing.T) {
	v := NewVector()
	ctx := context.Background()
	sq := square(75.0, 18.0, 1000)

	buffered, err := v.Buffer(ctx, sq, 100)
	require.NoError(t, err)

	area, err := v.Area(ctx, buffered)
	require.NoError(t, err)
	// Miter joins turn a square offset into a bigger square: side 1200.
	assert.InDelta(t, 1200*1200, area, 1200*1200*0.02)
}

func TestBuffer_NegativeShrinksSquare(t *testing.T) {
	v := NewVector()
	ctx := context.Background()
	sq := square(75.0, 18.0, 1000)

	buffered, err := v.Buffer(ctx, sq, -100)
	require.NoError(t, err)

	area, err := v.Area(ctx, buffered)
	require.NoError(t, err)
	assert.InDelta(t, 800*800, area, 800*800*0.02)
}

func TestBuffer_AreaMonotonic(t *testing.T) {
	v := NewVector()
	ctx := context.Background()
	sq := square(75.0, 18.0, 1000)

	prev, err := v.Area(ctx, sq)
	require.NoError(t, err)

	for _, d := range []float64{50, 200, 500} {
		buffered, err := v.Buffer(ctx, sq, d)
		require.NoError(t, err)
		area, err := v.Area(ctx, buffered)
		require.NoError(t, err)
		assert.Greater(t, area, prev, "buffer by %v should grow area", d)
		prev = area
	}
}

func TestBuffer_ErosionCollapses(t *testing.T) {
	v := NewVector()
	ctx := context.Background()
	sq := square(75.0, 18.0, 1000)

	buffered, err := v.Buffer(ctx, sq, -600)
	require.NoError(t, err)
	assert.Empty(t, buffered.FlatCoords(), "eroding past the half-width should empty the polygon")

	area, err := v.Area(ctx, buffered)
	require.NoError(t, err)
	assert.Zero(t, area)
}

func TestBuffer_PointBecomesCircle(t *testing.T) {
	v := NewVector()
	ctx := context.Background()
	pt := geom.NewPointFlat(geom.XY, []float64{75.0, 18.0}).SetSRID(4326)

	circle, err := v.Buffer(ctx, pt, 100)
	require.NoError(t, err)

	area, err := v.Area(ctx, circle)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi*100*100, area, math.Pi*100*100*0.01)

	center, err := v.Centroid(ctx, circle)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, center[0], 1e-6)
	assert.InDelta(t, 18.0, center[1], 1e-6)
}

func TestBuffer_EmptyGeometry(t *testing.T) {
	v := NewVector()

	_, err := v.Buffer(context.Background(), geom.NewPolygon(geom.XY), 100)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Centroid
// ---------------------------------------------------------------------------

func TestCentroid_Square(t *testing.T) {
	v := NewVector()
	sq := square(75.0, 18.0, 1000)

	c, err := v.Centroid(context.Background(), sq)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, c[0], 1e-6)
	assert.InDelta(t, 18.0, c[1], 1e-6)
}

func TestCentroid_Point(t *testing.T) {
	v := NewVector()
	pt := geom.NewPointFlat(geom.XY, []float64{75.5, 18.5})

	c, err := v.Centroid(context.Background(), pt)
	require.NoError(t, err)
	assert.InDelta(t, 75.5, c[0], 1e-9)
	assert.InDelta(t, 18.5, c[1], 1e-9)
}

// ---------------------------------------------------------------------------
// Intersects
// ---------------------------------------------------------------------------

func TestIntersects_Overlapping(t *testing.T) {
	v := NewVector()
	a := square(75.0, 18.0, 1000)
	b := square(75.005, 18.0, 1000) // ~530 m east, overlaps

	ok, err := v.Intersects(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIntersects_Disjoint(t *testing.T) {
	v := NewVector()
	a := square(75.0, 18.0, 1000)
	b := square(75.1, 18.0, 1000) // ~10.6 km east

	ok, err := v.Intersects(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntersects_Contained(t *testing.T) {
	v := NewVector()
	outer := square(75.0, 18.0, 2000)
	inner := square(75.0, 18.0, 200)

	ok, err := v.Intersects(context.Background(), outer, inner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Intersects(context.Background(), inner, outer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIntersects_PointInPolygon(t *testing.T) {
	v := NewVector()
	sq := square(75.0, 18.0, 1000)
	inside := geom.NewPointFlat(geom.XY, []float64{75.0, 18.0})
	outside := geom.NewPointFlat(geom.XY, []float64{76.0, 18.0})

	ok, err := v.Intersects(context.Background(), inside, sq)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Intersects(context.Background(), outside, sq)
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func TestFilter_SelectorAndOrder(t *testing.T) {
	v := NewVector(
		region.Region{ID: "v1", Name: "Alandi", Attrs: map[string]string{region.KeyDistrict: "Pune"}},
		region.Region{ID: "v2", Name: "Wagholi", Attrs: map[string]string{region.KeyDistrict: "Nashik"}},
		region.Region{ID: "v3", Name: "Charholi", Attrs: map[string]string{region.KeyDistrict: "Pune"}},
	)

	pool, err := v.Filter(context.Background(), region.Selector{region.KeyDistrict: "Pune"})
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, "v1", pool[0].ID)
	assert.Equal(t, "v3", pool[1].ID)
}

func TestFilter_NoMatches(t *testing.T) {
	v := NewVector(
		region.Region{ID: "v1", Attrs: map[string]string{region.KeyDistrict: "Pune"}},
	)

	pool, err := v.Filter(context.Background(), region.Selector{region.KeyDistrict: "Satara"})
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestFilter_CancelledContext(t *testing.T) {
	v := NewVector()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Filter(ctx, region.Selector{})
	assert.Error(t, err)
}
