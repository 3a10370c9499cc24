package engine

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Grid is a single-band raster: row-major float64 cells plus a GDAL
// six-element geotransform. Row 0 is the northern edge, so gt[5] is
// negative for north-up data.
type Grid struct {
	Band string

	cols, rows int
	gt         [6]float64
	data       []float64
	nodata     float64
	hasNodata  bool
}

// NewGrid allocates a grid of the given size. All cells start at zero.
func NewGrid(cols, rows int, gt [6]float64, band string) *Grid {
	return &Grid{
		Band: band,
		cols: cols,
		rows: rows,
		gt:   gt,
		data: make([]float64, cols*rows),
	}
}

// SetNoData marks a sentinel value as "no data". Cells holding it are
// skipped by every reducer.
func (g *Grid) SetNoData(v float64) {
	g.nodata = v
	g.hasNodata = true
}

// Size returns (cols, rows).
func (g *Grid) Size() (int, int) {
	return g.cols, g.rows
}

// Set writes a cell value. Out-of-range indices are ignored.
func (g *Grid) Set(col, row int, v float64) {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return
	}
	g.data[row*g.cols+col] = v
}

// At reads a cell value. The bool is false out of range or on a nodata
// cell.
func (g *Grid) At(col, row int) (float64, bool) {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return 0, false
	}
	v := g.data[row*g.cols+col]
	if g.hasNodata && v == g.nodata {
		return 0, false
	}
	return v, true
}

// CellCenter returns the geographic coordinate of a cell's center.
func (g *Grid) CellCenter(col, row int) (float64, float64) {
	lon := g.gt[0] + (float64(col)+0.5)*g.gt[1]
	lat := g.gt[3] + (float64(row)+0.5)*g.gt[5]
	return lon, lat
}

// CellAt returns the cell containing the geographic coordinate. The
// bool is false outside the grid.
func (g *Grid) CellAt(lon, lat float64) (int, int, bool) {
	col := int(math.Floor((lon - g.gt[0]) / g.gt[1]))
	row := int(math.Floor((lat - g.gt[3]) / g.gt[5]))
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return 0, 0, false
	}
	return col, row, true
}

// CellAreaM2 returns the ground area of a cell in the given row.
// Longitude spacing narrows toward the poles, so area depends on row.
func (g *Grid) CellAreaM2(row int) float64 {
	_, lat := g.CellCenter(0, row)
	w := math.Abs(g.gt[1]) * metersPerDegree * math.Cos(lat*math.Pi/180)
	h := math.Abs(g.gt[5]) * metersPerDegree
	return w * h
}

// resolutionMeters returns the cell width and height in meters at the
// given row.
func (g *Grid) resolutionMeters(row int) (float64, float64) {
	_, lat := g.CellCenter(0, row)
	return math.Abs(g.gt[1]) * metersPerDegree * math.Cos(lat*math.Pi/180),
		math.Abs(g.gt[5]) * metersPerDegree
}

// Bounds returns the grid's geographic bounding box.
func (g *Grid) Bounds() *geom.Bounds {
	x0 := g.gt[0]
	x1 := g.gt[0] + float64(g.cols)*g.gt[1]
	y0 := g.gt[3]
	y1 := g.gt[3] + float64(g.rows)*g.gt[5]
	return geom.NewBounds(geom.XY).Set(
		math.Min(x0, x1), math.Min(y0, y1),
		math.Max(x0, x1), math.Max(y0, y1),
	)
}

// cellsIn visits every cell whose center lies inside the areal geometry.
func (g *Grid) cellsIn(geo geom.T, fn func(col, row int)) {
	proj := newProjection(refLatOf(geo))
	b := geo.Bounds()

	// Clip the scan window to the geometry's bounds.
	minCol, maxCol := 0, g.cols-1
	minRow, maxRow := 0, g.rows-1
	if col, row, ok := g.CellAt(b.Min(0), b.Max(1)); ok {
		minCol, minRow = col, row
	}
	if col, row, ok := g.CellAt(b.Max(0), b.Min(1)); ok {
		maxCol, maxRow = col, row
	}

	polys := polygonRings(geo, proj)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			lon, lat := g.CellCenter(col, row)
			x, y := proj.toMeters(lon, lat)
			for _, rings := range polys {
				if ringsContain(rings, x, y) {
					fn(col, row)
					break
				}
			}
		}
	}
}
