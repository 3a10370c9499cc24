package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/backend"
)

// Raster is the in-memory raster backend: named grids plus zonal
// statistics, class masking, and stratified sampling. It implements
// backend.Raster and is safe for concurrent use.
type Raster struct {
	mu       sync.RWMutex
	datasets map[string]*Grid
	masks    map[backend.MaskID]*maskGrid
}

// maskGrid is a boolean overlay of a source grid.
type maskGrid struct {
	grid  *Grid
	cells []bool
}

// NewRaster returns an empty raster engine.
func NewRaster() *Raster {
	return &Raster{
		datasets: make(map[string]*Grid),
		masks:    make(map[backend.MaskID]*maskGrid),
	}
}

// AddDataset registers a grid under the given dataset ID, replacing any
// previous grid with that ID.
func (r *Raster) AddDataset(id string, g *Grid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[id] = g
}

// Datasets returns the registered dataset IDs.
func (r *Raster) Datasets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.datasets))
	for id := range r.datasets {
		ids = append(ids, id)
	}
	return ids
}

func (r *Raster) dataset(id string) (*Grid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.datasets[id]
	if !ok {
		return nil, eris.Wrapf(backend.ErrUnknownDataset, "engine: dataset %q", id)
	}
	return g, nil
}

// Slope derives a slope raster in degrees from the named elevation
// dataset using Horn's 3x3 kernel and registers it as a new dataset.
// Repeated calls reuse the derived grid.
func (r *Raster) Slope(ctx context.Context, elevation string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "engine: slope")
	}

	derived := fmt.Sprintf("slope:%s", elevation)
	r.mu.RLock()
	_, done := r.datasets[derived]
	r.mu.RUnlock()
	if done {
		return derived, nil
	}

	dem, err := r.dataset(elevation)
	if err != nil {
		return "", err
	}

	cols, rows := dem.Size()
	slope := NewGrid(cols, rows, dem.gt, "slope")
	slope.SetNoData(-9999)

	for row := 0; row < rows; row++ {
		xres, yres := dem.resolutionMeters(row)
		for col := 0; col < cols; col++ {
			deg, ok := hornSlope(dem, col, row, xres, yres)
			if !ok {
				slope.Set(col, row, -9999)
				continue
			}
			slope.Set(col, row, deg)
		}
	}

	r.mu.Lock()
	r.datasets[derived] = slope
	r.mu.Unlock()
	return derived, nil
}

// hornSlope evaluates Horn's kernel at one cell. Border cells and cells
// touching nodata neighbors are skipped.
func hornSlope(dem *Grid, col, row int, xres, yres float64) (float64, bool) {
	var z [3][3]float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v, ok := dem.At(col+dx, row+dy)
			if !ok {
				return 0, false
			}
			z[dy+1][dx+1] = v
		}
	}

	dzdx := ((z[0][2] + 2*z[1][2] + z[2][2]) - (z[0][0] + 2*z[1][0] + z[2][0])) / (8 * xres)
	dzdy := ((z[2][0] + 2*z[2][1] + z[2][2]) - (z[0][0] + 2*z[0][1] + z[0][2])) / (8 * yres)

	rad := math.Atan(math.Sqrt(dzdx*dzdx + dzdy*dzdy))
	return rad * 180 / math.Pi, true
}

// Statistic reduces the dataset's cells whose centers lie inside g.
// The grid's native resolution is used; scale is accepted for interface
// compatibility and validated to be positive.
func (r *Raster) Statistic(ctx context.Context, dataset string, g geom.T, red backend.Reducer, scale float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "engine: statistic")
	}
	if scale <= 0 {
		return 0, eris.Errorf("engine: statistic scale must be positive, got %v", scale)
	}
	grid, err := r.dataset(dataset)
	if err != nil {
		return 0, err
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return 0, eris.Wrap(backend.ErrInvalidGeometry, "engine: statistic over empty geometry")
	}

	var values []float64
	grid.cellsIn(g, func(col, row int) {
		if v, ok := grid.At(col, row); ok {
			values = append(values, v)
		}
	})

	return reduce(values, red)
}

func reduce(values []float64, red backend.Reducer) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	switch red {
	case backend.ReducerSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case backend.ReducerMean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case backend.ReducerStdDev:
		mean := 0.0
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))
		ss := 0.0
		for _, v := range values {
			ss += (v - mean) * (v - mean)
		}
		return math.Sqrt(ss / float64(len(values))), nil
	default:
		return 0, eris.Errorf("engine: unknown reducer %q", red)
	}
}

// Mask builds a boolean mask over the dataset: true where the cell value
// matches any of classes and the cell center lies inside g.
func (r *Raster) Mask(ctx context.Context, dataset string, g geom.T, classes []int) (backend.MaskID, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "engine: mask")
	}
	grid, err := r.dataset(dataset)
	if err != nil {
		return "", err
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return "", eris.Wrap(backend.ErrInvalidGeometry, "engine: mask over empty geometry")
	}

	classSet := make(map[int]struct{}, len(classes))
	for _, c := range classes {
		classSet[c] = struct{}{}
	}

	cols, rows := grid.Size()
	mask := &maskGrid{grid: grid, cells: make([]bool, cols*rows)}
	grid.cellsIn(g, func(col, row int) {
		v, ok := grid.At(col, row)
		if !ok {
			return
		}
		if _, hit := classSet[int(math.Round(v))]; hit {
			mask.cells[row*cols+col] = true
		}
	})

	id := backend.MaskID(uuid.New().String())
	r.mu.Lock()
	r.masks[id] = mask
	r.mu.Unlock()
	return id, nil
}

// StratifiedSample draws up to n cell-center points from the mask's true
// cells of the named band that lie inside g. Selection order is a seeded
// shuffle, so results are reproducible per seed. Fewer than n candidates
// returns all of them.
func (r *Raster) StratifiedSample(ctx context.Context, mask backend.MaskID, n int, band string, g geom.T, scale float64, seed int64) ([]geom.Coord, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: stratified sample")
	}
	if n <= 0 {
		return nil, eris.Errorf("engine: sample size must be positive, got %d", n)
	}

	r.mu.RLock()
	m, ok := r.masks[mask]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(backend.ErrUnknownDataset, "engine: mask %q", mask)
	}
	if band != "" && band != m.grid.Band {
		return nil, eris.Errorf("engine: band %q not in mask (have %q)", band, m.grid.Band)
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "engine: sample over empty geometry")
	}

	cols, _ := m.grid.Size()
	var candidates []geom.Coord
	m.grid.cellsIn(g, func(col, row int) {
		if !m.cells[row*cols+col] {
			return
		}
		lon, lat := m.grid.CellCenter(col, row)
		candidates = append(candidates, geom.Coord{lon, lat})
	})

	if len(candidates) <= n {
		return candidates, nil
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:n], nil
}

// ClassArea sums the ground area of cells matching each class inside g,
// in m² per class. Classes absent under g report zero.
func (r *Raster) ClassArea(ctx context.Context, dataset string, g geom.T, classes []int) (map[int]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: class area")
	}
	grid, err := r.dataset(dataset)
	if err != nil {
		return nil, err
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "engine: class area over empty geometry")
	}

	out := make(map[int]float64, len(classes))
	for _, c := range classes {
		out[c] = 0
	}
	grid.cellsIn(g, func(col, row int) {
		v, ok := grid.At(col, row)
		if !ok {
			return
		}
		class := int(math.Round(v))
		if _, tracked := out[class]; tracked {
			out[class] += grid.CellAreaM2(row)
		}
	})
	return out, nil
}
