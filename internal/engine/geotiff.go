package engine

import (
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var registerDrivers sync.Once

// LoadGeoTIFF reads the first band of a GeoTIFF into a Grid, carrying
// over the geotransform and nodata value. bandName is the logical band
// label the grid is registered under (the sampler asks for "b1").
func LoadGeoTIFF(path, bandName string) (*Grid, error) {
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: open geotiff %s", path)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, eris.Wrapf(err, "engine: geotransform of %s", path)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, eris.Errorf("engine: %s has no raster bands", path)
	}
	band := bands[0]

	xSize := band.Structure().SizeX
	ySize := band.Structure().SizeY
	data := make([]float64, xSize*ySize)
	if err := band.Read(0, 0, data, xSize, ySize); err != nil {
		return nil, eris.Wrapf(err, "engine: read band of %s", path)
	}

	grid := NewGrid(xSize, ySize, gt, bandName)
	grid.data = data
	if nodata, ok := band.NoData(); ok {
		grid.SetNoData(nodata)
	}

	zap.L().Debug("engine: geotiff loaded",
		zap.String("path", path),
		zap.Int("cols", xSize),
		zap.Int("rows", ySize),
	)
	return grid, nil
}
