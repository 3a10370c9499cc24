// Package ingest loads village boundary shapefiles and hierarchy CSV
// exports into the store, row-wise through the Store interface or in
// bulk through the Postgres COPY machinery.
package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/region"
)

// keyUniqueName is the composite-key attribute some boundary datasets
// carry; when absent the key is derived from the four hierarchy names.
const keyUniqueName = "unique_name"

// VillageRow is one shapefile feature flattened for loading.
type VillageRow struct {
	State       string
	District    string
	Subdistrict string
	Village     string
	UniqueName  string
	Boundary    geom.T
}

// ParseShapefile reads a village boundary shapefile into rows. Features
// without a polygon geometry or a village name are skipped.
func ParseShapefile(shpPath string) ([]VillageRow, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	var rows []VillageRow
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		g := shapeToMultiPolygon(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(fieldIdx))
		for name, idx := range fieldIdx {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}

		row, ok := buildRow(attrs, g)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		zap.L().Debug("ingest: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return rows, nil
}

// buildRow assembles a VillageRow from attributes keyed by lowercased
// field name. ok is false when the feature has no village name.
func buildRow(attrs map[string]string, boundary geom.T) (VillageRow, bool) {
	row := VillageRow{
		State:       region.Normalize(attrs[region.KeyState]),
		District:    region.Normalize(attrs[region.KeyDistrict]),
		Subdistrict: region.Normalize(attrs[region.KeySubdistrict]),
		Village:     region.Normalize(attrs[region.KeyVillage]),
		UniqueName:  strings.ToLower(attrs[keyUniqueName]),
		Boundary:    boundary,
	}
	if row.Village == "" {
		return VillageRow{}, false
	}
	if row.UniqueName == "" {
		row.UniqueName = region.UniqueName(row.State, row.District, row.Subdistrict, row.Village)
	}
	return row, true
}

// shapeToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// with SRID 4326. Non-polygon and empty shapes return nil.
func shapeToMultiPolygon(shape shp.Shape) geom.T {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatCoords converts a slice of Coord to flat coordinate pairs for go-geom.
func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
