// Package landcover turns per-class raster areas into the reporting
// units analysts work in: hectares per class label, and year-over-year
// cropping-intensity series.
package landcover

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"
)

const squareMetersPerHectare = 10_000.0

// Cropping-intensity class codes in the IndiaSAT landcover product.
var (
	SingleCroppingClasses = []int{8, 9}
	DoubleCroppingClasses = []int{10, 11}
)

// Labels the cropping classes report under.
const (
	LabelSingleCropping = "Single cropping cropland"
	LabelDoubleCropping = "Double cropping cropland"
)

// Default year range with landcover coverage.
const (
	DefaultFromYear = 2014
	DefaultToYear   = 2022
)

// ClassAreas is the raster capability this package needs: summed cell
// area per class code within a geometry, in square meters.
type ClassAreas interface {
	ClassArea(ctx context.Context, dataset string, g geom.T, classes []int) (map[int]float64, error)
}

// Class is one landcover class code with its display label. Several
// codes may share a label; their areas are reported together.
type Class struct {
	Code  int    `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

// ClassMap is an ordered set of landcover classes.
type ClassMap struct {
	Classes []Class `yaml:"classes"`
}

// DefaultClassMap covers the cropping-intensity classes.
func DefaultClassMap() ClassMap {
	return ClassMap{Classes: []Class{
		{Code: 8, Label: LabelSingleCropping},
		{Code: 9, Label: LabelSingleCropping},
		{Code: 10, Label: LabelDoubleCropping},
		{Code: 11, Label: LabelDoubleCropping},
	}}
}

// LoadClassMap reads a YAML class map from disk.
func LoadClassMap(path string) (ClassMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ClassMap{}, eris.Wrapf(err, "landcover: read class map %s", path)
	}
	var m ClassMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return ClassMap{}, eris.Wrapf(err, "landcover: parse class map %s", path)
	}
	if len(m.Classes) == 0 {
		return ClassMap{}, eris.Errorf("landcover: class map %s has no classes", path)
	}
	seen := make(map[int]struct{}, len(m.Classes))
	for _, c := range m.Classes {
		if c.Label == "" {
			return ClassMap{}, eris.Errorf("landcover: class %d has no label", c.Code)
		}
		if _, dup := seen[c.Code]; dup {
			return ClassMap{}, eris.Errorf("landcover: duplicate class code %d", c.Code)
		}
		seen[c.Code] = struct{}{}
	}
	return m, nil
}

// Codes returns the class codes in map order.
func (m ClassMap) Codes() []int {
	codes := make([]int, 0, len(m.Classes))
	for _, c := range m.Classes {
		codes = append(codes, c.Code)
	}
	return codes
}

// Label returns the display label for a code, or empty when unmapped.
func (m ClassMap) Label(code int) string {
	for _, c := range m.Classes {
		if c.Code == code {
			return c.Label
		}
	}
	return ""
}

// YearDataset names the per-year dataset for a landcover product, e.g.
// "indiasat:2019".
func YearDataset(base string, year int) string {
	return fmt.Sprintf("%s:%d", base, year)
}

// Analyzer computes landcover statistics over a class-area capable
// raster backend.
type Analyzer struct {
	ras ClassAreas
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(ras ClassAreas) *Analyzer {
	return &Analyzer{ras: ras}
}

// Summary reports hectares per class label within the geometry. Codes
// sharing a label are summed.
func (a *Analyzer) Summary(ctx context.Context, dataset string, g geom.T, classes ClassMap) (map[string]float64, error) {
	areas, err := a.ras.ClassArea(ctx, dataset, g, classes.Codes())
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: class areas of %s", dataset)
	}
	out := make(map[string]float64)
	for _, c := range classes.Classes {
		out[c.Label] += areas[c.Code] / squareMetersPerHectare
	}
	return out, nil
}

// CroppingAreas is one year of cropping-intensity areas, in hectares.
type CroppingAreas struct {
	Year         int     `json:"year"`
	SingleCropHa float64 `json:"single_cropping_ha"`
	DoubleCropHa float64 `json:"double_cropping_ha"`
}

// CroppingChange reports single- and double-cropping areas for each
// agricultural year in [fromYear, toYear], reading the dataset named
// YearDataset(base, year) for each. Results come back in year order.
func (a *Analyzer) CroppingChange(ctx context.Context, base string, g geom.T, fromYear, toYear int) ([]CroppingAreas, error) {
	if fromYear > toYear {
		return nil, eris.Errorf("landcover: year range %d..%d is inverted", fromYear, toYear)
	}

	classes := make([]int, 0, len(SingleCroppingClasses)+len(DoubleCroppingClasses))
	classes = append(classes, SingleCroppingClasses...)
	classes = append(classes, DoubleCroppingClasses...)

	series := make([]CroppingAreas, 0, toYear-fromYear+1)
	for year := fromYear; year <= toYear; year++ {
		areas, err := a.ras.ClassArea(ctx, YearDataset(base, year), g, classes)
		if err != nil {
			return nil, eris.Wrapf(err, "landcover: class areas for %d", year)
		}
		row := CroppingAreas{Year: year}
		for _, c := range SingleCroppingClasses {
			row.SingleCropHa += areas[c] / squareMetersPerHectare
		}
		for _, c := range DoubleCroppingClasses {
			row.DoubleCropHa += areas[c] / squareMetersPerHectare
		}
		series = append(series, row)
	}
	return series, nil
}
