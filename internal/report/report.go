// Package report writes evaluation results to xlsx workbooks and CSV
// files: one summary row per treated site, one row per sampling circle,
// and the yearly cropping areas behind each site.
package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/basin-labs/controlsite/internal/landcover"
	"github.com/basin-labs/controlsite/internal/matcher"
	"github.com/basin-labs/controlsite/internal/sampler"
)

// SiteResult bundles one treated site's evaluation outputs. Any of the
// result fields may be nil when that stage did not run; Error carries
// the failure message for sites that errored out.
type SiteResult struct {
	Site     string
	Match    *matcher.MatchResult
	Sample   *sampler.Result
	Cropping []landcover.CroppingAreas
	Error    string
}

var summaryHeader = []string{
	"site", "control", "control_id",
	"treated_ruggedness", "control_ruggedness", "relative_diff_pct",
	"circles", "radius_m", "polygon_area_m2", "effective_area_m2",
	"substituted", "clamped", "fallback", "error",
}

var circlesHeader = []string{
	"site", "circle_id", "lon", "lat", "radius_m", "fallback",
}

var croppingHeader = []string{
	"site", "year", "single_cropping_ha", "double_cropping_ha",
}

// WriteWorkbook writes the results as a three-sheet xlsx workbook.
func WriteWorkbook(path string, results []SiteResult) error {
	wb := xlsx.NewFile()

	if err := addSummarySheet(wb, results); err != nil {
		return err
	}
	if err := addCirclesSheet(wb, results); err != nil {
		return err
	}
	if err := addCroppingSheet(wb, results); err != nil {
		return err
	}

	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addSummarySheet(wb *xlsx.File, results []SiteResult) error {
	sheet, err := wb.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	writeHeader(sheet, summaryHeader)

	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Site)

		if r.Match != nil {
			row.AddCell().SetString(r.Match.Control.Name)
			row.AddCell().SetString(r.Match.Control.ID)
			row.AddCell().SetFloat(r.Match.TreatedStat)
			row.AddCell().SetFloat(r.Match.ControlStat)
			row.AddCell().SetFloat(r.Match.RelativeDiff)
		} else {
			padCells(row, 5)
		}

		if r.Sample != nil {
			row.AddCell().SetInt(len(r.Sample.Circles))
			row.AddCell().SetFloat(r.Sample.Radius)
			row.AddCell().SetFloat(r.Sample.PolygonArea)
			row.AddCell().SetFloat(r.Sample.EffectiveArea)
			row.AddCell().SetBool(r.Sample.Substituted)
			row.AddCell().SetBool(r.Sample.Clamped)
			row.AddCell().SetBool(r.Sample.Fallback)
		} else {
			padCells(row, 7)
		}

		row.AddCell().SetString(r.Error)
	}
	return nil
}

func addCirclesSheet(wb *xlsx.File, results []SiteResult) error {
	sheet, err := wb.AddSheet("Circles")
	if err != nil {
		return eris.Wrap(err, "report: add circles sheet")
	}
	writeHeader(sheet, circlesHeader)

	for _, r := range results {
		if r.Sample == nil {
			continue
		}
		for _, c := range r.Sample.Circles {
			row := sheet.AddRow()
			row.AddCell().SetString(r.Site)
			row.AddCell().SetString(c.ID)
			row.AddCell().SetFloat(c.Center[0])
			row.AddCell().SetFloat(c.Center[1])
			row.AddCell().SetFloat(c.Radius)
			row.AddCell().SetBool(c.Fallback)
		}
	}
	return nil
}

func addCroppingSheet(wb *xlsx.File, results []SiteResult) error {
	sheet, err := wb.AddSheet("Cropping")
	if err != nil {
		return eris.Wrap(err, "report: add cropping sheet")
	}
	writeHeader(sheet, croppingHeader)

	for _, r := range results {
		for _, year := range r.Cropping {
			row := sheet.AddRow()
			row.AddCell().SetString(r.Site)
			row.AddCell().SetInt(year.Year)
			row.AddCell().SetFloat(year.SingleCropHa)
			row.AddCell().SetFloat(year.DoubleCropHa)
		}
	}
	return nil
}

func writeHeader(sheet *xlsx.Sheet, header []string) {
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
}

func padCells(row *xlsx.Row, n int) {
	for range n {
		row.AddCell()
	}
}
