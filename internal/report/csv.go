package report

import (
	"os"

	"github.com/gocarina/gocsv"
	"github.com/rotisserie/eris"
)

// SummaryRow is one site's evaluation flattened for CSV export.
type SummaryRow struct {
	Site              string  `csv:"site"`
	Control           string  `csv:"control"`
	ControlID         string  `csv:"control_id"`
	TreatedRuggedness float64 `csv:"treated_ruggedness"`
	ControlRuggedness float64 `csv:"control_ruggedness"`
	RelativeDiffPct   float64 `csv:"relative_diff_pct"`
	Circles           int     `csv:"circles"`
	RadiusM           float64 `csv:"radius_m"`
	PolygonAreaM2     float64 `csv:"polygon_area_m2"`
	EffectiveAreaM2   float64 `csv:"effective_area_m2"`
	Substituted       bool    `csv:"substituted"`
	Clamped           bool    `csv:"clamped"`
	Fallback          bool    `csv:"fallback"`
	Error             string  `csv:"error"`
}

// CircleRow is one sampling circle flattened for CSV export.
type CircleRow struct {
	Site     string  `csv:"site"`
	CircleID string  `csv:"circle_id"`
	Lon      float64 `csv:"lon"`
	Lat      float64 `csv:"lat"`
	RadiusM  float64 `csv:"radius_m"`
	Fallback bool    `csv:"fallback"`
}

// SummaryRows flattens results into CSV summary rows.
func SummaryRows(results []SiteResult) []SummaryRow {
	rows := make([]SummaryRow, 0, len(results))
	for _, r := range results {
		row := SummaryRow{Site: r.Site, Error: r.Error}
		if r.Match != nil {
			row.Control = r.Match.Control.Name
			row.ControlID = r.Match.Control.ID
			row.TreatedRuggedness = r.Match.TreatedStat
			row.ControlRuggedness = r.Match.ControlStat
			row.RelativeDiffPct = r.Match.RelativeDiff
		}
		if r.Sample != nil {
			row.Circles = len(r.Sample.Circles)
			row.RadiusM = r.Sample.Radius
			row.PolygonAreaM2 = r.Sample.PolygonArea
			row.EffectiveAreaM2 = r.Sample.EffectiveArea
			row.Substituted = r.Sample.Substituted
			row.Clamped = r.Sample.Clamped
			row.Fallback = r.Sample.Fallback
		}
		rows = append(rows, row)
	}
	return rows
}

// CircleRows flattens every placed circle into CSV rows.
func CircleRows(results []SiteResult) []CircleRow {
	var rows []CircleRow
	for _, r := range results {
		if r.Sample == nil {
			continue
		}
		for _, c := range r.Sample.Circles {
			rows = append(rows, CircleRow{
				Site:     r.Site,
				CircleID: c.ID,
				Lon:      c.Center[0],
				Lat:      c.Center[1],
				RadiusM:  c.Radius,
				Fallback: c.Fallback,
			})
		}
	}
	return rows
}

// WriteSummaryCSV writes one row per site.
func WriteSummaryCSV(path string, results []SiteResult) error {
	rows := SummaryRows(results)
	return writeCSV(path, &rows)
}

// WriteCirclesCSV writes one row per sampling circle.
func WriteCirclesCSV(path string, results []SiteResult) error {
	rows := CircleRows(results)
	return writeCSV(path, &rows)
}

func writeCSV(path string, rows any) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer file.Close() //nolint:errcheck

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
