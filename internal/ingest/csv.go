package ingest

import (
	"os"

	"github.com/gocarina/gocsv"
	"github.com/rotisserie/eris"

	"github.com/basin-labs/controlsite/internal/region"
)

// HierarchyRow mirrors one line of a hierarchy CSV export: the four
// admin names and their census codes.
type HierarchyRow struct {
	State           string `csv:"state_name"`
	StateCode       string `csv:"state_code"`
	District        string `csv:"district_name"`
	DistrictCode    string `csv:"district_code"`
	Subdistrict     string `csv:"subdistrict_name"`
	SubdistrictCode string `csv:"subdistrict_code"`
	Village         string `csv:"village_name"`
	VillageCode     string `csv:"village_code"`
}

// ReadHierarchyCSV loads hierarchy rows from a CSV export.
func ReadHierarchyCSV(path string) ([]HierarchyRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer file.Close()

	var rows []HierarchyRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return rows, nil
}

// SiteRow names one treated village in a batch evaluation list.
type SiteRow struct {
	State       string `csv:"state_name"`
	District    string `csv:"district_name"`
	Subdistrict string `csv:"subdistrict_name"`
	Village     string `csv:"village_name"`
}

// UniqueName returns the composite store key for the site.
func (s SiteRow) UniqueName() string {
	return region.UniqueName(s.State, s.District, s.Subdistrict, s.Village)
}

// ReadSitesCSV loads a batch evaluation site list.
func ReadSitesCSV(path string) ([]SiteRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer file.Close()

	var rows []SiteRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return rows, nil
}
