// Package region defines the administrative-region model shared by the
// matcher, sampler, stores, and backends. Regions follow the four-level
// hierarchy used by the boundary datasets: state, district, subdistrict,
// village.
package region

import (
	"github.com/twpayne/go-geom"
)

// Level identifies a tier in the administrative hierarchy.
type Level string

const (
	LevelState       Level = "state"
	LevelDistrict    Level = "district"
	LevelSubdistrict Level = "subdistrict"
	LevelVillage     Level = "village"
)

// Attribute keys carried over from the SHRUG boundary datasets. Backends
// filter on these; the matcher uses KeyVillage to drop unnamed members.
const (
	KeyState       = "state_name"
	KeyDistrict    = "district_n"
	KeySubdistrict = "subdistric"
	KeyVillage     = "village_na"
)

// Region is a single administrative unit: identity, display name, level,
// the source attribute row, and boundary geometry (SRID 4326). Geometry
// is excluded from JSON; callers that need it encode GeoJSON explicitly.
type Region struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Level Level             `json:"level"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Geom  geom.T            `json:"-"`
}

// Attr returns the named attribute or "" when absent.
func (r *Region) Attr(key string) string {
	if r.Attrs == nil {
		return ""
	}
	return r.Attrs[key]
}

// Pool is an ordered collection of candidate regions. Iteration order is
// the order members were added; selection logic depends on it for stable
// tie-breaking.
type Pool []Region

// Exclude returns a new pool without the region carrying the given ID.
// Order is preserved.
func (p Pool) Exclude(id string) Pool {
	out := make(Pool, 0, len(p))
	for _, r := range p {
		if r.ID == id {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Named returns a new pool containing only members whose display name is
// non-empty. Order is preserved.
func (p Pool) Named() Pool {
	out := make(Pool, 0, len(p))
	for _, r := range p {
		if r.Name == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Selector is an attribute-equality filter evaluated by vector backends.
type Selector map[string]string

// Matches reports whether every selector entry equals the region's
// corresponding attribute.
func (s Selector) Matches(r *Region) bool {
	for k, v := range s {
		if r.Attr(k) != v {
			return false
		}
	}
	return true
}
