// Package store persists the administrative hierarchy and village
// boundaries evaluations run against. Two implementations exist:
// Postgres for shared deployments and SQLite for single-machine use.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/basin-labs/controlsite/internal/region"
)

// ErrNotFound reports a missing row. Both implementations return it
// wrapped with the entity and ID.
var ErrNotFound = eris.New("store: not found")

// Unit is one row of the state/district/subdistrict hierarchy.
type Unit struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Village is a village row. The boundary is stored separately as EWKB
// and fetched with VillageBoundary.
type Village struct {
	ID            string    `json:"id"`
	SubdistrictID string    `json:"subdistrict_id"`
	Name          string    `json:"name"`
	Code          string    `json:"code,omitempty"`
	UniqueName    string    `json:"unique_name"`
	HasBoundary   bool      `json:"has_boundary"`
	CreatedAt     time.Time `json:"created_at"`
}

// AsRegion pairs the village row with its boundary geometry for the
// matcher and sampler.
func (v *Village) AsRegion(boundary geom.T) region.Region {
	return region.Region{
		ID:    v.ID,
		Name:  v.Name,
		Level: region.LevelVillage,
		Attrs: map[string]string{
			region.KeyVillage: v.Name,
		},
		Geom: boundary,
	}
}

// Store defines persistence for the admin hierarchy and boundaries.
type Store interface {
	// Hierarchy upserts. Conflicts on natural keys keep the existing
	// row ID so re-ingesting is idempotent.
	UpsertState(ctx context.Context, name, code string) (*Unit, error)
	UpsertDistrict(ctx context.Context, stateID, name, code string) (*Unit, error)
	UpsertSubdistrict(ctx context.Context, districtID, name, code string) (*Unit, error)
	UpsertVillage(ctx context.Context, subdistrictID, name, code, uniqueName string) (*Village, error)

	// Hierarchy walks, ordered by name.
	States(ctx context.Context) ([]Unit, error)
	Districts(ctx context.Context, stateID string) ([]Unit, error)
	Subdistricts(ctx context.Context, districtID string) ([]Unit, error)
	Villages(ctx context.Context, subdistrictID string) ([]Village, error)

	// Lookups.
	VillageByName(ctx context.Context, uniqueName string) (*Village, error)
	SiblingVillages(ctx context.Context, villageID string) ([]Village, error)

	// Boundaries, EWKB-encoded with SRID 4326.
	SetVillageBoundary(ctx context.Context, villageID string, g geom.T) error
	VillageBoundary(ctx context.Context, villageID string) (geom.T, error)

	// Lifecycle.
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func encodeBoundary(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode boundary")
	}
	return data, nil
}

func decodeBoundary(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode boundary")
	}
	return g, nil
}
