package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/basin-labs/controlsite/internal/region"
)

// VillageRegion loads one village with its boundary geometry.
func VillageRegion(ctx context.Context, st Store, uniqueName string) (region.Region, error) {
	v, err := st.VillageByName(ctx, uniqueName)
	if err != nil {
		return region.Region{}, err
	}
	g, err := st.VillageBoundary(ctx, v.ID)
	if err != nil {
		return region.Region{}, eris.Wrapf(err, "store: village %q", uniqueName)
	}
	return v.AsRegion(g), nil
}

// TreatedAndPool loads the named village as the treated region together
// with its boundary-bearing siblings as the candidate pool. Siblings
// without a stored boundary are skipped since they cannot be evaluated.
// Pool order follows SiblingVillages, ascending by name, which fixes
// the tie-break order downstream.
func TreatedAndPool(ctx context.Context, st Store, uniqueName string) (region.Region, region.Pool, error) {
	treated, err := VillageRegion(ctx, st, uniqueName)
	if err != nil {
		return region.Region{}, nil, err
	}

	siblings, err := st.SiblingVillages(ctx, treated.ID)
	if err != nil {
		return region.Region{}, nil, err
	}
	pool := make(region.Pool, 0, len(siblings))
	for i := range siblings {
		s := &siblings[i]
		if !s.HasBoundary {
			continue
		}
		g, err := st.VillageBoundary(ctx, s.ID)
		if err != nil {
			return region.Region{}, nil, eris.Wrapf(err, "store: sibling %q", s.UniqueName)
		}
		pool = append(pool, s.AsRegion(g))
	}
	return treated, pool, nil
}
