// Package geometry provides the small geometry vocabulary the analysis
// core shares: area, buffer, and centroid over an injected vector
// backend. It adds validation and error context; the math itself lives
// behind the backend.
package geometry

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/region"
)

// Kit wraps a vector backend with the operations the matcher and sampler
// compose. A Kit is cheap and stateless; construct one per backend.
type Kit struct {
	vec backend.Vector
}

// NewKit returns a Kit over the given vector backend.
func NewKit(vec backend.Vector) *Kit {
	return &Kit{vec: vec}
}

// IsEmpty reports whether g is nil or has no coordinates.
func IsEmpty(g geom.T) bool {
	return g == nil || len(g.FlatCoords()) == 0
}

// FirstOrEmpty returns the first region of a pool, or nil for an empty
// pool. Attribute filters may match zero, one, or several regions (the
// boundary datasets carry duplicate names); first-in-pool-order wins.
func FirstOrEmpty(pool region.Pool) *region.Region {
	if len(pool) == 0 {
		return nil
	}
	return &pool[0]
}

// Area returns the geodesic area of g in m². Nil and empty geometries
// have area 0.
func (k *Kit) Area(ctx context.Context, g geom.T) (float64, error) {
	if IsEmpty(g) {
		return 0, nil
	}
	a, err := k.vec.Area(ctx, g)
	if err != nil {
		return 0, eris.Wrap(err, "geometry: area")
	}
	return a, nil
}

// Buffer dilates or erodes g by distance meters. The result of an
// erosion may be empty; callers decide whether that is acceptable.
func (k *Kit) Buffer(ctx context.Context, g geom.T, distance float64) (geom.T, error) {
	if IsEmpty(g) {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "geometry: buffer of empty geometry")
	}
	out, err := k.vec.Buffer(ctx, g, distance)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: buffer")
	}
	return out, nil
}

// Centroid returns the centroid of g.
func (k *Kit) Centroid(ctx context.Context, g geom.T) (geom.Coord, error) {
	if IsEmpty(g) {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "geometry: centroid of empty geometry")
	}
	c, err := k.vec.Centroid(ctx, g)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: centroid")
	}
	return c, nil
}

// Intersects reports whether a and b share any point.
func (k *Kit) Intersects(ctx context.Context, a, b geom.T) (bool, error) {
	if IsEmpty(a) || IsEmpty(b) {
		return false, nil
	}
	ok, err := k.vec.Intersects(ctx, a, b)
	if err != nil {
		return false, eris.Wrap(err, "geometry: intersects")
	}
	return ok, nil
}
