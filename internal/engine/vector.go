package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/region"
)

// Vector is the in-memory vector backend: a loaded region pool plus
// planar geometry operations. It implements backend.Vector.
type Vector struct {
	regions region.Pool
}

// NewVector builds a vector engine over the given regions. Filter
// results preserve this order.
func NewVector(regions ...region.Region) *Vector {
	v := &Vector{regions: make(region.Pool, 0, len(regions))}
	v.regions = append(v.regions, regions...)
	return v
}

// Add appends a region to the engine's pool.
func (v *Vector) Add(r region.Region) {
	v.regions = append(v.regions, r)
}

// Len returns the number of loaded regions.
func (v *Vector) Len() int {
	return len(v.regions)
}

// Filter returns the regions matching the selector, in insertion order.
func (v *Vector) Filter(ctx context.Context, sel region.Selector) (region.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: filter")
	}
	var out region.Pool
	for i := range v.regions {
		if sel.Matches(&v.regions[i]) {
			out = append(out, v.regions[i])
		}
	}
	return out, nil
}

// Area returns the geodesic area of g in m². Non-areal geometries have
// area 0.
func (v *Vector) Area(ctx context.Context, g geom.T) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "engine: area")
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return 0, nil
	}
	proj := newProjection(refLatOf(g))
	return arealAreaM2(g, proj), nil
}

// Buffer offsets g by distance meters. Points become circle polygons;
// polygons are offset edge-wise with miter joins. An erosion that
// collapses the geometry returns an empty polygon.
func (v *Vector) Buffer(ctx context.Context, g geom.T, distance float64) (geom.T, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: buffer")
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "engine: buffer of empty geometry")
	}

	proj := newProjection(refLatOf(g))

	switch t := g.(type) {
	case *geom.Point:
		if distance <= 0 {
			return geom.NewPolygon(geom.XY).SetSRID(4326), nil
		}
		cx, cy := proj.toMeters(t.X(), t.Y())
		circle := circleRing(cx, cy, distance)
		poly := geom.NewPolygonFlat(geom.XY, circle.flatCoords(proj), []int{len(circle.xs)*2 + 2})
		return poly.SetSRID(4326), nil

	case *geom.Polygon:
		rings := polyRings(t.FlatCoords(), t.Ends(), t.Stride(), proj)
		out := offsetPolygon(rings, distance)
		return buildPolygon(out, proj).SetSRID(4326), nil

	case *geom.MultiPolygon:
		mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
		for _, rings := range polygonRings(t, proj) {
			out := offsetPolygon(rings, distance)
			if len(out) == 0 {
				continue
			}
			if err := mp.Push(buildPolygon(out, proj)); err != nil {
				return nil, eris.Wrap(err, "engine: assemble buffered polygon")
			}
		}
		return mp, nil

	default:
		return nil, eris.Wrapf(backend.ErrInvalidGeometry, "engine: buffer unsupported geometry %T", g)
	}
}

// offsetPolygon offsets a polygon's rings: the outer ring by d, holes by
// -d so dilation shrinks them and erosion grows them. Collapsed rings
// drop out; a collapsed outer ring empties the polygon.
func offsetPolygon(rings []ring, d float64) []ring {
	if len(rings) == 0 {
		return nil
	}
	outer := rings[0].offset(d)
	if len(outer.xs) == 0 {
		return nil
	}
	out := []ring{outer}
	for _, hole := range rings[1:] {
		if moved := hole.offset(-d); len(moved.xs) > 0 {
			out = append(out, moved)
		}
	}
	return out
}

// buildPolygon assembles projected rings back into a geographic polygon.
func buildPolygon(rings []ring, proj projection) *geom.Polygon {
	poly := geom.NewPolygon(geom.XY)
	if len(rings) == 0 {
		return poly
	}
	var flat []float64
	ends := make([]int, 0, len(rings))
	for _, r := range rings {
		flat = append(flat, r.flatCoords(proj)...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// Centroid returns the centroid of g.
func (v *Vector) Centroid(ctx context.Context, g geom.T) (geom.Coord, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: centroid")
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "engine: centroid of empty geometry")
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.Coord{t.X(), t.Y()}, nil
	case *geom.Polygon:
		return xy.PolygonsCentroid(t), nil
	case *geom.MultiPolygon:
		polys := make([]*geom.Polygon, t.NumPolygons())
		for i := range polys {
			polys[i] = t.Polygon(i)
		}
		return xy.PolygonsCentroid(polys...), nil
	default:
		return nil, eris.Wrapf(backend.ErrInvalidGeometry, "engine: centroid unsupported geometry %T", g)
	}
}

// Intersects reports whether a and b share any point. Bounds are checked
// first; then vertex containment both ways; then edge crossings.
func (v *Vector) Intersects(ctx context.Context, a, b geom.T) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, eris.Wrap(err, "engine: intersects")
	}
	if a == nil || b == nil || len(a.FlatCoords()) == 0 || len(b.FlatCoords()) == 0 {
		return false, nil
	}
	if !a.Bounds().Overlaps(geom.XY, b.Bounds()) {
		return false, nil
	}

	proj := newProjection((refLatOf(a) + refLatOf(b)) / 2)

	// Point cases.
	if pa, ok := a.(*geom.Point); ok {
		return geomContains(b, proj, pa.X(), pa.Y()), nil
	}
	if pb, ok := b.(*geom.Point); ok {
		return geomContains(a, proj, pb.X(), pb.Y()), nil
	}

	ringsA := allRings(a, proj)
	ringsB := allRings(b, proj)
	if len(ringsA) == 0 || len(ringsB) == 0 {
		return false, nil
	}

	// Any vertex of one inside the other covers containment.
	if anyVertexInside(ringsA, b, proj) || anyVertexInside(ringsB, a, proj) {
		return true, nil
	}

	// Otherwise boundaries must cross.
	for _, ra := range ringsA {
		for _, rb := range ringsB {
			if ringsCross(ra, rb) {
				return true, nil
			}
		}
	}
	return false, nil
}

func allRings(g geom.T, proj projection) []ring {
	var out []ring
	for _, rings := range polygonRings(g, proj) {
		out = append(out, rings...)
	}
	return out
}

func anyVertexInside(rings []ring, g geom.T, proj projection) bool {
	for _, r := range rings {
		for i := range r.xs {
			lon, lat := proj.toDegrees(r.xs[i], r.ys[i])
			if geomContains(g, proj, lon, lat) {
				return true
			}
		}
	}
	return false
}

func ringsCross(a, b ring) bool {
	na, nb := len(a.xs), len(b.xs)
	for i := 0; i < na; i++ {
		i2 := (i + 1) % na
		for j := 0; j < nb; j++ {
			j2 := (j + 1) % nb
			if segmentsIntersect(
				a.xs[i], a.ys[i], a.xs[i2], a.ys[i2],
				b.xs[j], b.ys[j], b.xs[j2], b.ys[j2],
			) {
				return true
			}
		}
	}
	return false
}
