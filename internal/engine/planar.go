package engine

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Meters per degree of latitude. Longitude spacing shrinks with
// cos(latitude); the projection below handles that.
const metersPerDegree = 111320.0

// circleSegments is the vertex count used when a buffered point is
// rendered as a polygon.
const circleSegments = 64

// projection maps geographic degrees onto a local tangent plane in
// meters, anchored at a reference latitude.
type projection struct {
	lonScale float64
}

func newProjection(refLat float64) projection {
	return projection{lonScale: metersPerDegree * math.Cos(refLat*math.Pi/180)}
}

func (p projection) toMeters(lon, lat float64) (float64, float64) {
	return lon * p.lonScale, lat * metersPerDegree
}

func (p projection) toDegrees(x, y float64) (float64, float64) {
	return x / p.lonScale, y / metersPerDegree
}

// refLatOf picks the projection anchor for a geometry: the vertical
// midpoint of its bounds.
func refLatOf(g geom.T) float64 {
	b := g.Bounds()
	return (b.Min(1) + b.Max(1)) / 2
}

// ring is a closed loop of vertices in meters, without the duplicate
// closing vertex.
type ring struct {
	xs, ys []float64
}

// ringFromFlat projects a go-geom flat-coordinate ring segment onto the
// tangent plane, dropping the duplicate closing vertex if present.
func ringFromFlat(flat []float64, start, end, stride int, proj projection) ring {
	n := (end - start) / stride
	r := ring{xs: make([]float64, 0, n), ys: make([]float64, 0, n)}
	for i := start; i < end; i += stride {
		x, y := proj.toMeters(flat[i], flat[i+1])
		r.xs = append(r.xs, x)
		r.ys = append(r.ys, y)
	}
	if n > 1 && r.xs[0] == r.xs[n-1] && r.ys[0] == r.ys[n-1] {
		r.xs = r.xs[:n-1]
		r.ys = r.ys[:n-1]
	}
	return r
}

// flatCoords converts the ring back to closed geographic flat
// coordinates.
func (r ring) flatCoords(proj projection) []float64 {
	flat := make([]float64, 0, (len(r.xs)+1)*2)
	for i := range r.xs {
		lon, lat := proj.toDegrees(r.xs[i], r.ys[i])
		flat = append(flat, lon, lat)
	}
	if len(r.xs) > 0 {
		lon, lat := proj.toDegrees(r.xs[0], r.ys[0])
		flat = append(flat, lon, lat)
	}
	return flat
}

// signedArea returns the shoelace area: positive for counterclockwise
// winding, negative for clockwise.
func (r ring) signedArea() float64 {
	n := len(r.xs)
	if n < 3 {
		return 0
	}
	area := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += r.xs[i]*r.ys[j] - r.xs[j]*r.ys[i]
	}
	return area / 2
}

// contains reports whether the point is inside the ring, by ray casting.
func (r ring) contains(x, y float64) bool {
	n := len(r.xs)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		if (r.ys[i] > y) != (r.ys[j] > y) &&
			x < (r.xs[j]-r.xs[i])*(y-r.ys[i])/(r.ys[j]-r.ys[i])+r.xs[i] {
			inside = !inside
		}
		j = i
	}
	return inside
}

// offset moves every edge of the ring by d meters along its outward
// normal, joining edges with clamped miters. Positive d grows the
// enclosed area, negative shrinks it. Returns a ring with no vertices
// when the offset collapses the ring.
func (r ring) offset(d float64) ring {
	n := len(r.xs)
	if n < 3 {
		return ring{}
	}

	// Outward normal orientation depends on winding.
	orient := 1.0
	origArea := r.signedArea()
	if origArea < 0 {
		orient = -1.0
	}

	out := ring{xs: make([]float64, 0, n), ys: make([]float64, 0, n)}
	for i := 0; i < n; i++ {
		px, py := r.xs[(i+n-1)%n], r.ys[(i+n-1)%n]
		vx, vy := r.xs[i], r.ys[i]
		nx, ny := r.xs[(i+1)%n], r.ys[(i+1)%n]

		n1x, n1y, ok1 := outwardNormal(px, py, vx, vy, orient)
		n2x, n2y, ok2 := outwardNormal(vx, vy, nx, ny, orient)
		if !ok1 && !ok2 {
			continue
		}
		if !ok1 {
			n1x, n1y = n2x, n2y
		}
		if !ok2 {
			n2x, n2y = n1x, n1y
		}

		// Miter direction bisects the two edge normals.
		bx, by := n1x+n2x, n1y+n2y
		blen := math.Hypot(bx, by)
		if blen < 1e-9 {
			bx, by = n1x, n1y
			blen = 1
		}
		bx, by = bx/blen, by/blen

		scale := d
		if dot := bx*n1x + by*n1y; dot > 0.25 {
			scale = d / dot
		} else {
			// Sharp spike: clamp the miter instead of letting it run.
			scale = d * 4
		}

		out.xs = append(out.xs, vx+bx*scale)
		out.ys = append(out.ys, vy+by*scale)
	}

	if len(out.xs) < 3 {
		return ring{}
	}
	// A collapsed ring flips winding or loses all area.
	newArea := out.signedArea()
	if newArea == 0 || (newArea > 0) != (origArea > 0) {
		return ring{}
	}
	return out
}

// outwardNormal returns the unit normal of edge (ax,ay)→(bx,by) pointing
// away from the ring interior for the given winding orientation.
func outwardNormal(ax, ay, bx, by, orient float64) (float64, float64, bool) {
	dx, dy := bx-ax, by-ay
	length := math.Hypot(dx, dy)
	if length < 1e-9 {
		return 0, 0, false
	}
	dx, dy = dx/length, dy/length
	if orient > 0 {
		return dy, -dx, true
	}
	return -dy, dx, true
}

// circleRing builds a closed circle approximation around (cx, cy) in
// meters.
func circleRing(cx, cy, radius float64) ring {
	r := ring{
		xs: make([]float64, 0, circleSegments),
		ys: make([]float64, 0, circleSegments),
	}
	for i := 0; i < circleSegments; i++ {
		theta := 2 * math.Pi * float64(i) / circleSegments
		r.xs = append(r.xs, cx+radius*math.Cos(theta))
		r.ys = append(r.ys, cy+radius*math.Sin(theta))
	}
	return r
}

// segmentsIntersect reports whether segments p1→p2 and q1→q2 share a
// point, including collinear overlap.
func segmentsIntersect(p1x, p1y, p2x, p2y, q1x, q1y, q2x, q2y float64) bool {
	d1 := cross(q1x, q1y, q2x, q2y, p1x, p1y)
	d2 := cross(q1x, q1y, q2x, q2y, p2x, p2y)
	d3 := cross(p1x, p1y, p2x, p2y, q1x, q1y)
	d4 := cross(p1x, p1y, p2x, p2y, q2x, q2y)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1x, q1y, q2x, q2y, p1x, p1y):
		return true
	case d2 == 0 && onSegment(q1x, q1y, q2x, q2y, p2x, p2y):
		return true
	case d3 == 0 && onSegment(p1x, p1y, p2x, p2y, q1x, q1y):
		return true
	case d4 == 0 && onSegment(p1x, p1y, p2x, p2y, q2x, q2y):
		return true
	}
	return false
}

func cross(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func onSegment(ax, ay, bx, by, px, py float64) bool {
	return math.Min(ax, bx) <= px && px <= math.Max(ax, bx) &&
		math.Min(ay, by) <= py && py <= math.Max(ay, by)
}

// polygonRings extracts each polygon of g as a slice of projected rings
// (outer ring first). Non-areal geometries yield nothing.
func polygonRings(g geom.T, proj projection) [][]ring {
	switch t := g.(type) {
	case *geom.Polygon:
		return [][]ring{polyRings(t.FlatCoords(), t.Ends(), t.Stride(), proj)}
	case *geom.MultiPolygon:
		var out [][]ring
		flat := t.FlatCoords()
		stride := t.Stride()
		for _, ends := range t.Endss() {
			out = append(out, polyRings(flat, ends, stride, proj))
		}
		return out
	default:
		return nil
	}
}

func polyRings(flat []float64, ends []int, stride int, proj projection) []ring {
	rings := make([]ring, 0, len(ends))
	start := 0
	for _, end := range ends {
		rings = append(rings, ringFromFlat(flat, start, end, stride, proj))
		start = end
	}
	return rings
}

// ringsContain reports whether the point lies inside the polygon's outer
// ring and outside all of its holes.
func ringsContain(rings []ring, x, y float64) bool {
	if len(rings) == 0 || !rings[0].contains(x, y) {
		return false
	}
	for _, hole := range rings[1:] {
		if hole.contains(x, y) {
			return false
		}
	}
	return true
}

// geomContains reports whether the geographic coordinate lies inside the
// areal geometry.
func geomContains(g geom.T, proj projection, lon, lat float64) bool {
	x, y := proj.toMeters(lon, lat)
	for _, rings := range polygonRings(g, proj) {
		if ringsContain(rings, x, y) {
			return true
		}
	}
	return false
}

// arealAreaM2 returns the unsigned area of a polygonal geometry in m².
// Holes subtract through winding; per-polygon totals are summed.
func arealAreaM2(g geom.T, proj projection) float64 {
	total := 0.0
	for _, rings := range polygonRings(g, proj) {
		polyArea := 0.0
		for _, r := range rings {
			polyArea += r.signedArea()
		}
		total += math.Abs(polyArea)
	}
	return total
}
