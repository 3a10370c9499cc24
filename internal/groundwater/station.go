// Package groundwater reads groundwater-level observations from the
// I-WRIS network. Villages rarely host a monitoring well, so levels are
// taken from the nearest CGWB stations within a fixed radius of the
// village centroid.
package groundwater

import (
	"math"
	"sort"
)

// EarthRadiusKm is the sphere radius used for station distances.
const EarthRadiusKm = 6371.0

// Station is one CGWB groundwater monitoring station.
type Station struct {
	Name  string  `json:"name"`
	State string  `json:"state"`
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
}

// DistanceKm returns the haversine distance between two points in
// kilometers.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinDPhi := math.Sin(dPhi / 2)
	sinDLambda := math.Sin(dLambda / 2)
	a := sinDPhi*sinDPhi + math.Cos(phi1)*math.Cos(phi2)*sinDLambda*sinDLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Nearest orders stations by distance from the point, closest first.
// Equal distances keep their input order.
func Nearest(lon, lat float64, stations []Station) []Station {
	out := make([]Station, len(stations))
	copy(out, stations)
	sort.SliceStable(out, func(i, j int) bool {
		return DistanceKm(lat, lon, out[i].Lat, out[i].Lon) < DistanceKm(lat, lon, out[j].Lat, out[j].Lon)
	})
	return out
}

// WithinKm keeps the stations no farther than maxKm from the point,
// preserving order.
func WithinKm(lon, lat float64, stations []Station, maxKm float64) []Station {
	out := make([]Station, 0, len(stations))
	for _, s := range stations {
		if DistanceKm(lat, lon, s.Lat, s.Lon) <= maxKm {
			out = append(out, s)
		}
	}
	return out
}

// States returns the distinct state names covered by the stations, in
// first-seen order.
func States(stations []Station) []string {
	seen := make(map[string]struct{}, len(stations))
	out := make([]string, 0, len(stations))
	for _, s := range stations {
		if _, ok := seen[s.State]; ok {
			continue
		}
		seen[s.State] = struct{}{}
		out = append(out, s.State)
	}
	return out
}
