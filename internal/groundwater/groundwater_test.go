package groundwater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/region"
)

// ----------------------------------------------------------------------------
// Distance and station helpers
// ----------------------------------------------------------------------------

func TestDistanceKm(t *testing.T) {
	// Delhi to Agra.
	assert.InDelta(t, 178.0, DistanceKm(28.6139, 77.2090, 27.1767, 78.0081), 1.0)

	// One degree of longitude at the equator.
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 0, 1), 0.01)

	assert.Equal(t, 0.0, DistanceKm(18.5, 75.5, 18.5, 75.5))
}

func TestNearest(t *testing.T) {
	stations := []Station{
		{Name: "far", Lon: 75.5, Lat: 18.5},
		{Name: "near", Lon: 75.01, Lat: 18.01},
		{Name: "mid", Lon: 75.1, Lat: 18.1},
	}

	ordered := Nearest(75.0, 18.0, stations)
	require.Len(t, ordered, 3)
	assert.Equal(t, "near", ordered[0].Name)
	assert.Equal(t, "mid", ordered[1].Name)
	assert.Equal(t, "far", ordered[2].Name)

	// Input slice untouched.
	assert.Equal(t, "far", stations[0].Name)
}

func TestWithinKm(t *testing.T) {
	stations := []Station{
		{Name: "near", Lon: 75.01, Lat: 18.01},  // ~1.6 km
		{Name: "far", Lon: 76.0, Lat: 19.0},     // ~150 km
		{Name: "edge", Lon: 75.05, Lat: 18.05},  // ~7.8 km
	}

	near := WithinKm(75.0, 18.0, stations, 10.0)
	require.Len(t, near, 2)
	assert.Equal(t, "near", near[0].Name)
	assert.Equal(t, "edge", near[1].Name)
}

func TestStates(t *testing.T) {
	stations := []Station{
		{Name: "a", State: "Rajasthan"},
		{Name: "b", State: "Madhya Pradesh"},
		{Name: "c", State: "Rajasthan"},
	}
	assert.Equal(t, []string{"Rajasthan", "Madhya Pradesh"}, States(stations))
}

// ----------------------------------------------------------------------------
// HTTP client
// ----------------------------------------------------------------------------

func TestClient_Stations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "agency_name='CGWB'", q.Get("where"))
		assert.Equal(t, "esriGeometryEnvelope", q.Get("geometryType"))
		assert.Equal(t, "geojson", q.Get("f"))
		assert.Contains(t, q.Get("geometry"), `"xmin":75`)

		fmt.Fprint(w, `{"features":[
			{"properties":{"station_name":"Khandala Dug Well","state_name":"Maharashtra"},"geometry":{"coordinates":[75.02,18.03]}},
			{"properties":{"station_name":"Broken"},"geometry":{"coordinates":[]}},
			{"properties":{"station_name":"Wai Piezometer","state_name":"Maharashtra"},"geometry":{"coordinates":[75.11,18.07]}}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(WithStationURL(srv.URL), WithHTTPClient(srv.Client()))
	bounds := geom.NewBounds(geom.XY).Set(75.0, 18.0, 75.2, 18.2)

	stations, err := c.Stations(context.Background(), bounds)
	require.NoError(t, err)

	// The feature without coordinates is dropped.
	require.Len(t, stations, 2)
	assert.Equal(t, "Khandala Dug Well", stations[0].Name)
	assert.Equal(t, "Maharashtra", stations[0].State)
	assert.Equal(t, 75.02, stations[0].Lon)
	assert.Equal(t, 18.03, stations[0].Lat)
}

func TestClient_StationsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithStationURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Stations(context.Background(), geom.NewBounds(geom.XY).Set(0, 0, 1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClient_Levels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		stn := req["stnVal"]
		assert.Equal(t, "CGWB", stn["Agency_name"])
		assert.Equal(t, "2019-07-01", stn["Startdate"])
		assert.Equal(t, "2020-07-01", stn["Enddate"])
		assert.Equal(t, `"'Maharashtra'"`, stn["Parent"])
		assert.Equal(t, "Daily", stn["Timestep"])

		fmt.Fprint(w, `[{"Station_name":"Khandala Dug Well","Data":[{"level":5.2},{"level":3.1}]}]`)
	}))
	defer srv.Close()

	c := NewClient(WithDataURL(srv.URL), WithHTTPClient(srv.Client()))
	series, err := c.Levels(context.Background(), 2019, "Maharashtra")
	require.NoError(t, err)

	require.Len(t, series, 1)
	assert.Equal(t, "Khandala Dug Well", series[0].StationName)
	require.Len(t, series[0].Data, 2)
	assert.Equal(t, 5.2, series[0].Data[0].Level)
}

// ----------------------------------------------------------------------------
// Service
// ----------------------------------------------------------------------------

// fakeVector implements backend.Vector. Buffer returns its input, so the
// station envelope is the raw village bounds.
type fakeVector struct {
	centroid geom.Coord
}

func (f *fakeVector) Filter(_ context.Context, _ region.Selector) (region.Pool, error) {
	return nil, nil
}

func (f *fakeVector) Area(_ context.Context, _ geom.T) (float64, error) {
	return 0, nil
}

func (f *fakeVector) Buffer(_ context.Context, g geom.T, _ float64) (geom.T, error) {
	return g, nil
}

func (f *fakeVector) Centroid(_ context.Context, _ geom.T) (geom.Coord, error) {
	return f.centroid, nil
}

func (f *fakeVector) Intersects(_ context.Context, _, _ geom.T) (bool, error) {
	return true, nil
}

// fakeClient implements Client with canned stations and levels keyed by
// "year:state".
type fakeClient struct {
	stations   []Station
	levels     map[string][]StationSeries
	levelErrs  map[string]error
	levelCalls int
}

func (f *fakeClient) Stations(_ context.Context, _ *geom.Bounds) ([]Station, error) {
	return f.stations, nil
}

func (f *fakeClient) Levels(_ context.Context, year int, state string) ([]StationSeries, error) {
	f.levelCalls++
	key := fmt.Sprintf("%d:%s", year, state)
	if err, ok := f.levelErrs[key]; ok {
		return nil, err
	}
	return f.levels[key], nil
}

func series(name string, levels ...float64) StationSeries {
	s := StationSeries{StationName: name}
	for _, l := range levels {
		s.Data = append(s.Data, LevelSample{Level: l})
	}
	return s
}

func testVillage() region.Region {
	g := geom.NewPolygonFlat(geom.XY, []float64{
		75, 18, 75.01, 18, 75.01, 18.01, 75, 18.01, 75, 18,
	}, []int{10})
	return region.Region{ID: "village-1", Name: "village-1", Level: region.LevelVillage, Geom: g}
}

func TestVillageLevels_NearestStationWins(t *testing.T) {
	near := Station{Name: "near", State: "Maharashtra", Lon: 75.01, Lat: 18.01}
	farther := Station{Name: "farther", State: "Maharashtra", Lon: 75.05, Lat: 18.05}

	client := &fakeClient{
		stations: []Station{farther, near},
		levels: map[string][]StationSeries{
			"2017:Maharashtra": {
				series("near", 5.2, 3.1, 8.4),
				series("farther", 50.0),
			},
			"2018:Maharashtra": {
				series("farther", 12.0, 14.5),
			},
		},
	}

	svc := NewService(&fakeVector{centroid: geom.Coord{75.005, 18.005}}, client, Config{
		StartYear: 2017,
		EndYear:   2018,
	})
	out, err := svc.VillageLevels(context.Background(), testVillage())
	require.NoError(t, err)
	require.Len(t, out, 2)

	// 2017 comes from the nearest station only; the farther one's 50.0
	// never leaks in.
	require.NotNil(t, out[2017].Min)
	assert.Equal(t, 3.1, *out[2017].Min)
	assert.Equal(t, 8.4, *out[2017].Max)

	// 2018 has no data at the nearest station, so the farther one
	// fills it.
	require.NotNil(t, out[2018].Min)
	assert.Equal(t, 12.0, *out[2018].Min)
	assert.Equal(t, 14.5, *out[2018].Max)
}

func TestVillageLevels_NoStations(t *testing.T) {
	svc := NewService(&fakeVector{centroid: geom.Coord{75.005, 18.005}}, &fakeClient{}, Config{})
	out, err := svc.VillageLevels(context.Background(), testVillage())
	require.NoError(t, err)

	// Full default year range, all empty.
	require.Len(t, out, DefaultEndYear-DefaultStartYear+1)
	for year := DefaultStartYear; year <= DefaultEndYear; year++ {
		assert.Nil(t, out[year].Min)
		assert.Nil(t, out[year].Max)
	}
}

func TestVillageLevels_AllStationsBeyondCutoff(t *testing.T) {
	client := &fakeClient{
		stations: []Station{{Name: "distant", State: "Maharashtra", Lon: 76.5, Lat: 19.5}},
	}

	svc := NewService(&fakeVector{centroid: geom.Coord{75.005, 18.005}}, client, Config{
		StartYear: 2017,
		EndYear:   2018,
	})
	out, err := svc.VillageLevels(context.Background(), testVillage())
	require.NoError(t, err)

	assert.Nil(t, out[2017].Min)
	assert.Nil(t, out[2018].Min)

	// No level fetches when nothing is in range.
	assert.Equal(t, 0, client.levelCalls)
}

func TestVillageLevels_FetchFailureIsMissingYear(t *testing.T) {
	near := Station{Name: "near", State: "Maharashtra", Lon: 75.01, Lat: 18.01}
	client := &fakeClient{
		stations: []Station{near},
		levels: map[string][]StationSeries{
			"2018:Maharashtra": {series("near", 7.7)},
		},
		levelErrs: map[string]error{
			"2017:Maharashtra": eris.New("portal timeout"),
		},
	}

	svc := NewService(&fakeVector{centroid: geom.Coord{75.005, 18.005}}, client, Config{
		StartYear: 2017,
		EndYear:   2018,
	})
	out, err := svc.VillageLevels(context.Background(), testVillage())
	require.NoError(t, err)

	assert.Nil(t, out[2017].Min)
	require.NotNil(t, out[2018].Min)
	assert.Equal(t, 7.7, *out[2018].Min)
	assert.Equal(t, 7.7, *out[2018].Max)
}

func TestVillageLevels_EmptyGeometry(t *testing.T) {
	svc := NewService(&fakeVector{}, &fakeClient{}, Config{})
	_, err := svc.VillageLevels(context.Background(), region.Region{ID: "bare"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, backend.ErrInvalidGeometry))
}
