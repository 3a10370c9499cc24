package groundwater

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/fetcher"
)

// Production I-WRIS endpoints.
const (
	DefaultStationURL = "https://arc.indiawris.gov.in/server/rest/services/NWIC/GroundwaterLevel_Stations/MapServer/0/query"
	DefaultDataURL    = "https://indiawris.gov.in/gwldnlddata"
)

const agencyName = "CGWB"

// Client defines the I-WRIS operations used here.
type Client interface {
	// Stations lists CGWB stations whose location falls inside the
	// lon/lat envelope.
	Stations(ctx context.Context, bounds *geom.Bounds) ([]Station, error)
	// Levels fetches one hydrological year (July to July) of daily
	// levels for every station in a state.
	Levels(ctx context.Context, year int, state string) ([]StationSeries, error)
}

// StationSeries is one station's level series in a data response.
type StationSeries struct {
	StationName string        `json:"Station_name"`
	Data        []LevelSample `json:"Data"`
}

// LevelSample is a single depth-to-water reading in meters below ground.
type LevelSample struct {
	Level float64 `json:"level"`
}

// Option configures the I-WRIS client.
type Option func(*httpClient)

// WithStationURL sets a custom station query URL (for testing).
func WithStationURL(u string) Option {
	return func(c *httpClient) {
		c.stationURL = u
	}
}

// WithDataURL sets a custom level data URL (for testing).
func WithDataURL(u string) Option {
	return func(c *httpClient) {
		c.dataURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	stationURL string
	dataURL    string
	http       *http.Client
}

// NewClient creates an I-WRIS client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		stationURL: DefaultStationURL,
		dataURL:    DefaultDataURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				// indiawris.gov.in serves an incomplete certificate
				// chain.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type stationFeature struct {
	Properties struct {
		StationName string `json:"station_name"`
		StateName   string `json:"state_name"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

type stationResponse struct {
	Features []stationFeature `json:"features"`
}

func (c *httpClient) Stations(ctx context.Context, bounds *geom.Bounds) ([]Station, error) {
	envelope := fmt.Sprintf(
		`{"spatialReference":{"latestWkid":4326,"wkid":4326},"xmin":%g,"ymin":%g,"xmax":%g,"ymax":%g}`,
		bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1),
	)

	params := url.Values{}
	params.Set("where", fmt.Sprintf("agency_name='%s'", agencyName))
	params.Set("geometry", envelope)
	params.Set("geometryType", "esriGeometryEnvelope")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("inSR", "4326")
	params.Set("outSR", "4326")
	params.Set("outFields", "*")
	params.Set("returnGeometry", "true")
	params.Set("orderByFields", "objectid ASC")
	params.Set("f", "geojson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.stationURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: create station request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: station request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: read station response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("groundwater: station query status %d: %s", resp.StatusCode, string(body))
	}

	parsed, err := fetcher.DecodeJSONObject[stationResponse](bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: decode station response")
	}

	stations := make([]Station, 0, len(parsed.Features))
	for _, feat := range parsed.Features {
		if len(feat.Geometry.Coordinates) < 2 {
			continue
		}
		stations = append(stations, Station{
			Name:  feat.Properties.StationName,
			State: feat.Properties.StateName,
			Lon:   feat.Geometry.Coordinates[0],
			Lat:   feat.Geometry.Coordinates[1],
		})
	}
	return stations, nil
}

type levelRequest struct {
	StnVal levelParams `json:"stnVal"`
}

type levelParams struct {
	AgencyName string `json:"Agency_name"`
	Child      string `json:"Child"`
	StartDate  string `json:"Startdate"`
	EndDate    string `json:"Enddate"`
	Parent     string `json:"Parent"`
	ReportType string `json:"Reporttype"`
	Station    string `json:"Station"`
	Timestep   string `json:"Timestep"`
	View       string `json:"View"`
	FileName   string `json:"file_name"`
}

func (c *httpClient) Levels(ctx context.Context, year int, state string) ([]StationSeries, error) {
	payload := levelRequest{StnVal: levelParams{
		AgencyName: agencyName,
		Child:      "All",
		StartDate:  fmt.Sprintf("%d-07-01", year),
		EndDate:    fmt.Sprintf("%d-07-01", year+1),
		Parent:     fmt.Sprintf("\"'%s'\"", state),
		ReportType: "GWL data",
		Station:    "All",
		Timestep:   "Daily",
		View:       "Admin",
		FileName:   "Sample",
	}}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: marshal level request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dataURL, bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: create level request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: level request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("groundwater: level query status %d for %s %d", resp.StatusCode, state, year)
	}

	// Responses can run to tens of megabytes for a full state, so decode
	// the array streaming instead of buffering it.
	records, errCh := fetcher.DecodeJSONArray[StationSeries](ctx, resp.Body)
	var series []StationSeries
	for rec := range records {
		series = append(series, rec)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "groundwater: decode level response for %s %d", state, year)
	}
	return series, nil
}
