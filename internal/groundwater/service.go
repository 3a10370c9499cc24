package groundwater

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/geometry"
	"github.com/basin-labs/controlsite/internal/region"
)

// Defaults applied when Config fields are zero.
const (
	DefaultBufferMeters  = 10_000.0
	DefaultMaxDistanceKm = 10.0
	DefaultStartYear     = 2017
	DefaultEndYear       = 2022
)

// Config tunes the level lookup. Zero values fall back to the defaults
// above.
type Config struct {
	// BufferMeters is the envelope distance around the village when
	// listing candidate stations.
	BufferMeters float64

	// MaxDistanceKm is the centroid cutoff: stations farther than this
	// never contribute readings.
	MaxDistanceKm float64

	// StartYear and EndYear bound the reported hydrological years,
	// inclusive.
	StartYear int
	EndYear   int
}

// LevelRange is the min/max depth to water for one year, in meters
// below ground. Both are nil when no station in range reported data.
type LevelRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// Service answers groundwater-level queries for villages.
type Service struct {
	kit    *geometry.Kit
	client Client
	cfg    Config
}

// NewService builds a Service over the vector backend and I-WRIS client.
func NewService(vec backend.Vector, client Client, cfg Config) *Service {
	if cfg.BufferMeters == 0 {
		cfg.BufferMeters = DefaultBufferMeters
	}
	if cfg.MaxDistanceKm == 0 {
		cfg.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if cfg.StartYear == 0 {
		cfg.StartYear = DefaultStartYear
	}
	if cfg.EndYear == 0 {
		cfg.EndYear = DefaultEndYear
	}
	return &Service{kit: geometry.NewKit(vec), client: client, cfg: cfg}
}

type yearBatch struct {
	year   int
	series []StationSeries
}

// VillageLevels reports per-year min/max groundwater levels near the
// village. Stations are taken from an envelope around the buffered
// village geometry, ordered by distance from the centroid, and cut off
// at MaxDistanceKm; the nearest station with data for a year supplies
// that year's readings. Years with no reachable data come back with nil
// bounds rather than an error, and so does a village with no stations
// in range at all. Individual I-WRIS year fetches fail soft: the portal
// drops whole years routinely, and a gap is recorded as missing data.
func (s *Service) VillageLevels(ctx context.Context, village region.Region) (map[int]LevelRange, error) {
	log := zap.L().With(
		zap.String("component", "groundwater"),
		zap.String("village", village.ID),
	)

	if geometry.IsEmpty(village.Geom) {
		return nil, eris.Wrapf(backend.ErrInvalidGeometry, "groundwater: village %s has no geometry", village.ID)
	}

	buffered, err := s.kit.Buffer(ctx, village.Geom, s.cfg.BufferMeters)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: buffer village")
	}

	stations, err := s.client.Stations(ctx, buffered.Bounds())
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: list stations")
	}
	if len(stations) == 0 {
		log.Info("no stations in envelope")
		return s.emptyRanges(), nil
	}

	centroid, err := s.kit.Centroid(ctx, village.Geom)
	if err != nil {
		return nil, eris.Wrap(err, "groundwater: village centroid")
	}

	near := WithinKm(centroid[0], centroid[1], Nearest(centroid[0], centroid[1], stations), s.cfg.MaxDistanceKm)
	if len(near) == 0 {
		log.Info("no stations within cutoff",
			zap.Int("envelope_stations", len(stations)),
			zap.Float64("cutoff_km", s.cfg.MaxDistanceKm),
		)
		return s.emptyRanges(), nil
	}

	batches := make([]yearBatch, 0, (s.cfg.EndYear-s.cfg.StartYear+1)*2)
	for year := s.cfg.StartYear; year <= s.cfg.EndYear; year++ {
		for _, state := range States(near) {
			series, err := s.client.Levels(ctx, year, state)
			if err != nil {
				log.Warn("level fetch failed, treating year as missing",
					zap.Int("year", year),
					zap.String("state", state),
					zap.Error(err),
				)
				continue
			}
			batches = append(batches, yearBatch{year: year, series: series})
		}
	}

	yearValues := make(map[int][]float64, s.cfg.EndYear-s.cfg.StartYear+1)
	for year := s.cfg.StartYear; year <= s.cfg.EndYear; year++ {
		yearValues[year] = nil
	}

	// Nearest station first. A station only fills years that were still
	// empty when its turn came, so closer wells shadow farther ones.
	for _, st := range near {
		filled := make(map[int]bool, len(yearValues))
		for year, vals := range yearValues {
			if len(vals) > 0 {
				filled[year] = true
			}
		}
		for _, batch := range batches {
			if filled[batch.year] {
				continue
			}
			for _, entry := range batch.series {
				if entry.StationName != st.Name {
					continue
				}
				for _, sample := range entry.Data {
					yearValues[batch.year] = append(yearValues[batch.year], sample.Level)
				}
			}
		}
	}

	out := make(map[int]LevelRange, len(yearValues))
	years := 0
	for year, vals := range yearValues {
		out[year] = rangeOf(vals)
		if len(vals) > 0 {
			years++
		}
	}
	log.Info("levels resolved",
		zap.Int("stations_near", len(near)),
		zap.Int("years_with_data", years),
	)
	return out, nil
}

func (s *Service) emptyRanges() map[int]LevelRange {
	out := make(map[int]LevelRange, s.cfg.EndYear-s.cfg.StartYear+1)
	for year := s.cfg.StartYear; year <= s.cfg.EndYear; year++ {
		out[year] = LevelRange{}
	}
	return out
}

func rangeOf(vals []float64) LevelRange {
	if len(vals) == 0 {
		return LevelRange{}
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return LevelRange{Min: &lo, Max: &hi}
}
