package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/groundwater"
	"github.com/basin-labs/controlsite/internal/landcover"
	"github.com/basin-labs/controlsite/internal/matcher"
	"github.com/basin-labs/controlsite/internal/region"
	"github.com/basin-labs/controlsite/internal/sampler"
	"github.com/basin-labs/controlsite/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// respondError maps error kinds onto status codes: missing rows are
// 404, analysis errors on well-formed requests are 422, an unloaded
// dataset is 503, and anything unrecognized is a logged 500.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, backend.ErrNoCandidates),
		eris.Is(err, backend.ErrDegenerateStatistic),
		eris.Is(err, backend.ErrInvalidGeometry):
		status = http.StatusUnprocessableEntity
	case eris.Is(err, backend.ErrUnknownDataset):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	respondJSON(w, status, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// villageRegion loads one village with its boundary as a region.
func (s *Server) villageRegion(ctx context.Context, uniqueName string) (region.Region, error) {
	return store.VillageRegion(ctx, s.store, uniqueName)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: store unreachable", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBoundary(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("village")
	if name == "" {
		badRequest(w, "village query parameter is required")
		return
	}

	v, err := s.store.VillageByName(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return
	}
	g, err := s.store.VillageBoundary(r.Context(), v.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	feature := &geojson.Feature{
		ID:       v.ID,
		Geometry: g,
		Properties: map[string]interface{}{
			"name":        v.Name,
			"unique_name": v.UniqueName,
			"code":        v.Code,
		},
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(feature); err != nil {
		zap.L().Warn("api: encode boundary", zap.Error(err))
	}
}

func (s *Server) handleControlSite(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("village")
	if name == "" {
		badRequest(w, "village query parameter is required")
		return
	}

	treated, pool, err := store.TreatedAndPool(r.Context(), s.store, name)
	if err != nil {
		respondError(w, err)
		return
	}
	res, err := s.matcher.FindControl(r.Context(), treated, pool)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type sampleRequest struct {
	// Village is the treated village's unique name.
	Village string `json:"village"`

	// Control optionally names the control village directly, skipping
	// the matcher.
	Control string `json:"control"`
}

type sampleResponse struct {
	Village string                     `json:"village"`
	Match   *matcher.MatchResult       `json:"match,omitempty"`
	Sample  *sampler.Result            `json:"sample"`
	Circles *geojson.FeatureCollection `json:"circles"`
}

func (s *Server) handleSampleCircles(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Village == "" {
		badRequest(w, "village is required")
		return
	}

	ctx := r.Context()
	resp := sampleResponse{Village: req.Village}

	var treatedGeom geom.T
	var control region.Region
	if req.Control != "" {
		treated, err := s.villageRegion(ctx, req.Village)
		if err != nil {
			respondError(w, err)
			return
		}
		ctrl, err := s.villageRegion(ctx, req.Control)
		if err != nil {
			respondError(w, err)
			return
		}
		treatedGeom = treated.Geom
		control = ctrl
	} else {
		treated, pool, err := store.TreatedAndPool(ctx, s.store, req.Village)
		if err != nil {
			respondError(w, err)
			return
		}
		match, err := s.matcher.FindControl(ctx, treated, pool)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Match = match
		treatedGeom = treated.Geom
		control = match.Control
	}

	sample, err := s.sampler.GenerateEquivalentCircles(ctx, treatedGeom, control)
	if err != nil {
		respondError(w, err)
		return
	}
	resp.Sample = sample
	resp.Circles = circleFeatures(sample.Circles)
	respondJSON(w, http.StatusOK, resp)
}

// circleFeatures renders placed circles as a GeoJSON FeatureCollection
// for direct map display.
func circleFeatures(circles []sampler.Circle) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(circles))}
	for i := range circles {
		c := &circles[i]
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.ID,
			Geometry: c.Geom,
			Properties: map[string]interface{}{
				"radius_m": c.Radius,
				"fallback": c.Fallback,
			},
		})
	}
	return fc
}

type areaChangeResponse struct {
	Village string                    `json:"village"`
	Series  []landcover.CroppingAreas `json:"series"`
}

func (s *Server) handleAreaChange(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("village")
	if name == "" {
		badRequest(w, "village query parameter is required")
		return
	}
	from, ok := yearParam(w, r, "from", landcover.DefaultFromYear)
	if !ok {
		return
	}
	to, ok := yearParam(w, r, "to", landcover.DefaultToYear)
	if !ok {
		return
	}
	if from > to {
		badRequest(w, "from must not be after to")
		return
	}

	treated, err := s.villageRegion(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return
	}
	series, err := s.landcover.CroppingChange(r.Context(), s.series, treated.Geom, from, to)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, areaChangeResponse{Village: name, Series: series})
}

func yearParam(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, key+" must be a year")
		return 0, false
	}
	return year, true
}

type groundwaterResponse struct {
	Village string                         `json:"village"`
	Levels  map[int]groundwater.LevelRange `json:"levels"`
}

func (s *Server) handleGroundwater(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("village")
	if name == "" {
		badRequest(w, "village query parameter is required")
		return
	}

	treated, err := s.villageRegion(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return
	}
	levels, err := s.wells.VillageLevels(r.Context(), treated)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groundwaterResponse{Village: name, Levels: levels})
}
