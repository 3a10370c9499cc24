// Package api serves the evaluation core over HTTP: village boundaries
// as GeoJSON, control-site matching, area-equivalent circle sampling,
// cropping-intensity change, and groundwater levels. Handlers stay
// thin; they resolve villages through the store and hand off to the
// analysis packages.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"

	"github.com/basin-labs/controlsite/internal/groundwater"
	"github.com/basin-labs/controlsite/internal/landcover"
	"github.com/basin-labs/controlsite/internal/matcher"
	"github.com/basin-labs/controlsite/internal/sampler"
	"github.com/basin-labs/controlsite/internal/store"
)

// Options wires the server's collaborators. Store, Matcher, Sampler,
// Landcover, and Groundwater are required; Metrics defaults to
// collectors on the global registry.
type Options struct {
	Store       store.Store
	Matcher     *matcher.Matcher
	Sampler     *sampler.Sampler
	Landcover   *landcover.Analyzer
	Groundwater *groundwater.Service
	Metrics     *Metrics

	// LandcoverSeries is the dataset prefix for per-year land-cover
	// rasters; the area-change endpoint reads "<series>:<year>".
	LandcoverSeries string

	// AllowedOrigins is the CORS allow-list. Empty means any origin.
	AllowedOrigins []string
}

// Server is the HTTP face of the evaluation core.
type Server struct {
	store     store.Store
	matcher   *matcher.Matcher
	sampler   *sampler.Sampler
	landcover *landcover.Analyzer
	wells     *groundwater.Service
	metrics   *Metrics
	series    string
	origins   []string
}

// NewServer validates the options and builds a Server.
func NewServer(opts Options) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, eris.New("api: store is required")
	case opts.Matcher == nil:
		return nil, eris.New("api: matcher is required")
	case opts.Sampler == nil:
		return nil, eris.New("api: sampler is required")
	case opts.Landcover == nil:
		return nil, eris.New("api: landcover analyzer is required")
	case opts.Groundwater == nil:
		return nil, eris.New("api: groundwater service is required")
	}

	if opts.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		opts.Metrics = m
	}
	if opts.LandcoverSeries == "" {
		opts.LandcoverSeries = "indiasat"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	return &Server{
		store:     opts.Store,
		matcher:   opts.Matcher,
		sampler:   opts.Sampler,
		landcover: opts.Landcover,
		wells:     opts.Groundwater,
		metrics:   opts.Metrics,
		series:    opts.LandcoverSeries,
		origins:   opts.AllowedOrigins,
	}, nil
}

// Router builds the chi router with CORS, panic recovery, and request
// metrics applied to every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/boundary", s.handleBoundary)
	r.Get("/control-site", s.handleControlSite)
	r.Post("/sample-circles", s.handleSampleCircles)
	r.Get("/area-change", s.handleAreaChange)
	r.Get("/groundwater", s.handleGroundwater)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}
