// Package sampler places cropland-masked sampling circles in a control
// region whose combined area equals the area of a treated polygon. The
// circles stand in for the treated footprint when pulling remote-sensing
// statistics from the control side of a comparison.
package sampler

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/geometry"
	"github.com/basin-labs/controlsite/internal/region"
)

// Defaults applied when Config fields are zero.
const (
	DefaultCircles         = 10
	DefaultSampleScale     = 50.0
	DefaultSampleBand      = "b1"
	DefaultMinControlArea  = 10_000.0
	DefaultSubstituteFloor = 100_000.0
	DefaultClampFraction   = 0.8
	DefaultMinRadius       = 30.0
)

// DefaultCroplandClasses are the landcover classes counted as cropland
// when masking candidate cells.
var DefaultCroplandClasses = []int{2, 3, 4, 5, 6, 13}

// Config tunes the sampler. Zero values fall back to the defaults above.
type Config struct {
	// Circles is the number of sampling circles requested.
	Circles int

	// SampleScale is the reduce scale in meters passed to the raster
	// backend when drawing points.
	SampleScale float64

	// SampleBand is the raster band sampled for candidate cells.
	SampleBand string

	// MinControlArea is the control-region area below which the treated
	// polygon area is replaced by a substitute target.
	MinControlArea float64

	// SubstituteFloor is the minimum substitute target area.
	SubstituteFloor float64

	// ClampFraction caps the effective area at this fraction of the
	// control area when the target would not fit.
	ClampFraction float64

	// MinRadius is the smallest circle radius generated.
	MinRadius float64

	// CroplandClasses are the landcover classes eligible for circle
	// centers.
	CroplandClasses []int

	// LandcoverRaster is the dataset ID masked for cropland.
	LandcoverRaster string

	// Seed drives point selection. The same seed reproduces the same
	// circles.
	Seed int64
}

// Sampler generates area-equivalent circles inside control regions.
type Sampler struct {
	vec backend.Vector
	ras backend.Raster
	kit *geometry.Kit
	cfg Config
}

// New builds a Sampler over the given backends.
func New(vec backend.Vector, ras backend.Raster, cfg Config) *Sampler {
	if cfg.Circles == 0 {
		cfg.Circles = DefaultCircles
	}
	if cfg.SampleScale == 0 {
		cfg.SampleScale = DefaultSampleScale
	}
	if cfg.SampleBand == "" {
		cfg.SampleBand = DefaultSampleBand
	}
	if cfg.MinControlArea == 0 {
		cfg.MinControlArea = DefaultMinControlArea
	}
	if cfg.SubstituteFloor == 0 {
		cfg.SubstituteFloor = DefaultSubstituteFloor
	}
	if cfg.ClampFraction == 0 {
		cfg.ClampFraction = DefaultClampFraction
	}
	if cfg.MinRadius == 0 {
		cfg.MinRadius = DefaultMinRadius
	}
	if len(cfg.CroplandClasses) == 0 {
		cfg.CroplandClasses = DefaultCroplandClasses
	}
	return &Sampler{vec: vec, ras: ras, kit: geometry.NewKit(vec), cfg: cfg}
}

// Circle is one placed sampling circle.
type Circle struct {
	ID       string     `json:"id"`
	Center   geom.Coord `json:"center"`
	Radius   float64    `json:"radius_m"`
	Geom     geom.T     `json:"-"`
	Fallback bool       `json:"fallback"`
}

// Result reports the placed circles and every adjustment made along the
// way. PolygonArea is the raw treated area; EffectiveArea is what the
// circles actually sum to after substitution and clamping.
type Result struct {
	ControlID     string   `json:"control_id"`
	Circles       []Circle `json:"circles"`
	Radius        float64  `json:"radius_m"`
	PolygonArea   float64  `json:"polygon_area_m2"`
	ControlArea   float64  `json:"control_area_m2"`
	EffectiveArea float64  `json:"effective_area_m2"`
	Substituted   bool     `json:"substituted"`
	Clamped       bool     `json:"clamped"`
	Fallback      bool     `json:"fallback"`
}

// GenerateEquivalentCircles places circles in the control region whose
// total area matches the treated polygon's area. All circles share one
// radius r = sqrt(effective / (n·π)).
//
// Two adjustments keep degenerate inputs sampleable, and both are
// reported on the Result rather than hidden: a control region smaller
// than MinControlArea swaps the target for max(2·polygon,
// SubstituteFloor), and a target larger than the control area is clamped
// to ClampFraction of it. When the cropland mask yields no points at
// all, the result is a single circle at the control centroid flagged as
// a fallback.
//
// Backend errors are returned as-is; only empty sampling outcomes
// degrade to the fallback.
func (s *Sampler) GenerateEquivalentCircles(ctx context.Context, treated geom.T, control region.Region) (*Result, error) {
	log := zap.L().With(
		zap.String("component", "sampler"),
		zap.String("control", control.ID),
	)

	if geometry.IsEmpty(treated) {
		return nil, eris.Wrap(backend.ErrInvalidGeometry, "sampler: treated polygon has no geometry")
	}
	if geometry.IsEmpty(control.Geom) {
		return nil, eris.Wrapf(backend.ErrInvalidGeometry, "sampler: control region %s has no geometry", control.ID)
	}

	polygonArea, err := s.kit.Area(ctx, treated)
	if err != nil {
		return nil, eris.Wrap(err, "sampler: treated area")
	}
	controlArea, err := s.kit.Area(ctx, control.Geom)
	if err != nil {
		return nil, eris.Wrap(err, "sampler: control area")
	}

	effective := polygonArea
	substituted := false
	if controlArea < s.cfg.MinControlArea {
		effective = math.Max(2*polygonArea, s.cfg.SubstituteFloor)
		substituted = true
	}

	clamped := false
	if effective > controlArea {
		effective = s.cfg.ClampFraction * controlArea
		clamped = true
	}

	n := s.cfg.Circles
	radius := math.Sqrt(effective / (float64(n) * math.Pi))
	if math.IsNaN(radius) || radius < s.cfg.MinRadius {
		radius = s.cfg.MinRadius
	}

	res := &Result{
		ControlID:     control.ID,
		Radius:        radius,
		PolygonArea:   polygonArea,
		ControlArea:   controlArea,
		EffectiveArea: effective,
		Substituted:   substituted,
		Clamped:       clamped,
	}

	// Erode the control boundary by one radius so every circle fits
	// inside it. A collapse means nothing fits; only the fallback
	// remains.
	envelope, err := s.kit.Buffer(ctx, control.Geom, -radius)
	if err != nil {
		return nil, eris.Wrap(err, "sampler: erode control boundary")
	}

	var points []geom.Coord
	if !geometry.IsEmpty(envelope) {
		maskID, err := s.ras.Mask(ctx, s.cfg.LandcoverRaster, envelope, s.cfg.CroplandClasses)
		if err != nil {
			return nil, eris.Wrap(err, "sampler: cropland mask")
		}
		points, err = s.ras.StratifiedSample(ctx, maskID, n, s.cfg.SampleBand, envelope, s.cfg.SampleScale, s.cfg.Seed)
		if err != nil {
			return nil, eris.Wrap(err, "sampler: draw points")
		}
	}

	if len(points) == 0 {
		circle, err := s.centroidFallback(ctx, control, radius)
		if err != nil {
			return nil, err
		}
		res.Circles = []Circle{*circle}
		res.Fallback = true
		log.Warn("no cropland cells, falling back to centroid circle",
			zap.Float64("radius_m", radius),
		)
		return res, nil
	}

	circles := make([]Circle, 0, len(points))
	for _, pt := range points {
		c, err := s.circleAt(ctx, pt, radius, false)
		if err != nil {
			return nil, err
		}
		circles = append(circles, *c)
	}
	res.Circles = circles

	log.Info("circles placed",
		zap.Int("requested", n),
		zap.Int("placed", len(circles)),
		zap.Float64("radius_m", radius),
		zap.Float64("effective_area_m2", effective),
		zap.Bool("substituted", substituted),
		zap.Bool("clamped", clamped),
	)
	return res, nil
}

// centroidFallback builds the single degraded circle at the control
// region's centroid.
func (s *Sampler) centroidFallback(ctx context.Context, control region.Region, radius float64) (*Circle, error) {
	c, err := s.kit.Centroid(ctx, control.Geom)
	if err != nil {
		return nil, eris.Wrap(err, "sampler: control centroid")
	}
	return s.circleAt(ctx, c, radius, true)
}

func (s *Sampler) circleAt(ctx context.Context, center geom.Coord, radius float64, fallback bool) (*Circle, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{center[0], center[1]})
	buffered, err := s.kit.Buffer(ctx, pt, radius)
	if err != nil {
		return nil, eris.Wrapf(err, "sampler: buffer circle at (%.5f, %.5f)", center[0], center[1])
	}
	return &Circle{
		ID:       uuid.New().String(),
		Center:   center,
		Radius:   radius,
		Geom:     buffered,
		Fallback: fallback,
	}, nil
}
