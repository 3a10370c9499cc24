// Package matcher finds the untreated sibling region whose terrain best
// matches a treated region. Similarity is the standard deviation of
// slope over each geometry: villages that undulate alike respond alike
// to land and water interventions, which makes the closest match a
// defensible control in before/after comparisons.
package matcher

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/backend"
	"github.com/basin-labs/controlsite/internal/geometry"
	"github.com/basin-labs/controlsite/internal/region"
)

// Defaults applied when Config fields are zero.
const (
	DefaultBufferMeters = 5000.0
	DefaultSlopeScale   = 30.0
)

// Config tunes the matcher. Zero values fall back to the defaults above.
type Config struct {
	// BufferMeters is the neighborhood distance: candidates must
	// intersect the treated geometry dilated by this much.
	BufferMeters float64

	// SlopeScale is the reduce scale in meters passed to the raster
	// backend.
	SlopeScale float64

	// ElevationRaster is the dataset ID slope is derived from.
	ElevationRaster string
}

// Matcher ranks candidate control regions by terrain similarity.
type Matcher struct {
	vec backend.Vector
	ras backend.Raster
	kit *geometry.Kit
	cfg Config
}

// New builds a Matcher over the given backends.
func New(vec backend.Vector, ras backend.Raster, cfg Config) *Matcher {
	if cfg.BufferMeters == 0 {
		cfg.BufferMeters = DefaultBufferMeters
	}
	if cfg.SlopeScale == 0 {
		cfg.SlopeScale = DefaultSlopeScale
	}
	return &Matcher{vec: vec, ras: ras, kit: geometry.NewKit(vec), cfg: cfg}
}

// Candidate is one evaluated pool member.
type Candidate struct {
	Region       region.Region `json:"region"`
	Ruggedness   float64       `json:"ruggedness"`
	RelativeDiff float64       `json:"relative_diff_pct"`
}

// MatchResult reports the selected control and the full ranking that
// produced it.
type MatchResult struct {
	Control      region.Region `json:"control"`
	TreatedStat  float64       `json:"treated_ruggedness"`
	ControlStat  float64       `json:"control_ruggedness"`
	RelativeDiff float64       `json:"relative_diff_pct"`

	// Candidates holds every evaluated candidate, ascending by relative
	// difference. Ties keep their pool order.
	Candidates []Candidate `json:"candidates"`
}

// FindControl selects the pool member most similar in ruggedness to the
// treated region. Pool members are dropped when they are the treated
// region itself, have an empty display name, or do not intersect the
// treated geometry buffered by the neighborhood distance. The smallest
// relative difference |(candidate − treated)/treated|·100 wins; exact
// ties go to the earlier pool position.
//
// There is no fallback: a zero treated statistic or an empty filtered
// pool is an error the caller must handle.
func (m *Matcher) FindControl(ctx context.Context, treated region.Region, pool region.Pool) (*MatchResult, error) {
	log := zap.L().With(
		zap.String("component", "matcher"),
		zap.String("treated", treated.ID),
	)

	if geometry.IsEmpty(treated.Geom) {
		return nil, eris.Wrapf(backend.ErrInvalidGeometry, "matcher: treated region %s has no geometry", treated.ID)
	}

	slopeID, err := m.ras.Slope(ctx, m.cfg.ElevationRaster)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: derive slope")
	}

	treatedStat, err := m.ras.Statistic(ctx, slopeID, treated.Geom, backend.ReducerStdDev, m.cfg.SlopeScale)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: treated ruggedness")
	}
	if treatedStat == 0 {
		return nil, eris.Wrapf(backend.ErrDegenerateStatistic, "matcher: treated region %s has zero ruggedness", treated.ID)
	}

	neighborhood, err := m.kit.Buffer(ctx, treated.Geom, m.cfg.BufferMeters)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: buffer neighborhood")
	}

	candidates, err := m.filterPool(ctx, treated, pool, neighborhood)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, eris.Wrapf(backend.ErrNoCandidates, "matcher: no candidates for %s within %.0f m", treated.ID, m.cfg.BufferMeters)
	}

	ranked := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		stat, err := m.ras.Statistic(ctx, slopeID, cand.Geom, backend.ReducerStdDev, m.cfg.SlopeScale)
		if err != nil {
			return nil, eris.Wrapf(err, "matcher: ruggedness of candidate %s", cand.ID)
		}
		diff := (stat - treatedStat) / treatedStat * 100
		if diff < 0 {
			diff = -diff
		}
		ranked = append(ranked, Candidate{Region: cand, Ruggedness: stat, RelativeDiff: diff})
	}

	// Stable: equal diffs keep pool order, so the earlier member wins.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelativeDiff < ranked[j].RelativeDiff
	})

	best := ranked[0]
	log.Info("control selected",
		zap.String("control", best.Region.ID),
		zap.Float64("treated_ruggedness", treatedStat),
		zap.Float64("control_ruggedness", best.Ruggedness),
		zap.Float64("relative_diff_pct", best.RelativeDiff),
		zap.Int("candidates", len(ranked)),
	)

	return &MatchResult{
		Control:      best.Region,
		TreatedStat:  treatedStat,
		ControlStat:  best.Ruggedness,
		RelativeDiff: best.RelativeDiff,
		Candidates:   ranked,
	}, nil
}

// filterPool applies the candidacy rules: not the treated region, named,
// has geometry, intersects the neighborhood.
func (m *Matcher) filterPool(ctx context.Context, treated region.Region, pool region.Pool, neighborhood geom.T) (region.Pool, error) {
	pool = pool.Exclude(treated.ID).Named()
	out := make(region.Pool, 0, len(pool))
	for _, cand := range pool {
		if geometry.IsEmpty(cand.Geom) {
			continue
		}
		ok, err := m.kit.Intersects(ctx, neighborhood, cand.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "matcher: intersect candidate %s", cand.ID)
		}
		if ok {
			out = append(out, cand)
		}
	}
	return out, nil
}
