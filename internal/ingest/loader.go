package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/db"
	"github.com/basin-labs/controlsite/internal/region"
	"github.com/basin-labs/controlsite/internal/store"
)

const defaultBatchSize = 20000

// Options configures a load run.
type Options struct {
	BatchSize int            // bulk batch size (default 20,000)
	Replace   bool           // wipe villages and COPY fresh instead of merging
	Progress  func(done int) // optional; called after each processed row
}

// Result counts what a load touched.
type Result struct {
	States       int
	Districts    int
	Subdistricts int
	Villages     int
	Skipped      int
}

// Loader writes parsed rows into a Store.
type Loader struct {
	store store.Store
}

func NewLoader(st store.Store) *Loader {
	return &Loader{store: st}
}

// hierarchyCache holds parent IDs already upserted during a load, so a
// state shared by thousands of villages costs one round trip.
type hierarchyCache struct {
	states       map[string]string
	districts    map[string]string
	subdistricts map[string]string
}

func newHierarchyCache() *hierarchyCache {
	return &hierarchyCache{
		states:       make(map[string]string),
		districts:    make(map[string]string),
		subdistricts: make(map[string]string),
	}
}

// subdistrictID upserts the state/district/subdistrict chain as needed
// and returns the subdistrict's ID. codes are state, district,
// subdistrict census codes; empty when the source has none.
func (l *Loader) subdistrictID(ctx context.Context, c *hierarchyCache, res *Result, state, district, subdistrict string, codes [3]string) (string, error) {
	sdKey := state + "|" + district + "|" + subdistrict
	if id, ok := c.subdistricts[sdKey]; ok {
		return id, nil
	}

	stateID, ok := c.states[state]
	if !ok {
		u, err := l.store.UpsertState(ctx, state, codes[0])
		if err != nil {
			return "", eris.Wrapf(err, "ingest: state %s", state)
		}
		stateID = u.ID
		c.states[state] = stateID
		res.States++
	}

	dKey := state + "|" + district
	districtID, ok := c.districts[dKey]
	if !ok {
		u, err := l.store.UpsertDistrict(ctx, stateID, district, codes[1])
		if err != nil {
			return "", eris.Wrapf(err, "ingest: district %s", district)
		}
		districtID = u.ID
		c.districts[dKey] = districtID
		res.Districts++
	}

	u, err := l.store.UpsertSubdistrict(ctx, districtID, subdistrict, codes[2])
	if err != nil {
		return "", eris.Wrapf(err, "ingest: subdistrict %s", subdistrict)
	}
	c.subdistricts[sdKey] = u.ID
	res.Subdistricts++
	return u.ID, nil
}

// LoadHierarchy upserts the four-level naming tree from CSV rows.
func (l *Loader) LoadHierarchy(ctx context.Context, rows []HierarchyRow, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest.loader"))

	res := &Result{}
	c := newHierarchyCache()

	for i, r := range rows {
		state := region.Normalize(r.State)
		district := region.Normalize(r.District)
		subdistrict := region.Normalize(r.Subdistrict)
		village := region.Normalize(r.Village)
		if state == "" || district == "" || subdistrict == "" || village == "" {
			res.Skipped++
			continue
		}

		sdID, err := l.subdistrictID(ctx, c, res, state, district, subdistrict,
			[3]string{r.StateCode, r.DistrictCode, r.SubdistrictCode})
		if err != nil {
			return res, err
		}

		unique := region.UniqueName(state, district, subdistrict, village)
		if _, err := l.store.UpsertVillage(ctx, sdID, village, r.VillageCode, unique); err != nil {
			return res, eris.Wrapf(err, "ingest: village %s", unique)
		}
		res.Villages++

		if opts.Progress != nil {
			opts.Progress(i + 1)
		}
	}

	log.Info("hierarchy loaded",
		zap.Int("states", res.States),
		zap.Int("districts", res.Districts),
		zap.Int("subdistricts", res.Subdistricts),
		zap.Int("villages", res.Villages),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// LoadBoundaries upserts shapefile rows and attaches their boundary
// geometry, one village at a time. Suits SQLite and small areas; use
// BulkLoadBoundaries for full-state loads into Postgres.
func (l *Loader) LoadBoundaries(ctx context.Context, rows []VillageRow, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest.loader"))

	res := &Result{}
	c := newHierarchyCache()

	for i, r := range rows {
		if r.Village == "" || r.Boundary == nil {
			res.Skipped++
			continue
		}

		sdID, err := l.subdistrictID(ctx, c, res, r.State, r.District, r.Subdistrict, [3]string{})
		if err != nil {
			return res, err
		}

		v, err := l.store.UpsertVillage(ctx, sdID, r.Village, "", r.UniqueName)
		if err != nil {
			return res, eris.Wrapf(err, "ingest: village %s", r.UniqueName)
		}
		if err := l.store.SetVillageBoundary(ctx, v.ID, r.Boundary); err != nil {
			return res, err
		}
		res.Villages++

		if opts.Progress != nil {
			opts.Progress(i + 1)
		}
	}

	log.Info("boundaries loaded",
		zap.Int("villages", res.Villages),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// BulkLoadBoundaries streams shapefile rows into Postgres. Replace
// truncates villages and COPYs fresh rows; the default merges by
// unique_name through a temp-table upsert. The hierarchy chain is still
// resolved row-wise, it is tiny next to the village table.
func (l *Loader) BulkLoadBoundaries(ctx context.Context, pool db.Pool, rows []VillageRow, opts Options) (int64, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	log := zap.L().With(
		zap.String("component", "ingest.loader"),
		zap.Int("total_rows", len(rows)),
	)

	res := &Result{}
	c := newHierarchyCache()
	columns := []string{"subdistrict_id", "name", "code", "unique_name", "boundary"}

	copyRows := make([][]any, 0, len(rows))
	for _, r := range rows {
		if r.Village == "" || r.Boundary == nil {
			res.Skipped++
			continue
		}

		sdID, err := l.subdistrictID(ctx, c, res, r.State, r.District, r.Subdistrict, [3]string{})
		if err != nil {
			return 0, err
		}

		wkb, err := ewkb.Marshal(r.Boundary, ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "ingest: encode boundary %s", r.UniqueName)
		}
		copyRows = append(copyRows, []any{sdID, r.Village, "", r.UniqueName, wkb})
	}

	if opts.Replace {
		if _, err := pool.Exec(ctx, `TRUNCATE villages`); err != nil {
			return 0, eris.Wrap(err, "ingest: truncate villages")
		}
	}

	var total int64
	for i := 0; i < len(copyRows); i += opts.BatchSize {
		end := i + opts.BatchSize
		if end > len(copyRows) {
			end = len(copyRows)
		}
		batch := copyRows[i:end]

		var n int64
		var err error
		if opts.Replace {
			n, err = db.CopyFrom(ctx, pool, "villages", columns, batch)
		} else {
			n, err = db.BulkUpsert(ctx, pool, db.UpsertConfig{
				Table:        "villages",
				Columns:      columns,
				ConflictKeys: []string{"unique_name"},
			}, batch)
		}
		if err != nil {
			return total, err
		}
		total += n

		if opts.Progress != nil {
			opts.Progress(end)
		}
		log.Debug("batch loaded",
			zap.Int("batch_start", i),
			zap.Int("batch_end", end),
			zap.Int64("batch_rows", n),
		)
	}

	log.Info("boundaries bulk loaded",
		zap.Int64("rows", total),
		zap.Int("skipped", res.Skipped),
		zap.Bool("replace", opts.Replace),
	)
	return total, nil
}
