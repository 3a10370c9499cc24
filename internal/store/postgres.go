package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/basin-labs/controlsite/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Upserts return the surviving row, so a conflict hands back the
// existing ID instead of the one we generated.
const (
	sqlUpsertState = `INSERT INTO states (id, name, code, created_at) VALUES ($1, $2, $3, $4)
	 ON CONFLICT (name) DO UPDATE SET code = EXCLUDED.code
	 RETURNING id, name, code, created_at`

	sqlUpsertDistrict = `INSERT INTO districts (id, state_id, name, code, created_at) VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (state_id, name) DO UPDATE SET code = EXCLUDED.code
	 RETURNING id, state_id, name, code, created_at`

	sqlUpsertSubdistrict = `INSERT INTO subdistricts (id, district_id, name, code, created_at) VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (district_id, name) DO UPDATE SET code = EXCLUDED.code
	 RETURNING id, district_id, name, code, created_at`

	sqlUpsertVillage = `INSERT INTO villages (id, subdistrict_id, name, code, unique_name, created_at) VALUES ($1, $2, $3, $4, $5, $6)
	 ON CONFLICT (unique_name) DO UPDATE SET subdistrict_id = EXCLUDED.subdistrict_id, name = EXCLUDED.name, code = EXCLUDED.code
	 RETURNING id, subdistrict_id, name, code, unique_name, boundary IS NOT NULL, created_at`

	sqlVillageByName = `SELECT id, subdistrict_id, name, code, unique_name, boundary IS NOT NULL, created_at
	 FROM villages WHERE unique_name = $1`

	sqlSiblingVillages = `SELECT v.id, v.subdistrict_id, v.name, v.code, v.unique_name, v.boundary IS NOT NULL, v.created_at
	 FROM villages v
	 JOIN villages self ON self.subdistrict_id = v.subdistrict_id
	 WHERE self.id = $1 AND v.id <> $1
	 ORDER BY v.name`

	sqlSetVillageBoundary = `UPDATE villages SET boundary = $1 WHERE id = $2`

	sqlVillageBoundary = `SELECT boundary FROM villages WHERE id = $1`
)

// preparedStatements lists queries to prepare on each new connection.
// Batch evaluations hit the village lookups once per site.
var preparedStatements = map[string]string{
	"upsert_state":         sqlUpsertState,
	"upsert_district":      sqlUpsertDistrict,
	"upsert_subdistrict":   sqlUpsertSubdistrict,
	"upsert_village":       sqlUpsertVillage,
	"village_by_name":      sqlVillageByName,
	"sibling_villages":     sqlSiblingVillages,
	"set_village_boundary": sqlSetVillageBoundary,
	"village_boundary":     sqlVillageBoundary,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for the bulk loaders,
// which COPY boundary rows directly.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS states (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL UNIQUE,
	code       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS districts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	state_id   TEXT NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (state_id, name)
);

CREATE TABLE IF NOT EXISTS subdistricts (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	district_id TEXT NOT NULL REFERENCES districts(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (district_id, name)
);

CREATE TABLE IF NOT EXISTS villages (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subdistrict_id TEXT NOT NULL REFERENCES subdistricts(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	code           TEXT NOT NULL DEFAULT '',
	unique_name    TEXT NOT NULL UNIQUE,
	boundary       BYTEA,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_districts_state_id ON districts(state_id);
CREATE INDEX IF NOT EXISTS idx_subdistricts_district_id ON subdistricts(district_id);
CREATE INDEX IF NOT EXISTS idx_villages_subdistrict_id ON villages(subdistrict_id);
CREATE INDEX IF NOT EXISTS idx_villages_subdistrict_name ON villages(subdistrict_id, name);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertState(ctx context.Context, name, code string) (*Unit, error) {
	var u Unit
	err := s.pool.QueryRow(ctx, sqlUpsertState,
		uuid.New().String(), name, code, time.Now().UTC(),
	).Scan(&u.ID, &u.Name, &u.Code, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert state %s", name)
	}
	return &u, nil
}

func (s *PostgresStore) UpsertDistrict(ctx context.Context, stateID, name, code string) (*Unit, error) {
	var u Unit
	err := s.pool.QueryRow(ctx, sqlUpsertDistrict,
		uuid.New().String(), stateID, name, code, time.Now().UTC(),
	).Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert district %s", name)
	}
	return &u, nil
}

func (s *PostgresStore) UpsertSubdistrict(ctx context.Context, districtID, name, code string) (*Unit, error) {
	var u Unit
	err := s.pool.QueryRow(ctx, sqlUpsertSubdistrict,
		uuid.New().String(), districtID, name, code, time.Now().UTC(),
	).Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert subdistrict %s", name)
	}
	return &u, nil
}

func (s *PostgresStore) UpsertVillage(ctx context.Context, subdistrictID, name, code, uniqueName string) (*Village, error) {
	var v Village
	err := s.pool.QueryRow(ctx, sqlUpsertVillage,
		uuid.New().String(), subdistrictID, name, code, uniqueName, time.Now().UTC(),
	).Scan(&v.ID, &v.SubdistrictID, &v.Name, &v.Code, &v.UniqueName, &v.HasBoundary, &v.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert village %s", uniqueName)
	}
	return &v, nil
}

func (s *PostgresStore) States(ctx context.Context) ([]Unit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, code, created_at FROM states ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list states")
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Code, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state")
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: list states iterate")
}

func (s *PostgresStore) Districts(ctx context.Context, stateID string) ([]Unit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, state_id, name, code, created_at FROM districts WHERE state_id = $1 ORDER BY name`,
		stateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list districts of %s", stateID)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district")
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: list districts iterate")
}

func (s *PostgresStore) Subdistricts(ctx context.Context, districtID string) ([]Unit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, district_id, name, code, created_at FROM subdistricts WHERE district_id = $1 ORDER BY name`,
		districtID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list subdistricts of %s", districtID)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subdistrict")
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: list subdistricts iterate")
}

func (s *PostgresStore) Villages(ctx context.Context, subdistrictID string) ([]Village, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subdistrict_id, name, code, unique_name, boundary IS NOT NULL, created_at
		 FROM villages WHERE subdistrict_id = $1 ORDER BY name`,
		subdistrictID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list villages of %s", subdistrictID)
	}
	defer rows.Close()
	return scanVillages(rows)
}

func (s *PostgresStore) VillageByName(ctx context.Context, uniqueName string) (*Village, error) {
	var v Village
	err := s.pool.QueryRow(ctx, sqlVillageByName, uniqueName).
		Scan(&v.ID, &v.SubdistrictID, &v.Name, &v.Code, &v.UniqueName, &v.HasBoundary, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: village %q", uniqueName)
		}
		return nil, eris.Wrapf(err, "postgres: village by name %q", uniqueName)
	}
	return &v, nil
}

func (s *PostgresStore) SiblingVillages(ctx context.Context, villageID string) ([]Village, error) {
	rows, err := s.pool.Query(ctx, sqlSiblingVillages, villageID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: sibling villages of %s", villageID)
	}
	defer rows.Close()
	return scanVillages(rows)
}

func (s *PostgresStore) SetVillageBoundary(ctx context.Context, villageID string, g geom.T) error {
	data, err := encodeBoundary(g)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, sqlSetVillageBoundary, data, villageID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set boundary %s", villageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: village %s", villageID)
	}
	return nil
}

func (s *PostgresStore) VillageBoundary(ctx context.Context, villageID string) (geom.T, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlVillageBoundary, villageID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: village %s", villageID)
		}
		return nil, eris.Wrapf(err, "postgres: village boundary %s", villageID)
	}
	if data == nil {
		return nil, eris.Wrapf(ErrNotFound, "postgres: boundary for village %s", villageID)
	}
	return decodeBoundary(data)
}

func scanVillages(rows pgx.Rows) ([]Village, error) {
	var villages []Village
	for rows.Next() {
		var v Village
		if err := rows.Scan(&v.ID, &v.SubdistrictID, &v.Name, &v.Code, &v.UniqueName, &v.HasBoundary, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan village")
		}
		villages = append(villages, v)
	}
	return villages, eris.Wrap(rows.Err(), "postgres: iterate villages")
}
