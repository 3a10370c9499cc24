package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS states (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	code       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS districts (
	id         TEXT PRIMARY KEY,
	state_id   TEXT NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (state_id, name)
);

CREATE TABLE IF NOT EXISTS subdistricts (
	id          TEXT PRIMARY KEY,
	district_id TEXT NOT NULL REFERENCES districts(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (district_id, name)
);

CREATE TABLE IF NOT EXISTS villages (
	id             TEXT PRIMARY KEY,
	subdistrict_id TEXT NOT NULL REFERENCES subdistricts(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	code           TEXT NOT NULL DEFAULT '',
	unique_name    TEXT NOT NULL UNIQUE,
	boundary       BLOB,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_districts_state_id ON districts(state_id);
CREATE INDEX IF NOT EXISTS idx_subdistricts_district_id ON subdistricts(district_id);
CREATE INDEX IF NOT EXISTS idx_villages_subdistrict_id ON villages(subdistrict_id);
CREATE INDEX IF NOT EXISTS idx_villages_subdistrict_name ON villages(subdistrict_id, name);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertState(ctx context.Context, name, code string) (*Unit, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO states (id, name, code, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET code = excluded.code`,
		uuid.New().String(), name, code, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert state %s", name)
	}

	var u Unit
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, code, created_at FROM states WHERE name = ?`, name,
	).Scan(&u.ID, &u.Name, &u.Code, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read back state %s", name)
	}
	return &u, nil
}

func (s *SQLiteStore) UpsertDistrict(ctx context.Context, stateID, name, code string) (*Unit, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO districts (id, state_id, name, code, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(state_id, name) DO UPDATE SET code = excluded.code`,
		uuid.New().String(), stateID, name, code, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert district %s", name)
	}

	var u Unit
	err = s.db.QueryRowContext(ctx,
		`SELECT id, state_id, name, code, created_at FROM districts WHERE state_id = ? AND name = ?`,
		stateID, name,
	).Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read back district %s", name)
	}
	return &u, nil
}

func (s *SQLiteStore) UpsertSubdistrict(ctx context.Context, districtID, name, code string) (*Unit, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subdistricts (id, district_id, name, code, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(district_id, name) DO UPDATE SET code = excluded.code`,
		uuid.New().String(), districtID, name, code, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert subdistrict %s", name)
	}

	var u Unit
	err = s.db.QueryRowContext(ctx,
		`SELECT id, district_id, name, code, created_at FROM subdistricts WHERE district_id = ? AND name = ?`,
		districtID, name,
	).Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read back subdistrict %s", name)
	}
	return &u, nil
}

func (s *SQLiteStore) UpsertVillage(ctx context.Context, subdistrictID, name, code, uniqueName string) (*Village, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO villages (id, subdistrict_id, name, code, unique_name, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(unique_name) DO UPDATE SET subdistrict_id = excluded.subdistrict_id, name = excluded.name, code = excluded.code`,
		uuid.New().String(), subdistrictID, name, code, uniqueName, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert village %s", uniqueName)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, subdistrict_id, name, code, unique_name, boundary IS NOT NULL, created_at
		 FROM villages WHERE unique_name = ?`, uniqueName,
	)
	v, err := scanVillageRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read back village %s", uniqueName)
	}
	return v, nil
}

func (s *SQLiteStore) States(ctx context.Context) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code, created_at FROM states ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list states")
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Code, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state")
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "sqlite: list states iterate")
}

func (s *SQLiteStore) Districts(ctx context.Context, stateID string) ([]Unit, error) {
	return s.childUnits(ctx,
		`SELECT id, state_id, name, code, created_at FROM districts WHERE state_id = ? ORDER BY name`,
		stateID, "districts")
}

func (s *SQLiteStore) Subdistricts(ctx context.Context, districtID string) ([]Unit, error) {
	return s.childUnits(ctx,
		`SELECT id, district_id, name, code, created_at FROM subdistricts WHERE district_id = ? ORDER BY name`,
		districtID, "subdistricts")
}

func (s *SQLiteStore) childUnits(ctx context.Context, query, parentID, entity string) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s of %s", entity, parentID)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.ParentID, &u.Name, &u.Code, &u.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s row", entity)
		}
		units = append(units, u)
	}
	return units, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", entity)
}

func (s *SQLiteStore) Villages(ctx context.Context, subdistrictID string) ([]Village, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subdistrict_id, name, code, unique_name, boundary IS NOT NULL, created_at
		 FROM villages WHERE subdistrict_id = ? ORDER BY name`,
		subdistrictID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list villages of %s", subdistrictID)
	}
	defer rows.Close()

	var villages []Village
	for rows.Next() {
		v, err := scanVillageRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan village")
		}
		villages = append(villages, *v)
	}
	return villages, eris.Wrap(rows.Err(), "sqlite: list villages iterate")
}

func (s *SQLiteStore) VillageByName(ctx context.Context, uniqueName string) (*Village, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subdistrict_id, name, code, unique_name, boundary IS NOT NULL, created_at
		 FROM villages WHERE unique_name = ?`,
		uniqueName,
	)
	v, err := scanVillageRow(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: village %q", uniqueName)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: village by name %q", uniqueName)
	}
	return v, nil
}

func (s *SQLiteStore) SiblingVillages(ctx context.Context, villageID string) ([]Village, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.subdistrict_id, v.name, v.code, v.unique_name, v.boundary IS NOT NULL, v.created_at
		 FROM villages v
		 JOIN villages self ON self.subdistrict_id = v.subdistrict_id
		 WHERE self.id = ? AND v.id <> ?
		 ORDER BY v.name`,
		villageID, villageID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: sibling villages of %s", villageID)
	}
	defer rows.Close()

	var villages []Village
	for rows.Next() {
		v, err := scanVillageRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sibling")
		}
		villages = append(villages, *v)
	}
	return villages, eris.Wrap(rows.Err(), "sqlite: iterate siblings")
}

func (s *SQLiteStore) SetVillageBoundary(ctx context.Context, villageID string, g geom.T) error {
	data, err := encodeBoundary(g)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE villages SET boundary = ? WHERE id = ?`,
		data, villageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set boundary %s", villageID)
	}
	return checkRowsAffected(res, "village", villageID)
}

func (s *SQLiteStore) VillageBoundary(ctx context.Context, villageID string) (geom.T, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT boundary FROM villages WHERE id = ?`, villageID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: village %s", villageID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: village boundary %s", villageID)
	}
	if data == nil {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: boundary for village %s", villageID)
	}
	return decodeBoundary(data)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVillageRow(row scannable) (*Village, error) {
	var v Village
	err := row.Scan(&v.ID, &v.SubdistrictID, &v.Name, &v.Code, &v.UniqueName, &v.HasBoundary, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
