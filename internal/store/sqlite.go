package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/housing-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps per-connection pragmas in effect.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	county_path  TEXT NOT NULL DEFAULT '',
	listing_path TEXT NOT NULL DEFAULT '',
	stats        TEXT NOT NULL DEFAULT '{}',
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS matches (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	mls             INTEGER NOT NULL,
	major           INTEGER NOT NULL,
	minor           INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	score           REAL NOT NULL,
	listing_address TEXT NOT NULL,
	county_address  TEXT NOT NULL,
	PRIMARY KEY (run_id, mls)
);

CREATE TABLE IF NOT EXISTS malformed_keys (
	run_id TEXT NOT NULL REFERENCES runs(id),
	mls    TEXT NOT NULL,
	major  TEXT NOT NULL,
	minor  TEXT NOT NULL,
	kind   TEXT NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, mls, major, minor)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_matches_parcel ON matches(major, minor);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, countyPath, listingPath string) (*model.Run, error) {
	now := time.Now().UTC()
	r := &model.Run{
		ID:          uuid.New().String(),
		Status:      model.RunStatusRunning,
		CountyPath:  countyPath,
		ListingPath: listingPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, county_path, listing_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Status), countyPath, listingPath, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return r, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(statsJSON), now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errorText(runErr), now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, status, county_path, listing_path, stats, error, created_at, updated_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveMatches(ctx context.Context, runID string, matches []model.Match) (int64, error) {
	if len(matches) == 0 {
		return 0, nil
	}
	return s.inTx(ctx, "save matches",
		`INSERT OR REPLACE INTO matches (run_id, mls, major, minor, kind, score, listing_address, county_address)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		len(matches), func(i int) []any {
			m := matches[i]
			return []any{runID, m.MLS, m.Major, m.Minor, string(m.Kind), m.Score, m.ListingAddress, m.CountyAddress}
		})
}

func (s *SQLiteStore) SaveMalformed(ctx context.Context, runID string, keys []model.MalformedKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.inTx(ctx, "save malformed keys",
		`INSERT OR REPLACE INTO malformed_keys (run_id, mls, major, minor, kind, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		len(keys), func(i int) []any {
			k := keys[i]
			return []any{runID, k.MLS, k.Major, k.Minor, string(k.Kind), k.Reason}
		})
}

// inTx executes stmt once per row inside a single transaction.
func (s *SQLiteStore) inTx(ctx context.Context, action, stmt string, n int, args func(int) []any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: begin", action)
	}
	defer tx.Rollback() //nolint:errcheck

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: prepare", action)
	}
	defer prepared.Close() //nolint:errcheck

	var total int64
	for i := range n {
		res, err := prepared.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s: row %d", action, i)
		}
		affected, _ := res.RowsAffected()
		total += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: commit", action)
	}
	return total, nil
}

func (s *SQLiteStore) ListMatches(ctx context.Context, runID string, kind model.MatchKind) ([]model.Match, error) {
	query := `SELECT mls, major, minor, kind, score, listing_address, county_address FROM matches WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY mls`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list matches for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Match
	for rows.Next() {
		var m model.Match
		var k string
		if err := rows.Scan(&m.MLS, &m.Major, &m.Minor, &k, &m.Score, &m.ListingAddress, &m.CountyAddress); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		m.Kind = model.MatchKind(k)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list matches iterate")
}

func (s *SQLiteStore) ListMalformed(ctx context.Context, runID string) ([]model.MalformedKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mls, major, minor, kind, reason FROM malformed_keys WHERE run_id = ? ORDER BY mls, major, minor`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list malformed keys for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MalformedKey
	for rows.Next() {
		var k model.MalformedKey
		var kind string
		if err := rows.Scan(&k.MLS, &k.Major, &k.Minor, &kind, &k.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan malformed key")
		}
		k.Kind = model.MatchKind(kind)
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list malformed iterate")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status, statsJSON string
	var completed sql.NullTime

	err := row.Scan(&r.ID, &status, &r.CountyPath, &r.ListingPath, &statsJSON, &r.Error,
		&r.CreatedAt, &r.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &r, nil
}
