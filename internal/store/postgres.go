package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/db"
	"github.com/sells-group/housing-cli/internal/model"
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

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	county_path  TEXT NOT NULL DEFAULT '',
	listing_path TEXT NOT NULL DEFAULT '',
	stats        JSONB NOT NULL DEFAULT '{}',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS matches (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	mls             BIGINT NOT NULL,
	major           BIGINT NOT NULL,
	minor           BIGINT NOT NULL,
	kind            TEXT NOT NULL,
	score           DOUBLE PRECISION NOT NULL,
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
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_matches_parcel ON matches(major, minor);
`

var (
	matchColumns     = []string{"run_id", "mls", "major", "minor", "kind", "score", "listing_address", "county_address"}
	malformedColumns = []string{"run_id", "mls", "major", "minor", "kind", "reason"}
)

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

func (s *PostgresStore) CreateRun(ctx context.Context, countyPath, listingPath string) (*model.Run, error) {
	now := time.Now().UTC()
	r := &model.Run{
		ID:          uuid.New().String(),
		Status:      model.RunStatusRunning,
		CountyPath:  countyPath,
		ListingPath: listingPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, county_path, listing_path, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, string(r.Status), countyPath, listingPath, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return r, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, updated_at = $3, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), statsJSON, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errorText(runErr), now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, status, county_path, listing_path, stats, error, created_at, updated_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveMatches streams a run's matches with COPY. Matches are written once per
// run, so there is nothing to merge.
func (s *PostgresStore) SaveMatches(ctx context.Context, runID string, matches []model.Match) (int64, error) {
	rows := make([][]any, len(matches))
	for i, m := range matches {
		rows[i] = []any{runID, m.MLS, m.Major, m.Minor, string(m.Kind), m.Score, m.ListingAddress, m.CountyAddress}
	}
	n, err := db.CopyFrom(ctx, s.pool, "matches", matchColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save matches for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) SaveMalformed(ctx context.Context, runID string, keys []model.MalformedKey) (int64, error) {
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{runID, k.MLS, k.Major, k.Minor, string(k.Kind), k.Reason}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "malformed_keys",
		Columns:      malformedColumns,
		ConflictKeys: []string{"run_id", "mls", "major", "minor"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save malformed keys for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context, runID string, kind model.MatchKind) ([]model.Match, error) {
	query := `SELECT mls, major, minor, kind, score, listing_address, county_address FROM matches WHERE run_id = $1`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, string(kind))
	}
	query += ` ORDER BY mls`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list matches for run %s", runID)
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		var m model.Match
		if err := rows.Scan(&m.MLS, &m.Major, &m.Minor, &m.Kind, &m.Score, &m.ListingAddress, &m.CountyAddress); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list matches iterate")
}

func (s *PostgresStore) ListMalformed(ctx context.Context, runID string) ([]model.MalformedKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT mls, major, minor, kind, reason FROM malformed_keys WHERE run_id = $1 ORDER BY mls, major, minor`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list malformed keys for run %s", runID)
	}
	defer rows.Close()

	var out []model.MalformedKey
	for rows.Next() {
		var k model.MalformedKey
		if err := rows.Scan(&k.MLS, &k.Major, &k.Minor, &k.Kind, &k.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan malformed key")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list malformed iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var statsJSON []byte

	err := row.Scan(&r.ID, &r.Status, &r.CountyPath, &r.ListingPath, &statsJSON, &r.Error,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &r, nil
}
