// Package store persists join runs and their resolved matches.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines persistence for join runs.
type Store interface {
	Migrate(ctx context.Context) error

	// Runs
	CreateRun(ctx context.Context, countyPath, listingPath string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Matches
	SaveMatches(ctx context.Context, runID string, matches []model.Match) (int64, error)
	ListMatches(ctx context.Context, runID string, kind model.MatchKind) ([]model.Match, error)
	SaveMalformed(ctx context.Context, runID string, keys []model.MalformedKey) (int64, error)
	ListMalformed(ctx context.Context, runID string) ([]model.MalformedKey, error)

	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver string
	DSN    string
	Pool   *PoolConfig
}

// Open connects the configured driver. The caller runs Migrate.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		st, err := NewSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverPostgres:
		st, err := NewPostgres(ctx, cfg.DSN, cfg.Pool)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
