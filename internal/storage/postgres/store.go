// Package postgres provides Postgres-backed persistence for record datasets.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapekit/saasdir/internal/scrape"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for dataset rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes each dataset as ordered jsonb rows. Saving a dataset replaces
// any rows from a previous run under the same name.
type Store struct {
	pool  execCloser
	table string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("output.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "company_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool execCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "company_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveRecords replaces the named dataset with the given ordered records.
func (s *Store) SaveRecords(ctx context.Context, name string, records []scrape.CompanyRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is not configured")
	}
	if name == "" {
		return fmt.Errorf("dataset name is required")
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE dataset = $1`, s.table)
	if _, err := s.pool.Exec(ctx, deleteQuery, name); err != nil {
		return fmt.Errorf("clear dataset %s: %w", name, err)
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	dataset,
	position,
	detail_url,
	payload
) VALUES (
	$1,$2,$3,$4
)`, s.table)

	for i, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		var detailURL string
		if record.DetailURL != nil {
			detailURL = *record.DetailURL
		}
		if _, err := s.pool.Exec(ctx, insertQuery, name, i, detailURL, payload); err != nil {
			return fmt.Errorf("insert record %d of %s: %w", i, name, err)
		}
	}
	return nil
}
