package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/smartcompare/compare-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool. Backend for the server,
// where several replicas share one cache.
type PostgresStore struct {
	pool    Pool
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

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS product_facets (
	product_key TEXT NOT NULL,
	facet       TEXT NOT NULL,
	value       JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (product_key, facet)
);

CREATE TABLE IF NOT EXISTS search_log (
	id          BIGSERIAL PRIMARY KEY,
	query       TEXT NOT NULL,
	input_type  TEXT NOT NULL,
	products    JSONB NOT NULL,
	success     BOOLEAN NOT NULL,
	error       TEXT,
	duration_ms BIGINT NOT NULL,
	at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_product_facets_expires ON product_facets(expires_at);
CREATE INDEX IF NOT EXISTS idx_search_log_at ON search_log(at DESC);
`

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

func (s *PostgresStore) GetFacet(ctx context.Context, productKey, facet string) (*FacetRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT product_key, facet, value, recorded_at, expires_at FROM product_facets
		 WHERE product_key = $1 AND facet = $2 AND expires_at > now()`,
		productKey, facet,
	)

	var rec FacetRecord
	err := row.Scan(&rec.ProductKey, &rec.Facet, &rec.Value, &rec.RecordedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get facet %s/%s", productKey, facet)
	}
	return &rec, nil
}

func (s *PostgresStore) PutFacet(ctx context.Context, productKey, facet string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_facets (product_key, facet, value, recorded_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (product_key, facet) DO UPDATE SET
		   value = EXCLUDED.value,
		   recorded_at = EXCLUDED.recorded_at,
		   expires_at = EXCLUDED.expires_at`,
		productKey, facet, value, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: put facet %s/%s", productKey, facet)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM product_facets WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) LogSearch(ctx context.Context, entry model.SearchLog) error {
	products, err := json.Marshal(entry.Products)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal products")
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_log (query, input_type, products, success, error, duration_ms, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Query, entry.InputType, products, entry.Success, entry.Error, entry.DurationMS, at,
	)
	return eris.Wrap(err, "postgres: log search")
}

func (s *PostgresStore) RecentSearches(ctx context.Context, limit int) ([]model.SearchLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT query, input_type, products, success, COALESCE(error, ''), duration_ms, at
		 FROM search_log ORDER BY at DESC, id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent searches")
	}
	defer rows.Close()

	var out []model.SearchLog
	for rows.Next() {
		var entry model.SearchLog
		var products []byte
		if err := rows.Scan(&entry.Query, &entry.InputType, &products, &entry.Success, &entry.Error, &entry.DurationMS, &entry.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search log")
		}
		if err := json.Unmarshal(products, &entry.Products); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal products")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent searches iterate")
}
