package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/smartcompare/compare-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Default backend for
// the CLI: one file, no daemon.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS product_facets (
	product_key TEXT NOT NULL,
	facet       TEXT NOT NULL,
	value       TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL,
	PRIMARY KEY (product_key, facet)
);

CREATE TABLE IF NOT EXISTS search_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	query       TEXT NOT NULL,
	input_type  TEXT NOT NULL,
	products    TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT,
	duration_ms INTEGER NOT NULL,
	at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_facets_expires ON product_facets(expires_at);
CREATE INDEX IF NOT EXISTS idx_search_log_at ON search_log(at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetFacet(ctx context.Context, productKey, facet string) (*FacetRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT product_key, facet, value, recorded_at, expires_at FROM product_facets
		 WHERE product_key = ? AND facet = ? AND expires_at > ?`,
		productKey, facet, time.Now().UTC(),
	)

	var rec FacetRecord
	var value string
	err := row.Scan(&rec.ProductKey, &rec.Facet, &value, &rec.RecordedAt, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get facet %s/%s", productKey, facet)
	}
	rec.Value = []byte(value)
	return &rec, nil
}

func (s *SQLiteStore) PutFacet(ctx context.Context, productKey, facet string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_facets (product_key, facet, value, recorded_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (product_key, facet) DO UPDATE SET
		   value = excluded.value,
		   recorded_at = excluded.recorded_at,
		   expires_at = excluded.expires_at`,
		productKey, facet, string(value), now, now.Add(ttl),
	)
	return eris.Wrapf(err, "sqlite: put facet %s/%s", productKey, facet)
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM product_facets WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) LogSearch(ctx context.Context, entry model.SearchLog) error {
	products, err := json.Marshal(entry.Products)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal products")
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_log (query, input_type, products, success, error, duration_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Query, entry.InputType, string(products), entry.Success, entry.Error, entry.DurationMS, at,
	)
	return eris.Wrap(err, "sqlite: log search")
}

func (s *SQLiteStore) RecentSearches(ctx context.Context, limit int) ([]model.SearchLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, input_type, products, success, error, duration_ms, at
		 FROM search_log ORDER BY at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent searches")
	}
	defer rows.Close()

	var out []model.SearchLog
	for rows.Next() {
		var entry model.SearchLog
		var products string
		var errMsg sql.NullString
		if err := rows.Scan(&entry.Query, &entry.InputType, &products, &entry.Success, &errMsg, &entry.DurationMS, &entry.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search log")
		}
		if err := json.Unmarshal([]byte(products), &entry.Products); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal products")
		}
		entry.Error = errMsg.String
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent searches iterate")
}
