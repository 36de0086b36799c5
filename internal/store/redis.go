package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/smartcompare/compare-cli/internal/model"
)

// RedisStore implements Store on Redis. TTLs ride on Redis key expiry, so
// DeleteExpired is a no-op; the search log is a capped list.
type RedisStore struct {
	client     redis.UniversalClient
	maxLogRows int64
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}
	return &RedisStore{client: client, maxLogRows: 1000}, nil
}

// NewRedisWithClient wraps an existing client. Used by tests.
func NewRedisWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, maxLogRows: 1000}
}

func facetKey(productKey, facet string) string {
	return "facet:" + productKey + ":" + facet
}

const searchLogKey = "search_log"

func (s *RedisStore) Migrate(ctx context.Context) error {
	return nil // schemaless
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetFacet(ctx context.Context, productKey, facet string) (*FacetRecord, error) {
	raw, err := s.client.Get(ctx, facetKey(productKey, facet)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get facet %s/%s", productKey, facet)
	}

	var rec FacetRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, eris.Wrap(err, "redis: unmarshal facet record")
	}
	return &rec, nil
}

func (s *RedisStore) PutFacet(ctx context.Context, productKey, facet string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := FacetRecord{
		ProductKey: productKey,
		Facet:      facet,
		Value:      value,
		RecordedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "redis: marshal facet record")
	}
	err = s.client.Set(ctx, facetKey(productKey, facet), raw, ttl).Err()
	return eris.Wrapf(err, "redis: put facet %s/%s", productKey, facet)
}

func (s *RedisStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil // Redis expires keys itself
}

func (s *RedisStore) LogSearch(ctx context.Context, entry model.SearchLog) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "redis: marshal search log")
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, searchLogKey, raw)
	pipe.LTrim(ctx, searchLogKey, 0, s.maxLogRows-1)
	_, err = pipe.Exec(ctx)
	return eris.Wrap(err, "redis: log search")
}

func (s *RedisStore) RecentSearches(ctx context.Context, limit int) ([]model.SearchLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.LRange(ctx, searchLogKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: recent searches")
	}

	out := make([]model.SearchLog, 0, len(rows))
	for _, raw := range rows {
		var entry model.SearchLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, eris.Wrap(err, "redis: unmarshal search log")
		}
		out = append(out, entry)
	}
	return out, nil
}
