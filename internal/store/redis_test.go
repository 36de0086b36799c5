package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcompare/compare-cli/internal/model"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisWithClient(client)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedis_FacetRoundTrip(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	key := ProductKey("iPhone 15", "BH")

	require.NoError(t, s.PutFacet(ctx, key, FacetPrice, []byte(`{"amount":339}`), time.Hour))

	rec, err := s.GetFacet(ctx, key, FacetPrice)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, key, rec.ProductKey)
	assert.JSONEq(t, `{"amount":339}`, string(rec.Value))
}

func TestRedis_MissReturnsNilNil(t *testing.T) {
	s, _ := newTestRedis(t)
	rec, err := s.GetFacet(context.Background(), "unknown|BH", FacetSpecs)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRedis_TTLExpiryIsAMiss(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	key := ProductKey("Galaxy S24", "BH")

	require.NoError(t, s.PutFacet(ctx, key, FacetPrice, []byte(`{}`), time.Minute))
	mr.FastForward(2 * time.Minute)

	rec, err := s.GetFacet(ctx, key, FacetPrice)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRedis_SearchLogOrderAndCap(t *testing.T) {
	s, _ := newTestRedis(t)
	s.maxLogRows = 3
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three", "four"} {
		require.NoError(t, s.LogSearch(ctx, model.SearchLog{
			Query: q, InputType: "single", Products: []string{q}, Success: true,
		}))
	}

	logs, err := s.RecentSearches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "four", logs[0].Query)
	assert.Equal(t, "two", logs[2].Query)
}
