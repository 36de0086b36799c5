package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcompare/compare-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_FacetRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := ProductKey("iPhone 15", "BH")

	require.NoError(t, s.PutFacet(ctx, key, FacetPrice, []byte(`{"amount":339}`), time.Hour))

	rec, err := s.GetFacet(ctx, key, FacetPrice)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, key, rec.ProductKey)
	assert.Equal(t, FacetPrice, rec.Facet)
	assert.JSONEq(t, `{"amount":339}`, string(rec.Value))
	assert.True(t, rec.ExpiresAt.After(rec.RecordedAt))
}

func TestSQLite_MissReturnsNilNil(t *testing.T) {
	s := newTestSQLite(t)
	rec, err := s.GetFacet(context.Background(), ProductKey("nothing", "BH"), FacetSpecs)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_ExpiredFacetIsAMiss(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := ProductKey("Galaxy S24", "BH")

	require.NoError(t, s.PutFacet(ctx, key, FacetPrice, []byte(`{}`), -time.Minute))

	rec, err := s.GetFacet(ctx, key, FacetPrice)
	require.NoError(t, err)
	assert.Nil(t, rec)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_PutFacetReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := ProductKey("iPhone 15", "BH")

	require.NoError(t, s.PutFacet(ctx, key, FacetRating, []byte(`{"value":4.5}`), time.Hour))
	require.NoError(t, s.PutFacet(ctx, key, FacetRating, []byte(`{"value":4.7}`), time.Hour))

	rec, err := s.GetFacet(ctx, key, FacetRating)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"value":4.7}`, string(rec.Value))
}

func TestSQLite_FacetsExpireIndependently(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := ProductKey("iPhone 15", "BH")

	require.NoError(t, s.PutFacet(ctx, key, FacetPrice, []byte(`{}`), -time.Minute))
	require.NoError(t, s.PutFacet(ctx, key, FacetSpecs, []byte(`{}`), time.Hour))

	price, err := s.GetFacet(ctx, key, FacetPrice)
	require.NoError(t, err)
	assert.Nil(t, price)

	specs, err := s.GetFacet(ctx, key, FacetSpecs)
	require.NoError(t, err)
	assert.NotNil(t, specs)
}

func TestSQLite_SearchLog(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.LogSearch(ctx, model.SearchLog{
		Query:      "iPhone 15 vs Galaxy S24",
		InputType:  "comparison",
		Products:   []string{"iPhone 15", "Galaxy S24"},
		Success:    true,
		DurationMS: 4200,
	}))
	require.NoError(t, s.LogSearch(ctx, model.SearchLog{
		Query:     "broken query",
		InputType: "single",
		Products:  []string{"broken query"},
		Success:   false,
		Error:     "no product name",
	}))

	logs, err := s.RecentSearches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "broken query", logs[0].Query)
	assert.False(t, logs[0].Success)
	assert.Equal(t, []string{"iPhone 15", "Galaxy S24"}, logs[1].Products)
}

func TestProductKey_Normalizes(t *testing.T) {
	assert.Equal(t, ProductKey("iPhone 15", "BH"), ProductKey("  IPHONE   15 ", "bh"))
	assert.NotEqual(t, ProductKey("iPhone 15", "BH"), ProductKey("iPhone 15", "SA"))
}
