// Package store persists per-facet product data and search analytics.
// Three backends implement the same interface: SQLite for local CLI use,
// Postgres for the server, Redis for shared ephemeral caching.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/smartcompare/compare-cli/internal/model"
)

// Facet names. Each facet of a product record is cached and expired
// independently.
const (
	FacetPrice    = "price"
	FacetEstimate = "estimate"
	FacetSpecs    = "specs"
	FacetRating   = "rating"
	FacetReviews  = "reviews"
)

// FacetRecord is one cached facet value with its expiry metadata.
type FacetRecord struct {
	ProductKey string    `json:"product_key"`
	Facet      string    `json:"facet"`
	Value      []byte    `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its TTL.
func (r *FacetRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ProductKey normalizes a product name plus region into the cache key shared
// by all facets of that product.
func ProductKey(productName, region string) string {
	name := strings.Join(strings.Fields(strings.ToLower(productName)), " ")
	return name + "|" + strings.ToUpper(region)
}

// Store is the persistence interface for the resolution pipeline.
type Store interface {
	// GetFacet returns the freshest unexpired record for the key and facet,
	// or (nil, nil) on a miss. Expired rows are treated as absent.
	GetFacet(ctx context.Context, productKey, facet string) (*FacetRecord, error)

	// PutFacet stores a facet value with the given TTL, replacing any
	// previous value for the same key and facet.
	PutFacet(ctx context.Context, productKey, facet string, value []byte, ttl time.Duration) error

	// DeleteExpired removes rows past their TTL, returning the count.
	DeleteExpired(ctx context.Context) (int, error)

	// LogSearch appends one analytics row. Failures are logged by callers,
	// never surfaced to the user.
	LogSearch(ctx context.Context, entry model.SearchLog) error

	// RecentSearches returns the newest log rows, most recent first.
	RecentSearches(ctx context.Context, limit int) ([]model.SearchLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
