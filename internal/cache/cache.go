// Package cache gates the resolvers behind the facet store. Every facet of
// a product record is cached and expired on its own clock; a cache failure
// is a miss, never a request failure.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/store"
)

// TTLs holds the per-facet lifetimes. Prices move daily; specs and editorial
// reviews barely move at all.
type TTLs struct {
	Price    time.Duration `mapstructure:"price"`
	Estimate time.Duration `mapstructure:"estimate"`
	Specs    time.Duration `mapstructure:"specs"`
	Rating   time.Duration `mapstructure:"rating"`
	Reviews  time.Duration `mapstructure:"reviews"`
}

// DefaultTTLs returns the standard facet lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Price:    24 * time.Hour,
		Estimate: 12 * time.Hour,
		Specs:    7 * 24 * time.Hour,
		Rating:   24 * time.Hour,
		Reviews:  7 * 24 * time.Hour,
	}
}

func (t TTLs) forFacet(facet string) time.Duration {
	switch facet {
	case store.FacetPrice:
		return t.Price
	case store.FacetEstimate:
		return t.Estimate
	case store.FacetSpecs:
		return t.Specs
	case store.FacetRating:
		return t.Rating
	case store.FacetReviews:
		return t.Reviews
	default:
		return time.Hour
	}
}

// Reviews is the cached editorial payload: pros and cons harvested alongside
// a rating.
type Reviews struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// Gate wraps a Store with typed per-facet access. With Bypass set every read
// misses, but writes still happen, so a forced refresh repopulates the cache.
type Gate struct {
	store  store.Store
	ttls   TTLs
	bypass bool
}

// New builds a Gate. A nil store disables caching entirely.
func New(s store.Store, ttls TTLs, bypass bool) *Gate {
	return &Gate{store: s, ttls: ttls, bypass: bypass}
}

// Bypassed reports whether reads are being skipped.
func (g *Gate) Bypassed() bool { return g.bypass }

func getFacet[T any](g *Gate, ctx context.Context, productKey, facet string) (*T, bool) {
	if g == nil || g.store == nil || g.bypass {
		return nil, false
	}
	rec, err := g.store.GetFacet(ctx, productKey, facet)
	if err != nil {
		zap.L().Warn("cache: read failed, treating as miss",
			zap.String("product_key", productKey),
			zap.String("facet", facet),
			zap.Error(err),
		)
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(rec.Value, &v); err != nil {
		zap.L().Warn("cache: corrupt record, treating as miss",
			zap.String("product_key", productKey),
			zap.String("facet", facet),
			zap.Error(err),
		)
		return nil, false
	}
	return &v, true
}

func putFacet[T any](g *Gate, ctx context.Context, productKey, facet string, v T) {
	if g == nil || g.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache: marshal failed, skipping write",
			zap.String("facet", facet),
			zap.Error(err),
		)
		return
	}
	if err := g.store.PutFacet(ctx, productKey, facet, raw, g.ttls.forFacet(facet)); err != nil {
		zap.L().Warn("cache: write failed",
			zap.String("product_key", productKey),
			zap.String("facet", facet),
			zap.Error(err),
		)
	}
}

func (g *Gate) GetPrice(ctx context.Context, productKey string) (*model.ResolvedPrice, bool) {
	return getFacet[model.ResolvedPrice](g, ctx, productKey, store.FacetPrice)
}

func (g *Gate) PutPrice(ctx context.Context, productKey string, p model.ResolvedPrice) {
	putFacet(g, ctx, productKey, store.FacetPrice, p)
}

// GetEstimate returns the memoized model price estimate. It is cached apart
// from resolved prices: a real listing must not be shadowed by an estimate,
// and the sanity check wants the estimate even when tier 1 succeeds.
func (g *Gate) GetEstimate(ctx context.Context, productKey string) (*model.ResolvedPrice, bool) {
	return getFacet[model.ResolvedPrice](g, ctx, productKey, store.FacetEstimate)
}

func (g *Gate) PutEstimate(ctx context.Context, productKey string, p model.ResolvedPrice) {
	putFacet(g, ctx, productKey, store.FacetEstimate, p)
}

func (g *Gate) GetSpecs(ctx context.Context, productKey string) (map[string]string, bool) {
	m, ok := getFacet[map[string]string](g, ctx, productKey, store.FacetSpecs)
	if !ok {
		return nil, false
	}
	return *m, true
}

func (g *Gate) PutSpecs(ctx context.Context, productKey string, specs map[string]string) {
	putFacet(g, ctx, productKey, store.FacetSpecs, specs)
}

func (g *Gate) GetRating(ctx context.Context, productKey string) (*model.ResolvedRating, bool) {
	return getFacet[model.ResolvedRating](g, ctx, productKey, store.FacetRating)
}

func (g *Gate) PutRating(ctx context.Context, productKey string, r model.ResolvedRating) {
	putFacet(g, ctx, productKey, store.FacetRating, r)
}

func (g *Gate) GetReviews(ctx context.Context, productKey string) (*Reviews, bool) {
	return getFacet[Reviews](g, ctx, productKey, store.FacetReviews)
}

func (g *Gate) PutReviews(ctx context.Context, productKey string, r Reviews) {
	putFacet(g, ctx, productKey, store.FacetReviews, r)
}
