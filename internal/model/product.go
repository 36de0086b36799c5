package model

import "time"

// SearchKind selects which upstream search index a query goes to.
type SearchKind string

const (
	SearchSpecs    SearchKind = "specs"
	SearchShopping SearchKind = "shopping"
	SearchReviews  SearchKind = "reviews"
	SearchExpert   SearchKind = "expert"
)

// ProductQuery is the free-text identity of a product being resolved.
// Immutable once a resolution pass starts.
type ProductQuery struct {
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Category string `json:"category,omitempty"`
}

// FullName returns the display/search form "brand name variant".
func (q ProductQuery) FullName() string {
	s := q.Brand
	if s != "" && q.Name != "" {
		s += " "
	}
	s += q.Name
	if q.Variant != "" {
		s += " " + q.Variant
	}
	return s
}

// SourceCandidate is one retailer listing returned by the search capability.
// Read-only to the resolvers.
type SourceCandidate struct {
	SourceName   string  `json:"source_name"`
	Title        string  `json:"title"`
	RawPrice     string  `json:"raw_price,omitempty"`
	RawRating    float64 `json:"raw_rating,omitempty"`
	HasRating    bool    `json:"has_rating,omitempty"`
	ReviewCount  int     `json:"review_count,omitempty"`
	URL          string  `json:"url,omitempty"`
	CurrencyHint string  `json:"currency_hint,omitempty"`
	Snippet      string  `json:"snippet,omitempty"`
}

// PriceTier identifies which fallback tier produced a resolved price.
type PriceTier int

const (
	PriceTierStructured PriceTier = 1 // direct shopping-listing extraction
	PriceTierText       PriceTier = 2 // model extraction from search text
	PriceTierEstimate   PriceTier = 3 // model estimate, always succeeds
)

// ResolvedPrice is the outcome of one price resolution pass.
// Invariant: Estimated implies Confidence <= 0.5 and no authoritative retailer.
type ResolvedPrice struct {
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Retailer         string    `json:"retailer,omitempty"`
	URL              string    `json:"url,omitempty"`
	TierUsed         PriceTier `json:"tier_used"`
	Estimated        bool      `json:"estimated"`
	Confidence       float64   `json:"confidence"`
	OriginalAmount   float64   `json:"original_amount,omitempty"`
	OriginalCurrency string    `json:"original_currency,omitempty"`
	Note             string    `json:"note,omitempty"`
}

// RatingSource carries the provenance a rating must have to be emitted.
type RatingSource struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	ExtractMethod string `json:"extract_method"`
	Confidence    string `json:"confidence"` // expert | high | medium | marketplace
	RetrievedAt   string `json:"retrieved_at,omitempty"`
}

// ResolvedRating is the outcome of rating resolution. Value is nil when no
// tier produced a URL-backed rating; a numeric value without a source URL
// never leaves the resolver.
type ResolvedRating struct {
	Value       *float64      `json:"value"`
	ReviewCount *int          `json:"review_count,omitempty"`
	Verified    bool          `json:"verified"`
	Source      *RatingSource `json:"source"`
	Pros        []string      `json:"pros,omitempty"` // harvested from expert payloads only
	Cons        []string      `json:"cons,omitempty"`
}

// ProductRecord is the assembled-but-unvalidated record for one product.
type ProductRecord struct {
	Name        string            `json:"name"`
	Brand       string            `json:"brand"`
	Category    string            `json:"category"`
	Price       *ResolvedPrice    `json:"price"`
	Specs       map[string]string `json:"specs"`
	Rating      *ResolvedRating   `json:"rating"`
	Pros        []string          `json:"pros"`
	Cons        []string          `json:"cons"`
	Confidence  float64           `json:"confidence"`
	FromCache   map[string]bool   `json:"from_cache,omitempty"`
	ResolvedAt  time.Time         `json:"resolved_at"`
}

// ValidatedProductRecord is a ProductRecord that passed the completeness
// contract (or was repaired to meet it). Only these may be returned upward.
type ValidatedProductRecord struct {
	ProductRecord
	Repairs []string `json:"repairs,omitempty"` // which fallback fills ran
}

// Verdict is the drafted head-to-head judgement between two records.
type Verdict struct {
	WinnerIndex    int      `json:"winner_index"`
	WinnerReason   string   `json:"winner_reason"`
	KeyDifferences []string `json:"key_differences"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
}

// Usage tallies external work done during one request.
type Usage struct {
	SearchCalls int   `json:"search_calls"`
	ModelCalls  int   `json:"model_calls"`
	PageFetches int   `json:"page_fetches"`
	CacheHits   int   `json:"cache_hits"`
	ElapsedMS   int64 `json:"elapsed_ms"`
}

// ComparisonResult is the produced interface's top-level output.
type ComparisonResult struct {
	Products [2]ValidatedProductRecord `json:"products"`
	Verdict  Verdict                   `json:"verdict"`
	Region   string                    `json:"region"`
	Currency string                    `json:"currency"`
	Usage    Usage                     `json:"usage"`
}

// SearchLog is one analytics row written after each request.
type SearchLog struct {
	Query      string    `json:"query"`
	InputType  string    `json:"input_type"`
	Products   []string  `json:"products"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}
