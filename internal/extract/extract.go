// Package extract is the model-backed extraction layer: query parsing, spec
// drafting, price extraction from search text, price estimation, and the
// comparison verdict. Every numeric fact about price and rating still comes
// from the resolvers; the prompts here forbid the model from inventing them.
package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
)

// Extractor runs structured extraction prompts.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	onUsage   func(anthropic.TokenUsage)
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(e *Extractor) { e.model = m }
}

// WithMaxTokens overrides the per-call output token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// WithUsageCallback registers a callback fired after every model call.
func WithUsageCallback(fn func(anthropic.TokenUsage)) Option {
	return func(e *Extractor) { e.onUsage = fn }
}

// New creates an Extractor.
func New(client anthropic.Client, opts ...Option) *Extractor {
	e := &Extractor{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// complete sends one prompt and returns the text of the reply.
func (e *Extractor) complete(ctx context.Context, phase, system, user string) (string, error) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrapf(err, "extract: %s", phase)
	}
	resp.Usage.LogCost(e.model, phase)
	if e.onUsage != nil {
		e.onUsage(resp.Usage)
	}
	return resp.FirstText(), nil
}

// decodeJSON strips markdown fences and decodes the reply into out.
func decodeJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	// tolerate prose around a single JSON object
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		start := strings.IndexAny(s, "{[")
		if start < 0 {
			return eris.Errorf("extract: no JSON in reply: %.80s", raw)
		}
		s = s[start:]
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return eris.Wrapf(err, "extract: decode reply %.80s", s)
	}
	return nil
}

// ParsedQuery is the model's reading of a free-text compare request.
type ParsedQuery struct {
	InputType string               `json:"input_type"` // comparison | single | unclear
	Products  []model.ProductQuery `json:"products"`
}

// ParseQuery splits a free-text request like "iphone 15 vs galaxy s24" into
// its product identities.
func (e *Extractor) ParseQuery(ctx context.Context, query string) (*ParsedQuery, error) {
	raw, err := e.complete(ctx, "parse_query", parseQuerySystem, "Request: "+query)
	if err != nil {
		return nil, err
	}
	var out ParsedQuery
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DraftSpecs asks for the known specification sheet of a product, restricted
// to the given field names.
func (e *Extractor) DraftSpecs(ctx context.Context, q model.ProductQuery, fields []string) (map[string]string, error) {
	user := "Product: " + q.FullName() + "\nCategory: " + q.Category +
		"\nFields: " + strings.Join(fields, ", ")
	raw, err := e.complete(ctx, "draft_specs", draftSpecsSystem, user)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TextPrice is a price the model read out of search result text.
type TextPrice struct {
	Found    bool    `json:"found"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Retailer string  `json:"retailer"`
	URL      string  `json:"url"`
}

// ExtractPriceFromText reads a current retail price out of raw search
// snippets. The model may only quote a price that appears verbatim in the
// text, with the page it came from.
func (e *Extractor) ExtractPriceFromText(ctx context.Context, q model.ProductQuery, snippets []string) (*TextPrice, error) {
	user := "Product: " + q.FullName() + "\n\nSearch results:\n" + strings.Join(snippets, "\n---\n")
	raw, err := e.complete(ctx, "extract_price", extractPriceSystem, user)
	if err != nil {
		return nil, err
	}
	var out TextPrice
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Estimate is the model's market-price guess for a product.
type Estimate struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Basis    string  `json:"basis"`
}

// EstimatePrice asks for a typical market price. Never fails to produce a
// number; the caller labels it estimated and halves its confidence.
func (e *Extractor) EstimatePrice(ctx context.Context, q model.ProductQuery, currency string) (*Estimate, error) {
	user := "Product: " + q.FullName() + "\nCategory: " + q.Category + "\nCurrency: " + currency
	raw, err := e.complete(ctx, "estimate_price", estimatePriceSystem, user)
	if err != nil {
		return nil, err
	}
	var out Estimate
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	if out.Currency == "" {
		out.Currency = currency
	}
	return &out, nil
}

// ProsCons is a drafted pros/cons list grounded in a spec sheet.
type ProsCons struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// DraftProsCons writes pros and cons from the resolved spec sheet only.
func (e *Extractor) DraftProsCons(ctx context.Context, q model.ProductQuery, specs map[string]string) (*ProsCons, error) {
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return nil, eris.Wrap(err, "extract: marshal specs")
	}
	user := "Product: " + q.FullName() + "\nSpecs: " + string(specsJSON)
	raw, err := e.complete(ctx, "draft_pros_cons", prosConsSystem, user)
	if err != nil {
		return nil, err
	}
	var out ProsCons
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompareVerdict drafts the head-to-head judgement. The records passed in
// are serialized without their price amounts or rating values; resolved
// numbers are injected into the verdict text afterwards by the pipeline, so
// a drifting model can never misquote them.
func (e *Extractor) CompareVerdict(ctx context.Context, a, b model.ValidatedProductRecord) (*model.Verdict, error) {
	ra, rb := redactNumbers(a), redactNumbers(b)
	ra.PriceBand, rb.PriceBand = priceBands(a, b)
	payload, err := json.Marshal([2]any{ra, rb})
	if err != nil {
		return nil, eris.Wrap(err, "extract: marshal records")
	}
	raw, err := e.complete(ctx, "compare_verdict", verdictSystem, string(payload))
	if err != nil {
		return nil, err
	}
	var out model.Verdict
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	if out.WinnerIndex != 0 && out.WinnerIndex != 1 {
		return nil, eris.Errorf("extract: verdict winner_index out of range: %d", out.WinnerIndex)
	}
	return &out, nil
}

// redactedRecord is what the verdict prompt sees: qualitative facts plus
// placeholders where the resolved numbers will be injected.
type redactedRecord struct {
	Name       string            `json:"name"`
	Brand      string            `json:"brand"`
	Category   string            `json:"category"`
	Specs      map[string]string `json:"specs"`
	Pros       []string          `json:"pros"`
	Cons       []string          `json:"cons"`
	PriceBand  string            `json:"price_band"`
	RatingBand string            `json:"rating_band"`
}

// priceBands describes the two prices relative to each other without
// exposing the amounts.
func priceBands(a, b model.ValidatedProductRecord) (string, string) {
	if a.Price == nil || b.Price == nil {
		return "unknown", "unknown"
	}
	switch {
	case a.Price.Amount < b.Price.Amount:
		return "cheaper", "pricier"
	case a.Price.Amount > b.Price.Amount:
		return "pricier", "cheaper"
	default:
		return "same", "same"
	}
}

func redactNumbers(r model.ValidatedProductRecord) redactedRecord {
	out := redactedRecord{
		Name:       r.Name,
		Brand:      r.Brand,
		Category:   r.Category,
		Specs:      r.Specs,
		Pros:       r.Pros,
		Cons:       r.Cons,
		RatingBand: "unrated",
	}
	if r.Rating != nil && r.Rating.Value != nil {
		switch v := *r.Rating.Value; {
		case v >= 4.5:
			out.RatingBand = "excellent"
		case v >= 4.0:
			out.RatingBand = "good"
		case v >= 3.0:
			out.RatingBand = "average"
		default:
			out.RatingBand = "poor"
		}
	}
	return out
}
