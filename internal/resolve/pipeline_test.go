package resolve

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcompare/compare-cli/internal/cache"
	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/retailer"
	"github.com/smartcompare/compare-cli/internal/store"
	"github.com/smartcompare/compare-cli/pkg/anthropic"
	"github.com/smartcompare/compare-cli/pkg/fetch"
	"github.com/smartcompare/compare-cli/pkg/serper"
)

// fakeSearch serves canned listings keyed by a query substring.
type fakeSearch struct {
	listings map[string][]serper.ShoppingResult
}

func (f *fakeSearch) Search(_ context.Context, req serper.SearchRequest) (*serper.SearchResponse, error) {
	return &serper.SearchResponse{}, nil
}

func (f *fakeSearch) Shopping(_ context.Context, req serper.SearchRequest) (*serper.ShoppingResponse, error) {
	for key, items := range f.listings {
		if strings.Contains(strings.ToLower(req.Query), key) {
			return &serper.ShoppingResponse{Shopping: items}, nil
		}
	}
	return &serper.ShoppingResponse{}, nil
}

// scriptedModel routes on the system prompt so one fake serves every
// extraction phase.
type scriptedModel struct {
	verdictReply string
	parseReply   string
	parseErr     error
}

func (m *scriptedModel) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	system := ""
	if len(req.System) > 0 {
		system = req.System[0].Text
	}
	user := ""
	if len(req.Messages) > 0 {
		user = req.Messages[0].Content
	}

	var reply string
	switch {
	case strings.Contains(system, "parse product comparison"):
		if m.parseErr != nil {
			return nil, m.parseErr
		}
		reply = m.parseReply
		if reply == "" {
			reply = `{"input_type": "comparison", "products": [
				{"name": "iPhone 15", "brand": "Apple", "category": "smartphone"},
				{"name": "Galaxy S24", "brand": "Samsung", "category": "smartphone"}
			]}`
		}
	case strings.Contains(system, "specification sheets"):
		if strings.Contains(user, "iPhone") {
			reply = `{"display": "6.1-inch OLED", "processor": "A16", "ram": "6GB", "storage": "128GB", "battery": "3349mAh", "camera": "48MP", "os": "iOS 17", "5g": "yes"}`
		} else {
			reply = `{"display": "6.2-inch AMOLED", "processor": "Exynos 2400", "ram": "8GB", "storage": "256GB", "battery": "4000mAh", "camera": "50MP", "os": "Android 14", "5g": "yes"}`
		}
	case strings.Contains(system, "read current retail prices"):
		reply = `{"found": false, "amount": 0, "currency": "", "retailer": "", "url": ""}`
	case strings.Contains(system, "estimate typical market prices"):
		reply = `{"amount": 320, "currency": "BHD", "basis": "launch price"}`
	case strings.Contains(system, "strengths and weaknesses"):
		reply = `{"pros": ["Bright display", "Fast chip", "Good camera"], "cons": ["No charger", "Average battery"]}`
	case strings.Contains(system, "head-to-head"):
		reply = m.verdictReply
		if reply == "" {
			reply = `{"winner_index": 0, "winner_reason": "Better ecosystem at {PRICE_0}",
				"key_differences": ["OS", "camera", "price: {PRICE_0} vs {PRICE_1}"],
				"recommendation": "Take the first one.", "confidence": 0.8}`
		}
	default:
		return nil, eris.Errorf("unscripted prompt: %.60s", system)
	}

	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

type nullFetcher struct{}

func (nullFetcher) Page(_ context.Context, url string) (*fetch.Page, error) {
	return nil, eris.Errorf("fetch %s: status 404", url)
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func bothListings() map[string][]serper.ShoppingResult {
	return map[string][]serper.ShoppingResult{
		"iphone": {
			{Title: "Apple iPhone 15 128GB", Source: "Amazon", Link: "https://amazon.com/i15", Price: "BHD 339", Rating: 4.5, RatingCount: 12000},
		},
		"galaxy": {
			{Title: "Samsung Galaxy S24 256GB", Source: "Sharaf DG", Link: "https://sharafdg.com/s24", Price: "BHD 289", Rating: 4.3, RatingCount: 8000},
		},
	}
}

func newPipeline(t *testing.T, st store.Store, m *scriptedModel) *Pipeline {
	return New(&fakeSearch{listings: bothListings()}, m, nullFetcher{}, retailer.Default(), st, cache.DefaultTTLs())
}

func TestCompare_HappyPath(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{})

	res, err := p.Compare(context.Background(), "iphone 15 vs galaxy s24", Options{Region: "BH"})
	require.NoError(t, err)

	assert.Equal(t, "BH", res.Region)
	assert.Equal(t, "BHD", res.Currency)

	first := res.Products[0]
	require.NotNil(t, first.Price)
	assert.Equal(t, 339.0, first.Price.Amount)
	assert.Equal(t, model.PriceTierStructured, first.Price.TierUsed)
	require.NotNil(t, first.Rating.Value)
	assert.Equal(t, 4.5, *first.Rating.Value)
	assert.Equal(t, "https://amazon.com/i15", first.Rating.Source.URL)
	assert.GreaterOrEqual(t, len(first.Pros), 3)
	assert.GreaterOrEqual(t, len(first.Cons), 2)

	// Resolved numbers injected into the drafted verdict.
	assert.Equal(t, 0, res.Verdict.WinnerIndex)
	assert.Contains(t, res.Verdict.WinnerReason, "BHD 339.00")
	assert.NotContains(t, res.Verdict.WinnerReason, "{PRICE_0}")

	assert.Greater(t, res.Usage.SearchCalls, 0)
	assert.Greater(t, res.Usage.ModelCalls, 0)

	// The analytics row landed.
	logs, err := st.RecentSearches(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, []string{"iPhone 15", "Galaxy S24"}, logs[0].Products)
}

func TestCompare_SecondRunServedFromCache(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{})
	ctx := context.Background()

	first, err := p.Compare(ctx, "iphone 15 vs galaxy s24", Options{Region: "BH"})
	require.NoError(t, err)

	second, err := p.Compare(ctx, "iphone 15 vs galaxy s24", Options{Region: "BH"})
	require.NoError(t, err)

	assert.Equal(t, 0, second.Usage.SearchCalls, "all facets must come from cache")
	assert.GreaterOrEqual(t, second.Usage.CacheHits, 6)
	assert.Equal(t, first.Products[0].Price.Amount, second.Products[0].Price.Amount)
}

func TestCompare_BypassRefreshes(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{})
	ctx := context.Background()

	_, err := p.Compare(ctx, "iphone 15 vs galaxy s24", Options{Region: "BH"})
	require.NoError(t, err)

	res, err := p.Compare(ctx, "iphone 15 vs galaxy s24", Options{Region: "BH", BypassCache: true})
	require.NoError(t, err)
	assert.Greater(t, res.Usage.SearchCalls, 0)
	assert.Equal(t, 0, res.Usage.CacheHits)
}

func TestCompare_NotAComparison(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{
		parseReply: `{"input_type": "single", "products": [{"name": "iPhone 15"}]}`,
	})

	_, err := p.Compare(context.Background(), "iphone 15", Options{Region: "BH"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotAComparison))

	// Failures are logged too.
	logs, lerr := st.RecentSearches(context.Background(), 5)
	require.NoError(t, lerr)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.NotEmpty(t, logs[0].Error)
}

func TestCompare_VerdictFallbackOnModelDrift(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{
		verdictReply: `{"winner_index": 7, "winner_reason": "", "key_differences": [], "recommendation": "", "confidence": 0}`,
	})

	res, err := p.Compare(context.Background(), "iphone 15 vs galaxy s24", Options{Region: "BH"})
	require.NoError(t, err)
	// Deterministic fallback: higher verified rating wins.
	assert.Equal(t, 0, res.Verdict.WinnerIndex)
	assert.Equal(t, 0.4, res.Verdict.Confidence)
	assert.NotEmpty(t, res.Verdict.Recommendation)
}

func TestCompare_ParseFallbackSplitsOnVS(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{parseErr: eris.New("model overloaded")})

	res, err := p.Compare(context.Background(), "iphone 15 vs galaxy s24", Options{Region: "BH"})
	require.NoError(t, err)
	assert.Equal(t, "iphone 15", res.Products[0].Name)
	assert.Equal(t, "galaxy s24", res.Products[1].Name)
	assert.Equal(t, "Apple", res.Products[0].Brand)
	assert.Equal(t, "Samsung", res.Products[1].Brand)
}

func TestCompare_ParseFallbackNeedsSeparator(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{parseErr: eris.New("model overloaded")})

	_, err := p.Compare(context.Background(), "iphone 15", Options{Region: "BH"})
	require.Error(t, err)
}

func TestResolveProduct_Single(t *testing.T) {
	st := testStore(t)
	p := newPipeline(t, st, &scriptedModel{})

	rec, usage, err := p.ResolveProduct(context.Background(),
		model.ProductQuery{Name: "iPhone 15", Brand: "Apple", Category: "smartphone"},
		Options{Region: "BH"})
	require.NoError(t, err)
	assert.Equal(t, "Apple", rec.Brand)
	require.NotNil(t, rec.Price)
	assert.Equal(t, 339.0, rec.Price.Amount)
	assert.Greater(t, usage.SearchCalls, 0)
	for _, f := range model.CategorySpecFields("smartphone") {
		assert.Contains(t, rec.Specs, f)
	}
}
