package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/pkg/anthropic"
)

// fakeClient replays canned replies and records prompts.
type fakeClient struct {
	replies []string
	calls   int
	lastReq anthropic.MessageRequest
	err     error
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[f.calls%len(f.replies)]
	f.calls++
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func TestParseQuery_Comparison(t *testing.T) {
	fake := &fakeClient{replies: []string{`{
		"input_type": "comparison",
		"products": [
			{"name": "iPhone 15", "brand": "Apple", "category": "smartphone"},
			{"name": "Galaxy S24", "brand": "Samsung", "category": "smartphone"}
		]
	}`}}
	e := New(fake)

	got, err := e.ParseQuery(context.Background(), "iphone 15 vs galaxy s24")
	require.NoError(t, err)
	assert.Equal(t, "comparison", got.InputType)
	require.Len(t, got.Products, 2)
	assert.Equal(t, "Apple", got.Products[0].Brand)
}

func TestParseQuery_MarkdownFencesStripped(t *testing.T) {
	fake := &fakeClient{replies: []string{"```json\n{\"input_type\": \"single\", \"products\": [{\"name\": \"iPhone 15\"}]}\n```"}}
	e := New(fake)

	got, err := e.ParseQuery(context.Background(), "iphone 15")
	require.NoError(t, err)
	assert.Equal(t, "single", got.InputType)
}

func TestDraftSpecs_RestrictedToFields(t *testing.T) {
	fake := &fakeClient{replies: []string{`{"display": "6.1-inch OLED", "storage": "128GB", "battery": ""}`}}
	e := New(fake)

	specs, err := e.DraftSpecs(context.Background(),
		model.ProductQuery{Name: "iPhone 15", Brand: "Apple", Category: "smartphone"},
		[]string{"display", "storage", "battery"})
	require.NoError(t, err)
	assert.Equal(t, "128GB", specs["storage"])
	assert.Contains(t, fake.lastReq.Messages[0].Content, "display, storage, battery")
}

func TestExtractPriceFromText_NotFound(t *testing.T) {
	fake := &fakeClient{replies: []string{`{"found": false, "amount": 0, "currency": "", "retailer": "", "url": ""}`}}
	e := New(fake)

	got, err := e.ExtractPriceFromText(context.Background(),
		model.ProductQuery{Name: "iPhone 15"}, []string{"no prices here"})
	require.NoError(t, err)
	assert.False(t, got.Found)
}

func TestEstimatePrice_FillsCurrency(t *testing.T) {
	fake := &fakeClient{replies: []string{`{"amount": 350, "currency": "", "basis": "launch price region-adjusted"}`}}
	e := New(fake)

	got, err := e.EstimatePrice(context.Background(), model.ProductQuery{Name: "iPhone 15"}, "BHD")
	require.NoError(t, err)
	assert.Equal(t, 350.0, got.Amount)
	assert.Equal(t, "BHD", got.Currency)
}

func TestCompareVerdict_RedactsNumbersAndValidatesWinner(t *testing.T) {
	fake := &fakeClient{replies: []string{`{
		"winner_index": 1,
		"winner_reason": "Better value at {PRICE_1}",
		"key_differences": ["display", "battery", "price"],
		"recommendation": "Buy the second one.",
		"confidence": 0.8
	}`}}
	e := New(fake)

	val := 4.6
	a := record("iPhone 15", 339, &val)
	b := record("Galaxy S24", 289, nil)

	got, err := e.CompareVerdict(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, got.WinnerIndex)

	// The prompt payload must not contain the resolved amounts or rating.
	sent := fake.lastReq.Messages[0].Content
	assert.NotContains(t, sent, "339")
	assert.NotContains(t, sent, "289")
	assert.NotContains(t, sent, "4.6")
	assert.Contains(t, sent, "cheaper")
	assert.Contains(t, sent, "excellent")
}

func TestCompareVerdict_RejectsBadWinnerIndex(t *testing.T) {
	fake := &fakeClient{replies: []string{`{"winner_index": 2, "winner_reason": "", "key_differences": [], "recommendation": "", "confidence": 0}`}}
	e := New(fake)

	_, err := e.CompareVerdict(context.Background(), record("a", 1, nil), record("b", 2, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "winner_index")
}

func TestUsageCallbackFires(t *testing.T) {
	fake := &fakeClient{replies: []string{`{"input_type": "unclear", "products": []}`}}
	var tallied int64
	e := New(fake, WithUsageCallback(func(u anthropic.TokenUsage) {
		tallied += u.InputTokens + u.OutputTokens
	}))

	_, err := e.ParseQuery(context.Background(), "???")
	require.NoError(t, err)
	assert.Equal(t, int64(150), tallied)
}

func record(name string, amount float64, rating *float64) model.ValidatedProductRecord {
	rec := model.ValidatedProductRecord{
		ProductRecord: model.ProductRecord{
			Name:  name,
			Price: &model.ResolvedPrice{Amount: amount, Currency: "BHD"},
			Specs: map[string]string{"display": "6.1-inch"},
		},
	}
	if rating != nil {
		rec.Rating = &model.ResolvedRating{Value: rating, Verified: true}
	}
	return rec
}
