package serper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcompare/compare-cli/internal/resilience"
)

func noRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 1})
}

func TestShopping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shopping", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req SearchRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "iPhone 15 price", req.Query)
		assert.Equal(t, "bh", req.Country)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"shopping": [
				{"title": "Apple iPhone 15 128GB", "source": "Sharaf DG", "link": "https://uae.sharafdg.com/iphone-15", "price": "BHD 339.000", "rating": 4.5, "ratingCount": 1523, "position": 1},
				{"title": "iPhone 15 Case", "source": "AliExpress", "link": "https://aliexpress.com/x", "price": "$4.99", "position": 2}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), noRetry())
	resp, err := c.Shopping(context.Background(), SearchRequest{Query: "iPhone 15 price", Country: "bh"})
	require.NoError(t, err)
	require.Len(t, resp.Shopping, 2)
	assert.Equal(t, "Sharaf DG", resp.Shopping[0].Source)
	assert.Equal(t, "BHD 339.000", resp.Shopping[0].Price)
	assert.Equal(t, 1523, resp.Shopping[0].RatingCount)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		io.WriteString(w, `{
			"organic": [
				{"title": "iPhone 15 review", "link": "https://www.gsmarena.com/apple_iphone_15-review", "snippet": "Rated 4.6 out of 5", "position": 1}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), noRetry())
	resp, err := c.Search(context.Background(), SearchRequest{Query: "iPhone 15 review"})
	require.NoError(t, err)
	require.Len(t, resp.Organic, 1)
	assert.Contains(t, resp.Organic[0].Link, "gsmarena.com")
}

func TestPost_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"organic": []}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 1,
	}))
	_, err := c.Search(context.Background(), SearchRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPost_PermanentStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message": "invalid api key"}`)
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPost_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{invalid json`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), noRetry())
	_, err := c.Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}
