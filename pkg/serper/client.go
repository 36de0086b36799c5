// Package serper wraps the Serper.dev Google Search API: organic web search
// for specs and reviews, shopping search for retail listings.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/smartcompare/compare-cli/internal/resilience"
)

const defaultBaseURL = "https://google.serper.dev"

// Client performs web and shopping searches.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Shopping(ctx context.Context, req SearchRequest) (*ShoppingResponse, error)
}

// SearchRequest is the request body shared by both endpoints.
type SearchRequest struct {
	Query   string `json:"q"`
	Country string `json:"gl,omitempty"`
	Num     int    `json:"num,omitempty"`
}

// OrganicResult is one web search hit.
type OrganicResult struct {
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	Snippet     string  `json:"snippet"`
	Rating      float64 `json:"rating,omitempty"`
	RatingCount int     `json:"ratingCount,omitempty"`
	Position    int     `json:"position"`
}

// SearchResponse is the response from POST /search.
type SearchResponse struct {
	Organic []OrganicResult `json:"organic"`
}

// ShoppingResult is one retail listing.
type ShoppingResult struct {
	Title       string  `json:"title"`
	Source      string  `json:"source"`
	Link        string  `json:"link"`
	Price       string  `json:"price"`
	Rating      float64 `json:"rating,omitempty"`
	RatingCount int     `json:"ratingCount,omitempty"`
	Position    int     `json:"position"`
}

// ShoppingResponse is the response from POST /shopping.
type ShoppingResponse struct {
	Shopping []ShoppingResult `json:"shopping"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Serper meters by request,
// so the pipeline shares one client across both products of a comparison.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Serper API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var result SearchResponse
	if err := c.post(ctx, "/search", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) Shopping(ctx context.Context, req SearchRequest) (*ShoppingResponse, error) {
	var result ShoppingResponse
	if err := c.post(ctx, "/shopping", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) post(ctx context.Context, path string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "serper: marshal request")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("serper", path)

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "serper: rate limit wait")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "serper: create request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-KEY", c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return eris.Wrap(err, "serper: send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "serper: read response")
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("serper: unexpected status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "serper: unmarshal response")
		}
		return nil
	})
}
