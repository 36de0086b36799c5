// Package fetch retrieves review pages and extracts structured editorial
// data from their JSON-LD blocks.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartcompare/compare-cli/internal/resilience"
)

const defaultMaxBytes = 2 << 20 // 2 MiB is plenty for any review page

// Error reports a failed page fetch with its HTTP status when one was
// received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Page is one fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       string
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.http = hc
	}
}

// WithMaxBytes caps how much of a page body is read.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithUserAgent overrides the request User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// Fetcher downloads pages with a hard timeout. No retries: review page
// fetches are best-effort and the caller moves to the next source on
// failure.
type Fetcher struct {
	http      *http.Client
	maxBytes  int64
	userAgent string
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxBytes:  defaultMaxBytes,
		userAgent: "Mozilla/5.0 (compatible; comparebot/1.0)",
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Page fetches one URL. Non-2xx responses return an *Error; transient
// statuses are additionally marked retryable for callers that do retry.
func (f *Fetcher) Page(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ferr := &Error{URL: url, StatusCode: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(ferr, resp.StatusCode)
		}
		return nil, ferr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	return &Page{URL: url, StatusCode: resp.StatusCode, Body: string(body)}, nil
}
