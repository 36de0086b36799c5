// Package resolve orchestrates the per-product facet pipeline and the
// two-product comparison on top of it.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smartcompare/compare-cli/internal/cache"
	"github.com/smartcompare/compare-cli/internal/extract"
	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/price"
	"github.com/smartcompare/compare-cli/internal/rating"
	"github.com/smartcompare/compare-cli/internal/retailer"
	"github.com/smartcompare/compare-cli/internal/store"
	"github.com/smartcompare/compare-cli/internal/validate"
	"github.com/smartcompare/compare-cli/pkg/anthropic"
	"github.com/smartcompare/compare-cli/pkg/serper"
)

// ErrNotAComparison is returned by Compare when the request doesn't name
// two products.
var ErrNotAComparison = eris.New("resolve: request is not a two-product comparison")

// Options tune one request.
type Options struct {
	Region      string
	BypassCache bool
}

func (o Options) region() string {
	if o.Region == "" {
		return "BH"
	}
	return o.Region
}

// Pipeline wires the search, model, fetch and storage capabilities into the
// facet resolution flow.
type Pipeline struct {
	search     serper.Client
	modelAPI   anthropic.Client
	fetcher    rating.PageFetcher
	classifier *retailer.Classifier
	st         store.Store
	ttls       cache.TTLs

	// ModelName overrides the extraction model.
	ModelName string
	// MaxModelTokens overrides the per-call output cap when > 0.
	MaxModelTokens int64
	// HighValueFloorBHD is passed through to the price resolver.
	HighValueFloorBHD float64
	// ResultsPerSearch caps listings per search when > 0.
	ResultsPerSearch int
}

// New builds a Pipeline. st may be nil, which disables caching and search
// logging.
func New(search serper.Client, modelAPI anthropic.Client, fetcher rating.PageFetcher, classifier *retailer.Classifier, st store.Store, ttls cache.TTLs) *Pipeline {
	return &Pipeline{
		search:            search,
		modelAPI:          modelAPI,
		fetcher:           fetcher,
		classifier:        classifier,
		st:                st,
		ttls:              ttls,
		HighValueFloorBHD: 100,
	}
}

// counters tallies external work for one request.
type counters struct {
	searchCalls atomic.Int64
	modelCalls  atomic.Int64
	pageFetches atomic.Int64
	cacheHits   atomic.Int64
}

func (c *counters) usage(elapsed time.Duration) model.Usage {
	return model.Usage{
		SearchCalls: int(c.searchCalls.Load()),
		ModelCalls:  int(c.modelCalls.Load()),
		PageFetches: int(c.pageFetches.Load()),
		CacheHits:   int(c.cacheHits.Load()),
		ElapsedMS:   elapsed.Milliseconds(),
	}
}

// countingSearcher wraps the search client to meter calls.
type countingSearcher struct {
	inner serper.Client
	n     *atomic.Int64
}

func (c *countingSearcher) Search(ctx context.Context, req serper.SearchRequest) (*serper.SearchResponse, error) {
	c.n.Add(1)
	return c.inner.Search(ctx, req)
}

func (c *countingSearcher) Shopping(ctx context.Context, req serper.SearchRequest) (*serper.ShoppingResponse, error) {
	c.n.Add(1)
	return c.inner.Shopping(ctx, req)
}

// request bundles the per-request wiring.
type request struct {
	p    *Pipeline
	gate *cache.Gate
	ex   *extract.Extractor
	pr   *price.Resolver
	rr   *rating.Resolver
	val  *validate.Validator
	ctrs *counters
}

func (p *Pipeline) newRequest(opts Options) *request {
	ctrs := &counters{}
	gate := cache.New(p.st, p.ttls, opts.BypassCache)
	searcher := &countingSearcher{inner: p.search, n: &ctrs.searchCalls}

	exOpts := []extract.Option{
		extract.WithUsageCallback(func(anthropic.TokenUsage) { ctrs.modelCalls.Add(1) }),
	}
	if p.ModelName != "" {
		exOpts = append(exOpts, extract.WithModel(p.ModelName))
	}
	if p.MaxModelTokens > 0 {
		exOpts = append(exOpts, extract.WithMaxTokens(p.MaxModelTokens))
	}
	ex := extract.New(p.modelAPI, exOpts...)

	pr := price.NewResolver(searcher, ex, p.classifier, gate)
	pr.HighValueFloorBHD = p.HighValueFloorBHD
	if p.ResultsPerSearch > 0 {
		pr.ResultsPerSearch = p.ResultsPerSearch
	}

	rr := rating.NewResolver(searcher, p.fetcher, p.classifier)
	rr.OnPageFetch = func() { ctrs.pageFetches.Add(1) }

	return &request{
		p:    p,
		gate: gate,
		ex:   ex,
		pr:   pr,
		rr:   rr,
		val:  validate.New(ex),
		ctrs: ctrs,
	}
}

// ResolveProduct resolves one product's full record.
func (p *Pipeline) ResolveProduct(ctx context.Context, q model.ProductQuery, opts Options) (*model.ValidatedProductRecord, model.Usage, error) {
	start := time.Now()
	req := p.newRequest(opts)
	rec, err := req.resolveRecord(ctx, q, opts.region())
	usage := req.ctrs.usage(time.Since(start))
	if err != nil {
		return nil, usage, err
	}
	return rec, usage, nil
}

// resolveRecord runs the three facet resolutions in parallel, assembles the
// record, and validates it.
func (r *request) resolveRecord(ctx context.Context, q model.ProductQuery, region string) (*model.ValidatedProductRecord, error) {
	key := store.ProductKey(q.FullName(), region)

	var (
		resolvedPrice  *model.ResolvedPrice
		resolvedRating *model.ResolvedRating
		specs          map[string]string

		priceCached, ratingCached, specsCached bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if cached, ok := r.gate.GetPrice(gctx, key); ok {
			r.ctrs.cacheHits.Add(1)
			priceCached = true
			resolvedPrice = cached
			return nil
		}
		p, err := r.pr.Resolve(gctx, q, region)
		if err != nil {
			return err
		}
		resolvedPrice = p
		r.gate.PutPrice(gctx, key, *p)
		return nil
	})

	g.Go(func() error {
		if cached, ok := r.gate.GetRating(gctx, key); ok {
			r.ctrs.cacheHits.Add(1)
			ratingCached = true
			resolvedRating = cached
			return nil
		}
		rr, err := r.rr.Resolve(gctx, q, region)
		if err != nil {
			return err
		}
		resolvedRating = rr
		r.gate.PutRating(gctx, key, *rr)
		if len(rr.Pros) > 0 || len(rr.Cons) > 0 {
			r.gate.PutReviews(gctx, key, cache.Reviews{Pros: rr.Pros, Cons: rr.Cons})
		}
		return nil
	})

	g.Go(func() error {
		if cached, ok := r.gate.GetSpecs(gctx, key); ok {
			r.ctrs.cacheHits.Add(1)
			specsCached = true
			specs = cached
			return nil
		}
		drafted, err := r.ex.DraftSpecs(gctx, q, model.CategorySpecFields(q.Category))
		if err != nil {
			// Specs are repairable downstream; don't sink the record.
			zap.L().Warn("resolve: spec draft failed",
				zap.String("product", q.FullName()),
				zap.Error(err),
			)
			specs = map[string]string{}
			return nil
		}
		specs = drafted
		r.gate.PutSpecs(gctx, key, drafted)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "resolve: %s", q.FullName())
	}

	fromCache := map[string]bool{}
	for facet, hit := range map[string]bool{
		store.FacetPrice:  priceCached,
		store.FacetRating: ratingCached,
		store.FacetSpecs:  specsCached,
	} {
		if hit {
			fromCache[facet] = true
		}
	}

	rec := model.ProductRecord{
		Name:       q.Name,
		Brand:      q.Brand,
		Category:   q.Category,
		Price:      resolvedPrice,
		Specs:      specs,
		Rating:     resolvedRating,
		Confidence: recordConfidence(resolvedPrice, resolvedRating),
		FromCache:  fromCache,
		ResolvedAt: time.Now().UTC(),
	}
	if resolvedRating != nil {
		rec.Pros = resolvedRating.Pros
		rec.Cons = resolvedRating.Cons
	}
	if len(rec.Pros) == 0 && len(rec.Cons) == 0 {
		if cached, ok := r.gate.GetReviews(ctx, key); ok {
			rec.Pros, rec.Cons = cached.Pros, cached.Cons
		}
	}

	return r.val.Validate(ctx, rec, q)
}

// recordConfidence blends price confidence with rating provenance.
func recordConfidence(p *model.ResolvedPrice, rr *model.ResolvedRating) float64 {
	conf := 0.5
	if p != nil {
		conf = p.Confidence
	}
	if rr != nil && rr.Value != nil {
		return (conf + 0.9) / 2
	}
	return (conf + 0.5) / 2
}

// Compare parses a free-text request, resolves both products concurrently,
// and drafts the verdict. The search log row is written on every path.
func (p *Pipeline) Compare(ctx context.Context, rawQuery string, opts Options) (*model.ComparisonResult, error) {
	start := time.Now()
	req := p.newRequest(opts)

	result, err := req.compare(ctx, rawQuery, opts.region())
	elapsed := time.Since(start)

	entry := model.SearchLog{
		Query:      rawQuery,
		InputType:  "comparison",
		Success:    err == nil,
		DurationMS: elapsed.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if result != nil {
		entry.Products = []string{result.Products[0].Name, result.Products[1].Name}
		result.Usage = req.ctrs.usage(elapsed)
	}
	p.logSearch(ctx, entry)

	return result, err
}

func (p *Pipeline) logSearch(ctx context.Context, entry model.SearchLog) {
	if p.st == nil {
		return
	}
	if err := p.st.LogSearch(ctx, entry); err != nil {
		zap.L().Warn("resolve: search log write failed", zap.Error(err))
	}
}

func (r *request) compare(ctx context.Context, rawQuery, region string) (*model.ComparisonResult, error) {
	parsed, err := r.ex.ParseQuery(ctx, rawQuery)
	if err != nil {
		zap.L().Warn("resolve: query parse failed, splitting on vs", zap.Error(err))
		parsed = splitOnVS(rawQuery)
		if parsed == nil {
			return nil, eris.Wrap(err, "resolve: parse request")
		}
	}
	if parsed.InputType != "comparison" || len(parsed.Products) < 2 {
		return nil, eris.Wrapf(ErrNotAComparison, "input_type %s with %d products", parsed.InputType, len(parsed.Products))
	}

	var records [2]*model.ValidatedProductRecord
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		q := parsed.Products[i]
		g.Go(func() error {
			rec, err := r.resolveRecord(gctx, q, region)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verdict := r.verdict(ctx, *records[0], *records[1])

	return &model.ComparisonResult{
		Products: [2]model.ValidatedProductRecord{*records[0], *records[1]},
		Verdict:  verdict,
		Region:   strings.ToUpper(region),
		Currency: model.RegionCurrency(region),
	}, nil
}

// splitOnVS is the deterministic parse fallback: "iphone 15 vs galaxy s24"
// split on a vs separator, brand detected from each half. Returns nil when
// the query doesn't split into exactly two non-empty names.
func splitOnVS(rawQuery string) *extract.ParsedQuery {
	var parts []string
	for _, sep := range []string{" vs ", " vs. ", " versus "} {
		if strings.Contains(strings.ToLower(rawQuery), sep) {
			idx := strings.Index(strings.ToLower(rawQuery), sep)
			parts = []string{rawQuery[:idx], rawQuery[idx+len(sep):]}
			break
		}
	}
	if len(parts) != 2 {
		return nil
	}
	out := &extract.ParsedQuery{InputType: "comparison"}
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			return nil
		}
		out.Products = append(out.Products, model.ProductQuery{
			Name:  name,
			Brand: model.DetectBrand(name),
		})
	}
	return out
}

// verdict drafts the judgement and injects the resolved numbers afterwards.
// A model failure degrades to the deterministic fallback, never an error.
func (r *request) verdict(ctx context.Context, a, b model.ValidatedProductRecord) model.Verdict {
	v, err := r.ex.CompareVerdict(ctx, a, b)
	if err != nil {
		zap.L().Warn("resolve: verdict draft failed, using fallback", zap.Error(err))
		return fallbackVerdict(a, b)
	}
	injectNumbers(v, a, b)
	return *v
}

// injectNumbers replaces the price placeholders with the resolved amounts.
// The verdict never carries model-quoted numbers.
func injectNumbers(v *model.Verdict, a, b model.ValidatedProductRecord) {
	repl := strings.NewReplacer(
		"{PRICE_0}", formatPrice(a.Price),
		"{PRICE_1}", formatPrice(b.Price),
	)
	v.WinnerReason = repl.Replace(v.WinnerReason)
	v.Recommendation = repl.Replace(v.Recommendation)
	for i := range v.KeyDifferences {
		v.KeyDifferences[i] = repl.Replace(v.KeyDifferences[i])
	}
}

func formatPrice(p *model.ResolvedPrice) string {
	if p == nil {
		return "an unknown price"
	}
	s := fmt.Sprintf("%s %.2f", p.Currency, p.Amount)
	if p.Estimated {
		s += " (estimated)"
	}
	return s
}

// fallbackVerdict decides deterministically: the higher verified rating
// wins; without ratings, the lower price wins.
func fallbackVerdict(a, b model.ValidatedProductRecord) model.Verdict {
	winner := 0
	reason := ""
	switch {
	case ratingOf(a) != ratingOf(b):
		if ratingOf(b) > ratingOf(a) {
			winner = 1
		}
		reason = "Higher verified review rating."
	case a.Price != nil && b.Price != nil && a.Price.Amount != b.Price.Amount:
		if b.Price.Amount < a.Price.Amount {
			winner = 1
		}
		reason = "Lower resolved price."
	default:
		reason = "No decisive difference found; first product by default."
	}

	names := [2]string{a.Name, b.Name}
	prices := [2]string{formatPrice(a.Price), formatPrice(b.Price)}
	return model.Verdict{
		WinnerIndex:  winner,
		WinnerReason: reason,
		KeyDifferences: []string{
			fmt.Sprintf("%s costs %s", names[0], prices[0]),
			fmt.Sprintf("%s costs %s", names[1], prices[1]),
		},
		Recommendation: fmt.Sprintf("Based on the available data, %s is the better pick.", names[winner]),
		Confidence:     0.4,
	}
}

func ratingOf(r model.ValidatedProductRecord) float64 {
	if r.Rating == nil || r.Rating.Value == nil {
		return 0
	}
	return *r.Rating.Value
}
