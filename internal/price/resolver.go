// Package price resolves a product's market price through a three-tier
// fallback chain: structured shopping listings, model extraction from search
// text, then a model estimate. Tier 3 always produces a number, so price
// resolution as a whole cannot fail.
package price

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/cache"
	"github.com/smartcompare/compare-cli/internal/currency"
	"github.com/smartcompare/compare-cli/internal/extract"
	"github.com/smartcompare/compare-cli/internal/match"
	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/retailer"
	"github.com/smartcompare/compare-cli/internal/store"
	"github.com/smartcompare/compare-cli/pkg/serper"
)

// ErrSanityRejected marks a price thrown out by the plausibility check.
var ErrSanityRejected = eris.New("price: rejected by sanity check")

// Searcher is the slice of the search API the resolver uses.
type Searcher interface {
	Search(ctx context.Context, req serper.SearchRequest) (*serper.SearchResponse, error)
	Shopping(ctx context.Context, req serper.SearchRequest) (*serper.ShoppingResponse, error)
}

// Extractor is the slice of the model layer the resolver uses.
type Extractor interface {
	ExtractPriceFromText(ctx context.Context, q model.ProductQuery, snippets []string) (*extract.TextPrice, error)
	EstimatePrice(ctx context.Context, q model.ProductQuery, currency string) (*extract.Estimate, error)
}

// Resolver runs the tier chain.
type Resolver struct {
	search     Searcher
	llm        Extractor
	classifier *retailer.Classifier
	gate       *cache.Gate

	// HighValueFloorBHD rejects listings under this amount for high-value
	// queries; scam listings for phones cluster near zero.
	HighValueFloorBHD float64
	// ResultsPerSearch caps how many listings one search requests.
	ResultsPerSearch int

	// estimates memoizes the tier-3 estimate per product key so one pass
	// makes at most one estimate call, even when the gate is bypassed or
	// there is no store behind it.
	mu        sync.Mutex
	estimates map[string]*model.ResolvedPrice
}

// NewResolver builds a Resolver. The gate is used only for memoizing the
// tier-3 estimate; the resolved price facet is cached by the caller.
func NewResolver(search Searcher, llm Extractor, classifier *retailer.Classifier, gate *cache.Gate) *Resolver {
	return &Resolver{
		search:            search,
		llm:               llm,
		classifier:        classifier,
		gate:              gate,
		HighValueFloorBHD: 100,
		ResultsPerSearch:  10,
		estimates:         map[string]*model.ResolvedPrice{},
	}
}

// scored pairs a converted candidate with its ranking keys.
type scored struct {
	cand       model.SourceCandidate
	conv       currency.Converted
	matchScore float64
	tier       retailer.Tier
	tierScore  float64
}

// Resolve returns the best price for the product in the region's currency.
// Tiers run in order and the first success wins; only a total failure of
// all three tiers (search down and model down) returns an error.
func (r *Resolver) Resolve(ctx context.Context, q model.ProductQuery, region string) (*model.ResolvedPrice, error) {
	if p, err := r.resolveStructured(ctx, q, region); err == nil && p != nil {
		return p, nil
	} else if err != nil {
		zap.L().Warn("price: structured tier failed",
			zap.String("product", q.FullName()),
			zap.Error(err),
		)
	}

	if p, err := r.resolveFromText(ctx, q, region); err == nil && p != nil {
		return p, nil
	} else if err != nil && !eris.Is(err, ErrSanityRejected) {
		zap.L().Warn("price: text tier failed",
			zap.String("product", q.FullName()),
			zap.Error(err),
		)
	}

	return r.estimate(ctx, q, region)
}

// resolveStructured is tier 1: shopping listings filtered, converted,
// ranked, sanity-checked. A nil, nil return means no usable candidate.
func (r *Resolver) resolveStructured(ctx context.Context, q model.ProductQuery, region string) (*model.ResolvedPrice, error) {
	resp, err := r.search.Shopping(ctx, serper.SearchRequest{
		Query:   q.FullName(),
		Country: strings.ToLower(region),
		Num:     r.ResultsPerSearch,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]model.SourceCandidate, 0, len(resp.Shopping))
	for _, item := range resp.Shopping {
		candidates = append(candidates, model.SourceCandidate{
			SourceName:  item.Source,
			Title:       item.Title,
			RawPrice:    item.Price,
			RawRating:   item.Rating,
			HasRating:   item.Rating > 0,
			ReviewCount: item.RatingCount,
			URL:         item.Link,
		})
	}

	fullName := q.FullName()
	isHighValue := match.IsHighValue(fullName)

	filter := &match.Filter{
		HighValueFloorBHD: r.HighValueFloorBHD,
		AmountBHD: func(c model.SourceCandidate) (float64, bool) {
			amount, err := currency.ParseAmount(c.RawPrice)
			if err != nil {
				return 0, false
			}
			code := currency.Detect(c.RawPrice, c.SourceName, model.RegionCurrency(region))
			return currency.ToBHD(amount, code), true
		},
	}
	kept := filter.Apply(candidates, fullName, isHighValue)
	if len(kept) == 0 {
		return nil, nil
	}

	ranked := r.rank(kept, fullName, region)
	if len(ranked) == 0 {
		return nil, nil
	}

	for _, s := range ranked {
		if isHighValue && s.tier != retailer.TierTrusted {
			if err := r.sanityCheck(ctx, q, region, s.conv.Amount); err != nil {
				zap.L().Info("price: candidate rejected by sanity check",
					zap.String("retailer", s.cand.SourceName),
					zap.Float64("amount", s.conv.Amount),
				)
				continue
			}
		}
		p := &model.ResolvedPrice{
			Amount:           s.conv.Amount,
			Currency:         s.conv.Currency,
			Retailer:         s.cand.SourceName,
			URL:              s.cand.URL,
			TierUsed:         model.PriceTierStructured,
			Confidence:       s.tierScore,
			OriginalAmount:   s.conv.OriginalAmount,
			OriginalCurrency: s.conv.OriginalCurrency,
		}
		if s.conv.Relabeled {
			p.Note = "currency corrected from mislabeled BHD listing"
		}
		return p, nil
	}
	return nil, nil
}

// rank converts, optionally purges marketplace listings, and sorts by match
// score desc, retailer score desc, amount asc.
func (r *Resolver) rank(kept []model.SourceCandidate, fullName, region string) []scored {
	var ranked []scored
	haveReputable := false
	for _, c := range kept {
		conv, err := currency.Normalize(c.RawPrice, c.SourceName, region)
		if err != nil {
			continue // listing without a parseable price
		}
		tier, score := r.classifier.Classify(c.SourceName)
		if tier == retailer.TierTrusted || tier == retailer.TierKnown {
			haveReputable = true
		}
		ranked = append(ranked, scored{
			cand:       c,
			conv:       conv,
			matchScore: match.TitleScore(c.Title, fullName),
			tier:       tier,
			tierScore:  score,
		})
	}

	// A marketplace price only wins when nothing reputable carries the item.
	if haveReputable {
		filtered := ranked[:0]
		for _, s := range ranked {
			if s.tier != retailer.TierMarketplace {
				filtered = append(filtered, s)
			}
		}
		ranked = filtered
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].matchScore != ranked[j].matchScore {
			return ranked[i].matchScore > ranked[j].matchScore
		}
		if ranked[i].tierScore != ranked[j].tierScore {
			return ranked[i].tierScore > ranked[j].tierScore
		}
		return ranked[i].conv.Amount < ranked[j].conv.Amount
	})
	return ranked
}

// resolveFromText is tier 2: a web search whose snippets the model reads a
// verbatim price out of.
func (r *Resolver) resolveFromText(ctx context.Context, q model.ProductQuery, region string) (*model.ResolvedPrice, error) {
	target := model.RegionCurrency(region)
	resp, err := r.search.Search(ctx, serper.SearchRequest{
		Query:   q.FullName() + " price " + target,
		Country: strings.ToLower(region),
		Num:     r.ResultsPerSearch,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Organic) == 0 {
		return nil, nil
	}

	snippets := make([]string, 0, len(resp.Organic))
	for _, o := range resp.Organic {
		snippets = append(snippets, fmt.Sprintf("%s\n%s\n%s", o.Title, o.Snippet, o.Link))
	}

	tp, err := r.llm.ExtractPriceFromText(ctx, q, snippets)
	if err != nil {
		return nil, err
	}
	if !tp.Found || tp.Amount <= 0 {
		return nil, nil
	}

	conv := currency.Convert(tp.Amount, tp.Currency, region)
	if match.IsHighValue(q.FullName()) {
		if _, score := r.classifier.Classify(tp.Retailer); score < 1.0 {
			if err := r.sanityCheck(ctx, q, region, conv.Amount); err != nil {
				return nil, err
			}
		}
	}

	return &model.ResolvedPrice{
		Amount:           conv.Amount,
		Currency:         conv.Currency,
		Retailer:         tp.Retailer,
		URL:              tp.URL,
		TierUsed:         model.PriceTierText,
		Confidence:       0.7,
		OriginalAmount:   conv.OriginalAmount,
		OriginalCurrency: conv.OriginalCurrency,
	}, nil
}

// estimate is tier 3: the memoized model estimate, always flagged as such.
// The in-resolver memo covers the current pass; the gate carries the value
// across passes.
func (r *Resolver) estimate(ctx context.Context, q model.ProductQuery, region string) (*model.ResolvedPrice, error) {
	key := store.ProductKey(q.FullName(), region)

	r.mu.Lock()
	if est, ok := r.estimates[key]; ok {
		r.mu.Unlock()
		return est, nil
	}
	r.mu.Unlock()

	if est, ok := r.gate.GetEstimate(ctx, key); ok {
		r.memoize(key, est)
		return est, nil
	}

	target := model.RegionCurrency(region)
	e, err := r.llm.EstimatePrice(ctx, q, target)
	if err != nil {
		return nil, eris.Wrapf(err, "price: estimate for %s", q.FullName())
	}

	conv := currency.Convert(e.Amount, e.Currency, region)
	p := model.ResolvedPrice{
		Amount:     conv.Amount,
		Currency:   conv.Currency,
		TierUsed:   model.PriceTierEstimate,
		Estimated:  true,
		Confidence: 0.5,
		Note:       e.Basis,
	}
	r.gate.PutEstimate(ctx, key, p)
	r.memoize(key, &p)
	return &p, nil
}

func (r *Resolver) memoize(key string, p *model.ResolvedPrice) {
	r.mu.Lock()
	r.estimates[key] = p
	r.mu.Unlock()
}

// sanityCheck compares an amount against the memoized estimate. Amounts
// outside half-to-double the estimate are rejected; when no estimate can be
// produced the check passes open.
func (r *Resolver) sanityCheck(ctx context.Context, q model.ProductQuery, region string, amount float64) error {
	est, err := r.estimate(ctx, q, region)
	if err != nil {
		zap.L().Warn("price: sanity check skipped, no estimate",
			zap.String("product", q.FullName()),
			zap.Error(err),
		)
		return nil
	}
	if amount < est.Amount*0.5 || amount > est.Amount*2 {
		return eris.Wrapf(ErrSanityRejected, "amount %.2f vs estimate %.2f", amount, est.Amount)
	}
	return nil
}
