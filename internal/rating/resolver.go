// Package rating resolves a product's review rating with strict provenance:
// a numeric rating is only emitted together with the URL it was read from.
// "No rating" is a first-class outcome, never an error.
package rating

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/match"
	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/retailer"
	"github.com/smartcompare/compare-cli/pkg/fetch"
	"github.com/smartcompare/compare-cli/pkg/serper"
)

// Confidence labels, strongest first.
const (
	ConfidenceExpert      = "expert"
	ConfidenceHigh        = "high"
	ConfidenceMedium      = "medium"
	ConfidenceMarketplace = "marketplace"
)

// marketplaceMinReviews is the strict floor under which a marketplace rating
// is ignored. Marketplace scores are gameable at low volume.
const marketplaceMinReviews = 1000

// maxExpertFetches caps how many editorial pages one resolution will pull.
// Fetches run sequentially so the first hit stops the spending.
const maxExpertFetches = 3

// expertDomains are editorial sites whose structured review data outranks
// any retailer score.
var expertDomains = []string{
	"gsmarena.com", "rtings.com", "techradar.com", "tomsguide.com",
	"cnet.com", "theverge.com", "trustedreviews.com", "whathifi.com",
	"pcmag.com", "digitaltrends.com", "notebookcheck.net", "dxomark.com",
}

// Searcher is the slice of the search API the resolver uses.
type Searcher interface {
	Search(ctx context.Context, req serper.SearchRequest) (*serper.SearchResponse, error)
	Shopping(ctx context.Context, req serper.SearchRequest) (*serper.ShoppingResponse, error)
}

// PageFetcher fetches one editorial page.
type PageFetcher interface {
	Page(ctx context.Context, url string) (*fetch.Page, error)
}

// Resolver runs the tier chain: expert editorial, trusted retailer, known
// retailer, high-volume marketplace.
type Resolver struct {
	search     Searcher
	fetcher    PageFetcher
	classifier *retailer.Classifier

	// OnPageFetch is called once per attempted editorial fetch.
	OnPageFetch func()
}

// NewResolver builds a Resolver.
func NewResolver(search Searcher, fetcher PageFetcher, classifier *retailer.Classifier) *Resolver {
	return &Resolver{search: search, fetcher: fetcher, classifier: classifier}
}

// Resolve returns the best-provenanced rating available. The zero outcome
// {Value: nil, Verified: false, Source: nil} is valid and cacheable.
func (r *Resolver) Resolve(ctx context.Context, q model.ProductQuery, region string) (*model.ResolvedRating, error) {
	if rr := r.resolveExpert(ctx, q, region); rr != nil {
		return rr, nil
	}

	candidates := r.shoppingCandidates(ctx, q, region)
	for _, pick := range []struct {
		tiers      []retailer.Tier
		confidence string
		minReviews int
	}{
		{[]retailer.Tier{retailer.TierTrusted}, ConfidenceHigh, 0},
		{[]retailer.Tier{retailer.TierKnown, retailer.TierUnknown}, ConfidenceMedium, 0},
		{[]retailer.Tier{retailer.TierMarketplace}, ConfidenceMarketplace, marketplaceMinReviews},
	} {
		if rr := r.pickCandidate(candidates, q, region, pick.tiers, pick.confidence, pick.minReviews); rr != nil {
			return rr, nil
		}
	}

	zap.L().Debug("rating: no provenanced rating found",
		zap.String("product", q.FullName()),
	)
	return &model.ResolvedRating{Value: nil, Verified: false, Source: nil}, nil
}

// resolveExpert searches for editorial reviews and mines their JSON-LD.
// Fetches are sequential and capped; a page without structured rating data
// costs one fetch and moves on.
func (r *Resolver) resolveExpert(ctx context.Context, q model.ProductQuery, region string) *model.ResolvedRating {
	resp, err := r.search.Search(ctx, serper.SearchRequest{
		Query:   q.FullName() + " review",
		Country: strings.ToLower(region),
		Num:     10,
	})
	if err != nil {
		zap.L().Warn("rating: expert search failed",
			zap.String("product", q.FullName()),
			zap.Error(err),
		)
		return nil
	}

	fetched := 0
	for _, o := range resp.Organic {
		domain := expertDomain(o.Link)
		if domain == "" {
			continue
		}
		if fetched >= maxExpertFetches {
			break
		}
		fetched++
		if r.OnPageFetch != nil {
			r.OnPageFetch()
		}

		page, err := r.fetcher.Page(ctx, o.Link)
		if err != nil {
			zap.L().Debug("rating: expert page fetch failed",
				zap.String("url", o.Link),
				zap.Error(err),
			)
			continue
		}
		data := fetch.ExtractReviewData(page)
		if !data.HasRating() {
			continue
		}
		// A score without a byline is syndicated or retailer data dressed
		// up as editorial; the next candidate may do better.
		if data.Author == "" {
			zap.L().Debug("rating: expert page has no byline",
				zap.String("url", o.Link),
			)
			continue
		}

		value := data.NormalizedRating()
		rr := &model.ResolvedRating{
			Value:    &value,
			Verified: true,
			Source: &model.RatingSource{
				Name:          domain,
				URL:           o.Link,
				ExtractMethod: "expert",
				Confidence:    ConfidenceExpert,
			},
			Pros: data.Pros,
			Cons: data.Cons,
		}
		if data.ReviewCount > 0 {
			count := data.ReviewCount
			rr.ReviewCount = &count
		}
		return rr
	}
	return nil
}

// shoppingCandidates pulls retail listings that carry a star rating and
// match the product.
func (r *Resolver) shoppingCandidates(ctx context.Context, q model.ProductQuery, region string) []model.SourceCandidate {
	resp, err := r.search.Shopping(ctx, serper.SearchRequest{
		Query:   q.FullName(),
		Country: strings.ToLower(region),
		Num:     10,
	})
	if err != nil {
		zap.L().Warn("rating: shopping search failed",
			zap.String("product", q.FullName()),
			zap.Error(err),
		)
		return nil
	}

	var out []model.SourceCandidate
	for _, item := range resp.Shopping {
		if item.Rating <= 0 || item.Link == "" {
			continue
		}
		out = append(out, model.SourceCandidate{
			SourceName:  item.Source,
			Title:       item.Title,
			RawRating:   item.Rating,
			HasRating:   true,
			ReviewCount: item.RatingCount,
			URL:         item.Link,
		})
	}
	return out
}

// pickCandidate returns the first matching candidate in the given tiers
// with enough reviews. minReviews is a strict bound. Unclassified sources
// additionally need a plausible domain for the target region.
func (r *Resolver) pickCandidate(candidates []model.SourceCandidate, q model.ProductQuery, region string, tiers []retailer.Tier, confidence string, minReviews int) *model.ResolvedRating {
	fullName := q.FullName()
	for _, c := range candidates {
		tier, _ := r.classifier.Classify(c.SourceName)
		if !tierIn(tier, tiers) {
			continue
		}
		if tier == retailer.TierUnknown && !plausibleDomain(c.URL, region) {
			continue
		}
		if minReviews > 0 && c.ReviewCount <= minReviews {
			continue
		}
		if match.TitleScore(c.Title, fullName) < match.SoftThreshold {
			continue
		}

		value := c.RawRating
		rr := &model.ResolvedRating{
			Value:    &value,
			Verified: true,
			Source: &model.RatingSource{
				Name:          c.SourceName,
				URL:           c.URL,
				ExtractMethod: "listing",
				Confidence:    confidence,
			},
		}
		if c.ReviewCount > 0 {
			count := c.ReviewCount
			rr.ReviewCount = &count
		}
		return rr
	}
	return nil
}

func tierIn(t retailer.Tier, set []retailer.Tier) bool {
	for _, s := range set {
		if t == s {
			return true
		}
	}
	return false
}

// plausibleDomain reports whether a listing URL sits under the region's TLD
// or .com. A rating from an unclassified shop on any other TLD is not worth
// a medium-confidence label.
func plausibleDomain(link, region string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.HasSuffix(host, ".com") || strings.HasSuffix(host, "."+strings.ToLower(region))
}

// expertDomain returns the matching allowlisted domain for a URL, or "".
func expertDomain(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range expertDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d
		}
	}
	return ""
}
