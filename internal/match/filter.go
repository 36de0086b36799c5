package match

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/model"
)

// accessoryKeywords disqualify a listing regardless of price: the title is
// for an add-on, not the product itself.
var accessoryKeywords = []string{
	"case", "cover", "protector", "charger", "cable", "adapter", "holder",
	"stand", "strap", "sleeve", "pouch", "film", "tempered", "glass",
	"mount", "grip", "wallet", "skin", "bumper", "shell", "screen protector",
	"armband", "holster", "dock", "cradle", "earbuds", "headphone",
	"stylus", "pen", "keyboard", "mouse",
}

var accessoryPatterns = func() []*regexp.Regexp {
	ps := make([]*regexp.Regexp, 0, len(accessoryKeywords))
	for _, kw := range accessoryKeywords {
		ps = append(ps, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	return ps
}()

// highValueKeywords flag queries for expensive categories (phones, laptops,
// consoles, GPUs). These get a price floor and strict title matching,
// because accessory and scam listings cluster under them.
var highValueKeywords = []string{
	"iphone", "galaxy", "pixel", "samsung", "oneplus", "huawei", "xiaomi",
	"macbook", "ipad", "laptop", "playstation", "xbox", "nintendo",
	"rtx", "geforce", "radeon", "gpu", "graphics card",
	"canon", "nikon", "sony a7", "fujifilm",
}

// IsAccessory reports whether a listing title is for an accessory rather
// than the product. Word-boundary match so "bookcase" doesn't trip "case".
func IsAccessory(title string) bool {
	lower := strings.ToLower(title)
	for _, p := range accessoryPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsHighValue reports whether the product query implies an expensive
// category.
func IsHighValue(productQuery string) bool {
	lower := strings.ToLower(productQuery)
	for _, kw := range highValueKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SoftThreshold is the minimum token-overlap score for non-high-value
// candidates.
const SoftThreshold = 0.4

// Filter rejects irrelevant candidate listings. AmountBHD, when set, maps
// a candidate to its BHD-equivalent price for the high-value floor rule;
// candidates without a parseable price skip that rule (they may still be
// useful to the rating resolver).
type Filter struct {
	HighValueFloorBHD float64
	AmountBHD         func(model.SourceCandidate) (float64, bool)
}

// Apply runs the rejection rules in order: accessory denylist, minimum
// price floor for high-value queries, then strict (high-value) or soft
// 40%-overlap (otherwise) title matching. Input order is preserved; an
// empty result is a valid terminal state meaning "try the next tier".
func (f *Filter) Apply(candidates []model.SourceCandidate, productQuery string, isHighValue bool) []model.SourceCandidate {
	var kept []model.SourceCandidate
	for _, c := range candidates {
		if IsAccessory(c.Title) {
			zap.L().Debug("filter: skipped accessory",
				zap.String("title", c.Title),
			)
			continue
		}
		if isHighValue && f.AmountBHD != nil && f.HighValueFloorBHD > 0 {
			if amount, ok := f.AmountBHD(c); ok && amount < f.HighValueFloorBHD {
				zap.L().Debug("filter: skipped below price floor",
					zap.String("title", c.Title),
					zap.Float64("amount_bhd", amount),
					zap.Float64("floor_bhd", f.HighValueFloorBHD),
				)
				continue
			}
		}
		if isHighValue {
			if !StrictTitleMatch(productQuery, c.Title) {
				zap.L().Debug("filter: skipped weak title match",
					zap.String("title", c.Title),
					zap.String("query", productQuery),
				)
				continue
			}
		} else if TitleScore(c.Title, productQuery) < SoftThreshold {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
