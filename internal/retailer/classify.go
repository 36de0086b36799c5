// Package retailer classifies listing sources into quality tiers.
package retailer

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tier is the trust classification of a listing's source.
type Tier string

const (
	TierTrusted     Tier = "trusted"
	TierKnown       Tier = "known"
	TierMarketplace Tier = "marketplace"
	TierUnknown     Tier = "unknown"
)

// Score returns the numeric weight used for tie-breaking. Higher is
// more trustworthy. Unknown sources get the benefit of the doubt: they
// sort below known retailers but above marketplaces.
func (t Tier) Score() float64 {
	switch t {
	case TierTrusted:
		return 1.0
	case TierKnown:
		return 0.7
	case TierMarketplace:
		return 0.3
	default:
		return 0.5
	}
}

type entry struct {
	substr string
	tier   Tier
}

// Classifier maps source names to tiers via case-insensitive substring
// match against a fixed table. Immutable after construction; built once
// at startup and injected into the resolvers.
type Classifier struct {
	entries []entry
}

// defaultTable lists lowercase source-name substrings per tier. Official
// stores and major authorized retailers are trusted; reputable specialty
// shops are known; mixed new/used/refurb venues are marketplaces.
var defaultTable = map[Tier][]string{
	TierTrusted: {
		"amazon", "apple", "samsung", "best buy", "bestbuy", "walmart",
		"target", "noon", "jarir", "extra", "lulu", "carrefour",
		"sharaf dg", "virgin megastore",
		"microsof", // matches "microsoft"
		"google store", "oneplus", "sony", "dell", "hp store", "lenovo",
	},
	TierKnown: {
		"newegg", "b&h", "bhphoto", "adorama", "costco", "ubuy",
		"micro center", "john lewis", "currys", "fnac",
	},
	TierMarketplace: {
		"ebay", "aliexpress", "alibaba", "temu", "wish", "dhgate",
		"banggood", "gearbest", "etsy", "mercari", "swappa",
		"backmarket", "back market", "refurbished",
	},
}

// Default returns a classifier over the built-in table.
func Default() *Classifier {
	return fromTable(defaultTable)
}

func fromTable(table map[Tier][]string) *Classifier {
	c := &Classifier{}
	// Trusted entries first so an ambiguous name resolves upward.
	for _, tier := range []Tier{TierTrusted, TierKnown, TierMarketplace} {
		for _, s := range table[tier] {
			c.entries = append(c.entries, entry{substr: strings.ToLower(s), tier: tier})
		}
	}
	return c
}

// LoadYAML builds a classifier from a YAML file of the form:
//
//	retailers:
//	  trusted: [amazon, ...]
//	  known: [newegg, ...]
//	  marketplace: [ebay, ...]
//
// Used to override the built-in table without a rebuild.
func LoadYAML(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "retailer: read table %s", path)
	}
	var wrapper struct {
		Retailers struct {
			Trusted     []string `yaml:"trusted"`
			Known       []string `yaml:"known"`
			Marketplace []string `yaml:"marketplace"`
		} `yaml:"retailers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "retailer: parse table")
	}
	return fromTable(map[Tier][]string{
		TierTrusted:     wrapper.Retailers.Trusted,
		TierKnown:       wrapper.Retailers.Known,
		TierMarketplace: wrapper.Retailers.Marketplace,
	}), nil
}

// Classify maps a source name to its tier and score. Pure function over
// the static table; unmatched names are TierUnknown. Classification is a
// tie-break input, never a hard filter — unknown retailers are only
// deprioritized, not rejected.
func (c *Classifier) Classify(sourceName string) (Tier, float64) {
	if sourceName == "" {
		return TierUnknown, TierUnknown.Score()
	}
	lower := strings.ToLower(sourceName)
	for _, e := range c.entries {
		if strings.Contains(lower, e.substr) {
			return e.tier, e.tier.Score()
		}
	}
	return TierUnknown, TierUnknown.Score()
}
