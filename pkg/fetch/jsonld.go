package fetch

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ReviewData is the structured editorial payload mined from a review page.
type ReviewData struct {
	Rating      float64
	BestRating  float64
	ReviewCount int
	Author      string
	Pros        []string
	Cons        []string
}

// HasRating reports whether an aggregate or review rating was found.
func (d *ReviewData) HasRating() bool {
	return d != nil && d.Rating > 0
}

// NormalizedRating maps the rating onto a 5-point scale. Editorial sites
// score out of 10 or 100 as often as out of 5.
func (d *ReviewData) NormalizedRating() float64 {
	if d.Rating <= 0 {
		return 0
	}
	best := d.BestRating
	if best <= 0 {
		best = 5
	}
	return d.Rating * 5 / best
}

var jsonLDPattern = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)

// ExtractReviewData scans a page's JSON-LD blocks for Review or Product
// structures and returns the first one carrying a rating. Returns nil when
// the page has no usable structured data; that is not an error.
func ExtractReviewData(page *Page) *ReviewData {
	if page == nil {
		return nil
	}
	for _, m := range jsonLDPattern.FindAllStringSubmatch(page.Body, -1) {
		var doc any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &doc); err != nil {
			continue
		}
		if d := scanNode(doc); d != nil {
			return d
		}
	}
	return nil
}

// scanNode walks a JSON-LD value looking for a node with an aggregateRating
// or reviewRating.
func scanNode(v any) *ReviewData {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if d := scanNode(item); d != nil {
				return d
			}
		}
	case map[string]any:
		if d := reviewFromNode(node); d != nil {
			return d
		}
		// @graph wraps the real nodes on many sites
		if graph, ok := node["@graph"]; ok {
			return scanNode(graph)
		}
	}
	return nil
}

func reviewFromNode(node map[string]any) *ReviewData {
	ratingNode, ok := node["aggregateRating"].(map[string]any)
	if !ok {
		ratingNode, ok = node["reviewRating"].(map[string]any)
	}
	if !ok {
		return nil
	}

	d := &ReviewData{
		Rating:      asFloat(ratingNode["ratingValue"]),
		BestRating:  asFloat(ratingNode["bestRating"]),
		ReviewCount: int(asFloat(ratingNode["reviewCount"])),
	}
	if d.ReviewCount == 0 {
		d.ReviewCount = int(asFloat(ratingNode["ratingCount"]))
	}
	if d.Rating <= 0 {
		return nil
	}

	d.Author = authorName(node["author"])
	d.Pros = itemListNames(node["positiveNotes"])
	d.Cons = itemListNames(node["negativeNotes"])

	// review nested under a Product node
	if review, ok := node["review"].(map[string]any); ok {
		if d.Author == "" {
			d.Author = authorName(review["author"])
		}
		if len(d.Pros) == 0 {
			d.Pros = itemListNames(review["positiveNotes"])
		}
		if len(d.Cons) == 0 {
			d.Cons = itemListNames(review["negativeNotes"])
		}
	}
	return d
}

func authorName(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case map[string]any:
		if name, ok := a["name"].(string); ok {
			return name
		}
	case []any:
		if len(a) > 0 {
			return authorName(a[0])
		}
	}
	return ""
}

func itemListNames(v any) []string {
	list, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := list["itemListElement"].([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range items {
		switch it := item.(type) {
		case string:
			names = append(names, it)
		case map[string]any:
			if name, ok := it["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
