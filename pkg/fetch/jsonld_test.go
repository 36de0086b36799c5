package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageWith(body string) *Page {
	return &Page{URL: "https://example.com/review", StatusCode: 200, Body: body}
}

func TestExtractReviewData_AggregateRating(t *testing.T) {
	page := pageWith(`<html><head>
		<script type="application/ld+json">
		{
			"@type": "Product",
			"name": "iPhone 15",
			"aggregateRating": {"ratingValue": "4.6", "bestRating": "5", "reviewCount": 212},
			"review": {
				"author": {"@type": "Person", "name": "Jo Reviewer"},
				"positiveNotes": {"itemListElement": [{"name": "Great camera"}, {"name": "Strong battery"}]},
				"negativeNotes": {"itemListElement": [{"name": "Slow charging"}]}
			}
		}
		</script>
	</head></html>`)

	d := ExtractReviewData(page)
	require.NotNil(t, d)
	assert.Equal(t, 4.6, d.Rating)
	assert.Equal(t, 212, d.ReviewCount)
	assert.Equal(t, "Jo Reviewer", d.Author)
	assert.Equal(t, []string{"Great camera", "Strong battery"}, d.Pros)
	assert.Equal(t, []string{"Slow charging"}, d.Cons)
	assert.InDelta(t, 4.6, d.NormalizedRating(), 0.001)
}

func TestExtractReviewData_TenPointScaleNormalized(t *testing.T) {
	page := pageWith(`<script type="application/ld+json">
		{"@type": "Review", "reviewRating": {"ratingValue": 9.2, "bestRating": 10}, "author": "Tech Site"}
	</script>`)

	d := ExtractReviewData(page)
	require.NotNil(t, d)
	assert.InDelta(t, 4.6, d.NormalizedRating(), 0.001)
	assert.Equal(t, "Tech Site", d.Author)
}

func TestExtractReviewData_GraphWrapper(t *testing.T) {
	page := pageWith(`<script type="application/ld+json">
		{"@graph": [
			{"@type": "WebPage", "name": "irrelevant"},
			{"@type": "Product", "aggregateRating": {"ratingValue": 4.2, "ratingCount": 87}}
		]}
	</script>`)

	d := ExtractReviewData(page)
	require.NotNil(t, d)
	assert.Equal(t, 4.2, d.Rating)
	assert.Equal(t, 87, d.ReviewCount)
}

func TestExtractReviewData_NoStructuredData(t *testing.T) {
	assert.Nil(t, ExtractReviewData(pageWith(`<html><body>plain review text, 4.5 stars</body></html>`)))
	assert.Nil(t, ExtractReviewData(nil))
}

func TestExtractReviewData_MalformedJSONSkipped(t *testing.T) {
	page := pageWith(`
		<script type="application/ld+json">{broken</script>
		<script type="application/ld+json">{"@type": "Product", "aggregateRating": {"ratingValue": 4.0}}</script>
	`)
	d := ExtractReviewData(page)
	require.NotNil(t, d)
	assert.Equal(t, 4.0, d.Rating)
}

func TestExtractReviewData_ZeroRatingIgnored(t *testing.T) {
	page := pageWith(`<script type="application/ld+json">
		{"@type": "Product", "aggregateRating": {"ratingValue": 0}}
	</script>`)
	assert.Nil(t, ExtractReviewData(page))
}
