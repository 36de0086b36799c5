package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$699.99", 699.99},
		{"BHD 339.000", 339.0},
		{"SAR 2,499", 2499},
		{"1,234.56 AED", 1234.56},
	}
	for _, tc := range tests {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 0.001, tc.in)
	}

	_, err := ParseAmount("call for price")
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		price, retailer, want string
	}{
		{"$699", "Best Buy", "USD"},
		{"AED 2,499", "Noon", "AED"},
		{"SAR 2,799", "Jarir", "SAR"},
		{"£549", "Currys", "GBP"},
		{"€599", "MediaMarkt", "EUR"},
		{"₹54,999", "Flipkart", "INR"},
		{"BHD 263.500", "Sharaf DG Bahrain", "BHD"},
		// No symbol: fall back to retailer domain hints.
		{"2499", "noon.com/uae", "AED"},
		{"2799", "jarir.sa", "SAR"},
		{"699", "amazon.com", "USD"},
		// Nothing recognizable: supplied default wins.
		{"263.5", "Local Shop", "BHD"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Detect(tc.price, tc.retailer, "BHD"), "%s @ %s", tc.price, tc.retailer)
	}
}

func TestConvert_USDToBHD(t *testing.T) {
	out := Convert(541, "USD", "BH")
	assert.Equal(t, "BHD", out.Currency)
	assert.InDelta(t, 203.96, out.Amount, 0.01)
	assert.Equal(t, 541.0, out.OriginalAmount)
	assert.Equal(t, "USD", out.OriginalCurrency)
}

func TestConvert_SameCurrencyIsIdentity(t *testing.T) {
	out := Convert(263.5, "BHD", "BH")
	assert.Equal(t, 263.5, out.Amount)
	assert.Equal(t, "BHD", out.Currency)
}

func TestConvert_PivotsThroughBHD(t *testing.T) {
	// AED -> SAR: 1000 * 0.1025 / 0.1003.
	out := Convert(1000, "AED", "SA")
	assert.Equal(t, "SAR", out.Currency)
	assert.InDelta(t, 1021.93, out.Amount, 0.01)
}

func TestConvert_UnknownCodeFallsBackToTarget(t *testing.T) {
	// Garbage code normalizes to the target currency: 1:1 identity.
	out := Convert(100, "ZZZ", "BH")
	assert.Equal(t, 100.0, out.Amount)
	assert.Equal(t, "BHD", out.Currency)
}

func TestNormalize_MislabeledBHDRelabeledAsAED(t *testing.T) {
	// BHD 2,499 for a phone is an AED listing with the wrong label.
	out, err := Normalize("BHD 2,499", "some-uae-store", "BH")
	require.NoError(t, err)
	assert.True(t, out.Relabeled)
	assert.Equal(t, "AED", out.OriginalCurrency)
	assert.InDelta(t, 2499*0.1025, out.Amount, 0.01)
}

func TestNormalize_GenuineBHDBelowCeilingUntouched(t *testing.T) {
	out, err := Normalize("BHD 339.000", "Sharaf DG", "BH")
	require.NoError(t, err)
	assert.False(t, out.Relabeled)
	assert.Equal(t, 339.0, out.Amount)
	assert.Equal(t, "BHD", out.Currency)
}

func TestToBHD(t *testing.T) {
	assert.InDelta(t, 203.957, ToBHD(541, "USD"), 0.001)
	assert.Equal(t, 100.0, ToBHD(100, "BHD"))
}
