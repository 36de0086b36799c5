// Package currency detects and converts listing currencies into the
// target region's display currency.
package currency

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	xcurrency "golang.org/x/text/currency"

	"github.com/smartcompare/compare-cli/internal/model"
)

// ratesToBHD is the fixed conversion table. BHD is the reference currency;
// cross-currency conversion pivots through it.
var ratesToBHD = map[string]float64{
	"BHD": 1.0,
	"AED": 0.1025,
	"SAR": 0.1003,
	"USD": 0.377,
	"KWD": 1.22,
	"QAR": 0.1035,
	"OMR": 0.98,
	"GBP": 0.47,
	"EUR": 0.41,
	"INR": 0.0045,
}

// mislabelCeilingBHD: a converted amount above this, labeled BHD, is almost
// certainly a mislabeled AED listing (phone-class products never cost
// BHD 500+ while the same digits in AED are routine). Corrected by
// relabeling, not discarded.
const mislabelCeilingBHD = 500.0

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseAmount extracts the numeric amount from a raw price string like
// "$699.99", "BHD 339.000" or "SAR 2,499". Returns an error for strings
// with no parseable number; callers skip such candidates, never retry.
func ParseAmount(priceStr string) (float64, error) {
	cleaned := strings.ReplaceAll(priceStr, ",", "")
	m := numberPattern.FindString(cleaned)
	if m == "" {
		return 0, eris.Errorf("currency: no amount in %q", priceStr)
	}
	amount, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "currency: parse %q", priceStr)
	}
	return amount, nil
}

// symbolCurrencies maps symbols/codes found in price strings.
// Checked in order: explicit GCC codes first, then global symbols.
var symbolCurrencies = []struct {
	marker string
	code   string
}{
	{"BHD", "BHD"}, {" BD", "BHD"},
	{"SAR", "SAR"}, {" SR", "SAR"},
	{"AED", "AED"}, {"DHS", "AED"}, {"DIRHAM", "AED"},
	{"KWD", "KWD"}, {" KD", "KWD"},
	{"QAR", "QAR"}, {" QR", "QAR"},
	{"OMR", "OMR"}, {" RO", "OMR"},
	{"GBP", "GBP"}, {"£", "GBP"},
	{"EUR", "EUR"}, {"€", "EUR"},
	{"INR", "INR"}, {"₹", "INR"},
	{"USD", "USD"}, {"$", "USD"},
}

// Detect infers the source currency of a raw price string, falling back to
// the retailer's domain hints and finally to the supplied default.
func Detect(priceStr, retailer, defaultCode string) string {
	upper := strings.ToUpper(priceStr)
	for _, sc := range symbolCurrencies {
		if strings.Contains(upper, strings.ToUpper(sc.marker)) {
			return sc.code
		}
	}

	lower := strings.ToLower(retailer)
	switch {
	case containsAny(lower, ".ae", "uae", "dubai", "noon", "sharaf"):
		return "AED"
	case containsAny(lower, ".sa", "saudi", "jarir", "extra"):
		return "SAR"
	case containsAny(lower, ".co.uk", "currys", "argos", "john lewis"):
		return "GBP"
	case containsAny(lower, ".com"):
		return "USD"
	}

	return defaultCode
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Converted is the outcome of normalizing a price into the target currency.
type Converted struct {
	Amount           float64
	Currency         string
	OriginalAmount   float64
	OriginalCurrency string
	Relabeled        bool // mislabel correction applied
}

// Convert normalizes an amount from one currency into the region's display
// currency, pivoting through BHD. Conversion is applied exactly once per
// resolved amount. Unknown currency codes convert at 1:1 with BHD and are
// logged; they are not an error — a wrong-but-present price still beats
// no price, and the sanity check catches gross outliers.
func Convert(amount float64, fromCode, region string) Converted {
	target := model.RegionCurrency(region)
	fromCode = normalizeCode(fromCode, target)

	if fromCode == target {
		return Converted{Amount: round2(amount), Currency: target, OriginalAmount: amount, OriginalCurrency: fromCode}
	}

	toBHD, ok := ratesToBHD[fromCode]
	if !ok {
		zap.L().Warn("currency: unknown source code, converting 1:1 with BHD",
			zap.String("code", fromCode),
		)
		toBHD = 1.0
	}
	fromBHD := ratesToBHD[target]
	if fromBHD == 0 {
		fromBHD = 1.0
	}

	converted := amount * toBHD / fromBHD
	return Converted{
		Amount:           round2(converted),
		Currency:         target,
		OriginalAmount:   amount,
		OriginalCurrency: fromCode,
	}
}

// Normalize parses, detects, corrects and converts a raw listing price in
// one step. The BHD-mislabel rule runs before conversion: an amount above
// the ceiling that claims to be BHD is relabeled AED and re-converted
// rather than discarded.
func Normalize(priceStr, retailer, region string) (Converted, error) {
	amount, err := ParseAmount(priceStr)
	if err != nil {
		return Converted{}, err
	}

	code := Detect(priceStr, retailer, model.RegionCurrency(region))
	relabeled := false
	if code == "BHD" && amount > mislabelCeilingBHD {
		zap.L().Debug("currency: BHD amount above ceiling, relabeling as AED",
			zap.Float64("amount", amount),
			zap.String("retailer", retailer),
		)
		code = "AED"
		relabeled = true
	}

	out := Convert(amount, code, region)
	out.Relabeled = relabeled
	return out, nil
}

// ToBHD converts an amount into BHD for cross-candidate comparison.
func ToBHD(amount float64, code string) float64 {
	rate, ok := ratesToBHD[normalizeCode(code, "BHD")]
	if !ok {
		rate = 1.0
	}
	return amount * rate
}

// normalizeCode uppercases and ISO-validates a currency code, substituting
// the fallback for anything x/text doesn't recognize.
func normalizeCode(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	if _, err := xcurrency.ParseISO(code); err != nil {
		return fallback
	}
	return code
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
