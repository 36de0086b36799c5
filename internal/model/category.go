package model

import "strings"

// categorySpecs fixes the spec schema per category. Records carry exactly
// these fields for their category — no freeform keys survive validation.
var categorySpecs = map[string][]string{
	"electronics": {"display", "processor", "ram", "storage", "battery", "camera", "os", "connectivity"},
	"smartphone":  {"display", "processor", "ram", "storage", "battery", "camera", "os", "5g"},
	"laptop":      {"display", "processor", "ram", "storage", "battery", "graphics", "os", "weight"},
	"tv":          {"display_size", "resolution", "panel_type", "smart_features", "hdmi_ports", "refresh_rate"},
	"grocery":     {"weight", "size", "ingredients", "nutrition", "origin", "expiry"},
	"beauty":      {"size", "ingredients", "skin_type", "benefits", "usage"},
	"fashion":     {"material", "size", "color", "care_instructions", "origin"},
	"home":        {"dimensions", "material", "weight", "color", "warranty"},
	"gaming":      {"platform", "storage", "resolution", "fps", "features", "controller"},
	"default":     {"brand", "model", "features", "warranty", "dimensions", "weight"},
}

// CategorySpecFields returns the fixed spec schema for a category,
// falling back to the generic schema for unknown categories.
func CategorySpecFields(category string) []string {
	if fields, ok := categorySpecs[strings.ToLower(category)]; ok {
		return fields
	}
	return categorySpecs["default"]
}

// brandKeywords maps product-name keywords to brands. Substring match,
// longest keywords first is not needed — entries don't overlap ambiguously.
var brandKeywords = map[string]string{
	"iphone": "Apple", "ipad": "Apple", "macbook": "Apple", "airpods": "Apple", "apple watch": "Apple",
	"galaxy": "Samsung", "samsung": "Samsung",
	"pixel": "Google", "chromecast": "Google",
	"xbox": "Microsoft", "surface": "Microsoft",
	"playstation": "Sony", "ps5": "Sony", "ps4": "Sony",
	"rtx": "NVIDIA", "geforce": "NVIDIA",
	"radeon": "AMD", "ryzen": "AMD",
	"dell": "Dell", "xps": "Dell", "alienware": "Dell",
	"pavilion": "HP", "envy": "HP",
	"lenovo": "Lenovo", "thinkpad": "Lenovo", "ideapad": "Lenovo",
	"asus": "ASUS", "zenbook": "ASUS",
	"nike": "Nike", "adidas": "Adidas", "puma": "Puma",
	"nido": "Nestle", "milo": "Nestle", "maggi": "Nestle",
	"almarai": "Almarai",
}

// DetectBrand guesses a brand from a product name: keyword table first,
// then the first word capitalized, then "Unknown".
func DetectBrand(productName string) string {
	lower := strings.ToLower(productName)
	for kw, brand := range brandKeywords {
		if strings.Contains(lower, kw) {
			return brand
		}
	}
	words := strings.Fields(productName)
	if len(words) > 0 {
		w := words[0]
		return strings.ToUpper(w[:1]) + w[1:]
	}
	return "Unknown"
}

// regionCurrencies maps a region name or ISO country code to its display
// currency.
var regionCurrencies = map[string]string{
	"bahrain": "BHD", "bh": "BHD",
	"saudi": "SAR", "saudi arabia": "SAR", "sa": "SAR",
	"uae": "AED", "ae": "AED",
	"kuwait": "KWD", "kw": "KWD",
	"qatar": "QAR", "qa": "QAR",
	"oman": "OMR", "om": "OMR",
}

// RegionCurrency returns the display currency for a region, BHD by default.
func RegionCurrency(region string) string {
	if c, ok := regionCurrencies[strings.ToLower(region)]; ok {
		return c
	}
	return "BHD"
}
