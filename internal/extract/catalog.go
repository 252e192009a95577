package extract

import (
	"regexp"
	"sort"
)

// makeCatalog is the fixed set of recognized manufacturer names. Matching
// is longest-first so "Aston Martin" wins over a spurious "Austin" hit
// inside unrelated text, and "Mercedes-Benz" over "Mercedes".
var makeCatalog = []string{
	"Aston Martin", "Alfa Romeo", "Austin Healey", "AC Cobra",
	"Ferrari", "Porsche", "Lamborghini", "Maserati", "McLaren",
	"Jaguar", "Mercedes-Benz", "Mercedes", "BMW", "Audi",
	"Bentley", "Rolls-Royce", "Rolls Royce", "Lotus", "TVR",
	"MG", "Triumph", "Austin", "Morris", "Riley", "Healey",
	"Ford", "Chevrolet", "Dodge", "Plymouth", "Pontiac",
	"Cadillac", "Buick", "Oldsmobile", "Lincoln",
	"Volkswagen", "VW", "Peugeot", "Renault", "Citroën",
	"Fiat", "Lancia", "Volvo", "Saab", "MINI", "Mini",
	"Land Rover", "Range Rover", "Jeep", "Toyota", "Nissan",
	"Honda", "Mazda", "Subaru", "Mitsubishi", "Datsun",
}

// makePatterns holds one whole-word case-insensitive pattern per make,
// in longest-first order. Built once at init.
var makePatterns []makePattern

type makePattern struct {
	name string
	re   *regexp.Regexp
}

func init() {
	sorted := make([]string, len(makeCatalog))
	copy(sorted, makeCatalog)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	makePatterns = make([]makePattern, 0, len(sorted))
	for _, name := range sorted {
		makePatterns = append(makePatterns, makePattern{
			name: name,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
}

// modelStopWords are auction/boilerplate tokens that terminate model
// extraction after a make match.
var modelStopWords = map[string]bool{
	"auction": true, "uk": true, "estimate": true, "sold": true,
	"price": true, "sale": true, "condition": true, "mileage": true,
	"this": true, "is": true, "not": true, "an": true,
	"assessment": true, "of": true, "whether": true, "vehicle": true,
	"good": true, "value": true,
}

// maxModelTokens bounds how many tokens after the make are taken as model
const maxModelTokens = 4

// manualIndicators / autoIndicators decide gearbox classification.
// Manual requires at least one manual indicator and no automatic
// indicator; co-occurrence yields Unknown.
var (
	manualIndicators = []string{"manual", "stick", "clutch", "5-speed", "6-speed", "mt"}
	autoIndicators   = []string{"automatic", "auto", "tiptronic", "dsg", "cvt", "paddle"}
)

// countryPatterns maps recognition patterns to canonical country names.
// First match wins; no match leaves the field empty.
var countryPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)\bUK\b`), "United Kingdom"},
	{regexp.MustCompile(`(?i)\bUnited Kingdom\b`), "United Kingdom"},
	{regexp.MustCompile(`(?i)\bUSA?\b`), "United States"},
	{regexp.MustCompile(`(?i)\bUnited States\b`), "United States"},
	{regexp.MustCompile(`(?i)\bFrance\b`), "France"},
	{regexp.MustCompile(`(?i)\bGermany\b`), "Germany"},
	{regexp.MustCompile(`(?i)\bItaly\b`), "Italy"},
	{regexp.MustCompile(`(?i)\bJapan\b`), "Japan"},
	{regexp.MustCompile(`(?i)\bAustralia\b`), "Australia"},
	{regexp.MustCompile(`(?i)\bCanada\b`), "Canada"},
}

// auctionHouses is the fixed lookup table of recognized sellers
var auctionHouses = []string{
	"Barrett-Jackson", "RM Sotheby's", "RM Sothebys", "Bonhams",
	"Christie's", "Gooding & Company", "Mecum", "Artcurial",
	"Coys", "H&H", "Silverstone Auctions", "Historics",
	"Collecting Cars", "Bring a Trailer", "BaT", "Cars & Bids",
}

// boilerplatePatterns are stripped from descriptions before truncation
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)This is not an assessment of whether a vehicle is good value.*?recent sales\.?`),
	regexp.MustCompile(`(?is)Rather, how the sale price or estimate mid-point compares to recent sales\.?`),
	regexp.MustCompile(`(?i)Estimate\s*`),
	regexp.MustCompile(`(?i)Auction\s*•\s*UK\s*`),
}
