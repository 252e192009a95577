package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/subhasta/internal/models"
)

// Normalizer turns one raw fragment into a typed candidate record. Every
// stage is a pure function over the fragment text; fields with no match
// are left empty, never guessed. Structured fields the fetcher extracted
// via DOM selectors override the text heuristics.

var (
	saleDateRe = regexp.MustCompile(`(\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4})`)
	yearRe     = regexp.MustCompile(`\b(19[3-9]\d|20[0-2]\d)\b`)

	priceRangeRe  = regexp.MustCompile(`£([\d,]+(?:\.\d{2})?)\s*-\s*£([\d,]+(?:\.\d{2})?)`)
	priceSingleRe = regexp.MustCompile(`£([\d,]+(?:\.\d{2})?)`)

	bodyVariantRe = regexp.MustCompile(`(?i)\b(?:spyder|spider|roadster|convertible|tourer)\b`)

	modelTokenRe = regexp.MustCompile(`\b[A-Za-z0-9\-]+\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonDigitRe   = regexp.MustCompile(`[^\d]`)
)

// maxDescriptionLen bounds the cleaned description; longer text is
// truncated with an explicit marker.
const maxDescriptionLen = 300

// minDescriptionLen is the validity threshold for "meaningful description"
const minDescriptionLen = 20

// Normalize parses a raw fragment into a candidate record and reports
// whether it meets the validity bar. Fragments with no usable content
// return a *models.ParseError.
func Normalize(frag models.Fragment) (models.Record, bool, error) {
	text := strings.TrimSpace(frag.RawText)
	if text == "" && len(frag.Fields) == 0 {
		return models.Record{}, false, &models.ParseError{Index: frag.Index, Err: fmt.Errorf("empty fragment")}
	}

	make_, model := ExtractMakeModel(text)

	rec := models.Record{
		Make:           make_,
		Model:          model,
		ProductionYear: ExtractYear(text),
		DateOfSale:     ExtractSaleDate(text),
		SoldPrice:      ExtractPrice(text),
		Gearbox:        ClassifyGearbox(text),
		Description:    CleanDescription(text),
		AuctionHouse:   ExtractAuctionHouse(text),
		CountryOfSale:  ExtractCountry(text),
		Spyder:         HasBodyVariant(text) || HasBodyVariant(model),
		SourceURL:      frag.URL,
	}

	applyFieldOverrides(&rec, frag.Fields)

	return rec, IsValid(rec), nil
}

// applyFieldOverrides replaces heuristic values with fetcher-extracted
// structured fields where present.
func applyFieldOverrides(rec *models.Record, fields map[string]string) {
	if v, ok := fields[models.FieldGearbox]; ok && v != "" {
		rec.Gearbox = v
	}
	if v, ok := fields[models.FieldDrivetrain]; ok && v != "" {
		rec.LHDRHD = v
	}
	if v, ok := fields[models.FieldAuctionHouse]; ok && v != "" {
		rec.AuctionHouse = v
	}
	if v, ok := fields[models.FieldCountry]; ok && v != "" {
		rec.CountryOfSale = v
	}
}

// IsValid applies the acceptance bar: at least two of make-or-model,
// production year, price, and a meaningful description must be present.
// Candidates below the bar are dropped before deduplication and counted
// only as rejected.
func IsValid(rec models.Record) bool {
	criteria := 0
	if rec.Make != "" || rec.Model != "" {
		criteria++
	}
	if rec.ProductionYear != "" {
		criteria++
	}
	if rec.SoldPrice != "" {
		criteria++
	}
	if len(strings.TrimSpace(rec.Description)) > minDescriptionLen {
		criteria++
	}
	return criteria >= 2
}

// ExtractSaleDate locates a "27 Jul 2025"-style date token and normalizes
// it to DD/MM/YYYY. No match leaves the field empty rather than guessing.
func ExtractSaleDate(text string) string {
	match := saleDateRe.FindString(text)
	if match == "" {
		return ""
	}
	normalized := whitespaceRe.ReplaceAllString(match, " ")
	parsed, err := time.Parse("2 Jan 2006", normalized)
	if err != nil {
		return ""
	}
	return parsed.Format("02/01/2006")
}

// ExtractYear returns the first 4-digit token within the plausible
// vehicle-production range 1930-2029. First match wins.
func ExtractYear(text string) string {
	return yearRe.FindString(text)
}

// ExtractMakeModel matches the longest-first manufacturer catalog, then
// takes up to four tokens after the make as model, stopping at the first
// stop-word or single-character token.
func ExtractMakeModel(text string) (string, string) {
	for _, mp := range makePatterns {
		loc := mp.re.FindStringIndex(text)
		if loc == nil {
			continue
		}

		afterMake := text[loc[1]:]
		modelWords := []string{}
		for _, word := range modelTokenRe.FindAllString(afterMake, maxModelTokens) {
			if modelStopWords[strings.ToLower(word)] || len(word) <= 1 {
				break
			}
			modelWords = append(modelWords, word)
		}

		return mp.name, strings.Join(modelWords, " ")
	}
	return "", ""
}

// ExtractPrice matches a currency-prefixed value or range. A range
// normalizes to the arithmetic midpoint, rounded down to the nearest
// whole currency unit; single values are re-rendered canonically.
func ExtractPrice(text string) string {
	if m := priceRangeRe.FindStringSubmatch(text); m != nil {
		low := parsePriceNumber(m[1])
		high := parsePriceNumber(m[2])
		return FormatPrice((low + high) / 2)
	}
	if m := priceSingleRe.FindStringSubmatch(text); m != nil {
		return FormatPrice(parsePriceNumber(m[1]))
	}
	return ""
}

// parsePriceNumber parses "2,500,000" or "1,250.50" down to whole units
func parsePriceNumber(s string) int {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// NormalizePrice strips all non-digit characters and parses the result.
// Empty or non-numeric input yields 0.
func NormalizePrice(s string) int {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// FormatPrice renders whole currency units canonically: £2,500,000.
// FormatPrice(NormalizePrice(s)) == s for already-canonical strings.
func FormatPrice(n int) string {
	if n <= 0 {
		return ""
	}
	digits := strconv.Itoa(n)
	var b strings.Builder
	b.WriteString("£")
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
		if len(digits) > lead {
			b.WriteString(",")
		}
	}
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			b.WriteString(",")
		}
	}
	return b.String()
}

// ClassifyGearbox decides gearbox type from indicator words. Manual
// indicators with no automatic indicators mean Manual, the reverse means
// Automatic; both or neither means Unknown, never a guess.
func ClassifyGearbox(text string) string {
	lower := strings.ToLower(text)

	hasManual := false
	for _, ind := range manualIndicators {
		if strings.Contains(lower, ind) {
			hasManual = true
			break
		}
	}
	hasAuto := false
	for _, ind := range autoIndicators {
		if strings.Contains(lower, ind) {
			hasAuto = true
			break
		}
	}

	switch {
	case hasManual && !hasAuto:
		return models.GearboxManual
	case hasAuto && !hasManual:
		return models.GearboxAutomatic
	}
	return models.GearboxUnknown
}

// HasBodyVariant reports a case-insensitive whole-word match against the
// open-top synonym set (spyder, spider, roadster, convertible, tourer).
func HasBodyVariant(text string) bool {
	return bodyVariantRe.MatchString(text)
}

// ExtractCountry returns the first match against the recognized-country
// table, or empty - never invented.
func ExtractCountry(text string) string {
	for _, cp := range countryPatterns {
		if cp.re.MatchString(text) {
			return cp.name
		}
	}
	return ""
}

// ExtractAuctionHouse returns the first recognized auction house named in
// the text, or empty.
func ExtractAuctionHouse(text string) string {
	lower := strings.ToLower(text)
	for _, house := range auctionHouses {
		if strings.Contains(lower, strings.ToLower(house)) {
			return house
		}
	}
	return ""
}

// CleanDescription collapses whitespace, strips known boilerplate
// phrases, and truncates to maxDescriptionLen with an explicit marker.
func CleanDescription(text string) string {
	cleaned := whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")

	for _, pattern := range boilerplatePatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > maxDescriptionLen {
		cleaned = cleaned[:maxDescriptionLen] + "..."
	}
	return cleaned
}
