package extract

import (
	"strings"

	"github.com/ternarybob/subhasta/internal/models"
)

// Deduplicator decides whether a candidate record is a near-duplicate of
// an already-accepted one. It is parameterized by a match-key extractor
// and a price-tolerance predicate so every source shares one
// implementation instead of reimplementing suppression per pipeline.
type Deduplicator struct {
	keyOf     func(models.Record) string
	tolerance float64
}

// priceTolerance absorbs currency-rounding and re-scrape noise without
// conflating genuinely distinct sales of the same car on the same date.
const priceTolerance = 0.05

// NewDeduplicator returns the standard deduplicator: match key is the
// case-insensitive (make, model, sale date) tuple with a ±5% relative
// price tolerance computed against the new candidate's price.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		keyOf:     matchKey,
		tolerance: priceTolerance,
	}
}

// matchKey folds make, model, and sale date into one case-insensitive key
func matchKey(r models.Record) string {
	return strings.ToLower(r.Make) + "\x00" + strings.ToLower(r.Model) + "\x00" + strings.ToLower(r.DateOfSale)
}

// IsDuplicate scans history in full and reports whether the candidate
// matches an existing record on key with a price inside tolerance.
// The new candidate's price is the denominator; a candidate with a zero
// or unparseable price never matches, and neither does a history record
// without one.
func (d *Deduplicator) IsDuplicate(candidate models.Record, history []models.Record) bool {
	newPrice := NormalizePrice(candidate.SoldPrice)
	if newPrice == 0 {
		return false
	}

	key := d.keyOf(candidate)
	for i := range history {
		if d.keyOf(history[i]) != key {
			continue
		}
		existingPrice := NormalizePrice(history[i].SoldPrice)
		if existingPrice == 0 {
			continue
		}
		diff := existingPrice - newPrice
		if diff < 0 {
			diff = -diff
		}
		if float64(diff)/float64(newPrice) <= d.tolerance {
			return true
		}
	}
	return false
}
