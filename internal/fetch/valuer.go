package fetch

import (
	"context"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/subhasta/internal/models"
)

const valuerMarketURL = "https://www.theclassicvaluer.com/the-market"

// minListingTextLen filters out stray page furniture picked up by the
// broad listing selectors.
const minListingTextLen = 30

// rawListing mirrors the object shape produced by the in-page extraction
// script.
type rawListing struct {
	Index   int    `json:"index"`
	RawText string `json:"raw_text"`
	HTML    string `json:"html"`
	Method  string `json:"extraction_method"`
}

// extractListingsJS walks a cascade of listing-ish selectors and falls
// back to splitting the page text on auction-date boundaries when the
// market page renders without structured containers.
const extractListingsJS = `
(() => {
	const listings = [];
	const selectors = [
		'[class*="listing"]', '[class*="vehicle"]', '[class*="car"]',
		'[class*="item"]', '[class*="result"]', '[class*="card"]',
		'article', '.row'
	];

	let found = [];
	for (const selector of selectors) {
		const elements = document.querySelectorAll(selector);
		if (elements.length > 0) {
			found = Array.from(elements);
			break;
		}
	}

	if (found.length === 0) {
		const bodyText = document.body.textContent || '';
		const datePattern = /\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4}/g;
		const matches = [...bodyText.matchAll(datePattern)];
		matches.forEach((match, index) => {
			const start = match.index;
			const end = index < matches.length - 1 ? matches[index + 1].index : bodyText.length;
			const text = bodyText.substring(start, end).trim();
			if (text.length > 50) {
				listings.push({ index: index, raw_text: text, html: '', extraction_method: 'date_pattern_split' });
			}
		});
	} else {
		found.forEach((element, index) => {
			const text = (element.textContent || '').trim();
			if (text.length > 20) {
				listings.push({ index: index, raw_text: text, html: element.innerHTML, extraction_method: 'structured_elements' });
			}
		});
	}

	return listings;
})()
`

// clickLoadMoreJS clicks the market page's load-more control if present,
// falling back to a bottom scroll to trigger lazy loading. Returns
// whether a control was clicked.
const clickLoadMoreJS = `
(() => {
	const candidates = Array.from(document.querySelectorAll('button, a'));
	const button = candidates.find(el => /load more/i.test(el.textContent || ''));
	if (button) {
		button.scrollIntoView();
		button.click();
		return true;
	}
	window.scrollTo(0, document.body.scrollHeight);
	return false;
})()
`

// ClassicValuerFetcher pulls raw listing fragments from the
// theclassicvaluer.com market page. The page is a single feed extended by
// a load-more control, so the whole fetch happens on the first page call.
type ClassicValuerFetcher struct {
	pool      *BrowserPool
	converter *md.Converter
	logger    arbor.ILogger
}

func NewClassicValuerFetcher(pool *BrowserPool, logger arbor.ILogger) *ClassicValuerFetcher {
	return &ClassicValuerFetcher{
		pool:      pool,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

func (f *ClassicValuerFetcher) Source() models.SourceType {
	return models.SourceClassicValuer
}

// Fetch renders the market page, extends it max_pages-1 times via the
// load-more control with delay_ms between interactions, and extracts
// every listing in one pass.
func (f *ClassicValuerFetcher) Fetch(ctx context.Context, opts map[string]interface{}, page int) ([]models.Fragment, error) {
	if page > 1 {
		return nil, nil
	}

	maxPages := models.OptionInt(opts, "max_pages", 3)
	delay := time.Duration(models.OptionInt(opts, "delay_ms", 3000)) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	if err := f.pool.Wait(ctx); err != nil {
		return nil, err
	}

	tabCtx, cancel, err := f.pool.newTab(ctx)
	if err != nil {
		return nil, &models.FetchError{Source: f.Source(), Page: page, Err: err}
	}
	defer cancel()

	f.logger.Debug().Str("url", valuerMarketURL).Int("max_pages", maxPages).Msg("Navigating to market page")

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(valuerMarketURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, &models.FetchError{Source: f.Source(), Page: page, Err: err}
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	for i := 1; i < maxPages; i++ {
		var clicked bool
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(clickLoadMoreJS, &clicked)); err != nil {
			return nil, &models.FetchError{Source: f.Source(), Page: i + 1, Err: err}
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if !clicked {
			f.logger.Debug().Int("extension", i).Msg("No load-more control found, stopping pagination")
			break
		}
	}

	var raw []rawListing
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(extractListingsJS, &raw)); err != nil {
		return nil, &models.FetchError{Source: f.Source(), Page: page, Err: err}
	}

	fragments := f.toFragments(raw)

	f.logger.Info().
		Int("raw_listings", len(raw)).
		Int("fragments", len(fragments)).
		Msg("Extracted market page listings")

	return fragments, nil
}

// toFragments converts raw listings to fragments, preferring a markdown
// rendering of structured HTML over the flattened text content. Tiny and
// near-identical chunks are dropped before normalization sees them.
func (f *ClassicValuerFetcher) toFragments(raw []rawListing) []models.Fragment {
	fragments := make([]models.Fragment, 0, len(raw))
	seen := make(map[string]bool)

	for _, listing := range raw {
		text := strings.TrimSpace(listing.RawText)
		if listing.HTML != "" {
			if converted, err := f.converter.ConvertString(listing.HTML); err == nil {
				if trimmed := strings.TrimSpace(converted); trimmed != "" {
					text = trimmed
				}
			}
		}

		if len(text) < minListingTextLen {
			continue
		}

		key := text
		if len(key) > 100 {
			key = key[:100]
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		fragments = append(fragments, models.Fragment{
			Index:   len(fragments),
			RawText: text,
			URL:     valuerMarketURL,
		})
	}
	return fragments
}
