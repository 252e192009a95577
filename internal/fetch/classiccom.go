package fetch

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/extract"
	"github.com/ternarybob/subhasta/internal/models"
)

const classicComBaseURL = "https://www.classic.com"

var (
	titleRe    = regexp.MustCompile(`^(\d{4})\s+(\S+)\s+(.+)$`)
	usdPriceRe = regexp.MustCompile(`\$[\d,]+`)
	// listing pages render sale dates as "Jul 15, 2024"
	usDateRe = regexp.MustCompile(`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},\s+\d{4}`)
)

// classicComListing is one row of the search results table: the detail
// link plus the structured attributes visible on the card itself.
type classicComListing struct {
	url        string
	gearbox    string
	country    string
	drivetrain string
}

// ClassicComFetcher pulls sold listings from classic.com. The search page
// yields detail links and card-level attributes; each detail page is then
// rendered for title, price, and sale date, with the auction house read
// from the listing's history tab. Sold prices arrive in USD and are
// converted to GBP at the configured rate.
type ClassicComFetcher struct {
	pool   *BrowserPool
	logger arbor.ILogger
}

func NewClassicComFetcher(pool *BrowserPool, logger arbor.ILogger) *ClassicComFetcher {
	return &ClassicComFetcher{
		pool:   pool,
		logger: logger,
	}
}

func (f *ClassicComFetcher) Source() models.SourceType {
	return models.SourceClassicCom
}

func (f *ClassicComFetcher) searchURL(opts map[string]interface{}) string {
	values := url.Values{}
	values.Set("result_type", "listings")
	if query, ok := opts["query"].(string); ok && query != "" {
		values.Set("q", query)
	}
	if page := models.OptionInt(opts, "page", 1); page > 1 {
		values.Set("page", fmt.Sprintf("%d", page))
	}
	return classicComBaseURL + "/search/?" + values.Encode()
}

// Fetch renders one search results page and walks its listings. The
// search page option selects the remote page; pagination across job
// pages is not used, so the whole fetch happens on the first call.
func (f *ClassicComFetcher) Fetch(ctx context.Context, opts map[string]interface{}, page int) ([]models.Fragment, error) {
	if page > 1 {
		return nil, nil
	}

	maxListings := models.OptionInt(opts, "max_listings", 50)
	conversionRate := models.OptionFloat(opts, "conversion_rate", 0.76)

	listings, err := f.fetchSearchPage(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(listings) > maxListings {
		listings = listings[:maxListings]
	}

	f.logger.Info().
		Int("listings", len(listings)).
		Int("max_listings", maxListings).
		Msg("Collected search page listings")

	fragments := make([]models.Fragment, 0, len(listings))
	for _, listing := range listings {
		if err := f.pool.Wait(ctx); err != nil {
			return nil, err
		}

		frag, err := f.fetchListing(ctx, listing, conversionRate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn().Str("url", listing.url).Err(err).Msg("Skipping listing")
			continue
		}

		frag.Index = len(fragments)
		fragments = append(fragments, frag)
	}

	return fragments, nil
}

// fetchSearchPage renders the search results and parses the listing table
func (f *ClassicComFetcher) fetchSearchPage(ctx context.Context, opts map[string]interface{}) ([]classicComListing, error) {
	searchURL := f.searchURL(opts)

	if err := f.pool.Wait(ctx); err != nil {
		return nil, err
	}

	tabCtx, cancel, err := f.pool.newTab(ctx)
	if err != nil {
		return nil, &models.FetchError{Source: f.Source(), Page: 1, Err: err}
	}
	defer cancel()

	f.logger.Debug().Str("url", searchURL).Msg("Navigating to search page")

	var html string
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(searchURL),
		chromedp.WaitVisible("#dealer-listings-table", chromedp.ByID),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, &models.FetchError{Source: f.Source(), Page: 1, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &models.FetchError{Source: f.Source(), Page: 1, Err: err}
	}

	var listings []classicComListing
	doc.Find("#dealer-listings-table > div.group").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a").First().Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = classicComBaseURL + href
		}

		listing := classicComListing{url: href}

		// card attribute row: the second cell carries the gearbox
		attrs := card.Find("div.flex.flex-wrap.justify-between div")
		if attrs.Length() >= 2 {
			listing.gearbox = normalizeCardValue(attrs.Eq(1).Text())
		}

		// icon row: country then drivetrain, when both are present
		icons := card.Find("div.flex.items-center")
		switch {
		case icons.Length() >= 3:
			listing.country = normalizeCardValue(icons.Eq(1).Text())
			listing.drivetrain = normalizeCardValue(icons.Eq(2).Text())
		case icons.Length() == 2:
			listing.drivetrain = normalizeCardValue(icons.Eq(1).Text())
		}

		listings = append(listings, listing)
	})

	return listings, nil
}

// fetchListing renders one detail page (and its history tab) into a fragment
func (f *ClassicComFetcher) fetchListing(ctx context.Context, listing classicComListing, conversionRate float64) (models.Fragment, error) {
	tabCtx, cancel, err := f.pool.newTab(ctx)
	if err != nil {
		return models.Fragment{}, err
	}
	defer cancel()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(listing.url),
		chromedp.WaitReady("h1", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return models.Fragment{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Fragment{}, err
	}

	title := strings.Join(strings.Fields(doc.Find("h1").First().Text()), " ")
	if !titleRe.MatchString(title) {
		return models.Fragment{}, fmt.Errorf("listing title %q is not a vehicle heading", title)
	}

	pageText := doc.Find("body").Text()

	price := ""
	if m := usdPriceRe.FindString(pageText); m != "" {
		usd := extract.NormalizePrice(m)
		price = extract.FormatPrice(int(float64(usd) * conversionRate))
	}

	saleDate := ""
	if m := usDateRe.FindString(pageText); m != "" {
		if parsed, err := time.Parse("Jan 2, 2006", m); err == nil {
			saleDate = parsed.Format("2 Jan 2006")
		}
	}

	auctionHouse := f.fetchAuctionHouse(ctx, listing.url)

	var sb strings.Builder
	sb.WriteString(title)
	if price != "" {
		sb.WriteString(" Sold for ")
		sb.WriteString(price)
	}
	if saleDate != "" {
		sb.WriteString(" ")
		sb.WriteString(saleDate)
	}
	if listing.country != "" {
		sb.WriteString(" ")
		sb.WriteString(listing.country)
	}

	fields := map[string]string{}
	if listing.gearbox != "" {
		fields[models.FieldGearbox] = listing.gearbox
	}
	if listing.drivetrain != "" {
		fields[models.FieldDrivetrain] = listing.drivetrain
	}
	if auctionHouse != "" {
		fields[models.FieldAuctionHouse] = auctionHouse
	}
	if listing.country != "" {
		fields[models.FieldCountry] = listing.country
	}

	return models.Fragment{
		RawText: sb.String(),
		Fields:  fields,
		URL:     listing.url,
	}, nil
}

// fetchAuctionHouse reads the seller from the listing's history tab.
// Failures degrade to an empty value rather than failing the listing.
func (f *ClassicComFetcher) fetchAuctionHouse(ctx context.Context, listingURL string) string {
	tabCtx, cancel, err := f.pool.newTab(ctx)
	if err != nil {
		return ""
	}
	defer cancel()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(listingURL+"?tab=history"),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		f.logger.Debug().Str("url", listingURL).Err(err).Msg("History tab unavailable")
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	// dealer link wins over the auction chain entries
	if seller := strings.TrimSpace(doc.Find("a[href*='/dealer/']").First().Text()); seller != "" {
		return seller
	}
	return strings.TrimSpace(doc.Find("div.tab-item[data-tab='history'] a").First().Text())
}

// normalizeCardValue collapses card cell text and drops placeholder dashes
func normalizeCardValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "-" || s == "—" {
		return ""
	}
	return s
}
