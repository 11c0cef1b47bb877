package sources

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/harvest/models"
)

const amazonBaseURL = "https://www.amazon.in"

// asinPatterns in priority order; the first hit wins.
var asinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/dp/([A-Z0-9]{10})`),
	regexp.MustCompile(`/product/([A-Z0-9]{10})`),
	regexp.MustCompile(`/gp/product/([A-Z0-9]{10})`),
}

// Compiled selectors for the hot paths. Amazon's data-hook attributes
// have survived years of class-name churn, so everything review-side
// keys off them.
var (
	amzSearchResult   = cascadia.MustCompile(`[data-component-type="s-search-result"]`)
	amzSearchTitle    = cascadia.MustCompile(`h2 a span`)
	amzSearchLink     = cascadia.MustCompile(`h2 a`)
	amzSearchImage    = cascadia.MustCompile(`img.s-image`)
	amzPriceWhole     = cascadia.MustCompile(`.a-price-whole`)
	amzSearchRating   = cascadia.MustCompile(`.a-icon-star-small span.a-icon-alt`)
	amzProductTitle   = cascadia.MustCompile(`#productTitle`)
	amzFeatureBullets = cascadia.MustCompile(`#feature-bullets`)
	amzRatingText     = cascadia.MustCompile(`[data-hook="rating-out-of-text"]`)
	amzReviewCount    = cascadia.MustCompile(`[data-hook="total-review-count"]`)
	amzLandingImage   = cascadia.MustCompile(`#landingImage`)
	amzBreadcrumbs    = cascadia.MustCompile(`#wayfinding-breadcrumbs_container`)
	amzReview         = cascadia.MustCompile(`[data-hook="review"]`)
	amzReviewTitle    = cascadia.MustCompile(`[data-hook="review-title"]`)
	amzReviewBody     = cascadia.MustCompile(`[data-hook="review-body"]`)
	amzReviewRating   = cascadia.MustCompile(`[data-hook="review-star-rating"]`)
	amzReviewAuthor   = cascadia.MustCompile(`.a-profile-name`)
	amzReviewDate     = cascadia.MustCompile(`[data-hook="review-date"]`)
	amzVerifiedBadge  = cascadia.MustCompile(`[data-hook="avp-badge"]`)
	amzHelpfulVotes   = cascadia.MustCompile(`[data-hook="helpful-vote-statement"]`)
)

// Amazon extracts product and review data from Amazon-style markup.
type Amazon struct{}

// NewAmazon creates the Amazon extractor.
func NewAmazon() *Amazon { return &Amazon{} }

func (a *Amazon) Source() string { return "amazon" }

func (a *Amazon) ProductID(rawURL string) string {
	return firstMatch(rawURL, asinPatterns)
}

func (a *Amazon) SearchURL(query string) string {
	return amazonBaseURL + "/s?k=" + url.QueryEscape(query)
}

func (a *Amazon) ReviewPageURL(productURL string, page int) (string, error) {
	asin := a.ProductID(productURL)
	if asin == "" {
		return "", models.NewHarvestError(models.ErrCodeUnsupportedPage, "no ASIN in product URL "+productURL, nil)
	}
	return fmt.Sprintf("%s/product-reviews/%s?pageNumber=%d", amazonBaseURL, asin, page), nil
}

func (a *Amazon) ShortPageThreshold() int { return 10 }

func (a *Amazon) ExtractSearchResults(page *models.RawPage, maxResults int) (*models.SearchResultSet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unparseable search page", err)
	}

	set := &models.SearchResultSet{}
	doc.FindMatcher(amzSearchResult).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if maxResults > 0 && len(set.Items) >= maxResults {
			return false
		}

		name := cleanText(item.FindMatcher(amzSearchTitle).First().Text())
		href, _ := item.FindMatcher(amzSearchLink).First().Attr("href")
		if name == "" || href == "" {
			return true
		}

		productURL := resolveURL(amazonBaseURL, href)
		summary := models.ProductSummary{
			Name:            name,
			URL:             productURL,
			SourceProductID: a.ProductID(productURL),
			PriceMinor:      parsePriceMinor(item.FindMatcher(amzPriceWhole).First().Text()),
			Rating:          parseRating(item.FindMatcher(amzSearchRating).First().Text()),
		}
		if src, ok := item.FindMatcher(amzSearchImage).First().Attr("src"); ok {
			summary.ImageURL = src
		}
		set.Items = append(set.Items, summary)
		return true
	})

	return set, nil
}

func (a *Amazon) ExtractProductDetails(page *models.RawPage) (*models.ProductDetails, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unparseable product page", err)
	}

	name := cleanText(doc.FindMatcher(amzProductTitle).First().Text())
	if name == "" {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "product title element missing", nil)
	}

	details := &models.ProductDetails{
		Name:        name,
		Description: cleanText(doc.FindMatcher(amzFeatureBullets).First().Text()),
		RatingAvg:   parseRating(doc.FindMatcher(amzRatingText).First().Text()),
		ReviewCount: parseCount(doc.FindMatcher(amzReviewCount).First().Text()),
		PriceMinor:  parsePriceMinor(doc.FindMatcher(amzPriceWhole).First().Text()),
		Category:    cleanText(doc.FindMatcher(amzBreadcrumbs).First().Text()),
	}
	if src, ok := doc.FindMatcher(amzLandingImage).First().Attr("src"); ok {
		details.ImageURL = src
	}
	return details, nil
}

func (a *Amazon) ExtractReviewBatch(page *models.RawPage) (*models.ReviewBatch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unparseable review page", err)
	}

	now := time.Now()
	batch := &models.ReviewBatch{}
	doc.FindMatcher(amzReview).Each(func(_ int, div *goquery.Selection) {
		text := cleanText(div.FindMatcher(amzReviewBody).First().Text())
		if text == "" {
			return
		}

		var rating float64
		if r := parseRating(div.FindMatcher(amzReviewRating).First().Text()); r != nil {
			rating = *r
		}
		author := cleanText(div.FindMatcher(amzReviewAuthor).First().Text())
		if author == "" {
			author = "Anonymous"
		}

		review := models.ReviewRecord{
			Title:        cleanText(div.FindMatcher(amzReviewTitle).First().Text()),
			Text:         text,
			Rating:       rating,
			Author:       author,
			Verified:     div.FindMatcher(amzVerifiedBadge).Length() > 0,
			PublishedAt:  parseReviewDate(div.FindMatcher(amzReviewDate).First().Text(), now),
			HelpfulCount: parseCount(div.FindMatcher(amzHelpfulVotes).First().Text()),
		}
		if id, ok := div.Attr("id"); ok {
			review.SourceReviewID = id
		}
		batch.Reviews = append(batch.Reviews, review)
	})

	batch.HasMore = len(batch.Reviews) >= a.ShortPageThreshold()
	return batch, nil
}

// resolveURL joins a possibly relative href against the source base.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
