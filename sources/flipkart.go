package sources

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/harvest/models"
)

const flipkartBaseURL = "https://www.flipkart.com"

// flipkartIDPatterns in priority order; the first hit wins.
var flipkartIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/p/itm([A-Za-z0-9]+)`),
	regexp.MustCompile(`[?&]pid=([A-Za-z0-9]+)`),
	regexp.MustCompile(`/([A-Z0-9]{16})(?:[/?]|$)`),
}

// Flipkart ships obfuscated, frequently regenerated class names, so most
// selectors carry the known alternates and take whichever matches.
var (
	fkSearchItem    = cascadia.MustCompile(`div[data-id]`)
	fkSearchItemAlt = cascadia.MustCompile(`div._1AtVbE`)
	fkSearchTitle   = cascadia.MustCompile(`div._4rR01T, a._1fQZEK, div.IRpwTa`)
	fkSearchLink    = cascadia.MustCompile(`a._1fQZEK, a._2rpwqI`)
	fkImage         = cascadia.MustCompile(`img._396cs4, img._2r_T1I`)
	fkPrice         = cascadia.MustCompile(`div._30jeq3, div._16Jk6d`)
	fkRating        = cascadia.MustCompile(`div._3LWZlK, div._3i9cDe`)
	fkProductTitle  = cascadia.MustCompile(`span.B_NuCI, h1.yhB1nd, span.VU-ZEz`)
	fkDescription   = cascadia.MustCompile(`div._1mXcCf, div._3WHvuP`)
	fkDescParts     = cascadia.MustCompile(`li, p`)
	fkReviewCount   = cascadia.MustCompile(`span._2_R_DZ, span._13vcmD`)
	fkBreadcrumb    = cascadia.MustCompile(`div._2whKao`)
	fkReviewItem    = cascadia.MustCompile(`div.col._2wzgFH, div._27M-vq`)
	fkReviewTitle   = cascadia.MustCompile(`p._2-N8zT`)
	fkReviewText    = cascadia.MustCompile(`div.t-ZTKy, div._2ZibVB`)
	fkReviewAuthor  = cascadia.MustCompile(`p._2sc7ZR, p._2NsDsF`)
	fkReviewDate    = cascadia.MustCompile(`p._2sc7ZR._3j50Xe, p._2NsDsF`)
	fkHelpful       = cascadia.MustCompile(`div._1i2dFb`)
)

// reFlipkartCount matches "1,234 Ratings & 567 Reviews" style counters.
var reFlipkartCount = regexp.MustCompile(`(?i)([\d,]+)\s*Reviews?`)

// Flipkart extracts product and review data from Flipkart-style markup.
type Flipkart struct{}

// NewFlipkart creates the Flipkart extractor.
func NewFlipkart() *Flipkart { return &Flipkart{} }

func (f *Flipkart) Source() string { return "flipkart" }

func (f *Flipkart) ProductID(rawURL string) string {
	return firstMatch(rawURL, flipkartIDPatterns)
}

func (f *Flipkart) SearchURL(query string) string {
	return flipkartBaseURL + "/search?q=" + url.QueryEscape(query)
}

func (f *Flipkart) ReviewPageURL(productURL string, page int) (string, error) {
	base := productURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	switch {
	case strings.Contains(base, "/product-reviews/"):
		// Already a review URL, just page it.
	case strings.Contains(base, "/p/"):
		base = strings.Replace(base, "/p/", "/product-reviews/", 1)
	default:
		return "", models.NewHarvestError(models.ErrCodeUnsupportedPage, "no review path derivable from "+productURL, nil)
	}
	return fmt.Sprintf("%s?page=%d", base, page), nil
}

func (f *Flipkart) ShortPageThreshold() int { return 5 }

func (f *Flipkart) ExtractSearchResults(page *models.RawPage, maxResults int) (*models.SearchResultSet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unparseable search page", err)
	}

	containers := doc.FindMatcher(fkSearchItem)
	if containers.Length() == 0 {
		containers = doc.FindMatcher(fkSearchItemAlt)
	}

	set := &models.SearchResultSet{}
	containers.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if maxResults > 0 && len(set.Items) >= maxResults {
			return false
		}

		titleSel := item.FindMatcher(fkSearchTitle).First()
		name := cleanText(titleSel.AttrOr("title", ""))
		if name == "" {
			name = cleanText(titleSel.Text())
		}
		href, _ := item.FindMatcher(fkSearchLink).First().Attr("href")
		if name == "" || href == "" {
			return true
		}

		productURL := resolveURL(flipkartBaseURL, href)
		summary := models.ProductSummary{
			Name:            name,
			URL:             productURL,
			SourceProductID: f.ProductID(productURL),
			PriceMinor:      parsePriceMinor(item.FindMatcher(fkPrice).First().Text()),
			Rating:          parseRating(item.FindMatcher(fkRating).First().Text()),
		}
		if src, ok := item.FindMatcher(fkImage).First().Attr("src"); ok {
			summary.ImageURL = src
		}
		set.Items = append(set.Items, summary)
		return true
	})

	return set, nil
}

func (f *Flipkart) ExtractProductDetails(page *models.RawPage) (*models.ProductDetails, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unparseable product page", err)
	}

	name := cleanText(doc.FindMatcher(fkProductTitle).First().Text())
	if name == "" {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "product title element missing", nil)
	}

	details := &models.ProductDetails{
		Name:        name,
		Description: f.extractDescription(doc),
		RatingAvg:   parseRating(doc.FindMatcher(fkRating).First().Text()),
		ReviewCount: f.extractReviewCount(doc),
		PriceMinor:  parsePriceMinor(doc.FindMatcher(fkPrice).First().Text()),
		Category:    cleanText(doc.FindMatcher(fkBreadcrumb).First().Text()),
	}
	if src, ok := doc.FindMatcher(fkImage).First().Attr("src"); ok {
		details.ImageURL = src
	}
	return details, nil
}

func (f *Flipkart) ExtractReviewBatch(page *models.RawPage) (*models.ReviewBatch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unparseable review page", err)
	}

	now := time.Now()
	batch := &models.ReviewBatch{}
	doc.FindMatcher(fkReviewItem).Each(func(_ int, div *goquery.Selection) {
		textSel := div.FindMatcher(fkReviewText).First()
		// Collapsed reviews keep their full body in data-full-text
		// behind the READ MORE toggle.
		text := cleanText(textSel.AttrOr("data-full-text", ""))
		if text == "" {
			text = cleanText(textSel.Text())
		}
		text = strings.TrimSuffix(text, "READ MORE")
		if text = strings.TrimSpace(text); text == "" {
			return
		}

		var rating float64
		if r := parseRating(div.FindMatcher(fkRating).First().Text()); r != nil {
			rating = *r
		}
		author := cleanText(div.FindMatcher(fkReviewAuthor).First().Text())
		if author == "" {
			author = "Anonymous"
		}

		batch.Reviews = append(batch.Reviews, models.ReviewRecord{
			Title:        cleanText(div.FindMatcher(fkReviewTitle).First().Text()),
			Text:         text,
			Rating:       rating,
			Author:       author,
			Verified:     strings.Contains(div.Text(), "Certified Buyer"),
			PublishedAt:  parseReviewDate(div.FindMatcher(fkReviewDate).Last().Text(), now),
			HelpfulCount: parseCount(div.FindMatcher(fkHelpful).First().Text()),
		})
	})

	batch.HasMore = len(batch.Reviews) >= f.ShortPageThreshold()
	return batch, nil
}

func (f *Flipkart) extractDescription(doc *goquery.Document) string {
	descSel := doc.FindMatcher(fkDescription).First()
	parts := descSel.FindMatcher(fkDescParts)
	if parts.Length() > 0 {
		var texts []string
		parts.Each(func(_ int, p *goquery.Selection) {
			if t := cleanText(p.Text()); t != "" {
				texts = append(texts, t)
			}
		})
		return strings.Join(texts, " ")
	}
	return cleanText(descSel.Text())
}

func (f *Flipkart) extractReviewCount(doc *goquery.Document) int {
	text := doc.FindMatcher(fkReviewCount).First().Text()
	if m := reFlipkartCount.FindStringSubmatch(text); m != nil {
		return parseCount(m[1])
	}
	return 0
}
