// Package sources holds the per-site extraction contract: each supported
// source parses raw pages into typed records behind one capability
// interface, selected through a name-keyed registry.
package sources

import (
	"net/url"
	"strings"

	"github.com/use-agent/harvest/models"
)

// Extractor is the capability contract one source site implements.
// All extraction is best effort: missing optional fields stay zero, and
// the only hard failure is a missing primary identity (product name or
// source product id), which signals a markup change or an undetected
// block and must surface as UNSUPPORTED_PAGE rather than retry.
type Extractor interface {
	// Source returns the registry key, e.g. "amazon".
	Source() string

	// ProductID extracts the source-specific product id embedded in a
	// product URL, or "" when no known pattern matches.
	ProductID(rawURL string) string

	// SearchURL builds the source's search page URL for a query.
	SearchURL(query string) string

	// ReviewPageURL builds the URL of the nth review page (1-based) for
	// a product URL.
	ReviewPageURL(productURL string, page int) (string, error)

	// ShortPageThreshold is the review count under which a page is
	// taken to be the last one.
	ShortPageThreshold() int

	// ExtractSearchResults parses a search page into product summaries.
	ExtractSearchResults(page *models.RawPage, maxResults int) (*models.SearchResultSet, error)

	// ExtractProductDetails parses a product page.
	ExtractProductDetails(page *models.RawPage) (*models.ProductDetails, error)

	// ExtractReviewBatch parses one review page. Reviews with empty text
	// are dropped here, never surfaced.
	ExtractReviewBatch(page *models.RawPage) (*models.ReviewBatch, error)
}

// Registry resolves extractors by source name or by product URL.
type Registry struct {
	byName map[string]Extractor
	// hostHints maps a hostname substring to a source name.
	hostHints map[string]string
}

// NewRegistry creates a registry with the built-in sources registered.
func NewRegistry() *Registry {
	r := &Registry{
		byName:    make(map[string]Extractor),
		hostHints: make(map[string]string),
	}
	r.Register(NewAmazon(), "amazon")
	r.Register(NewFlipkart(), "flipkart")
	return r
}

// Register adds an extractor under its source name, matchable by any URL
// whose hostname contains one of the given hints.
func (r *Registry) Register(ext Extractor, hostHints ...string) {
	r.byName[ext.Source()] = ext
	for _, hint := range hostHints {
		r.hostHints[strings.ToLower(hint)] = ext.Source()
	}
}

// ByName returns the extractor registered under name.
func (r *Registry) ByName(name string) (Extractor, error) {
	ext, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "unknown source: "+name, nil)
	}
	return ext, nil
}

// ForURL resolves the extractor responsible for a product URL by
// hostname. Unknown hosts are UNSUPPORTED_PAGE: there is no extractor to
// retry with.
func (r *Registry) ForURL(rawURL string) (Extractor, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, models.NewHarvestError(models.ErrCodeInvalidInput, "unparseable product URL", err)
	}
	host := strings.ToLower(u.Hostname())
	for hint, name := range r.hostHints {
		if strings.Contains(host, hint) {
			return r.byName[name], nil
		}
	}
	return nil, models.NewHarvestError(models.ErrCodeUnsupportedPage, "no extractor for host "+host, nil)
}
