package models

import "time"

// RawPage is the raw content of one fetch attempt. It is created per
// attempt, classified once, extracted once, and then discarded — nothing
// in the core caches it.
type RawPage struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	Body         []byte
	ContentType  string
	FetchedAt    time.Time
}

// ProductSummary is one entry of a search result page.
type ProductSummary struct {
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	SourceProductID string   `json:"source_product_id,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	PriceMinor      *int64   `json:"price_minor,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
}

// SearchResultSet is the extraction result of a search page.
type SearchResultSet struct {
	Items []ProductSummary `json:"items"`
}

// ProductDetails is the extraction result of a product page.
// Optional fields are nil/zero when the markup did not yield them.
type ProductDetails struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	PriceMinor  *int64   `json:"price_minor,omitempty"`
	RatingAvg   *float64 `json:"rating_avg,omitempty"`
	ReviewCount int      `json:"review_count"`
	Category    string   `json:"category,omitempty"`
}

// ReviewRecord is one customer review. Records with empty Text are dropped
// at extraction and never reach callers.
type ReviewRecord struct {
	Title          string     `json:"title,omitempty"`
	Text           string     `json:"text"`
	Rating         float64    `json:"rating"`
	Author         string     `json:"author"`
	Verified       bool       `json:"verified"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	HelpfulCount   int        `json:"helpful_count"`
	SourceReviewID string     `json:"source_review_id,omitempty"`
}

// ReviewBatch is the extraction result of one review page.
type ReviewBatch struct {
	Reviews []ReviewRecord `json:"reviews"`
	HasMore bool           `json:"has_more"`
}

// HarvestResult is the output of one end-to-end harvest. Incomplete marks
// a successful-but-partial result (pagination stopped early after retry
// exhaustion or cancellation); it is not an error.
type HarvestResult struct {
	Source      string          `json:"source"`
	ProductID   string          `json:"product_id,omitempty"`
	ProductURL  string          `json:"product_url"`
	Product     *ProductDetails `json:"product"`
	Reviews     []ReviewRecord  `json:"reviews"`
	Incomplete  bool            `json:"incomplete"`
	HarvestedAt time.Time       `json:"harvested_at"`
}
