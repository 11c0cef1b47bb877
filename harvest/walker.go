// Package harvest composes the resilience stack and the per-source
// extractors into end-to-end product/review acquisition.
package harvest

import (
	"context"
	"log/slog"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/sources"
)

// pageFetcher is the slice of the retry orchestrator the walker needs.
type pageFetcher interface {
	FetchResilient(ctx context.Context, url string) (*models.RawPage, error)
}

// Walker collects reviews across paginated review pages until a stop
// condition fires, deduplicating and bounding output. A failed page after
// retry exhaustion ends the walk with whatever was collected — partial
// data beats discarded data.
type Walker struct {
	fetcher    pageFetcher
	ext        sources.Extractor
	maxReviews int
}

// NewWalker creates a walker bounded to maxReviews records.
func NewWalker(fetcher pageFetcher, ext sources.Extractor, maxReviews int) *Walker {
	if maxReviews <= 0 {
		maxReviews = 100
	}
	return &Walker{fetcher: fetcher, ext: ext, maxReviews: maxReviews}
}

// Collect walks review pages for productURL. The returned incomplete
// flag is true when the walk stopped early for any reason other than
// having collected enough or reaching the genuine last page.
func (w *Walker) Collect(ctx context.Context, productURL string) ([]models.ReviewRecord, bool, error) {
	collected := make([]models.ReviewRecord, 0, w.maxReviews)
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			// Cancellation keeps what was already collected.
			return collected, true, nil
		}

		pageURL, err := w.ext.ReviewPageURL(productURL, page)
		if err != nil {
			if len(collected) == 0 {
				return nil, false, err
			}
			return collected, true, nil
		}

		raw, err := w.fetcher.FetchResilient(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return collected, true, nil
			}
			// Retry exhaustion mid-walk is not fatal: stop, keep partials.
			slog.Warn("review page fetch exhausted, stopping walk",
				"url", pageURL,
				"page", page,
				"collected", len(collected),
				"error", err,
			)
			return collected, true, nil
		}

		batch, err := w.ext.ExtractReviewBatch(raw)
		if err != nil {
			if len(collected) == 0 {
				return nil, false, err
			}
			slog.Warn("review page extraction failed mid-walk, keeping partials",
				"url", pageURL,
				"page", page,
				"error", err,
			)
			return collected, true, nil
		}

		for _, review := range batch.Reviews {
			if len(collected) >= w.maxReviews {
				break
			}
			key := dedupeKey(review)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			collected = append(collected, review)
		}

		slog.Debug("review page collected",
			"page", page,
			"pageReviews", len(batch.Reviews),
			"total", len(collected),
		)

		// Stop conditions, in order.
		if len(collected) >= w.maxReviews {
			return collected, false, nil
		}
		if len(batch.Reviews) == 0 {
			return collected, false, nil
		}
		if len(batch.Reviews) < w.ext.ShortPageThreshold() {
			// A short page is the last page.
			return collected, false, nil
		}
	}
}

// dedupeKey prefers the source review id; without one, the (author, text)
// pair identifies a review well enough across overlapping pages.
func dedupeKey(r models.ReviewRecord) string {
	if r.SourceReviewID != "" {
		return "id\x00" + r.SourceReviewID
	}
	return r.Author + "\x00" + r.Text
}
