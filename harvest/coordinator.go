package harvest

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/sources"
)

// Coordinator is the top-level entry point: one call harvests product
// details plus reviews for a single product URL. Each harvest builds its
// own session pool, rate limiter, and orchestrator, so concurrent
// harvests never share identity or timing state.
type Coordinator struct {
	registry *sources.Registry
	fetcher  engine.Fetcher
	cfg      *config.Config
	seed     int64
}

// Options override per-call collection bounds. Zero values fall back to
// the configured defaults.
type Options struct {
	MaxReviews int
	MaxResults int
}

// NewCoordinator creates a coordinator using the given fetch transport.
func NewCoordinator(registry *sources.Registry, fetcher engine.Fetcher, cfg *config.Config) *Coordinator {
	seed := cfg.Harvest.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Coordinator{
		registry: registry,
		fetcher:  fetcher,
		cfg:      cfg,
		seed:     seed,
	}
}

// newStack builds the per-harvest resilience stack. The pool and limiter
// share one seeded random source; rotation eagerly drops the retired
// identity's limiter state.
func (c *Coordinator) newStack() *engine.Orchestrator {
	rng := rand.New(rand.NewSource(c.seed))
	pool := engine.NewSessionPool(c.cfg.Session, rng)
	limiter := engine.NewRateLimiter(c.cfg.Harvest.MinDelay, c.cfg.Harvest.MaxDelay, rng)
	pool.OnRetire(limiter.Forget)
	detector := engine.NewBlockDetector(c.cfg.Harvest.BlockPhrases)
	return engine.NewOrchestrator(c.fetcher, pool, limiter, detector, c.cfg.Harvest, rng)
}

// Harvest acquires product details and reviews for one product URL.
// It returns an error only on UNSUPPORTED_PAGE or total failure; a
// partial result comes back with Incomplete set instead.
func (c *Coordinator) Harvest(ctx context.Context, productURL string, opts Options) (*models.HarvestResult, error) {
	ext, err := c.registry.ForURL(productURL)
	if err != nil {
		return nil, err
	}

	maxReviews := opts.MaxReviews
	if maxReviews <= 0 {
		maxReviews = c.cfg.Harvest.MaxReviews
	}

	orch := c.newStack()

	slog.Info("harvest starting",
		"source", ext.Source(),
		"url", productURL,
		"maxReviews", maxReviews,
	)

	var product *models.ProductDetails
	raw, err := orch.FetchResilient(ctx, productURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Product page unreachable. The review walk below may still
		// produce data, so this alone is not fatal.
		slog.Warn("product page fetch exhausted", "url", productURL, "error", err)
	} else {
		product, err = ext.ExtractProductDetails(raw)
		if err != nil {
			// Structural mismatch: never retried, surfaced immediately.
			return nil, err
		}
	}

	walker := NewWalker(orch, ext, maxReviews)
	reviews, incomplete, err := walker.Collect(ctx, productURL)
	if err != nil {
		if product == nil {
			return nil, err
		}
		// Keep the product; note the failed walk.
		slog.Warn("review walk failed, keeping product details", "url", productURL, "error", err)
		reviews, incomplete = nil, true
	}

	if product == nil && len(reviews) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeNetworkFailure, "harvest produced no data for "+productURL, nil)
	}
	if product == nil {
		incomplete = true
	}

	result := &models.HarvestResult{
		Source:      ext.Source(),
		ProductID:   ext.ProductID(productURL),
		ProductURL:  productURL,
		Product:     product,
		Reviews:     reviews,
		Incomplete:  incomplete,
		HarvestedAt: time.Now(),
	}
	slog.Info("harvest finished",
		"source", ext.Source(),
		"url", productURL,
		"reviews", len(reviews),
		"incomplete", incomplete,
	)
	return result, nil
}

// Search runs a product search on the named source and extracts up to
// maxResults product summaries.
func (c *Coordinator) Search(ctx context.Context, source, query string, maxResults int) (*models.SearchResultSet, error) {
	ext, err := c.registry.ByName(source)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = c.cfg.Harvest.MaxResults
	}

	orch := c.newStack()

	raw, err := orch.FetchResilient(ctx, ext.SearchURL(query))
	if err != nil {
		return nil, err
	}
	return ext.ExtractSearchResults(raw, maxResults)
}
