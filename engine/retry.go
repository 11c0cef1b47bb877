package engine

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Orchestrator drives bounded retry attempts with exponential backoff and
// jitter. A block verdict forces an identity rotation before the next
// attempt — retrying a blocked fetch on the same identity is the one
// mistake this layer exists to prevent.
type Orchestrator struct {
	fetcher  Fetcher
	pool     *SessionPool
	limiter  *RateLimiter
	detector *BlockDetector
	cfg      config.HarvestConfig
	rng      *rand.Rand

	// backoffUnit scales backoffBase^attempt. Production keeps the
	// one-second unit; tests shrink it.
	backoffUnit time.Duration
}

// NewOrchestrator wires the resilience stack for one harvest.
func NewOrchestrator(fetcher Fetcher, pool *SessionPool, limiter *RateLimiter, detector *BlockDetector, cfg config.HarvestConfig, rng *rand.Rand) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.BackoffBase <= 1 {
		cfg.BackoffBase = 2.0
	}
	return &Orchestrator{
		fetcher:     fetcher,
		pool:        pool,
		limiter:     limiter,
		detector:    detector,
		cfg:         cfg,
		rng:         rng,
		backoffUnit: time.Second,
	}
}

// FetchResilient fetches url with up to MaxRetries attempts, returning
// the first page that classifies Ok. On exhaustion it surfaces the kind
// of the last failure: BLOCKED for block/malformed verdicts,
// NETWORK_FAILURE for transport errors.
func (o *Orchestrator) FetchResilient(ctx context.Context, url string) (*models.RawPage, error) {
	var lastErr error

	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := o.pool.Current()
		if err := o.limiter.Wait(ctx, id.ID); err != nil {
			return nil, err
		}

		page, err := o.fetcher.Fetch(ctx, url, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("fetch attempt failed",
				"url", url,
				"attempt", attempt+1,
				"identity", id.ID,
				"error", err,
			)
			lastErr = models.NewHarvestError(models.ErrCodeNetworkFailure, "fetch failed after retries", err)
			if attempt+1 < o.cfg.MaxRetries {
				if err := o.sleep(ctx, o.backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		verdict, reason := o.detector.Classify(page)
		if verdict == VerdictOk {
			return page, nil
		}

		slog.Warn("fetch attempt blocked",
			"url", url,
			"attempt", attempt+1,
			"identity", id.ID,
			"verdict", verdict.String(),
			"reason", reason,
			"status", page.StatusCode,
		)
		lastErr = models.NewHarvestError(models.ErrCodeBlocked, "blocked after retries: "+reason, nil)

		// Rotation is mandatory after every block, including on the final
		// attempt: the pool outlives this call and the next fetch must not
		// run on a burned identity. Only the backoff skips the last attempt.
		o.pool.Rotate()
		if attempt+1 < o.cfg.MaxRetries {
			if err := o.sleep(ctx, o.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = models.NewHarvestError(models.ErrCodeNetworkFailure, "no attempts made", nil)
	}
	return nil, lastErr
}

// backoff computes backoffBase^attempt units plus uniform jitter.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(o.cfg.BackoffBase, float64(attempt)) * float64(o.backoffUnit))
	if band := o.cfg.JitterMax - o.cfg.JitterMin; band > 0 {
		d += o.cfg.JitterMin + time.Duration(o.rng.Int63n(int64(band)))
	} else {
		d += o.cfg.JitterMin
	}
	return d
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
