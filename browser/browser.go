// Package browser provides the browser-rendered fetch transport: a
// stealth-flagged Chromium instance whose pages execute the target's
// scripts before the rendered HTML is handed back to the harvest engine.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// blockedResourceTypes lists resources never needed for extraction.
// Skipping them cuts page weight and looks no different to the server
// than a browser with images disabled.
var blockedResourceTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeImage:      {},
	proto.NetworkResourceTypeStylesheet: {},
	proto.NetworkResourceTypeFont:       {},
	proto.NetworkResourceTypeMedia:      {},
}

// Browser manages the Chromium lifecycle and the page pool.
// It is safe for concurrent use.
type Browser struct {
	browser *rod.Browser
	pool    rod.Pool[rod.Page]
	cfg     config.BrowserConfig
	timeout time.Duration
}

// New launches a headless browser with anti-detection flags and
// initialises the reusable page pool.
func New(cfg config.BrowserConfig, timeout time.Duration) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 4
	}
	return &Browser{
		browser: b,
		pool:    rod.NewPagePool(cfg.MaxPages),
		cfg:     cfg,
		timeout: timeout,
	}, nil
}

// FetchFunc returns the callback the engine.BrowserEngine delegates to.
func (b *Browser) FetchFunc() engine.BrowserFetchFunc {
	return b.fetch
}

// fetch renders url in a pooled tab under the identity's headers and
// cookies and returns the post-script HTML.
//
// Order matters: stealth injection and the resource-blocking hijack must
// be installed before navigation or they do not apply to the load.
func (b *Browser) fetch(ctx context.Context, targetURL string, id *engine.Identity) (*models.RawPage, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	page, acquireErr := b.pool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", acquireErr)
	}

	// Cleanup uses the ORIGINAL page reference (without request context)
	// so the pool return succeeds even after the context has expired.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		b.pool.Put(page)
	}()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	// Identity headers plus a search-engine referer when none is set:
	// arriving from a search result is the least suspicious entry path.
	extraHeaders := make(map[string]string, len(id.Headers)+1)
	if _, hasReferer := id.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(targetURL); parseErr == nil {
			extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range id.Headers {
		extraHeaders[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extraHeaders)}.Call(page)
	if ua, ok := id.Headers["User-Agent"]; ok {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: ua}.Call(page)
	}

	for _, cookie := range id.Cookies {
		domain := cookie.Domain
		if domain == "" {
			if u, parseErr := url.Parse(targetURL); parseErr == nil {
				domain = u.Host
			}
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		_, _ = proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}.Call(page)
	}

	router := setupHijack(page)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if navErr := p.Navigate(targetURL); navErr != nil {
		return nil, categorizeNavError(navErr)
	}

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	// A short scroll pass loads lazy review containers and reads as
	// human pacing to behavioral detectors.
	_, _ = p.Eval(`() => window.scrollTo(0, document.body.scrollHeight / 2)`)
	_, _ = p.Eval(`() => window.scrollTo(0, 0)`)

	// Status code via the performance API: no CDP event listeners needed,
	// which avoids the Fetch-domain conflict with HijackRequests.
	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}
	if statusCode == 0 {
		statusCode = 200
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeNavError(htmlErr)
	}

	finalURL := targetURL
	if res, err := p.Eval(`() => window.location.href`); err == nil && res.Value.Str() != "" {
		finalURL = res.Value.Str()
	}

	return &models.RawPage{
		RequestedURL: targetURL,
		FinalURL:     finalURL,
		StatusCode:   statusCode,
		Body:         []byte(rawHTML),
		ContentType:  "text/html",
		FetchedAt:    time.Now(),
	}, nil
}

// Close drains the page pool and kills the browser process.
// Call this on shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining page pool")
	b.pool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	b.browser.MustClose()
	slog.Info("browser shutdown complete")
}

// setupHijack installs a request interceptor that drops heavyweight
// resource types. Returns the running router so the caller can Stop it.
func setupHijack(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, drop := blockedResourceTypes[ctx.Request.Type()]; drop {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It exits when router.Stop() is called.
	go router.Run()

	return router
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders
// type (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeNavError wraps raw rod errors into typed fetch failures so
// the orchestrator retries them like any other transport error.
func categorizeNavError(err error) *models.HarvestError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewHarvestError(models.ErrCodeFetchTimeout, "page load timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewHarvestError(models.ErrCodeFetchTimeout, "page load canceled", err)
	default:
		return models.NewHarvestError(models.ErrCodeFetchConnection, "navigation failed", err)
	}
}
