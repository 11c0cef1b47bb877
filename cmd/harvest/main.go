package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/sources"
)

func main() {
	var (
		searchSource = flag.String("search", "", "run a product search on the named source instead of a harvest")
		maxReviews   = flag.Int("max-reviews", 0, "override the configured review cap")
		maxResults   = flag.Int("max-results", 0, "override the configured search result cap")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <product-url>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -search <source> [flags] <query>\n\nflags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// run owns all deferred cleanup (browser shutdown in particular), so
	// os.Exit only happens out here after everything has unwound.
	if err := run(*searchSource, flag.Arg(0), *maxReviews, *maxResults); err != nil {
		slog.Error("harvest failed", "error", err)
		os.Exit(1)
	}
}

func run(searchSource, arg string, maxReviews, maxResults int) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("harvest starting",
		"fetcher", cfg.Fetch.Engine,
		"maxRetries", cfg.Harvest.MaxRetries,
		"sessionBudget", cfg.Session.MaxRequestsPerSession,
	)

	// ── 3. Select the fetch transport ───────────────────────────────
	var fetcher engine.Fetcher
	switch cfg.Fetch.Engine {
	case "browser":
		b, err := browser.New(cfg.Browser, cfg.Fetch.Timeout)
		if err != nil {
			return fmt.Errorf("launch browser transport: %w", err)
		}
		defer b.Close()
		fetcher = engine.NewBrowserEngine(b.FetchFunc())
	default:
		fetcher = engine.NewHTTPEngine(cfg.Fetch.Timeout, cfg.Fetch.Proxy)
	}

	// ── 4. Build the coordinator ────────────────────────────────────
	coord := harvest.NewCoordinator(sources.NewRegistry(), fetcher, cfg)

	// ── 5. Run under signal-driven cancellation ─────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out any
	var err error
	if searchSource != "" {
		out, err = coord.Search(ctx, searchSource, arg, maxResults)
	} else {
		out, err = coord.Harvest(ctx, arg, harvest.Options{MaxReviews: maxReviews})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
