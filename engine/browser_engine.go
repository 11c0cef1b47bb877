package engine

import (
	"context"
	"fmt"

	"github.com/use-agent/harvest/models"
)

// BrowserFetchFunc is the callback type that wraps the rod-based page
// fetch. It is injected from main to avoid a circular import
// (engine/ -> browser/).
type BrowserFetchFunc func(ctx context.Context, url string, id *Identity) (*models.RawPage, error)

// BrowserEngine is the browser-rendered transport, used for sources that
// serve challenge pages requiring script execution. It delegates to the
// injected callback and shares the retry/pagination stack with the HTTP
// transport.
type BrowserEngine struct {
	fetchFunc BrowserFetchFunc
}

// NewBrowserEngine creates a BrowserEngine around the given callback.
func NewBrowserEngine(fetchFunc BrowserFetchFunc) *BrowserEngine {
	return &BrowserEngine{fetchFunc: fetchFunc}
}

func (e *BrowserEngine) Name() string { return "browser" }

func (e *BrowserEngine) Fetch(ctx context.Context, url string, id *Identity) (*models.RawPage, error) {
	if e.fetchFunc == nil {
		return nil, fmt.Errorf("browser engine: fetchFunc not configured")
	}
	id.Consume()
	return e.fetchFunc(ctx, url, id)
}
