package engine

import (
	"context"

	"github.com/use-agent/harvest/models"
)

// Fetcher is the interface both fetch transports implement. A fetch
// consumes one unit of the identity's request budget whether or not it
// succeeds.
type Fetcher interface {
	// Name returns the transport identifier (e.g. "http", "browser").
	Name() string

	// Fetch retrieves the page content for url, presenting the given
	// identity's headers and cookies to the target site.
	Fetch(ctx context.Context, url string, id *Identity) (*models.RawPage, error)
}
