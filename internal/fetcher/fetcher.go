// Package fetcher downloads remote documents for the hearing connectors.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body. Retryable
	// failures (429, 5xx, network timeouts) are returned as
	// resilience.TransientError.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
