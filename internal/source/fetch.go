// Package source downloads remote image blobs for URL-based ingest.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher retrieves image blobs over HTTP.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewFetcher creates a fetcher with the given request timeout and response
// size cap.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads url and returns the raw body bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status())
	}

	body := resp.Body()
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("fetching %s: response of %d bytes exceeds limit of %d", url, len(body), f.maxBytes)
	}
	return body, nil
}
