package strategy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beautycare/edgecache/internal/cachestore"
	"github.com/beautycare/edgecache/internal/errors"
)

// Fetcher retrieves an origin-relative path from the upstream and returns
// it as a response snapshot. A non-2xx status is not an error; an error
// means no response was obtained at all.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*cachestore.Entry, error)
}

// HTTPFetcher fetches from a fixed upstream origin over HTTP.
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPFetcher creates a fetcher against the given upstream origin
// (scheme://host[:port]). A zero timeout disables the client timeout.
func NewHTTPFetcher(upstream string, timeout time.Duration) (*HTTPFetcher, error) {
	base, err := url.Parse(upstream)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid upstream origin %q", upstream).
			Component("strategy").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &HTTPFetcher{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch performs a GET against upstream+path and snapshots the response.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) (*cachestore.Entry, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, errors.Newf("invalid request path %q: %w", path, err).
			Component("strategy").
			Category(errors.CategoryValidation).
			Build()
	}
	target := f.base.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &cachestore.Entry{
		URL:    path,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
