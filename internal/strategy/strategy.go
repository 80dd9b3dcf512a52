// Package strategy implements the two request-handling policies of the
// edge worker: cache-first for static assets and network-first with
// fallback for dynamic report resources. Both operate on the shared
// cache store and degrade to the offline fallback document rather than
// failing where the policy defines a fallback.
package strategy

import (
	"context"
	"strings"

	"github.com/beautycare/edgecache/internal/cachestore"
	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/observability"
)

// Request carries the parts of an intercepted GET request a strategy
// needs: the origin-relative path and whether the requester accepts an
// HTML document (drives offline-fallback eligibility on the static path).
type Request struct {
	Path        string
	AcceptsHTML bool
}

// Strategy serves an intercepted request from cache, network, or the
// offline fallback, per its policy. The returned entry is what goes back
// to the requester; an error means the failure had no defined fallback
// and must surface as a failed fetch.
type Strategy interface {
	Serve(ctx context.Context, req Request) (*cachestore.Entry, error)
	Name() string
}

// CacheFirst serves from the cache when possible and only consults the
// network on a miss. Used for static assets, which do not change within
// a deployed generation.
type CacheFirst struct {
	cache      cachestore.Cache
	fetcher    Fetcher
	offlineURL string
	metrics    *observability.Metrics
	log        logger.Logger
}

// NewCacheFirst creates the static-asset strategy.
func NewCacheFirst(cache cachestore.Cache, fetcher Fetcher, offlineURL string, metrics *observability.Metrics, log logger.Logger) *CacheFirst {
	return &CacheFirst{
		cache:      cache,
		fetcher:    fetcher,
		offlineURL: offlineURL,
		metrics:    metrics,
		log:        log,
	}
}

// Name identifies the strategy in logs and metrics.
func (s *CacheFirst) Name() string { return "cache-first" }

// Serve looks up the cache first; on a hit it returns immediately with no
// network call and no freshness check. On a miss it fetches, stores
// successful responses, and returns the network response. If the fetch
// fails and the requester accepts HTML, the offline fallback document is
// served from the cache instead of propagating the failure.
func (s *CacheFirst) Serve(ctx context.Context, req Request) (*cachestore.Entry, error) {
	if entry, ok := s.cache.Get(req.Path); ok {
		s.metrics.CacheHits.WithLabelValues(s.Name()).Inc()
		return entry, nil
	}
	s.metrics.CacheMisses.WithLabelValues(s.Name()).Inc()

	entry, err := s.fetcher.Fetch(ctx, req.Path)
	if err != nil {
		s.metrics.FetchFailures.Inc()
		if req.AcceptsHTML {
			if offline, ok := s.cache.Get(s.offlineURL); ok {
				s.metrics.OfflineFallbacks.Inc()
				s.log.Info("serving offline fallback",
					logger.String("path", req.Path),
					logger.String("strategy", s.Name()))
				return offline, nil
			}
		}
		return nil, err
	}

	if entry.OK() {
		s.cache.Put(req.Path, entry)
	}
	return entry, nil
}

// NetworkFirst always tries the network so dynamic report resources
// reflect the latest generated content, falling back to the cache and
// then the offline document when connectivity is gone.
type NetworkFirst struct {
	cache      cachestore.Cache
	fetcher    Fetcher
	offlineURL string
	metrics    *observability.Metrics
	log        logger.Logger
}

// NewNetworkFirst creates the dynamic-resource strategy.
func NewNetworkFirst(cache cachestore.Cache, fetcher Fetcher, offlineURL string, metrics *observability.Metrics, log logger.Logger) *NetworkFirst {
	return &NetworkFirst{
		cache:      cache,
		fetcher:    fetcher,
		offlineURL: offlineURL,
		metrics:    metrics,
		log:        log,
	}
}

// Name identifies the strategy in logs and metrics.
func (s *NetworkFirst) Name() string { return "network-first" }

// Serve fetches from the network, storing successful responses over any
// prior cached value. On network failure it returns the cached copy if
// one exists; failing that, report and data paths get the offline
// fallback document, and anything else propagates the failure.
func (s *NetworkFirst) Serve(ctx context.Context, req Request) (*cachestore.Entry, error) {
	entry, err := s.fetcher.Fetch(ctx, req.Path)
	if err == nil {
		if entry.OK() {
			s.cache.Put(req.Path, entry)
			s.log.Debug("updated cache",
				logger.String("path", req.Path),
				logger.String("strategy", s.Name()))
		}
		return entry, nil
	}
	s.metrics.FetchFailures.Inc()

	if cached, ok := s.cache.Get(req.Path); ok {
		s.metrics.CacheHits.WithLabelValues(s.Name()).Inc()
		s.log.Info("network down, served from cache",
			logger.String("path", req.Path))
		return cached, nil
	}
	s.metrics.CacheMisses.WithLabelValues(s.Name()).Inc()

	if isReportOrData(req.Path) {
		if offline, ok := s.cache.Get(s.offlineURL); ok {
			s.metrics.OfflineFallbacks.Inc()
			s.log.Info("serving offline fallback",
				logger.String("path", req.Path),
				logger.String("strategy", s.Name()))
			return offline, nil
		}
	}
	return nil, err
}

// isReportOrData reports whether the path belongs to the report/data
// namespace that is entitled to the offline fallback.
func isReportOrData(path string) bool {
	return strings.Contains(path, "/reports/") || strings.Contains(path, "/data/")
}
