// Package worker implements the edge worker's lifecycle: install
// (pre-populate the static cache), activate (evict stale generations,
// claim connected pages), and the active fetch-routing phase that sends
// every intercepted GET to the strategy matching its classification.
//
// The state machine only moves forward. A new deployment runs a fresh
// worker through the same sequence; if its activation fails the previous
// instance stays in control, so activation errors propagate instead of
// being swallowed.
package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/beautycare/edgecache/internal/cachestore"
	"github.com/beautycare/edgecache/internal/classifier"
	"github.com/beautycare/edgecache/internal/errors"
	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/observability"
	"github.com/beautycare/edgecache/internal/strategy"
)

// precacheParallelism bounds concurrent static-asset fetches at install.
const precacheParallelism = 8

// State is the worker's lifecycle phase.
type State int32

const (
	StateInstalling State = iota
	StateActivating
	StateActive
)

// String returns the state name for logs and health reporting.
func (s State) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "installing"
	}
}

// Claimer takes control of all currently connected pages so they are
// served by this worker instance without reconnecting.
type Claimer interface {
	ClaimAll(generation string)
}

// Config wires a Worker's collaborators.
type Config struct {
	Store        cachestore.Store
	Fetcher      strategy.Fetcher
	Classifier   *classifier.Classifier
	Claimer      Claimer
	Metrics      *observability.Metrics
	Log          logger.Logger
	Generation   string
	StaticAssets []string
	OfflineURL   string
}

// Worker is the lifecycle controller.
type Worker struct {
	store        cachestore.Store
	cache        cachestore.Cache
	fetcher      strategy.Fetcher
	classifier   *classifier.Classifier
	claimer      Claimer
	metrics      *observability.Metrics
	log          logger.Logger
	generation   string
	staticAssets []string
	offlineURL   string

	cacheFirst   strategy.Strategy
	networkFirst strategy.Strategy

	state atomic.Int32
	// skipWaiting records that install completed and the instance is
	// immediately eligible to activate.
	skipWaiting atomic.Bool
}

// New creates a worker in the Installing state.
func New(cfg Config) *Worker {
	return &Worker{
		store:        cfg.Store,
		fetcher:      cfg.Fetcher,
		classifier:   cfg.Classifier,
		claimer:      cfg.Claimer,
		metrics:      cfg.Metrics,
		log:          cfg.Log,
		generation:   cfg.Generation,
		staticAssets: cfg.StaticAssets,
		offlineURL:   cfg.OfflineURL,
	}
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Cache returns the current generation's cache. Valid after Install.
func (w *Worker) Cache() cachestore.Cache {
	return w.cache
}

// Install opens the current generation's cache and attempts to pre-cache
// every static asset. Individual failures are logged and tolerated; a
// degraded partial static cache is preferred over a failed deployment.
// Install concludes by marking the instance eligible to activate
// immediately.
func (w *Worker) Install(ctx context.Context) error {
	if w.State() != StateInstalling {
		return errors.Newf("install called in state %s", w.State()).
			Component("worker").
			Category(errors.CategoryValidation).
			Build()
	}
	w.log.Info("installing", logger.String("generation", w.generation))

	w.cache = w.store.Open(w.generation)
	w.cacheFirst = strategy.NewCacheFirst(w.cache, w.fetcher, w.offlineURL, w.metrics, w.log)
	w.networkFirst = strategy.NewNetworkFirst(w.cache, w.fetcher, w.offlineURL, w.metrics, w.log)

	g, precacheCtx := errgroup.WithContext(ctx)
	g.SetLimit(precacheParallelism)
	for _, asset := range w.staticAssets {
		asset := asset
		g.Go(func() error {
			entry, err := w.fetcher.Fetch(precacheCtx, asset)
			if err == nil && !entry.OK() {
				err = errors.Newf("unexpected status %d", entry.Status).
					Component("worker").
					Category(errors.CategoryNetwork).
					Build()
			}
			if err != nil {
				// Pre-cache failures never abort installation.
				w.metrics.PrecacheFailures.Inc()
				w.log.Warn("failed to pre-cache static asset",
					logger.String("asset", asset),
					logger.Error(err))
				return nil
			}
			w.cache.Put(asset, entry)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; partial cache is accepted

	w.skipWaiting.Store(true)
	w.state.Store(int32(StateActivating))
	w.log.Info("installation completed",
		logger.String("generation", w.generation),
		logger.Int("cached", w.cache.Len()),
		logger.Int("assets", len(w.staticAssets)))
	return nil
}

// Activate evicts every cache generation other than the current one and
// claims all connected pages. An eviction error fails activation and
// propagates, leaving the previous instance in control.
func (w *Worker) Activate(ctx context.Context) error {
	if w.State() != StateActivating {
		return errors.Newf("activate called in state %s", w.State()).
			Component("worker").
			Category(errors.CategoryValidation).
			Build()
	}
	w.log.Info("activating", logger.String("generation", w.generation))

	deleted, err := w.store.EvictOthers(w.generation)
	if err != nil {
		return errors.Newf("evicting stale generations: %w", err).
			Component("worker").
			Category(errors.CategoryCache).
			Context("generation", w.generation).
			Build()
	}
	for _, old := range deleted {
		w.metrics.GenerationsEvicted.Inc()
		w.log.Info("deleted stale cache", logger.String("generation", old))
	}

	if w.claimer != nil {
		w.claimer.ClaimAll(w.generation)
	}

	w.state.Store(int32(StateActive))
	w.log.Info("activation completed", logger.String("generation", w.generation))
	return nil
}

// Request is an intercepted GET request. Path carries no query string;
// the query travels separately so classification sees the bare path
// while parameter variants still cache under distinct keys.
type Request struct {
	Path        string
	Query       string
	AcceptsHTML bool
}

// HandleFetch routes an intercepted GET request to the strategy matching
// its classification. Only the active worker serves requests.
func (w *Worker) HandleFetch(ctx context.Context, req Request) (*cachestore.Entry, error) {
	if w.State() != StateActive {
		return nil, errors.Newf("worker not active").
			Component("worker").
			Category(errors.CategoryValidation).
			Build()
	}

	kind := w.classifier.Classify(req.Path)
	key := req.Path
	if req.Query != "" {
		key += "?" + req.Query
	}
	sreq := strategy.Request{Path: key, AcceptsHTML: req.AcceptsHTML}
	if kind == classifier.Dynamic {
		return w.networkFirst.Serve(ctx, sreq)
	}
	return w.cacheFirst.Serve(ctx, sreq)
}
