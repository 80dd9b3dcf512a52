// Package reports implements the report cache protocol: message-driven
// storage, enumeration, and deletion of per-user report artifacts in the
// shared cache store, with acknowledgements broadcast to every connected
// page. Operations are idempotent; failures of individual artifacts are
// logged and skipped, never aborting the surrounding batch, and the
// protocol defines no failure replies, so callers own their timeouts.
package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/beautycare/edgecache/internal/cachestore"
	"github.com/beautycare/edgecache/internal/errors"
	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/messaging"
	"github.com/beautycare/edgecache/internal/observability"
	"github.com/beautycare/edgecache/internal/strategy"
)

// artifactFetchTimeout bounds each individual artifact fetch so one stuck
// download cannot hold the message pipeline indefinitely.
const artifactFetchTimeout = 30 * time.Second

// Publisher broadcasts a protocol message to every page connected at the
// time of the call. Pages that connect later do not receive it.
type Publisher interface {
	Broadcast(msg any)
}

// Handler executes the three protocol operations against the cache store.
type Handler struct {
	cache     cachestore.Cache
	fetcher   strategy.Fetcher
	publisher Publisher
	metrics   *observability.Metrics
	log       logger.Logger

	// now is swappable for deterministic timestamps in tests.
	now func() time.Time
}

// NewHandler creates a protocol handler over the given cache and fetcher.
func NewHandler(cache cachestore.Cache, fetcher strategy.Fetcher, publisher Publisher, metrics *observability.Metrics, log logger.Logger) *Handler {
	return &Handler{
		cache:     cache,
		fetcher:   fetcher,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// HandleMessage routes an inbound envelope to the matching operation.
// Unknown types are ignored. Intended as a messaging.Bus handler.
func (h *Handler) HandleMessage(env *messaging.Envelope) {
	switch env.Type {
	case TypeCacheReport:
		var req CacheReportRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.log.Warn("malformed CACHE_REPORT payload", logger.Error(err))
			return
		}
		h.CacheReport(context.Background(), &req)
	case TypeGetCachedReports:
		var req UserRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.log.Warn("malformed GET_CACHED_REPORTS payload", logger.Error(err))
			return
		}
		h.ListCachedReports(req.UserID)
	case TypeClearCache:
		var req UserRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.log.Warn("malformed CLEAR_CACHE payload", logger.Error(err))
			return
		}
		h.ClearUserCache(req.UserID)
	}
}

// CacheReport stores a report's artifacts: the PDF under its own URL key,
// inline JSON under the fixed per-user key, and each card independently.
// A failed artifact is logged and skipped; the REPORT_CACHED
// acknowledgement is broadcast once every sub-operation has completed.
func (h *Handler) CacheReport(ctx context.Context, req *CacheReportRequest) {
	if req.ReportData.PDFURL != "" {
		if err := h.fetchAndStore(ctx, req.ReportData.PDFURL); err != nil {
			h.log.Warn("failed to cache PDF report",
				logger.String("user_id", req.UserID.String()),
				logger.String("url", req.ReportData.PDFURL),
				logger.Error(err))
			h.metrics.ReportArtifacts.WithLabelValues("failed").Inc()
		} else {
			h.metrics.ReportArtifacts.WithLabelValues("cached").Inc()
		}
	}

	if len(req.ReportData.JSONData) > 0 && string(req.ReportData.JSONData) != "null" {
		key := JSONKey(req.UserID)
		h.cache.Put(key, &cachestore.Entry{
			URL:    key,
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"application/json"}},
			Body:   req.ReportData.JSONData,
		})
		h.metrics.ReportArtifacts.WithLabelValues("cached").Inc()
		h.log.Debug("cached JSON data", logger.String("key", key))
	}

	for _, cardURL := range req.ReportData.CardURLs {
		if err := h.fetchAndStore(ctx, cardURL); err != nil {
			// One failed card must not abort the remaining cards.
			h.log.Warn("failed to cache card",
				logger.String("user_id", req.UserID.String()),
				logger.String("url", cardURL),
				logger.Error(err))
			h.metrics.ReportArtifacts.WithLabelValues("failed").Inc()
			continue
		}
		h.metrics.ReportArtifacts.WithLabelValues("cached").Inc()
	}

	ts := h.now().UnixMilli()
	h.log.Debug("report cached",
		logger.String("user_id", req.UserID.String()),
		logger.Int64("timestamp", ts))
	h.broadcast(TypeReportCached, ReportCached{
		Type:      TypeReportCached,
		UserID:    req.UserID,
		Timestamp: ts,
	})
}

// ListCachedReports enumerates the user's cached PDF and JSON artifacts
// and broadcasts the list. A user with nothing cached gets an empty list,
// not an error.
func (h *Handler) ListCachedReports(userID UserID) {
	reports := make([]ReportInfo, 0)
	for _, key := range h.cache.Keys() {
		if !inUserNamespace(key, userID) || !isReportArtifact(key) {
			continue
		}
		entry, ok := h.cache.Get(key)
		if !ok {
			continue
		}
		kind := "json"
		if containsPDF(entry.ContentType()) {
			kind = "pdf"
		}
		reports = append(reports, ReportInfo{
			URL:      key,
			Kind:     kind,
			CachedAt: entry.CachedAt.UnixMilli(),
		})
	}

	h.broadcast(TypeCachedReportsList, CachedReportsList{
		Type:    TypeCachedReportsList,
		UserID:  userID,
		Reports: reports,
	})
}

// ClearUserCache deletes every entry in the user's namespace and
// broadcasts the deleted keys. Clearing an empty namespace reports an
// empty list.
func (h *Handler) ClearUserCache(userID UserID) {
	deleted := make([]string, 0)
	for _, key := range h.cache.Keys() {
		if !inUserNamespace(key, userID) {
			continue
		}
		if h.cache.Delete(key) {
			deleted = append(deleted, key)
		}
	}
	h.log.Info("cleared user cache",
		logger.String("user_id", userID.String()),
		logger.Int("deleted", len(deleted)))

	h.broadcast(TypeCacheCleared, CacheCleared{
		Type:        TypeCacheCleared,
		UserID:      userID,
		DeletedURLs: deleted,
	})
}

// fetchAndStore fetches an artifact URL and stores successful responses
// under the URL key.
func (h *Handler) fetchAndStore(ctx context.Context, url string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, artifactFetchTimeout)
	defer cancel()

	entry, err := h.fetcher.Fetch(fetchCtx, url)
	if err != nil {
		return err
	}
	if !entry.OK() {
		return errStatus(entry.Status, url)
	}
	h.cache.Put(url, entry)
	return nil
}

func (h *Handler) broadcast(msgType string, msg any) {
	h.metrics.BroadcastsSent.WithLabelValues(msgType).Inc()
	h.publisher.Broadcast(msg)
}

func containsPDF(contentType string) bool {
	return strings.Contains(contentType, "pdf")
}

// errStatus converts a non-2xx artifact response into an error so the
// artifact is treated as failed rather than cached.
func errStatus(status int, url string) error {
	return errors.Newf("unexpected status %d", status).
		Component("reports").
		Category(errors.CategoryNetwork).
		Context("url", url).
		Build()
}
