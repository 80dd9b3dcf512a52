// Package api provides the edge worker's HTTP surface: the catch-all
// proxy route that intercepts page requests, the websocket channel pages
// use for the report cache protocol, and the metrics and health
// endpoints.
package api

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/observability"
	"github.com/beautycare/edgecache/internal/worker"
)

// Server fronts the upstream origin with the caching worker.
type Server struct {
	echo    *echo.Echo
	worker  *worker.Worker
	hub     *Hub
	metrics *observability.Metrics
	log     logger.Logger
	proxy   *httputil.ReverseProxy
}

// NewServer wires the HTTP surface. The upstream URL must be the same
// origin the worker's fetcher targets, so that pass-through and
// intercepted requests see the same site.
func NewServer(w *worker.Worker, hub *Hub, upstream string, metrics *observability.Metrics, log logger.Logger) (*Server, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		worker:  w,
		hub:     hub,
		metrics: metrics,
		log:     log,
		proxy:   httputil.NewSingleHostReverseProxy(target),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/ws", s.hub.HandleWS)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.Any("/*", s.handleRequest)
}

// handleHealth reports the worker's lifecycle state.
func (s *Server) handleHealth(c echo.Context) error {
	state := s.worker.State()
	status := http.StatusOK
	if state != worker.StateActive {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"state": state.String(),
		"pages": s.hub.PageCount(),
	})
}

// handleRequest is the fetch interception point. Only GET requests are
// routed through a caching strategy; every other method passes through
// to the origin untouched.
func (s *Server) handleRequest(c echo.Context) error {
	req := c.Request()

	if req.Method != http.MethodGet {
		s.proxy.ServeHTTP(c.Response(), req)
		return nil
	}

	entry, err := s.worker.HandleFetch(req.Context(), worker.Request{
		Path:        req.URL.Path,
		Query:       req.URL.RawQuery,
		AcceptsHTML: strings.Contains(req.Header.Get("Accept"), "text/html"),
	})
	if err != nil {
		s.log.Warn("fetch failed with no fallback",
			logger.String("path", req.URL.Path),
			logger.Error(err))
		return c.NoContent(http.StatusBadGateway)
	}

	h := c.Response().Header()
	for key, values := range entry.Header {
		// Blob sets Content-Type; Content-Length is recomputed for the
		// snapshot body.
		if key == "Content-Type" || key == "Content-Length" {
			continue
		}
		for _, v := range values {
			h.Add(key, v)
		}
	}
	return c.Blob(entry.Status, entry.ContentType(), entry.Body)
}

// Start runs the server until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", logger.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and disconnects all pages.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
