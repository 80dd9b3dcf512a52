package worker

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautycare/edgecache/internal/cachestore"
	"github.com/beautycare/edgecache/internal/classifier"
	"github.com/beautycare/edgecache/internal/conf"
	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/observability"
)

// countingFetcher serves canned bodies per path, counts calls, and fails
// paths without a canned body.
type countingFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	calls   map[string]int
	failAll bool
}

func newCountingFetcher(bodies map[string]string) *countingFetcher {
	return &countingFetcher{bodies: bodies, calls: map[string]int{}}
}

func (f *countingFetcher) Fetch(ctx context.Context, path string) (*cachestore.Entry, error) {
	f.mu.Lock()
	f.calls[path]++
	body, ok := f.bodies[path]
	failAll := f.failAll
	f.mu.Unlock()

	if failAll || !ok {
		return nil, assert.AnError
	}
	contentType := "text/html"
	if len(path) > 4 && path[len(path)-4:] == ".css" {
		contentType = "text/css"
	}
	return &cachestore.Entry{
		URL:    path,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   []byte(body),
	}, nil
}

func (f *countingFetcher) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// recordingClaimer records ClaimAll invocations.
type recordingClaimer struct {
	mu     sync.Mutex
	claims []string
}

func (c *recordingClaimer) ClaimAll(generation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims = append(c.claims, generation)
}

// failingStore wraps MemoryStore but fails eviction.
type failingStore struct {
	*cachestore.MemoryStore
}

func (s *failingStore) EvictOthers(current string) ([]string, error) {
	return nil, assert.AnError
}

func newTestWorker(t *testing.T, store cachestore.Store, fetcher *countingFetcher, assets []string) (*Worker, *recordingClaimer) {
	t.Helper()

	c, err := classifier.New(conf.DefaultDynamicPatterns)
	require.NoError(t, err)
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	claimer := &recordingClaimer{}
	w := New(Config{
		Store:        store,
		Fetcher:      fetcher,
		Classifier:   c,
		Claimer:      claimer,
		Metrics:      metrics,
		Log:          logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
		Generation:   "beauty-care-v1.0.0",
		StaticAssets: assets,
		OfflineURL:   "/offline.html",
	})
	return w, claimer
}

func TestWorker_InstallPrecachesStaticAssets(t *testing.T) {
	t.Parallel()

	assets := []string{"/", "/index.html", "/offline.html", "/ui/theme/tokens.css"}
	fetcher := newCountingFetcher(map[string]string{
		"/":                    "home",
		"/index.html":          "index",
		"/offline.html":        "offline",
		"/ui/theme/tokens.css": "body{}",
	})
	store := cachestore.NewMemoryStore(0, time.Minute)
	w, _ := newTestWorker(t, store, fetcher, assets)

	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	// Every static asset is served from cache with no further network call.
	for _, asset := range assets {
		before := fetcher.callCount(asset)
		entry, err := w.HandleFetch(context.Background(), Request{Path: asset, AcceptsHTML: true})
		require.NoError(t, err, "asset %s", asset)
		assert.NotEmpty(t, entry.Body)
		assert.Equal(t, before, fetcher.callCount(asset), "cache-first hit for %s must not refetch", asset)
	}
}

func TestWorker_InstallToleratesPartialFailure(t *testing.T) {
	t.Parallel()

	assets := []string{"/index.html", "/broken.css", "/offline.html"}
	fetcher := newCountingFetcher(map[string]string{
		"/index.html":   "index",
		"/offline.html": "offline",
		// /broken.css has no body and fails
	})
	store := cachestore.NewMemoryStore(0, time.Minute)
	w, _ := newTestWorker(t, store, fetcher, assets)

	require.NoError(t, w.Install(context.Background()), "precache failures must not abort install")
	assert.Equal(t, StateActivating, w.State(), "install completes despite partial cache")

	_, ok := w.Cache().Get("/index.html")
	assert.True(t, ok)
	_, ok = w.Cache().Get("/broken.css")
	assert.False(t, ok)
}

func TestWorker_ActivateEvictsStaleGenerations(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	old := store.Open("beauty-care-v0.9.0")
	old.Put("/index.html", &cachestore.Entry{Status: 200, Header: http.Header{}, Body: []byte("old")})

	fetcher := newCountingFetcher(map[string]string{"/offline.html": "offline"})
	w, claimer := newTestWorker(t, store, fetcher, []string{"/offline.html"})

	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	assert.Equal(t, StateActive, w.State())

	generations, err := store.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{"beauty-care-v1.0.0"}, generations, "exactly one generation remains")

	claimer.mu.Lock()
	defer claimer.mu.Unlock()
	assert.Equal(t, []string{"beauty-care-v1.0.0"}, claimer.claims, "activation claims connected pages")
}

func TestWorker_ActivationFailurePropagates(t *testing.T) {
	t.Parallel()

	store := &failingStore{MemoryStore: cachestore.NewMemoryStore(0, time.Minute)}
	fetcher := newCountingFetcher(nil)
	w, _ := newTestWorker(t, store, fetcher, nil)

	require.NoError(t, w.Install(context.Background()))
	err := w.Activate(context.Background())
	require.Error(t, err, "eviction failure must fail activation")
	assert.Equal(t, StateActivating, w.State(), "failed activation does not reach Active")
}

func TestWorker_StatesOnlyMoveForward(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	fetcher := newCountingFetcher(nil)
	w, _ := newTestWorker(t, store, fetcher, nil)

	assert.Error(t, w.Activate(context.Background()), "activate before install")

	require.NoError(t, w.Install(context.Background()))
	assert.Error(t, w.Install(context.Background()), "second install on the same instance")

	require.NoError(t, w.Activate(context.Background()))
	assert.Error(t, w.Activate(context.Background()), "second activate")
}

func TestWorker_HandleFetchRequiresActive(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	w, _ := newTestWorker(t, store, newCountingFetcher(nil), nil)

	_, err := w.HandleFetch(context.Background(), Request{Path: "/index.html"})
	assert.Error(t, err)
}

func TestWorker_RoutesDynamicToNetworkFirst(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	fetcher := newCountingFetcher(map[string]string{
		"/data/reports/user_7_latest.json": `{"v":1}`,
	})
	w, _ := newTestWorker(t, store, fetcher, nil)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	// First fetch populates the cache; a second fetch still goes to the
	// network because the resource is dynamic.
	_, err := w.HandleFetch(context.Background(), Request{Path: "/data/reports/user_7_latest.json"})
	require.NoError(t, err)
	_, err = w.HandleFetch(context.Background(), Request{Path: "/data/reports/user_7_latest.json"})
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount("/data/reports/user_7_latest.json"),
		"dynamic resources are network-first on every request")
}

func TestWorker_QueryStringDoesNotChangeRouting(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	fetcher := newCountingFetcher(map[string]string{
		"/data/reports/user_7_latest.json?v=2": `{"v":2}`,
	})
	w, _ := newTestWorker(t, store, fetcher, nil)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	// Classification sees the bare path, so a cache-busted report URL is
	// still dynamic and hits the network on every request.
	req := Request{Path: "/data/reports/user_7_latest.json", Query: "v=2"}
	for i := 0; i < 2; i++ {
		entry, err := w.HandleFetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":2}`), entry.Body)
	}
	assert.Equal(t, 2, fetcher.callCount("/data/reports/user_7_latest.json?v=2"),
		"a query string must not demote a dynamic resource to cache-first")
}

func TestWorker_QueryVariantsCacheUnderDistinctKeys(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	fetcher := newCountingFetcher(map[string]string{
		"/ui/theme/tokens.css?skin=rose": ".rose{}",
		"/ui/theme/tokens.css?skin=mint": ".mint{}",
	})
	w, _ := newTestWorker(t, store, fetcher, nil)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	rose, err := w.HandleFetch(context.Background(), Request{Path: "/ui/theme/tokens.css", Query: "skin=rose"})
	require.NoError(t, err)
	mint, err := w.HandleFetch(context.Background(), Request{Path: "/ui/theme/tokens.css", Query: "skin=mint"})
	require.NoError(t, err)
	assert.Equal(t, []byte(".rose{}"), rose.Body)
	assert.Equal(t, []byte(".mint{}"), mint.Body)

	// Each variant hit the network once and is now its own cache entry.
	again, err := w.HandleFetch(context.Background(), Request{Path: "/ui/theme/tokens.css", Query: "skin=rose"})
	require.NoError(t, err)
	assert.Equal(t, []byte(".rose{}"), again.Body)
	assert.Equal(t, 1, fetcher.callCount("/ui/theme/tokens.css?skin=rose"))
	assert.Equal(t, 1, fetcher.callCount("/ui/theme/tokens.css?skin=mint"))
}

func TestWorker_DynamicFallsBackToCacheWhenNetworkDies(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemoryStore(0, time.Minute)
	fetcher := newCountingFetcher(map[string]string{
		"/data/reports/user_7_latest.json": `{"v":1}`,
	})
	w, _ := newTestWorker(t, store, fetcher, nil)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	_, err := w.HandleFetch(context.Background(), Request{Path: "/data/reports/user_7_latest.json"})
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.failAll = true
	fetcher.mu.Unlock()

	entry, err := w.HandleFetch(context.Background(), Request{Path: "/data/reports/user_7_latest.json"})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), entry.Body, "stale cached copy served offline")
}
