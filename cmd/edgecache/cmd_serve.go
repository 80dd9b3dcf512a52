package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/beautycare/edgecache/internal/api"
	"github.com/beautycare/edgecache/internal/cachestore"
	"github.com/beautycare/edgecache/internal/classifier"
	"github.com/beautycare/edgecache/internal/conf"
	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/messaging"
	"github.com/beautycare/edgecache/internal/observability"
	"github.com/beautycare/edgecache/internal/push"
	"github.com/beautycare/edgecache/internal/reports"
	"github.com/beautycare/edgecache/internal/strategy"
	"github.com/beautycare/edgecache/internal/worker"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Install the cache worker and serve page traffic",
	Long: `
The "serve" command installs a cache worker for the configured generation,
activates it (evicting stale generations), and serves page traffic until
interrupted.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveOptions.Config)
	},
}

// ServeOptions bundles all options for the serve command.
type ServeOptions struct {
	Config string
}

var serveOptions ServeOptions

func init() {
	cmdRoot.AddCommand(cmdServe)

	f := cmdServe.Flags()
	f.StringVar(&serveOptions.Config, "config", "", "config file path (default: edgecache.yaml)")
}

func runServe(ctx context.Context, configPath string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.NewSlogLogger(os.Stderr, settings.Log.LogLevel(), []logger.Field{
		logger.String("service", "edgecache"),
	})

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	fetcher, err := strategy.NewHTTPFetcher(settings.Upstream, settings.Fetch.Timeout.Std())
	if err != nil {
		return err
	}

	cls, err := classifier.New(settings.Cache.DynamicPatterns)
	if err != nil {
		return err
	}

	bus := messaging.NewBus()
	hub := api.NewHub(bus, metrics, log)

	store := cachestore.NewMemoryStore(
		settings.Cache.DefaultTTL.Std(),
		settings.Cache.CleanupInterval.Std(),
	)
	w := worker.New(worker.Config{
		Store:        store,
		Fetcher:      fetcher,
		Classifier:   cls,
		Claimer:      hub,
		Metrics:      metrics,
		Log:          log,
		Generation:   settings.Cache.Generation,
		StaticAssets: settings.Cache.StaticAssets,
		OfflineURL:   settings.Cache.OfflineURL,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Install(ctx); err != nil {
		return err
	}
	if err := w.Activate(ctx); err != nil {
		return err
	}
	log.Info("worker active",
		logger.String("generation", settings.Cache.Generation),
		logger.Int("precached", len(settings.Cache.StaticAssets)))

	handler := reports.NewHandler(w.Cache(), fetcher, hub, metrics, log)
	bus.Subscribe(handler.HandleMessage)

	var pushAdapter *push.Adapter
	if settings.Push.Enabled {
		pushAdapter = push.NewAdapter(settings.Push, hub, log)
		if err := pushAdapter.Start(ctx); err != nil {
			return err
		}
	}

	server, err := api.NewServer(w, hub, settings.Upstream, metrics, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(settings.Listen)
	}()
	log.Info("listening", logger.String("addr", settings.Listen))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", logger.Error(err))
	}
	if pushAdapter != nil {
		pushAdapter.Stop()
	}
	// Stop drains messages already accepted by the bus so in-flight
	// report work finishes before exit.
	bus.Stop()
	return nil
}
