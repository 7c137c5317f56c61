package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/config"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/handlers"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/middleware"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/repository"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fonosync",
		Short:         "Offline-capable data access for the practice",
		SilenceUsage:  true,
		Version:       handlers.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.json, .yaml or .toml); defaults to $CONFIG_PATH or config.json")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(newQueueCmd(&configPath))

	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	if cfg.UsePostgres() {
		observability.Info("Using PostgreSQL database")
		return repository.NewPostgresDB(cfg.DatabaseURL)
	}
	observability.Infof("Using SQLite database at %s", cfg.DatabasePath)
	return repository.NewSQLiteDB(cfg.DatabasePath)
}

func runServe(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	telemetry, err := observability.Initialize(ctx, observability.Config{
		ServiceName:    "fonosync",
		ServiceVersion: handlers.Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			observability.Warnf("Telemetry shutdown: %v", err)
		}
	}()

	if !middleware.IsBcryptHash(cfg.Security.APIKey) && len(cfg.Security.APIKey) < 32 {
		observability.Warn("security.apiKey is shorter than 32 characters")
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	kv := repository.NewKVStoreRepository(db, cfg.Sync.StoreName)
	warnAboutOtherQueues(ctx, kv, cfg.Sync.QueueKey)
	store := repository.NewQueueStoreRepository(kv, cfg.Sync.QueueKey)

	// The engine is created below and needs the metrics; gauges read zero until then
	var enginePtr atomic.Pointer[services.SyncEngine]
	gauges := func() (int, bool, bool) {
		if e := enginePtr.Load(); e != nil {
			return e.Gauges()
		}
		return 0, false, false
	}

	syncMetrics, err := observability.NewSyncMetrics(gauges)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	hub := services.NewWebSocketHub()
	go hub.Run(ctx)
	notifier := services.MultiNotifier{services.LogNotifier{}, services.NewHubNotifier(hub)}

	queue, err := services.LoadOfflineQueue(ctx, store, notifier, syncMetrics)
	if err != nil {
		return fmt.Errorf("%w (inspect it with `fonosync queue list` or reset it with `fonosync queue clear`)", err)
	}

	remote, err := services.NewRemoteClient(ctx, cfg.Remote)
	if err != nil {
		return fmt.Errorf("failed to create remote client: %w", err)
	}

	clock := services.SystemClock{}
	var conn services.Connectivity
	var manual *services.ConnectivityMonitor
	var prober *services.ConnectivityProber
	if cfg.Sync.ConnectivityMode == config.ConnectivityManual {
		manual = services.NewConnectivityMonitor(true)
		conn = manual
	} else {
		prober = services.NewConnectivityProber(remote, clock, cfg.Sync.ProbeInterval(), cfg.Remote.Timeout())
		conn = prober
	}

	gateway := services.NewOfflineGateway(remote, queue, conn, clock, syncMetrics)
	defer gateway.Close()

	engine := services.NewSyncEngine(queue, remote, conn, clock, notifier, syncMetrics, services.SyncEngineConfig{
		Interval:   cfg.Sync.Interval(),
		MaxRetries: cfg.Sync.MaxRetries,
	})
	enginePtr.Store(engine)
	engine.Subscribe(services.NewHubStatusObserver(hub))
	engine.Subscribe(&services.LogStatusObserver{})
	// In-flight replays finish on shutdown instead of counting as failed attempts
	engine.Start(context.WithoutCancel(ctx))
	defer engine.Stop()

	if prober != nil {
		prober.Start(ctx)
		defer prober.Stop()
	}

	registry, err := observability.NewMetricsRegistry(gauges)
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Gateway:        gateway,
		Queue:          queue,
		Engine:         engine,
		Hub:            hub,
		Manual:         manual,
		APIKey:         cfg.Security.APIKey,
		APIKeyHeader:   cfg.Security.APIKeyHeader,
		AllowedOrigins: cfg.Security.Origins(),
		HTTPMetrics:    httpMetrics,
		MetricsHandler: observability.MetricsHandler(registry),
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		observability.Infof("FonoSync server starting on %s (connectivity %s, %d pending operations)",
			cfg.ServerAddress, cfg.Sync.ConnectivityMode, queue.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	observability.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if n := queue.Len(); n > 0 {
		observability.Infof("%d operations stay queued until the next start", n)
	}
	observability.Info("Server stopped")
	return nil
}

// warnAboutOtherQueues flags queue keys left by other deployments sharing the store
func warnAboutOtherQueues(ctx context.Context, kv *repository.KVStoreRepository, queueKey string) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		observability.Warnf("Could not list queue keys: %v", err)
		return
	}
	for _, key := range keys {
		if key != queueKey {
			observability.WithField("queue_key", key).
				Warn("Another offline queue exists in this store. It will not be replayed by this process.")
		}
	}
}
