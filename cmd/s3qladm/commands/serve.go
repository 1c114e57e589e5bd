package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/cache"
	prommetrics "github.com/s3ql/main/pkg/metrics/prometheus"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the block cache until interrupted",
	Long: `Start the block cache subsystem: load config, connect to the
metadata store and the object store backend, then hand in-transit uploads
and removals to their worker pools until a shutdown signal arrives.

On SIGINT/SIGTERM, every dirty block is scheduled for upload and awaited
before serve exits. --remove-cache-dir additionally deletes the on-disk
scratch directory once that drain completes, instead of leaving it in
place for the next start.`,
	RunE: runServe,
}

var removeCacheDir bool

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")
	serveCmd.Flags().BoolVar(&removeCacheDir, "remove-cache-dir", false, "remove the on-disk cache directory on shutdown instead of keeping it for the next start")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := buildMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(context.Background()); closeErr != nil {
			logger.Error("metadata store close failed", "error", closeErr)
		}
	}()

	backendPool, err := buildBackendPool(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cacheMetrics := prommetrics.New(reg)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if srvErr := srv.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", srvErr)
			}
		}()
		defer srv.Close()
		logger.Info("metrics endpoint listening", "addr", metricsAddr)
	}

	bc, err := cache.New(backendPool, store, cache.Config{
		CacheDir:         cfg.Cache.Dir,
		MaxSize:          cfg.Cache.MaxSize,
		MaxEntries:       cfg.Cache.MaxEntries,
		UploadThreads:    cfg.Cache.UploadThreads,
		RemovalQueueSize: cfg.Cache.RemovalQueueSize,
		Metrics:          cacheMetrics,
	})
	if err != nil {
		return fmt.Errorf("s3qladm: construct cache: %w", err)
	}
	if err := bc.Init(ctx); err != nil {
		return fmt.Errorf("s3qladm: init cache: %w", err)
	}

	logger.Info("block cache running",
		"cache_dir", cfg.Cache.Dir, "backend", cfg.Backend.Kind, "metadata", cfg.Metadata.Driver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)

	logger.Info("shutdown signal received, destroying cache")
	if err := bc.Destroy(context.Background(), !removeCacheDir); err != nil {
		return fmt.Errorf("s3qladm: destroy cache: %w", err)
	}
	return nil
}
