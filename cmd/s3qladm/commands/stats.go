package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s3ql/main/pkg/cache"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print current cache usage",
	Long: `Report the cache's get_usage tuple (spec.md §4.5): entry count,
total bytes, dirty entry count, dirty bytes, and pending removal-queue
depth. Loads the existing on-disk cache directory without running the
upload/removal worker pools, so the numbers reflect only the scratch files
on disk, not a live server's traffic: loaded entries count as clean and
the removal queue starts empty, so dirty and pending counts read 0.`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := buildMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	backendPool, err := buildBackendPool(ctx, cfg)
	if err != nil {
		return err
	}

	bc, err := cache.New(backendPool, store, cache.Config{
		CacheDir:         cfg.Cache.Dir,
		MaxSize:          cfg.Cache.MaxSize,
		MaxEntries:       cfg.Cache.MaxEntries,
		UploadThreads:    cfg.Cache.UploadThreads,
		RemovalQueueSize: cfg.Cache.RemovalQueueSize,
	})
	if err != nil {
		return fmt.Errorf("s3qladm: construct cache: %w", err)
	}
	// Usage works without Init; no worker pool is needed to read counters
	// off the loaded CacheMap.
	defer bc.Destroy(ctx, true)

	entries, bytesTotal, dirtyEntries, dirtyBytes, pendingRemovals := bc.Usage()

	cmd.Printf("entries:          %d\n", entries)
	cmd.Printf("bytes:            %d\n", bytesTotal)
	cmd.Printf("dirty entries:    %d\n", dirtyEntries)
	cmd.Printf("dirty bytes:      %d\n", dirtyBytes)
	cmd.Printf("pending removals: %d\n", pendingRemovals)
	return nil
}
