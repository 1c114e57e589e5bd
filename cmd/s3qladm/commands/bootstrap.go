package commands

import (
	"context"
	"fmt"

	"github.com/s3ql/main/internal/config"
	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/backend"
	"github.com/s3ql/main/pkg/backend/local"
	"github.com/s3ql/main/pkg/backend/s3"
	"github.com/s3ql/main/pkg/metadata"
	"github.com/s3ql/main/pkg/metadata/memory"
	"github.com/s3ql/main/pkg/metadata/postgres"
)

// loadConfig reads and validates the config, then points the package-level
// logger at it. Every subcommand that touches the cache starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("s3qladm: %w", err)
	}
	logger.Configure(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

// buildMetadataStore selects and constructs a metadata.Store per
// cfg.Metadata.Driver, running Postgres migrations first when applicable
// (spec.md §6: "objects/blocks/inode_blocks facade").
func buildMetadataStore(ctx context.Context, cfg *config.Config) (metadata.Store, error) {
	switch cfg.Metadata.Driver {
	case "postgres":
		if err := postgres.RunMigrations(ctx, cfg.Metadata.DSN); err != nil {
			return nil, fmt.Errorf("s3qladm: run metadata migrations: %w", err)
		}
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.Metadata.DSN})
		if err != nil {
			return nil, fmt.Errorf("s3qladm: connect metadata store: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("s3qladm: unknown metadata.driver %q", cfg.Metadata.Driver)
	}
}

// buildBackendPool selects and constructs a backend.Pool per cfg.Backend.Kind
// (spec.md §6 "BackendPool facade").
func buildBackendPool(ctx context.Context, cfg *config.Config) (backend.Pool, error) {
	switch cfg.Backend.Kind {
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:         cfg.Backend.S3.Bucket,
			Region:         cfg.Backend.S3.Region,
			Endpoint:       cfg.Backend.S3.Endpoint,
			ForcePathStyle: cfg.Backend.S3.ForcePathStyle,
			RetryConfig:    backend.DefaultRetryConfig(),
		})
	case "local":
		return local.New(cfg.Backend.Local.Path)
	default:
		return nil, fmt.Errorf("s3qladm: unknown backend.kind %q", cfg.Backend.Kind)
	}
}
