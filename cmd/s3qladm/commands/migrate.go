package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/metadata/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run metadata store migrations",
	Long: `Apply pending schema migrations to the configured metadata store
(objects, blocks, inode_blocks — spec.md §6). Required after upgrading
s3qladm when the schema has changed. A no-op for metadata.driver "memory",
since that store has no persisted schema to migrate.

Examples:
  # Run migrations with the default config
  s3qladm migrate

  # Run migrations with a custom config
  s3qladm migrate --config /etc/s3ql/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	if cfg.Metadata.Driver != "postgres" {
		logger.Info("nothing to migrate", "metadata_driver", cfg.Metadata.Driver)
		cmd.Printf("no migrations needed (metadata driver: %s)\n", cfg.Metadata.Driver)
		return nil
	}

	logger.Info("running metadata store migrations", "metadata_driver", cfg.Metadata.Driver)
	if err := postgres.RunMigrations(ctx, cfg.Metadata.DSN); err != nil {
		return fmt.Errorf("s3qladm: run metadata migrations: %w", err)
	}

	cmd.Printf("migrations completed successfully (metadata driver: %s)\n", cfg.Metadata.Driver)
	return nil
}
