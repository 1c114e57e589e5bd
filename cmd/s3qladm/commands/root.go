// Package commands implements the s3qladm CLI: serve the block cache
// subsystem, inspect its usage, and run metadata schema migrations.
// Grounded on the teacher's cmd/dittofs/commands package shape (a cobra root
// command with a persistent --config flag and one file per subcommand).
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "s3qladm",
	Short: "Administer the s3ql block cache subsystem",
	Long: `s3qladm operates the deduplicating, content-addressed, write-back
block cache that sits between a filesystem layer and a remote object store.

Use "s3qladm [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands and runs the root command. Called once
// from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: built-in defaults + S3QL_ env overrides)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("s3qladm %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
