// Command s3qladm bootstraps and runs the block cache subsystem: config →
// logger → metadata store → backend pool → cache, the same ordering as
// dittofs's own cmd/dittofs/main.go.
package main

import (
	"fmt"
	"os"

	"github.com/s3ql/main/cmd/s3qladm/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
