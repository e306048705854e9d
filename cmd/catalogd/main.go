// Command catalogd is the process entrypoint for the catalog metastore:
// it wires a storage backend and its collaborators into a
// manager.MetastoreManager and serves the metrics/health surface, or
// runs the one-shot realm-repair tool. It does not expose a business-
// object CRUD surface; that belongs to the Iceberg REST front end this
// binary is a backend for.
package main

import (
	"fmt"
	"os"

	"github.com/icebase/metastore/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "catalogd is the metadata-store manager backing an Iceberg-compatible catalog",
	Long: `catalogd owns catalogs, namespaces, tables, principals, roles, and
grants for an Iceberg-compatible catalog service, over a pluggable
persistence backend (in-memory, embedded BoltDB, or Raft-replicated
BoltDB). It does not speak the Iceberg REST protocol or issue auth
tokens itself; those live in front of this process.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"catalogd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
