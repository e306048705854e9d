package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/icebase/metastore/pkg/log"
	"github.com/icebase/metastore/pkg/manager"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Repair a realm's ROOT/root-principal/service_admin closure in an existing BoltDB store",
	Long: `migrate opens a catalogd BoltDB data directory directly and runs the
same bootstrap closure serve applies on startup: it creates whichever of
ROOT, the root PRINCIPAL, the service_admin PRINCIPAL_ROLE, or their
grants are missing, without touching anything that already exists. This
repairs a realm left partially initialized by a crash between bootstrap
steps, or one that predates a bootstrap change, without requiring a full
serve cycle.

By default the database file is backed up before any write; --dry-run
reports what bootstrap would do without writing anything.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("data-dir", "./catalogd-data", "Data directory holding metastore.db")
	migrateCmd.Flags().Bool("dry-run", false, "Report what would change without writing anything")
	migrateCmd.Flags().String("backup", "", "Path to back up metastore.db to before migrating (default: <data-dir>/metastore.db.backup)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	dbPath := filepath.Join(dataDir, "metastore.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}
	log.Logger.Info().Str("db", dbPath).Bool("dry_run", dryRun).Msg("starting realm repair")

	if !dryRun {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		log.Logger.Info().Str("backup", backupPath).Msg("backing up database")
		if err := copyFile(dbPath, backupPath); err != nil {
			return fmt.Errorf("failed to back up database: %w", err)
		}
	}

	backend, err := storage.NewBoltPersistence(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	cc := &manager.CallContext{Logger: log.Logger}

	if dryRun {
		// BootstrapPolarisService can't be previewed without running it
		// (its steps are individually idempotent, not speculative), so a
		// dry run only reports whether the realm already looks complete.
		// It reads the backend directly: the manager's by-name ROOT lookup
		// backfills a missing ROOT, which would write.
		if _, err := backend.LookupEntityByName(cc, types.NullID, types.NullID, types.EntityTypeRoot, "ROOT"); err == nil {
			log.Info("[dry run] realm already has a ROOT entity; bootstrap would be a no-op")
		} else {
			log.Info("[dry run] realm has no ROOT entity; bootstrap would create ROOT, root principal, service_admin, and their grants")
		}
		return nil
	}

	mgr := manager.New(backend, manager.Deps{})
	result := mgr.BootstrapPolarisService(cc)
	if !result.IsSuccess() {
		return fmt.Errorf("bootstrap failed: %s: %s", result.Status, result.ExtraInformation)
	}
	if result.Value {
		log.Info("realm was incomplete; created the missing ROOT/root-principal/service_admin closure")
	} else {
		log.Info("realm was already fully bootstrapped; nothing to do")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
