package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on the default mux
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icebase/metastore/pkg/events"
	"github.com/icebase/metastore/pkg/log"
	"github.com/icebase/metastore/pkg/manager"
	"github.com/icebase/metastore/pkg/metrics"
	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog metastore manager",
	Long: `serve starts the metastore manager over the selected persistence
backend, bootstraps the realm's ROOT/root-principal/service_admin
closure if it is not already present, and serves Prometheus metrics
and health endpoints until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("backend", "bolt", "Persistence backend: bolt, memory, or raft")
	serveCmd.Flags().String("data-dir", "./catalogd-data", "Data directory for the bolt/raft backend")
	serveCmd.Flags().String("secret-key", "", "Seed used to derive the principal-secret sealing keys (required for bolt/raft)")
	serveCmd.Flags().Duration("storage-cred-ttl", 15*time.Minute, "TTL for vended storage credentials")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
	serveCmd.Flags().Bool("enable-pprof", false, "Serve pprof endpoints on the metrics server")

	serveCmd.Flags().String("raft-node-id", "catalogd-1", "Raft server ID (backend=raft)")
	serveCmd.Flags().String("raft-bind-addr", "127.0.0.1:7946", "Address for Raft peer communication (backend=raft)")
	serveCmd.Flags().Bool("raft-bootstrap", true, "Bootstrap a single-node Raft cluster instead of joining one (backend=raft)")
}

func runServe(cmd *cobra.Command, args []string) error {
	backendKind, _ := cmd.Flags().GetString("backend")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	secretKeySeed, _ := cmd.Flags().GetString("secret-key")
	credTTL, _ := cmd.Flags().GetDuration("storage-cred-ttl")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	enablePprof, _ := cmd.Flags().GetBool("enable-pprof")

	backend, err := openBackend(cmd, backendKind, dataDir)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", backendKind, err)
	}

	secretsMgr, err := secretsManagerFor(backendKind, secretKeySeed)
	if err != nil {
		backend.Close()
		return err
	}

	deps := manager.Deps{
		Secrets:            secretsMgr,
		StorageIntegration: security.NewStaticStorageIntegration(credTTL),
	}
	mgr := manager.New(backend, deps)
	cc := &manager.CallContext{Logger: log.Logger}

	bootstrapTimer := metrics.NewTimer()
	bootstrapResult := mgr.BootstrapPolarisService(cc)
	bootstrapTimer.ObserveDuration(metrics.BootstrapDuration)
	if !bootstrapResult.IsSuccess() {
		backend.Close()
		return fmt.Errorf("bootstrap failed: %s: %s", bootstrapResult.Status, bootstrapResult.ExtraInformation)
	}
	if bootstrapResult.Value {
		log.Info("bootstrapped a new realm (ROOT, root principal, service_admin)")
	} else {
		log.Info("realm already bootstrapped")
	}

	broker := events.NewBroker()
	broker.Start()
	broker.Publish(&events.Event{Type: events.EventBootstrapRun, Message: "catalogd started"})

	collector := manager.NewMetricsCollector(backend, cc)
	collector.Start()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("backend", true, backendKind)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	if enablePprof {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	log.Logger.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")
	if enablePprof {
		log.Logger.Info().Str("addr", metricsAddr).Msg("pprof endpoints available at /debug/pprof/")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Errorf("metrics server failed", err)
	}

	collector.Stop()
	broker.Stop()
	if err := backend.Close(); err != nil {
		return fmt.Errorf("failed to close backend: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

func openBackend(cmd *cobra.Command, kind, dataDir string) (storage.BasePersistence, error) {
	switch kind {
	case "memory":
		return storage.NewMemoryAtomicPersistence(), nil
	case "bolt":
		return storage.NewBoltPersistence(dataDir)
	case "raft":
		nodeID, _ := cmd.Flags().GetString("raft-node-id")
		bindAddr, _ := cmd.Flags().GetString("raft-bind-addr")
		bootstrap, _ := cmd.Flags().GetBool("raft-bootstrap")

		rp, err := storage.NewRaftPersistence(storage.RaftConfig{
			NodeID:   nodeID,
			BindAddr: bindAddr,
			DataDir:  dataDir,
		})
		if err != nil {
			return nil, err
		}
		if bootstrap {
			err = rp.Bootstrap()
		} else {
			err = rp.Join()
		}
		if err != nil {
			rp.Close()
			return nil, fmt.Errorf("failed to start raft: %w", err)
		}
		return rp, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want bolt, memory, or raft)", kind)
	}
}

// secretsManagerFor builds the EncryptedSecretsManager every principal's
// main secret is sealed through. The memory backend is dev/test-only, so
// it falls back to a fixed seed when none is given rather than refusing
// to start.
func secretsManagerFor(backendKind, seed string) (security.UserSecretsManager, error) {
	if seed == "" {
		if backendKind != "memory" {
			return nil, fmt.Errorf("--secret-key is required for the %s backend", backendKind)
		}
		seed = "catalogd-dev-insecure-default"
		log.Logger.Warn().Msg("no --secret-key given; using an insecure default suitable only for the memory backend")
	}
	encKey := security.DeriveKeyFromClusterID(seed)
	macKey := security.DeriveKeyFromClusterID(seed + ":mac")
	return security.NewEncryptedSecretsManager(encKey, macKey)
}
