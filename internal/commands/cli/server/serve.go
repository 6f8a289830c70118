// Package server provides server-related CLI commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/internal/admin"
	"github.com/andrei-cloud/go_atalla/internal/config"
	"github.com/andrei-cloud/go_atalla/internal/dispatch"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/logging"
	"github.com/andrei-cloud/go_atalla/internal/metrics"
	"github.com/andrei-cloud/go_atalla/internal/ratelimit"
	"github.com/andrei-cloud/go_atalla/internal/server"
	"github.com/andrei-cloud/go_atalla/pkg/akb"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Atalla simulator",
		Long: `Start the simulator and process Atalla commands over TCP. SIGHUP reloads
the master key and the key directory; SIGINT and SIGTERM stop the server.`,
		RunE: runServe,
	}

	cmd.Flags().String("host", "localhost", "Server host")
	cmd.Flags().Int("port", 7000, "Server port")
	cmd.Flags().String("framing", server.FramingLine, "Connection framing (line, anet)")

	config.BindFlag("server.host", cmd.Flags().Lookup("host"))
	config.BindFlag("server.port", cmd.Flags().Lookup("port"))
	config.BindFlag("server.framing", cmd.Flags().Lookup("framing"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Copy the settings; a SIGHUP reload replaces the shared config.
	cfg := *config.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := strings.TrimSpace(strings.ToLower(cfg.Log.Level))
	logFormat := strings.TrimSpace(strings.ToLower(cfg.Log.Format))
	logging.InitLogger(logLevel == "debug", logFormat == "human")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	hsmInstance, err := loadHSM(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize HSM instance: %w", err)
	}
	snap := hsmInstance.Snapshot()
	log.Info().
		Str("mk_check_digits", snap.MasterKeyCheckDigits()).
		Int("keys", len(snap.Keys)).
		Msg("key directory loaded")

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := dispatch.DefaultRegistry()
	dispatcher := dispatch.New(hsmInstance, registry, dispatch.WithObserver(m))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Server.RateLimit,
		Burst:             cfg.Server.Burst,
	})
	defer limiter.Stop()

	srv, err := server.New(server.Config{
		Address:     cfg.Address(),
		Framing:     cfg.Server.Framing,
		MaxConns:    cfg.Server.MaxConns,
		ReadTimeout: cfg.Server.ReadTimeout,
		Limiter:     limiter,
		Observer:    m,
	}, dispatcher)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.New(admin.Config{
			Address:  cfg.Admin.Address,
			HSM:      hsmInstance,
			Registry: registry,
		})
		go func() {
			if err := adminSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	// Reload the master key and key directory on SIGHUP.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	defer signal.Stop(reloadChan)
	go func() {
		for range reloadChan {
			log.Info().Msg("reloading keys...")
			if err := reload(ctx, hsmInstance); err != nil {
				m.KeyReload(false)
				log.Error().Err(err).Msg("key reload failed, keeping previous keys")

				continue
			}
			m.KeyReload(true)
			snap := hsmInstance.Snapshot()
			log.Info().
				Str("mk_check_digits", snap.MasterKeyCheckDigits()).
				Int("keys", len(snap.Keys)).
				Msg("keys reloaded")
		}
	}()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopChan)

	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server...")

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	if adminSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := adminSrv.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during admin server shutdown")
		}
	}

	return nil
}

// loadHSM opens the configured key store and builds the HSM from it.
func loadHSM(ctx context.Context, cfg *config.Config) (*hsm.HSM, error) {
	keys, err := loadDirectory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return hsm.NewHSM(cfg.HSM.MasterKey, keys)
}

// reload re-reads the configuration and the key directory and rotates the
// HSM snapshot. The running snapshot is untouched on any error.
func reload(ctx context.Context, h *hsm.HSM) error {
	if err := config.Reload(); err != nil {
		return err
	}
	cfg := config.Get()

	mk, err := hsm.ParseMasterKey(cfg.HSM.MasterKey)
	if err != nil {
		return err
	}
	keys, err := loadDirectory(ctx, cfg)
	if err != nil {
		return err
	}

	return h.Rotate(mk, keys)
}

func loadDirectory(ctx context.Context, cfg *config.Config) (map[string]*akb.KeyBlock, error) {
	store, closeStore, err := hsm.OpenStore(cfg.StoreConfig())
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeStore() }()

	return hsm.LoadDirectory(ctx, store)
}
