package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/PipeOpsHQ/hookscope/internal/capture"
	"github.com/PipeOpsHQ/hookscope/internal/config"
	"github.com/PipeOpsHQ/hookscope/internal/handler"
	"github.com/PipeOpsHQ/hookscope/internal/logging"
	"github.com/PipeOpsHQ/hookscope/internal/metrics"
	"github.com/PipeOpsHQ/hookscope/internal/store"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "hookscope",
		Short:         "Capture inbound webhooks and browse them",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, json or toml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the capture and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})

	var confirm bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every captured delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to reset without --yes")
			}
			return runReset(cmd.Context(), configPath)
		},
	}
	resetCmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion of all deliveries")
	rootCmd.AddCommand(resetCmd)

	return rootCmd
}

// setup loads configuration and opens the logger and store shared by every command.
func setup(configPath string) (config.Config, glog.Logger, store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return cfg, nil, nil, err
	}
	// Pebble and net/http report through the standard logger.
	log.SetFlags(0)
	log.SetOutput(logging.StdWriter(logging.Named(logger, "stdlog")))

	s, err := store.Open(store.Options{
		Driver:        cfg.Store.Driver,
		DSN:           cfg.Store.DSN,
		Fsync:         cfg.Store.Fsync,
		FsyncInterval: cfg.Store.FsyncInterval,
	})
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return cfg, logger, s, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, s, err := setup(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.New()
	svc := capture.NewService(s, capture.Options{
		DefaultPageSize: cfg.Pagination.DefaultSize,
		MaxPageSize:     cfg.Pagination.MaxSize,
		AckStatus:       cfg.Capture.AckStatus,
		Logger:          logging.Named(logger, "capture"),
		Observer:        m,
	})
	h := handler.NewHandler(svc, handler.Options{
		MaxBodyBytes:      cfg.Capture.MaxBodyBytes,
		AllowReset:        cfg.Admin.AllowReset,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		ReplayTarget:      cfg.Replay.Target,
		ReplayTimeout:     cfg.Replay.Timeout,
		Logger:            logging.Named(logger, "http"),
		Tail:              m,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.NewRouter(h, cfg.Capture.Path, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Shutdown does not wait on hijacked or streaming connections; end the tails explicitly.
	server.RegisterOnShutdown(h.Hub().Close)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.Server.Addr,
			"capture_path", cfg.Capture.Path,
			"store", cfg.Store.Driver,
			"read_timeout", cfg.Server.ReadTimeout.String(),
			"write_timeout", cfg.Server.WriteTimeout.String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

func runReset(ctx context.Context, configPath string) error {
	cfg, logger, s, err := setup(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	svc := capture.NewService(s, capture.Options{Logger: logging.Named(logger, "capture")})
	if err := svc.Reset(ctx); err != nil {
		return err
	}
	logger.Info("deliveries cleared", "driver", cfg.Store.Driver)
	return nil
}
