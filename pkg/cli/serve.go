// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-core-stack/prediction-proxy/pkg/config"
	"github.com/go-core-stack/prediction-proxy/pkg/metrics"
	"github.com/go-core-stack/prediction-proxy/pkg/proxy"
)

func newServeCommand(opts *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts overrides) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	handler, err := proxy.New(cfg, proxy.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("construct proxy: %w", err)
	}

	servers := []*http.Server{{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info().Str("listen_addr", srv.Addr).Msg("listener starting")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listener %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	log.Info().
		Str("version", Version).
		Str("upstream", cfg.Upstream.String()).
		Bool("credential_configured", cfg.HasCredential()).
		Dur("request_timeout", cfg.RequestTimeout).
		Msg("starting prediction proxy")

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down prediction proxy")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("proxy server exited unexpectedly")
	}

	waitForShutdown(context.Background(), servers, cfg.GracefulShutdownTimeout)
	return serveErr
}

func loadConfig(cmd *cobra.Command, opts overrides) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = opts.listenAddr
	}
	if flags.Changed("metrics-listen") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging replaces the global logger; components derive their loggers
// from it at construction, so it must run first.
func setupLogging(level, format string, out io.Writer) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	w := out
	if format == config.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return nil
}

func waitForShutdown(ctx context.Context, servers []*http.Server, timeout time.Duration) {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("listen_addr", srv.Addr).Msg("graceful shutdown failed; forcing close")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error().Err(closeErr).Str("listen_addr", srv.Addr).Msg("forced close failed")
			}
		}
	}

	log.Info().Msg("proxy stopped")
}
