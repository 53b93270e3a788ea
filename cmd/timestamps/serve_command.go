package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/whisper-timestamps/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger

			logger.Info("starting timestamps API",
				slog.Int("port", cfg.Port),
				slog.String("work_dir", cfg.WorkDir),
				slog.String("transcriber", cfg.Transcriber),
				slog.String("log_format", cfg.LogFormat),
				slog.String("log_level", cfg.LogLevel),
				slog.Bool("s3_enabled", cfg.S3Enabled()),
				slog.Bool("persistent_jobs", cfg.JobDBPath != ""),
			)

			deps, err := ctx.dependencies(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize dependencies: %w", err)
			}
			defer func() {
				if err := deps.Close(); err != nil {
					logger.Error("failed to close dependencies", slog.String("error", err.Error()))
				}
			}()

			handlers := server.NewHandlers(deps.Jobs, deps.Storage, logger)
			serverCfg := server.DefaultConfig()
			if len(origins) > 0 {
				serverCfg.AllowedOrigins = origins
			}
			router := server.NewRouter(handlers, logger, serverCfg)

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			return serve(cmd.Context(), srv, logger)
		},
	}

	cmd.Flags().StringSliceVar(&origins, "allowed-origin", nil, "CORS origin to allow (repeatable; default all)")

	return cmd
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
