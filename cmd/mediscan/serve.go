package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/mediscan/internal/infra/db/migrations"
	"github.com/bryanwahyu/mediscan/internal/infra/httpserver"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

func newServeCmd(g *globals) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := g.cfg, g.log

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrate {
				runner, err := migrations.NewRunner(cfg.Database.Driver, cfg.MigrateURL(), log)
				if err != nil {
					return err
				}
				err = runner.Up()
				runner.Close()
				if err != nil {
					return err
				}
			}

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
			go limiter.Run(ctx.Done(), time.Minute)

			handler := httpserver.NewRouter(httpserver.Options{
				Analysis:       a.analysis,
				Consultations:  a.consultations,
				Log:            log,
				APIKeys:        cfg.Auth.APIKeys,
				RateLimiter:    limiter,
				Metrics:        a.metrics,
				CORSOrigins:    cfg.Server.CORSOrigins,
				Health:         a.health,
				Ready:          a.ready,
				MaxUploadBytes: cfg.Upload.MaxBytes,
				AllowedTypes:   cfg.Upload.AllowedTypes,
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", addr).Info("server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("shutdown error")
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}
