package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/terraconstructs/gatekeeper/cmd/cmdutil"
	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/server"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/services/validation"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

const (
	schemaCacheSize  = 64
	shutdownTimeout  = 10 * time.Second
	tokenSweepPeriod = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gatekeeper API server",
	Long:  `Starts the HTTP server exposing the auth, user and admin endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.WithError(err).Warn("tracing shutdown failed")
			}
		}()

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := telemetry.NewMetrics(registry)

		opts := cmdutil.IAMServiceOptions{Metrics: metrics}
		if len(cfg.ExternalProviders) > 0 {
			bridge, err := auth.NewIdentityBridgeFromConfig(ctx, cfg.ExternalProviders, nil, cfg.Security.BcryptCost)
			if err != nil {
				return fmt.Errorf("failed to configure external providers: %w", err)
			}
			logger.WithField("providers", bridge.Providers()).Info("external identity providers configured")
			opts.Bridge = bridge
		}

		bundle, err := cmdutil.NewIAMServiceBundle(cfg, logger, opts)
		if err != nil {
			return err
		}
		defer bundle.Close()
		telemetry.RegisterDBStats(registry, bundle.DB.DB, "gatekeeper")

		validator, err := validation.NewSchemaValidator(schemaCacheSize)
		if err != nil {
			return fmt.Errorf("failed to create request validator: %w", err)
		}
		if err := validator.Preload(); err != nil {
			return fmt.Errorf("failed to compile request schemas: %w", err)
		}

		srv := &http.Server{
			Addr: cfg.ServerAddr,
			Handler: server.NewH2CHandler(server.RouterOptions{
				IAMService: bundle.Service,
				Validator:  validator,
				DB:         bundle.DB,
				Logger:     logger,
				Metrics:    metrics,
				Gatherer:   registry,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.WithFields(logrus.Fields{
				"addr":       cfg.ServerAddr,
				"public_url": cfg.PublicURL,
			}).Info("starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			sweepRevokedTokens(gctx, bundle.Service)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

// sweepRevokedTokens periodically drops revocation records whose tokens have expired.
func sweepRevokedTokens(ctx context.Context, svc iam.Service) {
	ticker := time.NewTicker(tokenSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeRevokedTokens(ctx)
			if err != nil {
				logger.WithError(err).Warn("revoked token sweep failed")
				continue
			}
			logger.WithField("deleted", n).Debug("revoked token sweep complete")
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
