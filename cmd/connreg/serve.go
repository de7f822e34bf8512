package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soochol/connreg/internal/api"
	"github.com/soochol/connreg/internal/metrics"
	"github.com/soochol/connreg/internal/services"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.withService(ctx, func(svc *services.ConnectionService) error {
				return a.serve(ctx, svc)
			})
		},
	}
}

func (a *app) serve(ctx context.Context, svc *services.ConnectionService) error {
	srv := api.NewServer(svc)
	srv.SetMetrics(metrics.New())
	srv.SetAllowedOrigins(a.cfg.Server.AllowedOrigins)

	httpSrv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting connreg server", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down connreg server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the connection store schema",
		Long: `Create or upgrade the connection store schema and exit.

The memory and redis drivers have no schema; the command is a no-op for them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeFn, err := openRepository(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.Database.Driver)
			return nil
		},
	}
}
