package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	catalogapi "catalogbrowser/internal/adapters/catalog"
	"catalogbrowser/internal/catalog"
	"catalogbrowser/internal/catalog/watch"
	"catalogbrowser/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
	}
	return a.serveOn(ctx, ln)
}

// serveOn runs the service on ln until ctx is cancelled or the server fails.
func (a *app) serveOn(ctx context.Context, ln net.Listener) error {
	rec := metrics.New(metrics.WithRuntimeCollectors())
	store, targets, err := a.openCatalog(ctx, catalog.WithObserver(rec))
	if err != nil {
		_ = ln.Close()
		return err
	}
	if err := store.ReloadAll(ctx); err != nil {
		a.log.Warn("initial catalog load incomplete", zap.Error(err))
	}

	sources, err := watch.Sources(store, targets, watch.Config{
		Interval: a.cfg.PollInterval,
		Logger:   a.log,
	})
	if err != nil {
		_ = ln.Close()
		return err
	}

	handler := catalogapi.NewHandler(store,
		catalogapi.WithLogger(a.log.Named("http")),
		catalogapi.WithMetrics(rec),
		catalogapi.WithDevOrigin(a.cfg.DevOrigin),
		catalogapi.WithClientDist(a.cfg.ClientDist),
	)
	if !handler.ServingClient() {
		a.log.Info("client bundle not found; serving build hint", zap.String("dir", a.cfg.ClientDist))
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, s := range sources {
			if err := s.Start(gctx); err != nil {
				a.log.Warn("change source failed to start", zap.Error(err))
			}
		}
		<-gctx.Done()
		for _, s := range sources {
			s.Stop()
		}
		return nil
	})
	g.Go(func() error {
		a.log.Info("catalog service listening",
			zap.String("addr", ln.Addr().String()),
			zap.Int("dashboards", store.Count(catalog.KindDashboards)),
			zap.Int("queries", store.Count(catalog.KindQueries)))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
