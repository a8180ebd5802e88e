package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Host the world, run scheduled leaderboard passes and serve HTTP",
		Long: `Host the world fixture and keep the leaderboard current.

SIGHUP reloads wealthtop.yaml and the worth tables. Storage, history and
board settings need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return serve(ctx, f)
		},
	}
}

func serve(ctx context.Context, f *rootFlags) error {
	h, err := startHost(ctx, f)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			h.log.Warn("shutdown", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              h.cfg.Listen,
		Handler:           h.app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.app.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		h.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				cfg, err := f.config()
				if err != nil {
					h.log.Warn("reload rejected", zap.Error(err))
					continue
				}
				if err := h.app.Reload(cfg); err != nil {
					h.log.Warn("reload failed", zap.Error(err))
				}
			}
		}
	})
	return g.Wait()
}
