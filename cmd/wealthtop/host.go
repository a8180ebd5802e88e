package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"wealthtop/internal/app"
	"wealthtop/internal/config"
	"wealthtop/internal/sim/catalogs"
	"wealthtop/internal/sim/world"
)

// host is a running world with the wealth pipeline attached.
type host struct {
	cfg   config.Config
	log   *zap.Logger
	world *world.World
	app   *app.App
	reg   *prometheus.Registry

	worldDone chan error
}

func startHost(ctx context.Context, f *rootFlags) (*host, error) {
	log, err := f.logger()
	if err != nil {
		return nil, err
	}
	cfg, err := f.config()
	if err != nil {
		return nil, err
	}

	cats := catalogs.Default()
	if dir := strings.TrimSpace(f.catalogDir); dir != "" {
		if cats, err = catalogs.Load(dir); err != nil {
			return nil, fmt.Errorf("load catalogs: %w", err)
		}
	}
	fix, err := world.LoadFixture(f.fixturePath)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	w, err := world.New(fix.Config(), cats, log.Named("world"))
	if err != nil {
		return nil, err
	}
	h := &host{cfg: cfg, log: log, world: w, reg: prometheus.NewRegistry(), worldDone: make(chan error, 1)}
	go func() { h.worldDone <- w.Run(context.WithoutCancel(ctx)) }()

	if err := w.Apply(ctx, fix); err != nil {
		h.stopWorld()
		return nil, fmt.Errorf("apply world: %w", err)
	}
	a, err := app.New(app.Options{
		Config:     cfg,
		World:      w,
		Registerer: h.reg,
		Gatherer:   h.reg,
		Log:        log,
	})
	if err != nil {
		h.stopWorld()
		return nil, err
	}
	h.app = a
	log.Info("world hosted",
		zap.Int("dimensions", len(fix.Dimensions)),
		zap.Int("players", len(fix.Players)),
		zap.Int("groups", len(fix.Groups)),
	)
	return h, nil
}

func (h *host) stopWorld() {
	h.world.Stop()
	if err := <-h.worldDone; err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("world stopped", zap.Error(err))
	}
}

func (h *host) Close() error {
	err := h.app.Close()
	h.stopWorld()
	_ = h.log.Sync()
	return err
}
