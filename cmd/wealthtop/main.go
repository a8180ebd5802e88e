// Command wealthtop hosts a world fixture and ranks its players or groups by
// wealth.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wealthtop/internal/config"
)

type rootFlags struct {
	configPath  string
	fixturePath string
	catalogDir  string
	debug       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "wealthtop",
		Short:         "Wealth leaderboard for a hosted voxel world",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "configs/wealthtop.yaml", "path to wealthtop.yaml (missing file means defaults)")
	pf.StringVar(&f.fixturePath, "world", "configs/world.yaml", "world fixture to host")
	pf.StringVar(&f.catalogDir, "catalogs", "", "directory with blocks.json, items.json and mobs.json (default: built in)")
	pf.BoolVar(&f.debug, "debug", false, "debug logging")

	root.AddCommand(
		newServeCmd(f),
		newRankCmd(f),
		newStatsCmd(f),
		newHistoryCmd(f),
		newStandingCmd(f),
		newStatusCmd(),
	)
	return root
}

func (f *rootFlags) logger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if f.debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func (f *rootFlags) config() (config.Config, error) {
	path := f.configPath
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
