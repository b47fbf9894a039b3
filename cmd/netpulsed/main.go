package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/netpulse/netpulse/config"
	"github.com/netpulse/netpulse/internal/app"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("c", "", "config file path (default <workdir>/config.yaml)")
	workdir    = flag.String("d", "", "data directory (overrides config)")
	initDB     = flag.Bool("initdb", false, "drop the store schema, then exit (it is recreated on next start)")
	showVer    = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("netpulsed", version)
		return
	}

	path := *configFile
	if path == "" {
		dir := *workdir
		if dir == "" {
			dir = config.DefaultConfig().System.Workdir
		}
		path = filepath.Join(dir, "config.yaml")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *workdir != "" {
		cfg.System.Workdir = *workdir
	}

	application := app.NewApplication(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	if *initDB {
		if err := application.Store().DropAll(); err != nil {
			zap.L().Fatal("failed to drop schema", zap.Error(err))
		}
		application.Release()
		fmt.Println("store schema dropped; it will be recreated on next start")
		return
	}

	zap.L().Info("netpulsed starting",
		zap.String("version", version),
		zap.String("workdir", cfg.System.Workdir))

	if err := application.Run(ctx); err != nil {
		zap.L().Error("daemon exited with error", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("netpulsed stopped")
}
