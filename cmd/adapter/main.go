// Command adapter bridges a Bot Gateway WebSocket and a Core Bot Service
// WebSocket, translating OneBot-v11-style events and actions to and from
// the internal segment tree.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvidia/onebot-core-bridge/internal/banstore"
	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to the adapter's TOML configuration file")
	banDBPath := flag.String("ban-db", "bans.db", "path to the ban store's sqlite database file")
	logLevel := flag.String("log-level", "", "override the config file's debug.level (debug/info/warn/error)")
	flag.Parse()

	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootstrapLogger)

	slog.Info("starting adapter")

	cfgMgr := config.NewManager(bootstrapLogger, *configPath)
	if err := cfgMgr.Load(); err != nil {
		slog.Error("failed to load configuration", "err", err)
		return 1
	}

	level := cfgMgr.Snapshot().Debug.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"gateway_host", cfgMgr.Snapshot().Gateway.Host,
		"gateway_port", cfgMgr.Snapshot().Gateway.Port,
		"core_mode", cfgMgr.Snapshot().Core.Mode,
	)

	bans, err := banstore.Open(*banDBPath)
	if err != nil {
		slog.Error("failed to open ban store", "err", err)
		return 1
	}
	defer bans.Close()

	sup := supervisor.New(logger, cfgMgr, bans)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("adapter exited with error", "err", err)
		return 1
	}

	slog.Info("adapter shut down cleanly")
	return 0
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
