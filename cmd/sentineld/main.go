// Command sentineld runs the governance engine server: the A2A
// endpoints and the dashboard API on one listener.
//
// Configuration comes from SENTINEL_* environment variables (see
// internal/config), with an optional .env file in the working
// directory. Logging verbosity comes from SENTINEL_LOG_LEVEL or the
// -log-level flag.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sentinel/internal/a2aserver"
	"sentinel/internal/config"
	"sentinel/internal/dashboard"
	"sentinel/internal/governance"
	"sentinel/internal/logging"
)

func main() {
	logging.InitLogging(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("sentineld failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rt, err := governance.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.WatchFiles {
		if err := rt.WatchSeedFiles(ctx); err != nil {
			return err
		}
		slog.Info("hot reload enabled",
			"topology", cfg.TopologyPath, "policies", cfg.PoliciesPath, "incidents", cfg.IncidentsPath)
	}

	return a2aserver.Serve(ctx, rt.Service, a2aserver.Config{
		ListenAddr:               cfg.ListenAddr,
		ServerURL:                cfg.ServerURL,
		MaxConcurrentEvaluations: cfg.MaxConcurrentEvaluations,
		Extra:                    dashboard.New(rt.Service).Routes(),
	})
}
