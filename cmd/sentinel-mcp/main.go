// Command sentinel-mcp serves the governance engine as an MCP server
// over stdio. MCP hosts spawn it directly:
//
//	{"command": "sentinel-mcp", "env": {"SENTINEL_DATA_DIR": "/etc/sentinel/data"}}
//
// It shares the full engine with sentineld: same evaluators, same seed
// files, same audit log.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sentinel/internal/config"
	"sentinel/internal/governance"
	"sentinel/internal/logging"
	"sentinel/internal/mcpserver"
)

const version = "1.0.0"

func main() {
	// Logs go to stderr; stdout is the MCP transport.
	logging.InitLogging(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("sentinel-mcp failed", "err", err)
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

	slog.Info("sentinel-mcp serving on stdio")
	return mcpserver.Run(ctx, rt.Service, version)
}
