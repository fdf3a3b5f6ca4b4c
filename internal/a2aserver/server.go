package a2aserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/a2aproject/a2a-go/a2asrv"

	"sentinel/internal/governance"
)

// Config holds the server options.
type Config struct {
	// ListenAddr is the bind address (":8000" style).
	ListenAddr string
	// ServerURL is the externally visible base URL put in the agent card.
	// Derived from the listener when empty.
	ServerURL string
	// MaxConcurrentEvaluations bounds in-flight evaluate_action tasks.
	MaxConcurrentEvaluations int
	// Extra carries additional HTTP routes (the dashboard API) to mount
	// alongside the A2A endpoints.
	Extra map[string]http.Handler
}

// Serve starts the A2A + dashboard server and blocks until ctx is
// cancelled or the listener fails.
func Serve(ctx context.Context, svc *governance.Service, cfg Config) error {
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %v", cfg.ListenAddr, err)
	}

	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = (&url.URL{Scheme: "http", Host: listener.Addr().String()}).String()
	}
	card := BuildCard(serverURL)

	mux := http.NewServeMux()
	mux.Handle(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(card))
	// Legacy well-known alias still probed by older clients.
	mux.HandleFunc("GET /.well-known/agent.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(card); err != nil {
			slog.Warn("failed to write agent card", "err", err)
		}
	})

	executor := NewExecutor(svc, cfg.MaxConcurrentEvaluations)
	requestHandler := a2asrv.NewHandler(executor)
	mux.Handle("/", a2asrv.NewJSONRPCHandler(requestHandler))

	for pattern, handler := range cfg.Extra {
		mux.Handle(pattern, handler)
	}

	slog.Info("starting governance A2A server",
		"url", serverURL,
		"card", serverURL+"/.well-known/agent-card.json")

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	err = srv.Serve(listener)
	if err == http.ErrServerClosed || ctx.Err() != nil {
		slog.Info("governance A2A server stopped")
		return nil
	}
	slog.Warn("governance A2A server stopped", "err", err)
	return err
}
