package governance

import (
	"context"
	"log/slog"
	"path/filepath"

	"sentinel/internal/audit"
	"sentinel/internal/blastradius"
	"sentinel/internal/config"
	"sentinel/internal/engine"
	"sentinel/internal/financial"
	"sentinel/internal/historical"
	"sentinel/internal/incident"
	"sentinel/internal/narrate"
	"sentinel/internal/policy"
	"sentinel/internal/registry"
	"sentinel/internal/reload"
	"sentinel/internal/topology"
)

// Runtime is a fully wired engine plus the handles the binaries need
// around it.
type Runtime struct {
	Service   *Service
	Topology  *topology.Store
	Policies  *policy.Store
	Incidents *incident.Store

	auditLog audit.Log
	agents   registry.Registry
}

// Close releases the persistence backends.
func (rt *Runtime) Close() {
	rt.auditLog.Close()
	rt.agents.Close()
}

// WatchSeedFiles enables hot reload of the three seed stores.
func (rt *Runtime) WatchSeedFiles(ctx context.Context) error {
	return reload.Watch(ctx, rt.Topology, rt.Policies, rt.Incidents)
}

// Bootstrap builds the whole engine from configuration: seed stores,
// persistence, narrator, evaluators, pipeline, service. Shared by
// sentineld and sentinel-mcp so both binaries run the identical engine.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	topo, err := topology.NewStore(cfg.TopologyPath)
	if err != nil {
		return nil, err
	}
	policies, err := policy.NewStore(cfg.PoliciesPath)
	if err != nil {
		return nil, err
	}
	incidents, err := incident.NewStore(cfg.IncidentsPath)
	if err != nil {
		return nil, err
	}
	slog.Info("seed data loaded",
		"resources", topo.Snapshot().Len(),
		"policies", len(policies.Policies()),
		"incidents", len(incidents.Incidents()))

	auditLog, agents, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	narrator, err := narrate.New(cfg.Narrator, cfg.NarratorModel, cfg.NarratorAPIKey)
	if err != nil {
		auditLog.Close()
		agents.Close()
		return nil, err
	}
	var n engine.Narrator
	if narrator != nil {
		slog.Info("verdict narration enabled", "vendor", cfg.Narrator)
		n = narrator
	}

	evals := engine.Evaluators{
		BlastRadius: blastradius.NewEvaluator(topo),
		Policy:      policy.NewEvaluator(policies, topo),
		Historical:  historical.NewEvaluator(incidents, topo),
		Financial:   financial.NewEvaluator(topo),
	}
	decider := engine.NewDecider(cfg.Weights, cfg.Thresholds)
	pipeline := engine.NewPipeline(evals, decider, auditLog, agents, n, cfg.EvaluatorTimeout)

	return &Runtime{
		Service:   NewService(pipeline, auditLog, agents, incidents, topo),
		Topology:  topo,
		Policies:  policies,
		Incidents: incidents,
		auditLog:  auditLog,
		agents:    agents,
	}, nil
}

// openStores selects the persistence backends: file-per-record stores
// in mock mode, SQL otherwise.
func openStores(ctx context.Context, cfg *config.Config) (audit.Log, registry.Registry, error) {
	if cfg.UseLocalMocks {
		slog.Info("using local file-backed stores", "dir", cfg.DataDir)
		auditLog, err := audit.OpenFile(filepath.Join(cfg.DataDir, "decisions"))
		if err != nil {
			return nil, nil, err
		}
		agents, err := registry.OpenFile(filepath.Join(cfg.DataDir, "agents"))
		if err != nil {
			return nil, nil, err
		}
		return auditLog, agents, nil
	}

	dsn := cfg.AuditDSN
	if dsn == "" {
		dsn = filepath.Join(cfg.DataDir, "sentinel.db")
	}
	slog.Info("using SQL stores", "dsn", dsn)
	auditLog, err := audit.OpenSQL(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	agents, err := registry.OpenSQL(ctx, dsn)
	if err != nil {
		auditLog.Close()
		return nil, nil, err
	}
	return auditLog, agents, nil
}
