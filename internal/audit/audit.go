// Package audit persists governance verdicts and answers the decision
// history queries behind the dashboard, the A2A skills, and the MCP
// tools. Two backends: a SQL store (SQLite or Postgres) for live
// deployments, and a file-per-verdict store for local mock mode.
package audit

import (
	"context"
	"sort"

	"sentinel/internal/model"
)

// Log is the verdict persistence surface. Record is idempotent on
// action ID: re-recording the same verdict is a no-op.
type Log interface {
	Record(ctx context.Context, v *model.GovernanceVerdict) error
	// GetRecent returns the newest verdicts, optionally filtered to
	// resources whose ID contains the filter as a substring. Ordered
	// timestamp descending, action ID ascending.
	GetRecent(ctx context.Context, limit int, resourceFilter string) ([]model.GovernanceVerdict, error)
	// GetByID returns one verdict or model.ErrNotFound.
	GetByID(ctx context.Context, actionID string) (*model.GovernanceVerdict, error)
	// GetByAgent returns the newest verdicts for one agent.
	GetByAgent(ctx context.Context, agentID string, limit int) ([]model.GovernanceVerdict, error)
	// Aggregate summarizes the whole log.
	Aggregate(ctx context.Context) (Summary, error)
	Close() error
}

// Summary is the aggregate view of a set of verdicts: decision counts,
// the composite spread, per-dimension averages, and the most frequent
// violations and targets.
type Summary struct {
	Total        int     `json:"total"`
	Approved     int     `json:"approved"`
	Escalated    int     `json:"escalated"`
	Denied       int     `json:"denied"`
	MinComposite float64 `json:"min_composite"`
	AvgComposite float64 `json:"avg_composite"`
	MaxComposite float64 `json:"max_composite"`

	AvgInfrastructure float64 `json:"avg_infrastructure"`
	AvgPolicy         float64 `json:"avg_policy"`
	AvgHistorical     float64 `json:"avg_historical"`
	AvgCost           float64 `json:"avg_cost"`

	TopViolations []NamedCount `json:"top_violations,omitempty"`
	TopResources  []NamedCount `json:"top_resources,omitempty"`
}

// NamedCount pairs a name with how often it occurred.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summarize folds verdicts into a Summary. Top lists are count
// descending, name ascending, capped at five entries.
func Summarize(verdicts []model.GovernanceVerdict) Summary {
	var s Summary
	violations := make(map[string]int)
	resources := make(map[string]int)
	for i := range verdicts {
		v := &verdicts[i]
		s.Total++
		switch v.Decision {
		case model.DecisionApproved:
			s.Approved++
		case model.DecisionEscalated:
			s.Escalated++
		case model.DecisionDenied:
			s.Denied++
		}
		c := v.SRI.Composite
		if s.Total == 1 || c < s.MinComposite {
			s.MinComposite = c
		}
		if c > s.MaxComposite {
			s.MaxComposite = c
		}
		s.AvgComposite += c
		s.AvgInfrastructure += v.SRI.Infrastructure
		s.AvgPolicy += v.SRI.Policy
		s.AvgHistorical += v.SRI.Historical
		s.AvgCost += v.SRI.Cost

		for _, id := range v.Violations {
			violations[id]++
		}
		resources[v.Target.ResourceID]++
	}
	if s.Total > 0 {
		n := float64(s.Total)
		s.AvgComposite /= n
		s.AvgInfrastructure /= n
		s.AvgPolicy /= n
		s.AvgHistorical /= n
		s.AvgCost /= n
	}
	s.TopViolations = topCounts(violations, 5)
	s.TopResources = topCounts(resources, 5)
	return s
}

func topCounts(counts map[string]int, n int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, NamedCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// clampLimit bounds a caller-supplied page size.
func clampLimit(limit int) int {
	if limit < 1 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
