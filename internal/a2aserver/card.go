// Package a2aserver exposes the governance engine to other agents over
// the A2A protocol: an agent card, a JSON-RPC endpoint, and streaming
// progress updates while an evaluation runs.
package a2aserver

import (
	"github.com/a2aproject/a2a-go/a2a"
)

// SkillEvaluateAction and friends are the skill IDs advertised in the
// agent card and accepted in request envelopes.
const (
	SkillEvaluateAction       = "evaluate_action"
	SkillQueryDecisionHistory = "query_decision_history"
	SkillResourceRiskProfile  = "get_resource_risk_profile"
)

// BuildCard builds the agent card served at the well-known path.
func BuildCard(serverURL string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name: "Sentinel Governance Engine",
		Description: "AI action governance: evaluates proposed infrastructure actions " +
			"across blast radius, policy compliance, historical incidents, and financial " +
			"impact, and returns an approve/escalate/deny verdict before anything executes.",
		URL:                serverURL,
		Version:            "1.0.0",
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		Skills: []a2a.AgentSkill{
			{
				ID:   SkillEvaluateAction,
				Name: "Evaluate Action",
				Description: "Evaluate a proposed action JSON object against all governance " +
					"policies and return a verdict with the full SRI breakdown.",
				Tags: []string{"governance", "risk", "sri", "infrastructure"},
			},
			{
				ID:          SkillQueryDecisionHistory,
				Name:        "Query Decision History",
				Description: "Query past governance decisions from the audit log.",
				Tags:        []string{"history", "audit", "decisions"},
			},
			{
				ID:          SkillResourceRiskProfile,
				Name:        "Get Resource Risk Profile",
				Description: "Get the aggregated risk profile of one resource across all of its evaluations.",
				Tags:        []string{"risk", "resource", "profile"},
			},
		},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
	}
}
