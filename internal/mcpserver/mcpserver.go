// Package mcpserver exposes the governance engine as an MCP server
// over stdio, so assistant hosts can evaluate actions and query the
// audit trail as tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sentinel/internal/governance"
	"sentinel/internal/model"
)

// evaluateInput is the evaluate_action tool input.
type evaluateInput struct {
	AgentID                 string         `json:"agent_id,omitempty" jsonschema:"identifier of the proposing agent"`
	ActionType              string         `json:"action_type" jsonschema:"one of scale_up, scale_down, delete_resource, restart_service, modify_nsg, create_resource, update_config"`
	ResourceID              string         `json:"resource_id" jsonschema:"target resource name or full resource ID"`
	ResourceType            string         `json:"resource_type,omitempty" jsonschema:"target resource type"`
	Reason                  string         `json:"reason,omitempty" jsonschema:"why the agent proposes this action"`
	Urgency                 string         `json:"urgency,omitempty" jsonschema:"low, medium, high, or critical"`
	ProjectedSavingsMonthly *float64       `json:"projected_savings_monthly,omitempty" jsonschema:"agent's own monthly savings estimate in USD"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// historyInput is the get_recent_decisions tool input.
type historyInput struct {
	ResourceID string `json:"resource_id,omitempty" jsonschema:"only return decisions whose resource ID contains this substring"`
	Limit      int    `json:"limit,omitempty" jsonschema:"max decisions to return, 1-100, default 20"`
}

// riskProfileInput is the get_risk_profile tool input.
type riskProfileInput struct {
	ResourceID string `json:"resource_id" jsonschema:"resource name or full resource ID"`
	Limit      int    `json:"limit,omitempty" jsonschema:"max recent decisions to include, 1-100, default 20"`
}

// NewServer builds the MCP server with the three governance tools.
func NewServer(svc *governance.Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sentinel-governance",
		Title:   "Sentinel Governance Engine",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "evaluate_action",
		Description: "Evaluate a proposed infrastructure action against all governance " +
			"policies and return the verdict with the full SRI breakdown.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in evaluateInput) (*mcp.CallToolResult, any, error) {
		action := &model.ProposedAction{
			AgentID:    in.AgentID,
			ActionType: model.ActionType(in.ActionType),
			Target: model.ActionTarget{
				ResourceID:   in.ResourceID,
				ResourceType: in.ResourceType,
			},
			Reason:                  in.Reason,
			Urgency:                 model.Urgency(in.Urgency),
			ProjectedSavingsMonthly: in.ProjectedSavingsMonthly,
			Metadata:                in.Metadata,
		}
		verdict, err := svc.EvaluateAction(ctx, action)
		if err != nil {
			return nil, nil, err
		}
		return textResult(verdict)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_recent_decisions",
		Description: "Query past governance decisions from the audit log, newest first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in historyInput) (*mcp.CallToolResult, any, error) {
		verdicts, err := svc.RecentDecisions(ctx, in.Limit, in.ResourceID)
		if err != nil {
			return nil, nil, err
		}
		return textResult(map[string]any{"decisions": verdicts, "count": len(verdicts)})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_risk_profile",
		Description: "Get the aggregated risk profile of one resource: topology standing " +
			"plus its governance decision history.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in riskProfileInput) (*mcp.CallToolResult, any, error) {
		profile, err := svc.ResourceRiskProfile(ctx, in.ResourceID, in.Limit)
		if err != nil {
			return nil, nil, err
		}
		return textResult(profile)
	})

	return server
}

// Run serves the MCP server over stdio until the host disconnects.
func Run(ctx context.Context, svc *governance.Service, version string) error {
	return NewServer(svc, version).Run(ctx, &mcp.StdioTransport{})
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil, nil
}
