// Package model defines the data contracts of the Sentinel governance
// engine: proposed actions coming in from operational agents, the
// Sentinel Risk Index (SRI) breakdown, per-evaluator results, and the
// final governance verdict.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType classifies an infrastructure mutation an agent may propose.
type ActionType string

const (
	ActionScaleUp        ActionType = "scale_up"
	ActionScaleDown      ActionType = "scale_down"
	ActionDeleteResource ActionType = "delete_resource"
	ActionRestartService ActionType = "restart_service"
	ActionModifyNSG      ActionType = "modify_nsg"
	ActionCreateResource ActionType = "create_resource"
	ActionUpdateConfig   ActionType = "update_config"
)

// ValidActionType reports whether t is one of the recognized action types.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionScaleUp, ActionScaleDown, ActionDeleteResource,
		ActionRestartService, ActionModifyNSG, ActionCreateResource,
		ActionUpdateConfig:
		return true
	}
	return false
}

// Destructive reports whether the action type is considered destructive
// for policy purposes (used by the min_dependents predicate).
func (t ActionType) Destructive() bool {
	switch t {
	case ActionDeleteResource, ActionScaleDown, ActionRestartService, ActionModifyNSG:
		return true
	}
	return false
}

// Urgency is the proposing agent's own urgency estimate.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Decision is the outcome of a governance evaluation.
type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionEscalated Decision = "escalated"
	DecisionDenied    Decision = "denied"
)

// Severity grades policies and incidents.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank orders severities for sorting, critical first.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// ActionTarget identifies the resource a proposed action would mutate.
type ActionTarget struct {
	ResourceID         string   `json:"resource_id"`
	ResourceType       string   `json:"resource_type"`
	CurrentSKU         string   `json:"current_sku,omitempty"`
	ProposedSKU        string   `json:"proposed_sku,omitempty"`
	CurrentMonthlyCost *float64 `json:"current_monthly_cost,omitempty"`
}

// ProposedAction is an infrastructure mutation proposed by an
// operational agent. Immutable after acceptance by the pipeline.
type ProposedAction struct {
	ActionID                string         `json:"action_id,omitempty"`
	AgentID                 string         `json:"agent_id,omitempty"`
	ActionType              ActionType     `json:"action_type"`
	Target                  ActionTarget   `json:"target"`
	Reason                  string         `json:"reason,omitempty"`
	Urgency                 Urgency        `json:"urgency,omitempty"`
	ProjectedSavingsMonthly *float64       `json:"projected_savings_monthly,omitempty"`
	Metadata                map[string]any `json:"metadata,omitempty"`
	Timestamp               time.Time      `json:"timestamp,omitzero"`
}

// Normalize validates required fields, applies defaults, and assigns
// an action ID and timestamp when absent. A caller-supplied action ID
// must be a UUID. Returns ErrInvalidInput (wrapped) on schema
// violations.
func (a *ProposedAction) Normalize(now time.Time) error {
	if a.Target.ResourceID == "" {
		return fmt.Errorf("%w: target.resource_id is required", ErrInvalidInput)
	}
	if a.ActionType == "" {
		return fmt.Errorf("%w: action_type is required", ErrInvalidInput)
	}
	if !ValidActionType(a.ActionType) {
		return fmt.Errorf("%w: unknown action_type %q", ErrInvalidInput, a.ActionType)
	}
	switch a.Urgency {
	case "":
		a.Urgency = UrgencyMedium
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
	default:
		return fmt.Errorf("%w: unknown urgency %q", ErrInvalidInput, a.Urgency)
	}
	if a.ActionID == "" {
		a.ActionID = uuid.New().String()
	} else if _, err := uuid.Parse(a.ActionID); err != nil {
		// Caller-supplied IDs become file names and keys downstream;
		// anything but a UUID is rejected.
		return fmt.Errorf("%w: action_id %q is not a UUID", ErrInvalidInput, a.ActionID)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now.UTC()
	} else {
		a.Timestamp = a.Timestamp.UTC()
	}
	return nil
}

// SRI is the Sentinel Risk Index breakdown. All five scores are
// clamped to [0,100].
type SRI struct {
	Infrastructure float64 `json:"infrastructure"`
	Policy         float64 `json:"policy"`
	Historical     float64 `json:"historical"`
	Cost           float64 `json:"cost"`
	Composite      float64 `json:"composite"`
}

// Weights is the dimension weight vector used to compute the composite.
// The four weights must sum to 1.0 within 1e-9.
type Weights struct {
	Infrastructure float64 `json:"infrastructure"`
	Policy         float64 `json:"policy"`
	Historical     float64 `json:"historical"`
	Cost           float64 `json:"cost"`
}

// DefaultWeights returns the default SRI dimension weights.
func DefaultWeights() Weights {
	return Weights{Infrastructure: 0.30, Policy: 0.25, Historical: 0.25, Cost: 0.20}
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Infrastructure + w.Policy + w.Historical + w.Cost
}

// Thresholds are the decision band boundaries. composite <= AutoApprove
// approves, composite <= HumanReview escalates, anything above denies.
type Thresholds struct {
	AutoApprove float64 `json:"auto_approve"`
	HumanReview float64 `json:"human_review"`
}

// DefaultThresholds returns the default decision thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoApprove: 25, HumanReview: 60}
}

// Violation is a policy that fired during evaluation.
type Violation struct {
	PolicyID    string   `json:"policy_id"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// BlastRadiusResult is the SRI:Infrastructure evaluator output.
type BlastRadiusResult struct {
	Score                 float64  `json:"score"`
	AffectedResources     []string `json:"affected_resources"`
	AffectedServices      []string `json:"affected_services"`
	SinglePointsOfFailure []string `json:"single_points_of_failure"`
	AffectedZones         []string `json:"affected_zones"`
	Reasoning             string   `json:"reasoning"`
}

// PolicyResult is the SRI:Policy evaluator output.
type PolicyResult struct {
	Score                float64     `json:"score"`
	Violations           []Violation `json:"violations"`
	HasCriticalViolation bool        `json:"has_critical_violation"`
	Reasoning            string      `json:"reasoning"`
}

// IncidentMatch is a past incident scored against the proposed action.
type IncidentMatch struct {
	IncidentID string   `json:"incident_id"`
	Similarity float64  `json:"similarity"`
	Severity   Severity `json:"severity"`
	Summary    string   `json:"summary"`
}

// HistoricalResult is the SRI:Historical evaluator output.
type HistoricalResult struct {
	Score                float64         `json:"score"`
	SimilarIncidents     []IncidentMatch `json:"similar_incidents"`
	MostRelevantIncident *IncidentMatch  `json:"most_relevant_incident,omitempty"`
	RecommendedProcedure string          `json:"recommended_procedure,omitempty"`
	Reasoning            string          `json:"reasoning"`
}

// OverOptimization flags a cost-reducing action whose savings are small
// compared to the worst-case recovery cost of a dependent failing.
type OverOptimization struct {
	Triggered bool    `json:"triggered"`
	RiskUSD   float64 `json:"risk_usd,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// CostProjection is a simple linear forward projection of the monthly
// cost change.
type CostProjection struct {
	Month1     float64 `json:"month_1"`
	Month2     float64 `json:"month_2"`
	Month3     float64 `json:"month_3"`
	Total90Day float64 `json:"total_90_day"`
	Annualized float64 `json:"annualized"`
}

// FinancialResult is the SRI:Cost evaluator output. MonthlyChange is
// signed USD: negative means savings.
type FinancialResult struct {
	Score            float64          `json:"score"`
	MonthlyChange    float64          `json:"monthly_change"`
	Projected90d     float64          `json:"projected_90d"`
	Projection       CostProjection   `json:"projection"`
	CostUncertain    bool             `json:"cost_uncertain"`
	OverOptimization OverOptimization `json:"over_optimization"`
	Reasoning        string           `json:"reasoning"`
}

// SubResults carries the four typed evaluator results inside a verdict.
type SubResults struct {
	BlastRadius BlastRadiusResult `json:"blast_radius"`
	Policy      PolicyResult      `json:"policy"`
	Historical  HistoricalResult  `json:"historical"`
	Financial   FinancialResult   `json:"financial"`
}

// GovernanceVerdict is the engine's output for one proposed action.
// Written once to the audit log, addressable by ActionID.
type GovernanceVerdict struct {
	ActionID   string       `json:"action_id"`
	AgentID    string       `json:"agent_id,omitempty"`
	ActionType ActionType   `json:"action_type"`
	Target     ActionTarget `json:"target"`
	Decision   Decision     `json:"decision"`
	SRI        SRI          `json:"sri"`
	Weights    Weights      `json:"weights"`
	Thresholds Thresholds   `json:"thresholds"`
	Reason     string       `json:"reason"`
	Violations []string     `json:"violations"`
	SubResults SubResults   `json:"sub_results"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Clamp bounds v to the [0,100] score range.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
