// Package engine composes the four evaluator scores into the Sentinel
// Risk Index and the final verdict, and runs the evaluation pipeline
// that fans the evaluators out, absorbs their failures, and persists
// the result.
package engine

import (
	"fmt"
	"strings"
	"time"

	"sentinel/internal/model"
)

// Decider turns evaluator results into a governance verdict under a
// fixed weight vector and threshold pair.
type Decider struct {
	weights    model.Weights
	thresholds model.Thresholds
}

// NewDecider builds a decider. The configuration layer has already
// validated the weights and thresholds.
func NewDecider(w model.Weights, t model.Thresholds) *Decider {
	return &Decider{weights: w, thresholds: t}
}

// Decide composes the verdict. A critical policy violation denies
// outright and forces the composite above the human-review line so the
// score band and the decision never disagree.
func (d *Decider) Decide(action *model.ProposedAction, sub model.SubResults, at time.Time) *model.GovernanceVerdict {
	sri := model.SRI{
		Infrastructure: model.Clamp(sub.BlastRadius.Score),
		Policy:         model.Clamp(sub.Policy.Score),
		Historical:     model.Clamp(sub.Historical.Score),
		Cost:           model.Clamp(sub.Financial.Score),
	}
	sri.Composite = model.Clamp(
		d.weights.Infrastructure*sri.Infrastructure +
			d.weights.Policy*sri.Policy +
			d.weights.Historical*sri.Historical +
			d.weights.Cost*sri.Cost)

	var decision model.Decision
	switch {
	case sub.Policy.HasCriticalViolation:
		decision = model.DecisionDenied
		if floor := d.thresholds.HumanReview + 1; sri.Composite < floor {
			sri.Composite = model.Clamp(floor)
		}
	case sri.Composite <= d.thresholds.AutoApprove:
		decision = model.DecisionApproved
	case sri.Composite <= d.thresholds.HumanReview:
		decision = model.DecisionEscalated
	default:
		decision = model.DecisionDenied
	}

	// Bare policy IDs; the typed detail stays in SubResults.Policy.
	violations := make([]string, 0, len(sub.Policy.Violations))
	for _, v := range sub.Policy.Violations {
		violations = append(violations, v.PolicyID)
	}

	return &model.GovernanceVerdict{
		ActionID:   action.ActionID,
		AgentID:    action.AgentID,
		ActionType: action.ActionType,
		Target:     action.Target,
		Decision:   decision,
		SRI:        sri,
		Weights:    d.weights,
		Thresholds: d.thresholds,
		Reason:     d.reason(decision, sri, sub),
		Violations: violations,
		SubResults: sub,
		Timestamp:  at.UTC(),
	}
}

// reason builds the deterministic one-paragraph explanation: the
// composite, the dominant risk dimension, and the leading violation.
func (d *Decider) reason(decision model.Decision, sri model.SRI, sub model.SubResults) string {
	var b strings.Builder
	switch decision {
	case model.DecisionApproved:
		fmt.Fprintf(&b, "Approved: SRI composite %.1f is within the auto-approve threshold of %.1f.",
			sri.Composite, d.thresholds.AutoApprove)
	case model.DecisionEscalated:
		fmt.Fprintf(&b, "Escalated for human review: SRI composite %.1f exceeds the auto-approve threshold of %.1f.",
			sri.Composite, d.thresholds.AutoApprove)
	case model.DecisionDenied:
		if sub.Policy.HasCriticalViolation {
			fmt.Fprintf(&b, "Denied: %s is a critical policy violation and blocks this action outright (SRI composite %.1f).",
				firstCriticalPolicy(sub.Policy.Violations), sri.Composite)
		} else {
			fmt.Fprintf(&b, "Denied: SRI composite %.1f exceeds the human-review threshold of %.1f.",
				sri.Composite, d.thresholds.HumanReview)
		}
	}

	name, score := dominantDimension(sri)
	fmt.Fprintf(&b, " Dominant risk dimension: %s (%.1f).", name, score)

	if len(sub.Policy.Violations) > 0 {
		v := sub.Policy.Violations[0]
		fmt.Fprintf(&b, " Leading violation: %s (%s) %s.", v.PolicyID, v.Severity, v.Description)
	}
	return b.String()
}

// firstCriticalPolicy returns the ID of the highest-ranked critical
// violation. Violations arrive sorted severity first, so this is
// normally the head of the list.
func firstCriticalPolicy(violations []model.Violation) string {
	for _, v := range violations {
		if v.Severity == model.SeverityCritical {
			return v.PolicyID
		}
	}
	return "a policy"
}

// dominantDimension returns the highest-scoring dimension. Ties resolve
// in the fixed order infrastructure, policy, historical, cost.
func dominantDimension(sri model.SRI) (string, float64) {
	name, score := "infrastructure", sri.Infrastructure
	if sri.Policy > score {
		name, score = "policy", sri.Policy
	}
	if sri.Historical > score {
		name, score = "historical", sri.Historical
	}
	if sri.Cost > score {
		name, score = "cost", sri.Cost
	}
	return name, score
}
