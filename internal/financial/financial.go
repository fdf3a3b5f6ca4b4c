// Package financial scores the cost impact of a proposed action: the
// estimated monthly change, a linear forward projection, and an
// over-optimization check for savings that endanger critical or shared
// infrastructure.
package financial

import (
	"context"
	"fmt"
	"math"
	"strings"

	"sentinel/internal/model"
	"sentinel/internal/topology"
)

// magnitudeScore grades the absolute monthly change in USD.
func magnitudeScore(absChange float64) float64 {
	switch {
	case absChange >= 1000:
		return 70
	case absChange >= 600:
		return 50
	case absChange >= 300:
		return 30
	case absChange >= 100:
		return 15
	case absChange > 0:
		return 5
	}
	return 0
}

// actionMultiplier reflects how reversible the financial commitment is.
func actionMultiplier(t model.ActionType) float64 {
	switch t {
	case model.ActionDeleteResource:
		return 1.5
	case model.ActionScaleDown:
		return 1.2
	case model.ActionUpdateConfig:
		return 0.8
	case model.ActionScaleUp:
		return 0.6
	case model.ActionCreateResource:
		return 0.5
	case model.ActionRestartService, model.ActionModifyNSG:
		return 0.3
	}
	return 0.5
}

const (
	overOptPenalty   = 20
	uncertainPenalty = 10
	recoveryUnitUSD  = 10000
)

// Evaluator computes the SRI cost score.
type Evaluator struct {
	topo *topology.Store
}

// NewEvaluator builds a financial evaluator over the topology store.
func NewEvaluator(topo *topology.Store) *Evaluator {
	return &Evaluator{topo: topo}
}

// Evaluate estimates the monthly cost change and scores it. The agent's
// own projected savings, when supplied, override the engine's estimate.
func (e *Evaluator) Evaluate(ctx context.Context, action *model.ProposedAction) (model.FinancialResult, error) {
	if err := ctx.Err(); err != nil {
		return model.FinancialResult{}, err
	}

	res := e.topo.Snapshot().Find(action.Target.ResourceID)
	change, uncertain := estimateChange(action, res)

	score := magnitudeScore(math.Abs(change)) * actionMultiplier(action.ActionType)

	overOpt := checkOverOptimization(change, res)
	if overOpt.Triggered {
		score += overOptPenalty
	}
	if uncertain {
		score += uncertainPenalty
	}
	score = model.Clamp(score)

	return model.FinancialResult{
		Score:            score,
		MonthlyChange:    change,
		Projected90d:     3 * change,
		Projection:       projection(change),
		CostUncertain:    uncertain,
		OverOptimization: overOpt,
		Reasoning:        reasoning(action, change, uncertain, overOpt, score),
	}, nil
}

// estimateChange returns the signed monthly cost delta in USD and
// whether the figure is an uncertain estimate. Negative means savings.
func estimateChange(action *model.ProposedAction, res *topology.Resource) (float64, bool) {
	if action.ProjectedSavingsMonthly != nil {
		return -*action.ProjectedSavingsMonthly, false
	}

	cost := action.Target.CurrentMonthlyCost
	if cost == nil && res != nil {
		cost = res.MonthlyCost
	}

	switch action.ActionType {
	case model.ActionDeleteResource:
		if cost != nil {
			return -*cost, false
		}
		return 0, true
	case model.ActionScaleDown:
		if cost != nil {
			return -0.3 * *cost, true
		}
		return 0, true
	case model.ActionScaleUp:
		if cost != nil {
			return 0.5 * *cost, true
		}
		return 0, true
	case model.ActionCreateResource:
		if cost != nil {
			return *cost, true
		}
		return 0, true
	case model.ActionUpdateConfig:
		return 0, true
	case model.ActionRestartService, model.ActionModifyNSG:
		// No standing cost change.
		return 0, false
	}
	return 0, true
}

// checkOverOptimization flags cost reductions against infrastructure
// whose failure would cost far more to recover than the savings are
// worth: critical-tagged targets, shared targets, or service hosts.
func checkOverOptimization(change float64, res *topology.Resource) model.OverOptimization {
	if change >= 0 || res == nil {
		return model.OverOptimization{}
	}
	critical := res.Criticality() == "critical"
	shared := len(res.Dependents) >= 2
	hosting := len(res.ServicesHosted) >= 1
	if !critical && !shared && !hosting {
		return model.OverOptimization{}
	}

	units := len(res.Dependents) + len(res.ServicesHosted)
	if units < 1 {
		units = 1
	}
	risk := float64(units) * recoveryUnitUSD

	var why []string
	if critical {
		why = append(why, "target is tagged critical")
	}
	if shared {
		why = append(why, fmt.Sprintf("%d resources depend on it", len(res.Dependents)))
	}
	if hosting {
		why = append(why, fmt.Sprintf("it hosts %d service(s)", len(res.ServicesHosted)))
	}
	return model.OverOptimization{
		Triggered: true,
		RiskUSD:   risk,
		Rationale: fmt.Sprintf("Savings of $%.2f/month against an estimated $%.0f recovery exposure: %s.",
			-change, risk, strings.Join(why, "; ")),
	}
}

func projection(change float64) model.CostProjection {
	return model.CostProjection{
		Month1:     change,
		Month2:     change,
		Month3:     change,
		Total90Day: 3 * change,
		Annualized: 12 * change,
	}
}

func reasoning(action *model.ProposedAction, change float64, uncertain bool, overOpt model.OverOptimization, score float64) string {
	var b strings.Builder
	switch {
	case change < 0:
		fmt.Fprintf(&b, "%s saves an estimated $%.2f/month", action.ActionType, -change)
	case change > 0:
		fmt.Fprintf(&b, "%s adds an estimated $%.2f/month", action.ActionType, change)
	default:
		fmt.Fprintf(&b, "%s has no estimated standing cost change", action.ActionType)
	}
	if uncertain {
		b.WriteString(" (estimate uncertain)")
	}
	if overOpt.Triggered {
		b.WriteString(". Over-optimization risk: " + overOpt.Rationale)
	}
	fmt.Fprintf(&b, ". Cost risk %.0f/100.", score)
	return b.String()
}
