package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentinel/internal/model"
	"sentinel/internal/topology"
)

// severityWeight maps a fired policy's severity to its score
// contribution before clamping.
func severityWeight(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return 100
	case model.SeverityHigh:
		return 40
	case model.SeverityMedium:
		return 20
	case model.SeverityLow:
		return 10
	}
	return 0
}

// Evaluator computes the SRI policy score for a proposed action.
type Evaluator struct {
	policies *Store
	topo     *topology.Store
}

// NewEvaluator builds a policy evaluator over the given stores.
func NewEvaluator(policies *Store, topo *topology.Store) *Evaluator {
	return &Evaluator{policies: policies, topo: topo}
}

// Evaluate checks every policy against the action and aggregates the
// fired set into a score. A single critical violation saturates the
// dimension at 100 and marks HasCriticalViolation.
func (e *Evaluator) Evaluate(ctx context.Context, action *model.ProposedAction) (model.PolicyResult, error) {
	if err := ctx.Err(); err != nil {
		return model.PolicyResult{}, err
	}

	snap := e.topo.Snapshot()
	res := snap.Find(action.Target.ResourceID)

	// Time predicates judge the action at its own submission time, in
	// UTC, not at whatever wall clock the engine happens to run on.
	clock := action.Timestamp
	if clock.IsZero() {
		clock = time.Now()
	}

	in := Input{
		Action:      action,
		Resource:    res,
		Environment: environmentOf(action, res),
		Now:         clock.UTC(),
	}

	var violations []model.Violation
	var score float64
	critical := false
	for _, p := range e.policies.Policies() {
		fired, detail := p.Predicate.Fires(in)
		if !fired {
			continue
		}
		desc := p.Description
		if detail != "" {
			desc = fmt.Sprintf("%s (%s)", p.Description, detail)
		}
		violations = append(violations, model.Violation{
			PolicyID:    p.PolicyID,
			Severity:    p.Severity,
			Description: desc,
		})
		score += severityWeight(p.Severity)
		if p.Severity == model.SeverityCritical {
			critical = true
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		ri, rj := model.SeverityRank(violations[i].Severity), model.SeverityRank(violations[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return violations[i].PolicyID < violations[j].PolicyID
	})

	return model.PolicyResult{
		Score:                model.Clamp(score),
		Violations:           violations,
		HasCriticalViolation: critical,
		Reasoning:            reasoning(violations),
	}, nil
}

func reasoning(violations []model.Violation) string {
	if len(violations) == 0 {
		return "No governance policies violated."
	}
	ids := make([]string, len(violations))
	for i, v := range violations {
		ids[i] = fmt.Sprintf("%s (%s)", v.PolicyID, v.Severity)
	}
	return fmt.Sprintf("%d policy violation(s): %s.", len(violations), strings.Join(ids, ", "))
}

// environmentOf resolves the deployment environment of the target: the
// resource's environment tag when known, else inferred from a "prod"
// fragment in the resource identifier.
func environmentOf(action *model.ProposedAction, res *topology.Resource) string {
	if res != nil {
		if env := res.Tags["environment"]; env != "" {
			return env
		}
	}
	id := strings.ToLower(action.Target.ResourceID)
	if strings.Contains(id, "prod") {
		return "production"
	}
	return ""
}
