// Package blastradius scores the infrastructure impact of a proposed
// action from the topology graph: base action weight, target
// criticality, fan-out to dependents and hosted services, and the
// critical-tier resources caught in the blast radius.
package blastradius

import (
	"context"
	"fmt"
	"strings"

	"sentinel/internal/model"
	"sentinel/internal/topology"
)

// baseScore is the inherent disruptiveness of each action type.
func baseScore(t model.ActionType) float64 {
	switch t {
	case model.ActionScaleUp:
		return 10
	case model.ActionScaleDown:
		return 15
	case model.ActionCreateResource:
		return 15
	case model.ActionRestartService:
		return 20
	case model.ActionUpdateConfig:
		return 20
	case model.ActionModifyNSG:
		return 30
	case model.ActionDeleteResource:
		return 40
	}
	return 0
}

// criticalityScore is the contribution of the target's criticality tag.
func criticalityScore(c string) float64 {
	switch c {
	case "critical":
		return 30
	case "high":
		return 20
	case "medium":
		return 10
	}
	return 0
}

// Evaluator computes the SRI infrastructure score.
type Evaluator struct {
	topo *topology.Store
}

// NewEvaluator builds a blast-radius evaluator over the topology store.
func NewEvaluator(topo *topology.Store) *Evaluator {
	return &Evaluator{topo: topo}
}

// Evaluate scores the action's blast radius. An unknown target scores
// zero: the graph has nothing to say about it, and guessing would
// poison the composite.
func (e *Evaluator) Evaluate(ctx context.Context, action *model.ProposedAction) (model.BlastRadiusResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BlastRadiusResult{}, err
	}

	snap := e.topo.Snapshot()
	res := snap.Find(action.Target.ResourceID)
	if res == nil {
		return model.BlastRadiusResult{
			Score:     0,
			Reasoning: fmt.Sprintf("Resource %s is not in the topology; no blast radius could be computed.", action.Target.ResourceID),
		}, nil
	}

	affected := snap.Neighborhood(res)
	services := append([]string(nil), res.ServicesHosted...)
	spofs := singlePointsOfFailure(snap, res, affected)
	zones := affectedZones(snap, res, affected)

	// The target's own criticality is already priced in; only the
	// other critical resources in the radius add to the score.
	extraSPOFs := 0
	for _, s := range spofs {
		if s != res.Name {
			extraSPOFs++
		}
	}

	score := baseScore(action.ActionType)
	score += criticalityScore(res.Criticality())
	score += 5 * float64(len(res.Dependents))
	score += 5 * float64(len(services))
	score += 10 * float64(extraSPOFs)
	score = model.Clamp(score)

	return model.BlastRadiusResult{
		Score:                 score,
		AffectedResources:     affected,
		AffectedServices:      services,
		SinglePointsOfFailure: spofs,
		AffectedZones:         zones,
		Reasoning:             reasoning(action, res, affected, services, spofs, score),
	}, nil
}

// singlePointsOfFailure returns the critical-tier resources in the
// blast radius: the target itself when tagged critical, then every
// affected resource with the same tag. Nothing stands in for these if
// the action goes wrong.
func singlePointsOfFailure(snap *topology.Snapshot, res *topology.Resource, affected []string) []string {
	var out []string
	if res.Criticality() == "critical" {
		out = append(out, res.Name)
	}
	for _, name := range affected {
		r := snap.Find(name)
		if r == nil || r.Name == res.Name {
			continue
		}
		if r.Criticality() == "critical" {
			out = append(out, r.Name)
		}
	}
	return out
}

// affectedZones collects the distinct locations of the target and its
// neighborhood, insertion-ordered.
func affectedZones(snap *topology.Snapshot, res *topology.Resource, affected []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(loc string) {
		if loc != "" && !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}
	add(res.Location)
	for _, name := range affected {
		if r := snap.Find(name); r != nil {
			add(r.Location)
		}
	}
	return out
}

func reasoning(action *model.ProposedAction, res *topology.Resource, affected, services, spofs []string, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s", action.ActionType, res.Name)
	if c := res.Criticality(); c != "" {
		fmt.Fprintf(&b, " (criticality %s)", c)
	}
	fmt.Fprintf(&b, " reaches %d resource(s)", len(affected))
	if len(services) > 0 {
		fmt.Fprintf(&b, " and %d hosted service(s)", len(services))
	}
	if len(spofs) > 0 {
		fmt.Fprintf(&b, "; %d single point(s) of failure in the radius: %s", len(spofs), strings.Join(spofs, ", "))
	}
	fmt.Fprintf(&b, ". Infrastructure risk %.0f/100.", score)
	return b.String()
}
