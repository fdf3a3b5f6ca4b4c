// Package historical scores a proposed action against the incident
// corpus: structural similarity across action type, resource type,
// resource name, and tags, weighted by the severity of what happened
// last time.
package historical

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sentinel/internal/incident"
	"sentinel/internal/model"
	"sentinel/internal/topology"
)

// Similarity dimension weights. An incident qualifies as a match when
// its total similarity reaches the threshold.
const (
	weightActionType   = 0.40
	weightResourceType = 0.30
	weightResourceName = 0.20
	weightTags         = 0.10

	matchThreshold = 0.30
)

// incidentSeverityWeight scales the best match's contribution.
func incidentSeverityWeight(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return 100
	case model.SeverityHigh:
		return 75
	case model.SeverityMedium:
		return 40
	case model.SeverityLow:
		return 10
	}
	return 0
}

// Evaluator computes the SRI historical score.
type Evaluator struct {
	incidents *incident.Store
	topo      *topology.Store
}

// NewEvaluator builds a historical evaluator over the incident corpus
// and the topology (used to resolve the target's type and tags).
func NewEvaluator(incidents *incident.Store, topo *topology.Store) *Evaluator {
	return &Evaluator{incidents: incidents, topo: topo}
}

// Evaluate finds past incidents similar to the action and scores the
// dimension. The best match contributes its similarity scaled by its
// severity weight; every further match adds similarity times 20.
func (e *Evaluator) Evaluate(ctx context.Context, action *model.ProposedAction) (model.HistoricalResult, error) {
	if err := ctx.Err(); err != nil {
		return model.HistoricalResult{}, err
	}

	res := e.topo.Snapshot().Find(action.Target.ResourceID)
	resourceType := action.Target.ResourceType
	var tags map[string]string
	if res != nil {
		if res.Type != "" {
			resourceType = res.Type
		}
		tags = res.Tags
	}

	var matches []model.IncidentMatch
	byID := make(map[string]incident.Incident)
	for _, inc := range e.incidents.Incidents() {
		sim := similarity(action, resourceType, tags, inc)
		if sim < matchThreshold {
			continue
		}
		matches = append(matches, model.IncidentMatch{
			IncidentID: inc.IncidentID,
			Similarity: sim,
			Severity:   inc.Severity,
			Summary:    inc.Summary,
		})
		byID[inc.IncidentID] = inc
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].IncidentID < matches[j].IncidentID
	})

	if len(matches) == 0 {
		return model.HistoricalResult{
			Score:     0,
			Reasoning: "No similar past incidents found.",
		}, nil
	}

	best := matches[0]
	score := best.Similarity * incidentSeverityWeight(best.Severity)
	for _, m := range matches[1:] {
		score += m.Similarity * 20
	}
	score = model.Clamp(score)

	result := model.HistoricalResult{
		Score:                score,
		SimilarIncidents:     matches,
		MostRelevantIncident: &best,
		RecommendedProcedure: byID[best.IncidentID].RecommendedProcedure,
		Reasoning: fmt.Sprintf("%d similar incident(s); most relevant %s (%s, similarity %.2f).",
			len(matches), best.IncidentID, best.Severity, best.Similarity),
	}
	return result, nil
}

// similarity scores one incident against the action across the four
// dimensions. Name matching is case-insensitive substring in either
// direction.
func similarity(action *model.ProposedAction, resourceType string, tags map[string]string, inc incident.Incident) float64 {
	var sim float64
	if inc.ActionType != "" && inc.ActionType == action.ActionType {
		sim += weightActionType
	}
	if inc.ResourceType != "" && resourceType != "" && inc.ResourceType == resourceType {
		sim += weightResourceType
	}
	if nameMatches(inc.ResourceName, action.Target.ResourceID) {
		sim += weightResourceName
	}
	if tagsOverlap(inc.Tags, tags) {
		sim += weightTags
	}
	return sim
}

func nameMatches(incidentName, resourceID string) bool {
	if incidentName == "" || resourceID == "" {
		return false
	}
	a := strings.ToLower(incidentName)
	b := strings.ToLower(resourceID)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func tagsOverlap(a, b map[string]string) bool {
	for k, v := range a {
		if b[k] == v {
			return true
		}
	}
	return false
}
