// Package policy evaluates declarative governance policies against a
// proposed action and turns the fired set into the SRI policy score.
// Policies are data, not code: each carries a typed predicate variant
// loaded from the policy seed file.
package policy

import (
	"fmt"
	"time"

	"sentinel/internal/model"
	"sentinel/internal/topology"
)

// Policy is one governance rule. A policy "fires" (is violated) when
// its predicate matches the action under evaluation.
type Policy struct {
	PolicyID    string
	Severity    model.Severity
	Description string
	Predicate   Predicate
}

// Input is everything a predicate may inspect. Resource is nil when the
// target is not in the topology. Environment is the resolved deployment
// environment of the target ("" when unknown). Now is the action's
// timestamp normalized to UTC.
type Input struct {
	Action      *model.ProposedAction
	Resource    *topology.Resource
	Environment string
	Now         time.Time
}

// Predicate decides whether a policy fires for a given action.
type Predicate interface {
	// Fires reports whether the policy is violated, with a short detail
	// fragment for the violation description.
	Fires(in Input) (bool, string)
	// Kind returns the wire name of the predicate variant.
	Kind() string
}

func actionIn(t model.ActionType, actions []model.ActionType) bool {
	for _, a := range actions {
		if a == t {
			return true
		}
	}
	return false
}

// TagMatch fires when the target resource carries tag Key=Value and the
// action type is in Actions (any action when Actions is empty).
type TagMatch struct {
	Key     string
	Value   string
	Actions []model.ActionType
}

func (p TagMatch) Kind() string { return "tag_match" }

func (p TagMatch) Fires(in Input) (bool, string) {
	if in.Resource == nil {
		return false, ""
	}
	if in.Resource.Tags[p.Key] != p.Value {
		return false, ""
	}
	if len(p.Actions) > 0 && !actionIn(in.Action.ActionType, p.Actions) {
		return false, ""
	}
	return true, fmt.Sprintf("resource tagged %s=%s", p.Key, p.Value)
}

// ActionIn fires when the action type is one of Actions.
type ActionIn struct {
	Actions []model.ActionType
}

func (p ActionIn) Kind() string { return "action_in" }

func (p ActionIn) Fires(in Input) (bool, string) {
	if !actionIn(in.Action.ActionType, p.Actions) {
		return false, ""
	}
	return true, fmt.Sprintf("action %s is restricted", in.Action.ActionType)
}

// TimeWindow fires when the action's timestamp falls inside a
// recurring weekly window. Days use Monday=0..Sunday=6; minutes are
// from midnight UTC. The start bound is inclusive, the end bound
// exclusive. Windows may span midnight or multiple days.
type TimeWindow struct {
	DayStart int // Monday=0
	DayEnd   int
	StartMin int
	EndMin   int
	Actions  []model.ActionType
}

func (p TimeWindow) Kind() string { return "time_window" }

func (p TimeWindow) Fires(in Input) (bool, string) {
	if len(p.Actions) > 0 && !actionIn(in.Action.ActionType, p.Actions) {
		return false, ""
	}
	now := in.Now
	day := (int(now.Weekday()) + 6) % 7 // Monday=0
	minute := now.Hour()*60 + now.Minute()
	if !p.contains(day, minute) {
		return false, ""
	}
	return true, "inside restricted change window"
}

// contains implements the weekly window check. A window is the span
// from (DayStart, StartMin) forward to (DayEnd, EndMin); when the end
// day precedes the start day the span wraps through the weekend.
func (p TimeWindow) contains(day, minute int) bool {
	pos := day*24*60 + minute
	start := p.DayStart*24*60 + p.StartMin
	end := p.DayEnd*24*60 + p.EndMin
	if start == end {
		return false
	}
	if start < end {
		return pos >= start && pos < end
	}
	// Wraps past Sunday into the next week.
	return pos >= start || pos < end
}

// ResourceTypeIn fires when the target's resource type is one of Types.
// The type is read from the topology when the resource is known, else
// from the action's declared target type.
type ResourceTypeIn struct {
	Types   []string
	Actions []model.ActionType
}

func (p ResourceTypeIn) Kind() string { return "resource_type_in" }

func (p ResourceTypeIn) Fires(in Input) (bool, string) {
	if len(p.Actions) > 0 && !actionIn(in.Action.ActionType, p.Actions) {
		return false, ""
	}
	rtype := in.Action.Target.ResourceType
	if in.Resource != nil && in.Resource.Type != "" {
		rtype = in.Resource.Type
	}
	for _, t := range p.Types {
		if t == rtype {
			return true, fmt.Sprintf("resource type %s is governed", rtype)
		}
	}
	return false, ""
}

// EnvRequiresReview fires for any action whose target lives in a
// production environment.
type EnvRequiresReview struct {
	Actions []model.ActionType
}

func (p EnvRequiresReview) Kind() string { return "env_requires_review" }

func (p EnvRequiresReview) Fires(in Input) (bool, string) {
	if len(p.Actions) > 0 && !actionIn(in.Action.ActionType, p.Actions) {
		return false, ""
	}
	switch in.Environment {
	case "production", "prod":
		return true, "target runs in production"
	}
	return false, ""
}

// MinDependents fires for destructive actions against a resource with
// at least N dependents.
type MinDependents struct {
	N       int
	Actions []model.ActionType
}

func (p MinDependents) Kind() string { return "min_dependents" }

func (p MinDependents) Fires(in Input) (bool, string) {
	if len(p.Actions) > 0 && !actionIn(in.Action.ActionType, p.Actions) {
		return false, ""
	}
	if !in.Action.ActionType.Destructive() {
		return false, ""
	}
	if in.Resource == nil || len(in.Resource.Dependents) < p.N {
		return false, ""
	}
	return true, fmt.Sprintf("%d resources depend on the target", len(in.Resource.Dependents))
}
