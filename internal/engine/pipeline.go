package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sentinel/internal/audit"
	"sentinel/internal/model"
	"sentinel/internal/registry"
)

// neutralScore stands in for an evaluator that failed, timed out, or
// panicked: risky enough to escalate on its own under default weights,
// never enough to auto-deny.
const neutralScore = 50

// Evaluators are the four dimension scorers the pipeline fans out to.
type Evaluators struct {
	BlastRadius interface {
		Evaluate(ctx context.Context, a *model.ProposedAction) (model.BlastRadiusResult, error)
	}
	Policy interface {
		Evaluate(ctx context.Context, a *model.ProposedAction) (model.PolicyResult, error)
	}
	Historical interface {
		Evaluate(ctx context.Context, a *model.ProposedAction) (model.HistoricalResult, error)
	}
	Financial interface {
		Evaluate(ctx context.Context, a *model.ProposedAction) (model.FinancialResult, error)
	}
}

// Narrator rewrites a verdict's reason as prose. Optional; failures
// fall back to the deterministic reason.
type Narrator interface {
	Narrate(ctx context.Context, v *model.GovernanceVerdict) (string, error)
}

// Pipeline runs one governance evaluation end to end: fan out the four
// evaluators, compose the verdict, narrate, persist, update the agent
// registry.
type Pipeline struct {
	evals    Evaluators
	decider  *Decider
	auditLog audit.Log
	agents   registry.Registry
	narrator Narrator
	timeout  time.Duration
	now      func() time.Time
}

// NewPipeline builds a pipeline. auditLog and agents may not be nil;
// narrator may be.
func NewPipeline(evals Evaluators, decider *Decider, auditLog audit.Log, agents registry.Registry,
	narrator Narrator, evaluatorTimeout time.Duration) *Pipeline {
	return &Pipeline{
		evals:    evals,
		decider:  decider,
		auditLog: auditLog,
		agents:   agents,
		narrator: narrator,
		timeout:  evaluatorTimeout,
		now:      time.Now,
	}
}

// WithClock replaces the pipeline clock. Tests only.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Evaluate validates and scores one proposed action. The input is
// normalized in place (ID and timestamp assigned). Persistence
// failures are logged, never surfaced: a verdict that could not be
// recorded is still a verdict. A caller deadline that expires before
// composition returns model.ErrDeadlineExceeded and nothing is
// persisted.
func (p *Pipeline) Evaluate(ctx context.Context, action *model.ProposedAction) (*model.GovernanceVerdict, error) {
	if err := action.Normalize(p.now()); err != nil {
		return nil, err
	}

	sub, notes := p.fanOut(ctx, action)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: evaluation of %s abandoned", model.ErrDeadlineExceeded, action.ActionID)
	}

	verdict := p.decider.Decide(action, sub, p.now())
	// A degraded dimension must be visible in the verdict itself, not
	// only in its sub-result.
	if len(notes) > 0 {
		verdict.Reason += " " + strings.Join(notes, " ")
	}
	p.narrate(ctx, verdict)

	// Audit before registry: a decision that is not in the audit log
	// must not be visible anywhere else first.
	if err := p.auditLog.Record(ctx, verdict); err != nil {
		slog.Error("failed to record verdict", "action_id", verdict.ActionID, "err", err)
	}
	if verdict.AgentID != "" {
		if err := p.agents.RecordDecision(ctx, verdict.AgentID, verdict.Decision, verdict.Timestamp); err != nil {
			slog.Error("failed to update agent stats", "agent_id", verdict.AgentID, "err", err)
		}
	}

	slog.Info("governance verdict",
		"action_id", verdict.ActionID,
		"agent_id", verdict.AgentID,
		"action_type", verdict.ActionType,
		"resource_id", verdict.Target.ResourceID,
		"decision", verdict.Decision,
		"composite", verdict.SRI.Composite)
	return verdict, nil
}

// fanOut runs the four evaluators concurrently, each under its own
// timeout. A failed dimension degrades to the neutral score instead of
// failing the evaluation; the returned notes name the degraded
// dimensions in the fixed evaluator order.
func (p *Pipeline) fanOut(ctx context.Context, action *model.ProposedAction) (model.SubResults, []string) {
	var sub model.SubResults
	var slots [4]string
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		r, err := runEvaluator(ctx, p.timeout, "blast_radius", action, p.evals.BlastRadius.Evaluate)
		if err != nil {
			slots[0] = degradedNote("blast_radius", err)
			r = model.BlastRadiusResult{Score: neutralScore, Reasoning: slots[0]}
		}
		sub.BlastRadius = r
	}()
	go func() {
		defer wg.Done()
		r, err := runEvaluator(ctx, p.timeout, "policy", action, p.evals.Policy.Evaluate)
		if err != nil {
			slots[1] = degradedNote("policy", err)
			r = model.PolicyResult{Score: neutralScore, Reasoning: slots[1]}
		}
		sub.Policy = r
	}()
	go func() {
		defer wg.Done()
		r, err := runEvaluator(ctx, p.timeout, "historical", action, p.evals.Historical.Evaluate)
		if err != nil {
			slots[2] = degradedNote("historical", err)
			r = model.HistoricalResult{Score: neutralScore, Reasoning: slots[2]}
		}
		sub.Historical = r
	}()
	go func() {
		defer wg.Done()
		r, err := runEvaluator(ctx, p.timeout, "financial", action, p.evals.Financial.Evaluate)
		if err != nil {
			slots[3] = degradedNote("financial", err)
			r = model.FinancialResult{Score: neutralScore, Reasoning: slots[3]}
		}
		sub.Financial = r
	}()

	wg.Wait()
	var notes []string
	for _, n := range slots {
		if n != "" {
			notes = append(notes, n)
		}
	}
	return sub, notes
}

// runEvaluator applies the per-evaluator timeout and converts panics
// into errors so one bad dimension cannot take the pipeline down.
func runEvaluator[R any](ctx context.Context, timeout time.Duration, name string,
	action *model.ProposedAction, eval func(context.Context, *model.ProposedAction) (R, error)) (result R, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator %s panicked: %v", name, r)
			slog.Error("evaluator panic", "evaluator", name, "action_id", action.ActionID, "panic", r)
		}
	}()

	evalCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err = eval(evalCtx, action)
	if err != nil {
		slog.Warn("evaluator failed", "evaluator", name, "action_id", action.ActionID, "err", err)
	}
	return result, err
}

func degradedNote(name string, err error) string {
	return fmt.Sprintf("Evaluator %s unavailable (%v); dimension degraded to neutral score %d.", name, err, neutralScore)
}

func (p *Pipeline) narrate(ctx context.Context, v *model.GovernanceVerdict) {
	if p.narrator == nil {
		return
	}
	prose, err := p.narrator.Narrate(ctx, v)
	if err != nil || prose == "" {
		if err != nil {
			slog.Warn("narration failed, keeping deterministic reason", "action_id", v.ActionID, "err", err)
		}
		return
	}
	v.Reason = prose
}
