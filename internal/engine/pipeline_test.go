package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sentinel/internal/audit"
	"sentinel/internal/model"
	"sentinel/internal/registry"
)

type stubEvals struct {
	blast      func(context.Context, *model.ProposedAction) (model.BlastRadiusResult, error)
	policy     func(context.Context, *model.ProposedAction) (model.PolicyResult, error)
	historical func(context.Context, *model.ProposedAction) (model.HistoricalResult, error)
	financial  func(context.Context, *model.ProposedAction) (model.FinancialResult, error)
}

type blastFn func(context.Context, *model.ProposedAction) (model.BlastRadiusResult, error)

func (f blastFn) Evaluate(ctx context.Context, a *model.ProposedAction) (model.BlastRadiusResult, error) {
	return f(ctx, a)
}

type policyFn func(context.Context, *model.ProposedAction) (model.PolicyResult, error)

func (f policyFn) Evaluate(ctx context.Context, a *model.ProposedAction) (model.PolicyResult, error) {
	return f(ctx, a)
}

type historicalFn func(context.Context, *model.ProposedAction) (model.HistoricalResult, error)

func (f historicalFn) Evaluate(ctx context.Context, a *model.ProposedAction) (model.HistoricalResult, error) {
	return f(ctx, a)
}

func (s stubEvals) evaluators() Evaluators {
	return Evaluators{
		BlastRadius: blastFn(s.blast),
		Policy:      policyFn(s.policy),
		Historical:  historicalFn(s.historical),
		Financial:   financialFn(s.financial),
	}
}

type financialFn func(context.Context, *model.ProposedAction) (model.FinancialResult, error)

func (f financialFn) Evaluate(ctx context.Context, a *model.ProposedAction) (model.FinancialResult, error) {
	return f(ctx, a)
}

func quietEvals(blastScore, policyScore, historicalScore, financialScore float64) stubEvals {
	return stubEvals{
		blast: func(context.Context, *model.ProposedAction) (model.BlastRadiusResult, error) {
			return model.BlastRadiusResult{Score: blastScore}, nil
		},
		policy: func(context.Context, *model.ProposedAction) (model.PolicyResult, error) {
			return model.PolicyResult{Score: policyScore}, nil
		},
		historical: func(context.Context, *model.ProposedAction) (model.HistoricalResult, error) {
			return model.HistoricalResult{Score: historicalScore}, nil
		},
		financial: func(context.Context, *model.ProposedAction) (model.FinancialResult, error) {
			return model.FinancialResult{Score: financialScore}, nil
		},
	}
}

func newTestPipeline(t *testing.T, evals stubEvals, narrator Narrator) (*Pipeline, audit.Log, registry.Registry) {
	t.Helper()
	auditLog, err := audit.OpenFile(filepath.Join(t.TempDir(), "decisions"))
	if err != nil {
		t.Fatal(err)
	}
	agents, err := registry.OpenFile(filepath.Join(t.TempDir(), "agents"))
	if err != nil {
		t.Fatal(err)
	}
	d := NewDecider(model.DefaultWeights(), model.DefaultThresholds())
	return NewPipeline(evals.evaluators(), d, auditLog, agents, narrator, time.Second), auditLog, agents
}

func submit() *model.ProposedAction {
	return &model.ProposedAction{
		AgentID:    "cost-bot",
		ActionType: model.ActionScaleDown,
		Target:     model.ActionTarget{ResourceID: "vm-web-01"},
	}
}

func TestEvaluatePersistsVerdictAndStats(t *testing.T) {
	p, auditLog, agents := newTestPipeline(t, quietEvals(10, 0, 0, 0), nil)
	ctx := context.Background()

	v, err := p.Evaluate(ctx, submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Decision != model.DecisionApproved {
		t.Errorf("decision = %s", v.Decision)
	}
	if v.ActionID == "" {
		t.Error("action ID not assigned")
	}

	stored, err := auditLog.GetByID(ctx, v.ActionID)
	if err != nil {
		t.Fatalf("verdict not in audit log: %v", err)
	}
	if stored.Decision != v.Decision {
		t.Errorf("stored decision = %s", stored.Decision)
	}

	agent, err := agents.Get(ctx, "cost-bot")
	if err != nil {
		t.Fatalf("agent not auto-registered: %v", err)
	}
	if agent.Stats.Approved != 1 || agent.Stats.Total != 1 {
		t.Errorf("agent stats = %+v", agent.Stats)
	}
}

func TestEvaluateRejectsInvalidInput(t *testing.T) {
	p, _, _ := newTestPipeline(t, quietEvals(0, 0, 0, 0), nil)
	_, err := p.Evaluate(context.Background(), &model.ProposedAction{ActionType: "explode",
		Target: model.ActionTarget{ResourceID: "vm"}})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestFailedEvaluatorDegradesToNeutral(t *testing.T) {
	evals := quietEvals(0, 0, 0, 0)
	evals.historical = func(context.Context, *model.ProposedAction) (model.HistoricalResult, error) {
		return model.HistoricalResult{}, fmt.Errorf("incident store unavailable")
	}
	p, _, _ := newTestPipeline(t, evals, nil)

	v, err := p.Evaluate(context.Background(), submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.SRI.Historical != neutralScore {
		t.Errorf("historical = %v, want neutral %d", v.SRI.Historical, neutralScore)
	}
	if v.SubResults.Historical.Reasoning == "" {
		t.Error("degraded dimension must say why")
	}
	// The degradation must surface in the verdict reason, not just the
	// buried sub-result.
	if !strings.Contains(v.Reason, "historical") {
		t.Errorf("reason = %q, must mention the degraded historical dimension", v.Reason)
	}
}

func TestPanickingEvaluatorDegradesToNeutral(t *testing.T) {
	evals := quietEvals(0, 0, 0, 0)
	evals.blast = func(context.Context, *model.ProposedAction) (model.BlastRadiusResult, error) {
		panic("nil map write")
	}
	p, _, _ := newTestPipeline(t, evals, nil)

	v, err := p.Evaluate(context.Background(), submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.SRI.Infrastructure != neutralScore {
		t.Errorf("infrastructure = %v, want neutral %d", v.SRI.Infrastructure, neutralScore)
	}
}

func TestSlowEvaluatorTimesOutToNeutral(t *testing.T) {
	evals := quietEvals(0, 0, 0, 0)
	evals.financial = func(ctx context.Context, _ *model.ProposedAction) (model.FinancialResult, error) {
		<-ctx.Done()
		return model.FinancialResult{}, ctx.Err()
	}
	p, _, _ := newTestPipeline(t, evals, nil)
	p.timeout = 20 * time.Millisecond

	v, err := p.Evaluate(context.Background(), submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.SRI.Cost != neutralScore {
		t.Errorf("cost = %v, want neutral %d", v.SRI.Cost, neutralScore)
	}
}

func TestCallerDeadlineAbandonsEvaluation(t *testing.T) {
	evals := quietEvals(0, 0, 0, 0)
	evals.policy = func(ctx context.Context, _ *model.ProposedAction) (model.PolicyResult, error) {
		<-ctx.Done()
		return model.PolicyResult{}, ctx.Err()
	}
	p, auditLog, _ := newTestPipeline(t, evals, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Evaluate(ctx, submit())
	if !errors.Is(err, model.ErrDeadlineExceeded) {
		t.Fatalf("err = %v, want ErrDeadlineExceeded", err)
	}
	recent, err := auditLog.GetRecent(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("abandoned evaluation must not be persisted, got %+v", recent)
	}
}

// All four evaluators rendezvous on a barrier before returning; the
// evaluation only completes if they overlap in time.
func TestEvaluatorsRunConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(4)
	arrive := func() {
		barrier.Done()
		barrier.Wait()
	}
	evals := stubEvals{
		blast: func(context.Context, *model.ProposedAction) (model.BlastRadiusResult, error) {
			arrive()
			return model.BlastRadiusResult{Score: 10}, nil
		},
		policy: func(context.Context, *model.ProposedAction) (model.PolicyResult, error) {
			arrive()
			return model.PolicyResult{Score: 20}, nil
		},
		historical: func(context.Context, *model.ProposedAction) (model.HistoricalResult, error) {
			arrive()
			return model.HistoricalResult{Score: 30}, nil
		},
		financial: func(context.Context, *model.ProposedAction) (model.FinancialResult, error) {
			arrive()
			return model.FinancialResult{Score: 40}, nil
		},
	}
	p, _, _ := newTestPipeline(t, evals, nil)

	v, err := p.Evaluate(context.Background(), submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.SRI.Infrastructure != 10 || v.SRI.Policy != 20 || v.SRI.Historical != 30 || v.SRI.Cost != 40 {
		t.Errorf("sub-scores = %+v", v.SRI)
	}
}

type stubNarrator struct {
	prose string
	err   error
}

func (n stubNarrator) Narrate(context.Context, *model.GovernanceVerdict) (string, error) {
	return n.prose, n.err
}

func TestNarratorRewritesReason(t *testing.T) {
	p, _, _ := newTestPipeline(t, quietEvals(10, 0, 0, 0), stubNarrator{prose: "All quiet on this one."})
	v, err := p.Evaluate(context.Background(), submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Reason != "All quiet on this one." {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestNarratorFailureKeepsDeterministicReason(t *testing.T) {
	p, _, _ := newTestPipeline(t, quietEvals(10, 0, 0, 0), stubNarrator{err: fmt.Errorf("api down")})
	v, err := p.Evaluate(context.Background(), submit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Reason == "" || v.Reason == "api down" {
		t.Errorf("reason = %q", v.Reason)
	}
}
