package a2aserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/google/uuid"

	"sentinel/internal/governance"
	"sentinel/internal/model"
)

// Executor runs governance evaluations for incoming A2A tasks. A
// semaphore bounds concurrent evaluations; tasks over the limit are
// rejected immediately rather than queued behind a growing backlog.
type Executor struct {
	svc   *governance.Service
	admit chan struct{}
}

// NewExecutor builds the executor with the given admission limit.
func NewExecutor(svc *governance.Service, maxConcurrent int) *Executor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Executor{
		svc:   svc,
		admit: make(chan struct{}, maxConcurrent),
	}
}

// envelope is the request payload: either a bare ProposedAction (the
// evaluate_action default) or a skill envelope for the query skills.
type envelope struct {
	Skill      string                `json:"skill,omitempty"`
	Action     *model.ProposedAction `json:"action,omitempty"`
	ResourceID string                `json:"resource_id,omitempty"`
	Limit      int                   `json:"limit,omitempty"`
}

// Execute handles one task: parse the payload, stream progress, run
// the pipeline, attach the verdict artifact, complete the task.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue) error {
	select {
	case e.admit <- struct{}{}:
		defer func() { <-e.admit }()
	default:
		slog.Warn("a2a task rejected, at concurrency limit", "task_id", reqCtx.TaskID)
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: %v: evaluation capacity exhausted, retry later", model.ErrRateLimited))
	}

	text := userText(reqCtx)
	slog.Info("a2a task received", "task_id", reqCtx.TaskID, "bytes", len(text))

	env, err := parseEnvelope(text)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: invalid request payload: %v", err))
	}

	switch env.Skill {
	case "", SkillEvaluateAction:
		return e.evaluate(ctx, reqCtx, q, env.Action)
	case SkillQueryDecisionHistory:
		return e.history(ctx, reqCtx, q, env)
	case SkillResourceRiskProfile:
		return e.riskProfile(ctx, reqCtx, q, env)
	default:
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: unknown skill %q", env.Skill))
	}
}

// Cancel is unsupported: evaluations are atomic and short.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue) error {
	slog.Warn("a2a cancel requested, not supported", "task_id", reqCtx.TaskID)
	return fmt.Errorf("cancellation not supported: governance evaluations are atomic")
}

func (e *Executor) evaluate(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, action *model.ProposedAction) error {
	if action == nil {
		return e.fail(ctx, reqCtx, q, "ERROR: evaluate_action requires a proposed action payload")
	}

	for _, step := range []string{
		"Evaluating blast radius...",
		"Checking policy compliance...",
		"Querying historical incidents...",
		"Calculating financial impact...",
	} {
		if err := e.progress(ctx, reqCtx, q, step); err != nil {
			return err
		}
	}

	verdict, err := e.svc.EvaluateAction(ctx, action)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: %v", err))
	}

	summary := fmt.Sprintf("SRI Composite: %.1f → %s", verdict.SRI.Composite, strings.ToUpper(string(verdict.Decision)))
	if err := e.progress(ctx, reqCtx, q, summary); err != nil {
		return err
	}

	raw, err := json.Marshal(verdict)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: encode verdict: %v", err))
	}
	if err := e.artifact(ctx, reqCtx, q, "governance_verdict", string(raw)); err != nil {
		return err
	}

	slog.Info("a2a task completed",
		"task_id", reqCtx.TaskID,
		"action_id", verdict.ActionID,
		"decision", verdict.Decision,
		"composite", verdict.SRI.Composite)
	return e.complete(ctx, reqCtx, q, summary)
}

func (e *Executor) history(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, env *envelope) error {
	verdicts, err := e.svc.RecentDecisions(ctx, env.Limit, env.ResourceID)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: %v", err))
	}
	raw, err := json.Marshal(verdicts)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: encode history: %v", err))
	}
	if err := e.artifact(ctx, reqCtx, q, "decision_history", string(raw)); err != nil {
		return err
	}
	return e.complete(ctx, reqCtx, q, fmt.Sprintf("%d decision(s)", len(verdicts)))
}

func (e *Executor) riskProfile(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, env *envelope) error {
	profile, err := e.svc.ResourceRiskProfile(ctx, env.ResourceID, env.Limit)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: %v", err))
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return e.fail(ctx, reqCtx, q, fmt.Sprintf("ERROR: encode profile: %v", err))
	}
	if err := e.artifact(ctx, reqCtx, q, "resource_risk_profile", string(raw)); err != nil {
		return err
	}
	return e.complete(ctx, reqCtx, q, fmt.Sprintf("risk profile for %s", env.ResourceID))
}

// parseEnvelope accepts either a skill envelope or a bare proposed
// action. A payload with an action_type field is a bare action.
func parseEnvelope(text string) (*envelope, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty payload")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %v", err)
	}

	if _, bare := probe["action_type"]; bare {
		var action model.ProposedAction
		if err := json.Unmarshal([]byte(text), &action); err != nil {
			return nil, err
		}
		return &envelope{Action: &action}, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// userText concatenates the text parts of the incoming message.
func userText(reqCtx *a2asrv.RequestContext) string {
	var parts []string
	for _, p := range reqCtx.Message.Parts {
		if tp, ok := p.(a2a.TextPart); ok {
			parts = append(parts, tp.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// --- event helpers ---

func (e *Executor) agentMessage(reqCtx *a2asrv.RequestContext, text string) *a2a.Message {
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
	msg.TaskID = reqCtx.TaskID
	msg.ContextID = reqCtx.ContextID
	return msg
}

func (e *Executor) progress(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, text string) error {
	return q.Write(ctx, &a2a.TaskStatusUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Status: a2a.TaskStatus{
			State:   a2a.TaskStateWorking,
			Message: e.agentMessage(reqCtx, text),
		},
	})
}

func (e *Executor) artifact(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, name, payload string) error {
	return q.Write(ctx, &a2a.TaskArtifactUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Artifact: &a2a.Artifact{
			ID:    a2a.ArtifactID(uuid.New().String()),
			Name:  name,
			Parts: a2a.ContentParts{a2a.TextPart{Text: payload}},
		},
	})
}

func (e *Executor) complete(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, text string) error {
	return q.Write(ctx, &a2a.TaskStatusUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Final:     true,
		Status: a2a.TaskStatus{
			State:   a2a.TaskStateCompleted,
			Message: e.agentMessage(reqCtx, text),
		},
	})
}

func (e *Executor) fail(ctx context.Context, reqCtx *a2asrv.RequestContext, q eventqueue.Queue, text string) error {
	return q.Write(ctx, &a2a.TaskStatusUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Final:     true,
		Status: a2a.TaskStatus{
			State:   a2a.TaskStateFailed,
			Message: e.agentMessage(reqCtx, text),
		},
	})
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)
