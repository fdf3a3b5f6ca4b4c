// Command sentinel-submit proposes one action to a running sentineld
// over A2A and prints the verdict. It is the demo client for trying
// the engine end to end:
//
//	sentinel-submit -agent cost-bot -action scale_down -resource vm-web-01
//	sentinel-submit -file action.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"

	"sentinel/internal/logging"
	"sentinel/internal/model"
)

func main() {
	args := logging.InitLogging(os.Args[1:])

	fs := flag.NewFlagSet("sentinel-submit", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8000", "sentineld base URL")
	agentID := fs.String("agent", "demo-agent", "proposing agent ID")
	actionType := fs.String("action", "", "action type (scale_up, scale_down, delete_resource, restart_service, modify_nsg, create_resource, update_config)")
	resource := fs.String("resource", "", "target resource name or full resource ID")
	reason := fs.String("reason", "", "why the action is proposed")
	urgency := fs.String("urgency", "", "low, medium, high, or critical")
	savings := fs.Float64("savings", 0, "projected monthly savings in USD (0 = unset)")
	file := fs.String("file", "", "read the proposed action from a JSON file instead of flags")
	timeout := fs.Duration("timeout", 60*time.Second, "overall request timeout")
	fs.Parse(args)

	action, err := buildAction(*file, *agentID, *actionType, *resource, *reason, *urgency, *savings)
	if err != nil {
		slog.Error("invalid action", "err", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := submit(ctx, *server, action); err != nil {
		slog.Error("submission failed", "err", err)
		os.Exit(1)
	}
}

func buildAction(file, agentID, actionType, resource, reason, urgency string, savings float64) (*model.ProposedAction, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var action model.ProposedAction
		if err := json.Unmarshal(raw, &action); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		return &action, nil
	}

	if actionType == "" || resource == "" {
		return nil, fmt.Errorf("-action and -resource are required (or use -file)")
	}
	action := &model.ProposedAction{
		AgentID:    agentID,
		ActionType: model.ActionType(actionType),
		Target:     model.ActionTarget{ResourceID: resource},
		Reason:     reason,
		Urgency:    model.Urgency(urgency),
	}
	if savings > 0 {
		action.ProjectedSavingsMonthly = &savings
	}
	return action, nil
}

func submit(ctx context.Context, server string, action *model.ProposedAction) error {
	card, err := fetchCard(ctx, strings.TrimSuffix(server, "/")+"/.well-known/agent-card.json")
	if err != nil {
		return fmt.Errorf("fetching agent card: %w", err)
	}
	slog.Info("connected", "agent", card.Name, "url", card.URL)

	client, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return fmt.Errorf("creating A2A client: %w", err)
	}

	payload, err := json.Marshal(action)
	if err != nil {
		return err
	}
	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: string(payload)})
	result, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return fmt.Errorf("A2A call: %w", err)
	}

	verdictJSON, status := extractVerdict(result)
	if status != "" {
		fmt.Println(status)
	}
	if verdictJSON == "" {
		return fmt.Errorf("no verdict artifact in reply")
	}

	var verdict model.GovernanceVerdict
	if err := json.Unmarshal([]byte(verdictJSON), &verdict); err != nil {
		// Print raw if the payload shape ever drifts.
		fmt.Println(verdictJSON)
		return nil
	}
	printVerdict(&verdict)
	return nil
}

func fetchCard(ctx context.Context, cardURL string) (*a2a.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, cardURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// extractVerdict pulls the governance_verdict artifact and the final
// status text from a SendMessageResult.
func extractVerdict(result a2a.SendMessageResult) (verdictJSON, status string) {
	task, ok := result.(*a2a.Task)
	if !ok {
		if msg, ok := result.(*a2a.Message); ok {
			return "", partsText(msg.Parts)
		}
		return "", ""
	}
	if task.Status.Message != nil {
		status = partsText(task.Status.Message.Parts)
	}
	for _, artifact := range task.Artifacts {
		if artifact.Name == "governance_verdict" {
			verdictJSON = partsText(artifact.Parts)
			break
		}
	}
	return verdictJSON, status
}

func partsText(parts a2a.ContentParts) string {
	var texts []string
	for _, p := range parts {
		if tp, ok := p.(a2a.TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func printVerdict(v *model.GovernanceVerdict) {
	fmt.Printf("decision:   %s\n", strings.ToUpper(string(v.Decision)))
	fmt.Printf("action_id:  %s\n", v.ActionID)
	fmt.Printf("composite:  %.1f (approve <= %.0f, escalate <= %.0f)\n",
		v.SRI.Composite, v.Thresholds.AutoApprove, v.Thresholds.HumanReview)
	fmt.Printf("dimensions: infra %.1f | policy %.1f | historical %.1f | cost %.1f\n",
		v.SRI.Infrastructure, v.SRI.Policy, v.SRI.Historical, v.SRI.Cost)
	if len(v.Violations) > 0 {
		fmt.Println("violations:")
		for _, viol := range v.Violations {
			fmt.Printf("  - %s\n", viol)
		}
	}
	fmt.Printf("reason:     %s\n", v.Reason)
}
