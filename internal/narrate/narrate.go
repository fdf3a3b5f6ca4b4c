// Package narrate turns a governance verdict's deterministic reason
// into short operator-facing prose using an LLM. Narration is strictly
// optional: any failure, timeout, or empty reply leaves the
// deterministic reason in place.
package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sentinel/internal/model"
)

// hardTimeout bounds a narration call regardless of the caller's
// deadline. A slow vendor must never hold a verdict hostage.
const hardTimeout = 8 * time.Second

const systemPrompt = `You are the explanation writer for an infrastructure change governance engine.
Given a JSON verdict, write 2-4 plain sentences for an on-call operator:
what was proposed, what the decision is, and the one or two factors that drove it.
No markdown, no headings, no bullet lists. Do not invent facts not present in the verdict.`

// Narrator is one vendor binding.
type Narrator interface {
	Narrate(ctx context.Context, v *model.GovernanceVerdict) (string, error)
}

// New builds the configured narrator, or nil when vendor is empty.
func New(vendor, modelName, apiKey string) (Narrator, error) {
	switch vendor {
	case "":
		return nil, nil
	case "anthropic":
		return newAnthropic(modelName, apiKey), nil
	case "gemini":
		return newGemini(modelName, apiKey), nil
	}
	return nil, fmt.Errorf("%w: unknown narrator vendor %q", model.ErrConfig, vendor)
}

// prompt renders the verdict for the model.
func prompt(v *model.GovernanceVerdict) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "Verdict:\n" + string(raw), nil
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
