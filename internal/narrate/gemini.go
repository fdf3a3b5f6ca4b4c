package narrate

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"sentinel/internal/model"
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiNarrator struct {
	model  string
	apiKey string
}

func newGemini(modelName, apiKey string) Narrator {
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	return &geminiNarrator{model: modelName, apiKey: apiKey}
}

func (n *geminiNarrator) Narrate(ctx context.Context, v *model.GovernanceVerdict) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  n.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("gemini narration: %w", err)
	}

	p, err := prompt(v)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, n.model,
		genai.Text(systemPrompt+"\n\n"+p), nil)
	if err != nil {
		return "", fmt.Errorf("gemini narration: %w", err)
	}
	text := clean(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini narration: empty reply")
	}
	return text, nil
}
