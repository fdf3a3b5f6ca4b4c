package narrate

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"sentinel/internal/model"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

type anthropicNarrator struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropic(modelName, apiKey string) Narrator {
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &anthropicNarrator{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(modelName),
	}
}

func (n *anthropicNarrator) Narrate(ctx context.Context, v *model.GovernanceVerdict) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	p, err := prompt(v)
	if err != nil {
		return "", err
	}
	msg, err := n.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     n.model,
		MaxTokens: 300,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic narration: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return clean(block.Text), nil
		}
	}
	return "", fmt.Errorf("anthropic narration: no text content in reply")
}
