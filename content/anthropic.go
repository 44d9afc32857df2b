package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicGenerator asks a Claude model for the message text.
type AnthropicGenerator struct {
	client    *anthropic.Client
	model     string
	system    string
	maxTokens int64
}

// NewAnthropicGenerator builds a generator from cfg. Without an API key the
// SDK falls back to ANTHROPIC_API_KEY.
func NewAnthropicGenerator(cfg common.ContentConfig) *AnthropicGenerator {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")))
	}
	client := anthropic.NewClient(opts...)

	m := cfg.Model
	if m == "" {
		m = defaultAnthropicModel
	}
	return &AnthropicGenerator{
		client:    &client,
		model:     m,
		system:    systemPrompt(cfg),
		maxTokens: maxTokens(cfg),
	}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, channel model.ChannelRef) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: g.system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(channel))),
		},
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return clean(sb.String())
}
