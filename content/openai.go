package content

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator asks an OpenAI-compatible chat completion endpoint for the
// message text.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	system    string
	maxTokens int64
}

// NewOpenAIGenerator builds a generator from cfg. Without an API key the SDK
// falls back to OPENAI_API_KEY.
func NewOpenAIGenerator(cfg common.ContentConfig) *OpenAIGenerator {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	m := cfg.Model
	if m == "" {
		m = defaultOpenAIModel
	}
	return &OpenAIGenerator{
		client:    &client,
		model:     m,
		system:    systemPrompt(cfg),
		maxTokens: maxTokens(cfg),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, channel model.ChannelRef) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.system),
			openai.UserMessage(buildPrompt(channel)),
		},
		MaxCompletionTokens: openai.Int(g.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyContent
	}
	return clean(resp.Choices[0].Message.Content)
}
