// Package content produces the message text posted by message and comment
// actions when a worklist entry carries no payload of its own.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

// ErrEmptyContent is returned when a generator produced no text.
var ErrEmptyContent = errors.New("generator returned empty content")

// Generator writes the text for one channel.
type Generator interface {
	Generate(ctx context.Context, channel model.ChannelRef) (string, error)
}

const defaultSystemPrompt = "You write short, friendly, relevant comments for Telegram channels. " +
	"Reply with the comment text only, without quotes, hashtags or links."

// New builds the generator selected by cfg.Provider.
func New(cfg common.ContentConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "template":
		return NewTemplateGenerator(cfg.Template)
	case "anthropic":
		return NewAnthropicGenerator(cfg), nil
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown content provider %q", cfg.Provider)
	}
}

// buildPrompt describes the channel to a language model.
func buildPrompt(channel model.ChannelRef) string {
	var sb strings.Builder
	sb.WriteString("Write one comment for the Telegram channel")
	if channel.Title != "" {
		fmt.Fprintf(&sb, " %q", channel.Title)
	}
	if channel.HasUsername() {
		fmt.Fprintf(&sb, " (@%s)", channel.NormalizedUsername())
	}
	if channel.SubscriberCount != nil {
		fmt.Fprintf(&sb, " with %d subscribers", *channel.SubscriberCount)
	}
	sb.WriteString(". Keep it under 200 characters.")
	return sb.String()
}

func clean(text string) (string, error) {
	text = strings.Trim(strings.TrimSpace(text), "\"")
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func systemPrompt(cfg common.ContentConfig) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return defaultSystemPrompt
}

func maxTokens(cfg common.ContentConfig) int64 {
	if cfg.MaxTokens > 0 {
		return int64(cfg.MaxTokens)
	}
	return 300
}
