package content

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

const defaultTemplate = "Great content in {{if .Title}}{{.Title}}{{else}}this channel{{end}}, thanks for sharing!"

// TemplateGenerator renders a text/template against the channel. The
// template sees the ChannelRef fields plus URL.
type TemplateGenerator struct {
	tmpl *template.Template
}

func NewTemplateGenerator(text string) (*TemplateGenerator, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultTemplate
	}
	tmpl, err := template.New("message").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}
	return &TemplateGenerator{tmpl: tmpl}, nil
}

type templateData struct {
	model.ChannelRef
	URL string
}

func (g *TemplateGenerator) Generate(ctx context.Context, channel model.ChannelRef) (string, error) {
	var sb strings.Builder
	if err := g.tmpl.Execute(&sb, templateData{ChannelRef: channel, URL: channel.URL()}); err != nil {
		return "", fmt.Errorf("failed to render message template: %w", err)
	}
	return clean(sb.String())
}
