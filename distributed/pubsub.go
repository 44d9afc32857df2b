package distributed

import (
	"context"
	"encoding/json"
	"fmt"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/rs/zerolog/log"
)

// eventPublisher is the subset of the Dapr client used for publishing.
type eventPublisher interface {
	PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...daprc.PublishEventOption) error
	Close()
}

// ResultPublisher publishes results to the configured pub/sub component.
type ResultPublisher struct {
	client       eventPublisher
	pubsubName   string
	crawlTopic   string
	sessionTopic string
}

// NewResultPublisher connects to the local Dapr sidecar.
func NewResultPublisher(cfg common.PublishConfig) (*ResultPublisher, error) {
	daprClient, err := daprc.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Dapr client: %w", err)
	}
	return newResultPublisher(daprClient, cfg), nil
}

func newResultPublisher(client eventPublisher, cfg common.PublishConfig) *ResultPublisher {
	return &ResultPublisher{
		client:       client,
		pubsubName:   cfg.PubSubComponent,
		crawlTopic:   cfg.CrawlTopic,
		sessionTopic: cfg.SessionTopic,
	}
}

// Close closes the Dapr client
func (p *ResultPublisher) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// PublishCrawl publishes a finished crawl
func (p *ResultPublisher) PublishCrawl(ctx context.Context, account string, result model.CrawlResult) error {
	message := NewCrawlResultMessage(account, result)
	if err := p.publish(ctx, p.crawlTopic, message); err != nil {
		return fmt.Errorf("failed to publish crawl result: %w", err)
	}

	log.Debug().
		Str("crawl_id", result.CrawlID).
		Int("channels", len(result.Channels)).
		Str("topic", p.crawlTopic).
		Str("trace_id", message.TraceID).
		Msg("Published crawl result")
	return nil
}

// PublishSession publishes a finished dispatch session
func (p *ResultPublisher) PublishSession(ctx context.Context, result model.SessionResult) error {
	message := NewSessionResultMessage(result)
	if err := p.publish(ctx, p.sessionTopic, message); err != nil {
		return fmt.Errorf("failed to publish session result: %w", err)
	}

	log.Debug().
		Str("session_id", result.SessionID).
		Str("account", result.Account).
		Int("outcomes", len(result.Outcomes)).
		Str("topic", p.sessionTopic).
		Str("trace_id", message.TraceID).
		Msg("Published session result")
	return nil
}

func (p *ResultPublisher) publish(ctx context.Context, topic string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.client.PublishEvent(ctx, p.pubsubName, topic, data, daprc.PublishEventWithContentType("application/json"))
}
