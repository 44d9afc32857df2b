// Package distributed publishes crawl and session results to Dapr pub/sub
// so that downstream consumers can follow outreach runs.
package distributed

import (
	"time"

	"github.com/google/uuid"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

// Message types
const (
	MessageTypeCrawlResult   = "crawl_result"
	MessageTypeSessionResult = "session_result"
)

// CrawlResultMessage carries a finished crawl.
type CrawlResultMessage struct {
	MessageType string            `json:"message_type"`
	Account     string            `json:"account,omitempty"`
	Result      model.CrawlResult `json:"result"`
	Timestamp   time.Time         `json:"timestamp"`
	TraceID     string            `json:"trace_id,omitempty"`
}

// SessionResultMessage carries a finished dispatch session.
type SessionResultMessage struct {
	MessageType string              `json:"message_type"`
	Result      model.SessionResult `json:"result"`
	Timestamp   time.Time           `json:"timestamp"`
	TraceID     string              `json:"trace_id,omitempty"`
}

// NewCrawlResultMessage wraps a crawl result for publishing.
func NewCrawlResultMessage(account string, result model.CrawlResult) CrawlResultMessage {
	return CrawlResultMessage{
		MessageType: MessageTypeCrawlResult,
		Account:     account,
		Result:      result,
		Timestamp:   time.Now(),
		TraceID:     generateTraceID(),
	}
}

// NewSessionResultMessage wraps a session result for publishing.
func NewSessionResultMessage(result model.SessionResult) SessionResultMessage {
	return SessionResultMessage{
		MessageType: MessageTypeSessionResult,
		Result:      result,
		Timestamp:   time.Now(),
		TraceID:     generateTraceID(),
	}
}

func generateTraceID() string {
	return "trace-" + uuid.NewString()
}
