package model

import (
	"fmt"
	"time"
)

// ActionKind names the mutation a dispatcher applies to each target.
type ActionKind string

const (
	// ActionJoin subscribes the account to the target channel.
	ActionJoin ActionKind = "join"
	// ActionMessage sends a message directly into the target chat.
	ActionMessage ActionKind = "message"
	// ActionComment replies to the latest post in the channel's discussion thread.
	ActionComment ActionKind = "comment"
)

// NeedsPayload reports whether the action carries message text.
func (k ActionKind) NeedsPayload() bool {
	return k == ActionMessage || k == ActionComment
}

// ActionTarget is a single worklist entry.
type ActionTarget struct {
	Channel    ChannelRef `json:"channel"`
	Payload    string     `json:"payload,omitempty"`
	Priority   int        `json:"priority"`
	Source     string     `json:"source"`
	RetryCount int        `json:"retry_count"`
}

// FailureClass is the classification of one dispatch attempt.
type FailureClass string

const (
	ClassSuccess   FailureClass = "success"
	ClassTransient FailureClass = "transient_failure"
	ClassCritical  FailureClass = "critical_failure"
	ClassPermanent FailureClass = "permanent_failure"
)

// ErrorCode is the concrete cause reported by the remote action client.
type ErrorCode string

const (
	ErrorRateLimited        ErrorCode = "rate_limited"
	ErrorNetwork            ErrorCode = "network"
	ErrorTimeout            ErrorCode = "timeout"
	ErrorNotFound           ErrorCode = "not_found"
	ErrorPermissionDenied   ErrorCode = "permission_denied"
	ErrorFeatureDisabled    ErrorCode = "feature_disabled"
	ErrorContentUnavailable ErrorCode = "content_unavailable"
	ErrorRejected           ErrorCode = "rejected" // any other 4xx: the target is not eligible
	ErrorUnknown            ErrorCode = "unknown"
)

// ActionError is the structured failure returned by an action client.
type ActionError struct {
	Code       ErrorCode
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *ActionError) Error() string {
	if e.Code == ErrorRateLimited {
		return fmt.Sprintf("%s: retry after %s: %s", e.Code, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// OutcomeError is the recorded, serializable form of a failed attempt.
type OutcomeError struct {
	Class             FailureClass `json:"class"`
	Code              ErrorCode    `json:"code"`
	Message           string       `json:"message"`
	RetryAfterSeconds int          `json:"retry_after_seconds,omitempty"`
}

// ActionOutcome is the immutable record of one dispatch attempt.
type ActionOutcome struct {
	Target     ActionTarget  `json:"target"`
	Success    bool          `json:"success"`
	Class      FailureClass  `json:"class"`
	Error      *OutcomeError `json:"error,omitempty"`
	ResultID   string        `json:"result_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	RetryCount int           `json:"retry_count"`
}

// SessionSummary holds values derived once from a session's outcomes.
type SessionSummary struct {
	SuccessRate      float64        `json:"success_rate"`
	AverageDelayMs   int64          `json:"average_delay_ms"`
	ErrorsByCategory map[string]int `json:"errors_by_category"`
	ErrorsByCode     map[string]int `json:"errors_by_code"`
}

// SessionResult is the payload handed to reporting and publishing layers.
type SessionResult struct {
	SessionID       string          `json:"session_id"`
	Account         string          `json:"account,omitempty"`
	Action          ActionKind      `json:"action"`
	DryRun          bool            `json:"dry_run"`
	TotalTargets    int             `json:"total_targets"`
	SuccessfulCount int             `json:"successful_count"`
	FailedCount     int             `json:"failed_count"`
	SkippedCount    int             `json:"skipped_count"`
	Aborted         bool            `json:"aborted"`
	Cancelled       bool            `json:"cancelled"`
	Outcomes        []ActionOutcome `json:"outcomes"`
	RetryQueue      []ActionTarget  `json:"retry_queue,omitempty"`
	Summary         SessionSummary  `json:"summary"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}
