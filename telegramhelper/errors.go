package telegramhelper

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

var (
	tdErrorPattern    = regexp.MustCompile(`^(\d{3}) (.*)$`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry after (\d+)`)
	floodWaitPattern  = regexp.MustCompile(`(?i)FLOOD_WAIT_(\d+)`)
)

// ParseTDLibError maps a go-tdlib error into the action error taxonomy.
// go-tdlib renders server errors as "<code> <message>".
func ParseTDLibError(err error) *model.ActionError {
	if err == nil {
		return nil
	}

	var actionErr *model.ActionError
	if errors.As(err, &actionErr) {
		return actionErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &model.ActionError{Code: model.ErrorTimeout, Message: err.Error(), Err: err}
	}

	text := err.Error()
	code := 0
	message := text
	if m := tdErrorPattern.FindStringSubmatch(text); m != nil {
		code, _ = strconv.Atoi(m[1])
		message = m[2]
	}
	upper := strings.ToUpper(message)

	if wait, ok := parseRetryAfter(message); ok || code == 429 {
		return &model.ActionError{Code: model.ErrorRateLimited, RetryAfter: wait, Message: message, Err: err}
	}

	switch {
	case strings.Contains(upper, "CHAT_WRITE_FORBIDDEN"),
		strings.Contains(upper, "USER_BANNED"),
		strings.Contains(upper, "CHANNEL_PRIVATE"),
		strings.Contains(upper, "HAVE NO RIGHTS"),
		strings.Contains(upper, "NOT ENOUGH RIGHTS"),
		code == 403:
		return &model.ActionError{Code: model.ErrorPermissionDenied, Message: message, Err: err}
	case strings.Contains(upper, "HAS NO THREAD"),
		strings.Contains(upper, "NO DISCUSSION"),
		strings.Contains(upper, "MESSAGE THREAD NOT FOUND"):
		return &model.ActionError{Code: model.ErrorFeatureDisabled, Message: message, Err: err}
	case strings.Contains(upper, "USERNAME_NOT_OCCUPIED"),
		strings.Contains(upper, "USERNAME_INVALID"),
		strings.Contains(upper, "NOT FOUND"),
		code == 404:
		return &model.ActionError{Code: model.ErrorNotFound, Message: message, Err: err}
	case strings.Contains(upper, "TIMEOUT"):
		return &model.ActionError{Code: model.ErrorTimeout, Message: message, Err: err}
	case code >= 400 && code < 500:
		return &model.ActionError{Code: model.ErrorRejected, Message: message, Err: err}
	}

	return &model.ActionError{Code: model.ErrorNetwork, Message: message, Err: err}
}

func parseRetryAfter(message string) (time.Duration, bool) {
	for _, p := range []*regexp.Regexp{retryAfterPattern, floodWaitPattern} {
		if m := p.FindStringSubmatch(message); m != nil {
			secs, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
