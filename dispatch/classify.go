package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

// DefaultCriticalThreshold is the rate-limit lockout at which a session is
// aborted.
const DefaultCriticalThreshold = time.Hour

type classification struct {
	Class       model.FailureClass
	RateLimited bool
	Err         *model.ActionError
}

// Classify maps the error of one Execute call into a failure class.
// Errors that are not *model.ActionError are treated as network failures.
func Classify(err error, criticalThreshold time.Duration) (model.FailureClass, *model.ActionError) {
	c := classify(err, criticalThreshold)
	return c.Class, c.Err
}

func classify(err error, criticalThreshold time.Duration) classification {
	if err == nil {
		return classification{Class: model.ClassSuccess}
	}

	var actionErr *model.ActionError
	if !errors.As(err, &actionErr) {
		code := model.ErrorNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			code = model.ErrorTimeout
		}
		actionErr = &model.ActionError{Code: code, Message: err.Error(), Err: err}
	}

	switch actionErr.Code {
	case model.ErrorRateLimited:
		if actionErr.RetryAfter >= criticalThreshold {
			return classification{Class: model.ClassCritical, RateLimited: true, Err: actionErr}
		}
		return classification{Class: model.ClassTransient, RateLimited: true, Err: actionErr}
	case model.ErrorNotFound, model.ErrorPermissionDenied, model.ErrorFeatureDisabled, model.ErrorContentUnavailable, model.ErrorRejected:
		return classification{Class: model.ClassPermanent, Err: actionErr}
	default:
		return classification{Class: model.ClassTransient, Err: actionErr}
	}
}
