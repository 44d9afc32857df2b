package dispatch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_OnSuccess(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 1800*time.Millisecond, b.OnSuccess(2*time.Second))
	assert.Equal(t, time.Second, b.OnSuccess(time.Second), "never below the floor")
	assert.Equal(t, time.Second, b.OnSuccess(500*time.Millisecond))
}

func TestBackoff_OnRateLimit(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 4*time.Second, b.OnRateLimit(2*time.Second))
	assert.Equal(t, 30*time.Second, b.OnRateLimit(20*time.Second), "never above the ceiling")
}

func TestBackoff_Next(t *testing.T) {
	b := DefaultBackoff()
	d := 10 * time.Second

	assert.Equal(t, 9*time.Second, b.Next(d, classification{Class: model.ClassSuccess}))
	assert.Equal(t, 20*time.Second, b.Next(d, classification{Class: model.ClassTransient, RateLimited: true}))
	assert.Equal(t, d, b.Next(d, classification{Class: model.ClassTransient}), "network errors leave pacing alone")
	assert.Equal(t, d, b.Next(d, classification{Class: model.ClassPermanent}))
	assert.Equal(t, d, b.Next(d, classification{Class: model.ClassCritical, RateLimited: true}))
}

func TestBackoff_WithDefaults(t *testing.T) {
	b := Backoff{Floor: 2 * time.Second}.withDefaults()
	assert.Equal(t, 2*time.Second, b.Floor)
	assert.Equal(t, 30*time.Second, b.Ceiling)
	assert.Equal(t, 2.0, b.Increase)
	assert.Equal(t, 0.9, b.Decrease)

	b = Backoff{Floor: time.Minute, Ceiling: time.Second}.withDefaults()
	assert.Equal(t, time.Minute, b.Ceiling)
}

func TestClassify(t *testing.T) {
	threshold := time.Hour
	tests := []struct {
		name      string
		err       error
		wantClass model.FailureClass
		wantCode  model.ErrorCode
	}{
		{"success", nil, model.ClassSuccess, ""},
		{"short flood wait", rateLimited(30 * time.Second), model.ClassTransient, model.ErrorRateLimited},
		{"just under threshold", rateLimited(time.Hour - time.Second), model.ClassTransient, model.ErrorRateLimited},
		{"at threshold", rateLimited(time.Hour), model.ClassCritical, model.ErrorRateLimited},
		{"long flood wait", rateLimited(5 * time.Hour), model.ClassCritical, model.ErrorRateLimited},
		{"network", &model.ActionError{Code: model.ErrorNetwork}, model.ClassTransient, model.ErrorNetwork},
		{"timeout", &model.ActionError{Code: model.ErrorTimeout}, model.ClassTransient, model.ErrorTimeout},
		{"not found", &model.ActionError{Code: model.ErrorNotFound}, model.ClassPermanent, model.ErrorNotFound},
		{"forbidden", &model.ActionError{Code: model.ErrorPermissionDenied}, model.ClassPermanent, model.ErrorPermissionDenied},
		{"disabled", &model.ActionError{Code: model.ErrorFeatureDisabled}, model.ClassPermanent, model.ErrorFeatureDisabled},
		{"rejected", &model.ActionError{Code: model.ErrorRejected}, model.ClassPermanent, model.ErrorRejected},
		{"wrapped", fmt.Errorf("ctx: %w", &model.ActionError{Code: model.ErrorNotFound}), model.ClassPermanent, model.ErrorNotFound},
		{"plain error", errors.New("boom"), model.ClassTransient, model.ErrorNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, actionErr := Classify(tt.err, threshold)
			assert.Equal(t, tt.wantClass, class)
			if tt.err == nil {
				assert.Nil(t, actionErr)
				return
			}
			assert.Equal(t, tt.wantCode, actionErr.Code)
		})
	}
}
