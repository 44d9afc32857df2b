// Package results derives session statistics and persists crawl and
// session results.
package results

import (
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

// Summarize computes the derived statistics of a finished session. The
// average delay is the mean gap between consecutive attempt timestamps.
func Summarize(outcomes []model.ActionOutcome) model.SessionSummary {
	summary := model.SessionSummary{
		ErrorsByCategory: make(map[string]int),
		ErrorsByCode:     make(map[string]int),
	}
	if len(outcomes) == 0 {
		return summary
	}

	successes := 0
	for _, o := range outcomes {
		if o.Success {
			successes++
			continue
		}
		if o.Error != nil {
			summary.ErrorsByCategory[string(o.Error.Class)]++
			summary.ErrorsByCode[string(o.Error.Code)]++
		}
	}
	summary.SuccessRate = float64(successes) / float64(len(outcomes))

	if len(outcomes) > 1 {
		var total time.Duration
		for i := 1; i < len(outcomes); i++ {
			total += outcomes[i].Timestamp.Sub(outcomes[i-1].Timestamp)
		}
		summary.AverageDelayMs = (total / time.Duration(len(outcomes)-1)).Milliseconds()
	}
	return summary
}

// Finalize fills the counters and summary of result from its outcomes.
func Finalize(result *model.SessionResult) {
	result.SuccessfulCount = 0
	result.FailedCount = 0
	for _, o := range result.Outcomes {
		if o.Success {
			result.SuccessfulCount++
		} else {
			result.FailedCount++
		}
	}
	result.Summary = Summarize(result.Outcomes)
}
