package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// FailureKind buckets execution errors for retry and circuit-breaking decisions.
type FailureKind string

const (
	// FailureCancellation means the job was stopped deliberately.
	FailureCancellation FailureKind = "cancellation"
	// FailureAuthentication means the API rejected our credentials.
	FailureAuthentication FailureKind = "authentication"
	// FailureRateLimit means the API throttled us.
	FailureRateLimit FailureKind = "rate_limit"
	// FailureQuotaExhausted means the account is out of credits.
	FailureQuotaExhausted FailureKind = "quota_exhausted"
	// FailurePlanCancelled means a human rejected or abandoned the plan.
	FailurePlanCancelled FailureKind = "plan_cancelled"
	// FailureTimeout means the job exceeded its deadline.
	FailureTimeout FailureKind = "timeout"
	// FailureGeneric covers everything else.
	FailureGeneric FailureKind = "generic_execution_error"
)

// ErrPlanCancelled is returned when a plan is rejected without revision
// feedback or its approval request expires.
var ErrPlanCancelled = errors.New("plan cancelled")

// Classify maps an execution error to its failure kind.
// Cancellation and plan rejection are checked before API error shapes so a
// wrapped context error never counts as an API failure.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureGeneric
	}

	if errors.Is(err, ErrPlanCancelled) {
		return FailurePlanCancelled
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancellation
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return FailureAuthentication
		case 429:
			if isQuotaMessage(apiErr.Error()) {
				return FailureQuotaExhausted
			}
			return FailureRateLimit
		case 402:
			return FailureQuotaExhausted
		case 408, 504:
			return FailureTimeout
		}
		if isQuotaMessage(apiErr.Error()) {
			return FailureQuotaExhausted
		}
		return FailureGeneric
	}

	msg := strings.ToLower(err.Error())
	switch {
	case isQuotaMessage(msg):
		return FailureQuotaExhausted
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return FailureRateLimit
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "unauthorized"):
		return FailureAuthentication
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return FailureTimeout
	}
	return FailureGeneric
}

// IsPausable reports whether a failure kind should pause the scheduler
// immediately rather than count toward the sliding failure window.
func (k FailureKind) IsPausable() bool {
	return k == FailureRateLimit || k == FailureQuotaExhausted
}

// CountsAsFailure reports whether a failure kind feeds the failure window.
// Deliberate stops, plan rejections, and terminal kinds (authentication,
// timeout) are not retryable provider failures and never count.
func (k FailureKind) CountsAsFailure() bool {
	switch k {
	case FailureGeneric, FailureRateLimit, FailureQuotaExhausted:
		return true
	}
	return false
}

func isQuotaMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "credit balance") ||
		strings.Contains(msg, "insufficient credit")
}
