package application

import (
	"context"
	"errors"
	"net"
	"strings"

	"archie-core-dam-sync/internal/domain"
)

// reasoner is implemented by adapter errors that know their own failure class
type reasoner interface {
	FailureReason() domain.FailureReason
}

// ClassifyFailure maps an adapter error to a failure reason
func ClassifyFailure(err error) domain.FailureReason {
	if err == nil {
		return domain.ReasonUnknown
	}

	var failure *domain.SyncFailure
	if errors.As(err, &failure) && failure.Reason != "" {
		return failure.Reason
	}

	var r reasoner
	if errors.As(err, &r) {
		return r.FailureReason()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ReasonNetwork
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a stored error message when no structured reason was recorded
func ClassifyMessage(msg string) domain.FailureReason {
	switch {
	case containsAny(msg, []string{"429", "rate limit", "too many requests", "throttled"}):
		return domain.ReasonRateLimited
	case containsAny(msg, []string{"timeout", "timed out", "connection reset", "connection refused", "no such host", "eof", "503", "502", "504"}):
		return domain.ReasonNetwork
	case containsAny(msg, []string{"404", "not found", "no longer exists", "deleted"}):
		return domain.ReasonNotFound
	case containsAny(msg, []string{"400", "422", "invalid", "validation"}):
		return domain.ReasonValidation
	default:
		return domain.ReasonUnknown
	}
}

// containsAny checks if a string contains any of the substrings (case-insensitive)
func containsAny(s string, substrings []string) bool {
	sLower := strings.ToLower(s)
	for _, substr := range substrings {
		if strings.Contains(sLower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func newFailure(kind error, err error) *domain.SyncFailure {
	return &domain.SyncFailure{
		Kind:    kind,
		Reason:  ClassifyFailure(err),
		Message: err.Error(),
	}
}
