package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceFetch means the DAM was unreachable or the asset is gone
	ErrSourceFetch = errors.New("source fetch failed")
	// ErrDestinationWrite means the commerce platform rejected or failed a write
	ErrDestinationWrite = errors.New("destination write failed")
	// ErrConflict means a job for the shop is already pending or running
	ErrConflict = errors.New("conflict")
	// ErrInvalidStateTransition means a job status change is not allowed
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInvalidArgument means a request was malformed
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSignatureInvalid means a webhook signature did not match
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrConfiguration means a shop lacks DAM credentials or base URL
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound means a referenced record does not exist
	ErrNotFound = errors.New("not found")
)

// FailureReason classifies why a single asset failed to sync
type FailureReason string

const (
	ReasonRateLimited FailureReason = "rate_limited"
	ReasonNetwork     FailureReason = "network"
	ReasonNotFound    FailureReason = "not_found"
	ReasonValidation  FailureReason = "validation"
	ReasonUnknown     FailureReason = "unknown"
)

// Transient reports whether a failure with this reason is worth retrying.
// Unknown reasons are retried.
func (r FailureReason) Transient() bool {
	switch r {
	case ReasonNotFound, ReasonValidation:
		return false
	default:
		return true
	}
}

// SyncFailure is the per-asset error carried on sync results instead of being returned
type SyncFailure struct {
	Kind    error // One of ErrSourceFetch, ErrDestinationWrite, ErrConfiguration
	Reason  FailureReason
	Message string
}

func (f *SyncFailure) Error() string {
	return fmt.Sprintf("%v: %s", f.Kind, f.Message)
}

func (f *SyncFailure) Unwrap() error {
	return f.Kind
}

// Transient reports whether the failure is retryable
func (f *SyncFailure) Transient() bool {
	return f.Reason.Transient()
}
