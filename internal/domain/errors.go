package domain

import (
	"context"
	"errors"
)

var (
	// ErrMalformedDocument is returned when a document or record fails
	// structural validation. The record is skipped, not retried.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrDuplicateReplay is returned when a natural key already exists
	// because the same document was delivered again. Treated as a
	// success-no-op by the ledger.
	ErrDuplicateReplay = errors.New("duplicate replay")

	// ErrUnexpectedDuplicate is returned when a uniqueness violation hits a
	// key that should have been pre-checked. Indicates a logic gap, not a
	// benign replay, and is surfaced to operators.
	ErrUnexpectedDuplicate = errors.New("unexpected duplicate")

	// ErrVerificationFailed is returned when post-ingestion or post-refresh
	// invariant checks disagree with the ledger.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrStorageUnavailable halts the affected pipeline stage. It is the
	// only failure class allowed to propagate pipeline-wide.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrClaimNotFound is returned when a claim key cannot be resolved
	ErrClaimNotFound = errors.New("claim not found")

	// ErrDocumentNotFound is returned when an ingestion file id is unknown
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRefreshInFlight is returned when a refresh is requested for a
	// target that already has one running (single-flight guard)
	ErrRefreshInFlight = errors.New("refresh already in flight")

	// ErrQueueFull is returned by the intake queue's non-blocking offer
	ErrQueueFull = errors.New("intake queue full")

	// ErrQueueClosed is returned once the intake queue has been shut down
	ErrQueueClosed = errors.New("intake queue closed")
)

// FailureClass labels a failed unit of work for the administrative surface
type FailureClass string

const (
	FailureMalformedInput      FailureClass = "MALFORMED_INPUT"
	FailureDuplicateReplay     FailureClass = "DUPLICATE_REPLAY"
	FailureUnexpectedDuplicate FailureClass = "UNEXPECTED_DUPLICATE"
	FailureVerification        FailureClass = "VERIFICATION_FAILED"
	FailureProcessingTimeout   FailureClass = "PROCESSING_TIMEOUT"
	FailureStorageUnavailable  FailureClass = "STORAGE_UNAVAILABLE"
	FailurePersist             FailureClass = "PERSIST_FAILED"
)

// ClassifyFailure maps an error to its operator-visible failure class
func ClassifyFailure(err error) FailureClass {
	switch {
	case errors.Is(err, ErrMalformedDocument):
		return FailureMalformedInput
	case errors.Is(err, ErrDuplicateReplay):
		return FailureDuplicateReplay
	case errors.Is(err, ErrUnexpectedDuplicate):
		return FailureUnexpectedDuplicate
	case errors.Is(err, ErrVerificationFailed):
		return FailureVerification
	case errors.Is(err, ErrStorageUnavailable):
		return FailureStorageUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return FailureProcessingTimeout
	default:
		return FailurePersist
	}
}
