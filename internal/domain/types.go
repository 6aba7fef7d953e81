package domain

import (
	"fmt"
)

// EventKind identifies the lifecycle event a document describes.
// Codes are stored as SMALLINT in the ledger and must stay stable.
type EventKind int16

const (
	// EventKindSubmission is the initial claim submission. At most one
	// submission event may exist per claim key.
	EventKindSubmission EventKind = 1
	// EventKindResubmission is a follow-up submission after a denial or
	// correction request.
	EventKindResubmission EventKind = 2
	// EventKindRemittance is a payer adjudication/payment response.
	EventKindRemittance EventKind = 3
)

// String returns the canonical name for the event kind
func (k EventKind) String() string {
	switch k {
	case EventKindSubmission:
		return "submission"
	case EventKindResubmission:
		return "resubmission"
	case EventKindRemittance:
		return "remittance"
	default:
		return fmt.Sprintf("event_kind(%d)", int16(k))
	}
}

// Valid reports whether the kind is one of the known lifecycle kinds
func (k EventKind) Valid() bool {
	return k >= EventKindSubmission && k <= EventKindRemittance
}

// ClaimStatus is the projected lifecycle status of a claim.
// Codes are stored as SMALLINT in the status timeline and must stay stable.
type ClaimStatus int16

const (
	ClaimStatusSubmitted     ClaimStatus = 1
	ClaimStatusResubmitted   ClaimStatus = 2
	ClaimStatusPaid          ClaimStatus = 3
	ClaimStatusPartiallyPaid ClaimStatus = 4
	ClaimStatusRejected      ClaimStatus = 5
	// ClaimStatusUnknown is the explicit fallback for events that match no
	// transition rule. Such events are recorded, never silently dropped.
	ClaimStatusUnknown ClaimStatus = 6
)

// String returns the canonical name for the claim status
func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusSubmitted:
		return "SUBMITTED"
	case ClaimStatusResubmitted:
		return "RESUBMITTED"
	case ClaimStatusPaid:
		return "PAID"
	case ClaimStatusPartiallyPaid:
		return "PARTIALLY_PAID"
	case ClaimStatusRejected:
		return "REJECTED"
	case ClaimStatusUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("claim_status(%d)", int16(s))
	}
}

// ClaimStatusFromCode converts a stored SMALLINT code back to a ClaimStatus
func ClaimStatusFromCode(code int16) (ClaimStatus, error) {
	s := ClaimStatus(code)
	if s < ClaimStatusSubmitted || s > ClaimStatusUnknown {
		return 0, fmt.Errorf("invalid claim status code: %d", code)
	}
	return s, nil
}

// PayerRef is a tagged payer identifier used as an aggregate grouping
// dimension. A claim without a resolvable payer (e.g. self-pay) gets a
// per-claim-unique fallback token so that grouping never collapses two
// distinct unknown-payer claims into one row and never groups on NULL.
type PayerRef struct {
	code     string
	fallback string
}

// KnownPayer wraps a resolvable payer code
func KnownPayer(code string) PayerRef {
	return PayerRef{code: code}
}

// UnknownPayerWithToken builds a fallback reference from a per-claim token.
// The token must be stable across replays of the same claim, so callers
// derive it from the claim rather than minting a fresh one.
func UnknownPayerWithToken(token string) PayerRef {
	return PayerRef{fallback: token}
}

// Known reports whether the payer code was resolvable
func (p PayerRef) Known() bool {
	return p.code != ""
}

// Code returns the payer code when known
func (p PayerRef) Code() (string, bool) {
	return p.code, p.code != ""
}

// GroupKey returns the grouping value: the payer code when known, otherwise
// a synthetic self-pay key unique to this claim. Never empty.
func (p PayerRef) GroupKey() string {
	if p.code != "" {
		return p.code
	}
	return "self-pay:" + p.fallback
}

// DispositionFlag is the header disposition marker carried by both document
// shapes (production vs test traffic).
type DispositionFlag string

const (
	DispositionProduction DispositionFlag = "PRODUCTION"
	DispositionTest       DispositionFlag = "TEST"
)
