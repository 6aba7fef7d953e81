// Package projector derives claim status timelines from the event ledger.
// Projection is a pure function: the same ordered events and billed amount
// always produce the same timeline, so the derived table can be rebuilt
// from the ledger at any time.
package projector

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
)

// Entry is one derived status transition
type Entry struct {
	Status     domain.ClaimStatus
	StatusTime time.Time
	EventID    int64
}

// Project maps a claim's ordered ledger events to its status timeline.
//
// Events must already be ordered by (event_time, id); the store returns
// them that way. Payment amounts accumulate across remittance events, so a
// later partial payment that brings the cumulative total up to the billed
// amount yields PAID. An earlier PARTIALLY_PAID is collapsed out of the
// timeline once a later remittance settles the claim in full: the interim
// state is no longer part of the claim's story.
//
// Events matching no rule map to UNKNOWN rather than being dropped.
func Project(events []store.LedgerEvent, billed decimal.Decimal) []Entry {
	if len(events) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(events))
	paid := decimal.Zero

	for _, ev := range events {
		var status domain.ClaimStatus

		switch ev.Kind {
		case domain.EventKindSubmission:
			status = domain.ClaimStatusSubmitted
		case domain.EventKindResubmission:
			status = domain.ClaimStatusResubmitted
		case domain.EventKindRemittance:
			paid = paid.Add(ev.PaidAmount)
			switch {
			case ev.DeniedOnly:
				status = domain.ClaimStatusRejected
			case ev.HasPositivePayment && paid.GreaterThanOrEqual(billed):
				status = domain.ClaimStatusPaid
			case ev.HasPositivePayment:
				status = domain.ClaimStatusPartiallyPaid
			default:
				status = domain.ClaimStatusUnknown
			}
		default:
			status = domain.ClaimStatusUnknown
		}

		entries = append(entries, Entry{
			Status:     status,
			StatusTime: ev.EventTime,
			EventID:    ev.ID,
		})
	}

	return collapseSuperseded(entries)
}

// collapseSuperseded removes PARTIALLY_PAID entries that precede a PAID
// entry. Entries after the last PAID are kept as-is.
func collapseSuperseded(entries []Entry) []Entry {
	lastPaid := -1
	for i, e := range entries {
		if e.Status == domain.ClaimStatusPaid {
			lastPaid = i
		}
	}
	if lastPaid < 0 {
		return entries
	}

	kept := entries[:0]
	for i, e := range entries {
		if i < lastPaid && e.Status == domain.ClaimStatusPartiallyPaid {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// CurrentStatus returns the claim's latest projected status, UNKNOWN when
// the timeline is empty
func CurrentStatus(entries []Entry) domain.ClaimStatus {
	if len(entries) == 0 {
		return domain.ClaimStatusUnknown
	}
	return entries[len(entries)-1].Status
}
