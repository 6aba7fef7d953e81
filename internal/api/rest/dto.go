package rest

import (
	"encoding/json"
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

// DocumentDTO is the operator-facing view of an ingestion file record
type DocumentDTO struct {
	FileID              string          `json:"file_id"`
	RootType            string          `json:"root_type"`
	SenderID            string          `json:"sender_id"`
	ReceiverID          string          `json:"receiver_id"`
	Status              string          `json:"status"`
	FailureClass        *string         `json:"failure_class,omitempty"`
	FailureDetail       *string         `json:"failure_detail,omitempty"`
	ParsedClaims        int             `json:"parsed_claims"`
	ParsedActivities    int             `json:"parsed_activities"`
	PersistedClaims     int             `json:"persisted_claims"`
	PersistedActivities int             `json:"persisted_activities"`
	VerificationDetail  json.RawMessage `json:"verification_detail,omitempty"`
	VerifiedAt          *time.Time      `json:"verified_at,omitempty"`
	AckedAt             *time.Time      `json:"acked_at,omitempty"`
	ReceivedAt          time.Time       `json:"received_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func toDocumentDTO(f *schema.IngestionFile) DocumentDTO {
	return DocumentDTO{
		FileID:              f.FileID,
		RootType:            string(f.RootType),
		SenderID:            f.SenderID,
		ReceiverID:          f.ReceiverID,
		Status:              string(f.Status),
		FailureClass:        f.FailureClass,
		FailureDetail:       f.FailureDetail,
		ParsedClaims:        f.ParsedClaims,
		ParsedActivities:    f.ParsedActivities,
		PersistedClaims:     f.PersistedClaims,
		PersistedActivities: f.PersistedActivities,
		VerificationDetail:  json.RawMessage(f.VerificationDetail),
		VerifiedAt:          f.VerifiedAt,
		AckedAt:             f.AckedAt,
		ReceivedAt:          f.ReceivedAt,
		UpdatedAt:           f.UpdatedAt,
	}
}

// RefreshRunDTO is the operator-facing view of one aggregate refresh run
type RefreshRunDTO struct {
	ID            string     `json:"id"`
	Target        string     `json:"target"`
	Partition     string     `json:"partition"`
	Status        string     `json:"status"`
	RowCount      int        `json:"row_count"`
	FailureDetail *string    `json:"failure_detail,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func toRefreshRunDTO(r *schema.RefreshRun) RefreshRunDTO {
	return RefreshRunDTO{
		ID:            r.ID,
		Target:        r.Target,
		Partition:     r.Partition,
		Status:        string(r.Status),
		RowCount:      r.RowCount,
		FailureDetail: r.FailureDetail,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// TimelineEntryDTO is one projected status transition
type TimelineEntryDTO struct {
	Status     string    `json:"status"`
	StatusTime time.Time `json:"status_time"`
}

func toTimelineDTO(entries []*schema.ClaimStatusTimeline) []TimelineEntryDTO {
	out := make([]TimelineEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, TimelineEntryDTO{
			Status:     e.Status.String(),
			StatusTime: e.StatusTime,
		})
	}
	return out
}

// ClaimSummaryDTO is the published claim-level aggregate row
type ClaimSummaryDTO struct {
	ClaimID           string     `json:"claim_id"`
	MonthYear         string     `json:"month_year"`
	PayerKey          string     `json:"payer_key"`
	ProviderCode      string     `json:"provider_code"`
	FacilityCode      string     `json:"facility_code"`
	PaymentStatus     string     `json:"payment_status"`
	Billed            string     `json:"billed"`
	TotalPaid         string     `json:"total_paid"`
	TotalDenied       string     `json:"total_denied"`
	Outstanding       string     `json:"outstanding"`
	ActivityCount     int        `json:"activity_count"`
	ResubmissionCount int        `json:"resubmission_count"`
	RemittanceCount   int        `json:"remittance_count"`
	FirstEventAt      time.Time  `json:"first_event_at"`
	LastEventAt       time.Time  `json:"last_event_at"`
	LastRemittanceAt  *time.Time `json:"last_remittance_at,omitempty"`
	RefreshID         string     `json:"refresh_id"`
}

func toClaimSummaryDTO(row *schema.ClaimFinancialSummary) ClaimSummaryDTO {
	return ClaimSummaryDTO{
		ClaimID:           row.ClaimID,
		MonthYear:         row.MonthYear,
		PayerKey:          row.PayerKey,
		ProviderCode:      row.ProviderCode,
		FacilityCode:      row.FacilityCode,
		PaymentStatus:     row.PaymentStatus.String(),
		Billed:            row.Billed.String(),
		TotalPaid:         row.TotalPaid.String(),
		TotalDenied:       row.TotalDenied.String(),
		Outstanding:       row.Outstanding.String(),
		ActivityCount:     row.ActivityCount,
		ResubmissionCount: row.ResubmissionCount,
		RemittanceCount:   row.RemittanceCount,
		FirstEventAt:      row.FirstEventAt,
		LastEventAt:       row.LastEventAt,
		LastRemittanceAt:  row.LastRemittanceAt,
		RefreshID:         row.RefreshID,
	}
}
