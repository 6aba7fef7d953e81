package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

// Store defines the interface for database operations
type Store interface {
	// GetOrCreateClaimKey resolves a natural claim id to its surrogate key,
	// creating it atomically on first sight (single winner under concurrent
	// creation)
	GetOrCreateClaimKey(ctx context.Context, claimID string) (*schema.ClaimKey, error)
	// GetClaimKeyByClaimID retrieves a claim key without creating it
	GetClaimKeyByClaimID(ctx context.Context, claimID string) (*schema.ClaimKey, error)

	// CreateIngestionFile records a document before processing. If the file
	// id was already recorded, the existing row is returned with created=false.
	CreateIngestionFile(ctx context.Context, input CreateIngestionFileInput) (*schema.IngestionFile, bool, error)
	// GetIngestionFileByFileID retrieves a document record by its natural id
	GetIngestionFileByFileID(ctx context.Context, fileID string) (*schema.IngestionFile, error)
	// IsDocumentProcessed reports whether a file id has already been fully
	// processed; fetchers consult this so restarts skip completed documents
	IsDocumentProcessed(ctx context.Context, fileID string) (bool, error)
	// UpdateFileOutcome records the processing outcome of a document
	UpdateFileOutcome(ctx context.Context, id int64, outcome FileOutcome) error
	// MarkFileAcked stamps the acknowledgment time
	MarkFileAcked(ctx context.Context, id int64, at time.Time) error
	// MarkFileRequeued flips a failed document back to REQUEUED
	MarkFileRequeued(ctx context.Context, fileID string) error
	// ListFailedDocuments enumerates operator-visible failed documents
	ListFailedDocuments(ctx context.Context, limit, offset int) ([]*schema.IngestionFile, error)
	// ListRequeuedDocuments enumerates documents an operator sent back for
	// reprocessing; fetchers re-offer these from the archive
	ListRequeuedDocuments(ctx context.Context, limit int) ([]*schema.IngestionFile, error)

	// PersistSubmission writes a parsed submission document into the ledger
	// and detail tables, claim by claim, idempotently
	PersistSubmission(ctx context.Context, fileID int64, file *domain.SubmissionFile) (*PersistResult, error)
	// PersistRemittance writes a parsed remittance document into the ledger
	// and payment-line tables, claim by claim, idempotently
	PersistRemittance(ctx context.Context, fileID int64, file *domain.RemittanceFile) (*PersistResult, error)

	// GetLedgerEvents returns a claim's events ordered by (event_time, id)
	// with remittance payment rollups attached
	GetLedgerEvents(ctx context.Context, claimKeyID int64) ([]LedgerEvent, error)
	// GetClaimBilled returns the claim's billed (net) amount, zero when the
	// submission detail has not arrived yet
	GetClaimBilled(ctx context.Context, claimKeyID int64) (decimal.Decimal, error)
	// ReplaceStatusTimeline swaps a claim's derived timeline wholesale
	ReplaceStatusTimeline(ctx context.Context, claimKeyID int64, entries []schema.ClaimStatusTimeline) error
	// GetStatusTimeline reads a claim's current timeline
	GetStatusTimeline(ctx context.Context, claimKeyID int64) ([]*schema.ClaimStatusTimeline, error)

	// GetOrCreateRefCode resolves a business code to a reference id,
	// creating the row on first sight
	GetOrCreateRefCode(ctx context.Context, kind schema.RefKind, code string) (*schema.RefCode, error)
	// BackfillClaimRefs fills reference ids on a claim header where still
	// unset (idempotent enrichment)
	BackfillClaimRefs(ctx context.Context, claimKeyID int64, payerRefID, providerRefID *int64) error

	// Aggregate source queries (read side of the maintainer)
	GetClaimHeadersForMonths(ctx context.Context, months []string) ([]ClaimHeaderRow, error)
	GetLedgerEventsForClaims(ctx context.Context, claimKeyIDs []int64) ([]LedgerEvent, error)
	GetRemittanceLinesForClaims(ctx context.Context, claimKeyIDs []int64) ([]RemittanceLineRow, error)
	GetActivityCountsForClaims(ctx context.Context, claimKeyIDs []int64) (map[int64]int, error)

	// Aggregate publication (full replace per month partition, atomic)
	ReplaceClaimFinancialSummaries(ctx context.Context, months []string, rows []schema.ClaimFinancialSummary) error
	ReplacePayerMonthSummaries(ctx context.Context, months []string, rows []schema.PayerMonthSummary) error
	ReplaceClinicianDenialSummaries(ctx context.Context, months []string, rows []schema.ClinicianDenialSummary) error
	// GetClaimFinancialSummary reads the published claim-level aggregate row
	GetClaimFinancialSummary(ctx context.Context, claimKeyID int64) (*schema.ClaimFinancialSummary, error)

	// AcquireRefreshLock takes the cross-process refresh lock. Returns
	// ok=false without error when another process holds it. The caller
	// must invoke release when done.
	AcquireRefreshLock(ctx context.Context) (release func(), ok bool, err error)

	// Refresh artifacts
	CreateRefreshRun(ctx context.Context, run *schema.RefreshRun) error
	FinishRefreshRun(ctx context.Context, id string, status schema.RefreshStatus, rowCount int, failureDetail *string) error
	ListRefreshRuns(ctx context.Context, limit int) ([]*schema.RefreshRun, error)

	// Verification queries
	CountEventsByFile(ctx context.Context, ingestionFileID int64) (int64, error)
	CountDistinctClaimsByFile(ctx context.Context, ingestionFileID int64) (int64, error)
	CountOrphanDetailRows(ctx context.Context) (OrphanCounts, error)
	CountDuplicateSubmissions(ctx context.Context) (int64, error)
	CountAggregateDuplicates(ctx context.Context, target string) (int64, error)
	CountClaims(ctx context.Context) (int64, error)
	CountClaimFinancialSummaries(ctx context.Context) (int64, error)
	SumLedgerPayments(ctx context.Context, claimKeyID int64) (decimal.Decimal, error)
	SampleAggregatedClaimKeys(ctx context.Context, limit int) ([]int64, error)

	// Fetch progress cursor
	GetFetchCursor(ctx context.Context, facility string) (string, error)
	SetFetchCursor(ctx context.Context, facility string, value string) error
}

// CreateIngestionFileInput carries the document envelope into the store
type CreateIngestionFileInput struct {
	FileID   string
	RootType schema.RootType
	Header   domain.FileHeader
}

// FileOutcome records how a document's processing ended
type FileOutcome struct {
	Status              schema.FileStatus
	FailureClass        *domain.FailureClass
	FailureDetail       *string
	ParsedClaims        int
	ParsedActivities    int
	PersistedClaims     int
	PersistedActivities int
	VerificationDetail  []byte // JSON, nil to leave unchanged
	VerifiedAt          *time.Time
}

// ClaimFailure identifies one claim that failed inside a document
type ClaimFailure struct {
	ClaimID string
	Err     error
}

// PersistResult summarizes what a persist call wrote. Replayed counts
// claims skipped as benign duplicate deliveries.
type PersistResult struct {
	Claims         int
	Encounters     int
	Diagnoses      int
	Activities     int
	Observations   int
	PaymentLines   int
	Replayed       int
	Failures       []ClaimFailure
	AffectedClaims []int64 // claim keys whose timelines need reprojection
}

// LedgerEvent is the projector's and maintainer's view of one ledger row
type LedgerEvent struct {
	ID         int64
	ClaimKeyID int64
	Kind       domain.EventKind
	EventTime  time.Time
	// Remittance rollups (zero values for submission/resubmission events)
	PaidAmount         decimal.Decimal
	HasPositivePayment bool
	DeniedOnly         bool
	// RemitPayerCode is the remitter-side payer identifier, used by
	// "most recent event wins" aggregation
	RemitPayerCode string
}

// ClaimHeaderRow is the maintainer's flattened view of one claim header
type ClaimHeaderRow struct {
	ClaimKeyID    int64
	ClaimID       string
	PayerCode     *string
	PayerFallback string
	ProviderCode  string
	FacilityCode  string
	Net           decimal.Decimal
	SubmittedAt   time.Time
}

// RemittanceLineRow is the maintainer's flattened view of one payment line
type RemittanceLineRow struct {
	ClaimKeyID    int64
	RemittanceID  int64
	EventTime     time.Time
	PayerCode     string
	ActivityID    string
	ClinicianCode string
	Net           decimal.Decimal
	PaymentAmount decimal.Decimal
	DenialCode    *string
}

// OrphanCounts tallies detail rows that lost their parent
type OrphanCounts struct {
	Activities      int64
	EventActivities int64
	Observations    int64
	RemittanceLines int64
}

// Total sums all orphan counts
func (o OrphanCounts) Total() int64 {
	return o.Activities + o.EventActivities + o.Observations + o.RemittanceLines
}
