// Package storetest provides an in-memory Store for exercising the
// pipeline, fetchers, verifier, and API without a database.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

type refCodeKey struct {
	Kind schema.RefKind
	Code string
}

// Fake is an in-memory store.Store. Zero-value maps are initialized by
// New; tests seed state through the exported fields or the Seed helpers
// and inject failures through the Errs map (keyed by method name) or the
// per-method override funcs.
type Fake struct {
	mu sync.Mutex

	nextID int64

	ClaimKeys map[string]*schema.ClaimKey
	Files     map[string]*schema.IngestionFile
	RefCodes  map[refCodeKey]*schema.RefCode
	Timelines map[int64][]schema.ClaimStatusTimeline
	Cursors   map[string]string

	// Ledger and source rows for the projector and the maintainer
	Events         map[int64][]store.LedgerEvent
	Billed         map[int64]decimal.Decimal
	Headers        []store.ClaimHeaderRow
	Lines          map[int64][]store.RemittanceLineRow
	ActivityCounts map[int64]int

	// refreshLock stands in for the cross-process refresh lock
	refreshLock sync.Mutex

	// Published aggregates
	ClaimSummaries     []schema.ClaimFinancialSummary
	PayerSummaries     []schema.PayerMonthSummary
	ClinicianSummaries []schema.ClinicianDenialSummary
	RefreshRuns        []*schema.RefreshRun

	// Verification knobs
	EventsByFile        map[int64]int64
	ClaimsByFile        map[int64]int64
	Orphans             store.OrphanCounts
	DuplicateSubs       int64
	AggregateDuplicates map[string]int64

	// Errs injects a failure into the named method
	Errs map[string]error

	// Optional full overrides for the document persist paths
	PersistSubmissionFn func(ctx context.Context, fileID int64, file *domain.SubmissionFile) (*store.PersistResult, error)
	PersistRemittanceFn func(ctx context.Context, fileID int64, file *domain.RemittanceFile) (*store.PersistResult, error)
}

var _ store.Store = (*Fake)(nil)

// New returns an empty Fake ready for seeding
func New() *Fake {
	return &Fake{
		ClaimKeys:           make(map[string]*schema.ClaimKey),
		Files:               make(map[string]*schema.IngestionFile),
		RefCodes:            make(map[refCodeKey]*schema.RefCode),
		Timelines:           make(map[int64][]schema.ClaimStatusTimeline),
		Cursors:             make(map[string]string),
		Events:              make(map[int64][]store.LedgerEvent),
		Billed:              make(map[int64]decimal.Decimal),
		Lines:               make(map[int64][]store.RemittanceLineRow),
		ActivityCounts:      make(map[int64]int),
		EventsByFile:        make(map[int64]int64),
		ClaimsByFile:        make(map[int64]int64),
		AggregateDuplicates: make(map[string]int64),
		Errs:                make(map[string]error),
	}
}

func (f *Fake) fail(method string) error {
	return f.Errs[method]
}

func (f *Fake) id() int64 {
	f.nextID++
	return f.nextID
}

// SeedProcessedFile records a fileID as already fully processed
func (f *Fake) SeedProcessedFile(fileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[fileID] = &schema.IngestionFile{
		ID:     f.id(),
		FileID: fileID,
		Status: schema.FileStatusProcessed,
	}
}

// SeedClaim registers a claim key with its ledger events and billed amount
func (f *Fake) SeedClaim(claimID string, billed decimal.Decimal, events ...store.LedgerEvent) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := &schema.ClaimKey{ID: f.id(), ClaimID: claimID, CreatedAt: time.Now().UTC()}
	f.ClaimKeys[claimID] = key
	for i := range events {
		events[i].ClaimKeyID = key.ID
	}
	f.Events[key.ID] = events
	f.Billed[key.ID] = billed
	return key.ID
}

func (f *Fake) GetOrCreateClaimKey(_ context.Context, claimID string) (*schema.ClaimKey, error) {
	if err := f.fail("GetOrCreateClaimKey"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if key, ok := f.ClaimKeys[claimID]; ok {
		return key, nil
	}
	key := &schema.ClaimKey{ID: f.id(), ClaimID: claimID, CreatedAt: time.Now().UTC()}
	f.ClaimKeys[claimID] = key
	return key, nil
}

func (f *Fake) GetClaimKeyByClaimID(_ context.Context, claimID string) (*schema.ClaimKey, error) {
	if err := f.fail("GetClaimKeyByClaimID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.ClaimKeys[claimID]
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	return key, nil
}

func (f *Fake) CreateIngestionFile(_ context.Context, input store.CreateIngestionFileInput) (*schema.IngestionFile, bool, error) {
	if err := f.fail("CreateIngestionFile"); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.Files[input.FileID]; ok {
		return existing, false, nil
	}
	now := time.Now().UTC()
	file := &schema.IngestionFile{
		ID:              f.id(),
		FileID:          input.FileID,
		RootType:        input.RootType,
		SenderID:        input.Header.SenderID,
		ReceiverID:      input.Header.ReceiverID,
		TransactionDate: input.Header.TransactionDate,
		RecordCount:     input.Header.RecordCount,
		Disposition:     string(input.Header.Disposition),
		Status:          schema.FileStatusPending,
		ReceivedAt:      now,
		UpdatedAt:       now,
	}
	f.Files[input.FileID] = file
	return file, true, nil
}

func (f *Fake) GetIngestionFileByFileID(_ context.Context, fileID string) (*schema.IngestionFile, error) {
	if err := f.fail("GetIngestionFileByFileID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.Files[fileID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return file, nil
}

func (f *Fake) IsDocumentProcessed(_ context.Context, fileID string) (bool, error) {
	if err := f.fail("IsDocumentProcessed"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.Files[fileID]
	return ok && file.Status == schema.FileStatusProcessed, nil
}

func (f *Fake) UpdateFileOutcome(_ context.Context, id int64, outcome store.FileOutcome) error {
	if err := f.fail("UpdateFileOutcome"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.fileByID(id)
	if file == nil {
		return domain.ErrDocumentNotFound
	}
	file.Status = outcome.Status
	if outcome.FailureClass != nil {
		class := string(*outcome.FailureClass)
		file.FailureClass = &class
	}
	file.FailureDetail = outcome.FailureDetail
	file.ParsedClaims = outcome.ParsedClaims
	file.ParsedActivities = outcome.ParsedActivities
	file.PersistedClaims = outcome.PersistedClaims
	file.PersistedActivities = outcome.PersistedActivities
	if outcome.VerificationDetail != nil {
		file.VerificationDetail = outcome.VerificationDetail
	}
	file.VerifiedAt = outcome.VerifiedAt
	file.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *Fake) MarkFileAcked(_ context.Context, id int64, at time.Time) error {
	if err := f.fail("MarkFileAcked"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.fileByID(id)
	if file == nil {
		return domain.ErrDocumentNotFound
	}
	file.AckedAt = &at
	return nil
}

func (f *Fake) MarkFileRequeued(_ context.Context, fileID string) error {
	if err := f.fail("MarkFileRequeued"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.Files[fileID]
	if !ok || file.Status != schema.FileStatusFailed {
		return domain.ErrDocumentNotFound
	}
	file.Status = schema.FileStatusRequeued
	return nil
}

func (f *Fake) ListFailedDocuments(_ context.Context, limit, offset int) ([]*schema.IngestionFile, error) {
	if err := f.fail("ListFailedDocuments"); err != nil {
		return nil, err
	}
	return f.listByStatus(schema.FileStatusFailed, limit, offset), nil
}

func (f *Fake) ListRequeuedDocuments(_ context.Context, limit int) ([]*schema.IngestionFile, error) {
	if err := f.fail("ListRequeuedDocuments"); err != nil {
		return nil, err
	}
	return f.listByStatus(schema.FileStatusRequeued, limit, 0), nil
}

func (f *Fake) listByStatus(status schema.FileStatus, limit, offset int) []*schema.IngestionFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schema.IngestionFile
	for _, file := range f.Files {
		if file.Status == status {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *Fake) fileByID(id int64) *schema.IngestionFile {
	for _, file := range f.Files {
		if file.ID == id {
			return file
		}
	}
	return nil
}

func (f *Fake) PersistSubmission(ctx context.Context, fileID int64, file *domain.SubmissionFile) (*store.PersistResult, error) {
	if err := f.fail("PersistSubmission"); err != nil {
		return nil, err
	}
	if f.PersistSubmissionFn != nil {
		return f.PersistSubmissionFn(ctx, fileID, file)
	}
	result := &store.PersistResult{}
	for _, claim := range file.Claims {
		key, err := f.GetOrCreateClaimKey(ctx, claim.ID)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		kind := domain.EventKindSubmission
		if claim.Resubmission != nil {
			kind = domain.EventKindResubmission
		}
		f.Events[key.ID] = append(f.Events[key.ID], store.LedgerEvent{
			ID:         f.id(),
			ClaimKeyID: key.ID,
			Kind:       kind,
			EventTime:  file.Header.TransactionDate,
		})
		if kind == domain.EventKindSubmission {
			f.Billed[key.ID] = claim.Net
		}
		f.EventsByFile[fileID]++
		f.ClaimsByFile[fileID]++
		f.mu.Unlock()
		result.Claims++
		result.Activities += len(claim.Activities)
		result.AffectedClaims = append(result.AffectedClaims, key.ID)
	}
	return result, nil
}

func (f *Fake) PersistRemittance(ctx context.Context, fileID int64, file *domain.RemittanceFile) (*store.PersistResult, error) {
	if err := f.fail("PersistRemittance"); err != nil {
		return nil, err
	}
	if f.PersistRemittanceFn != nil {
		return f.PersistRemittanceFn(ctx, fileID, file)
	}
	result := &store.PersistResult{}
	for _, claim := range file.Claims {
		key, err := f.GetOrCreateClaimKey(ctx, claim.ID)
		if err != nil {
			return nil, err
		}
		paid := decimal.Zero
		denied := true
		for _, act := range claim.Activities {
			paid = paid.Add(act.PaymentAmount)
			if act.DenialCode == "" {
				denied = false
			}
		}
		f.mu.Lock()
		f.Events[key.ID] = append(f.Events[key.ID], store.LedgerEvent{
			ID:                 f.id(),
			ClaimKeyID:         key.ID,
			Kind:               domain.EventKindRemittance,
			EventTime:          file.Header.TransactionDate,
			PaidAmount:         paid,
			HasPositivePayment: paid.IsPositive(),
			DeniedOnly:         denied && len(claim.Activities) > 0,
			RemitPayerCode:     file.Header.SenderID,
		})
		f.EventsByFile[fileID]++
		f.ClaimsByFile[fileID]++
		f.mu.Unlock()
		result.Claims++
		result.PaymentLines += len(claim.Activities)
		result.AffectedClaims = append(result.AffectedClaims, key.ID)
	}
	return result, nil
}

func (f *Fake) GetLedgerEvents(_ context.Context, claimKeyID int64) ([]store.LedgerEvent, error) {
	if err := f.fail("GetLedgerEvents"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	events := append([]store.LedgerEvent(nil), f.Events[claimKeyID]...)
	sort.Slice(events, func(i, j int) bool {
		if !events[i].EventTime.Equal(events[j].EventTime) {
			return events[i].EventTime.Before(events[j].EventTime)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (f *Fake) GetClaimBilled(_ context.Context, claimKeyID int64) (decimal.Decimal, error) {
	if err := f.fail("GetClaimBilled"); err != nil {
		return decimal.Zero, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Billed[claimKeyID], nil
}

func (f *Fake) ReplaceStatusTimeline(_ context.Context, claimKeyID int64, entries []schema.ClaimStatusTimeline) error {
	if err := f.fail("ReplaceStatusTimeline"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Timelines[claimKeyID] = append([]schema.ClaimStatusTimeline(nil), entries...)
	return nil
}

func (f *Fake) GetStatusTimeline(_ context.Context, claimKeyID int64) ([]*schema.ClaimStatusTimeline, error) {
	if err := f.fail("GetStatusTimeline"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.Timelines[claimKeyID]
	out := make([]*schema.ClaimStatusTimeline, len(entries))
	for i := range entries {
		e := entries[i]
		out[i] = &e
	}
	return out, nil
}

func (f *Fake) GetOrCreateRefCode(_ context.Context, kind schema.RefKind, code string) (*schema.RefCode, error) {
	if err := f.fail("GetOrCreateRefCode"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := refCodeKey{Kind: kind, Code: code}
	if ref, ok := f.RefCodes[key]; ok {
		return ref, nil
	}
	ref := &schema.RefCode{ID: f.id(), Kind: kind, Code: code, CreatedAt: time.Now().UTC()}
	f.RefCodes[key] = ref
	return ref, nil
}

func (f *Fake) BackfillClaimRefs(_ context.Context, claimKeyID int64, payerRefID, providerRefID *int64) error {
	return f.fail("BackfillClaimRefs")
}

func (f *Fake) GetClaimHeadersForMonths(_ context.Context, months []string) ([]store.ClaimHeaderRow, error) {
	if err := f.fail("GetClaimHeadersForMonths"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inWindow := make(map[string]bool, len(months))
	for _, m := range months {
		inWindow[m] = true
	}
	var out []store.ClaimHeaderRow
	for _, h := range f.Headers {
		if inWindow[h.SubmittedAt.UTC().Format("2006-01")] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *Fake) GetLedgerEventsForClaims(_ context.Context, claimKeyIDs []int64) ([]store.LedgerEvent, error) {
	if err := f.fail("GetLedgerEventsForClaims"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.LedgerEvent
	for _, id := range claimKeyIDs {
		out = append(out, f.Events[id]...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].EventTime.Before(out[j].EventTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *Fake) GetRemittanceLinesForClaims(_ context.Context, claimKeyIDs []int64) ([]store.RemittanceLineRow, error) {
	if err := f.fail("GetRemittanceLinesForClaims"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.RemittanceLineRow
	for _, id := range claimKeyIDs {
		out = append(out, f.Lines[id]...)
	}
	return out, nil
}

func (f *Fake) GetActivityCountsForClaims(_ context.Context, claimKeyIDs []int64) (map[int64]int, error) {
	if err := f.fail("GetActivityCountsForClaims"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]int, len(claimKeyIDs))
	for _, id := range claimKeyIDs {
		if n, ok := f.ActivityCounts[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (f *Fake) ReplaceClaimFinancialSummaries(_ context.Context, months []string, rows []schema.ClaimFinancialSummary) error {
	if err := f.fail("ReplaceClaimFinancialSummaries"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClaimSummaries = replaceMonths(f.ClaimSummaries, months, rows, func(r schema.ClaimFinancialSummary) string { return r.MonthYear })
	return nil
}

func (f *Fake) ReplacePayerMonthSummaries(_ context.Context, months []string, rows []schema.PayerMonthSummary) error {
	if err := f.fail("ReplacePayerMonthSummaries"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PayerSummaries = replaceMonths(f.PayerSummaries, months, rows, func(r schema.PayerMonthSummary) string { return r.MonthYear })
	return nil
}

func (f *Fake) ReplaceClinicianDenialSummaries(_ context.Context, months []string, rows []schema.ClinicianDenialSummary) error {
	if err := f.fail("ReplaceClinicianDenialSummaries"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClinicianSummaries = replaceMonths(f.ClinicianSummaries, months, rows, func(r schema.ClinicianDenialSummary) string { return r.MonthYear })
	return nil
}

func replaceMonths[T any](existing []T, months []string, rows []T, monthOf func(T) string) []T {
	inWindow := make(map[string]bool, len(months))
	for _, m := range months {
		inWindow[m] = true
	}
	var out []T
	for _, r := range existing {
		if !inWindow[monthOf(r)] {
			out = append(out, r)
		}
	}
	return append(out, rows...)
}

func (f *Fake) GetClaimFinancialSummary(_ context.Context, claimKeyID int64) (*schema.ClaimFinancialSummary, error) {
	if err := f.fail("GetClaimFinancialSummary"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ClaimSummaries {
		if f.ClaimSummaries[i].ClaimKeyID == claimKeyID {
			row := f.ClaimSummaries[i]
			return &row, nil
		}
	}
	return nil, domain.ErrClaimNotFound
}

func (f *Fake) AcquireRefreshLock(_ context.Context) (func(), bool, error) {
	if err := f.fail("AcquireRefreshLock"); err != nil {
		return nil, false, err
	}
	if !f.refreshLock.TryLock() {
		return nil, false, nil
	}
	return f.refreshLock.Unlock, true, nil
}

func (f *Fake) CreateRefreshRun(_ context.Context, run *schema.RefreshRun) error {
	if err := f.fail("CreateRefreshRun"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *run
	f.RefreshRuns = append(f.RefreshRuns, &copied)
	return nil
}

func (f *Fake) FinishRefreshRun(_ context.Context, id string, status schema.RefreshStatus, rowCount int, failureDetail *string) error {
	if err := f.fail("FinishRefreshRun"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.RefreshRuns {
		if run.ID == id {
			now := time.Now().UTC()
			run.Status = status
			run.RowCount = rowCount
			run.FailureDetail = failureDetail
			run.FinishedAt = &now
			return nil
		}
	}
	return fmt.Errorf("refresh run %s not found", id)
}

func (f *Fake) ListRefreshRuns(_ context.Context, limit int) ([]*schema.RefreshRun, error) {
	if err := f.fail("ListRefreshRuns"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*schema.RefreshRun(nil), f.RefreshRuns...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) CountEventsByFile(_ context.Context, ingestionFileID int64) (int64, error) {
	if err := f.fail("CountEventsByFile"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.EventsByFile[ingestionFileID], nil
}

func (f *Fake) CountDistinctClaimsByFile(_ context.Context, ingestionFileID int64) (int64, error) {
	if err := f.fail("CountDistinctClaimsByFile"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ClaimsByFile[ingestionFileID], nil
}

func (f *Fake) CountOrphanDetailRows(_ context.Context) (store.OrphanCounts, error) {
	if err := f.fail("CountOrphanDetailRows"); err != nil {
		return store.OrphanCounts{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Orphans, nil
}

func (f *Fake) CountDuplicateSubmissions(_ context.Context) (int64, error) {
	if err := f.fail("CountDuplicateSubmissions"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DuplicateSubs, nil
}

func (f *Fake) CountAggregateDuplicates(_ context.Context, target string) (int64, error) {
	if err := f.fail("CountAggregateDuplicates"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AggregateDuplicates[target], nil
}

func (f *Fake) CountClaims(_ context.Context) (int64, error) {
	if err := f.fail("CountClaims"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.ClaimKeys)), nil
}

func (f *Fake) CountClaimFinancialSummaries(_ context.Context) (int64, error) {
	if err := f.fail("CountClaimFinancialSummaries"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.ClaimSummaries)), nil
}

func (f *Fake) SumLedgerPayments(_ context.Context, claimKeyID int64) (decimal.Decimal, error) {
	if err := f.fail("SumLedgerPayments"); err != nil {
		return decimal.Zero, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	total := decimal.Zero
	for _, line := range f.Lines[claimKeyID] {
		total = total.Add(line.PaymentAmount)
	}
	return total, nil
}

func (f *Fake) SampleAggregatedClaimKeys(_ context.Context, limit int) ([]int64, error) {
	if err := f.fail("SampleAggregatedClaimKeys"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for i := range f.ClaimSummaries {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, f.ClaimSummaries[i].ClaimKeyID)
	}
	return out, nil
}

func (f *Fake) GetFetchCursor(_ context.Context, facility string) (string, error) {
	if err := f.fail("GetFetchCursor"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Cursors[facility], nil
}

func (f *Fake) SetFetchCursor(_ context.Context, facility string, value string) error {
	if err := f.fail("SetFetchCursor"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cursors[facility] = value
	return nil
}
