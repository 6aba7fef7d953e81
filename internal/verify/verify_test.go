package verify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/storetest"
)

func checkByName(t *testing.T, report *Report, name string) Check {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return Check{}
}

func docStats(declared, parsed, skipped int, persisted *store.PersistResult) DocumentStats {
	return DocumentStats{
		DeclaredRecords: declared,
		ParsedClaims:    parsed,
		SkippedClaims:   skipped,
		Persisted:       persisted,
	}
}

func TestVerifyDocumentAllChecksPass(t *testing.T) {
	fake := storetest.New()
	file := &schema.IngestionFile{ID: 7, FileID: "FAC-001_2026_05"}
	fake.EventsByFile[7] = 2

	v := NewVerifier(fake)
	report, err := v.VerifyDocument(context.Background(), file,
		docStats(2, 2, 0, &store.PersistResult{Claims: 2}))
	require.NoError(t, err)

	assert.True(t, report.Passed())
	assert.Len(t, report.Checks, 6)
}

func TestVerifyDocumentRecordCountMismatch(t *testing.T) {
	fake := storetest.New()
	file := &schema.IngestionFile{ID: 1, FileID: "f1"}
	fake.EventsByFile[1] = 2

	v := NewVerifier(fake)
	report, err := v.VerifyDocument(context.Background(), file,
		docStats(3, 2, 0, &store.PersistResult{Claims: 2}))
	require.NoError(t, err)

	assert.False(t, report.Passed())
	assert.False(t, checkByName(t, report, "record_count_match").Passed)
	assert.True(t, checkByName(t, report, "claim_parity").Passed)
}

func TestVerifyDocumentSkippedClaimsCountTowardDeclared(t *testing.T) {
	fake := storetest.New()
	file := &schema.IngestionFile{ID: 1, FileID: "f1"}
	fake.EventsByFile[1] = 2

	v := NewVerifier(fake)
	report, err := v.VerifyDocument(context.Background(), file,
		docStats(3, 2, 1, &store.PersistResult{Claims: 2}))
	require.NoError(t, err)

	assert.True(t, checkByName(t, report, "record_count_match").Passed)
}

func TestVerifyDocumentClaimFailureBreaksOnlyItsChecks(t *testing.T) {
	fake := storetest.New()
	file := &schema.IngestionFile{ID: 1, FileID: "f1"}
	fake.EventsByFile[1] = 1

	persisted := &store.PersistResult{
		Claims:   1,
		Failures: []store.ClaimFailure{{ClaimID: "CLM-2", Err: errors.New("boom")}},
	}

	v := NewVerifier(fake)
	report, err := v.VerifyDocument(context.Background(), file, docStats(2, 2, 0, persisted))
	require.NoError(t, err)

	// parity still holds because the failure is accounted for
	assert.True(t, checkByName(t, report, "claim_parity").Passed)
	assert.False(t, checkByName(t, report, "no_claim_failures").Passed)
	assert.False(t, report.Passed())
}

func TestVerifyDocumentLedgerEvents(t *testing.T) {
	fake := storetest.New()
	file := &schema.IngestionFile{ID: 1, FileID: "f1"}

	v := NewVerifier(fake)

	// Nothing in the ledger for two supposedly persisted claims
	report, err := v.VerifyDocument(context.Background(), file,
		docStats(2, 2, 0, &store.PersistResult{Claims: 2}))
	require.NoError(t, err)
	assert.False(t, checkByName(t, report, "ledger_events_present").Passed)

	// A pure replay appends nothing, so zero events is fine
	report, err = v.VerifyDocument(context.Background(), file,
		docStats(2, 2, 0, &store.PersistResult{Claims: 2, Replayed: 2}))
	require.NoError(t, err)
	assert.True(t, checkByName(t, report, "ledger_events_present").Passed)
}

func TestVerifyDocumentStructuralDecay(t *testing.T) {
	fake := storetest.New()
	fake.EventsByFile[1] = 1
	fake.Orphans = store.OrphanCounts{Activities: 1}
	fake.DuplicateSubs = 1
	file := &schema.IngestionFile{ID: 1, FileID: "f1"}

	v := NewVerifier(fake)
	report, err := v.VerifyDocument(context.Background(), file,
		docStats(1, 1, 0, &store.PersistResult{Claims: 1}))
	require.NoError(t, err)

	assert.False(t, checkByName(t, report, "no_orphan_rows").Passed)
	assert.False(t, checkByName(t, report, "single_submission_per_claim").Passed)
}

func TestVerifyDocumentPropagatesStoreErrors(t *testing.T) {
	fake := storetest.New()
	fake.Errs["CountEventsByFile"] = errors.New("connection reset")
	file := &schema.IngestionFile{ID: 1, FileID: "f1"}

	v := NewVerifier(fake)
	_, err := v.VerifyDocument(context.Background(), file,
		docStats(1, 1, 0, &store.PersistResult{Claims: 1}))
	assert.Error(t, err)
}

func TestVerifyRefreshAllChecksPass(t *testing.T) {
	fake := storetest.New()
	keyID := fake.SeedClaim("CLM-1", decimal.RequireFromString("100.00"))
	fake.ClaimSummaries = []schema.ClaimFinancialSummary{{
		ClaimKeyID: keyID,
		ClaimID:    "CLM-1",
		MonthYear:  "2026-05",
		TotalPaid:  decimal.RequireFromString("60.00"),
	}}
	fake.Lines[keyID] = []store.RemittanceLineRow{{
		ClaimKeyID:    keyID,
		EventTime:     time.Now().UTC(),
		PaymentAmount: decimal.RequireFromString("60.00"),
		Net:           decimal.RequireFromString("60.00"),
	}}

	v := NewVerifier(fake)
	report, err := v.VerifyRefresh(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, report.Passed())
}

func TestVerifyRefreshDuplicateKeysFail(t *testing.T) {
	fake := storetest.New()
	fake.AggregateDuplicates[schema.PayerMonthSummary{}.TableName()] = 2

	v := NewVerifier(fake)
	report, err := v.VerifyRefresh(context.Background(), 0)
	require.NoError(t, err)

	assert.False(t, report.Passed())
	assert.False(t, checkByName(t, report, "unique_keys:"+schema.PayerMonthSummary{}.TableName()).Passed)
	assert.True(t, checkByName(t, report, "unique_keys:"+schema.ClaimFinancialSummary{}.TableName()).Passed)
}

func TestVerifyRefreshCoverageNeverExceedsClaims(t *testing.T) {
	fake := storetest.New()
	// A summary row for a claim the claim table does not know about
	fake.ClaimSummaries = []schema.ClaimFinancialSummary{{ClaimKeyID: 99, ClaimID: "ghost"}}

	v := NewVerifier(fake)
	report, err := v.VerifyRefresh(context.Background(), 0)
	require.NoError(t, err)

	assert.False(t, checkByName(t, report, "claim_coverage").Passed)
}

func TestVerifyRefreshSampledSumMismatch(t *testing.T) {
	fake := storetest.New()
	keyID := fake.SeedClaim("CLM-1", decimal.RequireFromString("100.00"))
	fake.ClaimSummaries = []schema.ClaimFinancialSummary{{
		ClaimKeyID: keyID,
		ClaimID:    "CLM-1",
		TotalPaid:  decimal.RequireFromString("50.00"),
	}}
	fake.Lines[keyID] = []store.RemittanceLineRow{{
		ClaimKeyID:    keyID,
		PaymentAmount: decimal.RequireFromString("40.00"),
	}}

	v := NewVerifier(fake)
	report, err := v.VerifyRefresh(context.Background(), 10)
	require.NoError(t, err)

	assert.False(t, checkByName(t, report, "sampled_payment_sums").Passed)
}

func TestReportJSONRoundTrip(t *testing.T) {
	report := &Report{}
	report.add("a", true, "ok")
	report.add("b", false, "declared=2 seen=1")

	var decoded Report
	require.NoError(t, json.Unmarshal(report.JSON(), &decoded))
	require.Len(t, decoded.Checks, 2)
	assert.Equal(t, "b", decoded.Checks[1].Name)
	assert.False(t, decoded.Checks[1].Passed)
	assert.False(t, decoded.Passed())
}
