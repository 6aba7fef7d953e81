package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

var (
	testDB      *gorm.DB
	pgContainer *postgres.PostgresContainer
)

// TestMain sets up the test database before running tests
func TestMain(m *testing.M) {
	ctx := context.Background()

	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}

	// Check if we should use an external database (for CI or local development)
	dbHost := os.Getenv("TEST_DB_HOST")
	dbPort := os.Getenv("TEST_DB_PORT")
	dbUser := os.Getenv("TEST_DB_USER")
	dbPassword := os.Getenv("TEST_DB_PASSWORD")
	dbName := os.Getenv("TEST_DB_NAME")

	var dsn string
	var err error

	if dbHost != "" {
		// Use external database
		if dbPort == "" {
			dbPort = "5432"
		}
		if dbUser == "" {
			dbUser = "postgres"
		}
		if dbPassword == "" {
			dbPassword = "postgres"
		}
		if dbName == "" {
			dbName = "test_db"
		}

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPassword, dbName)

		fmt.Printf("Using external database: %s:%s/%s\n", dbHost, dbPort, dbName)
	} else {
		// Start a PostgreSQL container for testing
		pgContainer, err = postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("test_db"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			fmt.Printf("Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Printf("Failed to get connection string: %v\n", err)
			terminateContainer(ctx)
			os.Exit(1)
		}

		fmt.Printf("Started PostgreSQL container\n")
	}

	// Connect to the database
	testDB, err = gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	// Initialize the database schema
	if err := initializeTestDatabase(testDB); err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	// Run tests
	code := m.Run()

	terminateContainer(ctx)
	os.Exit(code)
}

func terminateContainer(ctx context.Context) {
	if pgContainer != nil {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
		}
	}
}

// initializeTestDatabase runs the schema initialization SQL
func initializeTestDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	schemaPath := filepath.Join("..", "..", "db", "init_pg_db.sql")
	schemaSQL, err := os.ReadFile(schemaPath) //nolint:gosec,G304
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := sqlDB.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// initPGTestDB wraps each test in a transaction for isolation
func initPGTestDB(t *testing.T) Store {
	tx := testDB.Begin()
	require.NotNil(t, tx)
	require.NoError(t, tx.Error)

	t.Cleanup(func() {
		tx.Rollback()
	})

	return NewPGStore(tx)
}

var testTxTime = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func testHeader() domain.FileHeader {
	return domain.FileHeader{
		SenderID:        "FAC-001",
		ReceiverID:      "PAY-01",
		TransactionDate: testTxTime,
		RecordCount:     1,
		Disposition:     domain.DispositionProduction,
	}
}

func testFileInput(fileID string, rootType schema.RootType) CreateIngestionFileInput {
	return CreateIngestionFileInput{
		FileID:   fileID,
		RootType: rootType,
		Header:   testHeader(),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSubmissionFile(fileID, claimID string) *domain.SubmissionFile {
	return &domain.SubmissionFile{
		FileID: fileID,
		Header: testHeader(),
		Claims: []domain.SubmissionClaim{{
			ID:           claimID,
			MemberID:     "MBR-9",
			PayerID:      "PAY-01",
			ProviderID:   "PRV-7",
			Gross:        dec("120.00"),
			PatientShare: dec("20.00"),
			Net:          dec("100.00"),
			Encounters: []domain.Encounter{{
				FacilityID: "FAC-001",
				Type:       "1",
				PatientID:  "PAT-5",
				Start:      testTxTime.Add(-24 * time.Hour),
				Diagnoses: []domain.Diagnosis{
					{Type: "Principal", Code: "J45.0"},
					{Type: "Secondary", Code: "E11.9"},
				},
			}},
			Activities: []domain.Activity{
				{
					ID:        "ACT-1",
					Start:     testTxTime.Add(-24 * time.Hour),
					Type:      "3",
					Code:      "83036",
					Quantity:  dec("1"),
					Net:       dec("60.00"),
					Clinician: "DR-5",
					Observations: []domain.Observation{
						{Type: "LOINC", Code: "4548-4", Value: "6.1", ValueType: "%"},
					},
				},
				{
					ID:        "ACT-2",
					Start:     testTxTime.Add(-24 * time.Hour),
					Type:      "3",
					Code:      "82947",
					Quantity:  dec("1"),
					Net:       dec("40.00"),
					Clinician: "DR-5",
				},
			},
		}},
	}
}

func testRemittanceFile(fileID, claimID string, txAt time.Time) *domain.RemittanceFile {
	header := testHeader()
	header.SenderID = "PAY-01"
	header.ReceiverID = "FAC-001"
	header.TransactionDate = txAt
	return &domain.RemittanceFile{
		FileID: fileID,
		Header: header,
		Claims: []domain.RemittanceClaim{{
			ID:               claimID,
			IDPayer:          "PAYREF-1",
			ProviderID:       "PRV-7",
			PaymentReference: "PMT-100",
			Activities: []domain.RemittanceActivity{
				{
					ID:            "ACT-1",
					Start:         testTxTime.Add(-24 * time.Hour),
					Code:          "83036",
					Quantity:      dec("1"),
					Net:           dec("60.00"),
					PaymentAmount: dec("60.00"),
				},
				{
					ID:            "ACT-2",
					Start:         testTxTime.Add(-24 * time.Hour),
					Code:          "82947",
					Quantity:      dec("1"),
					Net:           dec("40.00"),
					PaymentAmount: dec("0.00"),
					DenialCode:    "MNEC-004",
				},
			},
		}},
	}
}

func createTestFile(t *testing.T, st Store, fileID string, rootType schema.RootType) *schema.IngestionFile {
	t.Helper()
	file, created, err := st.CreateIngestionFile(context.Background(), testFileInput(fileID, rootType))
	require.NoError(t, err)
	require.True(t, created)
	return file
}

func TestGetOrCreateClaimKey(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	key, err := st.GetOrCreateClaimKey(ctx, "CLM-1")
	require.NoError(t, err)
	require.NotZero(t, key.ID)

	again, err := st.GetOrCreateClaimKey(ctx, "CLM-1")
	require.NoError(t, err)
	assert.Equal(t, key.ID, again.ID)

	found, err := st.GetClaimKeyByClaimID(ctx, "CLM-1")
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)

	_, err = st.GetClaimKeyByClaimID(ctx, "CLM-404")
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)
}

func TestCreateIngestionFileIdempotent(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	file, created, err := st.CreateIngestionFile(ctx, testFileInput("doc-1", schema.RootTypeSubmission))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, schema.FileStatusPending, file.Status)

	existing, created, err := st.CreateIngestionFile(ctx, testFileInput("doc-1", schema.RootTypeSubmission))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, file.ID, existing.ID)

	_, err = st.GetIngestionFileByFileID(ctx, "doc-404")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestFileOutcomeLifecycle(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)

	processed, err := st.IsDocumentProcessed(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, processed)

	class := domain.FailureVerification
	detail := "check record_count_match: declared 2, found 1"
	err = st.UpdateFileOutcome(ctx, file.ID, FileOutcome{
		Status:              schema.FileStatusFailed,
		FailureClass:        &class,
		FailureDetail:       &detail,
		ParsedClaims:        1,
		ParsedActivities:    2,
		PersistedClaims:     1,
		PersistedActivities: 2,
		VerificationDetail:  []byte(`{"passed":false}`),
	})
	require.NoError(t, err)

	got, err := st.GetIngestionFileByFileID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, schema.FileStatusFailed, got.Status)
	require.NotNil(t, got.FailureClass)
	assert.Equal(t, string(domain.FailureVerification), *got.FailureClass)
	assert.Equal(t, 1, got.ParsedClaims)
	assert.Equal(t, 2, got.PersistedActivities)

	failed, err := st.ListFailedDocuments(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	// Requeue flips FAILED back to REQUEUED
	require.NoError(t, st.MarkFileRequeued(ctx, "doc-1"))
	requeued, err := st.ListRequeuedDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, "doc-1", requeued[0].FileID)

	// Only FAILED documents can be requeued
	err = st.MarkFileRequeued(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestMarkFileAcked(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.MarkFileAcked(ctx, file.ID, at))

	got, err := st.GetIngestionFileByFileID(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got.AckedAt)
	assert.True(t, got.AckedAt.Equal(at))

	assert.ErrorIs(t, st.MarkFileAcked(ctx, file.ID+999, at), domain.ErrDocumentNotFound)
}

func TestPersistSubmission(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)

	result, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claims)
	assert.Equal(t, 1, result.Encounters)
	assert.Equal(t, 2, result.Diagnoses)
	assert.Equal(t, 2, result.Activities)
	assert.Equal(t, 1, result.Observations)
	assert.Zero(t, result.Replayed)
	assert.Empty(t, result.Failures)
	require.Len(t, result.AffectedClaims, 1)

	keyID := result.AffectedClaims[0]

	billed, err := st.GetClaimBilled(ctx, keyID)
	require.NoError(t, err)
	assert.True(t, billed.Equal(dec("100.00")))

	events, err := st.GetLedgerEvents(ctx, keyID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventKindSubmission, events[0].Kind)

	counts, err := st.GetActivityCountsForClaims(ctx, []int64{keyID})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[keyID])
}

func TestPersistSubmissionReplay(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)

	_, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)

	// Redelivery of the identical document is benign
	result, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claims)
	assert.Equal(t, 1, result.Replayed)
	assert.Empty(t, result.Failures)
	assert.Empty(t, result.AffectedClaims)

	key, err := st.GetClaimKeyByClaimID(ctx, "CLM-1")
	require.NoError(t, err)
	events, err := st.GetLedgerEvents(ctx, key.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	n, err := st.CountEventsByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	claims, err := st.CountDistinctClaimsByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, claims)
}

func TestPersistSubmissionConflictingDuplicate(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)

	_, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)

	// Same claim id, different net amount: not a replay
	conflicting := testSubmissionFile("doc-2", "CLM-1")
	conflicting.Claims[0].Net = dec("999.00")

	file2 := createTestFile(t, st, "doc-2", schema.RootTypeSubmission)
	result, err := st.PersistSubmission(ctx, file2.ID, conflicting)
	require.NoError(t, err)
	assert.Zero(t, result.Claims)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "CLM-1", result.Failures[0].ClaimID)
	assert.ErrorIs(t, result.Failures[0].Err, domain.ErrUnexpectedDuplicate)
}

func TestPersistRemittance(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	subFile := createTestFile(t, st, "doc-sub", schema.RootTypeSubmission)
	_, err := st.PersistSubmission(ctx, subFile.ID, testSubmissionFile("doc-sub", "CLM-1"))
	require.NoError(t, err)

	remitAt := testTxTime.Add(72 * time.Hour)
	remFile := createTestFile(t, st, "doc-rem", schema.RootTypeRemittance)
	result, err := st.PersistRemittance(ctx, remFile.ID, testRemittanceFile("doc-rem", "CLM-1", remitAt))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claims)
	assert.Equal(t, 2, result.PaymentLines)
	require.Len(t, result.AffectedClaims, 1)

	keyID := result.AffectedClaims[0]
	events, err := st.GetLedgerEvents(ctx, keyID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventKindSubmission, events[0].Kind)

	remit := events[1]
	assert.Equal(t, domain.EventKindRemittance, remit.Kind)
	assert.True(t, remit.PaidAmount.Equal(dec("60.00")), "paid %s", remit.PaidAmount)
	assert.True(t, remit.HasPositivePayment)
	assert.False(t, remit.DeniedOnly)
	assert.Equal(t, "PAY-01", remit.RemitPayerCode)

	paid, err := st.SumLedgerPayments(ctx, keyID)
	require.NoError(t, err)
	assert.True(t, paid.Equal(dec("60.00")))

	lines, err := st.GetRemittanceLinesForClaims(ctx, []int64{keyID})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	// Clinician falls back to the canonical activity when the line omits it
	assert.Equal(t, "DR-5", lines[0].ClinicianCode)
	require.NotNil(t, lines[1].DenialCode)
	assert.Equal(t, "MNEC-004", *lines[1].DenialCode)

	// Replay of the same remittance adds nothing
	replay, err := st.PersistRemittance(ctx, remFile.ID, testRemittanceFile("doc-rem", "CLM-1", remitAt))
	require.NoError(t, err)
	assert.Equal(t, 1, replay.Replayed)
	events, err = st.GetLedgerEvents(ctx, keyID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestPersistRemittanceDeniedOnly(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	subFile := createTestFile(t, st, "doc-sub", schema.RootTypeSubmission)
	_, err := st.PersistSubmission(ctx, subFile.ID, testSubmissionFile("doc-sub", "CLM-1"))
	require.NoError(t, err)

	remit := testRemittanceFile("doc-rem", "CLM-1", testTxTime.Add(72*time.Hour))
	remit.Claims[0].Activities[0].PaymentAmount = dec("0.00")
	remit.Claims[0].Activities[0].DenialCode = "MNEC-005"

	remFile := createTestFile(t, st, "doc-rem", schema.RootTypeRemittance)
	result, err := st.PersistRemittance(ctx, remFile.ID, remit)
	require.NoError(t, err)

	events, err := st.GetLedgerEvents(ctx, result.AffectedClaims[0])
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[1].HasPositivePayment)
	assert.True(t, events[1].DeniedOnly)
}

func TestPersistSubmissionResubmissionCycle(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	subFile := createTestFile(t, st, "doc-sub", schema.RootTypeSubmission)
	_, err := st.PersistSubmission(ctx, subFile.ID, testSubmissionFile("doc-sub", "CLM-1"))
	require.NoError(t, err)

	resub := testSubmissionFile("doc-resub", "CLM-1")
	resub.Header.TransactionDate = testTxTime.Add(96 * time.Hour)
	resub.Claims[0].Resubmission = &domain.Resubmission{
		Type:    "correction",
		Comment: "corrected diagnosis code",
	}

	resubFile := createTestFile(t, st, "doc-resub", schema.RootTypeSubmission)
	result, err := st.PersistSubmission(ctx, resubFile.ID, resub)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claims)
	assert.Zero(t, result.Replayed)
	assert.Empty(t, result.Failures)

	key, err := st.GetClaimKeyByClaimID(ctx, "CLM-1")
	require.NoError(t, err)
	events, err := st.GetLedgerEvents(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventKindSubmission, events[0].Kind)
	assert.Equal(t, domain.EventKindResubmission, events[1].Kind)
}

func TestReplaceStatusTimeline(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	key, err := st.GetOrCreateClaimKey(ctx, "CLM-1")
	require.NoError(t, err)

	entries := []schema.ClaimStatusTimeline{
		{ClaimKeyID: key.ID, Status: domain.ClaimStatusSubmitted, StatusTime: testTxTime},
		{ClaimKeyID: key.ID, Status: domain.ClaimStatusPaid, StatusTime: testTxTime.Add(72 * time.Hour)},
	}
	require.NoError(t, st.ReplaceStatusTimeline(ctx, key.ID, entries))

	got, err := st.GetStatusTimeline(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ClaimStatusSubmitted, got[0].Status)
	assert.Equal(t, domain.ClaimStatusPaid, got[1].Status)

	// Replacement is wholesale, not additive
	require.NoError(t, st.ReplaceStatusTimeline(ctx, key.ID, entries[:1]))
	got, err = st.GetStatusTimeline(ctx, key.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetOrCreateRefCodeAndBackfill(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	payer, err := st.GetOrCreateRefCode(ctx, schema.RefKindPayer, "PAY-01")
	require.NoError(t, err)
	require.NotZero(t, payer.ID)

	again, err := st.GetOrCreateRefCode(ctx, schema.RefKindPayer, "PAY-01")
	require.NoError(t, err)
	assert.Equal(t, payer.ID, again.ID)

	// Same code under another kind is a distinct row
	other, err := st.GetOrCreateRefCode(ctx, schema.RefKindProvider, "PAY-01")
	require.NoError(t, err)
	assert.NotEqual(t, payer.ID, other.ID)

	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)
	result, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)
	keyID := result.AffectedClaims[0]

	provider, err := st.GetOrCreateRefCode(ctx, schema.RefKindProvider, "PRV-7")
	require.NoError(t, err)
	require.NoError(t, st.BackfillClaimRefs(ctx, keyID, &payer.ID, &provider.ID))

	// A second backfill never overwrites resolved ids
	require.NoError(t, st.BackfillClaimRefs(ctx, keyID, &other.ID, nil))

	var claim schema.Claim
	require.NoError(t, testDBForAssertions(t, st).Where("claim_key_id = ?", keyID).First(&claim).Error)
	require.NotNil(t, claim.PayerRefID)
	assert.Equal(t, payer.ID, *claim.PayerRefID)
	require.NotNil(t, claim.ProviderRefID)
	assert.Equal(t, provider.ID, *claim.ProviderRefID)
}

// testDBForAssertions exposes the store's transaction for raw row checks
func testDBForAssertions(t *testing.T, st Store) *gorm.DB {
	t.Helper()
	pg, ok := st.(*pgStore)
	require.True(t, ok)
	return pg.db
}

func TestGetClaimHeadersForMonths(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)
	_, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)

	rows, err := st.GetClaimHeadersForMonths(ctx, []string{"2026-05"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CLM-1", rows[0].ClaimID)
	assert.Equal(t, "FAC-001", rows[0].FacilityCode)
	require.NotNil(t, rows[0].PayerCode)
	assert.Equal(t, "PAY-01", *rows[0].PayerCode)
	assert.True(t, rows[0].Net.Equal(dec("100.00")))

	// Months without submissions return nothing
	rows, err = st.GetClaimHeadersForMonths(ctx, []string{"2026-07"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReplaceAggregatesByMonthPartition(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	key, err := st.GetOrCreateClaimKey(ctx, "CLM-1")
	require.NoError(t, err)

	row := schema.ClaimFinancialSummary{
		ClaimKeyID:    key.ID,
		ClaimID:       "CLM-1",
		MonthYear:     "2026-05",
		PayerKey:      "payer:PAY-01",
		Billed:        dec("100.00"),
		TotalPaid:     dec("60.00"),
		TotalDenied:   dec("40.00"),
		Outstanding:   dec("0.00"),
		PaymentStatus: domain.ClaimStatusPartiallyPaid,
		FirstEventAt:  testTxTime,
		LastEventAt:   testTxTime,
		RefreshID:     "01TESTREFRESH0000000000001",
	}
	require.NoError(t, st.ReplaceClaimFinancialSummaries(ctx, []string{"2026-05"}, []schema.ClaimFinancialSummary{row}))

	got, err := st.GetClaimFinancialSummary(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPaid.Equal(dec("60.00")))

	// A later refresh of the same partition fully replaces it
	row.TotalPaid = dec("100.00")
	row.TotalDenied = dec("0.00")
	row.PaymentStatus = domain.ClaimStatusPaid
	row.RefreshID = "01TESTREFRESH0000000000002"
	require.NoError(t, st.ReplaceClaimFinancialSummaries(ctx, []string{"2026-05"}, []schema.ClaimFinancialSummary{row}))

	got, err = st.GetClaimFinancialSummary(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPaid.Equal(dec("100.00")))
	assert.Equal(t, "01TESTREFRESH0000000000002", got.RefreshID)

	n, err := st.CountClaimFinancialSummaries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	dups, err := st.CountAggregateDuplicates(ctx, "claim_financial_summary")
	require.NoError(t, err)
	assert.Zero(t, dups)

	sampled, err := st.SampleAggregatedClaimKeys(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{key.ID}, sampled)

	_, err = st.GetClaimFinancialSummary(ctx, key.ID+999)
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)
}

func TestRefreshRunLifecycle(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	run := &schema.RefreshRun{
		ID:        "01TESTREFRESH0000000000001",
		Target:    "claim_financial_summary",
		Partition: "2026-03..2026-05",
		Status:    schema.RefreshStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateRefreshRun(ctx, run))

	require.NoError(t, st.FinishRefreshRun(ctx, run.ID, schema.RefreshStatusSucceeded, 12, nil))

	runs, err := st.ListRefreshRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, schema.RefreshStatusSucceeded, runs[0].Status)
	assert.Equal(t, 12, runs[0].RowCount)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestFetchCursor(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	// Unset cursors read as empty, not as an error
	val, err := st.GetFetchCursor(ctx, "FAC-001")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, st.SetFetchCursor(ctx, "FAC-001", "2026-05-10T09:30:00Z"))
	val, err = st.GetFetchCursor(ctx, "FAC-001")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-10T09:30:00Z", val)

	// Cursors move forward by overwrite
	require.NoError(t, st.SetFetchCursor(ctx, "FAC-001", "2026-05-11T00:00:00Z"))
	val, err = st.GetFetchCursor(ctx, "FAC-001")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-11T00:00:00Z", val)
}

func TestAcquireRefreshLock(t *testing.T) {
	// The lock pins a pooled connection, so it runs against the shared
	// database rather than the per-test transaction
	st := NewPGStore(testDB)
	ctx := context.Background()

	release, ok, err := st.AcquireRefreshLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A second session cannot take the lock while the first holds it
	_, ok, err = st.AcquireRefreshLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()

	release2, ok, err := st.AcquireRefreshLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestCountOrphanDetailRows(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	file := createTestFile(t, st, "doc-1", schema.RootTypeSubmission)
	_, err := st.PersistSubmission(ctx, file.ID, testSubmissionFile("doc-1", "CLM-1"))
	require.NoError(t, err)

	orphans, err := st.CountOrphanDetailRows(ctx)
	require.NoError(t, err)
	assert.Zero(t, orphans.Total())

	dups, err := st.CountDuplicateSubmissions(ctx)
	require.NoError(t, err)
	assert.Zero(t, dups)
}
