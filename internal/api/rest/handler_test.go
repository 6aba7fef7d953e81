package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/storetest"
)

type stubRefresher struct {
	err    error
	called int
}

func (s *stubRefresher) Trigger() error {
	s.called++
	return s.err
}

// newTestRouter wires the handler onto a bare router without the auth
// middleware. Auth is covered by the middleware package tests.
func newTestRouter(t *testing.T) (*gin.Engine, *storetest.Fake, *stubRefresher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := storetest.New()
	refresher := &stubRefresher{}
	h := NewHandler(fake, refresher)

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	router.GET("/api/v1/documents/failed", h.ListFailedDocuments)
	router.GET("/api/v1/documents/:file_id", h.GetDocument)
	router.POST("/api/v1/documents/:file_id/requeue", h.RequeueDocument)
	router.POST("/api/v1/refresh", h.TriggerRefresh)
	router.GET("/api/v1/refresh/runs", h.ListRefreshRuns)
	router.GET("/api/v1/claims/:claim_id/timeline", h.GetClaimTimeline)
	router.GET("/api/v1/claims/:claim_id/summary", h.GetClaimSummary)
	return router, fake, refresher
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func seedFailedFile(fake *storetest.Fake, fileID string) {
	class := string(domain.FailureVerification)
	detail := "check record_count_match: declared 2, found 1"
	now := time.Now().UTC()
	fake.Files[fileID] = &schema.IngestionFile{
		ID:            int64(len(fake.Files) + 1000),
		FileID:        fileID,
		RootType:      schema.RootTypeSubmission,
		SenderID:      "FAC-001",
		ReceiverID:    "PAY-01",
		Status:        schema.FileStatusFailed,
		FailureClass:  &class,
		FailureDetail: &detail,
		ReceivedAt:    now,
		UpdatedAt:     now,
	}
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListFailedDocuments(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	seedFailedFile(fake, "doc-bad-1")
	seedFailedFile(fake, "doc-bad-2")
	fake.SeedProcessedFile("doc-ok")

	w := doRequest(router, http.MethodGet, "/api/v1/documents/failed")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Documents []DocumentDTO `json:"documents"`
		Limit     int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Documents, 2)
	assert.Equal(t, defaultListLimit, body.Limit)
	for _, doc := range body.Documents {
		assert.Equal(t, "FAILED", doc.Status)
		require.NotNil(t, doc.FailureClass)
	}
}

func TestListFailedDocumentsRejectsBadLimit(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/documents/failed?limit=zero")

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errCodeBadRequest, body.Error.Code)
}

func TestGetDocument(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	seedFailedFile(fake, "doc-bad-1")

	w := doRequest(router, http.MethodGet, "/api/v1/documents/doc-bad-1")

	require.Equal(t, http.StatusOK, w.Code)
	var doc DocumentDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "doc-bad-1", doc.FileID)
	assert.Equal(t, "submission", doc.RootType)
	require.NotNil(t, doc.FailureDetail)
	assert.Contains(t, *doc.FailureDetail, "record_count_match")
}

func TestGetDocumentNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/documents/no-such-doc")

	require.Equal(t, http.StatusNotFound, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errCodeNotFound, body.Error.Code)
}

func TestRequeueDocument(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	seedFailedFile(fake, "doc-bad-1")

	w := doRequest(router, http.MethodPost, "/api/v1/documents/doc-bad-1/requeue")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, schema.FileStatusRequeued, fake.Files["doc-bad-1"].Status)
}

func TestRequeueDocumentOnlyFailedDocuments(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	fake.SeedProcessedFile("doc-ok")

	w := doRequest(router, http.MethodPost, "/api/v1/documents/doc-ok/requeue")

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, schema.FileStatusProcessed, fake.Files["doc-ok"].Status)
}

func TestTriggerRefresh(t *testing.T) {
	router, _, refresher := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/refresh")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, refresher.called)
}

func TestTriggerRefreshConflictsWhileInFlight(t *testing.T) {
	router, _, refresher := newTestRouter(t)
	refresher.err = domain.ErrRefreshInFlight

	w := doRequest(router, http.MethodPost, "/api/v1/refresh")

	require.Equal(t, http.StatusConflict, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errCodeConflict, body.Error.Code)
}

func TestListRefreshRuns(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	started := time.Now().UTC().Add(-time.Minute)
	finished := time.Now().UTC()
	fake.RefreshRuns = append(fake.RefreshRuns,
		&schema.RefreshRun{
			ID:         "01J0000000000000000000000A",
			Target:     "claim_financial_summary",
			Partition:  "2026-05..2026-08",
			Status:     schema.RefreshStatusSucceeded,
			RowCount:   12,
			StartedAt:  started,
			FinishedAt: &finished,
		},
		&schema.RefreshRun{
			ID:        "01J0000000000000000000000B",
			Target:    "payer_month_summary",
			Partition: "2026-05..2026-08",
			Status:    schema.RefreshStatusRunning,
			StartedAt: started,
		},
	)

	w := doRequest(router, http.MethodGet, "/api/v1/refresh/runs")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Runs []RefreshRunDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	// Newest first by ulid
	assert.Equal(t, "payer_month_summary", body.Runs[0].Target)
	assert.Equal(t, "RUNNING", body.Runs[0].Status)
	assert.Equal(t, 12, body.Runs[1].RowCount)
}

func TestGetClaimTimeline(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	keyID := fake.SeedClaim("CLM-1", decimal.NewFromInt(100))
	fake.Timelines[keyID] = []schema.ClaimStatusTimeline{
		{ClaimKeyID: keyID, Status: domain.ClaimStatusSubmitted, StatusTime: base},
		{ClaimKeyID: keyID, Status: domain.ClaimStatusPaid, StatusTime: base.Add(48 * time.Hour)},
	}

	w := doRequest(router, http.MethodGet, "/api/v1/claims/CLM-1/timeline")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ClaimID  string             `json:"claim_id"`
		Timeline []TimelineEntryDTO `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CLM-1", body.ClaimID)
	require.Len(t, body.Timeline, 2)
	assert.Equal(t, "SUBMITTED", body.Timeline[0].Status)
	assert.Equal(t, "PAID", body.Timeline[1].Status)
}

func TestGetClaimTimelineUnknownClaim(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/claims/CLM-404/timeline")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetClaimSummary(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	keyID := fake.SeedClaim("CLM-1", decimal.NewFromInt(100))
	fake.ClaimSummaries = append(fake.ClaimSummaries, schema.ClaimFinancialSummary{
		ClaimKeyID:    keyID,
		ClaimID:       "CLM-1",
		MonthYear:     "2026-05",
		PayerKey:      "payer:PAY-01",
		Billed:        decimal.NewFromInt(100),
		TotalPaid:     decimal.NewFromInt(60),
		TotalDenied:   decimal.NewFromInt(40),
		Outstanding:   decimal.Zero,
		PaymentStatus: domain.ClaimStatusPartiallyPaid,
		RefreshID:     "01J0000000000000000000000A",
	})

	w := doRequest(router, http.MethodGet, "/api/v1/claims/CLM-1/summary")

	require.Equal(t, http.StatusOK, w.Code)
	var body ClaimSummaryDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CLM-1", body.ClaimID)
	assert.Equal(t, "payer:PAY-01", body.PayerKey)
	assert.Equal(t, "PARTIALLY_PAID", body.PaymentStatus)
	assert.Equal(t, "60", body.TotalPaid)
	assert.Equal(t, "40", body.TotalDenied)
}

func TestGetClaimSummaryNotYetAggregated(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	fake.SeedClaim("CLM-1", decimal.NewFromInt(100))

	w := doRequest(router, http.MethodGet, "/api/v1/claims/CLM-1/summary")

	require.Equal(t, http.StatusNotFound, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error.Message, "not yet aggregated")
}
