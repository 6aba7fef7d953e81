package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Refresher triggers an immediate aggregate refresh
type Refresher interface {
	Trigger() error
}

// Handler defines the interface for REST API handlers
type Handler interface {
	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)

	// ListFailedDocuments lists documents that failed processing
	// GET /api/v1/documents/failed?limit=<limit>&offset=<offset>
	ListFailedDocuments(c *gin.Context)

	// GetDocument retrieves one document record by its file id
	// GET /api/v1/documents/:file_id
	GetDocument(c *gin.Context)

	// RequeueDocument sends a failed document back through the pipeline
	// POST /api/v1/documents/:file_id/requeue
	RequeueDocument(c *gin.Context)

	// TriggerRefresh requests an immediate aggregate refresh
	// POST /api/v1/refresh
	TriggerRefresh(c *gin.Context)

	// ListRefreshRuns lists recent aggregate refresh runs
	// GET /api/v1/refresh/runs?limit=<limit>
	ListRefreshRuns(c *gin.Context)

	// GetClaimTimeline returns a claim's projected status timeline
	// GET /api/v1/claims/:claim_id/timeline
	GetClaimTimeline(c *gin.Context)

	// GetClaimSummary returns a claim's published financial summary
	// GET /api/v1/claims/:claim_id/summary
	GetClaimSummary(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store     store.Store
	refresher Refresher
}

// NewHandler creates a new REST API handler
func NewHandler(st store.Store, refresher Refresher) Handler {
	return &handler{
		store:     st,
		refresher: refresher,
	}
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "claims-admin-api",
	})
}

// ListFailedDocuments lists failed documents, most recent first
func (h *handler) ListFailedDocuments(c *gin.Context) {
	limit, offset, err := parseListParams(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	files, err := h.store.ListFailedDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list documents")
		return
	}

	out := make([]DocumentDTO, 0, len(files))
	for _, f := range files {
		out = append(out, toDocumentDTO(f))
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": out,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetDocument retrieves one document record
func (h *handler) GetDocument(c *gin.Context) {
	fileID := c.Param("file_id")
	if fileID == "" {
		respondBadRequest(c, "File id is required")
		return
	}

	file, err := h.store.GetIngestionFileByFileID(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			respondNotFound(c, "Document not found", fileID)
			return
		}
		respondInternalError(c, err, "Failed to load document", zap.String("file_id", fileID))
		return
	}

	c.JSON(http.StatusOK, toDocumentDTO(file))
}

// RequeueDocument flips a failed document back to REQUEUED
func (h *handler) RequeueDocument(c *gin.Context) {
	fileID := c.Param("file_id")
	if fileID == "" {
		respondBadRequest(c, "File id is required")
		return
	}

	err := h.store.MarkFileRequeued(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			respondNotFound(c, "No failed document with that id", fileID)
			return
		}
		respondInternalError(c, err, "Failed to requeue document", zap.String("file_id", fileID))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"file_id": fileID,
		"status":  "REQUEUED",
	})
}

// TriggerRefresh requests an immediate aggregate refresh. Returns 409 when
// one is already in flight.
func (h *handler) TriggerRefresh(c *gin.Context) {
	if err := h.refresher.Trigger(); err != nil {
		if errors.Is(err, domain.ErrRefreshInFlight) {
			respondConflict(c, "A refresh is already in flight")
			return
		}
		respondInternalError(c, err, "Failed to trigger refresh")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
}

// ListRefreshRuns lists recent refresh runs, newest first
func (h *handler) ListRefreshRuns(c *gin.Context) {
	limit, _, err := parseListParams(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	runs, err := h.store.ListRefreshRuns(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list refresh runs")
		return
	}

	out := make([]RefreshRunDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRefreshRunDTO(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// GetClaimTimeline returns a claim's projected status timeline
func (h *handler) GetClaimTimeline(c *gin.Context) {
	claimID := c.Param("claim_id")
	if claimID == "" {
		respondBadRequest(c, "Claim id is required")
		return
	}

	key, err := h.store.GetClaimKeyByClaimID(c.Request.Context(), claimID)
	if err != nil {
		if errors.Is(err, domain.ErrClaimNotFound) {
			respondNotFound(c, "Claim not found", claimID)
			return
		}
		respondInternalError(c, err, "Failed to resolve claim", zap.String("claim_id", claimID))
		return
	}

	entries, err := h.store.GetStatusTimeline(c.Request.Context(), key.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to load timeline", zap.String("claim_id", claimID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claim_id": claimID,
		"timeline": toTimelineDTO(entries),
	})
}

// GetClaimSummary returns a claim's published financial summary
func (h *handler) GetClaimSummary(c *gin.Context) {
	claimID := c.Param("claim_id")
	if claimID == "" {
		respondBadRequest(c, "Claim id is required")
		return
	}

	key, err := h.store.GetClaimKeyByClaimID(c.Request.Context(), claimID)
	if err != nil {
		if errors.Is(err, domain.ErrClaimNotFound) {
			respondNotFound(c, "Claim not found", claimID)
			return
		}
		respondInternalError(c, err, "Failed to resolve claim", zap.String("claim_id", claimID))
		return
	}

	row, err := h.store.GetClaimFinancialSummary(c.Request.Context(), key.ID)
	if err != nil {
		if errors.Is(err, domain.ErrClaimNotFound) {
			respondNotFound(c, "Claim not yet aggregated", claimID)
			return
		}
		respondInternalError(c, err, "Failed to load summary", zap.String("claim_id", claimID))
		return
	}

	c.JSON(http.StatusOK, toClaimSummaryDTO(row))
}

func parseListParams(c *gin.Context) (limit, offset int, err error) {
	limit = defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
