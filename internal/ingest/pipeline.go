// Package ingest runs the document pipeline: dequeue, parse, persist,
// reproject timelines, verify, acknowledge, archive. Failure isolation is
// per document; one bad file never stalls the queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/ack"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/intake"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/parser"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/projector"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/refdata"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/verify"
)

// Config holds pipeline worker settings
type Config struct {
	// Workers is the number of concurrent document processors
	Workers int
	// DocumentBudget caps the wall-clock time spent on a single document
	DocumentBudget time.Duration
	// ArchiveDir is where documents are moved after processing
	ArchiveDir string
}

// Pipeline consumes the intake queue with a pool of workers
type Pipeline struct {
	config   Config
	store    store.Store
	queue    *intake.Queue
	verifier *verify.Verifier
	acker    ack.Acknowledger
	refs     *refdata.Resolver

	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewPipeline creates a pipeline reading from the given queue
func NewPipeline(config Config, st store.Store, q *intake.Queue, acker ack.Acknowledger) *Pipeline {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.DocumentBudget <= 0 {
		config.DocumentBudget = 2 * time.Minute
	}
	if acker == nil {
		acker = ack.NewNoopAcker()
	}
	return &Pipeline{
		config:    config,
		store:     st,
		queue:     q,
		verifier:  verify.NewVerifier(st),
		acker:     acker,
		refs:      refdata.NewResolver(st),
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs the worker pool. Blocks until the context is canceled or Stop
// is called.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer func() {
		p.running.Store(false)
		close(p.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting ingestion pipeline",
		zap.Int("workers", p.config.Workers),
		zap.Duration("document_budget", p.config.DocumentBudget))

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := pond.NewPool(p.config.Workers, pond.WithContext(workCtx))
	for i := 0; i < p.config.Workers; i++ {
		pool.Go(func() { p.workerLoop(workCtx) })
	}

	select {
	case <-ctx.Done():
		logger.InfoCtx(ctx, "Pipeline stopping due to context cancellation")
	case <-p.stopChan:
		logger.InfoCtx(ctx, "Pipeline stop requested")
	}

	cancel()
	pool.StopAndWait()
	return nil
}

// Stop gracefully stops the pipeline, waiting for in-flight documents
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}

	close(p.stopChan)

	select {
	case <-p.stoppedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for pipeline to stop: %w", ctx.Err())
	}
}

func (p *Pipeline) workerLoop(ctx context.Context) {
	for {
		doc, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrQueueClosed) {
				logger.ErrorCtx(ctx, err, zap.String("stage", "dequeue"))
			}
			return
		}
		p.process(ctx, doc)
	}
}

// process runs one document under its time budget and records the outcome
// metrics. Never returns an error: failures are absorbed into the
// document's own record.
func (p *Pipeline) process(ctx context.Context, doc intake.Document) {
	ctx, cancel := context.WithTimeout(ctx, p.config.DocumentBudget)
	defer cancel()

	start := time.Now()
	rootType, status := p.processDocument(ctx, doc)
	metrics.DocumentProcessingDuration.Observe(time.Since(start).Seconds())
	metrics.DocumentsProcessed.WithLabelValues(rootType, status).Inc()
}

func (p *Pipeline) processDocument(ctx context.Context, doc intake.Document) (rootLabel, statusLabel string) {
	result, err := parser.Parse(doc.FileID, doc.Payload)
	if err != nil {
		p.recordUnparseable(ctx, doc, err)
		p.archive(ctx, doc)
		return "unknown", "failed"
	}

	rootType := schema.RootTypeSubmission
	if result.Remittance != nil {
		rootType = schema.RootTypeRemittance
	}
	rootLabel = string(rootType)
	header := result.Header()

	file, created, err := p.store.CreateIngestionFile(ctx, store.CreateIngestionFileInput{
		FileID:   doc.FileID,
		RootType: rootType,
		Header:   header,
	})
	if err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("file_id", doc.FileID),
			zap.String("stage", "record"))
		return rootLabel, "failed"
	}
	if !created && file.Status == schema.FileStatusProcessed {
		logger.DebugCtx(ctx, "Document already processed, skipping",
			zap.String("file_id", doc.FileID))
		metrics.DuplicateReplays.Inc()
		p.archive(ctx, doc)
		return rootLabel, "replayed"
	}

	var persisted *store.PersistResult
	if result.Submission != nil {
		persisted, err = p.store.PersistSubmission(ctx, file.ID, result.Submission)
	} else {
		persisted, err = p.store.PersistRemittance(ctx, file.ID, result.Remittance)
	}
	if err != nil {
		p.finishFailed(ctx, file, result, err)
		p.archive(ctx, doc)
		return rootLabel, "failed"
	}

	recordAppendMetrics(result, persisted)

	if result.Submission != nil {
		p.backfillRefs(ctx, result.Submission)
	}

	if err := p.reprojectTimelines(ctx, persisted.AffectedClaims); err != nil {
		p.finishFailed(ctx, file, result, err)
		p.archive(ctx, doc)
		return rootLabel, "failed"
	}

	report, err := p.verifier.VerifyDocument(ctx, file, verify.DocumentStats{
		DeclaredRecords:  header.RecordCount,
		ParsedClaims:     result.ClaimCount(),
		SkippedClaims:    len(result.Problems),
		ParsedActivities: result.ActivityCount(),
		Persisted:        persisted,
	})
	if err != nil {
		p.finishFailed(ctx, file, result, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err))
		p.archive(ctx, doc)
		return rootLabel, "failed"
	}

	verifiedAt := time.Now().UTC()
	outcome := store.FileOutcome{
		ParsedClaims:        result.ClaimCount(),
		ParsedActivities:    result.ActivityCount(),
		PersistedClaims:     persisted.Claims,
		PersistedActivities: persistedActivities(result, persisted),
		VerificationDetail:  report.JSON(),
		VerifiedAt:          &verifiedAt,
	}

	if report.Passed() && len(persisted.Failures) == 0 {
		outcome.Status = schema.FileStatusProcessed
		if err := p.store.UpdateFileOutcome(ctx, file.ID, outcome); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("file_id", doc.FileID), zap.String("stage", "outcome"))
			return rootLabel, "failed"
		}
		p.acknowledge(ctx, file, result)
		p.archive(ctx, doc)
		logger.InfoCtx(ctx, "Document processed",
			zap.String("file_id", doc.FileID),
			zap.String("root_type", rootLabel),
			zap.Int("claims", persisted.Claims),
			zap.Int("replayed", persisted.Replayed),
			zap.Int("skipped", len(result.Problems)))
		return rootLabel, "processed"
	}

	outcome.Status = schema.FileStatusFailed
	class, detail := classifyOutcome(persisted, report)
	outcome.FailureClass = &class
	outcome.FailureDetail = &detail
	if err := p.store.UpdateFileOutcome(context.WithoutCancel(ctx), file.ID, outcome); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("file_id", doc.FileID), zap.String("stage", "outcome"))
	}
	p.archive(ctx, doc)
	logger.WarnCtx(ctx, "Document failed",
		zap.String("file_id", doc.FileID),
		zap.String("failure_class", string(class)),
		zap.String("detail", detail))
	return rootLabel, "failed"
}

// recordUnparseable keeps a structurally invalid document operator-visible
func (p *Pipeline) recordUnparseable(ctx context.Context, doc intake.Document, parseErr error) {
	ctx = context.WithoutCancel(ctx)
	file, _, err := p.store.CreateIngestionFile(ctx, store.CreateIngestionFileInput{
		FileID:   doc.FileID,
		RootType: schema.RootType("unknown"),
	})
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("file_id", doc.FileID), zap.String("stage", "record"))
		return
	}

	class := domain.ClassifyFailure(parseErr)
	detail := parseErr.Error()
	if err := p.store.UpdateFileOutcome(ctx, file.ID, store.FileOutcome{
		Status:        schema.FileStatusFailed,
		FailureClass:  &class,
		FailureDetail: &detail,
	}); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("file_id", doc.FileID), zap.String("stage", "outcome"))
	}
	logger.WarnCtx(ctx, "Document rejected by parser",
		zap.String("file_id", doc.FileID),
		zap.String("detail", detail))
}

// finishFailed records a mid-pipeline failure on the document. The write
// runs detached from the document budget: a budget overrun is itself a
// failure that must land on the row, or the document stays PENDING after
// it was already archived.
func (p *Pipeline) finishFailed(ctx context.Context, file *schema.IngestionFile, result *parser.Result, cause error) {
	ctx = context.WithoutCancel(ctx)
	class := domain.ClassifyFailure(cause)
	detail := cause.Error()
	if err := p.store.UpdateFileOutcome(ctx, file.ID, store.FileOutcome{
		Status:           schema.FileStatusFailed,
		FailureClass:     &class,
		FailureDetail:    &detail,
		ParsedClaims:     result.ClaimCount(),
		ParsedActivities: result.ActivityCount(),
	}); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("file_id", file.FileID), zap.String("stage", "outcome"))
	}
	logger.WarnCtx(ctx, "Document failed",
		zap.String("file_id", file.FileID),
		zap.String("failure_class", string(class)),
		zap.String("detail", detail))
}

// classifyOutcome picks the operator-visible failure class: claim-level
// persistence failures outrank verification disagreements
func classifyOutcome(persisted *store.PersistResult, report *verify.Report) (domain.FailureClass, string) {
	if len(persisted.Failures) > 0 {
		first := persisted.Failures[0]
		return domain.ClassifyFailure(first.Err),
			fmt.Sprintf("%d claim(s) failed, first: claim %s: %v", len(persisted.Failures), first.ClaimID, first.Err)
	}
	for _, check := range report.Checks {
		if !check.Passed {
			return domain.FailureVerification, fmt.Sprintf("check %s: %s", check.Name, check.Detail)
		}
	}
	return domain.FailureVerification, "verification failed"
}

func persistedActivities(result *parser.Result, persisted *store.PersistResult) int {
	if result.Remittance != nil {
		return persisted.PaymentLines
	}
	return persisted.Activities
}

// recordAppendMetrics counts the ledger events this document appended.
// The submission/resubmission split is derived from the parsed claims and
// clamped so claim-level failures cannot drive a counter negative.
func recordAppendMetrics(result *parser.Result, persisted *store.PersistResult) {
	appended := persisted.Claims - persisted.Replayed
	if appended < 0 {
		appended = 0
	}
	metrics.DuplicateReplays.Add(float64(persisted.Replayed))

	if result.Remittance != nil {
		metrics.EventsAppended.WithLabelValues(domain.EventKindRemittance.String()).Add(float64(appended))
		return
	}
	resubs := 0
	for i := range result.Submission.Claims {
		if result.Submission.Claims[i].Resubmission != nil {
			resubs++
		}
	}
	if resubs > appended {
		resubs = appended
	}
	metrics.EventsAppended.WithLabelValues(domain.EventKindResubmission.String()).Add(float64(resubs))
	metrics.EventsAppended.WithLabelValues(domain.EventKindSubmission.String()).Add(float64(appended - resubs))
}

// backfillRefs enriches claim headers with reference ids. Best effort: a
// reference lookup failure never fails the document.
func (p *Pipeline) backfillRefs(ctx context.Context, file *domain.SubmissionFile) {
	for i := range file.Claims {
		claim := &file.Claims[i]

		payerRef, err := p.refs.Resolve(ctx, schema.RefKindPayer, claim.PayerID)
		if err != nil {
			logger.WarnCtx(ctx, "Payer reference lookup failed",
				zap.String("claim_id", claim.ID), zap.Error(err))
			continue
		}
		providerRef, err := p.refs.Resolve(ctx, schema.RefKindProvider, claim.ProviderID)
		if err != nil {
			logger.WarnCtx(ctx, "Provider reference lookup failed",
				zap.String("claim_id", claim.ID), zap.Error(err))
			continue
		}
		if payerRef == nil && providerRef == nil {
			continue
		}

		key, err := p.store.GetClaimKeyByClaimID(ctx, claim.ID)
		if err != nil {
			// A claim whose persist transaction rolled back has no key;
			// enrichment skips it along with transient lookup errors.
			if !errors.Is(err, domain.ErrClaimNotFound) {
				logger.WarnCtx(ctx, "Claim key lookup failed",
					zap.String("claim_id", claim.ID), zap.Error(err))
			}
			continue
		}
		if err := p.store.BackfillClaimRefs(ctx, key.ID, payerRef, providerRef); err != nil {
			logger.WarnCtx(ctx, "Reference backfill failed",
				zap.String("claim_id", claim.ID), zap.Error(err))
		}
	}
}

// reprojectTimelines regenerates the derived status timeline for every
// claim the document touched
func (p *Pipeline) reprojectTimelines(ctx context.Context, claimKeyIDs []int64) error {
	for _, claimKeyID := range claimKeyIDs {
		events, err := p.store.GetLedgerEvents(ctx, claimKeyID)
		if err != nil {
			return fmt.Errorf("loading ledger for claim %d: %w", claimKeyID, err)
		}
		billed, err := p.store.GetClaimBilled(ctx, claimKeyID)
		if err != nil {
			return fmt.Errorf("loading billed amount for claim %d: %w", claimKeyID, err)
		}

		entries := projector.Project(events, billed)
		rows := make([]schema.ClaimStatusTimeline, 0, len(entries))
		for _, e := range entries {
			eventID := e.EventID
			rows = append(rows, schema.ClaimStatusTimeline{
				ClaimKeyID:   claimKeyID,
				Status:       e.Status,
				StatusTime:   e.StatusTime,
				ClaimEventID: &eventID,
			})
		}
		if err := p.store.ReplaceStatusTimeline(ctx, claimKeyID, rows); err != nil {
			return fmt.Errorf("replacing timeline for claim %d: %w", claimKeyID, err)
		}
	}
	return nil
}

// acknowledge publishes the best-effort ack and stamps the document.
// Acknowledgment failures are logged, never propagated: the document is
// already processed.
func (p *Pipeline) acknowledge(ctx context.Context, file *schema.IngestionFile, result *parser.Result) {
	docAck := &domain.DocumentAck{
		FileID:     file.FileID,
		SenderID:   result.Header().SenderID,
		FacilityID: facilityOf(result),
		Verified:   true,
		AckedAt:    time.Now().UTC(),
	}
	if err := p.acker.Ack(ctx, docAck); err != nil {
		logger.WarnCtx(ctx, "Acknowledgment failed",
			zap.String("file_id", file.FileID), zap.Error(err))
		return
	}
	if err := p.store.MarkFileAcked(ctx, file.ID, docAck.AckedAt); err != nil {
		logger.WarnCtx(ctx, "Failed to stamp acknowledgment",
			zap.String("file_id", file.FileID), zap.Error(err))
	}
}

func facilityOf(result *parser.Result) string {
	if result.Submission == nil {
		return ""
	}
	for i := range result.Submission.Claims {
		for j := range result.Submission.Claims[i].Encounters {
			if f := result.Submission.Claims[i].Encounters[j].FacilityID; f != "" {
				return f
			}
		}
	}
	return ""
}

// archive moves the source file out of the inbox so sweeps and polls stop
// seeing it. Requeued documents are read from the archive already, so a
// same-path move is a no-op.
func (p *Pipeline) archive(ctx context.Context, doc intake.Document) {
	if doc.Path == "" || p.config.ArchiveDir == "" {
		return
	}
	dest := filepath.Join(p.config.ArchiveDir, doc.FileID+".xml")
	if doc.Path == dest {
		return
	}
	if err := os.MkdirAll(p.config.ArchiveDir, 0o755); err != nil {
		logger.WarnCtx(ctx, "Failed to create archive directory",
			zap.String("dir", p.config.ArchiveDir), zap.Error(err))
		return
	}
	if err := os.Rename(doc.Path, dest); err != nil {
		logger.WarnCtx(ctx, "Failed to archive document",
			zap.String("path", doc.Path), zap.Error(err))
	}
}
