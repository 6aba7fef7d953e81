package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	// Set defaults if not provided
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// calculateSafeBatchSize computes the batch size for bulk inserts that stays
// under PostgreSQL's extended-protocol limit of 65535 parameters per query.
// A headroom of 1000 parameters covers GORM-added timestamp fields, ON
// CONFLICT parameters, and internal bookkeeping.
func calculateSafeBatchSize(totalRecords int, fieldsPerRecord int) int {
	const maxParams = 65535
	const totalHeadroom = 1000

	availableParams := maxParams - totalHeadroom
	safeBatchSize := max(availableParams/fieldsPerRecord, 1)

	if safeBatchSize > totalRecords {
		return totalRecords
	}

	return safeBatchSize
}

// chunkInt64s splits ids into slices of at most size elements so IN lists
// never blow the parameter limit
func chunkInt64s(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// hashObservationValue derives the observation natural-key hash. Replayed
// documents with identical values map onto the same row.
func hashObservationValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}

// GetOrCreateClaimKey resolves a natural claim id to its surrogate key,
// creating it on first sight. Under concurrent creation exactly one insert
// wins and everyone else fetches the winner's row.
func (s *pgStore) GetOrCreateClaimKey(ctx context.Context, claimID string) (*schema.ClaimKey, error) {
	return getOrCreateClaimKey(s.db.WithContext(ctx), claimID)
}

func getOrCreateClaimKey(tx *gorm.DB, claimID string) (*schema.ClaimKey, error) {
	key := schema.ClaimKey{ClaimID: claimID}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "claim_id"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&key).Error; err != nil {
		return nil, fmt.Errorf("failed to create claim key: %w", err)
	}

	// If key.ID is 0, the claim was already known, so fetch it
	if key.ID == 0 {
		if err := tx.Where("claim_id = ?", claimID).First(&key).Error; err != nil {
			return nil, fmt.Errorf("failed to get existing claim key: %w", err)
		}
	}

	return &key, nil
}

// GetClaimKeyByClaimID retrieves a claim key by its natural id
func (s *pgStore) GetClaimKeyByClaimID(ctx context.Context, claimID string) (*schema.ClaimKey, error) {
	var key schema.ClaimKey
	err := s.db.WithContext(ctx).Where("claim_id = ?", claimID).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to get claim key: %w", err)
	}
	return &key, nil
}

// CreateIngestionFile records a document before processing. Returns the
// row and whether it was newly created; a pre-existing row means the file
// id was delivered before.
func (s *pgStore) CreateIngestionFile(ctx context.Context, input CreateIngestionFileInput) (*schema.IngestionFile, bool, error) {
	file := schema.IngestionFile{
		FileID:          input.FileID,
		RootType:        input.RootType,
		SenderID:        input.Header.SenderID,
		ReceiverID:      input.Header.ReceiverID,
		TransactionDate: input.Header.TransactionDate,
		RecordCount:     input.Header.RecordCount,
		Disposition:     string(input.Header.Disposition),
		Status:          schema.FileStatusPending,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&file).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create ingestion file: %w", err)
	}

	if file.ID == 0 {
		existing, err := s.GetIngestionFileByFileID(ctx, input.FileID)
		if err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				return nil, false, fmt.Errorf("ingestion file %s vanished after conflict", input.FileID)
			}
			return nil, false, err
		}
		return existing, false, nil
	}

	return &file, true, nil
}

// GetIngestionFileByFileID retrieves a document record by its natural id
func (s *pgStore) GetIngestionFileByFileID(ctx context.Context, fileID string) (*schema.IngestionFile, error) {
	var file schema.IngestionFile
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get ingestion file: %w", err)
	}
	return &file, nil
}

// IsDocumentProcessed reports whether a file id was already fully processed
func (s *pgStore) IsDocumentProcessed(ctx context.Context, fileID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.IngestionFile{}).
		Where("file_id = ? AND status = ?", fileID, schema.FileStatusProcessed).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document status: %w", err)
	}
	return count > 0, nil
}

// UpdateFileOutcome records the processing outcome of a document
func (s *pgStore) UpdateFileOutcome(ctx context.Context, id int64, outcome FileOutcome) error {
	updates := map[string]interface{}{
		"status":               outcome.Status,
		"parsed_claims":        outcome.ParsedClaims,
		"parsed_activities":    outcome.ParsedActivities,
		"persisted_claims":     outcome.PersistedClaims,
		"persisted_activities": outcome.PersistedActivities,
		"updated_at":           time.Now(),
	}
	if outcome.FailureClass != nil {
		updates["failure_class"] = string(*outcome.FailureClass)
	}
	if outcome.FailureDetail != nil {
		updates["failure_detail"] = *outcome.FailureDetail
	}
	if outcome.VerificationDetail != nil {
		updates["verification_detail"] = outcome.VerificationDetail
	}
	if outcome.VerifiedAt != nil {
		updates["verified_at"] = *outcome.VerifiedAt
	}

	err := s.db.WithContext(ctx).
		Model(&schema.IngestionFile{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update file outcome: %w", err)
	}
	return nil
}

// MarkFileAcked stamps the acknowledgment time on a document
func (s *pgStore) MarkFileAcked(ctx context.Context, id int64, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&schema.IngestionFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"acked_at": at, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to mark file acked: %w", err)
	}
	return nil
}

// MarkFileRequeued flips a failed document back to REQUEUED so a fetcher
// picks it up again. Only FAILED documents are eligible.
func (s *pgStore) MarkFileRequeued(ctx context.Context, fileID string) error {
	result := s.db.WithContext(ctx).
		Model(&schema.IngestionFile{}).
		Where("file_id = ? AND status = ?", fileID, schema.FileStatusFailed).
		Updates(map[string]interface{}{
			"status":     schema.FileStatusRequeued,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to requeue document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ListFailedDocuments enumerates failed documents, most recent first
func (s *pgStore) ListFailedDocuments(ctx context.Context, limit, offset int) ([]*schema.IngestionFile, error) {
	var files []*schema.IngestionFile
	err := s.db.WithContext(ctx).
		Where("status = ?", schema.FileStatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed documents: %w", err)
	}
	return files, nil
}

// ListRequeuedDocuments enumerates documents flagged for reprocessing,
// oldest first so requeues drain in order
func (s *pgStore) ListRequeuedDocuments(ctx context.Context, limit int) ([]*schema.IngestionFile, error) {
	var files []*schema.IngestionFile
	err := s.db.WithContext(ctx).
		Where("status = ?", schema.FileStatusRequeued).
		Order("updated_at").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list requeued documents: %w", err)
	}
	return files, nil
}

// PersistSubmission writes a parsed submission document claim by claim.
// Each claim runs in its own transaction so one bad claim never poisons its
// siblings. Replayed claims (submission event already present with matching
// content) are counted and skipped; same natural key with different content
// is flagged as an unexpected duplicate.
func (s *pgStore) PersistSubmission(ctx context.Context, fileID int64, file *domain.SubmissionFile) (*PersistResult, error) {
	result := &PersistResult{}

	for i := range file.Claims {
		c := &file.Claims[i]
		claimKeyID, replayed, err := s.persistSubmissionClaim(ctx, fileID, file.Header.TransactionDate, c)
		if err != nil {
			logger.WarnCtx(ctx, "claim persist failed",
				zap.String("claim_id", c.ID),
				zap.Error(err))
			result.Failures = append(result.Failures, ClaimFailure{ClaimID: c.ID, Err: err})
			continue
		}

		result.Claims++
		result.Encounters += len(c.Encounters)
		result.Activities += len(c.Activities)
		for j := range c.Encounters {
			result.Diagnoses += len(c.Encounters[j].Diagnoses)
		}
		for j := range c.Activities {
			result.Observations += len(c.Activities[j].Observations)
		}
		if replayed {
			result.Replayed++
		} else {
			result.AffectedClaims = append(result.AffectedClaims, claimKeyID)
		}
	}

	return result, nil
}

// persistSubmissionClaim writes one claim record transactionally and
// reports whether the ledger event was a benign replay
func (s *pgStore) persistSubmissionClaim(ctx context.Context, fileID int64, eventTime time.Time, c *domain.SubmissionClaim) (int64, bool, error) {
	var claimKeyID int64
	var replayed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key, err := getOrCreateClaimKey(tx, c.ID)
		if err != nil {
			return err
		}
		claimKeyID = key.ID

		kind := domain.EventKindSubmission
		if c.Resubmission != nil {
			kind = domain.EventKindResubmission
		}

		event := schema.ClaimEvent{
			ClaimKeyID:      key.ID,
			Kind:            kind,
			EventTime:       eventTime,
			IngestionFileID: fileID,
		}

		conflict := clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_key_id"}, {Name: "kind"}, {Name: "event_time"}},
			DoNothing: true,
		}
		if kind == domain.EventKindSubmission {
			// Target the partial index so a second submission at any
			// time collapses onto the first
			conflict = clause.OnConflict{
				Columns:     []clause.Column{{Name: "claim_key_id"}},
				TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "kind = 1"}}},
				DoNothing:   true,
			}
		}

		if err := tx.Clauses(conflict).
			Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(&event).Error; err != nil {
			return fmt.Errorf("failed to create claim event: %w", err)
		}

		if event.ID == 0 {
			// The event already exists. For submissions, compare content
			// so a replay is told apart from a conflicting duplicate.
			replayed = true
			if err := tx.Where("claim_key_id = ? AND kind = ?", key.ID, kind).
				Order("event_time").First(&event).Error; err != nil {
				return fmt.Errorf("failed to get existing claim event: %w", err)
			}
			if kind == domain.EventKindSubmission {
				var existing schema.Claim
				err := tx.Where("claim_key_id = ?", key.ID).First(&existing).Error
				if err == nil && !existing.Net.Equal(c.Net) {
					return fmt.Errorf("claim %s resubmitted with net %s (stored %s): %w",
						c.ID, c.Net, existing.Net, domain.ErrUnexpectedDuplicate)
				}
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("failed to get existing claim header: %w", err)
				}
			}
		}

		if err := persistClaimDetail(tx, key.ID, event.ID, c); err != nil {
			return err
		}

		if !replayed && c.Resubmission != nil {
			resub := schema.ClaimResubmission{
				ClaimEventID: event.ID,
				Type:         c.Resubmission.Type,
				Comment:      c.Resubmission.Comment,
				Attachment:   c.Resubmission.Attachment,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "claim_event_id"}},
				DoNothing: true,
			}).Create(&resub).Error; err != nil {
				return fmt.Errorf("failed to create resubmission: %w", err)
			}
		}

		if !replayed {
			if err := persistEventActivities(tx, event.ID, c.Activities); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return claimKeyID, replayed, nil
}

// persistClaimDetail upserts the claim header, encounters, diagnoses, and
// canonical activities. Every insert carries ON CONFLICT DO NOTHING on its
// natural key, so re-running after a partial failure is harmless.
func persistClaimDetail(tx *gorm.DB, claimKeyID, eventID int64, c *domain.SubmissionClaim) error {
	payer := domain.KnownPayer(c.PayerID)
	if c.PayerID == "" {
		payer = domain.UnknownPayerWithToken(c.ID)
	}

	header := schema.Claim{
		ClaimKeyID:        claimKeyID,
		SubmissionEventID: eventID,
		MemberID:          c.MemberID,
		EmiratesID:        c.EmiratesID,
		PayerFallback:     payer.GroupKey(),
		ProviderCode:      c.ProviderID,
		Gross:             c.Gross,
		PatientShare:      c.PatientShare,
		Net:               c.Net,
	}
	if code, ok := payer.Code(); ok {
		header.PayerCode = &code
	}
	if c.Contract != nil {
		header.ContractPackage = &c.Contract.PackageName
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "claim_key_id"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&header).Error; err != nil {
		return fmt.Errorf("failed to create claim header: %w", err)
	}
	if header.ID == 0 {
		if err := tx.Where("claim_key_id = ?", claimKeyID).First(&header).Error; err != nil {
			return fmt.Errorf("failed to get existing claim header: %w", err)
		}
	}

	for i := range c.Encounters {
		e := &c.Encounters[i]
		encounter := schema.Encounter{
			ClaimID:      header.ID,
			FacilityCode: e.FacilityID,
			Type:         e.Type,
			PatientID:    e.PatientID,
			StartAt:      e.Start,
			EndAt:        e.End,
			StartType:    e.StartType,
			EndType:      e.EndType,
			TransferTo:   e.TransferTo,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_id"}, {Name: "facility_code"}, {Name: "start_at"}},
			DoNothing: true,
		}).Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(&encounter).Error; err != nil {
			return fmt.Errorf("failed to create encounter: %w", err)
		}
		if encounter.ID == 0 {
			if err := tx.Where("claim_id = ? AND facility_code = ? AND start_at = ?",
				header.ID, e.FacilityID, e.Start).First(&encounter).Error; err != nil {
				return fmt.Errorf("failed to get existing encounter: %w", err)
			}
		}

		if len(e.Diagnoses) > 0 {
			diagnoses := make([]schema.Diagnosis, 0, len(e.Diagnoses))
			for _, d := range e.Diagnoses {
				diagnoses = append(diagnoses, schema.Diagnosis{
					EncounterID: encounter.ID,
					DiagType:    d.Type,
					Code:        d.Code,
				})
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "encounter_id"}, {Name: "diag_type"}, {Name: "code"}},
				DoNothing: true,
			}).CreateInBatches(diagnoses, calculateSafeBatchSize(len(diagnoses), 4)).Error; err != nil {
				return fmt.Errorf("failed to create diagnoses: %w", err)
			}
		}
	}

	if len(c.Activities) > 0 {
		activities := make([]schema.Activity, 0, len(c.Activities))
		for i := range c.Activities {
			a := &c.Activities[i]
			activities = append(activities, schema.Activity{
				ClaimKeyID:    claimKeyID,
				ActivityID:    a.ID,
				StartAt:       a.Start,
				Type:          a.Type,
				Code:          a.Code,
				Quantity:      a.Quantity,
				Net:           a.Net,
				ClinicianCode: a.Clinician,
				PriorAuthID:   a.PriorAuthID,
			})
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_key_id"}, {Name: "activity_id"}},
			DoNothing: true,
		}).CreateInBatches(activities, calculateSafeBatchSize(len(activities), 10)).Error; err != nil {
			return fmt.Errorf("failed to create activities: %w", err)
		}
	}

	return nil
}

// persistEventActivities writes the per-event activity snapshots and their
// observations for a newly created ledger event
func persistEventActivities(tx *gorm.DB, eventID int64, activities []domain.Activity) error {
	for i := range activities {
		a := &activities[i]
		snapshot := schema.EventActivity{
			ClaimEventID:  eventID,
			ActivityID:    a.ID,
			StartAt:       a.Start,
			Type:          a.Type,
			Code:          a.Code,
			Quantity:      a.Quantity,
			Net:           a.Net,
			ClinicianCode: a.Clinician,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_event_id"}, {Name: "activity_id"}},
			DoNothing: true,
		}).Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(&snapshot).Error; err != nil {
			return fmt.Errorf("failed to create event activity: %w", err)
		}
		if snapshot.ID == 0 || len(a.Observations) == 0 {
			continue
		}

		observations := make([]schema.EventObservation, 0, len(a.Observations))
		for _, o := range a.Observations {
			observations = append(observations, schema.EventObservation{
				EventActivityID: snapshot.ID,
				ObsType:         o.Type,
				ObsCode:         o.Code,
				ValueHash:       hashObservationValue(o.Value),
				Value:           o.Value,
				ValueType:       o.ValueType,
			})
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_event_activity_id"}, {Name: "obs_type"}, {Name: "obs_code"}, {Name: "value_hash"}},
			DoNothing: true,
		}).CreateInBatches(observations, calculateSafeBatchSize(len(observations), 6)).Error; err != nil {
			return fmt.Errorf("failed to create observations: %w", err)
		}
	}

	return nil
}

// PersistRemittance writes a parsed remittance document claim by claim,
// each in its own transaction. A remittance for a claim whose submission
// has not arrived yet is accepted: the claim key is created and the ledger
// event recorded, the header detail simply stays absent until it shows up.
func (s *pgStore) PersistRemittance(ctx context.Context, fileID int64, file *domain.RemittanceFile) (*PersistResult, error) {
	result := &PersistResult{}

	for i := range file.Claims {
		c := &file.Claims[i]
		claimKeyID, replayed, err := s.persistRemittanceClaim(ctx, fileID, file.Header, c)
		if err != nil {
			logger.WarnCtx(ctx, "remittance claim persist failed",
				zap.String("claim_id", c.ID),
				zap.Error(err))
			result.Failures = append(result.Failures, ClaimFailure{ClaimID: c.ID, Err: err})
			continue
		}

		result.Claims++
		result.PaymentLines += len(c.Activities)
		if replayed {
			result.Replayed++
		} else {
			result.AffectedClaims = append(result.AffectedClaims, claimKeyID)
		}
	}

	return result, nil
}

func (s *pgStore) persistRemittanceClaim(ctx context.Context, fileID int64, header domain.FileHeader, c *domain.RemittanceClaim) (int64, bool, error) {
	var claimKeyID int64
	var replayed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key, err := getOrCreateClaimKey(tx, c.ID)
		if err != nil {
			return err
		}
		claimKeyID = key.ID

		event := schema.ClaimEvent{
			ClaimKeyID:      key.ID,
			Kind:            domain.EventKindRemittance,
			EventTime:       header.TransactionDate,
			IngestionFileID: fileID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_key_id"}, {Name: "kind"}, {Name: "event_time"}},
			DoNothing: true,
		}).Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(&event).Error; err != nil {
			return fmt.Errorf("failed to create remittance event: %w", err)
		}

		// Exact (claim, kind, event_time) replay: nothing to add
		if event.ID == 0 {
			replayed = true
			return nil
		}

		remittance := schema.Remittance{
			ClaimKeyID:       key.ID,
			ClaimEventID:     event.ID,
			IDPayer:          c.IDPayer,
			PayerCode:        header.SenderID,
			ProviderCode:     c.ProviderID,
			PaymentReference: c.PaymentReference,
			DateSettlement:   c.DateSettlement,
			IngestionFileID:  fileID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_event_id"}},
			DoNothing: true,
		}).Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(&remittance).Error; err != nil {
			return fmt.Errorf("failed to create remittance: %w", err)
		}
		if remittance.ID == 0 {
			if err := tx.Where("claim_event_id = ?", event.ID).First(&remittance).Error; err != nil {
				return fmt.Errorf("failed to get existing remittance: %w", err)
			}
		}

		if len(c.Activities) > 0 {
			lines := make([]schema.RemittanceActivity, 0, len(c.Activities))
			for j := range c.Activities {
				a := &c.Activities[j]
				line := schema.RemittanceActivity{
					RemittanceID:  remittance.ID,
					ActivityID:    a.ID,
					StartAt:       a.Start,
					Code:          a.Code,
					Quantity:      a.Quantity,
					Net:           a.Net,
					PaymentAmount: a.PaymentAmount,
					ClinicianCode: a.Clinician,
				}
				if a.DenialCode != "" {
					code := a.DenialCode
					line.DenialCode = &code
				}
				lines = append(lines, line)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "remittance_id"}, {Name: "activity_id"}},
				DoNothing: true,
			}).CreateInBatches(lines, calculateSafeBatchSize(len(lines), 11)).Error; err != nil {
				return fmt.Errorf("failed to create remittance activities: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return claimKeyID, replayed, nil
}

const ledgerEventQuery = `
SELECT ce.id,
       ce.claim_key_id,
       ce.kind,
       ce.event_time,
       COALESCE(p.paid, 0) AS paid_amount,
       COALESCE(p.positive_lines, 0) > 0 AS has_positive_payment,
       COALESCE(p.line_count, 0) > 0
           AND COALESCE(p.positive_lines, 0) = 0
           AND COALESCE(p.undenied_lines, 0) = 0 AS denied_only,
       COALESCE(r.payer_code, '') AS remit_payer_code
FROM claim_events ce
LEFT JOIN remittances r ON r.claim_event_id = ce.id
LEFT JOIN (
    SELECT remittance_id,
           SUM(payment_amount) AS paid,
           COUNT(*) AS line_count,
           COUNT(*) FILTER (WHERE payment_amount > 0) AS positive_lines,
           COUNT(*) FILTER (WHERE denial_code IS NULL AND payment_amount <= 0) AS undenied_lines
    FROM remittance_activities
    GROUP BY remittance_id
) p ON p.remittance_id = r.id
WHERE ce.claim_key_id IN ?
ORDER BY ce.claim_key_id, ce.event_time, ce.id`

// GetLedgerEvents returns one claim's events ordered by (event_time, id)
// with remittance payment rollups attached
func (s *pgStore) GetLedgerEvents(ctx context.Context, claimKeyID int64) ([]LedgerEvent, error) {
	return s.GetLedgerEventsForClaims(ctx, []int64{claimKeyID})
}

// GetLedgerEventsForClaims returns ledger events for a set of claims,
// ordered within each claim by (event_time, id)
func (s *pgStore) GetLedgerEventsForClaims(ctx context.Context, claimKeyIDs []int64) ([]LedgerEvent, error) {
	var events []LedgerEvent
	for _, chunk := range chunkInt64s(claimKeyIDs, 10000) {
		var part []LedgerEvent
		err := s.db.WithContext(ctx).Raw(ledgerEventQuery, chunk).Scan(&part).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger events: %w", err)
		}
		events = append(events, part...)
	}
	return events, nil
}

// GetClaimBilled returns the claim's billed (net) amount, zero when the
// submission detail has not arrived yet
func (s *pgStore) GetClaimBilled(ctx context.Context, claimKeyID int64) (decimal.Decimal, error) {
	var header schema.Claim
	err := s.db.WithContext(ctx).
		Select("net").
		Where("claim_key_id = ?", claimKeyID).
		First(&header).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get claim billed amount: %w", err)
	}
	return header.Net, nil
}

// ReplaceStatusTimeline swaps a claim's derived timeline wholesale inside
// one transaction, so readers see the old timeline or the new one, never a
// mix
func (s *pgStore) ReplaceStatusTimeline(ctx context.Context, claimKeyID int64, entries []schema.ClaimStatusTimeline) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("claim_key_id = ?", claimKeyID).
			Delete(&schema.ClaimStatusTimeline{}).Error; err != nil {
			return fmt.Errorf("failed to clear status timeline: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, calculateSafeBatchSize(len(entries), 5)).Error; err != nil {
			return fmt.Errorf("failed to write status timeline: %w", err)
		}
		return nil
	})
}

// GetStatusTimeline reads a claim's current derived timeline in order
func (s *pgStore) GetStatusTimeline(ctx context.Context, claimKeyID int64) ([]*schema.ClaimStatusTimeline, error) {
	var entries []*schema.ClaimStatusTimeline
	err := s.db.WithContext(ctx).
		Where("claim_key_id = ?", claimKeyID).
		Order("status_time, id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get status timeline: %w", err)
	}
	return entries, nil
}

// GetOrCreateRefCode resolves a business code to a reference row, creating
// it on first sight
func (s *pgStore) GetOrCreateRefCode(ctx context.Context, kind schema.RefKind, code string) (*schema.RefCode, error) {
	ref := schema.RefCode{Kind: kind, Code: code}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "code"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&ref).Error; err != nil {
		return nil, fmt.Errorf("failed to create ref code: %w", err)
	}

	if ref.ID == 0 {
		if err := s.db.WithContext(ctx).
			Where("kind = ? AND code = ?", kind, code).
			First(&ref).Error; err != nil {
			return nil, fmt.Errorf("failed to get existing ref code: %w", err)
		}
	}

	return &ref, nil
}

// BackfillClaimRefs fills reference ids on a claim header where still unset
func (s *pgStore) BackfillClaimRefs(ctx context.Context, claimKeyID int64, payerRefID, providerRefID *int64) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Claim{}).
		Where("claim_key_id = ?", claimKeyID).
		Updates(map[string]interface{}{
			"payer_ref_id":    gorm.Expr("COALESCE(payer_ref_id, ?)", payerRefID),
			"provider_ref_id": gorm.Expr("COALESCE(provider_ref_id, ?)", providerRefID),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to backfill claim refs: %w", err)
	}
	return nil
}

const claimHeaderQuery = `
SELECT c.claim_key_id,
       ck.claim_id,
       c.payer_code,
       c.payer_fallback,
       c.provider_code,
       COALESCE(e.facility_code, '') AS facility_code,
       c.net,
       ce.event_time AS submitted_at
FROM claims c
JOIN claim_keys ck ON ck.id = c.claim_key_id
JOIN claim_events ce ON ce.id = c.submission_event_id
LEFT JOIN LATERAL (
    SELECT facility_code
    FROM encounters
    WHERE claim_id = c.id
    ORDER BY start_at
    LIMIT 1
) e ON true
WHERE to_char(ce.event_time AT TIME ZONE 'UTC', 'YYYY-MM') IN ?`

// GetClaimHeadersForMonths returns the flattened claim headers whose
// submission event falls in one of the given YYYY-MM months
func (s *pgStore) GetClaimHeadersForMonths(ctx context.Context, months []string) ([]ClaimHeaderRow, error) {
	if len(months) == 0 {
		return []ClaimHeaderRow{}, nil
	}

	var rows []ClaimHeaderRow
	err := s.db.WithContext(ctx).Raw(claimHeaderQuery, months).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get claim headers: %w", err)
	}
	return rows, nil
}

const remittanceLineQuery = `
SELECT r.claim_key_id,
       ra.remittance_id,
       ce.event_time,
       COALESCE(r.payer_code, '') AS payer_code,
       ra.activity_id,
       COALESCE(NULLIF(ra.clinician_code, ''), a.clinician_code, '') AS clinician_code,
       ra.net,
       ra.payment_amount,
       ra.denial_code
FROM remittance_activities ra
JOIN remittances r ON r.id = ra.remittance_id
JOIN claim_events ce ON ce.id = r.claim_event_id
LEFT JOIN activities a ON a.claim_key_id = r.claim_key_id AND a.activity_id = ra.activity_id
WHERE r.claim_key_id IN ?
ORDER BY r.claim_key_id, ce.event_time, ra.activity_id`

// GetRemittanceLinesForClaims returns all payment lines for a set of
// claims, clinician codes falling back to the canonical activity when the
// remittance line omits them
func (s *pgStore) GetRemittanceLinesForClaims(ctx context.Context, claimKeyIDs []int64) ([]RemittanceLineRow, error) {
	var lines []RemittanceLineRow
	for _, chunk := range chunkInt64s(claimKeyIDs, 10000) {
		var part []RemittanceLineRow
		err := s.db.WithContext(ctx).Raw(remittanceLineQuery, chunk).Scan(&part).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get remittance lines: %w", err)
		}
		lines = append(lines, part...)
	}
	return lines, nil
}

// GetActivityCountsForClaims returns the canonical activity count per claim
func (s *pgStore) GetActivityCountsForClaims(ctx context.Context, claimKeyIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(claimKeyIDs))
	for _, chunk := range chunkInt64s(claimKeyIDs, 10000) {
		var rows []struct {
			ClaimKeyID int64
			Count      int
		}
		err := s.db.WithContext(ctx).
			Model(&schema.Activity{}).
			Select("claim_key_id, COUNT(*) AS count").
			Where("claim_key_id IN ?", chunk).
			Group("claim_key_id").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count activities: %w", err)
		}
		for _, r := range rows {
			counts[r.ClaimKeyID] = r.Count
		}
	}
	return counts, nil
}

// replaceAggregate deletes the month partitions and inserts the new rows in
// one transaction, so readers see the previous generation or the new one
func replaceAggregate[T any](db *gorm.DB, months []string, rows []T, fieldsPerRow int) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var model T
		if err := tx.Where("month_year IN ?", months).Delete(&model).Error; err != nil {
			return fmt.Errorf("failed to clear aggregate partition: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, calculateSafeBatchSize(len(rows), fieldsPerRow)).Error; err != nil {
			return fmt.Errorf("failed to insert aggregate rows: %w", err)
		}
		return nil
	})
}

// ReplaceClaimFinancialSummaries publishes the claim-level aggregate for
// the given month partitions
func (s *pgStore) ReplaceClaimFinancialSummaries(ctx context.Context, months []string, rows []schema.ClaimFinancialSummary) error {
	return replaceAggregate(s.db.WithContext(ctx), months, rows, 32)
}

// ReplacePayerMonthSummaries publishes the payer-month aggregate for the
// given month partitions
func (s *pgStore) ReplacePayerMonthSummaries(ctx context.Context, months []string, rows []schema.PayerMonthSummary) error {
	return replaceAggregate(s.db.WithContext(ctx), months, rows, 15)
}

// ReplaceClinicianDenialSummaries publishes the clinician denial aggregate
// for the given month partitions
func (s *pgStore) ReplaceClinicianDenialSummaries(ctx context.Context, months []string, rows []schema.ClinicianDenialSummary) error {
	return replaceAggregate(s.db.WithContext(ctx), months, rows, 11)
}

// GetClaimFinancialSummary reads the published claim-level aggregate row
func (s *pgStore) GetClaimFinancialSummary(ctx context.Context, claimKeyID int64) (*schema.ClaimFinancialSummary, error) {
	var row schema.ClaimFinancialSummary
	err := s.db.WithContext(ctx).Where("claim_key_id = ?", claimKeyID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to get claim financial summary: %w", err)
	}
	return &row, nil
}

// refreshLockKey is the advisory lock key guarding aggregate refreshes.
// Arbitrary but fixed: every process competing for the refresh must agree
// on it.
const refreshLockKey = 7249613058

// AcquireRefreshLock takes a session-level advisory lock on a connection
// pinned for the lock's lifetime. A pooled connection would be unsafe here:
// pg_advisory_unlock only releases on the session that acquired.
func (s *pgStore) AcquireRefreshLock(ctx context.Context) (func(), bool, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, false, fmt.Errorf("failed to access connection pool: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to pin connection for refresh lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", refreshLockKey).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	if !locked {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		// Detached context: the lock must be released even when the
		// refresh was cancelled
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", refreshLockKey); err != nil {
			logger.Error(err, zap.String("stage", "refresh_unlock"))
		}
		_ = conn.Close()
	}
	return release, true, nil
}

// CreateRefreshRun records the start of an aggregate refresh
func (s *pgStore) CreateRefreshRun(ctx context.Context, run *schema.RefreshRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create refresh run: %w", err)
	}
	return nil
}

// FinishRefreshRun records how a refresh run ended
func (s *pgStore) FinishRefreshRun(ctx context.Context, id string, status schema.RefreshStatus, rowCount int, failureDetail *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"row_count":   rowCount,
		"finished_at": now,
	}
	if failureDetail != nil {
		updates["failure_detail"] = *failureDetail
	}
	err := s.db.WithContext(ctx).
		Model(&schema.RefreshRun{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to finish refresh run: %w", err)
	}
	return nil
}

// ListRefreshRuns returns the most recent refresh runs, newest first
func (s *pgStore) ListRefreshRuns(ctx context.Context, limit int) ([]*schema.RefreshRun, error) {
	var runs []*schema.RefreshRun
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh runs: %w", err)
	}
	return runs, nil
}

// CountEventsByFile counts ledger events produced by one document
func (s *pgStore) CountEventsByFile(ctx context.Context, ingestionFileID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.ClaimEvent{}).
		Where("ingestion_file_id = ?", ingestionFileID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count events by file: %w", err)
	}
	return count, nil
}

// CountDistinctClaimsByFile counts distinct claims touched by one document
func (s *pgStore) CountDistinctClaimsByFile(ctx context.Context, ingestionFileID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.ClaimEvent{}).
		Distinct("claim_key_id").
		Where("ingestion_file_id = ?", ingestionFileID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count claims by file: %w", err)
	}
	return count, nil
}

// CountOrphanDetailRows tallies detail rows whose parent is missing. All
// counts are expected to be zero; a non-zero count means referential decay.
func (s *pgStore) CountOrphanDetailRows(ctx context.Context) (OrphanCounts, error) {
	var counts OrphanCounts
	db := s.db.WithContext(ctx)

	queries := []struct {
		dest *int64
		sql  string
	}{
		{&counts.Activities,
			`SELECT COUNT(*) FROM activities a WHERE NOT EXISTS (SELECT 1 FROM claim_keys ck WHERE ck.id = a.claim_key_id)`},
		{&counts.EventActivities,
			`SELECT COUNT(*) FROM claim_event_activities ea WHERE NOT EXISTS (SELECT 1 FROM claim_events ce WHERE ce.id = ea.claim_event_id)`},
		{&counts.Observations,
			`SELECT COUNT(*) FROM event_observations eo WHERE NOT EXISTS (SELECT 1 FROM claim_event_activities ea WHERE ea.id = eo.claim_event_activity_id)`},
		{&counts.RemittanceLines,
			`SELECT COUNT(*) FROM remittance_activities ra WHERE NOT EXISTS (SELECT 1 FROM remittances r WHERE r.id = ra.remittance_id)`},
	}
	for _, q := range queries {
		if err := db.Raw(q.sql).Scan(q.dest).Error; err != nil {
			return OrphanCounts{}, fmt.Errorf("failed to count orphan rows: %w", err)
		}
	}

	return counts, nil
}

// CountDuplicateSubmissions counts claims carrying more than one submission
// event. The partial unique index makes this structurally impossible, so
// any non-zero count means the invariant was bypassed.
func (s *pgStore) CountDuplicateSubmissions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM (
			SELECT claim_key_id FROM claim_events
			WHERE kind = ?
			GROUP BY claim_key_id
			HAVING COUNT(*) > 1
		) d`, domain.EventKindSubmission).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count duplicate submissions: %w", err)
	}
	return count, nil
}

// CountAggregateDuplicates counts grouping keys that appear more than once
// in an aggregate table
func (s *pgStore) CountAggregateDuplicates(ctx context.Context, target string) (int64, error) {
	var sql string
	switch target {
	case schema.ClaimFinancialSummary{}.TableName():
		sql = `SELECT COUNT(*) FROM (SELECT claim_key_id FROM claim_financial_summary GROUP BY claim_key_id HAVING COUNT(*) > 1) d`
	case schema.PayerMonthSummary{}.TableName():
		sql = `SELECT COUNT(*) FROM (SELECT payer_key, month_year FROM payer_month_summary GROUP BY payer_key, month_year HAVING COUNT(*) > 1) d`
	case schema.ClinicianDenialSummary{}.TableName():
		sql = `SELECT COUNT(*) FROM (SELECT clinician_code, facility_code, month_year FROM clinician_denial_summary GROUP BY clinician_code, facility_code, month_year HAVING COUNT(*) > 1) d`
	default:
		return 0, fmt.Errorf("unknown aggregate target %q", target)
	}

	var count int64
	if err := s.db.WithContext(ctx).Raw(sql).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count aggregate duplicates: %w", err)
	}
	return count, nil
}

// CountClaims counts claim headers
func (s *pgStore) CountClaims(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&schema.Claim{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return count, nil
}

// CountClaimFinancialSummaries counts published claim-level aggregate rows
func (s *pgStore) CountClaimFinancialSummaries(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&schema.ClaimFinancialSummary{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count claim financial summaries: %w", err)
	}
	return count, nil
}

// SumLedgerPayments sums all payment lines recorded for one claim
func (s *pgStore) SumLedgerPayments(ctx context.Context, claimKeyID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(ra.payment_amount), 0)
		FROM remittance_activities ra
		JOIN remittances r ON r.id = ra.remittance_id
		WHERE r.claim_key_id = ?`, claimKeyID).Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger payments: %w", err)
	}
	return sum, nil
}

// SampleAggregatedClaimKeys picks random claims from the published
// aggregate for spot checking against the ledger
func (s *pgStore) SampleAggregatedClaimKeys(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&schema.ClaimFinancialSummary{}).
		Select("claim_key_id").
		Order("random()").
		Limit(limit).
		Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sample aggregated claims: %w", err)
	}
	return ids, nil
}

// GetFetchCursor retrieves the fetch progress marker for a facility
func (s *pgStore) GetFetchCursor(ctx context.Context, facility string) (string, error) {
	key := fmt.Sprintf("fetch_cursor:%s", facility)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get fetch cursor: %w", err)
	}

	return kv.Value, nil
}

// SetFetchCursor stores the fetch progress marker for a facility
func (s *pgStore) SetFetchCursor(ctx context.Context, facility string, value string) error {
	key := fmt.Sprintf("fetch_cursor:%s", facility)

	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set fetch cursor: %w", err)
	}

	return nil
}
