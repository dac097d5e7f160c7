package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/rules"
	"github.com/ggasparott/FastMission/utils"
)

const itemInsertBatchSize = 500

var (
	ErrBatchNotFound     = fmt.Errorf("batch %w", apperrors.ErrNotFound)
	ErrInvalidBatch      = fmt.Errorf("%w: invalid batch", apperrors.ErrInvalidInput)
	ErrInvalidTransition = fmt.Errorf("%w: invalid batch status transition", apperrors.ErrConflict)
	ErrInvalidConfidence = fmt.Errorf("%w: confidence must be between 0 and 100", apperrors.ErrInvalidInput)
	ErrItemNotProcessed  = fmt.Errorf("%w: item has no classification", apperrors.ErrConflict)
)

// BatchService handles batch and item persistence.
type BatchService struct {
	db *gorm.DB
}

// NewBatchService creates a new instance of BatchService.
func NewBatchService(db *gorm.DB) *BatchService {
	return &BatchService{db: db}
}

// CreateBatchWithItems stores a PENDING batch and all of its PENDING items in one transaction.
func (s *BatchService) CreateBatchWithItems(ctx context.Context, req *model.CreateBatchDTO) (*model.Batch, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	batch := &model.Batch{
		FileName:  strings.TrimSpace(req.FileName),
		Status:    model.BatchStatusPending,
		ItemCount: len(req.Items),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}

		// Items keep upload order through their creation timestamps
		base := time.Now().UTC()
		items := make([]model.Item, 0, len(req.Items))
		for i, dto := range req.Items {
			item := model.Item{
				BatchID:               batch.ID,
				Description:           strings.TrimSpace(dto.Description),
				OriginalCode:          strings.TrimSpace(dto.Code),
				OriginalSecondaryCode: normalizeOptional(dto.SecondaryCode),
				ValidationStatus:      model.ValidationStatusPending,
			}
			item.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
			items = append(items, item)
		}
		if err := tx.CreateInBatches(&items, itemInsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create batch items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "batch created", "batchID", batch.ID, "fileName", batch.FileName, "items", batch.ItemCount)
	return batch, nil
}

func validateCreateRequest(req *model.CreateBatchDTO) error {
	if req == nil {
		return fmt.Errorf("%w: request cannot be nil", ErrInvalidBatch)
	}
	if strings.TrimSpace(req.FileName) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidBatch)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidBatch)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Description) == "" {
			return fmt.Errorf("%w: item %d has no description", ErrInvalidBatch, i)
		}
		if strings.TrimSpace(item.Code) == "" {
			return fmt.Errorf("%w: item %d has no code", ErrInvalidBatch, i)
		}
	}
	return nil
}

func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// GetBatch retrieves a batch by its ID.
func (s *BatchService) GetBatch(ctx context.Context, batchID uuid.UUID) (*model.Batch, error) {
	return s.getBatch(s.db.WithContext(ctx), batchID)
}

func (s *BatchService) getBatch(tx *gorm.DB, batchID uuid.UUID) (*model.Batch, error) {
	var batch model.Batch
	if err := tx.First(&batch, "id = ?", batchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		return nil, fmt.Errorf("failed to retrieve batch: %w", err)
	}
	return &batch, nil
}

// ListBatches lists batches, most recent first.
func (s *BatchService) ListBatches(ctx context.Context, filter model.BatchFilter) (*model.BatchListResult, error) {
	offset, limit := utils.GetPaginationParams(filter.Offset, filter.Limit)
	query := s.db.WithContext(ctx).Model(&model.Batch{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count batches: %w", err)
	}

	var batches []model.Batch
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	return &model.BatchListResult{
		TotalCount: total,
		Batches:    batches,
		Offset:     offset,
		Limit:      limit,
	}, nil
}

// DeleteBatch removes a batch together with its items.
func (s *BatchService) DeleteBatch(ctx context.Context, batchID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.getBatch(tx, batchID); err != nil {
			return err
		}
		if err := tx.Where("batch_id = ?", batchID).Delete(&model.Item{}).Error; err != nil {
			return fmt.Errorf("failed to delete batch items: %w", err)
		}
		if err := tx.Delete(&model.Batch{}, "id = ?", batchID).Error; err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		return nil
	})
}

// ListUnfinishedBatchIDs returns the batches never started or interrupted mid-run, oldest first.
// FAILED batches are left for manual re-drive.
func (s *BatchService) ListUnfinishedBatchIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.Batch{}).
		Where("status IN ?", []model.BatchStatus{model.BatchStatusPending, model.BatchStatusRunning}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished batches: %w", err)
	}
	return ids, nil
}

// UpdateBatchStatus moves a batch to status, enforcing the lifecycle.
// Entering RUNNING counts a new attempt; lastError is stored as given.
// A concurrent change of the stored status makes the update fail with ErrInvalidTransition.
func (s *BatchService) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status model.BatchStatus, lastError *string) (*model.Batch, error) {
	var updated *model.Batch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.getBatch(tx, batchID)
		if err != nil {
			return err
		}
		if !batch.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, batch.Status, status)
		}

		previous := batch.Status
		batch.Status = status
		batch.LastError = lastError
		if status == model.BatchStatusRunning {
			batch.Attempts++
		}
		// Only applies if nobody moved the batch since it was read
		result := tx.Model(batch).Where("status = ?", previous).
			Select("status", "last_error", "attempts", "updated_at").Updates(batch)
		if result.Error != nil {
			return fmt.Errorf("failed to update batch status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: batch %s is no longer %s", ErrInvalidTransition, batchID, previous)
		}
		updated = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListPendingItems returns the items of a batch still waiting for classification, in upload order.
func (s *BatchService) ListPendingItems(ctx context.Context, batchID uuid.UUID) ([]model.Item, error) {
	var items []model.Item
	err := s.db.WithContext(ctx).
		Where("batch_id = ? AND validation_status = ?", batchID, model.ValidationStatusPending).
		Order("created_at ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

// SaveItemResult persists the classification fields of a processed item.
func (s *BatchService) SaveItemResult(ctx context.Context, item *model.Item) error {
	if item.ProcessedAt == nil || !item.IsProcessed() {
		return fmt.Errorf("%w: %s", ErrItemNotProcessed, item.ID)
	}
	if item.Confidence != nil && (*item.Confidence < 0 || *item.Confidence > 100) {
		return ErrInvalidConfidence
	}

	result := s.db.WithContext(ctx).Model(item).Select(
		"validation_status", "suggested_code", "suggested_secondary_code", "secondary_code_requirement",
		"divergence_reason", "confidence", "regime", "primary_rate", "secondary_rate",
		"benefit_eligibility", "benefit_description", "legal_citation", "processed_at", "updated_at",
	).Updates(item)
	if result.Error != nil {
		return fmt.Errorf("failed to save item %s: %w", item.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("item %s: %w", item.ID, apperrors.ErrNotFound)
	}
	return nil
}

// GetProgress aggregates the item states of a batch.
func (s *BatchService) GetProgress(ctx context.Context, batchID uuid.UUID) (*model.BatchProgress, error) {
	db := s.db.WithContext(ctx)
	batch, err := s.getBatch(db, batchID)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ValidationStatus model.ValidationStatus
		Count            int
	}
	err = db.Model(&model.Item{}).
		Select("validation_status, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Group("validation_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate batch items: %w", err)
	}

	progress := &model.BatchProgress{
		BatchID:    batch.ID,
		FileName:   batch.FileName,
		Status:     batch.Status,
		Attempts:   batch.Attempts,
		LastError:  batch.LastError,
		TotalItems: batch.ItemCount,
	}
	for _, row := range rows {
		switch row.ValidationStatus {
		case model.ValidationStatusValid:
			progress.ValidItems = row.Count
		case model.ValidationStatusDivergent:
			progress.DivergentItems = row.Count
		case model.ValidationStatusPending:
			progress.PendingItems = row.Count
		}
	}
	progress.ProcessedItems = progress.ValidItems + progress.DivergentItems
	if progress.TotalItems > 0 {
		progress.PercentComplete = float64(progress.ProcessedItems) / float64(progress.TotalItems) * 100
		progress.SuccessRate = float64(progress.ValidItems) / float64(progress.TotalItems) * 100
	}
	return progress, nil
}

// ListItems lists the items of a batch, optionally only the divergent ones.
func (s *BatchService) ListItems(ctx context.Context, batchID uuid.UUID, filter model.ItemFilter) (*model.ItemListResult, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.getBatch(db, batchID); err != nil {
		return nil, err
	}

	offset, limit := utils.GetPaginationParams(filter.Offset, filter.Limit)
	query := db.Model(&model.Item{}).Where("batch_id = ?", batchID)
	if filter.DivergentOnly {
		query = query.Where("validation_status = ?", model.ValidationStatusDivergent)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	var items []model.Item
	if err := query.Order("created_at ASC").Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	return &model.ItemListResult{
		TotalCount: total,
		Items:      items,
		Offset:     offset,
		Limit:      limit,
	}, nil
}

// GetBenefitSummary reports the tax benefits identified in a batch.
// The potential saving is the sum of rate points below the standard rate over items with a benefit.
func (s *BatchService) GetBenefitSummary(ctx context.Context, batchID uuid.UUID) (*model.BenefitSummary, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.getBatch(db, batchID); err != nil {
		return nil, err
	}

	var items []model.Item
	err := db.Select("regime", "primary_rate", "benefit_eligibility").
		Where("batch_id = ? AND validation_status <> ?", batchID, model.ValidationStatusPending).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load batch items: %w", err)
	}

	summary := &model.BenefitSummary{BatchID: batchID, ByRegime: map[string]int{}}
	for _, item := range items {
		if item.Regime != nil {
			summary.ByRegime[*item.Regime]++
		}
		if item.BenefitEligibility == nil {
			continue
		}
		switch rules.Flag(*item.BenefitEligibility) {
		case rules.FlagYes:
			summary.ItemsWithBenefit++
			if item.PrimaryRate != nil {
				summary.PotentialRateSaving += rules.StandardRate - *item.PrimaryRate
			}
		case rules.FlagPossible:
			summary.ItemsPossible++
		}
	}
	return summary, nil
}
