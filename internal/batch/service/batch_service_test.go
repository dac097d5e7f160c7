package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/database"
	"github.com/ggasparott/FastMission/internal/rules"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db, &model.Batch{}, &model.Item{}))
	return db
}

func strPtr(s string) *string {
	return &s
}

func sampleRequest() *model.CreateBatchDTO {
	return &model.CreateBatchDTO{
		FileName: "produtos.csv",
		Items: []model.CreateItemDTO{
			{Description: "Arroz branco tipo 1", Code: "10063021"},
			{Description: "Notebook 15 polegadas", Code: "84713012", SecondaryCode: strPtr(" ")},
			{Description: "Refrigerante cola", Code: "22021000", SecondaryCode: strPtr("0300700")},
		},
	}
}

func createBatch(t *testing.T, svc *BatchService) *model.Batch {
	t.Helper()
	batch, err := svc.CreateBatchWithItems(context.Background(), sampleRequest())
	require.NoError(t, err)
	return batch
}

func TestBatchService_CreateBatchWithItems(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()

	batch := createBatch(t, svc)
	assert.NotEqual(t, uuid.Nil, batch.ID)
	assert.Equal(t, model.BatchStatusPending, batch.Status)
	assert.Equal(t, 3, batch.ItemCount)
	assert.Zero(t, batch.Attempts)

	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Arroz branco tipo 1", items[0].Description)
	assert.Equal(t, "Notebook 15 polegadas", items[1].Description)
	assert.Nil(t, items[1].OriginalSecondaryCode, "blank secondary code is dropped")
	require.NotNil(t, items[2].OriginalSecondaryCode)
	assert.Equal(t, "0300700", *items[2].OriginalSecondaryCode)
	for _, item := range items {
		assert.Equal(t, batch.ID, item.BatchID)
		assert.Equal(t, model.ValidationStatusPending, item.ValidationStatus)
		assert.Nil(t, item.ProcessedAt)
	}
}

func TestBatchService_CreateBatchWithItems_Validation(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		req  *model.CreateBatchDTO
	}{
		{name: "nil request", req: nil},
		{name: "missing file name", req: &model.CreateBatchDTO{Items: []model.CreateItemDTO{{Description: "x", Code: "1"}}}},
		{name: "no items", req: &model.CreateBatchDTO{FileName: "a.csv"}},
		{name: "blank description", req: &model.CreateBatchDTO{FileName: "a.csv", Items: []model.CreateItemDTO{{Description: " ", Code: "1"}}}},
		{name: "blank code", req: &model.CreateBatchDTO{FileName: "a.csv", Items: []model.CreateItemDTO{{Description: "x", Code: ""}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := svc.CreateBatchWithItems(ctx, tt.req)
			assert.Nil(t, batch)
			assert.ErrorIs(t, err, ErrInvalidBatch)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	list, err := svc.ListBatches(ctx, model.BatchFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.TotalCount)
}

func TestBatchService_GetBatch_NotFound(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))

	batch, err := svc.GetBatch(context.Background(), uuid.New())
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBatchService_GetBatch_DatabaseError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "batches"`)).
		WillReturnError(errors.New("connection reset"))

	svc := NewBatchService(db)
	batch, err := svc.GetBatch(context.Background(), uuid.New())
	assert.Nil(t, batch)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "failed to retrieve batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchService_ListBatches(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()

	first := createBatch(t, svc)
	time.Sleep(2 * time.Millisecond)
	second := createBatch(t, svc)

	list, err := svc.ListBatches(ctx, model.BatchFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.TotalCount)
	assert.Equal(t, 0, list.Offset)
	assert.Equal(t, 20, list.Limit)
	require.Len(t, list.Batches, 2)
	assert.Equal(t, second.ID, list.Batches[0].ID)
	assert.Equal(t, first.ID, list.Batches[1].ID)

	limit := 1
	offset := 1
	page, err := svc.ListBatches(ctx, model.BatchFilter{Offset: &offset, Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalCount)
	require.Len(t, page.Batches, 1)
	assert.Equal(t, first.ID, page.Batches[0].ID)
}

func TestBatchService_UpdateBatchStatus(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	running, err := svc.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusRunning, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusRunning, running.Status)
	assert.Equal(t, 1, running.Attempts)

	failed, err := svc.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusFailed, strPtr("database unavailable"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "database unavailable", *failed.LastError)
	assert.Equal(t, 1, failed.Attempts)

	retried, err := svc.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusRunning, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, retried.Attempts)
	assert.Nil(t, retried.LastError)

	_, err = svc.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusCompleted, nil)
	require.NoError(t, err)

	stored, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Nil(t, stored.LastError)
}

func TestBatchService_UpdateBatchStatus_InvalidTransitions(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()

	pending := createBatch(t, svc)
	_, err := svc.UpdateBatchStatus(ctx, pending.ID, model.BatchStatusCompleted, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	done := createBatch(t, svc)
	_, err = svc.UpdateBatchStatus(ctx, done.ID, model.BatchStatusRunning, nil)
	require.NoError(t, err)
	_, err = svc.UpdateBatchStatus(ctx, done.ID, model.BatchStatusCompleted, nil)
	require.NoError(t, err)
	_, err = svc.UpdateBatchStatus(ctx, done.ID, model.BatchStatusRunning, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateBatchStatus(ctx, uuid.New(), model.BatchStatusRunning, nil)
	assert.ErrorIs(t, err, ErrBatchNotFound)

	stored, err := svc.GetBatch(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusPending, stored.Status)
}

func TestBatchService_UpdateBatchStatus_ConcurrentChange(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	batchID := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "file_name", "status", "item_count", "attempts", "last_error"}).
		AddRow(batchID.String(), now, now, "lote.csv", string(model.BatchStatusPending), 2, 0, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "batches"`)).WillReturnRows(rows)
	// Another worker claimed the batch between the read and the write
	mock.ExpectExec(`UPDATE "batches" SET .+ WHERE status = .+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	svc := NewBatchService(db)
	batch, err := svc.UpdateBatchStatus(context.Background(), batchID, model.BatchStatusRunning, nil)
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, err.Error(), "is no longer PENDING")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchService_SaveItemResult(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	engine := rules.NewEngine(rules.Options{})
	now := time.Now().UTC()

	first := items[0]
	result, err := engine.Classify(first.Description, first.OriginalCode, first.OriginalSecondaryCode)
	require.NoError(t, err)
	first.ApplyResult(result, now)
	require.NoError(t, svc.SaveItemResult(ctx, &first))

	second := items[1]
	second.MarkFailed("Timeout ao processar item (>30s)", now)
	require.NoError(t, svc.SaveItemResult(ctx, &second))

	pending, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, items[2].ID, pending[0].ID)

	list, err := svc.ListItems(ctx, batch.ID, model.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, list.Items, 3)

	saved := list.Items[0]
	assert.Equal(t, first.ValidationStatus, saved.ValidationStatus)
	require.NotNil(t, saved.Regime)
	assert.Equal(t, string(rules.RegimeImmune), *saved.Regime)
	require.NotNil(t, saved.ProcessedAt)

	failed := list.Items[1]
	assert.Equal(t, model.ValidationStatusDivergent, failed.ValidationStatus)
	require.NotNil(t, failed.SuggestedCode)
	assert.Equal(t, "84713012", *failed.SuggestedCode)
	require.NotNil(t, failed.Confidence)
	assert.Zero(t, *failed.Confidence)
	require.NotNil(t, failed.DivergenceReason)
	assert.Equal(t, "Timeout ao processar item (>30s)", *failed.DivergenceReason)
}

func TestBatchService_SaveItemResult_Rejects(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)

	t.Run("unprocessed item", func(t *testing.T) {
		item := items[0]
		assert.ErrorIs(t, svc.SaveItemResult(ctx, &item), ErrItemNotProcessed)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		item := items[0]
		item.MarkFailed("x", time.Now().UTC())
		confidence := 101.0
		item.Confidence = &confidence
		assert.ErrorIs(t, svc.SaveItemResult(ctx, &item), ErrInvalidConfidence)
	})

	t.Run("unknown item", func(t *testing.T) {
		item := model.Item{OriginalCode: "10063021"}
		item.ID = uuid.New()
		item.MarkFailed("x", time.Now().UTC())
		assert.ErrorIs(t, svc.SaveItemResult(ctx, &item), apperrors.ErrNotFound)
	})
}

func TestBatchService_GetProgress(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	progress, err := svc.GetProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalItems)
	assert.Equal(t, 3, progress.PendingItems)
	assert.Zero(t, progress.ProcessedItems)
	assert.Zero(t, progress.PercentComplete)

	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	now := time.Now().UTC()

	valid := items[0]
	valid.ApplyResult(rules.Result{Status: rules.StatusValid, Confidence: 75, Regime: rules.RegimeNormal, PrimaryRate: rules.StandardRate}, now)
	require.NoError(t, svc.SaveItemResult(ctx, &valid))

	divergent := items[1]
	divergent.MarkFailed("Erro ao processar item: boom", now)
	require.NoError(t, svc.SaveItemResult(ctx, &divergent))

	progress, err = svc.GetProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.ValidItems)
	assert.Equal(t, 1, progress.DivergentItems)
	assert.Equal(t, 1, progress.PendingItems)
	assert.Equal(t, 2, progress.ProcessedItems)
	assert.InDelta(t, 66.67, progress.PercentComplete, 0.01)
	assert.InDelta(t, 33.33, progress.SuccessRate, 0.01)

	_, err = svc.GetProgress(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestBatchService_ListItems_DivergentOnly(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	divergent := items[2]
	divergent.MarkFailed("Erro ao processar item: boom", time.Now().UTC())
	require.NoError(t, svc.SaveItemResult(ctx, &divergent))

	list, err := svc.ListItems(ctx, batch.ID, model.ItemFilter{DivergentOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalCount)
	require.Len(t, list.Items, 1)
	assert.Equal(t, divergent.ID, list.Items[0].ID)

	_, err = svc.ListItems(ctx, uuid.New(), model.ItemFilter{})
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestBatchService_GetBenefitSummary(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	now := time.Now().UTC()

	reduced := items[0]
	reduced.ApplyResult(rules.Result{
		Status: rules.StatusValid, Confidence: 95, Regime: rules.RegimeReducedRate,
		PrimaryRate: rules.ReducedRate, Benefit: rules.FlagYes,
	}, now)
	require.NoError(t, svc.SaveItemResult(ctx, &reduced))

	possible := items[1]
	possible.ApplyResult(rules.Result{
		Status: rules.StatusValid, Confidence: 75, Regime: rules.RegimeNormal,
		PrimaryRate: rules.StandardRate, Benefit: rules.FlagPossible,
	}, now)
	require.NoError(t, svc.SaveItemResult(ctx, &possible))

	summary, err := svc.GetBenefitSummary(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, summary.BatchID)
	assert.Equal(t, int64(1), summary.ItemsWithBenefit)
	assert.Equal(t, int64(1), summary.ItemsPossible)
	assert.Equal(t, 1, summary.ByRegime[string(rules.RegimeReducedRate)])
	assert.Equal(t, 1, summary.ByRegime[string(rules.RegimeNormal)])
	assert.InDelta(t, rules.StandardRate-rules.ReducedRate, summary.PotentialRateSaving, 0.001)
}

func TestBatchService_DeleteBatch(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()
	batch := createBatch(t, svc)

	require.NoError(t, svc.DeleteBatch(ctx, batch.ID))

	_, err := svc.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	items, err := svc.ListPendingItems(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, svc.DeleteBatch(ctx, batch.ID), ErrBatchNotFound)
}

func TestBatchService_ListUnfinishedBatchIDs(t *testing.T) {
	svc := NewBatchService(setupTestDB(t))
	ctx := context.Background()

	pending := createBatch(t, svc)
	time.Sleep(2 * time.Millisecond)
	running := createBatch(t, svc)
	_, err := svc.UpdateBatchStatus(ctx, running.ID, model.BatchStatusRunning, nil)
	require.NoError(t, err)
	failed := createBatch(t, svc)
	_, err = svc.UpdateBatchStatus(ctx, failed.ID, model.BatchStatusRunning, nil)
	require.NoError(t, err)
	_, err = svc.UpdateBatchStatus(ctx, failed.ID, model.BatchStatusFailed, strPtr("boom"))
	require.NoError(t, err)

	ids, err := svc.ListUnfinishedBatchIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pending.ID, running.ID}, ids)
}
