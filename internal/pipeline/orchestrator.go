package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 60 * time.Second
)

var (
	ErrInvalidBatchID   = fmt.Errorf("%w: batch id is required", apperrors.ErrInvalidInput)
	ErrRetriesExhausted = errors.New("batch run retries exhausted")
	ErrBatchInProgress  = fmt.Errorf("%w: batch run already in progress", apperrors.ErrConflict)
)

// RetryPolicy controls how often a failed batch run is attempted again.
// Zero values fall back to DefaultMaxAttempts and DefaultRetryDelay; a negative Delay retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	delay := p.Delay
	if delay == 0 {
		delay = DefaultRetryDelay
	}
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if delay > 0 {
		b = backoff.NewConstantBackOff(delay)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Orchestrator drives a batch through its lifecycle.
type Orchestrator struct {
	repo       BatchRepository
	classifier *ItemClassifier
	retry      RetryPolicy

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(repo BatchRepository, classifier *ItemClassifier, retry RetryPolicy) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		classifier: classifier,
		retry:      retry,
		running:    make(map[uuid.UUID]struct{}),
	}
}

// claim marks batchID as being run by this process. It fails if a run is already active.
func (o *Orchestrator) claim(batchID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[batchID]; ok {
		return false
	}
	o.running[batchID] = struct{}{}
	return true
}

func (o *Orchestrator) release(batchID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, batchID)
}

// Run classifies every pending item of a batch and completes it. Failures outside the
// item loop mark the batch FAILED and the whole run is attempted again. Unknown batches
// and invalid ids are not retried. A batch already being run by this orchestrator is
// rejected with ErrBatchInProgress.
func (o *Orchestrator) Run(ctx context.Context, batchID uuid.UUID) error {
	if batchID == uuid.Nil {
		return ErrInvalidBatchID
	}
	if !o.claim(batchID) {
		slog.WarnContext(ctx, "batch run skipped, already in progress", "batchID", batchID)
		return fmt.Errorf("%w: %s", ErrBatchInProgress, batchID)
	}
	defer o.release(batchID)

	attempt := 0
	permanent := false
	var lastErr error
	op := func() error {
		attempt++
		metrics.BatchAttemptsTotal.Inc()

		err := o.runOnce(ctx, batchID)
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(err) || ctx.Err() != nil {
			permanent = true
			return backoff.Permanent(err)
		}

		o.markFailed(ctx, batchID, err)
		slog.WarnContext(ctx, "batch run failed", "batchID", batchID, "attempt", attempt, "error", err)
		return err
	}

	err := backoff.Retry(op, o.retry.backOff(ctx))
	if err == nil {
		metrics.BatchRunsTotal.WithLabelValues(string(model.BatchStatusCompleted)).Inc()
		return nil
	}

	if permanent {
		return lastErr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("batch %s run cancelled: %w", batchID, errors.Join(ctx.Err(), lastErr))
	}

	metrics.BatchRunsTotal.WithLabelValues(string(model.BatchStatusFailed)).Inc()
	slog.ErrorContext(ctx, "batch left failed after retries", "batchID", batchID, "attempts", attempt, "error", lastErr)
	return fmt.Errorf("%w: batch %s after %d attempts: %w", ErrRetriesExhausted, batchID, attempt, lastErr)
}

func isPermanent(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrConflict)
}

// runOnce performs a single attempt. A completed batch is left untouched.
func (o *Orchestrator) runOnce(ctx context.Context, batchID uuid.UUID) error {
	batch, err := o.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == model.BatchStatusCompleted {
		slog.InfoContext(ctx, "batch already completed", "batchID", batchID)
		return nil
	}

	if _, err := o.repo.UpdateBatchStatus(ctx, batchID, model.BatchStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to start batch: %w", err)
	}

	items, err := o.repo.ListPendingItems(ctx, batchID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "batch run started", "batchID", batchID, "pendingItems", len(items), "totalItems", batch.ItemCount)

	processed, saveFailures := 0, 0
	for i := range items {
		if err := o.classifier.Classify(ctx, &items[i]); err != nil {
			if ctx.Err() != nil {
				return err
			}
			saveFailures++
			slog.ErrorContext(ctx, "failed to persist item classification", "batchID", batchID, "itemID", items[i].ID, "error", err)
			continue
		}
		processed++
		slog.DebugContext(ctx, "item classified", "batchID", batchID, "itemID", items[i].ID,
			"status", items[i].ValidationStatus, "progress", fmt.Sprintf("%d/%d", processed, len(items)))
	}

	// Unsaved items are still pending, so the next attempt picks them up
	if saveFailures > 0 {
		return fmt.Errorf("%d of %d items could not be saved", saveFailures, len(items))
	}

	if _, err := o.repo.UpdateBatchStatus(ctx, batchID, model.BatchStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to complete batch: %w", err)
	}

	slog.InfoContext(ctx, "batch completed", "batchID", batchID, "processed", processed)
	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, batchID uuid.UUID, cause error) {
	reason := cause.Error()
	if _, err := o.repo.UpdateBatchStatus(ctx, batchID, model.BatchStatusFailed, &reason); err != nil {
		slog.ErrorContext(ctx, "failed to mark batch as failed", "batchID", batchID, "error", err)
	}
}
