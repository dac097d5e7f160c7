package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/metrics"
	"github.com/ggasparott/FastMission/internal/rules"
)

// DefaultItemTimeout bounds the classification of a single item.
const DefaultItemTimeout = 30 * time.Second

// Classifier maps one item to its fiscal attributes.
type Classifier interface {
	Classify(description, code string, secondaryCode *string) (rules.Result, error)
}

// BatchRepository is the persistence the pipeline needs.
type BatchRepository interface {
	GetBatch(ctx context.Context, batchID uuid.UUID) (*model.Batch, error)
	UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status model.BatchStatus, lastError *string) (*model.Batch, error)
	ListPendingItems(ctx context.Context, batchID uuid.UUID) ([]model.Item, error)
	SaveItemResult(ctx context.Context, item *model.Item) error
}

// ItemClassifier runs the classifier for one item under a deadline and persists the outcome.
type ItemClassifier struct {
	classifier Classifier
	repo       BatchRepository
	timeout    time.Duration
	now        func() time.Time
}

// NewItemClassifier creates an ItemClassifier. A non-positive timeout selects DefaultItemTimeout.
func NewItemClassifier(classifier Classifier, repo BatchRepository, timeout time.Duration) *ItemClassifier {
	if timeout <= 0 {
		timeout = DefaultItemTimeout
	}
	return &ItemClassifier{
		classifier: classifier,
		repo:       repo,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type classification struct {
	result rules.Result
	err    error
}

// Classify classifies item and stores the outcome. Classification failures are recorded on
// the item as divergent; only a failure to persist is returned.
func (c *ItemClassifier) Classify(ctx context.Context, item *model.Item) error {
	start := time.Now()
	result, err := c.classify(ctx, item)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Interrupted runs leave the item pending for the next attempt
		return fmt.Errorf("item %s interrupted: %w", item.ID, ctxErr)
	}

	outcome := metrics.OutcomeValid
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeTimeout
		item.MarkFailed(fmt.Sprintf("Timeout ao processar item (>%s)", formatTimeout(c.timeout)), c.now())
		slog.WarnContext(ctx, "item classification timed out", "itemID", item.ID, "batchID", item.BatchID, "timeout", c.timeout)
	case err != nil:
		outcome = metrics.OutcomeError
		item.MarkFailed(fmt.Sprintf("Erro ao processar item: %v", err), c.now())
		slog.WarnContext(ctx, "item classification failed", "itemID", item.ID, "batchID", item.BatchID, "error", err)
	default:
		item.ApplyResult(result, c.now())
		if item.ValidationStatus == model.ValidationStatusDivergent {
			outcome = metrics.OutcomeDivergent
		}
	}
	metrics.ClassificationLatency.Observe(time.Since(start).Seconds())
	metrics.ItemsClassifiedTotal.WithLabelValues(outcome).Inc()

	if err := c.repo.SaveItemResult(ctx, item); err != nil {
		return fmt.Errorf("failed to save item result: %w", err)
	}
	return nil
}

// classify runs the classifier in its own goroutine so a stuck evaluation cannot hold the batch.
// The goroutine is abandoned on timeout; its result is discarded.
func (c *ItemClassifier) classify(ctx context.Context, item *model.Item) (rules.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	description, code, secondary := item.Description, item.OriginalCode, item.OriginalSecondaryCode
	done := make(chan classification, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classification{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		result, err := c.classifier.Classify(description, code, secondary)
		done <- classification{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return rules.Result{}, ctx.Err()
	}
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
