package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/rules"
)

// MockBatchRepository is a mock implementation of BatchRepository
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) GetBatch(ctx context.Context, batchID uuid.UUID) (*model.Batch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *MockBatchRepository) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status model.BatchStatus, lastError *string) (*model.Batch, error) {
	args := m.Called(ctx, batchID, status, lastError)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *MockBatchRepository) ListPendingItems(ctx context.Context, batchID uuid.UUID) ([]model.Item, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Item), args.Error(1)
}

func (m *MockBatchRepository) SaveItemResult(ctx context.Context, item *model.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, batchID uuid.UUID) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

// MockListClient is a mock implementation of ListClient
type MockListClient struct {
	mock.Mock
}

func (m *MockListClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockListClient) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	args := m.Called(ctx, timeout, keys)
	return args.Get(0).(*redis.StringSliceCmd)
}

// classifierFunc adapts a function to Classifier and counts its calls.
type classifierFunc struct {
	mu    sync.Mutex
	calls int
	fn    func(description, code string, secondaryCode *string) (rules.Result, error)
}

func (c *classifierFunc) Classify(description, code string, secondaryCode *string) (rules.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.fn(description, code, secondaryCode)
}

func (c *classifierFunc) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newPendingItem(batchID uuid.UUID, description, code string) model.Item {
	item := model.Item{
		BatchID:          batchID,
		Description:      description,
		OriginalCode:     code,
		ValidationStatus: model.ValidationStatusPending,
	}
	item.ID = uuid.New()
	return item
}
