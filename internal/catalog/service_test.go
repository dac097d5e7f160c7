package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/database"
	"github.com/ggasparott/FastMission/internal/storage"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db, &Entry{}))
	return db
}

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListAll(ctx context.Context) ([]Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Entry), args.Error(1)
}

func (m *MockRepository) ReplaceAll(ctx context.Context, entries []Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

var rice = []SourceEntry{
	{Code: "1006.30.21", Description: "Arroz semibranqueado ou branqueado, parboilizado"},
	{Code: "10063011", Description: "Arroz semibranqueado, polido"},
	{Code: "09011110", Description: "Café não torrado, não descafeinado, em grão"},
}

func TestService_SyncAndQuery(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	svc := NewService(store, nil, ServiceConfig{})
	ctx := context.Background()

	assert.False(t, svc.Stats().Populated)

	count, err := svc.Sync(ctx, rice)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stored, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored)

	stats := svc.Stats()
	assert.Equal(t, 3, stats.TotalCodes)
	assert.True(t, stats.Populated)
	assert.Equal(t, uint64(1), stats.Version)
	assert.NotNil(t, stats.LoadedAt)

	res := svc.Validate("1006.30.21")
	assert.True(t, res.Valid)
	require.NotNil(t, res.Entry)
	assert.Equal(t, "10063021", res.Entry.Code)
	assert.Equal(t, "NCM válido", res.Message)

	res = svc.Validate("10063022")
	assert.False(t, res.Valid)
	assert.Equal(t, "NCM 10063022 não encontrado na base de dados", res.Message)
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, "10063021", res.Suggestions[0].Code)

	res = svc.Validate("123")
	assert.False(t, res.Valid)
	assert.True(t, strings.HasPrefix(res.Message, "Formato inválido"))
	assert.Empty(t, res.Suggestions)

	assert.Len(t, svc.Autocomplete("1006", 0), 2)
	assert.Empty(t, svc.Autocomplete("..", 0))

	found, err := svc.SearchByDescription("cafe", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = svc.SearchByDescription(" a ", 0)
	assert.ErrorIs(t, err, ErrInvalidSearchTerm)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	suggested, err := svc.SuggestByDescription("ARROZ INTEGRAL TIPO 1", 5)
	require.NoError(t, err)
	assert.Len(t, suggested, 2)
}

func TestService_SyncReplacesPreviousCatalog(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewStore(db), nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Sync(ctx, rice)
	require.NoError(t, err)

	count, err := svc.Sync(ctx, []SourceEntry{{Code: "84713012", Description: "Notebook"}, {Code: "84713012", Description: "Computador portátil"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, 1, svc.Snapshot().Len())
	assert.Equal(t, uint64(2), svc.Snapshot().Version)

	// a fresh service sees the same catalog after loading it from the store
	reloaded := NewService(NewStore(db), nil, ServiceConfig{})
	require.NoError(t, reloaded.Load(ctx))
	entry, ok := reloaded.Snapshot().Lookup("84713012")
	require.True(t, ok)
	assert.Equal(t, "Computador portátil", entry.Description)
}

func TestService_SyncRejectsInvalidCodes(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.Sync(context.Background(), []SourceEntry{{Code: "1006", Description: "curto"}})
	assert.ErrorIs(t, err, ErrInvalidEntry)
	repo.AssertNotCalled(t, "ReplaceAll", mock.Anything, mock.Anything)

	count, err := svc.Sync(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_FailedSyncKeepsSnapshot(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, ServiceConfig{})
	ctx := context.Background()

	repo.On("ReplaceAll", ctx, mock.Anything).Return(nil).Once()
	_, err := svc.Sync(ctx, rice)
	require.NoError(t, err)

	repo.On("ReplaceAll", ctx, mock.Anything).Return(errors.New("disk full")).Once()
	_, err = svc.Sync(ctx, []SourceEntry{{Code: "84713012", Description: "Notebook"}})
	assert.ErrorContains(t, err, "disk full")

	assert.Equal(t, 3, svc.Snapshot().Len())
	repo.AssertExpectations(t)
}

func TestService_CheckCode(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, ServiceConfig{})
	ctx := context.Background()

	assert.False(t, svc.CheckCode("10063021").Checked)

	repo.On("ReplaceAll", ctx, mock.Anything).Return(nil)
	_, err := svc.Sync(ctx, rice)
	require.NoError(t, err)

	check := svc.CheckCode("1006.30.21")
	assert.True(t, check.Checked)
	assert.True(t, check.Known)

	check = svc.CheckCode("10063022")
	assert.True(t, check.Checked)
	assert.False(t, check.Known)
	assert.Equal(t, "10063021", check.Suggestion)
}

func TestService_ImportFromStorage(t *testing.T) {
	db := setupTestDB(t)
	driver, err := storage.NewLocalDriver(t.TempDir())
	require.NoError(t, err)
	svc := NewService(NewStore(db), driver, ServiceConfig{})
	ctx := context.Background()

	count, err := svc.Import(ctx, "ncm/2025.json", []byte(`[{"code":"10063021","description":"Arroz"}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// re-sync from the stored source
	count, err = svc.SyncFromSource(ctx, "ncm/2025.json")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.Import(ctx, "ncm/broken.json", []byte(`{not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = driver.Get(ctx, "ncm/broken.json")
	assert.True(t, storage.IsNotFound(err))

	_, err = svc.SyncFromSource(ctx, "ncm/missing.json")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_NoSource(t *testing.T) {
	svc := NewService(new(MockRepository), nil, ServiceConfig{})
	_, err := svc.SyncFromSource(context.Background(), "x.json")
	assert.ErrorIs(t, err, ErrNoSource)
}
