package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/metrics"
	"github.com/ggasparott/FastMission/internal/rules"
	"github.com/ggasparott/FastMission/internal/storage"
)

const (
	DefaultAutocompleteLimit = 10
	DefaultSearchLimit       = 10
	minSearchTermLength      = 2
)

var (
	ErrInvalidSearchTerm = fmt.Errorf("%w: search term must have at least %d characters", apperrors.ErrInvalidInput, minSearchTermLength)
	ErrInvalidEntry      = fmt.Errorf("%w: invalid catalog entry", apperrors.ErrInvalidInput)
	ErrNoSource          = fmt.Errorf("%w: no catalog source storage configured", apperrors.ErrInvalidInput)
)

// Repository persists the catalog
type Repository interface {
	ListAll(ctx context.Context) ([]Entry, error)
	ReplaceAll(ctx context.Context, entries []Entry) error
}

// ServiceConfig tunes fuzzy suggestions
type ServiceConfig struct {
	SuggestionLimit int
	MaxDistance     int
}

// Service answers catalog queries from an in-memory snapshot and keeps it in sync with the store.
type Service struct {
	repo   Repository
	source storage.Driver
	cfg    ServiceConfig

	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	syncMu  sync.Mutex
}

// NewService creates a catalog service. source may be nil when file imports are not used.
func NewService(repo Repository, source storage.Driver, cfg ServiceConfig) *Service {
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = DefaultSuggestionLimit
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	s := &Service{repo: repo, source: source, cfg: cfg}
	s.current.Store(NewSnapshot(nil, 0))
	return s
}

// Snapshot returns the catalog version currently in use
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Load replaces the in-memory snapshot with the stored catalog
func (s *Service) Load(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	snap := s.publish(entries)
	slog.InfoContext(ctx, "catalog loaded", "entries", snap.Len(), "version", snap.Version)
	return nil
}

// Sync replaces the catalog with entries. Codes are normalized and must have eight digits.
// It returns the number of entries stored. An empty input is a no-op.
func (s *Service) Sync(ctx context.Context, entries []SourceEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	normalized := make([]Entry, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, src := range entries {
		code := NormalizeCode(src.Code)
		if !ValidFormat(code) {
			return 0, fmt.Errorf("%w: entry %d has code %q", ErrInvalidEntry, i, src.Code)
		}
		entry := Entry{Code: code, Description: strings.TrimSpace(src.Description), SyncedAt: now}
		if pos, dup := seen[code]; dup {
			normalized[pos] = entry
			continue
		}
		seen[code] = len(normalized)
		normalized = append(normalized, entry)
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if err := s.repo.ReplaceAll(ctx, normalized); err != nil {
		return 0, fmt.Errorf("failed to replace catalog: %w", err)
	}
	snap := s.publish(normalized)

	slog.InfoContext(ctx, "catalog synchronized", "entries", snap.Len(), "version", snap.Version)
	return len(normalized), nil
}

// SyncFromSource reads a JSON array of {code, description} from the source storage and syncs it.
func (s *Service) SyncFromSource(ctx context.Context, key string) (int, error) {
	if s.source == nil {
		return 0, ErrNoSource
	}

	reader, err := s.source.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog source %s: %w", key, err)
	}
	defer reader.Close()

	var entries []SourceEntry
	if err := json.NewDecoder(reader).Decode(&entries); err != nil {
		return 0, fmt.Errorf("%w: failed to decode catalog source %s: %v", apperrors.ErrInvalidInput, key, err)
	}
	return s.Sync(ctx, entries)
}

// Import stores a catalog source file under key and syncs from it.
// A source that fails to sync is removed again.
func (s *Service) Import(ctx context.Context, key string, body []byte) (int, error) {
	if s.source == nil {
		return 0, ErrNoSource
	}
	if err := s.source.Save(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return 0, fmt.Errorf("failed to store catalog source: %w", err)
	}

	count, err := s.SyncFromSource(ctx, key)
	if err != nil {
		if delErr := s.source.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "failed to remove rejected catalog source", "key", key, "error", delErr)
		}
		return 0, err
	}
	return count, nil
}

func (s *Service) publish(entries []Entry) *Snapshot {
	snap := NewSnapshot(entries, s.version.Add(1))
	s.current.Store(snap)
	metrics.CatalogEntries.Set(float64(snap.Len()))
	return snap
}

// Validate checks a raw code against the catalog and suggests close codes when it is unknown.
func (s *Service) Validate(raw string) ValidationResult {
	code := NormalizeCode(raw)
	if !ValidFormat(code) {
		return ValidationResult{
			Valid:       false,
			Message:     fmt.Sprintf("Formato inválido. NCM deve ter 8 dígitos. Recebido: %s", raw),
			Suggestions: []Suggestion{},
		}
	}

	snap := s.Snapshot()
	if entry, ok := snap.Lookup(code); ok {
		return ValidationResult{
			Valid:       true,
			Entry:       &entry,
			Message:     "NCM válido",
			Suggestions: []Suggestion{},
		}
	}

	return ValidationResult{
		Valid:       false,
		Message:     fmt.Sprintf("NCM %s não encontrado na base de dados", code),
		Suggestions: Suggest(code, snap, s.cfg.SuggestionLimit, s.cfg.MaxDistance),
	}
}

// CheckCode implements rules.CodeChecker. An empty catalog cannot decide anything.
func (s *Service) CheckCode(raw string) rules.CodeCheck {
	snap := s.Snapshot()
	if snap.Len() == 0 {
		return rules.CodeCheck{Checked: false}
	}

	code := NormalizeCode(raw)
	if _, ok := snap.Lookup(code); ok {
		return rules.CodeCheck{Checked: true, Known: true}
	}

	check := rules.CodeCheck{Checked: true}
	if suggestions := Suggest(code, snap, 1, s.cfg.MaxDistance); len(suggestions) > 0 {
		check.Suggestion = suggestions[0].Code
	}
	return check
}

// Autocomplete lists codes starting with prefix.
func (s *Service) Autocomplete(prefix string, limit int) []Entry {
	code := NormalizeCode(prefix)
	if code == "" {
		return []Entry{}
	}
	if limit <= 0 {
		limit = DefaultAutocompleteLimit
	}
	return s.Snapshot().WithPrefix(code, limit)
}

// SearchByDescription lists entries whose description contains term.
func (s *Service) SearchByDescription(term string, limit int) ([]Entry, error) {
	if len([]rune(strings.TrimSpace(term))) < minSearchTermLength {
		return nil, ErrInvalidSearchTerm
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.Snapshot().Search(term, limit), nil
}

// SuggestByDescription searches the catalog by the first keyword of a product description.
func (s *Service) SuggestByDescription(description string, limit int) ([]Entry, error) {
	keywords := ExtractKeywords(description)
	if len(keywords) == 0 {
		return []Entry{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	return s.SearchByDescription(keywords[0], limit)
}

// Stats reports the size and version of the loaded catalog
func (s *Service) Stats() Stats {
	snap := s.Snapshot()
	stats := Stats{
		TotalCodes: snap.Len(),
		Populated:  snap.Len() > 0,
		Version:    snap.Version,
	}
	if snap.Version > 0 {
		loadedAt := snap.LoadedAt
		stats.LoadedAt = &loadedAt
	}
	return stats
}
