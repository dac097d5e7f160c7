package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/ggasparott/FastMission/internal/rules"
)

// Snapshot is an immutable, versioned view of the catalog. It is safe for concurrent reads.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time

	entries []Entry // sorted by code
	folded  []string
	index   map[string]int
}

// NewSnapshot builds a snapshot from entries. When a code repeats, the last entry wins.
func NewSnapshot(entries []Entry, version uint64) *Snapshot {
	byCode := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byCode[e.Code] = e
	}

	sorted := make([]Entry, 0, len(byCode))
	for _, e := range byCode {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	s := &Snapshot{
		Version:  version,
		LoadedAt: time.Now().UTC(),
		entries:  sorted,
		folded:   make([]string, len(sorted)),
		index:    make(map[string]int, len(sorted)),
	}
	for i, e := range sorted {
		s.index[e.Code] = i
		s.folded[i] = rules.Fold(e.Description)
	}
	return s
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Lookup finds an exact, normalized code.
func (s *Snapshot) Lookup(code string) (Entry, bool) {
	i, ok := s.index[code]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// WithPrefix returns up to limit entries whose code starts with prefix, in code order.
func (s *Snapshot) WithPrefix(prefix string, limit int) []Entry {
	start := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Code >= prefix })
	out := make([]Entry, 0)
	for i := start; i < len(s.entries) && len(out) < limit; i++ {
		if !strings.HasPrefix(s.entries[i].Code, prefix) {
			break
		}
		out = append(out, s.entries[i])
	}
	return out
}

// Search returns up to limit entries whose description contains term, ignoring case and accents.
func (s *Snapshot) Search(term string, limit int) []Entry {
	needle := rules.Fold(strings.TrimSpace(term))
	out := make([]Entry, 0)
	for i, desc := range s.folded {
		if len(out) >= limit {
			break
		}
		if strings.Contains(desc, needle) {
			out = append(out, s.entries[i])
		}
	}
	return out
}
