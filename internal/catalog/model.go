package catalog

import "time"

// Entry is one official NCM code of the reference catalog.
type Entry struct {
	Code        string    `gorm:"type:varchar(8);column:code;primaryKey" json:"code"`
	Description string    `gorm:"type:text;column:description;not null" json:"description"`
	SyncedAt    time.Time `gorm:"column:synced_at;not null" json:"syncedAt"`
}

func (e *Entry) TableName() string {
	return "ncm_codes"
}

// SourceEntry is the JSON shape of a catalog source file
type SourceEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ValidationResult answers a code validation query
type ValidationResult struct {
	Valid       bool         `json:"valid"`
	Entry       *Entry       `json:"entry"`
	Message     string       `json:"message"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Stats summarizes the loaded catalog
type Stats struct {
	TotalCodes int        `json:"totalCodes"`
	Populated  bool       `json:"populated"`
	Version    uint64     `json:"version"`
	LoadedAt   *time.Time `json:"loadedAt,omitempty"`
}
