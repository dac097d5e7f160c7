package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const insertBatchSize = 500

// Store persists catalog entries with gorm
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListAll returns every entry ordered by code
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	return entries, nil
}

// ReplaceAll swaps the whole table content inside one transaction,
// so a failed import leaves the previous catalog untouched.
func (s *Store) ReplaceAll(ctx context.Context, entries []Entry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error; err != nil {
			return fmt.Errorf("failed to clear catalog: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&entries, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert catalog entries: %w", err)
		}
		return nil
	})
}

// Count returns the number of stored entries
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count catalog entries: %w", err)
	}
	return count, nil
}
