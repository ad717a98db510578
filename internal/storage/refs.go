package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/types"
)

// noteModel and quoteModel read the host app's tables. They are foreign,
// read-only surfaces: never migrated, never written.
type noteModel struct {
	ID         string
	Text       string
	IsFavorite bool
}

func (noteModel) TableName() string { return "notes" }

type quoteModel struct {
	ID         string
	Text       string
	IsFavorite bool
}

func (quoteModel) TableName() string { return "quotes" }

// RefResolver reads note and quote references from the host app's tables.
type RefResolver struct {
	db *gorm.DB
}

// NewRefResolver returns a RefResolver.
func NewRefResolver(db *gorm.DB) *RefResolver {
	return &RefResolver{db: db}
}

func (r *RefResolver) Notes(ctx context.Context, ids []string) ([]types.NoteRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []noteModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}

	results := make([]types.NoteRef, 0, len(records))
	for _, record := range records {
		results = append(results, types.NoteRef{ID: record.ID, Text: record.Text, IsFavorite: record.IsFavorite})
	}
	return results, nil
}

func (r *RefResolver) Quotes(ctx context.Context, ids []string) ([]types.QuoteRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []quoteModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}

	results := make([]types.QuoteRef, 0, len(records))
	for _, record := range records {
		results = append(results, types.QuoteRef{ID: record.ID, Text: record.Text, IsFavorite: record.IsFavorite})
	}
	return results, nil
}
