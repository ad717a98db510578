package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/types"
)

// memoryThreadModel maps to the memory_threads table.
type memoryThreadModel struct {
	ID             string `gorm:"primaryKey"`
	Topic          string `gorm:"index"`
	BookID         string `gorm:"index"`
	IsActive       bool
	SummaryText    string
	EntryCount     int
	LastUpdateTime time.Time `gorm:"index"`
	CreatedAt      time.Time
}

func (memoryThreadModel) TableName() string {
	return "memory_threads"
}

// ThreadRepo accesses memory thread data.
type ThreadRepo struct {
	db *gorm.DB
}

// NewThreadRepo returns a ThreadRepo.
func NewThreadRepo(db *gorm.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

func (r *ThreadRepo) Create(ctx context.Context, thread *types.MemoryThread) error {
	if thread == nil {
		return fmt.Errorf("thread cannot be nil")
	}
	record := threadToModel(thread)
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) LatestActive(ctx context.Context, topic, bookID string) (*types.MemoryThread, error) {
	query := r.db.WithContext(ctx).
		Where("topic = ?", topic).
		Where("is_active = ?", true).
		Order("last_update_time DESC").
		Limit(1)
	if bookID != "" {
		query = query.Where("book_id = ?", bookID)
	}

	var records []memoryThreadModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query active thread: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	result := threadFromModel(records[0])
	return &result, nil
}

func (r *ThreadRepo) Deactivate(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).
		Model(&memoryThreadModel{}).
		Where("id = ?", id).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("failed to deactivate thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) Touch(ctx context.Context, id string, at time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&memoryThreadModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_update_time": at,
			"entry_count":      gorm.Expr("entry_count + 1"),
		}).Error; err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) StaleUnsummarized(ctx context.Context, cutoff time.Time, limit int) ([]types.MemoryThread, error) {
	var records []memoryThreadModel
	if err := r.db.WithContext(ctx).
		Where("last_update_time < ?", cutoff).
		Where("summary_text = ?", "").
		Order("last_update_time ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query stale threads: %w", err)
	}

	results := make([]types.MemoryThread, 0, len(records))
	for _, record := range records {
		results = append(results, threadFromModel(record))
	}
	return results, nil
}

func (r *ThreadRepo) SetSummary(ctx context.Context, id, summary string) error {
	if err := r.db.WithContext(ctx).
		Model(&memoryThreadModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"summary_text": summary,
			"is_active":    false,
		}).Error; err != nil {
		return fmt.Errorf("failed to set thread summary: %w", err)
	}
	return nil
}

func (r *ThreadRepo) RecentActive(ctx context.Context, bookID string, limit int) ([]types.MemoryThread, error) {
	query := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("last_update_time DESC").
		Limit(limit)
	if bookID != "" {
		query = query.Where("book_id = ?", bookID)
	}

	var records []memoryThreadModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent threads: %w", err)
	}

	results := make([]types.MemoryThread, 0, len(records))
	for _, record := range records {
		results = append(results, threadFromModel(record))
	}
	return results, nil
}

func threadToModel(thread *types.MemoryThread) memoryThreadModel {
	return memoryThreadModel{
		ID:             thread.ID,
		Topic:          thread.Topic,
		BookID:         thread.BookID,
		IsActive:       thread.IsActive,
		SummaryText:    thread.SummaryText,
		EntryCount:     thread.EntryCount,
		LastUpdateTime: thread.LastUpdateTime,
		CreatedAt:      thread.CreatedAt,
	}
}

func threadFromModel(model memoryThreadModel) types.MemoryThread {
	return types.MemoryThread{
		ID:             model.ID,
		Topic:          model.Topic,
		BookID:         model.BookID,
		IsActive:       model.IsActive,
		SummaryText:    model.SummaryText,
		EntryCount:     model.EntryCount,
		LastUpdateTime: model.LastUpdateTime,
		CreatedAt:      model.CreatedAt,
	}
}
