package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/types"
)

// conversationEntryModel maps to the conversation_entries table.
type conversationEntryModel struct {
	ID                string `gorm:"primaryKey"`
	UserInput         string
	Response          string
	Intent            string
	Topic             string `gorm:"index"`
	Entities          json.RawMessage `gorm:"type:jsonb"`
	IsImportant       bool
	HasBeenSummarized bool
	BookID            string  `gorm:"index"`
	ThreadID          *string `gorm:"index"`
	CreatedAt         time.Time `gorm:"index"`
}

func (conversationEntryModel) TableName() string {
	return "conversation_entries"
}

// EntryRepo accesses conversation entry data.
type EntryRepo struct {
	db *gorm.DB
}

// NewEntryRepo returns an EntryRepo.
func NewEntryRepo(db *gorm.DB) *EntryRepo {
	return &EntryRepo{db: db}
}

func (r *EntryRepo) Create(ctx context.Context, entry *types.ConversationEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	record, err := entryToModel(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (r *EntryRepo) Recent(ctx context.Context, bookID string, limit int) ([]types.ConversationEntry, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if bookID != "" {
		query = query.Where("book_id = ?", bookID)
	}

	var records []conversationEntryModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent entries: %w", err)
	}
	return entriesFromModels(records), nil
}

func (r *EntryRepo) MentioningEntities(ctx context.Context, entities []string, bookID string) ([]types.ConversationEntry, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	match := r.db.Session(&gorm.Session{NewDB: true})
	first := true
	for _, entity := range entities {
		literal, err := json.Marshal([]string{entity})
		if err != nil {
			return nil, fmt.Errorf("failed to encode entity filter: %w", err)
		}
		if first {
			match = match.Where("entities @> ?::jsonb", string(literal))
			first = false
		} else {
			match = match.Or("entities @> ?::jsonb", string(literal))
		}
	}

	query := r.db.WithContext(ctx).Where(match).Order("created_at DESC")
	if bookID != "" {
		query = query.Where("book_id = ?", bookID)
	}

	var records []conversationEntryModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query entries by entity: %w", err)
	}
	return entriesFromModels(records), nil
}

func (r *EntryRepo) CountAll(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&conversationEntryModel{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return total, nil
}

func (r *EntryRepo) OldestPrunable(ctx context.Context, summarized bool, limit int) ([]types.ConversationEntry, error) {
	var records []conversationEntryModel
	if err := r.db.WithContext(ctx).
		Where("is_important = ?", false).
		Where("has_been_summarized = ?", summarized).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query prunable entries: %w", err)
	}
	return entriesFromModels(records), nil
}

func (r *EntryRepo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&conversationEntryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return nil
}

func (r *EntryRepo) ByThread(ctx context.Context, threadID string, limit int) ([]types.ConversationEntry, error) {
	var records []conversationEntryModel
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query thread entries: %w", err)
	}
	return entriesFromModels(records), nil
}

func (r *EntryRepo) MarkSummarizedByThread(ctx context.Context, threadID string) error {
	if err := r.db.WithContext(ctx).
		Model(&conversationEntryModel{}).
		Where("thread_id = ?", threadID).
		Update("has_been_summarized", true).Error; err != nil {
		return fmt.Errorf("failed to mark thread entries summarized: %w", err)
	}
	return nil
}

func (r *EntryRepo) SetImportant(ctx context.Context, id string, important bool) error {
	result := r.db.WithContext(ctx).
		Model(&conversationEntryModel{}).
		Where("id = ?", id).
		Update("is_important", important)
	if result.Error != nil {
		return fmt.Errorf("failed to update entry importance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("entry %s not found", id)
	}
	return nil
}

func (r *EntryRepo) DeleteAgedSummarized(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	// Subquery keeps the delete bounded; GORM cannot LIMIT a plain delete
	// on Postgres.
	sub := r.db.Model(&conversationEntryModel{}).
		Select("id").
		Where("has_been_summarized = ?", true).
		Where("is_important = ?", false).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit)

	result := r.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Delete(&conversationEntryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete aged entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func entryToModel(entry *types.ConversationEntry) (*conversationEntryModel, error) {
	entities, err := marshalJSON(entry.Entities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry entities: %w", err)
	}
	var threadID *string
	if entry.ThreadID != "" {
		id := entry.ThreadID
		threadID = &id
	}
	return &conversationEntryModel{
		ID:                entry.ID,
		UserInput:         entry.UserInput,
		Response:          entry.Response,
		Intent:            string(entry.Intent),
		Topic:             entry.Topic,
		Entities:          entities,
		IsImportant:       entry.IsImportant,
		HasBeenSummarized: entry.HasBeenSummarized,
		BookID:            entry.BookID,
		ThreadID:          threadID,
		CreatedAt:         entry.CreatedAt,
	}, nil
}

func entryFromModel(model conversationEntryModel) types.ConversationEntry {
	var entities []string
	_ = unmarshalJSON(model.Entities, &entities)
	threadID := ""
	if model.ThreadID != nil {
		threadID = *model.ThreadID
	}
	return types.ConversationEntry{
		ID:                model.ID,
		UserInput:         model.UserInput,
		Response:          model.Response,
		Intent:            types.IntentType(model.Intent),
		Topic:             model.Topic,
		Entities:          entities,
		IsImportant:       model.IsImportant,
		HasBeenSummarized: model.HasBeenSummarized,
		BookID:            model.BookID,
		ThreadID:          threadID,
		CreatedAt:         model.CreatedAt,
	}
}

func entriesFromModels(records []conversationEntryModel) []types.ConversationEntry {
	results := make([]types.ConversationEntry, 0, len(records))
	for _, record := range records {
		results = append(results, entryFromModel(record))
	}
	return results
}
