package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/types"
)

// bookInsightModel maps to the book_insights table.
type bookInsightModel struct {
	ID             string `gorm:"primaryKey"`
	Type           string
	Content        string
	TriggerContext string
	Importance     int
	BookID         string `gorm:"index"`
	CreatedAt      time.Time
}

func (bookInsightModel) TableName() string {
	return "book_insights"
}

// InsightRepo accesses book insight data. Insights are write-once.
type InsightRepo struct {
	db *gorm.DB
}

// NewInsightRepo returns an InsightRepo.
func NewInsightRepo(db *gorm.DB) *InsightRepo {
	return &InsightRepo{db: db}
}

func (r *InsightRepo) Create(ctx context.Context, insight *types.BookInsight) error {
	if insight == nil {
		return fmt.Errorf("insight cannot be nil")
	}
	record := bookInsightModel{
		ID:             insight.ID,
		Type:           string(insight.Type),
		Content:        insight.Content,
		TriggerContext: insight.TriggerContext,
		Importance:     types.ClampImportance(insight.Importance),
		BookID:         insight.BookID,
		CreatedAt:      insight.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}
	return nil
}

func (r *InsightRepo) TopByImportance(ctx context.Context, bookID string, limit int) ([]types.BookInsight, error) {
	query := r.db.WithContext(ctx).
		Order("importance DESC, created_at DESC").
		Limit(limit)
	if bookID != "" {
		query = query.Where("book_id = ?", bookID)
	}

	var records []bookInsightModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}

	results := make([]types.BookInsight, 0, len(records))
	for _, record := range records {
		results = append(results, types.BookInsight{
			ID:             record.ID,
			Type:           types.InsightType(record.Type),
			Content:        record.Content,
			TriggerContext: record.TriggerContext,
			Importance:     record.Importance,
			BookID:         record.BookID,
			CreatedAt:      record.CreatedAt,
		})
	}
	return results, nil
}
