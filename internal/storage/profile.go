package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/types"
)

// profileKey is the fixed id of the single profile row.
const profileKey = "primary"

// readingProfileModel maps to the reading_profiles table.
type readingProfileModel struct {
	ID                string `gorm:"primaryKey"`
	ResponseLength    string
	ReadingPace       string
	FavoriteThemes    json.RawMessage `gorm:"type:jsonb"`
	ConfusingTopics   json.RawMessage `gorm:"type:jsonb"`
	PeakReadingHours  json.RawMessage `gorm:"type:jsonb"`
	AvgSessionMinutes float64
	SessionCount      int
	UpdatedAt         time.Time
}

func (readingProfileModel) TableName() string {
	return "reading_profiles"
}

// ProfileRepo accesses the single reading profile row.
type ProfileRepo struct {
	db *gorm.DB
}

// NewProfileRepo returns a ProfileRepo.
func NewProfileRepo(db *gorm.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Get returns the stored profile, or a default-initialized one when the row
// does not exist yet. The row is created lazily by the first Save.
func (r *ProfileRepo) Get(ctx context.Context) (*types.UserReadingProfile, error) {
	var records []readingProfileModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", profileKey).
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	if len(records) == 0 {
		return &types.UserReadingProfile{
			ResponseLength: types.ResponseBalanced,
			ReadingPace:    types.PaceSteady,
		}, nil
	}
	result := profileFromModel(records[0])
	return &result, nil
}

func (r *ProfileRepo) Save(ctx context.Context, profile *types.UserReadingProfile) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	record, err := profileToModel(profile)
	if err != nil {
		return err
	}
	// Save upserts on the fixed primary key.
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func profileToModel(profile *types.UserReadingProfile) (*readingProfileModel, error) {
	themes, err := marshalJSON(profile.FavoriteThemes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode favorite themes: %w", err)
	}
	topics, err := marshalJSON(profile.ConfusingTopics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode confusing topics: %w", err)
	}
	hours, err := marshalJSON(profile.PeakReadingHours)
	if err != nil {
		return nil, fmt.Errorf("failed to encode peak hours: %w", err)
	}
	return &readingProfileModel{
		ID:                profileKey,
		ResponseLength:    string(profile.ResponseLength),
		ReadingPace:       string(profile.ReadingPace),
		FavoriteThemes:    themes,
		ConfusingTopics:   topics,
		PeakReadingHours:  hours,
		AvgSessionMinutes: profile.AvgSessionMinutes,
		SessionCount:      profile.SessionCount,
	}, nil
}

func profileFromModel(model readingProfileModel) types.UserReadingProfile {
	var themes, topics []string
	var hours []int
	_ = unmarshalJSON(model.FavoriteThemes, &themes)
	_ = unmarshalJSON(model.ConfusingTopics, &topics)
	_ = unmarshalJSON(model.PeakReadingHours, &hours)
	return types.UserReadingProfile{
		ResponseLength:    types.ResponseLength(model.ResponseLength),
		ReadingPace:       types.ReadingPace(model.ReadingPace),
		FavoriteThemes:    themes,
		ConfusingTopics:   topics,
		PeakReadingHours:  hours,
		AvgSessionMinutes: model.AvgSessionMinutes,
		SessionCount:      model.SessionCount,
	}
}
