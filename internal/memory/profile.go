package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/easeaico/bookmind/internal/types"
)

const (
	maxFavoriteThemes  = 20
	maxConfusingTopics = 10
	maxPeakHourSamples = 100
)

// ProfileTracker maintains the running personalization signals. Every update
// is a load-modify-save on the single profile row, so mutators serialize on
// mu; NewService points it at the service-wide writer lock.
type ProfileTracker struct {
	profiles ProfileRepo
	mu       *sync.Mutex
}

// NewProfileTracker returns a ProfileTracker.
func NewProfileTracker(profiles ProfileRepo) *ProfileTracker {
	return &ProfileTracker{profiles: profiles, mu: &sync.Mutex{}}
}

// RecordSession folds a reading session into the running average and the
// peak-hour samples.
func (t *ProfileTracker) RecordSession(ctx context.Context, duration time.Duration, hourOfDay int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	profile, err := t.profiles.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	profile.SessionCount++
	n := float64(profile.SessionCount)
	profile.AvgSessionMinutes = (profile.AvgSessionMinutes*(n-1) + duration.Minutes()) / n
	profile.PeakReadingHours = appendBoundedInt(profile.PeakReadingHours, hourOfDay, maxPeakHourSamples)

	if err := t.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// AddFavoriteTheme appends a theme unless already present, evicting the
// oldest when the list is full.
func (t *ProfileTracker) AddFavoriteTheme(ctx context.Context, theme string) error {
	return t.appendBoundedText(ctx, theme, func(p *types.UserReadingProfile, v string) {
		p.FavoriteThemes = appendBoundedText(p.FavoriteThemes, v, maxFavoriteThemes)
	})
}

// RecordConfusingTopic appends a topic the reader struggled with, capped
// with oldest-first eviction.
func (t *ProfileTracker) RecordConfusingTopic(ctx context.Context, topic string) error {
	return t.appendBoundedText(ctx, topic, func(p *types.UserReadingProfile, v string) {
		p.ConfusingTopics = appendBoundedText(p.ConfusingTopics, v, maxConfusingTopics)
	})
}

func (t *ProfileTracker) appendBoundedText(ctx context.Context, value string, apply func(*types.UserReadingProfile, string)) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	profile, err := t.profiles.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	apply(profile, trimmed)
	if err := t.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// PreferenceContext renders the personalization summary for prompt
// injection. Persistence failures degrade to an empty string.
func (t *ProfileTracker) PreferenceContext(ctx context.Context) string {
	profile, err := t.profiles.Get(ctx)
	if err != nil {
		slog.Warn("failed to load profile for preference context", "error", err)
		return ""
	}
	return RenderPreferences(profile)
}

// RenderPreferences is the pure rendering behind PreferenceContext.
func RenderPreferences(profile *types.UserReadingProfile) string {
	if profile == nil {
		return ""
	}

	var lines []string
	switch profile.ResponseLength {
	case types.ResponseBrief:
		lines = append(lines, "The reader prefers brief, to-the-point responses.")
	case types.ResponseDetailed:
		lines = append(lines, "The reader prefers thorough, detailed responses.")
	}
	if themes := topN(profile.FavoriteThemes, 5); len(themes) > 0 {
		lines = append(lines, "Favorite themes: "+strings.Join(themes, ", ")+".")
	}
	if topics := topN(profile.ConfusingTopics, 3); len(topics) > 0 {
		lines = append(lines, "Topics the reader found confusing: "+strings.Join(topics, ", ")+".")
	}
	return strings.Join(lines, "\n")
}

func topN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}

func appendBoundedText(values []string, value string, limit int) []string {
	for _, existing := range values {
		if strings.EqualFold(existing, value) {
			return values
		}
	}
	values = append(values, value)
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	return values
}

func appendBoundedInt(values []int, value, limit int) []int {
	values = append(values, value)
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	return values
}
