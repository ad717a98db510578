package types

import "time"

// IntentType classifies what the user was doing in an exchange.
type IntentType string

const (
	IntentQuestion      IntentType = "question"
	IntentDiscussion    IntentType = "discussion"
	IntentClarification IntentType = "clarification"
	IntentReflection    IntentType = "reflection"
	IntentGeneral       IntentType = "general"
)

// ConversationEntry is one recorded user/assistant exchange.
type ConversationEntry struct {
	ID        string     `json:"id"`
	UserInput string     `json:"user_input"`
	Response  string     `json:"response"`
	Intent    IntentType `json:"intent"`
	Topic     string     `json:"topic"`
	// Entities are entity strings extracted from the exchange, used for
	// lookup and for fallback thread summaries.
	Entities []string `json:"entities"`
	// IsImportant is sticky and exempts the entry from every deletion path.
	IsImportant bool `json:"is_important"`
	// HasBeenSummarized is set once the owning thread has been compacted.
	HasBeenSummarized bool `json:"has_been_summarized"`
	BookID            string `json:"book_id,omitempty"`
	ThreadID          string `json:"thread_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// MemoryThread groups entries under one topic, optionally scoped to a book.
// A thread is reused for new entries only within a 24 hour window from its
// last update; after that it is deactivated and a fresh thread takes over.
type MemoryThread struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	BookID      string `json:"book_id,omitempty"`
	IsActive    bool   `json:"is_active"`
	SummaryText string `json:"summary_text"`
	// EntryCount tracks how many entries have been appended to the thread.
	EntryCount     int       `json:"entry_count"`
	LastUpdateTime time.Time `json:"last_update_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResponseLength is the user's preferred assistant verbosity.
type ResponseLength string

const (
	ResponseBrief    ResponseLength = "brief"
	ResponseBalanced ResponseLength = "balanced"
	ResponseDetailed ResponseLength = "detailed"
)

// ReadingPace describes how quickly the user moves through books.
type ReadingPace string

const (
	PaceSlow   ReadingPace = "slow"
	PaceSteady ReadingPace = "steady"
	PaceFast   ReadingPace = "fast"
)

// UserReadingProfile is the single system-wide personalization record.
// The bounded lists evict oldest-first when full.
type UserReadingProfile struct {
	ResponseLength  ResponseLength `json:"response_length"`
	ReadingPace     ReadingPace    `json:"reading_pace"`
	FavoriteThemes  []string       `json:"favorite_themes"`
	ConfusingTopics []string       `json:"confusing_topics"`
	// PeakReadingHours holds raw hour-of-day samples.
	PeakReadingHours []int `json:"peak_reading_hours"`
	// AvgSessionMinutes is maintained with an online mean over SessionCount.
	AvgSessionMinutes float64 `json:"avg_session_minutes"`
	SessionCount      int     `json:"session_count"`
}

// InsightType classifies a recorded reading insight.
type InsightType string

const (
	InsightCharacter    InsightType = "character"
	InsightTheme        InsightType = "theme"
	InsightPlot         InsightType = "plot"
	InsightConnection   InsightType = "connection"
	InsightConfusion    InsightType = "confusion"
	InsightAppreciation InsightType = "appreciation"
)

// BookInsight is a write-once observation about the user's reading.
type BookInsight struct {
	ID             string      `json:"id"`
	Type           InsightType `json:"type"`
	Content        string      `json:"content"`
	TriggerContext string      `json:"trigger_context"`
	// Importance is clamped to [1,5] at creation.
	Importance int       `json:"importance"`
	BookID     string    `json:"book_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClampImportance bounds an importance value to [1,5].
func ClampImportance(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// ClampUnit bounds a score to [0,1]. NaN collapses to 0.
func ClampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
