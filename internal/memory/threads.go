package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/bookmind/internal/types"
)

// threadReuseWindow is how long a topic thread keeps accepting new entries
// after its last update.
const threadReuseWindow = 24 * time.Hour

// ThreadManager owns thread lifecycle. It is the only place threads are
// created.
type ThreadManager struct {
	threads ThreadRepo
	clock   Clock
}

// NewThreadManager returns a ThreadManager.
func NewThreadManager(threads ThreadRepo, clock Clock) *ThreadManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ThreadManager{threads: threads, clock: clock}
}

// FindOrCreate returns the thread new entries for (topic, book) belong to.
// An active thread updated within the last 24 hours is reused; otherwise it
// is deactivated and a fresh thread is created.
func (m *ThreadManager) FindOrCreate(ctx context.Context, topic, bookID string) (*types.MemoryThread, error) {
	existing, err := m.threads.LatestActive(ctx, topic, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active thread: %w", err)
	}

	now := m.clock.Now()
	if existing != nil {
		if now.Sub(existing.LastUpdateTime) < threadReuseWindow {
			return existing, nil
		}
		if err := m.threads.Deactivate(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to deactivate stale thread: %w", err)
		}
	}

	thread := &types.MemoryThread{
		ID:             uuid.NewString(),
		Topic:          topic,
		BookID:         bookID,
		IsActive:       true,
		LastUpdateTime: now,
		CreatedAt:      now,
	}
	if err := m.threads.Create(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// topicFamilies maps keyword families to topic tags. First match wins.
var topicFamilies = []struct {
	topic    string
	keywords []string
}{
	{"characters", []string{"character", "protagonist", "who is", "who was", "villain", "hero"}},
	{"themes", []string{"theme", "symbol", "metaphor", "represent", "meaning", "motif"}},
	{"plot", []string{"plot", "story", "happen", "chapter", "ending", "scene", "twist"}},
	{"context", []string{"author", "wrote", "background", "history", "inspired", "period", "influence"}},
	{"clarification", []string{"confus", "don't understand", "explain", "clarify", "lost", "what does"}},
}

// InferTopic classifies a user utterance into a topic tag when the caller
// supplies none.
func InferTopic(userInput string) string {
	lowered := strings.ToLower(userInput)
	for _, family := range topicFamilies {
		for _, keyword := range family.keywords {
			if strings.Contains(lowered, keyword) {
				return family.topic
			}
		}
	}
	return "general"
}
