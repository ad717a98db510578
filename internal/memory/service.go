package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/easeaico/bookmind/internal/types"
)

// Deps bundles everything the memory service needs. Generator, Embedder,
// Refs and Clock are optional; the rest are required.
type Deps struct {
	Entries   EntryRepo
	Threads   ThreadRepo
	Nodes     NodeRepo
	Edges     EdgeRepo
	Profiles  ProfileRepo
	Insights  InsightRepo
	Refs      RefResolver
	Generator TextGenerator
	Embedder  Embedder
	Clock     Clock
}

// Service is the facade over the memory core. All mutating operations are
// funneled through its single-writer mutex; read-only retrieval relies on
// the store's transactional isolation and takes no lock.
type Service struct {
	mu       sync.Mutex
	entries  EntryRepo
	insights InsightRepo
	threads  *ThreadManager
	graph    *Graph
	profile  *ProfileTracker
	builder  *ContextBuilder
	pruner   *Pruner
	clock    Clock
}

// NewService wires the memory core from its dependencies. The graph and
// profile mutators are pointed at the service mutex so every write path,
// direct or through an accessor, goes through the one writer lock.
func NewService(deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	profile := NewProfileTracker(deps.Profiles)
	s := &Service{
		entries:  deps.Entries,
		insights: deps.Insights,
		threads:  NewThreadManager(deps.Threads, clock),
		graph:    NewGraph(deps.Nodes, deps.Edges, deps.Refs, deps.Embedder, clock),
		profile:  profile,
		builder:  NewContextBuilder(profile, deps.Entries, deps.Threads, deps.Insights, clock),
		pruner:   NewPruner(deps.Entries, deps.Threads, deps.Generator, clock),
		clock:    clock,
	}
	s.graph.mu = &s.mu
	s.profile.mu = &s.mu
	return s
}

// Graph exposes the knowledge graph operations.
func (s *Service) Graph() *Graph { return s.graph }

// Profile exposes the personalization tracker.
func (s *Service) Profile() *ProfileTracker { return s.profile }

// Threads exposes the thread manager.
func (s *Service) Threads() *ThreadManager { return s.threads }

// ExchangeInput describes one user/assistant exchange to record.
type ExchangeInput struct {
	UserInput string
	Response  string
	Intent    types.IntentType
	// Topic overrides topic inference when set.
	Topic       string
	Entities    []string
	BookID      string
	IsImportant bool
}

// SaveExchange records an exchange: the owning thread is found or created,
// the entry is persisted under it, and the pruner is offered a run (which it
// takes at most once per day). A thread failure degrades to a threadless
// entry; an entry write failure is returned with no partial in-memory state.
func (s *Service) SaveExchange(ctx context.Context, in ExchangeInput) (*types.ConversationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic := in.Topic
	if topic == "" {
		topic = InferTopic(in.UserInput)
	}
	intent := in.Intent
	if intent == "" {
		intent = types.IntentGeneral
	}

	threadID := ""
	thread, err := s.threads.FindOrCreate(ctx, topic, in.BookID)
	if err != nil {
		slog.Warn("failed to resolve thread, saving entry without one", "error", err, "topic", topic)
	} else {
		threadID = thread.ID
	}

	entry := &types.ConversationEntry{
		ID:          uuid.NewString(),
		UserInput:   in.UserInput,
		Response:    in.Response,
		Intent:      intent,
		Topic:       topic,
		Entities:    in.Entities,
		IsImportant: in.IsImportant,
		BookID:      in.BookID,
		ThreadID:    threadID,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}

	if threadID != "" {
		if err := s.threads.threads.Touch(ctx, threadID, entry.CreatedAt); err != nil {
			slog.Warn("failed to touch thread", "error", err, "thread_id", threadID)
		}
	}

	s.pruner.MaybeRun(ctx)
	return entry, nil
}

// RecentEntries returns the latest exchanges, newest-first, optionally
// scoped to a book. Persistence failures degrade to an empty result.
func (s *Service) RecentEntries(ctx context.Context, bookID string, limit int) []types.ConversationEntry {
	entries, err := s.entries.Recent(ctx, bookID, limit)
	if err != nil {
		slog.Warn("failed to load recent entries", "error", err, "book_id", bookID)
		return nil
	}
	return entries
}

// EntriesMentioning returns exchanges whose extracted entities overlap the
// given list. Persistence failures degrade to an empty result.
func (s *Service) EntriesMentioning(ctx context.Context, entities []string, bookID string) []types.ConversationEntry {
	if len(entities) == 0 {
		return nil
	}
	found, err := s.entries.MentioningEntities(ctx, entities, bookID)
	if err != nil {
		slog.Warn("failed to search entries by entity", "error", err, "book_id", bookID)
		return nil
	}
	return found
}

// MarkImportant stickily exempts an entry from every deletion path.
func (s *Service) MarkImportant(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.entries.SetImportant(ctx, entryID, true); err != nil {
		return fmt.Errorf("failed to mark entry important: %w", err)
	}
	return nil
}

// InsightInput describes a write-once reading insight.
type InsightInput struct {
	Type           types.InsightType
	Content        string
	TriggerContext string
	Importance     int
	BookID         string
}

// RecordInsight persists an insight with its importance clamped to [1,5].
func (s *Service) RecordInsight(ctx context.Context, in InsightInput) (*types.BookInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	insight := &types.BookInsight{
		ID:             uuid.NewString(),
		Type:           in.Type,
		Content:        in.Content,
		TriggerContext: in.TriggerContext,
		Importance:     types.ClampImportance(in.Importance),
		BookID:         in.BookID,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.insights.Create(ctx, insight); err != nil {
		return nil, fmt.Errorf("failed to save insight: %w", err)
	}
	return insight, nil
}

// BuildContext assembles the token-budgeted prompt context. It is
// deterministic given store state and the clock's today, and returns "" on
// empty inputs, never an error.
func (s *Service) BuildContext(ctx context.Context, bookID, query string, maxTokens int) string {
	return s.builder.Build(ctx, bookID, query, maxTokens)
}

// Prune offers the maintenance pass a run outside the save path, e.g. from
// a host-app background task.
func (s *Service) Prune(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruner.MaybeRun(ctx)
}
