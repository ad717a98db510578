// Package memory is the contextual memory core for the reading companion:
// conversation entries, topic threads, the knowledge graph, the reader
// profile, context assembly for prompt injection, and the pruning pass that
// keeps storage bounded.
package memory

import (
	"context"
	"time"

	"github.com/easeaico/bookmind/internal/types"
)

// EntryRepo accesses conversation entries.
type EntryRepo interface {
	Create(ctx context.Context, entry *types.ConversationEntry) error
	// Recent returns entries newest-first, optionally scoped to a book.
	Recent(ctx context.Context, bookID string, limit int) ([]types.ConversationEntry, error)
	// MentioningEntities returns entries whose entity list contains any of
	// the given strings, newest-first.
	MentioningEntities(ctx context.Context, entities []string, bookID string) ([]types.ConversationEntry, error)
	CountAll(ctx context.Context) (int64, error)
	// OldestPrunable returns unimportant entries oldest-first, filtered by
	// whether they have already been summarized.
	OldestPrunable(ctx context.Context, summarized bool, limit int) ([]types.ConversationEntry, error)
	Delete(ctx context.Context, ids []string) error
	// ByThread returns a thread's entries oldest-first.
	ByThread(ctx context.Context, threadID string, limit int) ([]types.ConversationEntry, error)
	MarkSummarizedByThread(ctx context.Context, threadID string) error
	SetImportant(ctx context.Context, id string, important bool) error
	// DeleteAgedSummarized removes summarized, unimportant entries created
	// before cutoff, at most limit per call. Returns the number deleted.
	DeleteAgedSummarized(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// ThreadRepo accesses memory threads.
type ThreadRepo interface {
	Create(ctx context.Context, thread *types.MemoryThread) error
	// LatestActive returns the most recently updated active thread for the
	// topic (and book, when given), or nil when none exists.
	LatestActive(ctx context.Context, topic, bookID string) (*types.MemoryThread, error)
	Deactivate(ctx context.Context, id string) error
	// Touch advances the thread's last update time and entry count.
	Touch(ctx context.Context, id string, at time.Time) error
	// StaleUnsummarized returns threads last updated before cutoff whose
	// summary is still empty, oldest-first.
	StaleUnsummarized(ctx context.Context, cutoff time.Time, limit int) ([]types.MemoryThread, error)
	// SetSummary records the summary text and deactivates the thread.
	SetSummary(ctx context.Context, id, summary string) error
	// RecentActive returns active threads newest-first, optionally scoped
	// to a book.
	RecentActive(ctx context.Context, bookID string, limit int) ([]types.MemoryThread, error)
}

// NodeRepo accesses knowledge nodes. Delete cascades to edges in both
// directions within one transaction.
type NodeRepo interface {
	Create(ctx context.Context, node *types.KnowledgeNode) error
	Get(ctx context.Context, id string) (*types.KnowledgeNode, error)
	ByNormalizedLabel(ctx context.Context, nodeType types.NodeType, normalized string) (*types.KnowledgeNode, error)
	ByIDs(ctx context.Context, ids []string) ([]types.KnowledgeNode, error)
	Save(ctx context.Context, node *types.KnowledgeNode) error
	Delete(ctx context.Context, id string) error
}

// EdgeRepo accesses knowledge edges.
type EdgeRepo interface {
	Create(ctx context.Context, edge *types.KnowledgeEdge) error
	Get(ctx context.Context, id string) (*types.KnowledgeEdge, error)
	Save(ctx context.Context, edge *types.KnowledgeEdge) error
	// Touching returns every edge with the node as either endpoint.
	Touching(ctx context.Context, nodeID string) ([]types.KnowledgeEdge, error)
}

// ProfileRepo accesses the single reading profile record.
type ProfileRepo interface {
	// Get returns the profile, or a default-initialized one when no record
	// exists yet.
	Get(ctx context.Context) (*types.UserReadingProfile, error)
	Save(ctx context.Context, profile *types.UserReadingProfile) error
}

// InsightRepo accesses book insights.
type InsightRepo interface {
	Create(ctx context.Context, insight *types.BookInsight) error
	// TopByImportance returns insights sorted by importance descending,
	// optionally scoped to a book.
	TopByImportance(ctx context.Context, bookID string, limit int) ([]types.BookInsight, error)
}

// RefResolver reads the host app's notes and quotes, which this subsystem
// references but does not own.
type RefResolver interface {
	Notes(ctx context.Context, ids []string) ([]types.NoteRef, error)
	Quotes(ctx context.Context, ids []string) ([]types.QuoteRef, error)
}

// TextGenerator is the prompt-in/text-out collaborator used for thread
// summarization. Output may be short or garbage; callers must tolerate it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a semantic vector for knowledge nodes.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Clock abstracts wall-clock time so tests can simulate elapsed days.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
