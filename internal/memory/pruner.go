package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/easeaico/bookmind/internal/types"
)

const (
	// maxTotalEntries is the storage bound; exceeding it triggers eviction.
	maxTotalEntries = 1000
	// pruneHeadroom is how far below the bound eviction drives the total.
	pruneHeadroom = 100
	// maxAgedDeletesPerRun bounds the hard-delete transaction size.
	maxAgedDeletesPerRun = 100
	// staleThreadAge is how long a thread may sit unsummarized.
	staleThreadAge = 7 * 24 * time.Hour
	// entryRetention is how long summarized, unimportant entries are kept.
	entryRetention = 30 * 24 * time.Hour

	maxThreadsPerRun  = 10
	promptEntryLimit  = 10
	promptQuestionLen = 100
	promptAnswerLen   = 150
	// minSummaryLength is the quality floor for generated summaries; below
	// it the deterministic fallback is used instead.
	minSummaryLength = 20
)

// Pruner enforces the storage bounds and compacts stale threads. It runs at
// most once per calendar day and never reentrantly; a trigger while a run is
// in flight is a no-op.
type Pruner struct {
	entries   EntryRepo
	threads   ThreadRepo
	generator TextGenerator
	clock     Clock

	mu      sync.Mutex
	lastRun time.Time
	running atomic.Bool
}

// NewPruner returns a Pruner.
func NewPruner(entries EntryRepo, threads ThreadRepo, generator TextGenerator, clock Clock) *Pruner {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pruner{entries: entries, threads: threads, generator: generator, clock: clock}
}

// MaybeRun executes the maintenance pass unless it already ran today or is
// currently running. Step failures are logged, abandon that step for the
// run, and are retried on the next scheduled run.
func (p *Pruner) MaybeRun(ctx context.Context) {
	now := p.clock.Now()
	p.mu.Lock()
	if sameCalendarDay(p.lastRun, now) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if !p.running.CompareAndSwap(false, true) {
		return
	}
	defer p.running.Store(false)

	p.mu.Lock()
	p.lastRun = now
	p.mu.Unlock()

	p.enforceVolumeBound(ctx)
	p.summarizeStaleThreads(ctx, now)
	p.deleteAgedEntries(ctx, now)
}

// enforceVolumeBound deletes oldest-first down to the headroom target,
// skipping important entries and preferring already-summarized ones. Only
// when summarized entries cannot fill the quota does it dip into
// not-yet-summarized entries.
func (p *Pruner) enforceVolumeBound(ctx context.Context) {
	total, err := p.entries.CountAll(ctx)
	if err != nil {
		slog.Error("failed to count entries, skipping volume bound", "error", err)
		return
	}
	if total <= maxTotalEntries {
		return
	}

	quota := int(total) - (maxTotalEntries - pruneHeadroom)
	summarized, err := p.entries.OldestPrunable(ctx, true, quota)
	if err != nil {
		slog.Error("failed to select summarized entries, skipping volume bound", "error", err)
		return
	}
	ids := make([]string, 0, quota)
	for _, entry := range summarized {
		ids = append(ids, entry.ID)
	}
	if len(ids) < quota {
		unsummarized, err := p.entries.OldestPrunable(ctx, false, quota-len(ids))
		if err != nil {
			slog.Error("failed to select unsummarized entries, skipping volume bound", "error", err)
			return
		}
		for _, entry := range unsummarized {
			ids = append(ids, entry.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	if err := p.entries.Delete(ctx, ids); err != nil {
		slog.Error("failed to evict entries", "error", err, "count", len(ids))
		return
	}
	slog.Info("evicted entries over storage bound", "deleted", len(ids), "total_before", total)
}

// summarizeStaleThreads compacts up to maxThreadsPerRun threads that went a
// week without updates. Low-quality or failed generation falls back to a
// deterministic summary; cancellation leaves the thread untouched for the
// next run.
func (p *Pruner) summarizeStaleThreads(ctx context.Context, now time.Time) {
	cutoff := now.Add(-staleThreadAge)
	stale, err := p.threads.StaleUnsummarized(ctx, cutoff, maxThreadsPerRun)
	if err != nil {
		slog.Error("failed to select stale threads, skipping summarization", "error", err)
		return
	}

	for _, thread := range stale {
		entries, err := p.entries.ByThread(ctx, thread.ID, promptEntryLimit)
		if err != nil {
			slog.Error("failed to load thread entries, skipping summarization", "error", err, "thread_id", thread.ID)
			return
		}
		if len(entries) == 0 {
			continue
		}

		summary, err := p.generator.Generate(ctx, summaryPrompt(thread.Topic, entries))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// No partial summary is persisted; retried next run.
				return
			}
			slog.Warn("summary generation failed, using fallback", "error", err, "thread_id", thread.ID)
			summary = ""
		}
		summary = strings.TrimSpace(summary)
		if utf8.RuneCountInString(summary) < minSummaryLength {
			summary = fallbackSummary(thread.Topic, thread.EntryCount, entries)
		}

		if err := p.threads.SetSummary(ctx, thread.ID, summary); err != nil {
			slog.Error("failed to persist thread summary, skipping summarization", "error", err, "thread_id", thread.ID)
			return
		}
		if err := p.entries.MarkSummarizedByThread(ctx, thread.ID); err != nil {
			slog.Error("failed to flag thread entries summarized, skipping summarization", "error", err, "thread_id", thread.ID)
			return
		}
		slog.Info("summarized stale thread", "thread_id", thread.ID, "topic", thread.Topic)
	}
}

// deleteAgedEntries removes summarized, unimportant entries past the
// retention window, capped per run to bound the transaction size.
func (p *Pruner) deleteAgedEntries(ctx context.Context, now time.Time) {
	cutoff := now.Add(-entryRetention)
	deleted, err := p.entries.DeleteAgedSummarized(ctx, cutoff, maxAgedDeletesPerRun)
	if err != nil {
		slog.Error("failed to delete aged entries", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("deleted aged summarized entries", "deleted", deleted)
	}
}

// summaryPrompt renders up to the first ten exchanges, truncated per entry,
// for the text-generation collaborator.
func summaryPrompt(topic string, entries []types.ConversationEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize this conversation about %s in two to three sentences, keeping the key points the reader cared about.\n\n", topic)
	for _, entry := range entries {
		fmt.Fprintf(&sb, "Q: %s\n", snippet(entry.UserInput, promptQuestionLen))
		fmt.Fprintf(&sb, "A: %s\n", snippet(entry.Response, promptAnswerLen))
	}
	return sb.String()
}

// fallbackSummary is the deterministic substitute for empty or low-quality
// generator output.
func fallbackSummary(topic string, entryCount int, entries []types.ConversationEntry) string {
	if entryCount <= 0 {
		entryCount = len(entries)
	}
	summary := fmt.Sprintf("Discussed %s with %d exchanges.", topic, entryCount)
	if topics := distinctEntities(entries, 3); len(topics) > 0 {
		summary += " Key topics: " + strings.Join(topics, ", ") + "."
	}
	return summary
}

func distinctEntities(entries []types.ConversationEntry, limit int) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, entry := range entries {
		for _, entity := range entry.Entities {
			if entity == "" || seen[entity] {
				continue
			}
			seen[entity] = true
			topics = append(topics, entity)
			if len(topics) == limit {
				return topics
			}
		}
	}
	return topics
}

func sameCalendarDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
