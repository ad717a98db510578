package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/easeaico/bookmind/internal/types"
)

const (
	// DefaultMaxContextTokens is the context budget when the caller passes
	// none.
	DefaultMaxContextTokens = 1000
	// charsPerToken is the estimation ratio: tokens ~= characters / 4.
	charsPerToken = 4

	recentEntryFetchLimit  = 10
	recentEntryRenderLimit = 5
	insightFetchLimit      = 20
	insightRenderLimit     = 3
	threadSummaryLimit     = 3
	questionSnippetLength  = 100
)

// ContextBuilder assembles the token-budgeted context string injected into
// the assistant prompt. Every read is best-effort: a failing section is
// skipped, never fatal.
type ContextBuilder struct {
	profile  *ProfileTracker
	entries  EntryRepo
	threads  ThreadRepo
	insights InsightRepo
	clock    Clock
}

// NewContextBuilder returns a ContextBuilder.
func NewContextBuilder(profile *ProfileTracker, entries EntryRepo, threads ThreadRepo, insights InsightRepo, clock Clock) *ContextBuilder {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ContextBuilder{profile: profile, entries: entries, threads: threads, insights: insights, clock: clock}
}

// Build assembles the context for a query, optionally scoped to a book.
// Sections are appended in order (profile, recent history, insights, thread
// summaries) and joined with blank lines. When the estimate exceeds
// maxTokens the assembled string is truncated from the front, keeping the
// trailing maxTokens*4 characters. Empty inputs at every stage yield "".
func (b *ContextBuilder) Build(ctx context.Context, bookID, query string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	var sections []string
	if pref := b.profile.PreferenceContext(ctx); pref != "" {
		sections = append(sections, pref)
	}
	if bookID != "" {
		if history := b.recentHistorySection(ctx, bookID); history != "" {
			sections = append(sections, history)
		}
		if insights := b.insightSection(ctx, bookID, query); insights != "" {
			sections = append(sections, insights)
		}
	}
	if summaries := b.threadSummarySection(ctx, bookID); summaries != "" {
		sections = append(sections, summaries)
	}

	assembled := strings.Join(sections, "\n\n")
	return truncateToBudget(assembled, maxTokens)
}

func (b *ContextBuilder) recentHistorySection(ctx context.Context, bookID string) string {
	entries, err := b.entries.Recent(ctx, bookID, recentEntryFetchLimit)
	if err != nil {
		slog.Warn("failed to load recent entries for context", "error", err, "book_id", bookID)
		return ""
	}
	if len(entries) > recentEntryRenderLimit {
		entries = entries[:recentEntryRenderLimit]
	}

	now := b.clock.Now()
	var lines []string
	for _, entry := range entries {
		// Plain quote characters; the question text is rendered verbatim.
		lines = append(lines, fmt.Sprintf(`%s: Asked about "%s..." - discussed %s`,
			relativeDayLabel(now, entry.CreatedAt),
			snippet(entry.UserInput, questionSnippetLength),
			entry.Topic))
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) insightSection(ctx context.Context, bookID, query string) string {
	insights, err := b.insights.TopByImportance(ctx, bookID, insightFetchLimit)
	if err != nil {
		slog.Warn("failed to load insights for context", "error", err, "book_id", bookID)
		return ""
	}

	category := inferInsightCategory(query)
	loweredQuery := strings.ToLower(strings.TrimSpace(query))
	var kept []types.BookInsight
	for _, insight := range insights {
		switch {
		case category != "" && insight.Type == category:
		case insight.Importance >= 4:
		case loweredQuery != "" && strings.Contains(strings.ToLower(insight.Content), loweredQuery):
		default:
			continue
		}
		kept = append(kept, insight)
		if len(kept) == insightRenderLimit {
			break
		}
	}

	var lines []string
	for _, insight := range kept {
		lines = append(lines, insightLine(insight))
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) threadSummarySection(ctx context.Context, bookID string) string {
	threads, err := b.threads.RecentActive(ctx, bookID, threadSummaryLimit)
	if err != nil {
		slog.Warn("failed to load threads for context", "error", err, "book_id", bookID)
		return ""
	}

	var lines []string
	for _, thread := range threads {
		if thread.SummaryText != "" {
			lines = append(lines, thread.SummaryText)
		}
	}
	return strings.Join(lines, "\n")
}

func insightLine(insight types.BookInsight) string {
	switch insight.Type {
	case types.InsightCharacter:
		return "User discussed character: " + insight.Content
	case types.InsightTheme:
		return "User explored theme: " + insight.Content
	case types.InsightPlot:
		return "User followed the plot: " + insight.Content
	case types.InsightConnection:
		return "User made a connection: " + insight.Content
	case types.InsightConfusion:
		return "User was confused by: " + insight.Content
	case types.InsightAppreciation:
		return "User appreciated: " + insight.Content
	default:
		return "User noted: " + insight.Content
	}
}

// insightCategoryKeywords matches query keywords to insight categories.
var insightCategoryKeywords = []struct {
	category types.InsightType
	keywords []string
}{
	{types.InsightCharacter, []string{"character", "who", "protagonist", "villain"}},
	{types.InsightTheme, []string{"theme", "symbol", "meaning", "represent"}},
	{types.InsightPlot, []string{"plot", "story", "happen", "ending"}},
	{types.InsightConnection, []string{"connect", "relate", "similar", "remind"}},
	{types.InsightConfusion, []string{"confus", "understand", "explain"}},
	{types.InsightAppreciation, []string{"love", "favorite", "beautiful", "enjoy"}},
}

func inferInsightCategory(query string) types.InsightType {
	lowered := strings.ToLower(query)
	for _, family := range insightCategoryKeywords {
		for _, keyword := range family.keywords {
			if strings.Contains(lowered, keyword) {
				return family.category
			}
		}
	}
	return ""
}

// relativeDayLabel renders a calendar-day distance, not elapsed hours.
func relativeDayLabel(now, at time.Time) string {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	atDay := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	days := int(nowDay.Sub(atDay).Hours() / 24)
	switch {
	case days <= 0:
		return "Earlier today"
	case days == 1:
		return "Yesterday"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// truncateToBudget keeps the trailing maxTokens*4 characters when the
// estimate is over budget. Later sections were appended last, so the suffix
// favors the most recently added content.
func truncateToBudget(assembled string, maxTokens int) string {
	runes := []rune(assembled)
	if len(runes)/charsPerToken <= maxTokens {
		return assembled
	}
	keep := maxTokens * charsPerToken
	return string(runes[len(runes)-keep:])
}
