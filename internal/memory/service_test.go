package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/easeaico/bookmind/internal/types"
)

type serviceFixture struct {
	svc      *Service
	entries  *mockEntryRepo
	threads  *mockThreadRepo
	insights *mockInsightRepo
	clock    *fakeClock
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		entries:  &mockEntryRepo{},
		threads:  newMockThreadRepo(),
		insights: &mockInsightRepo{},
		clock:    &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(Deps{
		Entries:   f.entries,
		Threads:   f.threads,
		Nodes:     newMockNodeRepo(),
		Edges:     newMockEdgeRepo(),
		Profiles:  &mockProfileRepo{},
		Insights:  f.insights,
		Generator: &mockGenerator{response: "irrelevant"},
		Clock:     f.clock,
	})
	return f
}

func TestSaveExchangeCreatesEntryUnderThread(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	entry, err := f.svc.SaveExchange(ctx, ExchangeInput{
		UserInput: "What does the green light symbolize?",
		Response:  "It stands for Gatsby's longing.",
		BookID:    "book-1",
	})
	if err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	if entry.Topic != "themes" {
		t.Errorf("inferred topic = %q, want themes", entry.Topic)
	}
	if entry.Intent != types.IntentGeneral {
		t.Errorf("default intent = %q, want general", entry.Intent)
	}
	if entry.ThreadID == "" {
		t.Fatal("entry has no thread")
	}
	thread := f.threads.threads[entry.ThreadID]
	if thread == nil {
		t.Fatal("owning thread not persisted")
	}
	if thread.EntryCount != 1 {
		t.Errorf("thread entry count = %d, want 1", thread.EntryCount)
	}
	if !thread.LastUpdateTime.Equal(entry.CreatedAt) {
		t.Errorf("thread not touched: %v vs %v", thread.LastUpdateTime, entry.CreatedAt)
	}
	if len(f.entries.entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(f.entries.entries))
	}
}

func TestSaveExchangeReusesThreadSameDay(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	first, err := f.svc.SaveExchange(ctx, ExchangeInput{UserInput: "theme question", Topic: "themes", BookID: "book-1"})
	if err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}
	f.clock.advance(2 * time.Hour)
	second, err := f.svc.SaveExchange(ctx, ExchangeInput{UserInput: "another theme question", Topic: "themes", BookID: "book-1"})
	if err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	if second.ThreadID != first.ThreadID {
		t.Fatalf("same-day exchanges split threads: %q vs %q", second.ThreadID, first.ThreadID)
	}
	if got := f.threads.threads[first.ThreadID].EntryCount; got != 2 {
		t.Errorf("thread entry count = %d, want 2", got)
	}
}

func TestSaveExchangeDegradesWithoutThread(t *testing.T) {
	f := newServiceFixture()
	f.threads.err = fmt.Errorf("connection refused")

	entry, err := f.svc.SaveExchange(context.Background(), ExchangeInput{UserInput: "question", BookID: "book-1"})
	if err != nil {
		t.Fatalf("SaveExchange should survive thread failure: %v", err)
	}
	if entry.ThreadID != "" {
		t.Errorf("entry thread id = %q, want empty", entry.ThreadID)
	}
	if len(f.entries.entries) != 1 {
		t.Fatal("entry not persisted")
	}
}

func TestSaveExchangeReturnsEntryWriteError(t *testing.T) {
	f := newServiceFixture()
	f.entries.err = fmt.Errorf("disk full")

	if _, err := f.svc.SaveExchange(context.Background(), ExchangeInput{UserInput: "question"}); err == nil {
		t.Fatal("entry write failure swallowed")
	}
}

func TestSaveExchangeTriggersDailyMaintenance(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	seedEntries(f.entries, 1050, true, f.clock.now.Add(-10*24*time.Hour))

	if _, err := f.svc.SaveExchange(ctx, ExchangeInput{UserInput: "question"}); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	total, _ := f.entries.CountAll(ctx)
	if total != 900 {
		t.Fatalf("entries after save = %d, want pruned to 900", total)
	}
}

func TestRecentEntriesDegradesOnError(t *testing.T) {
	f := newServiceFixture()
	f.entries.err = fmt.Errorf("connection refused")
	if got := f.svc.RecentEntries(context.Background(), "book-1", 5); got != nil {
		t.Fatalf("RecentEntries = %v, want nil", got)
	}
}

func TestEntriesMentioning(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	f.entries.entries = append(f.entries.entries,
		types.ConversationEntry{ID: "e1", Entities: []string{"Gatsby"}, BookID: "book-1", CreatedAt: f.clock.now},
		types.ConversationEntry{ID: "e2", Entities: []string{"Daisy"}, BookID: "book-1", CreatedAt: f.clock.now},
	)

	found := f.svc.EntriesMentioning(ctx, []string{"gatsby"}, "book-1")
	if len(found) != 1 || found[0].ID != "e1" {
		t.Fatalf("EntriesMentioning = %v, want [e1]", found)
	}
	if got := f.svc.EntriesMentioning(ctx, nil, "book-1"); got != nil {
		t.Fatalf("empty entity list returned %v, want nil", got)
	}
}

func TestMarkImportant(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	f.entries.entries = append(f.entries.entries, types.ConversationEntry{ID: "e1", CreatedAt: f.clock.now})

	if err := f.svc.MarkImportant(ctx, "e1"); err != nil {
		t.Fatalf("MarkImportant: %v", err)
	}
	if !f.entries.entries[0].IsImportant {
		t.Fatal("entry not flagged important")
	}
}

func TestRecordInsightClampsImportance(t *testing.T) {
	f := newServiceFixture()

	insight, err := f.svc.RecordInsight(context.Background(), InsightInput{
		Type:       types.InsightTheme,
		Content:    "wealth corrupts",
		Importance: 9,
		BookID:     "book-1",
	})
	if err != nil {
		t.Fatalf("RecordInsight: %v", err)
	}
	if insight.Importance != 5 {
		t.Errorf("importance = %d, want clamped 5", insight.Importance)
	}
	if len(f.insights.insights) != 1 {
		t.Fatal("insight not persisted")
	}
}

func TestConcurrentProfileUpdatesLoseNothing(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	const sessions = 100
	var wg sync.WaitGroup
	wg.Add(sessions)
	for i := 0; i < sessions; i++ {
		go func(hour int) {
			defer wg.Done()
			if err := f.svc.Profile().RecordSession(ctx, 10*time.Minute, hour%24); err != nil {
				t.Errorf("RecordSession: %v", err)
			}
		}(i)
	}
	wg.Wait()

	profile, err := f.svc.Profile().profiles.Get(ctx)
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	if profile.SessionCount != sessions {
		t.Fatalf("session count = %d, want %d (updates lost)", profile.SessionCount, sessions)
	}
}

func TestConcurrentMentionsLoseNothing(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	node, err := f.svc.Graph().FindOrCreateNode(ctx, types.NodeCharacter, "Gatsby")
	if err != nil {
		t.Fatalf("FindOrCreateNode: %v", err)
	}

	const mentions = 50
	var wg sync.WaitGroup
	wg.Add(mentions)
	for i := 0; i < mentions; i++ {
		go func() {
			defer wg.Done()
			if err := f.svc.Graph().RecordMention(ctx, node); err != nil {
				t.Errorf("RecordMention: %v", err)
			}
		}()
	}
	wg.Wait()

	if node.MentionCount != mentions+1 {
		t.Fatalf("mention count = %d, want %d (updates lost)", node.MentionCount, mentions+1)
	}
	if node.Importance != 5 {
		t.Errorf("importance = %d, want 5", node.Importance)
	}
}

func TestBuildContextThroughService(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	if _, err := f.svc.SaveExchange(ctx, ExchangeInput{
		UserInput: "Who is the narrator?",
		Response:  "Nick Carraway.",
		BookID:    "book-1",
	}); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	got := f.svc.BuildContext(ctx, "book-1", "narrator", 0)
	if got == "" {
		t.Fatal("context empty after a saved exchange")
	}
}
