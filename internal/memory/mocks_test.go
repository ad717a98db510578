package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/bookmind/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type mockEntryRepo struct {
	entries []types.ConversationEntry
	err     error
}

func (r *mockEntryRepo) Create(_ context.Context, entry *types.ConversationEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *mockEntryRepo) Recent(_ context.Context, bookID string, limit int) ([]types.ConversationEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	matched := r.filter(func(e types.ConversationEntry) bool {
		return bookID == "" || e.BookID == bookID
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *mockEntryRepo) MentioningEntities(_ context.Context, entities []string, bookID string) ([]types.ConversationEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	wanted := make(map[string]bool, len(entities))
	for _, e := range entities {
		wanted[strings.ToLower(e)] = true
	}
	matched := r.filter(func(e types.ConversationEntry) bool {
		if bookID != "" && e.BookID != bookID {
			return false
		}
		for _, entity := range e.Entities {
			if wanted[strings.ToLower(entity)] {
				return true
			}
		}
		return false
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched, nil
}

func (r *mockEntryRepo) CountAll(_ context.Context) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return int64(len(r.entries)), nil
}

func (r *mockEntryRepo) OldestPrunable(_ context.Context, summarized bool, limit int) ([]types.ConversationEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	matched := r.filter(func(e types.ConversationEntry) bool {
		return !e.IsImportant && e.HasBeenSummarized == summarized
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *mockEntryRepo) Delete(_ context.Context, ids []string) error {
	if r.err != nil {
		return r.err
	}
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if !doomed[e.ID] {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}

func (r *mockEntryRepo) ByThread(_ context.Context, threadID string, limit int) ([]types.ConversationEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	matched := r.filter(func(e types.ConversationEntry) bool { return e.ThreadID == threadID })
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *mockEntryRepo) MarkSummarizedByThread(_ context.Context, threadID string) error {
	if r.err != nil {
		return r.err
	}
	for i := range r.entries {
		if r.entries[i].ThreadID == threadID {
			r.entries[i].HasBeenSummarized = true
		}
	}
	return nil
}

func (r *mockEntryRepo) SetImportant(_ context.Context, id string, important bool) error {
	if r.err != nil {
		return r.err
	}
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].IsImportant = important
			return nil
		}
	}
	return nil
}

func (r *mockEntryRepo) DeleteAgedSummarized(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	matched := r.filter(func(e types.ConversationEntry) bool {
		return e.HasBeenSummarized && !e.IsImportant && e.CreatedAt.Before(cutoff)
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	ids := make([]string, 0, len(matched))
	for _, e := range matched {
		ids = append(ids, e.ID)
	}
	if err := r.Delete(ctx, ids); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r *mockEntryRepo) filter(keep func(types.ConversationEntry) bool) []types.ConversationEntry {
	var matched []types.ConversationEntry
	for _, e := range r.entries {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	return matched
}

type mockThreadRepo struct {
	threads map[string]*types.MemoryThread
	err     error
}

func newMockThreadRepo() *mockThreadRepo {
	return &mockThreadRepo{threads: make(map[string]*types.MemoryThread)}
}

func (r *mockThreadRepo) Create(_ context.Context, thread *types.MemoryThread) error {
	if r.err != nil {
		return r.err
	}
	copied := *thread
	r.threads[thread.ID] = &copied
	return nil
}

func (r *mockThreadRepo) LatestActive(_ context.Context, topic, bookID string) (*types.MemoryThread, error) {
	if r.err != nil {
		return nil, r.err
	}
	var latest *types.MemoryThread
	for _, t := range r.threads {
		if !t.IsActive || t.Topic != topic {
			continue
		}
		if bookID != "" && t.BookID != bookID {
			continue
		}
		if latest == nil || t.LastUpdateTime.After(latest.LastUpdateTime) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *mockThreadRepo) Deactivate(_ context.Context, id string) error {
	if r.err != nil {
		return r.err
	}
	if t, ok := r.threads[id]; ok {
		t.IsActive = false
	}
	return nil
}

func (r *mockThreadRepo) Touch(_ context.Context, id string, at time.Time) error {
	if r.err != nil {
		return r.err
	}
	if t, ok := r.threads[id]; ok {
		t.LastUpdateTime = at
		t.EntryCount++
	}
	return nil
}

func (r *mockThreadRepo) StaleUnsummarized(_ context.Context, cutoff time.Time, limit int) ([]types.MemoryThread, error) {
	if r.err != nil {
		return nil, r.err
	}
	var matched []types.MemoryThread
	for _, t := range r.threads {
		if t.SummaryText == "" && t.LastUpdateTime.Before(cutoff) {
			matched = append(matched, *t)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].LastUpdateTime.Before(matched[j].LastUpdateTime) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *mockThreadRepo) SetSummary(_ context.Context, id, summary string) error {
	if r.err != nil {
		return r.err
	}
	if t, ok := r.threads[id]; ok {
		t.SummaryText = summary
		t.IsActive = false
	}
	return nil
}

func (r *mockThreadRepo) RecentActive(_ context.Context, bookID string, limit int) ([]types.MemoryThread, error) {
	if r.err != nil {
		return nil, r.err
	}
	var matched []types.MemoryThread
	for _, t := range r.threads {
		if !t.IsActive {
			continue
		}
		if bookID != "" && t.BookID != bookID {
			continue
		}
		matched = append(matched, *t)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].LastUpdateTime.After(matched[j].LastUpdateTime) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type mockNodeRepo struct {
	nodes map[string]*types.KnowledgeNode
	err   error
}

func newMockNodeRepo() *mockNodeRepo {
	return &mockNodeRepo{nodes: make(map[string]*types.KnowledgeNode)}
}

func (r *mockNodeRepo) Create(_ context.Context, node *types.KnowledgeNode) error {
	if r.err != nil {
		return r.err
	}
	copied := *node
	r.nodes[node.ID] = &copied
	return nil
}

func (r *mockNodeRepo) Get(_ context.Context, id string) (*types.KnowledgeNode, error) {
	if r.err != nil {
		return nil, r.err
	}
	if n, ok := r.nodes[id]; ok {
		copied := *n
		return &copied, nil
	}
	return nil, nil
}

func (r *mockNodeRepo) ByNormalizedLabel(_ context.Context, nodeType types.NodeType, normalized string) (*types.KnowledgeNode, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, n := range r.nodes {
		if n.Type == nodeType && n.NormalizedLabel == normalized {
			copied := *n
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *mockNodeRepo) ByIDs(_ context.Context, ids []string) ([]types.KnowledgeNode, error) {
	if r.err != nil {
		return nil, r.err
	}
	var matched []types.KnowledgeNode
	for _, id := range ids {
		if n, ok := r.nodes[id]; ok {
			matched = append(matched, *n)
		}
	}
	return matched, nil
}

func (r *mockNodeRepo) Save(_ context.Context, node *types.KnowledgeNode) error {
	if r.err != nil {
		return r.err
	}
	copied := *node
	r.nodes[node.ID] = &copied
	return nil
}

func (r *mockNodeRepo) Delete(_ context.Context, id string) error {
	if r.err != nil {
		return r.err
	}
	delete(r.nodes, id)
	return nil
}

type mockEdgeRepo struct {
	edges map[string]*types.KnowledgeEdge
	err   error
}

func newMockEdgeRepo() *mockEdgeRepo {
	return &mockEdgeRepo{edges: make(map[string]*types.KnowledgeEdge)}
}

func (r *mockEdgeRepo) Create(_ context.Context, edge *types.KnowledgeEdge) error {
	if r.err != nil {
		return r.err
	}
	copied := *edge
	r.edges[edge.ID] = &copied
	return nil
}

func (r *mockEdgeRepo) Get(_ context.Context, id string) (*types.KnowledgeEdge, error) {
	if r.err != nil {
		return nil, r.err
	}
	if e, ok := r.edges[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (r *mockEdgeRepo) Save(_ context.Context, edge *types.KnowledgeEdge) error {
	if r.err != nil {
		return r.err
	}
	copied := *edge
	r.edges[edge.ID] = &copied
	return nil
}

func (r *mockEdgeRepo) Touching(_ context.Context, nodeID string) ([]types.KnowledgeEdge, error) {
	if r.err != nil {
		return nil, r.err
	}
	var matched []types.KnowledgeEdge
	for _, e := range r.edges {
		if e.SourceID == nodeID || e.TargetID == nodeID {
			matched = append(matched, *e)
		}
	}
	return matched, nil
}

type mockProfileRepo struct {
	profile *types.UserReadingProfile
	err     error
	saves   int
}

func (r *mockProfileRepo) Get(_ context.Context) (*types.UserReadingProfile, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.profile == nil {
		return &types.UserReadingProfile{
			ResponseLength: types.ResponseBalanced,
			ReadingPace:    types.PaceSteady,
		}, nil
	}
	copied := *r.profile
	return &copied, nil
}

func (r *mockProfileRepo) Save(_ context.Context, profile *types.UserReadingProfile) error {
	if r.err != nil {
		return r.err
	}
	copied := *profile
	r.profile = &copied
	r.saves++
	return nil
}

type mockInsightRepo struct {
	insights []types.BookInsight
	err      error
}

func (r *mockInsightRepo) Create(_ context.Context, insight *types.BookInsight) error {
	if r.err != nil {
		return r.err
	}
	r.insights = append(r.insights, *insight)
	return nil
}

func (r *mockInsightRepo) TopByImportance(_ context.Context, bookID string, limit int) ([]types.BookInsight, error) {
	if r.err != nil {
		return nil, r.err
	}
	var matched []types.BookInsight
	for _, i := range r.insights {
		if bookID == "" || i.BookID == bookID {
			matched = append(matched, i)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Importance > matched[j].Importance })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type mockRefResolver struct {
	notes  map[string]types.NoteRef
	quotes map[string]types.QuoteRef
}

func (r *mockRefResolver) Notes(_ context.Context, ids []string) ([]types.NoteRef, error) {
	var matched []types.NoteRef
	for _, id := range ids {
		if n, ok := r.notes[id]; ok {
			matched = append(matched, n)
		}
	}
	return matched, nil
}

func (r *mockRefResolver) Quotes(_ context.Context, ids []string) ([]types.QuoteRef, error) {
	var matched []types.QuoteRef
	for _, id := range ids {
		if q, ok := r.quotes[id]; ok {
			matched = append(matched, q)
		}
	}
	return matched, nil
}

type mockGenerator struct {
	response string
	err      error
	prompts  []string
}

func (g *mockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (e *mockEmbedder) EmbedDocument(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}
