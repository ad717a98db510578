package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/easeaico/bookmind/internal/types"
)

// evidenceWeightNudge is added to an edge's weight each time new evidence is
// accepted, clamped at 1.0.
const evidenceWeightNudge = 0.05

// Graph maintains the entity-relationship graph. Retrieval only ever needs
// 1-hop neighbor lookups and type filters, so no traversal machinery exists.
// Mutators serialize on mu; NewService points it at the service-wide writer
// lock so graph writes never interleave with other memory writes.
type Graph struct {
	nodes    NodeRepo
	edges    EdgeRepo
	refs     RefResolver
	embedder Embedder
	clock    Clock
	mu       *sync.Mutex
}

// NewGraph returns a Graph. refs and embedder may be nil; engagement scoring
// and embeddings degrade gracefully without them.
func NewGraph(nodes NodeRepo, edges EdgeRepo, refs RefResolver, embedder Embedder, clock Clock) *Graph {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Graph{nodes: nodes, edges: edges, refs: refs, embedder: embedder, clock: clock, mu: &sync.Mutex{}}
}

// FindOrCreateNode resolves a label to its node, creating it on first
// mention. Matching is by normalized label within the node type.
func (g *Graph) FindOrCreateNode(ctx context.Context, nodeType types.NodeType, label string) (*types.KnowledgeNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	normalized := types.NormalizeLabel(label)
	if normalized == "" {
		return nil, fmt.Errorf("node label cannot be empty")
	}

	existing, err := g.nodes.ByNormalizedLabel(ctx, nodeType, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up node: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	node := types.NewKnowledgeNode(uuid.NewString(), nodeType, strings.TrimSpace(label), g.clock.Now())
	if g.embedder != nil {
		vec, err := g.embedder.EmbedDocument(ctx, node.Label)
		if err != nil {
			slog.Warn("failed to embed node label", "error", err, "label", node.Label)
		} else {
			node.Embedding = vec
		}
	}
	if err := g.nodes.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return node, nil
}

// RecordMention bumps the node's mention count and re-evaluates importance.
// Importance only ever moves up.
func (g *Graph) RecordMention(ctx context.Context, node *types.KnowledgeNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node.MentionCount++
	node.RecalcImportance()
	if err := g.nodes.Save(ctx, node); err != nil {
		return fmt.Errorf("failed to save node mention: %w", err)
	}
	return nil
}

// Connect creates a new edge between two nodes with clamped weight and
// confidence.
func (g *Graph) Connect(ctx context.Context, sourceID, targetID string, relation types.RelationType, weight, confidence float64, userCreated bool) (*types.KnowledgeEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge := types.NewKnowledgeEdge(uuid.NewString(), sourceID, targetID, relation, weight, confidence, g.clock.Now())
	edge.IsUserCreated = userCreated
	if err := g.edges.Create(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to create edge: %w", err)
	}
	return edge, nil
}

// AddEvidence attaches a supporting snippet to an edge. Exact duplicates are
// rejected wholesale: the occurrence bump and weight nudge only happen when
// the snippet is accepted into the list.
func (g *Graph) AddEvidence(ctx context.Context, edge *types.KnowledgeEdge, text, noteID, quoteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if !edge.AcceptEvidence(trimmed) {
		return nil
	}

	edge.OccurrenceCount++
	edge.Weight = types.ClampUnit(edge.Weight + evidenceWeightNudge)
	edge.Confidence = types.ClampUnit(edge.Confidence)
	edge.AttachNote(noteID)
	edge.AttachQuote(quoteID)

	if err := g.edges.Save(ctx, edge); err != nil {
		return fmt.Errorf("failed to save edge evidence: %w", err)
	}
	return nil
}

// ConnectedNodes returns the 1-hop neighborhood of a node: the union of edge
// endpoints in both directions, deduplicated by identity.
func (g *Graph) ConnectedNodes(ctx context.Context, node *types.KnowledgeNode) ([]types.KnowledgeNode, error) {
	edges, err := g.edges.Touching(ctx, node.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}

	seen := map[string]bool{node.ID: true}
	var neighborIDs []string
	for _, edge := range edges {
		for _, id := range []string{edge.SourceID, edge.TargetID} {
			if !seen[id] {
				seen[id] = true
				neighborIDs = append(neighborIDs, id)
			}
		}
	}
	if len(neighborIDs) == 0 {
		return nil, nil
	}

	neighbors, err := g.nodes.ByIDs(ctx, neighborIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load neighbor nodes: %w", err)
	}
	return neighbors, nil
}

// Connects reports whether the edge joins a node of type a to a node of
// type b, in either orientation.
func (g *Graph) Connects(ctx context.Context, edge *types.KnowledgeEdge, a, b types.NodeType) (bool, error) {
	source, err := g.nodes.Get(ctx, edge.SourceID)
	if err != nil {
		return false, fmt.Errorf("failed to load edge source: %w", err)
	}
	target, err := g.nodes.Get(ctx, edge.TargetID)
	if err != nil {
		return false, fmt.Errorf("failed to load edge target: %w", err)
	}
	if source == nil || target == nil {
		return false, nil
	}
	return (source.Type == a && target.Type == b) || (source.Type == b && target.Type == a), nil
}

// Engagement computes the node's engagement score, counting favorited notes
// and quotes through the host app's resolver. Resolver failures degrade to a
// zero favorite count.
func (g *Graph) Engagement(ctx context.Context, node *types.KnowledgeNode) int {
	favoriteNotes, favoriteQuotes := 0, 0
	if g.refs != nil {
		notes, err := g.refs.Notes(ctx, node.NoteIDs)
		if err != nil {
			slog.Warn("failed to resolve note references", "error", err, "node_id", node.ID)
		}
		for _, note := range notes {
			if note.IsFavorite {
				favoriteNotes++
			}
		}
		quotes, err := g.refs.Quotes(ctx, node.QuoteIDs)
		if err != nil {
			slog.Warn("failed to resolve quote references", "error", err, "node_id", node.ID)
		}
		for _, quote := range quotes {
			if quote.IsFavorite {
				favoriteQuotes++
			}
		}
	}
	return node.EngagementScore(favoriteNotes, favoriteQuotes)
}

// DeleteNode removes a node and, in the same transaction, every edge that
// touches it.
func (g *Graph) DeleteNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.nodes.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}
