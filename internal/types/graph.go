package types

import (
	"strings"
	"time"
)

// NodeType is the kind of entity a knowledge node represents.
type NodeType string

const (
	NodeBook      NodeType = "book"
	NodeCharacter NodeType = "character"
	NodeTheme     NodeType = "theme"
	NodeConcept   NodeType = "concept"
	NodeAuthor    NodeType = "author"
	NodeLocation  NodeType = "location"
	NodeQuote     NodeType = "quote"
	NodeInsight   NodeType = "insight"
)

// RelationType is the kind of relationship an edge expresses.
type RelationType string

const (
	RelationAppearsIn  RelationType = "appears_in"
	RelationRelatesTo  RelationType = "relates_to"
	RelationSymbolizes RelationType = "symbolizes"
	RelationAuthoredBy RelationType = "authored_by"
	RelationSetIn      RelationType = "set_in"
	RelationExplores   RelationType = "explores"
	RelationContrasts  RelationType = "contrasts_with"
	RelationMentions   RelationType = "mentions"
)

// VerbPhrase returns the display phrasing for the relation.
func (t RelationType) VerbPhrase() string {
	switch t {
	case RelationAppearsIn:
		return "appears in"
	case RelationRelatesTo:
		return "relates to"
	case RelationSymbolizes:
		return "symbolizes"
	case RelationAuthoredBy:
		return "was written by"
	case RelationSetIn:
		return "is set in"
	case RelationExplores:
		return "explores"
	case RelationContrasts:
		return "contrasts with"
	case RelationMentions:
		return "mentions"
	default:
		return "is connected to"
	}
}

// Bidirectional reports whether the relation reads the same in both
// directions.
func (t RelationType) Bidirectional() bool {
	switch t {
	case RelationRelatesTo, RelationContrasts:
		return true
	default:
		return false
	}
}

// maxEvidence bounds the evidence and supporting-reference lists on an edge.
const maxEvidence = 5

// KnowledgeNode is a typed entity in the knowledge graph.
type KnowledgeNode struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Label string   `json:"label"`
	// NormalizedLabel is the lower-cased, trimmed label used for matching.
	NormalizedLabel string `json:"normalized_label"`
	// Importance is in [1,5] and only ever escalates; see RecalcImportance.
	Importance        int  `json:"importance"`
	MentionCount      int  `json:"mention_count"`
	IsUserHighlighted bool `json:"is_user_highlighted"`
	// Embedding is an optional semantic vector; absence is always tolerated.
	Embedding []float32 `json:"-"`
	// Source references: books/notes/quotes that mention this entity.
	BookIDs   []string  `json:"book_ids,omitempty"`
	NoteIDs   []string  `json:"note_ids,omitempty"`
	QuoteIDs  []string  `json:"quote_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeLabel produces the matching form of a node label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// NewKnowledgeNode builds a node with first-mention defaults.
func NewKnowledgeNode(id string, nodeType NodeType, label string, now time.Time) *KnowledgeNode {
	return &KnowledgeNode{
		ID:              id,
		Type:            nodeType,
		Label:           label,
		NormalizedLabel: NormalizeLabel(label),
		Importance:      1,
		MentionCount:    1,
		CreatedAt:       now,
	}
}

// HasEmbedding reports whether a semantic vector is attached.
func (n *KnowledgeNode) HasEmbedding() bool {
	return len(n.Embedding) > 0
}

// RecalcImportance escalates importance with the mention count. It never
// lowers an importance that was raised by hand.
func (n *KnowledgeNode) RecalcImportance() {
	escalated := 1
	switch {
	case n.MentionCount >= 20:
		escalated = 5
	case n.MentionCount >= 10:
		escalated = 4
	case n.MentionCount >= 5:
		escalated = 3
	case n.MentionCount >= 2:
		escalated = 2
	}
	if escalated > n.Importance {
		n.Importance = escalated
	}
}

// EngagementScore ranks the node by how much the user has interacted with
// it. Favorite counts come from the caller because note/quote favorite flags
// live on foreign objects.
func (n *KnowledgeNode) EngagementScore(favoriteNotes, favoriteQuotes int) int {
	score := n.MentionCount + 2*(favoriteNotes+favoriteQuotes) + n.Importance
	if n.IsUserHighlighted {
		score += 5
	}
	return score
}

// KnowledgeEdge is a directed, weighted, evidenced relationship between two
// nodes. Weight and confidence stay inside [0,1] at every write.
type KnowledgeEdge struct {
	ID       string       `json:"id"`
	SourceID string       `json:"source_id"`
	TargetID string       `json:"target_id"`
	Relation RelationType `json:"relation"`
	Weight   float64      `json:"weight"`
	Confidence      float64 `json:"confidence"`
	OccurrenceCount int     `json:"occurrence_count"`
	// Evidence holds up to five supporting snippets, oldest dropped first.
	Evidence      []string `json:"evidence,omitempty"`
	NoteIDs       []string `json:"note_ids,omitempty"`
	QuoteIDs      []string `json:"quote_ids,omitempty"`
	IsUserCreated bool     `json:"is_user_created"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewKnowledgeEdge builds an edge with first-occurrence defaults.
func NewKnowledgeEdge(id, sourceID, targetID string, relation RelationType, weight, confidence float64, now time.Time) *KnowledgeEdge {
	return &KnowledgeEdge{
		ID:              id,
		SourceID:        sourceID,
		TargetID:        targetID,
		Relation:        relation,
		Weight:          ClampUnit(weight),
		Confidence:      ClampUnit(confidence),
		OccurrenceCount: 1,
		CreatedAt:       now,
	}
}

// AcceptEvidence appends a snippet unless an exact duplicate is already
// recorded. The list is capped; the oldest snippet is dropped on overflow.
// It reports whether the snippet was accepted.
func (e *KnowledgeEdge) AcceptEvidence(text string) bool {
	for _, existing := range e.Evidence {
		if existing == text {
			return false
		}
	}
	e.Evidence = append(e.Evidence, text)
	if len(e.Evidence) > maxEvidence {
		e.Evidence = e.Evidence[len(e.Evidence)-maxEvidence:]
	}
	return true
}

// AttachNote records a supporting note reference, deduplicated by identity.
func (e *KnowledgeEdge) AttachNote(noteID string) {
	e.NoteIDs = appendRef(e.NoteIDs, noteID)
}

// AttachQuote records a supporting quote reference, deduplicated by identity.
func (e *KnowledgeEdge) AttachQuote(quoteID string) {
	e.QuoteIDs = appendRef(e.QuoteIDs, quoteID)
}

func appendRef(refs []string, id string) []string {
	if id == "" {
		return refs
	}
	for _, existing := range refs {
		if existing == id {
			return refs
		}
	}
	refs = append(refs, id)
	if len(refs) > maxEvidence {
		refs = refs[len(refs)-maxEvidence:]
	}
	return refs
}

// Strength is the ranking score of the edge. It is derived on demand and
// never persisted.
func (e *KnowledgeEdge) Strength() float64 {
	occurrence := float64(e.OccurrenceCount) / 10
	if occurrence > 1 {
		occurrence = 1
	}
	strength := e.Weight*e.Confidence + occurrence*0.3
	if e.IsUserCreated {
		strength += 0.2
	}
	return strength
}
