package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/types"
)

// knowledgeNodeModel maps to the knowledge_nodes table.
type knowledgeNodeModel struct {
	ID                string `gorm:"primaryKey"`
	Type              string `gorm:"index:idx_nodes_type_label"`
	Label             string
	NormalizedLabel   string `gorm:"index:idx_nodes_type_label"`
	Importance        int
	MentionCount      int
	IsUserHighlighted bool
	// Embedding stores the optional semantic vector.
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	BookIDs   json.RawMessage  `gorm:"type:jsonb"`
	NoteIDs   json.RawMessage  `gorm:"type:jsonb"`
	QuoteIDs  json.RawMessage  `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (knowledgeNodeModel) TableName() string {
	return "knowledge_nodes"
}

// knowledgeEdgeModel maps to the knowledge_edges table. Edges reference
// endpoint ids rather than owning rows, so cascade delete is an explicit
// sweep by endpoint inside the node delete transaction.
type knowledgeEdgeModel struct {
	ID              string `gorm:"primaryKey"`
	SourceID        string `gorm:"index"`
	TargetID        string `gorm:"index"`
	Relation        string
	Weight          float64
	Confidence      float64
	OccurrenceCount int
	Evidence        json.RawMessage `gorm:"type:jsonb"`
	NoteIDs         json.RawMessage `gorm:"type:jsonb"`
	QuoteIDs        json.RawMessage `gorm:"type:jsonb"`
	IsUserCreated   bool
	CreatedAt       time.Time
}

func (knowledgeEdgeModel) TableName() string {
	return "knowledge_edges"
}

// NodeRepo accesses knowledge node data.
type NodeRepo struct {
	db *gorm.DB
}

// NewNodeRepo returns a NodeRepo.
func NewNodeRepo(db *gorm.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

func (r *NodeRepo) Create(ctx context.Context, node *types.KnowledgeNode) error {
	record, err := nodeToModel(node)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

func (r *NodeRepo) Get(ctx context.Context, id string) (*types.KnowledgeNode, error) {
	var records []knowledgeNodeModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	result := nodeFromModel(records[0])
	return &result, nil
}

func (r *NodeRepo) ByNormalizedLabel(ctx context.Context, nodeType types.NodeType, normalized string) (*types.KnowledgeNode, error) {
	var records []knowledgeNodeModel
	if err := r.db.WithContext(ctx).
		Where("type = ?", string(nodeType)).
		Where("normalized_label = ?", normalized).
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query node by label: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	result := nodeFromModel(records[0])
	return &result, nil
}

func (r *NodeRepo) ByIDs(ctx context.Context, ids []string) ([]types.KnowledgeNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []knowledgeNodeModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}

	results := make([]types.KnowledgeNode, 0, len(records))
	for _, record := range records {
		results = append(results, nodeFromModel(record))
	}
	return results, nil
}

func (r *NodeRepo) Save(ctx context.Context, node *types.KnowledgeNode) error {
	record, err := nodeToModel(node)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to save node: %w", err)
	}
	return nil
}

// Delete removes the node and every edge touching it in one transaction, so
// no dangling edge endpoint can be observed.
func (r *NodeRepo) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("source_id = ? OR target_id = ?", id, id).
			Delete(&knowledgeEdgeModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete edges for node: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&knowledgeNodeModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete node: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("node delete transaction failed: %w", err)
	}
	return nil
}

// EdgeRepo accesses knowledge edge data.
type EdgeRepo struct {
	db *gorm.DB
}

// NewEdgeRepo returns an EdgeRepo.
func NewEdgeRepo(db *gorm.DB) *EdgeRepo {
	return &EdgeRepo{db: db}
}

func (r *EdgeRepo) Create(ctx context.Context, edge *types.KnowledgeEdge) error {
	record, err := edgeToModel(edge)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

func (r *EdgeRepo) Get(ctx context.Context, id string) (*types.KnowledgeEdge, error) {
	var records []knowledgeEdgeModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query edge: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	result := edgeFromModel(records[0])
	return &result, nil
}

func (r *EdgeRepo) Save(ctx context.Context, edge *types.KnowledgeEdge) error {
	record, err := edgeToModel(edge)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to save edge: %w", err)
	}
	return nil
}

func (r *EdgeRepo) Touching(ctx context.Context, nodeID string) ([]types.KnowledgeEdge, error) {
	var records []knowledgeEdgeModel
	if err := r.db.WithContext(ctx).
		Where("source_id = ? OR target_id = ?", nodeID, nodeID).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}

	results := make([]types.KnowledgeEdge, 0, len(records))
	for _, record := range records {
		results = append(results, edgeFromModel(record))
	}
	return results, nil
}

func nodeToModel(node *types.KnowledgeNode) (*knowledgeNodeModel, error) {
	var vector *pgvector.Vector
	if len(node.Embedding) > 0 {
		v := pgvector.NewVector(node.Embedding)
		vector = &v
	}
	bookIDs, err := marshalJSON(node.BookIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node book refs: %w", err)
	}
	noteIDs, err := marshalJSON(node.NoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node note refs: %w", err)
	}
	quoteIDs, err := marshalJSON(node.QuoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node quote refs: %w", err)
	}
	return &knowledgeNodeModel{
		ID:                node.ID,
		Type:              string(node.Type),
		Label:             node.Label,
		NormalizedLabel:   node.NormalizedLabel,
		Importance:        types.ClampImportance(node.Importance),
		MentionCount:      node.MentionCount,
		IsUserHighlighted: node.IsUserHighlighted,
		Embedding:         vector,
		BookIDs:           bookIDs,
		NoteIDs:           noteIDs,
		QuoteIDs:          quoteIDs,
		CreatedAt:         node.CreatedAt,
	}, nil
}

func nodeFromModel(model knowledgeNodeModel) types.KnowledgeNode {
	var bookIDs, noteIDs, quoteIDs []string
	_ = unmarshalJSON(model.BookIDs, &bookIDs)
	_ = unmarshalJSON(model.NoteIDs, &noteIDs)
	_ = unmarshalJSON(model.QuoteIDs, &quoteIDs)
	var embedding []float32
	if model.Embedding != nil {
		embedding = model.Embedding.Slice()
	}
	return types.KnowledgeNode{
		ID:                model.ID,
		Type:              types.NodeType(model.Type),
		Label:             model.Label,
		NormalizedLabel:   model.NormalizedLabel,
		Importance:        model.Importance,
		MentionCount:      model.MentionCount,
		IsUserHighlighted: model.IsUserHighlighted,
		Embedding:         embedding,
		BookIDs:           bookIDs,
		NoteIDs:           noteIDs,
		QuoteIDs:          quoteIDs,
		CreatedAt:         model.CreatedAt,
	}
}

func edgeToModel(edge *types.KnowledgeEdge) (*knowledgeEdgeModel, error) {
	evidence, err := marshalJSON(edge.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge evidence: %w", err)
	}
	noteIDs, err := marshalJSON(edge.NoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge note refs: %w", err)
	}
	quoteIDs, err := marshalJSON(edge.QuoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge quote refs: %w", err)
	}
	return &knowledgeEdgeModel{
		ID:              edge.ID,
		SourceID:        edge.SourceID,
		TargetID:        edge.TargetID,
		Relation:        string(edge.Relation),
		Weight:          types.ClampUnit(edge.Weight),
		Confidence:      types.ClampUnit(edge.Confidence),
		OccurrenceCount: edge.OccurrenceCount,
		Evidence:        evidence,
		NoteIDs:         noteIDs,
		QuoteIDs:        quoteIDs,
		IsUserCreated:   edge.IsUserCreated,
		CreatedAt:       edge.CreatedAt,
	}, nil
}

func edgeFromModel(model knowledgeEdgeModel) types.KnowledgeEdge {
	var evidence, noteIDs, quoteIDs []string
	_ = unmarshalJSON(model.Evidence, &evidence)
	_ = unmarshalJSON(model.NoteIDs, &noteIDs)
	_ = unmarshalJSON(model.QuoteIDs, &quoteIDs)
	return types.KnowledgeEdge{
		ID:              model.ID,
		SourceID:        model.SourceID,
		TargetID:        model.TargetID,
		Relation:        types.RelationType(model.Relation),
		Weight:          model.Weight,
		Confidence:      model.Confidence,
		OccurrenceCount: model.OccurrenceCount,
		Evidence:        evidence,
		NoteIDs:         noteIDs,
		QuoteIDs:        quoteIDs,
		IsUserCreated:   model.IsUserCreated,
		CreatedAt:       model.CreatedAt,
	}
}
