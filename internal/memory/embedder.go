package memory

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const embeddingDimensions = 768

// GenAIEmbedder produces node embeddings through the Gemini embedding API.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder creates the Gemini-backed embedder.
func NewGenAIEmbedder(ctx context.Context, apiKey, modelName string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required for embeddings")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEmbedder{client: client, model: modelName}, nil
}

// EmbedDocument embeds text for storage alongside a knowledge node.
func (e *GenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: func() *int32 { v := int32(embeddingDimensions); return &v }(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding response")
	}
	values := resp.Embeddings[0].Values
	if len(values) == embeddingDimensions {
		return values, nil
	}
	if len(values) > embeddingDimensions {
		slog.Warn("embedding dimensions exceed target, truncating", "actual", len(values), "target", embeddingDimensions, "model", e.model)
		return values[:embeddingDimensions], nil
	}
	return nil, fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), embeddingDimensions)
}
