package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGoogleModel = "text-embedding-004"

// GoogleEmbedder calls the Gemini embedContent API.
type GoogleEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGoogleEmbedder creates a Gemini embedder.
func NewGoogleEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GoogleEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return NewGoogleEmbedderWithClient(client, model, dimensions), nil
}

// NewGoogleEmbedderWithClient reuses an existing genai client.
func NewGoogleEmbedderWithClient(client *genai.Client, model string, dimensions int) *GoogleEmbedder {
	if model == "" {
		model = defaultGoogleModel
	}
	return &GoogleEmbedder{client: client, model: model, dimensions: dimensions}
}

func (e *GoogleEmbedder) Name() string    { return "google/" + e.model }
func (e *GoogleEmbedder) Dimensions() int { return e.dimensions }

// Embed returns the normalized embedding of text.
func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.dimensions > 0 {
		d := int32(e.dimensions)
		cfg.OutputDimensionality = &d
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("google embeddings error: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("google returned no embeddings")
	}

	vec := resp.Embeddings[0].Values
	if err := checkDimensions(e.Name(), vec, e.dimensions); err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}
