package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// Embedder computes text embeddings through the embeddings endpoint.
type Embedder struct {
	client openai.Client
	model  string
}

// NewEmbedder returns an Embedder for model on the same endpoint as cfg.
func NewEmbedder(cfg Config, model string) (*Embedder, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("reasoning: embedding model required")
	}
	return &Embedder{
		client: openai.NewClient(requestOptions(cfg)...),
		model:  model,
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning: embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("reasoning: embedding response has no data")
	}

	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
