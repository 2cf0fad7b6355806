package clients

import (
	"context"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
)

type TextEmbedRequest struct {
	Texts    []string       `json:"texts"`
	Metadata map[string]any `json:"metadata"`
}

// TextEmbedResponse returns one vector per input text, in input order.
type TextEmbedResponse struct {
	Embeddings [][]float32    `json:"embeddings"`
	Texts      []string       `json:"texts"`
	Metadata   map[string]any `json:"metadata"`
	Status     string         `json:"status"`
}

type TextEmbedClient struct {
	*BaseClient
}

func NewTextEmbedClient(log *logger.Logger, reg registry.Registry, cfg Config) *TextEmbedClient {
	return &TextEmbedClient{newBase(log, "service-text-embedding", "/text-embedding", reg, cfg)}
}

func (c *TextEmbedClient) Invoke(ctx context.Context, req TextEmbedRequest) (TextEmbedResponse, error) {
	var resp TextEmbedResponse
	if err := c.invoke(ctx, req, &resp); err != nil {
		return TextEmbedResponse{}, err
	}
	return resp, nil
}
