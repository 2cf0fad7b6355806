package clients

import (
	"context"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
)

// ImageEmbedRequest embeds a batch of base64 images, or a batch of texts
// through the same dual encoder. Exactly one of the two inputs is set.
type ImageEmbedRequest struct {
	ImageBase64 []string       `json:"image_base64,omitempty"`
	TextInput   []string       `json:"text_input,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

// ImageEmbedResponse returns vectors in input order, L2-normalised by the
// encoder service.
type ImageEmbedResponse struct {
	ImageEmbeddings [][]float32    `json:"image_embeddings,omitempty"`
	TextEmbeddings  [][]float32    `json:"text_embeddings,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	Status          string         `json:"status"`
}

type ImageEmbedClient struct {
	*BaseClient
}

func NewImageEmbedClient(log *logger.Logger, reg registry.Registry, cfg Config) *ImageEmbedClient {
	return &ImageEmbedClient{newBase(log, "service-image-embedding", "/image-embedding", reg, cfg)}
}

func (c *ImageEmbedClient) Invoke(ctx context.Context, req ImageEmbedRequest) (ImageEmbedResponse, error) {
	var resp ImageEmbedResponse
	if err := c.invoke(ctx, req, &resp); err != nil {
		return ImageEmbedResponse{}, err
	}
	return resp, nil
}
