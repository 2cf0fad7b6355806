package clients

import (
	"context"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
)

// CaptionRequest carries a prompt plus zero or more base64 frames for the
// vision-language service.
type CaptionRequest struct {
	Prompt      string         `json:"prompt"`
	ImageBase64 []string       `json:"image_base64"`
	Metadata    map[string]any `json:"metadata"`
}

type CaptionResponse struct {
	Answer       string `json:"answer"`
	ModelName    string `json:"model_name"`
	Status       string `json:"status"`
	InputTokens  *int   `json:"input_tokens,omitempty"`
	OutputTokens *int   `json:"output_tokens,omitempty"`
}

type LLMClient struct {
	*BaseClient
}

func NewLLMClient(log *logger.Logger, reg registry.Registry, cfg Config) *LLMClient {
	return &LLMClient{newBase(log, "service-llm", "/llm", reg, cfg)}
}

func (c *LLMClient) Invoke(ctx context.Context, req CaptionRequest) (CaptionResponse, error) {
	var resp CaptionResponse
	if err := c.invoke(ctx, req, &resp); err != nil {
		return CaptionResponse{}, err
	}
	return resp, nil
}
