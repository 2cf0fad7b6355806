package clients

import (
	"context"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
)

// TranscribeRequest asks the ASR service to transcribe one video. The fps
// in the metadata lets the service report frame-aligned token boundaries.
type TranscribeRequest struct {
	VideoMinioURL string         `json:"video_minio_url"`
	Metadata      map[string]any `json:"metadata"`
	Config        map[string]any `json:"config,omitempty"`
}

type TranscribeResponse struct {
	Result artifact.Transcript `json:"result"`
	Status string              `json:"status"`
}

type ASRClient struct {
	*BaseClient
}

func NewASRClient(log *logger.Logger, reg registry.Registry, cfg Config) *ASRClient {
	return &ASRClient{newBase(log, "service-asr", "/asr", reg, cfg)}
}

func (c *ASRClient) Invoke(ctx context.Context, req TranscribeRequest) (TranscribeResponse, error) {
	var resp TranscribeResponse
	if err := c.invoke(ctx, req, &resp); err != nil {
		return TranscribeResponse{}, err
	}
	return resp, nil
}
