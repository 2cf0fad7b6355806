package clients

import (
	"context"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
)

// ShotDetectRequest asks the shot boundary service to segment one video.
type ShotDetectRequest struct {
	S3MinioURL string         `json:"s3_minio_url"`
	Metadata   map[string]any `json:"metadata"`
}

type ShotDetectResponse struct {
	Scenes      [][2]int64 `json:"scenes"`
	TotalScenes int        `json:"total_scenes"`
	Status      string     `json:"status"`
}

type AutoshotClient struct {
	*BaseClient
}

func NewAutoshotClient(log *logger.Logger, reg registry.Registry, cfg Config) *AutoshotClient {
	return &AutoshotClient{newBase(log, "autoshot-service", "/autoshot", reg, cfg)}
}

func (c *AutoshotClient) Invoke(ctx context.Context, req ShotDetectRequest) (ShotDetectResponse, error) {
	var resp ShotDetectResponse
	if err := c.invoke(ctx, req, &resp); err != nil {
		return ShotDetectResponse{}, err
	}
	return resp, nil
}
