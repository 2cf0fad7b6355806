package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// AutoshotTask detects shot boundaries for each ingested video.
type AutoshotTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	client  *clients.AutoshotClient
}

func NewAutoshotTask(log *logger.Logger, visitor *artifact.Visitor, client *clients.AutoshotClient) *AutoshotTask {
	return &AutoshotTask{log: log, visitor: visitor, client: client}
}

func (t *AutoshotTask) Name() string { return "AutoshotTask" }

func (t *AutoshotTask) Preprocess(ctx context.Context, videos []artifact.Video) ([]artifact.Autoshot, error) {
	shots := make([]artifact.Autoshot, 0, len(videos))
	for _, v := range videos {
		shots = append(shots, artifact.Autoshot{
			VideoID:        v.VideoID,
			VideoURL:       v.VideoURL,
			VideoExtension: v.Extension,
			VideoFPS:       v.FPS,
			Task:           t.Name(),
			UserBucket:     v.UserBucket,
		})
	}
	return shots, nil
}

func (t *AutoshotTask) Execute(ctx context.Context, items []artifact.Autoshot, yield func(artifact.Autoshot, []byte) error) error {
	for _, item := range items {
		exists, err := t.visitor.Exists(ctx, item)
		if err != nil {
			return err
		}
		if exists {
			t.log.Info("Shot boundaries already persisted, skipping", "video_id", item.VideoID)
			if err := yield(item, nil); err != nil {
				return err
			}
			continue
		}

		resp, err := t.client.Invoke(ctx, clients.ShotDetectRequest{
			S3MinioURL: item.VideoURL,
			Metadata:   map[string]any{"video_id": item.VideoID},
		})
		if err != nil {
			return fmt.Errorf("shot detection for %s: %w", item.VideoID, err)
		}

		segments := make([]artifact.Segment, 0, len(resp.Scenes))
		for _, scene := range resp.Scenes {
			segments = append(segments, artifact.Segment{StartFrame: scene[0], EndFrame: scene[1]})
		}
		payload, err := json.Marshal(segments)
		if err != nil {
			return fmt.Errorf("encode segments for %s: %w", item.VideoID, err)
		}
		t.log.Info("Shot boundaries detected", "video_id", item.VideoID, "total", len(segments))
		if err := yield(item, payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *AutoshotTask) Postprocess(ctx context.Context, item artifact.Autoshot, payload []byte) (artifact.Autoshot, error) {
	if payload == nil {
		return item, nil
	}
	var segments []artifact.Segment
	if err := json.Unmarshal(payload, &segments); err != nil {
		return item, fmt.Errorf("decode segments for %s: %w", item.VideoID, err)
	}
	if _, err := t.visitor.PersistAutoshot(ctx, item, segments); err != nil {
		return item, err
	}
	return item, nil
}
