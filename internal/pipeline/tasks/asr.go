package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// ASRTask transcribes each ingested video. The video fps rides along in the
// request metadata so the service can report frame-aligned token bounds.
type ASRTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	client  *clients.ASRClient
}

func NewASRTask(log *logger.Logger, visitor *artifact.Visitor, client *clients.ASRClient) *ASRTask {
	return &ASRTask{log: log, visitor: visitor, client: client}
}

func (t *ASRTask) Name() string { return "ASRProcessingTask" }

func (t *ASRTask) Preprocess(ctx context.Context, videos []artifact.Video) ([]artifact.ASR, error) {
	out := make([]artifact.ASR, 0, len(videos))
	for _, v := range videos {
		out = append(out, artifact.ASR{
			VideoID:        v.VideoID,
			VideoURL:       v.VideoURL,
			VideoExtension: v.Extension,
			VideoFPS:       v.FPS,
			Task:           t.Name(),
			UserBucket:     v.UserBucket,
		})
	}
	return out, nil
}

func (t *ASRTask) Execute(ctx context.Context, items []artifact.ASR, yield func(artifact.ASR, []byte) error) error {
	for _, item := range items {
		exists, err := t.visitor.Exists(ctx, item)
		if err != nil {
			return err
		}
		if exists {
			t.log.Info("Transcript already persisted, skipping", "video_id", item.VideoID)
			if err := yield(item, nil); err != nil {
				return err
			}
			continue
		}

		resp, err := t.client.Invoke(ctx, clients.TranscribeRequest{
			VideoMinioURL: item.VideoURL,
			Metadata: map[string]any{
				"video_id": item.VideoID,
				"fps":      item.VideoFPS,
			},
		})
		if err != nil {
			return fmt.Errorf("transcription for %s: %w", item.VideoID, err)
		}

		payload, err := json.Marshal(resp.Result)
		if err != nil {
			return fmt.Errorf("encode transcript for %s: %w", item.VideoID, err)
		}
		t.log.Info("Transcript produced",
			"video_id", item.VideoID,
			"tokens", len(resp.Result.Tokens),
			"audio_seconds", resp.Result.AudioDurationSeconds)
		if err := yield(item, payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *ASRTask) Postprocess(ctx context.Context, item artifact.ASR, payload []byte) (artifact.ASR, error) {
	if payload == nil {
		return item, nil
	}
	var transcript artifact.Transcript
	if err := json.Unmarshal(payload, &transcript); err != nil {
		return item, fmt.Errorf("decode transcript for %s: %w", item.VideoID, err)
	}
	if _, err := t.visitor.PersistASR(ctx, item, transcript); err != nil {
		return item, err
	}
	return item, nil
}
