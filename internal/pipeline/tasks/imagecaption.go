package tasks

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// ImageCaptionTask captions each extracted frame with the vision-language
// service.
type ImageCaptionTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	client  *clients.LLMClient
	cfg     config.CaptionConfig
}

func NewImageCaptionTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, client *clients.LLMClient, cfg config.CaptionConfig) *ImageCaptionTask {
	return &ImageCaptionTask{log: log, visitor: visitor, blobs: blobs, client: client, cfg: cfg}
}

func (t *ImageCaptionTask) Name() string { return "ImageCaptionLLMTask" }

func (t *ImageCaptionTask) Preprocess(ctx context.Context, images []artifact.Image) ([]artifact.ImageCaption, error) {
	captions := make([]artifact.ImageCaption, 0, len(images))
	for _, img := range images {
		captions = append(captions, artifact.ImageCaption{
			FrameIndex: img.FrameIndex,
			Timestamp:  img.Timestamp,
			VideoID:    img.VideoID,
			VideoFPS:   img.VideoFPS,
			Extension:  img.Extension,
			UserBucket: img.UserBucket,
			ImageURL:   img.BlobURL(),
			ImageID:    img.ID(),
		})
	}
	return captions, nil
}

func (t *ImageCaptionTask) Execute(ctx context.Context, items []artifact.ImageCaption, yield func(artifact.ImageCaption, []byte) error) error {
	for _, item := range items {
		exists, err := t.visitor.Exists(ctx, item)
		if err != nil {
			return err
		}
		if exists {
			if err := yield(item, nil); err != nil {
				return err
			}
			continue
		}

		raw, err := fetchURL(ctx, t.blobs, item.ImageURL)
		if err != nil {
			return fmt.Errorf("fetch frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
		}

		resp, err := t.client.Invoke(ctx, clients.CaptionRequest{
			Prompt:      imageCaptionPrompt,
			ImageBase64: []string{base64.StdEncoding.EncodeToString(raw)},
			Metadata: map[string]any{
				"video_id":    item.VideoID,
				"frame_index": item.FrameIndex,
			},
		})
		if err != nil {
			return fmt.Errorf("caption frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
		}
		if err := yield(item, []byte(resp.Answer)); err != nil {
			return err
		}
	}
	return nil
}

func (t *ImageCaptionTask) Postprocess(ctx context.Context, item artifact.ImageCaption, payload []byte) (artifact.ImageCaption, error) {
	if payload == nil {
		return item, nil
	}
	if _, err := t.visitor.PersistImageCaption(ctx, item, string(payload)); err != nil {
		return item, err
	}
	return item, nil
}
