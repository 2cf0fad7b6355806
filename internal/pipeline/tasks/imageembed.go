package tasks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// ImageEmbedTask embeds each extracted frame with the dual encoder service,
// batching requests and keeping vectors aligned with input order.
type ImageEmbedTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	client  *clients.ImageEmbedClient
	cfg     config.EmbeddingConfig
}

func NewImageEmbedTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, client *clients.ImageEmbedClient, cfg config.EmbeddingConfig) *ImageEmbedTask {
	return &ImageEmbedTask{log: log, visitor: visitor, blobs: blobs, client: client, cfg: cfg}
}

func (t *ImageEmbedTask) Name() string { return "ImageEmbeddingTask" }

func (t *ImageEmbedTask) Preprocess(ctx context.Context, images []artifact.Image) ([]artifact.ImageEmbedding, error) {
	out := make([]artifact.ImageEmbedding, 0, len(images))
	for _, img := range images {
		out = append(out, artifact.ImageEmbedding{
			Timestamp:  img.Timestamp,
			FrameIndex: img.FrameIndex,
			VideoID:    img.VideoID,
			VideoFPS:   img.VideoFPS,
			UserBucket: img.UserBucket,
			ImageURL:   img.BlobURL(),
			Extension:  img.Extension,
			ImageID:    img.ID(),
		})
	}
	return out, nil
}

func (t *ImageEmbedTask) Execute(ctx context.Context, items []artifact.ImageEmbedding, yield func(artifact.ImageEmbedding, []byte) error) error {
	var pending []artifact.ImageEmbedding
	var images []string

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		resp, err := t.client.Invoke(ctx, clients.ImageEmbedRequest{
			ImageBase64: images,
			Metadata:    map[string]any{"batch_size": len(images)},
		})
		if err != nil {
			return fmt.Errorf("embed %d frames: %w", len(images), err)
		}
		if len(resp.ImageEmbeddings) != len(pending) {
			return fmt.Errorf("embed batch size mismatch: sent %d, got %d", len(pending), len(resp.ImageEmbeddings))
		}
		for i, item := range pending {
			payload, err := json.Marshal(resp.ImageEmbeddings[i])
			if err != nil {
				return fmt.Errorf("encode embedding for frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
			}
			if err := yield(item, payload); err != nil {
				return err
			}
		}
		pending = pending[:0]
		images = images[:0]
		return nil
	}

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
		pending = append(pending, item)
		images = append(images, base64.StdEncoding.EncodeToString(raw))

		if len(pending) >= t.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (t *ImageEmbedTask) Postprocess(ctx context.Context, item artifact.ImageEmbedding, payload []byte) (artifact.ImageEmbedding, error) {
	if payload == nil {
		return item, nil
	}
	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		return item, fmt.Errorf("decode embedding for frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
	}
	if _, err := t.visitor.PersistEmbedding(ctx, item, vector); err != nil {
		return item, err
	}
	return item, nil
}
