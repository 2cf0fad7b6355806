package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// textEmbedBatcher accumulates caption texts and flushes them to the text
// encoder in fixed-size batches, yielding one vector payload per item in
// input order.
type textEmbedBatcher[T any] struct {
	client    *clients.TextEmbedClient
	batchSize int
	yield     func(T, []byte) error
	pending   []T
	texts     []string
}

func (b *textEmbedBatcher[T]) add(ctx context.Context, item T, text string) error {
	b.pending = append(b.pending, item)
	b.texts = append(b.texts, text)
	if len(b.pending) >= b.batchSize {
		return b.flush(ctx)
	}
	return nil
}

func (b *textEmbedBatcher[T]) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	resp, err := b.client.Invoke(ctx, clients.TextEmbedRequest{
		Texts:    b.texts,
		Metadata: map[string]any{"batch_size": len(b.texts)},
	})
	if err != nil {
		return fmt.Errorf("embed %d texts: %w", len(b.texts), err)
	}
	if len(resp.Embeddings) != len(b.pending) {
		return fmt.Errorf("embed batch size mismatch: sent %d, got %d", len(b.pending), len(resp.Embeddings))
	}
	for i, item := range b.pending {
		payload, err := json.Marshal(resp.Embeddings[i])
		if err != nil {
			return fmt.Errorf("encode text embedding: %w", err)
		}
		if err := b.yield(item, payload); err != nil {
			return err
		}
	}
	b.pending = b.pending[:0]
	b.texts = b.texts[:0]
	return nil
}

// TextCaptionEmbedTask embeds each frame caption.
type TextCaptionEmbedTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	client  *clients.TextEmbedClient
	cfg     config.EmbeddingConfig
}

func NewTextCaptionEmbedTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, client *clients.TextEmbedClient, cfg config.EmbeddingConfig) *TextCaptionEmbedTask {
	return &TextCaptionEmbedTask{log: log, visitor: visitor, blobs: blobs, client: client, cfg: cfg}
}

func (t *TextCaptionEmbedTask) Name() string { return "TextImageCaptionEmbeddingTask" }

func (t *TextCaptionEmbedTask) Preprocess(ctx context.Context, captions []artifact.ImageCaption) ([]artifact.TextCaptionEmbedding, error) {
	out := make([]artifact.TextCaptionEmbedding, 0, len(captions))
	for _, cap := range captions {
		out = append(out, artifact.TextCaptionEmbedding{
			Timestamp:  cap.Timestamp,
			FrameFPS:   cap.VideoFPS,
			FrameIndex: cap.FrameIndex,
			VideoID:    cap.VideoID,
			CaptionURL: cap.BlobURL(),
			UserBucket: cap.UserBucket,
			CaptionID:  cap.ID(),
			ImageURL:   cap.ImageURL,
		})
	}
	return out, nil
}

func (t *TextCaptionEmbedTask) Execute(ctx context.Context, items []artifact.TextCaptionEmbedding, yield func(artifact.TextCaptionEmbedding, []byte) error) error {
	batcher := &textEmbedBatcher[artifact.TextCaptionEmbedding]{
		client:    t.client,
		batchSize: t.cfg.BatchSize,
		yield:     yield,
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

		var payload artifact.ImageCaptionPayload
		if err := fetchJSONURL(ctx, t.blobs, item.CaptionURL, &payload); err != nil {
			return fmt.Errorf("load caption for frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
		}
		if err := batcher.add(ctx, item, payload.Caption); err != nil {
			return err
		}
	}
	return batcher.flush(ctx)
}

func (t *TextCaptionEmbedTask) Postprocess(ctx context.Context, item artifact.TextCaptionEmbedding, payload []byte) (artifact.TextCaptionEmbedding, error) {
	if payload == nil {
		return item, nil
	}
	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		return item, fmt.Errorf("decode embedding for caption %s: %w", item.CaptionID, err)
	}
	if _, err := t.visitor.PersistEmbedding(ctx, item, vector); err != nil {
		return item, err
	}
	return item, nil
}

// SegmentCaptionEmbedTask embeds each segment caption.
type SegmentCaptionEmbedTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	client  *clients.TextEmbedClient
	cfg     config.EmbeddingConfig
}

func NewSegmentCaptionEmbedTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, client *clients.TextEmbedClient, cfg config.EmbeddingConfig) *SegmentCaptionEmbedTask {
	return &SegmentCaptionEmbedTask{log: log, visitor: visitor, blobs: blobs, client: client, cfg: cfg}
}

func (t *SegmentCaptionEmbedTask) Name() string { return "TextCaptionSegmentEmbeddingTask" }

func (t *SegmentCaptionEmbedTask) Preprocess(ctx context.Context, captions []artifact.SegmentCaption) ([]artifact.SegmentCaptionEmbedding, error) {
	out := make([]artifact.SegmentCaptionEmbedding, 0, len(captions))
	for _, cap := range captions {
		out = append(out, artifact.SegmentCaptionEmbedding{
			VideoFPS:          cap.VideoFPS,
			VideoID:           cap.VideoID,
			StartFrame:        cap.StartFrame,
			EndFrame:          cap.EndFrame,
			StartTime:         cap.StartTimestamp,
			EndTime:           cap.EndTimestamp,
			SegmentCaptionURL: cap.BlobURL(),
			UserBucket:        cap.UserBucket,
			SegmentCaptionID:  cap.ID(),
		})
	}
	return out, nil
}

func (t *SegmentCaptionEmbedTask) Execute(ctx context.Context, items []artifact.SegmentCaptionEmbedding, yield func(artifact.SegmentCaptionEmbedding, []byte) error) error {
	batcher := &textEmbedBatcher[artifact.SegmentCaptionEmbedding]{
		client:    t.client,
		batchSize: t.cfg.BatchSize,
		yield:     yield,
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

		var payload artifact.SegmentCaptionPayload
		if err := fetchJSONURL(ctx, t.blobs, item.SegmentCaptionURL, &payload); err != nil {
			return fmt.Errorf("load caption for segment %d_%d of %s: %w", item.StartFrame, item.EndFrame, item.VideoID, err)
		}
		if err := batcher.add(ctx, item, payload.Caption); err != nil {
			return err
		}
	}
	return batcher.flush(ctx)
}

func (t *SegmentCaptionEmbedTask) Postprocess(ctx context.Context, item artifact.SegmentCaptionEmbedding, payload []byte) (artifact.SegmentCaptionEmbedding, error) {
	if payload == nil {
		return item, nil
	}
	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		return item, fmt.Errorf("decode embedding for segment caption %s: %w", item.SegmentCaptionID, err)
	}
	if _, err := t.visitor.PersistEmbedding(ctx, item, vector); err != nil {
		return item, err
	}
	return item, nil
}
