package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// VectorCollection is the vector store surface the ingest tasks need.
// *milvus.Collection satisfies it.
type VectorCollection interface {
	Name() string
	EnsureCollection(ctx context.Context) error
	ExistsBy(ctx context.Context, id, relatedVideoID, userBucket string) (bool, error)
	Insert(ctx context.Context, rows []map[string]any) (int, error)
}

// insertBatcher flushes vector rows to a collection in fixed-size batches,
// yielding each item once its row is inserted.
type insertBatcher[T any] struct {
	collection VectorCollection
	batchSize  int
	yield      func(T, []byte) error
	pending    []T
	rows       []map[string]any
}

func (b *insertBatcher[T]) add(ctx context.Context, item T, row map[string]any) error {
	b.pending = append(b.pending, item)
	b.rows = append(b.rows, row)
	if len(b.pending) >= b.batchSize {
		return b.flush(ctx)
	}
	return nil
}

func (b *insertBatcher[T]) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	if _, err := b.collection.Insert(ctx, b.rows); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(b.rows), b.collection.Name(), err)
	}
	for _, item := range b.pending {
		if err := b.yield(item, []byte("inserted")); err != nil {
			return err
		}
	}
	b.pending = b.pending[:0]
	b.rows = b.rows[:0]
	return nil
}

func fetchVector(ctx context.Context, blobs BlobReader, url string) ([]float32, error) {
	raw, err := fetchURL(ctx, blobs, url)
	if err != nil {
		return nil, err
	}
	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, fmt.Errorf("decode vector %s: %w", url, err)
	}
	return vector, nil
}

// ImageVectorIngestTask writes frame embeddings into the image collection.
type ImageVectorIngestTask struct {
	log        *logger.Logger
	blobs      BlobReader
	collection VectorCollection
	cfg        config.VectorIngestConfig
}

func NewImageVectorIngestTask(log *logger.Logger, blobs BlobReader, collection VectorCollection, cfg config.VectorIngestConfig) *ImageVectorIngestTask {
	return &ImageVectorIngestTask{log: log, blobs: blobs, collection: collection, cfg: cfg}
}

func (t *ImageVectorIngestTask) Name() string { return "ImageEmbeddingMilvusTask" }

func (t *ImageVectorIngestTask) Preprocess(ctx context.Context, items []artifact.ImageEmbedding) ([]artifact.ImageEmbedding, error) {
	return items, nil
}

func (t *ImageVectorIngestTask) Execute(ctx context.Context, items []artifact.ImageEmbedding, yield func(artifact.ImageEmbedding, []byte) error) error {
	if err := t.collection.EnsureCollection(ctx); err != nil {
		return err
	}
	batcher := &insertBatcher[artifact.ImageEmbedding]{collection: t.collection, batchSize: t.cfg.BatchSize, yield: yield}
	for _, item := range items {
		exists, err := t.collection.ExistsBy(ctx, item.ID(), item.VideoID, item.UserBucket)
		if err != nil {
			return err
		}
		if exists {
			if err := yield(item, nil); err != nil {
				return err
			}
			continue
		}

		vector, err := fetchVector(ctx, t.blobs, item.BlobURL())
		if err != nil {
			return err
		}
		row := map[string]any{
			"id":               item.ID(),
			"embedding":        vector,
			"related_video_id": item.VideoID,
			"minio_url":        item.ImageURL,
			"user_bucket":      item.UserBucket,
			"frame_index":      item.FrameIndex,
			"timestamp":        item.Timestamp,
		}
		if err := batcher.add(ctx, item, row); err != nil {
			return err
		}
	}
	return batcher.flush(ctx)
}

func (t *ImageVectorIngestTask) Postprocess(ctx context.Context, item artifact.ImageEmbedding, payload []byte) (artifact.ImageEmbedding, error) {
	return item, nil
}

// TextCaptionVectorIngestTask writes frame caption embeddings into the text
// caption collection, denormalising the caption text into each row.
type TextCaptionVectorIngestTask struct {
	log        *logger.Logger
	blobs      BlobReader
	collection VectorCollection
	cfg        config.VectorIngestConfig
}

func NewTextCaptionVectorIngestTask(log *logger.Logger, blobs BlobReader, collection VectorCollection, cfg config.VectorIngestConfig) *TextCaptionVectorIngestTask {
	return &TextCaptionVectorIngestTask{log: log, blobs: blobs, collection: collection, cfg: cfg}
}

func (t *TextCaptionVectorIngestTask) Name() string { return "TextImageCaptionMilvusTask" }

func (t *TextCaptionVectorIngestTask) Preprocess(ctx context.Context, items []artifact.TextCaptionEmbedding) ([]artifact.TextCaptionEmbedding, error) {
	return items, nil
}

func (t *TextCaptionVectorIngestTask) Execute(ctx context.Context, items []artifact.TextCaptionEmbedding, yield func(artifact.TextCaptionEmbedding, []byte) error) error {
	if err := t.collection.EnsureCollection(ctx); err != nil {
		return err
	}
	batcher := &insertBatcher[artifact.TextCaptionEmbedding]{collection: t.collection, batchSize: t.cfg.BatchSize, yield: yield}
	for _, item := range items {
		exists, err := t.collection.ExistsBy(ctx, item.ID(), item.VideoID, item.UserBucket)
		if err != nil {
			return err
		}
		if exists {
			if err := yield(item, nil); err != nil {
				return err
			}
			continue
		}

		vector, err := fetchVector(ctx, t.blobs, item.BlobURL())
		if err != nil {
			return err
		}
		var caption artifact.ImageCaptionPayload
		if err := fetchJSONURL(ctx, t.blobs, item.CaptionURL, &caption); err != nil {
			return fmt.Errorf("load caption for frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
		}
		row := map[string]any{
			"id":                item.ID(),
			"frame_index":       item.FrameIndex,
			"timestamp":         item.Timestamp,
			"related_video_id":  item.VideoID,
			"caption":           caption.Caption,
			"caption_minio_url": item.CaptionURL,
			"embedding":         vector,
			"user_bucket":       item.UserBucket,
			"image_minio_url":   item.ImageURL,
		}
		if err := batcher.add(ctx, item, row); err != nil {
			return err
		}
	}
	return batcher.flush(ctx)
}

func (t *TextCaptionVectorIngestTask) Postprocess(ctx context.Context, item artifact.TextCaptionEmbedding, payload []byte) (artifact.TextCaptionEmbedding, error) {
	return item, nil
}

// SegmentCaptionVectorIngestTask writes segment caption embeddings into the
// segment collection.
type SegmentCaptionVectorIngestTask struct {
	log        *logger.Logger
	blobs      BlobReader
	collection VectorCollection
	cfg        config.VectorIngestConfig
}

func NewSegmentCaptionVectorIngestTask(log *logger.Logger, blobs BlobReader, collection VectorCollection, cfg config.VectorIngestConfig) *SegmentCaptionVectorIngestTask {
	return &SegmentCaptionVectorIngestTask{log: log, blobs: blobs, collection: collection, cfg: cfg}
}

func (t *SegmentCaptionVectorIngestTask) Name() string { return "TextSegmentCaptionMilvusTask" }

func (t *SegmentCaptionVectorIngestTask) Preprocess(ctx context.Context, items []artifact.SegmentCaptionEmbedding) ([]artifact.SegmentCaptionEmbedding, error) {
	return items, nil
}

func (t *SegmentCaptionVectorIngestTask) Execute(ctx context.Context, items []artifact.SegmentCaptionEmbedding, yield func(artifact.SegmentCaptionEmbedding, []byte) error) error {
	if err := t.collection.EnsureCollection(ctx); err != nil {
		return err
	}
	batcher := &insertBatcher[artifact.SegmentCaptionEmbedding]{collection: t.collection, batchSize: t.cfg.BatchSize, yield: yield}
	for _, item := range items {
		exists, err := t.collection.ExistsBy(ctx, item.ID(), item.VideoID, item.UserBucket)
		if err != nil {
			return err
		}
		if exists {
			if err := yield(item, nil); err != nil {
				return err
			}
			continue
		}

		vector, err := fetchVector(ctx, t.blobs, item.BlobURL())
		if err != nil {
			return err
		}
		var caption artifact.SegmentCaptionPayload
		if err := fetchJSONURL(ctx, t.blobs, item.SegmentCaptionURL, &caption); err != nil {
			return fmt.Errorf("load caption for segment %d_%d of %s: %w", item.StartFrame, item.EndFrame, item.VideoID, err)
		}
		row := map[string]any{
			"id":                        item.ID(),
			"start_frame":               item.StartFrame,
			"end_frame":                 item.EndFrame,
			"start_time":                item.StartTime,
			"end_time":                  item.EndTime,
			"related_video_id":          item.VideoID,
			"caption":                   caption.Caption,
			"segment_caption_minio_url": item.SegmentCaptionURL,
			"embedding":                 vector,
			"user_bucket":               item.UserBucket,
		}
		if err := batcher.add(ctx, item, row); err != nil {
			return err
		}
	}
	return batcher.flush(ctx)
}

func (t *SegmentCaptionVectorIngestTask) Postprocess(ctx context.Context, item artifact.SegmentCaptionEmbedding, payload []byte) (artifact.SegmentCaptionEmbedding, error) {
	return item, nil
}
