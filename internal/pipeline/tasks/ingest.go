package tasks

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/yungbote/videorag-backend/internal/artifact"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/media"
	"github.com/yungbote/videorag-backend/internal/platform/objectstore"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".flv": {},
	".wmv": {}, ".webm": {}, ".3gp": {}, ".mpeg": {}, ".mpg": {},
}

// UploadItem is one video already stored in the object store.
type UploadItem struct {
	VideoName string
	MinioURL  string
}

type IngestInput struct {
	UserID string
	Items  []UploadItem
}

// VideoIngestTask registers uploaded videos as root artifacts. It probes
// each file locally; no model service is involved.
type VideoIngestTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	tools   media.Tools
}

func NewVideoIngestTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, tools media.Tools) *VideoIngestTask {
	return &VideoIngestTask{log: log, visitor: visitor, blobs: blobs, tools: tools}
}

func (t *VideoIngestTask) Name() string { return "VideoIngestionTask" }

// VideoID derives the deterministic root id for one upload. Re-submitting
// the same video for the same user resolves to the same pipeline run state.
func VideoID(userID, minioURL string) string {
	return artifact.HashID(fmt.Sprintf("%s:%s", userID, minioURL))
}

func (t *VideoIngestTask) Preprocess(ctx context.Context, in IngestInput) ([]artifact.Video, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("ingest: %w: no videos provided", errs.ErrInvalidArgument)
	}
	videos := make([]artifact.Video, 0, len(in.Items))
	for _, item := range in.Items {
		if _, _, err := objectstore.ParseURL(item.MinioURL); err != nil {
			return nil, fmt.Errorf("ingest %q: %w", item.VideoName, err)
		}
		ext := strings.ToLower(path.Ext(item.MinioURL))
		if _, ok := videoExtensions[ext]; !ok {
			t.log.Warn("File is not a recognized video, skipping", "name", item.VideoName, "extension", ext)
			continue
		}
		videos = append(videos, artifact.Video{
			VideoID:    VideoID(in.UserID, item.MinioURL),
			VideoURL:   item.MinioURL,
			Extension:  ext,
			UserBucket: in.UserID,
			Task:       t.Name(),
		})
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("ingest: %w: no valid video files", errs.ErrInvalidArgument)
	}
	return videos, nil
}

// Execute probes every video so downstream stages get fps even when the
// root artifact is already registered.
func (t *VideoIngestTask) Execute(ctx context.Context, items []artifact.Video, yield func(artifact.Video, []byte) error) error {
	for _, item := range items {
		localPath, cleanup, err := fetchVideoToTemp(ctx, t.blobs, t.tools, item.VideoURL, item.Extension)
		if err != nil {
			return fmt.Errorf("fetch video %s: %w", item.VideoID, err)
		}
		info, err := t.tools.ProbeVideo(ctx, localPath)
		cleanup()
		if err != nil {
			return fmt.Errorf("probe video %s: %w", item.VideoID, err)
		}
		item.FPS = info.FPS

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
		if err := yield(item, []byte("{}")); err != nil {
			return err
		}
	}
	return nil
}

func (t *VideoIngestTask) Postprocess(ctx context.Context, item artifact.Video, payload []byte) (artifact.Video, error) {
	if payload == nil {
		return item, nil
	}
	if err := t.visitor.PersistVideo(ctx, item); err != nil {
		return item, err
	}
	return item, nil
}
