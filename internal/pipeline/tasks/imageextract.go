package tasks

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/media"
)

// ImageExtractTask samples frames from each detected shot and stores them
// as WebP. Frame ids are content-addressed over the frame checksum, so
// extraction happens before the exists check.
type ImageExtractTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	tools   media.Tools
	cfg     config.ImageExtractConfig
}

func NewImageExtractTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, tools media.Tools, cfg config.ImageExtractConfig) *ImageExtractTask {
	return &ImageExtractTask{log: log, visitor: visitor, blobs: blobs, tools: tools, cfg: cfg}
}

func (t *ImageExtractTask) Name() string { return "ImageProcessingTask" }

func (t *ImageExtractTask) Preprocess(ctx context.Context, shots []artifact.Autoshot) ([]artifact.Image, error) {
	var images []artifact.Image
	for _, shot := range shots {
		var payload artifact.AutoshotPayload
		if err := fetchJSONURL(ctx, t.blobs, shot.BlobURL(), &payload); err != nil {
			return nil, fmt.Errorf("load segments for %s: %w", shot.VideoID, err)
		}
		for _, seg := range payload.Segments {
			for _, frame := range FrameIndices(seg.StartFrame, seg.EndFrame, t.cfg.FramesPerSegment) {
				images = append(images, artifact.Image{
					FrameIndex:     frame,
					Extension:      ".webp",
					VideoID:        shot.VideoID,
					VideoURL:       shot.VideoURL,
					VideoExtension: shot.VideoExtension,
					VideoFPS:       shot.VideoFPS,
					Timestamp:      frameTimestamp(frame, shot.VideoFPS),
					AutoshotID:     shot.ID(),
					UserBucket:     shot.UserBucket,
					ContentType:    "image/webp",
				})
			}
		}
	}
	return images, nil
}

func (t *ImageExtractTask) Execute(ctx context.Context, items []artifact.Image, yield func(artifact.Image, []byte) error) error {
	// One temp download per distinct video.
	localPaths := map[string]string{}
	cleanups := []func(){}
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	for _, item := range items {
		localPath, ok := localPaths[item.VideoURL]
		if !ok {
			var cleanup func()
			var err error
			localPath, cleanup, err = fetchVideoToTemp(ctx, t.blobs, t.tools, item.VideoURL, item.VideoExtension)
			if err != nil {
				return fmt.Errorf("fetch video %s: %w", item.VideoID, err)
			}
			localPaths[item.VideoURL] = localPath
			cleanups = append(cleanups, cleanup)
		}

		frame, err := t.tools.ExtractFrameWebP(ctx, localPath, item.FrameIndex, t.cfg.WebPQuality)
		if err != nil {
			return fmt.Errorf("extract frame %d of %s: %w", item.FrameIndex, item.VideoID, err)
		}
		checksum := md5.Sum(frame)
		item.Metadata = map[string]string{"checksum_md5": hex.EncodeToString(checksum[:])}

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
		if err := yield(item, frame); err != nil {
			return err
		}
	}
	t.log.Info("Frames extracted", "total", len(items))
	return nil
}

func (t *ImageExtractTask) Postprocess(ctx context.Context, item artifact.Image, payload []byte) (artifact.Image, error) {
	if payload == nil {
		return item, nil
	}
	if _, err := t.visitor.PersistImage(ctx, item, payload); err != nil {
		return item, err
	}
	return item, nil
}
