package tasks

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/media"
)

// ShotASRInput pairs the shot list and the transcript of the same videos.
type ShotASRInput struct {
	Autoshots []artifact.Autoshot
	ASRs      []artifact.ASR
}

// SegmentCaptionTask captions each shot with the vision-language service,
// grounding the prompt in the transcript text that overlaps the shot.
type SegmentCaptionTask struct {
	log     *logger.Logger
	visitor *artifact.Visitor
	blobs   BlobReader
	tools   media.Tools
	client  *clients.LLMClient
	cfg     config.CaptionConfig
}

func NewSegmentCaptionTask(log *logger.Logger, visitor *artifact.Visitor, blobs BlobReader, tools media.Tools, client *clients.LLMClient, cfg config.CaptionConfig) *SegmentCaptionTask {
	return &SegmentCaptionTask{log: log, visitor: visitor, blobs: blobs, tools: tools, client: client, cfg: cfg}
}

func (t *SegmentCaptionTask) Name() string { return "SegmentCaptionLLMTask" }

func (t *SegmentCaptionTask) Preprocess(ctx context.Context, in ShotASRInput) ([]artifact.SegmentCaption, error) {
	transcripts := make(map[string]artifact.Transcript, len(in.ASRs))
	for _, asr := range in.ASRs {
		var transcript artifact.Transcript
		if err := fetchJSONURL(ctx, t.blobs, asr.BlobURL(), &transcript); err != nil {
			return nil, fmt.Errorf("load transcript for %s: %w", asr.VideoID, err)
		}
		transcripts[asr.VideoID] = transcript
	}

	var captions []artifact.SegmentCaption
	for _, shot := range in.Autoshots {
		transcript, ok := transcripts[shot.VideoID]
		if !ok {
			return nil, fmt.Errorf("no transcript for video %s: %w", shot.VideoID, errs.ErrInvalidArgument)
		}
		var payload artifact.AutoshotPayload
		if err := fetchJSONURL(ctx, t.blobs, shot.BlobURL(), &payload); err != nil {
			return nil, fmt.Errorf("load segments for %s: %w", shot.VideoID, err)
		}
		for _, seg := range payload.Segments {
			captions = append(captions, artifact.SegmentCaption{
				AutoshotID:     shot.ID(),
				VideoExtension: shot.VideoExtension,
				VideoID:        shot.VideoID,
				VideoFPS:       shot.VideoFPS,
				StartFrame:     seg.StartFrame,
				EndFrame:       seg.EndFrame,
				StartTimestamp: frameTimestamp(seg.StartFrame, shot.VideoFPS),
				EndTimestamp:   frameTimestamp(seg.EndFrame, shot.VideoFPS),
				RelatedASR:     RelatedASRText(transcript.Tokens, seg.StartFrame, seg.EndFrame, t.cfg.OverlapThreshold),
				VideoURL:       shot.VideoURL,
				UserBucket:     shot.UserBucket,
			})
		}
	}
	return captions, nil
}

func (t *SegmentCaptionTask) Execute(ctx context.Context, items []artifact.SegmentCaption, yield func(artifact.SegmentCaption, []byte) error) error {
	localPaths := map[string]string{}
	cleanups := []func(){}
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

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

		localPath, ok := localPaths[item.VideoURL]
		if !ok {
			var cleanup func()
			localPath, cleanup, err = fetchVideoToTemp(ctx, t.blobs, t.tools, item.VideoURL, item.VideoExtension)
			if err != nil {
				return fmt.Errorf("fetch video %s: %w", item.VideoID, err)
			}
			localPaths[item.VideoURL] = localPath
			cleanups = append(cleanups, cleanup)
		}

		frames := FrameIndices(item.StartFrame, item.EndFrame, t.cfg.ImagesPerSegment)
		images := make([]string, 0, len(frames))
		for _, frame := range frames {
			raw, err := t.tools.ExtractFrameWebP(ctx, localPath, frame, t.cfg.PromptQuality)
			if err != nil {
				return fmt.Errorf("extract frame %d of %s: %w", frame, item.VideoID, err)
			}
			images = append(images, base64.StdEncoding.EncodeToString(raw))
		}

		resp, err := t.client.Invoke(ctx, clients.CaptionRequest{
			Prompt:      segmentCaptionPrompt(item.RelatedASR),
			ImageBase64: images,
			Metadata: map[string]any{
				"video_id":    item.VideoID,
				"start_frame": item.StartFrame,
				"end_frame":   item.EndFrame,
			},
		})
		if err != nil {
			return fmt.Errorf("caption segment %d_%d of %s: %w", item.StartFrame, item.EndFrame, item.VideoID, err)
		}
		if err := yield(item, []byte(resp.Answer)); err != nil {
			return err
		}
	}
	return nil
}

func (t *SegmentCaptionTask) Postprocess(ctx context.Context, item artifact.SegmentCaption, payload []byte) (artifact.SegmentCaption, error) {
	if payload == nil {
		return item, nil
	}
	if _, err := t.visitor.PersistSegmentCaption(ctx, item, string(payload)); err != nil {
		return item, err
	}
	return item, nil
}
