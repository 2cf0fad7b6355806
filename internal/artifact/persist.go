package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// Segment is one shot boundary pair, in frames.
type Segment struct {
	StartFrame int64 `json:"start_frame"`
	EndFrame   int64 `json:"end_frame"`
}

// Token is one ASR word with second and frame coordinates.
type Token struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	StartFrame int64   `json:"start_frame"`
	EndFrame   int64   `json:"end_frame"`
}

// Transcript is the ASR blob payload.
type Transcript struct {
	Tokens                []Token `json:"tokens"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	AudioDurationSeconds  float64 `json:"audio_duration_seconds"`
}

// AutoshotPayload is the segments blob payload.
type AutoshotPayload struct {
	Segments       []Segment `json:"segments"`
	RelatedVideoID string    `json:"related_video_id"`
	VideoURL       string    `json:"related_video_minio_url"`
	VideoExtension string    `json:"related_video_extension"`
	VideoFPS       float64   `json:"related_video_fps"`
	TaskName       string    `json:"task_name"`
	UserBucket     string    `json:"user_bucket"`
}

// SegmentCaptionPayload is the segment caption blob payload.
type SegmentCaptionPayload struct {
	RelatedVideoID string  `json:"related_video_id"`
	StartFrame     int64   `json:"start_frame"`
	EndFrame       int64   `json:"end_frame"`
	StartTimestamp string  `json:"start_timestamp"`
	EndTimestamp   string  `json:"end_timestamp"`
	RelatedASR     string  `json:"related_asr"`
	VideoFPS       float64 `json:"related_video_fps"`
	UserBucket     string  `json:"user_bucket"`
	Caption        string  `json:"caption"`
}

// ImageCaptionPayload is the frame caption blob payload.
type ImageCaptionPayload struct {
	RelatedVideoID string  `json:"related_video_id"`
	FrameIndex     int64   `json:"frame_index"`
	Timestamp      string  `json:"time_stamp"`
	VideoFPS       float64 `json:"related_video_fps"`
	ImageURL       string  `json:"image_minio_url"`
	ImageID        string  `json:"image_id"`
	UserBucket     string  `json:"user_bucket"`
	Caption        string  `json:"caption"`
}

// Record is the lineage row written for every persisted artifact.
type Record struct {
	ArtifactID       string
	ArtifactType     string
	MinioURL         string
	ParentArtifactID string
	TaskName         string
	UserID           string
}

// BlobStore is the object-store surface the visitor needs.
type BlobStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, metadata map[string]string) (string, error)
	PutJSON(ctx context.Context, bucket, key string, payload any) (string, error)
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
}

// Lineage is the tracker surface the visitor needs.
type Lineage interface {
	SaveArtifact(ctx context.Context, rec Record) error
	HasArtifact(ctx context.Context, artifactID string) (bool, error)
}

// Visitor persists artifacts: blob first, lineage row second. If the
// process dies between the two writes, the orphan blob is reused on the
// next run instead of re-uploaded.
type Visitor struct {
	log     *logger.Logger
	blobs   BlobStore
	lineage Lineage
}

func NewVisitor(log *logger.Logger, blobs BlobStore, lineage Lineage) *Visitor {
	return &Visitor{
		log:     log.With("service", "ArtifactVisitor"),
		blobs:   blobs,
		lineage: lineage,
	}
}

// Exists reports whether the artifact is fully persisted: a lineage row,
// plus the blob itself for artifact kinds that carry one.
func (v *Visitor) Exists(ctx context.Context, a Artifact) (bool, error) {
	tracked, err := v.lineage.HasArtifact(ctx, a.ID())
	if err != nil {
		return false, err
	}
	if !tracked {
		return false, nil
	}
	if a.Type() == TypeVideo {
		return true, nil
	}
	return v.blobs.ObjectExists(ctx, a.Bucket(), a.ObjectKey())
}

func (v *Visitor) record(a Artifact, url string) Record {
	return Record{
		ArtifactID:       a.ID(),
		ArtifactType:     string(a.Type()),
		MinioURL:         url,
		ParentArtifactID: a.ParentID(),
		TaskName:         a.TaskName(),
		UserID:           a.Bucket(),
	}
}

// putJSONOnce uploads a json blob unless an object is already at the key.
// Either way it returns the canonical url.
func (v *Visitor) putJSONOnce(ctx context.Context, a Artifact, payload any) (string, error) {
	present, err := v.blobs.ObjectExists(ctx, a.Bucket(), a.ObjectKey())
	if err != nil {
		return "", err
	}
	if present {
		v.log.Debug("Blob already present, reusing", "artifact_id", a.ID(), "key", a.ObjectKey())
		return a.BlobURL(), nil
	}
	return v.blobs.PutJSON(ctx, a.Bucket(), a.ObjectKey(), payload)
}

func (v *Visitor) putObjectOnce(ctx context.Context, a Artifact, data []byte, contentType string, metadata map[string]string) (string, error) {
	present, err := v.blobs.ObjectExists(ctx, a.Bucket(), a.ObjectKey())
	if err != nil {
		return "", err
	}
	if present {
		v.log.Debug("Blob already present, reusing", "artifact_id", a.ID(), "key", a.ObjectKey())
		return a.BlobURL(), nil
	}
	return v.blobs.PutObject(ctx, a.Bucket(), a.ObjectKey(), bytes.NewReader(data), int64(len(data)), contentType, metadata)
}

// PersistVideo writes the root lineage row. The video blob already exists
// at its source url.
func (v *Visitor) PersistVideo(ctx context.Context, a Video) error {
	return v.lineage.SaveArtifact(ctx, v.record(a, a.VideoURL))
}

func (v *Visitor) PersistAutoshot(ctx context.Context, a Autoshot, segments []Segment) (string, error) {
	url, err := v.putJSONOnce(ctx, a, AutoshotPayload{
		Segments:       segments,
		RelatedVideoID: a.VideoID,
		VideoURL:       a.VideoURL,
		VideoExtension: a.VideoExtension,
		VideoFPS:       a.VideoFPS,
		TaskName:       a.Task,
		UserBucket:     a.UserBucket,
	})
	if err != nil {
		return "", err
	}
	return url, v.lineage.SaveArtifact(ctx, v.record(a, url))
}

func (v *Visitor) PersistASR(ctx context.Context, a ASR, transcript Transcript) (string, error) {
	url, err := v.putJSONOnce(ctx, a, transcript)
	if err != nil {
		return "", err
	}
	return url, v.lineage.SaveArtifact(ctx, v.record(a, url))
}

func (v *Visitor) PersistImage(ctx context.Context, a Image, data []byte) (string, error) {
	url, err := v.putObjectOnce(ctx, a, data, a.ContentType, a.Metadata)
	if err != nil {
		return "", err
	}
	return url, v.lineage.SaveArtifact(ctx, v.record(a, url))
}

func (v *Visitor) PersistSegmentCaption(ctx context.Context, a SegmentCaption, caption string) (string, error) {
	url, err := v.putJSONOnce(ctx, a, SegmentCaptionPayload{
		RelatedVideoID: a.VideoID,
		StartFrame:     a.StartFrame,
		EndFrame:       a.EndFrame,
		StartTimestamp: a.StartTimestamp,
		EndTimestamp:   a.EndTimestamp,
		RelatedASR:     a.RelatedASR,
		VideoFPS:       a.VideoFPS,
		UserBucket:     a.UserBucket,
		Caption:        caption,
	})
	if err != nil {
		return "", err
	}
	return url, v.lineage.SaveArtifact(ctx, v.record(a, url))
}

func (v *Visitor) PersistImageCaption(ctx context.Context, a ImageCaption, caption string) (string, error) {
	url, err := v.putJSONOnce(ctx, a, ImageCaptionPayload{
		RelatedVideoID: a.VideoID,
		FrameIndex:     a.FrameIndex,
		Timestamp:      a.Timestamp,
		VideoFPS:       a.VideoFPS,
		ImageURL:       a.ImageURL,
		ImageID:        a.ImageID,
		UserBucket:     a.UserBucket,
		Caption:        caption,
	})
	if err != nil {
		return "", err
	}
	return url, v.lineage.SaveArtifact(ctx, v.record(a, url))
}

// PersistEmbedding stores the vector as a json float array under the
// artifact's key.
func (v *Visitor) PersistEmbedding(ctx context.Context, a Artifact, vector []float32) (string, error) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("encode embedding %s: %w", a.ID(), err)
	}
	url, err := v.putObjectOnce(ctx, a, raw, "application/json", nil)
	if err != nil {
		return "", err
	}
	return url, v.lineage.SaveArtifact(ctx, v.record(a, url))
}
