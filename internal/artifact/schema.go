package artifact

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Type tags stored in the lineage table. Each value names the artifact
// class a row describes.
type Type string

const (
	TypeVideo                   Type = "VideoArtifact"
	TypeAutoshot                Type = "AutoshotArtifact"
	TypeASR                     Type = "ASRArtifact"
	TypeImage                   Type = "ImageArtifact"
	TypeSegmentCaption          Type = "SegmentCaptionArtifact"
	TypeImageCaption            Type = "ImageCaptionArtifact"
	TypeImageEmbedding          Type = "ImageEmbeddingArtifact"
	TypeTextCaptionEmbedding    Type = "TextCaptionEmbeddingArtifact"
	TypeSegmentCaptionEmbedding Type = "TextCapSegmentEmbedArtifact"
)

// Artifact is anything the pipeline can persist and deduplicate. IDs are
// content-addressed: the same logical item always hashes to the same id,
// which is what makes re-runs skip completed work.
type Artifact interface {
	ID() string
	Type() Type
	// ObjectKey is the blob location inside the user bucket. Empty for
	// artifacts that have no blob of their own.
	ObjectKey() string
	BlobURL() string
	ParentID() string
	TaskName() string
	Bucket() string
}

func sha512Hex(base string) string {
	sum := sha512.Sum512([]byte(base))
	return hex.EncodeToString(sum[:])
}

// HashID derives a content-addressed id from a coordinate string.
func HashID(base string) string { return sha512Hex(base) }

// Video is the pipeline root. It has no blob of its own; the video bytes
// already live at VideoURL, so only a lineage row is written.
type Video struct {
	VideoID    string
	VideoURL   string
	Extension  string
	UserBucket string
	FPS        float64
	Task       string
}

func (a Video) ID() string        { return a.VideoID }
func (a Video) Type() Type        { return TypeVideo }
func (a Video) ObjectKey() string { return "" }
func (a Video) BlobURL() string   { return a.VideoURL }
func (a Video) ParentID() string  { return "" }
func (a Video) TaskName() string  { return a.Task }
func (a Video) Bucket() string    { return a.UserBucket }

// Autoshot holds the shot boundary list for one video.
//
// Its id hash does not include the user bucket. Kept as-is so existing
// rows stay addressable.
type Autoshot struct {
	VideoID        string
	VideoURL       string
	VideoExtension string
	VideoFPS       float64
	Task           string
	UserBucket     string
}

func (a Autoshot) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%s:%s", a.VideoID, a.VideoID, a.Task))
}
func (a Autoshot) Type() Type        { return TypeAutoshot }
func (a Autoshot) ObjectKey() string { return fmt.Sprintf("autoshot/%s.json", a.VideoID) }
func (a Autoshot) BlobURL() string   { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a Autoshot) ParentID() string  { return a.VideoID }
func (a Autoshot) TaskName() string  { return a.Task }
func (a Autoshot) Bucket() string    { return a.UserBucket }

// ASR holds the transcript token list for one video.
type ASR struct {
	VideoID        string
	VideoURL       string
	VideoExtension string
	VideoFPS       float64
	Task           string
	UserBucket     string
}

func (a ASR) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%s:%s:%s", a.VideoID, a.VideoID, a.Task, a.UserBucket))
}
func (a ASR) Type() Type        { return TypeASR }
func (a ASR) ObjectKey() string { return fmt.Sprintf("asr/%s.json", a.VideoID) }
func (a ASR) BlobURL() string   { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a ASR) ParentID() string  { return a.VideoID }
func (a ASR) TaskName() string  { return a.Task }
func (a ASR) Bucket() string    { return a.UserBucket }

// Image is one extracted frame, WebP encoded.
type Image struct {
	FrameIndex     int64
	Extension      string
	VideoID        string
	VideoURL       string
	VideoExtension string
	VideoFPS       float64
	Timestamp      string
	AutoshotID     string
	UserBucket     string
	Metadata       map[string]string
	ContentType    string
}

func (a Image) ID() string {
	checksum := a.Metadata["checksum_md5"]
	return sha512Hex(fmt.Sprintf("%s:%d:%s:%s:%s",
		a.VideoID, a.FrameIndex, a.ContentType, checksum, a.UserBucket))
}
func (a Image) Type() Type { return TypeImage }
func (a Image) ObjectKey() string {
	return fmt.Sprintf("images/%s/%08d%s", a.VideoID, a.FrameIndex, a.Extension)
}
func (a Image) BlobURL() string  { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a Image) ParentID() string { return a.AutoshotID }
func (a Image) TaskName() string { return "image_processing" }
func (a Image) Bucket() string   { return a.UserBucket }

// SegmentCaption is the LLM caption of one shot, grounded in the overlapping
// ASR text.
type SegmentCaption struct {
	AutoshotID     string
	VideoExtension string
	VideoID        string
	VideoFPS       float64
	StartFrame     int64
	EndFrame       int64
	StartTimestamp string
	EndTimestamp   string
	RelatedASR     string
	VideoURL       string
	UserBucket     string
}

func (a SegmentCaption) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%d:%d:%s:%s",
		a.VideoID, a.StartFrame, a.EndFrame, a.RelatedASR, a.UserBucket))
}
func (a SegmentCaption) Type() Type { return TypeSegmentCaption }
func (a SegmentCaption) ObjectKey() string {
	return fmt.Sprintf("caption/segment/%s/%d_%d.json", a.VideoID, a.StartFrame, a.EndFrame)
}
func (a SegmentCaption) BlobURL() string  { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a SegmentCaption) ParentID() string { return a.AutoshotID }
func (a SegmentCaption) TaskName() string { return "segment_caption" }
func (a SegmentCaption) Bucket() string   { return a.UserBucket }

// ImageCaption is the LLM caption of one frame.
//
// The id hash carries the type tag: the caption and the embedding of the
// same frame share every other coordinate and would otherwise collide.
type ImageCaption struct {
	FrameIndex int64
	Timestamp  string
	VideoID    string
	VideoFPS   float64
	Extension  string
	UserBucket string
	ImageURL   string
	ImageID    string
}

func (a ImageCaption) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%s:%d:%s:%s",
		a.ImageID, a.VideoID, a.FrameIndex, a.UserBucket, TypeImageCaption))
}
func (a ImageCaption) Type() Type { return TypeImageCaption }
func (a ImageCaption) ObjectKey() string {
	return fmt.Sprintf("caption/image/%s/%08d.json", a.VideoID, a.FrameIndex)
}
func (a ImageCaption) BlobURL() string  { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a ImageCaption) ParentID() string { return a.ImageID }
func (a ImageCaption) TaskName() string { return "image_caption" }
func (a ImageCaption) Bucket() string   { return a.UserBucket }

// ImageEmbedding is the vector for one frame. Same coordinates as the
// frame's caption, disambiguated by the type tag in the id hash.
type ImageEmbedding struct {
	Timestamp  string
	FrameIndex int64
	VideoID    string
	VideoFPS   float64
	UserBucket string
	ImageURL   string
	Extension  string
	ImageID    string
}

func (a ImageEmbedding) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%s:%d:%s:%s",
		a.ImageID, a.VideoID, a.FrameIndex, a.UserBucket, TypeImageEmbedding))
}
func (a ImageEmbedding) Type() Type { return TypeImageEmbedding }
func (a ImageEmbedding) ObjectKey() string {
	return fmt.Sprintf("embedding/image/%s/%08d.npy", a.VideoID, a.FrameIndex)
}
func (a ImageEmbedding) BlobURL() string  { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a ImageEmbedding) ParentID() string { return a.ImageID }
func (a ImageEmbedding) TaskName() string { return "image_embedding" }
func (a ImageEmbedding) Bucket() string   { return a.UserBucket }

// TextCaptionEmbedding is the vector for one frame caption.
type TextCaptionEmbedding struct {
	Timestamp  string
	FrameFPS   float64
	FrameIndex int64
	VideoID    string
	CaptionURL string
	UserBucket string
	CaptionID  string
	ImageURL   string
}

func (a TextCaptionEmbedding) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%s:%d:%s",
		a.CaptionID, a.VideoID, a.FrameIndex, a.UserBucket))
}
func (a TextCaptionEmbedding) Type() Type { return TypeTextCaptionEmbedding }
func (a TextCaptionEmbedding) ObjectKey() string {
	return fmt.Sprintf("embedding/image_caption/%s/%08d.npy", a.VideoID, a.FrameIndex)
}
func (a TextCaptionEmbedding) BlobURL() string  { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a TextCaptionEmbedding) ParentID() string { return a.CaptionID }
func (a TextCaptionEmbedding) TaskName() string { return "text_caption_embedding" }
func (a TextCaptionEmbedding) Bucket() string   { return a.UserBucket }

// SegmentCaptionEmbedding is the vector for one segment caption.
type SegmentCaptionEmbedding struct {
	VideoFPS          float64
	VideoID           string
	StartFrame        int64
	EndFrame          int64
	StartTime         string
	EndTime           string
	SegmentCaptionURL string
	UserBucket        string
	SegmentCaptionID  string
}

func (a SegmentCaptionEmbedding) ID() string {
	return sha512Hex(fmt.Sprintf("%s:%s:%d:%d:%s",
		a.SegmentCaptionID, a.VideoID, a.StartFrame, a.EndFrame, a.UserBucket))
}
func (a SegmentCaptionEmbedding) Type() Type { return TypeSegmentCaptionEmbedding }
func (a SegmentCaptionEmbedding) ObjectKey() string {
	return fmt.Sprintf("embedding/caption_segment/%s/%d_%d.npy", a.VideoID, a.StartFrame, a.EndFrame)
}
func (a SegmentCaptionEmbedding) BlobURL() string  { return blobURL(a.UserBucket, a.ObjectKey()) }
func (a SegmentCaptionEmbedding) ParentID() string { return a.SegmentCaptionID }
func (a SegmentCaptionEmbedding) TaskName() string { return "segment_caption_embedding" }
func (a SegmentCaptionEmbedding) Bucket() string   { return a.UserBucket }

func blobURL(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
