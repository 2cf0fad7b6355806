package artifact

import (
	"strings"
	"testing"
)

func TestHashID_Deterministic(t *testing.T) {
	a := HashID("user1:s3://user-videos/videos/a.mp4")
	b := HashID("user1:s3://user-videos/videos/a.mp4")
	if a != b {
		t.Fatalf("same base hashed to different ids: %q vs %q", a, b)
	}
	if len(a) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(a))
	}
	if c := HashID("user2:s3://user-videos/videos/a.mp4"); c == a {
		t.Fatalf("different bases hashed to the same id")
	}
}

func TestVideo_IDAndBlobURL(t *testing.T) {
	v := Video{
		VideoID:    "vid-123",
		VideoURL:   "s3://user-videos/videos/a.mp4",
		UserBucket: "user-videos",
	}
	if v.ID() != "vid-123" {
		t.Fatalf("video id should be the video id verbatim, got %q", v.ID())
	}
	if v.ObjectKey() != "" {
		t.Fatalf("video has no blob of its own, got key %q", v.ObjectKey())
	}
	if v.BlobURL() != v.VideoURL {
		t.Fatalf("video blob url should be the source url, got %q", v.BlobURL())
	}
	if v.ParentID() != "" {
		t.Fatalf("video is the root, got parent %q", v.ParentID())
	}
}

func TestAutoshot_IDIgnoresBucket(t *testing.T) {
	a := Autoshot{VideoID: "vid", Task: "AutoshotTask", UserBucket: "bucket-a"}
	b := Autoshot{VideoID: "vid", Task: "AutoshotTask", UserBucket: "bucket-b"}
	if a.ID() != b.ID() {
		t.Fatalf("autoshot id must not depend on the bucket")
	}
	if a.ObjectKey() != "autoshot/vid.json" {
		t.Fatalf("unexpected autoshot key %q", a.ObjectKey())
	}
}

func TestASR_IDIncludesBucket(t *testing.T) {
	a := ASR{VideoID: "vid", Task: "ASRProcessingTask", UserBucket: "bucket-a"}
	b := ASR{VideoID: "vid", Task: "ASRProcessingTask", UserBucket: "bucket-b"}
	if a.ID() == b.ID() {
		t.Fatalf("asr id must depend on the bucket")
	}
	if a.ObjectKey() != "asr/vid.json" {
		t.Fatalf("unexpected asr key %q", a.ObjectKey())
	}
	if a.BlobURL() != "s3://bucket-a/asr/vid.json" {
		t.Fatalf("unexpected asr blob url %q", a.BlobURL())
	}
}

func TestImage_IDUsesChecksum(t *testing.T) {
	base := Image{
		FrameIndex:  42,
		Extension:   ".webp",
		VideoID:     "vid",
		UserBucket:  "bucket",
		ContentType: "image/webp",
		Metadata:    map[string]string{"checksum_md5": "aaaa"},
	}
	other := base
	other.Metadata = map[string]string{"checksum_md5": "bbbb"}
	if base.ID() == other.ID() {
		t.Fatalf("image id must depend on the frame checksum")
	}
	if base.ObjectKey() != "images/vid/00000042.webp" {
		t.Fatalf("unexpected image key %q", base.ObjectKey())
	}
}

func TestImageCaptionAndEmbedding_IDsDiverge(t *testing.T) {
	cap := ImageCaption{ImageID: "img", VideoID: "vid", FrameIndex: 7, UserBucket: "bucket"}
	emb := ImageEmbedding{ImageID: "img", VideoID: "vid", FrameIndex: 7, UserBucket: "bucket"}
	// Same coordinates; only the type tag in the hash keeps them apart.
	if cap.ID() == emb.ID() {
		t.Fatalf("caption and embedding of the same frame must not share an id")
	}
	if cap.ObjectKey() != "caption/image/vid/00000007.json" {
		t.Fatalf("unexpected caption key %q", cap.ObjectKey())
	}
	if emb.ObjectKey() != "embedding/image/vid/00000007.npy" {
		t.Fatalf("unexpected embedding key %q", emb.ObjectKey())
	}
}

func TestSegmentCaption_KeyAndParent(t *testing.T) {
	cap := SegmentCaption{
		AutoshotID: "shot",
		VideoID:    "vid",
		StartFrame: 10,
		EndFrame:   90,
		RelatedASR: "hello",
		UserBucket: "bucket",
	}
	if cap.ObjectKey() != "caption/segment/vid/10_90.json" {
		t.Fatalf("unexpected segment caption key %q", cap.ObjectKey())
	}
	if cap.ParentID() != "shot" {
		t.Fatalf("segment caption parent should be the autoshot, got %q", cap.ParentID())
	}
	other := cap
	other.RelatedASR = "different"
	if cap.ID() == other.ID() {
		t.Fatalf("segment caption id must depend on the related asr text")
	}
}

func TestSegmentCaptionEmbedding_TypeTag(t *testing.T) {
	emb := SegmentCaptionEmbedding{
		SegmentCaptionID: "cap",
		VideoID:          "vid",
		StartFrame:       10,
		EndFrame:         90,
		UserBucket:       "bucket",
	}
	if emb.Type() != TypeSegmentCaptionEmbedding {
		t.Fatalf("unexpected type %q", emb.Type())
	}
	if string(emb.Type()) != "TextCapSegmentEmbedArtifact" {
		t.Fatalf("unexpected type tag %q", emb.Type())
	}
	if emb.ObjectKey() != "embedding/caption_segment/vid/10_90.npy" {
		t.Fatalf("unexpected key %q", emb.ObjectKey())
	}
}

func TestBlobURL_Format(t *testing.T) {
	a := Autoshot{VideoID: "vid", UserBucket: "bucket"}
	if !strings.HasPrefix(a.BlobURL(), "s3://bucket/") {
		t.Fatalf("unexpected blob url %q", a.BlobURL())
	}
}
