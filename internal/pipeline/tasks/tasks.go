package tasks

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/platform/media"
	"github.com/yungbote/videorag-backend/internal/platform/objectstore"
)

// BlobReader is the read-only object-store surface the stage tasks need.
type BlobReader interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	GetJSON(ctx context.Context, bucket, key string, out any) (bool, error)
}

func fetchURL(ctx context.Context, blobs BlobReader, rawURL string) ([]byte, error) {
	bucket, key, err := objectstore.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	raw, err := blobs.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("object %s not found", rawURL)
	}
	return raw, nil
}

func fetchJSONURL(ctx context.Context, blobs BlobReader, rawURL string, out any) error {
	bucket, key, err := objectstore.ParseURL(rawURL)
	if err != nil {
		return err
	}
	found, err := blobs.GetJSON(ctx, bucket, key, out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("object %s not found", rawURL)
	}
	return nil
}

// fetchVideoToTemp downloads a video blob into a temp file for ffmpeg.
func fetchVideoToTemp(ctx context.Context, blobs BlobReader, tools media.Tools, rawURL, extension string) (string, func(), error) {
	raw, err := fetchURL(ctx, blobs, rawURL)
	if err != nil {
		return "", nil, err
	}
	if extension == "" {
		extension = ".mp4"
	}
	return tools.WriteTempFile("video-*"+extension, raw)
}

// FrameIndices returns n evenly spaced frame indices strictly inside
// [start, end): start + (i+1)*(end-start)/(n+1) for i in [0, n).
func FrameIndices(start, end int64, n int) []int64 {
	if n <= 0 || end <= start {
		return nil
	}
	total := end - start
	indices := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		indices = append(indices, start+int64(i+1)*total/int64(n+1))
	}
	return indices
}

// RelatedASRText concatenates the transcript tokens that belong to the
// shot [startFrame, endFrame): tokens fully inside the window, plus tokens
// whose overlap with it covers at least threshold of the token span.
func RelatedASRText(tokens []artifact.Token, startFrame, endFrame int64, threshold float64) string {
	var parts []string
	for _, token := range tokens {
		text := strings.TrimSpace(token.Text)
		if text == "" || token.EndFrame <= token.StartFrame {
			continue
		}

		intersection := min64(token.EndFrame, endFrame) - max64(token.StartFrame, startFrame)
		if intersection < 0 {
			intersection = 0
		}
		overlapRatio := float64(intersection) / float64(token.EndFrame-token.StartFrame)
		fullyInside := token.StartFrame >= startFrame && token.EndFrame <= endFrame

		if fullyInside || overlapRatio >= threshold {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// frameTimestamp renders a frame position as HH:MM:SS.mmm.
func frameTimestamp(frameIndex int64, fps float64) string {
	if fps <= 0 {
		return ""
	}
	return formatSeconds(float64(frameIndex) / fps)
}

func formatSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int64(seconds)
	millis := int64(math.Round((seconds - float64(whole)) * 1000))
	if millis >= 1000 {
		whole++
		millis -= 1000
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", whole/3600, (whole%3600)/60, whole%60, millis)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
