package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/videorag-backend/internal/platform/envutil"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// VideoInfo is what ffprobe reports about a local video file.
type VideoInfo struct {
	FPS         float64
	Extension   string
	TotalFrames int64
	Duration    float64
}

// Tools wraps the ffmpeg/ffprobe binaries used for probing and frame
// extraction. All invocations run under the caller's context with a
// per-command timeout.
type Tools interface {
	AssertReady(ctx context.Context) error
	ProbeVideo(ctx context.Context, path string) (VideoInfo, error)
	// ExtractFrameWebP decodes the frame at the given index and encodes it
	// as WebP at the requested quality (0..100).
	ExtractFrameWebP(ctx context.Context, path string, frameIndex int64, quality int) ([]byte, error)
	WriteTempFile(pattern string, data []byte) (string, func(), error)
}

type tools struct {
	log            *logger.Logger
	ffmpegPath     string
	ffprobePath    string
	workRoot       string
	defaultTimeout time.Duration
}

func NewTools(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     envutil.Str("FFMPEG_PATH", "ffmpeg"),
		ffprobePath:    envutil.Str("FFPROBE_PATH", "ffprobe"),
		workRoot:       envutil.Str("MEDIA_WORK_DIR", os.TempDir()),
		defaultTimeout: envutil.Duration("MEDIA_COMMAND_TIMEOUT", 2*time.Minute),
	}
}

func (t *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{t.ffmpegPath, t.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("media tool %q not found: %w", bin, err)
		}
	}
	return nil
}

func (t *tools) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w (stderr: %s)", filepath.Base(bin), err, truncate(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

func (t *tools) ProbeVideo(ctx context.Context, path string) (VideoInfo, error) {
	out, err := t.run(ctx, t.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,nb_frames,duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return VideoInfo{}, err
	}

	var probe struct {
		Streams []struct {
			RFrameRate string `json:"r_frame_rate"`
			NBFrames   string `json:"nb_frames"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream in %s", path)
	}
	stream := probe.Streams[0]

	fps, err := parseFrameRate(stream.RFrameRate)
	if err != nil {
		return VideoInfo{}, err
	}

	info := VideoInfo{
		FPS:       fps,
		Extension: strings.ToLower(filepath.Ext(path)),
	}
	if stream.NBFrames != "" {
		if frames, err := strconv.ParseInt(stream.NBFrames, 10, 64); err == nil {
			info.TotalFrames = frames
		}
	}
	if stream.Duration != "" {
		if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	if info.TotalFrames == 0 && info.Duration > 0 && fps > 0 {
		info.TotalFrames = int64(info.Duration * fps)
	}
	return info, nil
}

func parseFrameRate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty frame rate")
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", raw, err)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("parse frame rate %q: bad denominator", raw)
		}
		return n / d, nil
	}
	fps, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", raw, err)
	}
	return fps, nil
}

func (t *tools) ExtractFrameWebP(ctx context.Context, path string, frameIndex int64, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	out, err := t.run(ctx, t.ffmpegPath,
		"-v", "error",
		"-i", path,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, frameIndex),
		"-frames:v", "1",
		"-c:v", "libwebp",
		"-quality", strconv.Itoa(quality),
		"-f", "webp",
		"pipe:1",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("frame %d not found in %s", frameIndex, path)
	}
	return out, nil
}

func (t *tools) WriteTempFile(pattern string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp(t.workRoot, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return name, cleanup, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
