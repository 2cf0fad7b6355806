package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/videorag-backend/internal/platform/envutil"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

const (
	StageVideoIngest       = "video_ingest"
	StageAutoshot          = "autoshot_segmentation"
	StageASR               = "asr_transcription"
	StageImageExtraction   = "image_extraction"
	StageSegmentCaptioning = "segment_captioning"
	StageImageCaptioning   = "image_captioning"
	StageImageEmbedding    = "image_embedding"
	StageTextEmbedding     = "text_cap_segment_embedding"
)

// Stages lists every pipeline stage in DAG order. Overall progress is the
// completed fraction of this list.
var Stages = []string{
	StageVideoIngest,
	StageAutoshot,
	StageASR,
	StageImageExtraction,
	StageSegmentCaptioning,
	StageImageCaptioning,
	StageImageEmbedding,
	StageTextEmbedding,
}

type StageState string

const (
	StagePending   StageState = "pending"
	StageRunning   StageState = "running"
	StageCompleted StageState = "completed"
	StageFailed    StageState = "failed"
)

type StageProgress struct {
	Name      string     `json:"name"`
	State     StageState `json:"state"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Snapshot is the per-video progress document stored in Redis.
type Snapshot struct {
	VideoID        string          `json:"video_id"`
	Stages         []StageProgress `json:"stages"`
	OverallPercent float64         `json:"overall_percent"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func NewSnapshot(videoID string) *Snapshot {
	s := &Snapshot{VideoID: videoID}
	for _, name := range Stages {
		s.Stages = append(s.Stages, StageProgress{Name: name, State: StagePending})
	}
	return s
}

// SetStage records a stage transition and recomputes the overall percent.
func (s *Snapshot) SetStage(name string, state StageState, errMsg string) {
	now := time.Now().UTC()
	for i := range s.Stages {
		if s.Stages[i].Name != name {
			continue
		}
		s.Stages[i].State = state
		s.Stages[i].Error = errMsg
		s.Stages[i].UpdatedAt = now
		break
	}
	completed := 0
	for _, st := range s.Stages {
		if st.State == StageCompleted {
			completed++
		}
	}
	s.OverallPercent = math.Round(float64(completed)/float64(len(Stages))*100*100) / 100
	s.UpdatedAt = now
}

func NewRedisClient(log *logger.Logger) *redis.Client {
	addr := envutil.Str("REDIS_ADDR", "localhost:6379")
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: envutil.Str("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
	})
	log.Info("Redis client configured", "addr", addr)
	return client
}

// ProgressReporter keeps one snapshot per video in Redis so the API can
// poll run progress without touching the pipeline.
type ProgressReporter struct {
	log *logger.Logger
	rdb *redis.Client
	ttl time.Duration
}

func NewProgressReporter(log *logger.Logger, rdb *redis.Client) *ProgressReporter {
	return &ProgressReporter{
		log: log.With("service", "ProgressReporter"),
		rdb: rdb,
		ttl: envutil.Duration("PROGRESS_TTL", 24*time.Hour),
	}
}

func progressKey(videoID string) string {
	return "videorag:progress:" + videoID
}

func (r *ProgressReporter) StageStarted(ctx context.Context, videoID, stage string) {
	r.update(ctx, videoID, stage, StageRunning, "")
}

func (r *ProgressReporter) StageCompleted(ctx context.Context, videoID, stage string) {
	r.update(ctx, videoID, stage, StageCompleted, "")
}

func (r *ProgressReporter) StageFailed(ctx context.Context, videoID, stage string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.update(ctx, videoID, stage, StageFailed, msg)
}

// update is best-effort: a progress write never fails the pipeline.
func (r *ProgressReporter) update(ctx context.Context, videoID, stage string, state StageState, errMsg string) {
	snap, _, err := r.Get(ctx, videoID)
	if err != nil {
		r.log.Warn("Progress read failed", "video_id", videoID, "error", err)
		return
	}
	if snap == nil {
		snap = NewSnapshot(videoID)
	}
	snap.SetStage(stage, state, errMsg)

	raw, err := json.Marshal(snap)
	if err != nil {
		r.log.Warn("Progress encode failed", "video_id", videoID, "error", err)
		return
	}
	if err := r.rdb.Set(ctx, progressKey(videoID), raw, r.ttl).Err(); err != nil {
		r.log.Warn("Progress write failed", "video_id", videoID, "error", err)
	}
}

// Get returns (nil, false, nil) when no snapshot exists for the video.
func (r *ProgressReporter) Get(ctx context.Context, videoID string) (*Snapshot, bool, error) {
	raw, err := r.rdb.Get(ctx, progressKey(videoID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read progress for %s: %w", videoID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode progress for %s: %w", videoID, err)
	}
	return &snap, true, nil
}
