package management

import (
	"context"
	"fmt"
	"math"
	"path"
	"time"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/pipeline"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/objectstore"
	"github.com/yungbote/videorag-backend/internal/tracker"
)

// stageArtifactTypes maps each pipeline stage to the artifact types it
// produces. A stage counts as completed when every type has at least one
// artifact under the video.
var stageArtifactTypes = map[string][]artifact.Type{
	pipeline.StageVideoIngest:       {artifact.TypeVideo},
	pipeline.StageAutoshot:          {artifact.TypeAutoshot},
	pipeline.StageASR:               {artifact.TypeASR},
	pipeline.StageImageExtraction:   {artifact.TypeImage},
	pipeline.StageSegmentCaptioning: {artifact.TypeSegmentCaption},
	pipeline.StageImageCaptioning:   {artifact.TypeImageCaption},
	pipeline.StageImageEmbedding:    {artifact.TypeImageEmbedding},
	pipeline.StageTextEmbedding:     {artifact.TypeTextCaptionEmbedding, artifact.TypeSegmentCaptionEmbedding},
}

type StageStatus struct {
	Stage         string `json:"stage"`
	Completed     bool   `json:"completed"`
	ArtifactCount int    `json:"artifact_count"`
}

type CollectionInfo struct {
	RecordCount int    `json:"record_count"`
	Error       string `json:"error,omitempty"`
}

// StatusReport is the materialised view of one video's pipeline state,
// derived from the lineage tables and the vector collections.
type StatusReport struct {
	VideoID         string                    `json:"video_id"`
	VideoName       string                    `json:"video_name"`
	UserID          string                    `json:"user_id"`
	OverallProgress float64                   `json:"overall_progress"`
	Stages          []StageStatus             `json:"stages"`
	TotalArtifacts  int                       `json:"total_artifacts"`
	LastUpdated     time.Time                 `json:"last_updated"`
	MilvusInfo      map[string]CollectionInfo `json:"milvus_info"`
}

// StatusService answers status queries from the lineage graph rather than
// from in-flight pipeline state, so it works across restarts.
type StatusService struct {
	log         *logger.Logger
	tracker     *tracker.Tracker
	collections []VectorCollection
}

func NewStatusService(log *logger.Logger, tr *tracker.Tracker, collections []VectorCollection) *StatusService {
	return &StatusService{
		log:         log.With("service", "VideoStatus"),
		tracker:     tr,
		collections: collections,
	}
}

// GetStatus returns ErrNotFound when the video is unknown.
func (s *StatusService) GetStatus(ctx context.Context, videoID string) (*StatusReport, error) {
	rows, err := s.tracker.GetDescendants(ctx, videoID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		VideoID:        videoID,
		TotalArtifacts: len(rows),
		MilvusInfo:     map[string]CollectionInfo{},
	}

	countsByType := map[artifact.Type]int{}
	for _, row := range rows {
		countsByType[artifact.Type(row.ArtifactType)]++
		if row.CreatedAt.After(report.LastUpdated) {
			report.LastUpdated = row.CreatedAt
		}
		if row.ArtifactID == videoID {
			report.UserID = row.UserID
			if _, key, err := objectstore.ParseURL(row.MinioURL); err == nil {
				report.VideoName = path.Base(key)
			}
		}
	}

	completed := 0
	for _, stage := range pipeline.Stages {
		count := 0
		done := true
		for _, typ := range stageArtifactTypes[stage] {
			count += countsByType[typ]
			if countsByType[typ] == 0 {
				done = false
			}
		}
		if done {
			completed++
		}
		report.Stages = append(report.Stages, StageStatus{
			Stage:         stage,
			Completed:     done,
			ArtifactCount: count,
		})
	}
	report.OverallProgress = math.Round(float64(completed)/float64(len(pipeline.Stages))*100*100) / 100

	for _, col := range s.collections {
		count, err := col.CountByVideo(ctx, videoID)
		if err != nil {
			report.MilvusInfo[col.Name()] = CollectionInfo{Error: fmt.Sprintf("count failed: %v", err)}
			continue
		}
		report.MilvusInfo[col.Name()] = CollectionInfo{RecordCount: count}
	}
	return report, nil
}
