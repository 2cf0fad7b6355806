package management

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/pipeline"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
)

func TestGetStatus_ReportsStageCompletion(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")

	report, err := f.status.GetStatus(context.Background(), "vid")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.VideoID != "vid" || report.UserID != "user" {
		t.Fatalf("unexpected identity %+v", report)
	}
	if report.VideoName != "vid.mp4" {
		t.Fatalf("video name should come from the upload url, got %q", report.VideoName)
	}
	if report.TotalArtifacts != 7 {
		t.Fatalf("expected 7 artifacts, got %d", report.TotalArtifacts)
	}

	completed := map[string]bool{}
	for _, st := range report.Stages {
		completed[st.Stage] = st.Completed
	}
	for _, stage := range []string{
		pipeline.StageVideoIngest,
		pipeline.StageAutoshot,
		pipeline.StageASR,
		pipeline.StageImageExtraction,
		pipeline.StageSegmentCaptioning,
		pipeline.StageImageEmbedding,
	} {
		if !completed[stage] {
			t.Fatalf("stage %s should be completed", stage)
		}
	}
	// No image captions seeded, so captioning is pending.
	if completed[pipeline.StageImageCaptioning] {
		t.Fatalf("image captioning should be pending")
	}
	// Text embedding needs both embedding types; only the segment one exists.
	if completed[pipeline.StageTextEmbedding] {
		t.Fatalf("text embedding should be pending with one type missing")
	}

	// 6 of 8 stages completed.
	if report.OverallProgress != 75 {
		t.Fatalf("expected 75%% progress, got %v", report.OverallProgress)
	}
}

func TestGetStatus_ReportsLastUpdated(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	ctx := context.Background()

	report, err := f.status.GetStatus(ctx, "vid")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.LastUpdated.IsZero() {
		t.Fatalf("last_updated not populated")
	}

	rows, err := f.tracker.GetDescendants(ctx, "vid")
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	var latest time.Time
	for _, row := range rows {
		if row.CreatedAt.After(latest) {
			latest = row.CreatedAt
		}
	}
	if !report.LastUpdated.Equal(latest) {
		t.Fatalf("expected latest created_at %v, got %v", latest, report.LastUpdated)
	}
}

func TestGetStatus_CountsVectorRows(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	f.imageCol.rows["stray"] = "other-video"

	report, err := f.status.GetStatus(context.Background(), "vid")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.MilvusInfo["image_embeddings"].RecordCount != 1 {
		t.Fatalf("expected 1 image vector, got %+v", report.MilvusInfo["image_embeddings"])
	}
	if report.MilvusInfo["text_caption_embeddings"].RecordCount != 0 {
		t.Fatalf("expected 0 text vectors, got %+v", report.MilvusInfo["text_caption_embeddings"])
	}
}

func TestGetStatus_CapturesCollectionErrors(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	f.status = NewStatusService(f.deleter.log, f.tracker, []VectorCollection{
		f.imageCol,
		failingCollection{name: "text_caption_embeddings"},
	})

	report, err := f.status.GetStatus(context.Background(), "vid")
	if err != nil {
		t.Fatalf("one broken collection must not fail the report: %v", err)
	}
	if report.MilvusInfo["image_embeddings"].Error != "" {
		t.Fatalf("healthy collection should have no error")
	}
	if report.MilvusInfo["text_caption_embeddings"].Error == "" {
		t.Fatalf("broken collection error not captured")
	}
}

func TestGetStatus_UnknownVideo(t *testing.T) {
	f := newFixture(t)
	_, err := f.status.GetStatus(context.Background(), "missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetStatus_AfterStageDelete(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	ctx := context.Background()

	if _, err := f.deleter.DeleteStage(ctx, "vid", artifact.TypeSegmentCaption); err != nil {
		t.Fatalf("delete stage: %v", err)
	}
	report, err := f.status.GetStatus(ctx, "vid")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, st := range report.Stages {
		if st.Stage == pipeline.StageSegmentCaptioning && st.Completed {
			t.Fatalf("deleted stage still reported completed")
		}
	}
	if report.TotalArtifacts != 5 {
		t.Fatalf("expected 5 artifacts after stage delete, got %d", report.TotalArtifacts)
	}
}

type failingCollection struct {
	name string
}

func (c failingCollection) Name() string { return c.name }

func (c failingCollection) CountByVideo(ctx context.Context, videoID string) (int, error) {
	return 0, errors.New("collection unavailable")
}

func (c failingCollection) DeleteByVideo(ctx context.Context, videoID string) (int, error) {
	return 0, errors.New("collection unavailable")
}

func (c failingCollection) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return 0, errors.New("collection unavailable")
}
