package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/videorag-backend/internal/artifact"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

func testTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tracker.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ArtifactRow{}, &ArtifactLineageRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewTracker(log, db)
}

func rec(id, typ, parent string) artifact.Record {
	return artifact.Record{
		ArtifactID:       id,
		ArtifactType:     typ,
		MinioURL:         "s3://bucket/" + id,
		ParentArtifactID: parent,
		TaskName:         "test",
		UserID:           "user",
	}
}

func TestSaveArtifact_IdempotentUpsert(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	if err := tr.SaveArtifact(ctx, rec("root", "VideoArtifact", "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := tr.SaveArtifact(ctx, rec("root", "VideoArtifact", "")); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	var count int64
	if err := tr.db.Model(&ArtifactRow{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after duplicate save, got %d", count)
	}
}

func TestSaveArtifact_EdgeOnlyOnFirstInsert(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	if err := tr.SaveArtifact(ctx, rec("root", "VideoArtifact", "")); err != nil {
		t.Fatalf("save root: %v", err)
	}
	if err := tr.SaveArtifact(ctx, rec("child", "AutoshotArtifact", "root")); err != nil {
		t.Fatalf("save child: %v", err)
	}
	if err := tr.SaveArtifact(ctx, rec("child", "AutoshotArtifact", "root")); err != nil {
		t.Fatalf("re-save child: %v", err)
	}

	var edges int64
	if err := tr.db.Model(&ArtifactLineageRow{}).Count(&edges).Error; err != nil {
		t.Fatalf("count edges: %v", err)
	}
	if edges != 1 {
		t.Fatalf("expected 1 edge, got %d", edges)
	}
}

func TestSaveArtifact_RejectsEmptyID(t *testing.T) {
	tr := testTracker(t)
	err := tr.SaveArtifact(context.Background(), artifact.Record{})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestGetDescendants_WalksWholeTree(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	for _, r := range []artifact.Record{
		rec("root", "VideoArtifact", ""),
		rec("shot", "AutoshotArtifact", "root"),
		rec("asr", "ASRArtifact", "root"),
		rec("img", "ImageArtifact", "shot"),
		rec("emb", "ImageEmbeddingArtifact", "img"),
	} {
		if err := tr.SaveArtifact(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ArtifactID, err)
		}
	}

	rows, err := tr.GetDescendants(ctx, "root")
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows including the root, got %d", len(rows))
	}
	if rows[0].ArtifactID != "root" {
		t.Fatalf("root should come first, got %q", rows[0].ArtifactID)
	}
}

func TestGetDescendants_UnknownRoot(t *testing.T) {
	tr := testTracker(t)
	_, err := tr.GetDescendants(context.Background(), "missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetDescendants_ToleratesCycles(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	if err := tr.SaveArtifact(ctx, rec("a", "VideoArtifact", "")); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := tr.SaveArtifact(ctx, rec("b", "AutoshotArtifact", "a")); err != nil {
		t.Fatalf("save b: %v", err)
	}
	// Corrupt edge closing a cycle b -> a.
	edge := ArtifactLineageRow{ID: "cycle", ParentArtifactID: "b", ChildArtifactID: "a", TransformationType: "test"}
	if err := tr.db.Create(&edge).Error; err != nil {
		t.Fatalf("create cycle edge: %v", err)
	}

	rows, err := tr.GetDescendants(ctx, "a")
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows despite cycle, got %d", len(rows))
	}
}

func TestDeleteSet_RemovesRowsAndEdges(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	for _, r := range []artifact.Record{
		rec("root", "VideoArtifact", ""),
		rec("shot", "AutoshotArtifact", "root"),
		rec("img", "ImageArtifact", "shot"),
	} {
		if err := tr.SaveArtifact(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ArtifactID, err)
		}
	}

	artifacts, edges, err := tr.DeleteSet(ctx, []string{"root", "shot", "img"})
	if err != nil {
		t.Fatalf("delete set: %v", err)
	}
	if artifacts != 3 {
		t.Fatalf("expected 3 artifact rows deleted, got %d", artifacts)
	}
	if edges != 2 {
		t.Fatalf("expected 2 edges deleted, got %d", edges)
	}

	if _, err := tr.GetDescendants(ctx, "root"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
