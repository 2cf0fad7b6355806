package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/videorag-backend/internal/artifact"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/tracker"
)

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (s *fakeStore) loc(bucket, key string) string { return bucket + "/" + key }

func (s *fakeStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (s *fakeStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, metadata map[string]string) (string, error) {
	raw, _ := io.ReadAll(r)
	s.objects[s.loc(bucket, key)] = raw
	return "s3://" + bucket + "/" + key, nil
}

func (s *fakeStore) PutJSON(ctx context.Context, bucket, key string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return s.PutObject(ctx, bucket, key, bytes.NewReader(raw), int64(len(raw)), "application/json", nil)
}

func (s *fakeStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	raw, ok := s.objects[s.loc(bucket, key)]
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (s *fakeStore) GetJSON(ctx context.Context, bucket, key string, out any) (bool, error) {
	raw, ok := s.objects[s.loc(bucket, key)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (s *fakeStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, ok := s.objects[s.loc(bucket, key)]
	return ok, nil
}

func (s *fakeStore) RemoveObject(ctx context.Context, bucket, key string) error {
	delete(s.objects, s.loc(bucket, key))
	return nil
}

func (s *fakeStore) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	return nil, nil
}

type fakeCollection struct {
	name string
	rows map[string]string // id -> related video id
}

func newFakeCollection(name string) *fakeCollection {
	return &fakeCollection{name: name, rows: map[string]string{}}
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) CountByVideo(ctx context.Context, videoID string) (int, error) {
	count := 0
	for _, vid := range c.rows {
		if vid == videoID {
			count++
		}
	}
	return count, nil
}

func (c *fakeCollection) DeleteByVideo(ctx context.Context, videoID string) (int, error) {
	deleted := 0
	for id, vid := range c.rows {
		if vid == videoID {
			delete(c.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (c *fakeCollection) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		if _, ok := c.rows[id]; ok {
			delete(c.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

type fixture struct {
	tracker     *tracker.Tracker
	store       *fakeStore
	imageCol    *fakeCollection
	textCol     *fakeCollection
	segmentCol  *fakeCollection
	deleter     *Deleter
	status      *StatusService
	collections []VectorCollection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "mgmt.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&tracker.ArtifactRow{}, &tracker.ArtifactLineageRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	f := &fixture{
		tracker:    tracker.NewTracker(log, db),
		store:      newFakeStore(),
		imageCol:   newFakeCollection("image_embeddings"),
		textCol:    newFakeCollection("text_caption_embeddings"),
		segmentCol: newFakeCollection("segment_caption_embeddings"),
	}
	f.collections = []VectorCollection{f.imageCol, f.textCol, f.segmentCol}
	f.deleter = NewDeleter(log, f.tracker, f.store, f.collections)
	f.status = NewStatusService(log, f.tracker, f.collections)
	return f
}

// seedVideo builds a small but complete artifact tree for one video.
func (f *fixture) seedVideo(t *testing.T, videoID string) {
	t.Helper()
	ctx := context.Background()

	save := func(id, typ, parent, url string) {
		t.Helper()
		if url != "" && url != "s3://bucket/videos/"+videoID+".mp4" {
			bucket, key := "bucket", url[len("s3://bucket/"):]
			if _, err := f.store.PutObject(ctx, bucket, key, bytes.NewReader([]byte("x")), 1, "", nil); err != nil {
				t.Fatalf("seed blob %s: %v", key, err)
			}
		}
		err := f.tracker.SaveArtifact(ctx, artifact.Record{
			ArtifactID:       id,
			ArtifactType:     typ,
			MinioURL:         url,
			ParentArtifactID: parent,
			TaskName:         "seed",
			UserID:           "user",
		})
		if err != nil {
			t.Fatalf("seed row %s: %v", id, err)
		}
	}

	save(videoID, string(artifact.TypeVideo), "", "s3://bucket/videos/"+videoID+".mp4")
	save(videoID+"-shot", string(artifact.TypeAutoshot), videoID, "s3://bucket/autoshot/"+videoID+".json")
	save(videoID+"-asr", string(artifact.TypeASR), videoID, "s3://bucket/asr/"+videoID+".json")
	save(videoID+"-img", string(artifact.TypeImage), videoID+"-shot", "s3://bucket/images/"+videoID+"/00000001.webp")
	save(videoID+"-imgemb", string(artifact.TypeImageEmbedding), videoID+"-img", "s3://bucket/embedding/image/"+videoID+"/00000001.npy")
	f.imageCol.rows[videoID+"-imgemb"] = videoID
	save(videoID+"-segcap", string(artifact.TypeSegmentCaption), videoID+"-shot", "s3://bucket/caption/segment/"+videoID+"/0_100.json")
	save(videoID+"-segemb", string(artifact.TypeSegmentCaptionEmbedding), videoID+"-segcap", "s3://bucket/embedding/caption_segment/"+videoID+"/0_100.npy")
	f.segmentCol.rows[videoID+"-segemb"] = videoID
}

func TestDeleteVideo_CascadesAcrossStores(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	ctx := context.Background()

	result, err := f.deleter.DeleteVideo(ctx, "vid")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %v", result.Errors)
	}
	if result.DeletedArtifacts != 7 {
		t.Fatalf("expected 7 artifact rows deleted, got %d", result.DeletedArtifacts)
	}
	// Six derived blobs; the source video upload stays.
	if result.DeletedMinioObjects != 6 {
		t.Fatalf("expected 6 objects deleted, got %d", result.DeletedMinioObjects)
	}
	if result.VectorDeleted["image_embeddings"] != 1 || result.VectorDeleted["segment_caption_embeddings"] != 1 {
		t.Fatalf("unexpected vector counts %v", result.VectorDeleted)
	}

	if _, err := f.tracker.GetDescendants(ctx, "vid"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if len(f.imageCol.rows) != 0 || len(f.segmentCol.rows) != 0 {
		t.Fatalf("vector rows left behind")
	}
}

func TestDeleteVideo_LeavesOtherVideosAlone(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid1")
	f.seedVideo(t, "vid2")
	ctx := context.Background()

	if _, err := f.deleter.DeleteVideo(ctx, "vid1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rows, err := f.tracker.GetDescendants(ctx, "vid2")
	if err != nil {
		t.Fatalf("vid2 should survive: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("vid2 tree damaged, got %d rows", len(rows))
	}
	if f.imageCol.rows["vid2-imgemb"] != "vid2" {
		t.Fatalf("vid2 vectors damaged")
	}
}

func TestDeleteVideo_UnknownVideo(t *testing.T) {
	f := newFixture(t)
	_, err := f.deleter.DeleteVideo(context.Background(), "missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteStage_RemovesSubtreeOnly(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	ctx := context.Background()

	result, err := f.deleter.DeleteStage(ctx, "vid", artifact.TypeSegmentCaption)
	if err != nil {
		t.Fatalf("delete stage: %v", err)
	}
	// The segment caption and the embedding derived from it.
	if result.DeletedArtifacts != 2 {
		t.Fatalf("expected 2 artifacts deleted, got %d", result.DeletedArtifacts)
	}
	if result.VectorDeleted["segment_caption_embeddings"] != 1 {
		t.Fatalf("derived vector row should be deleted, got %v", result.VectorDeleted)
	}

	rows, err := f.tracker.GetDescendants(ctx, "vid")
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 surviving rows, got %d", len(rows))
	}
	if f.imageCol.rows["vid-imgemb"] != "vid" {
		t.Fatalf("unrelated vector rows must survive a stage delete")
	}
}

func TestDeleteVectorsOnly_KeepsLineageAndBlobs(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")
	ctx := context.Background()

	result, err := f.deleter.DeleteVectorsOnly(ctx, "vid")
	if err != nil {
		t.Fatalf("delete vectors: %v", err)
	}
	if result.VectorDeleted["image_embeddings"] != 1 {
		t.Fatalf("unexpected vector counts %v", result.VectorDeleted)
	}

	rows, err := f.tracker.GetDescendants(ctx, "vid")
	if err != nil || len(rows) != 7 {
		t.Fatalf("lineage must survive a vector-only delete: %v %d", err, len(rows))
	}
	exists, _ := f.store.ObjectExists(ctx, "bucket", "autoshot/vid.json")
	if !exists {
		t.Fatalf("blobs must survive a vector-only delete")
	}
}

func TestDeleteBatch_ToleratesUnknownVideos(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "vid")

	results := f.deleter.DeleteBatch(context.Background(), []string{"vid", "missing"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("known video should delete, errors: %v", results[0].Errors)
	}
	if results[1].Success || len(results[1].Errors) == 0 {
		t.Fatalf("unknown video should fail in place, got %+v", results[1])
	}
}
