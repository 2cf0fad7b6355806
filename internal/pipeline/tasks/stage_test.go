package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/pipeline"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// memStore is an in-memory object store backing both the visitor and the
// stage tasks in tests.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) loc(bucket, key string) string { return bucket + "/" + key }

func (s *memStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, metadata map[string]string) (string, error) {
	raw, _ := io.ReadAll(r)
	s.objects[s.loc(bucket, key)] = raw
	return "s3://" + bucket + "/" + key, nil
}

func (s *memStore) PutJSON(ctx context.Context, bucket, key string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return s.PutObject(ctx, bucket, key, bytes.NewReader(raw), int64(len(raw)), "application/json", nil)
}

func (s *memStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, ok := s.objects[s.loc(bucket, key)]
	return ok, nil
}

func (s *memStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	raw, ok := s.objects[s.loc(bucket, key)]
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (s *memStore) GetJSON(ctx context.Context, bucket, key string, out any) (bool, error) {
	raw, ok := s.objects[s.loc(bucket, key)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

type memLineage struct {
	rows map[string]artifact.Record
}

func newMemLineage() *memLineage { return &memLineage{rows: map[string]artifact.Record{}} }

func (l *memLineage) SaveArtifact(ctx context.Context, rec artifact.Record) error {
	if _, ok := l.rows[rec.ArtifactID]; !ok {
		l.rows[rec.ArtifactID] = rec
	}
	return nil
}

func (l *memLineage) HasArtifact(ctx context.Context, artifactID string) (bool, error) {
	_, ok := l.rows[artifactID]
	return ok, nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonOK(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func stageLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func fastClientConfig() clients.Config {
	return clients.Config{
		Timeout:      time.Second,
		RetryMinWait: time.Millisecond,
		RetryMaxWait: 2 * time.Millisecond,
		FallbackURL:  "http://model-service:9000",
	}
}

func TestAutoshotTask_SkipsPersistedWithoutServiceCall(t *testing.T) {
	log := stageLogger(t)
	store := newMemStore()
	lineage := newMemLineage()
	visitor := artifact.NewVisitor(log, store, lineage)

	inferCalls := 0
	client := clients.NewAutoshotClient(log, nil, fastClientConfig())
	client.SetHTTPClient(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		inferCalls++
		return jsonOK(`{"scenes":[[0,100]],"total_scenes":1,"status":"success"}`), nil
	})})

	task := NewAutoshotTask(log, visitor, client)
	videos := []artifact.Video{{
		VideoID:    "vid",
		VideoURL:   "s3://bucket/videos/a.mp4",
		Extension:  ".mp4",
		UserBucket: "bucket",
		FPS:        25,
	}}

	shots, err := pipeline.Run(context.Background(), log, task, videos)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if inferCalls != 1 {
		t.Fatalf("expected 1 service call, got %d", inferCalls)
	}
	if len(shots) != 1 {
		t.Fatalf("expected 1 shot artifact, got %d", len(shots))
	}

	// Re-running over persisted work touches the service zero times.
	if _, err := pipeline.Run(context.Background(), log, task, videos); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if inferCalls != 1 {
		t.Fatalf("re-run must skip the service, got %d calls", inferCalls)
	}

	var payload artifact.AutoshotPayload
	found, err := store.GetJSON(context.Background(), "bucket", "autoshot/vid.json", &payload)
	if err != nil || !found {
		t.Fatalf("autoshot blob missing: %v %v", found, err)
	}
	if len(payload.Segments) != 1 || payload.Segments[0].EndFrame != 100 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestImageEmbedTask_BatchesAndPreservesOrder(t *testing.T) {
	log := stageLogger(t)
	store := newMemStore()
	lineage := newMemLineage()
	visitor := artifact.NewVisitor(log, store, lineage)

	var batchSizes []int
	client := clients.NewImageEmbedClient(log, nil, fastClientConfig())
	client.SetHTTPClient(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(r.Body)
		var req clients.ImageEmbedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		batchSizes = append(batchSizes, len(req.ImageBase64))

		// Position within the batch becomes the vector, so ordering
		// mistakes are visible in the persisted payloads.
		embeddings := make([][]float32, len(req.ImageBase64))
		for i := range embeddings {
			embeddings[i] = []float32{float32(i)}
		}
		resp := clients.ImageEmbedResponse{ImageEmbeddings: embeddings, Status: "success"}
		body, _ := json.Marshal(resp)
		return jsonOK(string(body)), nil
	})})

	images := make([]artifact.Image, 0, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		img := artifact.Image{
			FrameIndex:  int64(i),
			Extension:   ".webp",
			VideoID:     "vid",
			UserBucket:  "bucket",
			ContentType: "image/webp",
			Metadata:    map[string]string{"checksum_md5": fmt.Sprintf("sum%d", i)},
		}
		if _, err := store.PutObject(ctx, "bucket", img.ObjectKey(), bytes.NewReader([]byte{byte(i)}), 1, "image/webp", nil); err != nil {
			t.Fatalf("seed image: %v", err)
		}
		images = append(images, img)
	}

	task := NewImageEmbedTask(log, visitor, store, client, config.EmbeddingConfig{BatchSize: 2, Dimension: 1})
	embeddings, err := pipeline.Run(ctx, log, task, images)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(embeddings))
	}
	if len(batchSizes) != 2 || batchSizes[0] != 2 || batchSizes[1] != 1 {
		t.Fatalf("expected batches [2 1], got %v", batchSizes)
	}

	// Image i sits at position i%2 of its batch.
	for i, emb := range embeddings {
		raw, err := store.GetObject(ctx, "bucket", emb.ObjectKey())
		if err != nil || raw == nil {
			t.Fatalf("embedding blob %d missing: %v", i, err)
		}
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err != nil {
			t.Fatalf("decode vector %d: %v", i, err)
		}
		if want := float32(i % 2); vector[0] != want {
			t.Fatalf("embedding %d out of order: got %v want [%v]", i, vector, want)
		}
	}
}

func TestImageEmbedTask_SkipsPersistedItems(t *testing.T) {
	log := stageLogger(t)
	store := newMemStore()
	lineage := newMemLineage()
	visitor := artifact.NewVisitor(log, store, lineage)

	img := artifact.Image{
		FrameIndex:  0,
		Extension:   ".webp",
		VideoID:     "vid",
		UserBucket:  "bucket",
		ContentType: "image/webp",
		Metadata:    map[string]string{"checksum_md5": "sum"},
	}
	ctx := context.Background()
	if _, err := store.PutObject(ctx, "bucket", img.ObjectKey(), bytes.NewReader([]byte{1}), 1, "image/webp", nil); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	// Persist the embedding up front.
	emb := artifact.ImageEmbedding{ImageID: img.ID(), VideoID: "vid", FrameIndex: 0, UserBucket: "bucket"}
	if _, err := visitor.PersistEmbedding(ctx, emb, []float32{0.5}); err != nil {
		t.Fatalf("seed embedding: %v", err)
	}

	inferCalls := 0
	client := clients.NewImageEmbedClient(log, nil, fastClientConfig())
	client.SetHTTPClient(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		inferCalls++
		return jsonOK(`{"image_embeddings":[],"status":"success"}`), nil
	})})

	task := NewImageEmbedTask(log, visitor, store, client, config.EmbeddingConfig{BatchSize: 8, Dimension: 1})
	results, err := pipeline.Run(ctx, log, task, []artifact.Image{img})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("skipped items still flow downstream, got %d results", len(results))
	}
	if inferCalls != 0 {
		t.Fatalf("persisted item must not reach the service, got %d calls", inferCalls)
	}
}
