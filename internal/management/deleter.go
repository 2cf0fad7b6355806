package management

import (
	"context"
	"fmt"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/objectstore"
	"github.com/yungbote/videorag-backend/internal/tracker"
)

// VectorCollection is the vector store surface management needs.
// *milvus.Collection satisfies it.
type VectorCollection interface {
	Name() string
	CountByVideo(ctx context.Context, relatedVideoID string) (int, error)
	DeleteByVideo(ctx context.Context, relatedVideoID string) (int, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// DeletionResult reports what one delete removed from each store. Partial
// failures land in Errors instead of aborting the cascade.
type DeletionResult struct {
	Success             bool           `json:"success"`
	VideoID             string         `json:"video_id"`
	DeletedArtifacts    int64          `json:"deleted_artifacts"`
	DeletedLineage      int64          `json:"deleted_lineage"`
	DeletedMinioObjects int            `json:"deleted_minio_objects"`
	VectorDeleted       map[string]int `json:"vector_deleted"`
	Errors              []string       `json:"errors,omitempty"`
}

// Deleter cascades video deletion across the lineage tables, the object
// store and every vector collection.
type Deleter struct {
	log         *logger.Logger
	tracker     *tracker.Tracker
	blobs       objectstore.Store
	collections []VectorCollection
}

func NewDeleter(log *logger.Logger, tr *tracker.Tracker, blobs objectstore.Store, collections []VectorCollection) *Deleter {
	return &Deleter{
		log:         log.With("service", "VideoDeleter"),
		tracker:     tr,
		blobs:       blobs,
		collections: collections,
	}
}

// DeleteVideo removes the whole artifact tree of one video: blobs first,
// then lineage rows, then vector rows. Returns ErrNotFound when the video
// is unknown.
func (d *Deleter) DeleteVideo(ctx context.Context, videoID string) (*DeletionResult, error) {
	rows, err := d.tracker.GetDescendants(ctx, videoID)
	if err != nil {
		return nil, err
	}

	result := &DeletionResult{VideoID: videoID, VectorDeleted: map[string]int{}}
	d.deleteBlobs(ctx, rows, result)

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ArtifactID)
	}
	artifacts, edges, err := d.tracker.DeleteSet(ctx, ids)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("delete lineage: %v", err))
	}
	result.DeletedArtifacts = artifacts
	result.DeletedLineage = edges

	for _, col := range d.collections {
		deleted, err := col.DeleteByVideo(ctx, videoID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete vectors from %s: %v", col.Name(), err))
			continue
		}
		result.VectorDeleted[col.Name()] = deleted
	}

	result.Success = len(result.Errors) == 0
	d.log.Info("Video deleted",
		"video_id", videoID,
		"artifacts", result.DeletedArtifacts,
		"objects", result.DeletedMinioObjects,
		"errors", len(result.Errors))
	return result, nil
}

// DeleteStage removes every artifact of one type under a video, together
// with everything derived from those artifacts.
func (d *Deleter) DeleteStage(ctx context.Context, videoID string, artifactType artifact.Type) (*DeletionResult, error) {
	rows, err := d.tracker.GetDescendants(ctx, videoID)
	if err != nil {
		return nil, err
	}

	// Deleting a stage takes its whole subtree with it, otherwise derived
	// artifacts would be orphaned.
	doomed := map[string]tracker.ArtifactRow{}
	for _, row := range rows {
		if artifact.Type(row.ArtifactType) != artifactType {
			continue
		}
		subtree, err := d.tracker.GetDescendants(ctx, row.ArtifactID)
		if err != nil {
			return nil, err
		}
		for _, sub := range subtree {
			doomed[sub.ArtifactID] = sub
		}
	}

	result := &DeletionResult{VideoID: videoID, VectorDeleted: map[string]int{}}
	doomedRows := make([]tracker.ArtifactRow, 0, len(doomed))
	ids := make([]string, 0, len(doomed))
	idsByType := map[artifact.Type][]string{}
	for id, row := range doomed {
		doomedRows = append(doomedRows, row)
		ids = append(ids, id)
		idsByType[artifact.Type(row.ArtifactType)] = append(idsByType[artifact.Type(row.ArtifactType)], id)
	}
	d.deleteBlobs(ctx, doomedRows, result)

	artifacts, edges, err := d.tracker.DeleteSet(ctx, ids)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("delete lineage: %v", err))
	}
	result.DeletedArtifacts = artifacts
	result.DeletedLineage = edges

	for _, col := range d.collections {
		typ, ok := collectionArtifactType(col.Name())
		if !ok {
			continue
		}
		vectorIDs := idsByType[typ]
		if len(vectorIDs) == 0 {
			continue
		}
		deleted, err := col.DeleteByIDs(ctx, vectorIDs)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete vectors from %s: %v", col.Name(), err))
			continue
		}
		result.VectorDeleted[col.Name()] = deleted
	}

	result.Success = len(result.Errors) == 0
	d.log.Info("Stage deleted",
		"video_id", videoID,
		"artifact_type", artifactType,
		"artifacts", result.DeletedArtifacts)
	return result, nil
}

// DeleteVectorsOnly clears the vector rows of one video while keeping its
// blobs and lineage intact.
func (d *Deleter) DeleteVectorsOnly(ctx context.Context, videoID string) (*DeletionResult, error) {
	if _, err := d.tracker.GetDescendants(ctx, videoID); err != nil {
		return nil, err
	}
	result := &DeletionResult{VideoID: videoID, VectorDeleted: map[string]int{}}
	for _, col := range d.collections {
		deleted, err := col.DeleteByVideo(ctx, videoID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete vectors from %s: %v", col.Name(), err))
			continue
		}
		result.VectorDeleted[col.Name()] = deleted
	}
	result.Success = len(result.Errors) == 0
	return result, nil
}

// DeleteBatch deletes several videos, one result per video. Unknown videos
// produce a failed result instead of aborting the batch.
func (d *Deleter) DeleteBatch(ctx context.Context, videoIDs []string) []DeletionResult {
	results := make([]DeletionResult, 0, len(videoIDs))
	for _, id := range videoIDs {
		res, err := d.DeleteVideo(ctx, id)
		if err != nil {
			results = append(results, DeletionResult{
				VideoID:       id,
				VectorDeleted: map[string]int{},
				Errors:        []string{err.Error()},
			})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// deleteBlobs removes the stored object of every row that has one. The
// root video row points at the user's original upload, which stays.
func (d *Deleter) deleteBlobs(ctx context.Context, rows []tracker.ArtifactRow, result *DeletionResult) {
	for _, row := range rows {
		if artifact.Type(row.ArtifactType) == artifact.TypeVideo || row.MinioURL == "" {
			continue
		}
		bucket, key, err := objectstore.ParseURL(row.MinioURL)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("parse url for %s: %v", row.ArtifactID, err))
			continue
		}
		if err := d.blobs.RemoveObject(ctx, bucket, key); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s/%s: %v", bucket, key, err))
			continue
		}
		result.DeletedMinioObjects++
	}
}

func collectionArtifactType(name string) (artifact.Type, bool) {
	switch name {
	case "image_embeddings":
		return artifact.TypeImageEmbedding, true
	case "text_caption_embeddings":
		return artifact.TypeTextCaptionEmbedding, true
	case "segment_caption_embeddings":
		return artifact.TypeSegmentCaptionEmbedding, true
	}
	return "", false
}
